package capture

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kokistudios/hubcap/internal/hub"
	"github.com/kokistudios/hubcap/internal/ui"
)

// Timezone is the fixed clock every capture is filed under, independent of
// the host timezone.
const Timezone = "Asia/Shanghai"

var hubLocation = time.FixedZone(Timezone, 8*60*60)

// ParseTimestamp resolves an adapter-supplied timestamp, falling back to now
// when the value is absent or unparseable.
func ParseTimestamp(raw string, now time.Time) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return now
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts
		}
	}
	return now
}

// NowParts splits an instant into the hub-clock date parts.
func NowParts(t time.Time) DateParts {
	local := t.In(hubLocation)
	return DateParts{
		YMD:           local.Format("2006-01-02"),
		HM:            local.Format("15:04"),
		ISOWithOffset: local.Format("2006-01-02T15:04") + ":00+08:00",
	}
}

// RunParams configures one capture run against an already-resolved hub.
type RunParams struct {
	Input       Input
	Paths       hub.Paths
	OutputMode  string
	ApplyWrites bool
	Now         time.Time // zero means wall clock
}

func mapWatchType(typ Type) WatchType {
	switch typ {
	case TypeAction:
		return WatchCompletion
	case TypeIdea:
		return WatchPromotion
	case TypeReference:
		return WatchReference
	case TypeWatch:
		return WatchWatch
	default:
		return WatchNone
	}
}

func includeCalendarEntry(typ Type, due string, schedule RemindSchedule) bool {
	if typ == TypeTimeline {
		return true
	}
	if due != "" {
		return true
	}
	return len(schedule.Checkpoints) > 0
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func buildContentParts(inf Inference, inputText string) hub.CardBody {
	var reason string
	switch inf.Type {
	case TypeWatch:
		reason = "訊息含時間結構且未見強制轉任務指令，先以 watch 追蹤。"
	case TypeAction:
		reason = "訊息包含明確推進語意，判斷為 action。"
	case TypeQuestion:
		reason = "訊息呈現待解問題，先落為 question。"
	case TypeReference:
		reason = "訊息含外部連結/資料訊號，判斷為 reference。"
	case TypeIdea:
		reason = "訊息偏向想法與備忘，先落為 idea。"
	default:
		reason = "訊息偏生活紀錄，先落為 memory。"
	}

	conservative := ""
	if inf.Confidence < 0.65 {
		conservative = "信心偏低，採保守策略：不自動轉任務、不升級優先級。"
	}
	var keyFacts []string
	if inf.Due != "" {
		keyFacts = append(keyFacts, "due: "+inf.Due)
	}
	if inf.Input.Metadata.MessageID != "" {
		keyFacts = append(keyFacts, "message_id: "+inf.Input.Metadata.MessageID)
	}
	if inf.Input.Metadata.ReplyTo != "" {
		keyFacts = append(keyFacts, "reply_to: "+inf.Input.Metadata.ReplyTo)
	}
	if inf.Input.Metadata.GroupID != "" {
		keyFacts = append(keyFacts, "group_id: "+inf.Input.Metadata.GroupID)
	}
	nextAction := inf.NextBestAction
	if nextAction == "" {
		nextAction = "none"
	}
	return hub.CardBody{
		OriginalText:     inputText,
		SummaryLine:      inf.Title,
		RationaleLine:    reason,
		ConservativeLine: conservative,
		NextActionLine:   nextAction,
		KeyFacts:         keyFacts,
		AttachmentLines:  inf.Attachments,
	}
}

func buildFrontmatter(id string, inf Inference, now DateParts, schedule RemindSchedule, feedback Feedback, calendarEntry bool) hub.CardFrontmatter {
	stage := ""
	if inf.Type == TypeIdea {
		stage = StageSpark
	}
	qStatus := ""
	if inf.Type == TypeQuestion {
		qStatus = QStatusOpen
	}
	horizon := -1
	if feedback.ExpectedHorizonDays != nil {
		horizon = *feedback.ExpectedHorizonDays
	}
	return hub.CardFrontmatter{
		ID:             id,
		Type:           string(inf.Type),
		Title:          inf.Title,
		Created:        now.YMD,
		Source:         string(inf.Source),
		Priority:       string(inf.Priority),
		Due:            inf.Due,
		Tags:           inf.Tags,
		ConvertToTask:  inf.ConvertToTask,
		LongTermMemory: inf.LongTermMemory,
		CalendarEntry:  calendarEntry,
		Stage:          stage,
		QStatus:        qStatus,
		Confidence:     inf.Confidence,
		Alts:           []string{},
		DedupeHint:     string(inf.DedupeHint),
		NextBestAction: inf.NextBestAction,
		Links:          []string{},
		Attachments:    inf.Attachments,
		Schedule: hub.CardSchedule{
			Mode:             string(schedule.Mode),
			Checkpoints:      schedule.Checkpoints,
			AutoArchiveAfter: deref(schedule.AutoArchiveAfter),
		},
		Feedback: hub.CardFeedback{
			Token:       feedback.Token,
			WatchType:   string(feedback.WatchType),
			HorizonDays: horizon,
		},
	}
}

func buildMemoryLogBlock(now DateParts, inputText string, inf Inference) string {
	tags := strings.Join(inf.Tags, ", ")
	if tags == "" {
		tags = "none"
	}
	attachments := ""
	if len(inf.Attachments) > 0 {
		quoted := make([]string, len(inf.Attachments))
		for i, value := range inf.Attachments {
			quoted[i] = `"` + value + `"`
		}
		attachments = strings.Join(quoted, ", ")
	}
	if attachments == "" {
		attachments = "none"
	}
	lines := []string{
		"## " + now.HM,
		"原文：" + inputText,
		"整理：" + inf.Title,
		"tags：" + tags,
	}
	if inf.Input.Metadata.MessageID != "" {
		lines = append(lines, "message_id: "+inf.Input.Metadata.MessageID)
	}
	if inf.Input.Metadata.ReplyTo != "" {
		lines = append(lines, "reply_to: "+inf.Input.Metadata.ReplyTo)
	}
	if inf.Input.Metadata.GroupID != "" {
		lines = append(lines, "group_id: "+inf.Input.Metadata.GroupID)
	}
	lines = append(lines, "attachments："+attachments)
	return strings.Join(lines, "\n")
}

func buildCalendarLine(now DateParts, title string, typ Type, due string, schedule RemindSchedule) string {
	firstDate := now.YMD
	if due != "" {
		firstDate = due
		if len(firstDate) > 10 {
			firstDate = firstDate[:10]
		}
	} else if len(schedule.Checkpoints) > 0 {
		firstDate = schedule.Checkpoints[0]
	}
	dueText := due
	if dueText == "" {
		if len(schedule.Checkpoints) > 0 {
			dueText = "checkpoints:" + strings.Join(schedule.Checkpoints, ",")
		} else {
			dueText = "none"
		}
	}
	return fmt.Sprintf("| %s | %s | %s %s | %s |\n",
		hub.EscapeTableCell(firstDate),
		hub.EscapeTableCell(title),
		hub.TypeEmoji(string(typ)), typ,
		hub.EscapeTableCell(dueText))
}

func buildAck(paths hub.Paths, mainPath string, inf Inference, schedule RemindSchedule, merged bool) Ack {
	emoji := hub.TypeEmoji(string(inf.Type))
	conf := hub.FormatConfidence(inf.Confidence)
	verb := "已收"
	if merged {
		verb = "已合併"
	}
	line1 := fmt.Sprintf("📥 %s：%s %s | %s | conf:%s", verb, emoji, inf.Type, inf.Title, conf)
	line2 := "→ " + paths.DisplayPath(mainPath)
	if len(schedule.Checkpoints) > 0 {
		line2 += " ⏰ " + schedule.Checkpoints[0]
	}
	if inf.Confidence >= 0.85 {
		return Ack{Line1: line1, Line2: line2}
	}
	line3 := "回覆：1=轉任務  2=加期限  3=長期記憶  4=拆分  5=合併上一條  0=忽略"
	if inf.Type == TypeWatch {
		line3 = "回覆：1=轉任務  6=只提醒一次  0=不用提醒了"
	}
	return Ack{Line1: line1, Line2: line2, Line3: line3}
}

func isCardMarkdownWrite(op hub.FileOp) bool {
	if op.Op != hub.OpCreate && op.Op != hub.OpOverwrite {
		return false
	}
	if !strings.HasSuffix(op.Path, ".md") {
		return false
	}
	return strings.Contains(op.Content, "\n## 原文\n") && strings.Contains(op.Content, "\n## 你的整理\n")
}

func buildAgentView(paths hub.Paths, ops []hub.FileOp, ack Ack) *AgentView {
	cards := make([]CardOutput, 0)
	var pieces []string
	for _, op := range ops {
		if !isCardMarkdownWrite(op) {
			continue
		}
		cards = append(cards, CardOutput{Path: paths.DisplayPath(op.Path), Content: op.Content})
		pieces = append(pieces, strings.TrimRight(op.Content, " \t\n"))
	}
	ackParts := []string{ack.Line1, ack.Line2}
	if ack.Line3 != "" {
		ackParts = append(ackParts, ack.Line3)
	}
	if ackText := strings.Join(ackParts, "\n"); ackText != "" {
		pieces = append(pieces, ackText)
	}
	return &AgentView{Cards: cards, Text: strings.Join(pieces, "\n\n")}
}

// Run classifies one input and files it into the hub, returning the full
// acknowledgment. With ApplyWrites false the plan is returned without
// touching the record files (the scaffold is still ensured).
func Run(params RunParams) (RunOutput, error) {
	outputMode := strings.ToLower(params.OutputMode)
	if outputMode != "agent" {
		outputMode = "json"
	}

	wallClock := params.Now
	if wallClock.IsZero() {
		wallClock = time.Now()
	}
	ts := ParseTimestamp(params.Input.Metadata.Timestamp, wallClock)
	now := NowParts(ts)
	paths := params.Paths
	if err := paths.EnsureDirs(); err != nil {
		return RunOutput{}, fmt.Errorf("ensure hub dirs: %w", err)
	}
	if err := paths.EnsureScaffold(); err != nil {
		return RunOutput{}, fmt.Errorf("ensure hub scaffold: %w", err)
	}

	ctx := BuildContext(paths, now)
	inf := Classify(params.Input, now, ctx)
	match := FindAppendTarget(paths, inf, ts)

	var id string
	if match != nil {
		id = hub.ExtractIDFromPath(match.Path)
	}
	if id == "" {
		id = paths.NextDailyID(now.YMD, now.HM)
	}
	slug := hub.SlugifyTitle(inf.Title, string(inf.Type))
	mainPath := paths.ResolveMainPath(id, slug, string(inf.Type), now.YMD)
	if match != nil {
		mainPath = match.Path
		inf.DedupeHint = DedupeAppendExisting
	}
	pathSet := paths.ResolvePathSet(now.YMD, string(inf.Source))

	item, ops, ack := buildItemAndOps(paths, pathSet, id, now, inf, mainPath, match)

	if params.ApplyWrites {
		if err := hub.Apply(ops); err != nil {
			ui.Logger.Error("Hub write failed", "id", id, "ops", len(ops), "error", err)
			return RunOutput{}, fmt.Errorf("apply capture writes: %w", err)
		}
		ui.Logger.Info("Capture filed", "id", id, "type", string(inf.Type), "ops", len(ops))
	}

	out := RunOutput{
		Timezone: Timezone,
		Date:     now.YMD,
		Source:   inf.Source,
		Ack:      ack,
		Items:    []Item{item},
	}
	if outputMode == "agent" {
		out.OutputMode = "agent"
		out.Agent = buildAgentView(paths, ops, ack)
	}
	return out, nil
}

func buildItemAndOps(paths hub.Paths, pathSet hub.PathSet, id string, now DateParts, inf Inference, mainPath string, match *AppendMatch) (Item, []hub.FileOp, Ack) {
	inputText := inf.Input.Content
	alreadySeenByMessage := match != nil && match.Reason == ReasonAlreadySeen
	appendExisting := match != nil && inf.Type != TypeMemory
	memoryAlreadySeen := false

	schedule := InferRemindSchedule(inf.Type, inf.Due, now.YMD)
	calendarEntry := includeCalendarEntry(inf.Type, inf.Due, schedule)
	feedback := Feedback{
		Token:     "fb_" + strings.ReplaceAll(now.YMD, "-", "") + "_" + lastN(id, 3),
		WatchType: mapWatchType(inf.Type),
	}
	if inf.Due != "" {
		horizon := 7
		feedback.ExpectedHorizonDays = &horizon
	}

	contentParts := buildContentParts(inf, inputText)
	frontmatter := buildFrontmatter(id, inf, now, schedule, feedback, calendarEntry)

	var ops []hub.FileOp
	inboxLines := []string{"## " + now.HM, inputText}
	if inf.Input.Metadata.MessageID != "" {
		inboxLines = append(inboxLines, "message_id: "+inf.Input.Metadata.MessageID)
	}
	if inf.Input.Metadata.ReplyTo != "" {
		inboxLines = append(inboxLines, "reply_to: "+inf.Input.Metadata.ReplyTo)
	}
	if len(inf.Attachments) > 0 {
		inboxLines = append(inboxLines, "attachments: "+strings.Join(inf.Attachments, ", "))
	}
	ops = append(ops, hub.FileOp{
		Op:      hub.OpAppend,
		Path:    pathSet.InboxPath,
		Content: hub.AppendLine(strings.Join(inboxLines, "\n")),
	})

	switch {
	case inf.Type == TypeMemory:
		existing, _ := hub.ReadText(mainPath)
		memoryAlreadySeen = hub.ContainsMessageRef(existing, inf.Input.Metadata.MessageID)
		if !memoryAlreadySeen {
			ops = append(ops, hub.FileOp{
				Op:      hub.OpAppend,
				Path:    mainPath,
				Content: hub.AppendLine(buildMemoryLogBlock(now, inputText, inf)),
			})
		}
	case appendExisting:
		if existing, ok := hub.ReadText(mainPath); ok {
			merged := hub.MergeCardContent(existing, now.HM, inputText, hub.MergeMeta{
				MessageID: inf.Input.Metadata.MessageID,
				ReplyTo:   inf.Input.Metadata.ReplyTo,
				GroupID:   inf.Input.Metadata.GroupID,
			})
			ops = append(ops, hub.FileOp{Op: hub.OpOverwrite, Path: mainPath, Content: merged})
		} else {
			ops = append(ops, hub.FileOp{Op: hub.OpCreate, Path: mainPath, Content: hub.BuildCardMarkdown(frontmatter, contentParts)})
		}
	default:
		ops = append(ops, hub.FileOp{Op: hub.OpCreate, Path: mainPath, Content: hub.BuildCardMarkdown(frontmatter, contentParts)})
	}

	conf := hub.FormatConfidence(inf.Confidence)
	priorityText := string(inf.Priority)
	if priorityText == "" {
		priorityText = "null"
	}
	dueText := inf.Due
	if dueText == "" {
		dueText = "none"
	}
	remindText := strings.Join(schedule.Checkpoints, ",")
	if remindText == "" {
		remindText = "none"
	}
	tagsText := strings.Join(inf.Tags, ",")
	tagsOrNone := tagsText
	if tagsOrNone == "" {
		tagsOrNone = "none"
	}

	if !appendExisting && (inf.Type == TypeAction || inf.Type == TypeWatch) {
		ops = append(ops, hub.FileOp{
			Op:   hub.OpAppend,
			Path: pathSet.TasksMasterPath,
			Content: hub.AppendLine(fmt.Sprintf("- [ ] %s (id:%s) type:%s priority:%s due:%s conf:%s tags:%s remind:%s",
				inf.Title, id, inf.Type, priorityText, dueText, conf, tagsText, remindText)),
		})
	}
	if !appendExisting && inf.Type == TypeWatch {
		checkpointsText := strings.Join(schedule.Checkpoints, ",")
		if checkpointsText == "" {
			checkpointsText = "none"
		}
		ops = append(ops, hub.FileOp{
			Op:   hub.OpAppend,
			Path: pathSet.WaitingPath,
			Content: hub.AppendLine(fmt.Sprintf("- %s (id:%s) due:%s checkpoints:%s conf:%s",
				inf.Title, id, dueText, checkpointsText, conf)),
		})
	}
	if !appendExisting && inf.Type == TypeIdea {
		ops = append(ops, hub.FileOp{
			Op:   hub.OpAppend,
			Path: pathSet.IdeasIndexPath,
			Content: hub.AppendLine(fmt.Sprintf("- %s (id:%s) stage:spark conf:%s tags:%s",
				inf.Title, id, conf, tagsOrNone)),
		})
	}
	if !appendExisting && inf.Type == TypeQuestion {
		ops = append(ops, hub.FileOp{
			Op:   hub.OpAppend,
			Path: pathSet.QuestionsIndexPath,
			Content: hub.AppendLine(fmt.Sprintf("- [open] %s (id:%s) conf:%s tags:%s",
				inf.Title, id, conf, tagsOrNone)),
		})
	}
	if !appendExisting && inf.Type == TypeBelief {
		ops = append(ops, hub.FileOp{
			Op:   hub.OpAppend,
			Path: pathSet.BeliefsIndexPath,
			Content: hub.AppendLine(fmt.Sprintf("- %s (id:%s) v1 conf:%s tags:%s",
				inf.Title, id, conf, tagsOrNone)),
		})
	}

	messageReplay := alreadySeenByMessage || memoryAlreadySeen
	if !appendExisting && !messageReplay {
		queueEntry := QueueEntry{
			Token:         feedback.Token,
			ID:            id,
			Type:          string(inf.Type),
			Priority:      nullable(string(inf.Priority)),
			Tags:          inf.Tags,
			Confidence:    round2(inf.Confidence),
			CalendarEntry: calendarEntry,
			Checkpoints:   schedule.Checkpoints,
			TS:            now.ISOWithOffset,
			Consumed:      false,
		}
		if inf.Due != "" {
			dueYmd := inf.Due
			if len(dueYmd) > 10 {
				dueYmd = dueYmd[:10]
			}
			queueEntry.Due = &dueYmd
		}
		queueEntry.AutoArchiveAfter = schedule.AutoArchiveAfter
		encoded, err := json.Marshal(queueEntry)
		if err == nil {
			ops = append(ops, hub.FileOp{
				Op:      hub.OpAppend,
				Path:    pathSet.ReasoningQueuePath,
				Content: hub.AppendLine(string(encoded)),
			})
		}
	}
	if calendarEntry && !appendExisting && !messageReplay {
		ops = append(ops, hub.FileOp{
			Op:      hub.OpAppend,
			Path:    pathSet.CalendarPath,
			Content: buildCalendarLine(now, inf.Title, inf.Type, inf.Due, schedule),
		})
	}

	stage := ""
	if inf.Type == TypeIdea {
		stage = StageSpark
	}
	qStatus := ""
	if inf.Type == TypeQuestion {
		qStatus = QStatusOpen
	}
	dedupeHint := inf.DedupeHint
	if appendExisting || messageReplay {
		dedupeHint = DedupeAppendExisting
	}

	fileViews := make([]FileOpView, len(ops))
	for i, op := range ops {
		fileViews[i] = FileOpView{Op: op.Op, Path: op.Path, Content: op.Content}
	}

	item := Item{
		ID:             id,
		Type:           inf.Type,
		Title:          inf.Title,
		Priority:       inf.Priority,
		Due:            inf.Due,
		Tags:           inf.Tags,
		ConvertToTask:  inf.ConvertToTask,
		LongTermMemory: inf.LongTermMemory,
		CalendarEntry:  calendarEntry,
		Stage:          stage,
		QStatus:        qStatus,
		Confidence:     round2(inf.Confidence),
		Alts:           []string{},
		DedupeHint:     dedupeHint,
		NextBestAction: inf.NextBestAction,
		MainPath:       paths.DisplayPath(mainPath),
		Attachments:    inf.Attachments,
		RemindSchedule: schedule,
		Feedback:       feedback,
		Links:          []string{},
		Files:          fileViews,
	}
	ack := buildAck(paths, mainPath, inf, schedule, appendExisting || messageReplay)
	return item, ops, ack
}

func lastN(value string, n int) string {
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[len(runes)-n:])
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
