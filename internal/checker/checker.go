// Package checker sweeps the reasoning queue: it expires watch cards whose
// archive date has passed, surfaces today's checkpoint reminders, and records
// both as feedback signals. Running it twice on the same day is a no-op
// beyond the report rewrite.
package checker

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kokistudios/hubcap/internal/capture"
	"github.com/kokistudios/hubcap/internal/hub"
	"github.com/kokistudios/hubcap/internal/ui"
)

// PushOptions control where reminder payloads go. The checker only writes
// the payload file; delivery belongs to whatever channel bridge consumes it.
type PushOptions struct {
	Enabled bool
	DryRun  bool
	Channel string
	Target  string
}

// Options configure one sweep.
type Options struct {
	Paths hub.Paths
	Today string // YYYY-MM-DD; empty means today on the hub clock
	Push  PushOptions
}

// Result summarizes one sweep.
type Result struct {
	Today          string
	Due            int
	NewDue         int
	Expired        int
	QueueUpdates   int
	ArchivedCards  int
	WaitingRemoved int
	SignalsAdded   int
	Pushed         int
	PushMode       string
	PushError      string
	ReportPath     string
	PayloadPath    string
	ReminderLines  []string
}

func withTrailingNewline(value string) string {
	if strings.HasSuffix(value, "\n") {
		return value
	}
	return value + "\n"
}

func isWatchExpired(entry capture.QueueEntry, today string) bool {
	if entry.Consumed {
		return false
	}
	if strings.TrimSpace(entry.ID) == "" {
		return false
	}
	if strings.TrimSpace(entry.Type) != "watch" {
		return false
	}
	if entry.AutoArchiveAfter == nil {
		return false
	}
	after := *entry.AutoArchiveAfter
	if len(after) > 10 {
		after = after[:10]
	}
	if after == "" {
		return false
	}
	return after < today
}

// archiveCard flips a card's stage to archived and appends the lifecycle
// line, leaving the rest of the file byte for byte intact. Returns false
// when the card was already archived with today's line.
func archiveCard(path, today string) bool {
	raw, ok := hub.ReadText(path)
	if !ok || !strings.HasPrefix(raw, "---\n") {
		return false
	}
	fenceEnd := strings.Index(raw[4:], "\n---\n")
	if fenceEnd < 0 {
		return false
	}
	fenceEnd += 4

	frontRaw := raw[4:fenceEnd]
	bodyRaw := raw[fenceEnd+5:]
	frontLines := strings.Split(strings.ReplaceAll(frontRaw, "\r\n", "\n"), "\n")
	archivedLine := "stage: " + capture.StageArchived
	frontChanged := false
	hasStage := false
	for i, line := range frontLines {
		if !strings.HasPrefix(line, "stage:") {
			continue
		}
		hasStage = true
		if line != archivedLine {
			frontLines[i] = archivedLine
			frontChanged = true
		}
	}
	if !hasStage {
		frontLines = append(frontLines, archivedLine)
		frontChanged = true
	}

	lifecycleLine := "- watch_expired: " + today
	nextBody := withTrailingNewline(bodyRaw)
	bodyChanged := false
	if !strings.Contains(nextBody, lifecycleLine) {
		nextBody = nextBody + "\n## Watch Lifecycle\n" + lifecycleLine + "\n"
		bodyChanged = true
	}

	if !frontChanged && !bodyChanged {
		return false
	}
	next := "---\n" + strings.Join(frontLines, "\n") + "\n---\n" + nextBody
	return hub.Apply([]hub.FileOp{{Op: hub.OpOverwrite, Path: path, Content: withTrailingNewline(next)}}) == nil
}

var waitingIDRE = regexp.MustCompile(`\(id:(\d{4}-\d{2}-\d{2}-\d{3,4})\)`)

func removeWaitingLines(raw string, expiredIDs map[string]bool) (string, int) {
	if strings.TrimSpace(raw) == "" || len(expiredIDs) == 0 {
		return raw, 0
	}
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	var out []string
	removed := 0
	for _, line := range lines {
		hit := waitingIDRE.FindStringSubmatch(line)
		if hit != nil && expiredIDs[hit[1]] {
			removed++
			continue
		}
		out = append(out, line)
	}
	return withTrailingNewline(strings.Join(out, "\n")), removed
}

var originalSectionRE = regexp.MustCompile(`(?m)^##\s*原文\s*$`)

// extractOriginalSummary returns the first content line of a card's 原文
// section, truncated to 90 runes.
func extractOriginalSummary(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	loc := originalSectionRE.FindStringIndex(content)
	if loc == nil {
		return ""
	}
	after := content[loc[1]:]
	for _, line := range strings.Split(strings.ReplaceAll(after, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "## ") {
			break
		}
		if runes := []rune(trimmed); len(runes) > 90 {
			return string(runes[:90]) + "..."
		}
		return trimmed
	}
	return ""
}

var (
	captureTargetRE = regexp.MustCompile(`(?i)(capture|agent mode|agent)`)
	larkTargetRE    = regexp.MustCompile(`(lark|feishu|飛書|飞书)`)
	channelTargetRE = regexp.MustCompile(`(telegram|wechat|whatsapp)`)
	adapterTargetRE = regexp.MustCompile(`(webhook|adapter)`)
	checkVerbRE     = regexp.MustCompile(`(smoke|test|驗證|验证|check)`)
)

// inferFriendlyMeaning turns a terse card summary into a plain-language
// reminder sentence when the summary matches a known subsystem.
func inferFriendlyMeaning(summary string) string {
	lower := strings.ToLower(summary)
	var targets []string
	if captureTargetRE.MatchString(lower) {
		targets = append(targets, "機器人收訊與記錄功能")
	}
	if larkTargetRE.MatchString(lower) {
		targets = append(targets, "Lark/飛書通道")
	}
	if channelTargetRE.MatchString(lower) {
		targets = append(targets, "訊息通道")
	}
	if adapterTargetRE.MatchString(lower) {
		targets = append(targets, "接入連線")
	}
	if len(targets) == 0 {
		return ""
	}
	shown := targets
	if len(shown) > 2 {
		shown = shown[:2]
	}
	if checkVerbRE.MatchString(lower) {
		return "檢查" + strings.Join(shown, "、") + "是否正常"
	}
	return "跟進" + strings.Join(shown, "、") + "狀態"
}

var priorityLabelRE = regexp.MustCompile(`\bP([0-3])\b`)

func inferWatchPriority(typ, priorityRaw string) string {
	if hit := priorityLabelRE.FindStringSubmatch(strings.ToUpper(priorityRaw)); hit != nil {
		return "P" + hit[1]
	}
	switch typ {
	case "action":
		return "P1"
	case "watch":
		return "P2"
	default:
		return "P3"
	}
}

type checkpointSignal struct {
	Token      string   `json:"token"`
	Type       string   `json:"type"`
	ID         string   `json:"id"`
	Date       string   `json:"date"`
	CreatedAt  string   `json:"created_at"`
	Confidence *float64 `json:"confidence"`
}

type expiredSignal struct {
	Token     string  `json:"token"`
	Type      string  `json:"type"`
	ID        string  `json:"id"`
	Date      string  `json:"date"`
	CreatedAt string  `json:"created_at"`
	Due       *string `json:"due"`
}

func readQueue(path string) []capture.QueueEntry {
	var out []capture.QueueEntry
	for _, row := range hub.ReadJSONLRaw(path) {
		var entry capture.QueueEntry
		if err := json.Unmarshal(row, &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func writeQueue(path string, entries []capture.QueueEntry) error {
	rows := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		encoded, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		rows = append(rows, encoded)
	}
	return hub.WriteJSONL(path, rows)
}

// Run executes one sweep and returns its summary.
func Run(opts Options) (Result, error) {
	paths := opts.Paths
	if err := paths.EnsureDirs(); err != nil {
		return Result{}, fmt.Errorf("ensure hub dirs: %w", err)
	}
	if err := paths.EnsureScaffold(); err != nil {
		return Result{}, fmt.Errorf("ensure hub scaffold: %w", err)
	}

	today := opts.Today
	if today == "" {
		today = capture.NowParts(time.Now()).YMD
	}
	nowISO := time.Now().UTC().Format(time.RFC3339)

	queuePath := filepath.Join(paths.Meta, "reasoning_queue.jsonl")
	signalsPath := filepath.Join(paths.Meta, "feedback_signals.jsonl")
	queue := readQueue(queuePath)
	cards := hub.BuildCardIndex(paths.Root)

	existingTokens := map[string]bool{}
	for _, row := range hub.ReadJSONLRaw(signalsPath) {
		var probe struct {
			Token string `json:"token"`
		}
		if json.Unmarshal(row, &probe) == nil && probe.Token != "" {
			existingTokens[probe.Token] = true
		}
	}

	var expired []capture.QueueEntry
	expiredIDs := map[string]bool{}
	for _, entry := range queue {
		if isWatchExpired(entry, today) {
			expired = append(expired, entry)
			expiredIDs[strings.TrimSpace(entry.ID)] = true
		}
	}
	sortedExpiredIDs := make([]string, 0, len(expiredIDs))
	for id := range expiredIDs {
		sortedExpiredIDs = append(sortedExpiredIDs, id)
	}
	sort.Strings(sortedExpiredIDs)

	queueUpdates := 0
	queueNext := make([]capture.QueueEntry, len(queue))
	for i, entry := range queue {
		id := strings.TrimSpace(entry.ID)
		if id != "" && expiredIDs[id] && !entry.Consumed {
			entry.Consumed = true
			entry.ConsumedAt = nowISO
			entry.ConsumedReason = "watch_expired"
			queueUpdates++
		}
		queueNext[i] = entry
	}
	if queueUpdates > 0 {
		if err := writeQueue(queuePath, queueNext); err != nil {
			return Result{}, fmt.Errorf("rewrite reasoning queue: %w", err)
		}
		ui.Logger.Info("Expired watch entries consumed", "count", queueUpdates, "date", today)
	}

	archivedCards := 0
	for _, id := range sortedExpiredIDs {
		card, ok := cards[id]
		if !ok || card.Path == "" {
			continue
		}
		if archiveCard(card.Path, today) {
			archivedCards++
		}
	}

	waitingRemoved := 0
	if len(expiredIDs) > 0 {
		waitingPath := filepath.Join(paths.Work, "waiting.md")
		if raw, ok := hub.ReadText(waitingPath); ok {
			pruned, removed := removeWaitingLines(raw, expiredIDs)
			if removed > 0 {
				waitingRemoved = removed
				if err := hub.Apply([]hub.FileOp{{Op: hub.OpOverwrite, Path: waitingPath, Content: pruned}}); err != nil {
					return Result{}, fmt.Errorf("prune waiting.md: %w", err)
				}
			}
		}
	}

	var reminderLines []string
	var newReminderLines []string
	var newPushBlocks []string
	var feedbackRows []json.RawMessage

	for _, entry := range queueNext {
		if entry.Consumed {
			continue
		}
		hitToday := false
		for _, cp := range entry.Checkpoints {
			if len(cp) > 10 {
				cp = cp[:10]
			}
			if cp == today {
				hitToday = true
				break
			}
		}
		if !hitToday {
			continue
		}
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			continue
		}
		card, hasCard := cards[id]
		title := id
		typ := entry.Type
		if typ == "" {
			typ = "watch"
		}
		if hasCard {
			title = card.Title
			typ = card.Type
		}
		priorityRaw := ""
		if entry.Priority != nil {
			priorityRaw = *entry.Priority
		}
		priority := inferWatchPriority(typ, priorityRaw)
		dueText := "none"
		if entry.Due != nil && *entry.Due != "" {
			dueText = *entry.Due
		}
		summary := ""
		if hasCard {
			if content, ok := hub.ReadText(card.Path); ok {
				summary = extractOriginalSummary(content)
			}
		}
		if summary == "" {
			summary = title
		}
		friendly := inferFriendlyMeaning(summary)

		line := fmt.Sprintf("- [ ] (%s) %s (id:%s) type:%s due:%s checkpoint:%s", priority, title, id, typ, dueText, today)
		reminderLines = append(reminderLines, line)

		token := fmt.Sprintf("watch_checkpoint:%s:%s", today, id)
		if !existingTokens[token] {
			newReminderLines = append(newReminderLines, line)
			block := []string{fmt.Sprintf("• %s（%s｜%s）", id, typ, priority)}
			if friendly != "" {
				block = append(block, "  白話："+friendly, "  原文："+summary)
			} else {
				block = append(block, "  這條是："+summary)
			}
			block = append(block,
				fmt.Sprintf("  到期：%s（今天是 checkpoint 提醒，不是到期）", dueText),
				fmt.Sprintf("  回覆：1 %s = 轉任務；0 %s = 停止提醒", id, id),
			)
			newPushBlocks = append(newPushBlocks, strings.Join(block, "\n"))
		}

		confidence := entry.Confidence
		encoded, err := json.Marshal(checkpointSignal{
			Token: token, Type: "watch_checkpoint", ID: id,
			Date: today, CreatedAt: nowISO, Confidence: &confidence,
		})
		if err == nil {
			feedbackRows = append(feedbackRows, encoded)
		}
	}

	for _, entry := range expired {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			continue
		}
		encoded, err := json.Marshal(expiredSignal{
			Token: fmt.Sprintf("watch_expired:%s:%s", today, id), Type: "watch_expired",
			ID: id, Date: today, CreatedAt: nowISO, Due: entry.Due,
		})
		if err == nil {
			feedbackRows = append(feedbackRows, encoded)
		}
	}

	reportPath := filepath.Join(paths.Meta, "watch_reminders.md")
	reportLines := []string{
		"# watch_reminders",
		"",
		"date: " + today,
		fmt.Sprintf("count: %d", len(reminderLines)),
		fmt.Sprintf("expired_count: %d", len(expired)),
		fmt.Sprintf("queue_consumed_updates: %d", queueUpdates),
		fmt.Sprintf("archived_cards: %d", archivedCards),
		fmt.Sprintf("waiting_removed: %d", waitingRemoved),
		"",
	}
	if len(reminderLines) > 0 {
		reportLines = append(reportLines, reminderLines...)
	} else {
		reportLines = append(reportLines, "- (none)")
	}
	reportLines = append(reportLines, "", "## expired")
	if len(sortedExpiredIDs) > 0 {
		for _, id := range sortedExpiredIDs {
			reportLines = append(reportLines, "- "+id)
		}
	} else {
		reportLines = append(reportLines, "- (none)")
	}
	reportLines = append(reportLines, "")
	report := strings.Join(reportLines, "\n")
	if err := hub.Apply([]hub.FileOp{{Op: hub.OpOverwrite, Path: reportPath, Content: report}}); err != nil {
		return Result{}, fmt.Errorf("write reminder report: %w", err)
	}

	signalsAdded, err := hub.AppendJSONLUnique(signalsPath, feedbackRows)
	if err != nil {
		return Result{}, fmt.Errorf("append feedback signals: %w", err)
	}
	ui.Logger.Info("Watch sweep complete",
		"date", today,
		"due", len(reminderLines),
		"expired", len(expired),
		"archived", archivedCards,
		"signals", signalsAdded)

	result := Result{
		Today:          today,
		Due:            len(reminderLines),
		NewDue:         len(newReminderLines),
		Expired:        len(expired),
		QueueUpdates:   queueUpdates,
		ArchivedCards:  archivedCards,
		WaitingRemoved: waitingRemoved,
		SignalsAdded:   signalsAdded,
		ReportPath:     reportPath,
		PushMode:       "skipped",
		ReminderLines:  reminderLines,
	}

	if opts.Push.Enabled && len(newReminderLines) > 0 {
		if opts.Push.Target == "" {
			result.PushError = "missing push target"
			ui.Logger.Warn("Push skipped", "reason", "missing push target")
		} else {
			channel := opts.Push.Channel
			if channel == "" {
				channel = "telegram"
			}
			previewBlocks := newPushBlocks
			omitted := 0
			if len(previewBlocks) > 8 {
				omitted = len(previewBlocks) - 8
				previewBlocks = previewBlocks[:8]
			}
			textLines := append([]string{
				fmt.Sprintf("📌 今日 Watch 提醒（%s）", today),
				"說明：今天是 checkpoint 檢查，不是到期通知。",
			}, previewBlocks...)
			if omitted > 0 {
				textLines = append(textLines, fmt.Sprintf("… 另有 %d 條，請看 watch_reminders.md", omitted))
			}
			text := strings.Join(textLines, "\n")

			payloadPath := filepath.Join(paths.Meta, "watch_push_payload.md")
			payload := strings.Join([]string{
				"# watch_push_payload", "",
				"date: " + today,
				"channel: " + channel,
				"target: " + opts.Push.Target,
				"", text, "",
			}, "\n")
			if err := hub.Apply([]hub.FileOp{{Op: hub.OpOverwrite, Path: payloadPath, Content: payload}}); err != nil {
				result.PushError = err.Error()
			} else {
				result.PayloadPath = payloadPath
				result.Pushed = len(newReminderLines)
				if opts.Push.DryRun {
					result.PushMode = "simulated_dry_run"
				} else {
					result.PushMode = "payload"
				}
			}
		}
	}

	pushReportPath := filepath.Join(paths.Meta, "watch_push_results.md")
	payloadFile := result.PayloadPath
	if payloadFile == "" {
		payloadFile = "(none)"
	}
	target := opts.Push.Target
	if target == "" {
		target = "(unset)"
	}
	pushErr := result.PushError
	if pushErr == "" {
		pushErr = "none"
	}
	channel := opts.Push.Channel
	if channel == "" {
		channel = "telegram"
	}
	pushReport := strings.Join([]string{
		"# watch_push_results",
		"",
		"date: " + today,
		fmt.Sprintf("push_enabled: %t", opts.Push.Enabled),
		fmt.Sprintf("push_dry_run: %t", opts.Push.DryRun),
		"push_mode: " + result.PushMode,
		"target_channel: " + channel,
		"target_to: " + target,
		fmt.Sprintf("due_count: %d", result.Due),
		fmt.Sprintf("new_due_count: %d", result.NewDue),
		fmt.Sprintf("pushed_count: %d", result.Pushed),
		"payload_file: " + payloadFile,
		"error: " + pushErr,
		"",
	}, "\n")
	if err := hub.Apply([]hub.FileOp{{Op: hub.OpOverwrite, Path: pushReportPath, Content: pushReport}}); err != nil {
		return Result{}, fmt.Errorf("write push report: %w", err)
	}

	return result, nil
}
