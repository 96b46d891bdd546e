package capture

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Context is the recent-hub signal the classifier uses to soften confidence
// and reuse known tags. Both fields are optional.
type Context struct {
	RecentText string
	KnownTags  []string
}

var hardNoTaskTerms = []string{
	"不要變成待辦",
	"先別推進",
	"不用做",
	"只是記一下",
	"不用提醒",
}

var hardForceTaskTerms = []string{"轉任務", "推進", "今天要做", "請提醒", "幫我跟進"}

var hardLongTermTerms = []string{"long-term", "永久記錄", "長期記憶", "釘住", "pin"}
var urgentPriorityTerms = []string{"緊急", "urgent", "asap", "立即", "馬上", "马上"}
var importantPriorityTerms = []string{"重要", "關鍵", "关键", "高優先", "high priority"}
var laterPriorityTerms = []string{"有空", "之後", "之后", "later", "someday", "低優先"}

var timelineTerms = []string{
	"timeline",
	"時間線",
	"时间线",
	"里程碑",
	"milestone",
	"roadmap",
	"階段",
	"阶段",
	"phase",
	"sprint",
	"迭代",
	"版本規劃",
	"版本规划",
}
var beliefTerms = []string{"我相信", "我認為", "我认为", "信念", "原則", "原则", "價值觀", "价值观", "底層邏輯", "方法論", "方法论"}
var highlightTerms = []string{"重點", "重点", "精華", "精华", "亮點", "亮点", "金句", "摘錄", "摘录", "highlight", "收藏這句", "mark this"}
var ideaTerms = []string{"想法", "idea", "點子", "点子", "靈感", "灵感", "腦洞", "脑洞", "構思", "构思", "試試", "尝试", "prototype"}
var questionTerms = []string{"如何", "怎麼", "怎么", "是否", "能不能", "可不可以", "why", "what", "how"}
var referenceTerms = []string{"參考", "参考", "文檔", "文档", "連結", "链接", "paper", "repo", "readme", "資料來源", "资料来源"}
var dueIntentTerms = []string{"提醒", "截止", "到期", "due", "before", "之前", "跟進", "跟进", "完成", "交付", "review", "check"}
var personHintTerms = []string{
	"朋友",
	"同事",
	"客戶",
	"客户",
	"老師",
	"老师",
	"醫生",
	"医生",
	"mentor",
	"hr",
	"recruiter",
	"夥伴",
	"伙伴",
}
var personActionTerms = []string{"聯絡", "联系", "跟進", "跟进", "回覆", "回复", "對齊", "对齐", "聊", "談", "谈", "見面", "见面", "約", "约", "介紹", "介绍"}

var (
	urlRE           = regexp.MustCompile(`(?i)https?://\S+`)
	questionRE      = regexp.MustCompile(`[?？]`)
	priorityRE      = regexp.MustCompile(`(?i)\bP([0-3])\b`)
	isoDueRE        = regexp.MustCompile(`\b(20\d{2}-\d{2}-\d{2})(?:[ T](\d{2}:\d{2}))?\b`)
	mdDueRE         = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})(?:\s+(\d{1,2}:\d{2}))?\b`)
	zhRelDueRE      = regexp.MustCompile(`(今天|明天|後天|后天)(?:\s*(\d{1,2}:\d{2}))?`)
	enRelDueRE      = regexp.MustCompile(`(?i)\b(today|tomorrow|tmr|day after tomorrow)\b(?:\s+(\d{1,2}:\d{2}))?`)
	timelineRangeRE = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}\s*[-~～至到]\s*\d{1,2}[/-]\d{1,2}\b`)
	quarterRE       = regexp.MustCompile(`(?i)\bQ[1-4]\b`)
	mentionRE       = regexp.MustCompile(`@\w{2,}`)
	personPhraseRE  = regexp.MustCompile(`(?:和|跟|與|与)\s*[@\p{L}\p{N}_-]{1,24}\s*(?:聊|談|谈|對齊|对齐|跟進|跟进|聯絡|联系|見面|见面|約|约|回覆|回复)`)
	hmRE            = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	searchKeyRE     = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	bracketRE       = regexp.MustCompile(`[【】\[\]{}()]`)
	spaceRE         = regexp.MustCompile(`\s+`)
	crlfRE          = regexp.MustCompile(`\r?\n`)
)

func containsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func parseYMD(ymd string) time.Time {
	t, err := time.Parse("2006-01-02", ymd)
	if err != nil {
		return time.Time{}
	}
	return t
}

func shiftYMD(ymd string, days int) string {
	return parseYMD(ymd).AddDate(0, 0, days).Format("2006-01-02")
}

func parseHM(raw string) string {
	hit := hmRE.FindStringSubmatch(strings.TrimSpace(raw))
	if hit == nil {
		return ""
	}
	hour, _ := strconv.Atoi(hit[1])
	minute, _ := strconv.Atoi(hit[2])
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

func isValidMonthDay(month, day int) bool {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	d := time.Date(2026, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return int(d.Month()) == month && d.Day() == day
}

func hasDueIntent(text string) bool {
	return containsAny(text, dueIntentTerms)
}

func extractPriority(text string) Priority {
	hit := priorityRE.FindStringSubmatch(text)
	if hit == nil {
		if containsAny(text, urgentPriorityTerms) {
			return PriorityP0
		}
		if containsAny(text, importantPriorityTerms) {
			return PriorityP1
		}
		if containsAny(text, laterPriorityTerms) {
			return PriorityP2
		}
		return PriorityNone
	}
	return Priority("P" + hit[1])
}

// extractDue resolves an explicit or relative due date against todayYmd.
// Relative forms only bind when the text also carries due intent, so a bare
// "明天" in narrative prose does not produce a deadline.
func extractDue(text, todayYmd string) string {
	if hit := isoDueRE.FindStringSubmatch(text); hit != nil {
		if hm := parseHM(hit[2]); hm != "" {
			return hit[1] + " " + hm
		}
		return hit[1]
	}
	if hit := zhRelDueRE.FindStringSubmatch(text); hit != nil {
		if !hasDueIntent(text) {
			return ""
		}
		offset := 2
		switch hit[1] {
		case "今天":
			offset = 0
		case "明天":
			offset = 1
		}
		ymd := shiftYMD(todayYmd, offset)
		if hm := parseHM(hit[2]); hm != "" {
			return ymd + " " + hm
		}
		return ymd
	}
	if hit := enRelDueRE.FindStringSubmatch(text); hit != nil {
		if !hasDueIntent(text) {
			return ""
		}
		offset := 1
		switch strings.ToLower(hit[1]) {
		case "today":
			offset = 0
		case "day after tomorrow":
			offset = 2
		}
		ymd := shiftYMD(todayYmd, offset)
		if hm := parseHM(hit[2]); hm != "" {
			return ymd + " " + hm
		}
		return ymd
	}
	hit := mdDueRE.FindStringSubmatch(text)
	if hit == nil {
		return ""
	}
	month, _ := strconv.Atoi(hit[1])
	day, _ := strconv.Atoi(hit[2])
	if !isValidMonthDay(month, day) {
		return ""
	}
	current := parseYMD(todayYmd)
	candidate := time.Date(current.Year(), time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if candidate.Before(current) {
		candidate = time.Date(current.Year()+1, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	}
	ymd := candidate.Format("2006-01-02")
	if hm := parseHM(hit[3]); hm != "" {
		return ymd + " " + hm
	}
	return ymd
}

// normalizeTitle derives a short display title from the first non-blank line,
// stripping URLs and bracket characters, capped at 18 runes.
func normalizeTitle(raw string, fallback Type) string {
	var firstLine string
	for _, line := range crlfRE.Split(raw, -1) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			firstLine = trimmed
			break
		}
	}
	if firstLine == "" {
		firstLine = string(fallback) + " note"
	}
	value := urlRE.ReplaceAllString(firstLine, "")
	value = bracketRE.ReplaceAllString(value, " ")
	value = strings.TrimSpace(spaceRE.ReplaceAllString(value, " "))
	if value == "" {
		return string(fallback) + " note"
	}
	runes := []rune(value)
	if len(runes) <= 18 {
		return value
	}
	return string(runes[:18])
}

func normalizeSearchKey(input string) string {
	out := searchKeyRE.ReplaceAllString(strings.ToLower(input), " ")
	return strings.TrimSpace(spaceRE.ReplaceAllString(out, " "))
}

func hasContextHit(content, title, contextText string) bool {
	if contextText == "" {
		return false
	}
	titleKey := normalizeSearchKey(title)
	if len([]rune(titleKey)) >= 6 && strings.Contains(contextText, titleKey) {
		return true
	}
	contentKey := normalizeSearchKey(content)
	if runes := []rune(contentKey); len(runes) > 48 {
		contentKey = string(runes[:48])
	}
	if len([]rune(contentKey)) < 10 {
		return false
	}
	return strings.Contains(contextText, contentKey)
}

func matchContextTags(content string, knownTags []string) []string {
	if len(knownTags) == 0 {
		return nil
	}
	contentLower := strings.ToLower(content)
	var matched []string
	for _, rawTag := range knownTags {
		tag := strings.TrimPrefix(strings.TrimSpace(rawTag), "#")
		if tag == "" {
			continue
		}
		if strings.Contains(contentLower, strings.ToLower(tag)) {
			matched = append(matched, tag)
		}
		if len(matched) >= 3 {
			break
		}
	}
	return matched
}

func hasTimelineSignal(content string) bool {
	if timelineRangeRE.MatchString(content) {
		return true
	}
	if quarterRE.MatchString(content) {
		return true
	}
	return containsAny(content, timelineTerms)
}

func hasPersonSignal(content string) bool {
	if personPhraseRE.MatchString(content) {
		return true
	}
	hasHint := containsAny(content, personHintTerms) || mentionRE.MatchString(content)
	hasAction := containsAny(content, personActionTerms)
	return hasHint && hasAction
}

func hasQuestionSignal(content string) bool {
	return questionRE.MatchString(content) || containsAny(content, questionTerms)
}

type typeSignals struct {
	convertToTask   bool
	due             string
	hasNoTaskSignal bool
	timeline        bool
	person          bool
	belief          bool
	highlight       bool
	question        bool
	reference       bool
	idea            bool
}

// inferType is the priority chain: explicit task intent wins, then structural
// signals, then content-shape signals, with memory as the fallback.
func inferType(s typeSignals) Type {
	switch {
	case s.convertToTask:
		return TypeAction
	case s.timeline:
		return TypeTimeline
	case s.person:
		return TypePerson
	case s.due != "":
		return TypeWatch
	case s.question:
		return TypeQuestion
	case s.reference:
		return TypeReference
	case s.belief:
		return TypeBelief
	case s.highlight:
		return TypeHighlight
	case s.hasNoTaskSignal || s.idea:
		return TypeIdea
	default:
		return TypeMemory
	}
}

func inferConfidence(typ Type, convertToTask, hardTask, hardNoTask bool, due string) float64 {
	switch {
	case hardTask:
		return 0.9
	case hardNoTask && !convertToTask:
		return 0.86
	case typ == TypeTimeline:
		return 0.84
	case typ == TypePerson:
		if due != "" {
			return 0.85
		}
		return 0.8
	case typ == TypeWatch && due != "":
		return 0.84
	case typ == TypeQuestion || typ == TypeReference:
		return 0.78
	case typ == TypeBelief || typ == TypeHighlight:
		return 0.77
	case typ == TypeIdea:
		return 0.76
	case typ == TypeAction:
		return 0.74
	default:
		return 0.7
	}
}

func buildAttachmentDescriptions(input Input) []string {
	var out []string
	for i, item := range input.Attachments {
		ordinal := i + 1
		var prefix string
		switch item.Type {
		case AttachmentImage:
			prefix = fmt.Sprintf("[圖%d]", ordinal)
		case AttachmentAudio:
			prefix = "[語音]"
		case AttachmentVideo:
			prefix = "[視頻]"
		case AttachmentText:
			prefix = "[文字]"
		default:
			prefix = fmt.Sprintf("[附件%d]", ordinal)
		}
		description := item.SemanticDesc
		if description == "" {
			if item.Transcript != "" {
				description = "逐字稿：" + item.Transcript
			} else {
				description = "file:" + item.FileRef
				if runes := []rune(description); len(runes) > 220 {
					description = string(runes[:220])
				}
			}
		}
		out = append(out, strings.TrimSpace(prefix+" "+description))
	}
	return out
}

func inferNextAction(typ Type, due, content string) string {
	switch typ {
	case TypeAction:
		if due != "" {
			return fmt.Sprintf("在 %s 前完成第一個可交付版本。", due)
		}
		return "拆成一個 25 分鐘可完成的小步驟並立即開始。"
	case TypeTimeline:
		return "補上 2~3 個里程碑日期與每個里程碑的完成定義。"
	case TypePerson:
		if due != "" {
			return fmt.Sprintf("在 %s 前完成一次明確跟進並記錄結果。", due)
		}
		return "補一行關係背景與下一次跟進時點。"
	case TypeWatch:
		if due != "" {
			return fmt.Sprintf("在下一個 checkpoint 重新評估是否轉任務（截止 %s）。", due)
		}
		return "保留觀察，等新訊號後再決定是否轉任務。"
	case TypeQuestion:
		return "先列出 3 個已知事實與 1 個待驗證假設。"
	case TypeReference:
		return "補 2 行你想從這份資料拿走的重點，方便未來檢索。"
	case TypeBelief:
		return "寫下 1 個支持例與 1 個反例，避免信念過度泛化。"
	case TypeHighlight:
		return "補上來源與情境，確保未來回看時知道為何重要。"
	case TypeIdea:
		return "用一句話定義價值與使用場景，再決定是否升級成任務。"
	default:
		if len([]rune(content)) > 200 {
			return "抽出最關鍵的一句觀察，避免資訊沉沒。"
		}
		return ""
	}
}

func normalizeSource(platform string) Source {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "feishu", "lark":
		return SourceFeishu
	case "whatsapp":
		return SourceWhatsApp
	case "wechat", "weixin", "wechatbot":
		return SourceWeChat
	case "email", "mail":
		return SourceEmail
	case "telegram":
		return SourceTelegram
	default:
		return SourceGeneric
	}
}

// Classify runs the full keyword and pattern chain over one input and returns
// the inference used to file it.
func Classify(input Input, now DateParts, ctx Context) Inference {
	content := strings.TrimSpace(input.Content)
	recentContext := normalizeSearchKey(ctx.RecentText)
	hardNoTask := containsAny(content, hardNoTaskTerms)
	hardTask := containsAny(content, hardForceTaskTerms)
	longTerm := containsAny(content, hardLongTermTerms)
	convertToTask := hardTask
	priority := extractPriority(content)
	due := extractDue(content, now.YMD)
	signals := typeSignals{
		convertToTask:   convertToTask,
		due:             due,
		hasNoTaskSignal: hardNoTask,
		timeline:        hasTimelineSignal(content),
		person:          hasPersonSignal(content),
		belief:          containsAny(content, beliefTerms),
		highlight:       containsAny(content, highlightTerms),
		question:        hasQuestionSignal(content),
		reference:       urlRE.MatchString(content) || containsAny(content, referenceTerms),
		idea:            containsAny(content, ideaTerms),
	}

	typ := inferType(signals)
	title := normalizeTitle(content, typ)
	confidence := inferConfidence(typ, convertToTask, hardTask, hardNoTask, due)
	contextHit := hasContextHit(content, title, recentContext)
	if contextHit {
		confidence -= 0.08
	}
	if confidence < 0.55 {
		confidence = 0.55
	}
	dedupeHint := DedupeNew
	if contextHit || confidence < 0.65 {
		dedupeHint = DedupePossibleDuplicate
	}

	tags := make([]string, 0, 8)
	addTag := func(tag string) {
		if len(tags) >= 8 {
			return
		}
		for _, existing := range tags {
			if existing == tag {
				return
			}
		}
		tags = append(tags, tag)
	}
	if signals.reference {
		addTag("link")
	}
	if due != "" {
		addTag("deadline")
	}
	switch typ {
	case TypeAction:
		addTag("execution")
	case TypeWatch:
		addTag("watch")
	case TypeQuestion:
		addTag("question")
	case TypeTimeline:
		addTag("timeline")
	case TypePerson:
		addTag("people")
	case TypeBelief:
		addTag("belief")
	case TypeHighlight:
		addTag("highlight")
	case TypeIdea:
		addTag("idea")
	case TypeMemory, TypeReference:
	}
	for _, tag := range matchContextTags(content, ctx.KnownTags) {
		addTag(tag)
	}

	return Inference{
		Type:           typ,
		Priority:       priority,
		Due:            due,
		ConvertToTask:  convertToTask,
		LongTermMemory: longTerm,
		Confidence:     confidence,
		DedupeHint:     dedupeHint,
		NextBestAction: inferNextAction(typ, due, content),
		Title:          title,
		Tags:           tags,
		Attachments:    buildAttachmentDescriptions(input),
		Source:         normalizeSource(input.Metadata.Platform),
		Input:          input,
	}
}

func dayDiff(fromYmd, toYmd string) int {
	diff := parseYMD(toYmd).Sub(parseYMD(fromYmd))
	return int(diff.Hours() / 24)
}

// InferRemindSchedule derives the checkpoint plan for due-dated captures of
// the three followup-bearing types. Everything else gets mode none.
func InferRemindSchedule(typ Type, due, todayYmd string) RemindSchedule {
	if typ != TypeWatch && typ != TypePerson && typ != TypeAction {
		return RemindSchedule{Mode: RemindNone, Checkpoints: []string{}}
	}
	if due == "" {
		return RemindSchedule{Mode: RemindNone, Checkpoints: []string{}}
	}

	dueYmd := due
	if len(dueYmd) > 10 {
		dueYmd = dueYmd[:10]
	}
	days := dayDiff(todayYmd, dueYmd)
	var offsets []int
	switch {
	case days > 30:
		offsets = []int{14}
	case days >= 15:
		offsets = []int{14, 3}
	case days >= 7:
		offsets = []int{7, 3, 1}
	default:
		offsets = []int{3, 1, 0}
	}
	checkpoints := make([]string, 0, len(offsets))
	for _, offset := range offsets {
		value := shiftYMD(dueYmd, -offset)
		seen := false
		for _, existing := range checkpoints {
			if existing == value {
				seen = true
				break
			}
		}
		if !seen {
			checkpoints = append(checkpoints, value)
		}
	}
	sort.Strings(checkpoints)

	return RemindSchedule{Mode: RemindAuto, Checkpoints: checkpoints, AutoArchiveAfter: &dueYmd}
}
