package hub

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// CardSchedule is the remind block of a card's frontmatter. AutoArchiveAfter
// empty renders as null.
type CardSchedule struct {
	Mode             string
	Checkpoints      []string
	AutoArchiveAfter string
}

// CardFeedback is the feedback block of a card's frontmatter. HorizonDays
// below zero renders as null.
type CardFeedback struct {
	Token       string
	WatchType   string
	HorizonDays int
}

// CardFrontmatter is the full metadata header of a record card. String
// fields left empty render as null where the format allows it.
type CardFrontmatter struct {
	ID             string
	Type           string
	Title          string
	Created        string
	Source         string
	Priority       string
	Due            string
	Tags           []string
	ConvertToTask  bool
	LongTermMemory bool
	CalendarEntry  bool
	Stage          string
	QStatus        string
	Confidence     float64
	Alts           []string
	DedupeHint     string
	NextBestAction string
	Links          []string
	Attachments    []string
	Schedule       CardSchedule
	Feedback       CardFeedback
}

// CardBody is the rendered prose below the frontmatter.
type CardBody struct {
	OriginalText     string
	SummaryLine      string
	RationaleLine    string
	ConservativeLine string
	NextActionLine   string
	KeyFacts         []string
	AttachmentLines  []string
}

var plainScalarRE = regexp.MustCompile(`^[a-zA-Z0-9_:+./ -]+$`)

// frontmatterScalar renders a string value, quoting only when it steps
// outside the plain character set. Quoting follows JSON string syntax so the
// output round-trips through any YAML reader.
func frontmatterScalar(value string) string {
	if plainScalarRE.MatchString(value) {
		return value
	}
	quoted, err := json.Marshal(value)
	if err != nil {
		return strconv.Quote(value)
	}
	return string(quoted)
}

func frontmatterOrNull(value string) string {
	if value == "" {
		return "null"
	}
	return value
}

func frontmatterArray(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	quoted := make([]string, len(values))
	for i, value := range values {
		encoded, err := json.Marshal(value)
		if err != nil {
			quoted[i] = strconv.Quote(value)
			continue
		}
		quoted[i] = string(encoded)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// FormatConfidence renders confidence with the fixed two-decimal precision
// used everywhere a score is persisted.
func FormatConfidence(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

// BuildCardMarkdown renders a complete card. Key order and spacing are fixed:
// merges later splice into the body without ever rewriting this header, so
// the layout is part of the file contract.
func BuildCardMarkdown(fm CardFrontmatter, body CardBody) string {
	var lines []string
	lines = append(lines, "---")
	lines = append(lines, "id: "+fm.ID)
	lines = append(lines, "type: "+fm.Type)
	lines = append(lines, "title: "+frontmatterScalar(fm.Title))
	lines = append(lines, "created: "+fm.Created)
	lines = append(lines, "source: "+fm.Source)
	lines = append(lines, "priority: "+frontmatterOrNull(fm.Priority))
	lines = append(lines, "due: "+frontmatterOrNull(fm.Due))
	lines = append(lines, "tags: "+frontmatterArray(fm.Tags))
	lines = append(lines, "convert_to_task: "+strconv.FormatBool(fm.ConvertToTask))
	lines = append(lines, "long_term_memory: "+strconv.FormatBool(fm.LongTermMemory))
	lines = append(lines, "calendar_entry: "+strconv.FormatBool(fm.CalendarEntry))
	lines = append(lines, "stage: "+frontmatterOrNull(fm.Stage))
	lines = append(lines, "q_status: "+frontmatterOrNull(fm.QStatus))
	lines = append(lines, "confidence: "+FormatConfidence(fm.Confidence))
	lines = append(lines, "alts: "+frontmatterArray(fm.Alts))
	lines = append(lines, "dedupe_hint: "+fm.DedupeHint)
	if fm.NextBestAction != "" {
		lines = append(lines, "next_best_action: "+frontmatterScalar(fm.NextBestAction))
	} else {
		lines = append(lines, "next_best_action: null")
	}
	lines = append(lines, "links: "+frontmatterArray(fm.Links))
	lines = append(lines, "attachments: "+frontmatterArray(fm.Attachments))
	lines = append(lines, "remind_schedule:")
	lines = append(lines, "  mode: "+fm.Schedule.Mode)
	lines = append(lines, "  checkpoints: "+frontmatterArray(fm.Schedule.Checkpoints))
	lines = append(lines, "  auto_archive_after: "+frontmatterOrNull(fm.Schedule.AutoArchiveAfter))
	lines = append(lines, "feedback:")
	lines = append(lines, "  token: "+fm.Feedback.Token)
	lines = append(lines, "  watch_type: "+fm.Feedback.WatchType)
	if fm.Feedback.HorizonDays >= 0 {
		lines = append(lines, "  expected_horizon_days: "+strconv.Itoa(fm.Feedback.HorizonDays))
	} else {
		lines = append(lines, "  expected_horizon_days: null")
	}
	lines = append(lines, "---")
	lines = append(lines, "")
	lines = append(lines, "## 原文")
	lines = append(lines, body.OriginalText)
	lines = append(lines, "")
	lines = append(lines, "## 你的整理")
	lines = append(lines, "- "+body.SummaryLine)
	lines = append(lines, "- "+body.RationaleLine)
	if body.ConservativeLine != "" {
		lines = append(lines, "- "+body.ConservativeLine)
	}
	lines = append(lines, "- next_best_action："+body.NextActionLine)
	lines = append(lines, "")
	lines = append(lines, "## Key Facts")
	if len(body.KeyFacts) == 0 {
		lines = append(lines, "- (none)")
	} else {
		for _, fact := range body.KeyFacts {
			lines = append(lines, "- "+fact)
		}
	}
	if len(body.AttachmentLines) > 0 {
		lines = append(lines, "")
		lines = append(lines, "## Attachments")
		for _, attachment := range body.AttachmentLines {
			lines = append(lines, "- "+attachment)
		}
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n") + "\n"
}

// ContainsMessageRef reports whether the content already records the given
// message id as an inline meta line. Empty ids never match.
func ContainsMessageRef(content, messageID string) bool {
	value := strings.TrimSpace(messageID)
	if value == "" {
		return false
	}
	re, err := regexp.Compile(`(?m)\bmessage_id\s*[:=]\s*` + regexp.QuoteMeta(value) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(content)
}

// MergeMeta is the inline routing info spliced alongside a merged addition.
type MergeMeta struct {
	MessageID string
	ReplyTo   string
	GroupID   string
}

// MergeCardContent splices a timestamped addition into an existing card body
// just above the summary section. The frontmatter is never rewritten; a
// message id that is already present makes the merge a no-op, which is what
// makes replays idempotent.
func MergeCardContent(existing, hm, inputText string, meta MergeMeta) string {
	if ContainsMessageRef(existing, meta.MessageID) {
		return existing
	}

	var metaParts []string
	if meta.MessageID != "" {
		metaParts = append(metaParts, "message_id: "+meta.MessageID)
	}
	if meta.ReplyTo != "" {
		metaParts = append(metaParts, "reply_to: "+meta.ReplyTo)
	}
	if meta.GroupID != "" {
		metaParts = append(metaParts, "group_id: "+meta.GroupID)
	}

	parts := []string{"### " + hm + " 補充原文", inputText}
	if len(metaParts) > 0 {
		parts = append(parts, "（"+strings.Join(metaParts, " | ")+"）")
	}
	addition := strings.Join(parts, "\n")

	const marker = "\n## 你的整理"
	if idx := strings.Index(existing, marker); idx >= 0 {
		return existing[:idx] + "\n" + addition + existing[idx:]
	}
	return strings.TrimRight(existing, " \t\n") + "\n\n" + addition + "\n"
}

// ExtractFrontmatterField pulls the raw value of a top-level frontmatter key,
// stripping one layer of quotes. Returns "" when the key is absent.
func ExtractFrontmatterField(content, key string) string {
	re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(key) + `:\s*(.+)$`)
	hit := re.FindStringSubmatch(content)
	if hit == nil {
		return ""
	}
	raw := strings.TrimSpace(hit[1])
	if len(raw) >= 2 {
		if (raw[0] == '"' && raw[len(raw)-1] == '"') || (raw[0] == '\'' && raw[len(raw)-1] == '\'') {
			raw = raw[1 : len(raw)-1]
		}
	}
	return strings.TrimSpace(raw)
}
