package capture

// Type is the semantic category a capture is filed under. The set is closed:
// every switch over Type enumerates all ten variants so that adding one is a
// compile-visible change across the classifier, scheduler and card builder.
type Type string

const (
	TypeAction    Type = "action"
	TypeTimeline  Type = "timeline"
	TypeWatch     Type = "watch"
	TypeIdea      Type = "idea"
	TypeQuestion  Type = "question"
	TypeBelief    Type = "belief"
	TypeMemory    Type = "memory"
	TypeHighlight Type = "highlight"
	TypeReference Type = "reference"
	TypePerson    Type = "person"
)

// Types lists every capture type in filing order.
var Types = []Type{
	TypeAction, TypeTimeline, TypeWatch, TypeIdea, TypeQuestion,
	TypeBelief, TypeMemory, TypeHighlight, TypeReference, TypePerson,
}

// KnownType reports whether raw names one of the capture types.
func KnownType(raw string) bool {
	for _, t := range Types {
		if string(t) == raw {
			return true
		}
	}
	return false
}

// Priority is the extracted urgency level. Empty means none.
type Priority string

const (
	PriorityNone Priority = ""
	PriorityP0   Priority = "P0"
	PriorityP1   Priority = "P1"
	PriorityP2   Priority = "P2"
	PriorityP3   Priority = "P3"
)

// Source identifies the originating platform after normalization.
type Source string

const (
	SourceTelegram Source = "telegram"
	SourceFeishu   Source = "feishu"
	SourceWhatsApp Source = "whatsapp"
	SourceWeChat   Source = "wechat"
	SourceEmail    Source = "email"
	SourceGeneric  Source = "generic"
)

// DedupeHint is the classifier's (and later the dedup resolver's) verdict on
// whether this capture duplicates something already in the hub.
type DedupeHint string

const (
	DedupeNew               DedupeHint = "new"
	DedupeAppendExisting    DedupeHint = "append_existing"
	DedupePossibleDuplicate DedupeHint = "possible_duplicate"
)

// AttachmentType categorizes an inbound attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentAudio AttachmentType = "audio"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
	AttachmentText  AttachmentType = "text"
)

// Attachment is one media item accompanying a capture.
type Attachment struct {
	Type         AttachmentType `json:"type"`
	FileRef      string         `json:"fileRef"`
	Transcript   string         `json:"transcript,omitempty"`
	SemanticDesc string         `json:"semanticDesc,omitempty"`
}

// Metadata carries per-message routing details from the adapter.
type Metadata struct {
	Platform  string `json:"platform"`
	MessageID string `json:"messageId"`
	GroupID   string `json:"groupId,omitempty"`
	ReplyTo   string `json:"replyTo,omitempty"`
	SenderID  string `json:"senderId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Input is one normalized inbound message. Adapters produce it; the core
// never mutates it.
type Input struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	Metadata    Metadata     `json:"metadata"`
}

// DateParts is the capture-local clock, pre-split into the formats the
// filing layer needs. Always rendered in the hub timezone (UTC+8).
type DateParts struct {
	YMD           string // 2026-02-20
	HM            string // 14:05
	ISOWithOffset string // 2026-02-20T14:05:00+08:00
}

// RemindMode selects how a card's checkpoints were produced.
type RemindMode string

const (
	RemindAuto RemindMode = "auto"
	RemindOnce RemindMode = "once"
	RemindNone RemindMode = "none"
)

// RemindSchedule is the derived checkpoint plan for a due-dated capture.
// Checkpoints are distinct YYYY-MM-DD strings in ascending order.
type RemindSchedule struct {
	Mode             RemindMode `json:"mode"`
	Checkpoints      []string   `json:"checkpoints"`
	AutoArchiveAfter *string    `json:"autoArchiveAfter"`
}

// WatchType tags what kind of follow-up signal a card's feedback token
// tracks.
type WatchType string

const (
	WatchCompletion WatchType = "completion"
	WatchPromotion  WatchType = "promotion"
	WatchReference  WatchType = "reference"
	WatchWatch      WatchType = "watch"
	WatchNone       WatchType = "none"
)

// Feedback identifies a card in the feedback-signal log.
type Feedback struct {
	Token               string    `json:"token"`
	WatchType           WatchType `json:"watchType"`
	ExpectedHorizonDays *int      `json:"expectedHorizonDays"`
}

// Inference is the classifier's full verdict for one input. Ephemeral: it is
// consumed by the filing layer and never persisted as-is.
type Inference struct {
	Type           Type
	Priority       Priority
	Due            string // "YYYY-MM-DD" or "YYYY-MM-DD HH:MM"; empty = none
	ConvertToTask  bool
	LongTermMemory bool
	Confidence     float64
	DedupeHint     DedupeHint
	NextBestAction string
	Title          string
	Tags           []string
	Attachments    []string
	Source         Source
	Input          Input
}

// Stage values for idea-typed cards.
const (
	StageSpark    = "spark"
	StageArchived = "archived"
)

// QStatus values for question-typed cards.
const (
	QStatusOpen = "open"
)

// Item is the persisted record view returned from a run. For merged captures
// the frontmatter of the first capture persists; only the body is amended.
type Item struct {
	ID             string         `json:"id"`
	Type           Type           `json:"type"`
	Title          string         `json:"title"`
	Priority       Priority       `json:"priority"`
	Due            string         `json:"due"`
	Tags           []string       `json:"tags"`
	ConvertToTask  bool           `json:"convertToTask"`
	LongTermMemory bool           `json:"longTermMemory"`
	CalendarEntry  bool           `json:"calendarEntry"`
	Stage          string         `json:"stage"`
	QStatus        string         `json:"qStatus"`
	Confidence     float64        `json:"confidence"`
	Alts           []string       `json:"alts"`
	DedupeHint     DedupeHint     `json:"dedupeHint"`
	NextBestAction string         `json:"nextBestAction"`
	MainPath       string         `json:"mainPath"`
	Attachments    []string       `json:"attachments"`
	RemindSchedule RemindSchedule `json:"remindSchedule"`
	Feedback       Feedback       `json:"feedback"`
	Links          []string       `json:"links"`
	Files          []FileOpView   `json:"files"`
}

// FileOpView mirrors hub file operations in run output without importing the
// hub package into the wire contract.
type FileOpView struct {
	Op      string `json:"op"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Ack is the short human-readable reply echoed back to the originating chat.
// Line3 is present only for low-confidence captures that warrant a reply menu.
type Ack struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
	Line3 string `json:"line3,omitempty"`
}

// CardOutput is one card-bearing write, flattened for agent-mode replies.
type CardOutput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// AgentView is the extra payload attached in agent output mode: every card
// written this run plus the ack, pre-concatenated for direct chat rendering.
type AgentView struct {
	Cards []CardOutput `json:"cards"`
	Text  string       `json:"text"`
}

// RunOutput is the structured acknowledgment of one capture run.
type RunOutput struct {
	Timezone   string     `json:"timezone"`
	Date       string     `json:"date"`
	Source     Source     `json:"source"`
	Ack        Ack        `json:"ack"`
	Items      []Item     `json:"items"`
	OutputMode string     `json:"outputMode,omitempty"`
	Agent      *AgentView `json:"agent,omitempty"`
}

// QueueEntry is one reasoning_queue.jsonl row. Pointer fields persist as
// explicit nulls when unset.
type QueueEntry struct {
	Token            string   `json:"token"`
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	Priority         *string  `json:"priority"`
	Tags             []string `json:"tags"`
	Confidence       float64  `json:"confidence"`
	CalendarEntry    bool     `json:"calendar_entry"`
	Due              *string  `json:"due"`
	Checkpoints      []string `json:"checkpoints"`
	AutoArchiveAfter *string  `json:"auto_archive_after"`
	TS               string   `json:"ts"`
	Consumed         bool     `json:"consumed"`
	ConsumedAt       string   `json:"consumed_at,omitempty"`
	ConsumedReason   string   `json:"consumed_reason,omitempty"`
}
