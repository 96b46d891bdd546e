package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kokistudios/hubcap/internal/adapters"
	"github.com/kokistudios/hubcap/internal/capture"
	"github.com/kokistudios/hubcap/internal/checker"
	"github.com/kokistudios/hubcap/internal/hub"
)

// Server wraps the MCP server with the capture hub.
type Server struct {
	paths      hub.Paths
	outputMode string
	server     *mcp.Server
}

// NewServer creates a new hubcap MCP server.
func NewServer(paths hub.Paths, outputMode, version string) *Server {
	s := &Server{paths: paths, outputMode: outputMode}

	impl := &mcp.Implementation{
		Name:    "hubcap",
		Version: version,
	}

	s.server = mcp.NewServer(impl, nil)
	s.registerTools()

	return s
}

// Run starts the MCP server on stdio.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// registerTools adds all hubcap tools to the MCP server.
func (s *Server) registerTools() {
	// hub_capture - classify and file one message
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "hub_capture",
		Description: "Classify a short free-text message and file it into the knowledge hub. " +
			"Returns the created item (type, confidence, due, remind schedule) plus an acknowledgement " +
			"the user can be shown verbatim. Idempotent on message_id: replaying the same message " +
			"returns the same item without duplicating files. Use reply_to to append a follow-up " +
			"to a prior card instead of creating a new one.",
	}, s.handleCapture)

	// hub_queue - list pending reasoning queue entries
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "hub_queue",
		Description: "List entries from the reasoning queue (low-confidence or watch items awaiting review). " +
			"Pass consumed=true to include already-consumed entries. Use this to see what the " +
			"capture pipeline has flagged for a human pass.",
	}, s.handleQueue)

	// hub_watch_check - run the watch sweep
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "hub_watch_check",
		Description: "Run the daily watch sweep: expire overdue watch items, archive their cards, " +
			"prune the waiting list, and collect today's checkpoint reminders. Returns counts and " +
			"the reminder lines. Safe to call repeatedly; expiry and signal writes are idempotent.",
	}, s.handleWatchCheck)

	// hub_card_show - fetch a filed card by id
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "hub_card_show",
		Description: "Fetch a filed card by its id (e.g. 2026-02-20-001). Returns the card's markdown " +
			"and its hub-relative path. Use after hub_capture or hub_queue to inspect what was filed.",
	}, s.handleCardShow)
}

// CaptureArgs defines the input for hub_capture.
type CaptureArgs struct {
	Content   string `json:"content" jsonschema:"The raw message text to classify and file"`
	Platform  string `json:"platform,omitempty" jsonschema:"Source platform: telegram, whatsapp, wechat, feishu, email, or generic (default)"`
	MessageID string `json:"message_id,omitempty" jsonschema:"Stable upstream message id; replays with the same id are no-ops"`
	ReplyTo   string `json:"reply_to,omitempty" jsonschema:"Message id of a prior capture this one replies to"`
	GroupID   string `json:"group_id,omitempty" jsonschema:"Chat or group identifier from the source platform"`
	Timestamp string `json:"timestamp,omitempty" jsonschema:"Message timestamp, RFC3339 or 'YYYY-MM-DD HH:MM' (default: now)"`
	DryRun    bool   `json:"dry_run,omitempty" jsonschema:"If true, classify and plan file operations without writing anything"`
}

// CaptureResult is the output of hub_capture.
type CaptureResult struct {
	Date    string         `json:"date"`
	Source  string         `json:"source"`
	Ack     capture.Ack    `json:"ack"`
	Items   []capture.Item `json:"items"`
	DryRun  bool           `json:"dry_run,omitempty"`
	Message string         `json:"message,omitempty"`
}

func (s *Server) handleCapture(ctx context.Context, req *mcp.CallToolRequest, args CaptureArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Content) == "" {
		return nil, nil, fmt.Errorf("content is required")
	}

	raw := adapters.RawMessage{
		Content:   args.Content,
		Platform:  args.Platform,
		MessageID: args.MessageID,
		ReplyTo:   args.ReplyTo,
		GroupID:   args.GroupID,
		Timestamp: args.Timestamp,
	}
	input := adapters.Normalize(raw)

	now := capture.ParseTimestamp(args.Timestamp, time.Now())

	out, err := capture.Run(capture.RunParams{
		Input:       input,
		Paths:       s.paths,
		OutputMode:  s.outputMode,
		ApplyWrites: !args.DryRun,
		Now:         now,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("capture failed: %w", err)
	}

	result := CaptureResult{
		Date:   out.Date,
		Source: string(out.Source),
		Ack:    out.Ack,
		Items:  out.Items,
		DryRun: args.DryRun,
	}
	if args.DryRun {
		result.Message = "Dry run: nothing was written to the hub."
	}
	return nil, result, nil
}

// QueueArgs defines the input for hub_queue.
type QueueArgs struct {
	Consumed bool `json:"consumed,omitempty" jsonschema:"Include consumed entries (default: pending only)"`
	Limit    int  `json:"limit,omitempty" jsonschema:"Maximum number of entries to return, newest first (default: 50)"`
}

// QueueResult is the output of hub_queue.
type QueueResult struct {
	Entries []capture.QueueEntry `json:"entries"`
	Total   int                  `json:"total"`
	Message string               `json:"message,omitempty"`
}

func (s *Server) handleQueue(ctx context.Context, req *mcp.CallToolRequest, args QueueArgs) (*mcp.CallToolResult, any, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}

	queuePath := filepath.Join(s.paths.Meta, "reasoning_queue.jsonl")
	rows := hub.ReadJSONLRaw(queuePath)

	entries := make([]capture.QueueEntry, 0, len(rows))
	for _, row := range rows {
		var entry capture.QueueEntry
		if err := json.Unmarshal(row, &entry); err != nil {
			continue
		}
		if !args.Consumed && entry.ConsumedAt != "" {
			continue
		}
		entries = append(entries, entry)
	}

	total := len(entries)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	// newest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	out := QueueResult{Entries: entries, Total: total}
	if total == 0 {
		out.Message = "Reasoning queue is empty."
	}
	return nil, out, nil
}

// WatchCheckArgs defines the input for hub_watch_check.
type WatchCheckArgs struct {
	Today string `json:"today,omitempty" jsonschema:"Override the sweep date as YYYY-MM-DD (default: today in the hub timezone)"`
}

// WatchCheckResult is the output of hub_watch_check.
type WatchCheckResult struct {
	Today         string   `json:"today"`
	Expired       int      `json:"expired"`
	Archived      int      `json:"archived"`
	Reminders     int      `json:"reminders"`
	ReminderLines []string `json:"reminder_lines,omitempty"`
	ReportPath    string   `json:"report_path,omitempty"`
	Message       string   `json:"message,omitempty"`
}

func (s *Server) handleWatchCheck(ctx context.Context, req *mcp.CallToolRequest, args WatchCheckArgs) (*mcp.CallToolResult, any, error) {
	today := args.Today
	if today == "" {
		today = capture.NowParts(time.Now()).YMD
	}

	res, err := checker.Run(checker.Options{
		Paths: s.paths,
		Today: today,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("watch check failed: %w", err)
	}

	out := WatchCheckResult{
		Today:         today,
		Expired:       res.Expired,
		Archived:      res.ArchivedCards,
		Reminders:     res.Due,
		ReminderLines: res.ReminderLines,
		ReportPath:    s.paths.DisplayPath(res.ReportPath),
	}
	if res.Expired == 0 && res.Due == 0 {
		out.Message = "Nothing expired and no checkpoints due today."
	}
	return nil, out, nil
}

// CardShowArgs defines the input for hub_card_show.
type CardShowArgs struct {
	ID string `json:"id" jsonschema:"Card id, e.g. 2026-02-20-001"`
}

// CardShowResult is the output of hub_card_show.
type CardShowResult struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Path     string `json:"path"`
	Markdown string `json:"markdown"`
}

func (s *Server) handleCardShow(ctx context.Context, req *mcp.CallToolRequest, args CardShowArgs) (*mcp.CallToolResult, any, error) {
	if args.ID == "" {
		return nil, nil, fmt.Errorf("id is required")
	}

	index := hub.BuildCardIndex(s.paths.Root)
	ref, ok := index[args.ID]
	if !ok {
		return nil, nil, fmt.Errorf("no card with id %s", args.ID)
	}

	content, ok := hub.ReadText(ref.Path)
	if !ok {
		return nil, nil, fmt.Errorf("card file missing: %s", ref.Path)
	}

	return nil, CardShowResult{
		ID:       ref.ID,
		Title:    ref.Title,
		Type:     ref.Type,
		Path:     s.paths.DisplayPath(ref.Path),
		Markdown: content,
	}, nil
}
