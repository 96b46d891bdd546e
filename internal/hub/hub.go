// Package hub owns the on-disk layout of the assistant hub: the directory
// tree, the scaffold files, card filenames and the shared path set every
// capture run writes through.
package hub

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// EnvRoot overrides the configured hub root when set.
const EnvRoot = "CAPTURE_HUB_ROOT"

// Paths is the resolved directory tree of one hub root.
type Paths struct {
	Root      string
	Inbox     string
	Work      string
	Life      string
	Knowledge string
	Meta      string

	Tasks      string
	Projects   string
	DailyLogs  string
	Ideas      string
	Highlights string
	People     string
	Questions  string
	Beliefs    string
	References string
}

// DefaultRoot is the hub location used when neither the environment nor the
// config names one.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".hubcap", "assistant_hub")
}

// ResolveRoot picks the hub root: environment override first, then the
// configured value, then the default under the home directory.
func ResolveRoot(configured string) string {
	if fromEnv := strings.TrimSpace(os.Getenv(EnvRoot)); fromEnv != "" {
		return fromEnv
	}
	if configured != "" {
		return configured
	}
	return DefaultRoot()
}

// Resolve expands a root into the full directory tree.
func Resolve(root string) Paths {
	work := filepath.Join(root, "02_work")
	life := filepath.Join(root, "03_life")
	knowledge := filepath.Join(root, "04_knowledge")
	return Paths{
		Root:      root,
		Inbox:     filepath.Join(root, "00_inbox"),
		Work:      work,
		Life:      life,
		Knowledge: knowledge,
		Meta:      filepath.Join(root, "05_meta"),

		Tasks:      filepath.Join(work, "tasks"),
		Projects:   filepath.Join(work, "projects", "_misc"),
		DailyLogs:  filepath.Join(life, "daily_logs"),
		Ideas:      filepath.Join(life, "ideas"),
		Highlights: filepath.Join(life, "highlights"),
		People:     filepath.Join(knowledge, "people"),
		Questions:  filepath.Join(knowledge, "questions"),
		Beliefs:    filepath.Join(knowledge, "beliefs"),
		References: filepath.Join(knowledge, "references"),
	}
}

// EnsureDirs creates every directory in the tree. Existing directories are
// left untouched.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{
		p.Root, p.Inbox, p.Work, p.Tasks, p.Projects,
		p.Life, p.DailyLogs, p.Ideas, p.Highlights,
		p.Knowledge, p.People, p.Questions, p.Beliefs, p.References,
		p.Meta,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func writeIfMissing(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

// EnsureScaffold creates the seed files a fresh hub needs. Every write is
// create-if-missing so existing content always survives.
func (p Paths) EnsureScaffold() error {
	files := []struct {
		path    string
		content string
	}{
		{filepath.Join(p.Root, "TAGS.md"), "# TAGS\n\n- 用於維護常用 tag 與命名規範。\n"},
		{filepath.Join(p.Root, "index.md"), strings.Join([]string{
			"# assistant_hub",
			"",
			"- `00_inbox/` 原始訊息",
			"- `02_work/` 任務與追蹤",
			"- `03_life/` 生活紀錄",
			"- `04_knowledge/` 知識卡片",
			"- `05_meta/` 系統訊號與回顧",
			"",
		}, "\n")},
		{filepath.Join(p.Work, "tasks_master.md"), "# tasks_master\n\n"},
		{filepath.Join(p.Work, "waiting.md"), "# waiting\n\n"},
		{filepath.Join(p.Work, "done.md"), "# done\n\n"},
		{filepath.Join(p.Work, "calendar.md"), strings.Join([]string{
			"# calendar",
			"",
			"| date | title | type | due/checkpoints |",
			"| --- | --- | --- | --- |",
			"",
		}, "\n")},
		{filepath.Join(p.Ideas, "_ideas_index.md"), "# ideas_index\n\n"},
		{filepath.Join(p.Questions, "_index.md"), "# questions_index\n\n"},
		{filepath.Join(p.Beliefs, "_index.md"), "# beliefs_index\n\n"},
		{filepath.Join(p.Meta, "reasoning_queue.jsonl"), ""},
		{filepath.Join(p.Meta, "feedback_signals.jsonl"), ""},
		{filepath.Join(p.Meta, "capture_agent_weekly_review.md"), "# Capture Agent Weekly Review\n\n"},
	}
	for _, file := range files {
		if err := writeIfMissing(file.path, file.content); err != nil {
			return err
		}
	}
	return nil
}

// PathSet is the per-run bundle of shared files alongside the record's own
// main path.
type PathSet struct {
	InboxPath           string
	TasksMasterPath     string
	WaitingPath         string
	CalendarPath        string
	IdeasIndexPath      string
	QuestionsIndexPath  string
	BeliefsIndexPath    string
	ReasoningQueuePath  string
	FeedbackSignalsPath string
}

// ResolvePathSet binds the shared files for one capture day and source.
func (p Paths) ResolvePathSet(ymd, source string) PathSet {
	return PathSet{
		InboxPath:           filepath.Join(p.Inbox, ymd+"_"+source+"_inbox.md"),
		TasksMasterPath:     filepath.Join(p.Work, "tasks_master.md"),
		WaitingPath:         filepath.Join(p.Work, "waiting.md"),
		CalendarPath:        filepath.Join(p.Work, "calendar.md"),
		IdeasIndexPath:      filepath.Join(p.Ideas, "_ideas_index.md"),
		QuestionsIndexPath:  filepath.Join(p.Questions, "_index.md"),
		BeliefsIndexPath:    filepath.Join(p.Beliefs, "_index.md"),
		ReasoningQueuePath:  filepath.Join(p.Meta, "reasoning_queue.jsonl"),
		FeedbackSignalsPath: filepath.Join(p.Meta, "feedback_signals.jsonl"),
	}
}

// RecordDirs lists every directory that holds id-prefixed record files, in
// the order they are scanned for dedup and id allocation.
func (p Paths) RecordDirs() []string {
	return []string{
		p.Tasks, p.Projects, p.Ideas, p.Highlights,
		p.People, p.Questions, p.Beliefs, p.References,
	}
}

var slugScrubRE = regexp.MustCompile(`[^a-z0-9]+`)

func normalizeForSlug(input string) string {
	lowered := strings.ToLower(input)
	replaced := slugScrubRE.ReplaceAllString(lowered, "_")
	trimmed := strings.Trim(replaced, "_")
	if len(trimmed) > 24 {
		trimmed = trimmed[:24]
	}
	if trimmed == "" {
		return "note"
	}
	return trimmed
}

// SlugifyTitle derives a filename slug from the title, falling back to the
// type name when the title has no slug-safe characters.
func SlugifyTitle(title, fallbackType string) string {
	normalized := normalizeForSlug(title)
	if normalized == "note" {
		return normalizeForSlug(fallbackType)
	}
	return normalized
}

var dailyIDRE = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(\d{3,4})`)

func walkFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			out = append(out, walkFiles(full)...)
			continue
		}
		out = append(out, full)
	}
	return out
}

// NextDailyID allocates the next sequence-suffixed id for the given day by
// scanning existing record files. When the day has no sequenced records yet
// the clock fallback keeps ids unique without a counter file.
func (p Paths) NextDailyID(ymd, hm string) string {
	datePrefix := ymd + "-"
	maxSeq := 0
	for _, dir := range p.RecordDirs() {
		for _, file := range walkFiles(dir) {
			base := filepath.Base(file)
			if !strings.HasPrefix(base, datePrefix) {
				continue
			}
			hit := dailyIDRE.FindStringSubmatch(base)
			if hit == nil {
				continue
			}
			seq, err := strconv.Atoi(hit[2])
			if err == nil && seq > maxSeq {
				maxSeq = seq
			}
		}
	}
	if maxSeq > 0 {
		return datePrefix + leftPad(strconv.Itoa(maxSeq+1), 3)
	}
	return datePrefix + strings.ReplaceAll(hm, ":", "")
}

func leftPad(value string, width int) string {
	for len(value) < width {
		value = "0" + value
	}
	return value
}

var recordIDRE = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}-\d{3,4})_`)

// ExtractIDFromPath recovers a record id from its filename, or "" when the
// filename is not id-prefixed.
func ExtractIDFromPath(path string) string {
	hit := recordIDRE.FindStringSubmatch(filepath.Base(path))
	if hit == nil {
		return ""
	}
	return hit[1]
}

// ResolveMainPath maps a record type to its destination file. Memory entries
// share a daily log per day; every other type gets its own card file.
func (p Paths) ResolveMainPath(id, slug, typ, ymd string) string {
	filename := id + "_" + slug + ".md"
	switch typ {
	case "action", "watch":
		return filepath.Join(p.Tasks, filename)
	case "timeline":
		return filepath.Join(p.Projects, filename)
	case "idea":
		return filepath.Join(p.Ideas, filename)
	case "question":
		return filepath.Join(p.Questions, filename)
	case "belief":
		return filepath.Join(p.Beliefs, filename)
	case "highlight":
		return filepath.Join(p.Highlights, filename)
	case "reference":
		return filepath.Join(p.References, filename)
	case "person":
		return filepath.Join(p.People, filename)
	case "memory":
		return filepath.Join(p.DailyLogs, ymd+".md")
	default:
		return filepath.Join(p.Inbox, filename)
	}
}

// ListMarkdownFiles returns every .md file under dir, recursively. Missing
// directories yield an empty list.
func ListMarkdownFiles(dir string) []string {
	var out []string
	for _, file := range walkFiles(dir) {
		if strings.HasSuffix(file, ".md") {
			out = append(out, file)
		}
	}
	return out
}

// ListInboxFilesForDay returns the per-source inbox files written on ymd,
// sorted by name.
func (p Paths) ListInboxFilesForDay(ymd string) []string {
	entries, err := os.ReadDir(p.Inbox)
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ymd+"_") && strings.HasSuffix(name, "_inbox.md") {
			out = append(out, filepath.Join(p.Inbox, name))
		}
	}
	sort.Strings(out)
	return out
}

// DisplayPath renders an absolute hub path the way acks and run output show
// it: rooted at the hub's public name with forward slashes.
func (p Paths) DisplayPath(absPath string) string {
	rel, err := filepath.Rel(p.Root, absPath)
	if err != nil {
		rel = absPath
	}
	return "assistant_hub/" + filepath.ToSlash(rel)
}

// EscapeTableCell protects pipe characters inside markdown table cells.
func EscapeTableCell(value string) string {
	return strings.ReplaceAll(value, "|", `\|`)
}

// TypeEmoji is the per-type marker used in acks and calendar rows.
func TypeEmoji(typ string) string {
	switch typ {
	case "action":
		return "⚡"
	case "timeline":
		return "📍"
	case "watch":
		return "👀"
	case "idea":
		return "💡"
	case "question":
		return "❓"
	case "belief":
		return "🧠"
	case "highlight":
		return "✨"
	case "reference":
		return "📖"
	case "person":
		return "👤"
	default:
		return "📝"
	}
}
