package capture

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kokistudios/hubcap/internal/hub"
)

// Per-file cap on context text fed to the classifier.
const contextReadLimit = 6000

var knownTagRE = regexp.MustCompile(`[#]?[a-zA-Z0-9_\x{4e00}-\x{9fa5}-]{2,24}`)
var listMarkerRE = regexp.MustCompile(`^[-*]\s+`)

// ExtractKnownTags pulls tag candidates from TAGS.md content: list items and
// plain lines, headings skipped, capped at 64 distinct tags.
func ExtractKnownTags(content string) []string {
	if content == "" {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, line := range crlfRE.Split(content, -1) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		normalized := listMarkerRE.ReplaceAllString(trimmed, "")
		for _, raw := range knownTagRE.FindAllString(normalized, -1) {
			tag := strings.TrimSpace(strings.TrimPrefix(raw, "#"))
			if len([]rune(tag)) < 2 || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
			if len(out) >= 64 {
				return out
			}
		}
	}
	return out
}

// BuildContext assembles the recent-hub text the classifier softens its
// confidence against: the working indexes, today's daily log, and the last
// three days of inbox files, each capped at contextReadLimit characters.
func BuildContext(paths hub.Paths, now DateParts) Context {
	filesToRead := []string{
		filepath.Join(paths.Work, "tasks_master.md"),
		filepath.Join(paths.Work, "waiting.md"),
		filepath.Join(paths.Work, "calendar.md"),
		filepath.Join(paths.Root, "TAGS.md"),
		filepath.Join(paths.DailyLogs, now.YMD+".md"),
		filepath.Join(paths.Ideas, "_ideas_index.md"),
	}
	for offset := 0; offset < 3; offset++ {
		ymd := shiftYMD(now.YMD, -offset)
		filesToRead = append(filesToRead, paths.ListInboxFilesForDay(ymd)...)
	}

	var chunks []string
	for _, file := range filesToRead {
		content, ok := hub.ReadText(file)
		if !ok {
			continue
		}
		compact := strings.TrimSpace(content)
		if compact == "" {
			continue
		}
		if runes := []rune(compact); len(runes) > contextReadLimit {
			compact = string(runes[:contextReadLimit])
		}
		chunks = append(chunks, compact)
	}

	tagsContent, _ := hub.ReadText(filepath.Join(paths.Root, "TAGS.md"))
	return Context{
		RecentText: strings.Join(chunks, "\n"),
		KnownTags:  ExtractKnownTags(tagsContent),
	}
}
