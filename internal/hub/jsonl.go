package hub

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// ReadJSONLRaw returns every well-formed line of a JSONL file. Malformed
// lines are skipped, missing files read as empty.
func ReadJSONLRaw(path string) []json.RawMessage {
	raw, ok := ReadText(path)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var rows []json.RawMessage
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if trimmed == "" {
			continue
		}
		if !json.Valid([]byte(trimmed)) {
			continue
		}
		rows = append(rows, json.RawMessage(trimmed))
	}
	return rows
}

// WriteJSONL replaces the file with one JSON document per row.
func WriteJSONL(path string, rows []json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for _, row := range rows {
		b.Write(row)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// AppendJSONLUnique appends rows whose token is not already present in the
// file, and returns how many were written. Rows without a token are dropped.
func AppendJSONLUnique(path string, rows []json.RawMessage) (int, error) {
	seen := map[string]bool{}
	for _, row := range ReadJSONLRaw(path) {
		if token := rawToken(row); token != "" {
			seen[token] = true
		}
	}
	var b strings.Builder
	count := 0
	for _, row := range rows {
		token := rawToken(row)
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		b.Write(row)
		b.WriteByte('\n')
		count++
	}
	if count == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	if err := appendFile(path, b.String()); err != nil {
		return 0, err
	}
	return count, nil
}

func rawToken(row json.RawMessage) string {
	var probe struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(row, &probe); err != nil {
		return ""
	}
	return probe.Token
}

// CardRef is one indexed record card.
type CardRef struct {
	ID    string
	Title string
	Type  string
	Path  string
}

// BuildCardIndex walks every markdown file under root and indexes the ones
// that carry a frontmatter id. Index files, TAGS.md and underscore-prefixed
// files are not cards.
func BuildCardIndex(root string) map[string]CardRef {
	out := map[string]CardRef{}
	for _, file := range ListMarkdownFiles(root) {
		base := filepath.Base(file)
		if strings.HasPrefix(base, "_") || base == "index.md" || base == "TAGS.md" {
			continue
		}
		content, ok := ReadText(file)
		if !ok || !strings.HasPrefix(content, "---\n") {
			continue
		}
		id := ExtractFrontmatterField(content, "id")
		if id == "" {
			continue
		}
		title := ExtractFrontmatterField(content, "title")
		if title == "" {
			title = id
		}
		typ := ExtractFrontmatterField(content, "type")
		if typ == "" {
			typ = "memory"
		}
		out[id] = CardRef{ID: id, Title: title, Type: typ, Path: file}
	}
	return out
}

// LabelType renders a type with its emoji marker, defaulting to memory.
func LabelType(typ string) string {
	normalized := strings.TrimSpace(typ)
	if normalized == "" {
		normalized = "memory"
	}
	return TypeEmoji(normalized) + " " + normalized
}
