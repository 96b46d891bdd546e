package capture

import (
	"os"
	"strings"
	"time"

	"github.com/kokistudios/hubcap/internal/hub"
)

// Recent-file window and title threshold for the append-target scan.
const (
	dedupeFileAge            = 3 * 24 * time.Hour
	titleSimilarityThreshold = 0.72
)

// AppendReason records why an existing card was chosen as the merge target.
type AppendReason string

const (
	ReasonReplyTo      AppendReason = "reply_to"
	ReasonSimilarTitle AppendReason = "similar_title"
	ReasonAlreadySeen  AppendReason = "already_seen"
)

// AppendMatch points at the existing card a capture should merge into.
type AppendMatch struct {
	Path   string
	Reason AppendReason
}

func normalizeTitleKey(input string) string {
	return searchKeyRE.ReplaceAllString(strings.ToLower(input), "")
}

// titleSimilarity scores two titles in [0,1]: exact key match, containment
// of a reasonably long key, then character-set overlap.
func titleSimilarity(a, b string) float64 {
	left := normalizeTitleKey(a)
	right := normalizeTitleKey(b)
	if left == "" || right == "" {
		return 0
	}
	if left == right {
		return 1
	}
	leftRunes := []rune(left)
	rightRunes := []rune(right)
	shorter := len(leftRunes)
	if len(rightRunes) < shorter {
		shorter = len(rightRunes)
	}
	if (strings.Contains(left, right) || strings.Contains(right, left)) && shorter >= 6 {
		return 0.9
	}
	leftSet := runeSet(leftRunes)
	rightSet := runeSet(rightRunes)
	intersect := 0
	union := map[rune]bool{}
	for r := range leftSet {
		union[r] = true
		if rightSet[r] {
			intersect++
		}
	}
	for r := range rightSet {
		union[r] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersect) / float64(len(union))
}

func runeSet(runes []rune) map[rune]bool {
	out := map[rune]bool{}
	for _, r := range runes {
		out[r] = true
	}
	return out
}

// FindAppendTarget scans recently touched record cards for one this capture
// should merge into: same message id wins outright, then a reply-to link,
// then a sufficiently similar title of the same type. Memory captures never
// merge into cards.
func FindAppendTarget(paths hub.Paths, inf Inference, now time.Time) *AppendMatch {
	if inf.Type == TypeMemory {
		return nil
	}

	var files []string
	for _, dir := range paths.RecordDirs() {
		files = append(files, hub.ListMarkdownFiles(dir)...)
	}
	if len(files) == 0 {
		return nil
	}

	replyTo := strings.TrimSpace(inf.Input.Metadata.ReplyTo)
	messageID := strings.TrimSpace(inf.Input.Metadata.MessageID)
	var bestPath string
	bestScore := 0.0

	for _, file := range files {
		stat, err := os.Stat(file)
		if err != nil || now.Sub(stat.ModTime()) > dedupeFileAge {
			continue
		}
		content, ok := hub.ReadText(file)
		if !ok || content == "" {
			continue
		}

		if hub.ContainsMessageRef(content, messageID) {
			return &AppendMatch{Path: file, Reason: ReasonAlreadySeen}
		}
		if replyTo != "" && hub.ContainsMessageRef(content, replyTo) {
			return &AppendMatch{Path: file, Reason: ReasonReplyTo}
		}

		candidateType := hub.ExtractFrontmatterField(content, "type")
		if candidateType != "" && candidateType != string(inf.Type) {
			continue
		}
		candidateTitle := hub.ExtractFrontmatterField(content, "title")
		if candidateTitle == "" {
			continue
		}
		score := titleSimilarity(inf.Title, candidateTitle)
		if score < titleSimilarityThreshold {
			continue
		}
		if bestPath == "" || score > bestScore {
			bestPath = file
			bestScore = score
		}
	}

	if bestPath == "" {
		return nil
	}
	return &AppendMatch{Path: bestPath, Reason: ReasonSimilarTitle}
}
