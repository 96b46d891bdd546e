package hub

import (
	"strings"
	"testing"
)

func sampleFrontmatter() CardFrontmatter {
	return CardFrontmatter{
		ID:             "2026-02-20-001",
		Type:           "watch",
		Title:          "交季度報告",
		Created:        "2026-02-20T10:00:00+08:00",
		Source:         "telegram",
		Priority:       "",
		Due:            "2026-03-01",
		Tags:           []string{"deadline", "watch"},
		Stage:          "",
		QStatus:        "",
		Confidence:     0.84,
		DedupeHint:     "new",
		NextBestAction: "盯到 2026-03-01，到點提醒",
		Schedule: CardSchedule{
			Mode:             "auto",
			Checkpoints:      []string{"2026-02-22", "2026-02-26", "2026-02-28"},
			AutoArchiveAfter: "2026-03-01",
		},
		Feedback: CardFeedback{
			Token:       "fb_20260220_001",
			WatchType:   "watch",
			HorizonDays: 7,
		},
	}
}

func sampleBody() CardBody {
	return CardBody{
		OriginalText:   "2026-03-01 交季度報告",
		SummaryLine:    "已列入追蹤",
		RationaleLine:  "依據：到期日",
		NextActionLine: "盯到 2026-03-01",
	}
}

func TestBuildCardMarkdown_KeyOrder(t *testing.T) {
	card := BuildCardMarkdown(sampleFrontmatter(), sampleBody())

	wantOrder := []string{
		"---",
		"id: 2026-02-20-001",
		"type: watch",
		"title: ",
		"created: 2026-02-20T10:00:00+08:00",
		"source: telegram",
		"priority: null",
		"due: 2026-03-01",
		"tags: [\"deadline\", \"watch\"]",
		"convert_to_task: false",
		"long_term_memory: false",
		"calendar_entry: false",
		"stage: null",
		"q_status: null",
		"confidence: 0.84",
		"alts: []",
		"dedupe_hint: new",
		"next_best_action: ",
		"links: []",
		"attachments: []",
		"remind_schedule:",
		"  mode: auto",
		"  checkpoints: [\"2026-02-22\", \"2026-02-26\", \"2026-02-28\"]",
		"  auto_archive_after: 2026-03-01",
		"feedback:",
		"  token: fb_20260220_001",
		"  watch_type: watch",
		"  expected_horizon_days: 7",
		"## 原文",
		"## 你的整理",
		"## Key Facts",
	}
	pos := 0
	for _, want := range wantOrder {
		idx := strings.Index(card[pos:], want)
		if idx < 0 {
			t.Fatalf("missing or out of order: %q\ncard:\n%s", want, card)
		}
		pos += idx + len(want)
	}
}

func TestBuildCardMarkdown_NullHorizon(t *testing.T) {
	fm := sampleFrontmatter()
	fm.Feedback.HorizonDays = -1
	card := BuildCardMarkdown(fm, sampleBody())
	if !strings.Contains(card, "  expected_horizon_days: null\n") {
		t.Errorf("horizon should render null:\n%s", card)
	}
}

func TestFrontmatterScalar(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain_value 1.2", "plain_value 1.2"},
		{"2026-02-20T10:00:00+08:00", "2026-02-20T10:00:00+08:00"},
		{"交季度報告", `"交季度報告"`},
		{`has "quotes"`, `"has \"quotes\""`},
	}
	for _, tc := range cases {
		if got := frontmatterScalar(tc.in); got != tc.want {
			t.Errorf("frontmatterScalar(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestFormatConfidence(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0.9, "0.90"},
		{0.845, "0.84"},
		{0.7, "0.70"},
	}
	for _, tc := range cases {
		if got := FormatConfidence(tc.in); got != tc.want {
			t.Errorf("FormatConfidence(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestMergeCardContent_SplicesAboveSummary(t *testing.T) {
	card := BuildCardMarkdown(sampleFrontmatter(), sampleBody())
	merged := MergeCardContent(card, "11:30", "補充一句", MergeMeta{MessageID: "m2"})

	if !strings.Contains(merged, "### 11:30 補充原文\n補充一句\n（message_id: m2）\n## 你的整理") {
		t.Errorf("addition not spliced directly above summary:\n%s", merged)
	}
	// Header untouched.
	if !strings.HasPrefix(merged, card[:strings.Index(card, "## 原文")]) {
		t.Error("frontmatter changed during merge")
	}
}

func TestMergeCardContent_ReplayIsNoop(t *testing.T) {
	card := BuildCardMarkdown(sampleFrontmatter(), sampleBody())
	once := MergeCardContent(card, "11:30", "補充一句", MergeMeta{MessageID: "m2"})
	twice := MergeCardContent(once, "11:31", "補充一句", MergeMeta{MessageID: "m2"})
	if once != twice {
		t.Error("merging the same message id twice should be a no-op")
	}
}

func TestMergeCardContent_NoMarkerAppends(t *testing.T) {
	existing := "# daily log\n\n- 早上健身\n"
	merged := MergeCardContent(existing, "12:00", "午餐吃了麵", MergeMeta{})
	want := "# daily log\n\n- 早上健身\n\n### 12:00 補充原文\n午餐吃了麵\n"
	if merged != want {
		t.Errorf("merged = %q, want %q", merged, want)
	}
}

func TestMergeCardContent_MetaOrder(t *testing.T) {
	merged := MergeCardContent("x\n## 你的整理\n", "09:00", "text", MergeMeta{
		MessageID: "m1",
		ReplyTo:   "m0",
		GroupID:   "g7",
	})
	if !strings.Contains(merged, "（message_id: m1 | reply_to: m0 | group_id: g7）") {
		t.Errorf("meta line wrong:\n%s", merged)
	}
}

func TestContainsMessageRef(t *testing.T) {
	content := "body\n（message_id: tg-100 | group_id: g1）\n"
	if !ContainsMessageRef(content, "tg-100") {
		t.Error("should find message id")
	}
	if ContainsMessageRef(content, "tg-10") {
		t.Error("partial id must not match")
	}
	if ContainsMessageRef(content, "") {
		t.Error("empty id never matches")
	}
}

func TestExtractFrontmatterField(t *testing.T) {
	card := BuildCardMarkdown(sampleFrontmatter(), sampleBody())
	if got := ExtractFrontmatterField(card, "type"); got != "watch" {
		t.Errorf("type = %q", got)
	}
	if got := ExtractFrontmatterField(card, "title"); got != "交季度報告" {
		t.Errorf("title = %q (quotes should be stripped)", got)
	}
	if got := ExtractFrontmatterField(card, "nope"); got != "" {
		t.Errorf("missing key = %q, want empty", got)
	}
}
