package checker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kokistudios/hubcap/internal/capture"
	"github.com/kokistudios/hubcap/internal/hub"
)

func checkerPaths(t *testing.T) hub.Paths {
	t.Helper()
	paths := hub.Resolve(t.TempDir())
	if err := paths.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	if err := paths.EnsureScaffold(); err != nil {
		t.Fatalf("ensure scaffold: %v", err)
	}
	return paths
}

func strptr(s string) *string { return &s }

func seedQueue(t *testing.T, paths hub.Paths, entries ...capture.QueueEntry) {
	t.Helper()
	queuePath := filepath.Join(paths.Meta, "reasoning_queue.jsonl")
	if err := writeQueue(queuePath, entries); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
}

func seedWatchCard(t *testing.T, paths hub.Paths, id, title, due string, checkpoints []string) string {
	t.Helper()
	fm := hub.CardFrontmatter{
		ID:         id,
		Type:       "watch",
		Title:      title,
		Created:    "2026-02-20T10:00:00+08:00",
		Source:     "telegram",
		Due:        due,
		Tags:       []string{"deadline", "watch"},
		Confidence: 0.84,
		DedupeHint: "new",
		Schedule: hub.CardSchedule{
			Mode:             "auto",
			Checkpoints:      checkpoints,
			AutoArchiveAfter: due,
		},
		Feedback: hub.CardFeedback{Token: "fb_" + id, WatchType: "watch", HorizonDays: 7},
	}
	body := hub.CardBody{
		OriginalText:   due + " " + title,
		SummaryLine:    "已列入追蹤",
		RationaleLine:  "依據：到期日",
		NextActionLine: "盯到 " + due,
	}
	path := filepath.Join(paths.Tasks, id+"_watch.md")
	if err := os.WriteFile(path, []byte(hub.BuildCardMarkdown(fm, body)), 0o644); err != nil {
		t.Fatalf("seed card: %v", err)
	}
	return path
}

func readQueueEntries(t *testing.T, paths hub.Paths) []capture.QueueEntry {
	t.Helper()
	return readQueue(filepath.Join(paths.Meta, "reasoning_queue.jsonl"))
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(raw)
}

func TestRun_ExpiresWatchPastArchiveDate(t *testing.T) {
	paths := checkerPaths(t)
	id := "2026-02-20-001"
	cardPath := seedWatchCard(t, paths, id, "交季度報告", "2026-02-25", []string{"2026-02-22"})
	seedQueue(t, paths, capture.QueueEntry{
		Token:            "queue:" + id,
		ID:               id,
		Type:             "watch",
		Confidence:       0.84,
		Due:              strptr("2026-02-25"),
		Checkpoints:      []string{"2026-02-22"},
		AutoArchiveAfter: strptr("2026-02-25"),
		TS:               "2026-02-20T10:00:00+08:00",
	})
	waitingPath := filepath.Join(paths.Work, "waiting.md")
	waiting := "# waiting\n\n- [ ] 交季度報告 (id:" + id + ")\n- [ ] 另一件事 (id:2026-02-19-002)\n"
	if err := os.WriteFile(waitingPath, []byte(waiting), 0o644); err != nil {
		t.Fatalf("seed waiting: %v", err)
	}

	res, err := Run(Options{Paths: paths, Today: "2026-03-01"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Expired != 1 || res.QueueUpdates != 1 || res.ArchivedCards != 1 {
		t.Fatalf("expired=%d queueUpdates=%d archived=%d, want 1/1/1", res.Expired, res.QueueUpdates, res.ArchivedCards)
	}
	if res.WaitingRemoved != 1 {
		t.Fatalf("WaitingRemoved = %d, want 1", res.WaitingRemoved)
	}
	if res.Due != 0 {
		t.Fatalf("Due = %d, want 0", res.Due)
	}
	if res.SignalsAdded != 1 {
		t.Fatalf("SignalsAdded = %d, want 1", res.SignalsAdded)
	}

	entries := readQueueEntries(t, paths)
	if len(entries) != 1 {
		t.Fatalf("queue has %d entries, want 1", len(entries))
	}
	if !entries[0].Consumed || entries[0].ConsumedReason != "watch_expired" {
		t.Fatalf("entry not consumed as watch_expired: %+v", entries[0])
	}

	card := mustRead(t, cardPath)
	if !strings.Contains(card, "\nstage: archived\n") {
		t.Fatalf("card frontmatter not archived:\n%s", card)
	}
	if !strings.Contains(card, "## Watch Lifecycle\n- watch_expired: 2026-03-01") {
		t.Fatalf("card missing lifecycle line:\n%s", card)
	}

	pruned := mustRead(t, waitingPath)
	if strings.Contains(pruned, id) {
		t.Fatalf("waiting.md still lists expired card:\n%s", pruned)
	}
	if !strings.Contains(pruned, "2026-02-19-002") {
		t.Fatalf("waiting.md lost an unrelated line:\n%s", pruned)
	}

	signals := mustRead(t, filepath.Join(paths.Meta, "feedback_signals.jsonl"))
	if !strings.Contains(signals, `"token":"watch_expired:2026-03-01:`+id+`"`) {
		t.Fatalf("missing expired signal:\n%s", signals)
	}

	// Rerun: the entry is consumed now so nothing expires again.
	again, err := Run(Options{Paths: paths, Today: "2026-03-01"})
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if again.Expired != 0 || again.QueueUpdates != 0 || again.ArchivedCards != 0 || again.SignalsAdded != 0 {
		t.Fatalf("rerun not idempotent: %+v", again)
	}
}

func TestRun_CheckpointReminder(t *testing.T) {
	paths := checkerPaths(t)
	id := "2026-02-20-001"
	seedWatchCard(t, paths, id, "交季度報告", "2026-03-01", []string{"2026-02-22", "2026-02-26"})
	seedQueue(t, paths, capture.QueueEntry{
		Token:            "queue:" + id,
		ID:               id,
		Type:             "watch",
		Confidence:       0.84,
		Due:              strptr("2026-03-01"),
		Checkpoints:      []string{"2026-02-22", "2026-02-26"},
		AutoArchiveAfter: strptr("2026-03-01"),
	})

	res, err := Run(Options{Paths: paths, Today: "2026-02-22"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Due != 1 || res.NewDue != 1 {
		t.Fatalf("Due=%d NewDue=%d, want 1/1", res.Due, res.NewDue)
	}
	if res.SignalsAdded != 1 {
		t.Fatalf("SignalsAdded = %d, want 1", res.SignalsAdded)
	}
	if len(res.ReminderLines) != 1 {
		t.Fatalf("ReminderLines = %v", res.ReminderLines)
	}
	line := res.ReminderLines[0]
	for _, want := range []string{"(P2)", "交季度報告", "(id:" + id + ")", "type:watch", "due:2026-03-01", "checkpoint:2026-02-22"} {
		if !strings.Contains(line, want) {
			t.Errorf("reminder line missing %q: %s", want, line)
		}
	}

	report := mustRead(t, res.ReportPath)
	if !strings.Contains(report, "date: 2026-02-22") || !strings.Contains(report, "count: 1") {
		t.Fatalf("report header wrong:\n%s", report)
	}
	if !strings.Contains(report, line) {
		t.Fatalf("report missing reminder line:\n%s", report)
	}

	signals := mustRead(t, filepath.Join(paths.Meta, "feedback_signals.jsonl"))
	if !strings.Contains(signals, `"token":"watch_checkpoint:2026-02-22:`+id+`"`) {
		t.Fatalf("missing checkpoint signal:\n%s", signals)
	}

	// Same day again: still due, but the signal token dedupes.
	again, err := Run(Options{Paths: paths, Today: "2026-02-22"})
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if again.Due != 1 || again.NewDue != 0 || again.SignalsAdded != 0 {
		t.Fatalf("rerun Due=%d NewDue=%d SignalsAdded=%d, want 1/0/0", again.Due, again.NewDue, again.SignalsAdded)
	}
}

func TestRun_CheckpointWithoutCardFallsBackToID(t *testing.T) {
	paths := checkerPaths(t)
	seedQueue(t, paths, capture.QueueEntry{
		ID:          "2026-02-20-003",
		Type:        "watch",
		Checkpoints: []string{"2026-02-22"},
	})

	res, err := Run(Options{Paths: paths, Today: "2026-02-22"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Due != 1 {
		t.Fatalf("Due = %d, want 1", res.Due)
	}
	if !strings.Contains(res.ReminderLines[0], "2026-02-20-003 (id:2026-02-20-003)") {
		t.Fatalf("fallback title not used: %s", res.ReminderLines[0])
	}
}

func TestRun_PushWritesPayload(t *testing.T) {
	paths := checkerPaths(t)
	id := "2026-02-20-001"
	seedWatchCard(t, paths, id, "交季度報告", "2026-03-01", []string{"2026-02-22"})
	seedQueue(t, paths, capture.QueueEntry{
		ID:          id,
		Type:        "watch",
		Due:         strptr("2026-03-01"),
		Checkpoints: []string{"2026-02-22"},
	})

	res, err := Run(Options{
		Paths: paths,
		Today: "2026-02-22",
		Push:  PushOptions{Enabled: true, Target: "chat-001"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PushMode != "payload" || res.Pushed != 1 {
		t.Fatalf("PushMode=%q Pushed=%d, want payload/1", res.PushMode, res.Pushed)
	}
	if res.PushError != "" {
		t.Fatalf("unexpected push error: %s", res.PushError)
	}

	payload := mustRead(t, res.PayloadPath)
	for _, want := range []string{
		"channel: telegram",
		"target: chat-001",
		"📌 今日 Watch 提醒（2026-02-22）",
		"• " + id + "（watch｜P2）",
		"回覆：1 " + id + " = 轉任務；0 " + id + " = 停止提醒",
	} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload missing %q:\n%s", want, payload)
		}
	}

	pushReport := mustRead(t, filepath.Join(paths.Meta, "watch_push_results.md"))
	if !strings.Contains(pushReport, "push_mode: payload") || !strings.Contains(pushReport, "pushed_count: 1") {
		t.Fatalf("push report wrong:\n%s", pushReport)
	}
}

func TestRun_PushDryRun(t *testing.T) {
	paths := checkerPaths(t)
	seedQueue(t, paths, capture.QueueEntry{
		ID:          "2026-02-20-001",
		Type:        "watch",
		Checkpoints: []string{"2026-02-22"},
	})

	res, err := Run(Options{
		Paths: paths,
		Today: "2026-02-22",
		Push:  PushOptions{Enabled: true, DryRun: true, Target: "chat-001"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PushMode != "simulated_dry_run" {
		t.Fatalf("PushMode = %q, want simulated_dry_run", res.PushMode)
	}
}

func TestRun_PushMissingTarget(t *testing.T) {
	paths := checkerPaths(t)
	seedQueue(t, paths, capture.QueueEntry{
		ID:          "2026-02-20-001",
		Type:        "watch",
		Checkpoints: []string{"2026-02-22"},
	})

	res, err := Run(Options{
		Paths: paths,
		Today: "2026-02-22",
		Push:  PushOptions{Enabled: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PushError != "missing push target" {
		t.Fatalf("PushError = %q", res.PushError)
	}
	if res.PushMode != "skipped" || res.Pushed != 0 {
		t.Fatalf("PushMode=%q Pushed=%d, want skipped/0", res.PushMode, res.Pushed)
	}
}

func TestIsWatchExpired(t *testing.T) {
	base := capture.QueueEntry{
		ID:               "2026-02-20-001",
		Type:             "watch",
		AutoArchiveAfter: strptr("2026-02-25"),
	}
	if !isWatchExpired(base, "2026-03-01") {
		t.Error("past archive date should expire")
	}
	if isWatchExpired(base, "2026-02-25") {
		t.Error("archive date itself is not expired")
	}
	consumed := base
	consumed.Consumed = true
	if isWatchExpired(consumed, "2026-03-01") {
		t.Error("consumed entries never expire")
	}
	action := base
	action.Type = "action"
	if isWatchExpired(action, "2026-03-01") {
		t.Error("only watch entries expire")
	}
	noDate := base
	noDate.AutoArchiveAfter = nil
	if isWatchExpired(noDate, "2026-03-01") {
		t.Error("missing archive date never expires")
	}
	withTime := base
	withTime.AutoArchiveAfter = strptr("2026-02-25 14:00")
	if !isWatchExpired(withTime, "2026-03-01") {
		t.Error("time suffix should be ignored when comparing dates")
	}
}

func TestRemoveWaitingLines(t *testing.T) {
	raw := strings.Join([]string{
		"# waiting",
		"",
		"- [ ] alpha (id:2026-02-20-001)",
		"- [ ] beta (id:2026-02-20-002)",
		"- [ ] no id here",
	}, "\n")
	pruned, removed := removeWaitingLines(raw, map[string]bool{"2026-02-20-001": true})
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if strings.Contains(pruned, "alpha") {
		t.Fatalf("alpha line survived:\n%s", pruned)
	}
	if !strings.Contains(pruned, "beta") || !strings.Contains(pruned, "no id here") {
		t.Fatalf("unrelated lines dropped:\n%s", pruned)
	}
	if !strings.HasSuffix(pruned, "\n") {
		t.Fatal("pruned content lost trailing newline")
	}
}

func TestInferWatchPriority(t *testing.T) {
	cases := []struct {
		typ, raw, want string
	}{
		{"watch", "", "P2"},
		{"action", "", "P1"},
		{"memory", "", "P3"},
		{"watch", "p0", "P0"},
		{"watch", "P3", "P3"},
		{"watch", "urgent-ish", "P3"},
	}
	for _, tc := range cases {
		if got := inferWatchPriority(tc.typ, tc.raw); got != tc.want {
			t.Errorf("inferWatchPriority(%q, %q) = %q, want %q", tc.typ, tc.raw, got, tc.want)
		}
	}
}

func TestExtractOriginalSummary(t *testing.T) {
	card := "---\nid: x\n---\n\n## 原文\n\n檢查 capture 是否正常\n\n## 你的整理\n- note\n"
	if got := extractOriginalSummary(card); got != "檢查 capture 是否正常" {
		t.Fatalf("summary = %q", got)
	}
	if got := extractOriginalSummary("no sections at all"); got != "" {
		t.Fatalf("expected empty summary, got %q", got)
	}
	long := "---\n---\n## 原文\n" + strings.Repeat("長", 120) + "\n"
	got := extractOriginalSummary(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 93 {
		t.Fatalf("long summary not truncated: %d runes", len([]rune(got)))
	}
}

func TestInferFriendlyMeaning(t *testing.T) {
	if got := inferFriendlyMeaning("驗證 capture agent 是否正常"); got != "檢查機器人收訊與記錄功能是否正常" {
		t.Fatalf("check phrasing = %q", got)
	}
	if got := inferFriendlyMeaning("telegram webhook 狀態"); !strings.HasPrefix(got, "跟進") {
		t.Fatalf("follow-up phrasing = %q", got)
	}
	if got := inferFriendlyMeaning("買牛奶"); got != "" {
		t.Fatalf("unknown subsystem should map to empty, got %q", got)
	}
}

func TestReadQueue_SkipsMalformedRows(t *testing.T) {
	paths := checkerPaths(t)
	queuePath := filepath.Join(paths.Meta, "reasoning_queue.jsonl")
	good, _ := json.Marshal(capture.QueueEntry{ID: "2026-02-20-001", Type: "watch"})
	content := string(good) + "\n{not json}\n" + string(good) + "\n"
	if err := os.WriteFile(queuePath, []byte(content), 0o644); err != nil {
		t.Fatalf("write queue: %v", err)
	}
	entries := readQueue(queuePath)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}
