package capture

import (
	"reflect"
	"strings"
	"testing"
)

var testNow = DateParts{
	YMD:           "2026-02-20",
	HM:            "10:00",
	ISOWithOffset: "2026-02-20T10:00:00+08:00",
}

func classify(content string) Inference {
	input := Input{
		Content:  content,
		Metadata: Metadata{Platform: "generic", MessageID: "m-test"},
	}
	return Classify(input, testNow, Context{})
}

func TestClassify_TypeChain(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    Type
		conf    float64
	}{
		{"explicit task intent", "請提醒我交季度報告", TypeAction, 0.9},
		{"no-task override", "不要變成待辦，只是記一下這個想法", TypeIdea, 0.86},
		{"quarter timeline", "Q3 規劃 roadmap 初稿", TypeTimeline, 0.84},
		{"person phrase", "跟 Alex 對齊方案", TypePerson, 0.8},
		{"bare due becomes watch", "2026-03-27 交付 v2", TypeWatch, 0.84},
		{"question mark", "staging 怎麼部署？", TypeQuestion, 0.78},
		{"url reference", "https://example.com/post 好文", TypeReference, 0.78},
		{"belief", "我認為小團隊應該先做減法", TypeBelief, 0.77},
		{"highlight", "金句：simple is better", TypeHighlight, 0.77},
		{"idea", "有個點子：做個批量匯入", TypeIdea, 0.76},
		{"fallback memory", "午餐吃了牛肉麵", TypeMemory, 0.7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.content)
			if got.Type != tc.want {
				t.Fatalf("type = %s, want %s", got.Type, tc.want)
			}
			if got.Confidence != tc.conf {
				t.Errorf("confidence = %v, want %v", got.Confidence, tc.conf)
			}
		})
	}
}

func TestClassify_TimelineBeatsDue(t *testing.T) {
	got := classify("3/10-3/14 出差上海")
	if got.Type != TypeTimeline {
		t.Fatalf("type = %s, want timeline", got.Type)
	}
}

func TestClassify_PersonBeatsDue(t *testing.T) {
	got := classify("跟 Alex 對齊方案，明天 14:00 之前")
	if got.Type != TypePerson {
		t.Fatalf("type = %s, want person", got.Type)
	}
	if got.Due != "2026-02-21 14:00" {
		t.Errorf("due = %q, want 2026-02-21 14:00", got.Due)
	}
	if got.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85 (person with due)", got.Confidence)
	}
}

func TestExtractDue(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"iso date", "2026-06-30 截止 交付", "2026-06-30"},
		{"iso with time", "2026-06-30 09:30 截止", "2026-06-30 09:30"},
		{"zh tomorrow with intent", "明天 14:00 提醒我交報告", "2026-02-21 14:00"},
		{"zh today", "今天 18:00 之前完成", "2026-02-20 18:00"},
		{"zh day after", "後天交付初稿", "2026-02-22"},
		{"zh without intent", "明天去健身", ""},
		{"en tomorrow with intent", "tomorrow 10:00 review the contract", "2026-02-21 10:00"},
		{"en without intent", "tomorrow is a holiday", ""},
		{"month day rolls forward", "3/27 10:00 提醒我交報告", "2026-03-27 10:00"},
		{"month day past rolls to next year", "1/15 提醒我續約", "2027-01-15"},
		{"invalid month day", "13/45 提醒我", ""},
		{"invalid clock ignored", "2026-06-30 25:99 截止", "2026-06-30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractDue(tc.content, testNow.YMD)
			if got != tc.want {
				t.Errorf("extractDue(%q) = %q, want %q", tc.content, got, tc.want)
			}
		})
	}
}

func TestExtractPriority(t *testing.T) {
	cases := []struct {
		content string
		want    Priority
	}{
		{"P0 線上掛了 馬上修", PriorityP0},
		{"緊急 幫我跟進", PriorityP0},
		{"重要：季度目標對齊", PriorityP1},
		{"P2 整理文檔", PriorityP2},
		{"有空再看看這篇", PriorityP2},
		{"記一下午餐", PriorityNone},
	}
	for _, tc := range cases {
		if got := extractPriority(tc.content); got != tc.want {
			t.Errorf("extractPriority(%q) = %q, want %q", tc.content, got, tc.want)
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		name    string
		content string
		typ     Type
		want    string
	}{
		{"first line only", "交季度報告\n細節在這裡", TypeAction, "交季度報告"},
		{"url stripped", "https://example.com/post 好文", TypeReference, "好文"},
		{"brackets stripped", "【重要】[週報] 模板", TypeReference, "重要 週報 模板"},
		{"truncated to 18 runes", strings.Repeat("長", 30), TypeMemory, strings.Repeat("長", 18)},
		{"url only falls back", "https://example.com/post", TypeReference, "reference note"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeTitle(tc.content, tc.typ); got != tc.want {
				t.Errorf("normalizeTitle = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassify_ContextHitSoftensConfidence(t *testing.T) {
	content := "check the quarterly contract email"
	ctx := Context{RecentText: "already noted: check the quarterly contract email yesterday"}
	input := Input{Content: content, Metadata: Metadata{Platform: "generic"}}
	got := Classify(input, testNow, ctx)
	base := classify(content)
	if got.Confidence != base.Confidence-0.08 {
		t.Errorf("confidence = %v, want %v", got.Confidence, base.Confidence-0.08)
	}
	if got.DedupeHint != DedupePossibleDuplicate {
		t.Errorf("dedupeHint = %s, want possible_duplicate", got.DedupeHint)
	}
}

func TestClassify_MemoryContextHitFlagsDuplicate(t *testing.T) {
	content := "記錄一下今天會議的氣氛不錯大家狀態在線"
	ctx := Context{RecentText: normalizeSearchKey(content)}
	got := Classify(Input{Content: content}, testNow, ctx)
	if got.Confidence >= 0.65 {
		t.Errorf("confidence = %v, want below review threshold", got.Confidence)
	}
	if got.DedupeHint != DedupePossibleDuplicate {
		t.Errorf("dedupeHint = %s, want possible_duplicate", got.DedupeHint)
	}
}

func TestClassify_Tags(t *testing.T) {
	got := classify("請提醒我 2026-03-01 交付合約 https://example.com/doc")
	wantFirst := []string{"link", "deadline", "execution"}
	if len(got.Tags) < 3 || !reflect.DeepEqual(got.Tags[:3], wantFirst) {
		t.Errorf("tags = %v, want prefix %v", got.Tags, wantFirst)
	}
}

func TestClassify_ContextTagsCapped(t *testing.T) {
	known := []string{"#alpha", "beta", "gamma", "delta"}
	input := Input{Content: "alpha beta gamma delta 都相關的備忘"}
	got := Classify(input, testNow, Context{KnownTags: known})
	matched := 0
	for _, tag := range got.Tags {
		switch tag {
		case "alpha", "beta", "gamma", "delta":
			matched++
		}
	}
	if matched != 3 {
		t.Errorf("matched %d context tags, want 3", matched)
	}
}

func TestClassify_LongTermMemoryFlag(t *testing.T) {
	got := classify("釘住 這條原則")
	if !got.LongTermMemory {
		t.Error("expected long_term_memory to be set")
	}
}

func TestKnownType(t *testing.T) {
	for _, typ := range Types {
		if !KnownType(string(typ)) {
			t.Errorf("KnownType(%q) = false", typ)
		}
	}
	for _, raw := range []string{"", "task", "WATCH", "note"} {
		if KnownType(raw) {
			t.Errorf("KnownType(%q) = true", raw)
		}
	}
}

func TestNormalizeSource(t *testing.T) {
	cases := []struct {
		platform string
		want     Source
	}{
		{"telegram", SourceTelegram},
		{"Lark", SourceFeishu},
		{"feishu", SourceFeishu},
		{"weixin", SourceWeChat},
		{"wechatbot", SourceWeChat},
		{"mail", SourceEmail},
		{"whatsapp", SourceWhatsApp},
		{"", SourceGeneric},
		{"carrier-pigeon", SourceGeneric},
	}
	for _, tc := range cases {
		if got := normalizeSource(tc.platform); got != tc.want {
			t.Errorf("normalizeSource(%q) = %s, want %s", tc.platform, got, tc.want)
		}
	}
}

func TestInferRemindSchedule_Buckets(t *testing.T) {
	today := "2026-01-01"
	cases := []struct {
		name string
		due  string
		want []string
	}{
		{"far due gets one checkpoint", "2026-03-01", []string{"2026-02-15"}},
		{"two to four weeks", "2026-01-20", []string{"2026-01-06", "2026-01-17"}},
		{"one to two weeks", "2026-01-10", []string{"2026-01-03", "2026-01-07", "2026-01-09"}},
		{"near due", "2026-01-03", []string{"2025-12-31", "2026-01-02", "2026-01-03"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := InferRemindSchedule(TypeWatch, tc.due, today)
			if got.Mode != RemindAuto {
				t.Fatalf("mode = %s, want auto", got.Mode)
			}
			if !reflect.DeepEqual(got.Checkpoints, tc.want) {
				t.Errorf("checkpoints = %v, want %v", got.Checkpoints, tc.want)
			}
			if got.AutoArchiveAfter == nil || *got.AutoArchiveAfter != tc.due {
				t.Errorf("autoArchiveAfter = %v, want %q", got.AutoArchiveAfter, tc.due)
			}
		})
	}
}

func TestInferRemindSchedule_TimeOfDayStripped(t *testing.T) {
	got := InferRemindSchedule(TypeAction, "2026-01-03 14:00", "2026-01-01")
	if got.AutoArchiveAfter == nil || *got.AutoArchiveAfter != "2026-01-03" {
		t.Errorf("autoArchiveAfter = %v, want 2026-01-03", got.AutoArchiveAfter)
	}
}

func TestInferRemindSchedule_None(t *testing.T) {
	if got := InferRemindSchedule(TypeIdea, "2026-01-10", "2026-01-01"); got.Mode != RemindNone {
		t.Errorf("idea schedule mode = %s, want none", got.Mode)
	}
	if got := InferRemindSchedule(TypeWatch, "", "2026-01-01"); got.Mode != RemindNone {
		t.Errorf("no-due schedule mode = %s, want none", got.Mode)
	}
	if got := InferRemindSchedule(TypeWatch, "", "2026-01-01"); got.Checkpoints == nil {
		t.Error("checkpoints should be an empty slice, not nil")
	} else if got.AutoArchiveAfter != nil {
		t.Errorf("autoArchiveAfter = %q, want nil", *got.AutoArchiveAfter)
	}
}
