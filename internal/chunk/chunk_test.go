package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Zuo-Peng/ai-session-tree/internal/classify"
	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

func classified(t *testing.T, lines ...string) []classify.Entry {
	t.Helper()
	l, _, err := transcript.Read(strings.NewReader(strings.Join(lines, "\n")), "", transcript.ReadOptions{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return classify.ClassifyLog(l)
}

func ts(sec int) string {
	return fmt.Sprintf("2025-06-01T10:%02d:%02dZ", sec/60, sec%60)
}

func userLine(id, parent, text string, sec int) string {
	p := "null"
	if parent != "" {
		p = `"` + parent + `"`
	}
	return fmt.Sprintf(`{"type":"user","uuid":%q,"parentUuid":%s,"timestamp":%q,"message":{"role":"user","content":%q}}`, id, p, ts(sec), text)
}

func assistantLine(id, parent string, sec int, blocks ...string) string {
	return fmt.Sprintf(`{"type":"assistant","uuid":%q,"parentUuid":%q,"timestamp":%q,"message":{"role":"assistant","model":"claude-sonnet-4","content":[%s]}}`,
		id, parent, ts(sec), strings.Join(blocks, ","))
}

func toolResultLine(id, parent, toolUseID, source string, sec int) string {
	src := ""
	if source != "" {
		src = fmt.Sprintf(`"sourceToolUseID":%q,`, source)
	}
	return fmt.Sprintf(`{"type":"user","uuid":%q,"parentUuid":%q,"timestamp":%q,%s"message":{"role":"user","content":[{"type":"tool_result","tool_use_id":%q,"content":"ok"}]}}`,
		id, parent, ts(sec), src, toolUseID)
}

func textBlock(s string) string { return fmt.Sprintf(`{"type":"text","text":%q}`, s) }

func thinkingBlock(s string) string { return fmt.Sprintf(`{"type":"thinking","thinking":%q}`, s) }

func toolUseBlock(id, name string) string {
	return fmt.Sprintf(`{"type":"tool_use","id":%q,"name":%q,"input":{"description":"do %s"}}`, id, name, id)
}

func TestBuildUserThenAssistant(t *testing.T) {
	entries := classified(t,
		userLine("u1", "", "hello", 0),
		assistantLine("a1", "u1", 1, textBlock("hi there")),
	)
	chunks := ExtractAllSteps(Build(entries))
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if chunks[0].Kind() != KindUser || chunks[1].Kind() != KindAI {
		t.Fatalf("kinds = %v, %v, want user, ai", chunks[0].Kind(), chunks[1].Kind())
	}
	ai := chunks[1].(*AIChunk)
	if len(ai.Steps) != 1 {
		t.Fatalf("len(Steps) = %d, want 1", len(ai.Steps))
	}
	out, ok := ai.Steps[0].(*OutputStep)
	if !ok || out.Text != "hi there" {
		t.Errorf("Steps[0] = %#v, want output step", ai.Steps[0])
	}
}

func TestBuildDropsReminder(t *testing.T) {
	entries := classified(t,
		`{"type":"user","uuid":"u1","parentUuid":null,"message":{"role":"user","content":"<system-reminder>ctx</system-reminder>"}}`,
	)
	if entries[0].Category != classify.HardNoise {
		t.Fatalf("category = %v, want noise", entries[0].Category)
	}
	if chunks := Build(entries); len(chunks) != 0 {
		t.Errorf("Build() = %d chunks, want 0", len(chunks))
	}
}

func TestBuildCoverage(t *testing.T) {
	entries := classified(t,
		userLine("u1", "", "first", 0),
		assistantLine("a1", "u1", 1, thinkingBlock("plan")),
		assistantLine("a2", "a1", 2, toolUseBlock("t1", "Read")),
		`{"type":"system","uuid":"s1","parentUuid":"a2","subtype":"info"}`,
		toolResultLine("r1", "a2", "t1", "t1", 3),
		assistantLine("a3", "r1", 4, textBlock("done")),
		userLine("u2", "a3", "<local-command-stdout>out</local-command-stdout>", 5),
		`{"type":"user","uuid":"c1","parentUuid":null,"isCompactSummary":true,"message":{"role":"user","content":"summary"}}`,
		userLine("u3", "c1", "next", 6),
		`{"type":"file-history-snapshot","messageId":"x"}`,
		assistantLine("a4", "u3", 7, textBlock("sure")),
	)
	chunks := Build(entries)

	var kinds []string
	var got []int
	for _, c := range chunks {
		kinds = append(kinds, c.Kind().String())
		if len(c.Entries()) == 0 {
			t.Errorf("%v chunk has no entries", c.Kind())
		}
		for _, ce := range c.Entries() {
			got = append(got, ce.Pos)
		}
	}
	wantKinds := "user,ai,system,compact,user,ai"
	if s := strings.Join(kinds, ","); s != wantKinds {
		t.Errorf("kinds = %s, want %s", s, wantKinds)
	}

	var want []int
	for _, ce := range entries {
		if ce.Category != classify.HardNoise {
			want = append(want, ce.Pos)
		}
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("covered positions = %v, want %v", got, want)
	}
}

func TestBuildNoEmptyAIChunk(t *testing.T) {
	entries := classified(t,
		userLine("u1", "", "a", 0),
		userLine("u2", "u1", "b", 1),
		`{"type":"summary","summary":"s"}`,
	)
	for _, c := range Build(entries) {
		if c.Kind() == KindAI {
			t.Errorf("unexpected AI chunk with %d entries", len(c.Entries()))
		}
	}
}

func TestSpan(t *testing.T) {
	entries := classified(t,
		assistantLine("a1", "", 10, textBlock("x")),
		`{"type":"progress","uuid":"p1","parentUuid":"a1","data":{}}`,
		assistantLine("a2", "p1", 4, textBlock("y")),
	)
	c := Build(entries)[0]
	s := c.Span()
	if s.Duration().Seconds() != 6 {
		t.Errorf("Span() = %v, want 6s wide", s)
	}
	if !s.Contains(Span{Start: s.Start, End: s.Start}) {
		t.Errorf("span does not contain its own start")
	}
	if s.Contains(Span{}) {
		t.Errorf("span contains zero span")
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindUser, KindAI, KindSystem, KindCompact} {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if _, ok := ParseKind("nope"); ok {
		t.Errorf("ParseKind(nope) ok = true")
	}
}
