package chunk

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

func aiItems(t *testing.T, lines ...string) *AIChunk {
	t.Helper()
	chunks := Build(classified(t, lines...))
	for _, c := range chunks {
		if ai, ok := c.(*AIChunk); ok {
			return ai
		}
	}
	t.Fatalf("no AI chunk built")
	return nil
}

func TestLinkToolsSourceToolUseID(t *testing.T) {
	ai := aiItems(t,
		assistantLine("a1", "", 0, toolUseBlock("t1", "Bash")),
		toolResultLine("r1", "a1", "t1", "t1", 3),
	)
	execs, warnings := LinkTools(ai.Items)
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if len(execs) != 1 {
		t.Fatalf("len(execs) = %d, want 1", len(execs))
	}
	x := execs[0]
	if x.ToolUseID != "t1" || x.ToolName != "Bash" {
		t.Errorf("exec = %+v", x)
	}
	if x.Start.IsZero() || x.End.IsZero() {
		t.Errorf("Start = %v, End = %v, want both set", x.Start, x.End)
	}
	if d, ok := x.Duration(); !ok || d.Seconds() != 3 {
		t.Errorf("Duration() = %v, %v, want 3s", d, ok)
	}
	if !x.Resolved() || transcript.ResultText(x.Result.Content) != "ok" {
		t.Errorf("Result = %+v", x.Result)
	}
	if x.CallPos != 0 || x.ResultPos != 1 {
		t.Errorf("CallPos, ResultPos = %d, %d, want 0, 1", x.CallPos, x.ResultPos)
	}
}

func TestLinkToolsUnresolved(t *testing.T) {
	ai := aiItems(t,
		assistantLine("a1", "", 0, toolUseBlock("t2", "Grep")),
		assistantLine("a2", "a1", 1, textBlock("still waiting")),
	)
	execs, warnings := LinkTools(ai.Items)
	if len(execs) != 1 {
		t.Fatalf("len(execs) = %d, want 1", len(execs))
	}
	if !execs[0].End.IsZero() || execs[0].Resolved() {
		t.Errorf("exec = %+v, want unresolved", execs[0])
	}
	if _, ok := execs[0].Duration(); ok {
		t.Errorf("Duration() ok = true for unresolved exec")
	}
	if len(warnings) != 1 || warnings[0].Kind != transcript.WarnLinkUnresolved || warnings[0].ToolUseID != "t2" {
		t.Errorf("warnings = %+v, want one link-unresolved for t2", warnings)
	}
}

func TestLinkToolsFallbackScan(t *testing.T) {
	// Two results in one entry: no single sourceToolUseID is inferred, so
	// both are found by scanning tool_result blocks.
	ai := aiItems(t,
		assistantLine("a1", "", 0, toolUseBlock("t1", "Read"), toolUseBlock("t2", "Read")),
		`{"type":"user","uuid":"r1","parentUuid":"a1","timestamp":"2025-06-01T10:00:02Z","message":{"role":"user","content":[`+
			`{"type":"tool_result","tool_use_id":"t2","content":"two"},`+
			`{"type":"tool_result","tool_use_id":"t1","content":"one","is_error":true}]}}`,
	)
	execs, warnings := LinkTools(ai.Items)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if len(execs) != 2 || execs[0].ToolUseID != "t1" || execs[1].ToolUseID != "t2" {
		t.Fatalf("execs = %+v", execs)
	}
	if got := transcript.ResultText(execs[0].Result.Content); got != "one" || !execs[0].Result.IsError {
		t.Errorf("t1 result = %q, error %v", got, execs[0].Result.IsError)
	}
	if got := transcript.ResultText(execs[1].Result.Content); got != "two" {
		t.Errorf("t2 result = %q", got)
	}
}

func TestLinkToolsPrimaryWins(t *testing.T) {
	// A stray result block in an earlier non-meta entry must not shadow the
	// entry that names the invocation in sourceToolUseID.
	ai := aiItems(t,
		assistantLine("a1", "", 0, toolUseBlock("t1", "Bash")),
		`{"type":"progress","uuid":"p1","parentUuid":"a1","timestamp":"2025-06-01T10:00:01Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"partial"}]}}`,
		toolResultLine("r1", "p1", "t1", "t1", 5),
	)
	execs, _ := LinkTools(ai.Items)
	if execs[0].ResultPos != 2 {
		t.Errorf("ResultPos = %d, want 2", execs[0].ResultPos)
	}
}

func TestLinkToolsIdempotent(t *testing.T) {
	ai := aiItems(t,
		assistantLine("a1", "", 0, toolUseBlock("t1", "Bash"), toolUseBlock("t2", "Edit")),
		toolResultLine("r1", "a1", "t1", "t1", 2),
	)
	first, w1 := LinkTools(ai.Items)
	linked := ai.WithToolExecutions(first)
	second, w2 := LinkTools(linked.Items)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("LinkTools() not idempotent (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(w1, w2); diff != "" {
		t.Errorf("warnings differ (-first +second):\n%s", diff)
	}
	if ai.ToolExecutions != nil {
		t.Errorf("original chunk was modified")
	}
}

func TestLinkAllTools(t *testing.T) {
	chunks := Build(classified(t,
		userLine("u1", "", "go", 0),
		assistantLine("a1", "u1", 1, toolUseBlock("t1", "Bash")),
		userLine("u2", "a1", "again", 2),
		assistantLine("a2", "u2", 3, toolUseBlock("t2", "Bash")),
		toolResultLine("r2", "a2", "t2", "t2", 4),
	))
	out, warnings := LinkAllTools(chunks)
	if len(out) != len(chunks) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(chunks))
	}
	if len(warnings) != 1 || warnings[0].ToolUseID != "t1" {
		t.Errorf("warnings = %+v, want t1 unresolved", warnings)
	}
	if out[0] != chunks[0] {
		t.Errorf("user chunk was replaced")
	}
	if n := len(out[3].(*AIChunk).ToolExecutions); n != 1 {
		t.Errorf("second AI chunk has %d executions, want 1", n)
	}
}
