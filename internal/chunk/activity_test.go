package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

func usageLine(id, parent, msgID string, sec int, u transcript.Usage, blocks ...string) string {
	return fmt.Sprintf(`{"type":"assistant","uuid":%q,"parentUuid":%q,"timestamp":%q,"message":{"id":%q,"role":"assistant","content":[%s],`+
		`"usage":{"input_tokens":%d,"output_tokens":%d,"cache_read_input_tokens":%d,"cache_creation_input_tokens":%d}}}`,
		id, parent, ts(sec), msgID, strings.Join(blocks, ","),
		u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheCreationTokens)
}

func toolCall(id, name, input string) string {
	return fmt.Sprintf(`{"type":"tool_use","id":%q,"name":%q,"input":%s}`, id, name, input)
}

func TestSummarizeActivity(t *testing.T) {
	chunks := Build(classified(t,
		userLine("u1", "", "fix it", 0),
		usageLine("a1", "u1", "m1", 1, transcript.Usage{InputTokens: 100, OutputTokens: 10, CacheReadTokens: 1000, CacheCreationTokens: 50},
			toolCall("t0", "Read", `{"file_path":"/a.go"}`)),
		// Same message streamed again with a higher running output count.
		usageLine("a2", "a1", "m1", 2, transcript.Usage{InputTokens: 100, OutputTokens: 40, CacheReadTokens: 1000, CacheCreationTokens: 50},
			toolCall("t1", "Task", `{"description":"survey"}`)),
		toolResultLine("r1", "a2", "t1", "t1", 30),
		usageLine("a3", "r1", "m2", 31, transcript.Usage{InputTokens: 20, OutputTokens: 5, CacheReadTokens: 1200},
			toolCall("t2", "Edit", `{"file_path":"/a.go"}`),
			toolCall("t3", "Bash", `{"command":"go test ./..."}`),
			toolCall("t4", "Read", `{"file_path":"/a.go"}`)),
		userLine("u2", "a3", "next", 40),
		usageLine("a4", "u2", "m3", 41, transcript.Usage{InputTokens: 1, OutputTokens: 1},
			toolCall("t5", "Write", `{"file_path":"/b.go"}`)),
	))
	if len(chunks) != 4 {
		t.Fatalf("len(chunks) = %d, want 4", len(chunks))
	}
	chunks[1] = chunks[1].(*AIChunk).WithProcesses([]Process{
		{SubagentID: "ag0", ToolUseID: "t1"},
		{SubagentID: "ag1", ToolUseID: "t1"},
	})
	progress := []transcript.AgentProgress{
		{ToolUseID: "t1", AgentID: "ag1", MessageID: "s1", Usage: transcript.Usage{InputTokens: 500, OutputTokens: 200}},
		{ToolUseID: "t1", AgentID: "ag1", MessageID: "s1", Usage: transcript.Usage{InputTokens: 500, OutputTokens: 250}},
		{ToolUseID: "t9", MessageID: "s9", Usage: transcript.Usage{InputTokens: 7}},
	}

	out, total := SummarizeActivity(chunks, progress)

	first := out[1].(*AIChunk).Activity
	want := Activity{
		Usage:         transcript.Usage{InputTokens: 120, OutputTokens: 45, CacheReadTokens: 2200, CacheCreationTokens: 50},
		ContextWindow: 1220,
		SubagentUsage: transcript.Usage{InputTokens: 500, OutputTokens: 250},
		Tools:         map[string]int{"Read": 2, "Task": 1, "Edit": 1, "Bash": 1},
		FilesRead:     []string{"/a.go"},
		FilesModified: []string{"/a.go"},
		Commands:      []string{"go test ./..."},
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("chunk activity mismatch (-want +got):\n%s", diff)
	}

	procs := out[1].(*AIChunk).Processes
	if !procs[0].ReportedUsage.IsZero() {
		t.Errorf("ag0 ReportedUsage = %+v, want zero", procs[0].ReportedUsage)
	}
	if got := procs[1].ReportedUsage; got != (transcript.Usage{InputTokens: 500, OutputTokens: 250}) {
		t.Errorf("ag1 ReportedUsage = %+v", got)
	}
	if len(chunks[1].(*AIChunk).Processes) != 2 || !chunks[1].(*AIChunk).Processes[1].ReportedUsage.IsZero() {
		t.Errorf("input processes were modified")
	}

	if total.Usage != (transcript.Usage{InputTokens: 121, OutputTokens: 46, CacheReadTokens: 2200, CacheCreationTokens: 50}) {
		t.Errorf("total Usage = %+v", total.Usage)
	}
	if total.SubagentUsage != (transcript.Usage{InputTokens: 507, OutputTokens: 250}) {
		t.Errorf("total SubagentUsage = %+v", total.SubagentUsage)
	}
	if total.ContextWindow != 1220 || total.ToolCalls() != 6 {
		t.Errorf("total ContextWindow = %d, ToolCalls() = %d", total.ContextWindow, total.ToolCalls())
	}
	if diff := cmp.Diff([]string{"/a.go", "/b.go"}, total.FilesModified); diff != "" {
		t.Errorf("FilesModified mismatch (-want +got):\n%s", diff)
	}
	if _, ok := out[0].(*UserChunk); !ok || out[0] != chunks[0] {
		t.Errorf("user chunk replaced")
	}
}

func TestUsageLedger(t *testing.T) {
	l := usageLedger{}
	u := transcript.Usage{OutputTokens: 10}
	if got := l.delta("", u); got != u {
		t.Errorf("delta(no id) = %+v", got)
	}
	l.delta("m", u)
	if got := l.delta("m", transcript.Usage{OutputTokens: 25}); got.OutputTokens != 15 {
		t.Errorf("delta(repeat) = %+v, want 15 output tokens", got)
	}
}
