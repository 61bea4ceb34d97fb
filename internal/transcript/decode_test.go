package transcript

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeLineUser(t *testing.T) {
	line := `{"type":"user","uuid":"u1","parentUuid":null,"timestamp":"2025-06-01T10:00:00.000Z","sessionId":"s1","cwd":"/repo","gitBranch":"main","message":{"role":"user","content":"hello"}}`
	e, err := DecodeLine([]byte(line), 1)
	if err != nil {
		t.Fatalf("DecodeLine() error = %v", err)
	}
	if e.Type != TypeUser {
		t.Errorf("Type = %v, want user", e.Type)
	}
	if e.ID != "u1" || e.HasParent() {
		t.Errorf("ID = %q, ParentID = %q, want u1 and root", e.ID, e.ParentID)
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if !e.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", e.Timestamp, want)
	}
	if e.SessionID != "s1" || e.Cwd != "/repo" || e.GitBranch != "main" {
		t.Errorf("metadata = %q %q %q", e.SessionID, e.Cwd, e.GitBranch)
	}
	if got := e.Text(); got != "hello" {
		t.Errorf("Text() = %q, want %q", got, "hello")
	}
	if e.Line != 1 {
		t.Errorf("Line = %d, want 1", e.Line)
	}
}

func TestDecodeLineAssistantBlocks(t *testing.T) {
	line := `{"type":"assistant","uuid":"a1","parentUuid":"u1","message":{"role":"assistant","model":"claude-sonnet-4","content":[` +
		`{"type":"thinking","thinking":"hmm"},` +
		`{"type":"text","text":"ok"},` +
		`{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}`
	e, err := DecodeLine([]byte(line), 2)
	if err != nil {
		t.Fatalf("DecodeLine() error = %v", err)
	}
	if e.Model() != "claude-sonnet-4" {
		t.Errorf("Model() = %q", e.Model())
	}
	blocks := e.Blocks()
	if len(blocks) != 3 {
		t.Fatalf("len(Blocks()) = %d, want 3", len(blocks))
	}
	if blocks[0].Type != BlockThinking || blocks[0].Text != "hmm" {
		t.Errorf("block 0 = %+v", blocks[0])
	}
	uses := e.ToolUses()
	if len(uses) != 1 || uses[0].ToolUseID != "t1" || uses[0].Name != "Bash" {
		t.Fatalf("ToolUses() = %+v", uses)
	}
	if !strings.Contains(string(uses[0].Input), `"ls"`) {
		t.Errorf("Input = %s", uses[0].Input)
	}
	if _, ok := e.TextOnly(); ok {
		t.Errorf("TextOnly() ok = true for mixed content")
	}
}

func TestDecodeLineToolResultIsMeta(t *testing.T) {
	line := `{"type":"user","uuid":"r1","parentUuid":"a1","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"done","is_error":true}]}}`
	e, err := DecodeLine([]byte(line), 3)
	if err != nil {
		t.Fatalf("DecodeLine() error = %v", err)
	}
	if !e.IsMeta {
		t.Errorf("IsMeta = false, want true for tool-result-only content")
	}
	if e.SourceToolUseID != "t1" {
		t.Errorf("SourceToolUseID = %q, want t1", e.SourceToolUseID)
	}
	res := e.ToolResults()
	if len(res) != 1 || !res[0].IsError {
		t.Fatalf("ToolResults() = %+v", res)
	}
	if got := ResultText(res[0].Content); got != "done" {
		t.Errorf("ResultText() = %q, want done", got)
	}
}

func TestDecodeLineUnknownType(t *testing.T) {
	line := `{"type":"brand-new","uuid":"x1","parentUuid":"u1","futureField":{"a":1}}`
	e, err := DecodeLine([]byte(line), 4)
	if err != nil {
		t.Fatalf("DecodeLine() error = %v", err)
	}
	if e.Type != TypeUnknown || e.RawType != "brand-new" {
		t.Errorf("Type = %v (%q), want unknown", e.Type, e.RawType)
	}
	if e.ParentID != "u1" {
		t.Errorf("ParentID = %q, want u1", e.ParentID)
	}
	if !strings.Contains(string(e.Extra), "futureField") {
		t.Errorf("Extra = %s, want futureField preserved", e.Extra)
	}
}

func TestDecodeLineWrongFieldKinds(t *testing.T) {
	tests := []struct {
		name string
		line string
		want func(t *testing.T, e Entry)
	}{
		{
			name: "numeric type",
			line: `{"type":5,"uuid":"a","parentUuid":"p","cwd":"/repo"}`,
			want: func(t *testing.T, e Entry) {
				if e.Type != TypeUnknown || e.RawType != "5" {
					t.Errorf("Type = %v (%q), want unknown (5)", e.Type, e.RawType)
				}
				if e.ID != "a" || e.ParentID != "p" || e.Cwd != "/repo" {
					t.Errorf("ID = %q, ParentID = %q, Cwd = %q", e.ID, e.ParentID, e.Cwd)
				}
			},
		},
		{
			name: "string bools",
			line: `{"type":"user","uuid":"u","isMeta":"false","isSidechain":"true","message":{"role":"user","content":"hi"}}`,
			want: func(t *testing.T, e Entry) {
				if e.Type != TypeUser || e.IsMeta || !e.IsSidechain {
					t.Errorf("Type = %v, IsMeta = %v, IsSidechain = %v", e.Type, e.IsMeta, e.IsSidechain)
				}
				if e.Text() != "hi" {
					t.Errorf("Text() = %q, want hi", e.Text())
				}
			},
		},
		{
			name: "unix seconds timestamp",
			line: `{"type":"user","uuid":"u","timestamp":1748772000}`,
			want: func(t *testing.T, e Entry) {
				want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
				if !e.Timestamp.Equal(want) {
					t.Errorf("Timestamp = %v, want %v", e.Timestamp, want)
				}
			},
		},
		{
			name: "unix millis timestamp",
			line: `{"type":"user","uuid":"u","timestamp":1748772000500}`,
			want: func(t *testing.T, e Entry) {
				want := time.Date(2025, 6, 1, 10, 0, 0, 500e6, time.UTC)
				if !e.Timestamp.Equal(want) {
					t.Errorf("Timestamp = %v, want %v", e.Timestamp, want)
				}
			},
		},
		{
			name: "object where string expected",
			line: `{"type":"assistant","uuid":"a","gitBranch":{"x":1},"message":{"role":"assistant","model":7,"content":[{"type":"text","text":"ok"}]}}`,
			want: func(t *testing.T, e Entry) {
				if e.Type != TypeAssistant || e.GitBranch != "" {
					t.Errorf("Type = %v, GitBranch = %q", e.Type, e.GitBranch)
				}
				if e.Model() != "7" || e.Text() != "ok" {
					t.Errorf("Model() = %q, Text() = %q", e.Model(), e.Text())
				}
			},
		},
		{
			name: "missing type",
			line: `{"uuid":"a","parentUuid":"p"}`,
			want: func(t *testing.T, e Entry) {
				if e.Type != TypeUnknown || e.RawType != "" || e.ParentID != "p" {
					t.Errorf("Type = %v (%q), ParentID = %q", e.Type, e.RawType, e.ParentID)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := DecodeLine([]byte(tt.line), 1)
			if err != nil {
				t.Fatalf("DecodeLine() error = %v", err)
			}
			tt.want(t, e)
		})
	}
}

func TestDecodeLineUsage(t *testing.T) {
	line := `{"type":"assistant","uuid":"a1","message":{"id":"msg_1","role":"assistant","content":[],` +
		`"usage":{"input_tokens":100,"output_tokens":"50","cache_read_input_tokens":2000,"cache_creation_input_tokens":30}}}`
	e, err := DecodeLine([]byte(line), 1)
	if err != nil {
		t.Fatalf("DecodeLine() error = %v", err)
	}
	want := Usage{InputTokens: 100, OutputTokens: 50, CacheReadTokens: 2000, CacheCreationTokens: 30}
	if e.Message.Usage == nil || *e.Message.Usage != want {
		t.Fatalf("Usage = %+v, want %+v", e.Message.Usage, want)
	}
	if got := want.Context(); got != 2130 {
		t.Errorf("Context() = %d, want 2130", got)
	}
}

func TestDecodeLineMalformed(t *testing.T) {
	tests := []string{
		`not json`,
		`[1,2,3]`,
		`{"type":"user",`,
		`{"type":"user"} trailing`,
		`{"type":"user"}{"type":"user"}`,
		`{"type":tru}`,
	}
	for _, line := range tests {
		_, err := DecodeLine([]byte(line), 7)
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("DecodeLine(%q) error = %v, want *DecodeError", line, err)
		}
		if de.Kind != Malformed || de.Line != 7 {
			t.Errorf("DecodeLine(%q) = %+v, want malformed at line 7", line, de)
		}
	}
}

func TestDecodeLineSyntheticID(t *testing.T) {
	e, err := DecodeLine([]byte(`{"type":"file-history-snapshot","messageId":"m"}`), 12)
	if err != nil {
		t.Fatalf("DecodeLine() error = %v", err)
	}
	if e.ID != "line-12" {
		t.Errorf("ID = %q, want line-12", e.ID)
	}
	if e.Type != TypeFileHistorySnapshot {
		t.Errorf("Type = %v", e.Type)
	}
}

func TestResultText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"plain"`, "plain"},
		{`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, "a\nb"},
		{`{"k":1}`, `{"k":1}`},
	}
	for _, tt := range tests {
		if got := ResultText([]byte(tt.in)); got != tt.want {
			t.Errorf("ResultText(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
