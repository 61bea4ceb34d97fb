package classify

import (
	"strings"
	"testing"

	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

func readLog(t *testing.T, lines ...string) *transcript.Log {
	t.Helper()
	l, _, err := transcript.Read(strings.NewReader(strings.Join(lines, "\n")), "", transcript.ReadOptions{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return l
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Category
	}{
		{"user text", `{"type":"user","uuid":"1","message":{"role":"user","content":"hello"}}`, User},
		{"user text blocks", `{"type":"user","uuid":"1","parentUuid":"0","message":{"role":"user","content":[{"type":"text","text":"fix it"}]}}`, User},
		{"assistant root", `{"type":"assistant","uuid":"1","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}`, AI},
		{"synthetic assistant", `{"type":"assistant","uuid":"1","parentUuid":"0","message":{"model":"<synthetic>","content":[]}}`, HardNoise},
		{"system", `{"type":"system","uuid":"1","parentUuid":"0","subtype":"info"}`, HardNoise},
		{"snapshot", `{"type":"file-history-snapshot","messageId":"m"}`, HardNoise},
		{"queue op", `{"type":"queue-operation","operation":"enqueue"}`, HardNoise},
		{"summary", `{"type":"summary","summary":"s","leafUuid":"x"}`, HardNoise},
		{"rootless progress", `{"type":"progress","uuid":"1","data":{}}`, HardNoise},
		{"progress", `{"type":"progress","uuid":"1","parentUuid":"0","data":{}}`, AI},
		{"rootless unknown", `{"type":"whatever","uuid":"1"}`, HardNoise},
		{"reminder only", `{"type":"user","uuid":"1","message":{"role":"user","content":"<system-reminder>be nice</system-reminder>"}}`, HardNoise},
		{"caveat only", `{"type":"user","uuid":"1","isMeta":true,"message":{"role":"user","content":"<local-command-caveat>Caveat</local-command-caveat>"}}`, HardNoise},
		{"reminder plus text", `{"type":"user","uuid":"1","message":{"role":"user","content":"<system-reminder>x</system-reminder> and more"}}`, User},
		{"compact", `{"type":"user","uuid":"1","isCompactSummary":true,"message":{"role":"user","content":"summary of before"}}`, Compact},
		{"local stdout", `{"type":"user","uuid":"1","parentUuid":"0","message":{"role":"user","content":"<local-command-stdout>ok</local-command-stdout>"}}`, System},
		{"local stderr", `{"type":"user","uuid":"1","parentUuid":"0","message":{"role":"user","content":"<local-command-stderr>bad</local-command-stderr>"}}`, System},
		{"tool result", `{"type":"user","uuid":"1","parentUuid":"0","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t","content":"<local-command-stdout>"}]}}`, AI},
		{"meta text", `{"type":"user","uuid":"1","parentUuid":"0","isMeta":true,"message":{"role":"user","content":"expanded command"}}`, AI},
		{"interruption", `{"type":"user","uuid":"1","parentUuid":"0","message":{"role":"user","content":[{"type":"text","text":"[Request interrupted by user]"}]}}`, AI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := transcript.DecodeLine([]byte(tt.line), 1)
			if err != nil {
				t.Fatalf("DecodeLine() error = %v", err)
			}
			if got := Classify(&e); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyTotal(t *testing.T) {
	l := readLog(t,
		`{"type":"user","uuid":"1","message":{"role":"user","content":"a"}}`,
		`{"type":"assistant","uuid":"2","parentUuid":"1","message":{"content":[{"type":"text","text":"b"}]}}`,
		`{"type":"system","uuid":"3","parentUuid":"2"}`,
		`{"type":"progress","uuid":"4","parentUuid":"2"}`,
		`{"type":"other","uuid":"5","parentUuid":"4"}`,
		`{"type":"summary","summary":"x"}`,
	)
	got := ClassifyLog(l)
	if len(got) != l.Len() {
		t.Fatalf("ClassifyLog() len = %d, want %d", len(got), l.Len())
	}
	for i, ce := range got {
		if ce.Pos != i || ce.Entry != &l.Entries[i] {
			t.Errorf("entry %d: Pos = %d, Entry mismatch", i, ce.Pos)
		}
		switch ce.Category {
		case AI, User, System, HardNoise, Compact:
		default:
			t.Errorf("entry %d: category %d out of range", i, ce.Category)
		}
	}
}

func TestIsFilteredTag(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"<system-reminder>x</system-reminder>", true},
		{"  <local-command-caveat>y</local-command-caveat>\n", true},
		{"<system-reminder>a</system-reminder><system-reminder>b</system-reminder>", false},
		{"text <system-reminder>x</system-reminder>", false},
		{"<command-name>/clear</command-name>", false},
	}
	for _, tt := range tests {
		if got := IsFilteredTag(tt.in); got != tt.want {
			t.Errorf("IsFilteredTag(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
