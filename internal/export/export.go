// Package export writes a reconstructed session as JSON, JSONL or YAML.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"gopkg.in/yaml.v3"

	"github.com/Zuo-Peng/ai-session-tree/internal/chunk"
	"github.com/Zuo-Peng/ai-session-tree/internal/reconstruct"
	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatJSONL, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want json, jsonl or yaml)", s)
}

// Extension returns the file extension for f.
func (f Format) Extension() string {
	return string(f)
}

type Session struct {
	SessionID string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Cwd       string    `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	GitBranch string    `json:"git_branch,omitempty" yaml:"git_branch,omitempty"`
	Summary   string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Start     string    `json:"start,omitempty" yaml:"start,omitempty"`
	End       string    `json:"end,omitempty" yaml:"end,omitempty"`
	Links     Links     `json:"links" yaml:"links"`
	Activity  *Activity `json:"activity,omitempty" yaml:"activity,omitempty"`
	Chunks    []Chunk   `json:"chunks" yaml:"chunks"`
	Orphans   []Process `json:"orphans,omitempty" yaml:"orphans,omitempty"`
	Warnings  []Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type Links struct {
	TaskID   int `json:"task_id" yaml:"task_id"`
	TimeSpan int `json:"time_span" yaml:"time_span"`
	Orphaned int `json:"orphaned" yaml:"orphaned"`
}

type Usage struct {
	InputTokens         int64 `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens" yaml:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens" yaml:"cache_read_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens" yaml:"cache_creation_tokens"`
}

type Activity struct {
	Usage         *Usage         `json:"usage,omitempty" yaml:"usage,omitempty"`
	ContextWindow int64          `json:"context_window,omitzero" yaml:"context_window,omitempty"`
	SubagentUsage *Usage         `json:"subagent_usage,omitempty" yaml:"subagent_usage,omitempty"`
	ToolsSummary  map[string]int `json:"tools_summary,omitempty" yaml:"tools_summary,omitempty"`
	FilesRead     []string       `json:"files_read,omitempty" yaml:"files_read,omitempty"`
	FilesModified []string       `json:"files_modified,omitempty" yaml:"files_modified,omitempty"`
	Commands      []string       `json:"commands,omitempty" yaml:"commands,omitempty"`
}

type Chunk struct {
	Kind      string    `json:"kind" yaml:"kind"`
	Start     string    `json:"start,omitempty" yaml:"start,omitempty"`
	End       string    `json:"end,omitempty" yaml:"end,omitempty"`
	Line      int       `json:"line" yaml:"line"`
	Entries   []string  `json:"entries" yaml:"entries"`
	Text      string    `json:"text,omitempty" yaml:"text,omitempty"`
	Activity  *Activity `json:"activity,omitempty" yaml:"activity,omitempty"`
	Tools     []Tool    `json:"tools,omitempty" yaml:"tools,omitempty"`
	Subagents []Process `json:"subagents,omitempty" yaml:"subagents,omitempty"`
	Steps     []Step    `json:"steps,omitempty" yaml:"steps,omitempty"`
}

type Tool struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Input      any    `json:"input,omitempty" yaml:"input,omitempty"`
	Start      string `json:"start,omitempty" yaml:"start,omitempty"`
	End        string `json:"end,omitempty" yaml:"end,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
	Resolved   bool   `json:"resolved" yaml:"resolved"`
	IsError    bool   `json:"is_error,omitzero" yaml:"is_error,omitempty"`
	Result     string `json:"result,omitempty" yaml:"result,omitempty"`
}

type Process struct {
	ID            string    `json:"id" yaml:"id"`
	Link          string    `json:"link" yaml:"link"`
	ParentTaskID  string    `json:"parent_task_id,omitempty" yaml:"parent_task_id,omitempty"`
	ToolUseID     string    `json:"tool_use_id,omitempty" yaml:"tool_use_id,omitempty"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
	Start         string    `json:"start,omitempty" yaml:"start,omitempty"`
	End           string    `json:"end,omitempty" yaml:"end,omitempty"`
	ReportedUsage *Usage    `json:"reported_usage,omitempty" yaml:"reported_usage,omitempty"`
	Activity      *Activity `json:"activity,omitempty" yaml:"activity,omitempty"`
	Chunks        []Chunk   `json:"chunks" yaml:"chunks"`
}

type Step struct {
	Kind      string `json:"kind" yaml:"kind"`
	Entry     string `json:"entry" yaml:"entry"`
	Text      string `json:"text,omitempty" yaml:"text,omitempty"`
	Tool      string `json:"tool,omitempty" yaml:"tool,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty" yaml:"tool_use_id,omitempty"`
	Subagent  string `json:"subagent,omitempty" yaml:"subagent,omitempty"`
	IsError   bool   `json:"is_error,omitzero" yaml:"is_error,omitempty"`
}

type Warning struct {
	Kind     string `json:"kind" yaml:"kind"`
	Stream   string `json:"stream,omitempty" yaml:"stream,omitempty"`
	Line     int    `json:"line,omitzero" yaml:"line,omitempty"`
	Entry    string `json:"entry,omitempty" yaml:"entry,omitempty"`
	Tool     string `json:"tool_use_id,omitempty" yaml:"tool_use_id,omitempty"`
	Subagent string `json:"subagent,omitempty" yaml:"subagent,omitempty"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Write encodes res to w. JSONL writes one main-thread chunk per line with
// no session header.
func Write(w io.Writer, res *reconstruct.Result, f Format) error {
	s := FromResult(res)
	switch f {
	case FormatJSON:
		return json.MarshalWrite(w, s, json.Deterministic(true), jsontext.WithIndent("  "))
	case FormatJSONL:
		enc := jsontext.NewEncoder(w)
		for i := range s.Chunks {
			if err := json.MarshalEncode(enc, &s.Chunks[i], json.Deterministic(true)); err != nil {
				return fmt.Errorf("encode chunk %d: %w", i, err)
			}
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(s)
	}
	return fmt.Errorf("unknown format %q", f)
}

// FromResult converts res into its export form.
func FromResult(res *reconstruct.Result) *Session {
	s := &Session{
		SessionID: res.Meta.SessionID,
		Cwd:       res.Meta.Cwd,
		GitBranch: res.Meta.GitBranch,
		Summary:   res.Meta.Summary,
		Start:     stamp(res.Meta.Start),
		End:       stamp(res.Meta.End),
		Links: Links{
			TaskID:   res.Stats.Tier1,
			TimeSpan: res.Stats.Tier2,
			Orphaned: res.Stats.Orphans,
		},
		Activity: activity(res.Activity),
		Chunks:   chunks(res.Chunks),
	}
	for _, p := range res.Orphans {
		s.Orphans = append(s.Orphans, process(p))
	}
	for _, wn := range res.Warnings {
		s.Warnings = append(s.Warnings, Warning{
			Kind:     wn.Kind.String(),
			Stream:   wn.Stream,
			Line:     wn.Line,
			Entry:    wn.EntryID,
			Tool:     wn.ToolUseID,
			Subagent: wn.SubagentID,
			Message:  wn.Msg,
		})
	}
	return s
}

func chunks(cs []chunk.Chunk) []Chunk {
	out := make([]Chunk, 0, len(cs))
	for _, c := range cs {
		span := c.Span()
		ec := Chunk{
			Kind:  c.Kind().String(),
			Start: stamp(span.Start),
			End:   stamp(span.End),
			Line:  chunk.Line(c),
			Text:  chunk.Text(c),
		}
		for _, e := range c.Entries() {
			ec.Entries = append(ec.Entries, e.Entry.ID)
		}
		if ai, ok := c.(*chunk.AIChunk); ok {
			ec.Activity = activity(ai.Activity)
			for _, x := range ai.ToolExecutions {
				ec.Tools = append(ec.Tools, tool(x))
			}
			for _, p := range ai.Processes {
				ec.Subagents = append(ec.Subagents, process(p))
			}
			for _, st := range ai.Steps {
				ec.Steps = append(ec.Steps, step(ai, st))
			}
		}
		out = append(out, ec)
	}
	return out
}

func tool(x chunk.ToolExecution) Tool {
	t := Tool{
		ID:       x.ToolUseID,
		Name:     x.ToolName,
		Input:    raw(x.Input),
		Start:    stamp(x.Start),
		End:      stamp(x.End),
		Resolved: x.Resolved(),
	}
	if d, ok := x.Duration(); ok {
		ms := d.Milliseconds()
		t.DurationMs = &ms
	}
	if x.Result != nil {
		t.IsError = x.Result.IsError
		t.Result = transcript.ResultText(x.Result.Content)
	}
	return t
}

func process(p chunk.Process) Process {
	return Process{
		ID:            p.SubagentID,
		Link:          p.Tier.String(),
		ParentTaskID:  p.ParentTaskID,
		ToolUseID:     p.ToolUseID,
		Description:   p.Description,
		Start:         stamp(p.Start),
		End:           stamp(p.End),
		ReportedUsage: usage(p.ReportedUsage),
		Activity:      activity(p.Activity),
		Chunks:        chunks(p.Chunks),
	}
}

func usage(u transcript.Usage) *Usage {
	if u.IsZero() {
		return nil
	}
	return &Usage{
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens,
	}
}

func activity(a chunk.Activity) *Activity {
	if a.IsZero() {
		return nil
	}
	return &Activity{
		Usage:         usage(a.Usage),
		ContextWindow: a.ContextWindow,
		SubagentUsage: usage(a.SubagentUsage),
		ToolsSummary:  a.Tools,
		FilesRead:     a.FilesRead,
		FilesModified: a.FilesModified,
		Commands:      a.Commands,
	}
}

func step(c *chunk.AIChunk, st chunk.Step) Step {
	out := Step{Kind: st.Kind().String(), Entry: st.Info().Source.EntryID}
	switch st := st.(type) {
	case *chunk.ThinkingStep:
		out.Text = st.Text
	case *chunk.ToolCallStep:
		out.Tool = st.Name
		out.ToolUseID = st.ToolUseID
	case *chunk.ToolResultStep:
		out.ToolUseID = st.ToolUseID
		out.Text = transcript.ResultText(st.Content)
		out.IsError = st.IsError
	case *chunk.SubagentStep:
		out.ToolUseID = st.ToolUseID
		out.Subagent = st.SubagentID
		if st.ProcessIndex >= 0 && st.ProcessIndex < len(c.Processes) {
			out.Text = c.Processes[st.ProcessIndex].Description
		}
	case *chunk.OutputStep:
		out.Text = st.Text
	case *chunk.InterruptionStep:
		out.Text = st.Text
	}
	return out
}

// raw decodes a JSON snapshot into plain values so every encoder renders
// it as structure rather than bytes.
func raw(v jsontext.Value) any {
	if len(v) == 0 {
		return nil
	}
	var out any
	if err := json.Unmarshal(v, &out); err != nil {
		return string(v)
	}
	return out
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
