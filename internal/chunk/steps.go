package chunk

import (
	"sort"
	"strings"
	"time"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

// StepKind identifies the semantic step variant.
type StepKind int

const (
	StepThinking StepKind = iota
	StepToolCall
	StepToolResult
	StepSubagent
	StepOutput
	StepInterruption
)

func (k StepKind) String() string {
	switch k {
	case StepThinking:
		return "thinking"
	case StepToolCall:
		return "tool_call"
	case StepToolResult:
		return "tool_result"
	case StepSubagent:
		return "subagent"
	case StepOutput:
		return "output"
	case StepInterruption:
		return "interruption"
	default:
		return "unknown"
	}
}

// Step is one of *ThinkingStep, *ToolCallStep, *ToolResultStep,
// *SubagentStep, *OutputStep or *InterruptionStep.
type Step interface {
	Kind() StepKind
	Info() StepInfo
	isStep()
}

// Source points at the entry, and block within it, a step came from. Block
// is -1 when the step covers the whole entry.
type Source struct {
	Pos       int
	Block     int
	EntryID   string
	Timestamp time.Time
}

// StepInfo is shared by every step. Index is the display order within the
// owning chunk.
type StepInfo struct {
	Index  int
	Source Source
}

func (s StepInfo) Info() StepInfo { return s }

type ThinkingStep struct {
	StepInfo
	Text     string
	Redacted bool
}

type ToolCallStep struct {
	StepInfo
	ToolUseID string
	Name      string
	Input     jsontext.Value
}

type ToolResultStep struct {
	StepInfo
	ToolUseID string
	Content   jsontext.Value
	IsError   bool
}

// SubagentStep stands for a linked process. It replaces the ToolCallStep of
// the invocation that spawned it; time-span linked processes are placed by
// start time.
type SubagentStep struct {
	StepInfo
	ToolUseID    string
	ProcessIndex int
	SubagentID   string
}

type OutputStep struct {
	StepInfo
	Text string
}

type InterruptionStep struct {
	StepInfo
	Text string
}

func (*ThinkingStep) Kind() StepKind     { return StepThinking }
func (*ToolCallStep) Kind() StepKind     { return StepToolCall }
func (*ToolResultStep) Kind() StepKind   { return StepToolResult }
func (*SubagentStep) Kind() StepKind     { return StepSubagent }
func (*OutputStep) Kind() StepKind       { return StepOutput }
func (*InterruptionStep) Kind() StepKind { return StepInterruption }

func (*ThinkingStep) isStep()     {}
func (*ToolCallStep) isStep()     {}
func (*ToolResultStep) isStep()   {}
func (*SubagentStep) isStep()     {}
func (*OutputStep) isStep()       {}
func (*InterruptionStep) isStep() {}

// ExtractSteps decomposes c into ordered semantic steps.
func ExtractSteps(c *AIChunk) []Step {
	// A tool invocation can own several processes, e.g. a resumed agent.
	spawned := make(map[string][]int)
	var floating []int
	for i, p := range c.Processes {
		if p.ToolUseID != "" {
			spawned[p.ToolUseID] = append(spawned[p.ToolUseID], i)
		} else {
			floating = append(floating, i)
		}
	}
	byStart := func(idx []int) {
		sort.SliceStable(idx, func(a, b int) bool {
			return c.Processes[idx[a]].Start.Before(c.Processes[idx[b]].Start)
		})
	}
	for _, idx := range spawned {
		byStart(idx)
	}
	byStart(floating)

	var steps []Step
	add := func(s Step) { steps = append(steps, s) }
	info := func(pos, block int, e *transcript.Entry) StepInfo {
		return StepInfo{Source: Source{Pos: pos, Block: block, EntryID: e.ID, Timestamp: e.Timestamp}}
	}
	placeFloating := func(pos int, until time.Time, all bool) {
		for len(floating) > 0 {
			p := c.Processes[floating[0]]
			if !all && (until.IsZero() || !p.Start.Before(until)) {
				return
			}
			st := &SubagentStep{ProcessIndex: floating[0], SubagentID: p.SubagentID}
			st.Source = Source{Pos: pos, Block: -1, Timestamp: p.Start}
			add(st)
			floating = floating[1:]
		}
	}

	for pos, ce := range c.Items {
		e := ce.Entry
		placeFloating(pos, e.Timestamp, false)

		if isInterruption(e) {
			add(&InterruptionStep{StepInfo: info(pos, -1, e), Text: strings.TrimSpace(e.Text())})
		}

		if e.Message != nil && e.Message.StringContent && e.Type == transcript.TypeAssistant {
			if strings.TrimSpace(e.Message.Text) != "" {
				add(&OutputStep{StepInfo: info(pos, -1, e), Text: e.Message.Text})
			}
			continue
		}

		for bi, b := range e.Blocks() {
			switch b.Type {
			case transcript.BlockThinking:
				add(&ThinkingStep{StepInfo: info(pos, bi, e), Text: b.Text})
			case transcript.BlockRedactedThinking:
				add(&ThinkingStep{StepInfo: info(pos, bi, e), Redacted: true})
			case transcript.BlockToolUse:
				if idx, ok := spawned[b.ToolUseID]; ok {
					for _, pi := range idx {
						add(&SubagentStep{
							StepInfo:     info(pos, bi, e),
							ToolUseID:    b.ToolUseID,
							ProcessIndex: pi,
							SubagentID:   c.Processes[pi].SubagentID,
						})
					}
					continue
				}
				add(&ToolCallStep{StepInfo: info(pos, bi, e), ToolUseID: b.ToolUseID, Name: b.Name, Input: b.Input})
			case transcript.BlockToolResult:
				add(&ToolResultStep{StepInfo: info(pos, bi, e), ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
			case transcript.BlockText:
				if e.Type == transcript.TypeAssistant && strings.TrimSpace(b.Text) != "" {
					add(&OutputStep{StepInfo: info(pos, bi, e), Text: b.Text})
				}
			}
		}
	}
	placeFloating(len(c.Items)-1, time.Time{}, true)

	for i, s := range steps {
		setIndex(s, i)
	}
	return steps
}

// isInterruption reports a user-authored entry inside an AI run: a marker
// left by stopping a response, or an interleaved correction.
func isInterruption(e *transcript.Entry) bool {
	if e.Type != transcript.TypeUser || e.IsMeta {
		return false
	}
	return strings.TrimSpace(e.Text()) != ""
}

func setIndex(s Step, i int) {
	switch s := s.(type) {
	case *ThinkingStep:
		s.Index = i
	case *ToolCallStep:
		s.Index = i
	case *ToolResultStep:
		s.Index = i
	case *SubagentStep:
		s.Index = i
	case *OutputStep:
		s.Index = i
	case *InterruptionStep:
		s.Index = i
	}
}

// ExtractAllSteps returns copies of the AIChunks in chunks carrying their
// semantic steps.
func ExtractAllSteps(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		if ai, ok := c.(*AIChunk); ok {
			out[i] = ai.WithSteps(ExtractSteps(ai))
			continue
		}
		out[i] = c
	}
	return out
}

// Text is the searchable text of a chunk: the entry text for single-entry
// chunks, the output and thinking text for AI chunks.
func Text(c Chunk) string {
	ai, ok := c.(*AIChunk)
	if !ok {
		entries := c.Entries()
		if len(entries) == 0 {
			return ""
		}
		return entries[0].Entry.Text()
	}
	steps := ai.Steps
	if steps == nil {
		steps = ExtractSteps(ai)
	}
	var parts []string
	for _, s := range steps {
		switch s := s.(type) {
		case *OutputStep:
			parts = append(parts, s.Text)
		case *ThinkingStep:
			if s.Text != "" {
				parts = append(parts, s.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
