package chunk

import (
	"fmt"
	"time"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/Zuo-Peng/ai-session-tree/internal/classify"
	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

// ToolExecution pairs a tool invocation with its result. End is zero and
// Result nil while the result is missing.
type ToolExecution struct {
	ToolUseID string
	ToolName  string
	Input     jsontext.Value
	Start     time.Time
	End       time.Time
	Result    *ToolResult

	// CallPos and ResultPos index the owning chunk's entries. ResultPos is
	// -1 when unresolved.
	CallPos   int
	ResultPos int
}

// ToolResult is the snapshot of a tool's output.
type ToolResult struct {
	Content jsontext.Value
	IsError bool
	// Extra is the entry-level toolUseResult payload, if any.
	Extra jsontext.Value
}

func (x ToolExecution) Resolved() bool {
	return x.Result != nil
}

// Duration reports End-Start when both are known.
func (x ToolExecution) Duration() (time.Duration, bool) {
	if x.Start.IsZero() || x.End.IsZero() {
		return 0, false
	}
	return x.End.Sub(x.Start), true
}

// LinkTools matches tool invocations in items to their results. Invocations
// come from assistant entries. Results are taken first from internal user
// entries naming the invocation in sourceToolUseID, then from any tool_result
// block with a matching id. Unmatched invocations stay in the output with no
// result and yield one LinkUnresolved warning each.
func LinkTools(items []classify.Entry) ([]ToolExecution, []transcript.Warning) {
	var execs []ToolExecution
	byID := make(map[string]int)

	for pos, ce := range items {
		e := ce.Entry
		if e.Type != transcript.TypeAssistant {
			continue
		}
		for _, b := range e.ToolUses() {
			if b.ToolUseID == "" {
				continue
			}
			if _, seen := byID[b.ToolUseID]; seen {
				continue
			}
			byID[b.ToolUseID] = len(execs)
			execs = append(execs, ToolExecution{
				ToolUseID: b.ToolUseID,
				ToolName:  b.Name,
				Input:     b.Input,
				Start:     e.Timestamp,
				CallPos:   pos,
				ResultPos: -1,
			})
		}
	}
	if len(execs) == 0 {
		return nil, nil
	}

	attach := func(i, pos int, e *transcript.Entry, b *transcript.Block) {
		r := &ToolResult{Extra: e.ToolUseResult}
		if b != nil {
			r.Content = b.Content
			r.IsError = b.IsError
		}
		execs[i].End = e.Timestamp
		execs[i].Result = r
		execs[i].ResultPos = pos
	}

	for pos, ce := range items {
		e := ce.Entry
		if e.Type != transcript.TypeUser || !e.IsMeta || e.SourceToolUseID == "" {
			continue
		}
		i, ok := byID[e.SourceToolUseID]
		if !ok || execs[i].Resolved() {
			continue
		}
		attach(i, pos, e, resultBlock(e, e.SourceToolUseID))
	}

	for pos, ce := range items {
		e := ce.Entry
		results := e.ToolResults()
		for j := range results {
			i, ok := byID[results[j].ToolUseID]
			if !ok || execs[i].Resolved() {
				continue
			}
			attach(i, pos, e, &results[j])
		}
	}

	var warnings []transcript.Warning
	for _, x := range execs {
		if x.Resolved() {
			continue
		}
		call := items[x.CallPos].Entry
		warnings = append(warnings, transcript.Warning{
			Kind:      transcript.WarnLinkUnresolved,
			Line:      call.Line,
			EntryID:   call.ID,
			ToolUseID: x.ToolUseID,
			Msg:       fmt.Sprintf("no result for %s call", x.ToolName),
		})
	}
	return execs, warnings
}

// resultBlock returns the tool_result block of e for id, falling back to its
// only tool_result block.
func resultBlock(e *transcript.Entry, id string) *transcript.Block {
	results := e.ToolResults()
	for i := range results {
		if results[i].ToolUseID == id {
			return &results[i]
		}
	}
	if len(results) == 1 {
		return &results[0]
	}
	return nil
}

// LinkAllTools runs LinkTools over every AIChunk and returns enriched copies.
func LinkAllTools(chunks []Chunk) ([]Chunk, []transcript.Warning) {
	out := make([]Chunk, len(chunks))
	var warnings []transcript.Warning
	for i, c := range chunks {
		ai, ok := c.(*AIChunk)
		if !ok {
			out[i] = c
			continue
		}
		execs, ws := LinkTools(ai.Items)
		out[i] = ai.WithToolExecutions(execs)
		warnings = append(warnings, ws...)
	}
	return out, warnings
}
