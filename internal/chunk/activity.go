package chunk

import (
	"github.com/go-json-experiment/json/jsontext"

	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

// Activity summarizes the model usage and tool work of an AI chunk, a
// process or a whole stream.
type Activity struct {
	Usage transcript.Usage
	// ContextWindow is the input-side size of the last model call. Stream
	// totals keep the largest value seen.
	ContextWindow int64
	// SubagentUsage is what spawned subagents reported through progress
	// entries. It is not included in Usage.
	SubagentUsage transcript.Usage

	Tools         map[string]int // tool name -> calls
	FilesRead     []string
	FilesModified []string
	Commands      []string
}

// IsZero reports whether nothing was recorded.
func (a *Activity) IsZero() bool {
	return a.Usage.IsZero() && a.SubagentUsage.IsZero() && a.ContextWindow == 0 &&
		len(a.Tools) == 0 && len(a.FilesRead) == 0 && len(a.FilesModified) == 0 && len(a.Commands) == 0
}

// ToolCalls returns the total number of tool invocations.
func (a *Activity) ToolCalls() int {
	n := 0
	for _, c := range a.Tools {
		n += c
	}
	return n
}

// Merge adds o into a. File lists stay unique in first-seen order.
func (a *Activity) Merge(o Activity) {
	a.Usage = a.Usage.Add(o.Usage)
	a.SubagentUsage = a.SubagentUsage.Add(o.SubagentUsage)
	a.ContextWindow = max(a.ContextWindow, o.ContextWindow)
	for name, n := range o.Tools {
		if a.Tools == nil {
			a.Tools = make(map[string]int)
		}
		a.Tools[name] += n
	}
	a.FilesRead = appendUnique(a.FilesRead, o.FilesRead...)
	a.FilesModified = appendUnique(a.FilesModified, o.FilesModified...)
	a.Commands = append(a.Commands, o.Commands...)
}

var (
	readTools  = map[string]bool{"Read": true, "NotebookRead": true, "Glob": true, "Grep": true}
	writeTools = map[string]bool{"Write": true, "Edit": true, "MultiEdit": true, "NotebookEdit": true}
)

func (a *Activity) addTool(name string, input jsontext.Value) {
	if name == "" {
		return
	}
	if a.Tools == nil {
		a.Tools = make(map[string]int)
	}
	a.Tools[name]++
	switch {
	case readTools[name]:
		if p := inputPath(input); p != "" {
			a.FilesRead = appendUnique(a.FilesRead, p)
		}
	case writeTools[name]:
		if p := inputPath(input); p != "" {
			a.FilesModified = appendUnique(a.FilesModified, p)
		}
	case name == "Bash":
		if cmd := transcript.InputString(input, "command"); cmd != "" {
			a.Commands = append(a.Commands, cmd)
		}
	}
}

func inputPath(input jsontext.Value) string {
	for _, key := range []string{"file_path", "notebook_path", "path"} {
		if p := transcript.InputString(input, key); p != "" {
			return p
		}
	}
	return ""
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		dup := false
		for _, d := range dst {
			if d == it {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, it)
		}
	}
	return dst
}

// usageLedger dedups streamed usage. Lines sharing a message id repeat the
// running counts of one call, so each line contributes only its change.
type usageLedger map[string]transcript.Usage

func (l usageLedger) delta(id string, u transcript.Usage) transcript.Usage {
	if id == "" {
		return u
	}
	prev, seen := l[id]
	l[id] = u
	if !seen {
		return u
	}
	return u.Sub(prev)
}

// SummarizeActivity returns copies of the AIChunks in chunks carrying their
// Activity, plus the stream totals. Usage is deduplicated by message id
// across the whole stream. Each progress report counts toward the chunk that
// holds the spawning tool invocation and toward the process it names, or
// only toward the totals when no chunk holds that invocation.
func SummarizeActivity(chunks []Chunk, progress []transcript.AgentProgress) ([]Chunk, Activity) {
	ledger := usageLedger{}
	acts := make([]*Activity, len(chunks))
	owner := make(map[string]int) // tool_use id -> chunk
	for ci, c := range chunks {
		ai, ok := c.(*AIChunk)
		if !ok {
			continue
		}
		a := &Activity{}
		for _, ce := range ai.Items {
			e := ce.Entry
			if e.Type != transcript.TypeAssistant || e.Message == nil {
				continue
			}
			if u := e.Message.Usage; u != nil {
				a.Usage = a.Usage.Add(ledger.delta(e.Message.ID, *u))
				if n := u.Context(); n > 0 {
					a.ContextWindow = n
				}
			}
			for _, b := range e.ToolUses() {
				a.addTool(b.Name, b.Input)
				owner[b.ToolUseID] = ci
			}
		}
		acts[ci] = a
	}

	var total Activity
	reported := make(map[int][]Process)
	progLedger := usageLedger{}
	for _, p := range progress {
		d := progLedger.delta(p.MessageID, p.Usage)
		ci, ok := owner[p.ToolUseID]
		if !ok {
			total.SubagentUsage = total.SubagentUsage.Add(d)
			continue
		}
		acts[ci].SubagentUsage = acts[ci].SubagentUsage.Add(d)
		ps, ok := reported[ci]
		if !ok {
			ps = append([]Process(nil), chunks[ci].(*AIChunk).Processes...)
			reported[ci] = ps
		}
		if pi := reportTarget(ps, p); pi >= 0 {
			ps[pi].ReportedUsage = ps[pi].ReportedUsage.Add(d)
		}
	}

	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	for ci, a := range acts {
		if a == nil {
			continue
		}
		cp := chunks[ci].(*AIChunk).WithActivity(*a)
		if ps, ok := reported[ci]; ok {
			cp.Processes = ps
		}
		out[ci] = cp
		total.Merge(*a)
	}
	return out, total
}

// reportTarget picks the process a progress report belongs to: the one with
// the reported agent id, else the first spawned by the reported invocation.
func reportTarget(ps []Process, p transcript.AgentProgress) int {
	if p.AgentID != "" {
		for i := range ps {
			if ps[i].SubagentID == p.AgentID {
				return i
			}
		}
	}
	for i := range ps {
		if ps[i].ToolUseID == p.ToolUseID {
			return i
		}
	}
	return -1
}
