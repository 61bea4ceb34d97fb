package chunk

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-json-experiment/json"

	"github.com/Zuo-Peng/ai-session-tree/internal/logging"
	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

// LinkTier records how a process was attached.
type LinkTier int

const (
	TierOrphan LinkTier = iota
	Tier1
	Tier2
)

func (t LinkTier) String() string {
	switch t {
	case Tier1:
		return "task-id"
	case Tier2:
		return "time-span"
	default:
		return "orphan"
	}
}

// Process is a subagent transcript built into its own chunks.
type Process struct {
	SubagentID string
	// ParentTaskID is the spawning tool_use id carried by the stream, if any.
	ParentTaskID string
	Chunks       []Chunk
	Start        time.Time
	End          time.Time
	// Activity totals the process's own stream.
	Activity Activity
	// ReportedUsage is what the parent stream saw of this process through
	// progress entries.
	ReportedUsage transcript.Usage

	// Set by LinkSubagents.
	Tier        LinkTier
	ToolUseID   string
	Description string
}

func (p Process) Span() Span {
	return Span{Start: p.Start, End: p.End}
}

// LinkStats counts processes per tier.
type LinkStats struct {
	Tier1   int
	Tier2   int
	Orphans int
}

// LinkSubagents attaches each process to the AIChunk that spawned it.
//
// Tier 1 matches the process's parent task id against the chunks' tool
// invocations. A process without a parent task id is matched by the agent id
// reported in a tool result of the main thread instead. Tier 2 applies only
// to processes with no parent task id: it picks the AIChunk with the shortest
// span containing the process span; ties go to the earlier chunk start, then
// the earlier chunk. A parent task id that names no invocation, and any
// process matched by neither tier, yields an orphan.
//
// Tool executions must already be linked for the agent id lookup to work.
func LinkSubagents(chunks []Chunk, procs []Process, logger *log.Logger) ([]Chunk, []Process, LinkStats, []transcript.Warning) {
	logger = logging.OrDiscard(logger)

	type callRef struct {
		chunk int
		exec  int
	}
	calls := make(map[string]callRef)
	agentTask := make(map[string]string)
	for ci, c := range chunks {
		ai, ok := c.(*AIChunk)
		if !ok {
			continue
		}
		for xi, x := range ai.ToolExecutions {
			calls[x.ToolUseID] = callRef{chunk: ci, exec: xi}
			if id := agentIDOf(x); id != "" {
				agentTask[id] = x.ToolUseID
			}
		}
	}

	attached := make(map[int][]Process)
	var (
		orphans  []Process
		stats    LinkStats
		warnings []transcript.Warning
	)

	for _, p := range procs {
		taskID := p.ParentTaskID
		if taskID == "" {
			taskID = agentTask[p.SubagentID]
		}
		if ref, ok := calls[taskID]; ok && taskID != "" {
			x := chunks[ref.chunk].(*AIChunk).ToolExecutions[ref.exec]
			p.Tier = Tier1
			p.ToolUseID = taskID
			p.Description = describe(x)
			attached[ref.chunk] = append(attached[ref.chunk], p)
			stats.Tier1++
			continue
		}

		if p.ParentTaskID != "" {
			// The stream names its spawner; a time-span guess could pick
			// a different chunk.
			logger.Debug("subagent parent task not found", "agent", p.SubagentID, "task", p.ParentTaskID)
			orphans, stats = orphan(orphans, stats, p)
			warnings = append(warnings, transcript.Warning{
				Kind:       transcript.WarnLinkUnresolved,
				SubagentID: p.SubagentID,
				ToolUseID:  p.ParentTaskID,
				Msg:        "parent task id not found",
			})
			continue
		}

		if ci := tightestContaining(chunks, p.Span()); ci >= 0 {
			logger.Debug("subagent linked by time span", "agent", p.SubagentID, "chunk", ci)
			p.Tier = Tier2
			attached[ci] = append(attached[ci], p)
			stats.Tier2++
			continue
		}

		logger.Debug("orphan subagent", "agent", p.SubagentID)
		orphans, stats = orphan(orphans, stats, p)
		warnings = append(warnings, transcript.Warning{
			Kind:       transcript.WarnLinkUnresolved,
			SubagentID: p.SubagentID,
			Msg:        "no spawning chunk found",
		})
	}

	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	for ci, ps := range attached {
		ai := chunks[ci].(*AIChunk)
		all := make([]Process, 0, len(ai.Processes)+len(ps))
		all = append(all, ai.Processes...)
		all = append(all, ps...)
		out[ci] = ai.WithProcesses(all)
	}
	return out, orphans, stats, warnings
}

func orphan(orphans []Process, stats LinkStats, p Process) ([]Process, LinkStats) {
	p.Tier = TierOrphan
	stats.Orphans++
	return append(orphans, p), stats
}

func tightestContaining(chunks []Chunk, span Span) int {
	best := -1
	var bestSpan Span
	for ci, c := range chunks {
		if c.Kind() != KindAI {
			continue
		}
		cs := c.Span()
		if !cs.Contains(span) {
			continue
		}
		if best < 0 ||
			cs.Duration() < bestSpan.Duration() ||
			(cs.Duration() == bestSpan.Duration() && cs.Start.Before(bestSpan.Start)) {
			best, bestSpan = ci, cs
		}
	}
	return best
}

// agentIDOf returns the agentId reported in a Task tool result.
func agentIDOf(x ToolExecution) string {
	if x.Result == nil || len(x.Result.Extra) == 0 || x.Result.Extra.Kind() != '{' {
		return ""
	}
	var v struct {
		AgentID string `json:"agentId"`
	}
	if err := json.Unmarshal(x.Result.Extra, &v); err != nil {
		return ""
	}
	return v.AgentID
}

func describe(x ToolExecution) string {
	if len(x.Input) == 0 || x.Input.Kind() != '{' {
		return ""
	}
	var v struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(x.Input, &v); err != nil {
		return ""
	}
	return v.Description
}
