// Package chunk groups classified entries into display chunks and enriches AI
// chunks with tool executions, linked subagent processes and semantic steps.
//
// Every stage returns new values; a chunk handed to a later stage is never
// modified in place.
package chunk

import (
	"time"

	"github.com/Zuo-Peng/ai-session-tree/internal/classify"
)

// Kind identifies the chunk variant.
type Kind int

const (
	KindUser Kind = iota
	KindAI
	KindSystem
	KindCompact
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAI:
		return "ai"
	case KindSystem:
		return "system"
	case KindCompact:
		return "compact"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindUser, KindAI, KindSystem, KindCompact} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Chunk is one of *UserChunk, *SystemChunk, *CompactChunk or *AIChunk.
type Chunk interface {
	Kind() Kind
	Entries() []classify.Entry
	Span() Span
	isChunk()
}

// Span is a time interval. A zero Start means no entry carried a timestamp.
type Span struct {
	Start time.Time
	End   time.Time
}

func (s Span) IsZero() bool {
	return s.Start.IsZero()
}

func (s Span) Duration() time.Duration {
	if s.IsZero() {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Contains reports whether o lies within s, bounds included.
func (s Span) Contains(o Span) bool {
	if s.IsZero() || o.IsZero() {
		return false
	}
	return !o.Start.Before(s.Start) && !o.End.After(s.End)
}

// Extend widens s to include t. Zero times are ignored.
func (s Span) Extend(t time.Time) Span {
	if t.IsZero() {
		return s
	}
	if s.Start.IsZero() || t.Before(s.Start) {
		s.Start = t
	}
	if s.End.IsZero() || t.After(s.End) {
		s.End = t
	}
	return s
}

func spanOf(entries []classify.Entry) Span {
	var s Span
	for _, ce := range entries {
		s = s.Extend(ce.Entry.Timestamp)
	}
	return s
}

// UserChunk is a single user turn.
type UserChunk struct {
	Entry classify.Entry
}

// SystemChunk is a single local command output.
type SystemChunk struct {
	Entry classify.Entry
}

// CompactChunk marks a compaction boundary.
type CompactChunk struct {
	Entry classify.Entry
}

// AIChunk is a run of consecutive AI entries plus the data derived from them.
type AIChunk struct {
	Items []classify.Entry

	ToolExecutions []ToolExecution
	Processes      []Process
	Steps          []Step
	Activity       Activity
}

func (*UserChunk) Kind() Kind    { return KindUser }
func (*SystemChunk) Kind() Kind  { return KindSystem }
func (*CompactChunk) Kind() Kind { return KindCompact }
func (*AIChunk) Kind() Kind      { return KindAI }

func (c *UserChunk) Entries() []classify.Entry    { return []classify.Entry{c.Entry} }
func (c *SystemChunk) Entries() []classify.Entry  { return []classify.Entry{c.Entry} }
func (c *CompactChunk) Entries() []classify.Entry { return []classify.Entry{c.Entry} }
func (c *AIChunk) Entries() []classify.Entry      { return c.Items }

func (c *UserChunk) Span() Span    { return spanOf(c.Entries()) }
func (c *SystemChunk) Span() Span  { return spanOf(c.Entries()) }
func (c *CompactChunk) Span() Span { return spanOf(c.Entries()) }
func (c *AIChunk) Span() Span      { return spanOf(c.Items) }

func (*UserChunk) isChunk()    {}
func (*SystemChunk) isChunk()  {}
func (*CompactChunk) isChunk() {}
func (*AIChunk) isChunk()      {}

// clone returns a shallow copy whose slices may be replaced without touching c.
func (c *AIChunk) clone() *AIChunk {
	cp := *c
	return &cp
}

// WithToolExecutions returns a copy of c carrying execs.
func (c *AIChunk) WithToolExecutions(execs []ToolExecution) *AIChunk {
	cp := c.clone()
	cp.ToolExecutions = execs
	return cp
}

// WithProcesses returns a copy of c carrying procs.
func (c *AIChunk) WithProcesses(procs []Process) *AIChunk {
	cp := c.clone()
	cp.Processes = procs
	return cp
}

// WithSteps returns a copy of c carrying steps.
func (c *AIChunk) WithSteps(steps []Step) *AIChunk {
	cp := c.clone()
	cp.Steps = steps
	return cp
}

// WithActivity returns a copy of c carrying a.
func (c *AIChunk) WithActivity(a Activity) *AIChunk {
	cp := c.clone()
	cp.Activity = a
	return cp
}

// Line returns the source line of the chunk's first entry.
func Line(c Chunk) int {
	entries := c.Entries()
	if len(entries) == 0 {
		return 0
	}
	return entries[0].Entry.Line
}

// Build groups classified entries, in stream order, into chunks. HardNoise is
// dropped; consecutive AI entries share one AIChunk; every other category
// closes the pending AI run and becomes a chunk of its own.
func Build(entries []classify.Entry) []Chunk {
	var (
		out []Chunk
		buf []classify.Entry
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		out = append(out, &AIChunk{Items: buf})
		buf = nil
	}

	for _, ce := range entries {
		switch ce.Category {
		case classify.HardNoise:
		case classify.User:
			flush()
			out = append(out, &UserChunk{Entry: ce})
		case classify.System:
			flush()
			out = append(out, &SystemChunk{Entry: ce})
		case classify.Compact:
			flush()
			out = append(out, &CompactChunk{Entry: ce})
		case classify.AI:
			buf = append(buf, ce)
		}
	}
	flush()
	return out
}
