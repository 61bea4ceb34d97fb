package transcript

import (
	"fmt"
	"strings"
)

// WarningKind classifies a non-fatal anomaly found during reconstruction.
type WarningKind int

const (
	WarnDecode WarningKind = iota
	WarnLinkUnresolved
	WarnOrphanReference
	WarnDuplicateEntry
)

func (k WarningKind) String() string {
	switch k {
	case WarnDecode:
		return "decode"
	case WarnLinkUnresolved:
		return "link-unresolved"
	case WarnOrphanReference:
		return "orphan-reference"
	case WarnDuplicateEntry:
		return "duplicate-entry"
	default:
		return "unknown"
	}
}

// Warning is a non-fatal anomaly. Stream is empty for the main thread and the
// subagent id otherwise.
type Warning struct {
	Kind       WarningKind
	Stream     string
	Line       int
	EntryID    string
	ToolUseID  string
	SubagentID string
	Msg        string
}

func (w Warning) String() string {
	var b strings.Builder
	b.WriteString(w.Kind.String())
	if w.Stream != "" {
		fmt.Fprintf(&b, " [%s]", w.Stream)
	}
	if w.Line > 0 {
		fmt.Fprintf(&b, " line %d", w.Line)
	}
	if w.ToolUseID != "" {
		fmt.Fprintf(&b, " tool %s", w.ToolUseID)
	}
	if w.SubagentID != "" {
		fmt.Fprintf(&b, " agent %s", w.SubagentID)
	}
	if w.Msg != "" {
		b.WriteString(": ")
		b.WriteString(w.Msg)
	}
	return b.String()
}

// CountByKind tallies warnings per kind.
func CountByKind(ws []Warning) map[WarningKind]int {
	out := make(map[WarningKind]int)
	for _, w := range ws {
		out[w.Kind]++
	}
	return out
}
