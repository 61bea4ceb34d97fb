package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/ai-session-tree/internal/chunk"
	"github.com/Zuo-Peng/ai-session-tree/internal/reconstruct"
	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

type TreeOptions struct {
	Width    int  // truncate lines to this many columns (0 = 100)
	Steps    bool // list semantic steps under AI chunks
	Warnings bool
	Plain    bool // no styling
}

type treeWriter struct {
	w    io.Writer
	opts TreeOptions
	err  error
}

func (t *treeWriter) paint(s lipgloss.Style, text string) string {
	if t.opts.Plain {
		return text
	}
	return s.Render(text)
}

func (t *treeWriter) line(indent int, parts ...string) {
	if t.err != nil {
		return
	}
	prefix := strings.Repeat("  ", indent)
	_, t.err = fmt.Fprintln(t.w, prefix+strings.Join(parts, " "))
}

// text flattens s onto one line and truncates it to the space left after
// indent and the leading label.
func (t *treeWriter) text(s string, indent, used int) string {
	s = strings.Join(strings.Fields(s), " ")
	room := t.opts.Width - indent*2 - used - 1
	if room < 10 {
		room = 10
	}
	return runewidth.Truncate(s, room, "…")
}

// Tree writes res as an indented tree: one line per chunk, AI chunks with
// their linked subagent processes nested below.
func Tree(w io.Writer, res *reconstruct.Result, opts TreeOptions) error {
	if opts.Width <= 0 {
		opts.Width = 100
	}
	t := &treeWriter{w: w, opts: opts}

	m := res.Meta
	header := fmt.Sprintf("session %s", orDash(m.SessionID))
	if m.Cwd != "" {
		header += "  " + m.Cwd
	}
	if m.GitBranch != "" {
		header += " (" + m.GitBranch + ")"
	}
	if !m.Start.IsZero() {
		header += fmt.Sprintf("  %s → %s", m.Start.Local().Format("2006-01-02 15:04"), m.End.Local().Format("15:04"))
	}
	t.line(0, t.paint(styleTitle, header))
	t.line(0, t.paint(styleDim, fmt.Sprintf("%d chunks, subagents linked: %d by task id, %d by time span, %d orphaned",
		len(res.Chunks), res.Stats.Tier1, res.Stats.Tier2, res.Stats.Orphans)))
	if u := res.Activity.Usage; !u.IsZero() {
		t.line(0, t.paint(styleDim, fmt.Sprintf("tokens: in %s  out %s  cache read %s  context %s",
			FormatTokens(u.InputTokens+u.CacheCreationTokens), FormatTokens(u.OutputTokens),
			FormatTokens(u.CacheReadTokens), FormatTokens(res.Activity.ContextWindow))))
	}
	if len(res.Warnings) > 0 {
		t.line(0, t.paint(styleDim, "warnings: "+warningCounts(res.Warnings)))
	}

	t.chunks(res.Chunks, 0)

	if len(res.Orphans) > 0 {
		t.line(0, t.paint(styleTitle, "orphaned subagents"))
		for i := range res.Orphans {
			t.process(&res.Orphans[i], 1)
		}
	}

	if opts.Warnings && len(res.Warnings) > 0 {
		t.line(0, t.paint(styleTitle, fmt.Sprintf("warnings (%d)", len(res.Warnings))))
		for _, wn := range res.Warnings {
			t.line(1, t.paint(styleError, "!"), wn.String())
		}
	}
	return t.err
}

func (t *treeWriter) chunks(cs []chunk.Chunk, indent int) {
	for _, c := range cs {
		ts := clock(c.Span().Start)
		switch c := c.(type) {
		case *chunk.UserChunk:
			label := t.paint(styleUser, "USER  ")
			t.line(indent, label, t.paint(styleDim, ts), t.text(c.Entry.Entry.Text(), indent, 15))
		case *chunk.SystemChunk:
			label := t.paint(styleSystem, "SYS   ")
			t.line(indent, label, t.paint(styleDim, ts), t.text(c.Entry.Entry.Text(), indent, 15))
		case *chunk.CompactChunk:
			t.line(indent, t.paint(styleCompact, "── compacted ──"), t.paint(styleDim, ts))
		case *chunk.AIChunk:
			t.ai(c, indent, ts)
		}
	}
}

func (t *treeWriter) ai(c *chunk.AIChunk, indent int, ts string) {
	summary := fmt.Sprintf("%d entries", len(c.Items))
	if n := len(c.ToolExecutions); n > 0 {
		summary += fmt.Sprintf(", %d tools", n)
	}
	if n := len(c.Processes); n > 0 {
		summary += fmt.Sprintf(", %d subagents", n)
	}
	head := ""
	for _, s := range c.Steps {
		if o, ok := s.(*chunk.OutputStep); ok {
			head = o.Text
			break
		}
	}
	t.line(indent, t.paint(styleAI, "AI    "), t.paint(styleDim, ts), t.paint(styleDim, "["+summary+"]"),
		t.text(head, indent, 17+len(summary)))

	if !t.opts.Steps {
		for i := range c.Processes {
			t.process(&c.Processes[i], indent+1)
		}
		return
	}

	execs := make(map[string]chunk.ToolExecution, len(c.ToolExecutions))
	for _, x := range c.ToolExecutions {
		execs[x.ToolUseID] = x
	}
	for _, s := range c.Steps {
		t.step(c, s, execs, indent+1)
	}
}

func (t *treeWriter) step(c *chunk.AIChunk, s chunk.Step, execs map[string]chunk.ToolExecution, indent int) {
	switch s := s.(type) {
	case *chunk.ThinkingStep:
		text := s.Text
		if s.Redacted {
			text = "[redacted]"
		}
		t.line(indent, t.paint(styleThinking, "thinking"), t.paint(styleThinking, t.text(text, indent, 9)))
	case *chunk.ToolCallStep:
		status := "pending"
		if x, ok := execs[s.ToolUseID]; ok && x.Resolved() {
			status = "ok"
			if x.Result.IsError {
				status = t.paint(styleError, "error")
			}
			if d, ok := x.Duration(); ok {
				status += " " + d.Round(10*time.Millisecond).String()
			}
		}
		t.line(indent, t.paint(styleTool, "tool"), s.Name, t.paint(styleDim, status),
			t.text(string(s.Input), indent, 6+len(s.Name)+len(status)))
	case *chunk.ToolResultStep:
		label := t.paint(styleDim, "result")
		if s.IsError {
			label = t.paint(styleError, "result")
		}
		t.line(indent, label, t.text(transcript.ResultText(s.Content), indent, 7))
	case *chunk.SubagentStep:
		p := &c.Processes[s.ProcessIndex]
		t.process(p, indent)
	case *chunk.OutputStep:
		t.line(indent, t.paint(styleAI, "output"), t.text(s.Text, indent, 7))
	case *chunk.InterruptionStep:
		t.line(indent, t.paint(styleError, "interrupted"), t.text(s.Text, indent, 12))
	}
}

func (t *treeWriter) process(p *chunk.Process, indent int) {
	desc := p.Description
	if desc == "" {
		desc = p.ParentTaskID
	}
	t.line(indent, t.paint(styleSubagent, "subagent "+p.SubagentID),
		t.paint(styleDim, "("+p.Tier.String()+")"), t.text(desc, indent, 20+len(p.SubagentID)))
	t.chunks(p.Chunks, indent+1)
}

func warningCounts(ws []transcript.Warning) string {
	counts := transcript.CountByKind(ws)
	var parts []string
	for k := transcript.WarnDecode; k <= transcript.WarnDuplicateEntry; k++ {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	return strings.Join(parts, " ")
}

// FormatTokens abbreviates n as 950, 12.3k or 4.1M.
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1e6, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1e3, 'f', 1, 64) + "k"
	default:
		return strconv.FormatInt(n, 10)
	}
}

func clock(ts time.Time) string {
	if ts.IsZero() {
		return "--:--:--"
	}
	return ts.Local().Format("15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
