package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/ai-session-tree/internal/index"
)

const (
	ansiReset   = "\033[0m"
	ansiUser    = "\033[1;34m" // bold blue
	ansiAI      = "\033[1;32m" // bold green
	ansiSystem  = "\033[33m"
	ansiDim     = "\033[2m"
	ansiHit     = "\033[43m" // yellow background
	ansiKeyword = "\033[1;31m"
)

type PreviewOptions struct {
	HitChunkID int    // -1 for none
	Context    int    // chunks before/after hit to show (0 = 10, <0 = all)
	Width      int    // wrap width (0 = no wrap)
	Query      string // terms to highlight
}

var ftsOperators = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "NEAR": true,
}

// highlightKeywords wraps case-insensitive matches of query terms in ANSI
// bold red. FTS operators and quote/star syntax are ignored.
func highlightKeywords(text, query string) string {
	var terms []string
	for _, t := range strings.Fields(query) {
		t = strings.Trim(t, `"*`)
		if t == "" || ftsOperators[strings.ToUpper(t)] {
			continue
		}
		terms = append(terms, t)
	}
	for _, term := range terms {
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			idx := strings.Index(strings.ToLower(text[i:]), lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			end := pos + len(term)
			if end > len(text) {
				break
			}
			colored := ansiKeyword + text[pos:end] + ansiReset
			text = text[:pos] + colored + text[end:]
			i = pos + len(colored)
		}
	}
	return text
}

func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks line into pieces of at most maxWidth visible columns.
// ANSI escape sequences are copied through without counting.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var out []string
	var cur strings.Builder
	w := 0
	for i := 0; i < len(line); {
		if line[i] == '\033' && i+1 < len(line) && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}
		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)
		if w+rw > maxWidth && w > 0 {
			out = append(out, cur.String())
			cur.Reset()
			w = 0
		}
		cur.WriteRune(r)
		w += rw
		i += size
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

func kindLabel(kind string) (string, string) {
	switch kind {
	case "user":
		return "USER", ansiUser
	case "ai":
		return "AI", ansiAI
	case "system":
		return "SYS", ansiSystem
	case "compact":
		return "COMPACT", ansiDim
	}
	return strings.ToUpper(kind), ansiDim
}

// Preview renders indexed chunks around opts.HitChunkID. It returns the
// text and the 0-based output line of the hit chunk header (-1 if none).
func Preview(db *index.DB, sessionKey string, opts PreviewOptions) (string, int, error) {
	if opts.Context == 0 {
		opts.Context = 10
	}
	if opts.Context < 0 {
		opts.HitChunkID = -1
	}

	sess, err := db.GetSessionByKey(sessionKey)
	if err != nil {
		return "", -1, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return "", -1, fmt.Errorf("session not found: %s", sessionKey)
	}

	chunks, hitIdx, startPos, total, err := db.GetChunksWindow(sessionKey, opts.HitChunkID, opts.Context)
	if err != nil {
		return "", -1, fmt.Errorf("get chunks: %w", err)
	}
	if total == 0 {
		return "(empty session)", -1, nil
	}
	after := total - startPos - len(chunks)

	var b strings.Builder
	hitLine := -1
	n := 0
	writeLine := func(s string) {
		for _, wl := range wrapLine(s, opts.Width) {
			b.WriteString(wl)
			b.WriteByte('\n')
			n++
		}
	}

	header := fmt.Sprintf("--- %s %s", sessionKey, sess.RepoCwd)
	if sess.GitBranch != "" {
		header += " (" + sess.GitBranch + ")"
	}
	writeLine(ansiDim + header + " ---" + ansiReset)
	if startPos > 0 {
		writeLine(fmt.Sprintf("%s... (%d chunks before) ...%s", ansiDim, startPos, ansiReset))
	}

	sep := ansiDim + strings.Repeat("-", 50) + ansiReset
	for i, c := range chunks {
		if i > 0 {
			writeLine(sep)
		}
		label, color := kindLabel(c.Kind)
		if c.Subagent != "" {
			label += " @" + c.Subagent
		}
		if i == hitIdx {
			hitLine = n
			writeLine(fmt.Sprintf("%s>> %s > %s <<%s", ansiHit, label, c.Ts, ansiReset))
		} else {
			writeLine(fmt.Sprintf("%s%s >%s %s%s%s", color, label, ansiReset, ansiDim, c.Ts, ansiReset))
		}
		text := highlightKeywords(c.Text, opts.Query)
		for _, l := range strings.Split(indentLines(text, "  "), "\n") {
			writeLine(l)
		}
		writeLine("")
	}

	if after > 0 {
		writeLine(fmt.Sprintf("%s... (%d chunks after) ...%s", ansiDim, after, ansiReset))
	}
	return b.String(), hitLine, nil
}
