package transcript

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/Zuo-Peng/ai-session-tree/internal/logging"
)

// DefaultMaxLineBytes bounds a single line; longer lines are skipped with a
// warning.
const DefaultMaxLineBytes = 10 * 1024 * 1024 // 10MB

// Log is the arena of one stream's entries, indexed by position. It is
// read-only once Read returns.
type Log struct {
	Stream  string
	Entries []Entry

	byID map[string]int
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.Entries)
}

// Lookup returns the position of the entry with the given id.
func (l *Log) Lookup(id string) (int, bool) {
	pos, ok := l.byID[id]
	return pos, ok
}

// Parent returns the position of the parent of the entry at pos. It reports
// false for roots and for parents that do not precede the entry.
func (l *Log) Parent(pos int) (int, bool) {
	if pos < 0 || pos >= len(l.Entries) {
		return 0, false
	}
	e := &l.Entries[pos]
	if !e.HasParent() {
		return 0, false
	}
	p, ok := l.byID[e.ParentID]
	if !ok || p >= pos {
		return 0, false
	}
	return p, true
}

// ReadOptions tunes Read.
type ReadOptions struct {
	MaxLineBytes int
	Logger       *log.Logger
}

// Read decodes every line of r into a Log. Malformed lines, duplicate ids and
// dangling parent references become warnings; only a failing reader is
// returned as an error.
func Read(r io.Reader, stream string, opts ReadOptions) (*Log, []Warning, error) {
	logger := logging.OrDiscard(opts.Logger)
	maxLine := opts.MaxLineBytes
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}

	l := &Log{Stream: stream, byID: make(map[string]int)}
	var warnings []Warning

	br := bufio.NewReaderSize(r, 64*1024)
	lineNo := 0
	for {
		line, tooLong, err := readLine(br, maxLine)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, warnings, fmt.Errorf("read %s: %w", stream, err)
		}
		if line == nil && errors.Is(err, io.EOF) {
			break
		}
		lineNo++

		switch {
		case tooLong:
			logger.Debug("skip overlong line", "stream", stream, "line", lineNo)
			warnings = append(warnings, Warning{
				Kind:   WarnDecode,
				Stream: stream,
				Line:   lineNo,
				Msg:    fmt.Sprintf("line exceeds %d bytes", maxLine),
			})
		case len(bytes.TrimSpace(line)) == 0:
			// blank
		default:
			l.add(line, lineNo, logger, &warnings)
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	return l, warnings, nil
}

func (l *Log) add(line []byte, lineNo int, logger *log.Logger, warnings *[]Warning) {
	e, err := DecodeLine(line, lineNo)
	if err != nil {
		logger.Debug("skip malformed line", "stream", l.Stream, "line", lineNo, "err", err)
		*warnings = append(*warnings, Warning{
			Kind:   WarnDecode,
			Stream: l.Stream,
			Line:   lineNo,
			Msg:    err.Error(),
		})
		return
	}

	if _, dup := l.byID[e.ID]; dup {
		*warnings = append(*warnings, Warning{
			Kind:    WarnDuplicateEntry,
			Stream:  l.Stream,
			Line:    lineNo,
			EntryID: e.ID,
			Msg:     "duplicate entry id, keeping first occurrence",
		})
		return
	}

	if e.HasParent() {
		if _, ok := l.byID[e.ParentID]; !ok {
			logger.Debug("orphan parent reference", "stream", l.Stream, "line", lineNo, "parent", e.ParentID)
			*warnings = append(*warnings, Warning{
				Kind:    WarnOrphanReference,
				Stream:  l.Stream,
				Line:    lineNo,
				EntryID: e.ID,
				Msg:     fmt.Sprintf("parent %s not found among earlier entries", e.ParentID),
			})
		}
	}

	l.byID[e.ID] = len(l.Entries)
	l.Entries = append(l.Entries, e)
}

// readLine returns the next line without its terminator. Lines longer than
// max are consumed and reported with tooLong set and a non-nil empty line.
// At end of input it returns a nil line and io.EOF.
func readLine(br *bufio.Reader, max int) (line []byte, tooLong bool, err error) {
	var buf []byte
	for {
		frag, err := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(frag) > max+1 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && (len(buf) > 0 || tooLong) {
				if buf == nil {
					buf = []byte{}
				}
				return trimEOL(buf), tooLong, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return nil, false, io.EOF
			}
			return nil, false, err
		}
		if buf == nil {
			buf = []byte{}
		}
		return trimEOL(buf), tooLong, nil
	}
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}
