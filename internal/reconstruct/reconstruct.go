// Package reconstruct turns a main transcript and its subagent transcripts
// into an enriched chunk tree.
package reconstruct

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/Zuo-Peng/ai-session-tree/internal/chunk"
	"github.com/Zuo-Peng/ai-session-tree/internal/classify"
	"github.com/Zuo-Peng/ai-session-tree/internal/logging"
	"github.com/Zuo-Peng/ai-session-tree/internal/scan"
	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

// Stream is one named transcript. Subagent streams are named by agent id;
// the main stream's name may be empty.
type Stream struct {
	Name   string
	Reader io.Reader
}

type Options struct {
	// Workers bounds how many subagent streams are processed at once.
	// Zero means runtime.NumCPU.
	Workers      int
	MaxLineBytes int
	Logger       *log.Logger
}

// Meta summarizes the main stream.
type Meta struct {
	SessionID string
	Cwd       string
	GitBranch string
	Summary   string
	Start     time.Time
	End       time.Time
	Entries   int
}

type Result struct {
	Chunks   []chunk.Chunk
	Orphans  []chunk.Process
	Warnings []transcript.Warning
	Stats    chunk.LinkStats
	Meta     Meta
	// Activity totals the main stream. Subagent streams are totaled on
	// their processes.
	Activity chunk.Activity
}

// StreamError reports a stream that could not be opened or read.
type StreamError struct {
	Stream string
	Path   string
	Err    error
}

func (e *StreamError) Error() string {
	name := e.Path
	if name == "" {
		name = e.Stream
	}
	if name == "" {
		name = "main stream"
	}
	return fmt.Sprintf("read %s: %v", name, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// source is a subagent stream that is opened by the worker processing it.
type source struct {
	name string
	path string
	open func() (io.ReadCloser, error)
}

func readerSource(s Stream) source {
	return source{name: s.Name, open: func() (io.ReadCloser, error) {
		return io.NopCloser(s.Reader), nil
	}}
}

func fileSource(sub scan.Subagent) source {
	return source{name: sub.ID, path: sub.Path, open: func() (io.ReadCloser, error) {
		return os.Open(sub.Path)
	}}
}

// Reconstruct decodes, classifies, chunks and links main and subagents.
// Subagent streams are independent and run in parallel. Anomalies inside a
// stream are returned as warnings; only a failing reader is an error.
func Reconstruct(main Stream, subagents []Stream, opts Options) (*Result, error) {
	srcs := make([]source, len(subagents))
	for i, s := range subagents {
		srcs[i] = readerSource(s)
	}
	return reconstruct(main, srcs, opts)
}

func reconstruct(main Stream, subagents []source, opts Options) (*Result, error) {
	logger := logging.OrDiscard(opts.Logger)
	ropts := transcript.ReadOptions{MaxLineBytes: opts.MaxLineBytes, Logger: logger}

	mainLog, warnings, err := transcript.Read(main.Reader, main.Name, ropts)
	if err != nil {
		return nil, &StreamError{Stream: main.Name, Err: unwrapRead(err)}
	}
	chunks, ws := chunk.LinkAllTools(chunk.Build(classify.ClassifyLog(mainLog)))
	warnings = append(warnings, stamp(ws, main.Name)...)

	procs, pws, err := buildProcesses(subagents, ropts, opts.Workers)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, pws...)

	chunks, orphans, stats, lws := chunk.LinkSubagents(chunks, procs, logger)
	warnings = append(warnings, lws...)
	if stats.Tier2 > 0 || stats.Orphans > 0 {
		logger.Debug("subagent links", "tier1", stats.Tier1, "tier2", stats.Tier2, "orphans", stats.Orphans)
	}
	chunks, activity := chunk.SummarizeActivity(chunks, mainLog.AgentProgress())

	return &Result{
		Chunks:   chunk.ExtractAllSteps(chunks),
		Orphans:  orphans,
		Warnings: warnings,
		Stats:    stats,
		Meta:     metaOf(mainLog),
		Activity: activity,
	}, nil
}

type processResult struct {
	proc     chunk.Process
	warnings []transcript.Warning
}

func buildProcesses(srcs []source, ropts transcript.ReadOptions, workers int) ([]chunk.Process, []transcript.Warning, error) {
	if len(srcs) == 0 {
		return nil, nil, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]processResult, len(srcs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, src := range srcs {
		i, src := i, src
		g.Go(func() error {
			r, err := buildProcess(src, ropts)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	procs := make([]chunk.Process, 0, len(results))
	var warnings []transcript.Warning
	for _, r := range results {
		procs = append(procs, r.proc)
		warnings = append(warnings, r.warnings...)
	}
	sort.SliceStable(procs, func(i, j int) bool { return procs[i].Start.Before(procs[j].Start) })
	return procs, warnings, nil
}

func buildProcess(src source, ropts transcript.ReadOptions) (processResult, error) {
	rc, err := src.open()
	if err != nil {
		return processResult{}, &StreamError{Stream: src.name, Path: src.path, Err: err}
	}
	defer rc.Close()

	l, warnings, err := transcript.Read(rc, src.name, ropts)
	if err != nil {
		return processResult{}, &StreamError{Stream: src.name, Path: src.path, Err: unwrapRead(err)}
	}
	chunks, ws := chunk.LinkAllTools(chunk.Build(classify.ClassifyLog(l)))
	warnings = append(warnings, stamp(ws, src.name)...)
	chunks, activity := chunk.SummarizeActivity(chunks, l.AgentProgress())

	var span chunk.Span
	for i := range l.Entries {
		span = span.Extend(l.Entries[i].Timestamp)
	}
	return processResult{
		proc: chunk.Process{
			SubagentID:   src.name,
			ParentTaskID: parentTaskID(l),
			Chunks:       chunk.ExtractAllSteps(chunks),
			Start:        span.Start,
			End:          span.End,
			Activity:     activity,
		},
		warnings: warnings,
	}, nil
}

// parentTaskID returns the first parentToolUseID among the entries up to and
// including the first assistant entry.
func parentTaskID(l *transcript.Log) string {
	for i := range l.Entries {
		e := &l.Entries[i]
		if e.ParentToolUseID != "" {
			return e.ParentToolUseID
		}
		if e.Type == transcript.TypeAssistant {
			break
		}
	}
	return ""
}

func metaOf(l *transcript.Log) Meta {
	m := Meta{Entries: l.Len()}
	var span chunk.Span
	for i := range l.Entries {
		e := &l.Entries[i]
		span = span.Extend(e.Timestamp)
		if m.SessionID == "" {
			m.SessionID = e.SessionID
		}
		if m.Cwd == "" {
			m.Cwd = e.Cwd
		}
		if m.GitBranch == "" {
			m.GitBranch = e.GitBranch
		}
		if e.Type == transcript.TypeSummary && e.Summary != "" {
			m.Summary = e.Summary
		}
	}
	m.Start, m.End = span.Start, span.End
	if m.Summary == "" {
		m.Summary = firstUserText(l)
	}
	return m
}

const maxSummaryRunes = 120

func firstUserText(l *transcript.Log) string {
	for i := range l.Entries {
		e := &l.Entries[i]
		if classify.Classify(e) != classify.User {
			continue
		}
		r := []rune(e.Text())
		if len(r) > maxSummaryRunes {
			r = r[:maxSummaryRunes]
		}
		return string(r)
	}
	return ""
}

func stamp(ws []transcript.Warning, stream string) []transcript.Warning {
	for i := range ws {
		if ws[i].Stream == "" {
			ws[i].Stream = stream
		}
	}
	return ws
}

// unwrapRead strips the "read <stream>" prefix added by transcript.Read so
// StreamError does not repeat it.
func unwrapRead(err error) error {
	if u := errors.Unwrap(err); u != nil {
		return u
	}
	return err
}

// ReconstructFiles reconstructs the files of s. Subagent files are opened
// by the worker that reads them, so at most Options.Workers of them are open
// at once.
func ReconstructFiles(s scan.Session, opts Options) (*Result, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &StreamError{Path: s.Path, Err: err}
	}
	defer f.Close()

	srcs := make([]source, len(s.Subagents))
	for i, sub := range s.Subagents {
		srcs[i] = fileSource(sub)
	}
	res, err := reconstruct(Stream{Reader: f}, srcs, opts)
	if err != nil {
		var se *StreamError
		if errors.As(err, &se) && se.Path == "" && se.Stream == "" {
			se.Path = s.Path
		}
		return nil, err
	}
	return res, nil
}
