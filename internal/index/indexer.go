package index

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/Zuo-Peng/ai-session-tree/internal/chunk"
	"github.com/Zuo-Peng/ai-session-tree/internal/logging"
	"github.com/Zuo-Peng/ai-session-tree/internal/reconstruct"
	"github.com/Zuo-Peng/ai-session-tree/internal/scan"
)

const maxTextSize = 8 * 1024 // 8KB for FTS index

type Stats struct {
	Scanned  int
	Updated  int
	Skipped  int
	Pruned   int
	Errors   int
	Warnings int
}

func (s Stats) String() string {
	return fmt.Sprintf("scanned=%d updated=%d skipped=%d pruned=%d errors=%d warnings=%d",
		s.Scanned, s.Updated, s.Skipped, s.Pruned, s.Errors, s.Warnings)
}

type Options struct {
	Workers      int
	MaxLineBytes int
	Logger       *log.Logger
}

// IndexAll reconstructs every changed session under root and stores it.
// Sessions are reconstructed in parallel and written one at a time.
func IndexAll(db *DB, root string, opts Options) (Stats, error) {
	var stats Stats
	logger := logging.OrDiscard(opts.Logger)

	sessions, err := scan.ScanRoot(root)
	if err != nil {
		return stats, fmt.Errorf("scan: %w", err)
	}
	stats.Scanned = len(sessions)

	// track which files we see, for pruning
	seenKeys := make(map[string]struct{})
	var todo []scan.Session
	for _, s := range sessions {
		seenKeys[s.Key] = struct{}{}
		needs, err := needsUpdate(db, s.Key, s.Mtime, s.Size)
		if err != nil {
			stats.Errors++
			logger.Warn("check session", "session", s.Key, "err", err)
			continue
		}
		if !needs {
			stats.Skipped++
			continue
		}
		todo = append(todo, s)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ropts := reconstruct.Options{Workers: 1, MaxLineBytes: opts.MaxLineBytes, Logger: logger}

	results := make([]*reconstruct.Result, len(todo))
	failures := make([]error, len(todo))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, s := range todo {
		i, s := i, s
		g.Go(func() error {
			results[i], failures[i] = reconstruct.ReconstructFiles(s, ropts)
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range todo {
		if failures[i] != nil {
			stats.Errors++
			logger.Warn("reconstruct session", "session", s.Key, "err", failures[i])
			continue
		}
		stats.Warnings += len(results[i].Warnings)
		if err := indexSession(db, s, results[i]); err != nil {
			stats.Errors++
			logger.Warn("index session", "session", s.Key, "err", err)
			continue
		}
		stats.Updated++
	}

	// prune sessions whose files no longer exist
	pruned, err := pruneSessions(db, seenKeys)
	if err != nil {
		return stats, fmt.Errorf("prune: %w", err)
	}
	stats.Pruned = pruned

	return stats, nil
}

func needsUpdate(db *DB, sessionKey string, mtime, size int64) (bool, error) {
	info, err := db.GetSessionInfo(sessionKey)
	if err != nil {
		return false, err
	}
	if info == nil {
		return true, nil // new session
	}
	return info.Mtime != mtime || info.Size != size, nil
}

// Flatten lays out a reconstruction as index rows: main-thread chunks in
// order, each followed by the chunks of the processes it spawned, then
// orphaned processes.
func Flatten(sessionKey string, res *reconstruct.Result) ([]ChunkRow, []ToolRow) {
	var (
		chunks []ChunkRow
		tools  []ToolRow
	)
	var walk func(cs []chunk.Chunk, subagent string)
	add := func(c chunk.Chunk, subagent string) {
		id := len(chunks)
		text := chunk.Text(c)
		if len(text) > maxTextSize {
			text = text[:maxTextSize]
		}
		chunks = append(chunks, ChunkRow{
			SessionKey: sessionKey,
			ChunkID:    id,
			Kind:       c.Kind().String(),
			Ts:         formatTime(c.Span().Start),
			Text:       text,
			LineNumber: chunk.Line(c),
			Subagent:   subagent,
		})
		ai, ok := c.(*chunk.AIChunk)
		if !ok {
			return
		}
		for _, x := range ai.ToolExecutions {
			r := ToolRow{
				SessionKey: sessionKey,
				ChunkID:    id,
				ToolUseID:  x.ToolUseID,
				ToolName:   x.ToolName,
				StartTs:    formatTime(x.Start),
				EndTs:      formatTime(x.End),
				DurationMs: -1,
				Resolved:   x.Resolved(),
				Subagent:   subagent,
			}
			if d, ok := x.Duration(); ok {
				r.DurationMs = d.Milliseconds()
			}
			tools = append(tools, r)
		}
		for _, p := range ai.Processes {
			walk(p.Chunks, p.SubagentID)
		}
	}
	walk = func(cs []chunk.Chunk, subagent string) {
		for _, c := range cs {
			add(c, subagent)
		}
	}

	walk(res.Chunks, "")
	for _, p := range res.Orphans {
		walk(p.Chunks, p.SubagentID)
	}
	return chunks, tools
}

func indexSession(db *DB, s scan.Session, res *reconstruct.Result) error {
	chunks, tools := Flatten(s.Key, res)

	tx, err := db.Raw().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// delete old data first
	if err := deleteSessionTx(tx, s.Key); err != nil {
		return err
	}

	a := res.Activity
	_, err = tx.Exec(
		`INSERT INTO sessions (session_key, file_path, repo_cwd, git_branch, created_at, updated_at, summary, subagents, warnings, mtime, size,
		   input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens, subagent_tokens, context_window, tool_calls, files_read, files_modified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Key,
		s.Path,
		res.Meta.Cwd,
		res.Meta.GitBranch,
		formatTime(res.Meta.Start),
		formatTime(res.Meta.End),
		res.Meta.Summary,
		len(s.Subagents),
		len(res.Warnings),
		s.Mtime,
		s.Size,
		a.Usage.InputTokens,
		a.Usage.OutputTokens,
		a.Usage.CacheReadTokens,
		a.Usage.CacheCreationTokens,
		a.SubagentUsage.Total(),
		a.ContextWindow,
		a.ToolCalls(),
		len(a.FilesRead),
		len(a.FilesModified),
	)
	if err != nil {
		return err
	}

	chunkStmt, err := tx.Prepare(
		`INSERT INTO chunks (session_key, chunk_id, kind, ts, text, line_number, subagent)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	for _, c := range chunks {
		if _, err := chunkStmt.Exec(c.SessionKey, c.ChunkID, c.Kind, c.Ts, c.Text, c.LineNumber, c.Subagent); err != nil {
			return err
		}
	}

	toolStmt, err := tx.Prepare(
		`INSERT INTO tool_executions (session_key, chunk_id, tool_use_id, tool_name, start_ts, end_ts, duration_ms, resolved, subagent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer toolStmt.Close()

	for _, t := range tools {
		if _, err := toolStmt.Exec(t.SessionKey, t.ChunkID, t.ToolUseID, t.ToolName, t.StartTs, t.EndTs, t.DurationMs, t.Resolved, t.Subagent); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func pruneSessions(db *DB, seenKeys map[string]struct{}) (int, error) {
	allKeys, err := db.AllSessionKeys()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for key := range allKeys {
		if _, ok := seenKeys[key]; !ok {
			if err := db.DeleteSession(key); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}
