package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA cache_size = -64000;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS sessions (
    session_key TEXT PRIMARY KEY,
    file_path   TEXT NOT NULL,
    repo_cwd    TEXT NOT NULL DEFAULT '',
    git_branch  TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL DEFAULT '',
    summary     TEXT NOT NULL DEFAULT '',
    subagents   INTEGER NOT NULL DEFAULT 0,
    warnings    INTEGER NOT NULL DEFAULT 0,
    mtime       INTEGER NOT NULL DEFAULT 0,
    size        INTEGER NOT NULL DEFAULT 0,
    input_tokens          INTEGER NOT NULL DEFAULT 0,
    output_tokens         INTEGER NOT NULL DEFAULT 0,
    cache_read_tokens     INTEGER NOT NULL DEFAULT 0,
    cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
    subagent_tokens       INTEGER NOT NULL DEFAULT 0,
    context_window        INTEGER NOT NULL DEFAULT 0,
    tool_calls            INTEGER NOT NULL DEFAULT 0,
    files_read            INTEGER NOT NULL DEFAULT 0,
    files_modified        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chunks (
    session_key TEXT NOT NULL,
    chunk_id    INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    ts          TEXT NOT NULL DEFAULT '',
    text        TEXT NOT NULL,
    line_number INTEGER NOT NULL DEFAULT 0,
    subagent    TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (session_key, chunk_id)
);

CREATE TABLE IF NOT EXISTS tool_executions (
    session_key TEXT NOT NULL,
    chunk_id    INTEGER NOT NULL,
    tool_use_id TEXT NOT NULL,
    tool_name   TEXT NOT NULL DEFAULT '',
    start_ts    TEXT NOT NULL DEFAULT '',
    end_ts      TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT -1,
    resolved    INTEGER NOT NULL DEFAULT 0,
    subagent    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS tool_executions_session ON tool_executions(session_key);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    text,
    content=chunks,
    content_rowid=rowid,
    tokenize='unicode61'
);

-- triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
END;

CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
    INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);
`

// TimeLayout is how timestamps are stored; it sorts lexically.
const TimeLayout = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

type DB struct {
	db *sql.DB
}

func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	d := &DB{db: db}
	if err := d.addMissingColumns(); err != nil {
		db.Close()
		return nil, fmt.Errorf("add columns: %w", err)
	}
	if err := d.migrateSchemaVersion(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return d, nil
}

// schemaVersion should be bumped whenever reconstruction output changes to
// force a full re-index.
const schemaVersion = "2"

// sessionUsageColumns were added in schema version 2. CREATE TABLE IF NOT
// EXISTS leaves older tables alone, so they are added here.
var sessionUsageColumns = []string{
	"input_tokens", "output_tokens", "cache_read_tokens", "cache_creation_tokens",
	"subagent_tokens", "context_window", "tool_calls", "files_read", "files_modified",
}

func (d *DB) addMissingColumns() error {
	rows, err := d.db.Query("PRAGMA table_info(sessions)")
	if err != nil {
		return err
	}
	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		have[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, col := range sessionUsageColumns {
		if have[col] {
			continue
		}
		if _, err := d.db.Exec("ALTER TABLE sessions ADD COLUMN " + col + " INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) migrateSchemaVersion() error {
	var ver string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&ver)
	if err == nil && ver == schemaVersion {
		return nil
	}
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	// force re-index by resetting all session mtime/size to 0
	if _, err := d.db.Exec("UPDATE sessions SET mtime = 0, size = 0"); err != nil {
		return err
	}
	_, err = d.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Raw() *sql.DB {
	return d.db
}

type SessionInfo struct {
	Mtime int64
	Size  int64
}

func (d *DB) GetSessionInfo(sessionKey string) (*SessionInfo, error) {
	var info SessionInfo
	err := d.db.QueryRow(
		"SELECT mtime, size FROM sessions WHERE session_key = ?",
		sessionKey,
	).Scan(&info.Mtime, &info.Size)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (d *DB) AllSessionKeys() (map[string]struct{}, error) {
	rows, err := d.db.Query("SELECT session_key FROM sessions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

func (d *DB) DeleteSession(sessionKey string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteSessionTx(tx, sessionKey); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteSessionTx(tx *sql.Tx, sessionKey string) error {
	for _, q := range []string{
		"DELETE FROM tool_executions WHERE session_key = ?",
		"DELETE FROM chunks WHERE session_key = ?",
		"DELETE FROM sessions WHERE session_key = ?",
	} {
		if _, err := tx.Exec(q, sessionKey); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) SessionCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

func (d *DB) ChunkCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// FTSCount returns the number of rows in the full-text index.
func (d *DB) FTSCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM chunks_fts").Scan(&n)
	return n, err
}

type SessionRow struct {
	SessionKey string
	FilePath   string
	RepoCwd    string
	GitBranch  string
	CreatedAt  string
	UpdatedAt  string
	Summary    string
	Subagents  int
	Warnings   int

	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	SubagentTokens      int64
	ContextWindow       int64
	ToolCalls           int
	FilesRead           int
	FilesModified       int
}

const sessionColumns = "session_key, file_path, repo_cwd, git_branch, created_at, updated_at, summary, subagents, warnings, " +
	"input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens, subagent_tokens, context_window, tool_calls, files_read, files_modified"

func scanSession(sc interface{ Scan(...any) error }) (SessionRow, error) {
	var s SessionRow
	err := sc.Scan(&s.SessionKey, &s.FilePath, &s.RepoCwd, &s.GitBranch, &s.CreatedAt, &s.UpdatedAt, &s.Summary, &s.Subagents, &s.Warnings,
		&s.InputTokens, &s.OutputTokens, &s.CacheReadTokens, &s.CacheCreationTokens, &s.SubagentTokens, &s.ContextWindow,
		&s.ToolCalls, &s.FilesRead, &s.FilesModified)
	return s, err
}

func (d *DB) GetSessionByKey(sessionKey string) (*SessionRow, error) {
	s, err := scanSession(d.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE session_key = ?", sessionKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns sessions newest first. limit <= 0 means all.
func (d *DB) ListSessions(limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.Query("SELECT "+sessionColumns+" FROM sessions ORDER BY updated_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type ChunkRow struct {
	SessionKey string
	ChunkID    int
	Kind       string
	Ts         string
	Text       string
	LineNumber int
	Subagent   string
}

func (d *DB) GetChunks(sessionKey string) ([]ChunkRow, error) {
	rows, err := d.db.Query(
		"SELECT session_key, chunk_id, kind, ts, text, line_number, subagent FROM chunks WHERE session_key = ? ORDER BY chunk_id",
		sessionKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []ChunkRow
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(&c.SessionKey, &c.ChunkID, &c.Kind, &c.Ts, &c.Text, &c.LineNumber, &c.Subagent); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunk returns one chunk, or nil if it does not exist.
func (d *DB) GetChunk(sessionKey string, chunkID int) (*ChunkRow, error) {
	var c ChunkRow
	err := d.db.QueryRow(
		"SELECT session_key, chunk_id, kind, ts, text, line_number, subagent FROM chunks WHERE session_key = ? AND chunk_id = ?",
		sessionKey, chunkID,
	).Scan(&c.SessionKey, &c.ChunkID, &c.Kind, &c.Ts, &c.Text, &c.LineNumber, &c.Subagent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type ToolRow struct {
	SessionKey string
	ChunkID    int
	ToolUseID  string
	ToolName   string
	StartTs    string
	EndTs      string
	DurationMs int64 // -1 when unknown
	Resolved   bool
	Subagent   string
}

func (d *DB) GetToolExecutions(sessionKey string) ([]ToolRow, error) {
	rows, err := d.db.Query(
		`SELECT session_key, chunk_id, tool_use_id, tool_name, start_ts, end_ts, duration_ms, resolved, subagent
		 FROM tool_executions WHERE session_key = ? ORDER BY chunk_id, start_ts`,
		sessionKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToolRow
	for rows.Next() {
		var r ToolRow
		if err := rows.Scan(&r.SessionKey, &r.ChunkID, &r.ToolUseID, &r.ToolName, &r.StartTs, &r.EndTs, &r.DurationMs, &r.Resolved, &r.Subagent); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetChunksWindow returns a window of chunks around a hit chunk.
// It only loads the necessary rows from the database instead of all chunks.
// startPos is the number of chunks before the returned window.
// totalCount is the total number of chunks in the session.
func (d *DB) GetChunksWindow(sessionKey string, hitChunkID, context int) (chunks []ChunkRow, hitIdx int, startPos int, totalCount int, err error) {
	err = d.db.QueryRow(
		"SELECT COUNT(*) FROM chunks WHERE session_key = ?", sessionKey,
	).Scan(&totalCount)
	if err != nil {
		return nil, -1, 0, 0, err
	}

	// chunk ids are dense, so the id is also the position
	startPos = 0
	limit := totalCount
	if hitChunkID >= 0 && hitChunkID < totalCount {
		startPos = max(hitChunkID-context, 0)
		endPos := min(hitChunkID+context+1, totalCount)
		limit = endPos - startPos
	}

	rows, err := d.db.Query(
		"SELECT session_key, chunk_id, kind, ts, text, line_number, subagent FROM chunks WHERE session_key = ? ORDER BY chunk_id LIMIT ? OFFSET ?",
		sessionKey, limit, startPos,
	)
	if err != nil {
		return nil, -1, 0, 0, err
	}
	defer rows.Close()

	hitIdx = -1
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(&c.SessionKey, &c.ChunkID, &c.Kind, &c.Ts, &c.Text, &c.LineNumber, &c.Subagent); err != nil {
			return nil, -1, 0, 0, err
		}
		if c.ChunkID == hitChunkID {
			hitIdx = len(chunks)
		}
		chunks = append(chunks, c)
	}
	return chunks, hitIdx, startPos, totalCount, rows.Err()
}
