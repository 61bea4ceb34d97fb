package search

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/Zuo-Peng/ai-session-tree/internal/index"
)

type Result struct {
	SessionKey string
	ChunkID    int
	UpdatedAt  string
	RepoCwd    string
	Summary    string
	Snippet    string
	Kind       string
	Subagent   string
	Rank       float64
}

type Options struct {
	Query string
	Kind  string // "" = all, else user, ai, system or compact
	Since string // "" = no filter, e.g. "2024-01-01"
	Limit int
	// AllHits keeps every matching chunk instead of the best one per session.
	AllHits bool
}

// containsCJK returns true if the string contains any CJK Unified Ideograph.
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// makeSnippet extracts a snippet around the first occurrence of query in text.
func makeSnippet(text, query string, contextChars int) string {
	runes := []rune(text)
	lower := []rune(strings.ToLower(text))
	qRunes := []rune(strings.ToLower(query))

	pos := -1
	if len(lower) == len(runes) {
		pos = indexRunes(lower, qRunes)
	}
	if pos < 0 {
		// no match, return head
		if len(runes) > contextChars*2 {
			return string(runes[:contextChars*2]) + "..."
		}
		return text
	}

	start := max(pos-contextChars, 0)
	end := min(pos+len(qRunes)+contextChars, len(runes))
	prefix, suffix := "", ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}
	return prefix + string(runes[start:pos]) +
		">>>" + string(runes[pos:pos+len(qRunes)]) + "<<<" +
		string(runes[pos+len(qRunes):end]) + suffix
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j := range sub {
			if s[i+j] != sub[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func Search(db *index.DB, opts Options) ([]Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if strings.TrimSpace(opts.Query) == "" {
		return nil, fmt.Errorf("empty query")
	}

	// Fetch more results before dedup so we still have enough after
	origLimit := opts.Limit
	if !opts.AllHits {
		opts.Limit = origLimit * 3
	}

	var results []Result
	var err error
	if containsCJK(opts.Query) {
		results, err = searchLike(db, opts)
	} else {
		results, err = searchFTS(db, opts)
	}
	if err != nil {
		return nil, err
	}
	if opts.AllHits {
		return results, nil
	}

	// Deduplicate: keep only the best-ranked result per session
	seen := make(map[string]bool)
	var deduped []Result
	for _, r := range results {
		if seen[r.SessionKey] {
			continue
		}
		seen[r.SessionKey] = true
		deduped = append(deduped, r)
		if len(deduped) >= origLimit {
			break
		}
	}
	return deduped, nil
}

func filters(opts Options) ([]string, []any) {
	var conditions []string
	var args []any
	if opts.Kind != "" {
		conditions = append(conditions, "c.kind = ?")
		args = append(args, opts.Kind)
	}
	if opts.Since != "" {
		conditions = append(conditions, "s.updated_at >= ?")
		args = append(args, opts.Since)
	}
	return conditions, args
}

func searchFTS(db *index.DB, opts Options) ([]Result, error) {
	conditions := []string{"chunks_fts MATCH ?"}
	args := []any{ftsQuery(opts.Query)}
	more, moreArgs := filters(opts)
	conditions = append(conditions, more...)
	args = append(args, moreArgs...)

	query := fmt.Sprintf(`
		SELECT
			c.session_key,
			c.chunk_id,
			s.updated_at,
			s.repo_cwd,
			s.summary,
			snippet(chunks_fts, 0, '>>>','<<<', '...', 40) as snip,
			c.kind,
			c.subagent,
			bm25(chunks_fts, 1.0) as rank
		FROM chunks_fts
		JOIN chunks c ON chunks_fts.rowid = c.rowid
		JOIN sessions s ON c.session_key = s.session_key
		WHERE %s
		ORDER BY rank
		LIMIT ?
	`, strings.Join(conditions, " AND "))
	args = append(args, opts.Limit)

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// ftsQuery quotes each term so punctuation in code identifiers is not read
// as FTS5 syntax. Queries that already use quotes are passed through.
func ftsQuery(q string) string {
	if strings.ContainsAny(q, `"*`) {
		return q
	}
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = `"` + f + `"`
	}
	return strings.Join(fields, " ")
}

func searchLike(db *index.DB, opts Options) ([]Result, error) {
	// LIKE match for CJK substring search
	conditions := []string{"c.text LIKE ?"}
	args := []any{"%" + opts.Query + "%"}
	more, moreArgs := filters(opts)
	conditions = append(conditions, more...)
	args = append(args, moreArgs...)

	query := fmt.Sprintf(`
		SELECT
			c.session_key,
			c.chunk_id,
			s.updated_at,
			s.repo_cwd,
			s.summary,
			c.text,
			c.kind,
			c.subagent
		FROM chunks c
		JOIN sessions s ON c.session_key = s.session_key
		WHERE %s
		ORDER BY s.updated_at DESC
		LIMIT ?
	`, strings.Join(conditions, " AND "))
	args = append(args, opts.Limit)

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var fullText string
		if err := rows.Scan(
			&r.SessionKey, &r.ChunkID, &r.UpdatedAt,
			&r.RepoCwd, &r.Summary,
			&fullText, &r.Kind, &r.Subagent,
		); err != nil {
			return nil, err
		}
		r.Snippet = makeSnippet(fullText, opts.Query, 30)
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanResults(rows *sql.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(
			&r.SessionKey, &r.ChunkID, &r.UpdatedAt,
			&r.RepoCwd, &r.Summary,
			&r.Snippet, &r.Kind, &r.Subagent, &r.Rank,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
