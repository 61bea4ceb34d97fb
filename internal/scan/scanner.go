package scan

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-json-experiment/json"
)

const agentPrefix = "agent-"

// Layout tells where a subagent file was found.
type Layout int

const (
	// LayoutNested is <dir>/<session>/subagents/agent-<id>.jsonl.
	LayoutNested Layout = iota
	// LayoutLegacy is <dir>/agent-<id>.jsonl next to the session file.
	LayoutLegacy
)

func (l Layout) String() string {
	if l == LayoutLegacy {
		return "legacy"
	}
	return "nested"
}

type Subagent struct {
	ID     string
	Path   string
	Layout Layout
}

// Session is one main transcript plus its subagent transcripts. Mtime and
// Size cover all of its files so a change in any of them is noticed.
type Session struct {
	Key       string
	Path      string
	ID        string
	Subagents []Subagent
	Mtime     int64
	Size      int64
}

// ScanRoot finds every session under root. A missing root yields no sessions.
func ScanRoot(root string) ([]Session, error) {
	var mains []string
	legacy := make(map[string][]string) // dir -> agent files

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable dirs
		}
		if info.IsDir() {
			if filepath.Base(path) == "subagents" {
				return filepath.SkipDir
			}
			return nil
		}
		base := filepath.Base(path)
		if filepath.Ext(base) != ".jsonl" || strings.Contains(base, "sessions-index") {
			return nil
		}
		if strings.HasPrefix(base, agentPrefix) {
			dir := filepath.Dir(path)
			legacy[dir] = append(legacy[dir], path)
			return nil
		}
		mains = append(mains, path)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	owners := make(map[string]string) // legacy agent file -> session id
	for _, files := range legacy {
		for _, f := range files {
			owners[f] = firstSessionID(f)
		}
	}

	sessions := make([]Session, 0, len(mains))
	for _, path := range mains {
		s, err := newSession(root, path)
		if err != nil {
			continue
		}
		s.Subagents = nestedSubagents(path)
		for _, f := range legacy[filepath.Dir(path)] {
			if owners[f] == s.ID {
				s.Subagents = append(s.Subagents, Subagent{ID: agentID(f), Path: f, Layout: LayoutLegacy})
			}
		}
		finish(&s)
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Key < sessions[j].Key })
	return sessions, nil
}

// Open describes the single session at path, discovering its subagents in
// both layouts. root may be empty, in which case the key is the path.
func Open(root, path string) (Session, error) {
	s, err := newSession(root, path)
	if err != nil {
		return Session{}, err
	}
	subs, err := FindSubagents(path)
	if err != nil {
		return Session{}, err
	}
	s.Subagents = subs
	finish(&s)
	return s, nil
}

// FindSubagents returns the subagent transcripts of the session at mainPath.
func FindSubagents(mainPath string) ([]Subagent, error) {
	id := sessionID(mainPath)
	subs := nestedSubagents(mainPath)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(mainPath), agentPrefix+"*.jsonl"))
	if err != nil {
		return nil, err
	}
	for _, f := range matches {
		if firstSessionID(f) == id {
			subs = append(subs, Subagent{ID: agentID(f), Path: f, Layout: LayoutLegacy})
		}
	}
	return uniqueSubagents(subs), nil
}

func newSession(root, path string) (Session, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Session{}, err
	}
	key := path
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			key = rel
		}
	}
	return Session{
		Key:   strings.TrimSuffix(filepath.ToSlash(key), ".jsonl"),
		Path:  path,
		ID:    sessionID(path),
		Mtime: info.ModTime().Unix(),
		Size:  info.Size(),
	}, nil
}

func finish(s *Session) {
	s.Subagents = uniqueSubagents(s.Subagents)
	for _, sub := range s.Subagents {
		info, err := os.Stat(sub.Path)
		if err != nil {
			continue
		}
		if m := info.ModTime().Unix(); m > s.Mtime {
			s.Mtime = m
		}
		s.Size += info.Size()
	}
}

func nestedSubagents(mainPath string) []Subagent {
	dir := filepath.Join(filepath.Dir(mainPath), sessionID(mainPath), "subagents")
	matches, _ := filepath.Glob(filepath.Join(dir, agentPrefix+"*.jsonl"))
	subs := make([]Subagent, 0, len(matches))
	for _, f := range matches {
		subs = append(subs, Subagent{ID: agentID(f), Path: f, Layout: LayoutNested})
	}
	return subs
}

// uniqueSubagents sorts subs by id and keeps one file per id. When an agent
// exists in both layouts the nested copy wins.
func uniqueSubagents(subs []Subagent) []Subagent {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].ID != subs[j].ID {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].Layout < subs[j].Layout
	})
	out := subs[:0]
	for _, sub := range subs {
		if n := len(out); n > 0 && out[n-1].ID == sub.ID {
			continue
		}
		out = append(out, sub)
	}
	return out
}

func sessionID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

func agentID(path string) string {
	return strings.TrimPrefix(sessionID(path), agentPrefix)
}

// firstSessionID returns the first sessionId found in the leading lines of
// a transcript.
func firstSessionID(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for i := 0; i < 20 && sc.Scan(); i++ {
		var rec struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if rec.SessionID != "" {
			return rec.SessionID
		}
	}
	return ""
}
