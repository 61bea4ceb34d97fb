package search

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Zuo-Peng/ai-session-tree/internal/index"
)

func indexed(t *testing.T, sessions map[string]string) *index.DB {
	t.Helper()
	root := t.TempDir()
	for name, content := range sessions {
		path := filepath.Join(root, "proj", name+".jsonl")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	db, err := index.OpenDB(filepath.Join(t.TempDir(), "aist.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := index.IndexAll(db, root, index.Options{}); err != nil {
		t.Fatal(err)
	}
	return db
}

func session(user, reply string) string {
	return `{"type":"user","uuid":"u1","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"` + user + `"}}` + "\n" +
		`{"type":"assistant","uuid":"a1","parentUuid":"u1","timestamp":"2025-06-01T10:00:05Z","message":{"role":"assistant","content":[{"type":"text","text":"` + reply + `"}]}}` + "\n"
}

func TestSearchFTS(t *testing.T) {
	db := indexed(t, map[string]string{
		"a": session("how do goroutines leak", "use a context to stop them"),
		"b": session("bake bread", "knead the dough"),
	})

	res, err := Search(db, Options{Query: "goroutines"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res) != 1 || res[0].SessionKey != "proj/a" || res[0].Kind != "user" {
		t.Fatalf("Search() = %+v", res)
	}
	if !strings.Contains(res[0].Snippet, ">>>goroutines<<<") {
		t.Errorf("Snippet = %q", res[0].Snippet)
	}

	res, err = Search(db, Options{Query: "goroutines", Kind: "ai"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Errorf("Search(kind=ai) = %+v, want none", res)
	}

	res, err = Search(db, Options{Query: "dough", Since: "2030-01-01"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Errorf("Search(since future) = %+v, want none", res)
	}
}

func TestSearchAllHits(t *testing.T) {
	db := indexed(t, map[string]string{
		"a": session("context please", "context explained"),
	})
	res, err := Search(db, Options{Query: "context", AllHits: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Errorf("len(results) = %d, want 2", len(res))
	}
	res, err = Search(db, Options{Query: "context"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Errorf("deduplicated len = %d, want 1", len(res))
	}
}

func TestSearchCJK(t *testing.T) {
	db := indexed(t, map[string]string{
		"zh": session("如何解析日志文件", "逐行读取"),
	})
	res, err := Search(db, Options{Query: "日志"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || !strings.Contains(res[0].Snippet, ">>>日志<<<") {
		t.Errorf("Search() = %+v", res)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	db := indexed(t, nil)
	if _, err := Search(db, Options{Query: "  "}); err == nil {
		t.Errorf("Search(empty) error = nil")
	}
}

func TestMakeSnippet(t *testing.T) {
	tests := []struct {
		text, query string
		want        string
	}{
		{"hello world", "WORLD", "...lo >>>world<<<"},
		{"abcdefghij", "zz", "abcdef..."},
		{"abc", "zz", "abc"},
		{"0123456789target0123456789", "target", "...789>>>target<<<012..."},
	}
	for _, tt := range tests {
		if got := makeSnippet(tt.text, tt.query, 3); got != tt.want {
			t.Errorf("makeSnippet(%q, %q) = %q, want %q", tt.text, tt.query, got, tt.want)
		}
	}
}

func TestFTSQuery(t *testing.T) {
	if got := ftsQuery("foo.bar baz"); got != `"foo.bar" "baz"` {
		t.Errorf("ftsQuery() = %q", got)
	}
	if got := ftsQuery(`"exact phrase"`); got != `"exact phrase"` {
		t.Errorf("ftsQuery() = %q", got)
	}
}
