package open

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Zuo-Peng/ai-session-tree/internal/index"
)

// OpenSession opens the transcript behind sessionKey in $EDITOR, at the
// source line of chunkID when it is >= 0. Chunks from a subagent open that
// subagent's transcript.
func OpenSession(db *index.DB, sessionKey string, chunkID int) error {
	session, err := db.GetSessionByKey(sessionKey)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session not found: %s", sessionKey)
	}

	path := session.FilePath
	line := 1
	if chunkID >= 0 {
		c, err := db.GetChunk(sessionKey, chunkID)
		if err != nil {
			return fmt.Errorf("get chunk: %w", err)
		}
		if c == nil {
			return fmt.Errorf("chunk %d not found in %s", chunkID, sessionKey)
		}
		if c.LineNumber > 0 {
			line = c.LineNumber
		}
		if c.Subagent != "" {
			path = subagentPath(session.FilePath, c.Subagent)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file not found: %s", path)
	}

	name, args := editorArgs(os.Getenv("EDITOR"), path, line)
	cmd := exec.Command(name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// subagentPath finds the transcript of agentID next to mainPath, trying the
// nested layout first.
func subagentPath(mainPath, agentID string) string {
	name := "agent-" + agentID + ".jsonl"
	nested := filepath.Join(strings.TrimSuffix(mainPath, ".jsonl"), "subagents", name)
	if _, err := os.Stat(nested); err == nil {
		return nested
	}
	return filepath.Join(filepath.Dir(mainPath), name)
}

// editorArgs builds the command line that opens path at line. The editor
// string may carry its own flags, e.g. "code -r".
func editorArgs(editor, path string, line int) (string, []string) {
	fields := strings.Fields(editor)
	if len(fields) == 0 {
		fields = []string{"less"}
	}
	name, args := fields[0], fields[1:]
	base := filepath.Base(name)
	switch {
	case strings.Contains(base, "vim"), base == "vi", base == "nano", strings.Contains(base, "less"):
		args = append(args, "+"+strconv.Itoa(line), path)
	case strings.Contains(base, "code"), strings.Contains(base, "cursor"):
		args = append(args, "--goto", path+":"+strconv.Itoa(line))
	case strings.Contains(base, "emacs"):
		args = append(args, "+"+strconv.Itoa(line), path)
	case base == "hx", base == "subl", base == "zed":
		args = append(args, path+":"+strconv.Itoa(line))
	default:
		args = append(args, path)
	}
	return name, args
}
