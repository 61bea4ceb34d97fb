// Package transcript decodes Claude Code session logs (one JSON object per
// line) into typed, immutable entries held in a position-indexed arena.
package transcript

import (
	"strings"
	"time"

	"github.com/go-json-experiment/json/jsontext"
)

// Type is the entry variant, taken from the line's "type" discriminator.
type Type int

const (
	TypeUnknown Type = iota
	TypeUser
	TypeAssistant
	TypeSystem
	TypeProgress
	TypeFileHistorySnapshot
	TypeQueueOperation
	TypeSummary
)

var typeNames = map[string]Type{
	"user":                  TypeUser,
	"assistant":             TypeAssistant,
	"system":                TypeSystem,
	"progress":              TypeProgress,
	"file-history-snapshot": TypeFileHistorySnapshot,
	"queue-operation":       TypeQueueOperation,
	"summary":               TypeSummary,
}

func parseType(s string) Type {
	if t, ok := typeNames[s]; ok {
		return t
	}
	return TypeUnknown
}

func (t Type) String() string {
	switch t {
	case TypeUser:
		return "user"
	case TypeAssistant:
		return "assistant"
	case TypeSystem:
		return "system"
	case TypeProgress:
		return "progress"
	case TypeFileHistorySnapshot:
		return "file-history-snapshot"
	case TypeQueueOperation:
		return "queue-operation"
	case TypeSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// BlockType identifies a message content block.
type BlockType int

const (
	BlockOther BlockType = iota
	BlockText
	BlockThinking
	BlockRedactedThinking
	BlockToolUse
	BlockToolResult
	BlockImage
)

func parseBlockType(s string) BlockType {
	switch s {
	case "text":
		return BlockText
	case "thinking":
		return BlockThinking
	case "redacted_thinking":
		return BlockRedactedThinking
	case "tool_use":
		return BlockToolUse
	case "tool_result":
		return BlockToolResult
	case "image":
		return BlockImage
	default:
		return BlockOther
	}
}

// Block is one element of a message's content array.
type Block struct {
	Type    BlockType
	RawType string

	// Text holds the body of text and thinking blocks.
	Text string

	// ToolUseID is the block id for tool_use and the referenced id for
	// tool_result.
	ToolUseID string
	Name      string
	Input     jsontext.Value

	// Content and IsError are set on tool_result blocks.
	Content jsontext.Value
	IsError bool

	Raw jsontext.Value
}

// Message is the "message" body of user and assistant entries.
type Message struct {
	Role  string
	Model string
	ID    string

	// Content is either a plain string (StringContent) or a block array.
	StringContent bool
	Text          string
	Blocks        []Block

	// Usage is the token accounting of an assistant message, nil if absent.
	// Streamed messages repeat it on every line sharing the same ID.
	Usage *Usage

	Raw jsontext.Value
}

// Usage counts the tokens of one model call.
type Usage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
}

// Add returns the field-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:         u.InputTokens + o.InputTokens,
		OutputTokens:        u.OutputTokens + o.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens + o.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens + o.CacheCreationTokens,
	}
}

// Sub returns the field-wise difference u - o.
func (u Usage) Sub(o Usage) Usage {
	return Usage{
		InputTokens:         u.InputTokens - o.InputTokens,
		OutputTokens:        u.OutputTokens - o.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens - o.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens - o.CacheCreationTokens,
	}
}

// Total returns the sum of all four counts.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// Context returns the input-side size of the call: fresh input plus cache
// reads and writes.
func (u Usage) Context() int64 {
	return u.InputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Entry is one decoded log line. Entries are created once by the decoder and
// never modified afterwards.
type Entry struct {
	Type    Type
	RawType string

	ID       string
	ParentID string // empty for roots

	Timestamp time.Time
	SessionID string
	Cwd       string
	GitBranch string
	AgentID   string
	RequestID string
	Subtype   string

	IsSidechain      bool
	IsMeta           bool
	IsCompactSummary bool

	// SourceToolUseID links an internal user entry to the tool invocation
	// whose result it carries.
	SourceToolUseID string
	ToolUseID       string
	// ParentToolUseID names the tool invocation that spawned the subagent
	// stream this entry belongs to.
	ParentToolUseID string

	// Summary and Operation are set on summary and queue-operation entries.
	Summary   string
	Operation string

	Message       *Message
	ToolUseResult jsontext.Value
	Data          jsontext.Value

	// Extra holds every top-level member the decoder does not model.
	Extra jsontext.Value

	Line int
}

// HasParent reports whether the entry names a parent entry.
func (e *Entry) HasParent() bool {
	return e.ParentID != ""
}

// Blocks returns the entry's content blocks, nil for string content.
func (e *Entry) Blocks() []Block {
	if e.Message == nil {
		return nil
	}
	return e.Message.Blocks
}

// Model returns the assistant model name, if any.
func (e *Entry) Model() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.Model
}

// Text returns the textual content of the entry: the string content, or the
// text blocks joined by newlines.
func (e *Entry) Text() string {
	if e.Message == nil {
		return ""
	}
	if e.Message.StringContent {
		return e.Message.Text
	}
	var parts []string
	for _, b := range e.Message.Blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// TextOnly is like Text but reports false when the content holds anything
// besides text blocks.
func (e *Entry) TextOnly() (string, bool) {
	if e.Message == nil {
		return "", false
	}
	if e.Message.StringContent {
		return e.Message.Text, true
	}
	for _, b := range e.Message.Blocks {
		if b.Type != BlockText {
			return "", false
		}
	}
	return e.Text(), true
}

// ToolUses returns the tool_use blocks of the entry.
func (e *Entry) ToolUses() []Block {
	return e.blocksOf(BlockToolUse)
}

// ToolResults returns the tool_result blocks of the entry.
func (e *Entry) ToolResults() []Block {
	return e.blocksOf(BlockToolResult)
}

func (e *Entry) blocksOf(t BlockType) []Block {
	var out []Block
	for _, b := range e.Blocks() {
		if b.Type == t {
			out = append(out, b)
		}
	}
	return out
}

func onlyToolResults(blocks []Block) bool {
	if len(blocks) == 0 {
		return false
	}
	for _, b := range blocks {
		if b.Type != BlockToolResult {
			return false
		}
	}
	return true
}
