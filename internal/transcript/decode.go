package transcript

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// DecodeErrorKind classifies a decode failure.
type DecodeErrorKind int

const (
	// Malformed means the line is not a JSON object.
	Malformed DecodeErrorKind = iota
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// DecodeError reports a line that could not be decoded. It is never fatal:
// callers skip the line and continue.
type DecodeError struct {
	Line int
	Kind DecodeErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode line %d: %s: %v", e.Line, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var (
	errNotObject    = errors.New("not a JSON object")
	errTrailingData = errors.New("trailing data after object")
)

// decodeOpts keeps decoding tolerant of the occasional bad byte or repeated
// key in hand-edited or truncated logs.
var decodeOpts = json.JoinOptions(
	jsontext.AllowInvalidUTF8(true),
	jsontext.AllowDuplicateNames(true),
)

type member struct {
	name  string
	value jsontext.Value
}

// object is a JSON object with its members in source order. Accessors never
// fail: a member of the wrong JSON kind reads as its zero value.
type object []member

// parseObject reads exactly one JSON object from raw.
func parseObject(raw []byte) (object, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(raw), decodeOpts)
	tok, err := dec.ReadToken()
	if err != nil {
		return nil, err
	}
	if tok.Kind() != '{' {
		return nil, errNotObject
	}
	var obj object
	for dec.PeekKind() == '"' {
		name, err := dec.ReadToken()
		if err != nil {
			return nil, err
		}
		val, err := dec.ReadValue()
		if err != nil {
			return nil, err
		}
		obj = append(obj, member{name: name.String(), value: val.Clone()})
	}
	if _, err := dec.ReadToken(); err != nil {
		return nil, err
	}
	if _, err := dec.ReadToken(); err != io.EOF {
		if err == nil {
			err = errTrailingData
		}
		return nil, err
	}
	return obj, nil
}

// get returns the last member called name, or nil when it is absent or null.
func (o object) get(name string) jsontext.Value {
	for i := len(o) - 1; i >= 0; i-- {
		if o[i].name == name {
			return present(o[i].value)
		}
	}
	return nil
}

// str reads a string member. Numbers read as their literal text.
func (o object) str(name string) string {
	v := o.get(name)
	switch v.Kind() {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s, decodeOpts); err == nil {
			return s
		}
	case '0':
		return string(v)
	}
	return ""
}

// boolean reads a bool member, accepting "true"/"false" strings too.
func (o object) boolean(name string) bool {
	v := o.get(name)
	switch v.Kind() {
	case 't':
		return true
	case '"':
		b, _ := strconv.ParseBool(o.str(name))
		return b
	}
	return false
}

// integer reads an integer member, accepting numeric strings too.
func (o object) integer(name string) int64 {
	v := o.get(name)
	var text string
	switch v.Kind() {
	case '0':
		text = string(v)
	case '"':
		text = strings.TrimSpace(o.str(name))
	default:
		return 0
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return int64(f)
	}
	return 0
}

// timestamp reads an ISO8601 string or a unix time in seconds or
// milliseconds.
func (o object) timestamp(name string) time.Time {
	v := o.get(name)
	switch v.Kind() {
	case '"':
		return parseTimestamp(o.str(name))
	case '0':
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil || f <= 0 || math.IsInf(f, 0) {
			return time.Time{}
		}
		if f >= 1e12 {
			return time.UnixMilli(int64(f)).UTC()
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return time.Time{}
}

// rest encodes the members not named in known as a JSON object, or nil when
// there are none.
func (o object) rest(known map[string]bool) jsontext.Value {
	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf, decodeOpts)
	if err := enc.WriteToken(jsontext.ObjectStart); err != nil {
		return nil
	}
	n := 0
	for _, m := range o {
		if known[m.name] {
			continue
		}
		if err := enc.WriteToken(jsontext.String(m.name)); err != nil {
			return nil
		}
		if err := enc.WriteValue(m.value); err != nil {
			return nil
		}
		n++
	}
	if err := enc.WriteToken(jsontext.ObjectEnd); err != nil || n == 0 {
		return nil
	}
	return jsontext.Value(bytes.TrimSpace(buf.Bytes()))
}

var entryFields = map[string]bool{
	"type": true, "uuid": true, "parentUuid": true, "timestamp": true,
	"sessionId": true, "cwd": true, "gitBranch": true, "agentId": true,
	"requestId": true, "subtype": true, "isSidechain": true, "isMeta": true,
	"isCompactSummary": true, "sourceToolUseID": true, "toolUseID": true,
	"parentToolUseID": true, "summary": true, "operation": true,
	"message": true, "toolUseResult": true, "data": true,
}

// DecodeLine decodes one log line. lineNo is 1-based and is recorded on the
// entry. Only a line that is not a syntactically valid JSON object fails.
// Known fields holding a value of the wrong kind read as zero; a type that is
// missing, not a string or not recognized decodes to TypeUnknown with every
// other field intact.
func DecodeLine(line []byte, lineNo int) (Entry, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return Entry{}, &DecodeError{Line: lineNo, Kind: Malformed, Err: errNotObject}
	}
	o, err := parseObject(line)
	if err != nil {
		return Entry{}, &DecodeError{Line: lineNo, Kind: Malformed, Err: err}
	}

	e := Entry{
		ID:               o.str("uuid"),
		ParentID:         o.str("parentUuid"),
		Timestamp:        o.timestamp("timestamp"),
		SessionID:        o.str("sessionId"),
		Cwd:              o.str("cwd"),
		GitBranch:        o.str("gitBranch"),
		AgentID:          o.str("agentId"),
		RequestID:        o.str("requestId"),
		Subtype:          o.str("subtype"),
		IsSidechain:      o.boolean("isSidechain"),
		IsMeta:           o.boolean("isMeta"),
		IsCompactSummary: o.boolean("isCompactSummary"),
		SourceToolUseID:  o.str("sourceToolUseID"),
		ToolUseID:        o.str("toolUseID"),
		ParentToolUseID:  o.str("parentToolUseID"),
		Summary:          o.str("summary"),
		Operation:        o.str("operation"),
		ToolUseResult:    o.get("toolUseResult"),
		Data:             o.get("data"),
		Extra:            o.rest(entryFields),
		Line:             lineNo,
	}
	switch t := o.get("type"); t.Kind() {
	case '"':
		e.RawType = o.str("type")
		e.Type = parseType(e.RawType)
	case 0:
	default:
		e.RawType = string(t)
	}
	if e.ID == "" {
		e.ID = "line-" + strconv.Itoa(lineNo)
	}

	if raw := o.get("message"); raw != nil {
		e.Message = decodeMessage(raw)
	}

	// Tool results come back as user entries; they are internal, not typed
	// by a person.
	if e.Type == TypeUser && e.Message != nil && onlyToolResults(e.Message.Blocks) {
		e.IsMeta = true
		if e.SourceToolUseID == "" && len(e.Message.Blocks) == 1 {
			e.SourceToolUseID = e.Message.Blocks[0].ToolUseID
		}
	}

	return e, nil
}

func decodeMessage(raw jsontext.Value) *Message {
	m := &Message{Raw: raw}
	o, err := parseObject(raw)
	if err != nil {
		return m
	}
	m.Role = o.str("role")
	m.Model = o.str("model")
	m.ID = o.str("id")
	m.Usage = decodeUsage(o.get("usage"))

	content := o.get("content")
	switch content.Kind() {
	case '"':
		m.StringContent = true
		m.Text = o.str("content")
	case '[':
		var items []jsontext.Value
		if err := json.Unmarshal(content, &items, decodeOpts); err == nil {
			m.Blocks = make([]Block, 0, len(items))
			for _, item := range items {
				m.Blocks = append(m.Blocks, decodeBlock(item))
			}
		}
	}
	return m
}

func decodeUsage(raw jsontext.Value) *Usage {
	if raw.Kind() != '{' {
		return nil
	}
	o, err := parseObject(raw)
	if err != nil {
		return nil
	}
	return &Usage{
		InputTokens:         o.integer("input_tokens"),
		OutputTokens:        o.integer("output_tokens"),
		CacheReadTokens:     o.integer("cache_read_input_tokens"),
		CacheCreationTokens: o.integer("cache_creation_input_tokens"),
	}
}

func decodeBlock(raw jsontext.Value) Block {
	b := Block{Raw: raw}
	o, err := parseObject(raw)
	if err != nil {
		return b
	}
	b.RawType = o.str("type")
	b.Type = parseBlockType(b.RawType)
	switch b.Type {
	case BlockText:
		b.Text = o.str("text")
	case BlockThinking:
		b.Text = o.str("thinking")
	case BlockToolUse:
		b.ToolUseID = o.str("id")
		b.Name = o.str("name")
		b.Input = o.get("input")
	case BlockToolResult:
		b.ToolUseID = o.str("tool_use_id")
		b.Content = o.get("content")
		b.IsError = o.boolean("is_error")
	}
	return b
}

// present maps absent and null values to nil.
func present(v jsontext.Value) jsontext.Value {
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	return v
}

// ResultText renders tool_result content as plain text: string content as is,
// text blocks joined, anything else as compact JSON.
func ResultText(content jsontext.Value) string {
	if content == nil {
		return ""
	}
	switch content.Kind() {
	case '"':
		var s string
		if err := json.Unmarshal(content, &s, decodeOpts); err == nil {
			return s
		}
	case '[':
		var items []jsontext.Value
		if err := json.Unmarshal(content, &items, decodeOpts); err == nil {
			var parts []string
			for _, item := range items {
				o, err := parseObject(item)
				if err != nil {
					continue
				}
				if text := o.str("text"); text != "" {
					parts = append(parts, text)
				}
			}
			return strings.Join(parts, "\n")
		}
	}
	return string(content)
}

// InputString returns the string member name of a tool_use input object.
func InputString(input jsontext.Value, name string) string {
	if input.Kind() != '{' {
		return ""
	}
	o, err := parseObject(input)
	if err != nil {
		return ""
	}
	return o.str(name)
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// ISO8601 without timezone
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
