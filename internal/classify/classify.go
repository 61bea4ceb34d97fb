// Package classify assigns every decoded entry exactly one display category.
package classify

import (
	"strings"

	"github.com/Zuo-Peng/ai-session-tree/internal/transcript"
)

// Category is the display category of an entry.
type Category int

const (
	AI Category = iota
	User
	System
	HardNoise
	Compact
)

func (c Category) String() string {
	switch c {
	case User:
		return "user"
	case System:
		return "system"
	case HardNoise:
		return "noise"
	case Compact:
		return "compact"
	default:
		return "ai"
	}
}

// Entry is a decoded entry paired with its category. Pos is the entry's
// position in its transcript.Log.
type Entry struct {
	Pos      int
	Entry    *transcript.Entry
	Category Category
}

const (
	syntheticModel    = "<synthetic>"
	interruptPrefix   = "[Request interrupted by user"
	localStdoutTag    = "<local-command-stdout>"
	localStderrTag    = "<local-command-stderr>"
	caveatTag         = "local-command-caveat"
	systemReminderTag = "system-reminder"
)

var filteredTags = []string{caveatTag, systemReminderTag}

type rule struct {
	category Category
	match    func(e *transcript.Entry) bool
}

// rules are evaluated in order; the first match wins and AI is the default.
var rules = []rule{
	{HardNoise, isHardNoise},
	{Compact, func(e *transcript.Entry) bool { return e.IsCompactSummary }},
	{System, isLocalCommandOutput},
	{User, isUserTurn},
}

// Classify returns the category of e. It is total: every entry gets exactly
// one category.
func Classify(e *transcript.Entry) Category {
	for _, r := range rules {
		if r.match(e) {
			return r.category
		}
	}
	return AI
}

// ClassifyLog classifies every entry of l in order.
func ClassifyLog(l *transcript.Log) []Entry {
	out := make([]Entry, len(l.Entries))
	for i := range l.Entries {
		e := &l.Entries[i]
		out[i] = Entry{Pos: i, Entry: e, Category: Classify(e)}
	}
	return out
}

func isHardNoise(e *transcript.Entry) bool {
	switch e.Type {
	case transcript.TypeSystem, transcript.TypeFileHistorySnapshot,
		transcript.TypeQueueOperation, transcript.TypeSummary:
		return true
	case transcript.TypeAssistant:
		if e.Model() == syntheticModel {
			return true
		}
	}
	if !e.HasParent() && !rootEligible(e.Type) {
		return true
	}
	if e.Type == transcript.TypeUser {
		if text, ok := e.TextOnly(); ok && IsFilteredTag(text) {
			return true
		}
	}
	return false
}

func rootEligible(t transcript.Type) bool {
	return t == transcript.TypeUser || t == transcript.TypeAssistant
}

func isLocalCommandOutput(e *transcript.Entry) bool {
	if e.Type != transcript.TypeUser {
		return false
	}
	text := strings.TrimSpace(e.Text())
	return strings.HasPrefix(text, localStdoutTag) || strings.HasPrefix(text, localStderrTag)
}

func isUserTurn(e *transcript.Entry) bool {
	if e.Type != transcript.TypeUser || e.IsMeta {
		return false
	}
	if IsInterruption(e) {
		return false
	}
	text, ok := e.TextOnly()
	if ok && IsFilteredTag(text) {
		return false
	}
	return true
}

// IsInterruption reports whether e is the marker left when the user stops a
// response mid-flight.
func IsInterruption(e *transcript.Entry) bool {
	if e.Type != transcript.TypeUser {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(e.Text()), interruptPrefix)
}

// IsFilteredTag reports whether text is exactly one caveat or system-reminder
// element with nothing around it.
func IsFilteredTag(text string) bool {
	text = strings.TrimSpace(text)
	for _, tag := range filteredTags {
		openTag, closeTag := "<"+tag+">", "</"+tag+">"
		if !strings.HasPrefix(text, openTag) || !strings.HasSuffix(text, closeTag) {
			continue
		}
		inner := text[len(openTag) : len(text)-len(closeTag)]
		if !strings.Contains(inner, openTag) && !strings.Contains(inner, closeTag) {
			return true
		}
	}
	return false
}
