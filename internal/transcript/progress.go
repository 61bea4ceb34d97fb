package transcript

// AgentProgress is one model call of a running subagent, relayed into the
// parent stream by a progress entry.
type AgentProgress struct {
	// ToolUseID is the parent's tool invocation that spawned the subagent.
	ToolUseID string
	AgentID   string
	MessageID string
	Usage     Usage
}

// AgentProgressOf extracts the agent_progress report carried by e. It reports
// false for other entries and for reports without an assistant message that
// carries usage.
func AgentProgressOf(e *Entry) (AgentProgress, bool) {
	if e.Type != TypeProgress || e.Data.Kind() != '{' {
		return AgentProgress{}, false
	}
	data, err := parseObject(e.Data)
	if err != nil || data.str("type") != "agent_progress" {
		return AgentProgress{}, false
	}
	// data.message is the relayed entry; its own message holds the usage.
	relayed, err := parseObject(data.get("message"))
	if err != nil || relayed.str("type") != "assistant" {
		return AgentProgress{}, false
	}
	msg, err := parseObject(relayed.get("message"))
	if err != nil {
		return AgentProgress{}, false
	}
	u := decodeUsage(msg.get("usage"))
	if u == nil {
		return AgentProgress{}, false
	}
	p := AgentProgress{
		ToolUseID: e.ToolUseID,
		AgentID:   data.str("agentId"),
		MessageID: msg.str("id"),
		Usage:     *u,
	}
	if p.ToolUseID == "" {
		p.ToolUseID = e.ParentToolUseID
	}
	if p.AgentID == "" {
		p.AgentID = relayed.str("agentId")
	}
	return p, true
}

// AgentProgress returns the agent_progress reports of the log in stream
// order.
func (l *Log) AgentProgress() []AgentProgress {
	var out []AgentProgress
	for i := range l.Entries {
		if p, ok := AgentProgressOf(&l.Entries[i]); ok {
			out = append(out, p)
		}
	}
	return out
}
