package transcript

import "testing"

func TestWarningString(t *testing.T) {
	tests := []struct {
		w    Warning
		want string
	}{
		{Warning{Kind: WarnDecode, Line: 3, Msg: "bad json"}, "decode line 3: bad json"},
		{Warning{Kind: WarnLinkUnresolved, Stream: "a1", ToolUseID: "t2"}, "link-unresolved [a1] tool t2"},
		{Warning{Kind: WarnLinkUnresolved, SubagentID: "a9"}, "link-unresolved agent a9"},
		{Warning{Kind: WarningKind(42)}, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.w.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestCountByKind(t *testing.T) {
	got := CountByKind([]Warning{
		{Kind: WarnDecode}, {Kind: WarnDecode}, {Kind: WarnOrphanReference},
	})
	if got[WarnDecode] != 2 || got[WarnOrphanReference] != 1 || len(got) != 2 {
		t.Errorf("CountByKind() = %v", got)
	}
}
