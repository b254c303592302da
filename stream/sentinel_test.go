package stream

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		agent string
		token string
		want  fragmentKind
	}{
		{
			name:  "plain text",
			agent: "LEGAL",
			token: "Hello, I can help with that.",
			want:  kindText,
		},
		{
			name:  "empty token",
			agent: "LEGAL",
			token: "",
			want:  kindText,
		},
		{
			name:  "done marker",
			agent: "LEGAL",
			token: "[DONE]",
			want:  kindEnd,
		},
		{
			name:  "end marker embedded",
			agent: "LEGAL",
			token: "final words [END]",
			want:  kindEnd,
		},
		{
			name:  "agent complete marker",
			agent: "LEGAL",
			token: "[AGENT_COMPLETE]",
			want:  kindEnd,
		},
		{
			name:  "synthesis marker",
			agent: "MODERATOR",
			token: "Synthesizing collaborative response...",
			want:  kindEnd,
		},
		{
			name:  "per-agent completion phrase",
			agent: "MEDICAL",
			token: "MEDICAL has completed",
			want:  kindEnd,
		},
		{
			name:  "completion phrase for other agent",
			agent: "MEDICAL",
			token: "LEGAL has completed",
			want:  kindText,
		},
		{
			name:  "timeout marker",
			agent: "MEDICAL",
			token: "Agent took too long to respond [TIMEOUT]",
			want:  kindTimeout,
		},
		{
			name:  "timeout phrase without marker",
			agent: "MEDICAL",
			token: "The agent took too long to respond.",
			want:  kindTimeout,
		},
		{
			name:  "timeout wins over done",
			agent: "MEDICAL",
			token: "[TIMEOUT] [DONE]",
			want:  kindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.agent, tt.token); got != tt.want {
				t.Errorf("classify(%q, %q) = %v, want %v", tt.agent, tt.token, got, tt.want)
			}
		})
	}
}

func TestScrub(t *testing.T) {
	tests := []struct {
		name  string
		agent string
		text  string
		want  string
	}{
		{
			name:  "strips inline markers",
			agent: "LEGAL",
			text:  "[THINKING]Here is my answer.[DONE]",
			want:  "Here is my answer.",
		},
		{
			name:  "strips every marker kind",
			agent: "LEGAL",
			text:  "[THINKING]a[DONE]b[END]c[AGENT_COMPLETE]d[TIMEOUT]e[ERROR]f",
			want:  "abcdef",
		},
		{
			name:  "strips synthesis marker",
			agent: "MODERATOR",
			text:  "Synthesizing collaborative response\nSummary follows.",
			want:  "\nSummary follows.",
		},
		{
			name:  "strips per-agent completion phrase",
			agent: "LEGAL",
			text:  "All set. LEGAL has completed",
			want:  "All set. ",
		},
		{
			name:  "collapses newline runs",
			agent: "LEGAL",
			text:  "one\n\n\n\ntwo\n\n\nthree",
			want:  "one\n\ntwo\n\nthree",
		},
		{
			name:  "keeps double newlines",
			agent: "LEGAL",
			text:  "one\n\ntwo",
			want:  "one\n\ntwo",
		},
		{
			name:  "marker removal can create runs to collapse",
			agent: "LEGAL",
			text:  "one\n\n[DONE]\ntwo",
			want:  "one\n\ntwo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scrub(tt.agent, tt.text); got != tt.want {
				t.Errorf("scrub(%q, %q) = %q, want %q", tt.agent, tt.text, got, tt.want)
			}
		})
	}
}
