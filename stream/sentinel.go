package stream

import (
	"regexp"
	"strings"
)

// The transport embeds protocol signals as substrings in the token text
// rather than in a structured field. The marker lists below are the single
// source of truth for that vocabulary; keep matching confined to this file
// so the tables stay data, not scattered conditionals.

// timeoutMarkers classify a fragment as an agent-reported failure.
var timeoutMarkers = []string{
	"[TIMEOUT]",
	"took too long to respond",
}

// endMarkers classify a fragment as normal stream completion.
var endMarkers = []string{
	"[DONE]",
	"[END]",
	"[AGENT_COMPLETE]",
	"Synthesizing collaborative response",
}

// inlineMarkers are stripped from accumulated text when a stream finalizes.
// This is a superset of the classification markers: thinking indicators and
// error markers never terminate a stream on their own but must not leak into
// the final display text.
var inlineMarkers = []string{
	"[THINKING]",
	"[DONE]",
	"[END]",
	"[AGENT_COMPLETE]",
	"[TIMEOUT]",
	"[ERROR]",
	"Synthesizing collaborative response",
}

// completedPhrase is the per-agent completion suffix: "<AGENT> has completed".
const completedPhrase = " has completed"

// newlineRuns matches 3+ consecutive newlines for collapsing to exactly 2.
var newlineRuns = regexp.MustCompile(`\n{3,}`)

// fragmentKind is the classification outcome for one inbound fragment.
type fragmentKind int

const (
	// kindText is a normal content fragment.
	kindText fragmentKind = iota
	// kindTimeout is an agent-reported timeout/error notice.
	kindTimeout
	// kindEnd is a normal end-of-stream marker.
	kindEnd
)

// classify inspects a fragment's text and returns its kind. Timeout notices
// take priority over end markers: a notice like "Agent took too long to
// respond [TIMEOUT]" is a failure even if a done marker also appears.
func classify(agentID, token string) fragmentKind {
	for _, m := range timeoutMarkers {
		if strings.Contains(token, m) {
			return kindTimeout
		}
	}
	for _, m := range endMarkers {
		if strings.Contains(token, m) {
			return kindEnd
		}
	}
	if agentID != "" && strings.Contains(token, agentID+completedPhrase) {
		return kindEnd
	}
	return kindText
}

// scrub removes every known inline marker (including the agent's own
// completion phrase) from accumulated text and collapses runs of 3+
// newlines to exactly 2.
func scrub(agentID, text string) string {
	for _, m := range inlineMarkers {
		text = strings.ReplaceAll(text, m, "")
	}
	if agentID != "" {
		text = strings.ReplaceAll(text, agentID+completedPhrase, "")
	}
	return newlineRuns.ReplaceAllString(text, "\n\n")
}
