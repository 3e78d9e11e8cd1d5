// Package subchat implements the delegation engine: isolated
// sub-conversations spawned to resolve a single scoped sub-task, each with
// its own role and output-extraction rule, reported back asynchronously to
// the tool call that spawned them.
package subchat

import (
	"strings"

	"twind/internal/types"
)

// Role selects the expert persona and extraction rule for a subchat.
type Role string

const (
	// RoleExtractor analyzes training documents for personality traits.
	RoleExtractor Role = "extractor"

	// RoleResponder generates replies in the owner's voice.
	RoleResponder Role = "responder"

	// RoleLearner analyzes owner corrections.
	RoleLearner Role = "learner"

	// RoleDefault is the main conversational expert.
	RoleDefault Role = "default"
)

// Fixed fallback results used when no transcript message matches the
// role's extraction markers.
const (
	FallbackExtraction = "No extraction completed"
	FallbackResponse   = "No response generated"
	FallbackLearning   = "No learning extracted"

	// CorrectionAdvice is surfaced by the default role when a correction
	// phrase appears in the transcript.
	CorrectionAdvice = "Possible correction detected - use learn_from_correction() tool"
)

// Rule extracts a subchat's final output from its transcript.
//
// Rules scan from the most recent message to the oldest and stop at the
// first assistant message that matches; keeping this pluggable lets new
// roles ship their own extraction without touching the engine.
type Rule interface {
	Extract(transcript []types.Message) string
}

// markerRule matches assistant messages containing marker substrings.
type markerRule struct {
	markers    []string
	requireAll bool
	fold       bool
	fallback   string
}

func (r markerRule) Extract(transcript []types.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.Role != types.RoleAssistant {
			continue
		}
		if r.matches(msg.Content) {
			return msg.Content
		}
	}
	return r.fallback
}

func (r markerRule) matches(content string) bool {
	if r.fold {
		content = strings.ToLower(content)
	}
	for _, marker := range r.markers {
		found := strings.Contains(content, marker)
		if r.requireAll && !found {
			return false
		}
		if !r.requireAll && found {
			return true
		}
	}
	return r.requireAll
}

// adviceRule flags correction phrases in the default role's transcript.
// It yields an advisory string rather than transcript content.
type adviceRule struct{}

func (adviceRule) Extract(transcript []types.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.Role != types.RoleAssistant {
			continue
		}
		if strings.Contains(strings.ToLower(msg.Content), "actually i would say") {
			return CorrectionAdvice
		}
	}
	return ""
}

// RuleFor returns the extraction rule for a role.
func RuleFor(role Role) Rule {
	switch role {
	case RoleExtractor:
		return markerRule{markers: []string{"findings", "section"}, fallback: FallbackExtraction}
	case RoleResponder:
		return markerRule{markers: []string{"response", "confidence"}, requireAll: true, fallback: FallbackResponse}
	case RoleLearner:
		return markerRule{markers: []string{"learning_type", "principle"}, fallback: FallbackLearning}
	default:
		return adviceRule{}
	}
}
