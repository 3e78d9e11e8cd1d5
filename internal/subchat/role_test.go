package subchat

import (
	"testing"

	"twind/internal/types"
)

func assistant(content string) types.Message {
	return types.Message{Role: types.RoleAssistant, Content: content}
}

func user(content string) types.Message {
	return types.Message{Role: types.RoleUser, Content: content}
}

func TestExtractionRules(t *testing.T) {
	tests := []struct {
		name       string
		role       Role
		transcript []types.Message
		want       string
	}{
		{
			name: "extractor matches findings",
			role: RoleExtractor,
			transcript: []types.Message{
				user("extract style"),
				assistant(`{"section": "communication_style", "findings": []}`),
			},
			want: `{"section": "communication_style", "findings": []}`,
		},
		{
			name: "extractor scans newest to oldest",
			role: RoleExtractor,
			transcript: []types.Message{
				assistant(`{"findings": ["old"]}`),
				user("refine"),
				assistant(`{"findings": ["new"]}`),
			},
			want: `{"findings": ["new"]}`,
		},
		{
			name: "extractor ignores user messages with markers",
			role: RoleExtractor,
			transcript: []types.Message{
				assistant(`{"findings": ["real"]}`),
				user("what about the findings?"),
			},
			want: `{"findings": ["real"]}`,
		},
		{
			name:       "extractor fallback",
			role:       RoleExtractor,
			transcript: []types.Message{user("extract"), assistant("I could not process this")},
			want:       FallbackExtraction,
		},
		{
			name: "responder requires both markers",
			role: RoleResponder,
			transcript: []types.Message{
				assistant(`{"response": "sounds good"}`),
			},
			want: FallbackResponse,
		},
		{
			name: "responder matches response and confidence",
			role: RoleResponder,
			transcript: []types.Message{
				assistant(`{"response": "sounds good", "confidence": 90}`),
			},
			want: `{"response": "sounds good", "confidence": 90}`,
		},
		{
			name:       "responder fallback on empty transcript",
			role:       RoleResponder,
			transcript: nil,
			want:       FallbackResponse,
		},
		{
			name: "learner matches principle",
			role: RoleLearner,
			transcript: []types.Message{
				assistant(`{"principle": "no meetings before 10"}`),
			},
			want: `{"principle": "no meetings before 10"}`,
		},
		{
			name:       "learner fallback",
			role:       RoleLearner,
			transcript: []types.Message{assistant("hmm")},
			want:       FallbackLearning,
		},
		{
			name: "default flags correction phrase case-insensitively",
			role: RoleDefault,
			transcript: []types.Message{
				assistant("Actually I Would Say let's push the launch"),
			},
			want: CorrectionAdvice,
		},
		{
			name:       "default yields nothing without correction phrase",
			role:       RoleDefault,
			transcript: []types.Message{assistant("all good")},
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RuleFor(tt.role).Extract(tt.transcript)
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}
