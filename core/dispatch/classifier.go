package dispatch

import (
	"context"
	"fmt"

	orchestration "github.com/outdial/outdial-core/core"
	"github.com/outdial/outdial-core/core/llms/groq"
)

const classifierSystemPrompt = `You classify the opening seconds of an answered phone call.
Given a transcript of the first thing heard after pickup, decide whether a
live person answered or an answering machine / voicemail system did. Answer
"undetermined" only when the transcript is too short or ambiguous to tell.`

type greetingVerdict struct {
	Classification string `json:"classification" jsonschema:"enum=human,enum=voicemail,enum=undetermined"`
}

// greetingClassifier resolves greetings the lexical heuristic left
// undetermined by asking a chat model for a structured verdict.
type greetingClassifier struct {
	client *groq.Client
}

func newGreetingClassifier(client *groq.Client) *greetingClassifier {
	return &greetingClassifier{client: client}
}

func (c *greetingClassifier) ClassifyGreeting(ctx context.Context, greeting string) (orchestration.VoicemailVerdict, error) {
	verdict, err := groq.PromptJSONSchema(
		ctx,
		c.client,
		fmt.Sprintf("Transcript after pickup: %q", greeting),
		classifierSystemPrompt,
		greetingVerdict{},
	)
	if err != nil {
		return orchestration.VerdictUndetermined, fmt.Errorf("classifying greeting: %w", err)
	}
	switch verdict.Classification {
	case "human":
		return orchestration.VerdictHuman, nil
	case "voicemail":
		return orchestration.VerdictVoicemail, nil
	default:
		return orchestration.VerdictUndetermined, nil
	}
}
