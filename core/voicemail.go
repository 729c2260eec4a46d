package orchestration

import (
	"context"
	"strings"
	"time"
)

// VoicemailVerdict is the outcome of classifying a pickup.
type VoicemailVerdict string

const (
	VerdictHuman        VoicemailVerdict = "human"
	VerdictVoicemail    VoicemailVerdict = "voicemail"
	VerdictUndetermined VoicemailVerdict = "undetermined"
)

// greetingUpdate is one increment of the post-answer transcript, fed to the
// detector while the classification window is open.
type greetingUpdate struct {
	transcript string
	// pause marks that the speaker stopped; a responsive pause is strong
	// evidence of a human pickup.
	pause bool
}

// voicemailDetector classifies the first seconds after pickup as human or
// answering machine. Signaling hints from the trunk win outright; otherwise a
// lexical heuristic on the greeting decides, with an optional model
// classifier as tie-breaker. An expired budget yields Undetermined, which the
// orchestrator treats as human.
type voicemailDetector struct {
	budget     time.Duration
	classifier GreetingClassifier
}

// answeringMachineHeaders are trunk-side answering machine detection results.
var answeringMachineHeaders = []string{"X-Answering-Machine", "P-AMD-Result", "X-AMD-Result"}

func (d *voicemailDetector) classify(ctx context.Context, headers map[string]string, updates <-chan greetingUpdate) VoicemailVerdict {
	if verdict := classifyHeaders(headers); verdict != VerdictUndetermined {
		return verdict
	}

	ctx, cancel := context.WithTimeout(ctx, d.budget)
	defer cancel()

	greeting := ""
	for {
		select {
		case <-ctx.Done():
			return d.resolve(ctx, greeting)
		case update, ok := <-updates:
			if !ok {
				return d.resolve(ctx, greeting)
			}
			if update.transcript != "" {
				if greeting != "" {
					greeting += " "
				}
				greeting += update.transcript
			}

			switch verdict := classifyGreeting(greeting); {
			case verdict == VerdictVoicemail:
				return VerdictVoicemail
			case verdict == VerdictHuman:
				return VerdictHuman
			case update.pause && greeting != "":
				// The speaker greeted briefly and stopped, waiting for a
				// reply. Machines keep talking.
				return VerdictHuman
			}
		}
	}
}

// resolve is the end-of-window decision: try the model classifier with
// whatever budget remains, otherwise stay undetermined.
func (d *voicemailDetector) resolve(ctx context.Context, greeting string) VoicemailVerdict {
	if d.classifier == nil || greeting == "" {
		return VerdictUndetermined
	}

	// The window may already be exhausted; give the classifier a grace budget
	// so a near-miss can still resolve.
	classifierCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	verdict, err := d.classifier.ClassifyGreeting(classifierCtx, greeting)
	if err != nil {
		return VerdictUndetermined
	}
	return verdict
}

func classifyHeaders(headers map[string]string) VoicemailVerdict {
	for _, header := range answeringMachineHeaders {
		switch strings.ToLower(headers[header]) {
		case "machine", "voicemail", "true":
			return VerdictVoicemail
		case "human":
			return VerdictHuman
		}
	}
	return VerdictUndetermined
}

var voicemailPhrases = []string{
	"leave a message",
	"leave your message",
	"after the tone",
	"after the beep",
	"at the tone",
	"voicemail",
	"voice mail",
	"mailbox",
	"not available right now",
	"unable to take your call",
	"can't take your call",
	"cannot take your call",
	"has been forwarded",
	"please record",
}

var humanGreetings = []string{
	"hello",
	"hi ",
	"hey",
	"yes?",
	"speaking",
	"this is",
	"good morning",
	"good afternoon",
	"good evening",
}

// classifyGreeting applies the lexical heuristic to the accumulated greeting
// transcript. Long unbroken greetings read like a recorded announcement.
func classifyGreeting(greeting string) VoicemailVerdict {
	normalized := strings.ToLower(strings.TrimSpace(greeting))
	if normalized == "" {
		return VerdictUndetermined
	}

	for _, phrase := range voicemailPhrases {
		if strings.Contains(normalized, phrase) {
			return VerdictVoicemail
		}
	}

	if len(normalized) > 160 {
		return VerdictVoicemail
	}

	if len(normalized) < 40 {
		for _, phrase := range humanGreetings {
			if strings.HasPrefix(normalized, phrase) {
				return VerdictHuman
			}
		}
	}

	return VerdictUndetermined
}
