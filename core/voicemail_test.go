package orchestration

import (
	"context"
	"testing"
	"time"
)

func TestClassifyGreetingLexicalVerdicts(t *testing.T) {
	cases := []struct {
		greeting string
		expected VoicemailVerdict
	}{
		{"Hi, you've reached Dana. Please leave a message after the beep.", VerdictVoicemail},
		{"The person you are calling is unable to take your call.", VerdictVoicemail},
		{"Your call has been forwarded to an automated voice mail system.", VerdictVoicemail},
		{"hello?", VerdictHuman},
		{"hi this is dana", VerdictHuman},
		{"good morning", VerdictHuman},
		{"uh one second please", VerdictUndetermined},
		{"", VerdictUndetermined},
	}

	for _, c := range cases {
		if got := classifyGreeting(c.greeting); got != c.expected {
			t.Fatalf("expected %q to classify as %s, got %s", c.greeting, c.expected, got)
		}
	}
}

func TestClassifyGreetingLongMonologueIsVoicemail(t *testing.T) {
	greeting := "thank you for calling our office our normal business hours are monday" +
		" through friday nine to five if you know your party's extension you may dial" +
		" it at any time otherwise stay on the line"

	if got := classifyGreeting(greeting); got != VerdictVoicemail {
		t.Fatalf("expected long unbroken greeting to classify as voicemail, got %s", got)
	}
}

func TestClassifyHeadersWinOutright(t *testing.T) {
	detector := &voicemailDetector{budget: time.Second}

	verdict := detector.classify(context.Background(),
		map[string]string{"X-Answering-Machine": "true"}, nil)
	if verdict != VerdictVoicemail {
		t.Fatalf("expected trunk header to decide voicemail, got %s", verdict)
	}

	verdict = detector.classify(context.Background(),
		map[string]string{"P-AMD-Result": "human"}, nil)
	if verdict != VerdictHuman {
		t.Fatalf("expected trunk header to decide human, got %s", verdict)
	}
}

func TestClassifyBudgetExpiryIsUndetermined(t *testing.T) {
	detector := &voicemailDetector{budget: 20 * time.Millisecond}
	updates := make(chan greetingUpdate)

	verdict := detector.classify(context.Background(), nil, updates)
	if verdict != VerdictUndetermined {
		t.Fatalf("expected silent window to stay undetermined, got %s", verdict)
	}
}

func TestClassifyPauseAfterShortGreetingIsHuman(t *testing.T) {
	detector := &voicemailDetector{budget: time.Second}
	updates := make(chan greetingUpdate, 2)
	updates <- greetingUpdate{transcript: "uh yeah"}
	updates <- greetingUpdate{pause: true}

	verdict := detector.classify(context.Background(), nil, updates)
	if verdict != VerdictHuman {
		t.Fatalf("expected pause after short greeting to classify as human, got %s", verdict)
	}
}

func TestClassifyVoicemailPhraseDecidesEarly(t *testing.T) {
	detector := &voicemailDetector{budget: time.Second}
	updates := make(chan greetingUpdate, 2)
	updates <- greetingUpdate{transcript: "you have reached the front desk"}
	updates <- greetingUpdate{transcript: "please leave a message after the tone"}

	start := time.Now()
	verdict := detector.classify(context.Background(), nil, updates)
	if verdict != VerdictVoicemail {
		t.Fatalf("expected voicemail phrase to decide, got %s", verdict)
	}
	if elapsed := time.Since(start); elapsed > detector.budget {
		t.Fatalf("expected early decision, took %s", elapsed)
	}
}

type greetingClassifierStub struct {
	classify func(ctx context.Context, greeting string) (VoicemailVerdict, error)
}

func (s greetingClassifierStub) ClassifyGreeting(ctx context.Context, greeting string) (VoicemailVerdict, error) {
	return s.classify(ctx, greeting)
}

func TestClassifierResolvesUndeterminedGreeting(t *testing.T) {
	classified := make(chan string, 1)
	detector := &voicemailDetector{
		budget: 20 * time.Millisecond,
		classifier: greetingClassifierStub{classify: func(_ context.Context, greeting string) (VoicemailVerdict, error) {
			classified <- greeting
			return VerdictVoicemail, nil
		}},
	}

	updates := make(chan greetingUpdate, 1)
	updates <- greetingUpdate{transcript: "our office is currently closed for the season"}

	verdict := detector.classify(context.Background(), nil, updates)
	if verdict != VerdictVoicemail {
		t.Fatalf("expected model classifier verdict, got %s", verdict)
	}

	select {
	case greeting := <-classified:
		if greeting != "our office is currently closed for the season" {
			t.Fatalf("expected accumulated greeting, got %q", greeting)
		}
	default:
		t.Fatalf("expected the classifier to be consulted")
	}
}

func TestClassifierErrorFallsBackToUndetermined(t *testing.T) {
	detector := &voicemailDetector{
		budget: 20 * time.Millisecond,
		classifier: greetingClassifierStub{classify: func(context.Context, string) (VoicemailVerdict, error) {
			return VerdictVoicemail, context.DeadlineExceeded
		}},
	}

	updates := make(chan greetingUpdate, 1)
	updates <- greetingUpdate{transcript: "our office is currently closed for the season"}

	if verdict := detector.classify(context.Background(), nil, updates); verdict != VerdictUndetermined {
		t.Fatalf("expected classifier error to stay undetermined, got %s", verdict)
	}
}
