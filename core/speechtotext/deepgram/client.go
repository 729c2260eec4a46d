package deepgram

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TranscriptionClient streams one call leg's audio to Deepgram and reports
// transcripts through the configured callbacks. One client serves one
// transcription stream; create a fresh client per call session.
type TranscriptionClient struct {
	apiKey   string
	model    string
	language string

	conn   *websocket.Conn
	connMu sync.Mutex

	lastMsgTs             time.Time
	unendedSegment        bool
	accumulatedTranscript string
	accumulatedConfidence float64
	finalSegments         int

	closed bool
}

type ClientOption func(*TranscriptionClient)

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *TranscriptionClient) {
		c.apiKey = apiKey
	}
}

// WithModel overrides the default transcription model.
func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		c.model = model
	}
}

// WithLanguage overrides the default transcription language.
func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) {
		c.language = language
	}
}

func NewTranscriptionClient(opts ...ClientOption) *TranscriptionClient {
	client := &TranscriptionClient{
		apiKey:   os.Getenv("DEEPGRAM_API_KEY"),
		model:    "nova-3",
		language: "en-US",
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (s *TranscriptionClient) Close(_ context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.closed = true
	if s.conn == nil {
		return nil
	}

	conn := s.conn
	s.conn = nil
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close deepgram connection: %w", err)
	}
	return nil
}
