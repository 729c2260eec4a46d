package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/outdial/outdial-core/core/audio"
	"github.com/outdial/outdial-core/core/llms"
)

const realtimeHost = "api.openai.com"

// RealtimeClient connects to the OpenAI realtime speech-to-speech API. One
// client is shared across sessions; each call opens its own socket.
type RealtimeClient struct {
	apiKey string
	model  string
}

type RealtimeClientOption func(*RealtimeClient)

// WithRealtimeModel overrides the default realtime model.
func WithRealtimeModel(model string) RealtimeClientOption {
	return func(c *RealtimeClient) {
		c.model = model
	}
}

func NewRealtimeClient(apiKey string, opts ...RealtimeClientOption) *RealtimeClient {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	client := &RealtimeClient{apiKey: apiKey, model: "gpt-4o-realtime-preview"}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// RealtimeSession is one live socket to the realtime model.
type RealtimeSession struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	callbacks llms.RealtimeCallbacks
	closeOnce sync.Once
}

// Connect opens the realtime socket and starts the read loop.
func (c *RealtimeClient) Connect(ctx context.Context, callbacks llms.RealtimeCallbacks) (llms.RealtimeSession, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openai api key not found")
	}

	socketURL := url.URL{
		Scheme:   "wss",
		Host:     realtimeHost,
		Path:     "/v1/realtime",
		RawQuery: url.Values{"model": {c.model}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, socketURL.String(), http.Header{
		"Authorization": {"Bearer " + c.apiKey},
		"OpenAI-Beta":   {"realtime=v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to openai: %w", err)
	}

	session := &RealtimeSession{conn: conn, callbacks: callbacks}
	go session.readAndProcessMessages(ctx)

	return session, nil
}

// Configure applies instructions, tools and audio format to the session.
func (s *RealtimeSession) Configure(instructions string, tools []llms.Tool, encoding audio.EncodingInfo) error {
	format := "g711_ulaw"
	switch encoding.Format {
	case audio.EncodingALaw:
		format = "g711_alaw"
	case audio.EncodingLinear16:
		format = "pcm16"
	}

	wireTools := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		wireTools = append(wireTools, map[string]any{
			"type":        "function",
			"name":        tool.Function.Name,
			"description": tool.Function.Description,
			"parameters":  tool.Function.Parameters,
		})
	}

	return s.sendJSON(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"instructions":              instructions,
			"tools":                     wireTools,
			"input_audio_format":        format,
			"output_audio_format":       format,
			"turn_detection":            map[string]any{"type": "server_vad"},
			"input_audio_transcription": map[string]any{"model": "whisper-1"},
		},
	})
}

// SendAudio appends one caller audio frame to the model's input buffer.
func (s *RealtimeSession) SendAudio(frame []byte) error {
	return s.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(frame),
	})
}

// SendToolResult reports a tool call result and asks for a spoken response.
func (s *RealtimeSession) SendToolResult(callID, output string) error {
	if err := s.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	}); err != nil {
		return err
	}
	return s.sendJSON(map[string]any{"type": "response.create"})
}

// CancelResponse interrupts in-flight synthesis (barge-in).
func (s *RealtimeSession) CancelResponse() error {
	return s.sendJSON(map[string]any{"type": "response.cancel"})
}

// Say requests a spoken response with explicit instructions, bypassing turn
// detection. Used for the initial greeting and scripted messages.
func (s *RealtimeSession) Say(instructions string) error {
	return s.sendJSON(map[string]any{
		"type": "response.create",
		"response": map[string]any{
			"instructions": instructions,
		},
	})
}

func (s *RealtimeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.connMu.Lock()
		defer s.connMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *RealtimeSession) sendJSON(msg any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to openai realtime socket: %w", err)
	}
	return nil
}

type realtimeEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *RealtimeSession) readAndProcessMessages(ctx context.Context) {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) && ctx.Err() == nil {
				if s.callbacks.OnError != nil {
					s.callbacks.OnError(fmt.Errorf("realtime socket read failed: %w", err))
				}
			}
			_ = s.Close()
			return
		}

		var event realtimeEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			log.Println("Failed to unmarshal openai realtime message", "error", err)
			continue
		}

		switch event.Type {
		case "response.audio.delta":
			if s.callbacks.OnAudio == nil {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(event.Delta)
			if err != nil {
				log.Println("Failed to decode openai realtime audio delta", "error", err)
				continue
			}
			s.callbacks.OnAudio(decoded)

		case "response.audio.done":
			if s.callbacks.OnAudioDone != nil {
				s.callbacks.OnAudioDone()
			}

		case "conversation.item.input_audio_transcription.completed":
			if s.callbacks.OnUserTranscript != nil && event.Transcript != "" {
				s.callbacks.OnUserTranscript(event.Transcript)
			}

		case "response.audio_transcript.done":
			if s.callbacks.OnAssistantTranscript != nil && event.Transcript != "" {
				s.callbacks.OnAssistantTranscript(event.Transcript)
			}

		case "input_audio_buffer.speech_started":
			if s.callbacks.OnSpeechStarted != nil {
				s.callbacks.OnSpeechStarted()
			}

		case "input_audio_buffer.speech_stopped":
			if s.callbacks.OnSpeechStopped != nil {
				s.callbacks.OnSpeechStopped()
			}

		case "response.function_call_arguments.done":
			if s.callbacks.OnToolCall != nil {
				s.callbacks.OnToolCall(llms.ToolCall{
					ID:        event.CallID,
					Name:      event.Name,
					Arguments: event.Arguments,
				})
			}

		case "error":
			if s.callbacks.OnError != nil && event.Error != nil {
				s.callbacks.OnError(fmt.Errorf("realtime api error: %s", event.Error.Message))
			}
		}
	}
}
