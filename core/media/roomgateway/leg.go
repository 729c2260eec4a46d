package roomgateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/outdial/outdial-core/core/audio"
	"github.com/outdial/outdial-core/core/media"
)

var _ media.Leg = (*Leg)(nil)

// audioBufferFrames bounds the inbound frame queue. A consumer stalled for
// longer than this loses the oldest frames rather than blocking the socket
// read loop.
const audioBufferFrames = 64

// Leg is one gateway call leg bound to a single websocket.
type Leg struct {
	id       string
	encoding audio.EncodingInfo

	conn   *websocket.Conn
	connMu sync.Mutex

	audioFrames chan []byte
	signals     chan media.SignalEvent

	ended     atomic.Bool
	closeOnce sync.Once
}

func newLeg(id string, conn *websocket.Conn, encoding audio.EncodingInfo) *Leg {
	return &Leg{
		id:          id,
		encoding:    encoding,
		conn:        conn,
		audioFrames: make(chan []byte, audioBufferFrames),
		signals:     make(chan media.SignalEvent, 8),
	}
}

func (l *Leg) ID() string { return l.id }

func (l *Leg) Encoding() audio.EncodingInfo { return l.encoding }

func (l *Leg) Audio() <-chan []byte { return l.audioFrames }

func (l *Leg) Signals() <-chan media.SignalEvent { return l.signals }

// Ended reports whether the leg reached a terminal signal or was closed.
func (l *Leg) Ended() bool { return l.ended.Load() }

func (l *Leg) SendAudio(frame []byte) error {
	if l.ended.Load() {
		return fmt.Errorf("leg %s has ended", l.id)
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()

	if err := l.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to write audio to leg %s: %w", l.id, err)
	}
	return nil
}

// Close hangs up the leg and releases the socket. Safe to call more than
// once and after the leg already ended.
func (l *Leg) Close(_ context.Context) error {
	var closeErr error
	l.closeOnce.Do(func() {
		l.ended.Store(true)

		l.connMu.Lock()
		defer l.connMu.Unlock()

		if err := l.conn.WriteJSON(struct {
			Event string `json:"event"`
		}{Event: eventHangup}); err != nil {
			// The far end may have torn the socket down first.
			log.Println("Failed to send hangup to room gateway", "error", err)
		}
		closeErr = l.conn.Close()
	})
	return closeErr
}

func (l *Leg) sendJSON(msg any) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if err := l.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to leg %s: %w", l.id, err)
	}
	return nil
}

func (l *Leg) readAndProcessMessages() {
	defer func() {
		l.ended.Store(true)
		close(l.audioFrames)
		close(l.signals)
	}()

	for {
		msgType, msg, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) && !l.ended.Load() {
				log.Println("Failed to read room gateway message", "error", err)
				l.signals <- media.SignalEvent{Kind: media.SignalFailed, Reason: err.Error()}
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			frame := make([]byte, len(msg))
			copy(frame, msg)
			select {
			case l.audioFrames <- frame:
			default:
				// Consumer stalled; drop the oldest frame to keep latency bounded.
				select {
				case <-l.audioFrames:
				default:
				}
				l.audioFrames <- frame
			}

		case websocket.TextMessage:
			event, err := decodeSignal(msg)
			if err != nil {
				log.Println("Failed to decode room gateway signal", "error", err)
				continue
			}

			terminal := event.Kind == media.SignalEnded || event.Kind == media.SignalFailed
			if terminal {
				l.ended.Store(true)
			}
			l.signals <- event
			if terminal {
				l.connMu.Lock()
				_ = l.conn.Close()
				l.connMu.Unlock()
				return
			}
		}
	}
}
