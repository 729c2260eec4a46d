// Package roomgateway implements the media channel contract against a
// room-gateway telephony service: one websocket per call leg carrying JSON
// signaling messages and binary audio frames.
package roomgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/outdial/outdial-core/core/audio"
	"github.com/outdial/outdial-core/core/media"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var _ media.Adapter = (*Client)(nil)

// Client originates call legs against one room-gateway deployment. Stateless
// apart from connection parameters; shared across sessions.
type Client struct {
	gatewayURL string
	authToken  string
	dialer     *websocket.Dialer
}

type ClientOption func(*Client)

// WithAuthToken overrides the ROOM_GATEWAY_TOKEN environment variable.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithDialer replaces the websocket dialer, mostly for tests.
func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = dialer
	}
}

func NewClient(gatewayURL string, opts ...ClientOption) *Client {
	client := &Client{
		gatewayURL: gatewayURL,
		authToken:  os.Getenv("ROOM_GATEWAY_TOKEN"),
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Dial opens a leg socket and asks the gateway to originate the call. It
// returns as soon as the gateway acknowledges the dial request; answer and
// failure arrive later on the leg's signal stream.
func (c *Client) Dial(ctx context.Context, number string, opts ...media.DialOption) (media.Leg, error) {
	ctx, span := tracer.Start(ctx, "dial leg")
	defer span.End()
	span.SetAttributes(attribute.String("dial.number", number))

	options := media.DialOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	legURL, err := url.Parse(c.gatewayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	legURL.Path = "/v1/legs"
	queryParams := legURL.Query()
	queryParams.Set("encoding", options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	legURL.RawQuery = queryParams.Encode()

	header := http.Header{}
	if c.authToken != "" {
		header.Set("Authorization", "Bearer "+c.authToken)
	}

	conn, _, err := c.dialer.DialContext(ctx, legURL.String(), header)
	if err != nil {
		err = fmt.Errorf("failed to open socket connection to room gateway: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := conn.WriteJSON(dialMessage{
		Event:    eventDial,
		Number:   number,
		TrunkID:  options.TrunkID,
		CallerID: options.CallerID,
		Headers:  options.Headers,
	}); err != nil {
		_ = conn.Close()
		err = fmt.Errorf("failed to send dial request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// The gateway acknowledges with the leg id or rejects the dial outright.
	var ack ackMessage
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		err = fmt.Errorf("failed to read dial acknowledgement: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if ack.Event != eventAccepted {
		_ = conn.Close()
		err := fmt.Errorf("gateway rejected dial: %s", ack.Reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("leg.id", ack.LegID))

	leg := newLeg(ack.LegID, conn, options.EncodingInfo)
	go leg.readAndProcessMessages()

	return leg, nil
}

// Bridge instructs the gateway to join both legs' media. Legs must belong to
// this gateway and still be live.
func (c *Client) Bridge(ctx context.Context, a media.Leg, b media.Leg) error {
	_, span := tracer.Start(ctx, "bridge legs")
	defer span.End()

	legA, ok := a.(*Leg)
	if !ok {
		return fmt.Errorf("leg %s was not created by this adapter", a.ID())
	}
	legB, ok := b.(*Leg)
	if !ok {
		return fmt.Errorf("leg %s was not created by this adapter", b.ID())
	}

	if legA.Ended() || legB.Ended() {
		err := fmt.Errorf("refusing to bridge an ended leg")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(
		attribute.String("bridge.leg_a", legA.ID()),
		attribute.String("bridge.leg_b", legB.ID()),
	)

	if err := legA.sendJSON(bridgeMessage{Event: eventBridge, PeerLegID: legB.ID()}); err != nil {
		err = fmt.Errorf("failed to send bridge request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

const (
	eventDial     = "dial"
	eventAccepted = "accepted"
	eventBridge   = "bridge"
	eventHangup   = "hangup"
	eventRinging  = "ringing"
	eventAnswered = "answered"
	eventEnded    = "ended"
	eventFailed   = "failed"
)

type dialMessage struct {
	Event    string            `json:"event"`
	Number   string            `json:"number"`
	TrunkID  string            `json:"trunk_id,omitempty"`
	CallerID string            `json:"caller_id,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

type ackMessage struct {
	Event  string `json:"event"`
	LegID  string `json:"leg_id"`
	Reason string `json:"reason,omitempty"`
}

type bridgeMessage struct {
	Event     string `json:"event"`
	PeerLegID string `json:"peer_leg_id"`
}

type signalMessage struct {
	Event     string            `json:"event"`
	SIPStatus int               `json:"sip_status,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

func decodeSignal(msg []byte) (media.SignalEvent, error) {
	var parsed signalMessage
	if err := json.Unmarshal(msg, &parsed); err != nil {
		return media.SignalEvent{}, fmt.Errorf("failed to unmarshal gateway signal: %w", err)
	}

	event := media.SignalEvent{
		SIPStatus: parsed.SIPStatus,
		Headers:   parsed.Headers,
		Reason:    parsed.Reason,
	}
	switch parsed.Event {
	case eventRinging:
		event.Kind = media.SignalRinging
	case eventAnswered:
		event.Kind = media.SignalAnswered
	case eventEnded:
		event.Kind = media.SignalEnded
	case eventFailed:
		event.Kind = media.SignalFailed
	default:
		return media.SignalEvent{}, fmt.Errorf("unknown gateway signal %q", parsed.Event)
	}
	return event, nil
}
