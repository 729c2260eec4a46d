package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultRequestTimeout = 5 * time.Second

// Client talks to the scheduling backend that owns appointment slots. All
// calls are bounded by a per-request timeout so a slow backend cannot stall
// a live conversation.
type Client struct {
	baseURL        string
	apiKey         string
	requestTimeout time.Duration

	httpClient *http.Client
}

type ClientOption func(*Client)

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid scheduling base url: %w", err)
	}

	client := &Client{
		baseURL:        baseURL,
		requestTimeout: defaultRequestTimeout,
		httpClient:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithRequestTimeout bounds every scheduling call. Non-positive values are
// ignored.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// Slot is an open appointment window offered by the scheduling backend.
type Slot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location,omitempty"`
}

// LookupAvailability fetches open slots for the given date hint. The hint is
// free-form text as spoken by the callee ("next Tuesday afternoon"), the
// backend resolves it.
func (c *Client) LookupAvailability(ctx context.Context, dateHint string) ([]Slot, error) {
	ctx, span := tracer.Start(ctx, "scheduling.lookup_availability")
	defer span.End()
	span.SetAttributes(attribute.String("scheduling.date_hint", dateHint))

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("date", dateHint)
	var response struct {
		Slots []Slot `json:"slots"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/availability?"+query.Encode(), nil, &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "availability lookup failed")
		return nil, fmt.Errorf("failed to look up availability: %w", err)
	}

	span.SetAttributes(attribute.Int("scheduling.slots", len(response.Slots)))
	return response.Slots, nil
}

// Confirmation is the scheduling backend's receipt for a booked appointment.
type Confirmation struct {
	AppointmentID string    `json:"appointment_id"`
	Start         time.Time `json:"start"`
}

// ConfirmAppointment books a slot for the callee identified by phone number.
func (c *Client) ConfirmAppointment(ctx context.Context, phoneNumber string, slot Slot) (*Confirmation, error) {
	ctx, span := tracer.Start(ctx, "scheduling.confirm_appointment")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	request := struct {
		PhoneNumber string    `json:"phone_number"`
		Start       time.Time `json:"start"`
		End         time.Time `json:"end"`
	}{PhoneNumber: phoneNumber, Start: slot.Start, End: slot.End}

	var confirmation Confirmation
	if err := c.do(ctx, http.MethodPost, "/v1/appointments", request, &confirmation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "appointment confirmation failed")
		return nil, fmt.Errorf("failed to confirm appointment: %w", err)
	}

	span.SetAttributes(attribute.String("scheduling.appointment_id", confirmation.AppointmentID))
	return &confirmation, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("scheduling backend returned %s: %s", resp.Status, payload)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
