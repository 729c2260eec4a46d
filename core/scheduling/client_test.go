package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLookupAvailabilityDecodesSlots(t *testing.T) {
	var capturedDate, capturedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/availability" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		capturedDate = r.URL.Query().Get("date")
		capturedAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"slots":[
			{"start":"2026-09-01T14:00:00Z","end":"2026-09-01T14:30:00Z","location":"Main St"},
			{"start":"2026-09-01T15:00:00Z","end":"2026-09-01T15:30:00Z"}
		]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	slots, err := client.LookupAvailability(context.Background(), "next Tuesday afternoon")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	if capturedDate != "next Tuesday afternoon" {
		t.Fatalf("expected the date hint to be forwarded, got %q", capturedDate)
	}
	if capturedAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth, got %q", capturedAuth)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].Location != "Main St" {
		t.Fatalf("expected the location to decode, got %q", slots[0].Location)
	}
	if want := time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC); !slots[0].Start.Equal(want) {
		t.Fatalf("expected start %s, got %s", want, slots[0].Start)
	}
}

func TestConfirmAppointmentPostsSlot(t *testing.T) {
	var captured struct {
		PhoneNumber string    `json:"phone_number"`
		Start       time.Time `json:"start"`
		End         time.Time `json:"end"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/appointments" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		_, _ = w.Write([]byte(`{"appointment_id":"appt-42","start":"2026-09-01T14:00:00Z"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	slot := Slot{
		Start: time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC),
	}
	confirmation, err := client.ConfirmAppointment(context.Background(), "+15550001111", slot)
	if err != nil {
		t.Fatalf("confirmation failed: %v", err)
	}

	if captured.PhoneNumber != "+15550001111" {
		t.Fatalf("expected the phone number to be posted, got %q", captured.PhoneNumber)
	}
	if !captured.Start.Equal(slot.Start) || !captured.End.Equal(slot.End) {
		t.Fatalf("expected the slot bounds to be posted, got %s - %s", captured.Start, captured.End)
	}
	if confirmation.AppointmentID != "appt-42" {
		t.Fatalf("expected appointment id appt-42, got %q", confirmation.AppointmentID)
	}
}

func TestBackendErrorSurfacesStatusAndPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slot already taken", http.StatusConflict)
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = client.ConfirmAppointment(context.Background(), "+15550001111", Slot{Start: time.Now()})
	if err == nil {
		t.Fatalf("expected a backend error")
	}
	if !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "slot already taken") {
		t.Fatalf("expected status and payload in the error, got %v", err)
	}
}

func TestRequestTimeoutBoundsSlowBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL, WithRequestTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	start := time.Now()
	if _, err := client.LookupAvailability(context.Background(), "tomorrow"); err == nil {
		t.Fatalf("expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected the timeout to cut the call short, took %s", elapsed)
	}
}
