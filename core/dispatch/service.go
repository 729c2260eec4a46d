package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	orchestration "github.com/outdial/outdial-core/core"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Service accepts call requests over HTTP and runs one orchestrator per
// accepted request.
type Service struct {
	config          *Config
	newOrchestrator orchestratorFactory

	mu       sync.Mutex
	sessions map[string]*runningCall
	// archive keeps final snapshots of retired sessions for GET, bounded
	// FIFO by archiveIDs.
	archive    map[string]orchestration.Snapshot
	archiveIDs []string

	calls   sync.WaitGroup
	baseCtx context.Context
}

// archivedCallLimit bounds how many retired sessions stay queryable.
const archivedCallLimit = 1024

// runningCall tracks a live orchestrator so the service can report on it and
// end it on shutdown or on request.
type runningCall struct {
	orchestrator *orchestration.Orchestrator
}

type ServiceOption func(*Service)

// WithOrchestratorFactory replaces the provider-backed factory, for tests.
func WithOrchestratorFactory(factory orchestratorFactory) ServiceOption {
	return func(s *Service) { s.newOrchestrator = factory }
}

func NewService(config *Config, opts ...ServiceOption) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	service := &Service{
		config:   config,
		sessions: map[string]*runningCall{},
		archive:  map[string]orchestration.Snapshot{},
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.newOrchestrator == nil {
		factory, err := newOrchestratorFactory(config)
		if err != nil {
			return nil, err
		}
		service.newOrchestrator = factory
	}
	return service, nil
}

// Handler returns the service's HTTP routes, wrapped for tracing.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", s.handleCreateCall)
	mux.HandleFunc("GET /call/{id}", s.handleGetCall)
	mux.HandleFunc("POST /call/{id}/end", s.handleEndCall)
	return otelhttp.NewHandler(mux, "dispatch")
}

// Run serves the HTTP API until the context is cancelled, then shuts the
// server down and ends every session still in flight.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.baseCtx = ctx

	server := &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.InfoContext(ctx, "dispatch service listening", "addr", s.config.ListenAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving dispatch API: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer shutdownCancel()
		err := server.Shutdown(shutdownCtx)

		s.endAllSessions()
		s.calls.Wait()
		return err
	})
	return group.Wait()
}

// endAllSessions asks each live orchestrator to end gracefully. Sessions that
// do not wind down on their own are cut off by their cancelled contexts.
func (s *Service) endAllSessions() {
	s.mu.Lock()
	running := make([]*runningCall, 0, len(s.sessions))
	for _, call := range s.sessions {
		running = append(running, call)
	}
	s.mu.Unlock()

	for _, call := range running {
		call.orchestrator.EndCall()
	}
}

type callRequest struct {
	PhoneNumber string            `json:"phone_number"`
	TransferTo  string            `json:"transfer_to,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type callResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func (s *Service) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "create call")
	defer span.End()

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "phone_number is required")
		return
	}

	sessionOpts := []orchestration.SessionOption{}
	if req.TransferTo != "" {
		sessionOpts = append(sessionOpts, orchestration.WithTransferTo(req.TransferTo))
	}
	if len(req.Metadata) > 0 {
		sessionOpts = append(sessionOpts, orchestration.WithMetadata(req.Metadata))
	}
	session := orchestration.NewCallSession(req.PhoneNumber, sessionOpts...)
	span.SetAttributes(attribute.String("session.id", session.ID))

	orchestrator, err := s.newOrchestrator(session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "building orchestrator")
		writeError(w, http.StatusInternalServerError, "failed to set up call")
		return
	}

	// The call outlives the request, it runs on the service context.
	s.launch(session.ID, orchestrator)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(callResponse{
		ID:    session.ID,
		State: string(session.State()),
	})
}

// launch registers the session and runs its orchestrator on the service
// context, detached from the originating HTTP request.
func (s *Service) launch(id string, orchestrator *orchestration.Orchestrator) {
	base := s.baseCtx
	if base == nil {
		base = context.Background()
	}
	callCtx, callCancel := context.WithCancel(base)

	s.mu.Lock()
	s.sessions[id] = &runningCall{orchestrator: orchestrator}
	s.mu.Unlock()

	s.calls.Add(1)
	go func() {
		defer s.calls.Done()
		defer callCancel()
		if err := orchestrator.Run(callCtx); err != nil {
			logger.ErrorContext(callCtx, "call session failed", "session_id", id, "error", err)
		}
		s.retire(id, orchestrator.Session().Snapshot())
	}()
}

// retire moves a finished session out of the live map into the bounded
// archive, evicting the oldest retired entry past the limit.
func (s *Service) retire(id string, snapshot orchestration.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	if _, archived := s.archive[id]; !archived {
		s.archiveIDs = append(s.archiveIDs, id)
	}
	s.archive[id] = snapshot

	for len(s.archiveIDs) > archivedCallLimit {
		oldest := s.archiveIDs[0]
		s.archiveIDs = s.archiveIDs[1:]
		delete(s.archive, oldest)
	}
}

func (s *Service) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	call, live := s.sessions[id]
	archived, retired := s.archive[id]
	s.mu.Unlock()

	var snapshot orchestration.Snapshot
	switch {
	case live:
		snapshot = call.orchestrator.Session().Snapshot()
	case retired:
		snapshot = archived
	default:
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshotResponse(snapshot))
}

func (s *Service) handleEndCall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	call, live := s.sessions[id]
	_, retired := s.archive[id]
	s.mu.Unlock()

	switch {
	case live:
		call.orchestrator.EndCall()
	case retired:
		// Already over; ending again is a no-op.
	default:
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type callSnapshot struct {
	ID          string            `json:"id"`
	PhoneNumber string            `json:"phone_number"`
	TransferTo  string            `json:"transfer_to,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	State       string            `json:"state"`
	EndReason   string            `json:"end_reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	AnsweredAt  *time.Time        `json:"answered_at,omitempty"`
	EndedAt     *time.Time        `json:"ended_at,omitempty"`
	Turns       []turnSnapshot    `json:"turns"`
}

type turnSnapshot struct {
	Speaker     string        `json:"speaker"`
	Text        string        `json:"text"`
	StartOffset time.Duration `json:"start_offset_ns"`
	EndOffset   time.Duration `json:"end_offset_ns"`
	Confidence  *float64      `json:"confidence,omitempty"`
}

func snapshotResponse(snapshot orchestration.Snapshot) callSnapshot {
	response := callSnapshot{
		ID:          snapshot.ID,
		PhoneNumber: snapshot.PhoneNumber,
		TransferTo:  snapshot.TransferTo,
		Metadata:    snapshot.Metadata,
		State:       string(snapshot.State),
		EndReason:   string(snapshot.EndReason),
		CreatedAt:   snapshot.CreatedAt,
		AnsweredAt:  snapshot.AnsweredAt,
		EndedAt:     snapshot.EndedAt,
		Turns:       make([]turnSnapshot, 0, len(snapshot.Turns)),
	}
	for _, turn := range snapshot.Turns {
		response.Turns = append(response.Turns, turnSnapshot{
			Speaker:     string(turn.Speaker),
			Text:        turn.Text,
			StartOffset: turn.StartOffset,
			EndOffset:   turn.EndOffset,
			Confidence:  turn.Confidence,
		})
	}
	return response
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
