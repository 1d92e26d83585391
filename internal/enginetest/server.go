// Package enginetest provides an in-process stand-in for the remote
// simulation engine: the full REST surface plus the per-simulation SSE
// stream, backed by an in-memory table. Integration tests and the demo
// command run against it.
package enginetest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/calebhart/simdash/internal/api"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const DefaultHeartbeatInterval = 15 * time.Second

// phaseRing is the execution cycle the engine steps through after the
// initialize phase.
var phaseRing = []api.SimulationPhase{
	api.PhaseEventGeneration,
	api.PhaseActionCollection,
	api.PhaseActionResolution,
	api.PhaseWorldUpdate,
	api.PhaseSnapshot,
}

// Server is the fake engine.
type Server struct {
	echo      *echo.Echo
	heartbeat time.Duration
	logger    *slog.Logger

	mu    sync.Mutex
	sims  map[string]*api.SimulationDetail
	order []string
	subs  map[string]map[chan api.StreamEvent]struct{}
}

// Option configures the server.
type Option func(*Server)

// WithHeartbeatInterval overrides the SSE heartbeat cadence. Tests shrink it.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a fake engine.
func NewServer(opts ...Option) *Server {
	s := &Server{
		heartbeat: DefaultHeartbeatInterval,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		sims:      make(map[string]*api.SimulationDetail),
		subs:      make(map[string]map[chan api.StreamEvent]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/simulations", s.handleList)
	e.POST("/simulations", s.handleCreate)
	e.GET("/simulations/:id", s.handleGet)
	e.DELETE("/simulations/:id", s.handleDelete)
	e.POST("/simulations/:id/start", s.handleStart)
	e.POST("/simulations/:id/advance", s.handleAdvance)
	e.POST("/simulations/:id/actions", s.handleInjectAction)
	e.POST("/simulations/:id/actors", s.handleAddActor)
	e.GET("/streams/simulations/:id", s.handleStream)

	s.echo = e
	return s
}

// Handler exposes the engine as an http.Handler for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until the process exits. Used by the demo command.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Seed installs a simulation directly, bypassing the create endpoint.
func (s *Server) Seed(detail api.SimulationDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sims[detail.ID]; !ok {
		s.order = append(s.order, detail.ID)
	}
	s.sims[detail.ID] = &detail
}

func errorJSON(c echo.Context, status int, errorType, detail string) error {
	return c.JSON(status, api.ServerError{ErrorType: errorType, Detail: detail})
}

func (s *Server) handleList(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	summaries := make([]api.SimulationSummary, 0, len(s.order))
	for _, id := range s.order {
		summaries = append(summaries, s.sims[id].Summary())
	}
	return c.JSON(http.StatusOK, summaries)
}

func (s *Server) handleGet(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.sims[c.Param("id")]
	if !ok {
		return errorJSON(c, http.StatusNotFound, "not_found",
			fmt.Sprintf("Simulation %s not found", c.Param("id")))
	}
	return c.JSON(http.StatusOK, sim)
}

func (s *Server) handleCreate(c echo.Context) error {
	var req api.CreateSimulationRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "malformed body")
	}
	if req.Name == "" || req.Scenario == "" {
		return errorJSON(c, http.StatusUnprocessableEntity, "validation", "name and scenario required")
	}

	now := time.Now().UTC()
	sim := &api.SimulationDetail{
		ID:           "sim-" + uuid.NewString()[:8],
		Name:         req.Name,
		Scenario:     req.Scenario,
		Status:       api.StatusCreated,
		CurrentPhase: api.PhaseInitialize,
		PhaseNumber:  0,
		CreatedAt:    &now,
		LastUpdated:  &now,
	}

	s.mu.Lock()
	s.sims[sim.ID] = sim
	s.order = append(s.order, sim.ID)
	copied := *sim
	s.mu.Unlock()

	s.publish(sim.ID, api.EventCreated, &copied, nil)
	return c.JSON(http.StatusCreated, copied)
}

func (s *Server) handleDelete(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	_, ok := s.sims[id]
	if ok {
		delete(s.sims, id)
		for i, known := range s.order {
			if known == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return errorJSON(c, http.StatusNotFound, "not_found",
			fmt.Sprintf("Simulation %s not found", id))
	}
	s.publish(id, api.EventDeleted, nil, nil)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStart(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	sim, ok := s.sims[id]
	if !ok {
		s.mu.Unlock()
		return errorJSON(c, http.StatusNotFound, "not_found",
			fmt.Sprintf("Simulation %s not found", id))
	}
	sim.Status = api.StatusRunning
	s.touchLocked(sim)
	copied := *sim
	s.mu.Unlock()

	s.publish(id, api.EventStarted, &copied, nil)
	return c.JSON(http.StatusOK, copied)
}

func (s *Server) handleAdvance(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	sim, ok := s.sims[id]
	if !ok {
		s.mu.Unlock()
		return errorJSON(c, http.StatusNotFound, "not_found",
			fmt.Sprintf("Simulation %s not found", id))
	}

	previous := sim.CurrentPhase
	sim.CurrentPhase = nextPhase(sim.CurrentPhase)
	sim.PhaseNumber++
	sim.Status = api.StatusRunning
	sim.PhaseHistory = append(sim.PhaseHistory, string(previous))
	sim.PhaseLog = append(sim.PhaseLog, api.PhaseLogEntry{
		Phase:     string(sim.CurrentPhase),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if sim.CurrentPhase == api.PhaseActionResolution {
		sim.PendingActions = nil
		sim.PendingActionCount = 0
	}
	s.touchLocked(sim)

	result := &api.PhaseAdvanceResult{
		SimulationID:  id,
		PreviousPhase: previous,
		CurrentPhase:  sim.CurrentPhase,
		PhaseNumber:   sim.PhaseNumber,
		Status:        sim.Status,
		Message:       fmt.Sprintf("Advanced from %s to %s", previous, sim.CurrentPhase),
	}
	copied := *sim
	s.mu.Unlock()

	s.publish(id, api.EventPhaseAdvanced, &copied, result)
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleInjectAction(c echo.Context) error {
	id := c.Param("id")
	var req api.InjectActionRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "malformed body")
	}
	if req.ActorID == "" {
		return errorJSON(c, http.StatusUnprocessableEntity, "validation", "actor_id required")
	}
	if req.Intent == "" {
		return errorJSON(c, http.StatusUnprocessableEntity, "validation", "intent required")
	}

	s.mu.Lock()
	sim, ok := s.sims[id]
	if !ok {
		s.mu.Unlock()
		return errorJSON(c, http.StatusNotFound, "not_found",
			fmt.Sprintf("Simulation %s not found", id))
	}
	now := time.Now().UTC()
	sim.PendingActions = append(sim.PendingActions, api.ActionSummary{
		ID:          "act-" + uuid.NewString()[:8],
		ActorID:     req.ActorID,
		Intent:      req.Intent,
		Description: req.Description,
		Status:      "pending",
		Priority:    "normal",
		CreatedAt:   &now,
		Metadata:    req.Metadata,
	})
	sim.PendingActionCount = len(sim.PendingActions)
	s.touchLocked(sim)
	copied := *sim
	s.mu.Unlock()

	s.publish(id, api.EventActionAdded, &copied, nil)
	return c.JSON(http.StatusCreated, copied)
}

func (s *Server) handleAddActor(c echo.Context) error {
	id := c.Param("id")
	var req api.AddActorRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request", "malformed body")
	}
	if req.ActorID == "" {
		return errorJSON(c, http.StatusUnprocessableEntity, "validation", "actor_id required")
	}

	s.mu.Lock()
	sim, ok := s.sims[id]
	if !ok {
		s.mu.Unlock()
		return errorJSON(c, http.StatusNotFound, "not_found",
			fmt.Sprintf("Simulation %s not found", id))
	}
	now := time.Now().UTC()
	sim.Actors = append(sim.Actors, api.ActorSummary{
		ID:          req.ActorID,
		Name:        req.ActorID,
		Type:        "npc",
		Active:      true,
		LastUpdated: &now,
	})
	s.touchLocked(sim)
	copied := *sim
	s.mu.Unlock()

	s.publish(id, api.EventActorAdded, &copied, nil)
	return c.JSON(http.StatusCreated, copied)
}

func (s *Server) handleStream(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	sim, ok := s.sims[id]
	var snapshot api.SimulationDetail
	if ok {
		snapshot = *sim
	}
	s.mu.Unlock()
	if !ok {
		return errorJSON(c, http.StatusNotFound, "not_found",
			fmt.Sprintf("Simulation %s not found", id))
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	events := s.subscribe(id)
	defer s.unsubscribe(id, events)

	summary := snapshot.Summary()
	initial := api.StreamEvent{
		Event:        api.EventSnapshot,
		SimulationID: id,
		TS:           time.Now().UTC(),
		Detail:       &snapshot,
		Summary:      &summary,
	}
	if err := writeFrame(w, initial); err != nil {
		return nil
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-events:
			if err := writeFrame(w, event); err != nil {
				return nil
			}
		case <-ticker.C:
			hb := api.StreamEvent{
				Event:        api.EventHeartbeat,
				SimulationID: id,
				TS:           time.Now().UTC(),
			}
			if err := writeFrame(w, hb); err != nil {
				return nil
			}
		}
	}
}

func writeFrame(w *echo.Response, event api.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func (s *Server) subscribe(id string) chan api.StreamEvent {
	ch := make(chan api.StreamEvent, 16)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[id] == nil {
		s.subs[id] = make(map[chan api.StreamEvent]struct{})
	}
	s.subs[id][ch] = struct{}{}
	return ch
}

func (s *Server) unsubscribe(id string, ch chan api.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[id], ch)
}

// publish fans an event out to every stream subscriber of the simulation.
func (s *Server) publish(id, name string, detail *api.SimulationDetail, result *api.PhaseAdvanceResult) {
	event := api.StreamEvent{
		Event:        name,
		SimulationID: id,
		TS:           time.Now().UTC(),
		Detail:       detail,
		PhaseResult:  result,
	}
	if detail != nil {
		summary := detail.Summary()
		event.Summary = &summary
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs[id] {
		select {
		case ch <- event:
		default:
			s.logger.Warn("dropping stream event for slow subscriber", "simulation_id", id)
		}
	}
}

func (s *Server) touchLocked(sim *api.SimulationDetail) {
	now := time.Now().UTC()
	sim.LastUpdated = &now
}

func nextPhase(current api.SimulationPhase) api.SimulationPhase {
	for i, phase := range phaseRing {
		if phase == current {
			return phaseRing[(i+1)%len(phaseRing)]
		}
	}
	// initialize (or anything unknown) enters the ring at the top
	return phaseRing[0]
}
