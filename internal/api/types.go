package api

import "time"

// SimulationStatus represents the lifecycle status of a simulation.
type SimulationStatus string

const (
	StatusCreated   SimulationStatus = "created"
	StatusRunning   SimulationStatus = "running"
	StatusPaused    SimulationStatus = "paused"
	StatusCompleted SimulationStatus = "completed"
	StatusError     SimulationStatus = "error"
)

// SimulationPhase represents the engine's current execution phase.
type SimulationPhase string

const (
	PhaseInitialize       SimulationPhase = "initialize"
	PhaseEventGeneration  SimulationPhase = "event_generation"
	PhaseActionCollection SimulationPhase = "action_collection"
	PhaseActionResolution SimulationPhase = "action_resolution"
	PhaseWorldUpdate      SimulationPhase = "world_update"
	PhaseSnapshot         SimulationPhase = "snapshot"
	PhasePaused           SimulationPhase = "paused"
	PhaseCompleted        SimulationPhase = "completed"
)

// SimulationSummary is the lightweight list-view projection of a simulation.
type SimulationSummary struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Status             SimulationStatus `json:"status"`
	CurrentPhase       SimulationPhase  `json:"current_phase"`
	PhaseNumber        int              `json:"phase_number"`
	PendingActionCount int              `json:"pending_action_count"`
	PendingEventCount  int              `json:"pending_event_count"`
	LastUpdated        *time.Time       `json:"last_updated,omitempty"`
}

// SimulationDetail is the full projection of a simulation including
// sub-entities and the phase execution log.
type SimulationDetail struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Scenario           string           `json:"scenario"`
	Status             SimulationStatus `json:"status"`
	CurrentPhase       SimulationPhase  `json:"current_phase"`
	PhaseNumber        int              `json:"phase_number"`
	PendingActionCount int              `json:"pending_action_count"`
	PendingEventCount  int              `json:"pending_event_count"`
	CreatedAt          *time.Time       `json:"created_at,omitempty"`
	LastUpdated        *time.Time       `json:"last_updated,omitempty"`
	PhaseHistory       []string         `json:"phase_history,omitempty"`
	PhaseLog           []PhaseLogEntry  `json:"phase_log,omitempty"`
	Actors             []ActorSummary   `json:"actors,omitempty"`
	PendingActions     []ActionSummary  `json:"pending_actions,omitempty"`
	PendingEvents      []EventSummary   `json:"pending_events,omitempty"`
	Metadata           map[string]any   `json:"metadata,omitempty"`
}

// PhaseLogEntry describes one previously executed phase.
type PhaseLogEntry struct {
	Phase     string   `json:"phase"`
	Timestamp string   `json:"timestamp,omitempty"`
	Notes     []string `json:"notes,omitempty"`
}

// ActorSummary is the list representation of an actor in a simulation.
type ActorSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Active      bool       `json:"active"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// ActionSummary is the list representation of a pending action.
type ActionSummary struct {
	ID          string         `json:"id"`
	ActorID     string         `json:"actor_id"`
	Intent      string         `json:"intent"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	Priority    string         `json:"priority"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// EventSummary is the list representation of a pending event.
type EventSummary struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Type         string     `json:"type"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// PhaseAdvanceResult is returned by the advance endpoint.
type PhaseAdvanceResult struct {
	SimulationID  string           `json:"simulation_id"`
	PreviousPhase SimulationPhase  `json:"previous_phase"`
	CurrentPhase  SimulationPhase  `json:"current_phase"`
	PhaseNumber   int              `json:"phase_number"`
	Status        SimulationStatus `json:"status"`
	Message       string           `json:"message"`
}

// Stream event names emitted by the engine.
const (
	EventSnapshot      = "simulation.snapshot"
	EventCreated       = "simulation.created"
	EventStarted       = "simulation.started"
	EventPhaseAdvanced = "simulation.phase_advanced"
	EventActionAdded   = "simulation.action_added"
	EventActorAdded    = "simulation.actor_added"
	EventDeleted       = "simulation.deleted"
	EventHeartbeat     = "heartbeat"
)

// StreamEvent is one envelope received on the push channel. At most one of
// Detail and Summary is meaningful per event; a heartbeat carries neither.
type StreamEvent struct {
	Event        string              `json:"event"`
	SimulationID string              `json:"simulation_id"`
	TS           time.Time           `json:"ts"`
	Detail       *SimulationDetail   `json:"detail,omitempty"`
	Summary      *SimulationSummary  `json:"summary,omitempty"`
	PhaseResult  *PhaseAdvanceResult `json:"phase_result,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
}

// Heartbeat reports whether the event is a liveness-only envelope.
func (e StreamEvent) Heartbeat() bool {
	return e.Event == EventHeartbeat
}

// CreateSimulationRequest is the body for POST /simulations.
type CreateSimulationRequest struct {
	Name     string `json:"name"`
	Scenario string `json:"scenario"`
}

// InjectActionRequest is the body for POST /simulations/{id}/actions.
type InjectActionRequest struct {
	ActorID     string         `json:"actor_id"`
	Intent      string         `json:"intent"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AddActorRequest is the body for POST /simulations/{id}/actors.
type AddActorRequest struct {
	ActorID string `json:"actor_id"`
}

// Summary projects the detail down to its list-view representation. The
// result must match what the engine would have sent standalone for the same
// simulation state.
func (d *SimulationDetail) Summary() SimulationSummary {
	return SimulationSummary{
		ID:                 d.ID,
		Name:               d.Name,
		Status:             d.Status,
		CurrentPhase:       d.CurrentPhase,
		PhaseNumber:        d.PhaseNumber,
		PendingActionCount: d.PendingActionCount,
		PendingEventCount:  d.PendingEventCount,
		LastUpdated:        d.LastUpdated,
	}
}
