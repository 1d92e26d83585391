package sync

import (
	"time"

	"github.com/calebhart/simdash/internal/api"
)

// UpsertSummary folds one summary into the collection by identity. An
// existing entry is replaced in its slot; a new one is appended. Upsert never
// reorders, and applying the same record twice is a no-op the second time.
func UpsertSummary(list []api.SimulationSummary, summary api.SimulationSummary) []api.SimulationSummary {
	for i := range list {
		if list[i].ID == summary.ID {
			list[i] = summary
			return list
		}
	}
	return append(list, summary)
}

// RemoveSummary deletes the entry with the given id, preserving the order of
// the remainder. Absent ids are ignored.
func RemoveSummary(list []api.SimulationSummary, id string) []api.SimulationSummary {
	for i := range list {
		if list[i].ID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// clientState is the canonical local copy of remote simulation state. It is
// owned by the client's run loop and mutated nowhere else.
type clientState struct {
	summaries       []api.SimulationSummary
	active          *api.SimulationDetail
	connState       ConnState
	lastHeartbeat   time.Time
	lastPhaseResult *api.PhaseAdvanceResult
	fetchPending    bool
	submitPending   bool
	lastErr         error
}

// applyDetail merges a full detail: the derived summary is upserted in the
// same logical step so list and detail views can never disagree, and the
// active detail is replaced wholesale when unset or matching.
func (s *clientState) applyDetail(detail *api.SimulationDetail) {
	s.summaries = UpsertSummary(s.summaries, detail.Summary())
	if s.active == nil || s.active.ID == detail.ID {
		s.active = detail
	}
}

// applyEnvelope folds one stream envelope (or a mutation response routed
// through the same path) into local state. Heartbeats carry no data and are
// handled by the caller; everything else implies forward progress, so
// in-flight busy flags and any surfaced error are cleared.
func (s *clientState) applyEnvelope(event api.StreamEvent) {
	if event.Heartbeat() {
		return
	}

	if event.Event == api.EventDeleted {
		s.remove(event.SimulationID)
	} else {
		switch {
		case event.Summary != nil:
			s.summaries = UpsertSummary(s.summaries, *event.Summary)
		case event.Detail != nil:
			s.summaries = UpsertSummary(s.summaries, event.Detail.Summary())
		}
		if event.Detail != nil && (s.active == nil || s.active.ID == event.SimulationID) {
			s.active = event.Detail
		}
	}

	if event.PhaseResult != nil {
		s.lastPhaseResult = event.PhaseResult
	}

	s.fetchPending = false
	s.submitPending = false
	s.lastErr = nil
}

// remove drops a simulation after the server acknowledged its deletion.
func (s *clientState) remove(id string) {
	s.summaries = RemoveSummary(s.summaries, id)
	if s.active != nil && s.active.ID == id {
		s.active = nil
	}
}
