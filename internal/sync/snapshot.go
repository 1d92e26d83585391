package sync

import (
	"maps"
	"slices"
	"time"

	"github.com/calebhart/simdash/internal/api"
)

// Snapshot is a read-only observed copy of the client's state. It is detached
// from the live collections; mutating it has no effect on the client, and the
// client's next update does not alter an already delivered snapshot.
type Snapshot struct {
	Simulations     []api.SimulationSummary
	Active          *api.SimulationDetail
	SelectedID      string
	Connection      ConnState
	LastHeartbeat   time.Time
	LastPhaseResult *api.PhaseAdvanceResult
	FetchPending    bool
	SubmitPending   bool
	Err             error
}

func cloneSummaries(list []api.SimulationSummary) []api.SimulationSummary {
	return slices.Clone(list)
}

func cloneDetail(d *api.SimulationDetail) *api.SimulationDetail {
	if d == nil {
		return nil
	}
	out := *d
	out.PhaseHistory = slices.Clone(d.PhaseHistory)
	out.PhaseLog = slices.Clone(d.PhaseLog)
	out.Actors = slices.Clone(d.Actors)
	out.PendingActions = slices.Clone(d.PendingActions)
	out.PendingEvents = slices.Clone(d.PendingEvents)
	out.Metadata = maps.Clone(d.Metadata)
	return &out
}

func clonePhaseResult(r *api.PhaseAdvanceResult) *api.PhaseAdvanceResult {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}
