package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/calebhart/simdash/internal/api"
	"github.com/stretchr/testify/require"
)

func summaryFixture(id string, phase int) api.SimulationSummary {
	return api.SimulationSummary{
		ID:           id,
		Name:         "sim " + id,
		Status:       api.StatusRunning,
		CurrentPhase: api.PhaseWorldUpdate,
		PhaseNumber:  phase,
	}
}

func detailFixture(id string, phase int) *api.SimulationDetail {
	return &api.SimulationDetail{
		ID:           id,
		Name:         "sim " + id,
		Scenario:     "simple_town",
		Status:       api.StatusRunning,
		CurrentPhase: api.PhaseWorldUpdate,
		PhaseNumber:  phase,
	}
}

func TestUpsertSummary_Idempotent(t *testing.T) {
	list := UpsertSummary(nil, summaryFixture("sim-1", 1))
	once := UpsertSummary(list, summaryFixture("sim-2", 0))
	twice := UpsertSummary(once, summaryFixture("sim-2", 0))

	require.Equal(t, once, twice)
	require.Len(t, twice, 2)
}

func TestUpsertSummary_ReplacesInPlaceWithoutReordering(t *testing.T) {
	list := []api.SimulationSummary{
		summaryFixture("sim-1", 1),
		summaryFixture("sim-2", 2),
		summaryFixture("sim-3", 3),
	}

	list = UpsertSummary(list, summaryFixture("sim-2", 9))

	require.Len(t, list, 3)
	require.Equal(t, []string{"sim-1", "sim-2", "sim-3"},
		[]string{list[0].ID, list[1].ID, list[2].ID})
	require.Equal(t, 9, list[1].PhaseNumber)
}

func TestUpsertSummary_NeverDuplicates(t *testing.T) {
	var list []api.SimulationSummary
	for i := 0; i < 10; i++ {
		list = UpsertSummary(list, summaryFixture("sim-1", i))
		list = UpsertSummary(list, summaryFixture("sim-2", i))
	}
	require.Len(t, list, 2)
}

func TestRemoveSummary(t *testing.T) {
	list := []api.SimulationSummary{
		summaryFixture("sim-1", 1),
		summaryFixture("sim-2", 2),
		summaryFixture("sim-3", 3),
	}

	list = RemoveSummary(list, "sim-2")
	require.Equal(t, []string{"sim-1", "sim-3"}, []string{list[0].ID, list[1].ID})

	list = RemoveSummary(list, "sim-9")
	require.Len(t, list, 2)
}

func TestApplyDetail_SummaryAgreement(t *testing.T) {
	var st clientState
	detail := detailFixture("sim-1", 4)
	detail.PendingActions = []api.ActionSummary{{ID: "act-1", ActorID: "actor-1", Intent: "wave"}}
	detail.PendingActionCount = 1

	st.applyDetail(detail)

	require.Len(t, st.summaries, 1)
	require.Equal(t, detail.Summary(), st.summaries[0])
	require.Same(t, detail, st.active)
}

func TestApplyEnvelope_DetailForOtherSimulationLeavesActiveUntouched(t *testing.T) {
	var st clientState
	st.applyDetail(detailFixture("sim-2", 0))

	st.applyEnvelope(api.StreamEvent{
		Event:        api.EventPhaseAdvanced,
		SimulationID: "sim-1",
		Detail:       detailFixture("sim-1", 1),
	})

	require.Equal(t, "sim-2", st.active.ID)
	require.Len(t, st.summaries, 2)
	for _, s := range st.summaries {
		if s.ID == "sim-1" {
			require.Equal(t, 1, s.PhaseNumber)
		}
	}
}

func TestApplyEnvelope_DetailAdoptedWhenNoneActive(t *testing.T) {
	var st clientState

	st.applyEnvelope(api.StreamEvent{
		Event:        api.EventSnapshot,
		SimulationID: "sim-1",
		Detail:       detailFixture("sim-1", 0),
	})

	require.NotNil(t, st.active)
	require.Equal(t, "sim-1", st.active.ID)
}

func TestApplyEnvelope_ClearsBusyFlagsAndError(t *testing.T) {
	st := clientState{
		fetchPending:  true,
		submitPending: true,
		lastErr:       errors.New("previous failure"),
	}

	st.applyEnvelope(api.StreamEvent{
		Event:        api.EventStarted,
		SimulationID: "sim-1",
		Summary:      ptr(summaryFixture("sim-1", 0)),
	})

	require.False(t, st.fetchPending)
	require.False(t, st.submitPending)
	require.NoError(t, st.lastErr)
}

func TestApplyEnvelope_HeartbeatIsDataFree(t *testing.T) {
	st := clientState{
		summaries: []api.SimulationSummary{summaryFixture("sim-1", 2)},
		lastErr:   errors.New("pending failure"),
	}
	st.applyDetail(detailFixture("sim-1", 2))

	st.applyEnvelope(api.StreamEvent{Event: api.EventHeartbeat, SimulationID: "sim-1", TS: time.Now()})

	require.Len(t, st.summaries, 1)
	require.Equal(t, 2, st.summaries[0].PhaseNumber)
	require.Equal(t, "sim-1", st.active.ID)
	require.Error(t, st.lastErr)
}

func TestApplyEnvelope_Idempotent(t *testing.T) {
	var st clientState
	event := api.StreamEvent{
		Event:        api.EventPhaseAdvanced,
		SimulationID: "sim-1",
		Detail:       detailFixture("sim-1", 3),
	}

	st.applyEnvelope(event)
	first := append([]api.SimulationSummary(nil), st.summaries...)
	st.applyEnvelope(event)

	require.Equal(t, first, st.summaries)
	require.Equal(t, "sim-1", st.active.ID)
}

func TestApplyEnvelope_DeletionAcknowledgment(t *testing.T) {
	var st clientState
	st.applyDetail(detailFixture("sim-1", 1))
	st.summaries = UpsertSummary(st.summaries, summaryFixture("sim-2", 0))

	st.applyEnvelope(api.StreamEvent{Event: api.EventDeleted, SimulationID: "sim-1"})

	require.Nil(t, st.active)
	require.Len(t, st.summaries, 1)
	require.Equal(t, "sim-2", st.summaries[0].ID)
}

func TestApplyEnvelope_KeepsPhaseResult(t *testing.T) {
	var st clientState
	st.applyEnvelope(api.StreamEvent{
		Event:        api.EventPhaseAdvanced,
		SimulationID: "sim-1",
		PhaseResult: &api.PhaseAdvanceResult{
			SimulationID:  "sim-1",
			PreviousPhase: api.PhaseInitialize,
			CurrentPhase:  api.PhaseEventGeneration,
			PhaseNumber:   1,
			Status:        api.StatusRunning,
			Message:       "Advanced from initialize to event_generation",
		},
	})

	require.NotNil(t, st.lastPhaseResult)
	require.Equal(t, 1, st.lastPhaseResult.PhaseNumber)
}

func ptr[T any](v T) *T {
	return &v
}
