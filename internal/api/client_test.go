package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calebhart/simdash/internal/api"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *api.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return api.NewClient(server.URL, server.Client(), nil)
}

func TestListSimulations_Empty(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/simulations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))

	summaries, err := client.ListSimulations(context.Background())
	require.NoError(t, err)
	require.Empty(t, summaries)
}

func TestGetSimulation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simulations/sim-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(api.SimulationDetail{
			ID:           "sim-1",
			Name:         "First Contact",
			Scenario:     "simple_town",
			Status:       api.StatusCreated,
			CurrentPhase: api.PhaseInitialize,
		})
	}))

	detail, err := client.GetSimulation(context.Background(), "sim-1")
	require.NoError(t, err)
	require.Equal(t, "sim-1", detail.ID)
	require.Equal(t, api.StatusCreated, detail.Status)
	require.Equal(t, 0, detail.PhaseNumber)
}

func TestCreateSimulation_SendsBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req api.CreateSimulationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "Town", req.Name)
		require.Equal(t, "simple_town", req.Scenario)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.SimulationDetail{ID: "sim-new", Name: req.Name, Scenario: req.Scenario})
	}))

	detail, err := client.CreateSimulation(context.Background(), api.CreateSimulationRequest{
		Name:     "Town",
		Scenario: "simple_town",
	})
	require.NoError(t, err)
	require.Equal(t, "sim-new", detail.ID)
}

func TestServerError_StructuredBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_type":"validation","detail":"intent required"}`))
	}))

	_, err := client.InjectAction(context.Background(), "sim-1", api.InjectActionRequest{ActorID: "actor-1"})
	require.Error(t, err)

	var serverErr *api.ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, "validation", serverErr.ErrorType)
	require.Equal(t, "intent required", serverErr.Detail)
	require.Equal(t, http.StatusUnprocessableEntity, serverErr.StatusCode)
}

func TestServerError_NotFoundSentinel(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_type":"not_found","detail":"Simulation sim-9 not found"}`))
	}))

	_, err := client.GetSimulation(context.Background(), "sim-9")
	require.ErrorIs(t, err, api.ErrSimulationNotFound)
}

func TestTransportError_Unreachable(t *testing.T) {
	// Port 0 never accepts connections.
	client := api.NewClient("http://127.0.0.1:0", nil, nil)

	_, err := client.ListSimulations(context.Background())
	require.Error(t, err)

	var transportErr *api.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestDeleteSimulation_NoContent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.DeleteSimulation(context.Background(), "sim-1"))
}

func TestSummaryFromDetail_FieldAgreement(t *testing.T) {
	detail := &api.SimulationDetail{
		ID:                 "sim-1",
		Name:               "Town",
		Scenario:           "simple_town",
		Status:             api.StatusRunning,
		CurrentPhase:       api.PhaseWorldUpdate,
		PhaseNumber:        4,
		PendingActionCount: 2,
		PendingEventCount:  1,
		Actors:             []api.ActorSummary{{ID: "actor-1", Name: "Ada", Type: "npc", Active: true}},
	}

	summary := detail.Summary()
	require.Equal(t, api.SimulationSummary{
		ID:                 "sim-1",
		Name:               "Town",
		Status:             api.StatusRunning,
		CurrentPhase:       api.PhaseWorldUpdate,
		PhaseNumber:        4,
		PendingActionCount: 2,
		PendingEventCount:  1,
	}, summary)
}
