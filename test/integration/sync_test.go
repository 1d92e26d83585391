package integration_test

import (
	"context"
	"net/http/httptest"
	stdsync "sync"
	"testing"
	"time"

	"github.com/calebhart/simdash/internal/api"
	"github.com/calebhart/simdash/internal/enginetest"
	"github.com/calebhart/simdash/internal/stream"
	"github.com/calebhart/simdash/internal/sync"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	engine *enginetest.Server
	api    *api.Client
	client *sync.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	engine := enginetest.NewServer(enginetest.WithHeartbeatInterval(50 * time.Millisecond))
	server := httptest.NewServer(engine.Handler())
	t.Cleanup(server.Close)

	apiClient := api.NewClient(server.URL, nil, nil)
	subscriber := stream.NewSubscriber(server.URL, nil, nil)
	client := sync.NewClient(apiClient, sync.NewStreamOpener(subscriber), sync.Options{
		PollInterval: 50 * time.Millisecond,
		Backoff:      sync.Backoff{Base: 10 * time.Millisecond, Max: 100 * time.Millisecond},
	})
	t.Cleanup(client.Close)

	return &testEnv{engine: engine, api: apiClient, client: client}
}

func waitStreaming(t *testing.T, client *sync.Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		return client.Snapshot().Connection == sync.StateStreaming
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEndToEnd_CreateSelectAndStream(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	summaries, err := env.client.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, summaries)

	created, err := env.client.Create(ctx, "Town", "simple_town")
	require.NoError(t, err)
	require.Equal(t, api.StatusCreated, created.Status)
	require.Equal(t, 0, created.PhaseNumber)

	_, err = env.client.Select(ctx, created.ID)
	require.NoError(t, err)
	waitStreaming(t, env.client)

	snap := env.client.Snapshot()
	require.Equal(t, created.ID, snap.SelectedID)
	require.Len(t, snap.Simulations, 1)
	require.Equal(t, snap.Active.Summary(), snap.Simulations[0])
}

func TestEndToEnd_OutOfBandMutationArrivesByPush(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.client.Create(ctx, "Town", "simple_town")
	require.NoError(t, err)
	_, err = env.client.Select(ctx, created.ID)
	require.NoError(t, err)
	waitStreaming(t, env.client)

	// mutate behind the sync client's back, as another dashboard would
	result, err := env.api.AdvanceSimulation(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.PhaseNumber)

	require.Eventually(t, func() bool {
		snap := env.client.Snapshot()
		return snap.Active != nil && snap.Active.PhaseNumber == 1
	}, 5*time.Second, 10*time.Millisecond)

	snap := env.client.Snapshot()
	require.Equal(t, snap.Active.Summary(), snap.Simulations[0])
	require.Equal(t, api.PhaseEventGeneration, snap.Active.CurrentPhase)
}

func TestEndToEnd_HeartbeatsKeepLivenessFresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.client.Create(ctx, "Town", "simple_town")
	require.NoError(t, err)
	_, err = env.client.Select(ctx, created.ID)
	require.NoError(t, err)
	waitStreaming(t, env.client)

	first := env.client.Snapshot().LastHeartbeat
	require.False(t, first.IsZero())

	require.Eventually(t, func() bool {
		return env.client.Snapshot().LastHeartbeat.After(first)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEndToEnd_SubmitActionReadYourWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.client.Create(ctx, "Town", "simple_town")
	require.NoError(t, err)
	_, err = env.client.Select(ctx, created.ID)
	require.NoError(t, err)
	waitStreaming(t, env.client)

	_, err = env.client.SubmitAction(ctx, created.ID, api.InjectActionRequest{
		ActorID: "actor-1",
		Intent:  "greet the mayor",
	})
	require.NoError(t, err)

	snap := env.client.Snapshot()
	require.Len(t, snap.Active.PendingActions, 1)
	require.Equal(t, "greet the mayor", snap.Active.PendingActions[0].Intent)
	require.Equal(t, 1, snap.Simulations[0].PendingActionCount)
}

func TestEndToEnd_ValidationErrorSurfaced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.client.Create(ctx, "Town", "simple_town")
	require.NoError(t, err)
	_, err = env.client.Select(ctx, created.ID)
	require.NoError(t, err)
	waitStreaming(t, env.client)

	_, err = env.client.SubmitAction(ctx, created.ID, api.InjectActionRequest{ActorID: "actor-1"})
	require.Error(t, err)

	var serverErr *api.ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, "validation", serverErr.ErrorType)
	require.Equal(t, "intent required", serverErr.Detail)

	snap := env.client.Snapshot()
	require.Empty(t, snap.Active.PendingActions)
}

func TestEndToEnd_DeleteRemovesEverywhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.client.Create(ctx, "Town", "simple_town")
	require.NoError(t, err)
	_, err = env.client.Select(ctx, created.ID)
	require.NoError(t, err)
	waitStreaming(t, env.client)

	require.NoError(t, env.client.Delete(ctx, created.ID))

	require.Eventually(t, func() bool {
		snap := env.client.Snapshot()
		return snap.Active == nil && len(snap.Simulations) == 0
	}, 5*time.Second, 10*time.Millisecond)

	_, err = env.api.GetSimulation(ctx, created.ID)
	require.ErrorIs(t, err, api.ErrSimulationNotFound)
}

func TestEndToEnd_PollingCoversStreamOutage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.client.Create(ctx, "Town", "simple_town")
	require.NoError(t, err)
	env.client.StartRefreshLoop()

	_, err = env.client.Select(ctx, created.ID)
	require.NoError(t, err)
	waitStreaming(t, env.client)

	env.client.DisconnectStream()

	_, err = env.api.AdvanceSimulation(ctx, created.ID)
	require.NoError(t, err)

	// no push channel anymore; the poll loop must deliver the new phase
	require.Eventually(t, func() bool {
		snap := env.client.Snapshot()
		return snap.Active != nil && snap.Active.PhaseNumber == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, sync.StatePolling, env.client.Snapshot().Connection)
}

func TestEndToEnd_ConcurrentCallersDoNotRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.client.Create(ctx, "Town", "simple_town")
	require.NoError(t, err)
	_, err = env.client.Select(ctx, created.ID)
	require.NoError(t, err)
	env.client.StartRefreshLoop()
	defer env.client.StopRefreshLoop()

	var wg stdsync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = env.client.ListAll(ctx)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = env.client.Select(ctx, created.ID)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = env.client.SubmitAction(ctx, created.ID, api.InjectActionRequest{
					ActorID: "actor-1",
					Intent:  "wave",
				})
				_ = env.client.Snapshot()
			}
		}()
	}
	wg.Wait()

	// the engine holds the ground truth; the mirror converges on re-select
	detail, err := env.api.GetSimulation(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 40, detail.PendingActionCount)

	refreshed, err := env.client.Select(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 40, refreshed.PendingActionCount)

	snap := env.client.Snapshot()
	require.Equal(t, created.ID, snap.SelectedID)
	require.NotNil(t, snap.Active)
}
