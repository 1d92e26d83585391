package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calebhart/simdash/internal/api"
	"github.com/calebhart/simdash/internal/enginetest"
	"github.com/calebhart/simdash/internal/tui"
)

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the dashboard against a built-in fake engine",
		Long: `Start an in-process fake engine seeded with sample simulations and open
the dashboard against it. Useful for trying the UI without a real engine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := enginetest.NewServer()
			seedDemo(srv)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()

			baseURL := "http://" + addr
			if err := waitForEngine(baseURL, errCh); err != nil {
				return fmt.Errorf("start demo engine: %w", err)
			}

			rootOpts.EngineURL = baseURL
			client, cfg, err := newSyncClient(rootOpts)
			if err != nil {
				return err
			}
			defer client.Close()

			if _, err := client.ListAll(cmd.Context()); err != nil {
				return err
			}
			client.StartRefreshLoop()
			return tui.Run(client, cfg.Sync.HeartbeatStale)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8811", "listen address for the fake engine")
	return cmd
}

func waitForEngine(baseURL string, errCh <-chan error) error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-errCh:
			return err
		default:
		}
		resp, err := http.Get(baseURL + "/simulations")
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("engine did not come up at %s", baseURL)
}

func seedDemo(srv *enginetest.Server) {
	now := time.Now().UTC()
	created := now.Add(-time.Hour)
	srv.Seed(api.SimulationDetail{
		ID:           uuid.NewString(),
		Name:         "harbor-town",
		Scenario:     "A fishing town weathers a trade dispute.",
		Status:       api.StatusRunning,
		CurrentPhase: api.PhaseActionCollection,
		PhaseNumber:  3,
		CreatedAt:    &created,
		LastUpdated:  &now,
		Actors: []api.ActorSummary{
			{ID: uuid.NewString(), Name: "Mayor Odell", Type: "npc", Active: true},
			{ID: uuid.NewString(), Name: "Guild Master Ren", Type: "npc", Active: true},
		},
		PendingEvents: []api.EventSummary{
			{ID: uuid.NewString(), Type: "economic", Title: "Tariff rumors reach the docks"},
		},
		PendingEventCount: 1,
	})
	earlier := now.Add(-10 * time.Minute)
	srv.Seed(api.SimulationDetail{
		ID:           uuid.NewString(),
		Name:         "borderlands",
		Scenario:     "Two frontier settlements negotiate water rights.",
		Status:       api.StatusCreated,
		CurrentPhase: api.PhaseInitialize,
		CreatedAt:    &earlier,
		LastUpdated:  &earlier,
	})
}
