package cli

import (
	"github.com/spf13/cobra"

	"github.com/calebhart/simdash/internal/tui"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [id]",
		Short: "Open the live dashboard",
		Long: `Open the interactive dashboard. The dashboard keeps a local mirror of the
engine fresh by subscribing to the push stream for the selected simulation
and polling everything else. Pass an ID to select it immediately.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newSyncClient(rootOpts)
			if err != nil {
				return err
			}
			defer client.Close()

			if _, err := client.ListAll(cmd.Context()); err != nil {
				return err
			}
			if len(args) == 1 {
				if _, err := client.Select(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			client.StartRefreshLoop()
			return tui.Run(client, cfg.Sync.HeartbeatStale)
		},
	}
}
