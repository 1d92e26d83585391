package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/calebhart/simdash/internal/api"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List simulations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newAPIClient(rootOpts)
			if err != nil {
				return err
			}
			sims, err := client.ListSimulations(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(sims)
			}
			if len(sims) == 0 {
				fmt.Println("no simulations")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPHASE\tACTIONS\tEVENTS")
			for _, s := range sims {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s #%d\t%d\t%d\n",
					s.ID, s.Name, s.Status, s.CurrentPhase, s.PhaseNumber,
					s.PendingActionCount, s.PendingEventCount)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one simulation in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newAPIClient(rootOpts)
			if err != nil {
				return err
			}
			detail, err := client.GetSimulation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(detail)
			}
			printDetail(detail)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> <scenario>",
		Short: "Create a simulation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newAPIClient(rootOpts)
			if err != nil {
				return err
			}
			detail, err := client.CreateSimulation(cmd.Context(), api.CreateSimulationRequest{
				Name:     args[0],
				Scenario: args[1],
			})
			if err != nil {
				return err
			}
			fmt.Printf("created %s (%s)\n", detail.Name, detail.ID)
			return nil
		},
	}
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start a created simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newAPIClient(rootOpts)
			if err != nil {
				return err
			}
			detail, err := client.StartSimulation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s is %s in phase %s\n", detail.Name, detail.Status, detail.CurrentPhase)
			return nil
		},
	}
}

// NewAdvanceCommand creates the advance command.
func NewAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <id>",
		Short: "Advance a running simulation one phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newAPIClient(rootOpts)
			if err != nil {
				return err
			}
			result, err := client.AdvanceSimulation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s -> %s (#%d): %s\n",
				result.PreviousPhase, result.CurrentPhase, result.PhaseNumber, result.Message)
			return nil
		},
	}
}

// NewActCommand creates the act command.
func NewActCommand(rootOpts *RootOptions) *cobra.Command {
	var actorID, intent, description string

	cmd := &cobra.Command{
		Use:   "act <id>",
		Short: "Submit an actor action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newAPIClient(rootOpts)
			if err != nil {
				return err
			}
			detail, err := client.InjectAction(cmd.Context(), args[0], api.InjectActionRequest{
				ActorID:     actorID,
				Intent:      intent,
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Printf("queued; %d actions pending\n", detail.PendingActionCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "acting actor ID (required)")
	cmd.Flags().StringVar(&intent, "intent", "", "what the actor attempts (required)")
	cmd.Flags().StringVar(&description, "description", "", "longer free-form description")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("intent")
	return cmd
}

// NewActorCommand creates the actor command.
func NewActorCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "actor <id> <actor-id>",
		Short: "Add an actor to a simulation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newAPIClient(rootOpts)
			if err != nil {
				return err
			}
			detail, err := client.AddActor(cmd.Context(), args[0], api.AddActorRequest{ActorID: args[1]})
			if err != nil {
				return err
			}
			fmt.Printf("%s now has %d actors\n", detail.Name, len(detail.Actors))
			return nil
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newAPIClient(rootOpts)
			if err != nil {
				return err
			}
			if err := client.DeleteSimulation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func printDetail(d *api.SimulationDetail) {
	fmt.Printf("%s (%s)\n", d.Name, d.ID)
	if d.Scenario != "" {
		fmt.Printf("scenario: %s\n", d.Scenario)
	}
	fmt.Printf("status: %s   phase: %s #%d\n", d.Status, d.CurrentPhase, d.PhaseNumber)
	fmt.Printf("pending: %d actions, %d events\n", d.PendingActionCount, d.PendingEventCount)
	for _, a := range d.Actors {
		fmt.Printf("  actor %s (%s)\n", a.Name, a.Type)
	}
	for _, a := range d.PendingActions {
		fmt.Printf("  action %s: %s\n", a.ActorID, a.Intent)
	}
	for _, e := range d.PendingEvents {
		fmt.Printf("  event [%s] %s\n", e.Type, e.Title)
	}
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
