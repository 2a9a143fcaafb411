package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

// NewPresenceCommand creates the presence command group.
func NewPresenceCommand(rootOpts *RootOptions, connect Connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Inspect or change a visitor's presence state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:          "get <id>",
		Short:        "Show the resolved presence of a record",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			backends, release, err := connect(cmd.Context(), Needs{Redis: true})
			if err != nil {
				return err
			}
			defer release()

			raw, err := backends.Presence.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			status := models.ResolvePresence(raw)
			return emit(rootOpts, cmd.OutOrStdout(), map[string]string{"id": args[0], "presence": string(status)}, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", args[0], status)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "set <id> <state>",
		Short:        "Write a presence document and publish it to watchers",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			backends, release, err := connect(cmd.Context(), Needs{Redis: true})
			if err != nil {
				return err
			}
			defer release()

			if err := backends.Presence.SetState(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			verbosef(rootOpts, cmd, "published state %q for %s", args[1], args[0])
			return emit(rootOpts, cmd.OutOrStdout(), map[string]string{"id": args[0], "state": args[1]}, func(w io.Writer) {
				fmt.Fprintf(w, "%s -> %s\n", args[0], args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "clear <id>",
		Short:        "Remove a presence document",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			backends, release, err := connect(cmd.Context(), Needs{Redis: true})
			if err != nil {
				return err
			}
			defer release()

			if err := backends.Presence.Clear(cmd.Context(), args[0]); err != nil {
				return err
			}
			return emit(rootOpts, cmd.OutOrStdout(), map[string]string{"id": args[0], "state": ""}, func(w io.Writer) {
				fmt.Fprintf(w, "%s cleared\n", args[0])
			})
		},
	})

	return cmd
}
