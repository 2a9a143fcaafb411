package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions, connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply pending schema migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			backends, release, err := connect(cmd.Context(), Needs{Postgres: true})
			if err != nil {
				return err
			}
			defer release()

			applied, err := backends.Migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return emit(rootOpts, cmd.OutOrStdout(), map[string]interface{}{"applied": applied}, func(w io.Writer) {
				if len(applied) == 0 {
					fmt.Fprintln(w, "schema already up to date")
					return
				}
				for _, v := range applied {
					fmt.Fprintf(w, "applied %s\n", v)
				}
			})
		},
	}
}
