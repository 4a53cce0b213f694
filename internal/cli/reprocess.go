package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReprocessCommand creates the reprocess command, an operator-invoked
// recovery action that resubmits recently failed orders.
func NewReprocessCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess",
		Short: "Reset recently failed orders to pending and resubmit them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.engine.ReprocessFailed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resubmitted %d failed orders\n", n)
			return nil
		},
	}
}
