package cli

import "github.com/spf13/cobra"

// NewRootCommand creates the root command for the fulfillment service.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fulfillmentd",
		Short:         "School meal order fulfillment service",
		Long:          "Runs the order fulfillment engine and its operator commands against the shared order store and message queue.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewSubmitCommand())
	cmd.AddCommand(NewReprocessCommand())
	cmd.AddCommand(NewStatsCommand())

	return cmd
}
