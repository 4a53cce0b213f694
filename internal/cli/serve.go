package cli

import (
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command, which runs the fulfillment
// engine until interrupted.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the fulfillment engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			a.engine.Start()
			<-ctx.Done()

			a.log.Info("shutdown_signal_received", nil)
			a.engine.Stop()
			return nil
		},
	}
}
