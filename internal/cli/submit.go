package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"school-meals/internal/submission"
)

// NewSubmitCommand creates the submit command, which reads a create-order
// request as JSON from a file or stdin, persists the order as pending, and
// enqueues it for fulfillment.
func NewSubmitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "submit [request.json]",
		Short: "Create an order and enqueue it for fulfillment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open request file: %w", err)
				}
				defer f.Close()
				in = f
			}

			var req submission.CreateOrderRequest
			if err := json.NewDecoder(in).Decode(&req); err != nil {
				return fmt.Errorf("decode order request: %w", err)
			}

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			svc := submission.NewService(a.store, a.engine, a.log)
			order, err := svc.CreateOrder(ctx, req)
			if err != nil {
				if order != nil {
					// Saved but not enqueued; reprocessing can pick it up.
					return fmt.Errorf("order %s saved but not enqueued: %w", order.ID, err)
				}
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"order_id":     order.ID,
				"status":       order.Status,
				"total_amount": order.TotalAmount,
			})
		},
	}
}
