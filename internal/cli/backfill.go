package cli

import (
	"github.com/spf13/cobra"

	"wallet-activity/internal/app"
)

var (
	backfillAddresses []string
	backfillDryRun    bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Archive the full classified history of one or more wallets",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BackfillOptions{
			Addresses: backfillAddresses,
			DryRun:    backfillDryRun,
		}
		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringSliceVar(&backfillAddresses, "address", nil, "Wallet address (repeatable)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
