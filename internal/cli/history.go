package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wallet-activity/internal/app"
)

var (
	historyAddress    string
	historyPage       int
	historyAll        bool
	historyAbsolute   bool
	historyAfterWrite bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the classified activity history of a wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyPage < 1 {
			return fmt.Errorf("--page must be at least 1")
		}

		opts := app.HistoryOptions{
			Address:    historyAddress,
			Page:       historyPage - 1,
			All:        historyAll,
			Absolute:   historyAbsolute,
			AfterWrite: historyAfterWrite,
			Out:        cmd.OutOrStdout(),
		}
		return getApp().History(cmd.Context(), opts)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyAddress, "address", "", "Wallet address (0x-prefixed)")
	historyCmd.Flags().IntVar(&historyPage, "page", 1, "Page to display, starting at 1")
	historyCmd.Flags().BoolVar(&historyAll, "all", false, "Print every record instead of one page")
	historyCmd.Flags().BoolVar(&historyAbsolute, "absolute", false, "Print UTC dates instead of relative times")
	historyCmd.Flags().BoolVar(&historyAfterWrite, "after-write", false, "Keep refreshing while a just-confirmed transaction gets indexed")
	_ = historyCmd.MarkFlagRequired("address")
}
