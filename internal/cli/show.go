package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wallet-activity/internal/app"
)

var (
	showAddress  string
	showLimit    int
	showAbsolute bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently archived activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Address:  showAddress,
			Limit:    showLimit,
			Absolute: showAbsolute,
			Out:      cmd.OutOrStdout(),
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showAddress, "address", "", "Wallet address (0x-prefixed)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of records to display")
	showCmd.Flags().BoolVar(&showAbsolute, "absolute", false, "Print UTC dates instead of relative times")
	_ = showCmd.MarkFlagRequired("address")
}
