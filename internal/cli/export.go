package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wallet-activity/internal/app"
)

var (
	exportAddress    string
	exportFrom       string
	exportTo         string
	exportPNGPath    string
	exportCSVPath    string
	exportMaxRecords int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export archived activity as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Address:    exportAddress,
			PNGPath:    exportPNGPath,
			CSVPath:    exportCSVPath,
			MaxRecords: exportMaxRecords,
		}

		if exportFrom != "" {
			from, err := time.Parse(time.RFC3339, exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := time.Parse(time.RFC3339, exportTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportAddress, "address", "", "Wallet address (0x-prefixed)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxRecords, "max-records", 0, "Maximum records to export (defaults to config)")
	_ = exportCmd.MarkFlagRequired("address")
}
