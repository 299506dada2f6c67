package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints the newest archived activity of an address.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if err := requireAddress(opts.Address); err != nil {
		return err
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	store, closeStore, err := a.requireStore(ctx, "show archived activity")
	if err != nil {
		return err
	}
	defer closeStore()

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	records, err := store.ListRecentActivity(ctx, opts.Address, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "no archived activity found")
		return nil
	}

	now := time.Now()
	symbol := a.Config.Contracts.BaseAssetSymbol
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time\tActivity\tAmount\tFunction\tTransaction")
	for _, record := range records {
		tx := record.Classified()
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			formatTimestamp(tx.Timestamp, opts.Absolute, now),
			tx.Label(),
			tx.FormatAmount(symbol),
			sanitizeInline(tx.Function),
			txLink(a.Config.Contracts.TxURL, tx.Hash),
		)
	}

	writer.Flush()
	return nil
}
