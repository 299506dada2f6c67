package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"wallet-activity/internal/activity"
	"wallet-activity/internal/pager"
	"wallet-activity/internal/reconcile"
)

const idlePoll = 250 * time.Millisecond

// History loads an address history once and prints one page of it. With
// AfterWrite it then runs the post-write refresh burst and reprints after
// every refresh that succeeds.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	if err := requireAddress(opts.Address); err != nil {
		return err
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	updates := make(chan struct{}, 1)
	p := pager.New(a.Config.Pager.PageSize)
	view := reconcile.NewView(engine, opts.Address, p, a.Logger,
		reconcile.WithSchedule(a.schedule()),
		reconcile.WithViewMetrics(a.Metrics),
		reconcile.WithSink(reconcile.SinkFunc(func(string, []activity.ClassifiedTransaction) {
			select {
			case updates <- struct{}{}:
			default:
			}
		})),
	)
	defer view.Close()

	if err := view.Load(ctx, false); err != nil {
		return errors.New(view.ErrMessage())
	}
	<-updates

	if opts.Page > 0 {
		if opts.Page >= p.TotalPages() {
			return fmt.Errorf("page %d out of range (history has %d pages)", opts.Page+1, p.TotalPages())
		}
		p.GoTo(opts.Page)
	}
	a.renderHistory(out, p, opts, time.Now())

	if !opts.AfterWrite {
		return nil
	}

	view.NotifyWriteCompleted()
	delays := a.schedule().Delays()
	if len(delays) > 0 {
		fmt.Fprintf(out, "\nwatching for indexer catch-up: %d refreshes over %s\n", len(delays), delays[len(delays)-1])
	}

	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-updates:
			fmt.Fprintln(out)
			a.renderHistory(out, p, opts, time.Now())
		case <-ticker.C:
			if !view.Idle() {
				continue
			}
			if msg := view.ErrMessage(); msg != "" {
				fmt.Fprintf(out, "last refresh failed: %s\n", msg)
			}
			return nil
		}
	}
}

func (a *App) renderHistory(out io.Writer, p *pager.Pager, opts HistoryOptions, now time.Time) {
	records := p.Current()
	if opts.All {
		records = p.All()
	}

	if p.Len() == 0 {
		fmt.Fprintln(out, "No activity yet")
		return
	}

	if opts.All {
		fmt.Fprintf(out, "%d records\n", p.Len())
	} else {
		fmt.Fprintf(out, "Page %d/%d (%d records)\n", p.Index()+1, p.TotalPages(), p.Len())
	}

	symbol := a.Config.Contracts.BaseAssetSymbol
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Activity\tAmount\tTime\tTransaction")
	for _, tx := range records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			tx.Label(),
			tx.FormatAmount(symbol),
			formatTimestamp(tx.Timestamp, opts.Absolute, now),
			txLink(a.Config.Contracts.TxURL, tx.Hash),
		)
	}
	writer.Flush()
}
