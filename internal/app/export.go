package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"wallet-activity/internal/activity"
	"wallet-activity/internal/storage"
)

// Export renders archived activity as CSV and/or a PNG of cumulative flows.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if err := requireAddress(opts.Address); err != nil {
		return err
	}

	opts.MaxRecords = a.Config.ResolveMaxRecords(opts.MaxRecords)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := time.Unix(0, 0).UTC()
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListActivityBetween(ctx, opts.Address, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("address", opts.Address).Msg("no archived activity found for export window")
		return nil
	}

	kept := newestRecords(records, opts.MaxRecords)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(kept)).Msg("exporting activity")

	if opts.CSVPath != "" {
		if err := writeActivityCSV(opts.CSVPath, kept); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeActivityPNG(opts.PNGPath, kept, a.Config.Contracts.BaseAssetSymbol); err != nil {
			return err
		}
	}

	return nil
}

// newestRecords keeps the last max records of an oldest-first slice.
func newestRecords(records []storage.ActivityRecord, max int) []storage.ActivityRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	return records[len(records)-max:]
}

func writeActivityCSV(path string, records []storage.ActivityRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"occurred_at", "tx_hash", "kind", "function", "contract", "amount", "tickets"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		tx := record.Classified()
		row := []string{
			record.OccurredAt.UTC().Format(time.RFC3339),
			record.Hash,
			string(record.Kind),
			record.Function,
			record.Contract,
			formatDecimal(record.Amount, 6),
			ticketCount(tx),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// flowSeries accumulates base-asset amounts per kind over time. Claims carry
// no amount and are not charted.
type flowSeries struct {
	x           []time.Time
	deposits    []float64
	withdrawals []float64
	tickets     []float64
}

func buildFlowSeries(records []storage.ActivityRecord) flowSeries {
	var deposits, withdrawals, tickets decimal.Decimal
	series := flowSeries{
		x:           make([]time.Time, 0, len(records)),
		deposits:    make([]float64, 0, len(records)),
		withdrawals: make([]float64, 0, len(records)),
		tickets:     make([]float64, 0, len(records)),
	}

	for _, record := range records {
		if record.Amount != nil {
			switch record.Kind {
			case activity.KindDeposit:
				deposits = deposits.Add(*record.Amount)
			case activity.KindWithdrawal:
				withdrawals = withdrawals.Add(*record.Amount)
			case activity.KindTicketPurchase:
				tickets = tickets.Add(*record.Amount)
			}
		}
		series.x = append(series.x, record.OccurredAt)
		series.deposits = append(series.deposits, deposits.InexactFloat64())
		series.withdrawals = append(series.withdrawals, withdrawals.InexactFloat64())
		series.tickets = append(series.tickets, tickets.InexactFloat64())
	}
	return series
}

func writeActivityPNG(path string, records []storage.ActivityRecord, symbol string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if len(records) < 2 {
		return errors.New("at least two records are needed to render a chart")
	}

	series := buildFlowSeries(records)
	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	axisName := "Cumulative amount"
	if symbol != "" {
		axisName += " (" + symbol + ")"
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           axisName,
			ValueFormatter: amountFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Deposits", XValues: series.x, YValues: series.deposits},
			chart.TimeSeries{Name: "Withdrawals", XValues: series.x, YValues: series.withdrawals},
			chart.TimeSeries{Name: "Ticket spend", XValues: series.x, YValues: series.tickets},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
