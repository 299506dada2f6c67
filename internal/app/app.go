package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"wallet-activity/internal/activity"
	"wallet-activity/internal/alerting"
	"wallet-activity/internal/cache"
	"wallet-activity/internal/config"
	"wallet-activity/internal/fetcher"
	"wallet-activity/internal/metrics"
	"wallet-activity/internal/reconcile"
	"wallet-activity/internal/storage"
	"wallet-activity/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	// newFetcher is swapped in tests and by simulate.
	newFetcher func() fetcher.HistoryFetcher
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	a := &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		Metrics: metrics.New(prometheus.NewRegistry()),
	}
	a.newFetcher = a.explorerFetcher
	return a
}

func (a *App) explorerFetcher() fetcher.HistoryFetcher {
	userAgent := a.Config.Explorer.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent(a.Config.App.Name)
	}
	return fetcher.NewExplorer(fetcher.ExplorerOptions{
		BaseURL:    a.Config.Explorer.BaseURL,
		Timeout:    a.Config.Explorer.RequestTimeout,
		MaxRetries: a.Config.Explorer.MaxRetries,
		RetryDelay: a.Config.Explorer.RetryDelay,
		UserAgent:  userAgent,
	}, a.Logger, a.Metrics)
}

func (a *App) newClassifier() (*activity.Classifier, error) {
	c := a.Config.Contracts
	contracts, err := activity.ParseContracts(c.Lottery, c.LendingPool, c.BaseAsset, c.BaseAssetDecimal)
	if err != nil {
		return nil, err
	}
	return activity.NewClassifier(contracts, a.Logger, a.Metrics), nil
}

func (a *App) newEngine() (*reconcile.Engine, error) {
	classifier, err := a.newClassifier()
	if err != nil {
		return nil, err
	}

	opts := []reconcile.Option{reconcile.WithMetrics(a.Metrics)}
	if a.Config.Cache.CoalesceInFlight {
		opts = append(opts, reconcile.WithCoalescing())
	}
	store := cache.New(a.Config.Cache.TTL)
	return reconcile.NewEngine(store, a.newFetcher(), classifier, a.Logger, opts...), nil
}

func (a *App) schedule() reconcile.Schedule {
	r := a.Config.Refresh
	return reconcile.Schedule{InitialDelay: r.InitialDelay, Interval: r.Interval, Attempts: r.Attempts}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// requireStore opens the archive or explains why a command cannot run without one.
func (a *App) requireStore(ctx context.Context, what string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database not configured; cannot %s", what)
	}
	return store, closeStore, nil
}

func requireAddress(address string) error {
	if !validAddress(address) {
		return errors.New("--address must be a 0x-prefixed 20-byte hex address")
	}
	return nil
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Address    string
	Page       int
	All        bool
	Absolute   bool
	AfterWrite bool
	Out        io.Writer
}

// WatchOptions configure the watch command.
type WatchOptions struct {
	Address       string
	NotifyInitial bool
	Once          bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Address  string
	Limit    int
	Absolute bool
	Out      io.Writer
}

// ExportOptions hold parameters for exporting archived activity.
type ExportOptions struct {
	Address    string
	From       *time.Time
	To         *time.Time
	PNGPath    string
	CSVPath    string
	MaxRecords int
}

// BackfillOptions configure the one-shot archive job.
type BackfillOptions struct {
	Addresses []string
	DryRun    bool
}
