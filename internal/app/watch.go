package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"wallet-activity/internal/alerting"
	"wallet-activity/internal/reconcile"
	"wallet-activity/internal/scheduler"
	"wallet-activity/internal/service"
	"wallet-activity/internal/storage"
)

// Watch polls one address on the configured interval, archiving and
// announcing new activity. SIGHUP signals a confirmed write and starts the
// post-write refresh burst.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	if err := requireAddress(opts.Address); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := a.newWatchService(ctx, opts, a.newNotifier())
	if err != nil {
		return err
	}
	defer cleanup()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				a.Logger.Info().Str("address", opts.Address).Msg("write reported, scheduling refreshes")
				svc.NotifyWriteCompleted()
			}
		}
	}()

	a.Logger.Info().
		Str("address", opts.Address).
		Dur("interval", a.Config.Scheduler.Interval).
		Bool("once", opts.Once).
		Msg("watching wallet activity")

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newWatchService wires the engine, archive and scheduler for one address.
// The archive is optional for watch; without a DSN nothing is persisted.
func (a *App) newWatchService(ctx context.Context, opts WatchOptions, notifier alerting.Notifier) (*service.Service, func(), error) {
	engine, err := a.newEngine()
	if err != nil {
		return nil, nil, err
	}

	maxTicks := 0
	if opts.Once {
		maxTicks = 1
	}
	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    true,
		MaxTicks:     maxTicks,
	}, a.Logger)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {}
	var archive storage.ActivityStore
	if store != nil {
		archive = store
		cleanup = closeStore
	} else {
		a.Logger.Warn().Msg("database not configured; activity will not be archived")
	}

	svc := service.New(service.Options{
		Address:       opts.Address,
		Symbol:        a.Config.Contracts.BaseAssetSymbol,
		TxURL:         a.Config.Contracts.TxURL,
		LockKey:       a.Config.Scheduler.AdvisoryLockKey,
		Schedule:      a.schedule(),
		NotifyInitial: opts.NotifyInitial,
	}, engine, sched, archive, notifier, a.Logger, reconcile.WithViewMetrics(a.Metrics))
	return svc, cleanup, nil
}
