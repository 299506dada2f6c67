package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wallet-activity/internal/activity"
	"wallet-activity/internal/alerting"
	"wallet-activity/internal/reconcile"
	"wallet-activity/internal/scheduler"
	"wallet-activity/internal/storage"
)

// Options configure one watched address.
type Options struct {
	Address  string
	Symbol   string
	TxURL    string
	LockKey  int64
	Schedule reconcile.Schedule
	// NotifyInitial also announces the history found by the first load.
	NotifyInitial bool
}

// Service watches one address: every tick forces a load, new hashes are
// archived and announced.
type Service struct {
	opts      Options
	scheduler *scheduler.Scheduler
	view      *reconcile.View
	store     storage.ActivityStore
	locker    storage.AdvisoryLocker
	notifier  alerting.Notifier
	logger    zerolog.Logger

	mu        sync.Mutex
	seen      map[string]struct{}
	primed    bool
	toArchive []activity.ClassifiedTransaction
	toNotify  []activity.ClassifiedTransaction
}

// New constructs the watch service. store and notifier may be nil.
func New(opts Options, engine *reconcile.Engine, sched *scheduler.Scheduler, store storage.ActivityStore, notifier alerting.Notifier, logger zerolog.Logger, viewOpts ...reconcile.ViewOption) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	s := &Service{
		opts:      opts,
		scheduler: sched,
		store:     store,
		locker:    locker,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Str("address", opts.Address).Logger(),
		seen:      make(map[string]struct{}),
	}

	viewOpts = append(viewOpts, reconcile.WithSink(s))
	if opts.Schedule.Attempts > 0 {
		viewOpts = append(viewOpts, reconcile.WithSchedule(opts.Schedule))
	}
	s.view = reconcile.NewView(engine, opts.Address, nil, logger, viewOpts...)
	return s
}

// View exposes the underlying view.
func (s *Service) View() *reconcile.View {
	return s.view
}

// Run begins the watch loop and closes the view when it ends.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	defer s.view.Close()
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// NotifyWriteCompleted forwards a confirmed write to the view so the next few
// refreshes pick up the new transaction.
func (s *Service) NotifyWriteCompleted() {
	s.view.NotifyWriteCompleted()
}

// Publish implements reconcile.Sink. It is called with the view lock held.
func (s *Service) Publish(_ string, records []activity.ClassifiedTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range records {
		key := strings.ToLower(tx.Hash)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.toArchive = append(s.toArchive, tx)
		if s.primed || s.opts.NotifyInitial {
			s.toNotify = append(s.toNotify, tx)
		}
	}
	s.primed = true
}

// ProcessTick 执行单次轮询: 强制刷新, 然后归档并通知新交易。
// Records published by post-write refreshes in between ticks are flushed here too.
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if err := s.view.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh history: %w", err)
	}

	s.flush(ctx, at)
	return nil
}

func (s *Service) flush(ctx context.Context, at time.Time) {
	s.mu.Lock()
	archive, notify := s.toArchive, s.toNotify
	s.toArchive, s.toNotify = nil, nil
	s.mu.Unlock()

	if s.store != nil && len(archive) > 0 {
		records := make([]storage.ActivityRecord, 0, len(archive))
		for _, tx := range archive {
			records = append(records, storage.FromClassified(s.opts.Address, tx))
		}
		inserted, err := s.store.InsertActivity(ctx, records)
		if err != nil {
			s.logger.Error().Err(err).Int("records", len(records)).Msg("failed to archive activity, retrying next tick")
			s.mu.Lock()
			s.toArchive = append(archive, s.toArchive...)
			s.mu.Unlock()
		} else {
			s.logger.Debug().Int64("inserted", inserted).Int("records", len(records)).Msg("activity archived")
		}
	}

	if len(notify) == 0 {
		return
	}

	s.logger.Info().Time("at", at).Int("new", len(notify)).Msg("new activity detected")
	if s.notifier == nil {
		return
	}
	note := alerting.Notification{
		Address:    s.opts.Address,
		Records:    notify,
		Symbol:     s.opts.Symbol,
		TxURL:      s.opts.TxURL,
		DetectedAt: at,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("failed to dispatch notification")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
