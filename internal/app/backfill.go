package app

import (
	"context"
	"errors"
	"time"

	"wallet-activity/internal/service"
	"wallet-activity/internal/storage"
)

// Backfill 对每个地址执行一次完整加载并归档全部已识别交易。
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if len(opts.Addresses) == 0 {
		return errors.New("至少需要一个 --address")
	}
	for _, address := range opts.Addresses {
		if err := requireAddress(address); err != nil {
			return err
		}
	}

	var archive storage.ActivityStore
	var counter *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		store, closeStore, err := a.requireStore(ctx, "backfill")
		if err != nil {
			return err
		}
		defer closeStore()
		archive, counter = store, store
	}

	processed := 0
	failed := 0
	for _, address := range opts.Addresses {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		engine, err := a.newEngine()
		if err != nil {
			return err
		}
		svc := service.New(service.Options{
			Address: address,
			Symbol:  a.Config.Contracts.BaseAssetSymbol,
		}, engine, nil, archive, nil, a.Logger)

		err = svc.ProcessTick(ctx, time.Now().UTC())
		svc.View().Close()
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("address", address).Msg("回填失败")
			continue
		}
		processed++

		event := a.Logger.Info().Str("address", address).Int("classified", svc.View().Pager().Len())
		if counter != nil {
			if total, err := counter.CountActivity(ctx, address); err == nil {
				event = event.Int64("archived", total)
			}
		}
		event.Msg("地址回填完成")
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分地址回填失败，请检查日志")
	}
	return nil
}
