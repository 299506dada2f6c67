package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wallet-activity/internal/activity"
	"wallet-activity/internal/alerting"
	"wallet-activity/internal/cache"
	"wallet-activity/internal/fetcher"
	"wallet-activity/internal/reconcile"
	"wallet-activity/internal/storage"
)

const (
	lotteryHex = "0xbEDd4F2beBE9E3E636161E644759f3cbe3d51B95"
	poolHex    = "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5"
	usdcHex    = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	userHex    = "0x1111111111111111111111111111111111111111"
)

type scriptedFetcher struct {
	mu    sync.Mutex
	pages [][]activity.RawTransaction
	errAt map[int]error
	calls int
}

func (f *scriptedFetcher) Fetch(ctx context.Context, address string) ([]activity.RawTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls
	f.calls++
	if err, ok := f.errAt[n]; ok {
		return nil, err
	}
	if n >= len(f.pages) {
		n = len(f.pages) - 1
	}
	return f.pages[n], nil
}

func claim(hash string, ts int64) activity.RawTransaction {
	return activity.RawTransaction{
		Hash:            hash,
		To:              lotteryHex,
		Input:           "0xb401faf1",
		TimeStamp:       fmt.Sprint(ts),
		IsError:         "0",
		TxReceiptStatus: "1",
	}
}

type memoryStore struct {
	records []storage.ActivityRecord
}

func (m *memoryStore) InsertActivity(ctx context.Context, records []storage.ActivityRecord) (int64, error) {
	m.records = append(m.records, records...)
	return int64(len(records)), nil
}

func (m *memoryStore) ListRecentActivity(ctx context.Context, address string, limit int) ([]storage.ActivityRecord, error) {
	return m.records, nil
}

func (m *memoryStore) ListActivityBetween(ctx context.Context, address string, from, to time.Time) ([]storage.ActivityRecord, error) {
	return m.records, nil
}

func (m *memoryStore) CountActivity(ctx context.Context, address string) (int64, error) {
	return int64(len(m.records)), nil
}

// flakyStore fails its first insert.
type flakyStore struct {
	memoryStore
	attempts int
}

func (f *flakyStore) InsertActivity(ctx context.Context, records []storage.ActivityRecord) (int64, error) {
	f.attempts++
	if f.attempts == 1 {
		return 0, errors.New("connection reset")
	}
	return f.memoryStore.InsertActivity(ctx, records)
}

type lockingStore struct {
	memoryStore
	acquired bool
	released int
}

func (l *lockingStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if !l.acquired {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

type recordingNotifier struct {
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return nil
}

func newEngine(t *testing.T, f fetcher.HistoryFetcher) *reconcile.Engine {
	t.Helper()
	contracts, err := activity.ParseContracts(lotteryHex, poolHex, usdcHex, 6)
	if err != nil {
		t.Fatalf("parse contracts: %v", err)
	}
	classifier := activity.NewClassifier(contracts, zerolog.Nop(), nil)
	return reconcile.NewEngine(cache.New(time.Minute), f, classifier, zerolog.Nop())
}

func TestProcessTickArchivesAndNotifiesNewActivity(t *testing.T) {
	f := &scriptedFetcher{pages: [][]activity.RawTransaction{
		{claim("0xa", 100)},
		{claim("0xb", 200), claim("0xa", 100)},
		{claim("0xb", 200), claim("0xa", 100)},
	}}
	store := &memoryStore{}
	notifier := &recordingNotifier{}
	svc := New(Options{Address: userHex, Symbol: "USDC"}, newEngine(t, f), nil, store, notifier, zerolog.Nop())
	defer svc.View().Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := svc.ProcessTick(ctx, time.Now()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	if f.calls != 3 {
		t.Fatalf("every tick must bypass the cache, calls = %d", f.calls)
	}
	if len(store.records) != 2 {
		t.Fatalf("archived %d records, want 2", len(store.records))
	}
	if len(notifier.notes) != 1 || len(notifier.notes[0].Records) != 1 || notifier.notes[0].Records[0].Hash != "0xb" {
		t.Fatalf("expected exactly one notification for 0xb, got %+v", notifier.notes)
	}
}

func TestProcessTickRetriesFailedArchive(t *testing.T) {
	f := &scriptedFetcher{pages: [][]activity.RawTransaction{
		{claim("0xa", 100)},
		{claim("0xa", 100)},
		{claim("0xb", 200), claim("0xa", 100)},
	}}
	store := &flakyStore{}
	svc := New(Options{Address: userHex}, newEngine(t, f), nil, store, nil, zerolog.Nop())
	defer svc.View().Close()

	ctx := context.Background()
	if err := svc.ProcessTick(ctx, time.Now()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("first insert fails, archived %d", len(store.records))
	}

	if err := svc.ProcessTick(ctx, time.Now()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if len(store.records) != 1 || store.records[0].Hash != "0xa" {
		t.Fatalf("failed batch should be archived on the next tick, got %+v", store.records)
	}

	if err := svc.ProcessTick(ctx, time.Now()); err != nil {
		t.Fatalf("tick 3: %v", err)
	}
	if len(store.records) != 2 || store.records[1].Hash != "0xb" {
		t.Fatalf("expected 0xa then 0xb archived once each, got %+v", store.records)
	}
}

func TestNotifyInitial(t *testing.T) {
	f := &scriptedFetcher{pages: [][]activity.RawTransaction{{claim("0xa", 100), claim("0xb", 90)}}}
	notifier := &recordingNotifier{}
	svc := New(Options{Address: userHex, NotifyInitial: true}, newEngine(t, f), nil, nil, notifier, zerolog.Nop())
	defer svc.View().Close()

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(notifier.notes) != 1 || len(notifier.notes[0].Records) != 2 {
		t.Fatalf("initial history should be announced, got %+v", notifier.notes)
	}
}

func TestProcessTickFailureKeepsState(t *testing.T) {
	f := &scriptedFetcher{
		pages: [][]activity.RawTransaction{{claim("0xa", 100)}},
		errAt: map[int]error{1: fetcher.ErrRateLimited},
	}
	svc := New(Options{Address: userHex}, newEngine(t, f), nil, nil, nil, zerolog.Nop())
	defer svc.View().Close()

	ctx := context.Background()
	if err := svc.ProcessTick(ctx, time.Now()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	err := svc.ProcessTick(ctx, time.Now())
	if !errors.Is(err, fetcher.ErrRateLimited) {
		t.Fatalf("err = %v, want rate limited", err)
	}
	if svc.View().Pager().Len() != 1 {
		t.Fatal("a failed refresh must keep the published history")
	}
	if svc.View().ErrMessage() != fetcher.MsgRetryLater {
		t.Fatalf("err message = %q", svc.View().ErrMessage())
	}
}

func TestProcessTickSkipsWhenLockHeld(t *testing.T) {
	f := &scriptedFetcher{pages: [][]activity.RawTransaction{{claim("0xa", 100)}}}
	store := &lockingStore{}
	svc := New(Options{Address: userHex, LockKey: 42}, newEngine(t, f), nil, store, nil, zerolog.Nop())
	defer svc.View().Close()

	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if f.calls != 0 {
		t.Fatal("tick must not load while another watcher holds the lock")
	}

	store.acquired = true
	if err := svc.ProcessTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if f.calls != 1 || store.released != 1 || len(store.records) != 1 {
		t.Fatalf("calls=%d released=%d archived=%d", f.calls, store.released, len(store.records))
	}
}

func TestRunRequiresScheduler(t *testing.T) {
	svc := New(Options{Address: userHex}, newEngine(t, &scriptedFetcher{}), nil, nil, nil, zerolog.Nop())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected error without scheduler")
	}
}
