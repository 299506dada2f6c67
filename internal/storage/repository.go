package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"wallet-activity/internal/activity"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	ensureSchemaSQL = `CREATE TABLE IF NOT EXISTS wallet_activity (
        address      TEXT        NOT NULL,
        tx_hash      TEXT        NOT NULL,
        kind         TEXT        NOT NULL,
        function     TEXT        NOT NULL,
        contract     TEXT        NOT NULL,
        amount       NUMERIC,
        ticket_count BIGINT,
        occurred_at  TIMESTAMPTZ NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (address, tx_hash)
    );
    CREATE INDEX IF NOT EXISTS wallet_activity_address_occurred_idx
        ON wallet_activity (address, occurred_at DESC);`

	insertActivitySQL = `INSERT INTO wallet_activity (
        address,
        tx_hash,
        kind,
        function,
        contract,
        amount,
        ticket_count,
        occurred_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (address, tx_hash) DO NOTHING;`

	listRecentActivitySQL = `SELECT
        address,
        tx_hash,
        kind,
        function,
        contract,
        amount::TEXT,
        ticket_count,
        occurred_at,
        created_at
    FROM wallet_activity
    WHERE address = $1
    ORDER BY occurred_at DESC, tx_hash
    LIMIT $2;`

	listActivityBetweenSQL = `SELECT
        address,
        tx_hash,
        kind,
        function,
        contract,
        amount::TEXT,
        ticket_count,
        occurred_at,
        created_at
    FROM wallet_activity
    WHERE address = $1
      AND occurred_at >= $2
      AND occurred_at < $3
    ORDER BY occurred_at, tx_hash;`

	countActivitySQL = `SELECT COUNT(*) FROM wallet_activity WHERE address = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ActivityStore archives classified activity. The engine never reads it back;
// it serves the show and export commands.
type ActivityStore interface {
	InsertActivity(ctx context.Context, records []ActivityRecord) (int64, error)
	ListRecentActivity(ctx context.Context, address string, limit int) ([]ActivityRecord, error)
	ListActivityBetween(ctx context.Context, address string, from, to time.Time) ([]ActivityRecord, error)
	CountActivity(ctx context.Context, address string) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the pgx-backed activity archive.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the archive table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, ensureSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed unlock is released with the session when the conn is recycled.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertActivity archives records in one batch and reports how many were new.
// Rows already archived under the same address and hash are left untouched.
func (s *Store) InsertActivity(ctx context.Context, records []ActivityRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		var amount any
		if r.Amount != nil {
			amount = r.Amount.String()
		}
		var tickets any
		if r.TicketCount != nil {
			tickets = *r.TicketCount
		}
		batch.Queue(insertActivitySQL,
			r.Address,
			r.Hash,
			string(r.Kind),
			r.Function,
			r.Contract,
			amount,
			tickets,
			r.OccurredAt,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range records {
		tag, execErr := results.Exec()
		if execErr != nil {
			return inserted, fmt.Errorf("insert activity: %w", execErr)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ListRecentActivity lists the newest archived records of address.
func (s *Store) ListRecentActivity(ctx context.Context, address string, limit int) ([]ActivityRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentActivitySQL, normaliseAddress(address), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent activity: %w", queryErr)
	}
	return collectActivity(rows)
}

// ListActivityBetween lists archived records of address in [from, to), oldest first.
func (s *Store) ListActivityBetween(ctx context.Context, address string, from, to time.Time) ([]ActivityRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActivityBetweenSQL, normaliseAddress(address), from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list activity between: %w", queryErr)
	}
	return collectActivity(rows)
}

// CountActivity counts archived records of address.
func (s *Store) CountActivity(ctx context.Context, address string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countActivitySQL, normaliseAddress(address)).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count activity: %w", scanErr)
	}
	return count, nil
}

func collectActivity(rows pgx.Rows) ([]ActivityRecord, error) {
	defer rows.Close()

	records := make([]ActivityRecord, 0)
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanActivity(rows pgx.Rows) (ActivityRecord, error) {
	var (
		rec       ActivityRecord
		kind      string
		amountStr sql.NullString
		tickets   sql.NullInt64
	)

	if err := rows.Scan(
		&rec.Address,
		&rec.Hash,
		&kind,
		&rec.Function,
		&rec.Contract,
		&amountStr,
		&tickets,
		&rec.OccurredAt,
		&rec.CreatedAt,
	); err != nil {
		return ActivityRecord{}, err
	}

	rec.Kind = activity.Kind(kind)
	if !rec.Kind.Valid() {
		return ActivityRecord{}, fmt.Errorf("unknown activity kind %q for %s", kind, rec.Hash)
	}
	if amountStr.Valid {
		amount, err := decimal.NewFromString(amountStr.String)
		if err != nil {
			return ActivityRecord{}, fmt.Errorf("parse amount: %w", err)
		}
		rec.Amount = &amount
	}
	if tickets.Valid {
		value := tickets.Int64
		rec.TicketCount = &value
	}
	return rec, nil
}

func normaliseAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
