package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/exchange"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS report_runs (
        id           BIGSERIAL PRIMARY KEY,
        run_date     DATE NOT NULL,
        status       TEXT NOT NULL,
        stage        TEXT NOT NULL,
        daily_usd    NUMERIC NOT NULL DEFAULT 0,
        month_usd    NUMERIC NOT NULL DEFAULT 0,
        rate         NUMERIC NOT NULL DEFAULT 0,
        rate_source  TEXT NOT NULL DEFAULT '',
        error        TEXT,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS exchange_rates (
        base       TEXT NOT NULL,
        quote      TEXT NOT NULL,
        rate       NUMERIC NOT NULL,
        as_of      TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (base, quote)
    );`

	insertRunSQL = `INSERT INTO report_runs (
        run_date,
        status,
        stage,
        daily_usd,
        month_usd,
        rate,
        rate_source,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	listRecentRunsSQL = `SELECT
        id,
        run_date,
        status,
        stage,
        daily_usd,
        month_usd,
        rate,
        rate_source,
        error,
        created_at
    FROM report_runs
    ORDER BY created_at DESC
    LIMIT $1;`

	upsertRateSQL = `INSERT INTO exchange_rates (
        base, quote, rate, as_of
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (base, quote) DO UPDATE
    SET rate       = EXCLUDED.rate,
        as_of      = EXCLUDED.as_of,
        updated_at = now();`

	getRateSQL = `SELECT rate, as_of FROM exchange_rates WHERE base = $1 AND quote = $2;`
)

// RunStore defines operations for run-history persistence.
type RunStore interface {
	InsertRun(ctx context.Context, run RunRecord) (RunRecord, error)
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// Store aggregates run-history and exchange-rate persistence. It doubles as
// a durable exchange.RateCache when a database is configured.
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

// EnsureSchema creates the backing tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertRun records one invocation outcome.
func (s *Store) InsertRun(ctx context.Context, run RunRecord) (RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RunRecord{}, err
	}

	var errMsg interface{}
	if run.Error != nil {
		errMsg = *run.Error
	}

	row := pool.QueryRow(ctx, insertRunSQL,
		run.RunDate,
		run.Status,
		run.Stage,
		run.DailyUSD.String(),
		run.MonthUSD.String(),
		run.Rate.String(),
		run.RateSource,
		errMsg,
	)
	if err := row.Scan(&run.ID, &run.CreatedAt); err != nil {
		return RunRecord{}, fmt.Errorf("insert run record: %w", err)
	}
	return run, nil
}

// ListRecentRuns lists the most recent run records.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		run, scanErr := scanRunRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// GetRate implements exchange.RateCache over the exchange_rates table.
func (s *Store) GetRate(ctx context.Context, base, quote string) (exchange.Rate, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return exchange.Rate{}, false, err
	}

	var (
		rateStr string
		asOf    time.Time
	)
	if err := pool.QueryRow(ctx, getRateSQL, base, quote).Scan(&rateStr, &asOf); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return exchange.Rate{}, false, nil
		}
		return exchange.Rate{}, false, fmt.Errorf("get cached rate: %w", err)
	}

	value, err := decimal.NewFromString(rateStr)
	if err != nil {
		return exchange.Rate{}, false, fmt.Errorf("parse cached rate: %w", err)
	}

	return exchange.Rate{
		Base:   base,
		Quote:  quote,
		Value:  value,
		AsOf:   asOf,
		Source: exchange.SourceCached,
	}, true, nil
}

// PutRate implements exchange.RateCache over the exchange_rates table.
func (s *Store) PutRate(ctx context.Context, rate exchange.Rate) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, upsertRateSQL, rate.Base, rate.Quote, rate.Value.String(), rate.AsOf); err != nil {
		return fmt.Errorf("upsert cached rate: %w", err)
	}
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func scanRunRecord(rows pgx.Rows) (RunRecord, error) {
	var (
		run      RunRecord
		daily    string
		month    string
		rate     string
		errField *string
	)

	if err := rows.Scan(
		&run.ID,
		&run.RunDate,
		&run.Status,
		&run.Stage,
		&daily,
		&month,
		&rate,
		&run.RateSource,
		&errField,
		&run.CreatedAt,
	); err != nil {
		return RunRecord{}, fmt.Errorf("scan run record: %w", err)
	}

	var err error
	if run.DailyUSD, err = decimal.NewFromString(daily); err != nil {
		return RunRecord{}, fmt.Errorf("parse daily amount: %w", err)
	}
	if run.MonthUSD, err = decimal.NewFromString(month); err != nil {
		return RunRecord{}, fmt.Errorf("parse month amount: %w", err)
	}
	if run.Rate, err = decimal.NewFromString(rate); err != nil {
		return RunRecord{}, fmt.Errorf("parse rate: %w", err)
	}

	run.Error = errField
	return run, nil
}

var _ exchange.RateCache = (*Store)(nil)
var _ RunStore = (*Store)(nil)
