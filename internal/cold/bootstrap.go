package cold

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// EnsureSchema creates the history hypertable, its lookup index and the
// registry table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []struct {
		sql  string
		args []any
	}{
		{sql: `CREATE TABLE IF NOT EXISTS ` + s.pricesTable + ` (
			ts TIMESTAMPTZ NOT NULL,
			price BIGINT NOT NULL,
			ticker TEXT NOT NULL
		)`},
		{sql: `SELECT create_hypertable($1::regclass, 'ts',
			create_default_indexes => FALSE,
			if_not_exists => TRUE
		)`, args: []any{s.pricesTable}},
		{sql: `CREATE INDEX IF NOT EXISTS ` + s.priceIndex + ` ON ` + s.pricesTable + ` (ticker, ts DESC)`},
		{sql: `CREATE TABLE IF NOT EXISTS ` + s.tickersTable + ` (
			ticker TEXT PRIMARY KEY
		)`},
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt.sql, stmt.args...); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.logger.Info("cold schema ready", "prices_table", s.pricesTable, "tickers_table", s.tickersTable)
	return nil
}

// EnsureRegistry registers missing instruments and gives each newly
// registered one a zero-price seed row, all in one transaction. It returns
// the instruments this call registered.
func (s *Store) EnsureRegistry(ctx context.Context, instruments []string) ([]string, error) {
	if len(instruments) == 0 {
		return nil, nil
	}

	var created []string
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		created, err = s.insertRegistry(ctx, tx, instruments)
		if err != nil {
			return err
		}
		if len(created) == 0 {
			return nil
		}
		return s.insertSeeds(ctx, tx, created, time.Now().Truncate(time.Second))
	})
	if err != nil {
		return nil, fmt.Errorf("ensure registry: %w", err)
	}

	if len(created) > 0 {
		s.logger.Info("instruments registered", "count", len(created))
	}
	return created, nil
}

// insertRegistry queues one ON CONFLICT DO NOTHING insert per instrument
// and returns those that produced a row.
func (s *Store) insertRegistry(ctx context.Context, tx pgx.Tx, instruments []string) ([]string, error) {
	batch := &pgx.Batch{}
	for _, id := range instruments {
		batch.Queue(`INSERT INTO `+s.tickersTable+` (ticker) VALUES ($1) ON CONFLICT DO NOTHING`, id)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	var created []string
	for _, id := range instruments {
		ct, err := results.Exec()
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", id, err)
		}
		if ct.RowsAffected() == 1 {
			created = append(created, id)
		}
	}
	return created, results.Close()
}

func (s *Store) insertSeeds(ctx context.Context, tx pgx.Tx, instruments []string, ts time.Time) error {
	batch := &pgx.Batch{}
	for _, id := range instruments {
		batch.Queue(`INSERT INTO `+s.pricesTable+` (ticker, price, ts) VALUES ($1, 0, $2)`, id, ts)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for _, id := range instruments {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
	}
	return results.Close()
}
