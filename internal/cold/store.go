package cold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/tickstream/internal/model"
)

// ErrNoRows means the instrument has no history at all.
var ErrNoRows = errors.New("no rows for instrument")

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store reads and writes tick history.
type Store struct {
	db     DB
	logger *slog.Logger

	pricesTable  string
	tickersTable string
	priceIndex   string
}

// NewStore creates a Store over the given tables.
func NewStore(db DB, pricesTable, tickersTable string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:           db,
		logger:       logger,
		pricesTable:  pgx.Identifier{pricesTable}.Sanitize(),
		tickersTable: pgx.Identifier{tickersTable}.Sanitize(),
		priceIndex:   pgx.Identifier{pricesTable + "_ticker_ts"}.Sanitize(),
	}
}

// Append inserts one history row at the tick's observation time.
func (s *Store) Append(ctx context.Context, tick model.Tick) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO `+s.pricesTable+` (ticker, price, ts) VALUES ($1, $2, $3)`,
		tick.InstrumentID, tick.Value, tick.ObservedTime(),
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", tick.InstrumentID, err)
	}
	return nil
}

// Latest returns the most recent price of instrumentID.
func (s *Store) Latest(ctx context.Context, instrumentID string) (int64, error) {
	var price int64
	err := s.db.QueryRow(ctx,
		`SELECT price FROM `+s.pricesTable+` WHERE ticker = $1 ORDER BY ts DESC LIMIT 1`,
		instrumentID,
	).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNoRows, instrumentID)
	}
	if err != nil {
		return 0, fmt.Errorf("latest %s: %w", instrumentID, err)
	}
	return price, nil
}

// History returns up to limit rows of instrumentID with start <= ts <= end,
// most recent first.
func (s *Store) History(ctx context.Context, instrumentID string, start, end time.Time, limit int) ([]model.HistoryRow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT price, ts FROM `+s.pricesTable+`
		WHERE ticker = $1 AND ts BETWEEN $2 AND $3
		ORDER BY ts DESC
		LIMIT $4`,
		instrumentID, start, end, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history %s: %w", instrumentID, err)
	}
	defer rows.Close()

	out := make([]model.HistoryRow, 0, limit)
	for rows.Next() {
		row := model.HistoryRow{Ticker: instrumentID}
		if err := rows.Scan(&row.Price, &row.Ts); err != nil {
			return nil, fmt.Errorf("scan history %s: %w", instrumentID, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history %s: %w", instrumentID, err)
	}
	return out, nil
}

// Instruments lists the registry.
func (s *Store) Instruments(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT ticker FROM `+s.tickersTable+` ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, ticker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read instruments: %w", err)
	}
	return out, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
