// Package coldtest provides an in-memory stand-in for the TimescaleDB
// statements issued by the cold store.
package coldtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Row is one stored history row.
type Row struct {
	Ticker string
	Price  int64
	Ts     time.Time
}

// DB implements cold.DB over in-memory tables.
type DB struct {
	mu         sync.Mutex
	registry   map[string]bool
	rows       []Row
	statements []string
	commits    int
	rollbacks  int
	fail       error
}

// NewDB returns an empty database.
func NewDB() *DB {
	return &DB{registry: make(map[string]bool)}
}

// FailWith makes every later statement return err; nil restores normal operation.
func (db *DB) FailWith(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.fail = err
}

// Statements returns every SQL statement received, in order.
func (db *DB) Statements() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]string(nil), db.statements...)
}

// Rows returns the committed history rows of ticker in insertion order.
func (db *DB) Rows(ticker string) []Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []Row
	for _, r := range db.rows {
		if r.Ticker == ticker {
			out = append(out, r)
		}
	}
	return out
}

// Registered reports whether ticker is in the registry.
func (db *DB) Registered(ticker string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.registry[ticker]
}

// Commits returns the number of committed transactions.
func (db *DB) Commits() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.commits
}

// Rollbacks returns the number of rolled back transactions.
func (db *DB) Rollbacks() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.rollbacks
}

// Insert stores a history row directly.
func (db *DB) Insert(ticker string, price int64, ts time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rows = append(db.rows, Row{Ticker: ticker, Price: price, Ts: ts})
}

// Exec runs a DDL or insert statement.
func (db *DB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.record(sql); err != nil {
		return pgconn.CommandTag{}, err
	}
	return db.exec(sql, args, db.registry, &db.rows)
}

// Query runs a history or registry listing.
func (db *DB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.record(sql); err != nil {
		return nil, err
	}

	switch {
	case strings.Contains(sql, "SELECT price, ts"):
		ticker := args[0].(string)
		start, end := args[1].(time.Time), args[2].(time.Time)
		limit := args[3].(int)

		var match []Row
		for _, r := range db.rows {
			if r.Ticker == ticker && !r.Ts.Before(start) && !r.Ts.After(end) {
				match = append(match, r)
			}
		}
		sort.SliceStable(match, func(i, j int) bool { return match[i].Ts.After(match[j].Ts) })
		if len(match) > limit {
			match = match[:limit]
		}
		values := make([][]any, len(match))
		for i, r := range match {
			values[i] = []any{r.Price, r.Ts}
		}
		return &rows{values: values}, nil

	case strings.Contains(sql, "SELECT ticker"):
		names := make([]string, 0, len(db.registry))
		for name := range db.registry {
			names = append(names, name)
		}
		sort.Strings(names)
		values := make([][]any, len(names))
		for i, name := range names {
			values[i] = []any{name}
		}
		return &rows{values: values}, nil
	}
	return nil, fmt.Errorf("coldtest: unsupported query %q", sql)
}

// QueryRow runs a latest-price lookup.
func (db *DB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.record(sql); err != nil {
		return row{err: err}
	}
	if !strings.Contains(sql, "SELECT price FROM") {
		return row{err: fmt.Errorf("coldtest: unsupported query %q", sql)}
	}

	ticker := args[0].(string)
	var (
		latest Row
		found  bool
	)
	for _, r := range db.rows {
		if r.Ticker == ticker && (!found || !r.Ts.Before(latest.Ts)) {
			latest, found = r, true
		}
	}
	if !found {
		return row{err: pgx.ErrNoRows}
	}
	return row{values: []any{latest.Price}}
}

// Begin starts a transaction whose writes become visible on Commit.
func (db *DB) Begin(_ context.Context) (pgx.Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.record("BEGIN"); err != nil {
		return nil, err
	}
	return &tx{db: db, registry: make(map[string]bool)}, nil
}

// Ping reports the configured failure, if any.
func (db *DB) Ping(context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.fail
}

func (db *DB) record(sql string) error {
	db.statements = append(db.statements, strings.Join(strings.Fields(sql), " "))
	return db.fail
}

// exec applies an insert against the given registry and row set. Reads of
// the registry also consult the committed one so conflicts match the server.
func (db *DB) exec(sql string, args []any, registry map[string]bool, out *[]Row) (pgconn.CommandTag, error) {
	switch {
	case strings.HasPrefix(sql, "CREATE"), strings.Contains(sql, "create_hypertable"):
		return pgconn.NewCommandTag("CREATE"), nil

	case strings.Contains(sql, "(ticker) VALUES"):
		ticker := args[0].(string)
		if db.registry[ticker] || registry[ticker] {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		registry[ticker] = true
		return pgconn.NewCommandTag("INSERT 0 1"), nil

	case strings.Contains(sql, "(ticker, price, ts)"):
		r := Row{Ticker: args[0].(string)}
		if len(args) == 2 {
			r.Ts = args[1].(time.Time)
		} else {
			r.Price = args[1].(int64)
			r.Ts = args[2].(time.Time)
		}
		*out = append(*out, r)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("coldtest: unsupported statement %q", sql)
}

type tx struct {
	pgx.Tx

	db       *DB
	registry map[string]bool
	rows     []Row
	done     bool
}

func (t *tx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if err := t.db.record(sql); err != nil {
		return pgconn.CommandTag{}, err
	}
	return t.db.exec(sql, args, t.registry, &t.rows)
}

func (t *tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	res := &batchResults{}
	for _, q := range b.QueuedQueries {
		ct, err := t.Exec(ctx, q.SQL, q.Arguments...)
		res.results = append(res.results, batchResult{tag: ct, err: err})
	}
	return res
}

func (t *tx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	for name := range t.registry {
		t.db.registry[name] = true
	}
	t.db.rows = append(t.db.rows, t.rows...)
	t.db.commits++
	return nil
}

func (t *tx) Rollback(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.rollbacks++
	return nil
}

type batchResult struct {
	tag pgconn.CommandTag
	err error
}

type batchResults struct {
	pgx.BatchResults

	results []batchResult
	next    int
}

func (b *batchResults) Exec() (pgconn.CommandTag, error) {
	if b.next >= len(b.results) {
		return pgconn.CommandTag{}, errors.New("coldtest: no more results in batch")
	}
	r := b.results[b.next]
	b.next++
	return r.tag, r.err
}

func (b *batchResults) Close() error {
	for _, r := range b.results {
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

type row struct {
	values []any
	err    error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

type rows struct {
	pgx.Rows

	values [][]any
	cur    int
}

func (r *rows) Next() bool {
	if r.cur >= len(r.values) {
		return false
	}
	r.cur++
	return true
}

func (r *rows) Scan(dest ...any) error { return scanInto(r.values[r.cur-1], dest) }
func (r *rows) Err() error             { return nil }
func (r *rows) Close()                 {}

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("coldtest: scan %d values into %d targets", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("coldtest: unsupported scan target %T", dest[i])
		}
	}
	return nil
}
