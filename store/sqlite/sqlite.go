/*
Package sqlite provides a SQLite-backed implementation of inventory.TxStore.

PURPOSE:
  Persists the catalog, the append-only ledger, the location tree and job
  allocations. Schema changes are versioned goose migrations embedded in
  the binary (see migrations/).

APPEND-ONLY ENFORCEMENT:
  The ledger_entries table is append-only at three levels:
  - This package has no UPDATE or DELETE statement for it
  - BEFORE UPDATE / BEFORE DELETE triggers abort any attempt
  - idx_ledger_entries_reverses lets an entry be given back only once

KEY TABLES:
  parts:          Catalog rows; cached aggregates written by the projector
  ledger_entries: Immutable movements, id is the FIFO sequence
  locations:      Location tree (parent_id)
  allocations:    Job part allocations

MONEY:
  Decimals are stored as TEXT and round-trip exactly through
  shopspring/decimal's Scanner/Valuer.

CONCURRENCY:
  The pool is capped at one connection: SQLite has a single writer anyway,
  and ":memory:" databases exist per connection. Inside WithTx every read
  and write goes through the *sql.Tx. SQLITE_BUSY and SQLITE_LOCKED are
  reported as inventory.ErrConcurrencyConflict so callers can retry.

USAGE:
  store, err := sqlite.New("./data/parts.db", logger)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  inv := inventory.New(store)

SEE ALSO:
  - inventory/store.go: Interface definitions
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldops/partsledger/inventory"
	"github.com/fieldops/partsledger/store/sqlite/migrations"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

// Store implements inventory.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string, log logrus.FieldLogger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrate(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{queries: queries{q: db}, db: db}, nil
}

func migrate(db *sql.DB, log logrus.FieldLogger) error {
	goose.SetBaseFS(migrations.FS)
	if log != nil {
		goose.SetLogger(log)
	} else {
		goose.SetLogger(goose.NopLogger())
	}
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to up migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements inventory.Store over either the pool or a transaction.
type queries struct {
	q querier
}

// =============================================================================
// PART STORE
// =============================================================================

const partColumns = `code, description, category, brand, markup_percent, min_stock,
	stock, average_cost, sell_price, times_used, first_used_at, last_used_at,
	location_id, created_at, updated_at`

func (s *queries) GetPart(ctx context.Context, code inventory.PartCode) (inventory.Part, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+partColumns+` FROM parts WHERE code = ?`, code)
	p, err := scanPart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Part{}, fmt.Errorf("%s: %w", code, inventory.ErrPartNotFound)
	}
	return p, err
}

func (s *queries) ListParts(ctx context.Context) ([]inventory.Part, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+partColumns+` FROM parts ORDER BY code`)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query parts: %w", err))
	}
	defer rows.Close()

	var parts []inventory.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (s *queries) InsertPart(ctx context.Context, p inventory.Part) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO parts (`+partColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Code, p.Description, p.Category, p.Brand, p.MarkupPercent, nullInt(p.MinStock),
		p.Stock, p.AverageCost, p.SellPrice, p.TimesUsed, nullTime(p.FirstUsedAt), nullTime(p.LastUsedAt),
		nullString(string(p.LocationID)), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("part %s: %w", p.Code, inventory.ErrDuplicateCode)
	}
	if err != nil {
		return mapError(fmt.Errorf("failed to insert part: %w", err))
	}
	return nil
}

func (s *queries) UpdatePart(ctx context.Context, p inventory.Part) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE parts SET
			description = ?, category = ?, brand = ?, markup_percent = ?, min_stock = ?,
			stock = ?, average_cost = ?, sell_price = ?, times_used = ?,
			first_used_at = ?, last_used_at = ?, location_id = ?, updated_at = ?
		WHERE code = ?`,
		p.Description, p.Category, p.Brand, p.MarkupPercent, nullInt(p.MinStock),
		p.Stock, p.AverageCost, p.SellPrice, p.TimesUsed,
		nullTime(p.FirstUsedAt), nullTime(p.LastUsedAt), nullString(string(p.LocationID)), formatTime(p.UpdatedAt),
		p.Code,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update part: %w", err))
	}
	return requireRow(res, fmt.Errorf("%s: %w", p.Code, inventory.ErrPartNotFound))
}

func (s *queries) DeletePart(ctx context.Context, code inventory.PartCode) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM parts WHERE code = ?`, code)
	if err != nil {
		return mapError(fmt.Errorf("failed to delete part: %w", err))
	}
	return requireRow(res, fmt.Errorf("%s: %w", code, inventory.ErrPartNotFound))
}

func scanPart(row interface{ Scan(...any) error }) (inventory.Part, error) {
	var (
		p           inventory.Part
		minStock    sql.NullInt64
		firstUsedAt sql.NullString
		lastUsedAt  sql.NullString
		locationID  sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(
		&p.Code, &p.Description, &p.Category, &p.Brand, &p.MarkupPercent, &minStock,
		&p.Stock, &p.AverageCost, &p.SellPrice, &p.TimesUsed, &firstUsedAt, &lastUsedAt,
		&locationID, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return p, err
	}
	if err != nil {
		return p, fmt.Errorf("failed to scan part: %w", err)
	}
	if minStock.Valid {
		p.MinStock = &minStock.Int64
	}
	p.FirstUsedAt = parseNullTime(firstUsedAt)
	p.LastUsedAt = parseNullTime(lastUsedAt)
	p.LocationID = inventory.LocationID(locationID.String)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// =============================================================================
// LEDGER STORE (append-only)
// =============================================================================

const entryColumns = `id, part_code, delta, kind, unit_cost, from_location, to_location,
	job_id, reverses, note, actor, recorded_at`

func (s *queries) AppendEntry(ctx context.Context, e inventory.LedgerEntry) (inventory.EntryID, error) {
	var reverses sql.NullInt64
	if e.Reverses != 0 {
		reverses = sql.NullInt64{Int64: int64(e.Reverses), Valid: true}
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(part_code, delta, kind, unit_cost, from_location, to_location, job_id, reverses, note, actor, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PartCode, e.Delta, e.Kind, e.UnitCost,
		nullString(string(e.FromLocation)), nullString(string(e.ToLocation)), nullString(string(e.JobID)),
		reverses, e.Note, e.Actor, formatTime(e.RecordedAt),
	)
	if isUniqueConstraintError(err) {
		return 0, &inventory.ValidationError{Field: "reverses", Reason: fmt.Sprintf("entry %d is already reversed", e.Reverses)}
	}
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to append ledger entry: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger sequence: %w", err)
	}
	return inventory.EntryID(id), nil
}

func (s *queries) Entries(ctx context.Context, code inventory.PartCode) ([]inventory.LedgerEntry, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE part_code = ? ORDER BY id ASC`, code)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query ledger entries: %w", err))
	}
	defer rows.Close()

	var entries []inventory.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *queries) GetEntry(ctx context.Context, id inventory.EntryID) (inventory.LedgerEntry, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.LedgerEntry{}, fmt.Errorf("%d: %w", id, inventory.ErrEntryNotFound)
	}
	return e, err
}

func scanEntry(row interface{ Scan(...any) error }) (inventory.LedgerEntry, error) {
	var (
		e            inventory.LedgerEntry
		fromLocation sql.NullString
		toLocation   sql.NullString
		jobID        sql.NullString
		reverses     sql.NullInt64
		recordedAt   string
	)
	err := row.Scan(
		&e.ID, &e.PartCode, &e.Delta, &e.Kind, &e.UnitCost, &fromLocation, &toLocation,
		&jobID, &reverses, &e.Note, &e.Actor, &recordedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return e, err
	}
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}
	e.FromLocation = inventory.LocationID(fromLocation.String)
	e.ToLocation = inventory.LocationID(toLocation.String)
	e.JobID = inventory.JobID(jobID.String)
	e.Reverses = inventory.EntryID(reverses.Int64)
	e.RecordedAt = parseTime(recordedAt)
	return e, nil
}

// =============================================================================
// LOCATION STORE
// =============================================================================

const locationColumns = `id, name, kind, parent_id, active, created_at, updated_at`

func (s *queries) GetLocation(ctx context.Context, id inventory.LocationID) (inventory.Location, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id)
	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Location{}, fmt.Errorf("%s: %w", id, inventory.ErrLocationNotFound)
	}
	return l, err
}

func (s *queries) ListLocations(ctx context.Context) ([]inventory.Location, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY id`)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query locations: %w", err))
	}
	defer rows.Close()

	var locations []inventory.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (s *queries) InsertLocation(ctx context.Context, l inventory.Location) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO locations (`+locationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Name, l.Kind, nullString(string(l.ParentID)), l.Active,
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("location %s: %w", l.ID, inventory.ErrDuplicateCode)
	}
	if err != nil {
		return mapError(fmt.Errorf("failed to insert location: %w", err))
	}
	return nil
}

func (s *queries) UpdateLocation(ctx context.Context, l inventory.Location) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE locations SET name = ?, kind = ?, parent_id = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		l.Name, l.Kind, nullString(string(l.ParentID)), l.Active, formatTime(l.UpdatedAt), l.ID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update location: %w", err))
	}
	return requireRow(res, fmt.Errorf("%s: %w", l.ID, inventory.ErrLocationNotFound))
}

func scanLocation(row interface{ Scan(...any) error }) (inventory.Location, error) {
	var (
		l         inventory.Location
		parentID  sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&l.ID, &l.Name, &l.Kind, &parentID, &l.Active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return l, err
	}
	if err != nil {
		return l, fmt.Errorf("failed to scan location: %w", err)
	}
	l.ParentID = inventory.LocationID(parentID.String)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return l, nil
}

// =============================================================================
// ALLOCATION STORE
// =============================================================================

const allocationColumns = `id, job_id, part_code, quantity, unit_cost, total_cost, sell_price,
	source, entry_id, note, actor, created_at`

func (s *queries) InsertAllocation(ctx context.Context, a inventory.Allocation) error {
	var entryID sql.NullInt64
	if a.EntryID != 0 {
		entryID = sql.NullInt64{Int64: int64(a.EntryID), Valid: true}
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO allocations (`+allocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.JobID, a.PartCode, a.Quantity, a.UnitCost, a.TotalCost, a.SellPrice,
		a.Source, entryID, a.Note, a.Actor, formatTime(a.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("allocation %s: %w", a.ID, inventory.ErrDuplicateCode)
	}
	if err != nil {
		return mapError(fmt.Errorf("failed to insert allocation: %w", err))
	}
	return nil
}

func (s *queries) GetAllocation(ctx context.Context, id inventory.AllocationID) (inventory.Allocation, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id = ?`, id)
	a, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Allocation{}, fmt.Errorf("%s: %w", id, inventory.ErrAllocationNotFound)
	}
	return a, err
}

func (s *queries) AllocationByEntry(ctx context.Context, id inventory.EntryID) (inventory.Allocation, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE entry_id = ?`, int64(id))
	a, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Allocation{}, fmt.Errorf("entry %d: %w", id, inventory.ErrAllocationNotFound)
	}
	return a, err
}

func (s *queries) DeleteAllocation(ctx context.Context, id inventory.AllocationID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM allocations WHERE id = ?`, id)
	if err != nil {
		return mapError(fmt.Errorf("failed to delete allocation: %w", err))
	}
	return requireRow(res, fmt.Errorf("%s: %w", id, inventory.ErrAllocationNotFound))
}

func (s *queries) AllocationsByJob(ctx context.Context, job inventory.JobID) ([]inventory.Allocation, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE job_id = ? ORDER BY created_at, id`, job)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query allocations: %w", err))
	}
	defer rows.Close()

	var allocations []inventory.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

func (s *queries) CountAllocationsByPart(ctx context.Context, code inventory.PartCode) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM allocations WHERE part_code = ?`, code).Scan(&count)
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to count allocations: %w", err))
	}
	return count, nil
}

func scanAllocation(row interface{ Scan(...any) error }) (inventory.Allocation, error) {
	var (
		a         inventory.Allocation
		entryID   sql.NullInt64
		createdAt string
	)
	err := row.Scan(
		&a.ID, &a.JobID, &a.PartCode, &a.Quantity, &a.UnitCost, &a.TotalCost, &a.SellPrice,
		&a.Source, &entryID, &a.Note, &a.Actor, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return a, err
	}
	if err != nil {
		return a, fmt.Errorf("failed to scan allocation: %w", err)
	}
	a.EntryID = inventory.EntryID(entryID.Int64)
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// timeLayout keeps nanoseconds at a fixed width so stored timestamps sort
// lexically in time order. RFC3339Nano trims trailing zeros.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// mapError turns SQLite lock contention into inventory.ErrConcurrencyConflict.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %w", inventory.ErrConcurrencyConflict, err)
	}
	return err
}

var _ inventory.TxStore = (*Store)(nil)
