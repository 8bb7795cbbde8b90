// Package store - Local detection history. Records are kept in a single
// detection table, trimmed to the most recent entries after every insert.
package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/nvr-ai/beachwatch/congestion"
	"github.com/nvr-ai/beachwatch/report"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultKeep is the number of detections kept when no limit is given.
const DefaultKeep = 10

// ErrNotFound is returned when no detection matches a query.
var ErrNotFound = errors.New("detection not found")

// Detection is one stored report.
type Detection struct {
	ID          int64           `json:"id"`
	Source      string          `json:"source"`
	Name        string          `json:"name"`
	PersonCount int             `json:"personCount"`
	FallenCount int             `json:"fallenCount"`
	UniqueCount int             `json:"uniqueCount"`
	Congestion  congestion.Tier `json:"congestion"`
	Simulated   bool            `json:"simulated"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Store is the detection history.
type Store struct {
	db     *sql.DB
	driver string
	keep   int
	logger *zap.Logger
}

// DriverFor returns the driver for a DSN. postgres:// and postgresql:// URLs
// select lib/pq; anything else is a sqlite path.
func DriverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to the history database and creates the schema.
//
// Arguments:
//   - ctx: Bounds the connection check and schema creation.
//   - dsn: A sqlite file path or a postgres URL.
//   - keep: The number of detections retained. Values <= 0 use DefaultKeep.
//   - logger: The logger. Nil disables logging.
//
// Returns:
//   - *Store: The store.
//   - error: An error if the database cannot be opened or migrated.
func Open(ctx context.Context, dsn string, keep int, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keep <= 0 {
		keep = DefaultKeep
	}

	driver := DriverFor(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %s history", driver)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "error connecting to %s history", driver)
	}

	s := &Store{db: db, driver: driver, keep: keep, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS detection (
			id ` + id + `,
			source TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			person_count INTEGER NOT NULL,
			fallen_count INTEGER NOT NULL,
			unique_count INTEGER NOT NULL DEFAULT 0,
			congestion INTEGER NOT NULL DEFAULT 0,
			simulated BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS detection_created_at ON detection (created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "error creating detection schema")
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveAndTrim inserts a detection and deletes everything but the latest keep
// rows in one transaction.
//
// Arguments:
//   - ctx: The request context.
//   - d: The detection. A zero CreatedAt is stamped with the current time.
//
// Returns:
//   - Detection: The stored detection with its id.
//   - error: An error if the insert or trim fails.
func (s *Store) SaveAndTrim(ctx context.Context, d Detection) (Detection, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.CreatedAt = time.UnixMilli(d.CreatedAt.UnixMilli())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return d, errors.Wrap(err, "error starting history transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	insert := s.rebind(`INSERT INTO detection
		(source, name, person_count, fallen_count, unique_count, congestion, simulated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err = tx.QueryRowContext(ctx, insert,
		d.Source, d.Name, d.PersonCount, d.FallenCount, d.UniqueCount,
		int(d.Congestion), d.Simulated, d.CreatedAt.UnixMilli(),
	).Scan(&d.ID)
	if err != nil {
		return d, errors.Wrapf(err, "error saving detection for %s", d.Source)
	}

	trim := s.rebind(`DELETE FROM detection WHERE id NOT IN
		(SELECT id FROM detection ORDER BY created_at DESC, id DESC LIMIT ?)`)
	res, err := tx.ExecContext(ctx, trim, s.keep)
	if err != nil {
		return d, errors.Wrap(err, "error trimming detection history")
	}
	if err := tx.Commit(); err != nil {
		return d, errors.Wrap(err, "error committing detection")
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("detection history trimmed", zap.Int64("removed", n), zap.Int("keep", s.keep))
	}
	return d, nil
}

const columns = `id, source, name, person_count, fallen_count, unique_count, congestion, simulated, created_at`

// Latest returns up to n detections, newest first.
func (s *Store) Latest(ctx context.Context, n int) ([]Detection, error) {
	if n <= 0 {
		n = s.keep
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+columns+` FROM detection ORDER BY created_at DESC, id DESC LIMIT ?`), n)
	if err != nil {
		return nil, errors.Wrap(err, "error querying detections")
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading detections")
	}
	return out, nil
}

// LatestBySource returns the newest detection whose source contains pattern,
// e.g. "iho" matches "iho_camera_01".
func (s *Store) LatestBySource(ctx context.Context, pattern string) (Detection, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+columns+` FROM detection WHERE source LIKE ?
			ORDER BY created_at DESC, id DESC LIMIT 1`),
		"%"+strings.ToLower(pattern)+"%")
	d, err := scan(row)
	if errors.Cause(err) == sql.ErrNoRows {
		return d, errors.Wrapf(ErrNotFound, "source %q", pattern)
	}
	return d, err
}

// Count returns the number of stored detections.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM detection`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "error counting detections")
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Detection, error) {
	var (
		d    Detection
		tier int
		ms   int64
	)
	err := row.Scan(&d.ID, &d.Source, &d.Name, &d.PersonCount, &d.FallenCount,
		&d.UniqueCount, &tier, &d.Simulated, &ms)
	if err != nil {
		return d, errors.Wrap(err, "error scanning detection")
	}
	d.Congestion = congestion.Tier(tier)
	d.CreatedAt = time.UnixMilli(ms)
	return d, nil
}

// Sink stores report records as detections.
type Sink struct {
	store *Store
}

// NewSink wraps a store as a report.Sink.
func NewSink(s *Store) *Sink {
	return &Sink{store: s}
}

// Send implements report.Sink.
func (k *Sink) Send(ctx context.Context, rec report.Record) error {
	_, err := k.store.SaveAndTrim(ctx, FromRecord(rec))
	return err
}

// FromRecord converts a report record.
func FromRecord(rec report.Record) Detection {
	return Detection{
		Source:      rec.Source,
		Name:        rec.Name,
		PersonCount: rec.PersonCount,
		FallenCount: rec.FallenCount,
		UniqueCount: rec.UniqueCount,
		Congestion:  rec.Congestion,
		Simulated:   rec.Simulated,
		CreatedAt:   rec.Timestamp,
	}
}
