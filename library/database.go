package library

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Supported drivers, as accepted by NewDatabase.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

const tracerName = "library-catalog/library"

// sqliteDriverName is go-sqlite3 with a Unicode-aware lower(). The built-in
// one only folds ASCII, which breaks case-insensitive search on accented text.
const sqliteDriverName = "sqlite3_unicode"

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", strings.ToLower, true)
		},
	})
	sqlx.BindDriver(sqliteDriverName, sqlx.QUESTION)
}

//go:embed migrations
var migrationsFS embed.FS

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the structured logger. SQL text is logged at debug level,
// committed and rejected units at info, rolled back units at error.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Database) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTracerProvider replaces the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Database) {
		if tp != nil {
			d.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock sets the clock used for return dates.
func WithClock(now func() time.Time) Option {
	return func(d *Database) {
		if now != nil {
			d.now = now
		}
	}
}

// txHandle is the part of *sqlx.Tx a unit of work needs.
type txHandle interface {
	sqlx.ExtContext
	Commit() error
	Rollback() error
}

// UnitOfWork is a scoped transaction handed to the writes of one workflow
// invocation. Database.RunInUnit commits or rolls it back exactly once.
type UnitOfWork struct {
	ID uuid.UUID
	tx txHandle
}

// Database is the storage handle shared by the catalog, the ledger and the views.
type Database struct {
	db      *sqlx.DB
	driver  string
	dialect goqu.DialectWrapper
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time

	// begin acquires a connection and starts a transaction on it.
	begin func(ctx context.Context) (txHandle, error)
}

// NewDatabase opens (or creates) the store, applies schema migrations and
// returns a ready handle. For sqlite3 the dsn is a file path.
func NewDatabase(ctx context.Context, driver, dsn string, opts ...Option) (*Database, error) {
	var dialect, sqlDriver string
	switch driver {
	case DriverSQLite:
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
		dialect, sqlDriver = "sqlite3", sqliteDriverName
	case DriverPostgres:
		dialect, sqlDriver = "postgres", DriverPostgres
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrValidationFailed, driver)
	}

	if err := applyMigrations(sqlDriver, dsn, dialect); err != nil {
		return nil, err
	}

	db, err := sqlx.Open(sqlDriver, dsn)
	if err != nil {
		return nil, storeFault("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storeFault("ping", err)
	}

	d := &Database{
		db:      db,
		driver:  driver,
		dialect: goqu.Dialect(dialect),
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	d.begin = func(ctx context.Context) (txHandle, error) {
		return d.db.BeginTxx(ctx, nil)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Close releases the connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// sqliteDSN turns a file path into a DSN with busy_timeout, foreign keys and
// immediate write locks, creating the parent directory on first run.
func sqliteDSN(path string) (string, error) {
	if strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if strings.TrimSpace(path) == "" || path == ":memory:" {
		return "", fmt.Errorf("%w: sqlite3 needs a database file path", ErrValidationFailed)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create db dir: %w", err)
		}
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate&_journal_mode=WAL", path), nil
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

// applyMigrations runs the embedded migrations for the dialect on a dedicated
// connection; closing the migrator closes that connection.
func applyMigrations(sqlDriver, dsn, dialect string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	raw, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return storeFault("open for migration", err)
	}

	var target database.Driver
	switch dialect {
	case "sqlite3":
		target, err = migratesqlite.WithInstance(raw, &migratesqlite.Config{})
	default:
		target, err = migratepg.WithInstance(raw, &migratepg.Config{})
	}
	if err != nil {
		raw.Close()
		return storeFault("prepare migration", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect, target)
	if err != nil {
		raw.Close()
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Unit of work
// ---------------------------------------------------------------------------

// RunInUnit runs fn inside one transaction. The transaction is committed when
// fn returns nil and rolled back otherwise; the connection is released either
// way. Domain rejections (not found, unavailable, ...) come back unchanged,
// every other failure comes back as a *TransactionError. When the rollback
// itself fails, both errors are reachable through errors.Is.
func (d *Database) RunInUnit(ctx context.Context, op string, fn func(context.Context, *UnitOfWork) error) error {
	u := &UnitOfWork{ID: uuid.New()}
	ctx, span := d.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("unit.id", u.ID.String())))
	defer span.End()
	log := d.logger.With(zap.String("op", op), zap.Stringer("unit_id", u.ID))

	tx, err := d.begin(ctx)
	if err != nil {
		terr := &TransactionError{Op: op, Err: storeFault("begin", err)}
		d.failSpan(span, terr)
		log.Error("unit could not start", zap.Error(terr))
		return terr
	}
	u.tx = tx

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("rollback after panic failed", zap.Error(rbErr))
			}
			panic(p)
		}
	}()

	if fnErr := fn(ctx, u); fnErr != nil {
		var rbErr error
		if err := tx.Rollback(); err != nil {
			rbErr = storeFault("rollback", err)
		}
		if rbErr == nil && isRejection(fnErr) {
			span.SetStatus(codes.Error, fnErr.Error())
			log.Info("unit rejected", zap.Error(fnErr))
			return fnErr
		}
		terr := &TransactionError{Op: op, Err: fnErr, RollbackErr: rbErr}
		d.failSpan(span, terr)
		log.Error("unit rolled back", zap.Error(fnErr), zap.NamedError("rollback_error", rbErr))
		return terr
	}

	// A failed Commit leaves the sql.Tx finished; there is nothing left to roll back.
	if err := tx.Commit(); err != nil {
		terr := &TransactionError{Op: op, Err: storeFault("commit", err)}
		d.failSpan(span, terr)
		log.Error("unit commit failed", zap.Error(err))
		return terr
	}

	span.SetStatus(codes.Ok, "")
	log.Info("unit committed")
	return nil
}

func (d *Database) failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ---------------------------------------------------------------------------
// Statement helpers
// ---------------------------------------------------------------------------

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func (d *Database) from(table interface{}) *goqu.SelectDataset {
	return d.dialect.From(table).Prepared(true)
}

func (d *Database) insert(table string) *goqu.InsertDataset {
	return d.dialect.Insert(table).Prepared(true)
}

func (d *Database) update(table string) *goqu.UpdateDataset {
	return d.dialect.Update(table).Prepared(true)
}

func (d *Database) delete(table string) *goqu.DeleteDataset {
	return d.dialect.Delete(table).Prepared(true)
}

func (d *Database) build(b sqlBuilder) (string, []interface{}, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}
	d.logger.Debug("sql", zap.String("query", query), zap.Int("args", len(args)))
	return query, args, nil
}

// getOne scans a single row into dest; sql.ErrNoRows is passed through untouched.
func (d *Database) getOne(ctx context.Context, q sqlx.QueryerContext, dest interface{}, b sqlBuilder) error {
	query, args, err := d.build(b)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

func (d *Database) selectAll(ctx context.Context, q sqlx.QueryerContext, dest interface{}, b sqlBuilder) error {
	query, args, err := d.build(b)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// execAffected runs a write and returns the affected row count.
func (d *Database) execAffected(ctx context.Context, q sqlx.ExecerContext, b sqlBuilder) (int64, error) {
	query, args, err := d.build(b)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// insertID runs an insert and returns the generated id. sqlite3 reports it
// through LastInsertId, PostgreSQL through RETURNING.
func (d *Database) insertID(ctx context.Context, q sqlx.ExtContext, ins *goqu.InsertDataset) (int64, error) {
	if d.driver == DriverPostgres {
		var id int64
		if err := d.getOne(ctx, q, &id, ins.Returning("id")); err != nil {
			return 0, err
		}
		return id, nil
	}
	query, args, err := d.build(ins)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
