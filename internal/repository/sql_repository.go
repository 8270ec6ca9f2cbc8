package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/fjod/storefront/internal/domain"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Credentials struct {
	Driver            string
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	SQLitePath        string
	MigrationsDirPath string
}

// Repository stores checkout attempts and their outbox on PostgreSQL, or on
// SQLite for local runs.
type Repository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

type RepoInterface interface {
	AttemptRepository
	OutboxRepository
	Close() error
	RunMigrations(*Credentials) error
}

func NewRepository(cred *Credentials) (*Repository, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cred.Driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", cred.SQLitePath)
	case DriverPostgres, "":
		psqlconn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cred.Host,
			cred.Port,
			cred.User,
			cred.Password,
			cred.DBName)
		db, err = sql.Open("postgres", psqlconn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cred.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	driver := DriverPostgres
	if cred.Driver == DriverSQLite {
		driver = DriverSQLite
		// one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(10)
	}
	return &Repository{db: db, driver: driver, now: time.Now}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	var (
		driver database.Driver
		err    error
	)
	if r.driver == DriverSQLite {
		driver, err = migratesqlite.WithInstance(r.db, &migratesqlite.Config{})
	} else {
		driver, err = postgres.WithInstance(r.db, &postgres.Config{})
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		r.driver,
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) CreateAttempt(ctx context.Context, a *domain.CheckoutAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := r.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	if len(a.SaleOrder) == 0 {
		a.SaleOrder = json.RawMessage("{}")
	}

	query := `INSERT INTO checkout_attempts (id, session_id, idempotency_key, payment_method, fulfillment_method,
	          status, sale_id, transaction_id, amount, sale_order, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID,
		a.SessionID,
		a.IdempotencyKey,
		a.PaymentMethod,
		a.FulfillmentMethod,
		a.Status,
		a.SaleID,
		a.TransactionID,
		a.Amount,
		string(a.SaleOrder),
		a.CreatedAt,
		a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAttempt
		}
		return fmt.Errorf("insert checkout attempt: %w", err)
	}
	return nil
}

func (r *Repository) GetAttemptByIdempotencyKey(ctx context.Context, key string) (*domain.CheckoutAttempt, error) {
	query := `SELECT id, session_id, idempotency_key, payment_method, fulfillment_method, status,
	          sale_id, transaction_id, amount, sale_order, created_at, updated_at
	          FROM checkout_attempts WHERE idempotency_key = ?`

	var (
		a         domain.CheckoutAttempt
		saleOrder string
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), key).Scan(
		&a.ID,
		&a.SessionID,
		&a.IdempotencyKey,
		&a.PaymentMethod,
		&a.FulfillmentMethod,
		&a.Status,
		&a.SaleID,
		&a.TransactionID,
		&a.Amount,
		&saleOrder,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout attempt: %w", err)
	}
	a.SaleOrder = json.RawMessage(saleOrder)
	return &a, nil
}

// UpdateAttempt sets the status. Empty saleID or transactionID keep the
// stored values.
func (r *Repository) UpdateAttempt(ctx context.Context, id string, status domain.AttemptStatus, saleID, transactionID string) error {
	query := `UPDATE checkout_attempts
	          SET status = ?,
	              sale_id = CASE WHEN ? = '' THEN sale_id ELSE ? END,
	              transaction_id = CASE WHEN ? = '' THEN transaction_id ELSE ? END,
	              updated_at = ?
	          WHERE id = ?`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		status, saleID, saleID, transactionID, transactionID, r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update checkout attempt: %w", err)
	}
	return expectOneRow(res)
}

// CompleteAttempt marks the attempt confirmed and enqueues the outbox event
// in the same transaction.
func (r *Repository) CompleteAttempt(ctx context.Context, id, saleID string, payload []byte) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := r.now().UTC()
	res, err := tx.ExecContext(ctx, r.rebind(`UPDATE checkout_attempts
	          SET status = ?, sale_id = CASE WHEN ? = '' THEN sale_id ELSE ? END, updated_at = ?
	          WHERE id = ?`),
		domain.AttemptConfirmed, saleID, saleID, now, id)
	if err != nil {
		return fmt.Errorf("confirm checkout attempt: %w", err)
	}
	if err = expectOneRow(res); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, r.rebind(`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at)
	          VALUES (?, ?, ?, ?)`),
		id, EventCheckoutConfirmed, string(payload), now)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE processed_at IS NULL ORDER BY id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var (
			e       OutboxEvent
			payload string
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		e.Payload = []byte(payload)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE outbox_events SET processed_at = ? WHERE id = ?`), r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// ExpireStaleAttempts closes card attempts whose shopper never came back.
func (r *Repository) ExpireStaleAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE checkout_attempts SET status = ?, updated_at = ?
	          WHERE status = ? AND updated_at < ?`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		domain.AttemptExpired, r.now().UTC(), domain.AttemptAwaitingPayment, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale attempts: %w", err)
	}
	return res.RowsAffected()
}

// rebind turns ? placeholders into $n for postgres.
func (r *Repository) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return false
}
