package orders

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateOrder   = errors.New("order already exists for payment")
	ErrAlreadyConfirmed = errors.New("order already confirmed")
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(databaseURL string) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return NewRepositoryWithDB(db), nil
}

func NewRepositoryWithDB(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) CreateDraft(ctx context.Context, order *Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	query := `INSERT INTO orders (id, payment_id, session_id, email, items, total, currency, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.PaymentID,
		order.SessionID,
		order.Email,
		itemsJSON,
		order.Total,
		order.Currency,
		StatusPending)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}
	order.Status = StatusPending
	return nil
}

const selectOrder = `SELECT id, payment_id, session_id, email, items, total, currency, status, failure_reason, created_at, updated_at
	          FROM orders`

func scanOrder(row interface{ Scan(dest ...any) error }) (*Order, error) {
	var order Order
	var itemsJSON []byte
	err := row.Scan(
		&order.ID,
		&order.PaymentID,
		&order.SessionID,
		&order.Email,
		&itemsJSON,
		&order.Total,
		&order.Currency,
		&order.Status,
		&order.FailureReason,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &order, nil
}

func (r *Repository) GetByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx, selectOrder+` WHERE payment_id = $1`, paymentID))
}

// Confirm marks the order for paymentID as confirmed and records an
// order.confirmed outbox event in the same transaction.
func (r *Repository) Confirm(ctx context.Context, paymentID string) (*Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := scanOrder(tx.QueryRowContext(ctx, selectOrder+` WHERE payment_id = $1 FOR UPDATE`, paymentID))
	if err != nil {
		return nil, err
	}
	if order.Status == StatusConfirmed {
		return order, ErrAlreadyConfirmed
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, failure_reason = '', updated_at = NOW() WHERE id = $2`,
		StatusConfirmed, order.ID); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	payload, err := json.Marshal(confirmedPayload{
		OrderID:     order.ID.String(),
		PaymentID:   order.PaymentID,
		SessionID:   order.SessionID,
		Email:       order.Email,
		Total:       order.Total,
		Currency:    order.Currency,
		ConfirmedAt: r.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order event: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, NOW())`,
		order.ID.String(), EventOrderConfirmed, payload); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	order.Status = StatusConfirmed
	order.FailureReason = ""
	return order, nil
}

// MarkFailed records a processor failure on a pending order. Confirmed
// orders are left untouched.
func (r *Repository) MarkFailed(ctx context.Context, paymentID, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, failure_reason = $2, updated_at = NOW() WHERE payment_id = $3 AND status = $4`,
		StatusFailed, reason, paymentID, StatusPending)
	if err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		ev := &OutboxEvent{}
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d processed: %w", id, err)
	}
	return nil
}
