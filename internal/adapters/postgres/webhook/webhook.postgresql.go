// Package webhook is the Postgres-backed implementation of C5's
// EventRepository/HistoryRepository.
package webhook

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/escrowcore/ledgercore/internal/adapters/postgres"
	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/dbtx"
	"github.com/escrowcore/ledgercore/internal/mretry"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var eventColumns = []string{
	"id", "provider", "event_id", "event_type", "raw_payload", "request_ip", "status", "signature_valid",
	"retry_count", "last_retry_at", "payment_id", "provider_status", "order_id", "withdrawal_id",
	"created_at", "updated_at",
}

// EventRepository is the Postgres-backed webhook.EventRepository.
type EventRepository struct {
	DB *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{DB: db}
}

func (r *EventRepository) FindByEventID(ctx context.Context, provider, eventID string) (*domain.WebhookEvent, error) {
	query, args, err := psql.Select(eventColumns...).From("webhook_events").
		Where(sq.Eq{"provider": provider, "event_id": eventID}).ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Absence of a prior delivery is not an error to C5 — it's the
		// signal that this callback has not been seen yet.
		return nil, nil
	}

	return e, err
}

func scanEvent(row *sql.Row) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent

	if err := row.Scan(&e.ID, &e.Provider, &e.EventID, &e.EventType, &e.RawPayload, &e.RequestIP, &e.Status,
		&e.SignatureValid, &e.RetryCount, &e.LastRetryAt, &e.PaymentID, &e.ProviderStatus, &e.OrderID,
		&e.WithdrawalID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}

	return &e, nil
}

func (r *EventRepository) Create(ctx context.Context, e *domain.WebhookEvent) error {
	query, args, err := psql.Insert("webhook_events").Columns(eventColumns...).
		Values(e.ID, e.Provider, e.EventID, e.EventType, e.RawPayload, e.RequestIP, e.Status, e.SignatureValid,
			e.RetryCount, e.LastRetryAt, e.PaymentID, e.ProviderStatus, e.OrderID, e.WithdrawalID,
			e.CreatedAt, e.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "webhook_event")
	}

	return nil
}

func (r *EventRepository) Update(ctx context.Context, e *domain.WebhookEvent) error {
	query, args, err := psql.Update("webhook_events").
		Set("status", e.Status).
		Set("retry_count", e.RetryCount).
		Set("last_retry_at", e.LastRetryAt).
		Set("payment_id", e.PaymentID).
		Set("updated_at", e.UpdatedAt).
		Where(sq.Eq{"id": e.ID}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "webhook_event")
	}

	return nil
}

// ListDueForRetry returns FAILED events still under the retry cap,
// narrowed in Go by mretry's exponential backoff window (the window
// itself carries jitter, so it is not expressible as a static SQL
// interval) — mirrors spec §4.5/§5's "bounded (5, exponential)" rule.
func (r *EventRepository) ListDueForRetry(ctx context.Context) ([]*domain.WebhookEvent, error) {
	query, args, err := psql.Select(eventColumns...).From("webhook_events").
		Where(sq.Eq{"status": domain.WebhookFailed}).
		Where(sq.Lt{"retry_count": domain.MaxWebhookRetries}).
		OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []*domain.WebhookEvent

	for rows.Next() {
		var e domain.WebhookEvent
		if err := rows.Scan(&e.ID, &e.Provider, &e.EventID, &e.EventType, &e.RawPayload, &e.RequestIP, &e.Status,
			&e.SignatureValid, &e.RetryCount, &e.LastRetryAt, &e.PaymentID, &e.ProviderStatus, &e.OrderID,
			&e.WithdrawalID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}

		candidates = append(candidates, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	cfg := mretry.DefaultWebhookConfig()
	now := time.Now().UTC()

	var due []*domain.WebhookEvent

	for _, e := range candidates {
		if e.LastRetryAt == nil {
			due = append(due, e)
			continue
		}

		if now.Sub(*e.LastRetryAt) >= cfg.Backoff(e.RetryCount+1) {
			due = append(due, e)
		}
	}

	return due, nil
}

// HistoryRepository is the Postgres-backed webhook.HistoryRepository.
type HistoryRepository struct {
	DB *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{DB: db}
}

func (r *HistoryRepository) Create(ctx context.Context, h *domain.PaymentStatusHistory) error {
	query, args, err := psql.Insert("payment_status_history").
		Columns("id", "payment_id", "status", "source", "created_at").
		Values(h.ID, h.PaymentID, h.Status, h.Source, h.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "payment_status_history")
	}

	return nil
}
