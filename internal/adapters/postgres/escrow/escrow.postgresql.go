// Package escrow is the Postgres-backed implementation of C3's
// OrderRepository/EscrowRepository/DisputeRepository, grounded on the
// same per-entity repository shape as internal/adapters/postgres/ledger.
package escrow

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/adapters/postgres"
	"github.com/escrowcore/ledgercore/internal/apperrors"
	"github.com/escrowcore/ledgercore/internal/dbtx"
	"github.com/escrowcore/ledgercore/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var orderColumns = []string{
	"id", "initiator_id", "counterparty_id", "initiator_role", "amount_minor", "platform_fee_minor",
	"fee_payer", "holding_period_days", "status", "invite_token", "invite_expires_at", "auto_release_at",
	"accepted_at", "paid_at", "completed_at", "cancelled_at", "created_at", "updated_at",
}

// OrderRepository is the Postgres-backed escrow.OrderRepository.
type OrderRepository struct {
	DB *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{DB: db}
}

func (r *OrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.scanOne(ctx, psql.Select(orderColumns...).From("orders").Where(sq.Eq{"id": id}))
}

func (r *OrderRepository) FindByInviteToken(ctx context.Context, token string) (*domain.Order, error) {
	return r.scanOne(ctx, psql.Select(orderColumns...).From("orders").Where(sq.Eq{"invite_token": token}))
}

func (r *OrderRepository) scanOne(ctx context.Context, qb sq.SelectBuilder) (*domain.Order, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeOrderNotFound, EntityType: "order"}
	}

	return o, err
}

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var o domain.Order

	if err := row.Scan(&o.ID, &o.InitiatorID, &o.CounterpartyID, &o.InitiatorRole, &o.AmountMinor, &o.PlatformFeeMinor,
		&o.FeePayer, &o.HoldingPeriodDays, &o.Status, &o.InviteToken, &o.InviteExpiresAt, &o.AutoReleaseAt,
		&o.AcceptedAt, &o.PaidAt, &o.CompletedAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query, args, err := psql.Insert("orders").Columns(orderColumns...).
		Values(order.ID, order.InitiatorID, order.CounterpartyID, order.InitiatorRole, order.AmountMinor, order.PlatformFeeMinor,
			order.FeePayer, order.HoldingPeriodDays, order.Status, order.InviteToken, order.InviteExpiresAt, order.AutoReleaseAt,
			order.AcceptedAt, order.PaidAt, order.CompletedAt, order.CancelledAt, order.CreatedAt, order.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "order")
	}

	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	query, args, err := psql.Update("orders").
		Set("status", order.Status).
		Set("invite_expires_at", order.InviteExpiresAt).
		Set("auto_release_at", order.AutoReleaseAt).
		Set("accepted_at", order.AcceptedAt).
		Set("paid_at", order.PaidAt).
		Set("completed_at", order.CompletedAt).
		Set("cancelled_at", order.CancelledAt).
		Set("updated_at", order.UpdatedAt).
		Where(sq.Eq{"id": order.ID}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "order")
	}

	return nil
}

func (r *OrderRepository) ListAwaitingAutoRelease(ctx context.Context, asOf time.Time) ([]*domain.Order, error) {
	query, args, err := psql.Select(orderColumns...).From("orders").
		Where(sq.Eq{"status": domain.OrderPaid}).
		Where(sq.NotEq{"auto_release_at": nil}).
		Where(sq.LtOrEq{"auto_release_at": asOf}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Order

	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.InitiatorID, &o.CounterpartyID, &o.InitiatorRole, &o.AmountMinor, &o.PlatformFeeMinor,
			&o.FeePayer, &o.HoldingPeriodDays, &o.Status, &o.InviteToken, &o.InviteExpiresAt, &o.AutoReleaseAt,
			&o.AcceptedAt, &o.PaidAt, &o.CompletedAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}

		out = append(out, &o)
	}

	return out, rows.Err()
}

var escrowColumns = []string{
	"id", "order_id", "buyer_wallet_id", "seller_wallet_id", "amount_minor", "status",
	"timeout_at", "resolved_at", "timeout_job_id", "created_at", "updated_at",
}

// EscrowHoldRepository is the Postgres-backed escrow.EscrowRepository.
type EscrowHoldRepository struct {
	DB *sql.DB
}

func NewEscrowHoldRepository(db *sql.DB) *EscrowHoldRepository {
	return &EscrowHoldRepository{DB: db}
}

func (r *EscrowHoldRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.EscrowHold, error) {
	return r.scanOne(ctx, psql.Select(escrowColumns...).From("escrow_holds").Where(sq.Eq{"id": id}))
}

func (r *EscrowHoldRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.EscrowHold, error) {
	return r.scanOne(ctx, psql.Select(escrowColumns...).From("escrow_holds").Where(sq.Eq{"order_id": orderID}))
}

func (r *EscrowHoldRepository) scanOne(ctx context.Context, qb sq.SelectBuilder) (*domain.EscrowHold, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	var h domain.EscrowHold

	if err := row.Scan(&h.ID, &h.OrderID, &h.BuyerWalletID, &h.SellerWalletID, &h.AmountMinor, &h.Status,
		&h.TimeoutAt, &h.ResolvedAt, &h.TimeoutJobID, &h.CreatedAt, &h.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError{Code: apperrors.CodeEscrowNotFound, EntityType: "escrow_hold"}
		}

		return nil, err
	}

	return &h, nil
}

func (r *EscrowHoldRepository) Create(ctx context.Context, hold *domain.EscrowHold) error {
	query, args, err := psql.Insert("escrow_holds").Columns(escrowColumns...).
		Values(hold.ID, hold.OrderID, hold.BuyerWalletID, hold.SellerWalletID, hold.AmountMinor, hold.Status,
			hold.TimeoutAt, hold.ResolvedAt, hold.TimeoutJobID, hold.CreatedAt, hold.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "escrow_hold")
	}

	return nil
}

func (r *EscrowHoldRepository) Update(ctx context.Context, hold *domain.EscrowHold) error {
	query, args, err := psql.Update("escrow_holds").
		Set("status", hold.Status).
		Set("resolved_at", hold.ResolvedAt).
		Set("timeout_job_id", hold.TimeoutJobID).
		Set("updated_at", hold.UpdatedAt).
		Where(sq.Eq{"id": hold.ID}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "escrow_hold")
	}

	return nil
}

var disputeColumns = []string{
	"id", "escrow_id", "opened_by", "reason", "status", "resolution", "resolver_id", "notes", "created_at", "closed_at",
}

// DisputeRepository is the Postgres-backed escrow.DisputeRepository.
type DisputeRepository struct {
	DB *sql.DB
}

func NewDisputeRepository(db *sql.DB) *DisputeRepository {
	return &DisputeRepository{DB: db}
}

func (r *DisputeRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	return r.scanOne(ctx, psql.Select(disputeColumns...).From("disputes").Where(sq.Eq{"id": id}))
}

func (r *DisputeRepository) FindOpenByEscrowID(ctx context.Context, escrowID uuid.UUID) (*domain.Dispute, error) {
	return r.scanOne(ctx, psql.Select(disputeColumns...).From("disputes").
		Where(sq.Eq{"escrow_id": escrowID, "status": domain.DisputeOpen}))
}

func (r *DisputeRepository) scanOne(ctx context.Context, qb sq.SelectBuilder) (*domain.Dispute, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	var d domain.Dispute

	if err := row.Scan(&d.ID, &d.EscrowID, &d.OpenedBy, &d.Reason, &d.Status, &d.Resolution, &d.ResolverID,
		&d.Notes, &d.CreatedAt, &d.ClosedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError{Code: apperrors.CodeEscrowNotFound, EntityType: "dispute"}
		}

		return nil, err
	}

	return &d, nil
}

func (r *DisputeRepository) Create(ctx context.Context, dispute *domain.Dispute) error {
	query, args, err := psql.Insert("disputes").Columns(disputeColumns...).
		Values(dispute.ID, dispute.EscrowID, dispute.OpenedBy, dispute.Reason, dispute.Status, dispute.Resolution,
			dispute.ResolverID, dispute.Notes, dispute.CreatedAt, dispute.ClosedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "dispute")
	}

	return nil
}

func (r *DisputeRepository) Update(ctx context.Context, dispute *domain.Dispute) error {
	query, args, err := psql.Update("disputes").
		Set("status", dispute.Status).
		Set("resolution", dispute.Resolution).
		Set("resolver_id", dispute.ResolverID).
		Set("notes", dispute.Notes).
		Set("closed_at", dispute.ClosedAt).
		Where(sq.Eq{"id": dispute.ID}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "dispute")
	}

	return nil
}
