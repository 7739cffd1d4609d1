// Package withdrawal is the Postgres-backed implementation of C4's
// Repository/ApprovalRepository/LimitRepository/VelocityRepository.
package withdrawal

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
	"github.com/escrowcore/ledgercore/internal/money"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var withdrawalColumns = []string{
	"id", "user_id", "amount_minor", "bank_account_id", "idempotency_key", "status", "velocity_score",
	"flagged_by_system", "flag_reason", "cooling_period_ends_at", "required_approvals", "approvals_count",
	"provider_disbursement_id", "created_at", "approved_at", "completed_at", "rejected_at",
}

// Repository is the Postgres-backed withdrawal.Repository.
type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	return r.scanOne(ctx, psql.Select(withdrawalColumns...).From("withdrawals").Where(sq.Eq{"id": id}))
}

func (r *Repository) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*domain.Withdrawal, error) {
	query, args, err := psql.Select(withdrawalColumns...).From("withdrawals").
		Where(sq.Eq{"user_id": userID, "idempotency_key": key}).ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	return w, err
}

// FindLastByUserID returns the most recently created withdrawal for
// userID, for the cooling-period check of spec §4.4 step 5.
func (r *Repository) FindLastByUserID(ctx context.Context, userID uuid.UUID) (*domain.Withdrawal, error) {
	return r.scanOne(ctx, psql.Select(withdrawalColumns...).From("withdrawals").
		Where(sq.Eq{"user_id": userID}).OrderBy("created_at DESC").Limit(1))
}

func (r *Repository) scanOne(ctx context.Context, qb sq.SelectBuilder) (*domain.Withdrawal, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeWithdrawalNotFound, EntityType: "withdrawal"}
	}

	return w, err
}

func scanWithdrawal(row *sql.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal

	if err := row.Scan(&w.ID, &w.UserID, &w.AmountMinor, &w.BankAccountID, &w.IdempotencyKey, &w.Status, &w.VelocityScore,
		&w.FlaggedBySystem, &w.FlagReason, &w.CoolingPeriodEndsAt, &w.RequiredApprovals, &w.ApprovalsCount,
		&w.ProviderDisbursement, &w.CreatedAt, &w.ApprovedAt, &w.CompletedAt, &w.RejectedAt); err != nil {
		return nil, err
	}

	return &w, nil
}

func (r *Repository) Create(ctx context.Context, w *domain.Withdrawal) error {
	query, args, err := psql.Insert("withdrawals").Columns(withdrawalColumns...).
		Values(w.ID, w.UserID, w.AmountMinor, w.BankAccountID, w.IdempotencyKey, w.Status, w.VelocityScore,
			w.FlaggedBySystem, w.FlagReason, w.CoolingPeriodEndsAt, w.RequiredApprovals, w.ApprovalsCount,
			w.ProviderDisbursement, w.CreatedAt, w.ApprovedAt, w.CompletedAt, w.RejectedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "withdrawal")
	}

	return nil
}

func (r *Repository) Update(ctx context.Context, w *domain.Withdrawal) error {
	query, args, err := psql.Update("withdrawals").
		Set("status", w.Status).
		Set("velocity_score", w.VelocityScore).
		Set("flagged_by_system", w.FlaggedBySystem).
		Set("flag_reason", w.FlagReason).
		Set("required_approvals", w.RequiredApprovals).
		Set("approvals_count", w.ApprovalsCount).
		Set("provider_disbursement_id", w.ProviderDisbursement).
		Set("approved_at", w.ApprovedAt).
		Set("completed_at", w.CompletedAt).
		Set("rejected_at", w.RejectedAt).
		Where(sq.Eq{"id": w.ID}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "withdrawal")
	}

	return nil
}

// ApprovalRepository is the Postgres-backed withdrawal.ApprovalRepository.
type ApprovalRepository struct {
	DB *sql.DB
}

func NewApprovalRepository(db *sql.DB) *ApprovalRepository {
	return &ApprovalRepository{DB: db}
}

func (r *ApprovalRepository) ListByWithdrawalID(ctx context.Context, withdrawalID uuid.UUID) ([]*domain.WithdrawalApproval, error) {
	query, args, err := psql.Select("id", "withdrawal_id", "approver_id", "notes", "created_at").
		From("withdrawal_approvals").Where(sq.Eq{"withdrawal_id": withdrawalID}).OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.WithdrawalApproval

	for rows.Next() {
		var a domain.WithdrawalApproval
		if err := rows.Scan(&a.ID, &a.WithdrawalID, &a.ApproverID, &a.Notes, &a.CreatedAt); err != nil {
			return nil, err
		}

		out = append(out, &a)
	}

	return out, rows.Err()
}

func (r *ApprovalRepository) Create(ctx context.Context, a *domain.WithdrawalApproval) error {
	query, args, err := psql.Insert("withdrawal_approvals").
		Columns("id", "withdrawal_id", "approver_id", "notes", "created_at").
		Values(a.ID, a.WithdrawalID, a.ApproverID, a.Notes, a.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "withdrawal_approval")
	}

	return nil
}

var limitColumns = []string{
	"user_id", "daily_limit_minor", "per_tx_limit_minor", "monthly_limit_minor", "cooling_minutes",
	"dual_approval_minor", "daily_used_minor", "daily_count", "monthly_used_minor", "effective_from",
	"effective_until", "is_active", "last_daily_reset_at", "last_monthly_reset_at",
}

// LimitRepository is the Postgres-backed withdrawal.LimitRepository.
type LimitRepository struct {
	DB *sql.DB
}

func NewLimitRepository(db *sql.DB) *LimitRepository {
	return &LimitRepository{DB: db}
}

func (r *LimitRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.TransactionLimit, error) {
	query, args, err := psql.Select(limitColumns...).From("transaction_limits").Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	l, err := scanLimit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeWalletNotFound, EntityType: "transaction_limit"}
	}

	return l, err
}

func scanLimit(row *sql.Row) (*domain.TransactionLimit, error) {
	var l domain.TransactionLimit

	if err := row.Scan(&l.UserID, &l.DailyLimitMinor, &l.PerTxLimitMinor, &l.MonthlyLimitMinor, &l.CoolingMinutes,
		&l.DualApprovalMinor, &l.DailyUsedMinor, &l.DailyCount, &l.MonthlyUsedMinor, &l.EffectiveFrom,
		&l.EffectiveUntil, &l.IsActive, &l.LastDailyResetAt, &l.LastMonthlyResetAt); err != nil {
		return nil, err
	}

	return &l, nil
}

func (r *LimitRepository) Create(ctx context.Context, l *domain.TransactionLimit) error {
	query, args, err := psql.Insert("transaction_limits").Columns(limitColumns...).
		Values(l.UserID, l.DailyLimitMinor, l.PerTxLimitMinor, l.MonthlyLimitMinor, l.CoolingMinutes,
			l.DualApprovalMinor, l.DailyUsedMinor, l.DailyCount, l.MonthlyUsedMinor, l.EffectiveFrom,
			l.EffectiveUntil, l.IsActive, l.LastDailyResetAt, l.LastMonthlyResetAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "transaction_limit")
	}

	return nil
}

func (r *LimitRepository) Update(ctx context.Context, l *domain.TransactionLimit) error {
	query, args, err := psql.Update("transaction_limits").
		Set("daily_limit_minor", l.DailyLimitMinor).
		Set("per_tx_limit_minor", l.PerTxLimitMinor).
		Set("monthly_limit_minor", l.MonthlyLimitMinor).
		Set("cooling_minutes", l.CoolingMinutes).
		Set("dual_approval_minor", l.DualApprovalMinor).
		Set("daily_used_minor", l.DailyUsedMinor).
		Set("daily_count", l.DailyCount).
		Set("monthly_used_minor", l.MonthlyUsedMinor).
		Set("effective_until", l.EffectiveUntil).
		Set("is_active", l.IsActive).
		Set("last_daily_reset_at", l.LastDailyResetAt).
		Set("last_monthly_reset_at", l.LastMonthlyResetAt).
		Where(sq.Eq{"user_id": l.UserID}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "transaction_limit")
	}

	return nil
}

func (r *LimitRepository) ListAll(ctx context.Context) ([]*domain.TransactionLimit, error) {
	query, args, err := psql.Select(limitColumns...).From("transaction_limits").
		Where(sq.Eq{"is_active": true}).OrderBy("user_id ASC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.TransactionLimit

	for rows.Next() {
		var l domain.TransactionLimit
		if err := rows.Scan(&l.UserID, &l.DailyLimitMinor, &l.PerTxLimitMinor, &l.MonthlyLimitMinor, &l.CoolingMinutes,
			&l.DualApprovalMinor, &l.DailyUsedMinor, &l.DailyCount, &l.MonthlyUsedMinor, &l.EffectiveFrom,
			&l.EffectiveUntil, &l.IsActive, &l.LastDailyResetAt, &l.LastMonthlyResetAt); err != nil {
			return nil, err
		}

		out = append(out, &l)
	}

	return out, rows.Err()
}

// VelocityRepository is the Postgres-backed withdrawal.VelocityRepository.
type VelocityRepository struct {
	DB *sql.DB
}

func NewVelocityRepository(db *sql.DB) *VelocityRepository {
	return &VelocityRepository{DB: db}
}

func (r *VelocityRepository) Create(ctx context.Context, entry *domain.WithdrawalVelocityLog) error {
	query, args, err := psql.Insert("withdrawal_velocity_log").
		Columns("id", "user_id", "amount_minor", "created_at").
		Values(entry.ID, entry.UserID, entry.AmountMinor, entry.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "withdrawal_velocity_log")
	}

	return nil
}

func (r *VelocityRepository) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From("withdrawal_velocity_log").
		Where(sq.Eq{"user_id": userID}).Where(sq.GtOrEq{"created_at": since}).ToSql()
	if err != nil {
		return 0, err
	}

	var count int

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

func (r *VelocityRepository) SumSince(ctx context.Context, userID uuid.UUID, since time.Time) (money.Minor, error) {
	query, args, err := psql.Select("COALESCE(SUM(amount_minor), 0)").From("withdrawal_velocity_log").
		Where(sq.Eq{"user_id": userID}).Where(sq.GtOrEq{"created_at": since}).ToSql()
	if err != nil {
		return 0, err
	}

	var sum money.Minor

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)
	if err := row.Scan(&sum); err != nil {
		return 0, err
	}

	return sum, nil
}
