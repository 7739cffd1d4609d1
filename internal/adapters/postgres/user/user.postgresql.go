// Package user is the Postgres-backed implementation of the
// withdrawal.UserLookup/BankAccountLookup interfaces, and the
// registration-time Repository for domain.User/domain.BankAccount.
package user

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/adapters/postgres"
	"github.com/escrowcore/ledgercore/internal/apperrors"
	"github.com/escrowcore/ledgercore/internal/dbtx"
	"github.com/escrowcore/ledgercore/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{
	"id", "email", "phone", "kyc_tier", "is_admin", "suspended_from", "suspended_until",
	"deleted_at", "created_at", "updated_at",
}

// Repository is the Postgres-backed lookup/persistence for domain.User.
type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	var u domain.User

	if err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.KYCTier, &u.IsAdmin, &u.SuspendedFrom, &u.SuspendedUntil,
		&u.DeletedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError{Code: apperrors.CodeWalletNotFound, EntityType: "user"}
		}

		return nil, err
	}

	return &u, nil
}

func (r *Repository) Create(ctx context.Context, u *domain.User) error {
	query, args, err := psql.Insert("users").Columns(userColumns...).
		Values(u.ID, u.Email, u.Phone, u.KYCTier, u.IsAdmin, u.SuspendedFrom, u.SuspendedUntil,
			u.DeletedAt, u.CreatedAt, u.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "user")
	}

	return nil
}

func (r *Repository) Update(ctx context.Context, u *domain.User) error {
	query, args, err := psql.Update("users").
		Set("kyc_tier", u.KYCTier).
		Set("suspended_from", u.SuspendedFrom).
		Set("suspended_until", u.SuspendedUntil).
		Set("deleted_at", u.DeletedAt).
		Set("updated_at", u.UpdatedAt).
		Where(sq.Eq{"id": u.ID}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "user")
	}

	return nil
}

// BankAccountRepository is the Postgres-backed lookup/persistence for
// domain.BankAccount.
type BankAccountRepository struct {
	DB *sql.DB
}

func NewBankAccountRepository(db *sql.DB) *BankAccountRepository {
	return &BankAccountRepository{DB: db}
}

func (r *BankAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	query, args, err := psql.Select("id", "user_id", "bank_code", "account_no", "active", "deleted_at", "created_at").
		From("bank_accounts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	var b domain.BankAccount

	if err := row.Scan(&b.ID, &b.UserID, &b.BankCode, &b.AccountNo, &b.Active, &b.DeletedAt, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError{Code: apperrors.CodeBankAccountNotFound, EntityType: "bank_account"}
		}

		return nil, err
	}

	return &b, nil
}

func (r *BankAccountRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.BankAccount, error) {
	query, args, err := psql.Select("id", "user_id", "bank_code", "account_no", "active", "deleted_at", "created_at").
		From("bank_accounts").Where(sq.Eq{"user_id": userID, "deleted_at": nil}).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.BankAccount

	for rows.Next() {
		var b domain.BankAccount
		if err := rows.Scan(&b.ID, &b.UserID, &b.BankCode, &b.AccountNo, &b.Active, &b.DeletedAt, &b.CreatedAt); err != nil {
			return nil, err
		}

		out = append(out, &b)
	}

	return out, rows.Err()
}

func (r *BankAccountRepository) Create(ctx context.Context, b *domain.BankAccount) error {
	query, args, err := psql.Insert("bank_accounts").
		Columns("id", "user_id", "bank_code", "account_no", "active", "deleted_at", "created_at").
		Values(b.ID, b.UserID, b.BankCode, b.AccountNo, b.Active, b.DeletedAt, b.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "bank_account")
	}

	return nil
}
