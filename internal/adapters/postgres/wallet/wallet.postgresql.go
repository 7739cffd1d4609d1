// Package wallet is the Postgres-backed implementation of C2's
// wallet.Repository, grounded on the teacher's per-entity repository
// shape with the compare-and-swap UPDATE ... WHERE version = ?
// pattern spec §4.2 requires for optimistic concurrency.
package wallet

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

const entityType = "wallet"

var walletColumns = []string{
	"id", "user_id", "currency", "balance_minor", "locked_minor", "version",
	"last_reconciled_at", "reconciliation_hash", "created_at", "updated_at",
}

// Repository is the Postgres-backed wallet.Repository.
type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	return r.scanOne(ctx, psql.Select(walletColumns...).From("wallets").Where(sq.Eq{"id": id}))
}

func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	return r.scanOne(ctx, psql.Select(walletColumns...).From("wallets").Where(sq.Eq{"user_id": userID}))
}

func (r *Repository) scanOne(ctx context.Context, qb sq.SelectBuilder) (*domain.Wallet, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	w, err := scanWalletRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundError{Code: apperrors.CodeWalletNotFound, EntityType: entityType}
	}

	return w, err
}

func scanWalletRow(row *sql.Row) (*domain.Wallet, error) {
	var w domain.Wallet

	if err := row.Scan(&w.ID, &w.UserID, &w.Currency, &w.BalanceMinor, &w.LockedMinor, &w.Version,
		&w.LastReconciledAt, &w.ReconciliationHash, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}

	return &w, nil
}

func (r *Repository) Create(ctx context.Context, wallet *domain.Wallet) error {
	query, args, err := psql.Insert("wallets").
		Columns(walletColumns...).
		Values(wallet.ID, wallet.UserID, wallet.Currency, wallet.BalanceMinor, wallet.LockedMinor, wallet.Version,
			wallet.LastReconciledAt, wallet.ReconciliationHash, wallet.CreatedAt, wallet.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, entityType)
	}

	return nil
}

// CompareAndSwap implements spec §4.2's conditional UPDATE ... WHERE
// version = ?: it writes wallet as given, gated on the stored row
// still carrying expectedVersion, and reports whether the swap
// actually happened (rows affected = 0 means a concurrent writer won).
func (r *Repository) CompareAndSwap(ctx context.Context, wallet *domain.Wallet, expectedVersion int64) (bool, error) {
	query, args, err := psql.Update("wallets").
		Set("balance_minor", wallet.BalanceMinor).
		Set("locked_minor", wallet.LockedMinor).
		Set("version", wallet.Version).
		Set("last_reconciled_at", wallet.LastReconciledAt).
		Set("reconciliation_hash", wallet.ReconciliationHash).
		Set("updated_at", wallet.UpdatedAt).
		Where(sq.Eq{"id": wallet.ID, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return false, err
	}

	result, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...)
	if err != nil {
		return false, postgres.MapError(err, entityType)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (r *Repository) ListAll(ctx context.Context) ([]*domain.Wallet, error) {
	query, args, err := psql.Select(walletColumns...).From("wallets").OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Wallet

	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Currency, &w.BalanceMinor, &w.LockedMinor, &w.Version,
			&w.LastReconciledAt, &w.ReconciliationHash, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}

		out = append(out, &w)
	}

	return out, rows.Err()
}
