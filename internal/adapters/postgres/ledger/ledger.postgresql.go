// Package ledger provides the Postgres-backed implementations of C1's
// AccountRepository/JournalRepository/EntryRepository, grounded on the
// teacher's PortfolioPostgreSQLRepository shape: squirrel for query
// building, database/sql for execution, dbtx for transaction-scoping.
package ledger

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
	"github.com/escrowcore/ledgercore/internal/money"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// AccountRepository is the Postgres-backed ledger.AccountRepository.
type AccountRepository struct {
	DB *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{DB: db}
}

func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.LedgerAccount, error) {
	return r.scanOne(ctx, psql.Select("id", "type", "wallet_id", "platform_key", "currency", "created_at").
		From("ledger_accounts").Where(sq.Eq{"id": id}))
}

func (r *AccountRepository) FindByWalletID(ctx context.Context, walletID uuid.UUID) (*domain.LedgerAccount, error) {
	return r.scanOne(ctx, psql.Select("id", "type", "wallet_id", "platform_key", "currency", "created_at").
		From("ledger_accounts").Where(sq.Eq{"wallet_id": walletID}))
}

func (r *AccountRepository) FindByPlatformKey(ctx context.Context, key string) (*domain.LedgerAccount, error) {
	return r.scanOne(ctx, psql.Select("id", "type", "wallet_id", "platform_key", "currency", "created_at").
		From("ledger_accounts").Where(sq.Eq{"platform_key": key}))
}

func (r *AccountRepository) scanOne(ctx context.Context, qb sq.SelectBuilder) (*domain.LedgerAccount, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	var a domain.LedgerAccount

	if err := row.Scan(&a.ID, &a.Type, &a.WalletID, &a.PlatformKey, &a.Currency, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundError{Code: apperrors.CodeAccountNotFound, EntityType: "ledger_account"}
		}

		return nil, err
	}

	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.LedgerAccount) error {
	query, args, err := psql.Insert("ledger_accounts").
		Columns("id", "type", "wallet_id", "platform_key", "currency", "created_at").
		Values(account.ID, account.Type, account.WalletID, account.PlatformKey, account.Currency, account.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "ledger_account")
	}

	return nil
}

func (r *AccountRepository) ListPlatformAccounts(ctx context.Context) ([]*domain.LedgerAccount, error) {
	query, args, err := psql.Select("id", "type", "wallet_id", "platform_key", "currency", "created_at").
		From("ledger_accounts").Where(sq.NotEq{"platform_key": nil}).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.LedgerAccount

	for rows.Next() {
		var a domain.LedgerAccount
		if err := rows.Scan(&a.ID, &a.Type, &a.WalletID, &a.PlatformKey, &a.Currency, &a.CreatedAt); err != nil {
			return nil, err
		}

		out = append(out, &a)
	}

	return out, rows.Err()
}

// JournalRepository is the Postgres-backed ledger.JournalRepository.
type JournalRepository struct {
	DB *sql.DB
}

func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{DB: db}
}

func (r *JournalRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerJournal, error) {
	query, args, err := psql.Select("id", "type", "amount_minor", "description", "idempotency_key",
		"order_id", "escrow_id", "withdrawal_id", "deposit_id", "dispute_id", "created_at").
		From("ledger_journals").Where(sq.Eq{"idempotency_key": key}).ToSql()
	if err != nil {
		return nil, err
	}

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)

	j, err := scanJournal(row)
	if errors.Is(err, sql.ErrNoRows) {
		// C1's CreateJournal treats (nil, nil) as "no replay candidate",
		// distinct from every other repository's NotFoundError pattern.
		return nil, nil
	}

	return j, err
}

func scanJournal(row *sql.Row) (*domain.LedgerJournal, error) {
	var j domain.LedgerJournal

	if err := row.Scan(&j.ID, &j.Type, &j.AmountMinor, &j.Description, &j.IdempotencyKey,
		&j.Links.OrderID, &j.Links.EscrowID, &j.Links.WithdrawalID, &j.Links.DepositID, &j.Links.DisputeID,
		&j.CreatedAt); err != nil {
		return nil, err
	}

	return &j, nil
}

func (r *JournalRepository) Create(ctx context.Context, journal *domain.LedgerJournal) error {
	query, args, err := psql.Insert("ledger_journals").
		Columns("id", "type", "amount_minor", "description", "idempotency_key",
			"order_id", "escrow_id", "withdrawal_id", "deposit_id", "dispute_id", "created_at").
		Values(journal.ID, journal.Type, journal.AmountMinor, journal.Description, journal.IdempotencyKey,
			journal.Links.OrderID, journal.Links.EscrowID, journal.Links.WithdrawalID, journal.Links.DepositID, journal.Links.DisputeID,
			journal.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "ledger_journal")
	}

	return nil
}

func (r *JournalRepository) ListAll(ctx context.Context) ([]*domain.LedgerJournal, error) {
	query, args, err := psql.Select("id", "type", "amount_minor", "description", "idempotency_key",
		"order_id", "escrow_id", "withdrawal_id", "deposit_id", "dispute_id", "created_at").
		From("ledger_journals").OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.LedgerJournal

	for rows.Next() {
		var j domain.LedgerJournal
		if err := rows.Scan(&j.ID, &j.Type, &j.AmountMinor, &j.Description, &j.IdempotencyKey,
			&j.Links.OrderID, &j.Links.EscrowID, &j.Links.WithdrawalID, &j.Links.DepositID, &j.Links.DisputeID,
			&j.CreatedAt); err != nil {
			return nil, err
		}

		out = append(out, &j)
	}

	return out, rows.Err()
}

// EntryRepository is the Postgres-backed ledger.EntryRepository.
type EntryRepository struct {
	DB *sql.DB
}

func NewEntryRepository(db *sql.DB) *EntryRepository {
	return &EntryRepository{DB: db}
}

func (r *EntryRepository) LastRunningBalance(ctx context.Context, accountID uuid.UUID) (money.Minor, error) {
	query, args, err := psql.Select("running_balance_minor").From("ledger_entries").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("created_at DESC", "id DESC").Limit(1).ToSql()
	if err != nil {
		return 0, err
	}

	var balance money.Minor

	row := dbtx.GetExecutor(ctx, r.DB).QueryRowContext(ctx, query, args...)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}

		return 0, err
	}

	return balance, nil
}

func (r *EntryRepository) CreateBatch(ctx context.Context, entries []*domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ib := psql.Insert("ledger_entries").Columns("id", "journal_id", "account_id", "amount_minor", "running_balance_minor", "created_at")

	for _, e := range entries {
		ib = ib.Values(e.ID, e.JournalID, e.AccountID, e.AmountMinor, e.RunningBalanceMinor, e.CreatedAt)
	}

	query, args, err := ib.ToSql()
	if err != nil {
		return err
	}

	if _, err := dbtx.GetExecutor(ctx, r.DB).ExecContext(ctx, query, args...); err != nil {
		return postgres.MapError(err, "ledger_entry")
	}

	return nil
}

func (r *EntryRepository) SumByAccount(ctx context.Context, accountID uuid.UUID) (money.Minor, error) {
	query, args, err := psql.Select("COALESCE(SUM(amount_minor), 0)").From("ledger_entries").
		Where(sq.Eq{"account_id": accountID}).ToSql()
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

func (r *EntryRepository) ListByJournal(ctx context.Context, journalID uuid.UUID) ([]*domain.LedgerEntry, error) {
	return r.list(ctx, sq.Eq{"journal_id": journalID})
}

func (r *EntryRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.LedgerEntry, error) {
	return r.list(ctx, sq.Eq{"account_id": accountID})
}

func (r *EntryRepository) list(ctx context.Context, pred sq.Eq) ([]*domain.LedgerEntry, error) {
	query, args, err := psql.Select("id", "journal_id", "account_id", "amount_minor", "running_balance_minor", "created_at").
		From("ledger_entries").Where(pred).OrderBy("created_at ASC", "id ASC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := dbtx.GetExecutor(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.LedgerEntry

	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.JournalID, &e.AccountID, &e.AmountMinor, &e.RunningBalanceMinor, &e.CreatedAt); err != nil {
			return nil, err
		}

		out = append(out, &e)
	}

	return out, rows.Err()
}
