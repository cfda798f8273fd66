package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/officeflow/internal/account/domain"
	"github.com/smallbiznis/officeflow/pkg/db"
	"gorm.io/gorm"
)

const accountColumns = `id, name, currency, initial_balance, current_balance, is_deleted,
	created_by, updated_by, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (id, name, currency, initial_balance, current_balance, is_deleted,
			created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Name,
		account.Currency,
		account.InitialBalance,
		account.CurrentBalance,
		account.IsDeleted,
		account.CreatedBy,
		account.UpdatedBy,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	return r.find(ctx, db, `SELECT `+accountColumns+` FROM accounts WHERE id = ? LIMIT 1`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	return r.find(ctx, tx, db.ForUpdate(tx, `SELECT `+accountColumns+` FROM accounts WHERE id = ? LIMIT 1`), id)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, query string, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	if err := db.WithContext(ctx).Raw(query, id).Scan(&account).Error; err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.Account, error) {
	var accounts []*domain.Account
	err := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("is_deleted = ?", false).
		Order("name asc, id asc").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balance decimal.Decimal, updatedBy snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET current_balance = ?, updated_by = ?, updated_at = ?
		 WHERE id = ?`,
		balance,
		updatedBy,
		now,
		id,
	).Error
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, updatedBy snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET is_deleted = ?, updated_by = ?, updated_at = ?
		 WHERE id = ?`,
		true,
		updatedBy,
		now,
		id,
	).Error
}

func (r *repo) CountOpenReceipts(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM receipts WHERE account_id = ? AND status IN ?`,
		id,
		[]string{"PENDING", "CONFIRMED"},
	).Scan(&count).Error
	return count, err
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO account_entries (id, account_id, source_type, source_id, delta, balance_after, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.AccountID,
		entry.SourceType,
		entry.SourceID,
		entry.Delta,
		entry.BalanceAfter,
		entry.CreatedBy,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	err := db.WithContext(ctx).
		Model(&domain.Entry{}).
		Where("account_id = ?", accountID).
		Order("created_at asc, id asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
