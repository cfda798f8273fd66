package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/officeflow/internal/receipt/domain"
	"github.com/smallbiznis/officeflow/pkg/db"
	"github.com/smallbiznis/officeflow/pkg/db/filter"
	"github.com/smallbiznis/officeflow/pkg/db/option"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
	"gorm.io/gorm"
)

const receiptColumns = `id, receipt_number, receipt_date, amount, payment_method, payer, account_id,
	description, attachments, status, confirmed_at, created_by, created_at, updated_at`

var listColumns = filter.Columns{
	Date:   "receipt_date",
	Status: "status",
	Text:   []string{"receipt_number", "payer", "description"},
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, receipt *domain.Receipt) error {
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO receipts (`+receiptColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID,
		receipt.ReceiptNumber,
		receipt.ReceiptDate,
		receipt.Amount,
		receipt.PaymentMethod,
		receipt.Payer,
		receipt.AccountID,
		receipt.Description,
		receipt.Attachments,
		receipt.Status,
		receipt.ConfirmedAt,
		receipt.CreatedBy,
		receipt.CreatedAt,
		receipt.UpdatedAt,
	).Error
	// The serial number carries a unique index.
	return db.TranslateDuplicate(err)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Receipt, error) {
	return r.find(ctx, db, `SELECT `+receiptColumns+` FROM receipts WHERE id = ? LIMIT 1`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Receipt, error) {
	return r.find(ctx, tx, db.ForUpdate(tx, `SELECT `+receiptColumns+` FROM receipts WHERE id = ? LIMIT 1`), id)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, query string, id snowflake.ID) (*domain.Receipt, error) {
	var receipt domain.Receipt
	if err := db.WithContext(ctx).Raw(query, id).Scan(&receipt).Error; err != nil {
		return nil, err
	}
	if receipt.ID == 0 {
		return nil, nil
	}
	return &receipt, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, confirmedAt *time.Time, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE receipts
		 SET status = ?, confirmed_at = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		confirmedAt,
		now,
		id,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM receipts WHERE id = ?`, id).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filters []filter.Filter, page pagination.Pagination) ([]*domain.Receipt, error) {
	stmt, err := filter.Apply(db.WithContext(ctx).Model(&domain.Receipt{}), listColumns, filters...)
	if err != nil {
		return nil, err
	}
	stmt = option.ApplyPagination(page).Apply(stmt)

	var receipts []*domain.Receipt
	if err := stmt.Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}
