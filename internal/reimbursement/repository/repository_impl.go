package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/officeflow/internal/reimbursement/domain"
	"github.com/smallbiznis/officeflow/pkg/db"
	"github.com/smallbiznis/officeflow/pkg/db/filter"
	"github.com/smallbiznis/officeflow/pkg/db/option"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
	"gorm.io/gorm"
)

const reimbursementColumns = `id, serial_number, type, title, payee, payment_target, account_number,
	bank_info, currency, status, total_amount, submitter_id, reviewer_id, reviewed_at,
	review_comment, account_id, payment_date, attachments, created_at, updated_at`

const itemBatchSize = 100

var listColumns = filter.Columns{
	Date:   "created_at",
	Status: "status",
	Text:   []string{"serial_number", "title", "payee"},
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, item *domain.Reimbursement) error {
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO reimbursements (`+reimbursementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.SerialNumber,
		item.Type,
		item.Title,
		item.Payee,
		item.PaymentTarget,
		item.AccountNumber,
		item.BankInfo,
		item.Currency,
		item.Status,
		item.TotalAmount,
		item.SubmitterID,
		item.ReviewerID,
		item.ReviewedAt,
		item.ReviewComment,
		item.AccountID,
		item.PaymentDate,
		item.Attachments,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
	// The serial number carries a unique index.
	return db.TranslateDuplicate(err)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Reimbursement, error) {
	return r.find(ctx, db, `SELECT `+reimbursementColumns+` FROM reimbursements WHERE id = ? LIMIT 1`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Reimbursement, error) {
	return r.find(ctx, tx, db.ForUpdate(tx, `SELECT `+reimbursementColumns+` FROM reimbursements WHERE id = ? LIMIT 1`), id)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, query string, id snowflake.ID) (*domain.Reimbursement, error) {
	var item domain.Reimbursement
	if err := db.WithContext(ctx).Raw(query, id).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}

	items, err := r.ListItems(ctx, db, item.ID)
	if err != nil {
		return nil, err
	}
	item.Items = items
	return &item, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, item *domain.Reimbursement) error {
	return db.WithContext(ctx).Exec(
		`UPDATE reimbursements
		 SET type = ?, title = ?, payee = ?, payment_target = ?, account_number = ?, bank_info = ?,
			currency = ?, status = ?, total_amount = ?, reviewer_id = ?, reviewed_at = ?,
			review_comment = ?, account_id = ?, payment_date = ?, attachments = ?, updated_at = ?
		 WHERE id = ?`,
		item.Type,
		item.Title,
		item.Payee,
		item.PaymentTarget,
		item.AccountNumber,
		item.BankInfo,
		item.Currency,
		item.Status,
		item.TotalAmount,
		item.ReviewerID,
		item.ReviewedAt,
		item.ReviewComment,
		item.AccountID,
		item.PaymentDate,
		item.Attachments,
		item.UpdatedAt,
		item.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM reimbursements WHERE id = ?`, id).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, f domain.ListFilter, page pagination.Pagination) ([]*domain.Reimbursement, error) {
	stmt := db.WithContext(ctx).Model(&domain.Reimbursement{})
	if f.SubmitterID != 0 {
		stmt = stmt.Where("submitter_id = ?", f.SubmitterID)
	}
	stmt, err := filter.Apply(stmt, listColumns, f.Filters...)
	if err != nil {
		return nil, err
	}
	stmt = option.ApplyPagination(page).Apply(stmt)

	var items []*domain.Reimbursement
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(items, itemBatchSize).Error
}

func (r *repo) DeleteItems(ctx context.Context, db *gorm.DB, reimbursementID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM reimbursement_items WHERE reimbursement_id = ?`, reimbursementID).Error
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, reimbursementID snowflake.ID) ([]domain.Item, error) {
	var items []domain.Item
	err := db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("reimbursement_id = ?", reimbursementID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
