package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/officeflow/internal/serial/domain"
	"github.com/smallbiznis/officeflow/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Reserve(ctx context.Context, tx *gorm.DB, documentType domain.DocumentType, businessDate string, now time.Time) (int64, error) {
	seed := domain.DocumentSequence{
		DocumentType: documentType,
		BusinessDate: businessDate,
		LastValue:    0,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error; err != nil {
		return 0, err
	}

	var row struct {
		LastValue int64 `gorm:"column:last_value"`
	}
	query := db.ForUpdate(tx, `SELECT last_value
		 FROM document_sequences
		 WHERE document_type = ? AND business_date = ?`)
	if err := tx.WithContext(ctx).Raw(query, documentType, businessDate).Scan(&row).Error; err != nil {
		return 0, err
	}

	next := row.LastValue + 1
	if err := tx.WithContext(ctx).Exec(
		`UPDATE document_sequences
		 SET last_value = ?, updated_at = ?
		 WHERE document_type = ? AND business_date = ?`,
		next,
		now,
		documentType,
		businessDate,
	).Error; err != nil {
		return 0, err
	}
	return next, nil
}
