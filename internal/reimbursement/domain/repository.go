package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/officeflow/pkg/db/filter"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	// SubmitterID, when set, limits results to one submitter's documents.
	SubmitterID snowflake.ID
	Filters     []filter.Filter
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, r *Reimbursement) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reimbursement, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reimbursement, error)
	Update(ctx context.Context, db *gorm.DB, r *Reimbursement) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	List(ctx context.Context, db *gorm.DB, f ListFilter, page pagination.Pagination) ([]*Reimbursement, error)

	InsertItems(ctx context.Context, db *gorm.DB, items []Item) error
	DeleteItems(ctx context.Context, db *gorm.DB, reimbursementID snowflake.ID) error
	ListItems(ctx context.Context, db *gorm.DB, reimbursementID snowflake.ID) ([]Item, error)
}
