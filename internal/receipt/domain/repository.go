package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/officeflow/pkg/db/filter"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, receipt *Receipt) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Receipt, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Receipt, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, confirmedAt *time.Time, now time.Time) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	List(ctx context.Context, db *gorm.DB, filters []filter.Filter, page pagination.Pagination) ([]*Receipt, error)
}
