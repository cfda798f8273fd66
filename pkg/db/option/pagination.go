package option

import (
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before it executes.
type QueryOption interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type paginationOption struct {
	page pagination.Pagination
}

// ApplyPagination applies keyset pagination ordered by (created_at desc, id
// desc). One extra row is fetched so callers can detect a following page.
// Tokens are expected to have passed Pagination.Normalize; an unreadable
// one restarts from the first page.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return paginationOption{page: page}
}

func (o paginationOption) Apply(stmt *gorm.DB) *gorm.DB {
	size := o.page.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	if o.page.PageToken != "" {
		if cursor, err := pagination.DecodeCursor(o.page.PageToken); err == nil {
			if createdAt, id, err := cursor.Keyset(); err == nil {
				stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))", createdAt, createdAt, id)
			}
		}
	}

	return stmt.Order("created_at desc, id desc").Limit(size + 1)
}
