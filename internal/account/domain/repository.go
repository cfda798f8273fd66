package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	List(ctx context.Context, db *gorm.DB) ([]*Account, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balance decimal.Decimal, updatedBy snowflake.ID, now time.Time) error
	SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, updatedBy snowflake.ID, now time.Time) error
	CountOpenReceipts(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)

	InsertEntry(ctx context.Context, db *gorm.DB, entry *Entry) error
	ListEntries(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*Entry, error)
}
