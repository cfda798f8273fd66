package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records who moved which document where. Rows are written in the
// same transaction as the change they describe.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorID    snowflake.ID      `gorm:"not null;index" json:"actorId"`
	ActorRole  string            `gorm:"type:varchar(32);not null" json:"actorRole"`
	Action     string            `gorm:"type:varchar(64);not null;index" json:"action"`
	TargetType string            `gorm:"type:varchar(32);not null" json:"targetType"`
	TargetID   snowflake.ID      `gorm:"not null;index" json:"targetId"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*AuditLog, error)
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"auditLogs"`
}

type Service interface {
	// Record writes an entry on tx for the actor in ctx.
	Record(ctx context.Context, tx *gorm.DB, action string, targetType string, targetID snowflake.ID, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

const (
	TargetReimbursement = "reimbursement"
	TargetReceipt       = "receipt"
	TargetAccount       = "account"
)

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidTargetID     = errors.New("invalid_target_id")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrTransactionRequired = errors.New("transaction_required")
)
