package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/officeflow/internal/actorcontext"
	auditdomain "github.com/smallbiznis/officeflow/internal/audit/domain"
	"github.com/smallbiznis/officeflow/internal/audit/masking"
	"github.com/smallbiznis/officeflow/internal/authorization"
	"github.com/smallbiznis/officeflow/internal/clock"
	obscontext "github.com/smallbiznis/officeflow/internal/observability/context"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultAuditPageSize = 50

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Authz authorization.Service
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	authz authorization.Service
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		authz: p.Authz,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, action string, targetType string, targetID snowflake.ID, metadata map[string]any) error {
	if tx == nil {
		return auditdomain.ErrTransactionRequired
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	if targetID == 0 {
		return auditdomain.ErrInvalidTargetID
	}
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return auditdomain.ErrInvalidActor
	}

	payload := masking.MaskFields(metadata, masking.SensitiveKeys...)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["request_id"] = requestID
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorID:    actor.UserID,
		ActorRole:  string(actor.Role),
		Action:     action,
		TargetType: strings.TrimSpace(targetType),
		TargetID:   targetID,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if payload != nil {
		entry.Metadata = datatypes.JSONMap(payload)
	}

	if err := s.repo.Insert(ctx, tx, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidActor
	}
	if err := s.authz.Authorize(actor, authorization.ObjectAudit, authorization.ActionAuditView); err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	filter := auditdomain.ListFilter{
		Action:     strings.TrimSpace(req.Action),
		TargetType: strings.TrimSpace(req.TargetType),
	}
	if raw := strings.TrimSpace(req.TargetID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTargetID
		}
		filter.TargetID = id
	}

	page, err := req.Pagination.Normalize(defaultAuditPageSize, pagination.MaxPageSize)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
	}

	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs, info := pagination.Page(items, page.PageSize, func(l *auditdomain.AuditLog) pagination.Cursor {
		return pagination.CursorAt(int64(l.ID), l.CreatedAt)
	})
	return auditdomain.ListAuditLogResponse{PageInfo: info, AuditLogs: logs}, nil
}
