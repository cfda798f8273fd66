package authorization

import (
	_ "embed"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/officeflow/internal/actorcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

const (
	ObjectReimbursement = "reimbursement"
	ObjectReceipt       = "receipt"
	ObjectAccount       = "account"
	ObjectAudit         = "audit"
)

const (
	ActionReimbursementReview    = "reimbursement.review"
	ActionReimbursementPay       = "reimbursement.pay"
	ActionReimbursementDeleteAny = "reimbursement.delete_any"
	ActionReimbursementViewAll   = "reimbursement.view_all"

	ActionReceiptCreate = "receipt.create"
	ActionReceiptSettle = "receipt.settle"
	ActionReceiptDelete = "receipt.delete"
	ActionReceiptView   = "receipt.view"

	ActionAccountManage = "account.manage"
	ActionAccountView   = "account.view"

	ActionAuditView = "audit.view"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service answers capability questions for an actor's role. Role
// membership itself is resolved upstream.
type Service interface {
	Authorize(actor actorcontext.Actor, object string, action string) error
	Can(actor actorcontext.Actor, object string, action string) bool
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads role policies from the casbin_rule table and makes sure
// the built-in ones are present.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(actor actorcontext.Actor, object string, action string) error {
	if actor.UserID == 0 {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subjectFor(actor), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor_id", actor.UserID.String()),
			zap.String("role", string(actor.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Can(actor actorcontext.Actor, object string, action string) bool {
	return s.Authorize(actor, object, action) == nil
}

func subjectFor(actor actorcontext.Actor) string {
	return "role:" + string(actor.Role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions
		{"role:member", ObjectReceipt, ActionReceiptCreate},
		{"role:member", ObjectReceipt, ActionReceiptSettle},
		{"role:member", ObjectReceipt, ActionReceiptView},
		{"role:member", ObjectAccount, ActionAccountView},

		// Admin permissions
		{"role:admin", ObjectReimbursement, ActionReimbursementReview},
		{"role:admin", ObjectReimbursement, ActionReimbursementPay},
		{"role:admin", ObjectReimbursement, ActionReimbursementDeleteAny},
		{"role:admin", ObjectReimbursement, ActionReimbursementViewAll},
		{"role:admin", ObjectReceipt, ActionReceiptCreate},
		{"role:admin", ObjectReceipt, ActionReceiptSettle},
		{"role:admin", ObjectReceipt, ActionReceiptDelete},
		{"role:admin", ObjectReceipt, ActionReceiptView},
		{"role:admin", ObjectAccount, ActionAccountManage},
		{"role:admin", ObjectAccount, ActionAccountView},
		{"role:admin", ObjectAudit, ActionAuditView},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
