package testutil

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/officeflow/internal/actorcontext"
	"github.com/smallbiznis/officeflow/internal/authorization"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func AdminContext(userID snowflake.ID) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: userID, Role: actorcontext.RoleAdmin})
}

func MemberContext(userID snowflake.ID) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: userID, Role: actorcontext.RoleMember})
}

// RoleContext carries an arbitrary role string, including ones no policy
// knows about.
func RoleContext(userID snowflake.ID, role string) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: userID, Role: actorcontext.Role(role)})
}

// NewAuthz builds the casbin-backed authorization service with the built-in
// role policies.
func NewAuthz(t *testing.T) authorization.Service {
	t.Helper()
	enforcer, err := authorization.NewEnforcer(openDB(t, "authz"))
	require.NoError(t, err)
	return authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})
}
