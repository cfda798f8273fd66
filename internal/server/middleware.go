package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/officeflow/internal/actorcontext"
	obscontext "github.com/smallbiznis/officeflow/internal/observability/context"
	"go.uber.org/zap"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"

	contextUserIDKey = "user_id"
)

// ActorRequired trusts the identity headers set by the upstream gateway.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor := actorcontext.Actor{
			UserID: userID,
			Role:   actorcontext.ParseRole(c.GetHeader(HeaderRole)),
		}
		ctx := actorcontext.WithActor(c.Request.Context(), actor)
		ctx = obscontext.WithActor(ctx, string(actor.Role), userID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextUserIDKey, userID.String())
		c.Next()
	}
}

// WriteRateLimit throttles mutating requests per actor.
func (s *Server) WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.writeLimiter.Enabled() {
			c.Next()
			return
		}

		actorID := c.GetString(contextUserIDKey)
		result, err := s.writeLimiter.AllowActor(c.Request.Context(), actorID)
		if err != nil {
			s.log.Warn("write rate limit unavailable", zap.String("actor_id", actorID), zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				seconds := int(math.Ceil(result.RetryAfter.Seconds()))
				c.Header("Retry-After", strconv.Itoa(seconds))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// DocumentWriteGuard rejects a write while another write on the same
// document is in flight on any replica.
func (s *Server) DocumentWriteGuard(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.writeLimiter.Enabled() {
			c.Next()
			return
		}

		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			c.Next()
			return
		}

		token, ok, err := s.writeLimiter.TryLockDocument(c.Request.Context(), kind, id)
		if err != nil {
			s.log.Warn("document write lock unavailable",
				zap.String("document", kind),
				zap.String("id", id),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !ok {
			AbortWithError(c, ErrWriteInProgress)
			return
		}

		releaseCtx := context.WithoutCancel(c.Request.Context())
		defer func() {
			if err := s.writeLimiter.ReleaseDocument(releaseCtx, kind, id, token); err != nil {
				s.log.Warn("failed to release document write lock",
					zap.String("document", kind),
					zap.String("id", id),
					zap.Error(err),
				)
			}
		}()

		c.Next()
	}
}
