package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/storefront-ledger/pkg/log/ctxlogger"
)

const (
	// HeaderUserID carries the account id resolved by the Telegram auth gateway.
	HeaderUserID     = "X-User-ID"
	contextUserIDKey = "user_id"
)

func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(ctxlogger.ContextWithUserID(c.Request.Context(), userID.String()))
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}

func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), userID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
