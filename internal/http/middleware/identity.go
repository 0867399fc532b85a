package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultUserID owns requests that carry no identity. There is no auth layer;
// X-User-ID is trusted as-is.
const DefaultUserID = "demo-user"

// userCtxKey is where an upstream auth middleware would put the user id.
const userCtxKey = "userID"

// UserID resolves the caller: the context value set by auth, then the
// X-User-ID header, then DefaultUserID. Ingestion runs and idempotency keys
// are owned by this id.
func UserID(c *gin.Context) string {
	if uid := explicitUserID(c); uid != "" {
		return uid
	}
	return DefaultUserID
}

func explicitUserID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if s := c.GetString(userCtxKey); s != "" {
		return s
	}
	if c.Request != nil {
		return strings.TrimSpace(c.GetHeader(userIDHeader))
	}
	return ""
}
