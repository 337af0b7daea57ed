package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const callerKey = "caller"

// Handler exposes the identity endpoints and the caller middleware
type Handler struct {
	auth *Authenticator
}

func NewHandler(a *Authenticator) *Handler {
	return &Handler{auth: a}
}

// RequireCaller rejects requests without a valid bearer token and stores the
// caller address on the context.
func (h *Handler) RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required", "code": "UNAUTHENTICATED"})
			return
		}
		address, err := h.auth.ParseToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "UNAUTHENTICATED"})
			return
		}
		c.Set(callerKey, address)
		c.Next()
	}
}

// CallerFrom returns the authenticated caller address, or "" outside RequireCaller
func CallerFrom(c *gin.Context) string {
	return c.GetString(callerKey)
}

// Ping endpoint
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "auth service alive!"})
}

// Me echoes the authenticated caller
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"address": CallerFrom(c)})
}
