package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/casedesk/smechat/pkg/response"
	"github.com/gin-gonic/gin"
)

// SMERequired guards the SME-only routes with a shared bearer token. With no
// token configured the routes answer 404.
func SMERequired(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			response.NotFound(c, "not found")
			return
		}

		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(token)) != 1 {
			response.Unauthorized(c, "SME token required")
			return
		}
		c.Next()
	}
}
