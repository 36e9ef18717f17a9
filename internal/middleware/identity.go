package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/casedesk/smechat/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ClientCookieName = "sme_client"
	clientCookieAge  = 365 * 24 * 60 * 60
)

var clientKeyPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ClientIdentity gives every caller an anonymous, long-lived key so referrals
// can be listed back to the browser or terminal that filed them. Malformed
// cookies are replaced.
func ClientIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := c.Cookie(ClientCookieName)
		if err != nil || !clientKeyPattern.MatchString(key) {
			key = newClientKey()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(ClientCookieName, key, clientCookieAge, "/", "", false, true)
		}
		c.Set(logger.ClientKeyContextKey, key)
		c.Next()
	}
}

// GetClientKey returns the key set by ClientIdentity, or "".
func GetClientKey(c *gin.Context) string {
	return c.GetString(logger.ClientKeyContextKey)
}

func newClientKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
