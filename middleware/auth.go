package middleware

import (
	"net/http"
	"strings"

	"shop-svc/auth"

	"github.com/gin-gonic/gin"
)

const (
	AuthCookie  = "auth_token"
	identityKey = "identity"
)

// Authenticate resolves the caller from a bearer token or the auth cookie.
// Anonymous requests pass through; handlers decide what they require.
func Authenticate(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				token = strings.TrimSpace(parts[1])
			}
		}
		if token == "" {
			token, _ = c.Cookie(AuthCookie)
		}

		if token != "" {
			if id, err := tokens.Validate(token); err == nil {
				c.Set(identityKey, id)
			}
		}
		c.Next()
	}
}

// CurrentIdentity returns the authenticated caller, if any.
func CurrentIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*auth.Identity)
	return id, ok
}

// SetIdentity attaches id to the request, for tests and login.
func SetIdentity(c *gin.Context, id *auth.Identity) {
	c.Set(identityKey, id)
}

func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		if !id.IsStaff {
			c.JSON(http.StatusForbidden, gin.H{"error": "Staff access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
