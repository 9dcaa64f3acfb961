package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// IdentityAuth enforces bearer JWT tokens signed with HS256. The authenticated
// identity ID is stored in the gin context under "identity_id".
func IdentityAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("claims", claims)
		c.Set("identity_id", claims.Subject)
		c.Next()
	}
}

// IdentityID returns the authenticated identity from the request context.
func IdentityID(c *gin.Context) string {
	id, _ := c.Get("identity_id")
	s, _ := id.(string)
	return s
}
