package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// PayerKey is the gin context key holding the authenticated payer address.
const PayerKey = "payer"

func JWTMiddleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		payer, ok := svc.payerFor(strings.TrimSpace(authz[7:]))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(PayerKey, payer)
		c.Next()
	}
}

// OptionalJWTMiddleware sets the payer when a bearer token is sent and lets
// anonymous requests through. A token that fails to verify is still rejected.
func OptionalJWTMiddleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization"})
			return
		}
		payer, ok := svc.payerFor(strings.TrimSpace(authz[7:]))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(PayerKey, payer)
		c.Next()
	}
}

func (s *Service) payerFor(token string) (string, bool) {
	if payer, ok := s.DevPayer(token); ok {
		return payer, true
	}
	claims, err := s.Parse(token)
	if err != nil {
		return "", false
	}
	return claims.Address, true
}
