package api

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/gin-gonic/gin"

	"sttstudio/pkg/logger"
)

// tokenGate is the optional API-token gate. The configured token is
// hashed once at boot; every request does a constant-time bcrypt compare
// instead of a raw string equality.
type tokenGate struct {
	hash []byte
}

func newTokenGate(token string) *tokenGate {
	if token == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash API auth token, disabling gate", "error", err)
		return nil
	}
	return &tokenGate{hash: hash}
}

func (g *tokenGate) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g == nil {
			c.Next()
			return
		}
		presented := bearerToken(c)
		if presented == "" || bcrypt.CompareHashAndPassword(g.hash, []byte(presented)) != nil {
			logger.AuthEvent(c.ClientIP(), false)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API token"})
			c.Abort()
			return
		}
		logger.AuthEvent(c.ClientIP(), true)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	auth := c.GetHeader("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return c.GetHeader("X-API-Key")
}
