package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"campushub/models"
	"campushub/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const revokedTokenPrefix = "revoked:"

// JWTAuthMiddleware validates the bearer token, rejects revoked tokens via
// the auth cache, and places the caller's identity in the request context.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Insufficient authorization",
				"code":  0,
			})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		identity, err := utils.ExtractIdentityFromToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Insufficient authorization",
				"code":  0,
			})
			return
		}

		// Revocation check; an uninitialized or unreachable cache degrades
		// to accepting valid signatures rather than locking everyone out.
		authCache := utils.AuthCacheClient
		if authCache != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			revoked, err := authCache.Exists(ctx, revokedTokenPrefix+utils.HashToken(tokenString)).Result()
			cancel()
			if err == nil && revoked > 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Token revoked",
					"code":  0,
				})
				return
			}
		}

		c.Set("identity", identity)
		c.Set("userID", identity.UserID)
		c.Next()
	}
}

// IdentityFromContext retrieves the authenticated identity set by
// JWTAuthMiddleware.
func IdentityFromContext(c *gin.Context) (models.Identity, bool) {
	val, ok := c.Get("identity")
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := val.(models.Identity)
	return identity, ok
}

// RevokeToken blacklists a token hash until its natural expiry.
func RevokeToken(client *redis.Client, tokenString string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Set(ctx, revokedTokenPrefix+utils.HashToken(tokenString), 1, ttl).Err()
}
