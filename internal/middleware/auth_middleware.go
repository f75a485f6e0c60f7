package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"sale-service/internal/transport/httpdto"
	"sale-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UnknownUser is recorded as the actor when a valid token carries no subject.
const UnknownUser = "unknown_user"

// AuthMiddleware accepts HS256 bearer tokens signed with secret and stores the
// subject claim as the caller id.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			return
		}

		claims, err := parseToken(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			return
		}

		userID, _ := claims.GetSubject()
		if strings.TrimSpace(userID) == "" {
			userID = UnknownUser
		}

		ctx := context.WithValue(c.Request.Context(), logger.UserIdKey, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func parseToken(raw string, secret []byte) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// UserID returns the authenticated caller id, or UnknownUser.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(logger.UserIdKey).(string); ok && id != "" {
		return id
	}
	return UnknownUser
}

// ErrMissingSecret is returned by callers that refuse to start without a signing key.
var ErrMissingSecret = errors.New("jwt secret is not configured")

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
