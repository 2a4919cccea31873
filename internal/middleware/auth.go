package middleware

import (
	"errors"
	"net/http"
	"strings"

	pkgAuth "roulette-service/pkg/auth"
	"roulette-service/pkg/response"

	"github.com/gin-gonic/gin"
)

const ContextPlayerIDKey = "playerID"

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := pkgAuth.ParsePlayerToken(token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(ContextPlayerIDKey, claims.SubjectID)
		c.Next()
	}
}

func ExtractBearerToken(authHeader string) (string, error) {
	if strings.TrimSpace(authHeader) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
