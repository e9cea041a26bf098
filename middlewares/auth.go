package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"social-backend/utils"
)

type AuthConfig struct {
	Secret       string
	Header       string
	BearerPrefix string
	QueryKey     string // websocket clients cannot set headers
}

// TokenAuthMiddleware 校验 JWT 并把 user_id 写入上下文
func TokenAuthMiddleware(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(cfg.Header))
		if token != "" && cfg.BearerPrefix != "" {
			token = strings.TrimSpace(strings.TrimPrefix(token, cfg.BearerPrefix))
		}
		if token == "" && cfg.QueryKey != "" {
			token = c.Query(cfg.QueryKey)
		}
		if token == "" {
			utils.RespondError(c, http.StatusUnauthorized, "missing token")
			return
		}

		userID, err := utils.ParseToken(cfg.Secret, token)
		if err != nil {
			utils.RespondError(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}
