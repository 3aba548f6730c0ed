package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coreprover/escrow-backend/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextServiceKey = "serviceName"
)

// WatcherAuthMiddleware проверяет сервисный JWT наблюдателя цепочки.
// События провенанса и проверки дедлайнов принимаются только от
// авторизованных коллабораторов; авторизация живёт на транспортной границе,
// не в ядре.
func WatcherAuthMiddleware(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
			return
		}

		raw := strings.TrimPrefix(auth, "Bearer ")
		name, err := tokens.ParseService(raw)
		if err != nil || name == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "токен невалиден"})
			return
		}

		c.Set(ContextServiceKey, name)
		c.Next()
	}
}
