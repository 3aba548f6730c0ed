package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coreprover/escrow-backend/internal/config"
	"github.com/coreprover/escrow-backend/internal/http/handlers"
	"github.com/coreprover/escrow-backend/internal/http/middleware"
	"github.com/coreprover/escrow-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	eventHandler *handlers.EventHandler,
	escrowHandler *handlers.EscrowHandler,
	discountHandler *handlers.DiscountHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// События провенанса принимаются только от авторизованного наблюдателя
	// цепочки. Проверка дедлайна туда же: её дёргает тот же коллаборатор.
	watcher := api.Group("/")
	watcher.Use(middleware.WatcherAuthMiddleware(tokenManager))
	{
		watcher.POST("/events/commit", eventHandler.Commit)
		watcher.POST("/events/accept", eventHandler.Accept)
		watcher.POST("/events/fulfill", eventHandler.Fulfill)
		watcher.POST("/events/claim", eventHandler.Claim)
		watcher.POST("/events/refund", eventHandler.Refund)
		watcher.POST("/events/withdraw", eventHandler.Withdraw)
		watcher.POST("/events/dispute", eventHandler.Dispute)
		watcher.POST("/orders/:id/check-deadline", middleware.UUIDValidator("id"), eventHandler.CheckDeadline)
	}

	// Публичные маршруты
	api.GET("/orders/:id", middleware.UUIDValidator("id"), escrowHandler.GetOrder)
	api.GET("/orders/:id/receipt", middleware.UUIDValidator("id"), escrowHandler.GetReceipt)
	api.GET("/ws/orders/:id", middleware.UUIDValidator("id"), wsHandler.Subscribe)

	redeemRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
	api.POST("/discounts/redeem", redeemRateLimit, discountHandler.Redeem)

	return r
}

// CheckOriginFunc строит проверку Origin для websocket-апгрейда из того же
// списка, что и CORS.
func CheckOriginFunc(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range allowedOrigins {
			if strings.EqualFold(origin, allowed) {
				return true
			}
		}
		return false
	}
}
