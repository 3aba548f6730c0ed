package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/coreprover/escrow-backend/internal/clock"
	"github.com/coreprover/escrow-backend/internal/config"
	"github.com/coreprover/escrow-backend/internal/db"
	httpHandlers "github.com/coreprover/escrow-backend/internal/http/handlers"
	httpRouter "github.com/coreprover/escrow-backend/internal/http/router"
	"github.com/coreprover/escrow-backend/internal/logger"
	"github.com/coreprover/escrow-backend/internal/provenance"
	"github.com/coreprover/escrow-backend/internal/repository"
	"github.com/coreprover/escrow-backend/internal/scheduler"
	"github.com/coreprover/escrow-backend/internal/service"
	"github.com/coreprover/escrow-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.WatcherJWTSecret, cfg.WatcherTokenTTL)
	tripleClock := clock.NewSystemClock()
	ledger := provenance.NewLedger()

	// Репозитории.
	escrowRepo := repository.NewEscrowRepository(dbConn)
	receiptRepo := repository.NewReceiptRepository(dbConn)
	discountRepo := repository.NewDiscountRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()

	// Сервисы.
	notificationService := service.NewNotificationService(hub)
	discountService := service.NewDiscountService(discountRepo, tripleClock)
	receiptService := service.NewReceiptService(receiptRepo)
	escrowService := service.NewEscrowService(
		escrowRepo, ledger, discountService, receiptService, notificationService, tripleClock)

	// Планировщик дедлайнов.
	deadlineScheduler := scheduler.New(escrowService, cfg.SchedulerInterval)
	deadlineScheduler.Start(ctx)

	// HTTP хэндлеры.
	eventHandler := httpHandlers.NewEventHandler(escrowService)
	escrowHandler := httpHandlers.NewEscrowHandler(escrowService, receiptService)
	discountHandler := httpHandlers.NewDiscountHandler(discountService)
	wsHandler := httpHandlers.NewWSHandler(hub, escrowService, httpRouter.CheckOriginFunc(cfg.AllowedOrigins))
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, eventHandler, escrowHandler, discountHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s (chain_id движка %d)", cfg.HTTPPort, cfg.ChainID)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
