package scheduler

import (
	"context"
	"time"

	"github.com/coreprover/escrow-backend/internal/goroutine"
	"github.com/coreprover/escrow-backend/internal/logger"
)

// DeadlineSweeper — поверхность машины состояний, которую дёргает планировщик.
type DeadlineSweeper interface {
	SweepDeadlines(ctx context.Context)
}

// Scheduler периодически спрашивает машину состояний, не истекли ли активные
// окна заказов. Проверки идемпотентны, поэтому интервал — вопрос латентности,
// а не корректности.
type Scheduler struct {
	sweeper  DeadlineSweeper
	interval time.Duration
}

func New(sweeper DeadlineSweeper, interval time.Duration) *Scheduler {
	return &Scheduler{sweeper: sweeper, interval: interval}
}

// Start запускает цикл обхода в безопасной горутине. Останавливается по ctx.
func (s *Scheduler) Start(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logger.Log.WithField("interval", s.interval.String()).Info("планировщик дедлайнов запущен")
		for {
			select {
			case <-ctx.Done():
				logger.Log.Info("планировщик дедлайнов остановлен")
				return
			case <-ticker.C:
				s.sweeper.SweepDeadlines(ctx)
			}
		}
	})
}
