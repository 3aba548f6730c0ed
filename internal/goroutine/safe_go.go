package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/coreprover/escrow-backend/internal/logger"
)

// Паника в фоновой горутине (планировщик, рассылка ws) не должна ронять
// процесс: отказ одного заказа никогда не влияет на остальные.

// SafeGo запускает горутину с перехватом panic.
func SafeGo(fn func()) {
	go func() {
		defer recoverPanic()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и перехватом panic.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer recoverPanic()
		fn(ctx)
	}()
}

func recoverPanic() {
	if r := recover(); r != nil {
		if logger.Log != nil {
			logger.Log.Errorf("panic в горутине: %v\n%s", r, debug.Stack())
			return
		}
		// Логгер ещё не инициализирован — паника при старте процесса.
		panic(r)
	}
}
