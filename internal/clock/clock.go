package clock

import (
	"sync"
	"time"

	"github.com/coreprover/escrow-backend/internal/models"
)

// TripleClock выдаёт тройную метку времени (mono/unix/iso) одним атомарным чтением.
// Все компоненты ядра получают время только через этот интерфейс: запрещено
// вычислять unix из mono или наоборот.
type TripleClock interface {
	Now() models.TripleTimestamp
}

// SystemClock — часы на основе системного времени. Монотонная компонента
// отсчитывается в секундах от момента создания часов.
type SystemClock struct {
	start time.Time
}

// NewSystemClock создаёт системные часы.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now возвращает тройную метку. Все три поля производятся из одного вызова time.Now.
func (c *SystemClock) Now() models.TripleTimestamp {
	t := time.Now()
	return models.TripleTimestamp{
		Mono: uint64(t.Sub(c.start) / time.Second),
		Unix: uint64(t.Unix()),
		ISO:  t.UTC().Format(time.RFC3339),
	}
}

// ManualClock — управляемые часы для тестов и детерминированных прогонов.
// Монотонная и unix компоненты сдвигаются вместе, как в SystemClock.
type ManualClock struct {
	mu   sync.Mutex
	mono uint64
	unix uint64
}

// NewManualClock создаёт часы с заданным стартовым unix-временем и mono=0.
func NewManualClock(genesisUnix uint64) *ManualClock {
	return &ManualClock{unix: genesisUnix}
}

// Now возвращает текущую тройную метку.
func (c *ManualClock) Now() models.TripleTimestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.TripleTimestamp{
		Mono: c.mono,
		Unix: c.unix,
		ISO:  time.Unix(int64(c.unix), 0).UTC().Format(time.RFC3339),
	}
}

// Advance сдвигает обе компоненты на secs секунд.
func (c *ManualClock) Advance(secs uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mono += secs
	c.unix += secs
}

// Set устанавливает обе компоненты в заданную точку (mono == unix - genesis не проверяется,
// ответственность вызывающего — сохранять согласованность сценария).
func (c *ManualClock) Set(mono, unix uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mono = mono
	c.unix = unix
}
