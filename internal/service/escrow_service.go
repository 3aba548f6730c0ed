package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"

	"github.com/coreprover/escrow-backend/internal/clock"
	"github.com/coreprover/escrow-backend/internal/logger"
	"github.com/coreprover/escrow-backend/internal/models"
	"github.com/coreprover/escrow-backend/internal/pkg/apperror"
	"github.com/coreprover/escrow-backend/internal/provenance"
)

// EscrowRepository — хранилище авторитетных записей эскроу. Settle и
// UpdateWithDiscount атомарны: переход и порождённый им артефакт (чек,
// токен скидки) записываются оба или ни один.
type EscrowRepository interface {
	Create(ctx context.Context, escrow *models.Escrow) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error)
	Update(ctx context.Context, escrow *models.Escrow) error
	UpdateWithDiscount(ctx context.Context, escrow *models.Escrow, token *models.DiscountToken) error
	Settle(ctx context.Context, escrow *models.Escrow, receipt *models.CoreProverReceipt) error
	ListActive(ctx context.Context) ([]models.Escrow, error)
}

// Notifier — исходящий канал уведомлений расчётного слоя.
type Notifier interface {
	StateChanged(change models.StateChange)
	ReceiptIssued(orderID uuid.UUID, receipt *models.CoreProverReceipt)
	DiscountIssued(orderID uuid.UUID, issued models.DiscountIssued)
}

// EscrowService — машина состояний эскроу. Единственный владелец записи
// по order_id: все мутации идут через неё, под по-заказной блокировкой.
type EscrowService struct {
	repo      EscrowRepository
	ledger    *provenance.Ledger
	discounts *DiscountService
	receipts  *ReceiptService
	notifier  Notifier
	clock     clock.TripleClock

	// По-заказная сериализация: не более одного перехода в полёте на заказ.
	mu    sync.Mutex
	locks map[uuid.UUID]*orderLock
}

// orderLock — мьютекс одного заказа со счётчиком держателей. Запись
// удаляется из карты, когда счётчик обнуляется: карта не растёт с числом
// завершённых заказов.
type orderLock struct {
	mu   sync.Mutex
	refs int
}

func NewEscrowService(
	repo EscrowRepository,
	ledger *provenance.Ledger,
	discounts *DiscountService,
	receipts *ReceiptService,
	notifier Notifier,
	clk clock.TripleClock,
) *EscrowService {
	return &EscrowService{
		repo:      repo,
		ledger:    ledger,
		discounts: discounts,
		receipts:  receipts,
		notifier:  notifier,
		clock:     clk,
		locks:     make(map[uuid.UUID]*orderLock),
	}
}

// lockOrder захватывает мьютекс конкретного заказа. Разные заказы
// обрабатываются параллельно, события одного заказа — строго последовательно.
func (s *EscrowService) lockOrder(orderID uuid.UUID) *orderLock {
	s.mu.Lock()
	lock, ok := s.locks[orderID]
	if !ok {
		lock = &orderLock{}
		s.locks[orderID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return lock
}

// unlockOrder освобождает мьютекс заказа и убирает запись из карты,
// если её больше никто не ждёт.
func (s *EscrowService) unlockOrder(orderID uuid.UUID, lock *orderLock) {
	lock.mu.Unlock()

	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, orderID)
	}
	s.mu.Unlock()
}

// CanBuyerWithdraw — чистая функция: разрешён ли вывод средств покупателем.
// Побитово согласована с таблицей переходов.
func CanBuyerWithdraw(state string, nowMono, acceptanceDeadline uint64) bool {
	switch state {
	case models.EscrowStateExpired, models.EscrowStateFulfillmentExpired:
		return true
	case models.EscrowStateBuyerCommitted:
		return nowMono > acceptanceDeadline
	default:
		return false
	}
}

// CanSellerClaim — чистая функция: разрешён ли клейм продавцом.
func CanSellerClaim(state string, fulfillmentSeen bool) bool {
	return state == models.EscrowStateSellerFulfilled && fulfillmentSeen
}

// BuyerCommit создаёт эскроу по событию коммита покупателя.
func (s *EscrowService) BuyerCommit(ctx context.Context, ev models.BuyerCommittedEvent) (*models.Escrow, error) {
	buyerTxids, err := s.ledger.NewBuyerTxIds(ev.ChainID, ev.CommitTxid)
	if err != nil {
		return nil, err
	}
	if _, ok := models.ValidCommitmentTypes[ev.Profile.CommitmentType]; !ok {
		return nil, apperror.Newf(apperror.ErrCodeValidation,
			"неизвестный тип обязательства %q", ev.Profile.CommitmentType)
	}

	lock := s.lockOrder(ev.OrderID)
	defer s.unlockOrder(ev.OrderID, lock)

	if existing, err := s.repo.GetByOrderID(ctx, ev.OrderID); err == nil && existing != nil {
		return nil, apperror.Newf(apperror.ErrCodeInvalidTransition,
			"эскроу %s уже существует в состоянии %s", ev.OrderID, existing.State)
	}

	now := s.clock.Now()
	escrow := &models.Escrow{
		OrderID:                ev.OrderID,
		Buyer:                  ev.Buyer,
		Seller:                 ev.Seller,
		BuyerAmount:            ev.BuyerAmount,
		SellerCommitment:       ev.SellerCommitment,
		Profile:                ev.Profile,
		State:                  models.EscrowStateBuyerCommitted,
		WithdrawalLocked:       false,
		CreatedAt:              now,
		AcceptanceDeadlineMono: now.Mono + ev.Profile.AcceptanceWindowSecs,
		BuyerTxIds:             buyerTxids,
	}

	if err := s.repo.Create(ctx, escrow); err != nil {
		return nil, err
	}

	s.notifyState(escrow, now)
	return escrow, nil
}

// SellerAccept переводит эскроу в seller_accepted и блокирует вывод средств.
func (s *EscrowService) SellerAccept(ctx context.Context, ev models.SellerAcceptedEvent) (*models.Escrow, error) {
	sellerTxids, err := s.ledger.NewSellerTxIds(ev.ChainID, ev.AcceptTxid)
	if err != nil {
		return nil, err
	}

	lock := s.lockOrder(ev.OrderID)
	defer s.unlockOrder(ev.OrderID, lock)

	escrow, err := s.repo.GetByOrderID(ctx, ev.OrderID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if escrow.State != models.EscrowStateBuyerCommitted {
		return nil, s.rejectTransition(escrow, "seller_accept")
	}
	if now.Mono > escrow.AcceptanceDeadlineMono {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "окно принятия истекло")
	}

	next := escrow.Clone()
	next.SellerTxIds = sellerTxids
	next.State = models.EscrowStateSellerAccepted
	next.WithdrawalLocked = true
	next.AcceptedAt = &now
	deadline := now.Mono + next.Profile.FulfillmentWindowSecs
	next.FulfillmentDeadlineMono = &deadline

	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}

	s.notifyState(next, now)
	return next, nil
}

// SellerFulfill обрабатывает исполнение. Опоздание определяется по метке
// события относительно дедлайна исполнения: «вовремя» и «после дедлайна»
// взаимно исключены при едином значении дедлайна. Поздний путь проходит
// через fulfillment_expired, повторно блокирует вывод средств и запускает
// выпуск скидки.
func (s *EscrowService) SellerFulfill(ctx context.Context, ev models.SellerFulfilledEvent) (*models.Escrow, error) {
	if err := provenance.ValidateTxRef(ev.FulfillTxid); err != nil {
		return nil, err
	}

	lock := s.lockOrder(ev.OrderID)
	defer s.unlockOrder(ev.OrderID, lock)

	escrow, err := s.repo.GetByOrderID(ctx, ev.OrderID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if escrow.State != models.EscrowStateSellerAccepted && escrow.State != models.EscrowStateFulfillmentExpired {
		return nil, s.rejectTransition(escrow, "seller_fulfill")
	}
	if escrow.FulfillmentDeadlineMono == nil {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "дедлайн исполнения не установлен")
	}

	late := now.Mono > *escrow.FulfillmentDeadlineMono

	next := escrow.Clone()
	if err := s.ledger.SetFulfill(&next.SellerTxIds, ev.FulfillTxid, ev.BlockHeight); err != nil {
		return nil, err
	}
	next.State = models.EscrowStateSellerFulfilled
	next.WithdrawalLocked = true // на позднем пути это повторная блокировка
	next.FulfilledAt = &now
	next.LateFulfilled = late
	claimDeadline := now.Mono + next.Profile.ClaimWindowSecs + next.Profile.TimedReleaseDelaySecs
	next.ClaimDeadlineMono = &claimDeadline

	// Токен скидки персистится в одной транзакции с переходом: сбой записи
	// не оставляет ни осиротевшего токена, ни позднего исполнения без скидки.
	var issued *models.DiscountToken
	if late && next.Profile.EnablesLateDiscount {
		issued, err = s.discounts.Issue(next, now)
		if err != nil {
			return nil, err
		}
	}

	if issued != nil {
		err = s.repo.UpdateWithDiscount(ctx, next, issued)
	} else {
		err = s.repo.Update(ctx, next)
	}
	if err != nil {
		return nil, err
	}

	s.notifyState(next, now)
	if issued != nil {
		s.notifier.DiscountIssued(next.OrderID, models.DiscountIssued{
			ReceiptID:      issued.ReceiptID,
			Pct:            issued.Pct,
			ExpirationUnix: issued.ExpirationUnix,
		})
	}
	return next, nil
}

// SellerClaim финализирует расчёт клеймом и выпускает чек. Переход
// фиксируется только после успешной валидации чека: невалидный чек
// оставляет эскроу в прежнем, повторяемом состоянии.
func (s *EscrowService) SellerClaim(ctx context.Context, ev models.SellerClaimedEvent) (*models.Escrow, error) {
	if err := provenance.ValidateTxRef(ev.ClaimTxid); err != nil {
		return nil, err
	}

	lock := s.lockOrder(ev.OrderID)
	defer s.unlockOrder(ev.OrderID, lock)

	escrow, err := s.repo.GetByOrderID(ctx, ev.OrderID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if !CanSellerClaim(escrow.State, escrow.SellerTxIds.FulfillTxid != nil) {
		return nil, s.rejectTransition(escrow, "seller_claim")
	}

	next := escrow.Clone()
	if err := s.ledger.SetClaim(&next.SellerTxIds, ev.ClaimTxid); err != nil {
		return nil, err
	}
	return s.settle(ctx, next, now, models.EscrowStateSellerClaimed)
}

// SellerRefund финализирует расчёт возвратом средств покупателю.
func (s *EscrowService) SellerRefund(ctx context.Context, ev models.SellerRefundedEvent) (*models.Escrow, error) {
	if err := provenance.ValidateTxRef(ev.RefundTxid); err != nil {
		return nil, err
	}

	lock := s.lockOrder(ev.OrderID)
	defer s.unlockOrder(ev.OrderID, lock)

	escrow, err := s.repo.GetByOrderID(ctx, ev.OrderID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if escrow.State != models.EscrowStateSellerFulfilled {
		return nil, s.rejectTransition(escrow, "seller_refund")
	}

	next := escrow.Clone()
	if err := s.ledger.SetRefund(&next.SellerTxIds, ev.RefundTxid); err != nil {
		return nil, err
	}
	return s.settle(ctx, next, now, models.EscrowStateSellerRefunded)
}

// settle завершает терминальный расчётный переход: сначала строится и
// валидируется чек, затем переход и чек персистятся одной транзакцией.
// Любой сбой до коммита оставляет эскроу в прежнем, повторяемом состоянии;
// терминального состояния без чека не существует.
func (s *EscrowService) settle(ctx context.Context, next *models.Escrow, now models.TripleTimestamp, state string) (*models.Escrow, error) {
	next.State = state
	next.WithdrawalLocked = false
	next.SettledAt = &now

	if err := s.ledger.VerifySettled(next.SellerTxIds); err != nil {
		return nil, err
	}

	receipt, err := s.receipts.Build(next)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Settle(ctx, next, receipt); err != nil {
		return nil, err
	}

	s.notifyState(next, now)
	s.notifier.ReceiptIssued(next.OrderID, receipt)
	return next, nil
}

// BuyerWithdraw возвращает средства покупателю. Разрешён только при снятой
// блокировке: из expired, из fulfillment_expired и из buyer_committed после
// истечения окна принятия.
func (s *EscrowService) BuyerWithdraw(ctx context.Context, ev models.BuyerWithdrawnEvent) (*models.Escrow, error) {
	if ev.WithdrawTxid != nil {
		if err := provenance.ValidateTxRef(*ev.WithdrawTxid); err != nil {
			return nil, err
		}
	}

	lock := s.lockOrder(ev.OrderID)
	defer s.unlockOrder(ev.OrderID, lock)

	escrow, err := s.repo.GetByOrderID(ctx, ev.OrderID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if escrow.WithdrawalLocked || !CanBuyerWithdraw(escrow.State, now.Mono, escrow.AcceptanceDeadlineMono) {
		return nil, s.rejectTransition(escrow, "buyer_withdraw")
	}

	next := escrow.Clone()
	if ev.WithdrawTxid != nil {
		if err := s.ledger.SetWithdraw(&next.BuyerTxIds, *ev.WithdrawTxid); err != nil {
			return nil, err
		}
	}
	next.State = models.EscrowStateBuyerClaimed
	next.SettledAt = &now

	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}

	// Чек не выпускается: расчёта в пользу продавца не было.
	s.notifyState(next, now)
	return next, nil
}

// Dispute переводит любое активное эскроу в disputed. Терминально до внешнего
// арбитража, средства автоматически не двигаются.
func (s *EscrowService) Dispute(ctx context.Context, ev models.DisputeEvent) (*models.Escrow, error) {
	lock := s.lockOrder(ev.OrderID)
	defer s.unlockOrder(ev.OrderID, lock)

	escrow, err := s.repo.GetByOrderID(ctx, ev.OrderID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if models.IsTerminalState(escrow.State) {
		return nil, s.rejectTransition(escrow, "dispute")
	}

	next := escrow.Clone()
	next.State = models.EscrowStateDisputed
	next.WithdrawalLocked = false

	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"order_id": ev.OrderID,
		"reason":   ev.Reason,
	}).Warn("эскроу переведён в спор")

	s.notifyState(next, now)
	return next, nil
}

// CheckDeadline проверяет, истекло ли активное окно заказа, и проводит
// соответствующий переход. Идемпотентна: повторный вызов с тем же now для
// уже перешедшего заказа ничего не меняет. Вызывающий не авторизуется —
// guard зависит только от (state, now).
func (s *EscrowService) CheckDeadline(ctx context.Context, req models.CheckDeadlineRequest) (*models.Escrow, error) {
	lock := s.lockOrder(req.OrderID)
	defer s.unlockOrder(req.OrderID, lock)

	escrow, err := s.repo.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	now := req.Now

	switch escrow.State {
	case models.EscrowStateBuyerCommitted:
		if now.Mono <= escrow.AcceptanceDeadlineMono {
			return escrow, nil
		}
		next := escrow.Clone()
		next.State = models.EscrowStateExpired
		// Блокировка и так снята: продавец не принимал заказ.
		next.WithdrawalLocked = false
		if err := s.repo.Update(ctx, next); err != nil {
			return nil, err
		}
		s.notifyState(next, now)
		return next, nil

	case models.EscrowStateSellerAccepted:
		if escrow.FulfillmentDeadlineMono == nil || now.Mono <= *escrow.FulfillmentDeadlineMono {
			return escrow, nil
		}
		next := escrow.Clone()
		next.State = models.EscrowStateFulfillmentExpired
		next.WithdrawalLocked = false // продавец всё ещё может исполнить поздно
		if err := s.repo.Update(ctx, next); err != nil {
			return nil, err
		}
		s.notifyState(next, now)
		return next, nil

	case models.EscrowStateSellerFulfilled:
		if !escrow.Profile.AllowsTimedRelease {
			return escrow, nil
		}
		if escrow.ClaimDeadlineMono == nil || now.Mono <= *escrow.ClaimDeadlineMono {
			return escrow, nil
		}
		// Таймированный релиз: средства направляются продавцу, клейм
		// синтезируется детерминированно из order_id и момента релиза.
		next := escrow.Clone()
		auto := models.TxRef{
			ChainID:     next.SellerTxIds.ChainID,
			TxID:        autoClaimTxid(next.OrderID, now.Mono),
			BlockHeight: deref(next.SellerTxIds.BlockHeight),
		}
		if err := s.ledger.SetClaim(&next.SellerTxIds, auto); err != nil {
			return nil, err
		}
		return s.settle(ctx, next, now, models.EscrowStateSellerClaimed)

	default:
		// Терминальные и остальные состояния: проверять нечего.
		return escrow, nil
	}
}

// SweepDeadlines прогоняет CheckDeadline по всем активным заказам.
// Используется планировщиком; ошибки отдельных заказов не прерывают обход.
func (s *EscrowService) SweepDeadlines(ctx context.Context) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("не удалось получить активные эскроу")
		return
	}
	now := s.clock.Now()
	for i := range active {
		if _, err := s.CheckDeadline(ctx, models.CheckDeadlineRequest{
			OrderID: active[i].OrderID,
			Now:     now,
		}); err != nil {
			logger.Log.WithError(err).WithField("order_id", active[i].OrderID).
				Error("проверка дедлайна завершилась ошибкой")
		}
	}
}

// GetEscrow возвращает эскроу по заказу.
func (s *EscrowService) GetEscrow(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

// Now отдаёт текущую тройную метку времени сервисных часов.
func (s *EscrowService) Now() models.TripleTimestamp {
	return s.clock.Now()
}

// rejectTransition формирует детерминированный отказ, привязанный к строке
// таблицы переходов, и логирует его для аудита.
func (s *EscrowService) rejectTransition(escrow *models.Escrow, event string) error {
	logger.Log.WithFields(logrus.Fields{
		"order_id": escrow.OrderID,
		"state":    escrow.State,
		"event":    event,
	}).Warn("событие отклонено: нет разрешённого перехода")
	return apperror.Newf(apperror.ErrCodeInvalidTransition,
		"событие %s недопустимо в состоянии %s", event, escrow.State)
}

func (s *EscrowService) notifyState(escrow *models.Escrow, ts models.TripleTimestamp) {
	s.notifier.StateChanged(models.StateChange{
		OrderID:          escrow.OrderID,
		NewState:         escrow.State,
		WithdrawalLocked: escrow.WithdrawalLocked,
		Timestamp:        ts,
	})
}

// autoClaimTxid детерминированно синтезирует txid авто-клейма в каноническом
// формате 0x + 64 hex.
func autoClaimTxid(orderID uuid.UUID, mono uint64) string {
	h := sha3.New256()
	h.Write(orderID[:])
	h.Write([]byte(fmt.Sprintf("timed_release:%d", mono)))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// newNullifier выдаёт уникальный nullifier: хеш от order_id и случайной соли.
func newNullifier(orderID uuid.UUID) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("service: не удалось получить случайную соль: %w", err)
	}
	h := sha3.New256()
	h.Write(orderID[:])
	h.Write(salt)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func deref(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}
