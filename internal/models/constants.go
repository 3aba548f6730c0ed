package models

// EscrowState константы состояний эскроу
const (
	EscrowStateNone               = "none"
	EscrowStateBuyerCommitted     = "buyer_committed"
	EscrowStateSellerAccepted     = "seller_accepted"
	EscrowStateSellerFulfilled    = "seller_fulfilled"
	EscrowStateFulfillmentExpired = "fulfillment_expired"
	EscrowStateSellerClaimed      = "seller_claimed"
	EscrowStateSellerRefunded     = "seller_refunded"
	EscrowStateExpired            = "expired"
	EscrowStateBuyerClaimed       = "buyer_claimed"
	EscrowStateDisputed           = "disputed"
)

// CommitmentType константы типов встречного обязательства продавца
const (
	CommitmentTypeCounterEscrow  = "counter_escrow"
	CommitmentTypeLegalSignature = "legal_signature"
)

// NotificationEvent имена исходящих событий расчётного слоя
const (
	EventStateChanged   = "state_changed"
	EventReceiptIssued  = "receipt_issued"
	EventDiscountIssued = "discount_issued"
)

// ValidEscrowStates список валидных состояний эскроу
var ValidEscrowStates = map[string]struct{}{
	EscrowStateNone:               {},
	EscrowStateBuyerCommitted:     {},
	EscrowStateSellerAccepted:     {},
	EscrowStateSellerFulfilled:    {},
	EscrowStateFulfillmentExpired: {},
	EscrowStateSellerClaimed:      {},
	EscrowStateSellerRefunded:     {},
	EscrowStateExpired:            {},
	EscrowStateBuyerClaimed:       {},
	EscrowStateDisputed:           {},
}

// ValidCommitmentTypes список валидных типов обязательства
var ValidCommitmentTypes = map[string]struct{}{
	CommitmentTypeCounterEscrow:  {},
	CommitmentTypeLegalSignature: {},
}

// TerminalStates состояния, из которых нет переходов
var TerminalStates = map[string]struct{}{
	EscrowStateSellerClaimed:  {},
	EscrowStateSellerRefunded: {},
	EscrowStateBuyerClaimed:   {},
	EscrowStateDisputed:       {},
}

// IsTerminalState сообщает, является ли состояние терминальным.
func IsTerminalState(state string) bool {
	_, ok := TerminalStates[state]
	return ok
}

// LocksWithdrawal возвращает true для состояний, в которых вывод средств
// покупателем заблокирован. Блокировка — чистая функция состояния.
func LocksWithdrawal(state string) bool {
	return state == EscrowStateSellerAccepted || state == EscrowStateSellerFulfilled
}
