package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Escrow — центральная сущность: авторитетная запись сделки с двойным
// обязательством. Мутируется только машиной состояний в ответ на валидированные
// события провенанса или таймауты планировщика; никогда не удаляется —
// терминальные состояния сохраняются для аудита и чеков.
type Escrow struct {
	OrderID          uuid.UUID       `json:"order_id"`
	Buyer            string          `json:"buyer"`
	Seller           string          `json:"seller"`
	BuyerAmount      decimal.Decimal `json:"buyer_amount"`
	SellerCommitment string          `json:"seller_commitment"`
	Profile          PaymentProfile  `json:"profile"`

	State            string `json:"state"`
	WithdrawalLocked bool   `json:"withdrawal_locked"`

	CreatedAt   TripleTimestamp  `json:"created_at"`
	AcceptedAt  *TripleTimestamp `json:"accepted_at,omitempty"`
	FulfilledAt *TripleTimestamp `json:"fulfilled_at,omitempty"`
	SettledAt   *TripleTimestamp `json:"settled_at,omitempty"`

	// Дедлайны в монотонных секундах.
	AcceptanceDeadlineMono  uint64  `json:"acceptance_deadline_mono"`
	FulfillmentDeadlineMono *uint64 `json:"fulfillment_deadline_mono,omitempty"`
	ClaimDeadlineMono       *uint64 `json:"claim_deadline_mono,omitempty"`

	BuyerTxIds  BuyerTxIds  `json:"buyer_txids"`
	SellerTxIds SellerTxIds `json:"seller_txids"`

	// Флаг позднего исполнения: выставлен, если продавец исполнил после дедлайна.
	LateFulfilled bool `json:"late_fulfilled"`
}

// Clone возвращает глубокую копию для вычисления перехода «на копии»:
// переход фиксируется только после успешной валидации всех инвариантов.
func (e *Escrow) Clone() *Escrow {
	cp := *e
	if e.AcceptedAt != nil {
		v := *e.AcceptedAt
		cp.AcceptedAt = &v
	}
	if e.FulfilledAt != nil {
		v := *e.FulfilledAt
		cp.FulfilledAt = &v
	}
	if e.SettledAt != nil {
		v := *e.SettledAt
		cp.SettledAt = &v
	}
	if e.FulfillmentDeadlineMono != nil {
		v := *e.FulfillmentDeadlineMono
		cp.FulfillmentDeadlineMono = &v
	}
	if e.ClaimDeadlineMono != nil {
		v := *e.ClaimDeadlineMono
		cp.ClaimDeadlineMono = &v
	}
	if e.BuyerTxIds.WithdrawTxid != nil {
		v := *e.BuyerTxIds.WithdrawTxid
		cp.BuyerTxIds.WithdrawTxid = &v
	}
	if e.SellerTxIds.FulfillTxid != nil {
		v := *e.SellerTxIds.FulfillTxid
		cp.SellerTxIds.FulfillTxid = &v
	}
	if e.SellerTxIds.BlockHeight != nil {
		v := *e.SellerTxIds.BlockHeight
		cp.SellerTxIds.BlockHeight = &v
	}
	if e.SellerTxIds.ClaimTxid != nil {
		v := *e.SellerTxIds.ClaimTxid
		cp.SellerTxIds.ClaimTxid = &v
	}
	if e.SellerTxIds.RefundTxid != nil {
		v := *e.SellerTxIds.RefundTxid
		cp.SellerTxIds.RefundTxid = &v
	}
	return &cp
}

// StateChange — исходящая запись о смене состояния для транспортного слоя.
type StateChange struct {
	OrderID          uuid.UUID       `json:"order_id"`
	NewState         string          `json:"new_state"`
	WithdrawalLocked bool            `json:"withdrawal_locked"`
	Timestamp        TripleTimestamp `json:"triple_timestamp"`
}
