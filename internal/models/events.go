package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Входящие события от наблюдателя цепочки — закрытый набор вариантов,
// по одному на строку таблицы переходов. Неизвестные поля отбрасываются
// на транспортной границе, не внутри машины состояний.

// BuyerCommittedEvent — покупатель зафиксировал средства.
type BuyerCommittedEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	Buyer            string          `json:"buyer"`
	Seller           string          `json:"seller"`
	BuyerAmount      decimal.Decimal `json:"buyer_amount"`
	SellerCommitment string          `json:"seller_commitment"`
	Profile          PaymentProfile  `json:"profile"`
	ChainID          uint64          `json:"chain_id"`
	CommitTxid       TxRef           `json:"commit_txid"`
}

// SellerAcceptedEvent — продавец принял заказ (on-chain).
type SellerAcceptedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	ChainID    uint64    `json:"chain_id"`
	AcceptTxid TxRef     `json:"accept_txid"`
}

// SellerFulfilledEvent — продавец исполнил заказ.
type SellerFulfilledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	FulfillTxid TxRef     `json:"fulfill_txid"`
	BlockHeight uint64    `json:"block_height"`
}

// SellerClaimedEvent — продавец забрал средства.
type SellerClaimedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	ClaimTxid TxRef     `json:"claim_txid"`
}

// SellerRefundedEvent — продавец вернул средства покупателю.
type SellerRefundedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	RefundTxid TxRef     `json:"refund_txid"`
}

// BuyerWithdrawnEvent — покупатель вернул свои средства. Txid опционален:
// вывод может быть внецепочечным.
type BuyerWithdrawnEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	WithdrawTxid *TxRef    `json:"withdraw_txid,omitempty"`
}

// CheckDeadlineRequest — запрос планировщика: не истекло ли активное окно.
// Момент времени передаётся явно, guard вычисляется по нему, а не по времени
// обработки.
type CheckDeadlineRequest struct {
	OrderID uuid.UUID       `json:"order_id"`
	Now     TripleTimestamp `json:"now"`
}

// DisputeEvent — внешний сигнал спора.
type DisputeEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason,omitempty"`
}

// RedeemRequest — запрос на погашение скидки от покупательского слоя.
type RedeemRequest struct {
	Nullifier         string `json:"nullifier"`
	ClaimedPct        uint8  `json:"claimed_pct"`
	ClaimedExpiration uint64 `json:"claimed_expiration"`
}
