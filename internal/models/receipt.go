package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CoreProverReceipt — канонический расчётный чек из 17 полей.
// Создаётся один раз при достижении терминального расчётного состояния
// и далее неизменяем. Ровно один из SellerClaimTxid/SellerRefundTxid заполнен.
type CoreProverReceipt struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderAmount decimal.Decimal `json:"order_amount"`

	FulfillmentMono uint64 `json:"fulfillment_mono"`
	FulfillmentUnix uint64 `json:"fulfillment_unix"`
	FulfillmentISO  string `json:"fulfillment_iso"`

	SettlementMono uint64 `json:"settlement_mono"`
	SettlementUnix uint64 `json:"settlement_unix"`
	SettlementISO  string `json:"settlement_iso"`

	DiscountPct            uint8  `json:"discount_pct"`
	DiscountExpirationUnix uint64 `json:"discount_expiration_unix"`

	BuyerChainID    uint64 `json:"buyer_chain_id"`
	BuyerCommitTxid string `json:"buyer_commit_txid"`

	SellerChainID     uint64 `json:"seller_chain_id"`
	SellerAcceptTxid  string `json:"seller_accept_txid"`
	SellerFulfillTxid string `json:"seller_fulfill_txid"`
	SellerBlockHeight uint64 `json:"seller_block_height"`

	SellerClaimTxid  *string `json:"seller_claim_txid,omitempty"`
	SellerRefundTxid *string `json:"seller_refund_txid,omitempty"`
}
