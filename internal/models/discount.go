package models

import "github.com/google/uuid"

// DiscountToken — токен скидки за позднее исполнение. Создаётся только
// движком скидок на переходе fulfillment_expired → seller_fulfilled;
// погашается ровно один раз, ключ погашения — Nullifier.
type DiscountToken struct {
	ReceiptID      uuid.UUID `json:"receipt_id"`
	Pct            uint8     `json:"pct"`
	ExpirationUnix uint64    `json:"expiration_unix"`
	Redeemed       bool      `json:"redeemed"`
	Nullifier      string    `json:"-"`
}

// DiscountIssued — публичная часть токена для исходящего уведомления:
// nullifier наружу не отдаётся, он приватен для потока погашения.
type DiscountIssued struct {
	ReceiptID      uuid.UUID `json:"receipt_id"`
	Pct            uint8     `json:"pct"`
	ExpirationUnix uint64    `json:"expiration_unix"`
}

// DiscountApplied — результат успешного погашения.
type DiscountApplied struct {
	ReceiptID uuid.UUID `json:"receipt_id"`
	Pct       uint8     `json:"pct"`
}
