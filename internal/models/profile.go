package models

import "github.com/shopspring/decimal"

// PaymentProfile — объявленная продавцом конфигурация заказа.
// Неизменяема на протяжении жизни эскроу.
type PaymentProfile struct {
	CommitmentType         string          `json:"commitment_type"`
	CounterEscrowAmount    decimal.Decimal `json:"counter_escrow_amount"`
	AcceptanceWindowSecs   uint64          `json:"acceptance_window_secs"`
	FulfillmentWindowSecs  uint64          `json:"fulfillment_window_secs"`
	ClaimWindowSecs        uint64          `json:"claim_window_secs"`
	AllowsTimedRelease     bool            `json:"allows_timed_release"`
	TimedReleaseDelaySecs  uint64          `json:"timed_release_delay_secs"`
	EnablesLateDiscount    bool            `json:"enables_late_discount"`
	LateDiscountPct        uint8           `json:"late_discount_pct"`
	DiscountExpirationDays uint64          `json:"discount_expiration_days"`
}

// DefaultProfile возвращает профиль «доставка пиццы»: 30 минут на принятие,
// час на исполнение, час на клейм, таймированный релиз включён,
// 10% скидка за опоздание сроком 90 дней.
func DefaultProfile() PaymentProfile {
	return PaymentProfile{
		CommitmentType:         CommitmentTypeLegalSignature,
		CounterEscrowAmount:    decimal.Zero,
		AcceptanceWindowSecs:   1800,
		FulfillmentWindowSecs:  3600,
		ClaimWindowSecs:        3600,
		AllowsTimedRelease:     true,
		TimedReleaseDelaySecs:  0,
		EnablesLateDiscount:    true,
		LateDiscountPct:        10,
		DiscountExpirationDays: 90,
	}
}
