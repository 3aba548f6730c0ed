package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreprover/escrow-backend/internal/models"
	"github.com/coreprover/escrow-backend/internal/pkg/apperror"
)

// settledEscrow собирает эскроу в терминальном расчётном состоянии со всеми
// полями, нужными для валидного чека.
func settledEscrow() *models.Escrow {
	claim := testTxRef(1, "c1a1")
	fulfill := testTxRef(1, "f01f")
	height := uint64(777)
	fulfilled := models.TripleTimestamp{Mono: 100, Unix: 1700000100, ISO: "2023-11-14T22:15:00Z"}
	settled := models.TripleTimestamp{Mono: 200, Unix: 1700000200, ISO: "2023-11-14T22:16:40Z"}

	return &models.Escrow{
		OrderID:     uuid.New(),
		Buyer:       "buyer-1",
		Seller:      "seller-1",
		BuyerAmount: decimal.NewFromInt(2500),
		Profile:     models.DefaultProfile(),
		State:       models.EscrowStateSellerClaimed,
		FulfilledAt: &fulfilled,
		SettledAt:   &settled,
		BuyerTxIds:  models.BuyerTxIds{ChainID: 1, CommitTxid: testTxRef(1, "c077")},
		SellerTxIds: models.SellerTxIds{
			ChainID:     1,
			AcceptTxid:  testTxRef(1, "acce"),
			FulfillTxid: &fulfill,
			BlockHeight: &height,
			ClaimTxid:   &claim,
		},
	}
}

func TestReceiptService_Build_Claim(t *testing.T) {
	svc := NewReceiptService(newMemReceiptRepo())

	escrow := settledEscrow()
	receipt, err := svc.Build(escrow)
	require.NoError(t, err)

	assert.Equal(t, escrow.OrderID, receipt.OrderID)
	assert.True(t, receipt.OrderAmount.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, uint64(100), receipt.FulfillmentMono)
	assert.Equal(t, uint64(1700000100), receipt.FulfillmentUnix)
	assert.Equal(t, "2023-11-14T22:15:00Z", receipt.FulfillmentISO)
	assert.Equal(t, uint64(200), receipt.SettlementMono)
	assert.Equal(t, uint64(777), receipt.SellerBlockHeight)
	require.NotNil(t, receipt.SellerClaimTxid)
	assert.Nil(t, receipt.SellerRefundTxid)

	// Исполнение было в срок: полей скидки нет.
	assert.Equal(t, uint8(0), receipt.DiscountPct)
	assert.Equal(t, uint64(0), receipt.DiscountExpirationUnix)
}

func TestReceiptService_Build_LateRefundCarriesDiscount(t *testing.T) {
	svc := NewReceiptService(newMemReceiptRepo())

	escrow := settledEscrow()
	escrow.State = models.EscrowStateSellerRefunded
	escrow.LateFulfilled = true
	refund := testTxRef(1, "4ef0")
	escrow.SellerTxIds.ClaimTxid = nil
	escrow.SellerTxIds.RefundTxid = &refund

	receipt, err := svc.Build(escrow)
	require.NoError(t, err)
	assert.Nil(t, receipt.SellerClaimTxid)
	require.NotNil(t, receipt.SellerRefundTxid)
	assert.Equal(t, uint8(10), receipt.DiscountPct)
	assert.Equal(t, escrow.FulfilledAt.Unix+90*86400, receipt.DiscountExpirationUnix)
}

func TestReceiptService_Build_ValidationFailures(t *testing.T) {
	svc := NewReceiptService(newMemReceiptRepo())

	t.Run("нет расчётного txid", func(t *testing.T) {
		escrow := settledEscrow()
		escrow.SellerTxIds.ClaimTxid = nil
		_, err := svc.Build(escrow)
		assert.True(t, apperror.IsCode(err, apperror.ErrCodeMissingSettlement))
	})

	t.Run("оба расчётных txid", func(t *testing.T) {
		escrow := settledEscrow()
		refund := testTxRef(1, "4ef0")
		escrow.SellerTxIds.RefundTxid = &refund
		_, err := svc.Build(escrow)
		assert.True(t, apperror.IsCode(err, apperror.ErrCodeMissingSettlement))
	})

	t.Run("нет метки исполнения", func(t *testing.T) {
		escrow := settledEscrow()
		escrow.FulfilledAt = nil
		_, err := svc.Build(escrow)
		assert.True(t, apperror.IsCode(err, apperror.ErrCodeMissingFulfillment))
	})

	t.Run("нет высоты блока", func(t *testing.T) {
		escrow := settledEscrow()
		escrow.SellerTxIds.BlockHeight = nil
		_, err := svc.Build(escrow)
		assert.True(t, apperror.IsCode(err, apperror.ErrCodeMissingFulfillment))
	})

	t.Run("нет метки расчёта", func(t *testing.T) {
		escrow := settledEscrow()
		escrow.SettledAt = nil
		_, err := svc.Build(escrow)
		assert.True(t, apperror.IsCode(err, apperror.ErrCodeEmptyField))
	})

	t.Run("нет fulfill txid", func(t *testing.T) {
		escrow := settledEscrow()
		escrow.SellerTxIds.FulfillTxid = nil
		_, err := svc.Build(escrow)
		assert.True(t, apperror.IsCode(err, apperror.ErrCodeEmptyField))
	})
}

func TestReceiptValidate_EmptySettlementTxid(t *testing.T) {
	svc := NewReceiptService(newMemReceiptRepo())

	escrow := settledEscrow()
	receipt, err := svc.Build(escrow)
	require.NoError(t, err)

	empty := ""
	receipt.SellerClaimTxid = &empty
	err = Validate(receipt)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeEmptyField))
}

func TestReceipt_JSONRoundTrip(t *testing.T) {
	svc := NewReceiptService(newMemReceiptRepo())

	escrow := settledEscrow()
	escrow.LateFulfilled = true
	receipt, err := svc.Build(escrow)
	require.NoError(t, err)

	raw, err := json.Marshal(receipt)
	require.NoError(t, err)

	var decoded models.CoreProverReceipt
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, receipt.OrderID, decoded.OrderID)
	assert.True(t, receipt.OrderAmount.Equal(decoded.OrderAmount))
	assert.Equal(t, receipt.FulfillmentISO, decoded.FulfillmentISO)
	assert.Equal(t, receipt.SettlementISO, decoded.SettlementISO)
	assert.Equal(t, receipt.DiscountPct, decoded.DiscountPct)
	assert.Equal(t, receipt.DiscountExpirationUnix, decoded.DiscountExpirationUnix)
	assert.Equal(t, receipt.SellerBlockHeight, decoded.SellerBlockHeight)
	require.NotNil(t, decoded.SellerClaimTxid)
	assert.Equal(t, *receipt.SellerClaimTxid, *decoded.SellerClaimTxid)
	assert.Nil(t, decoded.SellerRefundTxid)
}

func TestReceiptService_GetReceipt(t *testing.T) {
	repo := newMemReceiptRepo()
	svc := NewReceiptService(repo)
	ctx := context.Background()

	escrow := settledEscrow()
	receipt, err := svc.Build(escrow)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, receipt))

	got, err := svc.GetReceipt(ctx, escrow.OrderID)
	require.NoError(t, err)
	assert.Equal(t, receipt.OrderID, got.OrderID)
}
