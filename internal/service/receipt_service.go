package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/coreprover/escrow-backend/internal/models"
	"github.com/coreprover/escrow-backend/internal/pkg/apperror"
)

// ReceiptRepository — хранилище канонических чеков. Вставка сюда не входит:
// чек записывается в одной транзакции с терминальным переходом.
type ReceiptRepository interface {
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.CoreProverReceipt, error)
}

// ReceiptService собирает и валидирует CoreProverReceipt ровно один раз,
// на терминальном расчётном переходе. Чек, не прошедший валидацию,
// не персистится и не рассылается.
type ReceiptService struct {
	repo ReceiptRepository
}

func NewReceiptService(repo ReceiptRepository) *ReceiptService {
	return &ReceiptService{repo: repo}
}

// Build собирает чек из терминального эскроу и валидирует его.
func (s *ReceiptService) Build(escrow *models.Escrow) (*models.CoreProverReceipt, error) {
	receipt := &models.CoreProverReceipt{
		OrderID:     escrow.OrderID,
		OrderAmount: escrow.BuyerAmount,

		BuyerChainID:    escrow.BuyerTxIds.ChainID,
		BuyerCommitTxid: escrow.BuyerTxIds.CommitTxid.TxID,

		SellerChainID:    escrow.SellerTxIds.ChainID,
		SellerAcceptTxid: escrow.SellerTxIds.AcceptTxid.TxID,
	}

	if escrow.FulfilledAt != nil {
		receipt.FulfillmentMono = escrow.FulfilledAt.Mono
		receipt.FulfillmentUnix = escrow.FulfilledAt.Unix
		receipt.FulfillmentISO = escrow.FulfilledAt.ISO
	}
	if escrow.SettledAt != nil {
		receipt.SettlementMono = escrow.SettledAt.Mono
		receipt.SettlementUnix = escrow.SettledAt.Unix
		receipt.SettlementISO = escrow.SettledAt.ISO
	}

	if escrow.LateFulfilled && escrow.Profile.EnablesLateDiscount {
		receipt.DiscountPct = escrow.Profile.LateDiscountPct
		if escrow.FulfilledAt != nil {
			receipt.DiscountExpirationUnix = escrow.FulfilledAt.Unix + escrow.Profile.DiscountExpirationDays*86400
		}
	}

	if escrow.SellerTxIds.FulfillTxid != nil {
		receipt.SellerFulfillTxid = escrow.SellerTxIds.FulfillTxid.TxID
	}
	if escrow.SellerTxIds.BlockHeight != nil {
		receipt.SellerBlockHeight = *escrow.SellerTxIds.BlockHeight
	}
	if escrow.SellerTxIds.ClaimTxid != nil {
		v := escrow.SellerTxIds.ClaimTxid.TxID
		receipt.SellerClaimTxid = &v
	}
	if escrow.SellerTxIds.RefundTxid != nil {
		v := escrow.SellerTxIds.RefundTxid.TxID
		receipt.SellerRefundTxid = &v
	}

	if err := Validate(receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// GetReceipt возвращает чек по заказу.
func (s *ReceiptService) GetReceipt(ctx context.Context, orderID uuid.UUID) (*models.CoreProverReceipt, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

// Validate проверяет инварианты чека: ровно один расчётный txid, полная
// тройная метка исполнения с высотой блока, непустые обязательные строки.
func Validate(r *models.CoreProverReceipt) error {
	if r.SellerClaimTxid != nil && r.SellerRefundTxid != nil {
		return apperror.New(apperror.ErrCodeMissingSettlement, "выставлены оба расчётных txid")
	}
	if r.SellerClaimTxid == nil && r.SellerRefundTxid == nil {
		return apperror.New(apperror.ErrCodeMissingSettlement, "расчётный txid отсутствует")
	}
	if r.FulfillmentMono == 0 && r.FulfillmentUnix == 0 {
		return apperror.New(apperror.ErrCodeMissingFulfillment, "тройная метка исполнения отсутствует")
	}
	if r.SellerBlockHeight == 0 {
		return apperror.New(apperror.ErrCodeMissingFulfillment, "высота блока продавца отсутствует")
	}

	required := map[string]string{
		"fulfillment_iso":     r.FulfillmentISO,
		"settlement_iso":      r.SettlementISO,
		"buyer_commit_txid":   r.BuyerCommitTxid,
		"seller_accept_txid":  r.SellerAcceptTxid,
		"seller_fulfill_txid": r.SellerFulfillTxid,
	}
	for field, value := range required {
		if value == "" {
			return apperror.Newf(apperror.ErrCodeEmptyField, "пустое обязательное поле %s", field)
		}
	}
	if r.SellerClaimTxid != nil && *r.SellerClaimTxid == "" {
		return apperror.New(apperror.ErrCodeEmptyField, "пустое обязательное поле seller_claim_txid")
	}
	if r.SellerRefundTxid != nil && *r.SellerRefundTxid == "" {
		return apperror.New(apperror.ErrCodeEmptyField, "пустое обязательное поле seller_refund_txid")
	}
	return nil
}
