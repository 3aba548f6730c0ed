package provenance

import (
	"regexp"

	"github.com/coreprover/escrow-backend/internal/models"
	"github.com/coreprover/escrow-backend/internal/pkg/apperror"
)

// txidPattern: 0x-префикс плюс 64 hex-символа, всего 66.
var txidPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidateTxRef проверяет формат ссылки на транзакцию. Чистая функция,
// без побочных эффектов.
func ValidateTxRef(ref models.TxRef) error {
	if !txidPattern.MatchString(ref.TxID) {
		return apperror.Newf(apperror.ErrCodeMalformedTxid, "невалидный txid %q", ref.TxID)
	}
	if ref.ChainID == 0 {
		return apperror.New(apperror.ErrCodeMalformedTxid, "chain_id должен быть положительным")
	}
	return nil
}

// Ledger — привратник между сырыми событиями наблюдателя цепочки и машиной
// состояний. Единственное место, где конструируются BuyerTxIds/SellerTxIds.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// NewBuyerTxIds создаёт провенанс покупателя. Commit txid обязателен
// и после этого неизменяем.
func (l *Ledger) NewBuyerTxIds(chainID uint64, commit models.TxRef) (models.BuyerTxIds, error) {
	if err := ValidateTxRef(commit); err != nil {
		return models.BuyerTxIds{}, err
	}
	if commit.ChainID != chainID {
		return models.BuyerTxIds{}, apperror.Newf(apperror.ErrCodeChainMismatch,
			"chain_id коммита %d не совпадает с chain_id покупателя %d", commit.ChainID, chainID)
	}
	return models.BuyerTxIds{ChainID: chainID, CommitTxid: commit}, nil
}

// SetWithdraw выставляет txid вывода средств. Не более одного раза.
func (l *Ledger) SetWithdraw(b *models.BuyerTxIds, ref models.TxRef) error {
	if err := ValidateTxRef(ref); err != nil {
		return err
	}
	if ref.ChainID != b.ChainID {
		return apperror.Newf(apperror.ErrCodeChainMismatch,
			"chain_id вывода %d не совпадает с chain_id покупателя %d", ref.ChainID, b.ChainID)
	}
	if b.WithdrawTxid != nil {
		return apperror.New(apperror.ErrCodeDuplicateSettlement, "withdraw txid уже выставлен")
	}
	b.WithdrawTxid = &ref
	return nil
}

// NewSellerTxIds создаёт провенанс продавца с обязательным accept txid.
func (l *Ledger) NewSellerTxIds(chainID uint64, accept models.TxRef) (models.SellerTxIds, error) {
	if err := ValidateTxRef(accept); err != nil {
		return models.SellerTxIds{}, err
	}
	if accept.ChainID != chainID {
		return models.SellerTxIds{}, apperror.Newf(apperror.ErrCodeChainMismatch,
			"chain_id принятия %d не совпадает с chain_id продавца %d", accept.ChainID, chainID)
	}
	return models.SellerTxIds{ChainID: chainID, AcceptTxid: accept}, nil
}

// SetFulfill записывает txid исполнения и высоту блока.
func (l *Ledger) SetFulfill(s *models.SellerTxIds, ref models.TxRef, height uint64) error {
	if err := ValidateTxRef(ref); err != nil {
		return err
	}
	if ref.ChainID != s.ChainID {
		return apperror.Newf(apperror.ErrCodeChainMismatch,
			"chain_id исполнения %d не совпадает с chain_id продавца %d", ref.ChainID, s.ChainID)
	}
	s.FulfillTxid = &ref
	s.BlockHeight = &height
	return nil
}

// SetClaim финализирует расчёт клеймом. Второй расчётный txid запрещён.
func (l *Ledger) SetClaim(s *models.SellerTxIds, ref models.TxRef) error {
	if err := ValidateTxRef(ref); err != nil {
		return err
	}
	if ref.ChainID != s.ChainID {
		return apperror.Newf(apperror.ErrCodeChainMismatch,
			"chain_id клейма %d не совпадает с chain_id продавца %d", ref.ChainID, s.ChainID)
	}
	if s.SettlementSet() {
		return apperror.New(apperror.ErrCodeDuplicateSettlement, "расчётный txid уже выставлен")
	}
	s.ClaimTxid = &ref
	return nil
}

// SetRefund финализирует расчёт возвратом. Второй расчётный txid запрещён.
func (l *Ledger) SetRefund(s *models.SellerTxIds, ref models.TxRef) error {
	if err := ValidateTxRef(ref); err != nil {
		return err
	}
	if ref.ChainID != s.ChainID {
		return apperror.Newf(apperror.ErrCodeChainMismatch,
			"chain_id возврата %d не совпадает с chain_id продавца %d", ref.ChainID, s.ChainID)
	}
	if s.SettlementSet() {
		return apperror.New(apperror.ErrCodeDuplicateSettlement, "расчётный txid уже выставлен")
	}
	s.RefundTxid = &ref
	return nil
}

// VerifySettled проверяет инвариант «ровно один из claim/refund» —
// обязательное условие полноты SellerTxIds в терминальном состоянии.
func (l *Ledger) VerifySettled(s models.SellerTxIds) error {
	if s.ClaimTxid != nil && s.RefundTxid != nil {
		return apperror.New(apperror.ErrCodeDuplicateSettlement, "выставлены оба расчётных txid")
	}
	if s.ClaimTxid == nil && s.RefundTxid == nil {
		return apperror.New(apperror.ErrCodeMissingSettlement, "расчётный txid отсутствует")
	}
	return nil
}
