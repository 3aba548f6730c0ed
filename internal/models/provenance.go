package models

// TxRef — ссылка на транзакцию в цепочке, обосновывающая переход состояния.
type TxRef struct {
	ChainID     uint64 `json:"chain_id"`
	TxID        string `json:"txid"`
	BlockHeight uint64 `json:"block_height"`
}

// IsZero сообщает, что ссылка не заполнена.
func (r TxRef) IsZero() bool {
	return r.ChainID == 0 && r.TxID == "" && r.BlockHeight == 0
}

// BuyerTxIds — провенанс покупателя. CommitTxid обязателен и неизменяем,
// WithdrawTxid выставляется не более одного раза.
type BuyerTxIds struct {
	ChainID      uint64 `json:"chain_id"`
	CommitTxid   TxRef  `json:"commit_txid"`
	WithdrawTxid *TxRef `json:"withdraw_txid,omitempty"`
}

// SellerTxIds — провенанс продавца. В терминальном расчётном состоянии
// заполнен ровно один из ClaimTxid/RefundTxid.
type SellerTxIds struct {
	ChainID     uint64  `json:"chain_id"`
	AcceptTxid  TxRef   `json:"accept_txid"`
	FulfillTxid *TxRef  `json:"fulfill_txid,omitempty"`
	BlockHeight *uint64 `json:"block_height,omitempty"`
	ClaimTxid   *TxRef  `json:"claim_txid,omitempty"`
	RefundTxid  *TxRef  `json:"refund_txid,omitempty"`
}

// SettlementSet сообщает, выставлен ли хотя бы один расчётный txid.
func (s SellerTxIds) SettlementSet() bool {
	return s.ClaimTxid != nil || s.RefundTxid != nil
}
