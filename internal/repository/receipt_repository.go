package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/coreprover/escrow-backend/internal/models"
)

var ErrReceiptNotFound = errors.New("receipt not found")

type ReceiptRepository struct {
	db *sqlx.DB
}

func NewReceiptRepository(db *sqlx.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

type receiptRow struct {
	OrderID     uuid.UUID       `db:"order_id"`
	OrderAmount decimal.Decimal `db:"order_amount"`

	FulfillmentMono int64  `db:"fulfillment_mono"`
	FulfillmentUnix int64  `db:"fulfillment_unix"`
	FulfillmentISO  string `db:"fulfillment_iso"`

	SettlementMono int64  `db:"settlement_mono"`
	SettlementUnix int64  `db:"settlement_unix"`
	SettlementISO  string `db:"settlement_iso"`

	DiscountPct            int16 `db:"discount_pct"`
	DiscountExpirationUnix int64 `db:"discount_expiration_unix"`

	BuyerChainID    int64  `db:"buyer_chain_id"`
	BuyerCommitTxid string `db:"buyer_commit_txid"`

	SellerChainID     int64  `db:"seller_chain_id"`
	SellerAcceptTxid  string `db:"seller_accept_txid"`
	SellerFulfillTxid string `db:"seller_fulfill_txid"`
	SellerBlockHeight int64  `db:"seller_block_height"`

	SellerClaimTxid  sql.NullString `db:"seller_claim_txid"`
	SellerRefundTxid sql.NullString `db:"seller_refund_txid"`
}

func toReceiptRow(r *models.CoreProverReceipt) *receiptRow {
	row := &receiptRow{
		OrderID:                r.OrderID,
		OrderAmount:            r.OrderAmount,
		FulfillmentMono:        int64(r.FulfillmentMono),
		FulfillmentUnix:        int64(r.FulfillmentUnix),
		FulfillmentISO:         r.FulfillmentISO,
		SettlementMono:         int64(r.SettlementMono),
		SettlementUnix:         int64(r.SettlementUnix),
		SettlementISO:          r.SettlementISO,
		DiscountPct:            int16(r.DiscountPct),
		DiscountExpirationUnix: int64(r.DiscountExpirationUnix),
		BuyerChainID:           int64(r.BuyerChainID),
		BuyerCommitTxid:        r.BuyerCommitTxid,
		SellerChainID:          int64(r.SellerChainID),
		SellerAcceptTxid:       r.SellerAcceptTxid,
		SellerFulfillTxid:      r.SellerFulfillTxid,
		SellerBlockHeight:      int64(r.SellerBlockHeight),
	}
	if r.SellerClaimTxid != nil {
		row.SellerClaimTxid = sql.NullString{String: *r.SellerClaimTxid, Valid: true}
	}
	if r.SellerRefundTxid != nil {
		row.SellerRefundTxid = sql.NullString{String: *r.SellerRefundTxid, Valid: true}
	}
	return row
}

func fromReceiptRow(row *receiptRow) *models.CoreProverReceipt {
	r := &models.CoreProverReceipt{
		OrderID:                row.OrderID,
		OrderAmount:            row.OrderAmount,
		FulfillmentMono:        uint64(row.FulfillmentMono),
		FulfillmentUnix:        uint64(row.FulfillmentUnix),
		FulfillmentISO:         row.FulfillmentISO,
		SettlementMono:         uint64(row.SettlementMono),
		SettlementUnix:         uint64(row.SettlementUnix),
		SettlementISO:          row.SettlementISO,
		DiscountPct:            uint8(row.DiscountPct),
		DiscountExpirationUnix: uint64(row.DiscountExpirationUnix),
		BuyerChainID:           uint64(row.BuyerChainID),
		BuyerCommitTxid:        row.BuyerCommitTxid,
		SellerChainID:          uint64(row.SellerChainID),
		SellerAcceptTxid:       row.SellerAcceptTxid,
		SellerFulfillTxid:      row.SellerFulfillTxid,
		SellerBlockHeight:      uint64(row.SellerBlockHeight),
	}
	if row.SellerClaimTxid.Valid {
		v := row.SellerClaimTxid.String
		r.SellerClaimTxid = &v
	}
	if row.SellerRefundTxid.Valid {
		v := row.SellerRefundTxid.String
		r.SellerRefundTxid = &v
	}
	return r
}

const receiptColumns = `
	order_id, order_amount,
	fulfillment_mono, fulfillment_unix, fulfillment_iso,
	settlement_mono, settlement_unix, settlement_iso,
	discount_pct, discount_expiration_unix,
	buyer_chain_id, buyer_commit_txid,
	seller_chain_id, seller_accept_txid, seller_fulfill_txid, seller_block_height,
	seller_claim_txid, seller_refund_txid
`

// insertReceipt вставляет чек на произвольном executor. Чек создаётся один
// раз, внутри транзакции терминального перехода (EscrowRepository.Settle).
func insertReceipt(ctx context.Context, e sqlx.ExtContext, receipt *models.CoreProverReceipt) error {
	row := toReceiptRow(receipt)
	query := `
		INSERT INTO receipts (` + receiptColumns + `)
		VALUES (:order_id, :order_amount,
			:fulfillment_mono, :fulfillment_unix, :fulfillment_iso,
			:settlement_mono, :settlement_unix, :settlement_iso,
			:discount_pct, :discount_expiration_unix,
			:buyer_chain_id, :buyer_commit_txid,
			:seller_chain_id, :seller_accept_txid, :seller_fulfill_txid, :seller_block_height,
			:seller_claim_txid, :seller_refund_txid)
	`
	if _, err := sqlx.NamedExecContext(ctx, e, query, row); err != nil {
		return fmt.Errorf("receipt repository: create %w", err)
	}
	return nil
}

// GetByOrderID возвращает чек по заказу.
func (r *ReceiptRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.CoreProverReceipt, error) {
	var row receiptRow
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE order_id = $1`
	if err := r.db.GetContext(ctx, &row, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("receipt repository: get %w", err)
	}
	return fromReceiptRow(&row), nil
}
