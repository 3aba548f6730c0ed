package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"

	"github.com/coreprover/escrow-backend/internal/models"
)

var ErrEscrowNotFound = errors.New("escrow not found")

type EscrowRepository struct {
	db *sqlx.DB
}

func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// escrowRow — плоское представление для Postgres: скалярные поля колонками,
// профиль, провенанс и тройные метки — jsonb.
type escrowRow struct {
	OrderID          uuid.UUID       `db:"order_id"`
	Buyer            string          `db:"buyer"`
	Seller           string          `db:"seller"`
	BuyerAmount      decimal.Decimal `db:"buyer_amount"`
	SellerCommitment string          `db:"seller_commitment"`
	Profile          types.JSONText  `db:"profile"`

	State            string `db:"state"`
	WithdrawalLocked bool   `db:"withdrawal_locked"`
	LateFulfilled    bool   `db:"late_fulfilled"`

	CreatedAt   types.JSONText `db:"created_at"`
	AcceptedAt  types.JSONText `db:"accepted_at"`
	FulfilledAt types.JSONText `db:"fulfilled_at"`
	SettledAt   types.JSONText `db:"settled_at"`

	AcceptanceDeadlineMono  int64         `db:"acceptance_deadline_mono"`
	FulfillmentDeadlineMono sql.NullInt64 `db:"fulfillment_deadline_mono"`
	ClaimDeadlineMono       sql.NullInt64 `db:"claim_deadline_mono"`

	BuyerTxids  types.JSONText `db:"buyer_txids"`
	SellerTxids types.JSONText `db:"seller_txids"`
}

func toRow(e *models.Escrow) (*escrowRow, error) {
	row := &escrowRow{
		OrderID:                e.OrderID,
		Buyer:                  e.Buyer,
		Seller:                 e.Seller,
		BuyerAmount:            e.BuyerAmount,
		SellerCommitment:       e.SellerCommitment,
		State:                  e.State,
		WithdrawalLocked:       e.WithdrawalLocked,
		LateFulfilled:          e.LateFulfilled,
		AcceptanceDeadlineMono: int64(e.AcceptanceDeadlineMono),
	}
	if e.FulfillmentDeadlineMono != nil {
		row.FulfillmentDeadlineMono = sql.NullInt64{Int64: int64(*e.FulfillmentDeadlineMono), Valid: true}
	}
	if e.ClaimDeadlineMono != nil {
		row.ClaimDeadlineMono = sql.NullInt64{Int64: int64(*e.ClaimDeadlineMono), Valid: true}
	}

	var err error
	if row.Profile, err = json.Marshal(e.Profile); err != nil {
		return nil, fmt.Errorf("escrow repository: marshal profile %w", err)
	}
	if row.CreatedAt, err = json.Marshal(e.CreatedAt); err != nil {
		return nil, fmt.Errorf("escrow repository: marshal created_at %w", err)
	}
	if row.AcceptedAt, err = marshalOptional(e.AcceptedAt); err != nil {
		return nil, err
	}
	if row.FulfilledAt, err = marshalOptional(e.FulfilledAt); err != nil {
		return nil, err
	}
	if row.SettledAt, err = marshalOptional(e.SettledAt); err != nil {
		return nil, err
	}
	if row.BuyerTxids, err = json.Marshal(e.BuyerTxIds); err != nil {
		return nil, fmt.Errorf("escrow repository: marshal buyer_txids %w", err)
	}
	if row.SellerTxids, err = json.Marshal(e.SellerTxIds); err != nil {
		return nil, fmt.Errorf("escrow repository: marshal seller_txids %w", err)
	}
	return row, nil
}

func fromRow(row *escrowRow) (*models.Escrow, error) {
	e := &models.Escrow{
		OrderID:                row.OrderID,
		Buyer:                  row.Buyer,
		Seller:                 row.Seller,
		BuyerAmount:            row.BuyerAmount,
		SellerCommitment:       row.SellerCommitment,
		State:                  row.State,
		WithdrawalLocked:       row.WithdrawalLocked,
		LateFulfilled:          row.LateFulfilled,
		AcceptanceDeadlineMono: uint64(row.AcceptanceDeadlineMono),
	}
	if row.FulfillmentDeadlineMono.Valid {
		v := uint64(row.FulfillmentDeadlineMono.Int64)
		e.FulfillmentDeadlineMono = &v
	}
	if row.ClaimDeadlineMono.Valid {
		v := uint64(row.ClaimDeadlineMono.Int64)
		e.ClaimDeadlineMono = &v
	}

	if err := json.Unmarshal(row.Profile, &e.Profile); err != nil {
		return nil, fmt.Errorf("escrow repository: unmarshal profile %w", err)
	}
	if err := json.Unmarshal(row.CreatedAt, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("escrow repository: unmarshal created_at %w", err)
	}
	var err error
	if e.AcceptedAt, err = unmarshalOptional(row.AcceptedAt); err != nil {
		return nil, err
	}
	if e.FulfilledAt, err = unmarshalOptional(row.FulfilledAt); err != nil {
		return nil, err
	}
	if e.SettledAt, err = unmarshalOptional(row.SettledAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(row.BuyerTxids, &e.BuyerTxIds); err != nil {
		return nil, fmt.Errorf("escrow repository: unmarshal buyer_txids %w", err)
	}
	if err := json.Unmarshal(row.SellerTxids, &e.SellerTxIds); err != nil {
		return nil, fmt.Errorf("escrow repository: unmarshal seller_txids %w", err)
	}
	return e, nil
}

func marshalOptional(ts *models.TripleTimestamp) (types.JSONText, error) {
	if ts == nil {
		return types.JSONText("null"), nil
	}
	raw, err := json.Marshal(ts)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: marshal timestamp %w", err)
	}
	return raw, nil
}

func unmarshalOptional(raw types.JSONText) (*models.TripleTimestamp, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var ts models.TripleTimestamp
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil, fmt.Errorf("escrow repository: unmarshal timestamp %w", err)
	}
	return &ts, nil
}

const escrowColumns = `
	order_id, buyer, seller, buyer_amount, seller_commitment, profile,
	state, withdrawal_locked, late_fulfilled,
	created_at, accepted_at, fulfilled_at, settled_at,
	acceptance_deadline_mono, fulfillment_deadline_mono, claim_deadline_mono,
	buyer_txids, seller_txids
`

// Create сохраняет новую запись эскроу.
func (r *EscrowRepository) Create(ctx context.Context, escrow *models.Escrow) error {
	row, err := toRow(escrow)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO escrows (` + escrowColumns + `)
		VALUES (:order_id, :buyer, :seller, :buyer_amount, :seller_commitment, :profile,
			:state, :withdrawal_locked, :late_fulfilled,
			:created_at, :accepted_at, :fulfilled_at, :settled_at,
			:acceptance_deadline_mono, :fulfillment_deadline_mono, :claim_deadline_mono,
			:buyer_txids, :seller_txids)
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("escrow repository: create %w", err)
	}
	return nil
}

// GetByOrderID возвращает эскроу по заказу.
func (r *EscrowRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	var row escrowRow
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE order_id = $1`
	if err := r.db.GetContext(ctx, &row, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("escrow repository: get %w", err)
	}
	return fromRow(&row)
}

// updateEscrow перезаписывает изменяемые поля записи на произвольном
// executor: отдельным запросом или внутри транзакции перехода.
func updateEscrow(ctx context.Context, e sqlx.ExtContext, row *escrowRow) error {
	query := `
		UPDATE escrows SET
			state = :state,
			withdrawal_locked = :withdrawal_locked,
			late_fulfilled = :late_fulfilled,
			accepted_at = :accepted_at,
			fulfilled_at = :fulfilled_at,
			settled_at = :settled_at,
			fulfillment_deadline_mono = :fulfillment_deadline_mono,
			claim_deadline_mono = :claim_deadline_mono,
			buyer_txids = :buyer_txids,
			seller_txids = :seller_txids,
			updated_at = NOW()
		WHERE order_id = :order_id
	`
	res, err := sqlx.NamedExecContext(ctx, e, query, row)
	if err != nil {
		return fmt.Errorf("escrow repository: update %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("escrow repository: update rows affected %w", err)
	}
	if affected == 0 {
		return ErrEscrowNotFound
	}
	return nil
}

// Update перезаписывает изменяемые поля записи.
func (r *EscrowRepository) Update(ctx context.Context, escrow *models.Escrow) error {
	row, err := toRow(escrow)
	if err != nil {
		return err
	}
	return updateEscrow(ctx, r.db, row)
}

// UpdateWithDiscount фиксирует переход вместе с выпущенным токеном скидки
// в одной транзакции: осиротевший токен и позднее исполнение без токена
// одинаково невозможны.
func (r *EscrowRepository) UpdateWithDiscount(ctx context.Context, escrow *models.Escrow, token *models.DiscountToken) error {
	row, err := toRow(escrow)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("escrow repository: begin %w", err)
	}
	if err := updateEscrow(ctx, tx, row); err != nil {
		tx.Rollback()
		return err
	}
	if err := insertDiscountToken(ctx, tx, token); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("escrow repository: commit %w", err)
	}
	return nil
}

// Settle фиксирует терминальный расчётный переход вместе с чеком в одной
// транзакции: терминального состояния без чека не существует, а сбой
// вставки чека оставляет эскроу в прежнем состоянии.
func (r *EscrowRepository) Settle(ctx context.Context, escrow *models.Escrow, receipt *models.CoreProverReceipt) error {
	row, err := toRow(escrow)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("escrow repository: begin %w", err)
	}
	if err := updateEscrow(ctx, tx, row); err != nil {
		tx.Rollback()
		return err
	}
	if err := insertReceipt(ctx, tx, receipt); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("escrow repository: commit %w", err)
	}
	return nil
}

// ListActive возвращает эскроу в нетерминальных состояниях — кандидатов
// на проверку дедлайнов.
func (r *EscrowRepository) ListActive(ctx context.Context) ([]models.Escrow, error) {
	var rows []escrowRow
	query := `
		SELECT ` + escrowColumns + `
		FROM escrows
		WHERE state IN ('buyer_committed', 'seller_accepted', 'seller_fulfilled', 'fulfillment_expired', 'expired')
		ORDER BY acceptance_deadline_mono
	`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("escrow repository: list active %w", err)
	}
	escrows := make([]models.Escrow, 0, len(rows))
	for i := range rows {
		e, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *e)
	}
	return escrows, nil
}
