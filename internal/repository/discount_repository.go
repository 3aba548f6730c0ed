package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coreprover/escrow-backend/internal/models"
)

// Ошибки уровня хранилища токенов.
var (
	ErrTokenNotFound   = errors.New("discount token not found")
	ErrAlreadyRedeemed = errors.New("discount token already redeemed")
)

type DiscountRepository struct {
	db *sqlx.DB
}

func NewDiscountRepository(db *sqlx.DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

type discountRow struct {
	ReceiptID      uuid.UUID `db:"receipt_id"`
	Pct            int16     `db:"pct"`
	ExpirationUnix int64     `db:"expiration_unix"`
	Redeemed       bool      `db:"redeemed"`
	Nullifier      string    `db:"nullifier"`
}

func fromDiscountRow(row *discountRow) *models.DiscountToken {
	return &models.DiscountToken{
		ReceiptID:      row.ReceiptID,
		Pct:            uint8(row.Pct),
		ExpirationUnix: uint64(row.ExpirationUnix),
		Redeemed:       row.Redeemed,
		Nullifier:      row.Nullifier,
	}
}

// insertDiscountToken вставляет токен на произвольном executor. Токен
// персистится только внутри транзакции породившего его перехода состояния.
func insertDiscountToken(ctx context.Context, e sqlx.ExtContext, token *models.DiscountToken) error {
	query := `
		INSERT INTO discount_tokens (receipt_id, pct, expiration_unix, redeemed, nullifier)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := e.ExecContext(ctx, query,
		token.ReceiptID, int16(token.Pct), int64(token.ExpirationUnix), token.Redeemed, token.Nullifier); err != nil {
		return fmt.Errorf("discount repository: create %w", err)
	}
	return nil
}

// GetByNullifier возвращает токен по nullifier.
func (r *DiscountRepository) GetByNullifier(ctx context.Context, nullifier string) (*models.DiscountToken, error) {
	var row discountRow
	query := `SELECT receipt_id, pct, expiration_unix, redeemed, nullifier FROM discount_tokens WHERE nullifier = $1`
	if err := r.db.GetContext(ctx, &row, query, nullifier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("discount repository: get %w", err)
	}
	return fromDiscountRow(&row), nil
}

// Redeem атомарно переводит токен в погашенное состояние. Условие в WHERE —
// test-and-set на стороне базы: из конкурентных попыток с одним nullifier
// преуспеет ровно одна.
func (r *DiscountRepository) Redeem(ctx context.Context, nullifier string) (*models.DiscountToken, error) {
	var row discountRow
	query := `
		UPDATE discount_tokens
		SET redeemed = TRUE, redeemed_at = NOW()
		WHERE nullifier = $1 AND redeemed = FALSE
		RETURNING receipt_id, pct, expiration_unix, redeemed, nullifier
	`
	if err := r.db.GetContext(ctx, &row, query, nullifier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Либо токена нет, либо он уже погашен — различаем отдельным чтением.
			if _, getErr := r.GetByNullifier(ctx, nullifier); getErr != nil {
				return nil, getErr
			}
			return nil, ErrAlreadyRedeemed
		}
		return nil, fmt.Errorf("discount repository: redeem %w", err)
	}
	return fromDiscountRow(&row), nil
}
