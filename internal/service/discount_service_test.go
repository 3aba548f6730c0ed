package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreprover/escrow-backend/internal/clock"
	"github.com/coreprover/escrow-backend/internal/models"
	"github.com/coreprover/escrow-backend/internal/pkg/apperror"
)

func issueTestToken(t *testing.T, svc *DiscountService, repo *memDiscountRepo, clk *clock.ManualClock) *models.DiscountToken {
	t.Helper()
	escrow := &models.Escrow{
		OrderID:     uuid.New(),
		BuyerAmount: decimal.NewFromInt(100),
		Profile:     models.DefaultProfile(),
	}
	token, err := svc.Issue(escrow, clk.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), token))
	return token
}

func TestDiscountService_IssueAndRedeem(t *testing.T) {
	clk := clock.NewManualClock(1700000000)
	repo := newMemDiscountRepo()
	svc := NewDiscountService(repo, clk)
	ctx := context.Background()

	token := issueTestToken(t, svc, repo, clk)
	assert.Equal(t, uint8(10), token.Pct)
	assert.Equal(t, uint64(1700000000)+90*86400, token.ExpirationUnix)
	assert.NotEmpty(t, token.Nullifier)
	assert.Len(t, token.Nullifier, 64)

	applied, err := svc.Redeem(ctx, models.RedeemRequest{
		Nullifier:         token.Nullifier,
		ClaimedPct:        token.Pct,
		ClaimedExpiration: token.ExpirationUnix,
	})
	require.NoError(t, err)
	assert.Equal(t, token.ReceiptID, applied.ReceiptID)
	assert.Equal(t, uint8(10), applied.Pct)
}

func TestDiscountService_RedeemTwice(t *testing.T) {
	clk := clock.NewManualClock(1700000000)
	repo := newMemDiscountRepo()
	svc := NewDiscountService(repo, clk)
	ctx := context.Background()

	token := issueTestToken(t, svc, repo, clk)
	req := models.RedeemRequest{
		Nullifier:         token.Nullifier,
		ClaimedPct:        token.Pct,
		ClaimedExpiration: token.ExpirationUnix,
	}

	_, err := svc.Redeem(ctx, req)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, req)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeAlreadyRedeemed))
}

func TestDiscountService_RedeemUnknownNullifier(t *testing.T) {
	clk := clock.NewManualClock(1700000000)
	svc := NewDiscountService(newMemDiscountRepo(), clk)

	_, err := svc.Redeem(context.Background(), models.RedeemRequest{Nullifier: "deadbeef"})
	assert.True(t, apperror.IsNotFound(err))
}

func TestDiscountService_RedeemClaimMismatch(t *testing.T) {
	clk := clock.NewManualClock(1700000000)
	repo := newMemDiscountRepo()
	svc := NewDiscountService(repo, clk)
	ctx := context.Background()

	token := issueTestToken(t, svc, repo, clk)

	// Завышенный процент.
	_, err := svc.Redeem(ctx, models.RedeemRequest{
		Nullifier:         token.Nullifier,
		ClaimedPct:        50,
		ClaimedExpiration: token.ExpirationUnix,
	})
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeDiscountClaim))

	// Чужой срок действия.
	_, err = svc.Redeem(ctx, models.RedeemRequest{
		Nullifier:         token.Nullifier,
		ClaimedPct:        token.Pct,
		ClaimedExpiration: token.ExpirationUnix + 1,
	})
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeDiscountClaim))

	// Токен не тронут: корректная заявка всё ещё проходит.
	_, err = svc.Redeem(ctx, models.RedeemRequest{
		Nullifier:         token.Nullifier,
		ClaimedPct:        token.Pct,
		ClaimedExpiration: token.ExpirationUnix,
	})
	assert.NoError(t, err)
}

func TestDiscountService_RedeemExpired(t *testing.T) {
	clk := clock.NewManualClock(1700000000)
	repo := newMemDiscountRepo()
	svc := NewDiscountService(repo, clk)

	token := issueTestToken(t, svc, repo, clk)

	clk.Advance(90*86400 + 1)
	_, err := svc.Redeem(context.Background(), models.RedeemRequest{
		Nullifier:         token.Nullifier,
		ClaimedPct:        token.Pct,
		ClaimedExpiration: token.ExpirationUnix,
	})
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeDiscountExpired))
}

func TestDiscountService_ConcurrentRedeem_OneWinner(t *testing.T) {
	clk := clock.NewManualClock(1700000000)
	repo := newMemDiscountRepo()
	svc := NewDiscountService(repo, clk)
	ctx := context.Background()

	token := issueTestToken(t, svc, repo, clk)
	req := models.RedeemRequest{
		Nullifier:         token.Nullifier,
		ClaimedPct:        token.Pct,
		ClaimedExpiration: token.ExpirationUnix,
	}

	const attempts = 32
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Redeem(ctx, req)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.True(t, apperror.IsCode(err, apperror.ErrCodeAlreadyRedeemed))
		}
	}
	assert.Equal(t, 1, wins, "из конкурентных погашений должно преуспеть ровно одно")
}

func TestNewNullifier_Unique(t *testing.T) {
	orderID := uuid.New()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		n, err := newNullifier(orderID)
		require.NoError(t, err)
		if _, dup := seen[n]; dup {
			t.Fatalf("повторный nullifier для одного заказа: %s", n)
		}
		seen[n] = struct{}{}
	}
}
