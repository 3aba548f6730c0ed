package service

import (
	"context"
	"errors"

	"github.com/coreprover/escrow-backend/internal/clock"
	"github.com/coreprover/escrow-backend/internal/models"
	"github.com/coreprover/escrow-backend/internal/pkg/apperror"
	"github.com/coreprover/escrow-backend/internal/repository"
)

// DiscountRepository — хранилище токенов скидки. Redeem обязан быть
// атомарным test-and-set по флагу redeemed, а не read-then-write:
// это закрывает гонку двойного погашения. Вставка токена сюда не входит:
// токен записывается в одной транзакции с породившим его переходом.
type DiscountRepository interface {
	GetByNullifier(ctx context.Context, nullifier string) (*models.DiscountToken, error)
	Redeem(ctx context.Context, nullifier string) (*models.DiscountToken, error)
}

// DiscountService — движок скидок за позднее исполнение. Чистый компонент:
// от машины состояний зависит только триггером выпуска.
type DiscountService struct {
	repo  DiscountRepository
	clock clock.TripleClock
}

func NewDiscountService(repo DiscountRepository, clk clock.TripleClock) *DiscountService {
	return &DiscountService{repo: repo, clock: clk}
}

// Issue выпускает один токен на позднее исполнение. Срок действия считается
// от unix-метки перехода, породившего токен. Токен не персистится здесь:
// запись делает машина состояний в транзакции самого перехода.
func (s *DiscountService) Issue(escrow *models.Escrow, now models.TripleTimestamp) (*models.DiscountToken, error) {
	nullifier, err := newNullifier(escrow.OrderID)
	if err != nil {
		return nil, err
	}
	return &models.DiscountToken{
		ReceiptID:      escrow.OrderID,
		Pct:            escrow.Profile.LateDiscountPct,
		ExpirationUnix: now.Unix + escrow.Profile.DiscountExpirationDays*86400,
		Redeemed:       false,
		Nullifier:      nullifier,
	}, nil
}

// Redeem погашает токен по nullifier. Повторное погашение безопасно:
// вторая попытка получает AlreadyRedeemed и не имеет побочных эффектов.
func (s *DiscountService) Redeem(ctx context.Context, req models.RedeemRequest) (*models.DiscountApplied, error) {
	token, err := s.repo.GetByNullifier(ctx, req.Nullifier)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, apperror.ErrDiscountNotFound
		}
		return nil, err
	}

	if token.Pct != req.ClaimedPct || token.ExpirationUnix != req.ClaimedExpiration {
		return nil, apperror.New(apperror.ErrCodeDiscountClaim,
			"заявленные параметры скидки не совпадают с выпущенными")
	}

	now := s.clock.Now()
	if now.Unix > token.ExpirationUnix {
		return nil, apperror.New(apperror.ErrCodeDiscountExpired, "срок действия скидки истёк")
	}

	redeemed, err := s.repo.Redeem(ctx, req.Nullifier)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyRedeemed) {
			return nil, apperror.New(apperror.ErrCodeAlreadyRedeemed, "скидка уже погашена")
		}
		return nil, err
	}

	return &models.DiscountApplied{ReceiptID: redeemed.ReceiptID, Pct: redeemed.Pct}, nil
}
