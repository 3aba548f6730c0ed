package service

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coreprover/escrow-backend/internal/logger"
	"github.com/coreprover/escrow-backend/internal/models"
)

// OrderBroadcaster — транспортный канал рассылки по подписчикам заказа.
type OrderBroadcaster interface {
	BroadcastToOrder(orderID uuid.UUID, event string, data any) error
}

// NotificationService — исходящий слой уведомлений: каждая смена состояния,
// выпущенный чек и выпущенная скидка уходят подписчикам заказа.
type NotificationService struct {
	hub OrderBroadcaster
}

func NewNotificationService(hub OrderBroadcaster) *NotificationService {
	return &NotificationService{hub: hub}
}

// StateChanged рассылает запись о смене состояния.
func (s *NotificationService) StateChanged(change models.StateChange) {
	if err := s.hub.BroadcastToOrder(change.OrderID, models.EventStateChanged, change); err != nil {
		logger.Log.WithError(err).WithField("order_id", change.OrderID).
			Error("не удалось разослать смену состояния")
	}
}

// ReceiptIssued рассылает готовый чек по терминальному расчёту.
func (s *NotificationService) ReceiptIssued(orderID uuid.UUID, receipt *models.CoreProverReceipt) {
	if err := s.hub.BroadcastToOrder(orderID, models.EventReceiptIssued, receipt); err != nil {
		logger.Log.WithError(err).WithField("order_id", orderID).
			Error("не удалось разослать чек")
	}
}

// DiscountIssued рассылает публичную часть токена скидки.
// Nullifier наружу не уходит — он приватен для потока погашения.
func (s *NotificationService) DiscountIssued(orderID uuid.UUID, issued models.DiscountIssued) {
	if err := s.hub.BroadcastToOrder(orderID, models.EventDiscountIssued, issued); err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"order_id": orderID,
			"pct":      issued.Pct,
		}).Error("не удалось разослать выпуск скидки")
	}
}
