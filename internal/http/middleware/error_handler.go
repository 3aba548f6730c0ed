package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coreprover/escrow-backend/internal/logger"
	"github.com/coreprover/escrow-backend/internal/pkg/apperror"
	"github.com/coreprover/escrow-backend/internal/repository"
)

// ErrorHandler обрабатывает ошибки централизованно: типизированные ошибки
// ядра транслируются в детерминированный ответ с кодом причины, внутренние
// ошибки маскируются.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		logger.Log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("Request error")

		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			c.JSON(appErr.HTTPStatus, gin.H{
				"error": appErr.Message,
				"code":  string(appErr.Code),
			})
			return
		}

		switch {
		case errors.Is(err, repository.ErrEscrowNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "эскроу не найден"})
		case errors.Is(err, repository.ErrReceiptNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "чек не найден"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка сервера"})
		}
	}
}
