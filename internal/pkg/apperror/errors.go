package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"

	// Провенанс: отклоняются до любого изменения состояния.
	ErrCodeMalformedTxid       ErrorCode = "MALFORMED_TXID"
	ErrCodeChainMismatch       ErrorCode = "CHAIN_MISMATCH"
	ErrCodeDuplicateSettlement ErrorCode = "DUPLICATE_SETTLEMENT"

	// Машина состояний.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// Чек: блокирует терминальный переход, состояние остаётся повторяемым.
	ErrCodeMissingSettlement  ErrorCode = "RECEIPT_MISSING_SETTLEMENT"
	ErrCodeMissingFulfillment ErrorCode = "RECEIPT_MISSING_FULFILLMENT"
	ErrCodeEmptyField         ErrorCode = "RECEIPT_EMPTY_FIELD"

	// Скидки.
	ErrCodeAlreadyRedeemed ErrorCode = "DISCOUNT_ALREADY_REDEEMED"
	ErrCodeDiscountExpired ErrorCode = "DISCOUNT_EXPIRED"
	ErrCodeDiscountClaim   ErrorCode = "DISCOUNT_CLAIM_MISMATCH"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodeMalformedTxid, ErrCodeChainMismatch:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeDuplicateSettlement, ErrCodeInvalidTransition, ErrCodeAlreadyRedeemed:
		return http.StatusConflict
	case ErrCodeDiscountExpired, ErrCodeDiscountClaim,
		ErrCodeMissingSettlement, ErrCodeMissingFulfillment, ErrCodeEmptyField:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// IsCode проверяет, несёт ли ошибка заданный код.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool {
	return IsCode(err, ErrCodeNotFound)
}

func IsInvalidTransition(err error) bool {
	return IsCode(err, ErrCodeInvalidTransition)
}

func IsProvenance(err error) bool {
	return IsCode(err, ErrCodeMalformedTxid) ||
		IsCode(err, ErrCodeChainMismatch) ||
		IsCode(err, ErrCodeDuplicateSettlement)
}

func IsReceipt(err error) bool {
	return IsCode(err, ErrCodeMissingSettlement) ||
		IsCode(err, ErrCodeMissingFulfillment) ||
		IsCode(err, ErrCodeEmptyField)
}

var (
	ErrEscrowNotFound   = New(ErrCodeNotFound, "эскроу не найден")
	ErrReceiptNotFound  = New(ErrCodeNotFound, "чек не найден")
	ErrDiscountNotFound = New(ErrCodeNotFound, "токен скидки не найден")
	ErrUnauthorized     = New(ErrCodeUnauthorized, "требуется авторизация")
)
