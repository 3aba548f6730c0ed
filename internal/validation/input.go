package validation

import (
	"fmt"
	"unicode/utf8"
)

// Константы валидации
const (
	MinActorLength      = 1
	MaxActorLength      = 128
	MaxCommitmentLength = 256
	MaxReasonLength     = 1000
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateActor проверяет идентификатор участника сделки (адрес или имя).
func ValidateActor(fieldName, value string) error {
	return ValidateLength(fieldName, value, MinActorLength, MaxActorLength)
}

// ValidateCommitment проверяет обязательство продавца (сумма или хеш подписи).
func ValidateCommitment(value string) error {
	if value == "" {
		return fmt.Errorf("seller_commitment обязателен")
	}
	return ValidateLength("seller_commitment", value, 1, MaxCommitmentLength)
}
