package models

import "time"

// TripleTimestamp — тройная метка времени: монотонные секунды, unix-секунды
// и ISO-8601 строка. Все три поля рождаются из одного чтения часов.
type TripleTimestamp struct {
	Mono uint64 `json:"mono"`
	Unix uint64 `json:"unix"`
	ISO  string `json:"iso"`
}

// Consistent проверяет, что ISO-строка парсится в RFC3339 и согласована с Unix.
func (t TripleTimestamp) Consistent() bool {
	parsed, err := time.Parse(time.RFC3339, t.ISO)
	if err != nil {
		return false
	}
	return uint64(parsed.Unix()) == t.Unix
}

// IsZero сообщает, что метка не была выставлена.
func (t TripleTimestamp) IsZero() bool {
	return t.Mono == 0 && t.Unix == 0 && t.ISO == ""
}
