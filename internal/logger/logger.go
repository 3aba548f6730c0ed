package logger

import (
	"github.com/sirupsen/logrus"
)

// Log — структурированный логгер процесса. Инициализирован всегда:
// сервисные пакеты и тесты могут логировать до вызова Init.
var Log = logrus.New()

// Init настраивает уровень и JSON формат (production).
func Init(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}
