// Package logging настраивает глобальный zerolog-логгер.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup задаёт уровень и формат глобального логгера.
// Уровни: debug, info, warn, error. Неизвестное значение - info.
// pretty включает человекочитаемый вывод вместо JSON.
func Setup(level string, pretty bool) {
	SetupTo(os.Stderr, level, pretty)
}

// SetupTo - то же, что Setup, но с явным приёмником вывода.
func SetupTo(w io.Writer, level string, pretty bool) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimeFieldFormat = time.RFC3339

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.DateTime}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel переводит строку уровня в zerolog.Level.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
