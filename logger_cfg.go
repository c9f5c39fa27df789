package shift

import (
	"log/slog"

	"github.com/denismitr/shift/internal/logger"
)

func UseColorLogger(p logger.Printer, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewColorLogger(p, printSql, printDebug)
		return nil
	}
}

func UseLogger(p logger.Printer, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewBWLogger(p, printSql, printDebug)
		return nil
	}
}

// UseSlogLogger reports progress as structured records,
// executed SQL goes out at debug level
func UseSlogLogger(lg *slog.Logger) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewSlogLogger(lg)
		return nil
	}
}
