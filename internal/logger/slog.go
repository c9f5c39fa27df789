package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogLogger renders runner events as structured records
type SlogLogger struct {
	lg *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

func NewSlogLogger(lg *slog.Logger) *SlogLogger {
	if lg == nil {
		lg = slog.Default()
	}

	return &SlogLogger{lg: lg}
}

func (sl *SlogLogger) Event(e Event, key string) {
	args := []any{"event", string(e)}
	if key != "" {
		args = append(args, "migration", key)
	}

	sl.lg.Info(describe(e, key), args...)
}

func (sl *SlogLogger) Debugf(format string, args ...interface{}) {
	if !sl.lg.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	sl.lg.Debug(fmt.Sprintf(format, args...))
}

func (sl *SlogLogger) Error(err error) {
	sl.lg.Error(err.Error())
}

func (sl *SlogLogger) SQL(query string, args ...interface{}) {
	sl.lg.Debug("running sql", "query", query, "args", args)
}
