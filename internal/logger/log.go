package logger

import (
	"bytes"
	"fmt"

	"github.com/logrusorgru/aurora/v3"
)

// Event is a progress event emitted by the runner around every real step
type Event string

const (
	MigrationStarted  Event = "migration_started"
	MigrationApplied  Event = "migration_applied"
	MigrationReverted Event = "migration_reverted"
	NoPending         Event = "no_pending"
	NoApplied         Event = "no_applied"
)

type Printer interface {
	Output(calldepth int, s string) error
}

type Logger interface {
	Event(e Event, key string)
	Debugf(format string, args ...interface{})
	Error(err error)
	SQL(query string, args ...interface{})
}

type ColoredLogger struct {
	printer Printer
	debug   bool
	sql     bool
}

type BWLogger struct {
	printer Printer
	debug   bool
	sql     bool
}

var _ Logger = (*ColoredLogger)(nil)
var _ Logger = (*BWLogger)(nil)

func NewColorLogger(p Printer, sql, debug bool) *ColoredLogger {
	return &ColoredLogger{
		printer: p,
		debug:   debug,
		sql:     sql,
	}
}

func NewBWLogger(p Printer, sql, debug bool) *BWLogger {
	return &BWLogger{
		printer: p,
		debug:   debug,
		sql:     sql,
	}
}

func (cl *ColoredLogger) Event(e Event, key string) {
	msg := "Shift: " + describe(e, key)

	switch e {
	case MigrationStarted:
		_ = cl.printer.Output(2, aurora.Cyan(msg).String())
	case NoPending, NoApplied:
		_ = cl.printer.Output(2, aurora.Yellow(msg).String())
	default:
		_ = cl.printer.Output(2, aurora.Green(msg).String())
	}
}

func (cl *ColoredLogger) Debugf(format string, args ...interface{}) {
	if cl.debug {
		msg := fmt.Sprintf("Shift debug: "+format, args...)
		_ = cl.printer.Output(2, aurora.Yellow(msg).String())
	}
}

func (cl *ColoredLogger) Error(err error) {
	msg := fmt.Sprintf("Shift error: %s", err.Error())
	_ = cl.printer.Output(2, aurora.Red(msg).String())
}

func (cl *ColoredLogger) SQL(query string, args ...interface{}) {
	if cl.sql {
		_ = cl.printer.Output(2, aurora.Gray(15, formatSQL(query, args)).String())
	}
}

func (bwl *BWLogger) Event(e Event, key string) {
	_ = bwl.printer.Output(2, "Shift: "+describe(e, key))
}

func (bwl *BWLogger) Debugf(format string, args ...interface{}) {
	if bwl.debug {
		msg := fmt.Sprintf("Shift debug: "+format, args...)
		_ = bwl.printer.Output(2, msg)
	}
}

func (bwl *BWLogger) Error(err error) {
	msg := fmt.Sprintf("Shift error: %s", err.Error())
	_ = bwl.printer.Output(2, msg)
}

func (bwl *BWLogger) SQL(query string, args ...interface{}) {
	if bwl.sql {
		_ = bwl.printer.Output(2, formatSQL(query, args))
	}
}

func describe(e Event, key string) string {
	switch e {
	case MigrationStarted:
		return fmt.Sprintf("running migration [%s]", key)
	case MigrationApplied:
		return fmt.Sprintf("migration [%s] has been applied", key)
	case MigrationReverted:
		return fmt.Sprintf("migration [%s] has been rolled back", key)
	case NoPending:
		return "no pending migrations"
	case NoApplied:
		return "no applied migrations"
	default:
		return fmt.Sprintf("%s [%s]", e, key)
	}
}

func formatSQL(query string, args []interface{}) string {
	var buf bytes.Buffer
	buf.WriteString("Shift running sql: ")
	buf.WriteString(query)

	if len(args) == 0 {
		return buf.String()
	}

	buf.WriteString("\nquery parameters: ")

	for i := range args {
		if i+1 < len(args) {
			buf.WriteString(fmt.Sprintf("{%#v}, ", args[i]))
		} else {
			buf.WriteString(fmt.Sprintf("{%#v}", args[i]))
		}
	}

	return buf.String()
}
