package shift

import (
	"github.com/denismitr/shift/migration"
)

type OptionFunc func(*Migrator) error

// UseClock replaces the clock used to stamp applied migrations
func UseClock(clock migration.ClockFunc) OptionFunc {
	return func(m *Migrator) error {
		m.clock = clock
		return nil
	}
}

func (m *Migrator) setGateway(g gateway) {
	if m.gateway != nil {
		m.closerFns = append(m.closerFns, m.gateway.Close)
	}

	m.gateway = g
}
