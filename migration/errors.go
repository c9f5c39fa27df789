package migration

import "fmt"

// ConfigurationError is returned when the registry can not be built
// from the given units, before any database interaction takes place
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid migrations configuration: %s", e.Reason)
	}

	return fmt.Sprintf("invalid migrations configuration: migration [%s]: %s", e.Key, e.Reason)
}
