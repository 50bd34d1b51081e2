// Package config carries the process-environment parsing and fatal-exit
// helpers shared by the service and tool entry points.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target's env-tagged fields from the process environment.
// Every variable this system reads carries the VISITBOOKER_ prefix declared
// on the struct tags; defaults come from the envDefault tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
