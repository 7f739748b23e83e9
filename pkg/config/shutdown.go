package config

import (
	"fmt"
	"strings"
	"time"
)

const maxShutdownTimeout = 2 * time.Minute

// ShutdownConfig bounds the graceful stop of each server and telemetry provider.
type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// String returns a string representation of the ShutdownConfig.
func (c *ShutdownConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Shutdown ---\n")
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

func (c *ShutdownConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("shutdown timeout is not configured")
	}
	if c.Timeout > maxShutdownTimeout {
		return fmt.Errorf("shutdown timeout %s exceeds %s", c.Timeout, maxShutdownTimeout)
	}
	return nil
}
