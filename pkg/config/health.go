package config

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// HealthConfig controls the database probe behind the gRPC health service and /readyz.
type HealthConfig struct {
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
}

const defaultHealthInterval = 10 * time.Second
const defaultHealthTimeout = 2 * time.Second

// String returns a string representation of the HealthConfig.
func (c *HealthConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Health ---\n")
	b.WriteString(fmt.Sprintf("  interval: %s\n", c.Interval))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

func (c *HealthConfig) Validate() error {
	if c.Interval <= 0 {
		log.Println("Using default value for health interval")
		c.Interval = defaultHealthInterval
	}
	if c.Timeout <= 0 {
		log.Println("Using default value for health timeout")
		c.Timeout = defaultHealthTimeout
	}
	if c.Timeout > c.Interval {
		return fmt.Errorf("health timeout %s must not exceed interval %s", c.Timeout, c.Interval)
	}
	return nil
}
