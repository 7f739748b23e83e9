package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// GrpcClientConfig configures an outgoing gRPC connection, such as the health probe's.
type GrpcClientConfig struct {
	Addr    string        `koanf:"addr"`
	Timeout time.Duration `koanf:"timeout"`
	Retry   RetryConfig   `koanf:"retry"`
}

// String returns a string representation of the gRPC client configuration.
func (c *GrpcClientConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- gRPC Client ---\n")
	b.WriteString(fmt.Sprintf("  addr: %s\n", c.Addr))
	b.WriteString(fmt.Sprintf("  per-call timeout: %s\n", c.Timeout))
	b.WriteString(c.Retry.String())
	return b.String()
}

func (c *GrpcClientConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid gRPC address %q: %w", c.Addr, err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("gRPC per-call timeout must be greater than 0")
	}
	return c.Retry.Validate()
}
