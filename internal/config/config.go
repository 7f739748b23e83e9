// Package config defines the configuration of the inventory service and its health probe.
package config

import (
	"fmt"
	"strings"

	"github.com/stocktrack/inventory/pkg/config"
	"github.com/stocktrack/inventory/pkg/config/configloader"
)

var (
	_ configloader.Validator = (*Config)(nil)
	_ configloader.Validator = (*ProbeConfig)(nil)
)

type Config struct {
	HTTPServer config.HTTPConfig           `koanf:"server"`
	Database   config.DatabaseConfig       `koanf:"database"`
	Log        config.LogConfig            `koanf:"log"`
	PProf      config.PProfConfig          `koanf:"pprof"`
	GRPC       config.GrpcServerConfig     `koanf:"grpc"`
	Shutdown   config.ShutdownConfig       `koanf:"shutdown"`
	Telemetry  config.TelemetryConfig      `koanf:"telemetry"`
	Nats       config.NATSConfig           `koanf:"nats"`
	Breaker    config.CircuitBreakerConfig `koanf:"breaker"`
	Alerts     config.SubscriberConfig     `koanf:"alerts"`
	Health     config.HealthConfig         `koanf:"health"`
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.Database.String())
	b.WriteString(c.GRPC.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Nats.String())
	b.WriteString(c.Breaker.String())
	b.WriteString(c.Alerts.String())
	b.WriteString(c.Health.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer,
		&c.Database,
		&c.Log,
		&c.PProf,
		&c.GRPC,
		&c.Shutdown,
		&c.Telemetry,
		&c.Nats,
		&c.Alerts,
		&c.Health,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.Nats.Enabled {
		if err := c.Breaker.Validate(); err != nil {
			return err
		}
	}
	if c.Alerts.Enabled && !c.Nats.Enabled {
		return fmt.Errorf("alerts subscriber requires nats to be enabled")
	}
	return nil
}

// ProbeConfig configures the gRPC health probe.
type ProbeConfig struct {
	Target config.GrpcClientConfig `koanf:"healthprobe"`
}

func (c *ProbeConfig) String() string {
	return c.Target.String()
}

func (c *ProbeConfig) Validate() error {
	return c.Target.Validate()
}
