// Package config provides HCL configuration handling for the bridge.
package config

import (
	"fmt"
	"strings"
)

// IFNAMSIZ-1: the longest interface name the kernel accepts.
const maxInterfaceName = 15

// Bus scope names accepted by the "bus" attribute.
const (
	BusAuto    = "auto"
	BusSession = "session"
	BusSystem  = "system"
)

// DefaultRPCTimeoutSeconds bounds synchronous property calls.
const DefaultRPCTimeoutSeconds = 10

// Config is the top-level bridge configuration.
type Config struct {
	// Interface is the wpantund-managed network interface, e.g. "wpan0".
	Interface string `hcl:"interface"`

	// Bus selects the bus scope: "auto" tries the session bus and
	// falls back to the system bus.
	Bus string `hcl:"bus,optional"`

	// AgentNamePrefix is the well-known name prefix the bridge
	// registers under; the interface name is appended.
	AgentNamePrefix string `hcl:"agent_name_prefix,optional"`

	// RPCTimeoutSeconds bounds blocking property requests.
	RPCTimeoutSeconds int `hcl:"rpc_timeout_seconds,optional"`

	Log     *LogConfig     `hcl:"log,block"`
	Metrics *MetricsConfig `hcl:"metrics,block"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `hcl:"level,optional"`

	// JSON switches from the console format to JSON lines.
	JSON bool `hcl:"json,optional"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	// Listen is the address to serve /metrics on; empty disables it.
	Listen string `hcl:"listen,optional"`
}

// ValidationError describes one rejected configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// applyDefaults fills optional fields in place.
func (c *Config) applyDefaults() {
	if c.Bus == "" {
		c.Bus = BusAuto
	}
	if c.AgentNamePrefix == "" {
		c.AgentNamePrefix = "net.ncpbridge"
	}
	if c.RPCTimeoutSeconds == 0 {
		c.RPCTimeoutSeconds = DefaultRPCTimeoutSeconds
	}
	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
}

// Validate checks the configuration for semantic errors.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Interface == "" {
		errs = append(errs, ValidationError{"interface", "must not be empty"})
	} else if len(c.Interface) > maxInterfaceName {
		errs = append(errs, ValidationError{"interface",
			fmt.Sprintf("%q exceeds %d characters", c.Interface, maxInterfaceName)})
	} else if strings.ContainsAny(c.Interface, "/ \t") {
		errs = append(errs, ValidationError{"interface",
			fmt.Sprintf("%q contains invalid characters", c.Interface)})
	}

	switch c.Bus {
	case BusAuto, BusSession, BusSystem:
	default:
		errs = append(errs, ValidationError{"bus",
			fmt.Sprintf("%q is not one of auto, session, system", c.Bus)})
	}

	if c.RPCTimeoutSeconds < 0 {
		errs = append(errs, ValidationError{"rpc_timeout_seconds", "must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
