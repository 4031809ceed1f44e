package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "ncpbridge.hcl")

	content := `# Bridge config
interface = "wpan0"
bus       = "system"

log {
  level = "debug"
}

metrics {
  listen = "127.0.0.1:9753"
}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Interface != "wpan0" {
		t.Errorf("interface = %q, want wpan0", cfg.Interface)
	}
	if cfg.Bus != BusSystem {
		t.Errorf("bus = %q, want system", cfg.Bus)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9753" {
		t.Errorf("metrics.listen = %q", cfg.Metrics.Listen)
	}
	if cfg.RPCTimeoutSeconds != DefaultRPCTimeoutSeconds {
		t.Errorf("rpc_timeout_seconds default = %d", cfg.RPCTimeoutSeconds)
	}
	if cfg.AgentNamePrefix != "net.ncpbridge" {
		t.Errorf("agent_name_prefix default = %q", cfg.AgentNamePrefix)
	}
}

func TestLoadBytesMinimal(t *testing.T) {
	cfg, err := LoadBytes("test.hcl", []byte(`interface = "wpan0"`))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if cfg.Bus != BusAuto {
		t.Errorf("bus default = %q, want auto", cfg.Bus)
	}
	if cfg.Log == nil || cfg.Metrics == nil {
		t.Error("block defaults not applied")
	}
}

func TestLoadBytesSyntaxError(t *testing.T) {
	_, err := LoadBytes("test.hcl", []byte(`interface = `))
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty interface", func(c *Config) { c.Interface = "" }, "interface"},
		{"oversized interface", func(c *Config) { c.Interface = "averylonginterfacename0" }, "interface"},
		{"interface with slash", func(c *Config) { c.Interface = "wpan/0" }, "interface"},
		{"unknown bus", func(c *Config) { c.Bus = "starter" }, "bus"},
		{"negative timeout", func(c *Config) { c.RPCTimeoutSeconds = -1 }, "rpc_timeout_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Interface: "wpan0"}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
