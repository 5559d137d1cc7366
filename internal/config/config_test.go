// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/fognet/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, "fognet.yaml", `
log_level: debug
state_dir: /tmp/fognet-state
default_subnet: 192.168.0.0/16
uplink_interface: eth1
dhcp_failure_policy: rollback
namespace_manager:
  binary: /usr/local/bin/fognet-nsmgr
  timeout: 10s
workers: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/fognet-state", cfg.StateDir)
	assert.Equal(t, "192.168.0.0/16", cfg.DefaultSubnet)
	assert.Equal(t, "eth1", cfg.UplinkInterface)
	assert.Equal(t, DHCPFailureRollback, cfg.DHCPFailurePolicy)
	assert.Equal(t, "/usr/local/bin/fognet-nsmgr", cfg.NamespaceManager.Binary)
	assert.Equal(t, 10*time.Second, cfg.NamespaceManager.Timeout)
	assert.Equal(t, 8, cfg.Workers)

	// Unset fields keep defaults.
	assert.Equal(t, Default().RunDir, cfg.RunDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"bad subnet", func(c *Config) { c.DefaultSubnet = "not-a-cidr" }, true},
		{"bad dhcp policy", func(c *Config) { c.DHCPFailurePolicy = "explode" }, true},
		{"empty dhcp policy defaults to degrade", func(c *Config) { c.DHCPFailurePolicy = "" }, false},
		{"missing nsmanager binary", func(c *Config) { c.NamespaceManager.Binary = "" }, true},
		{"zero workers clamped", func(c *Config) { c.Workers = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindValidation, errors.GetKind(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadNodeID(t *testing.T) {
	path := writeFile(t, "identity.yaml", `
configuration:
  nodeid: 6ba7b810-9dad-11d1-80b4-00c04fd430c8
`)
	id, err := LoadNodeID(path)
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", id.String())
}

func TestLoadNodeIDInvalid(t *testing.T) {
	path := writeFile(t, "identity.yaml", `
configuration:
  nodeid: not-a-uuid
`)
	_, err := LoadNodeID(path)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}
