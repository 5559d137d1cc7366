// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads and validates the fognet plugin configuration and
// the node identity file supplied by the orchestrator agent.
package config

import (
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/install"
)

// DHCPFailurePolicy selects how the dispatcher treats a dnsmasq start
// failure during network creation.
type DHCPFailurePolicy string

const (
	// DHCPFailureDegrade keeps the network (reachable, no DHCP) and reports
	// success; the failure is logged and the registry records the daemon as
	// not running.
	DHCPFailureDegrade DHCPFailurePolicy = "degrade"
	// DHCPFailureRollback tears the network back down.
	DHCPFailureRollback DHCPFailurePolicy = "rollback"
)

// NamespaceManager configures how per-namespace helper processes are run.
type NamespaceManager struct {
	// Binary is the helper executable spawned once per namespace.
	Binary string `yaml:"binary"`
	// Timeout bounds every RPC to a helper; on expiry the call is reported
	// as unavailable and left to reconcile().
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the plugin-level configuration for fognetd.
type Config struct {
	LogLevel    string `yaml:"log_level"`
	StateDir    string `yaml:"state_dir"`
	RunDir      string `yaml:"run_dir"`
	TemplateDir string `yaml:"template_dir"`

	// CtlSocket is the unix socket serving the lifecycle RPC.
	CtlSocket string `yaml:"ctl_socket"`
	// APIListen is the address of the read-only HTTP status API. Empty
	// disables it.
	APIListen string `yaml:"api_listen"`

	// DefaultSubnet is the CIDR pool used when a createNetwork request
	// omits a subnet.
	DefaultSubnet string `yaml:"default_subnet"`
	// UplinkInterface is the host interface NAT rules masquerade out of.
	UplinkInterface string `yaml:"uplink_interface"`

	DHCPFailurePolicy DHCPFailurePolicy `yaml:"dhcp_failure_policy"`
	NamespaceManager  NamespaceManager  `yaml:"namespace_manager"`

	// Workers bounds the number of lifecycle operations executing
	// concurrently across distinct networks.
	Workers int `yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:          "info",
		StateDir:          install.GetStateDir(),
		RunDir:            install.GetRunDir(),
		TemplateDir:       install.GetTemplateDir(),
		CtlSocket:         filepath.Join(install.GetRunDir(), "fognetd.sock"),
		APIListen:         "127.0.0.1:9464",
		DefaultSubnet:     "10.64.0.0/16",
		UplinkInterface:   "",
		DHCPFailurePolicy: DHCPFailureDegrade,
		NamespaceManager: NamespaceManager{
			Binary:  "fognet-nsmgr",
			Timeout: 5 * time.Second,
		},
		Workers: 4,
	}
}

// Load reads a YAML configuration file, layering it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindValidation, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf(errors.KindValidation, "invalid log_level %q", c.LogLevel)
	}

	if c.DefaultSubnet != "" {
		if _, _, err := net.ParseCIDR(c.DefaultSubnet); err != nil {
			return errors.Wrapf(err, errors.KindValidation, "invalid default_subnet %q", c.DefaultSubnet)
		}
	}

	switch c.DHCPFailurePolicy {
	case DHCPFailureDegrade, DHCPFailureRollback:
	case "":
		c.DHCPFailurePolicy = DHCPFailureDegrade
	default:
		return errors.Errorf(errors.KindValidation, "invalid dhcp_failure_policy %q", c.DHCPFailurePolicy)
	}

	if c.NamespaceManager.Binary == "" {
		return errors.New(errors.KindValidation, "namespace_manager.binary is required")
	}
	if c.NamespaceManager.Timeout <= 0 {
		c.NamespaceManager.Timeout = 5 * time.Second
	}

	if c.Workers <= 0 {
		c.Workers = 4
	}
	return nil
}

// nodeIdentity mirrors the identity file written by the orchestrator agent.
type nodeIdentity struct {
	Configuration struct {
		NodeID string `yaml:"nodeid"`
	} `yaml:"configuration"`
}

// LoadNodeID reads the node identity file and returns the node UUID used to
// scope registry entries to this host.
func LoadNodeID(path string) (uuid.UUID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, errors.KindValidation, "failed to read node identity %s", path)
	}
	var ident nodeIdentity
	if err := yaml.Unmarshal(data, &ident); err != nil {
		return uuid.Nil, errors.Wrap(err, errors.KindValidation, "failed to parse node identity")
	}
	id, err := uuid.Parse(ident.Configuration.NodeID)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, errors.KindValidation, "invalid configuration.nodeid %q", ident.Configuration.NodeID)
	}
	return id, nil
}
