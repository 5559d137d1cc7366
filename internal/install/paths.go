// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package install resolves the filesystem layout of a fognet installation.
package install

var (
	DefaultConfigDir   = "/etc/fognet"
	DefaultStateDir    = "/var/lib/fognet"
	DefaultRunDir      = "/run/fognet"
	DefaultTemplateDir = "/etc/fognet/templates"

	// Build-time path overrides (set via -ldflags). These let distributions
	// relocate the defaults without patching the source.
	BuildDefaultConfigDir   = ""
	BuildDefaultStateDir    = ""
	BuildDefaultRunDir      = ""
	BuildDefaultTemplateDir = ""
)

func init() {
	if BuildDefaultConfigDir != "" {
		DefaultConfigDir = BuildDefaultConfigDir
	}
	if BuildDefaultStateDir != "" {
		DefaultStateDir = BuildDefaultStateDir
	}
	if BuildDefaultRunDir != "" {
		DefaultRunDir = BuildDefaultRunDir
	}
	if BuildDefaultTemplateDir != "" {
		DefaultTemplateDir = BuildDefaultTemplateDir
	}
}

// GetConfigDir returns the configuration directory.
func GetConfigDir() string { return DefaultConfigDir }

// GetStateDir returns the persistent state directory.
func GetStateDir() string { return DefaultStateDir }

// GetRunDir returns the runtime directory (sockets, pid files, rendered configs).
func GetRunDir() string { return DefaultRunDir }

// GetTemplateDir returns the directory holding dnsmasq templates.
func GetTemplateDir() string { return DefaultTemplateDir }
