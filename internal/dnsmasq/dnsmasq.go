// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dnsmasq renders per-network dnsmasq configuration and drives the
// external daemon. One dnsmasq instance serves DHCP on one bridge; all of
// its artifacts (config, pid file, leases, log) live in a per-network run
// directory so teardown is a directory removal.
package dnsmasq

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/template"

	"github.com/google/uuid"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/logging"
)

// defaultTemplate is used when the template directory has no dnsmasq.conf
// override. port=0 disables the DNS listener: the instance only does DHCP.
const defaultTemplate = `# Generated by fognetd. Do not edit.
port=0
interface={{.Interface}}
bind-interfaces
dhcp-range={{.RangeStart}},{{.RangeEnd}},{{.LeaseTime}}
dhcp-option=option:router,{{.Gateway}}
dhcp-option=option:dns-server,{{.DNS}}
dhcp-leasefile={{.LeaseFile}}
pid-file={{.PidFile}}
log-facility={{.LogFile}}
`

// Params describes one network's DHCP service.
type Params struct {
	NetworkID  uuid.UUID
	Interface  string // bridge device the daemon binds to
	RangeStart string
	RangeEnd   string
	Gateway    string
	DNS        string
	LeaseTime  string // dnsmasq duration, e.g. "24h"
}

// templateData is Params plus the derived artifact paths.
type templateData struct {
	Params
	LeaseFile string
	PidFile   string
	LogFile   string
}

// Service renders configs and manages dnsmasq processes.
type Service struct {
	runDir      string
	templateDir string
	logger      *logging.Logger

	// run and signal are injectable for tests.
	run    func(conf string) error
	signal func(pid int, sig syscall.Signal) error
}

// NewService creates a dnsmasq service writing artifacts under runDir and
// reading template overrides from templateDir.
func NewService(runDir, templateDir string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Service{
		runDir:      runDir,
		templateDir: templateDir,
		logger:      logger.WithComponent("dnsmasq"),
		run:         runDnsmasq,
		signal:      signalPid,
	}
}

func runDnsmasq(conf string) error {
	cmd := exec.Command("dnsmasq", "-C", conf)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// dnsmasq daemonizes itself; Run returns once the parent exits, after
	// the pid file is written.
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return errors.Wrapf(err, errors.KindDaemonStart, "dnsmasq: %s", msg)
		}
		return err
	}
	return nil
}

func signalPid(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

// NetworkDir returns the artifact directory for a network.
func (s *Service) NetworkDir(networkID uuid.UUID) string {
	return filepath.Join(s.runDir, "networks", networkID.String())
}

// ConfigPath returns the rendered configuration path for a network.
func (s *Service) ConfigPath(networkID uuid.UUID) string {
	return filepath.Join(s.NetworkDir(networkID), "dnsmasq.conf")
}

func (s *Service) pidPath(networkID uuid.UUID) string {
	return filepath.Join(s.NetworkDir(networkID), "dnsmasq.pid")
}

// Render produces the configuration text for the given parameters without
// touching the filesystem.
func (s *Service) Render(p Params) (string, error) {
	if p.LeaseTime == "" {
		p.LeaseTime = "24h"
	}
	data := templateData{
		Params:    p,
		LeaseFile: filepath.Join(s.NetworkDir(p.NetworkID), "leases"),
		PidFile:   s.pidPath(p.NetworkID),
		LogFile:   filepath.Join(s.NetworkDir(p.NetworkID), "dnsmasq.log"),
	}

	text := defaultTemplate
	if s.templateDir != "" {
		override := filepath.Join(s.templateDir, "dnsmasq.conf")
		if raw, err := os.ReadFile(override); err == nil {
			text = string(raw)
		}
	}

	tmpl, err := template.New("dnsmasq.conf").Parse(text)
	if err != nil {
		return "", errors.Wrap(err, errors.KindValidation, "invalid dnsmasq template")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, errors.KindValidation, "failed to render dnsmasq config")
	}
	return buf.String(), nil
}

// WriteConfig renders and persists the configuration, creating the network
// run directory. It returns the config path.
func (s *Service) WriteConfig(p Params) (string, error) {
	text, err := s.Render(p)
	if err != nil {
		return "", err
	}
	dir := s.NetworkDir(p.NetworkID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", errors.Wrap(err, errors.KindDaemonStart, "failed to create network run directory")
	}
	path := s.ConfigPath(p.NetworkID)
	if err := os.WriteFile(path, []byte(text), 0o640); err != nil {
		return "", errors.Wrap(err, errors.KindDaemonStart, "failed to write dnsmasq config")
	}
	return path, nil
}

// Start writes the configuration and launches dnsmasq for the network.
func (s *Service) Start(p Params) error {
	conf, err := s.WriteConfig(p)
	if err != nil {
		return err
	}
	if err := s.run(conf); err != nil {
		if errors.GetKind(err) == errors.KindDaemonStart {
			return errors.Attr(err, "network_id", p.NetworkID.String())
		}
		werr := errors.Wrap(err, errors.KindDaemonStart, "failed to start dnsmasq")
		return errors.Attr(werr, "network_id", p.NetworkID.String())
	}
	s.logger.Info("DHCP daemon started", "network_id", p.NetworkID, "interface", p.Interface)
	return nil
}

// Stop terminates the network's dnsmasq instance via its pid file. A missing
// pid file means nothing is running and is not an error, so teardown and
// compensation can call Stop blindly.
func (s *Service) Stop(networkID uuid.UUID) error {
	pid, err := s.readPid(networkID)
	if err != nil {
		if errors.GetKind(err) == errors.KindNotFound {
			return nil
		}
		return err
	}
	if err := s.signal(pid, syscall.SIGTERM); err != nil && !isGone(err) {
		werr := errors.Wrapf(err, errors.KindKernelReject, "failed to stop dnsmasq pid %d", pid)
		return errors.Attr(werr, "network_id", networkID.String())
	}
	_ = os.Remove(s.pidPath(networkID))
	s.logger.Info("DHCP daemon stopped", "network_id", networkID, "pid", pid)
	return nil
}

// Reload signals the instance to re-read its lease file state. dnsmasq
// re-reads dhcp-hostsfiles on SIGHUP; range changes still need a restart.
func (s *Service) Reload(networkID uuid.UUID) error {
	pid, err := s.readPid(networkID)
	if err != nil {
		return err
	}
	if err := s.signal(pid, syscall.SIGHUP); err != nil {
		return errors.Wrapf(err, errors.KindDaemonStart, "failed to reload dnsmasq pid %d", pid)
	}
	return nil
}

// IsRunning probes the instance with signal 0.
func (s *Service) IsRunning(networkID uuid.UUID) bool {
	pid, err := s.readPid(networkID)
	if err != nil {
		return false
	}
	return s.signal(pid, 0) == nil
}

// Cleanup removes the network's artifact directory. Call after Stop.
func (s *Service) Cleanup(networkID uuid.UUID) error {
	if err := os.RemoveAll(s.NetworkDir(networkID)); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to remove network run directory")
	}
	return nil
}

// SweepStale removes artifact directories whose network keep() rejects,
// stopping any daemon still running for them. Run after reconcile so that
// networks deleted while the host was down do not leave dnsmasq instances
// or config files behind.
func (s *Service) SweepStale(keep func(uuid.UUID) bool) ([]uuid.UUID, error) {
	entries, err := os.ReadDir(filepath.Join(s.runDir, "networks"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.KindInternal, "failed to scan dnsmasq run directory")
	}

	var swept []uuid.UUID
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			// Not one of ours.
			continue
		}
		if keep(id) {
			continue
		}
		if err := s.Stop(id); err != nil {
			s.logger.Warn("Failed to stop stale DHCP daemon", "network_id", id, "error", err)
		}
		if err := s.Cleanup(id); err != nil {
			return swept, err
		}
		s.logger.Info("Removed stale DHCP artifacts", "network_id", id)
		swept = append(swept, id)
	}
	return swept, nil
}

func (s *Service) readPid(networkID uuid.UUID) (int, error) {
	raw, err := os.ReadFile(s.pidPath(networkID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Errorf(errors.KindNotFound, "no dnsmasq pid file for network %s", networkID)
		}
		return 0, errors.Wrap(err, errors.KindInternal, "failed to read dnsmasq pid file")
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, errors.Errorf(errors.KindInternal, "malformed dnsmasq pid file for network %s", networkID)
	}
	return pid, nil
}

func isGone(err error) bool {
	return err == os.ErrProcessDone || strings.Contains(err.Error(), "process already finished") ||
		strings.Contains(err.Error(), "no such process")
}
