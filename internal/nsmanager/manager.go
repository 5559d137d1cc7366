// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nsmanager

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/install"
	"grimm.is/fognet/internal/logging"
	"grimm.is/fognet/internal/names"
)

// NamespaceOps abstracts named network namespace manipulation on the host
// side so the manager can be exercised without privileges.
type NamespaceOps interface {
	Create(name string) error
	Delete(name string) error
	Exists(name string) (bool, error)
	List() ([]string, error)
}

// helperConn is the slice of *Client the manager uses, injectable in tests.
type helperConn interface {
	Ping() (int, error)
	ListInterfaces() ([]string, error)
	ConfigureInterface(device, address, gateway string) error
	MoveInterfaceOut(device string) error
	Close() error
}

// helperProc is a running helper process.
type helperProc interface {
	Pid() int
	Signal(sig os.Signal) error
	Wait() error
}

type execProc struct{ cmd *exec.Cmd }

func (p *execProc) Pid() int                  { return p.cmd.Process.Pid }
func (p *execProc) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProc) Wait() error               { return p.cmd.Wait() }

type helper struct {
	name   string
	socket string
	proc   helperProc
	conn   helperConn
}

// Manager owns the helper process per namespace and the namespaces
// themselves.
type Manager struct {
	ops     NamespaceOps
	binary  string
	timeout time.Duration
	logger  *logging.Logger

	spawn     func(binary, nsName, id, socket string) (helperProc, error)
	dial      func(socket string, timeout time.Duration) (helperConn, error)
	socketFor func(nsID uuid.UUID) string

	mu      sync.Mutex
	helpers map[uuid.UUID]*helper
}

// NewManager creates a namespace manager spawning the given helper binary.
func NewManager(ops NamespaceOps, binary string, timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Manager{
		ops:     ops,
		binary:  binary,
		timeout: timeout,
		logger:  logger.WithComponent("nsmanager"),
		spawn:   spawnHelper,
		dial: func(socket string, timeout time.Duration) (helperConn, error) {
			return Dial(socket, timeout)
		},
		socketFor: SocketPath,
		helpers:   make(map[uuid.UUID]*helper),
	}
}

func spawnHelper(binary, nsName, id, socket string) (helperProc, error) {
	cmd := exec.Command(binary, "--netns", nsName, "--id", id, "--socket", socket)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProc{cmd: cmd}, nil
}

// SocketPath returns the helper socket for a namespace entity.
func SocketPath(nsID uuid.UUID) string {
	return filepath.Join(install.GetRunDir(), "ns", names.Namespace(nsID)+".sock")
}

// EnsureNamespace creates the named namespace if missing and makes sure a
// live helper serves it. Calling it for a namespace that is already up is a
// no-op, which lets reconcile re-adopt namespaces after a daemon restart.
func (m *Manager) EnsureNamespace(nsID uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.helpers[nsID]; ok {
		if _, err := h.conn.Ping(); err == nil {
			return nil
		}
		// Helper died underneath us; reap and respawn.
		m.logger.Warn("Namespace helper unresponsive, respawning", "namespace", h.name)
		m.stopHelperLocked(nsID, h)
	}

	exists, err := m.ops.Exists(name)
	if err != nil {
		return errors.Wrapf(err, errors.KindKernelReject, "failed to probe namespace %s", name)
	}
	created := false
	if !exists {
		if err := m.ops.Create(name); err != nil {
			return classifyNS(err, "create", name)
		}
		created = true
	}

	if err := m.startHelperLocked(nsID, name); err != nil {
		if created {
			_ = m.ops.Delete(name)
		}
		return err
	}
	return nil
}

// startHelperLocked spawns the helper for an existing namespace and waits
// for it to answer. Caller holds m.mu.
func (m *Manager) startHelperLocked(nsID uuid.UUID, name string) error {
	socket := m.socketFor(nsID)
	if err := os.MkdirAll(filepath.Dir(socket), 0o750); err != nil {
		return errors.Wrap(err, errors.KindDaemonStart, "failed to create helper socket directory")
	}
	// A stale socket from a previous run blocks the new helper's bind.
	_ = os.Remove(socket)

	proc, err := m.spawn(m.binary, name, nsID.String(), socket)
	if err != nil {
		werr := errors.Wrap(err, errors.KindDaemonStart, "failed to start namespace helper")
		return errors.Attr(werr, "namespace", name)
	}

	conn, err := m.waitReady(socket)
	if err != nil {
		_ = proc.Signal(syscall.SIGKILL)
		_ = proc.Wait()
		werr := errors.Wrap(err, errors.KindDaemonStart, "namespace helper did not become ready")
		return errors.Attr(werr, "namespace", name)
	}

	m.helpers[nsID] = &helper{name: name, socket: socket, proc: proc, conn: conn}
	m.logger.Info("Namespace ready", "namespace", name, "pid", proc.Pid())
	return nil
}

// adoptLocked starts a helper for a namespace that exists in the kernel but
// has no live helper, which is the state after a daemon restart. Caller
// holds m.mu.
func (m *Manager) adoptLocked(nsID uuid.UUID) (*helper, error) {
	name := names.Namespace(nsID)
	exists, err := m.ops.Exists(name)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindKernelReject, "failed to probe namespace %s", name)
	}
	if !exists {
		return nil, errors.Errorf(errors.KindNotFound, "namespace %s is not managed", nsID)
	}
	m.logger.Info("Adopting namespace without a helper", "namespace", name)
	if err := m.startHelperLocked(nsID, name); err != nil {
		return nil, err
	}
	return m.helpers[nsID], nil
}

// waitReady polls the helper socket until it answers a ping or the manager
// timeout elapses.
func (m *Manager) waitReady(socket string) (helperConn, error) {
	deadline := time.Now().Add(m.timeout)
	var lastErr error
	for {
		conn, err := m.dial(socket, m.timeout)
		if err == nil {
			if _, err = conn.Ping(); err == nil {
				return conn, nil
			}
			_ = conn.Close()
		}
		lastErr = err
		if time.Now().After(deadline) {
			return nil, lastErr
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// DeleteNamespace stops the helper and removes the namespace. A namespace
// that still holds interfaces is busy and must be detached first.
func (m *Manager) DeleteNamespace(nsID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.helpers[nsID]
	if !ok {
		// After a restart the namespace may be live with no helper yet.
		adopted, err := m.adoptLocked(nsID)
		if err != nil {
			return err
		}
		h = adopted
	}

	ifaces, err := h.conn.ListInterfaces()
	if err != nil {
		return err
	}
	if len(ifaces) > 0 {
		werr := errors.Errorf(errors.KindResourceBusy, "namespace %s still holds %d interface(s)", h.name, len(ifaces))
		return errors.Attr(werr, "interfaces", ifaces)
	}

	m.stopHelperLocked(nsID, h)
	if err := m.ops.Delete(h.name); err != nil {
		return classifyNS(err, "delete", h.name)
	}
	m.logger.Info("Namespace deleted", "namespace", h.name)
	return nil
}

// ConfigureInterface addresses a device inside the namespace.
func (m *Manager) ConfigureInterface(nsID uuid.UUID, device, address, gateway string) error {
	conn, err := m.connFor(nsID)
	if err != nil {
		return err
	}
	return conn.ConfigureInterface(device, address, gateway)
}

// MoveInterfaceOut asks the helper to push a device back to the host.
func (m *Manager) MoveInterfaceOut(nsID uuid.UUID, device string) error {
	conn, err := m.connFor(nsID)
	if err != nil {
		return err
	}
	return conn.MoveInterfaceOut(device)
}

// ListInterfaces returns the devices currently inside the namespace.
func (m *Manager) ListInterfaces(nsID uuid.UUID) ([]string, error) {
	conn, err := m.connFor(nsID)
	if err != nil {
		return nil, err
	}
	return conn.ListInterfaces()
}

// ListManagedNamespaces returns the fognet-owned named namespaces present on
// the host, whether or not a helper currently serves them.
func (m *Manager) ListManagedNamespaces() ([]string, error) {
	all, err := m.ops.List()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindKernelReject, "failed to list namespaces")
	}
	var owned []string
	for _, name := range all {
		if names.OwnsNamespace(name) {
			owned = append(owned, name)
		}
	}
	return owned, nil
}

// RemoveOrphan deletes a managed namespace that no registry entity claims.
// Unlike DeleteNamespace it needs no helper; reconcile uses it for leftovers
// from a previous run.
func (m *Manager) RemoveOrphan(name string) error {
	if err := m.ops.Delete(name); err != nil {
		return classifyNS(err, "delete", name)
	}
	return nil
}

// Shutdown stops every helper but leaves the namespaces in place for the
// next daemon instance to re-adopt.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for nsID, h := range m.helpers {
		m.stopHelperLocked(nsID, h)
	}
}

func (m *Manager) connFor(nsID uuid.UUID) (helperConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.helpers[nsID]
	if !ok {
		adopted, err := m.adoptLocked(nsID)
		if err != nil {
			return nil, err
		}
		h = adopted
	}
	return h.conn, nil
}

// stopHelperLocked terminates one helper. Caller holds m.mu.
func (m *Manager) stopHelperLocked(nsID uuid.UUID, h *helper) {
	_ = h.conn.Close()
	if err := h.proc.Signal(syscall.SIGTERM); err == nil {
		done := make(chan struct{})
		go func() {
			_ = h.proc.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(m.timeout):
			m.logger.Warn("Namespace helper ignored SIGTERM, killing", "namespace", h.name)
			_ = h.proc.Signal(syscall.SIGKILL)
			<-done
		}
	}
	_ = os.Remove(h.socket)
	delete(m.helpers, nsID)
}

func classifyNS(err error, op, name string) error {
	kind := errors.KindKernelReject
	switch {
	case os.IsPermission(err):
		kind = errors.KindPermissionDenied
	case os.IsNotExist(err):
		kind = errors.KindNotFound
	case os.IsExist(err):
		kind = errors.KindAlreadyExists
	}
	werr := errors.Wrapf(err, kind, "failed to %s namespace %s", op, name)
	return errors.Attr(werr, "namespace", name)
}
