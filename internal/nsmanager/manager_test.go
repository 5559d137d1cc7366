// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nsmanager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/names"
)

type fakeOps struct {
	namespaces map[string]bool
	createErr  error
}

func newFakeOps() *fakeOps {
	return &fakeOps{namespaces: make(map[string]bool)}
}

func (o *fakeOps) Create(name string) error {
	if o.createErr != nil {
		return o.createErr
	}
	o.namespaces[name] = true
	return nil
}

func (o *fakeOps) Delete(name string) error {
	delete(o.namespaces, name)
	return nil
}

func (o *fakeOps) Exists(name string) (bool, error) {
	return o.namespaces[name], nil
}

func (o *fakeOps) List() ([]string, error) {
	var out []string
	for name := range o.namespaces {
		out = append(out, name)
	}
	return out, nil
}

type fakeProc struct {
	pid      int
	signaled []os.Signal
}

func (p *fakeProc) Pid() int { return p.pid }
func (p *fakeProc) Signal(sig os.Signal) error {
	p.signaled = append(p.signaled, sig)
	return nil
}
func (p *fakeProc) Wait() error { return nil }

type fakeHelperConn struct {
	interfaces []string
	pingErr    error
	closed     bool
	configured []ConfigureInterfaceArgs
	movedOut   []string
}

func (c *fakeHelperConn) Ping() (int, error) {
	if c.pingErr != nil {
		return 0, c.pingErr
	}
	return 1234, nil
}
func (c *fakeHelperConn) ListInterfaces() ([]string, error) { return c.interfaces, nil }
func (c *fakeHelperConn) ConfigureInterface(device, address, gateway string) error {
	c.configured = append(c.configured, ConfigureInterfaceArgs{Device: device, Address: address, Gateway: gateway})
	return nil
}
func (c *fakeHelperConn) MoveInterfaceOut(device string) error {
	c.movedOut = append(c.movedOut, device)
	return nil
}
func (c *fakeHelperConn) Close() error {
	c.closed = true
	return nil
}

// testManager wires a Manager to fakes and records the last spawned process
// and connection.
func testManager(t *testing.T, ops NamespaceOps) (*Manager, *fakeProc, *fakeHelperConn) {
	t.Helper()
	proc := &fakeProc{pid: 1234}
	conn := &fakeHelperConn{}
	dir := t.TempDir()
	m := NewManager(ops, "fognet-nsmgr", 200*time.Millisecond, nil)
	m.socketFor = func(nsID uuid.UUID) string {
		return filepath.Join(dir, nsID.String()+".sock")
	}
	m.spawn = func(binary, nsName, id, socket string) (helperProc, error) {
		return proc, nil
	}
	m.dial = func(socket string, timeout time.Duration) (helperConn, error) {
		return conn, nil
	}
	return m, proc, conn
}

func TestEnsureNamespace(t *testing.T) {
	ops := newFakeOps()
	m, _, _ := testManager(t, ops)
	nsID := uuid.New()
	nsName := names.Namespace(nsID)

	require.NoError(t, m.EnsureNamespace(nsID, nsName))
	assert.True(t, ops.namespaces[nsName])

	// Second call with a live helper is a no-op.
	require.NoError(t, m.EnsureNamespace(nsID, nsName))
}

func TestEnsureNamespaceSpawnFailure(t *testing.T) {
	ops := newFakeOps()
	m, _, _ := testManager(t, ops)
	m.spawn = func(binary, nsName, id, socket string) (helperProc, error) {
		return nil, os.ErrPermission
	}
	nsID := uuid.New()
	nsName := names.Namespace(nsID)

	err := m.EnsureNamespace(nsID, nsName)
	require.Error(t, err)
	assert.Equal(t, errors.KindDaemonStart, errors.GetKind(err))
	// The namespace created for this attempt is rolled back.
	assert.False(t, ops.namespaces[nsName])
}

func TestEnsureNamespaceHelperNeverReady(t *testing.T) {
	ops := newFakeOps()
	m, proc, conn := testManager(t, ops)
	conn.pingErr = errors.New(errors.KindUnavailable, "not up yet")
	nsID := uuid.New()

	err := m.EnsureNamespace(nsID, names.Namespace(nsID))
	require.Error(t, err)
	assert.Equal(t, errors.KindDaemonStart, errors.GetKind(err))
	assert.NotEmpty(t, proc.signaled, "stuck helper must be killed")
}

func TestDeleteNamespace(t *testing.T) {
	ops := newFakeOps()
	m, proc, conn := testManager(t, ops)
	nsID := uuid.New()
	nsName := names.Namespace(nsID)
	require.NoError(t, m.EnsureNamespace(nsID, nsName))

	require.NoError(t, m.DeleteNamespace(nsID))
	assert.False(t, ops.namespaces[nsName])
	assert.True(t, conn.closed)
	assert.NotEmpty(t, proc.signaled)

	// Gone now.
	err := m.DeleteNamespace(nsID)
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestDeleteNamespaceBusy(t *testing.T) {
	ops := newFakeOps()
	m, _, conn := testManager(t, ops)
	nsID := uuid.New()
	nsName := names.Namespace(nsID)
	require.NoError(t, m.EnsureNamespace(nsID, nsName))

	conn.interfaces = []string{"fve-aabbccddi"}
	err := m.DeleteNamespace(nsID)
	require.Error(t, err)
	assert.Equal(t, errors.KindResourceBusy, errors.GetKind(err))
	assert.True(t, errors.Retryable(err))
	assert.True(t, ops.namespaces[nsName], "busy namespace must not be deleted")
}

func TestInterfaceOpsThroughHelper(t *testing.T) {
	ops := newFakeOps()
	m, _, conn := testManager(t, ops)
	nsID := uuid.New()
	require.NoError(t, m.EnsureNamespace(nsID, names.Namespace(nsID)))

	require.NoError(t, m.ConfigureInterface(nsID, "fve-aabbccddi", "10.64.1.2/24", "10.64.1.1"))
	require.Len(t, conn.configured, 1)

	require.NoError(t, m.MoveInterfaceOut(nsID, "fve-aabbccddi"))
	assert.Equal(t, []string{"fve-aabbccddi"}, conn.movedOut)

	_, err := m.ListInterfaces(uuid.New())
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestRestartAdoptsExistingNamespace(t *testing.T) {
	ops := newFakeOps()
	nsID := uuid.New()
	// A previous daemon run left the namespace behind; this manager never
	// spawned a helper for it.
	ops.namespaces[names.Namespace(nsID)] = true
	m, _, conn := testManager(t, ops)

	require.NoError(t, m.MoveInterfaceOut(nsID, "fve-aabbccddi"))
	assert.Equal(t, []string{"fve-aabbccddi"}, conn.movedOut)

	// Once empty, the adopted namespace can be deleted like any other.
	require.NoError(t, m.DeleteNamespace(nsID))
	assert.False(t, ops.namespaces[names.Namespace(nsID)])
}

func TestDeleteNamespaceAdoptsAfterRestart(t *testing.T) {
	ops := newFakeOps()
	nsID := uuid.New()
	ops.namespaces[names.Namespace(nsID)] = true
	m, _, conn := testManager(t, ops)

	// Still holds a device, so delete must report busy, not NotFound.
	conn.interfaces = []string{"fve-aabbccddi"}
	err := m.DeleteNamespace(nsID)
	require.Error(t, err)
	assert.Equal(t, errors.KindResourceBusy, errors.GetKind(err))
	assert.True(t, ops.namespaces[names.Namespace(nsID)])
}

func TestListManagedNamespaces(t *testing.T) {
	ops := newFakeOps()
	ops.namespaces["fns-6ba7b810"] = true
	ops.namespaces["default"] = true
	m, _, _ := testManager(t, ops)

	owned, err := m.ListManagedNamespaces()
	require.NoError(t, err)
	assert.Equal(t, []string{"fns-6ba7b810"}, owned)
}

func TestShutdownLeavesNamespaces(t *testing.T) {
	ops := newFakeOps()
	m, proc, _ := testManager(t, ops)
	nsID := uuid.New()
	nsName := names.Namespace(nsID)
	require.NoError(t, m.EnsureNamespace(nsID, nsName))

	m.Shutdown()
	assert.NotEmpty(t, proc.signaled)
	assert.True(t, ops.namespaces[nsName], "shutdown keeps namespaces for re-adoption")
}
