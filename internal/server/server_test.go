// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/fognet/internal/config"
	"grimm.is/fognet/internal/dispatcher"
	"grimm.is/fognet/internal/dnsmasq"
	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/firewall"
	"grimm.is/fognet/internal/registry"
)

// nopDriver satisfies netlink.Driver without touching the kernel.
type nopDriver struct{}

func (nopDriver) CreateBridge(string) error                   { return nil }
func (nopDriver) DeleteBridge(string) error                   { return nil }
func (nopDriver) CreateVethPair(string, string) error         { return nil }
func (nopDriver) DeleteInterface(string) error                { return nil }
func (nopDriver) SetInterfaceUp(string) error                 { return nil }
func (nopDriver) SetInterfaceDown(string) error               { return nil }
func (nopDriver) AssignAddress(string, string) error          { return nil }
func (nopDriver) SetMaster(string, string) error              { return nil }
func (nopDriver) UnsetMaster(string) error                    { return nil }
func (nopDriver) MoveInterfaceToNamespace(string, string) error { return nil }
func (nopDriver) InterfaceExists(string) (bool, error)        { return false, nil }
func (nopDriver) ListManagedDevices() ([]string, error)       { return nil, nil }

type nopFirewall struct{}

func (nopFirewall) ApplyRuleSet(*firewall.RuleSet) error  { return nil }
func (nopFirewall) RemoveRuleSet(uuid.UUID) error         { return nil }

type nopNamespaces struct{}

func (nopNamespaces) EnsureNamespace(uuid.UUID, string) error                 { return nil }
func (nopNamespaces) DeleteNamespace(uuid.UUID) error                         { return nil }
func (nopNamespaces) ConfigureInterface(uuid.UUID, string, string, string) error { return nil }
func (nopNamespaces) MoveInterfaceOut(uuid.UUID, string) error                { return nil }

type nopDHCP struct{}

func (nopDHCP) Start(dnsmasq.Params) error       { return nil }
func (nopDHCP) Stop(uuid.UUID) error             { return nil }
func (nopDHCP) Cleanup(uuid.UUID) error          { return nil }
func (nopDHCP) ConfigPath(uuid.UUID) string      { return "" }

func testClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()
	store, err := registry.Open(filepath.Join(dir, "registry.db"), uuid.New(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.UplinkInterface = "eth0"
	d := dispatcher.New(store, nopDriver{}, nopFirewall{}, nopNamespaces{}, nopDHCP{}, nil, cfg, nil)

	srv := New(d, "test", nil)
	socket := filepath.Join(dir, "ctl.sock")
	go srv.Serve(socket)
	t.Cleanup(srv.Stop)

	var client *Client
	require.Eventually(t, func() bool {
		client, err = Dial(socket, time.Second)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPing(t *testing.T) {
	client := testClient(t)
	version, err := client.Ping()
	require.NoError(t, err)
	assert.Equal(t, "test", version)
}

func TestNetworkLifecycleOverSocket(t *testing.T) {
	client := testClient(t)

	id, err := client.CreateNetwork(CreateNetworkArgs{
		Name:    "app-net",
		Subnet:  "10.10.0.0/24",
		Gateway: "10.10.0.1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ifID, device, err := client.AddInterface(id, "10.10.0.5/24")
	require.NoError(t, err)
	assert.NotEmpty(t, device)

	require.NoError(t, client.Attach(ifID, "ns-app1"))

	view, err := client.GetNetwork(id)
	require.NoError(t, err)
	assert.Equal(t, "app-net", view.Name)
	require.Len(t, view.Interfaces, 1)
	assert.NotEmpty(t, view.Interfaces[0].NamespaceID)

	// Deleting with an attached interface is rejected with its kind intact.
	err = client.DeleteNetwork(id)
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))

	require.NoError(t, client.Detach(ifID))
	require.NoError(t, client.RemoveInterface(ifID))
	require.NoError(t, client.DeleteNetwork(id))

	networks, err := client.ListNetworks()
	require.NoError(t, err)
	assert.Empty(t, networks)
}

func TestErrorKindsSurviveWire(t *testing.T) {
	client := testClient(t)

	err := client.DeleteNetwork(uuid.NewString())
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))

	_, err = client.GetNetwork("not-a-uuid")
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	_, err = client.CreateNetwork(CreateNetworkArgs{Name: "n", Subnet: "bogus"})
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestDialUnreachable(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "missing.sock"), 100*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, errors.KindUnavailable, errors.GetKind(err))
	assert.True(t, errors.Retryable(err))
}
