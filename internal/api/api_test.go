// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/fognet/internal/config"
	"grimm.is/fognet/internal/dispatcher"
	"grimm.is/fognet/internal/dnsmasq"
	"grimm.is/fognet/internal/firewall"
	"grimm.is/fognet/internal/metrics"
	"grimm.is/fognet/internal/registry"
)

type nopDriver struct{}

func (nopDriver) CreateBridge(string) error                     { return nil }
func (nopDriver) DeleteBridge(string) error                     { return nil }
func (nopDriver) CreateVethPair(string, string) error           { return nil }
func (nopDriver) DeleteInterface(string) error                  { return nil }
func (nopDriver) SetInterfaceUp(string) error                   { return nil }
func (nopDriver) SetInterfaceDown(string) error                 { return nil }
func (nopDriver) AssignAddress(string, string) error            { return nil }
func (nopDriver) SetMaster(string, string) error                { return nil }
func (nopDriver) UnsetMaster(string) error                      { return nil }
func (nopDriver) MoveInterfaceToNamespace(string, string) error { return nil }
func (nopDriver) InterfaceExists(string) (bool, error)          { return false, nil }
func (nopDriver) ListManagedDevices() ([]string, error)         { return nil, nil }

type nopFirewall struct{}

func (nopFirewall) ApplyRuleSet(*firewall.RuleSet) error { return nil }
func (nopFirewall) RemoveRuleSet(uuid.UUID) error        { return nil }

type nopNamespaces struct{}

func (nopNamespaces) EnsureNamespace(uuid.UUID, string) error                    { return nil }
func (nopNamespaces) DeleteNamespace(uuid.UUID) error                            { return nil }
func (nopNamespaces) ConfigureInterface(uuid.UUID, string, string, string) error { return nil }
func (nopNamespaces) MoveInterfaceOut(uuid.UUID, string) error                   { return nil }

type nopDHCP struct{}

func (nopDHCP) Start(dnsmasq.Params) error  { return nil }
func (nopDHCP) Stop(uuid.UUID) error        { return nil }
func (nopDHCP) Cleanup(uuid.UUID) error     { return nil }
func (nopDHCP) ConfigPath(uuid.UUID) string { return "" }

func testServer(t *testing.T) (*httptest.Server, *dispatcher.Dispatcher) {
	t.Helper()
	store, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"), uuid.New(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.UplinkInterface = "eth0"
	m := metrics.New()
	d := dispatcher.New(store, nopDriver{}, nopFirewall{}, nopNamespaces{}, nopDHCP{}, m, cfg, nil)

	srv := httptest.NewServer(New(d, m, "test", nil).Router())
	t.Cleanup(srv.Close)
	return srv, d
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)
	var health healthResponse
	status := getJSON(t, srv.URL+"/healthz", &health)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestListAndGetNetworks(t *testing.T) {
	srv, d := testServer(t)

	var networks []networkResponse
	status := getJSON(t, srv.URL+"/v1/networks", &networks)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, networks)

	id, err := d.CreateNetwork(dispatcher.CreateNetworkSpec{
		Name:    "app-net",
		Subnet:  "10.10.0.0/24",
		Gateway: "10.10.0.1",
	})
	require.NoError(t, err)
	_, err = d.AddInterface(id, dispatcher.AddInterfaceSpec{Address: "10.10.0.5/24"})
	require.NoError(t, err)

	status = getJSON(t, srv.URL+"/v1/networks", &networks)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, networks, 1)
	assert.Equal(t, "app-net", networks[0].Name)
	require.Len(t, networks[0].Interfaces, 1)

	var network networkResponse
	status = getJSON(t, srv.URL+"/v1/networks/"+id.String(), &network)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, id.String(), network.ID)
}

func TestGetNetworkErrors(t *testing.T) {
	srv, _ := testServer(t)

	status := getJSON(t, srv.URL+"/v1/networks/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status = getJSON(t, srv.URL+"/v1/networks/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, d := testServer(t)
	_, err := d.CreateNetwork(dispatcher.CreateNetworkSpec{Name: "n", Subnet: "10.10.0.0/24"})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
