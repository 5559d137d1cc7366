// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package registry

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/names"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "registry.db"), uuid.New(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testNetwork(name string) *VirtualNetwork {
	id := uuid.New()
	return &VirtualNetwork{
		ID:           id,
		Name:         name,
		Subnet:       "10.64.1.0/24",
		Gateway:      "10.64.1.1",
		BridgeDevice: names.Bridge(id),
	}
}

func TestNetworkCRUD(t *testing.T) {
	s := testStore(t)
	n := testNetwork("app-net")
	require.NoError(t, s.PutNetwork(n))

	got, err := s.GetNetwork(n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.Name, got.Name)
	assert.Equal(t, n.BridgeDevice, got.BridgeDevice)
	assert.Equal(t, StateActive, got.State)

	byName, err := s.GetNetworkByName("app-net")
	require.NoError(t, err)
	assert.Equal(t, n.ID, byName.ID)

	all, err := s.ListNetworks()
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.DeleteNetwork(n.ID))
	_, err = s.GetNetwork(n.ID)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))

	err = s.DeleteNetwork(n.ID)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestNetworkNameConflict(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.PutNetwork(testNetwork("dup")))

	err := s.PutNetwork(testNetwork("dup"))
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))
}

func TestNetworkUpdateInPlace(t *testing.T) {
	s := testStore(t)
	n := testNetwork("net")
	require.NoError(t, s.PutNetwork(n))

	n.State = StateOrphaned
	require.NoError(t, s.PutNetwork(n))

	got, err := s.GetNetwork(n.ID)
	require.NoError(t, err)
	assert.Equal(t, StateOrphaned, got.State)
}

func TestInterfaceCRUD(t *testing.T) {
	s := testStore(t)
	n := testNetwork("net")
	require.NoError(t, s.PutNetwork(n))

	ifID := uuid.New()
	in, ex := names.VethPair(ifID)
	iface := &Interface{
		ID:         ifID,
		Device:     in,
		PeerDevice: ex,
		NetworkID:  &n.ID,
		Address:    "10.64.1.2/24",
	}
	require.NoError(t, s.PutInterface(iface))

	got, err := s.GetInterface(ifID)
	require.NoError(t, err)
	require.NotNil(t, got.NetworkID)
	assert.Equal(t, n.ID, *got.NetworkID)
	assert.Nil(t, got.NamespaceID)

	// Attach to a namespace.
	nsID := uuid.New()
	got.NamespaceID = &nsID
	require.NoError(t, s.PutInterface(got))

	inNS, err := s.ListNamespaceInterfaces(nsID)
	require.NoError(t, err)
	require.Len(t, inNS, 1)

	inNet, err := s.ListNetworkInterfaces(n.ID)
	require.NoError(t, err)
	require.Len(t, inNet, 1)

	require.NoError(t, s.DeleteInterface(ifID))
	_, err = s.GetInterface(ifID)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestNamespaceCRUD(t *testing.T) {
	s := testStore(t)
	ns := &Namespace{ID: uuid.New(), Name: "ns-app1"}
	require.NoError(t, s.PutNamespace(ns))

	got, err := s.GetNamespaceByName("ns-app1")
	require.NoError(t, err)
	assert.Equal(t, ns.ID, got.ID)

	err = s.PutNamespace(&Namespace{ID: uuid.New(), Name: "ns-app1"})
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))

	require.NoError(t, s.DeleteNamespace(ns.ID))
	_, err = s.GetNamespace(ns.ID)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestRuleSetAndDHCPState(t *testing.T) {
	s := testStore(t)
	n := testNetwork("net")
	require.NoError(t, s.PutNetwork(n))

	require.NoError(t, s.PutRuleSet(&RuleSetRecord{NetworkID: n.ID, Rules: `[{"action":"masquerade"}]`}))
	rs, err := s.GetRuleSet(n.ID)
	require.NoError(t, err)
	assert.Contains(t, rs.Rules, "masquerade")

	require.NoError(t, s.PutDHCP(&DHCPRecord{NetworkID: n.ID, Running: true, ConfigPath: "/run/fognet/networks/x/dnsmasq.conf"}))
	d, err := s.GetDHCP(n.ID)
	require.NoError(t, err)
	assert.True(t, d.Running)

	// Deleting the network sweeps its dependent records.
	require.NoError(t, s.DeleteNetwork(n.ID))
	_, err = s.GetRuleSet(n.ID)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
	_, err = s.GetDHCP(n.ID)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestNodeScoping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	nodeA, err := Open(path, uuid.New(), nil)
	require.NoError(t, err)
	defer nodeA.Close()

	n := testNetwork("shared-name")
	require.NoError(t, nodeA.PutNetwork(n))
	nodeA.Close()

	nodeB, err := Open(path, uuid.New(), nil)
	require.NoError(t, err)
	defer nodeB.Close()

	// Another node sees nothing and may reuse the name.
	_, err = nodeB.GetNetwork(n.ID)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
	require.NoError(t, nodeB.PutNetwork(testNetwork("shared-name")))
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	nodeID := uuid.New()

	s, err := Open(path, nodeID, nil)
	require.NoError(t, err)
	n := testNetwork("persistent")
	require.NoError(t, s.PutNetwork(n))
	require.NoError(t, s.Close())

	s, err = Open(path, nodeID, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetNetwork(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "persistent", got.Name)
}
