// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dispatcher sequences lifecycle operations across the kernel
// driver, firewall, namespace manager, and DHCP service.
//
// Every mutating operation follows the same contract: validate against the
// registry, take the target network's exclusive lock, apply side effects in
// a fixed order (links before firewall before DHCP, reverse on teardown),
// and commit the registry only after every side effect succeeded. On
// failure the already-applied effects are reversed best-effort and a typed
// error is returned; the registry never holds a partially-created entity.
package dispatcher

import (
	"encoding/binary"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/fognet/internal/config"
	"grimm.is/fognet/internal/dnsmasq"
	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/firewall"
	"grimm.is/fognet/internal/logging"
	"grimm.is/fognet/internal/metrics"
	"grimm.is/fognet/internal/names"
	"grimm.is/fognet/internal/netlink"
	"grimm.is/fognet/internal/registry"
)

// Firewall is the slice of firewall.Manager the dispatcher needs.
type Firewall interface {
	ApplyRuleSet(rs *firewall.RuleSet) error
	RemoveRuleSet(networkID uuid.UUID) error
}

// Namespaces is the slice of nsmanager.Manager the dispatcher needs.
type Namespaces interface {
	EnsureNamespace(nsID uuid.UUID, name string) error
	DeleteNamespace(nsID uuid.UUID) error
	ConfigureInterface(nsID uuid.UUID, device, address, gateway string) error
	MoveInterfaceOut(nsID uuid.UUID, device string) error
}

// DHCP is the slice of dnsmasq.Service the dispatcher needs.
type DHCP interface {
	Start(p dnsmasq.Params) error
	Stop(networkID uuid.UUID) error
	Cleanup(networkID uuid.UUID) error
	ConfigPath(networkID uuid.UUID) string
}

// CreateNetworkSpec describes a network to create.
type CreateNetworkSpec struct {
	Name      string
	Subnet    string // CIDR
	Gateway   string // optional; must fall inside Subnet
	DHCPStart string // optional; with DHCPEnd enables DHCP
	DHCPEnd   string
}

// AddInterfaceSpec describes an interface to create on a network. Only veth
// pairs are supported.
type AddInterfaceSpec struct {
	Address string // optional CIDR for the workload-side endpoint
}

// Dispatcher is the lifecycle orchestration core.
type Dispatcher struct {
	store   *registry.Store
	driver  netlink.Driver
	fw      Firewall
	ns      Namespaces
	dhcp    DHCP
	metrics *metrics.Metrics
	logger  *logging.Logger

	uplink      string
	defaultPool string
	dhcpPolicy  config.DHCPFailurePolicy

	// Per-network exclusive locks plus a worker-pool bound on concurrent
	// mutations across networks.
	lockMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
	sem    chan struct{}

	// createMu serializes network creation: the name, pool, and overlap
	// checks must see the same network set the commit does, and a fresh
	// network id has no per-network lock to take yet.
	createMu sync.Mutex
}

// New wires a dispatcher. workers bounds concurrent mutating operations.
func New(store *registry.Store, driver netlink.Driver, fw Firewall, ns Namespaces, dhcp DHCP,
	m *metrics.Metrics, cfg *config.Config, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		store:      store,
		driver:     driver,
		fw:         fw,
		ns:         ns,
		dhcp:       dhcp,
		metrics:    m,
		logger:     logger.WithComponent("dispatcher"),
		uplink:      cfg.UplinkInterface,
		defaultPool: cfg.DefaultSubnet,
		dhcpPolicy:  cfg.DHCPFailurePolicy,
		locks:      make(map[uuid.UUID]*sync.Mutex),
		sem:        make(chan struct{}, workers),
	}
}

// lockNetwork serializes mutations per network and bounds total in-flight
// mutations. Returns the unlock function.
func (d *Dispatcher) lockNetwork(id uuid.UUID) func() {
	d.sem <- struct{}{}
	d.lockMu.Lock()
	mu, ok := d.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		d.locks[id] = mu
	}
	d.lockMu.Unlock()
	mu.Lock()
	return func() {
		mu.Unlock()
		<-d.sem
	}
}

func (d *Dispatcher) observe(op string, start time.Time, err error) {
	if d.metrics != nil {
		d.metrics.Observe(op, start, err)
	}
}

// CreateNetwork realizes a new virtual network: bridge, gateway address,
// firewall policy, and (when a range is given) a DHCP daemon.
func (d *Dispatcher) CreateNetwork(spec CreateNetworkSpec) (id uuid.UUID, err error) {
	start := time.Now()
	defer func() { d.observe("create_network", start, err) }()

	if spec.Name == "" {
		return uuid.Nil, errors.New(errors.KindValidation, "network name is required")
	}
	if (spec.DHCPStart == "") != (spec.DHCPEnd == "") {
		return uuid.Nil, errors.New(errors.KindValidation, "dhcp range requires both start and end")
	}

	d.createMu.Lock()
	defer d.createMu.Unlock()

	if existing, gerr := d.store.GetNetworkByName(spec.Name); gerr == nil {
		return uuid.Nil, errors.Errorf(errors.KindConflict, "network name %q already used by %s", spec.Name, existing.ID)
	}
	others, err := d.store.ListNetworks()
	if err != nil {
		return uuid.Nil, err
	}

	// A request without a subnet gets the next free /24 from the pool.
	if spec.Subnet == "" && d.defaultPool != "" {
		taken := make([]string, 0, len(others))
		for _, other := range others {
			taken = append(taken, other.Subnet)
		}
		allocated, gw, aerr := allocateSubnet(d.defaultPool, taken)
		if aerr != nil {
			return uuid.Nil, aerr
		}
		spec.Subnet = allocated
		if spec.Gateway == "" {
			spec.Gateway = gw
		}
	}

	subnet, err := validateSubnet(spec.Subnet, spec.Gateway)
	if err != nil {
		return uuid.Nil, err
	}
	for _, other := range others {
		if cidrsOverlap(spec.Subnet, other.Subnet) {
			return uuid.Nil, errors.Errorf(errors.KindConflict, "subnet %s overlaps network %s (%s)", spec.Subnet, other.Name, other.Subnet)
		}
	}

	id = uuid.New()
	unlock := d.lockNetwork(id)
	defer unlock()

	bridge := names.Bridge(id)
	log := d.logger.WithFields("network", spec.Name, "network_id", id)

	// 1. Link layer.
	if err = d.driver.CreateBridge(bridge); err != nil {
		return uuid.Nil, err
	}
	if spec.Gateway != "" {
		gwCIDR := gatewayCIDR(spec.Gateway, subnet)
		if err = d.driver.AssignAddress(bridge, gwCIDR); err != nil {
			d.compensate(log, "delete bridge", func() error { return d.driver.DeleteBridge(bridge) })
			return uuid.Nil, err
		}
	}

	// 2. Firewall.
	var isolatedFrom []string
	for _, other := range others {
		isolatedFrom = append(isolatedFrom, other.Subnet)
	}
	rs := firewall.DefaultRuleSet(id, spec.Subnet, d.uplink, isolatedFrom)
	if err = d.fw.ApplyRuleSet(rs); err != nil {
		d.compensate(log, "delete bridge", func() error { return d.driver.DeleteBridge(bridge) })
		return uuid.Nil, err
	}

	// 3. DHCP, when a range was requested.
	dhcpRunning := false
	if spec.DHCPStart != "" {
		dns := spec.Gateway
		if dns == "" {
			dns = spec.DHCPStart
		}
		params := dnsmasq.Params{
			NetworkID:  id,
			Interface:  bridge,
			RangeStart: spec.DHCPStart,
			RangeEnd:   spec.DHCPEnd,
			Gateway:    spec.Gateway,
			DNS:        dns,
		}
		if derr := d.dhcp.Start(params); derr != nil {
			if d.dhcpPolicy == config.DHCPFailureRollback {
				d.compensate(log, "remove ruleset", func() error { return d.fw.RemoveRuleSet(id) })
				d.compensate(log, "delete bridge", func() error { return d.driver.DeleteBridge(bridge) })
				err = derr
				return uuid.Nil, err
			}
			// Degrade: the network stands, DHCP does not. The orchestrator
			// sees success; the registry records the daemon as stopped.
			log.Warn("DHCP start failed, network created degraded", "error", derr)
		} else {
			dhcpRunning = true
		}
	}

	// 4. Registry commit.
	rulesJSON, _ := json.Marshal(rs.Rules)
	n := &registry.VirtualNetwork{
		ID:           id,
		Name:         spec.Name,
		Subnet:       spec.Subnet,
		Gateway:      spec.Gateway,
		DHCPStart:    spec.DHCPStart,
		DHCPEnd:      spec.DHCPEnd,
		BridgeDevice: bridge,
	}
	if err = d.store.PutNetwork(n); err != nil {
		d.rollbackNetwork(log, id, bridge, dhcpRunning)
		return uuid.Nil, err
	}
	_ = d.store.PutRuleSet(&registry.RuleSetRecord{NetworkID: id, Rules: string(rulesJSON)})
	if spec.DHCPStart != "" {
		_ = d.store.PutDHCP(&registry.DHCPRecord{NetworkID: id, Running: dhcpRunning, ConfigPath: d.dhcp.ConfigPath(id)})
	}

	log.Info("Network created", "bridge", bridge, "subnet", spec.Subnet, "dhcp", dhcpRunning)
	d.updateGauges()
	return id, nil
}

// DeleteNetwork tears a network down in reverse creation order. A network
// with attached interfaces is a Conflict; detach them first.
func (d *Dispatcher) DeleteNetwork(id uuid.UUID) (err error) {
	start := time.Now()
	defer func() { d.observe("delete_network", start, err) }()

	unlock := d.lockNetwork(id)
	defer unlock()

	n, err := d.store.GetNetwork(id)
	if err != nil {
		return err
	}
	attached, err := d.store.ListNetworkInterfaces(id)
	if err != nil {
		return err
	}
	if len(attached) > 0 {
		werr := errors.Errorf(errors.KindConflict, "network %s has %d attached interface(s)", n.Name, len(attached))
		return errors.Attr(werr, "network_id", id.String())
	}

	log := d.logger.WithFields("network", n.Name, "network_id", id)

	// Reverse order: DHCP, firewall, link.
	if n.DHCPStart != "" {
		if err = d.dhcp.Stop(id); err != nil {
			return err
		}
		_ = d.dhcp.Cleanup(id)
	}
	if err = d.fw.RemoveRuleSet(id); err != nil {
		return err
	}
	if err = d.driver.DeleteBridge(n.BridgeDevice); err != nil && errors.GetKind(err) != errors.KindNotFound {
		return err
	}

	if err = d.store.DeleteNetwork(id); err != nil {
		return err
	}

	// The network is gone; its lock entry would otherwise accumulate.
	d.lockMu.Lock()
	delete(d.locks, id)
	d.lockMu.Unlock()

	log.Info("Network deleted")
	d.updateGauges()
	return nil
}

// AddInterface creates a veth pair on the network: one endpoint enslaved to
// the bridge, the other handed to the workload.
func (d *Dispatcher) AddInterface(networkID uuid.UUID, spec AddInterfaceSpec) (id uuid.UUID, err error) {
	start := time.Now()
	defer func() { d.observe("add_interface", start, err) }()

	unlock := d.lockNetwork(networkID)
	defer unlock()

	n, err := d.store.GetNetwork(networkID)
	if err != nil {
		return uuid.Nil, err
	}
	if n.State == registry.StateOrphaned {
		return uuid.Nil, errors.Errorf(errors.KindConflict, "network %s is orphaned, delete it first", n.Name)
	}
	if spec.Address != "" {
		if err = addressInSubnet(spec.Address, n.Subnet); err != nil {
			return uuid.Nil, err
		}
	}

	id = uuid.New()
	device, peer := names.VethPair(id)
	log := d.logger.WithFields("network", n.Name, "interface_id", id)

	if err = d.driver.CreateVethPair(device, peer); err != nil {
		return uuid.Nil, err
	}
	undo := func() {
		d.compensate(log, "delete veth pair", func() error { return d.driver.DeleteInterface(device) })
	}
	if err = d.driver.SetMaster(peer, n.BridgeDevice); err != nil {
		undo()
		return uuid.Nil, err
	}
	if err = d.driver.SetInterfaceUp(peer); err != nil {
		undo()
		return uuid.Nil, err
	}
	if spec.Address != "" {
		if err = d.driver.AssignAddress(device, spec.Address); err != nil {
			undo()
			return uuid.Nil, err
		}
	}
	if err = d.driver.SetInterfaceUp(device); err != nil {
		undo()
		return uuid.Nil, err
	}

	iface := &registry.Interface{
		ID:         id,
		Device:     device,
		PeerDevice: peer,
		NetworkID:  &networkID,
		Address:    spec.Address,
	}
	if err = d.store.PutInterface(iface); err != nil {
		undo()
		return uuid.Nil, err
	}

	log.Info("Interface added", "device", device, "peer", peer)
	d.updateGauges()
	return id, nil
}

// RemoveInterface deletes a detached interface. An interface still inside a
// namespace must be detached first.
func (d *Dispatcher) RemoveInterface(id uuid.UUID) (err error) {
	start := time.Now()
	defer func() { d.observe("remove_interface", start, err) }()

	iface, err := d.store.GetInterface(id)
	if err != nil {
		return err
	}
	unlock := d.lockNetwork(lockScope(iface))
	defer unlock()

	// Re-read under the lock; a concurrent attach may have raced us.
	iface, err = d.store.GetInterface(id)
	if err != nil {
		return err
	}
	if iface.NamespaceID != nil {
		return errors.Errorf(errors.KindConflict, "interface %s is attached to a namespace, detach it first", id)
	}

	// Deleting either endpoint removes the pair.
	if err = d.driver.DeleteInterface(iface.Device); err != nil && errors.GetKind(err) != errors.KindNotFound {
		return err
	}
	if err = d.store.DeleteInterface(id); err != nil {
		return err
	}

	d.logger.Info("Interface removed", "interface_id", id, "device", iface.Device)
	d.updateGauges()
	return nil
}

// AttachToNamespace moves the interface's workload endpoint into the named
// namespace, creating the namespace lazily. Attaching an interface that is
// already in that namespace succeeds without side effects.
func (d *Dispatcher) AttachToNamespace(interfaceID uuid.UUID, namespaceName string) (err error) {
	start := time.Now()
	defer func() { d.observe("attach_to_namespace", start, err) }()

	if namespaceName == "" {
		return errors.New(errors.KindValidation, "namespace name is required")
	}

	iface, err := d.store.GetInterface(interfaceID)
	if err != nil {
		return err
	}
	unlock := d.lockNetwork(lockScope(iface))
	defer unlock()

	iface, err = d.store.GetInterface(interfaceID)
	if err != nil {
		return err
	}

	// Resolve or lazily create the namespace entity.
	nsEnt, gerr := d.store.GetNamespaceByName(namespaceName)
	newNamespace := false
	if gerr != nil {
		if errors.GetKind(gerr) != errors.KindNotFound {
			return gerr
		}
		nsEnt = &registry.Namespace{ID: uuid.New(), Name: namespaceName}
		newNamespace = true
	}

	if iface.NamespaceID != nil {
		if *iface.NamespaceID == nsEnt.ID {
			return nil // already attached, idempotent
		}
		return errors.Errorf(errors.KindConflict, "interface %s is already in another namespace", interfaceID)
	}

	log := d.logger.WithFields("interface_id", interfaceID, "namespace", namespaceName)

	// The kernel netns name derives from the entity id so reconcile can
	// recognize it after a restart; namespaceName is the registry-level name.
	kernelName := names.Namespace(nsEnt.ID)

	// EnsureNamespace is idempotent on the manager side too.
	if err = d.ns.EnsureNamespace(nsEnt.ID, kernelName); err != nil {
		return err
	}
	// A namespace created just for this attach is torn down again on any
	// later failure; a pre-existing one is left alone.
	undoNamespace := func() {
		if newNamespace {
			d.compensate(log, "delete namespace", func() error { return d.ns.DeleteNamespace(nsEnt.ID) })
		}
	}

	if err = d.driver.MoveInterfaceToNamespace(iface.Device, kernelName); err != nil {
		undoNamespace()
		return err
	}
	undoAttach := func() {
		d.compensate(log, "move interface back", func() error {
			return d.ns.MoveInterfaceOut(nsEnt.ID, iface.Device)
		})
		undoNamespace()
	}

	// Moving a link strips its addresses; reconfigure inside.
	if iface.Address != "" {
		gateway := ""
		if iface.NetworkID != nil {
			if n, nerr := d.store.GetNetwork(*iface.NetworkID); nerr == nil {
				gateway = n.Gateway
			}
		}
		if err = d.ns.ConfigureInterface(nsEnt.ID, iface.Device, iface.Address, gateway); err != nil {
			undoAttach()
			return err
		}
	}

	if newNamespace {
		if err = d.store.PutNamespace(nsEnt); err != nil {
			undoAttach()
			return err
		}
	}
	iface.NamespaceID = &nsEnt.ID
	if err = d.store.PutInterface(iface); err != nil {
		if newNamespace {
			d.compensate(log, "delete namespace record", func() error { return d.store.DeleteNamespace(nsEnt.ID) })
		}
		undoAttach()
		return err
	}

	log.Info("Interface attached")
	d.updateGauges()
	return nil
}

// DetachFromNamespace moves the interface back to the host namespace. When
// the namespace empties out it is removed along with its helper.
func (d *Dispatcher) DetachFromNamespace(interfaceID uuid.UUID) (err error) {
	start := time.Now()
	defer func() { d.observe("detach_from_namespace", start, err) }()

	iface, err := d.store.GetInterface(interfaceID)
	if err != nil {
		return err
	}
	unlock := d.lockNetwork(lockScope(iface))
	defer unlock()

	iface, err = d.store.GetInterface(interfaceID)
	if err != nil {
		return err
	}
	if iface.NamespaceID == nil {
		return errors.Errorf(errors.KindConflict, "interface %s is not attached to a namespace", interfaceID)
	}
	nsID := *iface.NamespaceID

	if err = d.ns.MoveInterfaceOut(nsID, iface.Device); err != nil && errors.GetKind(err) != errors.KindNotFound {
		return err
	}
	iface.NamespaceID = nil
	if err = d.store.PutInterface(iface); err != nil {
		return err
	}

	// Garbage-collect the namespace if this was its last interface.
	remaining, lerr := d.store.ListNamespaceInterfaces(nsID)
	if lerr == nil && len(remaining) == 0 {
		if derr := d.ns.DeleteNamespace(nsID); derr == nil {
			_ = d.store.DeleteNamespace(nsID)
		} else if errors.GetKind(derr) != errors.KindResourceBusy {
			d.logger.Warn("Failed to remove empty namespace", "namespace_id", nsID, "error", derr)
		}
	}

	d.logger.Info("Interface detached", "interface_id", interfaceID)
	d.updateGauges()
	return nil
}

// NetworkInfo is the read-model for list/get queries.
type NetworkInfo struct {
	Network    *registry.VirtualNetwork
	Interfaces []*registry.Interface
	DHCP       *registry.DHCPRecord
}

// GetNetwork returns one network with its interfaces. Read-only; no lock.
func (d *Dispatcher) GetNetwork(id uuid.UUID) (*NetworkInfo, error) {
	n, err := d.store.GetNetwork(id)
	if err != nil {
		return nil, err
	}
	ifaces, err := d.store.ListNetworkInterfaces(id)
	if err != nil {
		return nil, err
	}
	info := &NetworkInfo{Network: n, Interfaces: ifaces}
	if dh, derr := d.store.GetDHCP(id); derr == nil {
		info.DHCP = dh
	}
	return info, nil
}

// ListNetworks returns all networks with their interfaces. Read-only.
func (d *Dispatcher) ListNetworks() ([]*NetworkInfo, error) {
	networks, err := d.store.ListNetworks()
	if err != nil {
		return nil, err
	}
	out := make([]*NetworkInfo, 0, len(networks))
	for _, n := range networks {
		info, err := d.GetNetwork(n.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// compensate runs one best-effort reversal step, logging instead of
// propagating its failure: the original error is the one the caller needs.
func (d *Dispatcher) compensate(log *logging.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn("Compensation step failed", "step", what, "error", err)
	}
}

func (d *Dispatcher) rollbackNetwork(log *logging.Logger, id uuid.UUID, bridge string, dhcpRunning bool) {
	if dhcpRunning {
		d.compensate(log, "stop dhcp", func() error { return d.dhcp.Stop(id) })
	}
	d.compensate(log, "remove ruleset", func() error { return d.fw.RemoveRuleSet(id) })
	d.compensate(log, "delete bridge", func() error { return d.driver.DeleteBridge(bridge) })
}

func (d *Dispatcher) updateGauges() {
	if d.metrics == nil {
		return
	}
	if networks, err := d.store.ListNetworks(); err == nil {
		d.metrics.Networks.Set(float64(len(networks)))
	}
	if ifaces, err := d.store.ListInterfaces(); err == nil {
		d.metrics.Interfaces.Set(float64(len(ifaces)))
	}
	if nss, err := d.store.ListNamespaces(); err == nil {
		d.metrics.Namespaces.Set(float64(len(nss)))
	}
}

// lockScope picks the lock for an interface operation: its network when it
// has one, otherwise the shared detached-interface scope (uuid.Nil).
func lockScope(iface *registry.Interface) uuid.UUID {
	if iface.NetworkID != nil {
		return *iface.NetworkID
	}
	return uuid.Nil
}

func validateSubnet(subnet, gateway string) (*net.IPNet, error) {
	if subnet == "" {
		return nil, errors.New(errors.KindValidation, "subnet is required")
	}
	ip, ipnet, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindValidation, "invalid subnet %q", subnet)
	}
	if ip.To4() == nil {
		return nil, errors.Errorf(errors.KindValidation, "only IPv4 subnets are supported, got %q", subnet)
	}
	if gateway != "" {
		gw := net.ParseIP(gateway)
		if gw == nil {
			return nil, errors.Errorf(errors.KindValidation, "invalid gateway %q", gateway)
		}
		if !ipnet.Contains(gw) {
			return nil, errors.Errorf(errors.KindValidation, "gateway %s is outside subnet %s", gateway, subnet)
		}
	}
	return ipnet, nil
}

func addressInSubnet(address, subnet string) error {
	ip, _, err := net.ParseCIDR(address)
	if err != nil {
		return errors.Wrapf(err, errors.KindValidation, "invalid address %q", address)
	}
	_, ipnet, err := net.ParseCIDR(subnet)
	if err != nil {
		return errors.Wrapf(err, errors.KindValidation, "invalid subnet %q", subnet)
	}
	if !ipnet.Contains(ip) {
		return errors.Errorf(errors.KindValidation, "address %s is outside subnet %s", address, subnet)
	}
	return nil
}

// gatewayCIDR renders the gateway address with the subnet's prefix length
// for assignment to the bridge.
func gatewayCIDR(gateway string, subnet *net.IPNet) string {
	ones, _ := subnet.Mask.Size()
	return gateway + "/" + strconv.Itoa(ones)
}

// allocateSubnet carves the first free /24 out of the pool and pairs it with
// the first host address as gateway.
func allocateSubnet(pool string, taken []string) (subnet, gateway string, err error) {
	_, poolNet, err := net.ParseCIDR(pool)
	if err != nil {
		return "", "", errors.Wrapf(err, errors.KindValidation, "invalid default subnet pool %q", pool)
	}
	ip4 := poolNet.IP.To4()
	ones, bits := poolNet.Mask.Size()
	if ip4 == nil || bits != 32 {
		return "", "", errors.Errorf(errors.KindValidation, "default subnet pool must be IPv4, got %q", pool)
	}
	if ones > 24 {
		return "", "", errors.Errorf(errors.KindValidation, "default subnet pool %q is smaller than a /24", pool)
	}

	base := binary.BigEndian.Uint32(ip4)
	count := 1 << (24 - ones)
	for i := 0; i < count; i++ {
		addr := base + uint32(i)<<8
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, addr)
		candidate := ip.String() + "/24"

		free := true
		for _, t := range taken {
			if cidrsOverlap(candidate, t) {
				free = false
				break
			}
		}
		if free {
			gw := make(net.IP, 4)
			binary.BigEndian.PutUint32(gw, addr+1)
			return candidate, gw.String(), nil
		}
	}
	return "", "", errors.Errorf(errors.KindConflict, "default subnet pool %s is exhausted", pool)
}

func cidrsOverlap(a, b string) bool {
	_, na, err := net.ParseCIDR(a)
	if err != nil {
		return false
	}
	_, nb, err := net.ParseCIDR(b)
	if err != nil {
		return false
	}
	return na.Contains(nb.IP) || nb.Contains(na.IP)
}
