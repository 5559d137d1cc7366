// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package registry

import (
	"github.com/google/uuid"

	"grimm.is/fognet/internal/logging"
	"grimm.is/fognet/internal/names"
)

// Probes supplies the live-state observations reconcile diffs the registry
// against. Each reports only fognet-owned resources.
type Probes struct {
	Devices     func() ([]string, error)        // managed link devices in the host namespace
	Tables      func() ([]string, error)        // managed nftables tables
	Namespaces  func() ([]string, error)        // managed named network namespaces
	DHCPRunning func(networkID uuid.UUID) bool  // dnsmasq liveness per network
}

// Report summarizes one reconcile pass. Orphaned entities stay in the
// registry awaiting an explicit delete; strays are kernel leftovers no
// entity claims and are safe to remove.
type Report struct {
	OrphanedNetworks   []uuid.UUID
	OrphanedInterfaces []uuid.UUID
	OrphanedNamespaces []uuid.UUID
	DHCPStopped        []uuid.UUID
	// MissingTables are tables a persisted ruleset claims but the kernel no
	// longer holds; the network's policy must be re-applied.
	MissingTables   []string
	StrayDevices    []string
	StrayTables     []string
	StrayNamespaces []string
}

// Reconcile diffs persisted entities against live kernel state. Entities
// whose backing resource disappeared are marked Orphaned, never dropped; a
// resource nothing claims is reported as a stray for the caller to clean up.
func (s *Store) Reconcile(p Probes, logger *logging.Logger) (*Report, error) {
	if logger == nil {
		logger = s.logger
	}
	report := &Report{}

	devices, err := p.Devices()
	if err != nil {
		return nil, err
	}
	tables, err := p.Tables()
	if err != nil {
		return nil, err
	}
	nsNames, err := p.Namespaces()
	if err != nil {
		return nil, err
	}

	deviceSet := toSet(devices)
	tableSet := toSet(tables)
	nsSet := toSet(nsNames)

	claimedDevices := map[string]bool{}
	claimedTables := map[string]bool{}
	claimedNamespaces := map[string]bool{}

	// Namespaces first: interface orphaning depends on them.
	namespaces, err := s.ListNamespaces()
	if err != nil {
		return nil, err
	}
	orphanedNS := map[uuid.UUID]bool{}
	for _, ns := range namespaces {
		kernelName := names.Namespace(ns.ID)
		claimedNamespaces[kernelName] = true
		if nsSet[kernelName] {
			continue
		}
		orphanedNS[ns.ID] = true
		if ns.State != StateOrphaned {
			logger.Warn("Namespace backing resource gone, marking orphaned", "namespace", ns.Name)
			ns.State = StateOrphaned
			if err := s.PutNamespace(ns); err != nil {
				return nil, err
			}
			report.OrphanedNamespaces = append(report.OrphanedNamespaces, ns.ID)
		}
	}

	networks, err := s.ListNetworks()
	if err != nil {
		return nil, err
	}
	for _, n := range networks {
		claimedDevices[n.BridgeDevice] = true
		bridgeGone := !deviceSet[n.BridgeDevice]
		if bridgeGone && n.State != StateOrphaned {
			logger.Warn("Bridge device gone, marking network orphaned",
				"network", n.Name, "bridge", n.BridgeDevice)
			n.State = StateOrphaned
			if err := s.PutNetwork(n); err != nil {
				return nil, err
			}
			report.OrphanedNetworks = append(report.OrphanedNetworks, n.ID)
		}

		// DHCP recorded running but the daemon is gone: correct the record.
		if d, err := s.GetDHCP(n.ID); err == nil && d.Running {
			if p.DHCPRunning == nil || !p.DHCPRunning(n.ID) {
				logger.Warn("DHCP daemon not running, clearing state", "network", n.Name)
				d.Running = false
				if err := s.PutDHCP(d); err != nil {
					return nil, err
				}
				report.DHCPStopped = append(report.DHCPStopped, n.ID)
			}
		}
	}

	// Rulesets claim their tables so leftover tables can be told apart. A
	// claimed table the kernel lost means the policy is not enforced.
	for _, n := range networks {
		if _, err := s.GetRuleSet(n.ID); err == nil {
			tbl := names.Table(n.ID)
			claimedTables[tbl] = true
			if !tableSet[tbl] {
				logger.Warn("Firewall table gone for persisted ruleset", "network", n.Name, "table", tbl)
				report.MissingTables = append(report.MissingTables, tbl)
			}
		}
	}

	interfaces, err := s.ListInterfaces()
	if err != nil {
		return nil, err
	}
	for _, i := range interfaces {
		claimedDevices[i.Device] = true
		claimedDevices[i.PeerDevice] = true
		gone := false
		switch {
		case i.NamespaceID == nil:
			// Host-side interface: both endpoints must be visible.
			gone = !deviceSet[i.Device]
		case orphanedNS[*i.NamespaceID]:
			// Its namespace is gone, so the device inside it is too.
			gone = true
		default:
			// Inside a live namespace; the host probe cannot see the
			// device, but the bridge-side peer must still exist.
			gone = !deviceSet[i.PeerDevice]
		}
		if gone && i.State != StateOrphaned {
			logger.Warn("Interface backing device gone, marking orphaned", "device", i.Device)
			i.State = StateOrphaned
			if err := s.PutInterface(i); err != nil {
				return nil, err
			}
			report.OrphanedInterfaces = append(report.OrphanedInterfaces, i.ID)
		}
	}

	for _, d := range devices {
		if !claimedDevices[d] {
			report.StrayDevices = append(report.StrayDevices, d)
		}
	}
	for _, tbl := range tables {
		if !claimedTables[tbl] {
			report.StrayTables = append(report.StrayTables, tbl)
		}
	}
	for _, name := range nsNames {
		if !claimedNamespaces[name] {
			report.StrayNamespaces = append(report.StrayNamespaces, name)
		}
	}

	logger.Info("Reconcile complete",
		"orphaned_networks", len(report.OrphanedNetworks),
		"orphaned_interfaces", len(report.OrphanedInterfaces),
		"orphaned_namespaces", len(report.OrphanedNamespaces),
		"missing_tables", len(report.MissingTables),
		"stray_devices", len(report.StrayDevices),
		"stray_tables", len(report.StrayTables),
		"stray_namespaces", len(report.StrayNamespaces))
	return report, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
