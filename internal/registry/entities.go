// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package registry persists the network entities this host realizes and
// reconciles them against live kernel state after a restart.
package registry

import (
	"time"

	"github.com/google/uuid"
)

// State is an entity lifecycle state.
type State string

const (
	// StateActive means the backing kernel resource was confirmed present
	// the last time the entity was touched.
	StateActive State = "active"
	// StateOrphaned means reconcile found the backing resource gone. The
	// entity is kept visible for an explicit cleanup decision instead of
	// being dropped silently.
	StateOrphaned State = "orphaned"
)

// VirtualNetwork is one orchestrator-visible L2 network, backed by exactly
// one bridge whose device name derives from the network id.
type VirtualNetwork struct {
	ID           uuid.UUID
	Name         string
	Subnet       string // CIDR
	Gateway      string // optional
	DHCPStart    string // optional, with DHCPEnd enables dnsmasq
	DHCPEnd      string
	BridgeDevice string
	State        State
	CreatedAt    time.Time
}

// Interface is one veth pair. Device is the endpoint handed to the workload
// (namespace side), PeerDevice the endpoint enslaved to the bridge.
type Interface struct {
	ID          uuid.UUID
	Device      string
	PeerDevice  string
	NetworkID   *uuid.UUID // nil when detached from any network
	NamespaceID *uuid.UUID // nil when in the host namespace
	Address     string     // CIDR assigned to Device, optional
	State       State
	CreatedAt   time.Time
}

// Namespace is a named network namespace created on behalf of a workload.
type Namespace struct {
	ID        uuid.UUID
	Name      string
	State     State
	CreatedAt time.Time
}

// RuleSetRecord is the persisted form of a network's firewall policy, kept
// so reconcile can tell a missing table from a never-applied one.
type RuleSetRecord struct {
	NetworkID uuid.UUID
	Rules     string // JSON-encoded firewall.RuleSet rules
	AppliedAt time.Time
}

// DHCPRecord tracks the per-network dnsmasq instance.
type DHCPRecord struct {
	NetworkID  uuid.UUID
	Running    bool
	ConfigPath string
}
