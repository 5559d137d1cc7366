// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package server exposes the lifecycle operations over net/rpc on a unix
// socket. fognetctl and the orchestrator agent are the two callers.
package server

import (
	"grimm.is/fognet/internal/errors"
)

// WireError carries a typed error across the RPC boundary. net/rpc flattens
// error values to strings, so replies embed this instead and the client
// rebuilds the structured error.
type WireError struct {
	Kind    string
	Message string
}

func toWire(err error) *WireError {
	if err == nil {
		return nil
	}
	return &WireError{
		Kind:    errors.GetKind(err).String(),
		Message: err.Error(),
	}
}

func fromWire(we *WireError) error {
	if we == nil {
		return nil
	}
	return errors.New(errors.KindFromString(we.Kind), we.Message)
}

// Empty is the placeholder for RPC methods without arguments.
type Empty struct{}

// InterfaceView is the wire representation of a virtual interface.
type InterfaceView struct {
	ID          string
	Device      string
	PeerDevice  string
	Address     string
	NamespaceID string // empty when detached
	State       string
}

// NetworkView is the wire representation of a virtual network with its
// interfaces and DHCP status.
type NetworkView struct {
	ID          string
	Name        string
	Subnet      string
	Gateway     string
	Bridge      string
	State       string
	DHCPEnabled bool
	DHCPRunning bool
	Interfaces  []InterfaceView
}

// CreateNetworkArgs mirrors dispatcher.CreateNetworkSpec.
type CreateNetworkArgs struct {
	Name      string
	Subnet    string
	Gateway   string
	DHCPStart string
	DHCPEnd   string
}

// CreateNetworkReply returns the new network's identifier.
type CreateNetworkReply struct {
	ID  string
	Err *WireError
}

// DeleteNetworkArgs names the network to tear down.
type DeleteNetworkArgs struct {
	ID string
}

// DeleteNetworkReply acknowledges DeleteNetwork.
type DeleteNetworkReply struct {
	Err *WireError
}

// AddInterfaceArgs creates a veth pair on a network.
type AddInterfaceArgs struct {
	NetworkID string
	Address   string
}

// AddInterfaceReply returns the new interface's identifier and its
// workload-side device name.
type AddInterfaceReply struct {
	ID     string
	Device string
	Err    *WireError
}

// RemoveInterfaceArgs names the interface to delete.
type RemoveInterfaceArgs struct {
	ID string
}

// RemoveInterfaceReply acknowledges RemoveInterface.
type RemoveInterfaceReply struct {
	Err *WireError
}

// AttachArgs moves an interface into the named namespace.
type AttachArgs struct {
	InterfaceID string
	Namespace   string
}

// AttachReply acknowledges Attach.
type AttachReply struct {
	Err *WireError
}

// DetachArgs moves an interface back to the host namespace.
type DetachArgs struct {
	InterfaceID string
}

// DetachReply acknowledges Detach.
type DetachReply struct {
	Err *WireError
}

// GetNetworkArgs selects one network by id.
type GetNetworkArgs struct {
	ID string
}

// GetNetworkReply returns the selected network.
type GetNetworkReply struct {
	Network NetworkView
	Err     *WireError
}

// ListNetworksReply returns every network on this node.
type ListNetworksReply struct {
	Networks []NetworkView
	Err      *WireError
}

// PingReply reports daemon liveness and version.
type PingReply struct {
	Version string
	Err     *WireError
}
