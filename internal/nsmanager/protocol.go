// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package nsmanager runs and talks to the per-namespace helper process.
//
// Each network namespace gets its own fognet-nsmgr helper, joined to the
// namespace at startup and serving net/rpc on a unix socket in the run
// directory. The daemon never setns()es itself: all inside-the-namespace
// work (addressing, routes, moving interfaces back out) goes through the
// helper, so a wedged namespace can only ever wedge its own helper.
package nsmanager

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

// PingReply reports helper liveness; Pid lets the manager cross-check the
// process it spawned.
type PingReply struct {
	Pid int
	Err *WireError
}

// ListInterfacesReply lists the non-loopback device names currently inside
// the namespace.
type ListInterfacesReply struct {
	Names []string
	Err   *WireError
}

// ConfigureInterfaceArgs assigns an address to a device inside the
// namespace, brings it up, and optionally installs the default route.
type ConfigureInterfaceArgs struct {
	Device  string
	Address string // CIDR form, e.g. 10.64.1.2/24
	Gateway string // empty means no default route
}

// ConfigureInterfaceReply acknowledges ConfigureInterface.
type ConfigureInterfaceReply struct {
	Err *WireError
}

// MoveInterfaceOutArgs asks the helper to push a device back into the host
// namespace, where the daemon can finish tearing it down.
type MoveInterfaceOutArgs struct {
	Device string
}

// MoveInterfaceOutReply acknowledges MoveInterfaceOut.
type MoveInterfaceOutReply struct {
	Err *WireError
}
