// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netlink drives kernel networking primitives (bridges, veth
// pairs, addresses, namespace moves) over rtnetlink and classifies kernel
// errors into the fognet taxonomy.
//
// Operations block until the kernel acknowledges the request. The driver
// never retries internally and never leaves partial state for a single
// netlink request; multi-request sequences are the dispatcher's problem.
package netlink

import (
	stderrors "errors"
	"syscall"

	"grimm.is/fognet/internal/errors"
)

// Driver is the kernel-side interface used by the dispatcher and the
// reconcile pass. Implemented by RealDriver on Linux; tests inject fakes.
type Driver interface {
	CreateBridge(name string) error
	DeleteBridge(name string) error
	CreateVethPair(nameA, nameB string) error
	DeleteInterface(name string) error
	SetInterfaceUp(name string) error
	SetInterfaceDown(name string) error
	AssignAddress(name, cidr string) error
	SetMaster(name, master string) error
	UnsetMaster(name string) error
	MoveInterfaceToNamespace(name, namespace string) error
	InterfaceExists(name string) (bool, error)
	// ListManagedDevices returns the names of devices whose names mark them
	// as fognet-owned.
	ListManagedDevices() ([]string, error)
}

// classify translates a kernel error into the backend failure taxonomy.
// A nil error stays nil; unrecognized errors become KernelReject.
func classify(err error, op, device string) error {
	if err == nil {
		return nil
	}

	kind := errors.KindKernelReject
	var errno syscall.Errno
	if stderrors.As(err, &errno) {
		switch errno {
		case syscall.EEXIST:
			kind = errors.KindAlreadyExists
		case syscall.EBUSY:
			kind = errors.KindResourceBusy
		case syscall.EPERM, syscall.EACCES:
			kind = errors.KindPermissionDenied
		case syscall.ENODEV, syscall.ENOENT, syscall.ESRCH:
			kind = errors.KindNotFound
		}
	}

	werr := errors.Wrapf(err, kind, "netlink %s failed", op)
	return errors.Attr(werr, "device", device)
}
