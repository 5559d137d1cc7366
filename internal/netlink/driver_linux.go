// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package netlink

import (
	stderrors "errors"

	vnl "github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/names"
)

// RealDriver issues rtnetlink requests against the running kernel.
type RealDriver struct{}

// NewDriver returns the production kernel driver.
func NewDriver() *RealDriver {
	return &RealDriver{}
}

func (d *RealDriver) linkByName(op, name string) (vnl.Link, error) {
	link, err := vnl.LinkByName(name)
	if err != nil {
		var lnf vnl.LinkNotFoundError
		if stderrors.As(err, &lnf) {
			nerr := errors.Wrapf(err, errors.KindNotFound, "netlink %s failed", op)
			return nil, errors.Attr(nerr, "device", name)
		}
		return nil, classify(err, op, name)
	}
	return link, nil
}

// CreateBridge creates a kernel bridge device and brings it up.
func (d *RealDriver) CreateBridge(name string) error {
	br := &vnl.Bridge{LinkAttrs: vnl.LinkAttrs{Name: name}}
	if err := vnl.LinkAdd(br); err != nil {
		return classify(err, "create bridge", name)
	}
	if err := vnl.LinkSetUp(br); err != nil {
		return classify(err, "set bridge up", name)
	}
	return nil
}

// DeleteBridge removes a kernel bridge device.
func (d *RealDriver) DeleteBridge(name string) error {
	link, err := d.linkByName("delete bridge", name)
	if err != nil {
		return err
	}
	return classify(vnl.LinkDel(link), "delete bridge", name)
}

// CreateVethPair creates both endpoints of a veth pair in the host
// namespace.
func (d *RealDriver) CreateVethPair(nameA, nameB string) error {
	veth := &vnl.Veth{
		LinkAttrs: vnl.LinkAttrs{Name: nameA},
		PeerName:  nameB,
	}
	return classify(vnl.LinkAdd(veth), "create veth", nameA)
}

// DeleteInterface removes a virtual device. Deleting one veth endpoint
// removes its peer as well.
func (d *RealDriver) DeleteInterface(name string) error {
	link, err := d.linkByName("delete interface", name)
	if err != nil {
		return err
	}
	return classify(vnl.LinkDel(link), "delete interface", name)
}

// SetInterfaceUp brings a device up.
func (d *RealDriver) SetInterfaceUp(name string) error {
	link, err := d.linkByName("set up", name)
	if err != nil {
		return err
	}
	return classify(vnl.LinkSetUp(link), "set up", name)
}

// SetInterfaceDown brings a device down.
func (d *RealDriver) SetInterfaceDown(name string) error {
	link, err := d.linkByName("set down", name)
	if err != nil {
		return err
	}
	return classify(vnl.LinkSetDown(link), "set down", name)
}

// AssignAddress adds an address in CIDR notation to a device.
func (d *RealDriver) AssignAddress(name, cidr string) error {
	link, err := d.linkByName("assign address", name)
	if err != nil {
		return err
	}
	addr, err := vnl.ParseAddr(cidr)
	if err != nil {
		return errors.Wrapf(err, errors.KindValidation, "invalid address %q", cidr)
	}
	return classify(vnl.AddrAdd(link, addr), "assign address", name)
}

// SetMaster enslaves a device to a bridge.
func (d *RealDriver) SetMaster(name, master string) error {
	link, err := d.linkByName("set master", name)
	if err != nil {
		return err
	}
	br, err := d.linkByName("set master", master)
	if err != nil {
		return err
	}
	return classify(vnl.LinkSetMaster(link, br), "set master", name)
}

// UnsetMaster releases a device from its bridge.
func (d *RealDriver) UnsetMaster(name string) error {
	link, err := d.linkByName("unset master", name)
	if err != nil {
		return err
	}
	return classify(vnl.LinkSetNoMaster(link), "unset master", name)
}

// MoveInterfaceToNamespace moves a device into a named network namespace.
// The device keeps its name; addressing inside the namespace is the
// namespace manager's job.
func (d *RealDriver) MoveInterfaceToNamespace(name, namespace string) error {
	link, err := d.linkByName("move to namespace", name)
	if err != nil {
		return err
	}
	nsHandle, err := netns.GetFromName(namespace)
	if err != nil {
		nerr := errors.Wrapf(err, errors.KindNotFound, "namespace %s not found", namespace)
		return errors.Attr(nerr, "device", name)
	}
	defer nsHandle.Close()
	return classify(vnl.LinkSetNsFd(link, int(nsHandle)), "move to namespace", name)
}

// InterfaceExists reports whether a device is present in the host
// namespace.
func (d *RealDriver) InterfaceExists(name string) (bool, error) {
	_, err := vnl.LinkByName(name)
	if err != nil {
		var lnf vnl.LinkNotFoundError
		if stderrors.As(err, &lnf) {
			return false, nil
		}
		return false, classify(err, "lookup", name)
	}
	return true, nil
}

// ListManagedDevices returns all fognet-owned device names in the host
// namespace.
func (d *RealDriver) ListManagedDevices() ([]string, error) {
	links, err := vnl.LinkList()
	if err != nil {
		return nil, classify(err, "list links", "")
	}
	var owned []string
	for _, link := range links {
		if name := link.Attrs().Name; names.OwnsDevice(name) {
			owned = append(owned, name)
		}
	}
	return owned, nil
}
