// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package netlink

import "grimm.is/fognet/internal/errors"

// RealDriver is unsupported off Linux; every operation reports unavailable
// so development builds still link.
type RealDriver struct{}

func NewDriver() *RealDriver { return &RealDriver{} }

func (d *RealDriver) unsupported() error {
	return errors.New(errors.KindUnavailable, "netlink driver requires linux")
}

func (d *RealDriver) CreateBridge(name string) error                     { return d.unsupported() }
func (d *RealDriver) DeleteBridge(name string) error                     { return d.unsupported() }
func (d *RealDriver) CreateVethPair(nameA, nameB string) error           { return d.unsupported() }
func (d *RealDriver) DeleteInterface(name string) error                  { return d.unsupported() }
func (d *RealDriver) SetInterfaceUp(name string) error                   { return d.unsupported() }
func (d *RealDriver) SetInterfaceDown(name string) error                 { return d.unsupported() }
func (d *RealDriver) AssignAddress(name, cidr string) error              { return d.unsupported() }
func (d *RealDriver) SetMaster(name, master string) error                { return d.unsupported() }
func (d *RealDriver) UnsetMaster(name string) error                      { return d.unsupported() }
func (d *RealDriver) MoveInterfaceToNamespace(name, ns string) error     { return d.unsupported() }
func (d *RealDriver) InterfaceExists(name string) (bool, error)          { return false, d.unsupported() }
func (d *RealDriver) ListManagedDevices() ([]string, error)              { return nil, d.unsupported() }
