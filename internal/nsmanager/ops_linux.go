// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package nsmanager

import (
	"os"

	"github.com/vishvananda/netns"
)

// netnsDir is where iproute2-compatible named namespaces are bind-mounted.
const netnsDir = "/run/netns"

// RealNamespaceOps manipulates named network namespaces through the kernel.
type RealNamespaceOps struct{}

// NewNamespaceOps returns the kernel-backed implementation.
func NewNamespaceOps() NamespaceOps {
	return &RealNamespaceOps{}
}

func (o *RealNamespaceOps) Create(name string) error {
	// NewNamed switches the calling thread into the new namespace; jump
	// back to the host one before returning.
	host, err := netns.Get()
	if err != nil {
		return err
	}
	defer host.Close()

	ns, err := netns.NewNamed(name)
	if err != nil {
		return err
	}
	ns.Close()
	return netns.Set(host)
}

func (o *RealNamespaceOps) Delete(name string) error {
	return netns.DeleteNamed(name)
}

func (o *RealNamespaceOps) Exists(name string) (bool, error) {
	ns, err := netns.GetFromName(name)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	ns.Close()
	return true, nil
}

func (o *RealNamespaceOps) List() ([]string, error) {
	entries, err := os.ReadDir(netnsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out, nil
}
