// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package names derives kernel object names deterministically from entity
// UUIDs. A restart recomputes every bridge, veth, table, and namespace name
// from the registry alone, so reconcile() never needs a separate
// name-mapping file.
package names

import (
	"strings"

	"github.com/google/uuid"
)

// Kernel interface names are capped at IFNAMSIZ-1 (15) bytes; every derived
// name below stays within that.
const shortLen = 8

func short(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:shortLen]
}

// Bridge returns the bridge device name for a virtual network.
func Bridge(networkID uuid.UUID) string {
	return "fbr-" + short(networkID)
}

// VethPair returns the internal (namespace-side) and external (bridge-side)
// endpoint names for an interface.
func VethPair(interfaceID uuid.UUID) (internal, external string) {
	s := short(interfaceID)
	return "fve-" + s + "i", "fve-" + s + "e"
}

// Table returns the nftables table name holding a network's ruleset.
func Table(networkID uuid.UUID) string {
	return "fognet-" + short(networkID)
}

// Namespace returns the default namespace name for a namespace entity when
// the caller does not supply one.
func Namespace(nsID uuid.UUID) string {
	return "fns-" + short(nsID)
}

// OwnsDevice reports whether the device name was derived by this package,
// i.e. the device is managed by fognet. Used by reconcile() to garbage-spot
// leftovers without touching foreign devices.
func OwnsDevice(name string) bool {
	return strings.HasPrefix(name, "fbr-") || strings.HasPrefix(name, "fve-")
}

// OwnsTable reports whether the nftables table name was derived by this
// package.
func OwnsTable(name string) bool {
	return strings.HasPrefix(name, "fognet-")
}

// OwnsNamespace reports whether the named namespace was derived by this
// package.
func OwnsNamespace(name string) bool {
	return strings.HasPrefix(name, "fns-")
}
