// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package nsmanager

import "grimm.is/fognet/internal/errors"

type stubNamespaceOps struct{}

// NewNamespaceOps returns a stub on non-Linux platforms.
func NewNamespaceOps() NamespaceOps {
	return &stubNamespaceOps{}
}

func errUnsupported() error {
	return errors.New(errors.KindUnavailable, "network namespaces require linux")
}

func (o *stubNamespaceOps) Create(string) error          { return errUnsupported() }
func (o *stubNamespaceOps) Delete(string) error          { return errUnsupported() }
func (o *stubNamespaceOps) Exists(string) (bool, error)  { return false, errUnsupported() }
func (o *stubNamespaceOps) List() ([]string, error)      { return nil, errUnsupported() }
