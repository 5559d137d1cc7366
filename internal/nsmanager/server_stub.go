// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package nsmanager

import (
	"context"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/logging"
)

// Serve is unavailable off Linux; the helper binary only ships there.
func Serve(_ context.Context, _, _ string, _ *logging.Logger) error {
	return errors.New(errors.KindUnavailable, "namespace helper requires linux")
}
