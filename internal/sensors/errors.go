// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/pkg/errors"
)

// BusError reports a failed I2C transaction with the device.
type BusError struct {
	Op   string
	Addr uint16
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("i2c %s at 0x%02X: %v", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// IsBusError reports whether err (or anything it wraps) is a *BusError.
func IsBusError(err error) bool {
	var be *BusError
	return errors.As(err, &be)
}
