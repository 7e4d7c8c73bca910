// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// SimBusName selects the simulated bus in OpenBus.
const SimBusName = "sim"

var (
	hostOnce    sync.Once
	hostInitErr error
)

func initHost() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostInitErr = errors.Wrap(err, "periph host init")
		}
	})
	return hostInitErr
}

// OpenBus opens an I2C bus by periph name; "" picks the first one
// registered. SimBusName returns a SimBus swinging on the wall clock.
func OpenBus(name string) (i2c.BusCloser, error) {
	if name == SimBusName {
		return NewSimBus(nil, Swing), nil
	}
	if err := initHost(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", name)
	}
	return bus, nil
}
