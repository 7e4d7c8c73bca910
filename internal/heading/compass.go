// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package heading

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/inertial_fusion/internal/orientation"
)

// HMC5883L register map.
const (
	regCRA  = 0x00
	regCRB  = 0x01
	regMode = 0x02
	regData = 0x03 // X MSB, X LSB, Z MSB, Z LSB, Y MSB, Y LSB
	regIDA  = 0x0A
)

// DefaultCompassAddr is the HMC5883L address.
const DefaultCompassAddr = 0x1E

// saturated is the overflow marker the chip reports on any axis.
const saturated = -4096

// CompassOpts configures a Compass.
type CompassOpts struct {
	Addr uint16
	// DeclinationDeg is added to the magnetic heading.
	DeclinationDeg float64
	// MinInterval throttles bus reads; the chip updates at 75 Hz at most.
	MinInterval time.Duration
	Clock       clock.Clock
}

// Compass reads a flat-mounted HMC5883L and reports atan2(y, x) as heading.
// Tilt is not compensated and the field is assumed already bias corrected.
type Compass struct {
	dev         i2c.Dev
	declination float64
	interval    time.Duration
	clk         clock.Clock

	mu     sync.Mutex
	last   orientation.Heading
	lastAt time.Time
}

// NewCompass configures the chip for 8-sample averaging at 75 Hz,
// continuous mode. On a GY-86 the MPU6050 bypass must be enabled first.
func NewCompass(bus i2c.Bus, opts CompassOpts) (*Compass, error) {
	if opts.Addr == 0 {
		opts.Addr = DefaultCompassAddr
	}
	if opts.MinInterval == 0 {
		opts.MinInterval = 13 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	c := &Compass{
		dev:         i2c.Dev{Addr: opts.Addr, Bus: bus},
		declination: opts.DeclinationDeg,
		interval:    opts.MinInterval,
		clk:         opts.Clock,
	}
	id := make([]byte, 3)
	if err := c.dev.Tx([]byte{regIDA}, id); err != nil {
		return nil, errors.Wrap(err, "compass identify")
	}
	if string(id) != "H43" {
		return nil, errors.Errorf("compass at 0x%02X: unexpected id %q", opts.Addr, id)
	}
	for _, w := range [][]byte{
		{regCRA, 0x78},  // 8 samples averaged, 75 Hz
		{regCRB, 0x20},  // ±1.3 Ga
		{regMode, 0x00}, // continuous
	} {
		if err := c.dev.Tx(w, nil); err != nil {
			return nil, errors.Wrapf(err, "compass write 0x%02X", w[0])
		}
	}
	return c, nil
}

// Heading returns the magnetic heading plus declination in [0,360). A
// saturated axis yields no heading.
func (c *Compass) Heading() (orientation.Heading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	if !c.lastAt.IsZero() && now.Sub(c.lastAt) < c.interval {
		return c.last, nil
	}
	x, y, z, err := c.senseRaw()
	if err != nil {
		return orientation.NoHeading, errors.Wrap(err, "compass read")
	}
	c.lastAt = now
	if x == saturated || y == saturated || z == saturated {
		c.last = orientation.NoHeading
		return c.last, nil
	}
	c.last = orientation.HeadingDeg(float32(headingDeg(x, y, c.declination)))
	return c.last, nil
}

func (c *Compass) senseRaw() (x, y, z int16, err error) {
	var data [6]byte
	if err := c.dev.Tx([]byte{regData}, data[:]); err != nil {
		return 0, 0, 0, err
	}
	x = int16(binary.BigEndian.Uint16(data[0:]))
	z = int16(binary.BigEndian.Uint16(data[2:]))
	y = int16(binary.BigEndian.Uint16(data[4:]))
	return x, y, z, nil
}

func headingDeg(x, y int16, declination float64) float64 {
	h := math.Atan2(float64(y), float64(x))*180/math.Pi + declination
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
