// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors drives the MPU6050 over a periph I2C bus and turns its
// measurement burst into calibrated imu.RawSample values.
package sensors

import (
	"encoding/binary"
	"math"

	"github.com/relabs-tech/inertial_fusion/internal/imu"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// FastClock is the bus speed requested by SetFastClock.
const FastClock = 400 * physic.KiloHertz

// Opts holds initialization options.
//
// Addr defaults to DefaultAddr when zero. AxisMap defaults to DefaultAxisMap
// when nil.
type Opts struct {
	Addr    uint16
	AxisMap *AxisMap
}

// DefaultOpts is the GY-86 / GY-521 breakout wiring.
var DefaultOpts = Opts{Addr: DefaultAddr}

// MPU6050 is a handle to one sensor. It is not safe for concurrent use;
// callers serialise access (see package ahrs).
type MPU6050 struct {
	bus     i2c.Bus
	dev     i2c.Dev
	axes    AxisMap
	offsets imu.Offsets
	whoAmI  byte
}

// New returns a driver for the device at opts.Addr. No bus traffic happens
// until Initialize.
func New(bus i2c.Bus, opts *Opts) *MPU6050 {
	if opts == nil {
		opts = &DefaultOpts
	}
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	axes := DefaultAxisMap
	if opts.AxisMap != nil {
		axes = *opts.AxisMap
	}
	return &MPU6050{
		bus:  bus,
		dev:  i2c.Dev{Addr: addr, Bus: bus},
		axes: axes,
	}
}

// Addr returns the device address.
func (d *MPU6050) Addr() uint16 { return d.dev.Addr }

// String implements fmt.Stringer.
func (d *MPU6050) String() string { return "MPU6050" }

// Initialize probes the device and writes the power, range and filter
// registers. A device that does not acknowledge yields a *BusError.
func (d *MPU6050) Initialize() error {
	id, err := d.readReg(regWhoAmI)
	if err != nil {
		return d.busError("probe", err)
	}
	d.whoAmI = id
	for _, w := range initSequence {
		if err := d.writeReg(w.reg, w.val); err != nil {
			return d.busError("init", err)
		}
	}
	return nil
}

// WhoAmI returns the identity byte read by Initialize (0x68 for a genuine
// part, clones report other values).
func (d *MPU6050) WhoAmI() byte { return d.whoAmI }

// SetFastClock switches the bus to 400 kHz.
func (d *MPU6050) SetFastClock() error {
	if err := d.bus.SetSpeed(FastClock); err != nil {
		return d.busError("set speed", err)
	}
	return nil
}

// EnableCompassBypass routes the auxiliary I2C bus to the host so a
// magnetometer behind the MPU6050 (GY-86 HMC5883L) becomes addressable.
func (d *MPU6050) EnableCompassBypass() error {
	steps := []struct {
		reg byte
		bit uint
		set bool
	}{
		{regUserCtrl, bitI2CMasterEn, false},
		{regIntPinCfg, bitBypassEn, true},
		{regPwrMgmt1, bitSleep, false},
	}
	for _, s := range steps {
		v, err := d.readReg(s.reg)
		if err != nil {
			return d.busError("bypass", err)
		}
		if s.set {
			v |= 1 << s.bit
		} else {
			v &^= 1 << s.bit
		}
		if err := d.writeReg(s.reg, v); err != nil {
			return d.busError("bypass", err)
		}
	}
	return nil
}

// ReadSample reads one burst, remaps it and subtracts the offsets.
func (d *MPU6050) ReadSample() (imu.RawSample, error) {
	var buf [burstLen]byte
	if err := d.dev.Tx([]byte{regAccelXoutH}, buf[:]); err != nil {
		return imu.RawSample{}, d.busError("read burst", err)
	}
	var words [7]int16
	for i := range words {
		words[i] = int16(binary.BigEndian.Uint16(buf[2*i:]))
	}
	return imu.RawSample{
		Acceleration: d.axes.Acceleration.apply(&words).Sub(d.offsets.Accelerometer),
		AngularRate:  d.axes.AngularRate.apply(&words).Sub(d.offsets.Gyroscope),
		Temperature:  celsius(words[WordTemp]),
	}, nil
}

// celsius converts the raw die temperature, rounding half up.
func celsius(raw int16) int16 {
	return int16(math.Floor(float64(raw)/340 + 36.53 + 0.5))
}

// Offsets returns both offset vectors.
func (d *MPU6050) Offsets() imu.Offsets { return d.offsets }

// GyroOffset returns the gyroscope offset.
func (d *MPU6050) GyroOffset() imu.Vector3[int16] { return d.offsets.Gyroscope }

// SetGyroOffset replaces the gyroscope offset.
func (d *MPU6050) SetGyroOffset(v imu.Vector3[int16]) { d.offsets.Gyroscope = v }

// AccOffset returns the accelerometer offset.
func (d *MPU6050) AccOffset() imu.Vector3[int16] { return d.offsets.Accelerometer }

// SetAccOffset replaces the accelerometer offset.
func (d *MPU6050) SetAccOffset(v imu.Vector3[int16]) { d.offsets.Accelerometer = v }

// ReadRegisters reads back the configuration registers.
func (d *MPU6050) ReadRegisters() ([]RegisterValue, error) {
	out := make([]RegisterValue, 0, len(configRegisters))
	for _, info := range configRegisters {
		v, err := d.readReg(info.Addr)
		if err != nil {
			return nil, d.busError("read "+info.Name, err)
		}
		out = append(out, RegisterValue{RegisterInfo: info, Value: v})
	}
	return out, nil
}

func (d *MPU6050) writeReg(reg, val byte) error {
	return d.dev.Tx([]byte{reg, val}, nil)
}

func (d *MPU6050) readReg(reg byte) (byte, error) {
	var b [1]byte
	if err := d.dev.Tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *MPU6050) busError(op string, err error) error {
	return &BusError{Op: op, Addr: d.dev.Addr, Err: err}
}

var _ imu.SampleReader = (*MPU6050)(nil)
