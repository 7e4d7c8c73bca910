// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"github.com/relabs-tech/inertial_fusion/internal/imu"
)

func TestSimBusLevel(t *testing.T) {
	bus := NewSimBus(clock.NewMock(), Level)
	d := New(bus, nil)
	test.That(t, d.Initialize(), test.ShouldBeNil)
	test.That(t, d.WhoAmI(), test.ShouldEqual, byte(0x68))
	test.That(t, bus.Register(regGyroConfig), test.ShouldEqual, byte(0x08))
	test.That(t, bus.Register(regAccelConfig), test.ShouldEqual, byte(0x10))

	s, err := d.ReadSample()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Acceleration, test.ShouldResemble, imu.Vector3[int16]{Yaw: 4096})
	test.That(t, s.AngularRate, test.ShouldResemble, imu.Vector3[int16]{})
	test.That(t, s.Temperature, test.ShouldEqual, int16(25))
}

func TestSimBusBiasFollowsAxisMap(t *testing.T) {
	bus := NewSimBus(clock.NewMock(), Level)
	bus.GyroBias = [3]int16{10, -20, 30}
	bus.AccelBias = [3]int16{5, 6, -7}
	s, err := New(bus, nil).ReadSample()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.AngularRate, test.ShouldResemble, imu.Vector3[int16]{Pitch: 20, Roll: 10, Yaw: -30})
	test.That(t, s.Acceleration, test.ShouldResemble, imu.Vector3[int16]{Pitch: 5, Roll: 6, Yaw: 4089})
}

func TestSimBusSwingRates(t *testing.T) {
	clk := clock.NewMock()
	bus := NewSimBus(clk, Swing)
	d := New(bus, nil)
	clk.Add(2 * time.Second)
	s, err := d.ReadSample()
	test.That(t, err, test.ShouldBeNil)
	// yaw turns at 30°/s, clockwise positive after the sign inversion
	test.That(t, s.AngularRateDPS().Yaw, test.ShouldAlmostEqual, 30, 0.05)
	// d/dt 20 sin(t) at t=2
	test.That(t, float64(s.AngularRateDPS().Roll), test.ShouldAlmostEqual, 20*-0.416, 0.1)
}

func TestSimBusWrongAddress(t *testing.T) {
	d := New(NewSimBus(clock.NewMock(), nil), &Opts{Addr: 0x69})
	err := d.Initialize()
	test.That(t, IsBusError(err), test.ShouldBeTrue)
}

func TestEnableCompassBypass(t *testing.T) {
	bus := NewSimBus(clock.NewMock(), nil)
	test.That(t, bus.Tx(DefaultAddr, []byte{regUserCtrl, 0x21}, nil), test.ShouldBeNil)
	test.That(t, bus.Tx(DefaultAddr, []byte{regIntPinCfg, 0x10}, nil), test.ShouldBeNil)

	d := New(bus, nil)
	test.That(t, d.EnableCompassBypass(), test.ShouldBeNil)
	test.That(t, bus.Register(regUserCtrl), test.ShouldEqual, byte(0x01))
	test.That(t, bus.Register(regIntPinCfg), test.ShouldEqual, byte(0x12))
	test.That(t, bus.Register(regPwrMgmt1), test.ShouldEqual, byte(0x00))
}

func TestSetFastClock(t *testing.T) {
	bus := NewSimBus(clock.NewMock(), nil)
	test.That(t, New(bus, nil).SetFastClock(), test.ShouldBeNil)
	test.That(t, bus.Speed(), test.ShouldEqual, FastClock)

	err := New(nackBus{}, nil).SetFastClock()
	test.That(t, IsBusError(err), test.ShouldBeTrue)
}

func TestReadRegisters(t *testing.T) {
	bus := NewSimBus(clock.NewMock(), nil)
	d := New(bus, nil)
	test.That(t, d.Initialize(), test.ShouldBeNil)
	regs, err := d.ReadRegisters()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, regs, test.ShouldHaveLength, len(configRegisters))
	for _, r := range regs {
		if r.Name == "GYRO_CONFIG" {
			test.That(t, r.Value, test.ShouldEqual, byte(0x08))
		}
		if r.Name == "WHO_AM_I" {
			test.That(t, r.Value, test.ShouldEqual, byte(0x68))
		}
	}
}
