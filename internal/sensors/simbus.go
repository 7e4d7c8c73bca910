// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/relabs-tech/inertial_fusion/internal/imu"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Attitude is a synthetic motion in degrees at elapsed time t.
type Attitude func(t time.Duration) (pitch, roll, yaw float64)

// Swing sways pitch and roll and turns at 30°/s.
func Swing(t time.Duration) (pitch, roll, yaw float64) {
	s := t.Seconds()
	return 15 * math.Cos(s*0.7), 20 * math.Sin(s), math.Mod(s*30, 360)
}

// Level is a stationary, level board.
func Level(time.Duration) (pitch, roll, yaw float64) { return 0, 0, 0 }

// SimBus is an i2c.Bus with an MPU6050 behind it. Measurement bursts are
// synthesised from Motion at the clock's current time; every other
// register is plain memory.
type SimBus struct {
	Addr   uint16
	Motion Attitude
	// GyroBias and AccelBias are added to the wire words in chip order X, Y, Z.
	GyroBias  [3]int16
	AccelBias [3]int16
	// TempC is the die temperature reported in the burst.
	TempC float64

	mu    sync.Mutex
	clk   clock.Clock
	start time.Time
	regs  [128]byte
	speed physic.Frequency
}

// NewSimBus returns a simulated bus answering at DefaultAddr and driven by
// clk. A nil clk uses the wall clock.
func NewSimBus(clk clock.Clock, motion Attitude) *SimBus {
	if clk == nil {
		clk = clock.New()
	}
	if motion == nil {
		motion = Level
	}
	s := &SimBus{Addr: DefaultAddr, Motion: motion, TempC: 25, clk: clk, start: clk.Now()}
	s.regs[regWhoAmI] = 0x68
	s.regs[regPwrMgmt1] = 1 << bitSleep
	return s
}

func (s *SimBus) String() string { return "SimBus" }

// Close implements i2c.BusCloser.
func (s *SimBus) Close() error { return nil }

// SetSpeed records the requested speed.
func (s *SimBus) SetSpeed(f physic.Frequency) error {
	s.mu.Lock()
	s.speed = f
	s.mu.Unlock()
	return nil
}

// Speed returns the last speed set.
func (s *SimBus) Speed() physic.Frequency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Register returns the current value of reg.
func (s *SimBus) Register(reg byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[reg&0x7F]
}

// Tx implements i2c.Bus.
func (s *SimBus) Tx(addr uint16, w, r []byte) error {
	if addr != s.Addr {
		return fmt.Errorf("simbus: no device at 0x%02X", addr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case len(w) == 0:
		return nil
	case len(r) == 0:
		reg := w[0] & 0x7F
		for i, b := range w[1:] {
			s.regs[(int(reg)+i)&0x7F] = b
		}
		return nil
	}
	reg := w[0] & 0x7F
	if reg == regAccelXoutH {
		burst := s.burst()
		n := copy(r, burst[:])
		r = r[n:]
		reg += byte(n)
	}
	for i := range r {
		r[i] = s.regs[(int(reg)+i)&0x7F]
	}
	return nil
}

func (s *SimBus) burst() [burstLen]byte {
	const dt = time.Millisecond
	t := s.clk.Since(s.start)
	p0, r0, y0 := s.Motion(t)
	p1, r1, y1 := s.Motion(t + dt)
	pitchRate := (p1 - p0) / dt.Seconds()
	rollRate := (r1 - r0) / dt.Seconds()
	yawRate := unwrap(y1-y0) / dt.Seconds()

	p, r := p0*math.Pi/180, r0*math.Pi/180
	g := float64(imu.AccelLSBPerG)
	words := [7]int16{
		saturate(g*math.Sin(p)) + s.AccelBias[0],
		saturate(g*math.Cos(p)*math.Sin(r)) + s.AccelBias[1],
		saturate(g*math.Cos(p)*math.Cos(r)) + s.AccelBias[2],
		saturate((s.TempC - 36.53) * 340),
		saturate(rollRate*imu.GyroLSBPerDPS) + s.GyroBias[0],
		saturate(-pitchRate*imu.GyroLSBPerDPS) + s.GyroBias[1],
		saturate(-yawRate*imu.GyroLSBPerDPS) + s.GyroBias[2],
	}
	var out [burstLen]byte
	for i, w := range words {
		binary.BigEndian.PutUint16(out[2*i:], uint16(w))
	}
	return out
}

// unwrap folds a heading difference into (-180, 180].
func unwrap(d float64) float64 {
	for d > 180 {
		d -= 360
	}
	for d <= -180 {
		d += 360
	}
	return d
}

func saturate(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

var _ i2c.BusCloser = (*SimBus)(nil)
