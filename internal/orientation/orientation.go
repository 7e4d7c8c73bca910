// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package orientation fuses gyroscope and accelerometer samples into pitch,
// roll and yaw with a complementary filter.
package orientation

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/relabs-tech/inertial_fusion/internal/imu"
)

// Defaults.
const (
	DefaultGyroWeight        = 0.9996
	DefaultHeadingGyroWeight = 0.98
	DefaultSampleRateHz      = 250
	SeedSamples              = 50

	// headingWrapThreshold is the yaw/heading gap beyond which the heading
	// is assumed to sit on the other side of 0/360.
	headingWrapThreshold = 100
)

// State is an orientation in degrees. Yaw is in [0,360).
type State struct {
	Pitch float32 `json:"pitch"`
	Roll  float32 `json:"roll"`
	Yaw   float32 `json:"yaw"`
}

// Tuning holds the complementary filter weights and the tick rate.
// GyroWeight + AccWeight == 1.
type Tuning struct {
	GyroWeight   float32 `json:"gyro_weight"`
	AccWeight    float32 `json:"acc_weight"`
	SampleRateHz uint16  `json:"sample_rate_hz"`
}

// Heading is an optional external heading in degrees.
type Heading struct {
	Deg   float32
	Valid bool
}

// NoHeading leaves yaw to pure gyro integration.
var NoHeading = Heading{}

// HeadingDeg returns a valid heading.
func HeadingDeg(deg float32) Heading { return Heading{Deg: deg, Valid: true} }

// Phase is the engine lifecycle.
type Phase int

const (
	Uninitialized Phase = iota
	Running
)

func (p Phase) String() string {
	if p == Running {
		return "running"
	}
	return "uninitialized"
}

// Engine is the fusion state for one sensor. All methods are safe for
// concurrent use.
type Engine struct {
	mu    sync.Mutex
	phase Phase
	state State

	// last tilt computed from gravity, held when the geometry is degenerate
	tiltPitch, tiltRoll float64

	tuning            Tuning
	headingGyroWeight float64
	m1, m2            float64
}

// NewEngine returns an engine with the default tuning.
func NewEngine() *Engine {
	e := &Engine{headingGyroWeight: DefaultHeadingGyroWeight}
	e.setGyroWeight(DefaultGyroWeight)
	e.setSampleRate(DefaultSampleRateHz)
	return e
}

// Seed averages SeedSamples gravity tilt readings, one every
// imu.SampleDelay, and starts pitch and roll from that average. Yaw is
// untouched. A read failure leaves the state unchanged.
func (e *Engine) Seed(src imu.SampleReader, sleeper imu.Sleeper) error {
	var sumPitch, sumRoll float64
	for i := 0; i < SeedSamples; i++ {
		s, err := src.ReadSample()
		if err != nil {
			return errors.Wrap(err, "seed orientation")
		}
		e.mu.Lock()
		p, r := e.tilt(s.Acceleration)
		e.mu.Unlock()
		sumPitch += p
		sumRoll += r
		sleeper.Sleep(imu.SampleDelay)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Pitch = float32(sumPitch / SeedSamples)
	e.state.Roll = float32(sumRoll / SeedSamples)
	e.phase = Running
	return nil
}

// Update runs one pitch/roll tick and returns the new state. Before Seed
// the gyro integrates from zero.
func (e *Engine) Update(s imu.RawSample) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateTilt(s)
	return e.state
}

// UpdateYaw integrates the yaw rate and, when h is valid, pulls yaw toward
// the heading. The result is in [0,360).
func (e *Engine) UpdateYaw(s imu.RawSample, h Heading) float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateYaw(s, h)
	return e.state.Yaw
}

// Step runs Update and UpdateYaw as one tick, so State never observes new
// pitch and roll next to the previous yaw.
func (e *Engine) Step(s imu.RawSample, h Heading) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateTilt(s)
	e.updateYaw(s, h)
	return e.state
}

func (e *Engine) updateTilt(s imu.RawSample) {
	tiltPitch, tiltRoll := e.tilt(s.Acceleration)

	pitch := float64(e.state.Pitch) + float64(s.AngularRate.Pitch)*e.m1
	roll := float64(e.state.Roll) + float64(s.AngularRate.Roll)*e.m1
	// a yaw rotation during the tick swaps part of pitch into roll
	k := math.Sin(float64(s.AngularRate.Yaw) * e.m2)
	pitch, roll = pitch-roll*k, roll+pitch*k

	gw, aw := float64(e.tuning.GyroWeight), float64(e.tuning.AccWeight)
	e.state.Pitch = float32(gw*pitch + aw*tiltPitch)
	e.state.Roll = float32(gw*roll + aw*tiltRoll)
}

func (e *Engine) updateYaw(s imu.RawSample, h Heading) {
	yaw := float64(wrap360(float64(e.state.Yaw) + float64(s.AngularRate.Yaw)*e.m1))
	if h.Valid {
		hd := float64(wrap360(float64(h.Deg)))
		if math.Abs(yaw-hd) > headingWrapThreshold {
			if hd > 180 {
				hd -= 360
			} else {
				hd += 360
			}
		}
		yaw = e.headingGyroWeight*yaw + (1-e.headingGyroWeight)*hd
	}
	e.state.Yaw = wrap360(yaw)
}

// State returns a snapshot of the current orientation.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Phase reports whether the engine has been seeded.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Tuning returns the current filter tuning.
func (e *Engine) Tuning() Tuning {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tuning
}

// SetInitialYaw sets yaw, typically from a compass at startup.
func (e *Engine) SetInitialYaw(deg float32) {
	e.mu.Lock()
	e.state.Yaw = wrap360(float64(deg))
	e.mu.Unlock()
}

// ConfigureFusion sets the gyro weight, clamped to [0,1]; the accelerometer
// gets the remainder.
func (e *Engine) ConfigureFusion(gyroWeight float32) {
	e.mu.Lock()
	e.setGyroWeight(gyroWeight)
	e.mu.Unlock()
}

// ConfigureSampleRate sets the tick rate used to scale angular rates.
// Zero is ignored.
func (e *Engine) ConfigureSampleRate(hz uint16) {
	if hz == 0 {
		return
	}
	e.mu.Lock()
	e.setSampleRate(hz)
	e.mu.Unlock()
}

// ConfigureHeadingFusion sets the yaw weight of the heading blend, clamped
// to [0,1].
func (e *Engine) ConfigureHeadingFusion(gyroWeight float32) {
	e.mu.Lock()
	e.headingGyroWeight = float64(clamp01(gyroWeight))
	e.mu.Unlock()
}

func (e *Engine) setGyroWeight(w float32) {
	w = clamp01(w)
	e.tuning.GyroWeight = w
	e.tuning.AccWeight = 1 - w
}

func (e *Engine) setSampleRate(hz uint16) {
	e.tuning.SampleRateHz = hz
	e.m1 = 1 / (float64(hz) * imu.GyroLSBPerDPS)
	e.m2 = e.m1 * math.Pi / 180
}

// tilt derives pitch and roll from gravity. An axis whose magnitude is not
// strictly below the vector magnitude keeps its previous value.
func (e *Engine) tilt(a imu.Vector3[int16]) (pitch, roll float64) {
	x, y, z := float64(a.Pitch), float64(a.Roll), float64(a.Yaw)
	mag := math.Sqrt(x*x + y*y + z*z)
	if math.Abs(x) < mag {
		e.tiltPitch = math.Asin(x/mag) * 180 / math.Pi
	}
	if math.Abs(y) < mag {
		e.tiltRoll = math.Asin(y/mag) * 180 / math.Pi
	}
	return e.tiltPitch, e.tiltRoll
}

func wrap360(deg float64) float32 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	f := float32(deg)
	if f >= 360 {
		f = 0
	}
	return f
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
