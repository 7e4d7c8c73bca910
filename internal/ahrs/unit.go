// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ahrs ties the MPU6050 driver, the calibration estimator and the
// fusion engine into one handle a host application drives.
package ahrs

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/inertial_fusion/internal/calibration"
	"github.com/relabs-tech/inertial_fusion/internal/imu"
	"github.com/relabs-tech/inertial_fusion/internal/orientation"
	"github.com/relabs-tech/inertial_fusion/internal/sensors"
)

// progressEvery is how often calibration progress is logged, in samples.
const progressEvery = 250

// Options configures a Unit. Zero values pick defaults.
type Options struct {
	Sensor  *sensors.Opts
	Sleeper imu.Sleeper
	Logger  logrus.FieldLogger
}

// Unit is one sensor plus its fusion state. Every method takes the same
// lock, so calibration running on one goroutine blocks ticks on another
// until it finishes.
type Unit struct {
	mu      sync.Mutex
	dev     *sensors.MPU6050
	engine  *orientation.Engine
	est     *calibration.Estimator
	sleeper imu.Sleeper
	log     logrus.FieldLogger
}

// New returns a Unit for the MPU6050 on bus. Call Initialize before use.
func New(bus i2c.Bus, opts Options) *Unit {
	if opts.Sleeper == nil {
		opts.Sleeper = clock.New()
	}
	dev := sensors.New(bus, opts.Sensor)
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	u := &Unit{
		dev:     dev,
		engine:  orientation.NewEngine(),
		sleeper: opts.Sleeper,
		log:     opts.Logger.WithField("imu", dev.Addr()),
	}
	u.est = calibration.New(dev, opts.Sleeper)
	u.est.Progress = func(done, total int) {
		if done%progressEvery == 0 || done == total {
			u.log.Debugf("calibration: %d/%d samples", done, total)
		}
	}
	return u
}

// Initialize configures the device and seeds pitch and roll from gravity.
// It blocks for orientation.SeedSamples sample periods.
func (u *Unit) Initialize() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.dev.Initialize(); err != nil {
		return err
	}
	u.log.Infof("MPU6050 online, WHO_AM_I=0x%02X", u.dev.WhoAmI())
	if u.dev.WhoAmI() != 0x68 {
		u.log.Warnf("unexpected WHO_AM_I 0x%02X, continuing", u.dev.WhoAmI())
	}
	if err := u.engine.Seed(u.dev, u.sleeper); err != nil {
		return err
	}
	st := u.engine.State()
	u.log.Infof("seeded orientation: pitch=%.2f roll=%.2f", st.Pitch, st.Roll)
	return nil
}

// ReadSample reads one calibrated sample.
func (u *Unit) ReadSample() (imu.RawSample, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dev.ReadSample()
}

// CalibrateGyroscope blocks for n sample periods; the board must be still.
func (u *Unit) CalibrateGyroscope(n int) (imu.Vector3[int16], error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.log.Infof("calibrating gyroscope over %d samples", n)
	delta, err := u.est.CalibrateGyroscope(n)
	if err != nil {
		return delta, err
	}
	u.log.Infof("gyroscope offset now %+v (delta %+v)", u.dev.GyroOffset(), delta)
	return delta, nil
}

// CalibrateAccelerometer blocks for n sample periods; the board must be
// level and still. Pitch and roll are re-seeded afterwards since the old
// estimate was made with the previous offsets.
func (u *Unit) CalibrateAccelerometer(n int) (imu.Vector3[int16], error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.log.Infof("calibrating accelerometer over %d samples", n)
	delta, err := u.est.CalibrateAccelerometer(n)
	if err != nil {
		return delta, err
	}
	u.log.Infof("accelerometer offset now %+v (delta %+v)", u.dev.AccOffset(), delta)
	if err := u.engine.Seed(u.dev, u.sleeper); err != nil {
		return delta, err
	}
	return delta, nil
}

// Offsets returns both offset vectors.
func (u *Unit) Offsets() imu.Offsets {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dev.Offsets()
}

func (u *Unit) GyroOffset() imu.Vector3[int16] {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dev.GyroOffset()
}

func (u *Unit) SetGyroOffset(v imu.Vector3[int16]) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.dev.SetGyroOffset(v)
}

func (u *Unit) AccOffset() imu.Vector3[int16] {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dev.AccOffset()
}

func (u *Unit) SetAccOffset(v imu.Vector3[int16]) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.dev.SetAccOffset(v)
}

func (u *Unit) ConfigureFusion(gyroWeight float32) { u.engine.ConfigureFusion(gyroWeight) }

func (u *Unit) ConfigureSampleRate(hz uint16) { u.engine.ConfigureSampleRate(hz) }

func (u *Unit) ConfigureHeadingFusion(gyroWeight float32) {
	u.engine.ConfigureHeadingFusion(gyroWeight)
}

// Tuning returns the engine tuning.
func (u *Unit) Tuning() orientation.Tuning { return u.engine.Tuning() }

// Update runs a pitch/roll tick on a sample the caller already read.
func (u *Unit) Update(s imu.RawSample) orientation.State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.engine.Update(s)
}

// UpdateYaw runs a yaw tick on a sample the caller already read.
func (u *Unit) UpdateYaw(s imu.RawSample, h orientation.Heading) float32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.engine.UpdateYaw(s, h)
}

// Tick reads one sample and runs both the pitch/roll and yaw updates.
func (u *Unit) Tick(h orientation.Heading) (imu.RawSample, orientation.State, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s, err := u.dev.ReadSample()
	if err != nil {
		return imu.RawSample{}, u.engine.State(), err
	}
	return s, u.engine.Step(s, h), nil
}

// State returns the current orientation without taking the unit lock, so it
// stays responsive while a calibration is running.
func (u *Unit) State() orientation.State { return u.engine.State() }

// Phase reports whether the engine has been seeded.
func (u *Unit) Phase() orientation.Phase { return u.engine.Phase() }

func (u *Unit) SetInitialYaw(deg float32) { u.engine.SetInitialYaw(deg) }

// EnableCompassBypass exposes the auxiliary magnetometer on the main bus.
func (u *Unit) EnableCompassBypass() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.dev.EnableCompassBypass(); err != nil {
		return err
	}
	u.log.Info("auxiliary I2C bypass enabled")
	return nil
}

// SetFastClock switches the bus to 400 kHz.
func (u *Unit) SetFastClock() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dev.SetFastClock()
}

// Registers reads back the configuration registers.
func (u *Unit) Registers() ([]sensors.RegisterValue, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dev.ReadRegisters()
}
