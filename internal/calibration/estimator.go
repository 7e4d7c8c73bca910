// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration estimates static sensor bias by averaging readings
// taken while the board is held still.
package calibration

import (
	"time"

	"github.com/pkg/errors"

	"github.com/relabs-tech/inertial_fusion/internal/imu"
)

// Default sample counts.
const (
	DefaultGyroSamples  = 2000
	DefaultAccelSamples = 250
)

// Target is a sample source whose offsets the estimator adjusts.
type Target interface {
	imu.SampleReader
	GyroOffset() imu.Vector3[int16]
	SetGyroOffset(imu.Vector3[int16])
	AccOffset() imu.Vector3[int16]
	SetAccOffset(imu.Vector3[int16])
}

// Estimator runs the blocking calibration loops against a Target.
type Estimator struct {
	target  Target
	sleeper imu.Sleeper
	delay   time.Duration

	// Progress, when set, is called after every sample.
	Progress func(done, total int)
}

// New returns an estimator sampling every imu.SampleDelay.
func New(target Target, sleeper imu.Sleeper) *Estimator {
	return &Estimator{target: target, sleeper: sleeper, delay: imu.SampleDelay}
}

// CalibrateGyroscope averages n readings of a stationary gyroscope and adds
// the mean to the gyro offset. The returned delta is what was added.
func (e *Estimator) CalibrateGyroscope(n int) (imu.Vector3[int16], error) {
	delta, err := e.average(n, func(s imu.RawSample) imu.Vector3[int16] {
		return s.AngularRate
	}, imu.Vector3[int16]{})
	if err != nil {
		return imu.Vector3[int16]{}, errors.Wrap(err, "gyroscope calibration")
	}
	e.target.SetGyroOffset(e.target.GyroOffset().Add(delta))
	return delta, nil
}

// CalibrateAccelerometer averages n readings of a level, stationary board
// against 0 g on pitch and roll and 1 g on the vertical axis, and adds the
// mean residual to the accelerometer offset.
func (e *Estimator) CalibrateAccelerometer(n int) (imu.Vector3[int16], error) {
	delta, err := e.average(n, func(s imu.RawSample) imu.Vector3[int16] {
		return s.Acceleration
	}, imu.Vector3[int16]{Yaw: imu.AccelLSBPerG})
	if err != nil {
		return imu.Vector3[int16]{}, errors.Wrap(err, "accelerometer calibration")
	}
	e.target.SetAccOffset(e.target.AccOffset().Add(delta))
	return delta, nil
}

func (e *Estimator) average(n int, pick func(imu.RawSample) imu.Vector3[int16], ref imu.Vector3[int16]) (imu.Vector3[int16], error) {
	if n <= 0 {
		return imu.Vector3[int16]{}, nil
	}
	var sum imu.Vector3[int64]
	for i := 0; i < n; i++ {
		s, err := e.target.ReadSample()
		if err != nil {
			return imu.Vector3[int16]{}, errors.Wrapf(err, "sample %d/%d", i+1, n)
		}
		v := pick(s)
		sum.Pitch += int64(v.Pitch) - int64(ref.Pitch)
		sum.Roll += int64(v.Roll) - int64(ref.Roll)
		sum.Yaw += int64(v.Yaw) - int64(ref.Yaw)
		e.sleeper.Sleep(e.delay)
		if e.Progress != nil {
			e.Progress(i+1, n)
		}
	}
	return imu.Vector3[int16]{
		Pitch: roundMean(sum.Pitch, n),
		Roll:  roundMean(sum.Roll, n),
		Yaw:   roundMean(sum.Yaw, n),
	}, nil
}

// roundMean is sum/n rounded half up.
func roundMean(sum int64, n int) int16 {
	num, den := 2*sum+int64(n), 2*int64(n)
	q := num / den
	if num%den != 0 && num < 0 {
		q--
	}
	return int16(q)
}
