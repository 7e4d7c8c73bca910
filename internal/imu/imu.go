// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package imu holds the sample types shared by the sensor driver, the
// calibration estimator and the orientation engine.
package imu

import "time"

// Sensor scale for the ranges the driver configures (GYRO_CONFIG=±500°/s,
// ACCEL_CONFIG=±8g).
const (
	GyroLSBPerDPS = 65.5
	AccelLSBPerG  = 4096
)

// Number is the set of component types a Vector3 may carry.
type Number interface {
	~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Vector3 is a per-axis triple in logical (pitch, roll, yaw) order.
type Vector3[T Number] struct {
	Pitch T `json:"pitch"`
	Roll  T `json:"roll"`
	Yaw   T `json:"yaw"`
}

// Add returns the component-wise sum.
func (v Vector3[T]) Add(o Vector3[T]) Vector3[T] {
	return Vector3[T]{Pitch: v.Pitch + o.Pitch, Roll: v.Roll + o.Roll, Yaw: v.Yaw + o.Yaw}
}

// Sub returns the component-wise difference.
func (v Vector3[T]) Sub(o Vector3[T]) Vector3[T] {
	return Vector3[T]{Pitch: v.Pitch - o.Pitch, Roll: v.Roll - o.Roll, Yaw: v.Yaw - o.Yaw}
}

// RawSample is one reading in raw ADC units, after axis remapping and
// offset subtraction. Temperature is already in °C.
type RawSample struct {
	Acceleration Vector3[int16] `json:"acc"`
	AngularRate  Vector3[int16] `json:"gyro"`
	Temperature  int16          `json:"temp_c"`
}

// AccelerationG returns the acceleration in g.
func (s RawSample) AccelerationG() Vector3[float32] {
	return scale(s.Acceleration, 1.0/AccelLSBPerG)
}

// AngularRateDPS returns the angular rate in degrees per second.
func (s RawSample) AngularRateDPS() Vector3[float32] {
	return scale(s.AngularRate, 1.0/GyroLSBPerDPS)
}

func scale(v Vector3[int16], k float64) Vector3[float32] {
	return Vector3[float32]{
		Pitch: float32(float64(v.Pitch) * k),
		Roll:  float32(float64(v.Roll) * k),
		Yaw:   float32(float64(v.Yaw) * k),
	}
}

// Offsets are the additive bias terms subtracted from every raw reading.
type Offsets struct {
	Accelerometer Vector3[int16] `json:"acc"`
	Gyroscope     Vector3[int16] `json:"gyro"`
}

// SampleReader yields calibrated raw samples.
type SampleReader interface {
	ReadSample() (RawSample, error)
}

// Sleeper is the delay primitive used by calibration and startup averaging.
// clock.Clock from github.com/benbjohnson/clock satisfies it.
type Sleeper interface {
	Sleep(d time.Duration)
}

// SampleDelay is the pause between consecutive reads in blocking sampling
// loops (~250 Hz).
const SampleDelay = 4 * time.Millisecond
