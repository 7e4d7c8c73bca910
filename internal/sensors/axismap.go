// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import "github.com/relabs-tech/inertial_fusion/internal/imu"

// Word indexes one of the seven big-endian words of the measurement burst.
type Word int

const (
	WordAccelX Word = iota
	WordAccelY
	WordAccelZ
	WordTemp
	WordGyroX
	WordGyroY
	WordGyroZ
)

// AxisSource picks the burst word feeding a logical axis.
type AxisSource struct {
	Word   Word
	Invert bool
}

// AxisMapping maps the three logical axes of one sensor.
type AxisMapping struct {
	Pitch AxisSource
	Roll  AxisSource
	Yaw   AxisSource
}

// AxisMap describes how the board is mounted.
type AxisMap struct {
	Acceleration AxisMapping
	AngularRate  AxisMapping
}

// DefaultAxisMap is the flight-controller mounting: X forward, Y left, Z up.
// Rotation about Y is pitch and about X is roll; pitch and yaw rates are
// negated so nose-up and clockwise are positive.
var DefaultAxisMap = AxisMap{
	Acceleration: AxisMapping{
		Pitch: AxisSource{Word: WordAccelX},
		Roll:  AxisSource{Word: WordAccelY},
		Yaw:   AxisSource{Word: WordAccelZ},
	},
	AngularRate: AxisMapping{
		Pitch: AxisSource{Word: WordGyroY, Invert: true},
		Roll:  AxisSource{Word: WordGyroX},
		Yaw:   AxisSource{Word: WordGyroZ, Invert: true},
	},
}

func (s AxisSource) pick(words *[7]int16) int16 {
	v := words[s.Word]
	if s.Invert {
		return -v
	}
	return v
}

func (m AxisMapping) apply(words *[7]int16) imu.Vector3[int16] {
	return imu.Vector3[int16]{
		Pitch: m.Pitch.pick(words),
		Roll:  m.Roll.pick(words),
		Yaw:   m.Yaw.pick(words),
	}
}
