// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/relabs-tech/inertial_fusion/internal/imu"
	"github.com/relabs-tech/inertial_fusion/internal/orientation"
)

// OrientationMessage is published on TOPIC_ORIENTATION.
type OrientationMessage struct {
	orientation.State
	// Heading is the external heading used on this tick, if any.
	Heading *float32 `json:"heading,omitempty"`
	Time    string   `json:"time"`
}

// RawMessage is published on TOPIC_IMU_RAW.
type RawMessage struct {
	imu.RawSample
	Time string `json:"time"`
}
