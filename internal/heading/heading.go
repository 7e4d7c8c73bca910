// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package heading provides external headings for yaw correction: GPS
// course over ground and a magnetometer behind the MPU6050 bypass.
package heading

import (
	"github.com/relabs-tech/inertial_fusion/internal/orientation"
)

// Source yields the latest heading. An invalid heading with a nil error
// means no heading is available right now.
type Source interface {
	Heading() (orientation.Heading, error)
}

// None never has a heading.
type None struct{}

func (None) Heading() (orientation.Heading, error) { return orientation.NoHeading, nil }
