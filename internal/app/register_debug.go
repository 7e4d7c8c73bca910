// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"os"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_fusion/internal/ahrs"
	"github.com/relabs-tech/inertial_fusion/internal/config"
)

// RunRegisterDebug prints the configuration registers and a few samples.
func RunRegisterDebug(samples int) error {
	cfg := config.Get()
	log.SetLevel(cfg.LogLevel)

	unit, bus, err := openUnit(cfg, clock.New())
	if err != nil {
		return err
	}
	defer bus.Close()
	return dumpUnit(unit, os.Stdout, samples)
}

func dumpUnit(unit *ahrs.Unit, out io.Writer, samples int) error {
	regs, err := unit.Registers()
	if err != nil {
		return err
	}
	for _, reg := range regs {
		fmt.Fprintf(out, "0x%02X %-12s = 0x%02X (%08b)  %s\n", reg.Addr, reg.Name, reg.Value, reg.Value, reg.Description)
	}
	for i := 0; i < samples; i++ {
		s, err := unit.ReadSample()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "acc=%6d %6d %6d  gyro=%6d %6d %6d  temp=%d\n",
			s.Acceleration.Pitch, s.Acceleration.Roll, s.Acceleration.Yaw,
			s.AngularRate.Pitch, s.AngularRate.Roll, s.AngularRate.Yaw, s.Temperature)
	}
	return nil
}
