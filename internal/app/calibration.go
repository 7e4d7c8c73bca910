// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_fusion/internal/ahrs"
	"github.com/relabs-tech/inertial_fusion/internal/config"
	"github.com/relabs-tech/inertial_fusion/internal/imu"
)

const (
	stillnessSamples = 100
	// stillStdBad is the gyro standard deviation, in raw counts, above
	// which the board is probably moving.
	stillStdBad = 12.0
)

// CalibrationPlan is what a calibration session runs.
type CalibrationPlan struct {
	GyroSamples  int
	AccelSamples int
}

// RunCalibration is the guided console calibration. It prints config lines
// to paste into inertial_config.txt; it never writes files itself.
func RunCalibration() error {
	cfg := config.Get()
	log.SetLevel(cfg.LogLevel)

	unit, bus, err := openUnit(cfg, clock.New())
	if err != nil {
		return err
	}
	defer bus.Close()

	return calibrationSession(unit, os.Stdin, os.Stdout, CalibrationPlan{
		GyroSamples:  cfg.GyroCalSamples,
		AccelSamples: cfg.AccCalSamples,
	})
}

func calibrationSession(unit *ahrs.Unit, in io.Reader, out io.Writer, plan CalibrationPlan) error {
	r := bufio.NewReader(in)

	regs, err := unit.Registers()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "MPU6050 configuration registers:")
	for _, reg := range regs {
		fmt.Fprintf(out, "  0x%02X %-12s = 0x%02X  %s\n", reg.Addr, reg.Name, reg.Value, reg.Description)
	}
	start := unit.Offsets()
	fmt.Fprintf(out, "current offsets: gyro %s  acc %s\n",
		config.FormatVector(start.Gyroscope), config.FormatVector(start.Accelerometer))

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Step 1/2: gyroscope. Put the board down and do not touch it.")
	waitEnter(r, out, "Press ENTER to start...")
	checkStill(unit, out)
	delta, err := unit.CalibrateGyroscope(plan.GyroSamples)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "gyroscope delta %s\n", config.FormatVector(delta))

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Step 2/2: accelerometer. Place the board level, Z up.")
	waitEnter(r, out, "Press ENTER to start...")
	checkStill(unit, out)
	delta, err = unit.CalibrateAccelerometer(plan.AccelSamples)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "accelerometer delta %s\n", config.FormatVector(delta))
	st := unit.State()
	fmt.Fprintf(out, "level check: pitch=%.2f roll=%.2f\n", st.Pitch, st.Roll)

	off := unit.Offsets()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Add these lines to inertial_config.txt:")
	fmt.Fprintf(out, "GYRO_OFFSET=%s\n", config.FormatVector(off.Gyroscope))
	fmt.Fprintf(out, "ACC_OFFSET=%s\n", config.FormatVector(off.Accelerometer))
	return nil
}

// checkStill warns when the gyro is noisier than a resting board.
func checkStill(unit *ahrs.Unit, out io.Writer) {
	samples := make([]imu.Vector3[int16], 0, stillnessSamples)
	for i := 0; i < stillnessSamples; i++ {
		s, err := unit.ReadSample()
		if err != nil {
			log.Warnf("stillness check: %v", err)
			return
		}
		samples = append(samples, s.AngularRate)
	}
	std := gyroStdDev(samples)
	if std > stillStdBad {
		fmt.Fprintf(out, "WARNING: board seems to be moving (gyro std %.1f counts); results may be off\n", std)
	}
}

// gyroStdDev is the largest per-axis standard deviation.
func gyroStdDev(samples []imu.Vector3[int16]) float64 {
	if len(samples) == 0 {
		return 0
	}
	axis := func(pick func(imu.Vector3[int16]) int16) float64 {
		var sum, sq float64
		for _, s := range samples {
			v := float64(pick(s))
			sum += v
			sq += v * v
		}
		n := float64(len(samples))
		mean := sum / n
		return math.Sqrt(math.Max(sq/n-mean*mean, 0))
	}
	return math.Max(axis(func(v imu.Vector3[int16]) int16 { return v.Pitch }),
		math.Max(axis(func(v imu.Vector3[int16]) int16 { return v.Roll }),
			axis(func(v imu.Vector3[int16]) int16 { return v.Yaw })))
}

func waitEnter(r *bufio.Reader, out io.Writer, prompt string) {
	fmt.Fprint(out, prompt)
	_, _ = r.ReadString('\n')
}
