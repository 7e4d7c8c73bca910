// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"go.viam.com/test"

	"github.com/relabs-tech/inertial_fusion/internal/imu"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("MQTT_BROKER=tcp://localhost:1883\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.MPUAddr, test.ShouldEqual, uint16(0x68))
	test.That(t, cfg.SampleRateHz, test.ShouldEqual, uint16(250))
	test.That(t, cfg.GyroWeight, test.ShouldAlmostEqual, 0.9996, 1e-12)
	test.That(t, cfg.HeadingGyroWeight, test.ShouldAlmostEqual, 0.98, 1e-12)
	test.That(t, cfg.GyroCalSamples, test.ShouldEqual, 2000)
	test.That(t, cfg.AccCalSamples, test.ShouldEqual, 250)
	test.That(t, cfg.I2CFastClock, test.ShouldBeTrue)
	test.That(t, cfg.GyroOffset, test.ShouldBeNil)
	test.That(t, cfg.HeadingSource, test.ShouldEqual, HeadingNone)
	test.That(t, cfg.PublishDivider, test.ShouldEqual, 25)
	test.That(t, cfg.LogLevel, test.ShouldEqual, logrus.InfoLevel)
}

func TestParseFile(t *testing.T) {
	text := `
# sensor
MPU_ADDR=0x69
I2C_BUS = 1
I2C_FAST_CLOCK=false
SAMPLE_RATE_HZ=200
GYRO_WEIGHT=0.998
GYRO_OFFSET=12,-7,3
ACC_OFFSET= -40 , 18 , 96
HEADING_SOURCE=GPS
GPS_BAUD_RATE=38400
COMPASS_I2C_ADDR=30
MQTT_BROKER=tcp://broker:1883
LOG_LEVEL=debug
`
	path := filepath.Join(t.TempDir(), "inertial_config.txt")
	test.That(t, os.WriteFile(path, []byte(text), 0o600), test.ShouldBeNil)

	cfg, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.MPUAddr, test.ShouldEqual, uint16(0x69))
	test.That(t, cfg.I2CBus, test.ShouldEqual, "1")
	test.That(t, cfg.I2CFastClock, test.ShouldBeFalse)
	test.That(t, cfg.SampleRateHz, test.ShouldEqual, uint16(200))
	test.That(t, cfg.GyroWeight, test.ShouldAlmostEqual, 0.998, 1e-12)
	test.That(t, *cfg.GyroOffset, test.ShouldResemble, imu.Vector3[int16]{Pitch: 12, Roll: -7, Yaw: 3})
	test.That(t, *cfg.AccOffset, test.ShouldResemble, imu.Vector3[int16]{Pitch: -40, Roll: 18, Yaw: 96})
	test.That(t, cfg.HeadingSource, test.ShouldEqual, HeadingGPS)
	test.That(t, cfg.GPSBaudRate, test.ShouldEqual, uint(38400))
	test.That(t, cfg.CompassI2CAddr, test.ShouldEqual, uint16(0x1E))
	test.That(t, cfg.LogLevel, test.ShouldEqual, logrus.DebugLevel)
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		text string
		want string
	}{
		{"SAMPLE_RATE_HZ=250", "MQTT_BROKER is required"},
		{"MQTT_BROKER=x\nBOGUS=1", "unknown config key"},
		{"MQTT_BROKER=x\nno equals sign", "invalid config line 2"},
		{"MQTT_BROKER=x\nGYRO_WEIGHT=1.5", "GYRO_WEIGHT must be in [0,1]"},
		{"MQTT_BROKER=x\nHEADING_GYRO_WEIGHT=-0.1", "HEADING_GYRO_WEIGHT"},
		{"MQTT_BROKER=x\nSAMPLE_RATE_HZ=0", "SAMPLE_RATE_HZ must be > 0"},
		{"MQTT_BROKER=x\nSAMPLE_RATE_HZ=fast", "invalid SAMPLE_RATE_HZ"},
		{"MQTT_BROKER=x\nGYRO_OFFSET=1,2", "want 3 comma separated values"},
		{"MQTT_BROKER=x\nHEADING_SOURCE=stars", "HEADING_SOURCE must be"},
		{"MQTT_BROKER=x\nPUBLISH_DIVIDER=0", "PUBLISH_DIVIDER"},
		{"MQTT_BROKER=x\nLOG_LEVEL=loud", "invalid LOG_LEVEL"},
		{"MQTT_BROKER=x\nDISPLAY_I2C_ADDR=0x3D", "DISPLAY_I2C_ADDR must be 0x3C, got 0x3D"},
	} {
		_, err := Parse(strings.NewReader(tc.text))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, tc.want)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	v := imu.Vector3[int16]{Pitch: -1, Roll: 32767, Yaw: -32768}
	got, err := ParseVector(FormatVector(v))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, v)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to open config file")
}

func TestDisplayAddrAcceptsFixedAddress(t *testing.T) {
	for _, text := range []string{"", "DISPLAY_I2C_ADDR=0x3C", "DISPLAY_I2C_ADDR=60"} {
		cfg, err := Parse(strings.NewReader("MQTT_BROKER=x\n" + text))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.DisplayI2CAddr, test.ShouldEqual, uint16(DisplayAddr))
	}
}
