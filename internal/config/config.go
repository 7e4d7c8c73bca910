// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/relabs-tech/inertial_fusion/internal/imu"
)

// Heading sources.
const (
	HeadingNone    = "none"
	HeadingGPS     = "gps"
	HeadingCompass = "compass"
)

// DisplayAddr is the only address the periph SSD1306 I2C driver talks to.
const DisplayAddr = 0x3C

// Config holds all application configuration values.
type Config struct {
	// Sensor
	I2CBus         string
	MPUAddr        uint16
	I2CFastClock   bool
	SampleRateHz   uint16
	GyroCalOnStart bool

	// Fusion
	GyroWeight        float64
	HeadingGyroWeight float64

	// Calibration
	GyroCalSamples int
	AccCalSamples  int
	GyroOffset     *imu.Vector3[int16] // nil when not configured
	AccOffset      *imu.Vector3[int16]

	// Heading
	HeadingSource      string
	GPSSerialPort      string
	GPSBaudRate        uint
	GPSMinSpeedKnots   float64
	CompassI2CAddr     uint16
	CompassDeclination float64

	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string
	MQTTClientIDConsole  string

	// Topics
	TopicOrientation string
	TopicIMURaw      string
	PublishDivider   int

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	LogLevel logrus.Level
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional key at its default.
func Default() *Config {
	return &Config{
		MPUAddr:               0x68,
		I2CFastClock:          true,
		SampleRateHz:          250,
		GyroWeight:            0.9996,
		HeadingGyroWeight:     0.98,
		GyroCalSamples:        2000,
		AccCalSamples:         250,
		HeadingSource:         HeadingNone,
		GPSSerialPort:         "/dev/serial0",
		GPSBaudRate:           9600,
		GPSMinSpeedKnots:      2,
		CompassI2CAddr:        0x1E,
		MQTTClientIDProducer:  "inertial-imu-producer",
		MQTTClientIDWeb:       "inertial-web",
		MQTTClientIDDisplay:   "inertial-display",
		MQTTClientIDConsole:   "inertial-console",
		TopicOrientation:      "inertial/orientation",
		TopicIMURaw:           "inertial/imu/raw",
		PublishDivider:        25,
		WebServerPort:         8080,
		DisplayI2CAddr:        DisplayAddr,
		DisplayUpdateInterval: 200,
		LogLevel:              logrus.InfoLevel,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config file")
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines; blank lines and # comments are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, errors.Wrapf(err, "config line %d", lineNum)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Sensor
	case "I2C_BUS":
		c.I2CBus = value
	case "MPU_ADDR":
		c.MPUAddr, err = cast.ToUint16E(value)
	case "I2C_FAST_CLOCK":
		c.I2CFastClock, err = cast.ToBoolE(value)
	case "SAMPLE_RATE_HZ":
		c.SampleRateHz, err = cast.ToUint16E(value)
	case "GYRO_CAL_ON_START":
		c.GyroCalOnStart, err = cast.ToBoolE(value)

	// Fusion
	case "GYRO_WEIGHT":
		c.GyroWeight, err = cast.ToFloat64E(value)
	case "HEADING_GYRO_WEIGHT":
		c.HeadingGyroWeight, err = cast.ToFloat64E(value)

	// Calibration
	case "GYRO_CAL_SAMPLES":
		c.GyroCalSamples, err = cast.ToIntE(value)
	case "ACC_CAL_SAMPLES":
		c.AccCalSamples, err = cast.ToIntE(value)
	case "GYRO_OFFSET":
		var v imu.Vector3[int16]
		v, err = ParseVector(value)
		c.GyroOffset = &v
	case "ACC_OFFSET":
		var v imu.Vector3[int16]
		v, err = ParseVector(value)
		c.AccOffset = &v

	// Heading
	case "HEADING_SOURCE":
		c.HeadingSource = strings.ToLower(value)
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = cast.ToUintE(value)
	case "GPS_MIN_SPEED_KNOTS":
		c.GPSMinSpeedKnots, err = cast.ToFloat64E(value)
	case "COMPASS_I2C_ADDR":
		c.CompassI2CAddr, err = cast.ToUint16E(value)
	case "COMPASS_DECLINATION":
		c.CompassDeclination, err = cast.ToFloat64E(value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_ORIENTATION":
		c.TopicOrientation = value
	case "TOPIC_IMU_RAW":
		c.TopicIMURaw = value
	case "PUBLISH_DIVIDER":
		c.PublishDivider, err = cast.ToIntE(value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = cast.ToIntE(value)

	// Display
	case "DISPLAY_I2C_ADDR":
		c.DisplayI2CAddr, err = cast.ToUint16E(value)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = cast.ToIntE(value)

	case "LOG_LEVEL":
		c.LogLevel, err = logrus.ParseLevel(value)

	default:
		return errors.Errorf("unknown config key: %q", key)
	}
	if err != nil {
		return errors.Wrapf(err, "invalid %s %q", key, value)
	}
	return nil
}

// validate checks required fields and ranges.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return errors.New("MQTT_BROKER is required")
	}
	if c.SampleRateHz == 0 {
		return errors.New("SAMPLE_RATE_HZ must be > 0")
	}
	if c.GyroWeight < 0 || c.GyroWeight > 1 {
		return errors.Errorf("GYRO_WEIGHT must be in [0,1], got %v", c.GyroWeight)
	}
	if c.HeadingGyroWeight < 0 || c.HeadingGyroWeight > 1 {
		return errors.Errorf("HEADING_GYRO_WEIGHT must be in [0,1], got %v", c.HeadingGyroWeight)
	}
	switch c.HeadingSource {
	case HeadingNone, HeadingGPS, HeadingCompass:
	default:
		return errors.Errorf("HEADING_SOURCE must be none, gps or compass, got %q", c.HeadingSource)
	}
	if c.DisplayI2CAddr != DisplayAddr {
		return errors.Errorf("DISPLAY_I2C_ADDR must be 0x%02X, got 0x%02X", DisplayAddr, c.DisplayI2CAddr)
	}
	if c.PublishDivider < 1 {
		return errors.Errorf("PUBLISH_DIVIDER must be >= 1, got %d", c.PublishDivider)
	}
	return nil
}

// ParseVector parses "pitch,roll,yaw" integers.
func ParseVector(s string) (imu.Vector3[int16], error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return imu.Vector3[int16]{}, errors.Errorf("want 3 comma separated values, got %d", len(parts))
	}
	var out [3]int16
	for i, p := range parts {
		v, err := cast.ToInt16E(strings.TrimSpace(p))
		if err != nil {
			return imu.Vector3[int16]{}, err
		}
		out[i] = v
	}
	return imu.Vector3[int16]{Pitch: out[0], Roll: out[1], Yaw: out[2]}, nil
}

// FormatVector is the inverse of ParseVector.
func FormatVector(v imu.Vector3[int16]) string {
	return fmt.Sprintf("%d,%d,%d", v.Pitch, v.Roll, v.Yaw)
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
