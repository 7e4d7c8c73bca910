// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/inertial_fusion/internal/ahrs"
	"github.com/relabs-tech/inertial_fusion/internal/config"
	"github.com/relabs-tech/inertial_fusion/internal/heading"
	"github.com/relabs-tech/inertial_fusion/internal/orientation"
	"github.com/relabs-tech/inertial_fusion/internal/sensors"
)

// Producer ticks the unit at a fixed rate and publishes every Divider-th
// result.
type Producer struct {
	Unit             *ahrs.Unit
	Heading          heading.Source
	Pub              Publisher
	Clock            clock.Clock
	RateHz           uint16
	Divider          int
	TopicOrientation string
	TopicIMURaw      string

	ticks      int
	readErrors int
}

// Run ticks until ctx is done.
func (p *Producer) Run(ctx context.Context) error {
	ticker := p.Clock.Ticker(time.Second / time.Duration(p.RateHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			p.step(t)
		}
	}
}

func (p *Producer) step(t time.Time) {
	h, err := p.Heading.Heading()
	if err != nil {
		log.Debugf("heading unavailable: %v", err)
		h = orientation.NoHeading
	}

	sample, st, err := p.Unit.Tick(h)
	if err != nil {
		p.readErrors++
		if p.readErrors == 1 || p.readErrors%1000 == 0 {
			log.Printf("IMU read error (%d so far): %v", p.readErrors, err)
		}
		return
	}

	p.ticks++
	if p.ticks%p.Divider != 0 {
		return
	}

	stamp := t.Format(time.RFC3339Nano)
	msg := OrientationMessage{State: st, Time: stamp}
	if h.Valid {
		deg := h.Deg
		msg.Heading = &deg
	}
	p.publish(p.TopicOrientation, msg)
	p.publish(p.TopicIMURaw, RawMessage{RawSample: sample, Time: stamp})
	log.Debugf("tick %d: P=%.2f R=%.2f Y=%.2f", p.ticks, st.Pitch, st.Roll, st.Yaw)
}

func (p *Producer) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("json marshal error (%s): %v", topic, err)
		return
	}
	if err := p.Pub.Publish(topic, payload); err != nil {
		log.Printf("MQTT publish error (%s): %v", topic, err)
	}
}

// openUnit opens the bus and brings the sensor up with the configured
// tuning and stored offsets.
func openUnit(cfg *config.Config, sleeper clock.Clock) (*ahrs.Unit, i2c.BusCloser, error) {
	bus, err := sensors.OpenBus(cfg.I2CBus)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("using I2C bus %s", bus)

	unit := ahrs.New(bus, ahrs.Options{
		Sensor:  &sensors.Opts{Addr: cfg.MPUAddr},
		Sleeper: sleeper,
		Logger:  log.StandardLogger(),
	})
	if err := setupUnit(unit, cfg); err != nil {
		return nil, nil, multierr.Append(err, bus.Close())
	}
	return unit, bus, nil
}

// setupUnit restores offsets and tuning, then initializes the unit. The
// offsets must be in place before Initialize seeds pitch and roll.
func setupUnit(unit *ahrs.Unit, cfg *config.Config) error {
	if cfg.I2CFastClock {
		if err := unit.SetFastClock(); err != nil {
			log.Warnf("could not switch I2C bus to 400kHz: %v", err)
		}
	}
	if cfg.GyroOffset != nil {
		unit.SetGyroOffset(*cfg.GyroOffset)
		log.Printf("restored GYRO_OFFSET=%s", config.FormatVector(*cfg.GyroOffset))
	}
	if cfg.AccOffset != nil {
		unit.SetAccOffset(*cfg.AccOffset)
		log.Printf("restored ACC_OFFSET=%s", config.FormatVector(*cfg.AccOffset))
	}
	unit.ConfigureSampleRate(cfg.SampleRateHz)
	unit.ConfigureFusion(float32(cfg.GyroWeight))
	unit.ConfigureHeadingFusion(float32(cfg.HeadingGyroWeight))
	return unit.Initialize()
}

// openHeading builds the configured heading source. The returned closer
// may be nil.
func openHeading(ctx context.Context, cfg *config.Config, unit *ahrs.Unit, bus i2c.Bus, clk clock.Clock) (heading.Source, io.Closer, error) {
	switch cfg.HeadingSource {
	case config.HeadingGPS:
		port, err := heading.OpenSerial(cfg.GPSSerialPort, cfg.GPSBaudRate)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("GPS serial port opened on %s at %d baud", cfg.GPSSerialPort, cfg.GPSBaudRate)
		src := heading.NewGPSCourse(clk, cfg.GPSMinSpeedKnots)
		go func() {
			if err := src.Run(ctx, port); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("GPS reader stopped: %v", err)
			}
		}()
		return src, port, nil

	case config.HeadingCompass:
		if err := unit.EnableCompassBypass(); err != nil {
			return nil, nil, err
		}
		c, err := heading.NewCompass(bus, heading.CompassOpts{
			Addr:           cfg.CompassI2CAddr,
			DeclinationDeg: cfg.CompassDeclination,
			Clock:          clk,
		})
		if err != nil {
			return nil, nil, err
		}
		if h, err := c.Heading(); err == nil && h.Valid {
			unit.SetInitialYaw(h.Deg)
			log.Printf("initial yaw from compass: %.1f°", h.Deg)
		}
		return c, nil, nil
	}
	return heading.None{}, nil, nil
}

// RunIMUProducer reads the MPU6050, fuses orientation and publishes it to
// MQTT until interrupted.
func RunIMUProducer() error {
	cfg := config.Get()
	log.SetLevel(cfg.LogLevel)
	clk := clock.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	unit, bus, err := openUnit(cfg, clk)
	if err != nil {
		return err
	}
	closers := []io.Closer{bus}
	defer func() {
		var err error
		for _, c := range closers {
			err = multierr.Append(err, c.Close())
		}
		if err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if cfg.GyroCalOnStart {
		log.Println("keep the board still: calibrating gyroscope")
		if _, err := unit.CalibrateGyroscope(cfg.GyroCalSamples); err != nil {
			return err
		}
	}

	src, closer, err := openHeading(ctx, cfg, unit, bus, clk)
	if err != nil {
		return err
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	log.Printf("heading source: %s", cfg.HeadingSource)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	p := &Producer{
		Unit:             unit,
		Heading:          src,
		Pub:              mqttPublisher{client: client},
		Clock:            clk,
		RateHz:           cfg.SampleRateHz,
		Divider:          cfg.PublishDivider,
		TopicOrientation: cfg.TopicOrientation,
		TopicIMURaw:      cfg.TopicIMURaw,
	}
	log.Printf("ticking at %d Hz, publishing every %d ticks", cfg.SampleRateHz, cfg.PublishDivider)
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Println("IMU producer shutting down")
	return nil
}
