// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_fusion/internal/ahrs"
	"github.com/relabs-tech/inertial_fusion/internal/config"
	"github.com/relabs-tech/inertial_fusion/internal/heading"
	"github.com/relabs-tech/inertial_fusion/internal/sensors"
)

func formatOrientation(m OrientationMessage) string {
	line := fmt.Sprintf("[ORIENT] PITCH=%7.2f  ROLL=%7.2f  YAW=%6.2f", m.Pitch, m.Roll, m.Yaw)
	if m.Heading != nil {
		line += fmt.Sprintf("  HDG=%6.2f", *m.Heading)
	}
	return line
}

func formatRaw(m RawMessage) string {
	a, g := m.AccelerationG(), m.AngularRateDPS()
	return fmt.Sprintf("[IMU]    acc=%+6.3f %+6.3f %+6.3f g  gyro=%+8.2f %+8.2f %+8.2f °/s  temp=%d°C",
		a.Pitch, a.Roll, a.Yaw, g.Pitch, g.Roll, g.Yaw, m.Temperature)
}

// consolePublisher prints what would otherwise go to MQTT.
type consolePublisher struct {
	out              io.Writer
	topicOrientation string
}

func (c consolePublisher) Publish(topic string, payload []byte) error {
	if topic == c.topicOrientation {
		var m OrientationMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		_, err := fmt.Fprintln(c.out, formatOrientation(m))
		return err
	}
	var m RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	_, err := fmt.Fprintln(c.out, formatRaw(m))
	return err
}

// RunConsoleMQTT prints the published orientation and raw samples.
func RunConsoleMQTT() error {
	cfg := config.Get()
	log.SetLevel(cfg.LogLevel)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeJSON(client, cfg.TopicOrientation, func(m OrientationMessage) {
		fmt.Println(formatOrientation(m))
	}); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicIMURaw, func(m RawMessage) {
		fmt.Println(formatRaw(m))
	}); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	return nil
}

// RunSimConsole runs the full pipeline against a simulated sensor and
// prints to stdout, no hardware or broker needed.
func RunSimConsole() error {
	clk := clock.New()
	bus := sensors.NewSimBus(clk, sensors.Swing)
	unit := ahrs.New(bus, ahrs.Options{Sleeper: clk, Logger: log.StandardLogger()})
	if err := unit.Initialize(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &Producer{
		Unit:             unit,
		Heading:          heading.None{},
		Pub:              consolePublisher{out: os.Stdout, topicOrientation: "orientation"},
		Clock:            clk,
		RateHz:           250,
		Divider:          25,
		TopicOrientation: "orientation",
		TopicIMURaw:      "raw",
	}
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
