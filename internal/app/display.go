// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/inertial_fusion/internal/config"
	"github.com/relabs-tech/inertial_fusion/internal/sensors"
)

// displayData holds the latest messages for the OLED.
type displayData struct {
	mu          sync.RWMutex
	orientation OrientationMessage
	haveOrient  bool
	raw         RawMessage
	haveRaw     bool
}

func (d *displayData) setOrientation(m OrientationMessage) {
	d.mu.Lock()
	d.orientation = m
	d.haveOrient = true
	d.mu.Unlock()
}

func (d *displayData) setRaw(m RawMessage) {
	d.mu.Lock()
	d.raw = m
	d.haveRaw = true
	d.mu.Unlock()
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

// renderOrientation draws pitch, roll, yaw and the die temperature.
func (d *displayData) renderOrientation() *image1bit.VerticalLSB {
	d.mu.RLock()
	defer d.mu.RUnlock()

	img, drawer := newFrame()
	if !d.haveOrient {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawString("Orientation")
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawString("Waiting...")
		return img
	}
	st := d.orientation.State
	drawer.Dot = fixed.P(0, 13)
	drawer.DrawString(fmt.Sprintf("P: %6.1f", st.Pitch))
	drawer.Dot = fixed.P(0, 26)
	drawer.DrawString(fmt.Sprintf("R: %6.1f", st.Roll))
	drawer.Dot = fixed.P(0, 39)
	if d.orientation.Heading != nil {
		drawer.DrawString(fmt.Sprintf("Y: %6.1f H%5.1f", st.Yaw, *d.orientation.Heading))
	} else {
		drawer.DrawString(fmt.Sprintf("Y: %6.1f", st.Yaw))
	}
	if d.haveRaw {
		drawer.Dot = fixed.P(0, 52)
		drawer.DrawString(fmt.Sprintf("T: %3dC", d.raw.Temperature))
	}
	return img
}

func showSplash(dev *ssd1306.Dev) error {
	img, drawer := newFrame()
	drawer.Dot = fixed.P(10, 26)
	drawer.DrawString("Inertial Pi")
	drawer.Dot = fixed.P(10, 43)
	drawer.DrawString("MPU6050 AHRS")
	return dev.Draw(dev.Bounds(), img, image.Point{})
}

// RunDisplay draws the published orientation on an SSD1306.
func RunDisplay() error {
	cfg := config.Get()
	log.SetLevel(cfg.LogLevel)

	bus, err := sensors.OpenBus(cfg.I2CBus)
	if err != nil {
		return err
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return errors.Wrap(err, "failed to initialize display")
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)
	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	data := &displayData{}
	if err := subscribeJSON(client, cfg.TopicOrientation, data.setOrientation); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicIMURaw, data.setRaw); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()
	log.Println("display: starting update loop")
	for range ticker.C {
		if err := dev.Draw(dev.Bounds(), data.renderOrientation(), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}
