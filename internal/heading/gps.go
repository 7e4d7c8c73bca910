// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package heading

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/benbjohnson/clock"
	serial "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_fusion/internal/orientation"
)

// DefaultMaxAge is how long a course stays usable without a fresh RMC.
const DefaultMaxAge = 2 * time.Second

// Fix is the last RMC sentence seen.
type Fix struct {
	Time       string  `json:"time"`
	Date       string  `json:"date"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	SpeedKnots float64 `json:"speed_knots"`
	CourseDeg  float64 `json:"course_deg"`
	Validity   string  `json:"validity"`
}

// GPSCourse turns NMEA RMC course over ground into a heading. The course is
// only trusted while the fix is valid and the receiver is moving faster
// than MinSpeedKnots.
type GPSCourse struct {
	MinSpeedKnots float64
	MaxAge        time.Duration

	clk clock.Clock

	mu     sync.Mutex
	fix    Fix
	usable bool
	at     time.Time
}

// NewGPSCourse returns a course source. A nil clk uses the wall clock.
func NewGPSCourse(clk clock.Clock, minSpeedKnots float64) *GPSCourse {
	if clk == nil {
		clk = clock.New()
	}
	return &GPSCourse{MinSpeedKnots: minSpeedKnots, MaxAge: DefaultMaxAge, clk: clk}
}

// OpenSerial opens a GPS receiver port, 8N1.
func OpenSerial(port string, baud uint) (io.ReadWriteCloser, error) {
	rw, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open GPS serial %s", port)
	}
	return rw, nil
}

// Run reads NMEA lines from r until it fails or ctx is done. Unparseable
// lines are skipped.
func (g *GPSCourse) Run(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadString('\n')
		if line != "" {
			g.Ingest(line)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "GPS read")
		}
	}
}

// Ingest parses one NMEA line and reports whether it was an RMC sentence.
func (g *GPSCourse) Ingest(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		log.Debugf("NMEA parse error: %v (line: %q)", err, line)
		return false
	}
	if sentence.DataType() != nmea.TypeRMC {
		return false
	}
	m := sentence.(nmea.RMC)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.fix = Fix{
		Time:       m.Time.String(),
		Date:       m.Date.String(),
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		SpeedKnots: m.Speed,
		CourseDeg:  m.Course,
		Validity:   m.Validity,
	}
	g.usable = m.Validity == nmea.ValidRMC && m.Speed >= g.MinSpeedKnots
	g.at = g.clk.Now()
	return true
}

// Fix returns the last RMC fix and whether one was seen.
func (g *GPSCourse) Fix() (Fix, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fix, !g.at.IsZero()
}

// Heading returns the course over ground when it is usable and fresh.
func (g *GPSCourse) Heading() (orientation.Heading, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.usable || g.clk.Since(g.at) > g.MaxAge {
		return orientation.NoHeading, nil
	}
	return orientation.HeadingDeg(float32(g.fix.CourseDeg)), nil
}
