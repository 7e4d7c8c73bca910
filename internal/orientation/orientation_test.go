// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/relabs-tech/inertial_fusion/internal/imu"
)

type countingSleeper struct{ calls int }

func (s *countingSleeper) Sleep(time.Duration) { s.calls++ }

type constSource struct {
	s     imu.RawSample
	reads int
	err   error
}

func (c *constSource) ReadSample() (imu.RawSample, error) {
	c.reads++
	if c.err != nil {
		return imu.RawSample{}, c.err
	}
	return c.s, nil
}

func acc(p, r, y int16) imu.RawSample {
	return imu.RawSample{Acceleration: imu.Vector3[int16]{Pitch: p, Roll: r, Yaw: y}}
}

func TestLevelGravityGivesZeroTilt(t *testing.T) {
	e := NewEngine()
	p, r := e.tilt(imu.Vector3[int16]{Yaw: 4096})
	test.That(t, p, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, r, test.ShouldAlmostEqual, 0, 1e-9)

	st := e.Update(acc(0, 0, 4096))
	test.That(t, st.Pitch, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, st.Roll, test.ShouldAlmostEqual, 0, 1e-6)
}

func TestTiltAngles(t *testing.T) {
	e := NewEngine()
	// 30° nose up: x = g sin 30
	p, r := e.tilt(imu.Vector3[int16]{Pitch: 2048, Yaw: 3547})
	test.That(t, p, test.ShouldAlmostEqual, 30, 0.01)
	test.That(t, r, test.ShouldAlmostEqual, 0, 1e-9)

	p, r = e.tilt(imu.Vector3[int16]{Roll: -2896, Yaw: 2896})
	test.That(t, p, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, r, test.ShouldAlmostEqual, -45, 0.01)
}

func TestTiltDomainAndHold(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	e := NewEngine()
	for i := 0; i < 2000; i++ {
		v := imu.Vector3[int16]{
			Pitch: int16(rng.Intn(65536) - 32768),
			Roll:  int16(rng.Intn(65536) - 32768),
			Yaw:   int16(rng.Intn(65536) - 32768),
		}
		p, r := e.tilt(v)
		test.That(t, p, test.ShouldBeBetweenOrEqual, -90, 90)
		test.That(t, r, test.ShouldBeBetweenOrEqual, -90, 90)
	}

	e = NewEngine()
	p0, r0 := e.tilt(imu.Vector3[int16]{Pitch: 1000, Roll: -500, Yaw: 4000})
	// all gravity on pitch: pitch held, roll defined (0)
	p, r := e.tilt(imu.Vector3[int16]{Pitch: 4096})
	test.That(t, p, test.ShouldEqual, p0)
	test.That(t, r, test.ShouldAlmostEqual, 0, 1e-9)

	p0, r0 = e.tilt(imu.Vector3[int16]{Pitch: 1000, Roll: -500, Yaw: 4000})
	// free fall: both held
	p, r = e.tilt(imu.Vector3[int16]{})
	test.That(t, p, test.ShouldEqual, p0)
	test.That(t, r, test.ShouldEqual, r0)
	// and held again
	p, r = e.tilt(imu.Vector3[int16]{})
	test.That(t, p, test.ShouldEqual, p0)
	test.That(t, r, test.ShouldEqual, r0)
}

func TestPureGyroIntegration(t *testing.T) {
	e := NewEngine()
	e.ConfigureFusion(1)
	e.ConfigureSampleRate(250)
	const rateDPS = 10.0
	s := acc(0, 0, 4096)
	s.AngularRate.Pitch = int16(rateDPS * imu.GyroLSBPerDPS)

	const n = 500
	var st State
	for i := 0; i < n; i++ {
		st = e.Update(s)
	}
	test.That(t, st.Pitch, test.ShouldAlmostEqual, rateDPS*n/250, 0.01)
	test.That(t, st.Roll, test.ShouldAlmostEqual, 0, 1e-6)
}

func TestComplementaryPullsTowardTilt(t *testing.T) {
	e := NewEngine()
	e.ConfigureFusion(0.9)
	// level board, no rotation, state starts at 10° pitch
	e.state.Pitch = 10
	st := e.Update(acc(0, 0, 4096))
	test.That(t, st.Pitch, test.ShouldAlmostEqual, 9, 1e-5)

	e.ConfigureFusion(0)
	st = e.Update(acc(2048, 0, 3547))
	test.That(t, st.Pitch, test.ShouldAlmostEqual, 30, 0.01)
}

func TestYawCouplingIsSimultaneous(t *testing.T) {
	e := NewEngine()
	e.ConfigureFusion(1)
	e.state.Pitch = 10
	e.state.Roll = 20
	s := imu.RawSample{AngularRate: imu.Vector3[int16]{Yaw: 6550}} // 100°/s
	st := e.Update(s)

	k := math.Sin(6550 * (1 / (250 * imu.GyroLSBPerDPS)) * math.Pi / 180)
	test.That(t, st.Pitch, test.ShouldAlmostEqual, 10-20*k, 1e-5)
	// uses pitch before this tick, not the rotated one
	test.That(t, st.Roll, test.ShouldAlmostEqual, 20+10*k, 1e-5)
}

func TestYawAlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	e := NewEngine()
	for i := 0; i < 5000; i++ {
		s := imu.RawSample{AngularRate: imu.Vector3[int16]{Yaw: int16(rng.Intn(65536) - 32768)}}
		h := NoHeading
		switch i % 3 {
		case 1:
			h = HeadingDeg(float32(rng.Float64()*720 - 360))
		case 2:
			h = HeadingDeg(float32(rng.Intn(361)))
		}
		y := e.UpdateYaw(s, h)
		test.That(t, y, test.ShouldBeGreaterThanOrEqualTo, 0)
		test.That(t, y, test.ShouldBeLessThan, 360)
	}
}

func TestYawWrapsWithoutHeading(t *testing.T) {
	e := NewEngine()
	e.SetInitialYaw(359.9)
	// 30°/s for one tick at 250 Hz = 0.12°
	y := e.UpdateYaw(imu.RawSample{AngularRate: imu.Vector3[int16]{Yaw: 1965}}, NoHeading)
	test.That(t, y, test.ShouldAlmostEqual, 0.02, 1e-3)

	y = e.UpdateYaw(imu.RawSample{AngularRate: imu.Vector3[int16]{Yaw: -1965}}, NoHeading)
	test.That(t, y, test.ShouldAlmostEqual, 359.9, 1e-3)
}

func TestHeadingBlendAcrossNorth(t *testing.T) {
	e := NewEngine()
	e.SetInitialYaw(359)
	y := e.UpdateYaw(imu.RawSample{}, HeadingDeg(1))
	// 0.98*359 + 0.02*361
	test.That(t, y, test.ShouldAlmostEqual, 359.04, 1e-3)
	test.That(t, y, test.ShouldBeGreaterThan, 359)

	e.SetInitialYaw(1)
	y = e.UpdateYaw(imu.RawSample{}, HeadingDeg(359))
	test.That(t, y, test.ShouldAlmostEqual, 0.96, 1e-3)
}

func TestHeadingBlendConverges(t *testing.T) {
	e := NewEngine()
	e.SetInitialYaw(350)
	var y float32
	for i := 0; i < 1000; i++ {
		y = e.UpdateYaw(imu.RawSample{}, HeadingDeg(10))
	}
	test.That(t, y, test.ShouldAlmostEqual, 10, 0.01)
}

func TestConfigureClampsAndIgnoresZeroRate(t *testing.T) {
	e := NewEngine()
	test.That(t, e.Tuning(), test.ShouldResemble, Tuning{GyroWeight: 0.9996, AccWeight: 1 - float32(0.9996), SampleRateHz: 250})

	e.ConfigureFusion(1.5)
	test.That(t, e.Tuning().GyroWeight, test.ShouldEqual, float32(1))
	test.That(t, e.Tuning().AccWeight, test.ShouldEqual, float32(0))
	e.ConfigureFusion(-1)
	test.That(t, e.Tuning().GyroWeight, test.ShouldEqual, float32(0))
	test.That(t, e.Tuning().AccWeight, test.ShouldEqual, float32(1))

	e.ConfigureSampleRate(0)
	test.That(t, e.Tuning().SampleRateHz, test.ShouldEqual, uint16(250))
	e.ConfigureSampleRate(100)
	test.That(t, e.Tuning().SampleRateHz, test.ShouldEqual, uint16(100))
}

func TestSampleRateScalesIntegration(t *testing.T) {
	e := NewEngine()
	e.ConfigureFusion(1)
	e.ConfigureSampleRate(100)
	s := imu.RawSample{AngularRate: imu.Vector3[int16]{Roll: 655}}
	var st State
	for i := 0; i < 100; i++ {
		st = e.Update(s)
	}
	test.That(t, st.Roll, test.ShouldAlmostEqual, 10, 0.01)
}

func TestSeed(t *testing.T) {
	e := NewEngine()
	test.That(t, e.Phase(), test.ShouldEqual, Uninitialized)
	e.SetInitialYaw(42)

	src := &constSource{s: acc(2048, 0, 3547)}
	sl := &countingSleeper{}
	test.That(t, e.Seed(src, sl), test.ShouldBeNil)
	test.That(t, src.reads, test.ShouldEqual, SeedSamples)
	test.That(t, sl.calls, test.ShouldEqual, SeedSamples)
	test.That(t, e.Phase(), test.ShouldEqual, Running)
	test.That(t, e.Phase().String(), test.ShouldEqual, "running")

	st := e.State()
	test.That(t, st.Pitch, test.ShouldAlmostEqual, 30, 0.01)
	test.That(t, st.Roll, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, st.Yaw, test.ShouldEqual, float32(42))
}

func TestSeedFailureKeepsState(t *testing.T) {
	e := NewEngine()
	e.state.Pitch = 3
	boom := errors.New("boom")
	err := e.Seed(&constSource{err: boom}, &countingSleeper{})
	test.That(t, errors.Is(err, boom), test.ShouldBeTrue)
	test.That(t, e.State().Pitch, test.ShouldEqual, float32(3))
	test.That(t, e.Phase(), test.ShouldEqual, Uninitialized)
}

func TestStateIsSnapshot(t *testing.T) {
	e := NewEngine()
	st := e.State()
	st.Pitch = 99
	test.That(t, e.State().Pitch, test.ShouldEqual, float32(0))
}

func TestWrap360(t *testing.T) {
	test.That(t, wrap360(360), test.ShouldEqual, float32(0))
	test.That(t, wrap360(-0.5), test.ShouldEqual, float32(359.5))
	test.That(t, wrap360(725), test.ShouldEqual, float32(5))
	// rounds to 360 in float32
	test.That(t, wrap360(-1e-9), test.ShouldEqual, float32(0))
}

func TestStepMatchesUpdateThenUpdateYaw(t *testing.T) {
	a, b := NewEngine(), NewEngine()
	s := imu.RawSample{
		Acceleration: imu.Vector3[int16]{Pitch: 300, Roll: -200, Yaw: 4000},
		AngularRate:  imu.Vector3[int16]{Pitch: 500, Roll: -250, Yaw: 900},
	}
	for i := 0; i < 50; i++ {
		h := NoHeading
		if i%3 == 0 {
			h = HeadingDeg(350)
		}
		a.Update(s)
		a.UpdateYaw(s, h)
		got := b.Step(s, h)
		test.That(t, got, test.ShouldResemble, a.State())
	}
}

func TestStepIsAtomicForReaders(t *testing.T) {
	e := NewEngine()
	e.ConfigureFusion(1)
	// pitch grows 0.008° per tick while yaw closes 2% of the gap to 90°,
	// so tick n can be recovered from pitch and must match yaw
	s := imu.RawSample{AngularRate: imu.Vector3[int16]{Pitch: 131}}
	const ticks = 100
	perTick := 131 / (float64(DefaultSampleRateHz) * imu.GyroLSBPerDPS)

	var mismatches int
	var reads int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			st := e.State()
			n := math.Round(float64(st.Pitch) / perTick)
			want := 90 * (1 - math.Pow(DefaultHeadingGyroWeight, n))
			if math.Abs(float64(st.Yaw)-want) > 0.05 {
				mismatches++
			}
			reads++
			if n >= ticks {
				return
			}
		}
	}()
	for i := 0; i < ticks; i++ {
		e.Step(s, HeadingDeg(90))
	}
	<-done
	test.That(t, reads, test.ShouldBeGreaterThan, 0)
	test.That(t, mismatches, test.ShouldEqual, 0)
}
