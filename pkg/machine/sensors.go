// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

// healthWindowSize is the rolling window used to judge sensor health (spec
// §4.2: "more than 50% invalid reads in a rolling window of 20 samples").
const healthWindowSize = 20

// healthWindow tracks the validity of the last healthWindowSize readings in
// a fixed ring buffer, avoiding an unbounded slice.
type healthWindow struct {
	valid [healthWindowSize]bool
	next  int
	count int
}

func (h *healthWindow) record(ok bool) {
	h.valid[h.next] = ok
	h.next = (h.next + 1) % healthWindowSize
	if h.count < healthWindowSize {
		h.count++
	}
}

// healthy reports whether at most half of the recorded samples are
// invalid. Until the window fills, only the samples recorded so far are
// judged; an empty window is healthy.
func (h *healthWindow) healthy() bool {
	if h.count == 0 {
		return true
	}
	bad := 0
	for i := 0; i < h.count; i++ {
		if !h.valid[i] {
			bad++
		}
	}
	return float64(bad) <= float64(h.count)/2
}

// Reading is a sampled value paired with its validity, the channel shape
// every sensor publishes instead of the source's callback pair (spec §9 —
// "replace with a single Event enum").
type Reading struct {
	Value float32
	Valid bool
}

// ThermalSensor holds the latest boiler temperature sample and its rolling
// health window. Sampling is single-producer (the TempAcquire task):
// Update is called from there, Latest/Healthy from ControlLoop or Supervisor.
type ThermalSensor struct {
	latest Reading
	health healthWindow
}

// Update records a new sample. A sensor read failure is reported as
// Reading{Valid: false}; the last good value is retained as latest.Value.
func (s *ThermalSensor) Update(r Reading) {
	s.health.record(r.Valid)
	if r.Valid {
		s.latest = r
	}
}

// Latest returns the most recently accepted temperature in Celsius.
func (s *ThermalSensor) Latest() float32 { return s.latest.Value }

// Healthy reports whether the sensor's rolling window is within the
// invalid-read tolerance (spec §4.2 heater failure semantics).
func (s *ThermalSensor) Healthy() bool { return s.health.healthy() }

// PressureSensor holds the latest raw boiler-group pressure reading in bar,
// before the PressureController's Kalman filter is applied.
type PressureSensor struct {
	latest Reading
	health healthWindow
	scale  float32
	offset float32
}

// NewPressureSensor creates a sensor with the given scale/offset
// calibration (spec §3.1 PressureScale), default scale=1, offset=0.
func NewPressureSensor() *PressureSensor {
	return &PressureSensor{scale: 1}
}

// SetScale applies a new scale/offset calibration pair.
func (s *PressureSensor) SetScale(scale, offset float32) {
	s.scale = scale
	s.offset = offset
}

// Update records a new raw ADC sample, already scaled to volts/counts by
// the caller; SetScale's factors are applied here.
func (s *PressureSensor) Update(r Reading) {
	s.health.record(r.Valid)
	if r.Valid {
		r.Value = r.Value*s.scale + s.offset
		s.latest = r
	}
}

// Latest returns the most recently accepted pressure in bar.
func (s *PressureSensor) Latest() float32 { return s.latest.Value }

// Healthy reports whether the sensor's rolling window is within tolerance.
func (s *PressureSensor) Healthy() bool { return s.health.healthy() }

// RpmSensor holds the latest pump tachometer reading, derived from
// falling-edge interrupt counting over a fixed window by the caller.
type RpmSensor struct {
	latest Reading
	health healthWindow
}

// Update records a new RPM sample.
func (s *RpmSensor) Update(r Reading) {
	s.health.record(r.Valid)
	if r.Valid {
		s.latest = r
	}
}

// Latest returns the most recently accepted pump speed in RPM.
func (s *RpmSensor) Latest() float32 { return s.latest.Value }

// Healthy reports whether the sensor's rolling window is within tolerance.
func (s *RpmSensor) Healthy() bool { return s.health.healthy() }
