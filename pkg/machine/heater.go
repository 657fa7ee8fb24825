// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

import (
	"time"

	"github.com/thermoline/espresso/pkg/link"
)

// dutyPeriod is the time-proportioning period for the heater output (spec
// §4.2: "duty ∈ [0,1]" realized over a period of 1 s).
const dutyPeriod = 1 * time.Second

// Thermal runaway thresholds (spec §4.2). HeatingTimeMax and DeltaTMin are
// not given exact values by the spec (only the state-machine shape); these
// are a conservative reading of "heating for two minutes with less than a
// degree of rise is a fault."
const (
	runawayErrBandC      = 5.0  // IDLE -> STABLE band
	runawayErrExitC      = 15.0 // STABLE -> IDLE band
	maxSafeTempC         = 170.0
	heatingTimeMax       = 120 * time.Second
	deltaTMin            = 1.0
)

// RunawayState is the thermal-safety state machine of spec §4.2.
type RunawayState int

const (
	RunawayIdle RunawayState = iota
	RunawayStable
	RunawayTripped
)

// Heater drives the boiler heating element through an incremental PID
// controller with derivative-on-measurement, a latched thermal-runaway
// detector, and a relay-feedback autotune mode (spec §4.2).
type Heater struct {
	out DigitalOutput

	kp, ki, kd float32
	integral   float32
	lastMeas   float32
	hasMeas    bool

	setpoint float32

	cycleStart time.Time
	duty       float32

	runaway         RunawayState
	heatingSince    time.Time
	heatingBaseline float32

	sensorHealthy bool

	autotune *autotuner

	onRunaway func()
}

// NewHeater creates a heater driving out, with the given initial PID
// tunings.
func NewHeater(out DigitalOutput, kp, ki, kd float32) *Heater {
	return &Heater{out: out, kp: kp, ki: ki, kd: kd, sensorHealthy: true}
}

// OnRunaway installs a callback invoked exactly once, the tick runaway
// latches (spec §4.2: "invokes the supervisor's runaway callback").
func (h *Heater) OnRunaway(cb func()) { h.onRunaway = cb }

// SetTunings updates the PID gains (PidSettings message).
func (h *Heater) SetTunings(kp, ki, kd float32) {
	h.kp, h.ki, h.kd = kp, ki, kd
}

// SetSetpoint sets the target boiler temperature in Celsius; 0 disables
// heating.
func (h *Heater) SetSetpoint(c float32) { h.setpoint = c }

// Runaway reports the latched thermal-safety state.
func (h *Heater) Runaway() RunawayState { return h.runaway }

// StartAutotune begins a relay-feedback autotune run centered on
// aroundTemp (spec §4.2). Setpoint-following is suspended until it
// completes; runaway detection remains armed throughout.
func (h *Heater) StartAutotune(cmd link.AutotuneCommand, aroundTemp float32, now time.Time) {
	h.autotune = newAutotuner(cmd, aroundTemp, now)
}

// AutotuneResult returns the completed autotune result, if any is ready,
// and clears it.
func (h *Heater) AutotuneResult() (link.AutotuneResult, bool) {
	if h.autotune == nil || !h.autotune.done {
		return link.AutotuneResult{}, false
	}
	r := h.autotune.result
	h.autotune = nil
	return r, true
}

// pid computes the time-proportioned duty in [0,1] from one measurement,
// with conditional-integration anti-windup and derivative on measurement.
func (h *Heater) pid(measurement float32, dt float32) float32 {
	if h.setpoint == 0 {
		h.integral = 0
		h.hasMeas = false
		return 0
	}
	if !h.hasMeas {
		h.lastMeas = measurement
		h.hasMeas = true
	}

	err := h.setpoint - measurement
	derivative := (measurement - h.lastMeas) / dt
	h.lastMeas = measurement

	candidateIntegral := h.integral + h.ki*err*dt
	output := h.kp*err + candidateIntegral - h.kd*derivative
	clamped := clampf(output, 0, 1)
	if output == clamped {
		// Only accept the integral step when the output isn't saturating;
		// this is the clamp that keeps duty in [0,1] from spec §4.2.
		h.integral = candidateIntegral
	}
	return clamped
}

// updateRunaway advances the thermal-safety state machine (spec §4.2) and
// fires OnRunaway the instant it trips.
func (h *Heater) updateRunaway(measurement float32, now time.Time) {
	if measurement > maxSafeTempC {
		h.trip()
		return
	}
	if h.runaway == RunawayTripped {
		return // latched until power cycle
	}

	err := h.setpoint - measurement
	absErr := err
	if absErr < 0 {
		absErr = -absErr
	}

	switch h.runaway {
	case RunawayIdle:
		if h.heatingSince.IsZero() && h.setpoint > 0 {
			h.heatingSince = now
			h.heatingBaseline = measurement
		}
		if absErr < runawayErrBandC {
			h.runaway = RunawayStable
			h.heatingSince = time.Time{}
			return
		}
		if h.setpoint > 0 && !h.heatingSince.IsZero() && now.Sub(h.heatingSince) > heatingTimeMax {
			if measurement-h.heatingBaseline < deltaTMin {
				h.trip()
			}
		}
	case RunawayStable:
		if absErr > runawayErrExitC {
			h.runaway = RunawayIdle
			h.heatingSince = time.Time{}
		}
	}
}

func (h *Heater) trip() {
	if h.runaway == RunawayTripped {
		return
	}
	h.runaway = RunawayTripped
	if h.onRunaway != nil {
		h.onRunaway()
	}
}

// SensorFault disables setpoint-following, matching the spec §4.2 failure
// semantics for an unhealthy temperature sensor (the caller is expected to
// also emit Error(Runaway) upstream).
func (h *Heater) SensorFault() {
	h.sensorHealthy = false
	h.setpoint = 0
}

// SensorRecovered re-arms setpoint-following once the sensor's rolling
// health window clears.
func (h *Heater) SensorRecovered() { h.sensorHealthy = true }

// Step runs one ControlLoop tick: advances the runaway state machine,
// computes duty (PID or autotune relay), and time-proportions it onto the
// digital output. dt is the caller's sample period in seconds.
func (h *Heater) Step(now time.Time, measurement float32, dt float32) {
	h.updateRunaway(measurement, now)

	var commandedDuty float32
	switch {
	case h.runaway == RunawayTripped, !h.sensorHealthy:
		commandedDuty = 0
	case h.autotune != nil:
		commandedDuty = h.autotune.step(now, measurement)
	default:
		commandedDuty = h.pid(measurement, dt)
	}
	h.duty = commandedDuty

	if h.cycleStart.IsZero() || now.Sub(h.cycleStart) >= dutyPeriod {
		h.cycleStart = now
	}
	elapsed := now.Sub(h.cycleStart)
	onFor := time.Duration(float32(dutyPeriod) * h.duty)
	h.out.Set(elapsed < onFor)
}

// Duty returns the most recently commanded duty fraction, for telemetry.
func (h *Heater) Duty() float32 { return h.duty }
