// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"time"

	"github.com/thermoline/espresso/pkg/link"
)

// PredictiveTime bounds how far back the VolumetricRateCalculator's linear
// fit looks, and is the clamp ceiling for a learned predictive delay
// (spec §4.5).
const PredictiveTime = 5 * time.Second

// BrewSafetyDuration is the hard ceiling on any brew phase regardless of
// targets (spec §5).
const BrewSafetyDuration = 60 * time.Second

// SteamSafetyDuration/HotWaterSafetyDuration bound the time-based processes
// (spec §5).
const (
	SteamSafetyDuration    = 60 * time.Second
	HotWaterSafetyDuration = 30 * time.Second
)

// Process is the common shape DisplaySupervisor drives every tick (spec
// §4.5/§4.6): sample the current command, advance elapsed time, and report
// completion. BrewProcess, SteamProcess, WaterProcess, and GrindProcess all
// implement it.
type Process interface {
	// Advance moves the process forward by dt, sampling weight/flow/etc via
	// the installed sources. Returns true once the process has completed.
	Advance(now time.Time, dt time.Duration) bool
	// PumpSetpoint returns the currently active phase's pump command.
	PumpSetpoint() PumpSetpoint
	// ValveOpen returns the currently active phase's valve state.
	ValveOpen() bool
	// TemperatureSetpoint returns the effective boiler setpoint: the
	// phase's override if set, else the profile/process default.
	TemperatureSetpoint() float32
	// Mode reports which top-level Mode this process belongs to.
	Mode() Mode
}

// weightSample is one observation fed to a VolumetricRateCalculator.
type weightSample struct {
	t time.Time
	g float32
}

// VolumetricRateCalculator fits a line to the last PredictiveTime of weight
// samples and reports its slope, the rate used for predictive-delay
// overshoot compensation (spec §4.5).
type VolumetricRateCalculator struct {
	samples []weightSample
}

// Add records a new weight sample, discarding anything older than
// PredictiveTime relative to it.
func (v *VolumetricRateCalculator) Add(now time.Time, grams float32) {
	v.samples = append(v.samples, weightSample{t: now, g: grams})
	cutoff := now.Add(-PredictiveTime)
	i := 0
	for i < len(v.samples) && v.samples[i].t.Before(cutoff) {
		i++
	}
	v.samples = v.samples[i:]
}

// Rate returns the ordinary-least-squares slope (g/s) of the retained
// window, or 0 if fewer than two samples are available.
func (v *VolumetricRateCalculator) Rate() float32 {
	n := len(v.samples)
	if n < 2 {
		return 0
	}
	t0 := v.samples[0].t
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range v.samples {
		x := s.t.Sub(t0).Seconds()
		y := float64(s.g)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (nf*sumXY - sumX*sumY) / denom
	return float32(slope)
}

// Latest returns the most recently recorded sample and whether any exist.
func (v *VolumetricRateCalculator) Latest() (float32, bool) {
	if len(v.samples) == 0 {
		return 0, false
	}
	return v.samples[len(v.samples)-1].g, true
}

// Reset clears all retained samples, for the start of a new process.
func (v *VolumetricRateCalculator) Reset() {
	v.samples = v.samples[:0]
}

// measurements is the snapshot of live process signals a phase's targets
// are evaluated against (spec §4.5).
type measurements struct {
	weightG        float32
	waterPumpedMl  float32
	pressureBar    float32
	flowMlps       float32
	source         VolumetricSource
	sourceHealthy  bool
	rate           *VolumetricRateCalculator
	brewDelay      time.Duration
}

// targetSatisfied evaluates one Target against the live measurements,
// folding in the predictive-delay lookahead for Volumetric targets (spec
// §4.5 rule 3).
func targetSatisfied(t Target, elapsed time.Duration, m measurements) bool {
	switch t.Kind {
	case TargetTime:
		return t.satisfied(float32(elapsed.Seconds()))
	case TargetPumped:
		return t.satisfied(m.waterPumpedMl)
	case TargetPressure:
		return t.satisfied(m.pressureBar)
	case TargetFlow:
		return t.satisfied(m.flowMlps)
	case TargetVolumetric:
		if m.source == SourceInactive || !m.sourceHealthy {
			return false // downgrades to time-only; caller still checks duration/time targets
		}
		predicted := m.rate.Rate() * float32(m.brewDelay.Seconds())
		return t.satisfied(m.weightG + predicted)
	case TargetWeight:
		return t.satisfied(m.weightG)
	default:
		return false
	}
}

// advancedPumpSetpoint builds a link.AdvancedPump from a PumpSetpoint, for
// phases using Pressure/Flow control.
func advancedPumpSetpoint(p PumpSetpoint) link.AdvancedPump {
	return link.AdvancedPump{Target: p.Target, PressureBar: p.Pressure, FlowMlps: p.Flow}
}
