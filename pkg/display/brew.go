// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import "time"

// BrewProcess drives a Profile phase-by-phase (spec §4.5): per-phase
// elapsed timer, waterPumped accumulator, recent weight samples, and a
// VolumetricRateCalculator for predictive-delay learning.
type BrewProcess struct {
	profile Profile
	source  VolumetricSource

	phaseIndex   int
	phaseElapsed time.Duration
	totalElapsed time.Duration

	waterPumpedMl float32
	rate          VolumetricRateCalculator
	sourceHealthy bool

	brewDelay time.Duration

	completed    bool
	finalWeightG float32
	finalTargetG float32
	hadVolumetricTarget bool

	// SetWeightSample/SetFlowSample/SetPressureSample inject these each tick before
	// Advance runs; they represent the latest reading from whichever
	// VolumetricSource was committed at start.
	weightG  float32
	flowMlps float32
	pressureBar float32
}

// NewBrewProcess starts a brew of profile, with source committed for the
// lifetime of the process (spec §3.2/§4.6: "a process commits to at most
// one source at start") and brewDelay the currently learned predictive
// delay (spec §4.5).
func NewBrewProcess(profile Profile, source VolumetricSource, brewDelay time.Duration) *BrewProcess {
	return &BrewProcess{
		profile:       profile,
		source:        source,
		sourceHealthy: source != SourceInactive,
		brewDelay:     brewDelay,
	}
}

// Mode implements Process.
func (b *BrewProcess) Mode() Mode { return ModeBrew }

// SetWeightSample feeds the latest weight reading (grams) from the
// committed VolumetricSource, or marks it unhealthy if reads have stopped.
func (b *BrewProcess) SetWeightSample(grams float32, healthy bool) {
	b.weightG = grams
	b.sourceHealthy = healthy && b.source != SourceInactive
}

// SetFlowSample feeds the latest estimated puck flow, ml/s.
func (b *BrewProcess) SetFlowSample(mlps float32) { b.flowMlps = mlps }

// SetPressureSample feeds the latest boiler-group pressure, bar.
func (b *BrewProcess) SetPressureSample(bar float32) { b.pressureBar = bar }

func (b *BrewProcess) currentPhase() Phase { return b.profile.Phases[b.phaseIndex] }

// PumpSetpoint implements Process.
func (b *BrewProcess) PumpSetpoint() PumpSetpoint {
	if b.completed {
		return PumpSetpoint{}
	}
	return b.currentPhase().Pump
}

// ValveOpen implements Process.
func (b *BrewProcess) ValveOpen() bool {
	if b.completed {
		return false
	}
	return b.currentPhase().Valve
}

// TemperatureSetpoint implements Process.
func (b *BrewProcess) TemperatureSetpoint() float32 {
	if b.completed {
		return 0
	}
	if t := b.currentPhase().TemperatureC; t != 0 {
		return t
	}
	return b.profile.TemperatureC
}

// Advance implements Process. It returns true once every phase has exited
// and the process has fully completed.
func (b *BrewProcess) Advance(now time.Time, dt time.Duration) bool {
	if b.completed {
		return true
	}

	b.phaseElapsed += dt
	b.totalElapsed += dt
	if b.currentPhase().Valve {
		b.waterPumpedMl += b.flowMlps * float32(dt.Seconds())
	}
	b.rate.Add(now, b.weightG)

	if b.phaseElapsed >= BrewSafetyDuration {
		b.finish()
		return true
	}

	if b.phaseExited() {
		if b.phaseIndex+1 >= len(b.profile.Phases) {
			b.finish()
			return true
		}
		b.phaseIndex++
		b.phaseElapsed = 0
		b.rate.Reset()
		return false
	}
	return false
}

// phaseExited implements the three-way exit rule of spec §4.5.
func (b *BrewProcess) phaseExited() bool {
	phase := b.currentPhase()

	if b.phaseElapsed >= time.Duration(phase.DurationS*float32(time.Second)) && !phase.hasNonTimeTarget() {
		return true
	}

	m := measurements{
		weightG:       b.weightG,
		waterPumpedMl: b.waterPumpedMl,
		pressureBar:   b.pressureBar,
		flowMlps:      b.flowMlps,
		source:        b.source,
		sourceHealthy: b.sourceHealthy,
		rate:          &b.rate,
		brewDelay:     b.brewDelay,
	}
	for _, t := range phase.Targets {
		if t.Kind == TargetVolumetric {
			b.hadVolumetricTarget = true
			b.finalTargetG = t.Value
		}
		if targetSatisfied(t, b.phaseElapsed, m) {
			return true
		}
	}
	// Even a volumetric-only phase must still obey its duration bound once
	// the source has gone unhealthy and downgraded to time-only (spec
	// §3.2: "volumetric targets fall back to time-only behaviour").
	if b.phaseElapsed >= time.Duration(phase.DurationS*float32(time.Second)) {
		return true
	}
	return false
}

func (b *BrewProcess) finish() {
	b.completed = true
	b.finalWeightG = b.weightG
}

// Completed reports whether the process has finished.
func (b *BrewProcess) Completed() bool { return b.completed }

// PredictiveDelayCorrection implements spec §4.5's learning rule: on
// completion of a volumetric brew, the overshoot is divided by the
// measured slope to produce a delay correction, clamped into
// [0, PredictiveTime]. ok is false if the process never had a volumetric
// target (nothing to learn from) or the slope was zero.
func (b *BrewProcess) PredictiveDelayCorrection() (newDelay time.Duration, ok bool) {
	if !b.completed || !b.hadVolumetricTarget {
		return 0, false
	}
	rate := b.rate.Rate()
	if rate == 0 {
		return 0, false
	}
	overshoot := b.finalWeightG - b.finalTargetG
	correctionS := float64(overshoot) / float64(rate)
	delay := b.brewDelay + time.Duration(correctionS*float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	if delay > PredictiveTime {
		delay = PredictiveTime
	}
	return delay, true
}
