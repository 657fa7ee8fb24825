// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

// lowPass applies a first-order low-pass update to state in place, with
// cutoff in Hz (ported from the source's FlowEstimator::lowPass, spec
// §4.3).
func lowPass(state, input, cutoffHz, dt float32) float32 {
	alpha := dt / (dt + 1/(2*3.14159265*cutoffHz))
	return state + alpha*(input-state)
}

// FlowEstimator infers puck flow from pump flow and the rate of change of
// pressure: while the valve is open, part of the pump's flow goes into the
// system's compliance, so a rising dP/dt accounts for flow that never
// reaches the puck (spec §4.3). With the valve shut the estimate is zero.
type FlowEstimator struct {
	dt           float32
	compliance   float32 // ml/bar
	filterCutoff float32 // Hz
	filtered     float32
}

// NewFlowEstimator creates an estimator sampled at period dt seconds, using
// the source's fixed compliance (3 ml/bar) and cutoff (1 Hz).
func NewFlowEstimator(dt float32) *FlowEstimator {
	return &FlowEstimator{dt: dt, compliance: 3, filterCutoff: 1}
}

// Update folds in one sample. When the valve is closed or pressure is below
// 0.5 bar there is no puck flow by definition.
func (f *FlowEstimator) Update(pumpFlowMlps, pressureBar, pressureDerivativeBarPerS float32, valveOpen bool) {
	if !valveOpen || pressureBar < 0.5 {
		f.filtered = 0
		return
	}

	d := clampf(pressureDerivativeBarPerS, -20, 20)
	raw := pumpFlowMlps - f.compliance*d
	if raw < 0 {
		raw = 0
	}
	f.filtered = lowPass(f.filtered, raw, f.filterCutoff, f.dt)
}

// Flow returns the current filtered puck-flow estimate in ml/s.
func (f *FlowEstimator) Flow() float32 { return f.filtered }
