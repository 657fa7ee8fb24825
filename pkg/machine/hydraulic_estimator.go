// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

// convergenceSamples is the number of good (nonzero-flow) samples required
// before HydraulicEstimator trusts its own resistance estimate enough to
// override the static FlowMap.
const convergenceSamples = 50

// HydraulicEstimator recursively identifies the puck's hydraulic
// resistance and the pump's currently-available flow from observed
// (flow, pressure) pairs, converging online as a shot progresses (spec
// §4.3). Until HasConverged reports true, PressureController falls back to
// FlowMap for available flow.
//
// There is no source reference for this component (the original's
// HydraulicParameterEstimator is referenced but not present in the
// extracted sources); the exponential-average resistance identification
// below is a straightforward reading of the spec's "recursive estimator …
// gated by a converged flag" description.
type HydraulicEstimator struct {
	alpha         float32 // EMA rate for the resistance estimate
	resistance    float32
	availableFlow float32
	pressureEst   float32
	samples       int
	converged     bool
}

// NewHydraulicEstimator creates an estimator. dt is accepted for interface
// symmetry with FlowEstimator/PressureController but the EMA rate here is
// sample-indexed, not time-indexed.
func NewHydraulicEstimator(dt float32) *HydraulicEstimator {
	return &HydraulicEstimator{alpha: 0.02}
}

// Update folds in one (pumpFlowMlps, pressureBar) observation. A
// near-zero flow sample carries no resistance information and is ignored.
func (h *HydraulicEstimator) Update(pumpFlowMlps, pressureBar float32) {
	if pumpFlowMlps <= 1e-3 {
		return
	}

	instResistance := pressureBar / pumpFlowMlps
	if h.samples == 0 {
		h.resistance = instResistance
	} else {
		h.resistance += h.alpha * (instResistance - h.resistance)
	}
	h.samples++
	if h.samples >= convergenceSamples {
		h.converged = true
	}

	h.availableFlow = pumpFlowMlps
	h.pressureEst = h.resistance * pumpFlowMlps
}

// HasConverged reports whether enough samples have accumulated to trust
// Resistance/Qout over the static FlowMap.
func (h *HydraulicEstimator) HasConverged() bool { return h.converged }

// Resistance returns the identified puck resistance, bar per ml/s.
func (h *HydraulicEstimator) Resistance() float32 { return h.resistance }

// Qout returns the identified available pump flow, ml/s.
func (h *HydraulicEstimator) Qout() float32 { return h.availableFlow }

// Pressure returns the resistance-model-predicted pressure, used by
// PressureController in place of the raw Kalman estimate once converged.
func (h *HydraulicEstimator) Pressure() float32 { return h.pressureEst }

// Reset clears all accumulated state, e.g. on Tare.
func (h *HydraulicEstimator) Reset() {
	*h = HydraulicEstimator{alpha: h.alpha}
}
