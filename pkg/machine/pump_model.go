// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

import "github.com/thermoline/espresso/pkg/link"

// PumpModel is a per-pump backpressure/flow calibration curve: the
// available flow (ml/s) the pump can deliver at full duty, as a function
// of pressure. PressureController uses PumpModel.Flow at the current
// pressure as the available flow in place of FlowMap (a converged
// HydraulicEstimator still takes precedence), mirroring the source's
// injectAvailableFlow hook (PressureController.cpp).
type PumpModel struct {
	kind       link.PumpModelKind
	oneBarFlow float32
	nineBarFlow float32
	a, b, c, d float32
}

// NewPumpModel builds a PumpModel from a decoded wire payload.
func NewPumpModel(coeffs link.PumpModelCoefficients) PumpModel {
	switch coeffs.Kind {
	case link.PumpModelTwoPoint:
		return PumpModel{kind: coeffs.Kind, oneBarFlow: coeffs.A, nineBarFlow: coeffs.B}
	default:
		return PumpModel{kind: coeffs.Kind, a: coeffs.A, b: coeffs.B, c: coeffs.C, d: coeffs.D}
	}
}

// Flow returns the modelled full-duty flow in ml/s at pressureBar. The
// two-point form linearly interpolates/extrapolates between the 1 bar and
// 9 bar calibration points; the polynomial form evaluates a cubic in
// pressure.
func (m PumpModel) Flow(pressureBar float32) float32 {
	var f float32
	switch m.kind {
	case link.PumpModelTwoPoint:
		f = m.oneBarFlow + (m.nineBarFlow-m.oneBarFlow)/8*(pressureBar-1)
	default:
		p2 := pressureBar * pressureBar
		p3 := p2 * pressureBar
		f = m.a + m.b*pressureBar + m.c*p2 + m.d*p3
	}
	if f < 0 {
		return 0
	}
	return f
}
