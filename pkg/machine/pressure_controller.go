// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

// ControlMode selects which quantity PressureController's output tracks
// (spec §4.3).
type ControlMode int

const (
	ControlPower ControlMode = iota
	ControlPressure
	ControlFlow
)

const (
	pressureKp             = 0.15
	pressureKi             = 0.05
	pressureIntegralLimit  = 1.0
	maxPressureBar         = 15.0
	pressureDerivativeClamp = 20.0
	derivativeFilterFreqHz  = 2.0
)

// PressureController is the cascaded pressure/flow controller of spec
// §4.3, driving a pump's duty cycle from a pressure sensor and rpm
// tachometer through a Kalman-filtered pressure estimate, a FlowEstimator,
// and a HydraulicEstimator. It is a pure function of sensor snapshots
// (spec §9 — preferred over the cyclic Pump/PressureController ownership
// the source used) run from the ControlLoop task; the Pump is a sink for
// its output, never a caller into it.
type PressureController struct {
	dt float32

	kalman *scalarKalmanFilter

	filteredPressure           float32
	lastFilteredPressure       float32
	filteredPressureDerivative float32

	flowEstimator      *FlowEstimator
	hydraulicEstimator *HydraulicEstimator
	flowMap            FlowMap

	pumpFlowRate    float32
	coffeeFlowRate  float32
	coffeeOutput    float32
	puckResistance  float32
	errorIntegral   float32

	hasPumpModel bool
	pumpModel    PumpModel
}

// NewPressureController creates a controller sampled at period dt seconds
// (spec §4.3: dt=30ms).
func NewPressureController(dt float32) *PressureController {
	return &PressureController{
		dt:                 dt,
		kalman:             newScalarKalmanFilter(0.1, 10, 10),
		flowEstimator:      NewFlowEstimator(dt),
		hydraulicEstimator: NewHydraulicEstimator(dt),
	}
}

// SetPumpModel installs a calibration curve used as the available-flow
// source in preference to FlowMap (but not in preference to a converged
// HydraulicEstimator), mirroring the source's setPumpFlowCoeff/
// setPumpFlowPolyCoeffs intent.
func (c *PressureController) SetPumpModel(m PumpModel) {
	c.hasPumpModel = true
	c.pumpModel = m
}

// filterSensor updates the Kalman-filtered pressure and its derivative,
// then lets a converged HydraulicEstimator override both.
func (c *PressureController) filterSensor(rawPressure float32) {
	newFiltered := c.kalman.update(rawPressure)
	dP := (newFiltered - c.lastFilteredPressure) / c.dt
	dP = clampf(dP, -pressureDerivativeClamp, pressureDerivativeClamp)

	alpha := c.dt / (c.dt + 1/(2*3.14159265*derivativeFilterFreqHz))
	c.filteredPressureDerivative = alpha*dP + (1-alpha)*c.filteredPressureDerivative

	c.lastFilteredPressure = newFiltered
	c.filteredPressure = newFiltered

	if c.hydraulicEstimator.HasConverged() {
		c.filteredPressure = c.hydraulicEstimator.Pressure()
		c.filteredPressureDerivative = (c.filteredPressure - c.lastFilteredPressure) / c.dt
		c.puckResistance = c.hydraulicEstimator.Resistance()
	}
}

// availableFlow returns the best current estimate of pump flow at 100%
// duty: a converged HydraulicEstimator first, then an installed PumpModel,
// then the static FlowMap driven by a measured rpm.
func (c *PressureController) availableFlow(rpm float32) float32 {
	if c.hydraulicEstimator.HasConverged() {
		return c.hydraulicEstimator.Qout()
	}
	if c.hasPumpModel {
		return c.pumpModel.Flow(c.filteredPressure)
	}
	return c.flowMap.Lookup(rpm, c.filteredPressure) / 60 // table is ml/min
}

func (c *PressureController) dutyForPressure(setpoint float32) float32 {
	if setpoint < 0.2 {
		return 0
	}
	err := (c.filteredPressure - setpoint) / maxPressureBar

	c.errorIntegral += err * c.dt
	c.errorIntegral = clampf(c.errorIntegral, -pressureIntegralLimit, pressureIntegralLimit)

	u := -pressureKp*err - pressureKi*c.errorIntegral
	return clampf(u*100, 0, 100)
}

func (c *PressureController) dutyForFlow(setpoint, available float32) float32 {
	if available < 1e-3 {
		return 0
	}
	duty := (setpoint / available) * 100
	return clampf(duty, 0, 100)
}

// Update runs one control tick. rawPressure/rpm are the latest sensor
// snapshots; valveOpen gates flow accumulation; it returns the commanded
// pump duty in [0,100].
func (c *PressureController) Update(mode ControlMode, powerSetpoint, pressureSetpoint, flowSetpoint, rawPressure, rpm float32, valveOpen bool) float32 {
	c.filterSensor(rawPressure)

	available := c.availableFlow(rpm)

	var duty float32
	switch mode {
	case ControlPressure:
		duty = c.dutyForPressure(pressureSetpoint)
	case ControlFlow:
		duty = c.dutyForFlow(flowSetpoint, available)
	default:
		duty = clampf(powerSetpoint, 0, 100)
	}

	c.pumpFlowRate = available * (duty / 100)
	c.flowEstimator.Update(c.pumpFlowRate, c.filteredPressure, c.filteredPressureDerivative, valveOpen)
	c.coffeeFlowRate = c.flowEstimator.Flow()
	if valveOpen {
		c.coffeeOutput += c.coffeeFlowRate * c.dt
	}

	c.hydraulicEstimator.Update(c.pumpFlowRate, rawPressure)

	return duty
}

// CoffeeOutputEstimate returns the accumulated puck-flow volume in ml
// since the last Reset/Tare, never negative.
func (c *PressureController) CoffeeOutputEstimate() float32 {
	if c.coffeeOutput < 0 {
		return 0
	}
	return c.coffeeOutput
}

// CoffeeFlowRate returns the current estimated puck flow, ml/s.
func (c *PressureController) CoffeeFlowRate() float32 { return c.coffeeFlowRate }

// PumpFlowRate returns the current estimated pump-delivered flow, ml/s.
func (c *PressureController) PumpFlowRate() float32 { return c.pumpFlowRate }

// PuckResistance returns the identified puck resistance (0 if not yet
// converged).
func (c *PressureController) PuckResistance() float32 { return c.puckResistance }

// FilteredPressure returns the current Kalman-filtered pressure in bar.
func (c *PressureController) FilteredPressure() float32 { return c.filteredPressure }

// Reset zeroes accumulated state, used by Tare.
func (c *PressureController) Reset() {
	c.errorIntegral = 0
	c.coffeeOutput = 0
	c.coffeeFlowRate = 0
	c.pumpFlowRate = 0
	c.puckResistance = 0
	c.flowEstimator.Update(0, 0, 0, false)
	c.hydraulicEstimator.Reset()
}

// Tare is an alias for Reset, matching the source's public API shape.
func (c *PressureController) Tare() { c.Reset() }
