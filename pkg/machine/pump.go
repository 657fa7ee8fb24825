// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

import "time"

// Pump is the capability set every pump variant exposes (spec §4.4): an
// enum-of-variants in place of the source's inheritance hierarchy (spec
// §9), since exactly one implementation is ever active per build.
type Pump interface {
	// Step advances any internal modulation state; call once per
	// ControlLoop tick (or PsmPulse tick for DimmedPump).
	Step(now time.Time)
	// SetPower commands 0..100% duty.
	SetPower(percent float32)
}

// SimplePump realizes duty by switching the output on for the commanded
// fraction of each fixed period and off for the rest, for a bare relay
// with no dimming hardware (spec §4.4). It does not track or skip
// individual AC half-cycles.
type SimplePump struct {
	out    DigitalOutput
	period time.Duration // 5s relay, 1s SSR

	cycleStart time.Time
	dutyPct    float32
}

// NewSimplePump creates a time-proportioned pump on out with the given
// cycle period.
func NewSimplePump(out DigitalOutput, period time.Duration) *SimplePump {
	return &SimplePump{out: out, period: period}
}

// SetPower sets the commanded duty percentage for the next cycle.
func (p *SimplePump) SetPower(percent float32) {
	p.dutyPct = clampf(percent, 0, 100)
}

// Step realizes the commanded duty by turning the output on for the
// proportional fraction of each fixed period, resetting the phase counter
// at each cycle boundary.
func (p *SimplePump) Step(now time.Time) {
	if p.cycleStart.IsZero() || now.Sub(p.cycleStart) >= p.period {
		p.cycleStart = now
	}
	elapsed := now.Sub(p.cycleStart)
	onFor := time.Duration(float32(p.period) * p.dutyPct / 100)
	p.out.Set(elapsed < onFor)
}

// DimmedPump owns its own pressure/rpm sensors, a phase-angle modulator
// triggered by mains zero-crossings, and an analogue reference DAC (spec
// §4.4). Its duty is computed by a PressureController in Power, Pressure
// or Flow mode: SetPower selects Power mode, which passes the duty
// through, and SetPressureTarget/SetFlowTarget select closed-loop
// control; composition (not inheritance from Pump/
// PressureController) avoids the cyclic reference the source's OO design
// invited (spec §9).
type DimmedPump struct {
	psm        PhaseAngleOutput
	dac        AnalogOutput
	Pressure   *PressureSensor
	Rpm        *RpmSensor
	Controller *PressureController

	mode             ControlMode
	powerSetpoint    float32
	pressureSetpoint float32
	flowSetpoint     float32
	valveOpen        bool

	lastDuty float32
}

// NewDimmedPump creates a phase-angle-dimmed pump driving psm (and dac, if
// present) through controller.
func NewDimmedPump(psm PhaseAngleOutput, dac AnalogOutput, controller *PressureController) *DimmedPump {
	return &DimmedPump{
		psm:        psm,
		dac:        dac,
		Pressure:   NewPressureSensor(),
		Rpm:        &RpmSensor{},
		Controller: controller,
	}
}

// SetPower interprets percent as a Power-mode duty passthrough. Use
// SetPressureTarget/SetFlowTarget for the Pressure/Flow modes.
func (p *DimmedPump) SetPower(percent float32) {
	p.mode = ControlPower
	p.powerSetpoint = clampf(percent, 0, 100)
}

// SetPressureTarget switches to Pressure mode with the given bar setpoint.
func (p *DimmedPump) SetPressureTarget(bar float32) {
	p.mode = ControlPressure
	p.pressureSetpoint = bar
}

// SetFlowTarget switches to Flow mode with the given ml/s setpoint.
func (p *DimmedPump) SetFlowTarget(mlps float32) {
	p.mode = ControlFlow
	p.flowSetpoint = mlps
}

// SetValveOpen informs the controller whether the brew valve is open, for
// flow accumulation.
func (p *DimmedPump) SetValveOpen(open bool) { p.valveOpen = open }

// Step runs one ControlLoop tick: reads the pump's own sensors, asks the
// PressureController for a duty, and drives the phase-angle output (and
// DAC reference, if present).
func (p *DimmedPump) Step(now time.Time) {
	duty := p.Controller.Update(p.mode, p.powerSetpoint, p.pressureSetpoint, p.flowSetpoint,
		p.Pressure.Latest(), p.Rpm.Latest(), p.valveOpen)
	p.lastDuty = duty
	p.psm.SetPower(duty)
	if p.dac != nil {
		p.dac.SetVoltage(duty / 100 * 5)
	}
}

// LastDuty returns the most recently commanded duty percentage, for
// telemetry.
func (p *DimmedPump) LastDuty() float32 { return p.lastDuty }
