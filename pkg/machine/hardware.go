// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package machine implements the Machine Node side of the espresso
// controller core: thermal PID control, cascaded pressure/flow control,
// the pump abstraction, and the supervisor that owns every actuator and
// enforces the link's safety invariants.
package machine

import "fmt"

// DigitalOutput is an active-high (polarity handled by the implementation)
// on/off actuator: heater, valve, or alt relay (spec §6.2).
type DigitalOutput interface {
	Set(on bool) error
}

// AnalogOutput sets a 0..5V reference, used by DimmedPump's DAC (spec §4.4).
type AnalogOutput interface {
	SetVoltage(volts float32) error
}

// PhaseAngleOutput drives a mains-synchronous phase-angle or pulse-skip
// load. Percent is 0..100.
type PhaseAngleOutput interface {
	SetPower(percent float32) error
}

// ButtonEdge is a debounced digital input transition (spec §6.2).
type ButtonEdge int

const (
	ButtonReleased ButtonEdge = iota
	ButtonPressed
)

// Hardware is the single value constructed at boot and passed by reference
// to every component that touches a peripheral (spec §9 — no process-wide
// singletons for the BLE/I2C-expander globals the original carried).
type Hardware struct {
	Heater DigitalOutput
	Valve  DigitalOutput
	Alt    DigitalOutput
	Pump   PhaseAngleOutput
	DAC    AnalogOutput // nil unless capabilities.dimming

	BrewButton  <-chan ButtonEdge
	SteamButton <-chan ButtonEdge
}

// NullOutput is a no-op DigitalOutput/AnalogOutput/PhaseAngleOutput, for
// builds without the corresponding peripheral (mirrors how the source
// treats an absent optional board feature).
type NullOutput struct{}

func (NullOutput) Set(bool) error              { return nil }
func (NullOutput) SetVoltage(float32) error    { return nil }
func (NullOutput) SetPower(float32) error      { return nil }

// LoggingOutput wraps a DigitalOutput and records the last commanded state,
// useful for tests and the bench CLI where there is no real peripheral.
type LoggingOutput struct {
	Name string
	On   bool
}

func (l *LoggingOutput) Set(on bool) error {
	l.On = on
	return nil
}

func (l *LoggingOutput) String() string {
	return fmt.Sprintf("%s=%v", l.Name, l.On)
}
