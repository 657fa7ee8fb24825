// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package display implements the Display Node side of the espresso
// controller core: profile/phase shot definitions, the brew/steam/water/
// grind process engine, volumetric-source arbitration, and the mode FSM
// that drives outbound control over a link.Client.
package display

import "github.com/thermoline/espresso/pkg/link"

// ProfileType distinguishes a time-only profile from one that may carry
// non-time targets.
type ProfileType int

const (
	ProfileStandard ProfileType = iota
	ProfilePro
)

// PhaseKind is a brew phase's role within a shot.
type PhaseKind int

const (
	PhasePreinfusion PhaseKind = iota
	PhaseBrew
)

// TargetKind selects which measured quantity a Target compares against.
type TargetKind int

const (
	TargetVolumetric TargetKind = iota
	TargetPumped
	TargetPressure
	TargetFlow
	TargetTime
	TargetWeight
)

// TargetOp is the comparison operator a Target applies.
type TargetOp int

const (
	OpGreaterEqual TargetOp = iota
	OpLessEqual
	OpEqual
)

// Target is one phase-exit condition (spec §3.2).
type Target struct {
	Kind  TargetKind
	Op    TargetOp
	Value float32
}

// satisfied reports whether the target fires given the current measured
// value (already resolved by the caller to the quantity Kind names).
func (t Target) satisfied(measured float32) bool {
	switch t.Op {
	case OpGreaterEqual:
		return measured >= t.Value
	case OpLessEqual:
		return measured <= t.Value
	default:
		return measured == t.Value
	}
}

// PumpSetpoint is a phase's pump command: either a flat percentage or an
// advanced pressure/flow target, mirroring link.ControlRequest's
// Basic/Advanced split.
type PumpSetpoint struct {
	Advanced bool
	Percent  float32
	Target   link.AdvancedTarget
	Pressure float32
	Flow     float32
}

// Transition describes how control ramps across a phase boundary. The spec
// names the field but leaves its shape unspecified beyond "the current
// phase's transition"; a flat instantaneous setpoint-change is the
// conservative reading carried here.
type Transition struct {
	RampS float32
}

// Phase is one stage of a Profile (spec §3.2).
type Phase struct {
	Name          string
	Kind          PhaseKind
	Valve         bool
	DurationS     float32
	TemperatureC  float32 // 0 => inherit profile
	Pump          PumpSetpoint
	Targets       []Target
	Transition    Transition
}

// hasNonTimeTarget reports whether any of the phase's targets are anything
// but a plain elapsed-time bound (used by the duration exit rule, spec
// §4.5 rule 2: "elapsed >= duration_s and the phase has no non-time
// targets").
func (p Phase) hasNonTimeTarget() bool {
	for _, t := range p.Targets {
		if t.Kind != TargetTime {
			return true
		}
	}
	return false
}

// Profile is a complete shot definition (spec §3.2). Invariant:
// len(Phases) >= 1; Type == ProfileStandard implies every phase is
// time-based (enforced by NewProfile, not re-checked on every read).
type Profile struct {
	ID          string
	Label       string
	Description string
	Type        ProfileType
	TemperatureC float32
	Phases      []Phase
	Utility     bool
}

// Valid reports whether p satisfies the spec §3.2 invariants.
func (p Profile) Valid() bool {
	if len(p.Phases) == 0 {
		return false
	}
	if p.Type == ProfileStandard {
		for _, ph := range p.Phases {
			if ph.hasNonTimeTarget() {
				return false
			}
		}
	}
	return true
}

// Mode is the Display Node's top-level operating mode (spec §3.2, §4.6).
type Mode int

const (
	ModeStandby Mode = iota
	ModeBrew
	ModeSteam
	ModeWater
	ModeGrind
)

func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return "Standby"
	case ModeBrew:
		return "Brew"
	case ModeSteam:
		return "Steam"
	case ModeWater:
		return "Water"
	case ModeGrind:
		return "Grind"
	default:
		return "Unknown"
	}
}

// VolumetricSource is the arbitrated weight/flow source for a running
// process (spec §3.2, §4.6).
type VolumetricSource int

const (
	SourceInactive VolumetricSource = iota
	SourceBluetooth
	SourceFlowEstimation
)

func (s VolumetricSource) String() string {
	switch s {
	case SourceBluetooth:
		return "Bluetooth"
	case SourceFlowEstimation:
		return "FlowEstimation"
	default:
		return "Inactive"
	}
}

// SystemInfo mirrors link.SystemInfo on the display side, decoded once per
// connection and held for the lifetime of the session (spec §4.7).
type SystemInfo struct {
	Hardware     string
	Version      string
	Capabilities link.Capabilities
}
