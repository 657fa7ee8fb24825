// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"math"
	"strconv"
	"time"

	"github.com/thermoline/espresso/pkg/link"
)

// ControlPrio/AltPrio are the coalescing-queue priorities for the two
// high-frequency outbound keys (spec §4.1.1): OutputControl outranks
// AltControl so a grinder toggle never starves a live brew's setpoints.
const (
	ControlPrio uint8 = 10
	AltPrio     uint8 = 5
)

// BluetoothGracePeriod is how recently a Bluetooth scale sample must have
// arrived for the arbitration in DisplaySupervisor.startProcess to prefer
// it (spec §4.6).
const BluetoothGracePeriod = 10 * time.Second

// StandbyTimeout is the idle period after which the supervisor forces
// mode=Standby (spec §5). It is a fixed constant; no settings key
// overrides it.
const StandbyTimeout = 15 * time.Minute

// DisplaySupervisor runs the Mode FSM of spec §4.6, owns the single active
// Process, and emits OutputControl/AltControl through the link.Client's
// coalescing queue every ControlEmit tick.
type DisplaySupervisor struct {
	client   *link.Client
	settings SettingsStore

	mode    Mode
	process Process
	lastProcess Process

	lastActivity time.Time

	lastBluetoothSample time.Time
	dimmingCapable      bool

	brewDelay  time.Duration
	grindDelay time.Duration
}

// NewDisplaySupervisor creates a supervisor starting in Standby.
func NewDisplaySupervisor(client *link.Client, settings SettingsStore) *DisplaySupervisor {
	s := &DisplaySupervisor{
		client:   client,
		settings: settings,
		mode:     ModeStandby,
	}
	s.brewDelay = time.Duration(GetFloat(settings, KeyBrewDelayMs, 0)) * time.Millisecond
	s.grindDelay = time.Duration(GetFloat(settings, KeyGrindDelayMs, 0)) * time.Millisecond
	return s
}

// OnSystemInfo records capabilities.dimming, used by volumetric-source
// arbitration (spec §4.6), and runs the handshake response spec §4.7
// requires: PressureScale (if capabilities.pressure), PumpModel (if
// capabilities.dimming), then the stored PID tunings, in that order, each
// sent with SendImmediate so the coalescing queue's per-key replacement
// can't reorder or drop them.
func (s *DisplaySupervisor) OnSystemInfo(info link.SystemInfo) {
	s.dimmingCapable = info.Capabilities.Dimming

	if info.Capabilities.Pressure {
		if scale, offset, ok := PressureScaleFromSettings(s.settings); ok {
			s.client.SendImmediate(link.MsgPressureScale, link.EncodePressureScale(link.PressureScale{
				Scale:  scale,
				Offset: offset,
			}))
		}
	}

	if info.Capabilities.Dimming {
		if a, b, c, d, ok := PumpModelFromSettings(s.settings); ok {
			kind := link.PumpModelPolynomial
			if math.IsNaN(float64(c)) || math.IsNaN(float64(d)) {
				kind = link.PumpModelTwoPoint
			}
			s.client.SendImmediate(link.MsgPumpModel, link.EncodePumpModel(link.PumpModelCoefficients{
				Kind: kind,
				A:    a,
				B:    b,
				C:    c,
				D:    d,
			}))
		}
	}

	if kp, ki, kd, ok := PidTuningsFromSettings(s.settings); ok {
		s.client.SendImmediate(link.MsgPidSettings, link.EncodePidTunings(link.PidTunings{
			Kp: kp,
			Ki: ki,
			Kd: kd,
		}))
	}
}

// OnBluetoothSample records the time a BLE scale sample was last received,
// for the grace-period check at process start.
func (s *DisplaySupervisor) OnBluetoothSample(now time.Time) {
	s.lastBluetoothSample = now
}

// Mode returns the current top-level mode.
func (s *DisplaySupervisor) Mode() Mode { return s.mode }

// arbitrateSource implements the spec §4.6 volumetric-source priority:
// Bluetooth if recent, else FlowEstimation if the machine dims the pump,
// else Inactive.
func (s *DisplaySupervisor) arbitrateSource(now time.Time) VolumetricSource {
	if !s.lastBluetoothSample.IsZero() && now.Sub(s.lastBluetoothSample) < BluetoothGracePeriod {
		return SourceBluetooth
	}
	if s.dimmingCapable {
		return SourceFlowEstimation
	}
	return SourceInactive
}

// HandleBrewButton implements the Brew column of the Mode FSM (spec §4.6):
// Standby->Brew, Brew(idle)->Brew(active) (start), Brew(active)->Brew(idle)
// (abort) on momentary press. profile is the one to start, looked up by the
// caller via settings' selected_profile.
func (s *DisplaySupervisor) HandleBrewButton(now time.Time, profile Profile) {
	s.lastActivity = now
	switch {
	case s.mode == ModeStandby:
		s.mode = ModeBrew
	case s.mode == ModeBrew && s.process == nil:
		s.process = NewBrewProcess(profile, s.arbitrateSource(now), s.brewDelay)
	case s.mode == ModeBrew && s.process != nil:
		s.abortProcess()
	// Water/Grind/Steam have no brew_btn transition in the FSM (spec §4.6);
	// the button is a no-op there.
	}
}

// HandleSteamButton implements the Steam column of the Mode FSM (spec
// §4.6): Standby/Brew->Steam, Steam->Brew.
func (s *DisplaySupervisor) HandleSteamButton(now time.Time, temperatureC float32) {
	s.lastActivity = now
	if s.mode == ModeSteam {
		s.mode = ModeBrew
		s.abortProcess()
		return
	}
	s.mode = ModeSteam
	s.process = NewSteamProcess(temperatureC)
}

// StartWater begins a hot-water dispense process; the spec's FSM diagram
// names only Brew/Steam transitions explicitly, so Water/Grind entry is
// left to the caller's own button wiring via this and StartGrind.
func (s *DisplaySupervisor) StartWater(now time.Time, temperatureC, pumpPercent float32) {
	s.lastActivity = now
	s.mode = ModeWater
	s.process = NewWaterProcess(temperatureC, pumpPercent)
}

// StartGrind begins a grind process toward target.
func (s *DisplaySupervisor) StartGrind(now time.Time, target Target) {
	s.lastActivity = now
	s.mode = ModeGrind
	s.process = NewGrindProcess(target, s.arbitrateSource(now), s.grindDelay)
}

func (s *DisplaySupervisor) abortProcess() {
	if s.process != nil {
		s.lastProcess = s.process
		s.process = nil
	}
}

// Tick runs one ControlEmit/Tick cycle (spec §4.6, §5): advances the active
// process, composes and enqueues OutputControl, handles completion and
// predictive-delay learning, applies the standby timeout, and drains the
// link client's coalescing queue.
func (s *DisplaySupervisor) Tick(now time.Time, dt time.Duration) error {
	if s.process != nil {
		s.lastActivity = now
		completed := s.process.Advance(now, dt)
		s.emitControl()
		if completed {
			s.onProcessCompleted()
		}
	} else if s.mode != ModeStandby && !s.lastActivity.IsZero() && now.Sub(s.lastActivity) > StandbyTimeout {
		s.mode = ModeStandby
	}

	return s.client.DrainControl()
}

// emitControl composes an OutputControl message from the active process's
// current command and enqueues it via the coalescing queue (spec §4.6
// step 2). Grind processes drive AltControl instead, since they have no
// heater/pump/valve command.
func (s *DisplaySupervisor) emitControl() {
	if s.process == nil {
		return
	}
	if g, ok := s.process.(*GrindProcess); ok {
		s.client.EnqueueControl(link.MsgAltControl, AltPrio, link.EncodeBoolPayload(g.AltOn()))
		return
	}

	pump := s.process.PumpSetpoint()
	req := link.ControlRequest{
		ValveOpen:       s.process.ValveOpen(),
		BoilerSetpointC: s.process.TemperatureSetpoint(),
	}
	if pump.Advanced {
		req.Mode = link.PumpModeAdvanced
		req.HasAdvanced = true
		req.Advanced = advancedPumpSetpoint(pump)
	} else {
		req.Mode = link.PumpModeBasic
		req.PumpSetpointPct = pump.Percent
	}
	s.client.EnqueueControl(link.MsgOutputControl, ControlPrio, link.EncodeControlRequest(req))
}

// onProcessCompleted implements spec §4.6 step 4: on brew completion,
// compute and persist the new predictive delay if delay_adjust is enabled.
func (s *DisplaySupervisor) onProcessCompleted() {
	s.lastProcess = s.process
	s.process = nil

	adjust := GetBool(s.settings, KeyDelayAdjust, false)
	switch p := s.lastProcess.(type) {
	case *BrewProcess:
		if delay, ok := p.PredictiveDelayCorrection(); ok {
			s.brewDelay = delay
			if adjust {
				s.settings.Set(KeyBrewDelayMs, itoaMs(delay))
			}
		}
	case *GrindProcess:
		if delay, ok := p.PredictiveDelayCorrection(); ok {
			s.grindDelay = delay
			if adjust {
				s.settings.Set(KeyGrindDelayMs, itoaMs(delay))
			}
		}
	}
}

// itoaMs formats a duration as whole milliseconds for settings storage.
func itoaMs(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
