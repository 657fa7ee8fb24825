// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import "time"

// SteamProcess is a thin time-bounded process (spec §4.5): steam the wand
// until the button is released or SteamSafetyDuration elapses.
type SteamProcess struct {
	temperatureC float32
	elapsed      time.Duration
	completed    bool
	stopRequested bool
}

// NewSteamProcess starts a steam process targeting temperatureC.
func NewSteamProcess(temperatureC float32) *SteamProcess {
	return &SteamProcess{temperatureC: temperatureC}
}

// Stop requests an early, user-driven end (button release).
func (p *SteamProcess) Stop() { p.stopRequested = true }

func (p *SteamProcess) Mode() Mode                  { return ModeSteam }
func (p *SteamProcess) ValveOpen() bool              { return false }
func (p *SteamProcess) TemperatureSetpoint() float32 { return p.temperatureC }
func (p *SteamProcess) PumpSetpoint() PumpSetpoint   { return PumpSetpoint{} }

// Advance implements Process.
func (p *SteamProcess) Advance(now time.Time, dt time.Duration) bool {
	if p.completed {
		return true
	}
	p.elapsed += dt
	if p.stopRequested || p.elapsed >= SteamSafetyDuration {
		p.completed = true
	}
	return p.completed
}

// WaterProcess is a thin time-bounded process (spec §4.5): dispense hot
// water through the brew valve until stopped or HotWaterSafetyDuration
// elapses.
type WaterProcess struct {
	temperatureC  float32
	pump          PumpSetpoint
	elapsed       time.Duration
	completed     bool
	stopRequested bool
}

// NewWaterProcess starts a hot-water dispense process.
func NewWaterProcess(temperatureC float32, pumpPercent float32) *WaterProcess {
	return &WaterProcess{temperatureC: temperatureC, pump: PumpSetpoint{Percent: pumpPercent}}
}

// Stop requests an early, user-driven end.
func (p *WaterProcess) Stop() { p.stopRequested = true }

func (p *WaterProcess) Mode() Mode                  { return ModeWater }
func (p *WaterProcess) ValveOpen() bool              { return !p.completed }
func (p *WaterProcess) TemperatureSetpoint() float32 { return p.temperatureC }
func (p *WaterProcess) PumpSetpoint() PumpSetpoint {
	if p.completed {
		return PumpSetpoint{}
	}
	return p.pump
}

// Advance implements Process.
func (p *WaterProcess) Advance(now time.Time, dt time.Duration) bool {
	if p.completed {
		return true
	}
	p.elapsed += dt
	if p.stopRequested || p.elapsed >= HotWaterSafetyDuration {
		p.completed = true
	}
	return p.completed
}
