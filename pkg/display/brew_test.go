// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"testing"
	"time"
)

func volumetricProfile() Profile {
	return Profile{
		ID:    "test",
		Type:  ProfilePro,
		Phases: []Phase{
			{
				Name:      "brew",
				Kind:      PhaseBrew,
				Valve:     true,
				DurationS: 10,
				Pump:      PumpSetpoint{Percent: 100},
				Targets:   []Target{{Kind: TargetVolumetric, Op: OpGreaterEqual, Value: 36}},
			},
		},
	}
}

// TestBrewProcess_VolumetricTargetEndsPhaseOnTrigger is Testable Property 6
// (first half): weight reaching 36g at t=8s ends the phase at t=8s.
func TestBrewProcess_VolumetricTargetEndsPhaseOnTrigger(t *testing.T) {
	p := NewBrewProcess(volumetricProfile(), SourceBluetooth, 0)
	now := time.Unix(0, 0)
	dt := time.Second

	for i := 1; i <= 10; i++ {
		now = now.Add(dt)
		weight := float32(i) * 4.5 // reaches 36g exactly at i=8
		p.SetWeightSample(weight, true)
		done := p.Advance(now, dt)
		if i < 8 {
			if done {
				t.Fatalf("phase ended early at t=%ds", i)
			}
			continue
		}
		if !done {
			t.Fatalf("expected phase to end at t=8s once weight reached 36g")
		}
		if i != 8 {
			t.Errorf("expected phase to end exactly at t=8s, ended at t=%ds", i)
		}
		break
	}
}

// TestBrewProcess_NeverReachingTargetEndsAtDuration is Testable Property 6
// (second half): if the target is never satisfied, the phase still ends
// at its declared duration.
func TestBrewProcess_NeverReachingTargetEndsAtDuration(t *testing.T) {
	p := NewBrewProcess(volumetricProfile(), SourceBluetooth, 0)
	now := time.Unix(0, 0)
	dt := time.Second

	for i := 1; i <= 10; i++ {
		now = now.Add(dt)
		p.SetWeightSample(float32(i), true) // far below 36g throughout
		done := p.Advance(now, dt)
		if i < 10 && done {
			t.Fatalf("phase ended early at t=%ds without reaching target", i)
		}
		if i == 10 && !done {
			t.Fatal("expected phase to end at its 10s duration")
		}
	}
}

// TestBrewProcess_NeverExceedsSafetyDuration is the safety-bound half of
// Testable Property 6: no brew phase is allowed to exceed
// BREW_SAFETY_DURATION even with a very long declared duration.
func TestBrewProcess_NeverExceedsSafetyDuration(t *testing.T) {
	profile := volumetricProfile()
	profile.Phases[0].DurationS = 3600 // far beyond BrewSafetyDuration
	p := NewBrewProcess(profile, SourceBluetooth, 0)

	now := time.Unix(0, 0)
	dt := time.Second
	var elapsed time.Duration
	for !p.Advance(now, dt) {
		now = now.Add(dt)
		elapsed += dt
		p.SetWeightSample(0, true) // target never satisfied
		if elapsed > BrewSafetyDuration+time.Second {
			t.Fatalf("phase ran past BrewSafetyDuration: %v", elapsed)
		}
	}
	if elapsed > BrewSafetyDuration {
		t.Errorf("phase exceeded BrewSafetyDuration: %v", elapsed)
	}
}

// TestBrewProcess_PredictiveDelayBounded is Testable Property 7: the
// computed new delay must always land in [0, PredictiveTime] regardless of
// how extreme the measured overshoot/slope are.
func TestBrewProcess_PredictiveDelayBounded(t *testing.T) {
	cases := []struct {
		name           string
		rateGPerSample float32
	}{
		{"tiny slope, huge overshoot", 0.001},
		{"large slope", 50},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := NewBrewProcess(volumetricProfile(), SourceBluetooth, 2*time.Second)
			now := time.Unix(0, 0)
			dt := time.Second
			weight := float32(0)
			for i := 0; i < 10; i++ {
				now = now.Add(dt)
				weight += c.rateGPerSample
				p.SetWeightSample(weight, true)
				if p.Advance(now, dt) {
					break
				}
			}
			delay, ok := p.PredictiveDelayCorrection()
			if !ok {
				return // zero slope is a legitimate "nothing to learn" case
			}
			if delay < 0 || delay > PredictiveTime {
				t.Errorf("delay %v out of bounds [0, %v]", delay, PredictiveTime)
			}
		})
	}
}

// TestBrewProcess_VolumetricSourceNeverSwitchesMidProcess is Testable
// Property 8: once committed to Bluetooth at start, the process keeps using
// it even once the feed goes unhealthy mid-shot.
func TestBrewProcess_VolumetricSourceNeverSwitchesMidProcess(t *testing.T) {
	p := NewBrewProcess(volumetricProfile(), SourceBluetooth, 0)
	if p.source != SourceBluetooth {
		t.Fatal("expected source committed to Bluetooth at start")
	}

	now := time.Unix(0, 0)
	p.SetWeightSample(10, false) // feed goes silent/unhealthy
	p.Advance(now.Add(time.Second), time.Second)

	if p.source != SourceBluetooth {
		t.Errorf("source must not switch mid-process, got %v", p.source)
	}
	if p.sourceHealthy {
		t.Error("expected sourceHealthy to reflect the unhealthy feed")
	}
}

// TestBrewProcess_UnhealthySourceDowngradesToTimeOnly exercises the
// fallback named alongside Property 8: when the committed source goes
// unhealthy, volumetric targets stop firing but the phase still exits on
// its declared duration.
func TestBrewProcess_UnhealthySourceDowngradesToTimeOnly(t *testing.T) {
	p := NewBrewProcess(volumetricProfile(), SourceBluetooth, 0)
	now := time.Unix(0, 0)
	dt := time.Second

	for i := 1; i <= 10; i++ {
		now = now.Add(dt)
		p.SetWeightSample(100, false) // would satisfy the target if healthy
		done := p.Advance(now, dt)
		if i < 10 && done {
			t.Fatalf("unhealthy source must not satisfy the volumetric target early (t=%ds)", i)
		}
		if i == 10 && !done {
			t.Fatal("expected duration-based exit once downgraded to time-only")
		}
	}
}
