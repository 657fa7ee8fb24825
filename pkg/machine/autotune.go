// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

import (
	"time"

	"github.com/thermoline/espresso/pkg/link"
)

// relayCeiling is the safe duty ceiling the autotune relay toggles to
// (spec §4.2: "toggle between 0 and a safe ceiling"). Conservative enough
// to avoid a real runaway while the loop is open.
const relayCeiling = 0.6

// autotuner runs the Ziegler-Nichols relay-feedback procedure of spec
// §4.2. The exact algorithm is flagged by spec §9 as an unconfirmed
// reading of the source's integration points; this is the relay-feedback
// interpretation the spec itself proposes.
type autotuner struct {
	deadline time.Time
	samplesNeeded int

	setpoint float32

	relayHigh    bool
	lastSwitch   time.Time
	cycleMax     float32
	cycleMin     float32
	halfPeriods  []time.Duration
	peakAmplitudes []float32

	done   bool
	result link.AutotuneResult
}

func newAutotuner(cmd link.AutotuneCommand, aroundTemp float32, now time.Time) *autotuner {
	samples := int(cmd.Samples)
	if samples < 2 {
		samples = 2
	}
	return &autotuner{
		deadline:      now.Add(time.Duration(cmd.TestTimeS * float32(time.Second))),
		samplesNeeded: samples,
		setpoint:      aroundTemp,
		relayHigh:     true,
		lastSwitch:    now,
		cycleMax:      aroundTemp,
		cycleMin:      aroundTemp,
	}
}

// step advances the relay and returns the commanded duty fraction for this
// tick. Once enough half-periods are collected (or the deadline passes)
// the Ziegler-Nichols tunings are computed and done latches true.
func (a *autotuner) step(now time.Time, measurement float32) float32 {
	if a.done {
		return 0
	}

	if measurement > a.cycleMax {
		a.cycleMax = measurement
	}
	if measurement < a.cycleMin {
		a.cycleMin = measurement
	}

	crossed := (a.relayHigh && measurement >= a.setpoint) || (!a.relayHigh && measurement <= a.setpoint)
	if crossed {
		a.halfPeriods = append(a.halfPeriods, now.Sub(a.lastSwitch))
		a.peakAmplitudes = append(a.peakAmplitudes, (a.cycleMax-a.cycleMin)/2)
		a.lastSwitch = now
		a.cycleMax, a.cycleMin = measurement, measurement
		a.relayHigh = !a.relayHigh
	}

	if len(a.halfPeriods) >= a.samplesNeeded || now.After(a.deadline) {
		a.finish()
	}

	if a.relayHigh {
		return relayCeiling
	}
	return 0
}

func (a *autotuner) finish() {
	a.done = true
	if len(a.halfPeriods) < 2 {
		return // insufficient data; leave result zeroed
	}

	var periodSum time.Duration
	var ampSum float32
	n := 0
	for i, hp := range a.halfPeriods {
		if i == 0 {
			continue // first half-period starts mid-cycle, discard
		}
		periodSum += hp
		ampSum += a.peakAmplitudes[i]
		n++
	}
	if n == 0 {
		return
	}

	tu := (periodSum.Seconds() / float64(n)) * 2 // full period
	amplitude := ampSum / float32(n)
	if amplitude <= 0 || tu <= 0 {
		return
	}

	ku := float32(4*relayCeiling) / (3.14159265 * amplitude)
	kp := 0.6 * ku
	ki := 1.2 * ku / float32(tu)
	kd := 0.075 * ku * float32(tu)

	a.result = link.AutotuneResult{Kp: kp, Ki: ki, Kd: kd}
}
