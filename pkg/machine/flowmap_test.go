// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

import "testing"

func TestFlowMap_ZeroPolicy(t *testing.T) {
	var fm FlowMap

	tests := []struct {
		name     string
		rpm      float32
		pressure float32
		want     float32
	}{
		{"0 bar row, high rpm: last table value", 5000, 0, 1798},
		{"trailing zero row at 2 bar: clamp to last positive", 5000, 2, 1530},
		{"same row, low rpm: true stall", 600, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fm.Lookup(tt.rpm, tt.pressure)
			if got != tt.want {
				t.Errorf("Lookup(%v, %v) = %v, want %v", tt.rpm, tt.pressure, got, tt.want)
			}
		})
	}
}

func TestFlowMap_ExactAxisHit(t *testing.T) {
	var fm FlowMap
	// pressure=16 is the last axis point; the row's only positive entry is
	// at rpm index 4 (2500 RPM), so any rpm >= 2500 clamps to flowTable[16][4]=76.
	got := fm.Lookup(5000, 16)
	if got != 76 {
		t.Errorf("Lookup(5000, 16) = %v, want 76", got)
	}
}

func TestFlowMap_ClampsOutOfRangeInputs(t *testing.T) {
	var fm FlowMap
	below := fm.Lookup(0, -5)
	atAxis := fm.Lookup(600, 0)
	if below != atAxis {
		t.Errorf("expected clamping of (0,-5) to match axis minimum (600,0): got %v vs %v", below, atAxis)
	}

	above := fm.Lookup(999999, 999999)
	atMax := fm.Lookup(5000, 16)
	if above != atMax {
		t.Errorf("expected clamping of huge inputs to match axis maximum: got %v vs %v", above, atMax)
	}
}
