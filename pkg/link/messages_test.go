// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"math"
	"testing"
)

func TestSensorFrame_RoundTrip(t *testing.T) {
	want := SensorFrame{
		TemperatureC:   93.5,
		PressureBar:    9.1,
		PumpFlowMlps:   2.3,
		PuckFlowMlps:   2.1,
		PuckResistance: 0.42,
	}
	got, err := DecodeSensorFrame(EncodeSensorFrame(want))
	if err != nil {
		t.Fatalf("DecodeSensorFrame: %v", err)
	}
	if got != want {
		t.Errorf("round-trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestSensorFrame_WrongLength(t *testing.T) {
	if _, err := DecodeSensorFrame(make([]byte, 4)); err == nil {
		t.Fatal("expected error for wrong-length payload")
	}
}

func TestControlRequest_RoundTrip(t *testing.T) {
	want := ControlRequest{
		Mode:            PumpModeAdvanced,
		ValveOpen:       true,
		BoilerSetpointC: 95,
		PumpSetpointPct: 60,
		HasAdvanced:     true,
		Advanced: AdvancedPump{
			Target:      AdvancedTargetFlow,
			PressureBar: 8.5,
			FlowMlps:    2.0,
		},
	}
	got, err := DecodeControlRequest(EncodeControlRequest(want))
	if err != nil {
		t.Fatalf("DecodeControlRequest: %v", err)
	}
	if got != want {
		t.Errorf("round-trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestPumpModel_TwoPointRoundTrip(t *testing.T) {
	want := PumpModelCoefficients{Kind: PumpModelTwoPoint, A: 1.5, B: 8.0}
	got, err := DecodePumpModel(EncodePumpModel(want))
	if err != nil {
		t.Fatalf("DecodePumpModel: %v", err)
	}
	if got.Kind != PumpModelTwoPoint || got.A != want.A || got.B != want.B {
		t.Errorf("round-trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestPumpModel_PolynomialRoundTrip(t *testing.T) {
	want := PumpModelCoefficients{Kind: PumpModelPolynomial, A: 1, B: 2, C: 3, D: 4}
	got, err := DecodePumpModel(EncodePumpModel(want))
	if err != nil {
		t.Fatalf("DecodePumpModel: %v", err)
	}
	if got != want {
		t.Errorf("round-trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestPumpModel_NaNInEitherSlotMeansTwoPoint(t *testing.T) {
	b := make([]byte, pumpModelSize)
	putFloat32(b[0:4], 1)
	putFloat32(b[4:8], 2)
	putFloat32(b[8:12], float32(math.NaN()))
	putFloat32(b[12:16], 3) // only one NaN slot, still two-point per decode rule

	got, err := DecodePumpModel(b)
	if err != nil {
		t.Fatalf("DecodePumpModel: %v", err)
	}
	if got.Kind != PumpModelTwoPoint {
		t.Errorf("expected PumpModelTwoPoint, got %v", got.Kind)
	}
}

func TestSystemInfo_RoundTrip(t *testing.T) {
	want := SystemInfo{
		Hardware:     "gaggimate-v3",
		Version:      "1.4.2",
		Capabilities: Capabilities{Dimming: true, Tof: true},
	}
	got, err := DecodeSystemInfo(EncodeSystemInfo(want))
	if err != nil {
		t.Fatalf("DecodeSystemInfo: %v", err)
	}
	if got != want {
		t.Errorf("round-trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestSystemInfo_TruncatesLongFields(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'x'
	}
	encoded := EncodeSystemInfo(SystemInfo{Hardware: string(long), Version: string(long)})
	got, err := DecodeSystemInfo(encoded)
	if err != nil {
		t.Fatalf("DecodeSystemInfo: %v", err)
	}
	if len(got.Hardware) != 31 || len(got.Version) != 31 {
		t.Errorf("expected fields truncated to 31 bytes, got %d/%d", len(got.Hardware), len(got.Version))
	}
}

func TestErrorPayload_RoundTrip(t *testing.T) {
	got, err := DecodeErrorPayload(EncodeErrorPayload(ErrorRunaway))
	if err != nil {
		t.Fatalf("DecodeErrorPayload: %v", err)
	}
	if got != ErrorRunaway {
		t.Errorf("want ErrorRunaway, got %v", got)
	}
}
