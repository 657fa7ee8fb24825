// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "testing"

func TestValidateFrame_SensorFrameOutOfRange(t *testing.T) {
	payload := EncodeSensorFrame(SensorFrame{TemperatureC: 250, PressureBar: -1})
	f := &Frame{Type: MsgSensorData, Payload: payload}

	errs := ValidateFrame(f)
	if len(errs) != 2 {
		t.Fatalf("expected 2 anomalies (temp + pressure), got %d: %+v", len(errs), errs)
	}
	for _, e := range errs {
		if e.Type != AnomalyOutOfRange {
			t.Errorf("expected AnomalyOutOfRange, got %v", e.Type)
		}
	}
}

func TestValidateFrame_SensorFrameNegativeFlow(t *testing.T) {
	payload := EncodeSensorFrame(SensorFrame{TemperatureC: 90, PressureBar: 9, PumpFlowMlps: -0.1})
	errs := ValidateFrame(&Frame{Type: MsgSensorData, Payload: payload})
	if len(errs) != 1 || errs[0].Type != AnomalyInvalidValue {
		t.Fatalf("expected one AnomalyInvalidValue, got %+v", errs)
	}
}

func TestValidateFrame_ValidSensorFrameHasNoAnomalies(t *testing.T) {
	payload := EncodeSensorFrame(SensorFrame{TemperatureC: 93, PressureBar: 9, PumpFlowMlps: 2, PuckFlowMlps: 2})
	errs := ValidateFrame(&Frame{Type: MsgSensorData, Payload: payload})
	if len(errs) != 0 {
		t.Errorf("expected no anomalies, got %+v", errs)
	}
}

func TestValidateFrame_ControlRequestOutOfRange(t *testing.T) {
	payload := EncodeControlRequest(ControlRequest{BoilerSetpointC: 200, PumpSetpointPct: 150})
	errs := ValidateFrame(&Frame{Type: MsgOutputControl, Payload: payload})
	if len(errs) != 2 {
		t.Fatalf("expected 2 anomalies, got %d: %+v", len(errs), errs)
	}
}

func TestValidateFrame_PidTuningsNegativeGain(t *testing.T) {
	payload := EncodePidTunings(PidTunings{Kp: -1, Ki: 0, Kd: 0})
	errs := ValidateFrame(&Frame{Type: MsgPidSettings, Payload: payload})
	if len(errs) != 1 || errs[0].Type != AnomalyInvalidValue {
		t.Fatalf("expected one AnomalyInvalidValue, got %+v", errs)
	}
}

func TestValidateFrame_UnknownTypeIsUnchecked(t *testing.T) {
	errs := ValidateFrame(&Frame{Type: MsgPing, Payload: nil})
	if errs != nil {
		t.Errorf("expected no validation for message types without a validator, got %+v", errs)
	}
}

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	s.Update(nil, nil)
	s.Update(NewError(ErrorProtoErr, "bad header"), nil)
	s.Update(nil, []ValidationError{{Type: AnomalyOutOfRange, Message: "x"}})

	if s.TotalFrames != 3 {
		t.Errorf("TotalFrames: want 3, got %d", s.TotalFrames)
	}
	if s.ValidFrames != 1 {
		t.Errorf("ValidFrames: want 1, got %d", s.ValidFrames)
	}
	if s.ProtoErrors != 1 {
		t.Errorf("ProtoErrors: want 1, got %d", s.ProtoErrors)
	}
	if s.AnomalousVal != 1 {
		t.Errorf("AnomalousVal: want 1, got %d", s.AnomalousVal)
	}
}

func TestStatistics_Reset(t *testing.T) {
	s := NewStatistics()
	s.Update(nil, nil)
	s.Reset()
	if s.TotalFrames != 0 || s.ValidFrames != 0 {
		t.Errorf("expected counters zeroed after Reset, got %+v", s)
	}
}
