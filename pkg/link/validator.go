// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "fmt"

// AnomalyType categorizes a validation failure on an otherwise
// successfully-decoded frame.
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidValue
	AnomalyOutOfRange
	AnomalyDecodeError
)

// ValidationError is a single anomaly found in an otherwise framed message.
type ValidationError struct {
	Type    AnomalyType
	Message string
}

func (v *ValidationError) Error() string { return v.Message }

// ValidateFrame decodes and range-checks a frame's payload for the message
// types the core cares about. Decode failures here do not re-derive
// ErrorProtoErr (Decode already reported that) — they surface payloads that
// decoded but carry implausible values, the way the teacher's
// ValidatePacket flags high-RPM/invalid-temperature telemetry.
func ValidateFrame(f *Frame) []ValidationError {
	switch f.Type {
	case MsgSensorData:
		s, err := DecodeSensorFrame(f.Payload)
		if err != nil {
			return []ValidationError{{Type: AnomalyDecodeError, Message: err.Error()}}
		}
		return validateSensorFrame(s)
	case MsgOutputControl:
		c, err := DecodeControlRequest(f.Payload)
		if err != nil {
			return []ValidationError{{Type: AnomalyDecodeError, Message: err.Error()}}
		}
		return validateControlRequest(c)
	case MsgPidSettings:
		p, err := DecodePidTunings(f.Payload)
		if err != nil {
			return []ValidationError{{Type: AnomalyDecodeError, Message: err.Error()}}
		}
		return validatePidTunings(p)
	default:
		return nil
	}
}

func validateSensorFrame(s SensorFrame) []ValidationError {
	var errs []ValidationError
	if s.TemperatureC < -20 || s.TemperatureC > 200 {
		errs = append(errs, ValidationError{
			Type:    AnomalyOutOfRange,
			Message: fmt.Sprintf("temperature out of range: %.1fC", s.TemperatureC),
		})
	}
	if s.PressureBar < 0 || s.PressureBar > 20 {
		errs = append(errs, ValidationError{
			Type:    AnomalyOutOfRange,
			Message: fmt.Sprintf("pressure out of range: %.2fbar", s.PressureBar),
		})
	}
	if s.PumpFlowMlps < 0 || s.PuckFlowMlps < 0 {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: "negative flow value",
		})
	}
	return errs
}

func validateControlRequest(c ControlRequest) []ValidationError {
	var errs []ValidationError
	if c.BoilerSetpointC < 0 || c.BoilerSetpointC > 170 {
		errs = append(errs, ValidationError{
			Type:    AnomalyOutOfRange,
			Message: fmt.Sprintf("boiler setpoint out of range: %.1fC", c.BoilerSetpointC),
		})
	}
	if c.PumpSetpointPct < 0 || c.PumpSetpointPct > 100 {
		errs = append(errs, ValidationError{
			Type:    AnomalyOutOfRange,
			Message: fmt.Sprintf("pump setpoint out of range: %.1f%%", c.PumpSetpointPct),
		})
	}
	return errs
}

func validatePidTunings(p PidTunings) []ValidationError {
	var errs []ValidationError
	if p.Kp < 0 || p.Ki < 0 || p.Kd < 0 {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: "negative PID gain rejected",
		})
	}
	return errs
}
