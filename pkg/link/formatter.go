// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "fmt"

// FormatFrame renders a frame as a single human-readable line, for the
// linktest/scan CLI tools and non-interactive dumps.
func FormatFrame(f *Frame) string {
	return fmt.Sprintf("seq=%-5d %-16s len=%-3d payload=% X", f.Seq, f.Type, len(f.Payload), f.Payload)
}

// FormatPayload renders the typed payload of a frame when its schema is
// known, falling back to a raw hex dump otherwise.
func FormatPayload(f *Frame) string {
	switch f.Type {
	case MsgSensorData:
		if s, err := DecodeSensorFrame(f.Payload); err == nil {
			return fmt.Sprintf("temp=%.1fC pressure=%.2fbar pump_flow=%.2fml/s puck_flow=%.2fml/s resistance=%.3f",
				s.TemperatureC, s.PressureBar, s.PumpFlowMlps, s.PuckFlowMlps, s.PuckResistance)
		}
	case MsgOutputControl:
		if c, err := DecodeControlRequest(f.Payload); err == nil {
			return fmt.Sprintf("mode=%d valve=%v boiler=%.1fC pump=%.1f%%", c.Mode, c.ValveOpen, c.BoilerSetpointC, c.PumpSetpointPct)
		}
	case MsgSystemInfo:
		if s, err := DecodeSystemInfo(f.Payload); err == nil {
			return fmt.Sprintf("hw=%q version=%q caps=%+v", s.Hardware, s.Version, s.Capabilities)
		}
	case MsgError:
		if k, err := DecodeErrorPayload(f.Payload); err == nil {
			return fmt.Sprintf("kind=%s", k)
		}
	}
	return fmt.Sprintf("% X", f.Payload)
}
