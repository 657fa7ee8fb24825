// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Per-MessageType payload structs and their manual binary encoders, in the
// teacher's fixed-layout style (pkg/fusain used a CBOR array-of-two
// envelope; here the envelope is the Frame header itself, so payloads are
// plain little-endian structs with no self-describing framing).

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putBool(b []byte, v bool) {
	if v {
		b[0] = 1
	} else {
		b[0] = 0
	}
}

// SensorFrame is the Machine Node's periodic telemetry payload (spec §3.1).
// Emitted at 4 Hz while a client is connected.
type SensorFrame struct {
	TemperatureC   float32
	PressureBar    float32
	PumpFlowMlps   float32
	PuckFlowMlps   float32
	PuckResistance float32
}

const sensorFrameSize = 20

// EncodeSensorFrame serializes a SensorFrame payload.
func EncodeSensorFrame(s SensorFrame) []byte {
	b := make([]byte, sensorFrameSize)
	putFloat32(b[0:4], s.TemperatureC)
	putFloat32(b[4:8], s.PressureBar)
	putFloat32(b[8:12], s.PumpFlowMlps)
	putFloat32(b[12:16], s.PuckFlowMlps)
	putFloat32(b[16:20], s.PuckResistance)
	return b
}

// DecodeSensorFrame parses a SensorFrame payload.
func DecodeSensorFrame(b []byte) (SensorFrame, error) {
	if len(b) != sensorFrameSize {
		return SensorFrame{}, fmt.Errorf("link: SensorData payload is %d bytes, want %d", len(b), sensorFrameSize)
	}
	return SensorFrame{
		TemperatureC:   getFloat32(b[0:4]),
		PressureBar:    getFloat32(b[4:8]),
		PumpFlowMlps:   getFloat32(b[8:12]),
		PuckFlowMlps:   getFloat32(b[12:16]),
		PuckResistance: getFloat32(b[16:20]),
	}, nil
}

// PumpControlMode selects how an AdvancedPump target is interpreted.
type PumpControlMode uint8

const (
	PumpModeBasic PumpControlMode = iota
	PumpModeAdvanced
)

// AdvancedTarget selects whether an AdvancedPump targets pressure or flow.
type AdvancedTarget uint8

const (
	AdvancedTargetPressure AdvancedTarget = iota
	AdvancedTargetFlow
)

// AdvancedPump is the advanced pump-control payload nested in a
// ControlRequest (spec §3.1).
type AdvancedPump struct {
	Target     AdvancedTarget
	PressureBar float32
	FlowMlps    float32
}

// ControlRequest is the OutputControl message payload: the Display Node's
// command to the Machine Node (spec §3.1). Applied on receipt.
type ControlRequest struct {
	Mode             PumpControlMode
	ValveOpen        bool
	BoilerSetpointC  float32
	PumpSetpointPct  float32
	HasAdvanced      bool
	Advanced         AdvancedPump
}

const controlRequestSize = 20

// EncodeControlRequest serializes a ControlRequest payload.
func EncodeControlRequest(c ControlRequest) []byte {
	b := make([]byte, controlRequestSize)
	b[0] = byte(c.Mode)
	putBool(b[1:2], c.ValveOpen)
	putFloat32(b[2:6], c.BoilerSetpointC)
	putFloat32(b[6:10], c.PumpSetpointPct)
	if c.HasAdvanced {
		b[10] = 1
	}
	b[11] = byte(c.Advanced.Target)
	putFloat32(b[12:16], c.Advanced.PressureBar)
	putFloat32(b[16:20], c.Advanced.FlowMlps)
	return b
}

// DecodeControlRequest parses a ControlRequest payload.
func DecodeControlRequest(b []byte) (ControlRequest, error) {
	if len(b) != controlRequestSize {
		return ControlRequest{}, fmt.Errorf("link: OutputControl payload is %d bytes, want %d", len(b), controlRequestSize)
	}
	return ControlRequest{
		Mode:            PumpControlMode(b[0]),
		ValveOpen:       b[1] != 0,
		BoilerSetpointC: getFloat32(b[2:6]),
		PumpSetpointPct: getFloat32(b[6:10]),
		HasAdvanced:     b[10] != 0,
		Advanced: AdvancedPump{
			Target:      AdvancedTarget(b[11]),
			PressureBar: getFloat32(b[12:16]),
			FlowMlps:    getFloat32(b[16:20]),
		},
	}, nil
}

// PidTunings is the PidSettings message payload (spec §3.1). Write-only
// from the Display Node.
type PidTunings struct {
	Kp, Ki, Kd float32
}

const pidTuningsSize = 12

// EncodePidTunings serializes a PidTunings payload.
func EncodePidTunings(p PidTunings) []byte {
	b := make([]byte, pidTuningsSize)
	putFloat32(b[0:4], p.Kp)
	putFloat32(b[4:8], p.Ki)
	putFloat32(b[8:12], p.Kd)
	return b
}

// DecodePidTunings parses a PidTunings payload.
func DecodePidTunings(b []byte) (PidTunings, error) {
	if len(b) != pidTuningsSize {
		return PidTunings{}, fmt.Errorf("link: PidSettings payload is %d bytes, want %d", len(b), pidTuningsSize)
	}
	return PidTunings{
		Kp: getFloat32(b[0:4]),
		Ki: getFloat32(b[4:8]),
		Kd: getFloat32(b[8:12]),
	}, nil
}

// PumpModelKind distinguishes the two PumpModelCoefficients wire shapes.
// Per spec §9 Open Questions, the wire discriminator is the brittle
// "last two coefficients are NaN" sentinel; Kind is the explicit tag a
// reimplementation should have used, computed once at decode time so
// callers never re-derive it from NaN checks.
type PumpModelKind uint8

const (
	PumpModelTwoPoint PumpModelKind = iota
	PumpModelPolynomial
)

// PumpModelCoefficients is the PumpModel message payload (spec §3.1).
type PumpModelCoefficients struct {
	Kind PumpModelKind
	A, B, C, D float32 // two-point form: A=one_bar_flow, B=nine_bar_flow, C/D unused (NaN on the wire)
}

const pumpModelSize = 16

// EncodePumpModel serializes a PumpModelCoefficients payload. The two-point
// form is encoded with NaN in the C and D slots, matching the wire
// discriminator described in spec §3.1.
func EncodePumpModel(p PumpModelCoefficients) []byte {
	b := make([]byte, pumpModelSize)
	c, d := p.C, p.D
	if p.Kind == PumpModelTwoPoint {
		c, d = float32(math.NaN()), float32(math.NaN())
	}
	putFloat32(b[0:4], p.A)
	putFloat32(b[4:8], p.B)
	putFloat32(b[8:12], c)
	putFloat32(b[12:16], d)
	return b
}

// DecodePumpModel parses a PumpModelCoefficients payload, deriving Kind from
// the NaN sentinel the wire format uses (spec §3.1): if C or D is NaN the
// form is two-point (C and D are returned as zero), otherwise polynomial.
func DecodePumpModel(b []byte) (PumpModelCoefficients, error) {
	if len(b) != pumpModelSize {
		return PumpModelCoefficients{}, fmt.Errorf("link: PumpModel payload is %d bytes, want %d", len(b), pumpModelSize)
	}
	a := getFloat32(b[0:4])
	bb := getFloat32(b[4:8])
	c := getFloat32(b[8:12])
	d := getFloat32(b[12:16])

	if math.IsNaN(float64(c)) || math.IsNaN(float64(d)) {
		return PumpModelCoefficients{Kind: PumpModelTwoPoint, A: a, B: bb}, nil
	}
	return PumpModelCoefficients{Kind: PumpModelPolynomial, A: a, B: bb, C: c, D: d}, nil
}

// AutotuneCommand is the Autotune message payload (spec §4.2).
type AutotuneCommand struct {
	TestTimeS float32
	Samples   uint16
}

const autotuneCommandSize = 6

// EncodeAutotuneCommand serializes an AutotuneCommand payload.
func EncodeAutotuneCommand(a AutotuneCommand) []byte {
	b := make([]byte, autotuneCommandSize)
	putFloat32(b[0:4], a.TestTimeS)
	binary.LittleEndian.PutUint16(b[4:6], a.Samples)
	return b
}

// DecodeAutotuneCommand parses an AutotuneCommand payload.
func DecodeAutotuneCommand(b []byte) (AutotuneCommand, error) {
	if len(b) != autotuneCommandSize {
		return AutotuneCommand{}, fmt.Errorf("link: Autotune payload is %d bytes, want %d", len(b), autotuneCommandSize)
	}
	return AutotuneCommand{
		TestTimeS: getFloat32(b[0:4]),
		Samples:   binary.LittleEndian.Uint16(b[4:6]),
	}, nil
}

// AutotuneResult is the AutotuneResult message payload: the Ziegler-Nichols
// tunings produced by a completed autotune run (spec §4.2).
type AutotuneResult struct {
	Kp, Ki, Kd float32
}

const autotuneResultSize = 12

// EncodeAutotuneResult serializes an AutotuneResult payload.
func EncodeAutotuneResult(r AutotuneResult) []byte {
	b := make([]byte, autotuneResultSize)
	putFloat32(b[0:4], r.Kp)
	putFloat32(b[4:8], r.Ki)
	putFloat32(b[8:12], r.Kd)
	return b
}

// DecodeAutotuneResult parses an AutotuneResult payload.
func DecodeAutotuneResult(b []byte) (AutotuneResult, error) {
	if len(b) != autotuneResultSize {
		return AutotuneResult{}, fmt.Errorf("link: AutotuneResult payload is %d bytes, want %d", len(b), autotuneResultSize)
	}
	return AutotuneResult{
		Kp: getFloat32(b[0:4]),
		Ki: getFloat32(b[4:8]),
		Kd: getFloat32(b[8:12]),
	}, nil
}

// PressureScale is a scale/offset calibration pair applied to the raw
// pressure ADC reading.
type PressureScale struct {
	Scale, Offset float32
}

const pressureScaleSize = 8

// EncodePressureScale serializes a PressureScale payload.
func EncodePressureScale(p PressureScale) []byte {
	b := make([]byte, pressureScaleSize)
	putFloat32(b[0:4], p.Scale)
	putFloat32(b[4:8], p.Offset)
	return b
}

// DecodePressureScale parses a PressureScale payload.
func DecodePressureScale(b []byte) (PressureScale, error) {
	if len(b) != pressureScaleSize {
		return PressureScale{}, fmt.Errorf("link: PressureScale payload is %d bytes, want %d", len(b), pressureScaleSize)
	}
	return PressureScale{Scale: getFloat32(b[0:4]), Offset: getFloat32(b[4:8])}, nil
}

// ButtonEdge is the BrewButton/SteamButton payload: a debounced edge change
// (spec §6.2).
type ButtonEdge struct {
	Pressed bool
}

// EncodeButtonEdge serializes a ButtonEdge payload.
func EncodeButtonEdge(e ButtonEdge) []byte {
	b := make([]byte, 1)
	putBool(b, e.Pressed)
	return b
}

// DecodeButtonEdge parses a ButtonEdge payload.
func DecodeButtonEdge(b []byte) (ButtonEdge, error) {
	if len(b) != 1 {
		return ButtonEdge{}, fmt.Errorf("link: button payload is %d bytes, want 1", len(b))
	}
	return ButtonEdge{Pressed: b[0] != 0}, nil
}

// VolumetricSample carries a BLE-scale weight/flow sample between nodes.
type VolumetricSample struct {
	WeightG  float32
	FlowMlps float32
}

const volumetricSampleSize = 8

// EncodeVolumetricSample serializes a VolumetricSample payload.
func EncodeVolumetricSample(v VolumetricSample) []byte {
	b := make([]byte, volumetricSampleSize)
	putFloat32(b[0:4], v.WeightG)
	putFloat32(b[4:8], v.FlowMlps)
	return b
}

// DecodeVolumetricSample parses a VolumetricSample payload.
func DecodeVolumetricSample(b []byte) (VolumetricSample, error) {
	if len(b) != volumetricSampleSize {
		return VolumetricSample{}, fmt.Errorf("link: Volumetric payload is %d bytes, want %d", len(b), volumetricSampleSize)
	}
	return VolumetricSample{WeightG: getFloat32(b[0:4]), FlowMlps: getFloat32(b[4:8])}, nil
}

// TofReading is the Tof message payload: a distance-sensor reading in mm.
type TofReading struct {
	DistanceMm uint16
}

// EncodeTofReading serializes a TofReading payload.
func EncodeTofReading(t TofReading) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, t.DistanceMm)
	return b
}

// DecodeTofReading parses a TofReading payload.
func DecodeTofReading(b []byte) (TofReading, error) {
	if len(b) != 2 {
		return TofReading{}, fmt.Errorf("link: Tof payload is %d bytes, want 2", len(b))
	}
	return TofReading{DistanceMm: binary.LittleEndian.Uint16(b)}, nil
}

// Capabilities enumerates the optional peripherals a Machine Node build
// exposes (spec §3.2).
type Capabilities struct {
	Dimming    bool
	Pressure   bool
	LedControl bool
	Tof        bool
}

func (c Capabilities) encode() byte {
	var m byte
	if c.Dimming {
		m |= 1 << 0
	}
	if c.Pressure {
		m |= 1 << 1
	}
	if c.LedControl {
		m |= 1 << 2
	}
	if c.Tof {
		m |= 1 << 3
	}
	return m
}

func decodeCapabilities(m byte) Capabilities {
	return Capabilities{
		Dimming:    m&(1<<0) != 0,
		Pressure:   m&(1<<1) != 0,
		LedControl: m&(1<<2) != 0,
		Tof:        m&(1<<3) != 0,
	}
}

// SystemInfo is sent exactly once by the Machine Node after connection and
// before any control message is accepted from the Display Node (spec §4.7).
type SystemInfo struct {
	Hardware     string
	Version      string
	Capabilities Capabilities
}

// EncodeSystemInfo serializes a SystemInfo payload. Hardware/Version are
// truncated to 31 bytes each to keep the frame within MaxPayloadSize.
func EncodeSystemInfo(s SystemInfo) []byte {
	hw := []byte(s.Hardware)
	if len(hw) > 31 {
		hw = hw[:31]
	}
	ver := []byte(s.Version)
	if len(ver) > 31 {
		ver = ver[:31]
	}

	b := make([]byte, 1+len(hw)+1+len(ver)+1)
	off := 0
	b[off] = byte(len(hw))
	off++
	copy(b[off:], hw)
	off += len(hw)
	b[off] = byte(len(ver))
	off++
	copy(b[off:], ver)
	off += len(ver)
	b[off] = s.Capabilities.encode()
	return b
}

// DecodeSystemInfo parses a SystemInfo payload.
func DecodeSystemInfo(b []byte) (SystemInfo, error) {
	if len(b) < 2 {
		return SystemInfo{}, fmt.Errorf("link: SystemInfo payload too short: %d bytes", len(b))
	}
	off := 0
	hwLen := int(b[off])
	off++
	if off+hwLen > len(b) {
		return SystemInfo{}, fmt.Errorf("link: SystemInfo hardware field truncated")
	}
	hw := string(b[off : off+hwLen])
	off += hwLen

	if off >= len(b) {
		return SystemInfo{}, fmt.Errorf("link: SystemInfo payload truncated before version field")
	}
	verLen := int(b[off])
	off++
	if off+verLen > len(b) {
		return SystemInfo{}, fmt.Errorf("link: SystemInfo version field truncated")
	}
	ver := string(b[off : off+verLen])
	off += verLen

	if off >= len(b) {
		return SystemInfo{}, fmt.Errorf("link: SystemInfo payload missing capabilities byte")
	}
	caps := decodeCapabilities(b[off])

	return SystemInfo{Hardware: hw, Version: ver, Capabilities: caps}, nil
}

// EncodeErrorPayload serializes an Error message payload (a single kind
// byte; the detail string never crosses the wire).
func EncodeErrorPayload(kind ErrorKind) []byte {
	return []byte{byte(kind)}
}

// DecodeErrorPayload parses an Error message payload.
func DecodeErrorPayload(b []byte) (ErrorKind, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("link: Error payload is %d bytes, want 1", len(b))
	}
	return ErrorKind(b[0]), nil
}

// EncodeBoolPayload serializes the single-bool payload shared by LedControl
// (brightness byte) / AltControl / Tare's "armed" companion messages.
func EncodeBoolPayload(v bool) []byte {
	b := make([]byte, 1)
	putBool(b, v)
	return b
}

// DecodeBoolPayload parses a single-bool payload.
func DecodeBoolPayload(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, fmt.Errorf("link: bool payload is %d bytes, want 1", len(b))
	}
	return b[0] != 0, nil
}
