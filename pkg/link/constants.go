// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link implements the wire protocol shared by the Machine Node and
// Display Node: frame encode/decode, a coalescing outbound queue, a ping
// liveness watchdog, and the LinkServer/LinkClient transport wrappers built
// on top of them.
package link

// Frame size limits. The core never needs a message larger than 128 payload
// bytes; anything exceeding the transport MTU is rejected outright.
const (
	HeaderSize     = 5 // u16 len + u8 msg_type + u16 seq
	TrailerSize    = 2
	MaxPayloadSize = 128
	MaxFrameSize   = 256 // transport MTU
)

// MessageType identifies the schema of a frame's payload. Wire values are
// stable and must not be renumbered.
type MessageType uint8

const (
	MsgPing MessageType = iota + 1
	MsgOutputControl
	MsgPidSettings
	MsgPumpModel
	MsgAutotune
	MsgPressureScale
	MsgTare
	MsgLedControl
	MsgAltControl
	MsgError
	MsgSensorData
	MsgBrewButton
	MsgSteamButton
	MsgAutotuneResult
	MsgVolumetric
	MsgTof
	MsgSystemInfo
)

var messageTypeNames = map[MessageType]string{
	MsgPing:           "Ping",
	MsgOutputControl:  "OutputControl",
	MsgPidSettings:    "PidSettings",
	MsgPumpModel:      "PumpModel",
	MsgAutotune:       "Autotune",
	MsgPressureScale:  "PressureScale",
	MsgTare:           "Tare",
	MsgLedControl:     "LedControl",
	MsgAltControl:     "AltControl",
	MsgError:          "Error",
	MsgSensorData:     "SensorData",
	MsgBrewButton:     "BrewButton",
	MsgSteamButton:    "SteamButton",
	MsgAutotuneResult: "AutotuneResult",
	MsgVolumetric:     "Volumetric",
	MsgTof:            "Tof",
	MsgSystemInfo:     "SystemInfo",
}

// String implements fmt.Stringer for log/CLI output.
func (m MessageType) String() string {
	if name, ok := messageTypeNames[m]; ok {
		return name
	}
	return "Unknown"
}

// IsValid reports whether m is one of the defined message types.
func (m MessageType) IsValid() bool {
	_, ok := messageTypeNames[m]
	return ok
}

// ErrorKind is the §3.1 enumerated Error, exposed on the wire as a single
// byte payload.
type ErrorKind uint8

const (
	ErrorCommSend ErrorKind = iota + 1
	ErrorCommRecv
	ErrorProtoErr
	ErrorRunaway
	ErrorTimeout
)

var errorKindNames = map[ErrorKind]string{
	ErrorCommSend: "CommSend",
	ErrorCommRecv: "CommRecv",
	ErrorProtoErr: "ProtoErr",
	ErrorRunaway:  "Runaway",
	ErrorTimeout:  "Timeout",
}

func (e ErrorKind) String() string {
	if name, ok := errorKindNames[e]; ok {
		return name
	}
	return "Unknown"
}

// Error is the internal representation of a propagated protocol/safety
// error, matching the taxonomy of spec §7.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

// NewError builds an *Error with the given kind and detail message.
func NewError(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}
