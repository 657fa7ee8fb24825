// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"testing"
)

func TestCalculateCRC_KnownValue(t *testing.T) {
	got := calculateCRC([]byte("123456789"))
	const want = 0x29B1 // standard CRC-16-CCITT check value
	if got != want {
		t.Errorf("CRC mismatch: want 0x%04X, got 0x%04X", want, got)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		seq     uint16
		payload []byte
	}{
		{"ping, empty payload", MsgPing, 1, nil},
		{"sensor frame", MsgSensorData, 42, bytes.Repeat([]byte{0xAB}, 20)},
		{"max payload", MsgOutputControl, 65535, bytes.Repeat([]byte{0x01}, MaxPayloadSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Encode(tt.msgType, tt.seq, tt.payload)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			wantLen := HeaderSize + len(tt.payload) + TrailerSize
			if len(buf) != wantLen {
				t.Fatalf("encoded length: want %d, got %d", wantLen, len(buf))
			}

			frame, consumed, err := Decode(buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if consumed != len(buf) {
				t.Errorf("consumed: want %d, got %d", len(buf), consumed)
			}
			if frame.Type != tt.msgType {
				t.Errorf("Type: want %v, got %v", tt.msgType, frame.Type)
			}
			if frame.Seq != tt.seq {
				t.Errorf("Seq: want %d, got %d", tt.seq, frame.Seq)
			}
			if !bytes.Equal(frame.Payload, tt.payload) {
				t.Errorf("Payload mismatch: want % X, got % X", tt.payload, frame.Payload)
			}
		})
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	_, err := Encode(MsgSensorData, 1, make([]byte, MaxPayloadSize+1))
	if err == nil {
		t.Fatal("expected error for oversized payload, got nil")
	}
}

func TestDecode_Incomplete(t *testing.T) {
	buf, err := Encode(MsgPing, 1, []byte{0xAA, 0xBB})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	frame, consumed, err := Decode(buf[:HeaderSize+1])
	if err != nil {
		t.Fatalf("unexpected error on truncated frame: %v", err)
	}
	if frame != nil || consumed != 0 {
		t.Errorf("expected (nil, 0) for incomplete frame, got (%v, %d)", frame, consumed)
	}
}

func TestDecode_UnknownMsgType_ResynchronizesAtHeader(t *testing.T) {
	buf, err := Encode(MsgPing, 1, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf[2] = 0xFE // corrupt msg_type to an undefined value

	frame, consumed, err := Decode(buf)
	if frame != nil {
		t.Errorf("expected nil frame on malformed header, got %+v", frame)
	}
	if consumed != HeaderSize {
		t.Errorf("expected resync consuming %d bytes, got %d", HeaderSize, consumed)
	}
	if err == nil {
		t.Fatal("expected a protocol error")
	} else if e, ok := err.(*Error); !ok || e.Kind != ErrorProtoErr {
		t.Errorf("expected ErrorProtoErr, got %v (%T)", err, err)
	}
}

func TestAssembler_ResynchronizesPastGarbage(t *testing.T) {
	good1, _ := Encode(MsgPing, 1, nil)
	good2, _ := Encode(MsgSensorData, 2, []byte{1, 2, 3})

	stream := append(append(append([]byte{}, good1...), []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xFF}...), good2...)

	a := NewAssembler()
	a.Push(stream)

	var frames []*Frame
	var errs int
	for {
		f, err := a.Next()
		if err != nil {
			errs++
			continue
		}
		if f == nil {
			break
		}
		frames = append(frames, f)
	}

	if len(frames) != 2 {
		t.Fatalf("expected 2 recovered frames, got %d", len(frames))
	}
	if frames[0].Type != MsgPing || frames[1].Type != MsgSensorData {
		t.Errorf("unexpected frame types: %v, %v", frames[0].Type, frames[1].Type)
	}
	if errs == 0 {
		t.Error("expected at least one decode error from the garbage bytes")
	}
}

func TestMessageType_StringAndValid(t *testing.T) {
	if !MsgSystemInfo.IsValid() {
		t.Error("MsgSystemInfo should be valid")
	}
	if MessageType(0).IsValid() {
		t.Error("MessageType(0) should not be valid")
	}
	if got := MessageType(0).String(); got != "Unknown" {
		t.Errorf("String() for invalid type: want Unknown, got %q", got)
	}
}
