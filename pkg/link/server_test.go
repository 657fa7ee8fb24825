// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"net"
	"testing"
	"time"
)

func TestServer_DispatchesDecodedFrames(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	srv := NewServer(serverSide, time.Now())
	received := make(chan *Frame, 1)
	srv.SetHandler(func(f *Frame) { received <- f })

	go srv.Run(nil)
	defer srv.Close()

	buf, err := Encode(MsgBrewButton, 1, []byte{1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := clientSide.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case f := <-received:
		if f.Type != MsgBrewButton {
			t.Errorf("want MsgBrewButton, got %v", f.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched frame")
	}
}

func TestServer_PingUpdatesWatchdog(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	past := time.Now().Add(-PingTimeout - time.Second)
	srv := NewServer(serverSide, past)
	srv.SetHandler(func(*Frame) {})

	go srv.Run(nil)
	defer srv.Close()

	if !srv.Watchdog().Sample(time.Now()) {
		t.Fatal("expected watchdog to report timeout before any ping")
	}

	buf, _ := Encode(MsgPing, 1, nil)
	clientSide.Write(buf)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !srv.Watchdog().ShuttingDown() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watchdog never cleared after receiving a Ping")
}

func TestServer_SendWritesEncodedFrame(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	srv := NewServer(serverSide, time.Now())
	go srv.Run(nil)
	defer srv.Close()

	done := make(chan struct{})
	var gotFrame *Frame
	go func() {
		defer close(done)
		buf := make([]byte, MaxFrameSize)
		n, err := clientSide.Read(buf)
		if err != nil {
			return
		}
		f, _, _ := Decode(buf[:n])
		gotFrame = f
	}()

	payload := EncodeSensorFrame(SensorFrame{TemperatureC: 93})
	if err := srv.Send(MsgSensorData, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sent frame")
	}
	if gotFrame == nil || gotFrame.Type != MsgSensorData {
		t.Fatalf("expected a decoded SensorData frame, got %+v", gotFrame)
	}
}
