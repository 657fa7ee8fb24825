// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"net"
	"testing"
	"time"
)

func newPipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	remote, local := net.Pipe()
	c, err := NewClient(func() (Transport, error) { return local, nil }, 4)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, remote
}

func TestClient_ControlGatedUntilSystemInfo(t *testing.T) {
	c, remote := newPipeClient(t)
	defer remote.Close()
	defer c.Close()

	go c.Run(nil, nil, nil)

	if c.EnqueueControl(MsgOutputControl, 1, nil) {
		t.Fatal("expected OutputControl to be refused before SystemInfo arrives")
	}
	if !c.EnqueueControl(MsgPing, 1, nil) {
		t.Fatal("Ping must always be accepted regardless of the gate")
	}

	buf, _ := Encode(MsgSystemInfo, 1, EncodeSystemInfo(SystemInfo{Hardware: "x"}))
	remote.Write(buf)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !c.Ready() {
		time.Sleep(10 * time.Millisecond)
	}
	if !c.Ready() {
		t.Fatal("client never observed SystemInfo")
	}
	if !c.EnqueueControl(MsgOutputControl, 1, nil) {
		t.Fatal("expected OutputControl to be accepted after SystemInfo arrives")
	}
}

func TestClient_DrainControlSendsCoalescedEntry(t *testing.T) {
	c, remote := newPipeClient(t)
	defer remote.Close()
	defer c.Close()

	go c.Run(nil, nil, nil)

	buf, _ := Encode(MsgSystemInfo, 1, EncodeSystemInfo(SystemInfo{}))
	remote.Write(buf)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !c.Ready() {
		time.Sleep(10 * time.Millisecond)
	}

	c.EnqueueControl(MsgOutputControl, 5, []byte{1})
	c.EnqueueControl(MsgOutputControl, 5, []byte{2}) // coalesces, only the newer payload should be sent

	readDone := make(chan *Frame, 1)
	go func() {
		rbuf := make([]byte, MaxFrameSize)
		n, err := remote.Read(rbuf)
		if err != nil {
			return
		}
		f, _, _ := Decode(rbuf[:n])
		readDone <- f
	}()

	if err := c.DrainControl(); err != nil {
		t.Fatalf("DrainControl: %v", err)
	}

	select {
	case f := <-readDone:
		if f == nil || f.Type != MsgOutputControl || len(f.Payload) != 1 || f.Payload[0] != 2 {
			t.Fatalf("expected coalesced OutputControl with payload [2], got %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for drained frame")
	}
}

func TestClient_ReconnectsAfterTransportFailure(t *testing.T) {
	firstRemote, firstLocal := net.Pipe()
	secondRemote, secondLocal := net.Pipe()
	defer secondRemote.Close()

	dials := 0
	dial := func() (Transport, error) {
		dials++
		if dials == 1 {
			return firstLocal, nil
		}
		return secondLocal, nil
	}

	c, err := NewClient(dial, 4)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	reconnected := make(chan struct{}, 1)
	go c.Run(nil, nil, func() { reconnected <- struct{}{} })

	firstRemote.Close() // simulate link drop

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("client never reconnected after the first transport closed")
	}
	if dials < 2 {
		t.Fatalf("expected at least 2 dial attempts, got %d", dials)
	}
}
