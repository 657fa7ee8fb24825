// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package display

import (
	"net"
	"testing"
	"time"

	"github.com/thermoline/espresso/pkg/link"
	"github.com/thermoline/espresso/pkg/machine"
)

// newTestMachine wires a real MachineSupervisor around one end of a
// net.Pipe, the way cmd/machine.go does against a real transport.
func newTestMachine(t *testing.T, conn net.Conn) *machine.MachineSupervisor {
	t.Helper()
	now := time.Now()
	server := link.NewServer(conn, now)
	heater := machine.NewHeater(&machine.LoggingOutput{Name: "heater"}, 8, 0.5, 2)
	pump := machine.NewSimplePump(&machine.LoggingOutput{Name: "pump"}, 5*time.Second)
	hw := machine.Hardware{
		Heater: &machine.LoggingOutput{Name: "heater"},
		Valve:  &machine.LoggingOutput{Name: "valve"},
		Alt:    &machine.LoggingOutput{Name: "alt"},
	}
	sup := machine.NewMachineSupervisor(hw, server, heater, pump, link.SystemInfo{Hardware: "bench"})
	sup.Start(now)
	go server.Run(sup.HandleLinkError)
	t.Cleanup(func() { server.Close() })
	return sup
}

// TestColdStartThroughBrewStart is seed scenario S1: a freshly connected
// Machine Node and Display Node, from first contact through the Display
// Node issuing a brew command that the Machine Node applies to its
// actuators — exercising the SystemInfo handshake, the outbound gate, the
// coalescing control queue, and the Machine Node's handleFrame dispatch
// end to end, across both supervisors.
func TestColdStartThroughBrewStart(t *testing.T) {
	machineConn, displayConn := net.Pipe()
	t.Cleanup(func() { machineConn.Close() })

	msup := newTestMachine(t, machineConn)

	dialed := false
	client, err := link.NewClient(func() (link.Transport, error) {
		if dialed {
			return nil, net.ErrClosed
		}
		dialed = true
		return displayConn, nil
	}, 16)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	var gotInfo link.SystemInfo
	infoSeen := make(chan struct{})
	infoOnce := false
	go client.Run(func(f *link.Frame) {
		if f.Type == link.MsgSystemInfo && !infoOnce {
			infoOnce = true
			gotInfo, _ = link.DecodeSystemInfo(f.Payload)
			close(infoSeen)
		}
	}, nil, nil)

	// Drive the Machine Node's periodic tick so it sends SystemInfo within
	// its deadline and keeps ticking thereafter (spec §4.7 / §5).
	stopTicking := make(chan struct{})
	t.Cleanup(func() { close(stopTicking) })
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopTicking:
				return
			case now := <-ticker.C:
				msup.Tick(now)
			}
		}
	}()

	select {
	case <-infoSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("Display Node never received SystemInfo")
	}
	if gotInfo.Hardware != "bench" {
		t.Errorf("expected hardware=bench, got %q", gotInfo.Hardware)
	}

	deadline := time.Now().Add(time.Second)
	for !client.Ready() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !client.Ready() {
		t.Fatal("client outbound gate never opened")
	}

	settings := NewInMemorySettingsStore()
	dsup := NewDisplaySupervisor(client, settings)

	profile := Profile{
		ID:           "e2e",
		TemperatureC: 93,
		Phases: []Phase{{
			Name:      "brew",
			Kind:      PhaseBrew,
			Valve:     true,
			DurationS: 30,
			Pump:      PumpSetpoint{Percent: 100},
			Targets:   []Target{{Kind: TargetTime, Op: OpGreaterEqual, Value: 30}},
		}},
	}
	dsup.HandleBrewButton(time.Now(), profile) // Standby -> Brew(idle)
	dsup.HandleBrewButton(time.Now(), profile) // Brew(idle) -> Brew(active): starts the process
	if err := dsup.Tick(time.Now(), 50*time.Millisecond); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for !msup.ValveOpen() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !msup.ValveOpen() {
		t.Fatal("expected Machine Node to open the valve after the brew's OutputControl arrived")
	}
}
