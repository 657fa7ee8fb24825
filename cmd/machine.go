// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/thermoline/espresso/pkg/link"
	"github.com/thermoline/espresso/pkg/machine"
)

const (
	machineTickPeriod  = 250 * time.Millisecond
	machinePumpPeriod  = 20 * time.Millisecond
	machineHeaterBandW = 0.15 // heater-duty-to-degrees-per-second gain, bench plant
	machineAmbientC    = 22.0
	machineCoolingRate = 0.01
)

var (
	machineSimPressure bool
	machineHardwareID  string
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Run the Machine Node supervisor loop against a simulated hardware backend",
	Long: `Run the Machine Node's supervisor loop (thermal PID, pump control, link
server) over a serial or WebSocket transport, with a simulated thermal/
hydraulic plant standing in for the real boiler and pump sensors.

On transport loss the command reopens the connection and restarts the
supervisor, mirroring how the embedded board would resume after a bench
rig reconnects the wire.`,
	RunE: runMachine,
}

func init() {
	rootCmd.AddCommand(machineCmd)
	machineCmd.Flags().BoolVar(&machineSimPressure, "dimming", false, "simulate a dimmed-pump board (pressure/flow control) instead of a bare relay pump")
	machineCmd.Flags().StringVar(&machineHardwareID, "hardware", "bench-sim", "hardware identifier reported in SystemInfo")
}

func runMachine(cmd *cobra.Command, args []string) error {
	info := link.SystemInfo{
		Hardware: machineHardwareID,
		Version:  rootCmd.Version,
		Capabilities: link.Capabilities{
			Dimming: machineSimPressure,
		},
	}

	for {
		transport, connInfo, err := OpenTransport()
		if err != nil {
			return err
		}
		fmt.Printf("machine: connected (%s)\n", connInfo)

		if err := runMachineSession(transport, info); err != nil {
			fmt.Fprintf(os.Stderr, "machine: session ended: %v\n", err)
		}
		transport.Close()

		fmt.Println("machine: reopening transport in 1s...")
		time.Sleep(1 * time.Second)
	}
}

// runMachineSession wires one MachineSupervisor around a freshly-opened
// transport and runs it until the link drops.
func runMachineSession(transport link.Transport, info link.SystemInfo) error {
	now := time.Now()
	server := link.NewServer(transport, now)

	hw := machine.Hardware{
		Heater: &machine.LoggingOutput{Name: "heater"},
		Valve:  &machine.LoggingOutput{Name: "valve"},
		Alt:    &machine.LoggingOutput{Name: "alt"},
	}

	heater := machine.NewHeater(hw.Heater, 8, 0.5, 2)

	var pump machine.Pump
	var controller *machine.PressureController
	if info.Capabilities.Dimming {
		psm := &simPhaseAngle{}
		controller = machine.NewPressureController(float32(machinePumpPeriod.Seconds()))
		dp := machine.NewDimmedPump(psm, nil, controller)
		pump = dp
		hw.Pump = psm
	} else {
		psm := &machine.LoggingOutput{Name: "pump"}
		pump = machine.NewSimplePump(psm, 5*time.Second)
	}

	sup := machine.NewMachineSupervisor(hw, server, heater, pump, info)
	if controller != nil {
		sup.Controller = controller
	}
	sup.Start(now)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(sup.HandleLinkError) }()

	plant := newBenchPlant()

	ticker := time.NewTicker(machineTickPeriod)
	defer ticker.Stop()
	pumpTicker := time.NewTicker(machinePumpPeriod)
	defer pumpTicker.Stop()

	for {
		select {
		case err := <-errCh:
			server.Close()
			return err
		case now := <-pumpTicker.C:
			plant.step(sup, now)
			pump.Step(now)
		case now := <-ticker.C:
			if err := sup.Tick(now); err != nil {
				server.Close()
				return err
			}
			fmt.Printf("\rtemp=%.1fC pressure=%.2fbar duty=%.0f%%   ",
				sup.Thermal.Latest(), sup.Pressure.Latest(), heater.Duty()*100)
		}
	}
}

// benchPlant is a first-order thermal/pressure simulation standing in for
// the real boiler and pump sensors, so `machine` is runnable without real
// hardware attached.
type benchPlant struct {
	tempC     float32
	pressure  float32
	lastStep  time.Time
}

func newBenchPlant() *benchPlant {
	return &benchPlant{tempC: machineAmbientC}
}

func (p *benchPlant) step(sup *machine.MachineSupervisor, now time.Time) {
	if p.lastStep.IsZero() {
		p.lastStep = now
	}
	dt := float32(now.Sub(p.lastStep).Seconds())
	p.lastStep = now

	duty := sup.Heater.Duty()
	p.tempC += duty / 100 * machineHeaterBandW * dt * 100
	p.tempC -= (p.tempC - machineAmbientC) * machineCoolingRate * dt
	sup.Heater.Step(now, p.tempC+jitter(0.1), dt)
	sup.Thermal.Update(machine.Reading{Value: p.tempC + jitter(0.1), Valid: true})

	if dp, ok := sup.Pump.(*machine.DimmedPump); ok {
		p.pressure += (dp.LastDuty()/100*9 - p.pressure) * 0.1
		dp.Pressure.Update(machine.Reading{Value: p.pressure, Valid: true})
		dp.Rpm.Update(machine.Reading{Value: dp.LastDuty() / 100 * 3000, Valid: true})
	}
	sup.Pressure.Update(machine.Reading{Value: p.pressure, Valid: true})
}

func jitter(amplitude float32) float32 {
	return (rand.Float32()*2 - 1) * amplitude
}

// simPhaseAngle is a no-op PhaseAngleOutput/AnalogOutput-free simulated
// dimmer, standing in for the real mains phase-angle modulator.
type simPhaseAngle struct {
	lastPercent float32
}

func (s *simPhaseAngle) SetPower(percent float32) error {
	s.lastPercent = percent
	return nil
}
