// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

import (
	"time"

	"github.com/thermoline/espresso/pkg/link"
)

// MachineSupervisor owns every actuator exclusively (spec §3.3) and is the
// sole writer of heater/pump/valve/alt state. It dispatches inbound link
// messages, emits SensorData telemetry, and enforces the two safety
// invariants that must hold regardless of what the Display Node asks for:
// a ping timeout or a latched thermal runaway always wins.
type MachineSupervisor struct {
	hw     Hardware
	server *link.Server

	Thermal  *ThermalSensor
	Pressure *PressureSensor
	Rpm      *RpmSensor

	Heater     *Heater
	Pump       Pump
	Controller *PressureController // nil for SimplePump builds

	valveOpen bool
	altOn     bool

	systemInfo link.SystemInfo
	connectedAt time.Time
	sentSystemInfo bool

	errProtoRate *protoErrRateLimiter
}

// NewMachineSupervisor wires a supervisor around an already-open link
// server and the board's actuator/sensor set.
func NewMachineSupervisor(hw Hardware, server *link.Server, heater *Heater, pump Pump, info link.SystemInfo) *MachineSupervisor {
	s := &MachineSupervisor{
		hw:           hw,
		server:       server,
		Thermal:      &ThermalSensor{},
		Pressure:     NewPressureSensor(),
		Rpm:          &RpmSensor{},
		Heater:       heater,
		Pump:         pump,
		systemInfo:   info,
		errProtoRate: newProtoErrRateLimiter(10, time.Second),
	}
	heater.OnRunaway(func() { s.forceSafeShutdown() })
	server.SetHandler(s.handleFrame)
	return s
}

// ValveOpen reports the group valve's commanded state, for telemetry and
// tests.
func (s *MachineSupervisor) ValveOpen() bool { return s.valveOpen }

// Start marks the connection as freshly established; call once per new
// transport. The caller's Supervisor tick loop must call SendSystemInfo
// within SystemInfoDeadline of this call (spec §4.7).
func (s *MachineSupervisor) Start(now time.Time) {
	s.connectedAt = now
	s.sentSystemInfo = false
}

// SendSystemInfo sends the one-time SystemInfo handshake message if it
// hasn't been sent yet for this connection.
func (s *MachineSupervisor) SendSystemInfo() error {
	if s.sentSystemInfo {
		return nil
	}
	if err := s.server.Send(link.MsgSystemInfo, link.EncodeSystemInfo(s.systemInfo)); err != nil {
		return err
	}
	s.sentSystemInfo = true
	return nil
}

// handleFrame dispatches one decoded inbound frame to the relevant
// actuator/config update. Unknown message types and payloads that fail to
// decode are ignored without reporting an error.
func (s *MachineSupervisor) handleFrame(f *link.Frame) {
	switch f.Type {
	case link.MsgOutputControl:
		c, err := link.DecodeControlRequest(f.Payload)
		if err != nil {
			return
		}
		s.applyControl(c)
	case link.MsgPidSettings:
		p, err := link.DecodePidTunings(f.Payload)
		if err != nil || p.Kp < 0 || p.Ki < 0 || p.Kd < 0 {
			return // spec §7: invalid tunings rejected, previous values retained
		}
		s.Heater.SetTunings(p.Kp, p.Ki, p.Kd)
	case link.MsgPumpModel:
		m, err := link.DecodePumpModel(f.Payload)
		if err != nil {
			return
		}
		if s.Controller != nil {
			s.Controller.SetPumpModel(NewPumpModel(m))
		}
	case link.MsgAutotune:
		a, err := link.DecodeAutotuneCommand(f.Payload)
		if err != nil {
			return
		}
		s.Heater.StartAutotune(a, s.Thermal.Latest(), time.Now())
	case link.MsgPressureScale:
		p, err := link.DecodePressureScale(f.Payload)
		if err != nil {
			return
		}
		s.Pressure.SetScale(p.Scale, p.Offset)
	case link.MsgTare:
		if s.Controller != nil {
			s.Controller.Tare()
		}
	case link.MsgLedControl, link.MsgAltControl:
		v, err := link.DecodeBoolPayload(f.Payload)
		if err != nil {
			return
		}
		if f.Type == link.MsgAltControl {
			s.altOn = v
			s.hw.Alt.Set(v)
		}
	}
}

// applyControl applies an OutputControl message to the owned actuators
// (spec §3.1: "Applied on receipt").
func (s *MachineSupervisor) applyControl(c link.ControlRequest) {
	if s.Heater.Runaway() == RunawayTripped {
		return // latched; no OutputControl can re-enable heat (Testable Property 4)
	}

	s.Heater.SetSetpoint(c.BoilerSetpointC)
	s.valveOpen = c.ValveOpen
	s.hw.Valve.Set(c.ValveOpen)

	switch {
	case c.HasAdvanced && c.Advanced.Target == link.AdvancedTargetPressure:
		if dp, ok := s.Pump.(*DimmedPump); ok {
			dp.SetPressureTarget(c.Advanced.PressureBar)
			dp.SetValveOpen(c.ValveOpen)
			return
		}
	case c.HasAdvanced && c.Advanced.Target == link.AdvancedTargetFlow:
		if dp, ok := s.Pump.(*DimmedPump); ok {
			dp.SetFlowTarget(c.Advanced.FlowMlps)
			dp.SetValveOpen(c.ValveOpen)
			return
		}
	}
	if dp, ok := s.Pump.(*DimmedPump); ok {
		dp.SetValveOpen(c.ValveOpen)
	}
	s.Pump.SetPower(c.PumpSetpointPct)
}

// forceSafeShutdown commands every actuator off, per spec §3.3's
// invariants for both the ping-timeout and thermal-runaway triggers.
func (s *MachineSupervisor) forceSafeShutdown() {
	s.Heater.SetSetpoint(0)
	s.Pump.SetPower(0)
	s.valveOpen = false
	s.hw.Valve.Set(false)
	s.altOn = false
	s.hw.Alt.Set(false)
}

// Tick runs one Supervisor-task period (250ms, spec §5): samples the
// watchdog and, if it has (newly or still) latched, forces SafeShutdown;
// otherwise emits the periodic SensorData telemetry frame.
func (s *MachineSupervisor) Tick(now time.Time) error {
	if s.server.Watchdog().Sample(now) {
		s.forceSafeShutdown()
		return nil
	}

	if !s.sentSystemInfo && now.Sub(s.connectedAt) <= link.SystemInfoDeadline {
		if err := s.SendSystemInfo(); err != nil {
			return err
		}
	}

	if s.Thermal.Healthy() {
		s.Heater.SensorRecovered()
	} else {
		s.Heater.SensorFault()
	}

	if result, ready := s.Heater.AutotuneResult(); ready {
		if err := s.server.Send(link.MsgAutotuneResult, link.EncodeAutotuneResult(result)); err != nil {
			return err
		}
	}

	frame := link.SensorFrame{
		TemperatureC: s.Thermal.Latest(),
		PressureBar:  s.Pressure.Latest(),
	}
	if s.Controller != nil {
		frame.PumpFlowMlps = s.Controller.PumpFlowRate()
		frame.PuckFlowMlps = s.Controller.CoffeeFlowRate()
		frame.PuckResistance = s.Controller.PuckResistance()
	}
	return s.server.Send(link.MsgSensorData, link.EncodeSensorFrame(frame))
}

// HandleLinkError is the Server.Run ErrHandler: it reports a ProtoErr and,
// once the rate exceeds the spec §7 threshold ("repeated occurrences (>N/s)
// cause the receiver to force a reconnect"), closes the transport so the
// Display Node's Client reconnects cleanly rather than limping along on a
// corrupted stream.
func (s *MachineSupervisor) HandleLinkError(err error) {
	s.server.Send(link.MsgError, link.EncodeErrorPayload(link.ErrorProtoErr))
	if s.errProtoRate.Record(time.Now()) {
		s.server.Close()
	}
}

// protoErrRateLimiter counts ProtoErr occurrences in a sliding window and
// reports when a reconnect should be forced (spec §7: "repeated
// occurrences (>N/s) cause the receiver to force a reconnect").
type protoErrRateLimiter struct {
	max    int
	window time.Duration
	times  []time.Time
}

func newProtoErrRateLimiter(max int, window time.Duration) *protoErrRateLimiter {
	return &protoErrRateLimiter{max: max, window: window}
}

// Record notes one ProtoErr occurrence at now and reports whether the rate
// has exceeded the configured threshold.
func (r *protoErrRateLimiter) Record(now time.Time) bool {
	cutoff := now.Add(-r.window)
	kept := r.times[:0]
	for _, t := range r.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.times = append(kept, now)
	return len(r.times) > r.max
}
