// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"sync"
	"sync/atomic"
	"time"
)

// SystemInfoDeadline is the maximum delay after connection before the
// Machine Node must send SystemInfo (spec §4.7).
const SystemInfoDeadline = 500 * time.Millisecond

// Server is the Machine Node side of the link: it decodes inbound frames
// off a Transport, dispatches them to a Handler, and exposes Send for
// outbound telemetry/SystemInfo/Error frames. It also tracks Ping liveness
// for the watchdog (spec §4.1.2) — sampling and the SafeShutdown reaction
// belong to the caller (MachineSupervisor), not to Server itself.
type Server struct {
	transport Transport
	watchdog  *Watchdog

	mu      sync.Mutex
	handler Handler

	seq atomic.Uint32

	assembler *Assembler
	readBuf   []byte

	closeOnce sync.Once
	done      chan struct{}
}

// Handler is invoked once per successfully-decoded frame. A decode error
// (malformed header, MTU violation) is reported separately via
// ErrHandler and never reaches Handler.
type Handler func(*Frame)

// ErrHandler is invoked once per frame-level decode error.
type ErrHandler func(error)

// NewServer wraps transport. now seeds the liveness watchdog so a
// freshly-connected link isn't immediately considered timed out.
func NewServer(transport Transport, now time.Time) *Server {
	return &Server{
		transport: transport,
		watchdog:  NewWatchdog(now),
		assembler: NewAssembler(),
		readBuf:   make([]byte, MaxFrameSize),
		done:      make(chan struct{}),
	}
}

// SetHandler installs the frame-dispatch callback. Must be called before
// Run.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Watchdog exposes the liveness tracker so the Supervisor task can sample
// it and react to a timeout (spec §4.1.2).
func (s *Server) Watchdog() *Watchdog { return s.watchdog }

// Run reads from the transport until it closes or Close is called,
// decoding frames and dispatching them to the installed Handler. A Ping
// frame is intercepted to update the watchdog before dispatch so handlers
// never need to special-case it. Run blocks; call it from its own
// goroutine (the Supervisor task's suspension point, per spec §5).
func (s *Server) Run(onErr ErrHandler) error {
	for {
		select {
		case <-s.done:
			return nil
		default:
		}

		n, err := s.transport.Read(s.readBuf)
		if err != nil {
			return err
		}
		s.assembler.Push(s.readBuf[:n])

		for {
			frame, decodeErr := s.assembler.Next()
			if decodeErr != nil {
				if onErr != nil {
					onErr(decodeErr)
				}
				continue // resynchronize and keep draining
			}
			if frame == nil {
				break // need more bytes
			}
			if frame.Type == MsgPing {
				s.watchdog.RecordPing(time.Now())
			}
			s.mu.Lock()
			h := s.handler
			s.mu.Unlock()
			if h != nil {
				h(frame)
			}
		}
	}
}

// Send encodes and writes a single frame with an internally-assigned
// monotonic sequence number. Sequence numbers are advisory (spec §4.1) —
// the underlying transport is assumed ordered.
func (s *Server) Send(msgType MessageType, payload []byte) error {
	seq := uint16(s.seq.Add(1))
	buf, err := Encode(msgType, seq, payload)
	if err != nil {
		return NewError(ErrorCommSend, err.Error())
	}
	if _, err := s.transport.Write(buf); err != nil {
		return NewError(ErrorCommSend, err.Error())
	}
	return nil
}

// Close stops Run and closes the underlying transport.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.transport.Close()
}
