// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"sync"
	"sync/atomic"
	"time"
)

// ReconnectMinBackoff and ReconnectMaxBackoff bound the exponential backoff
// used while reacquiring a dropped link (spec §7).
const (
	ReconnectMinBackoff = 1 * time.Second
	ReconnectMaxBackoff = 30 * time.Second
)

// Dialer opens a fresh Transport to the Machine Node, used by Client to
// reconnect after a link drop.
type Dialer func() (Transport, error)

// Client is the Display Node side of the link. Outbound high-frequency
// control (OutputControl, AltControl) is serialised through an internal
// CoalescingQueue and drained on a fixed tick by ControlEmit — only that
// task may drain it (spec §5). Queued control is gated: EnqueueControl
// refuses anything but Ping until SystemInfo has been received from the
// Machine Node (spec §4.7). SendImmediate and SendPing are not gated.
type Client struct {
	dial Dialer

	mu        sync.Mutex
	transport Transport
	assembler *Assembler

	queue *CoalescingQueue
	seq   atomic.Uint32

	gotSystemInfo atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient dials transport via dial and prepares an outbound coalescing
// queue of the given capacity (spec §4.1.1 — bounded, not unbounded).
func NewClient(dial Dialer, queueCapacity int) (*Client, error) {
	transport, err := dial()
	if err != nil {
		return nil, err
	}
	return &Client{
		dial:      dial,
		transport: transport,
		assembler: NewAssembler(),
		queue:     NewCoalescingQueue(queueCapacity),
		done:      make(chan struct{}),
	}, nil
}

func (c *Client) getTransport() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

func (c *Client) setTransport(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = t
}

// Run reads frames until the transport fails, reconnecting with
// exponential backoff (spec §7) and resuming dispatch. It returns only
// when Close has been called. A SystemInfo frame clears the outbound gate;
// every decoded frame, SystemInfo included, is handed to onFrame. onErr receives frame-level
// decode errors (spec §4.1's "decoding is stateless" — a bad header never
// stalls the stream).
func (c *Client) Run(onFrame Handler, onErr ErrHandler, onReconnect func()) {
	buf := make([]byte, MaxFrameSize)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		transport := c.getTransport()
		n, err := transport.Read(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if !c.reconnect() {
				return
			}
			if onReconnect != nil {
				onReconnect()
			}
			continue
		}

		c.assembler.Push(buf[:n])
		for {
			frame, decodeErr := c.assembler.Next()
			if decodeErr != nil {
				if onErr != nil {
					onErr(decodeErr)
				}
				continue
			}
			if frame == nil {
				break
			}
			if frame.Type == MsgSystemInfo {
				c.gotSystemInfo.Store(true)
			}
			if onFrame != nil {
				onFrame(frame)
			}
		}
	}
}

// reconnect blocks with exponential backoff until a new transport is
// dialed or Close is called. Returns false if shutdown was requested.
func (c *Client) reconnect() bool {
	if old := c.getTransport(); old != nil {
		old.Close()
	}
	c.gotSystemInfo.Store(false)

	backoff := ReconnectMinBackoff
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(backoff):
		}

		transport, err := c.dial()
		if err == nil {
			c.setTransport(transport)
			c.assembler = NewAssembler()
			return true
		}

		backoff *= 2
		if backoff > ReconnectMaxBackoff {
			backoff = ReconnectMaxBackoff
		}
	}
}

// Ready reports whether SystemInfo has been received, i.e. whether outbound
// control is unblocked (spec §4.7).
func (c *Client) Ready() bool { return c.gotSystemInfo.Load() }

// EnqueueControl coalesces an outbound control message keyed by msgType,
// replacing any not-yet-sent entry of the same type (spec §4.1.1). It is
// silently dropped if the link isn't ready yet, except for Ping which is
// always permitted.
func (c *Client) EnqueueControl(msgType MessageType, prio uint8, payload []byte) bool {
	if msgType != MsgPing && !c.Ready() {
		return false
	}
	return c.queue.Upsert(msgType, prio, payload)
}

// DrainControl flushes the coalescing queue and writes every pending entry
// to the transport in priority order. Call this from the single
// ControlEmit tick (spec §4.6, 250ms period) — never concurrently.
func (c *Client) DrainControl() error {
	for _, entry := range c.queue.DrainAll() {
		if err := c.sendRaw(entry.Key, entry.Payload); err != nil {
			return err
		}
	}
	return nil
}

// SendImmediate writes msgType directly, bypassing the coalescing queue.
// Used for one-shot commands that must never be coalesced away, such as
// Tare (spec §4.6).
func (c *Client) SendImmediate(msgType MessageType, payload []byte) error {
	return c.sendRaw(msgType, payload)
}

func (c *Client) sendRaw(msgType MessageType, payload []byte) error {
	seq := uint16(c.seq.Add(1))
	buf, err := Encode(msgType, seq, payload)
	if err != nil {
		return NewError(ErrorCommSend, err.Error())
	}
	if _, err := c.getTransport().Write(buf); err != nil {
		return NewError(ErrorCommSend, err.Error())
	}
	return nil
}

// SendPing writes a bare Ping frame, always permitted regardless of the
// SystemInfo gate (spec §4.7).
func (c *Client) SendPing() error {
	return c.sendRaw(MsgPing, nil)
}

// Close stops Run and closes the current transport.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.getTransport().Close()
}
