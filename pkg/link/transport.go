// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Transport is the dependency-injection boundary at the wire: any ordered,
// reliable-while-connected byte stream with MTU >= 256 bytes qualifies
// (spec §6.1, §9 Design Notes — "LinkTransport"). The wire technology (BLE,
// serial, a WebSocket bridge) is never visible above this interface.
type Transport interface {
	// Read reads available bytes into p, blocking until at least one byte
	// is available or the transport is closed.
	Read(p []byte) (int, error)
	// Write sends p as-is; implementations must not fragment a frame.
	Write(p []byte) (int, error)
	Close() error
}

// ErrTransportClosed is returned by Read once a transport is known to be
// permanently closed.
var ErrTransportClosed = fmt.Errorf("link: transport closed")

// SerialTransport wraps a serial port connection (bench/direct-wired rig).
type SerialTransport struct {
	port serial.Port
}

// OpenSerialTransport opens a serial port at the given baud rate, 8N1.
func OpenSerialTransport(portName string, baudRate int) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("link: open serial port %s: %w", portName, err)
	}
	return &SerialTransport{port: port}, nil
}

func (s *SerialTransport) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *SerialTransport) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *SerialTransport) Close() error                { return s.port.Close() }

// WebSocketTransport wraps a binary-framed WebSocket connection (a remote
// bridge rig, standing in for the BLE GATT link in bench simulation).
type WebSocketTransport struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

// OpenWebSocketTransport dials a ws:// or wss:// endpoint with optional HTTP
// basic auth.
func OpenWebSocketTransport(wsURL, username, password string, skipSSLVerify bool) (*WebSocketTransport, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("link: invalid websocket URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("link: unsupported websocket scheme %q", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		headers.Set("Authorization", "Basic "+basicAuth(username, password))
	}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("link: websocket connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("link: websocket connect failed: %w", err)
	}
	return &WebSocketTransport{conn: conn}, nil
}

func (w *WebSocketTransport) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrTransportClosed
	}
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketTransport) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketTransport) Close() error { return w.conn.Close() }

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
