// SPDX-License-Identifier: Apache-2.0

// Package gateway manages the link to a Conbus gateway: transports (TCP,
// serial, WebSocket), the connection manager with its event surface, and
// the read-request debounce service.
package gateway

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Conn is the byte transport a Client drives. net.Conn satisfies it
// directly; serial and WebSocket transports are adapted below.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(t time.Time) error
}

// DialTCP opens a TCP connection to a Conbus gateway, bounded by timeout.
func DialTCP(host string, port int, timeout time.Duration) (Conn, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gateway %s: %w", addr, err)
	}
	return conn.(*net.TCPConn), nil
}

// SerialConn wraps a serial port for gateways reached over RS-232.
type SerialConn struct {
	port serial.Port
}

// OpenSerial opens a serial connection to a gateway interface module.
func OpenSerial(portName string, baudRate int) (Conn, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &SerialConn{port: port}, nil
}

func (s *SerialConn) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConn) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConn) Close() error {
	return s.port.Close()
}

// SetReadDeadline maps the absolute deadline onto the port's relative read
// timeout.
func (s *SerialConn) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		return s.port.SetReadTimeout(serial.NoTimeout)
	}
	d := time.Until(t)
	if d < 0 {
		d = 0
	}
	return s.port.SetReadTimeout(d)
}

// ErrConnectionClosed is returned when reading from a closed WebSocket
// connection.
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConn wraps a WebSocket connection for byte-level reading, for
// gateways bridged through an HTTP server.
type WebSocketConn struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

// DialWebSocket opens a WebSocket connection to a bridged gateway.
func DialWebSocket(wsURL string, skipSSLVerify bool) (Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	conn, resp, err := dialer.Dial(wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}
	return &WebSocketConn{conn: conn}, nil
}

func (w *WebSocketConn) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// Drain buffered message data first.
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				return 0, err
			}
			w.closed = true
			return 0, err
		}
		// Conbus frames travel as binary or text; anything else is
		// skipped.
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConn) Close() error {
	return w.conn.Close()
}

func (w *WebSocketConn) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
