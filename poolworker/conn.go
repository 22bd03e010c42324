package poolworker

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/btcsuite/go-socks/socks"
	"github.com/gorilla/websocket"
)

// maxLineLength bounds a single protocol line.
const maxLineLength = 1 << 20

// ErrLineTooLong is returned when the pool sends a line longer than
// maxLineLength.
var ErrLineTooLong = errors.New("line too long")

// lineConn is a connection carrying newline delimited messages.
type lineConn interface {
	ReadLine() ([]byte, error)
	WriteLine(line []byte) error
	Close() error
	RemoteAddr() string
}

// tcpConn carries lines over a plain stream.
type tcpConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTCPConn(conn net.Conn) *tcpConn {
	return &tcpConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 4096),
	}
}

func (c *tcpConn) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > maxLineLength {
			return nil, ErrLineTooLong
		}
		if !isPrefix {
			return line, nil
		}
	}
}

func (c *tcpConn) WriteLine(line []byte) error {
	_, err := c.conn.Write(line)
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wsConn carries lines in websocket text frames. A frame may hold several
// lines.
type wsConn struct {
	conn    *websocket.Conn
	pending [][]byte
}

func (c *wsConn) ReadLine() ([]byte, error) {
	for len(c.pending) == 0 {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		for _, line := range bytes.Split(msg, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) > 0 {
				c.pending = append(c.pending, line)
			}
		}
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsConn) WriteLine(line []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, line)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// lockedWriter serializes writes so lines from concurrent search
// goroutines never interleave.
type lockedWriter struct {
	mtx  sync.Mutex
	conn lineConn
}

func (w *lockedWriter) WriteLine(line []byte) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.conn.WriteLine(line)
}

// isWebsocketURL reports whether the pool address is a websocket URL.
func isWebsocketURL(addr string) bool {
	return strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://")
}

// dialFunc returns the function used to open raw connections, either direct
// or through the configured SOCKS5 proxy.
func (cfg *Config) dialFunc() func(network, addr string) (net.Conn, error) {
	if cfg.Proxy == "" {
		d := net.Dialer{Timeout: cfg.DialTimeout}
		return d.Dial
	}
	proxy := &socks.Proxy{
		Addr:     cfg.Proxy,
		Username: cfg.ProxyUser,
		Password: cfg.ProxyPass,
	}
	return func(network, addr string) (net.Conn, error) {
		return proxy.DialTimeout(network, addr, cfg.DialTimeout)
	}
}

// dial connects to the pool.
func (cfg *Config) dial() (lineConn, error) {
	netDial := cfg.dialFunc()
	if isWebsocketURL(cfg.Pool) {
		dialer := websocket.Dialer{
			NetDial:          netDial,
			HandshakeTimeout: cfg.DialTimeout,
		}
		conn, _, err := dialer.Dial(cfg.Pool, nil)
		if err != nil {
			return nil, err
		}
		return &wsConn{conn: conn}, nil
	}

	conn, err := netDial("tcp", cfg.Pool)
	if err != nil {
		return nil, err
	}
	return newTCPConn(conn), nil
}
