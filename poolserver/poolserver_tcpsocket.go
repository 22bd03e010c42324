package poolserver

import (
	"bufio"
	"errors"
	"net"
	"time"
)

const (
	// maxLineLength bounds a single line from a worker.
	maxLineLength = 1 << 16

	// writeTimeout bounds writing one line to a worker.
	writeTimeout = 30 * time.Second
)

// ErrLineTooLong is returned when a worker sends a line longer than
// maxLineLength.
var ErrLineTooLong = errors.New("line too long")

// lineConn is a worker connection carrying newline delimited messages.
type lineConn interface {
	ReadLine() ([]byte, error)
	WriteLine(line []byte) error
	Close() error
	RemoteAddr() string
}

// tcpLineConn carries lines over a plain or TLS stream.
type tcpLineConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTCPLineConn(conn net.Conn) *tcpLineConn {
	return &tcpLineConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 4096),
	}
}

func (c *tcpLineConn) ReadLine() ([]byte, error) {
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

func (c *tcpLineConn) WriteLine(line []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(line)
	return err
}

func (c *tcpLineConn) Close() error {
	return c.conn.Close()
}

func (c *tcpLineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// acceptTCP accepts worker connections on listener until it is closed.
func (svr *PoolServer) acceptTCP(listener net.Listener, tlsState string) {
	log.Infof("Pool TCP server listening on %s (TLS %s)", listener.Addr(), tlsState)
	for {
		conn, err := listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			break
		}
		if isUndesiredIP(conn.RemoteAddr().String(), svr.cfg.Blacklist, svr.cfg.Whitelist) {
			conn.Close()
			continue
		}
		go svr.serveClient(newTCPLineConn(conn), "tcp")
	}
	log.Tracef("Pool TCP listener done for %s", listener.Addr())
	svr.wg.Done()
}
