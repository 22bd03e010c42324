package poolserver

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsLineConn carries lines in websocket text frames. An inbound frame may
// hold several lines, an outbound frame holds exactly one.
type wsLineConn struct {
	conn    *websocket.Conn
	pending [][]byte
}

func newWSLineConn(conn *websocket.Conn) *wsLineConn {
	conn.SetReadLimit(maxLineLength)
	return &wsLineConn{conn: conn}
}

func (c *wsLineConn) ReadLine() ([]byte, error) {
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

func (c *wsLineConn) WriteLine(line []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, line)
}

func (c *wsLineConn) Close() error {
	return c.conn.Close()
}

func (c *wsLineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// handleWebsocket upgrades a request on /ws and serves it as a worker.
func (svr *PoolServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if isUndesiredIP(r.RemoteAddr, svr.cfg.Blacklist, svr.cfg.Whitelist) {
		http.Error(w, "403 Forbidden.", http.StatusForbidden)
		return
	}
	if svr.limitConnections(r.RemoteAddr) {
		http.Error(w, "503 Too busy.  Try again later.", http.StatusServiceUnavailable)
		return
	}

	// Attempt to upgrade the connection to a websocket connection
	// using the default size for read/write buffers.
	ws, err := websocket.Upgrade(w, r, nil, 0, 0)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.Errorf("Unexpected websocket error: %v", err)
		}
		http.Error(w, "400 Bad Request.", http.StatusBadRequest)
		return
	}

	// The http server read deadline still applies to the hijacked
	// connection.
	ws.SetReadDeadline(time.Time{})
	svr.serveClient(newWSLineConn(ws), "websocket")
}
