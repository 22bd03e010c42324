package poolserver

import (
	"bytes"
	"container/list"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/abesuite/abe-powminer/minermgr"
	"github.com/abesuite/abe-powminer/pooljson"
	"github.com/abesuite/abe-powminer/utils"
)

const (
	// sendBufferSize is the number of lines the send channel can queue
	// before blocking.
	sendBufferSize = 50

	// goodbyeTimeout bounds the wait for the goodbye line to go out.
	goodbyeTimeout = 5 * time.Second
)

var (
	// ErrClientQuit describes the error where a client send is not processed
	// due to the client having already been disconnected or dropped.
	ErrClientQuit = errors.New("client quit")

	errUnknownMethod = errors.New("unknown method")
)

// lineResponse houses a line to send to a connected worker as well as a
// channel to reply on when the line is sent.
type lineResponse struct {
	msg      []byte
	doneChan chan bool
}

// poolClient handles one connected worker. Inbound lines are read by
// inHandler and handed to the miner manager. Job notifications are queued
// through notificationQueueHandler so the notification manager never blocks
// on a slow worker, and all lines go out through outHandler. stallHandler
// drops a worker that stays silent for too long.
type poolClient struct {
	sync.Mutex

	// server is the pool server that is servicing the client.
	server *PoolServer

	conn     lineConn
	addr     string
	connType string

	// disconnected indicated whether or not the client is disconnected.
	disconnected bool

	// activity is signalled on every inbound line.
	activity chan struct{}

	ntfnChan chan []byte
	sendChan chan lineResponse
	quit     chan struct{}
	wg       sync.WaitGroup
}

func newPoolClient(server *PoolServer, conn lineConn, connType string) *poolClient {
	return &poolClient{
		server:   server,
		conn:     conn,
		addr:     conn.RemoteAddr(),
		connType: connType,
		activity: make(chan struct{}, 1),
		ntfnChan: make(chan []byte, 1), // nonblocking sync
		sendChan: make(chan lineResponse, sendBufferSize),
		quit:     make(chan struct{}),
	}
}

// Start begins processing input and output messages.
func (c *poolClient) Start() {
	log.Tracef("Starting pool client %s", c.addr)

	c.wg.Add(4)
	go c.inHandler()
	go c.notificationQueueHandler()
	go c.outHandler()
	go c.stallHandler()
}

// WaitForShutdown blocks until the client goroutines are stopped and the
// connection is closed.
func (c *poolClient) WaitForShutdown() {
	c.wg.Wait()
}

// inHandler handles all incoming lines. It must be run as a goroutine.
func (c *poolClient) inHandler() {
	defer c.wg.Done()
	// Ensure the connection is closed, also after a panic.
	defer c.Disconnect()
	defer utils.MyRecover()
out:
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			// Log the error if it's not due to disconnecting.
			if err != io.EOF && !c.Disconnected() {
				log.Debugf("Receive error from %s: %v", c.addr, err)
			}
			break out
		}
		c.touch()

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := c.handleLine(line); err != nil {
			errCount := c.addError()
			log.Debugf("Bad message from %s (%d/%d): %v", c.addr, errCount,
				c.server.cfg.MaxErrors, err)
			if errCount >= c.server.cfg.MaxErrors {
				log.Infof("Worker %s made too many errors, disconnecting", c.addr)
				break out
			}
		}
	}

	log.Tracef("Pool client input handler done for %s", c.addr)
}

// handleLine dispatches one line. A returned error counts against the
// worker.
func (c *poolClient) handleLine(line []byte) error {
	msg, err := pooljson.DecodeMessage(line)
	if err != nil {
		return err
	}

	mgr := c.server.minerManager
	switch msg.Method {
	case pooljson.SubmitCmdMethod:
		cmd, err := msg.SubmitCmd()
		if err != nil {
			return err
		}
		_, err = mgr.HandleSubmit(c.quit, cmd)
		switch {
		case err == nil:
		case errors.Is(err, minermgr.ErrHashMismatch), errors.Is(err, minermgr.ErrNonceOutOfRange):
			return err
		default:
			log.Debugf("Rejected share from %s: %v", c.addr, err)
		}
		return nil

	case pooljson.ProgressCmdMethod:
		cmd, err := msg.ProgressCmd()
		if err != nil {
			return err
		}
		return mgr.HandleProgress(c.quit, cmd)

	default:
		return fmt.Errorf("%w: %q", errUnknownMethod, msg.Method)
	}
}

// addError counts a protocol error against the worker.
func (c *poolClient) addError() int {
	miner, ok := c.server.minerManager.GetMiner(c.quit)
	if !ok {
		return c.server.cfg.MaxErrors
	}
	return miner.AddError()
}

func (c *poolClient) touch() {
	select {
	case c.activity <- struct{}{}:
	default:
	}
}

// stallHandler disconnects the client if it sends nothing for the stall
// timeout.
func (c *poolClient) stallHandler() {
	timeout := c.server.cfg.StallTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

out:
	for {
		select {
		case <-c.activity:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)

		case <-timer.C:
			log.Infof("Worker %v stalls, disconnecting...", c.addr)
			c.DisconnectGracefully()
			break out

		case <-c.quit:
			break out
		}
	}
	c.wg.Done()
}

// Disconnected returns whether or not the client is disconnected.
func (c *poolClient) Disconnected() bool {
	c.Lock()
	isDisconnected := c.disconnected
	c.Unlock()

	return isDisconnected
}

// SendMessage queues a line for the client. doneChan, if set, receives
// whether the line was written.
func (c *poolClient) SendMessage(line []byte, doneChan chan bool) {
	// Don't send the message if disconnected.
	if c.Disconnected() {
		if doneChan != nil {
			doneChan <- false
		}
		return
	}

	select {
	case c.sendChan <- lineResponse{msg: line, doneChan: doneChan}:
	case <-c.quit:
		if doneChan != nil {
			doneChan <- false
		}
	}
}

// QueueNotification queues the passed line to be sent to the client. It
// never blocks on the network.
func (c *poolClient) QueueNotification(line []byte) error {
	// Don't queue the message if disconnected.
	if c.Disconnected() {
		return ErrClientQuit
	}

	select {
	case c.ntfnChan <- line:
		return nil
	case <-c.quit:
		return ErrClientQuit
	}
}

// Disconnect disconnects the client.
func (c *poolClient) Disconnect() {
	c.Lock()
	defer c.Unlock()

	// Nothing to do if already disconnected.
	if c.disconnected {
		return
	}

	log.Tracef("Disconnecting pool client %s", c.addr)
	close(c.quit)
	c.conn.Close()
	c.disconnected = true
}

// DisconnectGracefully sends a mining.bye line and disconnects once it is
// written or goodbyeTimeout passes.
func (c *poolClient) DisconnectGracefully() {
	bye, err := pooljson.MarshalGoodBye()
	if err != nil {
		log.Errorf("Failed to marshal mining.bye notification: %v", err)
		c.Disconnect()
		return
	}

	done := make(chan bool, 1)
	c.SendMessage(bye, done)
	select {
	case <-done:
	case <-time.After(goodbyeTimeout):
	}
	c.Disconnect()
}

// notificationQueueHandler handles the queuing of outgoing notifications for
// the client.
func (c *poolClient) notificationQueueHandler() {
	ntfnSentChan := make(chan bool, 1) // nonblocking sync

	// pendingNtfns is used as a queue for notifications that are ready to
	// be sent once there are no outstanding notifications currently being
	// sent.
	pendingNtfns := list.New()
	waiting := false
out:
	for {
		select {
		case msg := <-c.ntfnChan:
			if !waiting {
				c.SendMessage(msg, ntfnSentChan)
			} else {
				pendingNtfns.PushBack(msg)
			}
			waiting = true

		// This channel is notified when a notification has been sent
		// across the network socket.
		case <-ntfnSentChan:
			// No longer waiting if there are no more messages in
			// the pending messages queue.
			next := pendingNtfns.Front()
			if next == nil {
				waiting = false
				continue
			}

			msg := pendingNtfns.Remove(next).([]byte)
			c.SendMessage(msg, ntfnSentChan)

		case <-c.quit:
			break out
		}
	}

	// Drain any wait channels before exiting so nothing is left waiting
	// around to send.
cleanup:
	for {
		select {
		case <-c.ntfnChan:
		case <-ntfnSentChan:
		default:
			break cleanup
		}
	}
	c.wg.Done()
	log.Tracef("Pool client notification queue handler done for %s", c.addr)
}

// outHandler handles all outgoing lines for the connection. It uses a
// buffered channel to serialize output while allowing the sender to
// continue running asynchronously. It must be run as a goroutine.
func (c *poolClient) outHandler() {
out:
	for {
		select {
		case r := <-c.sendChan:
			err := c.conn.WriteLine(r.msg)
			if err != nil {
				log.Debugf("Send error to %s: %v", c.addr, err)
				if r.doneChan != nil {
					r.doneChan <- false
				}
				c.Disconnect()
				break out
			}
			if r.doneChan != nil {
				r.doneChan <- true
			}

		case <-c.quit:
			break out
		}
	}

	// Drain any wait channels before exiting so nothing is left waiting
	// around to send.
cleanup:
	for {
		select {
		case r := <-c.sendChan:
			if r.doneChan != nil {
				r.doneChan <- false
			}
		default:
			break cleanup
		}
	}
	c.wg.Done()
	log.Tracef("Pool client output handler done for %s", c.addr)
}
