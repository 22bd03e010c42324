package poolserver

import (
	"sync"

	"github.com/abesuite/abe-powminer/model"
)

// Notification control requests
type notificationRegisterClient poolClient
type notificationUnregisterClient poolClient
type notificationNewJob model.JobTemplate

// notificationManager keeps track of the connected workers and pushes jobs
// to them. Registration and broadcasts are processed one at a time by
// notificationHandler so every worker sees jobs in the order they were
// produced.
type notificationManager struct {
	// server is the pool server the notification manager is associated
	// with.
	server *PoolServer

	// queueNotification queues a notification for handling.
	queueNotification chan interface{}

	// notificationMsgs feeds notificationHandler with notifications
	// and client (un)registration requests from a queue.
	notificationMsgs chan interface{}

	// Access channel for current number of registered clients.
	numClients chan int

	// Shutdown handling
	wg   sync.WaitGroup
	quit chan struct{}
}

// newNotificationManager returns a new notification manager ready for use.
func newNotificationManager(server *PoolServer) *notificationManager {
	return &notificationManager{
		server:            server,
		queueNotification: make(chan interface{}),
		notificationMsgs:  make(chan interface{}),
		numClients:        make(chan int),
		quit:              make(chan struct{}),
	}
}

// Start starts the goroutines required for the manager to queue and process
// client notifications.
func (m *notificationManager) Start() {
	m.wg.Add(2)
	go m.queueHandler()
	go m.notificationHandler()
}

// NumClients returns the number of registered clients.
func (m *notificationManager) NumClients() (n int) {
	select {
	case n = <-m.numClients:
	case <-m.quit: // Use default n (0) if server has shut down.
	}
	return
}

// AddClient registers a started client. The client receives the current
// job once registered. A client added after shutdown is disconnected.
func (m *notificationManager) AddClient(c *poolClient) {
	select {
	case m.queueNotification <- (*notificationRegisterClient)(c):
	case <-m.quit:
		c.Disconnect()
	}
}

// RemoveClient unregisters a client.
func (m *notificationManager) RemoveClient(c *poolClient) {
	select {
	case m.queueNotification <- (*notificationUnregisterClient)(c):
	case <-m.quit:
	}
}

// NotifyNewJob queues job for every registered client.
func (m *notificationManager) NotifyNewJob(job *model.JobTemplate) {
	select {
	case m.queueNotification <- (*notificationNewJob)(job):
	case <-m.quit:
	}
}

// WaitForShutdown blocks until all notification manager goroutines have
// finished.
func (m *notificationManager) WaitForShutdown() {
	m.wg.Wait()
}

// Shutdown shuts down the manager. Every registered client is sent a
// goodbye and disconnected.
func (m *notificationManager) Shutdown() {
	close(m.quit)
}

// queueHandler maintains a queue of notifications and notification handler
// control messages.
func (m *notificationManager) queueHandler() {
	queueHandler(m.queueNotification, m.notificationMsgs, m.quit)
	m.wg.Done()
}

// queueHandler manages a queue of empty interfaces, reading from in and
// sending the oldest unsent to out.  This handler stops when either of the
// in or quit channels are closed, and closes out before returning, without
// waiting to send any variables still remaining in the queue.
func queueHandler(in <-chan interface{}, out chan<- interface{}, quit <-chan struct{}) {
	var q []interface{}
	var dequeue chan<- interface{}
	skipQueue := out
	var next interface{}
out:
	for {
		select {
		case n, ok := <-in:
			if !ok {
				// Sender closed input channel.
				break out
			}

			// Either send to out immediately if skipQueue is
			// non-nil (queue is empty) and reader is ready,
			// or append to the queue and send later.
			select {
			case skipQueue <- n:
			default:
				q = append(q, n)
				dequeue = out
				skipQueue = nil
				next = q[0]
			}

		case dequeue <- next:
			copy(q, q[1:])
			q[len(q)-1] = nil // avoid leak
			q = q[:len(q)-1]
			if len(q) == 0 {
				dequeue = nil
				skipQueue = out
			} else {
				next = q[0]
			}

		case <-quit:
			break out
		}
	}
	close(out)
}

// notificationHandler reads notifications and control messages from the queue
// handler and processes one at a time.
func (m *notificationManager) notificationHandler() {
	clients := make(map[chan struct{}]*poolClient)

out:
	for {
		select {
		case n, ok := <-m.notificationMsgs:
			if !ok {
				// queueHandler quit.
				break out
			}
			switch nT := n.(type) {
			case *notificationRegisterClient:
				c := (*poolClient)(nT)
				clients[c.quit] = c
				if job := m.server.minerManager.GetJob(); job != nil {
					m.sendJob(c, job)
				}

			case *notificationUnregisterClient:
				c := (*poolClient)(nT)
				delete(clients, c.quit)

			case *notificationNewJob:
				job := (*model.JobTemplate)(nT)
				if job != m.server.minerManager.GetJob() {
					// A newer job is already current and on its way.
					log.Debugf("Skipping superseded job %v", job.JobID)
					continue
				}
				log.Debugf("Sending job %v to %d workers", job.JobID, len(clients))
				for _, c := range clients {
					m.sendJob(c, job)
				}

			default:
				log.Warnf("Unhandled notification type %T", nT)
			}

		case m.numClients <- len(clients):

		case <-m.quit:
			// Pool server shutting down.
			break out
		}
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *poolClient) {
			defer wg.Done()
			c.DisconnectGracefully()
		}(c)
	}
	wg.Wait()
	m.wg.Done()
}

// sendJob assigns job to the worker behind c and queues the notification.
func (m *notificationManager) sendJob(c *poolClient, job *model.JobTemplate) {
	jobMiner, err := m.server.minerManager.SwitchJob(c.quit, job)
	if err != nil {
		log.Debugf("Unable to switch job for %s: %v", c.addr, err)
		return
	}
	line, err := jobMiner.Notification().Marshal()
	if err != nil {
		log.Errorf("Failed to marshal job notification: %v", err)
		return
	}
	if err := c.QueueNotification(line); err != nil {
		log.Debugf("Unable to notify %s: %v", c.addr, err)
	}
}
