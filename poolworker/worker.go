package poolworker

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/cpuminer"
	"github.com/abesuite/abe-powminer/pooljson"
	"github.com/abesuite/abe-powminer/wire"
)

const (
	// DefaultReconnectDelay is the pause between a lost connection and the
	// next dial.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultDialTimeout bounds a single connection attempt.
	DefaultDialTimeout = 30 * time.Second
)

// errPoolGoodBye is returned by a session the pool ended with mining.bye.
var errPoolGoodBye = errors.New("pool said goodbye")

// Config is a descriptor containing the pool worker configuration.
type Config struct {
	// Pool is host:port for a TCP pool or a ws:// or wss:// URL.
	Pool string

	// Proxy is the optional SOCKS5 proxy address, with credentials.
	Proxy     string
	ProxyUser string
	ProxyPass string

	// Threads is the number of search goroutines per job.
	Threads int

	ReconnectDelay time.Duration
	DialTimeout    time.Duration
}

// Worker connects to a pool, mines every job it receives and reports
// solutions and progress back. It reconnects forever until stopped.
type Worker struct {
	cfg  Config
	dial func() (lineConn, error)
	work func(*pooljson.JobNtfn) cpuminer.Work

	quit     chan struct{}
	wg       sync.WaitGroup
	started  int32
	shutdown int32

	connMtx sync.Mutex
	conn    lineConn

	jobs      uint64
	submitted uint64
}

// New returns a worker for the given configuration.
func New(cfg *Config) *Worker {
	w := &Worker{
		cfg:  *cfg,
		quit: make(chan struct{}),
	}
	if w.cfg.Threads < 1 {
		w.cfg.Threads = 1
	}
	if w.cfg.ReconnectDelay <= 0 {
		w.cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if w.cfg.DialTimeout <= 0 {
		w.cfg.DialTimeout = DefaultDialTimeout
	}
	w.dial = w.cfg.dial
	w.work = jobWork
	return w
}

// Start launches the connection loop.
func (w *Worker) Start() {
	if atomic.AddInt32(&w.started, 1) != 1 {
		return
	}
	w.wg.Add(1)
	go w.connectLoop()
}

// Stop closes the pool connection and ends the connection loop.
func (w *Worker) Stop() {
	if atomic.AddInt32(&w.shutdown, 1) != 1 {
		log.Infof("Pool worker is already in the process of shutting down")
		return
	}
	close(w.quit)
	w.connMtx.Lock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.connMtx.Unlock()
}

// WaitForShutdown blocks until the connection loop and every search
// goroutine have exited.
func (w *Worker) WaitForShutdown() {
	w.wg.Wait()
}

// Jobs returns the number of distinct jobs mined so far.
func (w *Worker) Jobs() uint64 {
	return atomic.LoadUint64(&w.jobs)
}

// Submitted returns the number of solutions sent to the pool.
func (w *Worker) Submitted() uint64 {
	return atomic.LoadUint64(&w.submitted)
}

func (w *Worker) setConn(conn lineConn) bool {
	w.connMtx.Lock()
	defer w.connMtx.Unlock()
	select {
	case <-w.quit:
		return false
	default:
	}
	w.conn = conn
	return true
}

func (w *Worker) connectLoop() {
	defer w.wg.Done()
	for {
		log.Infof("Connecting to pool %v...", w.cfg.Pool)
		conn, err := w.dial()
		if err != nil {
			log.Warnf("Unable to connect to pool %v: %v", w.cfg.Pool, err)
		} else if w.setConn(conn) {
			log.Infof("Connected to pool %v", conn.RemoteAddr())
			err = w.session(conn)
			log.Warnf("Disconnected from pool %v: %v", w.cfg.Pool, err)
		} else {
			conn.Close()
		}

		select {
		case <-w.quit:
			log.Trace("Pool worker done")
			return
		case <-time.After(w.cfg.ReconnectDelay):
		}
	}
}

// session reads jobs from conn until the connection fails. Each accepted job
// replaces the running search generation.
func (w *Worker) session(conn lineConn) error {
	writer := &lockedWriter{conn: conn}
	var (
		active  *pooljson.JobNtfn
		current *generation
	)
	defer func() {
		// Unblock writers before joining the search goroutines.
		conn.Close()
		current.stop()
	}()

	for {
		line, err := conn.ReadLine()
		if err != nil {
			return err
		}

		msg, err := pooljson.DecodeMessage(line)
		if err != nil {
			log.Debugf("Skipping line from pool: %v", err)
			continue
		}
		switch msg.Method {
		case pooljson.GoodByeNtfnMethod:
			return errPoolGoodBye
		case pooljson.NotifyNtfnMethod:
		default:
			log.Debugf("Skipping message with method %q", msg.Method)
			continue
		}

		job, err := msg.JobNtfn()
		if err != nil {
			log.Warnf("Skipping job: %v", err)
			continue
		}
		if job.SameJob(active) {
			log.Debugf("Job %v already active, ignored", job)
			continue
		}

		next, err := w.newGeneration(job, writer)
		if err != nil {
			log.Warnf("Skipping job %v: %v", job, err)
			continue
		}
		current.stop()
		active = job
		current = next
		atomic.AddUint64(&w.jobs, 1)
		current.start()
	}
}

// jobWork picks the work a job describes: an 80-byte header when the data
// is 160 hex digits, the text hash otherwise.
func jobWork(job *pooljson.JobNtfn) cpuminer.Work {
	if len(job.Data) == 2*wire.BlockHeaderLen {
		header, err := hex.DecodeString(job.Data)
		if err == nil {
			work, err := cpuminer.NewHeaderWork(header)
			if err == nil {
				return work
			}
		}
	}
	return cpuminer.NewTextWork(job.Data)
}

func (w *Worker) newGeneration(job *pooljson.JobNtfn, writer *lockedWriter) (*generation, error) {
	target, err := pow.ParseTarget(job.Target)
	if err != nil {
		return nil, err
	}
	nonces := cpuminer.NonceRange{Start: job.NonceStart, End: job.NonceEnd}
	if !nonces.Valid() {
		return nil, pooljson.ErrInvalidParams
	}

	rep := &reporter{worker: w, writer: writer, jobID: job.ID}
	search := cpuminer.NewStrideSearch(w.work(job), target, nonces, w.cfg.Threads, rep)
	return &generation{job: job, search: search}, nil
}

// generation is the search of one job.
type generation struct {
	job    *pooljson.JobNtfn
	search *cpuminer.StrideSearch
	cancel context.CancelFunc
	done   chan struct{}
}

func (g *generation) start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.done = make(chan struct{})
	job := g.job
	log.Infof("New job %v", job)
	go func() {
		defer close(g.done)
		solution, err := g.search.Run(ctx)
		switch {
		case err != nil:
			log.Debugf("Job %v cancelled after %d attempts", job.ID, g.search.Attempts())
		case solution == nil:
			log.Infof("Job %v exhausted without a solution", job.ID)
		}
	}()
}

// stop cancels the search and waits for all of its goroutines.
func (g *generation) stop() {
	if g == nil || g.cancel == nil {
		return
	}
	g.cancel()
	<-g.done
}

// reporter sends search results to the pool.
type reporter struct {
	worker *Worker
	writer *lockedWriter
	jobID  string
}

func (r *reporter) ReportSolution(s *cpuminer.Solution) {
	log.Infof("[Thread %d] Found nonce %d hash %s for job %v", s.ThreadID, s.Nonce, s.Hash.Hex(), r.jobID)
	line, err := pooljson.NewSubmitCmd(s.Nonce, s.Hash.Hex(), s.ThreadID).Marshal()
	if err != nil {
		log.Errorf("Internal error: %v", err)
		return
	}
	if err := r.writer.WriteLine(line); err != nil {
		log.Warnf("Unable to submit solution: %v", err)
		r.writer.conn.Close()
		return
	}
	atomic.AddUint64(&r.worker.submitted, 1)
}

func (r *reporter) ReportProgress(threadID int, nonce uint64) {
	line, err := pooljson.NewProgressCmd(nonce, threadID).Marshal()
	if err != nil {
		log.Errorf("Internal error: %v", err)
		return
	}
	if err := r.writer.WriteLine(line); err != nil {
		log.Debugf("Unable to report progress: %v", err)
		r.writer.conn.Close()
	}
}
