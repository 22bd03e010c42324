package solominer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abesuite/abe-powminer/chainclient"
	"github.com/abesuite/abe-powminer/cpuminer"
	"github.com/abesuite/abe-powminer/model"
)

// BlockSubmitter is where solved blocks go, normally the chain client.
type BlockSubmitter interface {
	SubmitBlock(*model.BlockSubmitted)
}

// Config is a descriptor containing the solo miner configuration.
type Config struct {
	// Submitter receives solved blocks.
	Submitter BlockSubmitter

	// PkScript is the locking script paid by coinbases the miner builds
	// itself.
	PkScript []byte

	// CoinbaseTag is pushed after the height in built coinbases.
	CoinbaseTag string

	// Threads is the number of search goroutines.
	Threads int

	// RecenterInterval is passed on to every solo search.
	RecenterInterval time.Duration
}

// SoloMiner mines block templates fetched by the chain client. Every new
// template cancels the running search, waits for its goroutines and starts
// a search on the new candidate block.
type SoloMiner struct {
	cfg Config

	templates chan *model.BlockTemplate
	quit      chan struct{}
	wg        sync.WaitGroup
	started   int32
	shutdown  int32

	blocksFound uint64
}

// New returns a solo miner for the given configuration.
func New(cfg *Config) *SoloMiner {
	return &SoloMiner{
		cfg:       *cfg,
		templates: make(chan *model.BlockTemplate, 1),
		quit:      make(chan struct{}),
	}
}

// Start launches the mining goroutine.
func (m *SoloMiner) Start() {
	if atomic.AddInt32(&m.started, 1) != 1 {
		return
	}
	log.Infof("Starting solo miner with %d %s", m.cfg.Threads,
		pickNoun(m.cfg.Threads, "thread", "threads"))
	m.wg.Add(1)
	go m.miningHandler()
}

// Stop cancels the running search.
func (m *SoloMiner) Stop() {
	if atomic.AddInt32(&m.shutdown, 1) != 1 {
		log.Infof("Solo miner is already in the process of shutting down")
		return
	}
	close(m.quit)
}

// WaitForShutdown blocks until the mining goroutine and its search have
// exited.
func (m *SoloMiner) WaitForShutdown() {
	m.wg.Wait()
}

// BlocksFound returns the number of solved blocks handed to the submitter.
func (m *SoloMiner) BlocksFound() uint64 {
	return atomic.LoadUint64(&m.blocksFound)
}

// HandleChainClientNotification handles notifications from chain client.
func (m *SoloMiner) HandleChainClientNotification(notification *chainclient.Notification) {
	switch notification.Type {
	case chainclient.NTBlockTemplateChanged:
		blockTemplate, ok := notification.Data.(*model.BlockTemplate)
		if !ok || blockTemplate == nil {
			log.Errorf("Solo miner accepted notification is not a block template.")
			return
		}
		m.pushTemplate(blockTemplate)

	case chainclient.NTBlockAccepted:
		if n, ok := notification.Data.(*model.BlockNotification); ok {
			log.Infof("Block %v at height %v accepted", n.BlockHash, n.Height)
		}

	case chainclient.NTBlockRejected:
		if n, ok := notification.Data.(*model.BlockNotification); ok {
			log.Warnf("Block %v at height %v rejected: %v", n.BlockHash, n.Height, n.Info)
		}
	}
}

// pushTemplate replaces any template the mining goroutine has not picked up
// yet.
func (m *SoloMiner) pushTemplate(t *model.BlockTemplate) {
	for {
		select {
		case m.templates <- t:
			return
		default:
		}
		select {
		case <-m.templates:
		default:
		}
	}
}

// generation is one running search and the means to end it.
type generation struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (g *generation) stop() {
	if g == nil {
		return
	}
	g.cancel()
	<-g.done
}

func (m *SoloMiner) miningHandler() {
	var current *generation
out:
	for {
		select {
		case t := <-m.templates:
			current.stop()
			current = m.startGeneration(t)

		case <-m.quit:
			break out
		}
	}
	current.stop()
	m.wg.Done()
	log.Trace("Solo miner done")
}

func (m *SoloMiner) startGeneration(t *model.BlockTemplate) *generation {
	candidate, err := t.NewCandidateBlock(m.cfg.PkScript, m.cfg.CoinbaseTag)
	if err != nil {
		log.Errorf("Unable to build candidate block at height %v: %v", t.Height, err)
		return nil
	}
	work, err := cpuminer.NewHeaderWork(candidate.HeaderBytes())
	if err != nil {
		log.Errorf("Internal error: %v", err)
		return nil
	}

	log.Infof("Mining block at height %v, target %v", candidate.Height, candidate.Target)
	search := cpuminer.NewSoloSearch(work, candidate.Target, cpuminer.SoloConfig{
		Threads:          m.cfg.Threads,
		RecenterInterval: m.cfg.RecenterInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	g := &generation{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(g.done)
		solution, err := search.Run(ctx)
		if err != nil || solution == nil {
			return
		}
		m.submit(candidate, solution)
	}()
	return g
}

func (m *SoloMiner) submit(candidate *model.CandidateBlock, solution *cpuminer.Solution) {
	block := candidate.Block(uint32(solution.Nonce))
	blockHash := block.Header.BlockHash()
	log.Infof("Block found at height %v: %v (nonce %v)", candidate.Height, blockHash, solution.Nonce)
	atomic.AddUint64(&m.blocksFound, 1)
	m.cfg.Submitter.SubmitBlock(&model.BlockSubmitted{
		BlockHash: blockHash,
		Height:    candidate.Height,
		Block:     block,
	})
}

// pickNoun returns the singular or plural form of a noun depending
// on the count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
