package main

import (
	"github.com/abesuite/abe-powminer/cpuminer"
	"github.com/abesuite/abe-powminer/minermgr"
	"github.com/abesuite/abe-powminer/poolserver"
	"github.com/abesuite/abe-powminer/poolworker"
	"github.com/abesuite/abe-powminer/solominer"
)

// server ties together the components of the selected mode. Only the
// components of that mode are set.
type server struct {
	chainClient *chainClients

	// solo
	soloMiner *solominer.SoloMiner

	// worker
	worker *poolworker.Worker

	// pool
	poolServer   *poolserver.PoolServer
	minerManager *minermgr.MinerManager
}

func newServer(cfg *config, chainCli *chainClients) (*server, error) {
	s := &server{chainClient: chainCli}

	switch cfg.Mode {
	case modeSolo:
		s.soloMiner = solominer.New(&solominer.Config{
			Submitter:        chainCli.chainClient,
			PkScript:         cfg.pkScript,
			CoinbaseTag:      cfg.CoinbaseTag,
			Threads:          cfg.Threads,
			RecenterInterval: cpuminer.DefaultRecenterInterval,
		})
		chainCli.Subscribe(s.soloMiner.HandleChainClientNotification)

	case modeWorker:
		s.worker = poolworker.New(&poolworker.Config{
			Pool:      cfg.Pool,
			Proxy:     cfg.Proxy,
			ProxyUser: cfg.ProxyUser,
			ProxyPass: cfg.ProxyPass,
			Threads:   cfg.Threads,
		})

	case modePool:
		mgrCfg := &minermgr.Config{
			ShareTarget:       cfg.shareTarget,
			PkScript:          cfg.pkScript,
			CoinbaseTag:       cfg.CoinbaseTag,
			JobInterval:       cfg.jobInterval,
			RecordShareDetail: cfg.RecordShareDetail,
		}
		// Leave Submitter unset without a node, the manager then hands
		// out synthetic jobs.
		if chainCli.chainClient != nil {
			mgrCfg.Submitter = chainCli.chainClient
		}
		minerMgr := minermgr.SetupMinerManger(mgrCfg)
		chainCli.Subscribe(minerMgr.HandleChainClientNotification)

		poolSvr, err := poolserver.NewPoolServer(&poolserver.Config{
			Listeners:   cfg.Listeners,
			WSListeners: cfg.WSListeners,
			DisableTLS:  cfg.DisablePoolTLS,
			RPCKey:      cfg.PoolKey,
			RPCCert:     cfg.PoolCert,
			ExternalIPs: cfg.ExternalIPs,
			MaxClients:  cfg.MaxClients,
			MaxErrors:   cfg.MaxErrors,
			Blacklist:   cfg.blacklists,
			Whitelist:   cfg.whitelists,
		}, minerMgr)
		if err != nil {
			return nil, err
		}
		minerMgr.Subscribe(poolSvr.HandleMinerManagerNotification)

		s.minerManager = minerMgr
		s.poolServer = poolSvr
	}

	return s, nil
}

// Start starts the components, consumers before the chain client so no
// template is missed.
func (s *server) Start() error {
	if s.poolServer != nil {
		s.poolServer.Start()
	}
	if s.minerManager != nil {
		s.minerManager.Start()
	}
	if s.soloMiner != nil {
		s.soloMiner.Start()
	}
	if s.worker != nil {
		s.worker.Start()
	}
	return s.chainClient.Start()
}

// Stop stops the components in reverse order and waits for them.
func (s *server) Stop() {
	s.chainClient.Stop()

	if s.worker != nil {
		s.worker.Stop()
		s.worker.WaitForShutdown()
		powmLog.Infof("Worker stopped after %d jobs, %d shares submitted",
			s.worker.Jobs(), s.worker.Submitted())
	}
	if s.soloMiner != nil {
		s.soloMiner.Stop()
		s.soloMiner.WaitForShutdown()
		powmLog.Infof("Solo miner stopped, %d blocks found", s.soloMiner.BlocksFound())
	}
	if s.minerManager != nil {
		s.minerManager.Stop()
		s.minerManager.WaitForShutdown()
	}
	if s.poolServer != nil {
		s.poolServer.Stop()
	}
}
