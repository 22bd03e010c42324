package main

import (
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/abesuite/abe-powminer/chaincfg"
	"github.com/abesuite/abe-powminer/dal"
	"github.com/abesuite/abe-powminer/utils"
)

var (
	cfg *config
)

func startProfileServer() {
	listenAddr := net.JoinHostPort("localhost", cfg.ProfilePort)
	powmLog.Infof("Profile server listening on %s", listenAddr)
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	powmLog.Errorf("%v", http.ListenAndServe(listenAddr, mux))
}

func powMain() error {
	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg

	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	chaincfg.MinerBackendVersion = version()
	powmLog.Infof("Version %s, %s mode on %s", version(), cfg.Mode, netParams.Name)

	defer powmLog.Info("Shutdown complete")

	// Enable http profiling server if requested.
	if cfg.ProfilePort != "" {
		go func() {
			startProfileServer()
		}()
	}

	if cfg.Mode == modePool {
		err = dal.InitDB(cfg.dbConfig(), !cfg.DisableAutoCreateDB)
		if err != nil {
			powmLog.Errorf("Unable to open the pool database: %v", err)
			return err
		}
	}

	// create the node client, nil in worker mode and in a pool without node
	rpc, err := createChainClient(cfg)
	if err != nil {
		powmLog.Errorf("Unable to create node RPC client: %v", err)
		return err
	}

	svr, err := newServer(cfg, rpc)
	if err != nil {
		powmLog.Errorf("Unable to create %s miner: %v", cfg.Mode, err)
		return err
	}

	addInterruptHandler(func() {
		svr.Stop()
	})

	startErr := svr.Start()
	if startErr != nil {
		powmLog.Errorf("Unable to start %s miner: %v", cfg.Mode, startErr)
		simulateInterrupt()
	} else {
		powmLog.Infof("Running %s", utils.GetNodeDesc())
	}

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems such as the chain
	// client.
	<-interruptHandlersDone
	if startErr != nil {
		return startErr
	}
	return rpc.fatalError()
}

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Hashing allocates little, templates and jobs come in bursts.
	debug.SetGCPercent(10)

	if err := powMain(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}
