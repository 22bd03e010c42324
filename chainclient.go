package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/abesuite/abe-powminer/chainclient"
)

// chainClients holds the node client shared by the miner components.
type chainClients struct {
	cfg         *config
	chainClient *chainclient.RPCClient
	handlerMu   sync.Mutex

	// fatalErr is set when the node can not serve the miner at all.
	fatalErr error
}

func (server *chainClients) setChainClient(client *chainclient.RPCClient) {
	server.handlerMu.Lock()
	server.chainClient = client
	server.handlerMu.Unlock()
}

// Subscribe registers callback with the node client, if there is one.
func (server *chainClients) Subscribe(callback chainclient.NotificationCallback) {
	server.handlerMu.Lock()
	defer server.handlerMu.Unlock()
	if server.chainClient != nil {
		server.chainClient.Subscribe(callback)
	}
}

func (server *chainClients) Start() error {
	server.handlerMu.Lock()
	chainClient := server.chainClient
	server.handlerMu.Unlock()
	if chainClient == nil {
		return nil
	}
	powmLog.Infof("Polling node %v for block templates every %v",
		server.cfg.RPCConnect, server.cfg.templateInterval)
	return chainClient.Start()
}

func (server *chainClients) Stop() {
	server.handlerMu.Lock()
	chainClient := server.chainClient
	server.handlerMu.Unlock()
	if chainClient != nil {
		powmLog.Warn("Stopping node RPC client...")
		chainClient.Stop()
		chainClient.WaitForShutdown()
		powmLog.Info("Node RPC client shutdown complete")
	}
}

// fatalError returns the error that stopped the miner, nil after a normal
// shutdown.
func (server *chainClients) fatalError() error {
	server.handlerMu.Lock()
	defer server.handlerMu.Unlock()
	return server.fatalErr
}

// handleChainClientNotification stops the miner when the node refuses to
// hand out templates.
func (server *chainClients) handleChainClientNotification(n *chainclient.Notification) {
	if n.Type != chainclient.NTTemplateFailed {
		return
	}
	powmLog.Criticalf("Node can not provide block templates: %v", n.Data)
	server.handlerMu.Lock()
	if server.fatalErr == nil {
		server.fatalErr = fmt.Errorf("node can not provide block templates: %v", n.Data)
	}
	server.handlerMu.Unlock()
	simulateInterrupt()
}

// readCAFile reads the node certificate. A missing file leaves certs nil,
// the connection then fails on the first request.
func readCAFile(filepath string) []byte {
	certs, err := os.ReadFile(filepath)
	if err != nil {
		powmLog.Warnf("Cannot open CA file: %v", err)
		certs = nil
	}

	return certs
}

// createChainClient creates the node client when a node is configured.
func createChainClient(cfg *config) (*chainClients, error) {
	newClient := &chainClients{
		cfg: cfg,
	}
	if cfg.RPCConnect == "" {
		return newClient, nil
	}

	var certs []byte
	if !cfg.DisableClientTLS {
		certs = readCAFile(cfg.CAFile)
	}
	client, err := chainclient.NewRPCClient(cfg.RPCConnect, cfg.RPCUser, cfg.RPCPass,
		certs, cfg.DisableClientTLS, cfg.templateInterval)
	if err != nil {
		return nil, err
	}
	newClient.setChainClient(client)
	client.Subscribe(newClient.handleChainClientNotification)
	return newClient, nil
}
