package poolserver

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abesuite/abe-powminer/minermgr"
	"github.com/abesuite/abe-powminer/model"
	"github.com/abesuite/abe-powminer/utils"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// DefaultMaxClients is the default number of workers served at once.
	DefaultMaxClients = 1000

	// DefaultMaxErrors is the default number of protocol errors a worker
	// may make before it is dropped.
	DefaultMaxErrors = 20

	// DefaultStallTimeout is how long a worker may stay silent.
	DefaultStallTimeout = 10 * time.Minute

	// wsHandshakeTimeout bounds the http part of a websocket connection.
	wsHandshakeTimeout = 10 * time.Second
)

// ErrNoListener is returned when none of the listen addresses can be used.
var ErrNoListener = errors.New("pool server: no valid listen address")

// Config is a descriptor containing the pool server configuration.
type Config struct {
	// Listeners are the addresses accepting newline delimited TCP
	// connections.
	Listeners []string

	// WSListeners are the addresses serving the /ws websocket endpoint.
	WSListeners []string

	DisableTLS  bool
	RPCKey      string
	RPCCert     string
	ExternalIPs []string

	MaxClients   int
	MaxErrors    int
	StallTimeout time.Duration

	Blacklist []*net.IPNet
	Whitelist []*net.IPNet
}

// PoolServer accepts worker connections, hands out jobs and forwards
// submissions to the miner manager.
type PoolServer struct {
	started    int32
	shutdown   int32
	cfg        Config
	ntfnMgr    *notificationManager
	numClients int32
	wg         sync.WaitGroup
	quit       chan struct{}

	// clientWg tracks connection handlers. clientLock orders its Add
	// calls against the Wait in Stop.
	clientLock sync.Mutex
	clientWg   sync.WaitGroup

	tcpListeners []net.Listener
	wsListeners  []net.Listener
	httpServer   *http.Server

	minerManager *minermgr.MinerManager
}

// NewPoolServer returns a new instance of the PoolServer struct with its
// listeners open.
func NewPoolServer(config *Config, mgr *minermgr.MinerManager) (*PoolServer, error) {
	cfg := *config
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = DefaultMaxErrors
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = DefaultStallTimeout
	}

	var tlsConfig *tls.Config
	if !cfg.DisableTLS {
		var err error
		tlsConfig, err = loadTLSConfig(cfg.RPCKey, cfg.RPCCert, cfg.ExternalIPs)
		if err != nil {
			return nil, err
		}
	}

	tcpListeners, err := setupListeners(cfg.Listeners, tlsConfig)
	if err != nil {
		return nil, err
	}
	wsListeners, err := setupListeners(cfg.WSListeners, tlsConfig)
	if err != nil {
		closeListeners(tcpListeners)
		return nil, err
	}
	if len(tcpListeners)+len(wsListeners) == 0 {
		return nil, ErrNoListener
	}

	svr := &PoolServer{
		cfg:          cfg,
		quit:         make(chan struct{}),
		tcpListeners: tcpListeners,
		wsListeners:  wsListeners,
		minerManager: mgr,
	}
	svr.ntfnMgr = newNotificationManager(svr)
	return svr, nil
}

// Start is used by server.go to start the listeners.
func (svr *PoolServer) Start() {
	if atomic.AddInt32(&svr.started, 1) != 1 {
		return
	}

	log.Trace("Starting pool server...")
	svr.ntfnMgr.Start()

	tlsState := "on"
	if svr.cfg.DisableTLS {
		tlsState = "off"
	}
	for _, listener := range svr.tcpListeners {
		svr.wg.Add(1)
		go svr.acceptTCP(listener, tlsState)
	}

	if len(svr.wsListeners) == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", svr.handleWebsocket)
	svr.httpServer = &http.Server{
		Handler:     mux,
		ReadTimeout: wsHandshakeTimeout,
	}
	for _, listener := range svr.wsListeners {
		svr.wg.Add(1)
		go func(listener net.Listener) {
			log.Infof("Pool websocket server listening on %s (TLS %s)", listener.Addr(), tlsState)
			svr.httpServer.Serve(listener)
			log.Tracef("Pool websocket listener done for %s", listener.Addr())
			svr.wg.Done()
		}(listener)
	}
}

// Stop says goodbye to every worker, closes the listeners and waits for
// all connection handlers to finish.
func (svr *PoolServer) Stop() error {
	if atomic.AddInt32(&svr.shutdown, 1) != 1 {
		log.Infof("Pool server is already in the process of shutting down")
		return nil
	}
	log.Warnf("Pool server shutting down...")

	closeListeners(svr.tcpListeners)
	if svr.httpServer != nil {
		// Hijacked websocket connections are not closed by this.
		svr.httpServer.Close()
	} else {
		closeListeners(svr.wsListeners)
	}

	svr.ntfnMgr.Shutdown()
	svr.ntfnMgr.WaitForShutdown()
	close(svr.quit)
	svr.wg.Wait()

	svr.clientLock.Lock()
	svr.clientLock.Unlock()
	svr.clientWg.Wait()
	log.Infof("Pool server shutdown complete")
	return nil
}

// TCPAddrs returns the addresses of the TCP listeners.
func (svr *PoolServer) TCPAddrs() []net.Addr {
	return listenerAddrs(svr.tcpListeners)
}

// WSAddrs returns the addresses of the websocket listeners.
func (svr *PoolServer) WSAddrs() []net.Addr {
	return listenerAddrs(svr.wsListeners)
}

// NumClients returns the number of workers currently connected.
func (svr *PoolServer) NumClients() int {
	return int(atomic.LoadInt32(&svr.numClients))
}

// limitConnections returns true if adding another client would exceed the
// maximum allowed clients.
func (svr *PoolServer) limitConnections(remoteAddr string) bool {
	if int(atomic.LoadInt32(&svr.numClients)+1) > svr.cfg.MaxClients {
		log.Infof("Max pool clients exceeded [%d] - disconnecting client %s",
			svr.cfg.MaxClients, remoteAddr)
		return true
	}
	return false
}

func (svr *PoolServer) incrementClients() {
	atomic.AddInt32(&svr.numClients, 1)
}

func (svr *PoolServer) decrementClients() {
	atomic.AddInt32(&svr.numClients, -1)
}

// trackClient reports whether a new connection may still be served and
// counts it in clientWg if so.
func (svr *PoolServer) trackClient() bool {
	svr.clientLock.Lock()
	defer svr.clientLock.Unlock()
	if atomic.LoadInt32(&svr.shutdown) != 0 {
		return false
	}
	svr.clientWg.Add(1)
	return true
}

// serveClient registers conn as a worker and blocks until it disconnects.
func (svr *PoolServer) serveClient(conn lineConn, connType string) {
	remoteAddr := conn.RemoteAddr()
	if !svr.trackClient() {
		conn.Close()
		return
	}
	defer svr.clientWg.Done()
	defer utils.MyRecover()

	if svr.limitConnections(remoteAddr) {
		conn.Close()
		return
	}
	svr.incrementClients()
	defer svr.decrementClients()

	client := newPoolClient(svr, conn, connType)
	_, err := svr.minerManager.AddNewMiner(client.quit, remoteAddr, connType)
	if err != nil {
		log.Warnf("Unable to serve worker %s: %v", remoteAddr, err)
		conn.Close()
		return
	}
	log.Infof("New %s worker %s", connType, remoteAddr)

	client.Start()
	svr.ntfnMgr.AddClient(client)
	client.WaitForShutdown()
	svr.ntfnMgr.RemoveClient(client)

	if miner, ok := svr.minerManager.GetMiner(client.quit); ok {
		accepted, rejected := miner.Stats()
		log.Infof("Disconnected worker %s (%d accepted, %d rejected)", remoteAddr, accepted, rejected)
	}
	svr.minerManager.DeleteActiveMiner(client.quit)
}

// HandleMinerManagerNotification handles notifications from miner manager.
// It pushes every new job to the connected workers.
func (svr *PoolServer) HandleMinerManagerNotification(notification *minermgr.Notification) {
	switch notification.Type {

	case minermgr.NTNewJobReady:
		newJob, ok := notification.Data.(*model.JobTemplate)
		if !ok {
			log.Warnf("The NTNewJobReady notification is not a job template!")
			break
		}
		svr.ntfnMgr.NotifyNewJob(newJob)

	case minermgr.NTBlockFound:
		shareInfo, ok := notification.Data.(*model.ShareInfo)
		if !ok {
			log.Warnf("The NTBlockFound notification is not a share!")
			break
		}
		log.Infof("Block candidate from worker %s submitted to the node", shareInfo.Worker)
	}
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// genCertPair generates a key/cert pair to the paths provided.
func genCertPair(certFile string, keyFile string, externalIPs []string) error {
	log.Infof("Generating TLS certificates of mining pool...")

	org := "powminer pool autogenerated cert"
	validUntil := time.Now().Add(10 * 365 * 24 * time.Hour)
	cert, key, err := btcutil.NewTLSCertPair(org, validUntil, externalIPs)
	if err != nil {
		return err
	}

	// Write cert and key files.
	if err = os.WriteFile(certFile, cert, 0666); err != nil {
		return err
	}
	if err = os.WriteFile(keyFile, key, 0600); err != nil {
		os.Remove(certFile)
		return err
	}

	log.Infof("Done generating TLS certificates")
	return nil
}

// loadTLSConfig loads the pool certificate, generating a self-signed pair
// first when neither file exists.
func loadTLSConfig(keyFile string, certFile string, externalIPs []string) (*tls.Config, error) {
	if !fileExists(keyFile) && !fileExists(certFile) {
		if err := genCertPair(certFile, keyFile, externalIPs); err != nil {
			return nil, err
		}
	}
	keypair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{keypair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// simpleAddr implements the net.Addr interface with two struct fields
type simpleAddr struct {
	net, addr string
}

// String returns the address.
//
// This is part of the net.Addr interface.
func (a simpleAddr) String() string {
	return a.addr
}

// Network returns the network.
//
// This is part of the net.Addr interface.
func (a simpleAddr) Network() string {
	return a.net
}

// Ensure simpleAddr implements the net.Addr interface.
var _ net.Addr = simpleAddr{}

// parseListeners determines whether each listen address is IPv4 and IPv6 and
// returns a slice of appropriate net.Addrs to listen on with TCP. It also
// properly detects addresses which apply to "all interfaces" and adds the
// address as both IPv4 and IPv6.
func parseListeners(addrs []string) ([]net.Addr, error) {
	netAddrs := make([]net.Addr, 0, len(addrs)*2)
	for _, addr := range addrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		// Empty host or host of * on plan9 is both IPv4 and IPv6.
		if host == "" || (host == "*" && runtime.GOOS == "plan9") {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
			continue
		}

		// Strip IPv6 zone id if present since net.ParseIP does not
		// handle it.
		zoneIndex := strings.LastIndex(host, "%")
		if zoneIndex > 0 {
			host = host[:zoneIndex]
		}

		ip := net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("'%s' is not a valid IP address", host)
		}

		// To4 returns nil when the IP is not an IPv4 address, so use
		// this determine the address type.
		if ip.To4() == nil {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
		} else {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
		}
	}
	return netAddrs, nil
}

// setupListeners opens a listener per address, wrapped in TLS when
// tlsConfig is set. Addresses that cannot be bound are skipped.
func setupListeners(addrs []string, tlsConfig *tls.Config) ([]net.Listener, error) {
	listenFunc := net.Listen
	if tlsConfig != nil {
		// Change the standard net.Listen function to the tls one.
		listenFunc = func(net string, laddr string) (net.Listener, error) {
			return tls.Listen(net, laddr, tlsConfig)
		}
	}

	netAddrs, err := parseListeners(addrs)
	if err != nil {
		return nil, err
	}

	listeners := make([]net.Listener, 0, len(netAddrs))
	for _, addr := range netAddrs {
		listener, err := listenFunc(addr.Network(), addr.String())
		if err != nil {
			log.Warnf("Can't listen on %s: %v", addr, err)
			continue
		}
		listeners = append(listeners, listener)
	}
	return listeners, nil
}

func closeListeners(listeners []net.Listener) {
	for _, listener := range listeners {
		if err := listener.Close(); err != nil {
			log.Debugf("Problem closing listener %s: %v", listener.Addr(), err)
		}
	}
}

func listenerAddrs(listeners []net.Listener) []net.Addr {
	addrs := make([]net.Addr, 0, len(listeners))
	for _, listener := range listeners {
		addrs = append(addrs, listener.Addr())
	}
	return addrs
}

// isUndesiredIP determines whether the server should continue to pursue
// a connection with this peer based on its ip address. It performs
// the following steps:
// 1) Reject the peer if it contains a blacklisted ip.
// 2) If no whitelist is provided, accept all ip.
// 3) Accept the peer if it contains a whitelisted ip.
// 4) Reject all other peers.
func isUndesiredIP(remoteAddress string, blacklistedIPs, whitelistedIPs []*net.IPNet) bool {
	host, _, err := net.SplitHostPort(remoteAddress)
	if err != nil {
		log.Warnf("Unable to SplitHostPort on '%s': %v", remoteAddress, err)
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		log.Warnf("Unable to parse IP '%s'", remoteAddress)
		return false
	}

	for _, blacklistedIP := range blacklistedIPs {
		if blacklistedIP.Contains(ip) {
			log.Debugf("Ignoring peer %s because it contains blacklisted ip: %v", remoteAddress, blacklistedIP)
			return true
		}
	}

	// If no whitelist is provided, we will accept all peers.
	if len(whitelistedIPs) == 0 {
		return false
	}

	for _, whitelistedIP := range whitelistedIPs {
		if whitelistedIP.Contains(ip) {
			return false
		}
	}

	log.Debugf("Ignoring peer %s because it is not in whitelist", remoteAddress)
	return true
}
