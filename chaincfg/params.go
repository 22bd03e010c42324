package chaincfg

import (
	btcchaincfg "github.com/btcsuite/btcd/chaincfg"
)

// Params is used to group parameters for various networks such as the main
// network and test networks.
type Params struct {
	*btcchaincfg.Params

	// PoolPort is the default port the pool server listens on.
	PoolPort string

	// WebsocketPort is the default port of the pool websocket endpoint.
	WebsocketPort string

	// RPCClientPort is the default RPC port of the full node.
	RPCClientPort string

	// DefaultShareTarget is the share target announced for text jobs.
	DefaultShareTarget string
}

const defaultShareTarget = "0000ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

// MainNetParams contains parameters on the main network
var MainNetParams = Params{
	Params:             &btcchaincfg.MainNetParams,
	PoolPort:           "3333",
	WebsocketPort:      "3334",
	RPCClientPort:      "8332",
	DefaultShareTarget: defaultShareTarget,
}

// TestNet3Params contains parameters on the test network
var TestNet3Params = Params{
	Params:             &btcchaincfg.TestNet3Params,
	PoolPort:           "13333",
	WebsocketPort:      "13334",
	RPCClientPort:      "18332",
	DefaultShareTarget: defaultShareTarget,
}

// SimNetParams contains parameters specific to the simulation test network
var SimNetParams = Params{
	Params:             &btcchaincfg.SimNetParams,
	PoolPort:           "23333",
	WebsocketPort:      "23334",
	RPCClientPort:      "18556",
	DefaultShareTarget: defaultShareTarget,
}

// RegNetParams contains parameters specific to the regression test network
var RegNetParams = Params{
	Params:             &btcchaincfg.RegressionNetParams,
	PoolPort:           "33333",
	WebsocketPort:      "33334",
	RPCClientPort:      "18443",
	DefaultShareTarget: defaultShareTarget,
}

var ActiveNetParams = &MainNetParams

var NodeBackendVersion = "unknown"

var MinerBackendVersion = "unknown"
