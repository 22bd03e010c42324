package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/abesuite/abe-powminer/chaincfg"
	"github.com/abesuite/abe-powminer/chainclient"
	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/dal"
	"github.com/abesuite/abe-powminer/minermgr"
	"github.com/abesuite/abe-powminer/poolserver"
	"github.com/abesuite/abe-powminer/utils"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "powminer.conf"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "abe-powminer.log"
	defaultDbFilename     = "powminer.db"
	defaultLogLevel       = "info"
	defaultDbType         = dal.DBTypeSQLite
	defaultDbAddress      = "127.0.0.1:3306"
	defaultDatabaseName   = "abe_powminer"
	defaultMode           = modeSolo
	defaultPoolKeyFile    = "pool.key"
	defaultPoolCertFile   = "pool.cert"
)

// Operating modes.
const (
	modeSolo   = "solo"
	modeWorker = "worker"
	modePool   = "pool"
)

var (
	nodeDefaultCAFile = filepath.Join(btcutil.AppDataDir("btcd", false), "rpc.cert")
	defaultHomeDir    = btcutil.AppDataDir("abe-powminer", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
	knownModes        = []string{modeSolo, modeWorker, modePool}
	netParams         = &chaincfg.MainNetParams
)

// config defines the configuration options for the miner.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	AppDataDir  string `short:"A" long:"appdata" description:"Application data directory for config, logs and the pool database"`
	Mode        string `long:"mode" description:"Operating mode {solo, worker, pool}"`

	TestNet        bool `long:"testnet" description:"Use the test network"`
	RegressionTest bool `long:"regtest" description:"Use the regression test network"`
	SimNet         bool `long:"simnet" description:"Use the simulation test network"`

	RPCConnect       string `short:"c" long:"rpcconnect" description:"Hostname/IP and port of the node RPC server to connect to"`
	RPCUser          string `short:"u" long:"rpcuser" description:"Username for RPC connections with the node"`
	RPCPass          string `short:"P" long:"rpcpass" default-mask:"-" description:"Password for RPC connections with the node"`
	CAFile           string `long:"rpccert" description:"File containing the certificate of the node RPC server"`
	DisableClientTLS bool   `long:"notls" description:"Disable TLS for the connection with the node"`
	TemplateInterval string `long:"templateinterval" description:"How often the node is polled for a new block template (e.g. 20s)"`
	MiningAddr       string `long:"miningaddr" description:"Pay-to-pubkey-hash address paid by coinbases the miner builds itself"`
	CoinbaseTag      string `long:"coinbasetag" description:"Text pushed after the height in built coinbases"`

	Pool      string `long:"pool" description:"Pool to work for, host:port or a ws:// or wss:// URL"`
	Proxy     string `long:"proxy" description:"Connect to the pool through a SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser string `long:"proxyuser" description:"Username for the SOCKS5 proxy"`
	ProxyPass string `long:"proxypass" default-mask:"-" description:"Password for the SOCKS5 proxy"`
	Threads   int    `long:"threads" description:"Number of search goroutines (default: number of CPUs)"`

	DbType              string `long:"dbtype" description:"Database backend of the pool {sqlite, mysql}"`
	DbPath              string `long:"dbpath" description:"SQLite database file (default: powminer.db in the app data directory)"`
	DbAddress           string `long:"dbaddress" description:"ip address and port of the MySQL database (default: 127.0.0.1:3306)"`
	DbUsername          string `long:"dbusername" description:"username which is used to connect with database"`
	DbPassword          string `long:"dbpassword" default-mask:"-" description:"password which is used to connect with database"`
	DbName              string `long:"dbname" description:"name of the MySQL database (default: abe_powminer)"`
	DisableAutoCreateDB bool   `long:"noautocreatedb" description:"Disable creating database and table automatically"`

	Listeners         []string `long:"listen" description:"Add an interface/port to listen for worker TCP connections"`
	WSListeners       []string `long:"wslisten" description:"Add an interface/port to serve the worker websocket endpoint /ws on"`
	DisablePoolTLS    bool     `long:"nopooltls" description:"Disable TLS for the pool listeners"`
	PoolCert          string   `long:"poolcert" description:"File containing the certificate of the pool listeners"`
	PoolKey           string   `long:"poolkey" description:"File containing the certificate key of the pool listeners"`
	ExternalIPs       []string `long:"externalip" description:"Add an ip to the list of addresses the generated pool certificate is valid for"`
	MaxClients        int      `long:"maxclients" description:"Max number of connected workers"`
	MaxErrors         int      `long:"maxerrors" description:"Max errors before disconnecting with a worker"`
	Blacklists        []string `long:"blacklist" description:"Add an IP network or IP that will be banned. (eg. 192.168.1.0/24 or ::1)"`
	blacklists        []*net.IPNet
	Whitelists        []string `long:"whitelist" description:"Add an IP network or IP that will not be banned. (eg. 192.168.1.0/24 or ::1)"`
	whitelists        []*net.IPNet
	JobInterval       string `long:"jobinterval" description:"How often a synthetic job is produced when no node is configured (e.g. 10s)"`
	ShareTarget       string `long:"sharetarget" description:"Target every share must meet, 64 hex digits or compact bits"`
	RecordShareDetail bool   `long:"recordsharedetail" description:"Record every accepted share, not only the per-worker totals"`

	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogDir      string `long:"logdir" description:"Directory to log output."`
	ProfilePort string `long:"profileport" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`

	templateInterval time.Duration
	jobInterval      time.Duration
	shareTarget      pow.Target
	pkScript         []byte
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	parser := flags.NewParser(cfg, options)
	return parser
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsystems for stable display.
	sort.Strings(subsystems)
	return subsystems
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

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// validMode returns whether or not mode is a known operating mode.
func validMode(mode string) bool {
	for _, knownMode := range knownModes {
		if mode == knownMode {
			return true
		}
	}

	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

func removeDuplicateAddresses(addrs []string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, val := range addrs {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = struct{}{}
		}
	}
	return result
}

func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

func normalizeAddresses(addrs []string, defaultPort string) []string {
	for i, addr := range addrs {
		addrs[i] = normalizeAddress(addr, defaultPort)
	}

	return removeDuplicateAddresses(addrs)
}

// parseIPNets turns black/white list entries into networks. A bare IP
// becomes a single host network.
func parseIPNets(addrs []string) ([]*net.IPNet, error) {
	ipNets := make([]*net.IPNet, 0, len(addrs))
	for _, addr := range addrs {
		_, ipnet, err := net.ParseCIDR(addr)
		if err != nil {
			ip := net.ParseIP(addr)
			if ip == nil {
				return nil, fmt.Errorf("the value of '%s' is invalid", addr)
			}
			var bits int
			if ip.To4() == nil {
				bits = 128
			} else {
				bits = 32
			}
			ipnet = &net.IPNet{
				IP:   ip,
				Mask: net.CIDRMask(bits, bits),
			}
		}
		ipNets = append(ipNets, ipnet)
	}
	return ipNets, nil
}

// parseDuration parses an interval option, falling back to def when the
// option is empty.
func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("the %s value of '%s' is invalid: %v", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("the %s value of '%s' must be positive", name, value)
	}
	return d, nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in the miner functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile: defaultConfigFile,
		AppDataDir: defaultHomeDir,
		Mode:       defaultMode,
		DebugLevel: defaultLogLevel,
		LogDir:     defaultLogDir,
		DbType:     defaultDbType,
		DbAddress:  defaultDbAddress,
		DbName:     defaultDatabaseName,
		MaxClients: poolserver.DefaultMaxClients,
		MaxErrors:  poolserver.DefaultMaxErrors,
		Threads:    runtime.NumCPU(),
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// A different app data dir moves the default config file with it.
	if preCfg.AppDataDir != defaultHomeDir && preCfg.ConfigFile == defaultConfigFile {
		preCfg.ConfigFile = filepath.Join(cleanAndExpandPath(preCfg.AppDataDir),
			defaultConfigFilename)
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config "+
				"file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	cfg.AppDataDir = cleanAndExpandPath(cfg.AppDataDir)
	err = os.MkdirAll(cfg.AppDataDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		if e, ok := err.(*os.PathError); ok && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = fmt.Errorf(str, e.Path, link)
			}
		}

		str := "%s: Failed to create home directory: %v"
		err := fmt.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if cfg.TestNet {
		numNets++
		netParams = &chaincfg.TestNet3Params
	}
	if cfg.RegressionTest {
		numNets++
		netParams = &chaincfg.RegNetParams
	}
	if cfg.SimNet {
		numNets++
		netParams = &chaincfg.SimNetParams
	}
	if numNets > 1 {
		str := "%s: The testnet, regtest, and simnet params " +
			"can't be used together -- choose one of the three"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	chaincfg.ActiveNetParams = netParams

	// Logs go to a per network directory.
	if cfg.LogDir == defaultLogDir {
		cfg.LogDir = filepath.Join(cfg.AppDataDir, defaultLogDirname)
	}
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir), netParams.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized, the
	// logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if !validMode(cfg.Mode) {
		str := "%s: The specified mode [%v] is invalid -- " +
			"supported modes %v"
		err := fmt.Errorf(str, funcName, cfg.Mode, knownModes)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.Threads <= 0 {
		str := "%s: The threads option must be positive, got %d"
		err := fmt.Errorf(str, funcName, cfg.Threads)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	cfg.templateInterval, err = parseDuration("templateinterval",
		cfg.TemplateInterval, chainclient.DefaultTemplateInterval)
	if err != nil {
		err := fmt.Errorf("%s: %v", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	switch cfg.Mode {
	case modeSolo:
		err = cfg.validateNodeOptions()
		if err == nil && cfg.MiningAddr == "" {
			err = errors.New("a mining address is required in solo mode")
		}
	case modeWorker:
		err = cfg.validateWorkerOptions()
	case modePool:
		err = cfg.validatePoolOptions()
	}
	if err != nil {
		err := fmt.Errorf("%s: %v", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.MiningAddr != "" {
		cfg.pkScript, err = utils.PayToAddrScript(cfg.MiningAddr, netParams.Params)
		if err != nil {
			str := "%s: The mining address '%s' is invalid: %v"
			err := fmt.Errorf(str, funcName, cfg.MiningAddr, err)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	}

	// Validate profile port number
	if cfg.ProfilePort != "" {
		profilePort, err := strconv.Atoi(cfg.ProfilePort)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			str := "%s: The profile port must be between 1024 and 65535"
			err := fmt.Errorf(str, funcName)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		powmLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}

// validateNodeOptions checks the options of the node RPC connection and picks
// the node certificate.
func (cfg *config) validateNodeOptions() error {
	if cfg.RPCUser == "" || cfg.RPCPass == "" {
		return errors.New("rpcuser and rpcpass should be configured to connect with the node")
	}

	if cfg.RPCConnect == "" {
		cfg.RPCConnect = net.JoinHostPort("localhost", netParams.RPCClientPort)
	}
	cfg.RPCConnect = normalizeAddress(cfg.RPCConnect, netParams.RPCClientPort)

	rpcHost, _, err := net.SplitHostPort(cfg.RPCConnect)
	if err != nil {
		return err
	}

	if cfg.DisableClientTLS {
		localhostListeners := map[string]struct{}{
			"localhost": {},
			"127.0.0.1": {},
			"::1":       {},
		}
		if _, ok := localhostListeners[rpcHost]; !ok {
			powmLog.Warnf("Connecting to %s without TLS", cfg.RPCConnect)
		}
		return nil
	}

	// Use the node's own certificate when none is given.
	if cfg.CAFile == "" {
		cfg.CAFile = nodeDefaultCAFile
	}
	cfg.CAFile = cleanAndExpandPath(cfg.CAFile)
	if !fileExists(cfg.CAFile) {
		return fmt.Errorf("the node certificate %s does not exist, "+
			"set rpccert or notls", cfg.CAFile)
	}
	return nil
}

// validateWorkerOptions checks the pool address and the proxy settings.
func (cfg *config) validateWorkerOptions() error {
	if cfg.Pool == "" {
		return errors.New("a pool address is required in worker mode")
	}
	if !strings.Contains(cfg.Pool, "://") {
		cfg.Pool = normalizeAddress(cfg.Pool, netParams.PoolPort)
	}
	if cfg.Proxy != "" {
		if _, _, err := net.SplitHostPort(cfg.Proxy); err != nil {
			return fmt.Errorf("the proxy address '%s' is invalid: %v", cfg.Proxy, err)
		}
	}
	return nil
}

// validatePoolOptions checks the pool listeners, database and job settings.
// The node connection is optional, without one the pool hands out synthetic
// jobs.
func (cfg *config) validatePoolOptions() error {
	var err error

	if cfg.RPCConnect != "" || cfg.RPCUser != "" {
		if err := cfg.validateNodeOptions(); err != nil {
			return err
		}
		if cfg.MiningAddr == "" {
			return errors.New("a mining address is required when the pool is backed by a node")
		}
	}

	if !dal.IsKnownDBType(cfg.DbType) {
		return fmt.Errorf("the specified database type [%v] is invalid -- "+
			"supported types [%v %v]", cfg.DbType, dal.DBTypeSQLite, dal.DBTypeMySQL)
	}
	switch cfg.DbType {
	case dal.DBTypeSQLite:
		if cfg.DbPath == "" {
			cfg.DbPath = filepath.Join(cfg.AppDataDir, netParams.Name, defaultDbFilename)
		}
		cfg.DbPath = cleanAndExpandPath(cfg.DbPath)
		if err := os.MkdirAll(filepath.Dir(cfg.DbPath), 0700); err != nil {
			return err
		}
	case dal.DBTypeMySQL:
		if cfg.DbUsername == "" {
			return errors.New("dbusername should be configured to connect with mysql")
		}
		if netParams != &chaincfg.MainNetParams {
			cfg.DbName = cfg.DbName + "_" + netParams.Name
		}
	}

	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []string{
			net.JoinHostPort("", netParams.PoolPort),
		}
	}
	cfg.Listeners = normalizeAddresses(cfg.Listeners, netParams.PoolPort)
	cfg.WSListeners = normalizeAddresses(cfg.WSListeners, netParams.WebsocketPort)

	if !cfg.DisablePoolTLS {
		if cfg.PoolCert == "" {
			cfg.PoolCert = filepath.Join(cfg.AppDataDir, defaultPoolCertFile)
		}
		if cfg.PoolKey == "" {
			cfg.PoolKey = filepath.Join(cfg.AppDataDir, defaultPoolKeyFile)
		}
		cfg.PoolCert = cleanAndExpandPath(cfg.PoolCert)
		cfg.PoolKey = cleanAndExpandPath(cfg.PoolKey)
	}

	if cfg.MaxClients <= 0 {
		return fmt.Errorf("maxclients must be positive, got %d", cfg.MaxClients)
	}
	if cfg.MaxErrors <= 0 {
		return fmt.Errorf("maxerrors must be positive, got %d", cfg.MaxErrors)
	}

	if cfg.blacklists, err = parseIPNets(cfg.Blacklists); err != nil {
		return fmt.Errorf("blacklist: %v", err)
	}
	if cfg.whitelists, err = parseIPNets(cfg.Whitelists); err != nil {
		return fmt.Errorf("whitelist: %v", err)
	}

	cfg.jobInterval, err = parseDuration("jobinterval", cfg.JobInterval,
		minermgr.DefaultJobInterval)
	if err != nil {
		return err
	}

	shareTarget := cfg.ShareTarget
	if shareTarget == "" {
		shareTarget = netParams.DefaultShareTarget
	}
	cfg.shareTarget, err = pow.ParseTarget(shareTarget)
	if err != nil {
		return fmt.Errorf("the share target '%s' is invalid: %v", shareTarget, err)
	}
	if cfg.shareTarget.IsZero() {
		return errors.New("the share target must not be zero")
	}

	return nil
}

// dbConfig describes the pool database.
func (cfg *config) dbConfig() *dal.DBConfig {
	return &dal.DBConfig{
		Type:         cfg.DbType,
		Path:         cfg.DbPath,
		Username:     cfg.DbUsername,
		Password:     cfg.DbPassword,
		Address:      cfg.DbAddress,
		DatabaseName: cfg.DbName,
	}
}
