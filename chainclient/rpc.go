package chainclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abesuite/abe-powminer/chaincfg"
	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/model"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btclog"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTBlockTemplateChanged indicates a new block template is fetched from
	// the node.
	NTBlockTemplateChanged NotificationType = iota

	// NTBlockAccepted indicates the submitted block is accepted by the node.
	NTBlockAccepted

	// NTBlockRejected indicates the submitted block is rejected by the node.
	NTBlockRejected

	// NTBlockConnected indicates an accepted block became the parent of
	// the node's block template.
	NTBlockConnected

	// NTTemplateFailed indicates the node answered getblocktemplate with an
	// error that retrying will not fix.
	NTTemplateFailed
)

// notificationTypeStrings is a map of notification types back to their constant
// names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTBlockTemplateChanged: "NTBlockTemplateChanged",
	NTBlockAccepted:        "NTBlockAccepted",
	NTBlockRejected:        "NTBlockRejected",
	NTBlockConnected:       "NTBlockConnected",
	NTTemplateFailed:       "NTTemplateFailed",
}

// DefaultTemplateInterval is how often the block template is polled.
const DefaultTemplateInterval = time.Second * 20

// maxTimestampDrift is how far the template timestamp may advance before
// an otherwise identical template counts as new.
const maxTimestampDrift = 60

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// Notification defines notification that is sent to the caller via the callback
// function provided during the call to Subscribe and consists of a
// notification type as well as associated data that depends on the type as
// follows:
//   - NTBlockTemplateChanged:     *model.BlockTemplate
//   - NTBlockAccepted:            *model.BlockNotification
//   - NTBlockRejected:            *model.BlockNotification
//   - NTBlockConnected:           *model.BlockNotification
//   - NTTemplateFailed:           error
type Notification struct {
	Type NotificationType
	Data interface{}
}

// requester is the part of the btcd RPC client used to talk to the node.
type requester interface {
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
	Shutdown()
	WaitForShutdown()
}

// templateRequest is the getblocktemplate argument. Rules is always sent,
// segwit aware nodes refuse the call without it.
type templateRequest struct {
	btcjson.TemplateRequest
	Rules []string `json:"rules"`
}

// Subscribe to notifications. Registers a callback to be executed
// when various events take place.
func (c *RPCClient) Subscribe(callback NotificationCallback) {
	c.notificationsLock.Lock()
	c.notifications = append(c.notifications, callback)
	c.notificationsLock.Unlock()
}

// sendNotification sends a notification with the passed type and data to
// every subscriber.
func (c *RPCClient) sendNotification(typ NotificationType, data interface{}) {
	// Generate and send the notification.
	n := Notification{Type: typ, Data: data}
	c.notificationsLock.RLock()
	for _, callback := range c.notifications {
		callback(&n)
	}
	c.notificationsLock.RUnlock()
}

// RPCClient polls a full node for block templates over JSON-RPC and submits
// solved blocks back to it.
type RPCClient struct {
	client           requester
	templateInterval time.Duration

	currentBlockTemplate *model.BlockTemplate

	// pendingBlocks holds accepted blocks not yet seen as a template parent,
	// block hash -> height.
	pendingBlocks map[string]int64

	quit        chan struct{}
	refresh     chan struct{}
	wg          sync.WaitGroup
	started     bool
	quitMtx     sync.Mutex
	templateMtx sync.Mutex

	// The notifications field stores a slice of callbacks to be executed on
	// certain events.
	notificationsLock sync.RWMutex
	notifications     []NotificationCallback

	submitChan chan *model.BlockSubmitted
}

// NewRPCClient creates a client for the node RPC server described by the
// connect string. If disableTLS is false, the remote RPC certificate must be
// provided in the certs slice. Requests are plain HTTP POST, no connection is
// held between them.
func NewRPCClient(connect, user, pass string, certs []byte, disableTLS bool,
	templateInterval time.Duration) (*RPCClient, error) {

	connConfig := &rpcclient.ConnConfig{
		Host:         connect,
		User:         user,
		Pass:         pass,
		Certificates: certs,
		DisableTLS:   disableTLS,
		HTTPPostMode: true,
	}
	rpcClient, err := rpcclient.New(connConfig, nil)
	if err != nil {
		return nil, err
	}
	return newRPCClient(rpcClient, templateInterval), nil
}

func newRPCClient(client requester, templateInterval time.Duration) *RPCClient {
	if templateInterval <= 0 {
		templateInterval = DefaultTemplateInterval
	}
	return &RPCClient{
		client:           client,
		templateInterval: templateInterval,
		pendingBlocks:    make(map[string]int64),
		quit:             make(chan struct{}),
		refresh:          make(chan struct{}, 1),
		submitChan:       make(chan *model.BlockSubmitted, 5),
	}
}

// BackEnd returns the name of the driver.
func (c *RPCClient) BackEnd() string {
	return "node"
}

// Start launches the template poller and the block submitter.
func (c *RPCClient) Start() error {
	c.quitMtx.Lock()
	if c.started {
		c.quitMtx.Unlock()
		return errors.New("chain client already started")
	}
	c.started = true
	c.quitMtx.Unlock()

	c.getBackendVersion()

	c.wg.Add(2)
	go c.templateHandler()
	go c.submitHandler()
	return nil
}

// Stop signals the shutdown of all goroutines started by Start.
func (c *RPCClient) Stop() {
	c.quitMtx.Lock()
	select {
	case <-c.quit:
	default:
		close(c.quit)
		c.client.Shutdown()
	}
	c.quitMtx.Unlock()
	log.Trace("Chain client done")
}

// WaitForShutdown blocks until both the client has finished disconnecting
// and all handlers have exited.
func (c *RPCClient) WaitForShutdown() {
	c.client.WaitForShutdown()
	c.wg.Wait()
}

func (c *RPCClient) getBackendVersion() {
	raw, err := c.client.RawRequest("getnetworkinfo", nil)
	if err != nil {
		log.Infof("Unable to get backend node version: %v", err)
		return
	}
	var info btcjson.GetNetworkInfoResult
	if err := json.Unmarshal(raw, &info); err != nil {
		log.Errorf("Unable to get backend node version: %v", err)
		return
	}
	chaincfg.NodeBackendVersion = info.SubVersion
	log.Infof("Backend node version: %v", chaincfg.NodeBackendVersion)
}

// GetTemplate get the current block template
func (c *RPCClient) GetTemplate() *model.BlockTemplate {
	c.templateMtx.Lock()
	ret := c.currentBlockTemplate
	c.templateMtx.Unlock()
	return ret
}

// SetTemplate set the current block template
func (c *RPCClient) SetTemplate(tmp *model.BlockTemplate) {
	c.templateMtx.Lock()
	c.currentBlockTemplate = tmp
	c.templateMtx.Unlock()
}

// isSameTemplate compare two block template and check if they are the same (except timestamp)
func isSameTemplate(newTemplate *model.BlockTemplate, currentTemplate *model.BlockTemplate) bool {
	if newTemplate == nil && currentTemplate == nil {
		return true
	}
	if newTemplate == nil || currentTemplate == nil {
		return false
	}
	if newTemplate.Version != currentTemplate.Version {
		return false
	}
	if newTemplate.Bits != currentTemplate.Bits {
		return false
	}
	if newTemplate.Height != currentTemplate.Height {
		return false
	}
	if newTemplate.PreviousHash != currentTemplate.PreviousHash {
		return false
	}
	if len(newTemplate.Transactions) != len(currentTemplate.Transactions) {
		return false
	}
	for i := 0; i < len(newTemplate.Transactions); i++ {
		if newTemplate.Transactions[i].Hash != currentTemplate.Transactions[i].Hash {
			return false
		}
	}
	if (newTemplate.CoinbaseTxn == nil) != (currentTemplate.CoinbaseTxn == nil) {
		return false
	}
	if newTemplate.CoinbaseTxn != nil && newTemplate.CoinbaseTxn.Data != currentTemplate.CoinbaseTxn.Data {
		return false
	}
	if (newTemplate.CoinbaseValue == nil) != (currentTemplate.CoinbaseValue == nil) {
		return false
	}
	if newTemplate.CoinbaseValue != nil && *newTemplate.CoinbaseValue != *currentTemplate.CoinbaseValue {
		return false
	}
	currentTimestamp := currentTemplate.CurTime
	newTimeStamp := newTemplate.CurTime
	if newTimeStamp-currentTimestamp > maxTimestampDrift {
		log.Infof("Block template timestamp expired, updating...")
		return false
	}
	return true
}

func (c *RPCClient) getBlockTemplateDesc(blockTemplate *model.BlockTemplate) string {
	if blockTemplate == nil {
		return ""
	}
	res := fmt.Sprintf("Height: %v, Previous Hash: %v, Timestamp: %v, Version: %v, Bits: %v, TX Count: %v",
		blockTemplate.Height, blockTemplate.PreviousHash, blockTemplate.CurTime, blockTemplate.Version, blockTemplate.Bits,
		len(blockTemplate.Transactions)+1)
	if blockTemplate.CoinbaseValue != nil {
		res += fmt.Sprintf(", Coinbase Value: %v", *blockTemplate.CoinbaseValue)
	}
	if log.Level() <= btclog.LevelDebug && len(blockTemplate.Transactions) > 0 {
		res += " ( "
		for i, tx := range blockTemplate.Transactions {
			if i > 0 {
				res += ", "
			}
			res += tx.Hash
		}
		res += " )"
	}
	return res
}

// isFatalTemplateError reports whether err is an RPC level error the node
// will keep returning. A node that is still syncing or has no peers is
// expected to recover.
func isFatalTemplateError(err error) bool {
	var rpcErr *btcjson.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	switch rpcErr.Code {
	case btcjson.ErrRPCClientNotConnected, btcjson.ErrRPCClientInInitialDownload:
		return false
	}
	return true
}

// fetchTemplate calls getblocktemplate on the node.
func (c *RPCClient) fetchTemplate() (*model.BlockTemplate, error) {
	req := templateRequest{
		TemplateRequest: btcjson.TemplateRequest{
			Mode:         "template",
			Capabilities: []string{"coinbasetxn", "workid"},
		},
		Rules: []string{"segwit"},
	}
	param, err := json.Marshal(&req)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.RawRequest("getblocktemplate", []json.RawMessage{param})
	if err != nil {
		return nil, err
	}
	var res btcjson.GetBlockTemplateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return model.NewBlockTemplate(&res), nil
}

// getAndSetTemplate gets the block template from the node and reports
// whether it differs from the current one.
func (c *RPCClient) getAndSetTemplate() bool {
	newBlockTemplate, err := c.fetchTemplate()
	if err != nil {
		if isFatalTemplateError(err) {
			log.Errorf("Node refuses to provide a block template: %v", err)
			c.sendNotification(NTTemplateFailed, err)
			return false
		}
		log.Warnf("Unable to get block template: %v", err)
		return false
	}

	c.checkConnected(newBlockTemplate)

	currentBlockTemplate := c.GetTemplate()
	templateDesc := c.getBlockTemplateDesc(newBlockTemplate)
	if isSameTemplate(newBlockTemplate, currentBlockTemplate) {
		log.Debugf("Get new block template from node: %v, same as the previous template.", templateDesc)
		return false
	}
	log.Infof("Get new block template from node: %v", templateDesc)
	c.SetTemplate(newBlockTemplate)
	return true
}

// checkConnected announces pending blocks that the template builds on and
// forgets pending blocks the chain has moved past.
func (c *RPCClient) checkConnected(tmpl *model.BlockTemplate) {
	c.templateMtx.Lock()
	var connected *model.BlockNotification
	for hash, height := range c.pendingBlocks {
		if hash == tmpl.PreviousHash {
			blockHash, err := pow.HashFromDisplay(hash)
			if err == nil {
				connected = &model.BlockNotification{
					BlockHash: blockHash,
					Height:    height,
					Time:      time.Now(),
				}
			}
			delete(c.pendingBlocks, hash)
			continue
		}
		if height < tmpl.Height-1 {
			delete(c.pendingBlocks, hash)
		}
	}
	c.templateMtx.Unlock()

	if connected != nil {
		log.Infof("Block %v at height %v connected", connected.BlockHash, connected.Height)
		c.sendNotification(NTBlockConnected, connected)
	}
}

// templateHandler gets the block template from the node periodically
// and notify the miners if template changes
func (c *RPCClient) templateHandler() {
	log.Info("Fetching new block template...")
	if c.getAndSetTemplate() {
		c.sendNotification(NTBlockTemplateChanged, c.GetTemplate())
	}

	getTemplateTicker := time.NewTicker(c.templateInterval)
	defer getTemplateTicker.Stop()
out:
	for {
		select {
		case <-getTemplateTicker.C:
			isChanged := c.getAndSetTemplate()
			if isChanged {
				c.sendNotification(NTBlockTemplateChanged, c.GetTemplate())
			}

		case <-c.refresh:
			log.Infof("Block submitted, fetching new block template...")
			isChanged := c.getAndSetTemplate()
			if !isChanged {
				continue
			}
			c.sendNotification(NTBlockTemplateChanged, c.GetTemplate())
			getTemplateTicker.Reset(c.templateInterval)

		case <-c.quit:
			break out
		}
	}
	c.wg.Done()
	log.Trace("Template handler done")
}

// SubmitBlock queues a solved block for submission.
func (c *RPCClient) SubmitBlock(candidateBlock *model.BlockSubmitted) {
	select {
	case c.submitChan <- candidateBlock:
	case <-c.quit:
	}
}

// submitBlock sends the block to the node. A null result means the block
// was accepted, a string result is the reason it was rejected.
func (c *RPCClient) submitBlock(block *model.BlockSubmitted) error {
	blockHex, err := block.Block.Hex()
	if err != nil {
		return err
	}
	param, err := json.Marshal(blockHex)
	if err != nil {
		return err
	}
	raw, err := c.client.RawRequest("submitblock", []json.RawMessage{param})
	if err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var reason string
	if err := json.Unmarshal(raw, &reason); err != nil {
		reason = string(raw)
	}
	if reason == "" {
		return nil
	}
	return errors.New(reason)
}

func (c *RPCClient) submitHandler() {
out:
	for {
		select {
		case submitContent := <-c.submitChan:
			block := submitContent.Block
			blockHash := submitContent.BlockHash
			if block == nil {
				log.Errorf("Internal error: submit content should not be nil!")
				continue
			}
			log.Infof("Submitting block to node... ( Height: %v, PrevBlock: %v, TX Count: %v, Version: %v, Timestamp: %v, Merkle: %v, Bits: %v, Nonce: %v )",
				submitContent.Height, block.Header.PrevBlock, len(block.Transactions), block.Header.Version, block.Header.Timestamp,
				block.Header.MerkleRoot.Hex(), block.Header.CompactBits(), block.Header.Nonce)
			err := c.submitBlock(submitContent)
			if err != nil {
				log.Infof("Submit %v fails: %v", blockHash.String(), err.Error())
				blockNotification := model.BlockNotification{
					BlockHash: blockHash,
					Height:    submitContent.Height,
					Time:      time.Now(),
					Info:      err.Error(),
				}
				c.sendNotification(NTBlockRejected, &blockNotification)
				continue
			}

			log.Infof("Node accepts the block %v", blockHash.String())
			c.templateMtx.Lock()
			c.pendingBlocks[blockHash.String()] = submitContent.Height
			c.templateMtx.Unlock()
			blockNotification := model.BlockNotification{
				BlockHash: blockHash,
				Height:    submitContent.Height,
				Time:      time.Now(),
			}
			c.sendNotification(NTBlockAccepted, &blockNotification)
			select {
			case c.refresh <- struct{}{}:
			default:
			}

		case <-c.quit:
			break out
		}
	}
	c.wg.Done()
	log.Trace("Submit handler done")
}
