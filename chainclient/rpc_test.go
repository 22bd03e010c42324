package chainclient

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abesuite/abe-powminer/chaincfg"
	"github.com/abesuite/abe-powminer/model"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	genesisHashStr = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	p2pkhScriptHex = "76a914000102030405060708090a0b0c0d0e0f1011121388ac"
)

type fakeNode struct {
	sync.Mutex
	template     *btcjson.GetBlockTemplateResult
	templateErr  error
	submitResult json.RawMessage
	submitErr    error
	submitted    []string
	requests     []json.RawMessage
}

func (f *fakeNode) RawRequest(method string, params []json.RawMessage) (json.RawMessage, error) {
	f.Lock()
	defer f.Unlock()
	switch method {
	case "getnetworkinfo":
		return json.RawMessage(`{"version":250000,"subversion":"/Satoshi:25.0.0/"}`), nil
	case "getblocktemplate":
		f.requests = append(f.requests, params[0])
		if f.templateErr != nil {
			return nil, f.templateErr
		}
		return json.Marshal(f.template)
	case "submitblock":
		var blockHex string
		if err := json.Unmarshal(params[0], &blockHex); err != nil {
			return nil, err
		}
		f.submitted = append(f.submitted, blockHex)
		if f.submitErr != nil {
			return nil, f.submitErr
		}
		return f.submitResult, nil
	}
	return nil, errors.New("unknown method " + method)
}

func (f *fakeNode) Shutdown()        {}
func (f *fakeNode) WaitForShutdown() {}

func (f *fakeNode) setTemplate(tmpl *btcjson.GetBlockTemplateResult) {
	f.Lock()
	f.template = tmpl
	f.Unlock()
}

func newTestTemplateResult(height int64, prevHash string) *btcjson.GetBlockTemplateResult {
	value := int64(5000000000)
	return &btcjson.GetBlockTemplateResult{
		Bits:          "207fffff",
		CurTime:       1700000000,
		Height:        height,
		PreviousHash:  prevHash,
		Version:       0x20000000,
		CoinbaseValue: &value,
	}
}

func collect(c *RPCClient) chan *Notification {
	ch := make(chan *Notification, 16)
	c.Subscribe(func(n *Notification) {
		ch <- n
	})
	return ch
}

func waitFor(t *testing.T, ch chan *Notification, typ NotificationType) *Notification {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case n := <-ch:
			if n.Type == typ {
				return n
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v", typ)
			return nil
		}
	}
}

func newSubmission(t *testing.T, tmpl *btcjson.GetBlockTemplateResult) *model.BlockSubmitted {
	pkScript, err := hex.DecodeString(p2pkhScriptHex)
	require.NoError(t, err)
	cand, err := model.NewBlockTemplate(tmpl).NewCandidateBlock(pkScript, "")
	require.NoError(t, err)
	block := cand.Block(1)
	return &model.BlockSubmitted{
		BlockHash: block.Header.BlockHash(),
		Height:    cand.Height,
		Block:     block,
	}
}

func TestGetAndSetTemplate(t *testing.T) {
	t.Run("test_1", func(t *testing.T) {
		node := &fakeNode{template: newTestTemplateResult(1, genesisHashStr)}
		c := newRPCClient(node, time.Hour)

		assert.True(t, c.getAndSetTemplate())
		require.NotNil(t, c.GetTemplate())
		assert.Equal(t, int64(1), c.GetTemplate().Height)

		// Same template again is not a change.
		assert.False(t, c.getAndSetTemplate())

		// A stale timestamp is.
		stale := newTestTemplateResult(1, genesisHashStr)
		stale.CurTime += maxTimestampDrift + 1
		node.setTemplate(stale)
		assert.True(t, c.getAndSetTemplate())

		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(node.requests[0], &req))
		assert.Equal(t, "template", req["mode"])
		assert.Equal(t, []interface{}{"coinbasetxn", "workid"}, req["capabilities"])
		assert.Equal(t, []interface{}{"segwit"}, req["rules"])
	})

	t.Run("test_2", func(t *testing.T) {
		node := &fakeNode{templateErr: &btcjson.RPCError{Code: btcjson.ErrRPCMisc, Message: "bad"}}
		c := newRPCClient(node, time.Hour)
		ch := collect(c)

		assert.False(t, c.getAndSetTemplate())
		n := waitFor(t, ch, NTTemplateFailed)
		_, ok := n.Data.(error)
		assert.True(t, ok)
	})

	t.Run("test_3", func(t *testing.T) {
		for _, err := range []error{
			errors.New("connection refused"),
			&btcjson.RPCError{Code: btcjson.ErrRPCClientInInitialDownload, Message: "syncing"},
			&btcjson.RPCError{Code: btcjson.ErrRPCClientNotConnected, Message: "no peers"},
		} {
			node := &fakeNode{templateErr: err}
			c := newRPCClient(node, time.Hour)
			ch := collect(c)
			assert.False(t, c.getAndSetTemplate())
			assert.Len(t, ch, 0)
		}
	})
}

func TestIsSameTemplate(t *testing.T) {
	base := model.NewBlockTemplate(newTestTemplateResult(5, genesisHashStr))

	t.Run("test_1", func(t *testing.T) {
		other := *base
		assert.True(t, isSameTemplate(base, &other))
		other.CurTime += maxTimestampDrift
		assert.True(t, isSameTemplate(&other, base))
		other.CurTime++
		assert.False(t, isSameTemplate(&other, base))
	})

	t.Run("test_2", func(t *testing.T) {
		other := *base
		other.Transactions = []btcjson.GetBlockTemplateResultTx{{Hash: "aa", Data: "00"}}
		assert.False(t, isSameTemplate(&other, base))

		other = *base
		value := *base.CoinbaseValue + 1
		other.CoinbaseValue = &value
		assert.False(t, isSameTemplate(&other, base))

		other = *base
		other.CoinbaseTxn = &btcjson.GetBlockTemplateResultTx{Data: "00"}
		assert.False(t, isSameTemplate(&other, base))

		assert.False(t, isSameTemplate(nil, base))
		assert.True(t, isSameTemplate(nil, nil))
	})
}

func TestSubmitBlock(t *testing.T) {
	tmpl := newTestTemplateResult(1, genesisHashStr)

	t.Run("test_1", func(t *testing.T) {
		node := &fakeNode{submitResult: json.RawMessage("null")}
		c := newRPCClient(node, time.Hour)
		sub := newSubmission(t, tmpl)
		require.NoError(t, c.submitBlock(sub))

		expected, err := sub.Block.Hex()
		require.NoError(t, err)
		assert.Equal(t, []string{expected}, node.submitted)
	})

	t.Run("test_2", func(t *testing.T) {
		node := &fakeNode{submitResult: json.RawMessage(`"high-hash"`)}
		c := newRPCClient(node, time.Hour)
		err := c.submitBlock(newSubmission(t, tmpl))
		require.Error(t, err)
		assert.Equal(t, "high-hash", err.Error())
	})

	t.Run("test_3", func(t *testing.T) {
		node := &fakeNode{submitErr: &btcjson.RPCError{Code: btcjson.ErrRPCDeserialization, Message: "Block decode failed"}}
		c := newRPCClient(node, time.Hour)
		assert.Error(t, c.submitBlock(newSubmission(t, tmpl)))
	})
}

func TestRPCClientLifecycle(t *testing.T) {
	node := &fakeNode{
		template:     newTestTemplateResult(1, genesisHashStr),
		submitResult: json.RawMessage("null"),
	}
	c := newRPCClient(node, 50*time.Millisecond)
	ch := collect(c)

	require.NoError(t, c.Start())
	assert.Error(t, c.Start())
	assert.Equal(t, "/Satoshi:25.0.0/", chaincfg.NodeBackendVersion)

	n := waitFor(t, ch, NTBlockTemplateChanged)
	first, ok := n.Data.(*model.BlockTemplate)
	require.True(t, ok)
	assert.Equal(t, int64(1), first.Height)

	sub := newSubmission(t, node.template)
	c.SubmitBlock(sub)
	n = waitFor(t, ch, NTBlockAccepted)
	accepted := n.Data.(*model.BlockNotification)
	assert.Equal(t, sub.BlockHash, accepted.BlockHash)

	// The node now builds on the submitted block.
	node.setTemplate(newTestTemplateResult(2, sub.BlockHash.String()))
	n = waitFor(t, ch, NTBlockConnected)
	connected := n.Data.(*model.BlockNotification)
	assert.Equal(t, sub.BlockHash, connected.BlockHash)
	assert.Equal(t, int64(1), connected.Height)

	n = waitFor(t, ch, NTBlockTemplateChanged)
	assert.Equal(t, int64(2), n.Data.(*model.BlockTemplate).Height)

	c.Stop()
	c.WaitForShutdown()
	c.Stop()
}

func TestNotificationTypeString(t *testing.T) {
	assert.Equal(t, "NTBlockAccepted", NTBlockAccepted.String())
	assert.Equal(t, "Unknown Notification Type (99)", NotificationType(99).String())
}
