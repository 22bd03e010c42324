package model

import (
	"github.com/btcsuite/btcd/btcjson"
)

// BlockTemplate is the subset of a getblocktemplate result the miner works
// from.
type BlockTemplate struct {
	Version      int32  `json:"version"`
	Bits         string `json:"bits"`
	CurTime      int64  `json:"curtime"`
	Height       int64  `json:"height"`
	PreviousHash string `json:"previousblockhash"`
	WorkID       string `json:"workid,omitempty"`

	Transactions  []btcjson.GetBlockTemplateResultTx `json:"transactions"`
	CoinbaseTxn   *btcjson.GetBlockTemplateResultTx  `json:"coinbasetxn,omitempty"`
	CoinbaseValue *int64                             `json:"coinbasevalue,omitempty"`
}

// NewBlockTemplate converts a getblocktemplate result.
func NewBlockTemplate(res *btcjson.GetBlockTemplateResult) *BlockTemplate {
	if res == nil {
		return nil
	}
	return &BlockTemplate{
		Version:       res.Version,
		Bits:          res.Bits,
		CurTime:       res.CurTime,
		Height:        res.Height,
		PreviousHash:  res.PreviousHash,
		WorkID:        res.WorkID,
		Transactions:  res.Transactions,
		CoinbaseTxn:   res.CoinbaseTxn,
		CoinbaseValue: res.CoinbaseValue,
	}
}

// TxHashes returns the hashes of the template transactions, coinbase
// excluded.
func (t *BlockTemplate) TxHashes() []string {
	res := make([]string, 0, len(t.Transactions))
	for _, tx := range t.Transactions {
		res = append(res, tx.Hash)
	}
	return res
}
