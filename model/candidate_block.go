package model

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/wire"
)

var (
	// ErrNoCoinbaseSource is returned when a template carries neither
	// coinbasetxn nor coinbasevalue.
	ErrNoCoinbaseSource = errors.New("template has no coinbasetxn and no coinbasevalue")

	// ErrInvalidTemplateTx is returned when a template transaction is not
	// valid hex.
	ErrInvalidTemplateTx = errors.New("invalid template transaction")
)

// CandidateBlock is a block template turned into an 80-byte header and the
// raw transactions, ready for nonce search.
type CandidateBlock struct {
	Height       int64
	WorkID       string
	Header       wire.BlockHeader
	Transactions [][]byte
	Target       pow.Target
}

// NewCandidateBlock assembles a candidate block from the template. The
// coinbase supplied by the node is used as is. Without one a coinbase paying
// the whole coinbasevalue to pkScript is built, tagged with tag.
func (t *BlockTemplate) NewCandidateBlock(pkScript []byte, tag string) (*CandidateBlock, error) {
	coinbase, err := t.coinbase(pkScript, tag)
	if err != nil {
		return nil, err
	}

	txs := make([][]byte, 0, len(t.Transactions)+1)
	txs = append(txs, coinbase)
	for i, tx := range t.Transactions {
		raw, err := hex.DecodeString(tx.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %d: %v", ErrInvalidTemplateTx, i, err)
		}
		txs = append(txs, raw)
	}

	merkleRoot := wire.CalcMerkleRoot(txs)
	header, err := wire.NewBlockHeader(uint32(t.Version), t.PreviousHash, merkleRoot,
		uint32(t.CurTime), t.Bits)
	if err != nil {
		return nil, err
	}
	target, err := header.Target()
	if err != nil {
		return nil, err
	}

	return &CandidateBlock{
		Height:       t.Height,
		WorkID:       t.WorkID,
		Header:       *header,
		Transactions: txs,
		Target:       target,
	}, nil
}

func (t *BlockTemplate) coinbase(pkScript []byte, tag string) ([]byte, error) {
	if t.CoinbaseTxn != nil && t.CoinbaseTxn.Data != "" {
		raw, err := hex.DecodeString(t.CoinbaseTxn.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: coinbase: %v", ErrInvalidTemplateTx, err)
		}
		return raw, nil
	}
	if t.CoinbaseValue == nil {
		return nil, ErrNoCoinbaseSource
	}

	tx, err := wire.NewCoinbaseTx(t.Height, *t.CoinbaseValue, pkScript, tag)
	if err != nil {
		return nil, err
	}
	return wire.SerializeTx(tx)
}

// HeaderBytes returns the serialized header with a zero nonce.
func (c *CandidateBlock) HeaderBytes() []byte {
	header := c.Header
	header.Nonce = 0
	return header.Bytes()
}

// Block returns the block solved by nonce.
func (c *CandidateBlock) Block(nonce uint32) *wire.MsgBlock {
	header := c.Header
	header.Nonce = nonce
	return wire.NewMsgBlock(&header, c.Transactions)
}
