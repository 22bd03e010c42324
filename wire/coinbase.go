package wire

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"
)

const (
	// CoinbaseTxVersion is the version of coinbase transactions built by
	// the miner.
	CoinbaseTxVersion = 1

	// maxCoinbaseScriptLen is the consensus limit on the coinbase
	// signature script.
	maxCoinbaseScriptLen = 100
)

// ErrCoinbaseScriptTooLong is returned when the height push and the tag do
// not fit in a coinbase signature script.
var ErrCoinbaseScriptTooLong = errors.New("coinbase script too long")

// CoinbaseScript returns the signature script of a coinbase for the given
// height: the height as a minimally encoded script number followed by the
// tag as a data push.
func CoinbaseScript(height int64, tag string) ([]byte, error) {
	builder := txscript.NewScriptBuilder().AddInt64(height)
	if tag != "" {
		builder.AddData([]byte(tag))
	}
	script, err := builder.Script()
	if err != nil {
		return nil, err
	}
	if len(script) > maxCoinbaseScriptLen {
		return nil, ErrCoinbaseScriptTooLong
	}
	return script, nil
}

// NewCoinbaseTx builds a coinbase transaction paying value to pkScript.
func NewCoinbaseTx(height int64, value int64, pkScript []byte, tag string) (*btcwire.MsgTx, error) {
	script, err := CoinbaseScript(height, tag)
	if err != nil {
		return nil, err
	}

	tx := btcwire.NewMsgTx(CoinbaseTxVersion)
	prevOut := btcwire.NewOutPoint(&chainhash.Hash{}, btcwire.MaxPrevOutIndex)
	txIn := btcwire.NewTxIn(prevOut, script, nil)
	txIn.Sequence = btcwire.MaxTxInSequenceNum
	tx.AddTxIn(txIn)
	tx.AddTxOut(btcwire.NewTxOut(value, pkScript))
	tx.LockTime = 0

	return tx, nil
}

// SerializeTx returns the legacy (no witness) serialization of tx.
func SerializeTx(tx *btcwire.MsgTx) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSizeStripped()))
	if err := tx.SerializeNoWitness(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
