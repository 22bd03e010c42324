package wire

import (
	"bytes"
	"encoding/hex"
	"io"

	btcwire "github.com/btcsuite/btcd/wire"
)

// MsgBlock is a solved block ready for submitblock: the header followed by
// the raw transactions, coinbase first.
type MsgBlock struct {
	Header       BlockHeader
	Transactions [][]byte
}

// NewMsgBlock returns a new block with the given header and transactions.
func NewMsgBlock(header *BlockHeader, txs [][]byte) *MsgBlock {
	return &MsgBlock{
		Header:       *header,
		Transactions: txs,
	}
}

// Serialize writes the header, a varint transaction count and the raw
// transactions to w.
func (msg *MsgBlock) Serialize(w io.Writer) error {
	err := msg.Header.Serialize(w)
	if err != nil {
		return err
	}

	err = btcwire.WriteVarInt(w, 0, uint64(len(msg.Transactions)))
	if err != nil {
		return err
	}

	for _, tx := range msg.Transactions {
		if _, err := w.Write(tx); err != nil {
			return err
		}
	}

	return nil
}

// SerializeSize returns the number of bytes Serialize writes.
func (msg *MsgBlock) SerializeSize() int {
	n := BlockHeaderLen + btcwire.VarIntSerializeSize(uint64(len(msg.Transactions)))
	for _, tx := range msg.Transactions {
		n += len(tx)
	}
	return n
}

// Hex returns the serialized block as a hex string, the form submitblock
// expects.
func (msg *MsgBlock) Hex() (string, error) {
	buf := bytes.NewBuffer(make([]byte, 0, msg.SerializeSize()))
	if err := msg.Serialize(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
