package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	genesisCoinbaseHex = "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff4d04ffff001d0104455468652054696d65732030332f4a616e2f32303039204368616e63656c6c6f72206f6e206272696e6b206f66207365636f6e64206261696c6f757420666f722062616e6b73ffffffff0100f2052a01000000434104678afdb0fe5548271967f1a67130b7105cd6a828e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7ba0b8d578a4c702b6bf11d5fac00000000"
	genesisHashStr     = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
)

func mustDecode(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestCalcMerkleRoot(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, pow.ZeroHash, CalcMerkleRoot(nil))
	})

	t.Run("single transaction", func(t *testing.T) {
		coinbase := mustDecode(t, genesisCoinbaseHex)
		root := CalcMerkleRoot([][]byte{coinbase})
		assert.Equal(t, "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b", root.Hex())
		assert.Equal(t, pow.DoubleHash(coinbase).Reversed(), root)
	})

	t.Run("two transactions", func(t *testing.T) {
		root := CalcMerkleRoot([][]byte{[]byte("a"), []byte("b")})
		assert.Equal(t, "b893a63a575c1fd0c68070835b2956f1fc9bed5b73f4d4d5ca4374703a9587a5", root.Hex())
	})

	t.Run("odd count duplicates last", func(t *testing.T) {
		odd := CalcMerkleRoot([][]byte{[]byte("a"), []byte("b"), []byte("c")})
		even := CalcMerkleRoot([][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("c")})
		assert.Equal(t, "4f0de0d3c87d1ab60e7f3ae8fdb06f2ed09ba1af29deb789441c47424599b5bc", odd.Hex())
		assert.Equal(t, even, odd)
	})
}

func TestNewBlockHeaderLayout(t *testing.T) {
	coinbase := mustDecode(t, genesisCoinbaseHex)
	root := CalcMerkleRoot([][]byte{coinbase})

	header, err := NewBlockHeader(2, genesisHashStr, root, 1231006505, "1d00ffff")
	require.NoError(t, err)
	header.Nonce = 7

	raw := header.Bytes()
	require.Len(t, raw, BlockHeaderLen)

	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(raw[0:4]))
	prev := mustDecode(t, genesisHashStr)
	for i := 0; i < 32; i++ {
		assert.Equal(t, prev[31-i], raw[4+i])
	}
	assert.Equal(t, root[:], raw[36:68])
	assert.Equal(t, uint32(1231006505), binary.LittleEndian.Uint32(raw[68:72]))
	assert.Equal(t, []byte{0x1d, 0x00, 0xff, 0xff}, raw[72:76])
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(raw[76:80]))

	assert.Equal(t, pow.CompactBits(0x1d00ffff), header.CompactBits())
	assert.Equal(t, "a79ee150a0db3f2e6cfba331331c7bf4da2d1bb955eec16a3ad97066396eb7a8",
		header.BlockHash().Hex())

	var decoded BlockHeader
	require.NoError(t, decoded.Deserialize(bytes.NewReader(raw)))
	assert.Equal(t, *header, decoded)
}

func TestPutNonceOnlyTouchesNonce(t *testing.T) {
	header, err := NewBlockHeader(1, genesisHashStr, pow.ZeroHash, 10, "207fffff")
	require.NoError(t, err)

	raw := header.Bytes()
	before := append([]byte(nil), raw...)
	PutNonce(raw, 0xdeadbeef)

	assert.Equal(t, before[:NonceOffset], raw[:NonceOffset])
	assert.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, raw[NonceOffset:])

	header.Nonce = 0xdeadbeef
	assert.Equal(t, header.Bytes(), raw)
}

func TestNewBlockHeaderErrors(t *testing.T) {
	_, err := NewBlockHeader(1, "00ff", pow.ZeroHash, 0, "1d00ffff")
	assert.True(t, errors.Is(err, ErrInvalidPrevHash))

	_, err = NewBlockHeader(1, genesisHashStr[:62]+"zz", pow.ZeroHash, 0, "1d00ffff")
	assert.True(t, errors.Is(err, ErrInvalidPrevHash))

	_, err = NewBlockHeader(1, genesisHashStr, pow.ZeroHash, 0, "1d00fff")
	assert.True(t, errors.Is(err, ErrInvalidBits))

	_, err = NewBlockHeader(1, genesisHashStr, pow.ZeroHash, 0, "1d00fffg")
	assert.True(t, errors.Is(err, ErrInvalidBits))

	var h BlockHeader
	assert.True(t, errors.Is(h.FromBytes(make([]byte, 79)), ErrInvalidHeaderLen))
}

func TestMsgBlockSerialize(t *testing.T) {
	header, err := NewBlockHeader(1, genesisHashStr, pow.ZeroHash, 10, "207fffff")
	require.NoError(t, err)

	tests := []struct {
		count  int
		prefix []byte
	}{
		{1, []byte{0x01}},
		{0xfc, []byte{0xfc}},
		{0xfd, []byte{0xfd, 0xfd, 0x00}},
		{0x10000, []byte{0xfe, 0x00, 0x00, 0x01, 0x00}},
	}

	for _, test := range tests {
		txs := make([][]byte, test.count)
		for i := range txs {
			txs[i] = []byte{byte(i)}
		}
		block := NewMsgBlock(header, txs)

		var buf bytes.Buffer
		require.NoError(t, block.Serialize(&buf))
		raw := buf.Bytes()

		assert.Equal(t, block.SerializeSize(), len(raw))
		assert.Equal(t, header.Bytes(), raw[:BlockHeaderLen])
		assert.Equal(t, test.prefix, raw[BlockHeaderLen:BlockHeaderLen+len(test.prefix)])
		assert.Equal(t, BlockHeaderLen+len(test.prefix)+test.count, len(raw))
	}

	assert.Equal(t, 9, btcwire.VarIntSerializeSize(0x100000000))
}

func TestMsgBlockHex(t *testing.T) {
	header, err := NewBlockHeader(1, genesisHashStr, pow.ZeroHash, 10, "207fffff")
	require.NoError(t, err)

	block := NewMsgBlock(header, [][]byte{{0xaa, 0xbb}})
	s, err := block.Hex()
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(header.Bytes())+"01aabb", s)
}

func TestNewCoinbaseTx(t *testing.T) {
	pkScript := mustDecode(t, "76a914000102030405060708090a0b0c0d0e0f1011121388ac")

	tx, err := NewCoinbaseTx(100, 5000000000, pkScript, "/abe-powminer/")
	require.NoError(t, err)

	require.Len(t, tx.TxIn, 1)
	in := tx.TxIn[0]
	assert.Equal(t, uint32(btcwire.MaxPrevOutIndex), in.PreviousOutPoint.Index)
	assert.Equal(t, chainhash.Hash{}, in.PreviousOutPoint.Hash)
	assert.Equal(t, uint32(btcwire.MaxTxInSequenceNum), in.Sequence)
	assert.Equal(t, []byte{0x01, 0x64, 0x0e}, in.SignatureScript[:3])
	assert.Equal(t, "/abe-powminer/", string(in.SignatureScript[3:]))

	require.Len(t, tx.TxOut, 1)
	assert.Equal(t, int64(5000000000), tx.TxOut[0].Value)
	assert.Equal(t, pkScript, tx.TxOut[0].PkScript)

	raw, err := SerializeTx(tx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00, 0x01}, raw[:5])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, raw[len(raw)-4:])
}

func TestCoinbaseScriptTooLong(t *testing.T) {
	_, err := CoinbaseScript(1, string(make([]byte, 120)))
	assert.True(t, errors.Is(err, ErrCoinbaseScriptTooLong))
}
