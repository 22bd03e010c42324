package wire

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BlockHeaderLen is the number of bytes of a serialized block header.
// Version 4 bytes + PrevBlock 32 bytes + MerkleRoot 32 bytes + Timestamp
// 4 bytes + Bits 4 bytes + Nonce 4 bytes.
const BlockHeaderLen = 80

// NonceOffset is the position of the nonce inside a serialized header. It is
// the only part of the header that changes while searching.
const NonceOffset = 76

var (
	// ErrInvalidPrevHash is returned when the previous block hash is not 64
	// hex digits.
	ErrInvalidPrevHash = errors.New("invalid previous block hash")

	// ErrInvalidBits is returned when the bits field is not 8 hex digits.
	ErrInvalidBits = errors.New("invalid bits")

	// ErrInvalidHeaderLen is returned when decoding a header that is not
	// exactly BlockHeaderLen bytes.
	ErrInvalidHeaderLen = errors.New("invalid block header length")
)

// BlockHeader defines information about a block and is the part of the
// block that is hashed while mining.
type BlockHeader struct {
	// Version of the block.  This is not the same as the protocol version.
	Version uint32

	// Hash of the previous block header in internal byte order, that is
	// reversed relative to the form printed by node RPCs.
	PrevBlock chainhash.Hash

	// Merkle tree reference to hash of all transactions for the block.
	MerkleRoot pow.Hash

	// Time the block was created, seconds since the epoch.
	Timestamp uint32

	// Difficulty target exactly as the decoded "bits" hex string, most
	// significant byte first.
	Bits [4]byte

	// Nonce used to generate the block.
	Nonce uint32
}

// NewBlockHeader returns a new BlockHeader built from block template fields.
// prevHashHex is the display form of the previous block hash and bitsHex the
// compact target as 8 hex digits.
func NewBlockHeader(version uint32, prevHashHex string, merkleRoot pow.Hash,
	timestamp uint32, bitsHex string) (*BlockHeader, error) {

	if len(prevHashHex) != 2*chainhash.HashSize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPrevHash, len(prevHashHex))
	}
	prevHash, err := chainhash.NewHashFromStr(prevHashHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrevHash, err)
	}

	if len(bitsHex) != 8 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidBits, len(bitsHex))
	}
	var bits [4]byte
	if _, err := hex.Decode(bits[:], []byte(bitsHex)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBits, err)
	}

	return &BlockHeader{
		Version:    version,
		PrevBlock:  *prevHash,
		MerkleRoot: merkleRoot,
		Timestamp:  timestamp,
		Bits:       bits,
	}, nil
}

// CompactBits returns the compact difficulty encoded in the header.
func (h *BlockHeader) CompactBits() pow.CompactBits {
	return pow.CompactBits(binary.BigEndian.Uint32(h.Bits[:]))
}

// Target expands the header bits into the target a block hash must be below.
func (h *BlockHeader) Target() (pow.Target, error) {
	return pow.CompactToTarget(h.CompactBits())
}

// Bytes returns the 80 byte serialization of the header.
func (h *BlockHeader) Bytes() []byte {
	buf := make([]byte, BlockHeaderLen)
	h.put(buf)
	return buf
}

// Serialize encodes the header to w.
func (h *BlockHeader) Serialize(w io.Writer) error {
	_, err := w.Write(h.Bytes())
	return err
}

// Deserialize decodes a header from r.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	var buf [BlockHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	return h.FromBytes(buf[:])
}

// FromBytes decodes a header from its 80 byte serialization.
func (h *BlockHeader) FromBytes(b []byte) error {
	if len(b) != BlockHeaderLen {
		return fmt.Errorf("%w: %d", ErrInvalidHeaderLen, len(b))
	}
	h.Version = binary.LittleEndian.Uint32(b[0:4])
	copy(h.PrevBlock[:], b[4:36])
	copy(h.MerkleRoot[:], b[36:68])
	h.Timestamp = binary.LittleEndian.Uint32(b[68:72])
	copy(h.Bits[:], b[72:76])
	h.Nonce = binary.LittleEndian.Uint32(b[76:80])
	return nil
}

// BlockHash computes the double sha256 of the serialized header.
func (h *BlockHeader) BlockHash() pow.Hash {
	return pow.DoubleHash(h.Bytes())
}

// String returns a short description of the header for logging.
func (h *BlockHeader) String() string {
	return fmt.Sprintf("version=%d prev=%v merkle=%x time=%d bits=%x nonce=%d",
		h.Version, h.PrevBlock, h.MerkleRoot[:], h.Timestamp, h.Bits[:], h.Nonce)
}

func (h *BlockHeader) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	copy(buf[4:36], h.PrevBlock[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	copy(buf[72:76], h.Bits[:])
	binary.LittleEndian.PutUint32(buf[NonceOffset:BlockHeaderLen], h.Nonce)
}

// PutNonce overwrites the nonce of an already serialized header in place.
func PutNonce(header []byte, nonce uint32) {
	binary.LittleEndian.PutUint32(header[NonceOffset:BlockHeaderLen], nonce)
}
