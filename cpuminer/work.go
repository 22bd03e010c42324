package cpuminer

import (
	"errors"
	"math"
	"strconv"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/wire"
)

// ErrInvalidHeaderWork is returned when header work is not built from an
// 80 byte header.
var ErrInvalidHeaderWork = errors.New("header work must be 80 bytes")

// Work is the piece of data a search goroutine hashes once per nonce. A
// Work value is not safe for concurrent use; every goroutine hashes its own
// Clone.
type Work interface {
	// Digest returns the proof of work hash for nonce.
	Digest(nonce uint64) pow.Hash

	// Clone returns an independent copy of the work.
	Clone() Work

	// MaxNonce is the largest nonce the work can encode.
	MaxNonce() uint64
}

// HeaderWork hashes a serialized block header with the nonce written at
// its fixed offset.
type HeaderWork struct {
	header []byte
}

// NewHeaderWork returns work for the given serialized header. The header is
// copied.
func NewHeaderWork(header []byte) (*HeaderWork, error) {
	if len(header) != wire.BlockHeaderLen {
		return nil, ErrInvalidHeaderWork
	}
	return &HeaderWork{header: append([]byte(nil), header...)}, nil
}

// Digest implements Work.
func (w *HeaderWork) Digest(nonce uint64) pow.Hash {
	wire.PutNonce(w.header, uint32(nonce))
	return pow.DoubleHash(w.header)
}

// Clone implements Work.
func (w *HeaderWork) Clone() Work {
	return &HeaderWork{header: append([]byte(nil), w.header...)}
}

// MaxNonce implements Work.
func (w *HeaderWork) MaxNonce() uint64 {
	return math.MaxUint32
}

// Header returns a copy of the header with the given nonce set.
func (w *HeaderWork) Header(nonce uint32) []byte {
	h := append([]byte(nil), w.header...)
	wire.PutNonce(h, nonce)
	return h
}

// TextWork hashes job data followed by the decimal nonce with a single
// sha256, the lightweight share function used by the pool.
type TextWork struct {
	data []byte
	buf  []byte
}

// NewTextWork returns work for the given job data.
func NewTextWork(data string) *TextWork {
	return &TextWork{
		data: []byte(data),
		buf:  make([]byte, 0, len(data)+20),
	}
}

// Digest implements Work.
func (w *TextWork) Digest(nonce uint64) pow.Hash {
	w.buf = append(w.buf[:0], w.data...)
	w.buf = strconv.AppendUint(w.buf, nonce, 10)
	return pow.SingleHash(w.buf)
}

// Clone implements Work.
func (w *TextWork) Clone() Work {
	return NewTextWork(string(w.data))
}

// MaxNonce implements Work.
func (w *TextWork) MaxNonce() uint64 {
	return math.MaxUint64
}
