package wire

import (
	"github.com/abesuite/abe-powminer/consensus/pow"
)

// CalcMerkleRoot computes the merkle root of the raw transactions, coinbase
// first. Every node of the tree is stored byte-reversed relative to the
// digest, which is the order the root is embedded in the block header. A
// level with an odd number of nodes pairs its last node with itself. An
// empty transaction list yields the zero hash.
func CalcMerkleRoot(txs [][]byte) pow.Hash {
	if len(txs) == 0 {
		return pow.ZeroHash
	}

	level := make([]pow.Hash, len(txs))
	for i, tx := range txs {
		level[i] = pow.DoubleHash(tx).Reversed()
	}

	var buf [2 * pow.HashSize]byte
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]pow.Hash, len(level)/2)
		for i := range next {
			copy(buf[:pow.HashSize], level[2*i][:])
			copy(buf[pow.HashSize:], level[2*i+1][:])
			next[i] = pow.DoubleHash(buf[:]).Reversed()
		}
		level = next
	}

	return level[0]
}
