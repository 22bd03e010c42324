package utils

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	btcchaincfg "github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrMalformedAddress is returned when an address string can not be
	// decoded at all.
	ErrMalformedAddress = errors.New("malformed address")

	// ErrUnsupportedAddress is returned for a valid address of a type the
	// miner can not pay to. Only pay-to-pubkey-hash is supported.
	ErrUnsupportedAddress = errors.New("unsupported address type")

	// ErrWrongNetwork is returned when the address belongs to another
	// network.
	ErrWrongNetwork = errors.New("address is for another network")
)

// DecodeMiningAddress decodes a base58check pay-to-pubkey-hash address for
// the given network.
func DecodeMiningAddress(addr string, params *btcchaincfg.Params) (*btcutil.AddressPubKeyHash, error) {
	if IsBlank(addr) {
		return nil, fmt.Errorf("%w: empty", ErrMalformedAddress)
	}

	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAddress, err)
	}

	pkh, ok := decoded.(*btcutil.AddressPubKeyHash)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAddress, decoded)
	}
	if !pkh.IsForNet(params) {
		return nil, fmt.Errorf("%w: %s", ErrWrongNetwork, params.Name)
	}

	return pkh, nil
}

// PayToAddrScript resolves a mining address into its locking script:
// OP_DUP OP_HASH160 <20 byte hash> OP_EQUALVERIFY OP_CHECKSIG.
func PayToAddrScript(addr string, params *btcchaincfg.Params) ([]byte, error) {
	pkh, err := DecodeMiningAddress(addr, params)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(pkh)
}
