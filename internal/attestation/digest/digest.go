// Package digest fixes the byte layout shared by the off-chain issuer and the
// on-chain identity registry.
//
// Wire format v1:
//
//	messageHash  = keccak256(address[20] || uint256_be(nonce)[32])
//	personalHash = keccak256("\x19Ethereum Signed Message:\n32" || messageHash)
//
// This is Solidity's keccak256(abi.encodePacked(address, uint256)) followed by
// the EIP-191 personal-message prefix applied by toEthSignedMessageHash. Any
// change here silently breaks every credential already issued.
package digest

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// WireFormatVersion identifies the packing above.
const WireFormatVersion = 1

// ErrNonceOutOfRange is returned for nonces that do not fit a uint256.
var ErrNonceOutOfRange = errors.New("nonce must be a non-negative 256-bit integer")

// PackedLength is the size of the encoded preimage.
const PackedLength = common.AddressLength + 32

// Pack returns address || uint256_be(nonce).
func Pack(addr common.Address, nonce *big.Int) ([]byte, error) {
	if nonce == nil || nonce.Sign() < 0 || nonce.BitLen() > 256 {
		return nil, ErrNonceOutOfRange
	}
	out := make([]byte, 0, PackedLength)
	out = append(out, addr.Bytes()...)
	out = append(out, common.LeftPadBytes(nonce.Bytes(), 32)...)
	return out, nil
}

// MessageHash computes keccak256(Pack(addr, nonce)).
func MessageHash(addr common.Address, nonce *big.Int) (common.Hash, error) {
	packed, err := Pack(addr, nonce)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

// MessageHashUint64 is MessageHash for counters kept as uint64.
func MessageHashUint64(addr common.Address, nonce uint64) common.Hash {
	h, _ := MessageHash(addr, new(big.Int).SetUint64(nonce))
	return h
}

// PersonalHash applies the EIP-191 "\x19Ethereum Signed Message:\n32" prefix.
func PersonalHash(messageHash common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(messageHash.Bytes()))
}
