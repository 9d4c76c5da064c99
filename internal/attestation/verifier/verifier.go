// Package verifier reproduces the identity registry's signature check
// off-chain. Every function here is pure: no I/O, no clocks, no panics.
package verifier

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"attestor/internal/attestation/digest"
)

// Verify reports whether signature is the authority's credential for
// (walletAddress, nonce). Malformed inputs of any kind yield false.
func Verify(walletAddress string, nonce *big.Int, signature string, authorityAddress string) bool {
	signer, ok := Recover(walletAddress, nonce, signature)
	if !ok {
		return false
	}
	authority, ok := parseAddress(authorityAddress)
	if !ok {
		return false
	}
	return signer == authority
}

// VerifyUint64 is Verify for counters kept as uint64.
func VerifyUint64(walletAddress string, nonce uint64, signature string, authorityAddress string) bool {
	return Verify(walletAddress, new(big.Int).SetUint64(nonce), signature, authorityAddress)
}

// Recover returns the address that signed the credential for
// (walletAddress, nonce).
func Recover(walletAddress string, nonce *big.Int, signature string) (common.Address, bool) {
	wallet, ok := parseAddress(walletAddress)
	if !ok {
		return common.Address{}, false
	}
	messageHash, err := digest.MessageHash(wallet, nonce)
	if err != nil {
		return common.Address{}, false
	}
	sig, ok := normalizeSignature(signature)
	if !ok {
		return common.Address{}, false
	}

	pub, err := crypto.SigToPub(digest.PersonalHash(messageHash).Bytes(), sig)
	if err != nil || pub == nil {
		return common.Address{}, false
	}
	return crypto.PubkeyToAddress(*pub), true
}

// normalizeSignature decodes r||s||v, maps v from {27,28} to {0,1} and
// rejects upper-range s values the way OpenZeppelin's ECDSA.recover does.
func normalizeSignature(signature string) ([]byte, bool) {
	raw, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(raw) != crypto.SignatureLength {
		return nil, false
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, raw)

	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, false
	}
	sig[crypto.RecoveryIDOffset] = v

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return nil, false
	}
	return sig, true
}

func parseAddress(raw string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(raw), "0x") || !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
