// Package signer holds the authority key. It is loaded once at startup,
// never mutated while serving, and zeroed on Close.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"attestor/internal/attestation/digest"
)

var (
	// ErrInvalidKey is returned when the configured key cannot be parsed.
	ErrInvalidKey = errors.New("authority key is not a valid secp256k1 private key")
	// ErrClosed is returned by Sign after Close.
	ErrClosed = errors.New("authority signer is closed")
)

// SignatureLength is r(32) || s(32) || v(1).
const SignatureLength = crypto.SignatureLength

// Signature is a recoverable personal-message signature with v in {27, 28},
// the layout produced by ethers' signMessage and accepted by ecrecover.
type Signature [SignatureLength]byte

// Hex returns the 0x-prefixed encoding.
func (s Signature) Hex() string {
	return hexutil.Encode(s[:])
}

// Signer signs attestation digests with the authority key.
type Signer struct {
	mu      sync.RWMutex
	key     *ecdsa.PrivateKey
	address common.Address
}

// Load parses a hex-encoded key, with or without 0x prefix.
func Load(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrInvalidKey
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return New(key), nil
}

// New wraps an already parsed key. The signer takes ownership of key.
func New(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address is the authority address the on-chain registry must trust.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign produces the credential for (addr, nonce) under wire format v1.
// Signing is deterministic (RFC 6979): equal inputs yield equal signatures.
func (s *Signer) Sign(addr common.Address, nonce uint64) (Signature, error) {
	return s.SignDigest(digest.MessageHashUint64(addr, nonce))
}

// SignDigest signs an already computed message hash, applying the
// personal-message prefix first.
func (s *Signer) SignDigest(messageHash common.Hash) (Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return Signature{}, ErrClosed
	}

	raw, err := crypto.Sign(digest.PersonalHash(messageHash).Bytes(), s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign attestation digest: %w", err)
	}

	var sig Signature
	copy(sig[:], raw)
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Close zeroes the private scalar and discards the key.
func (s *Signer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil
	}
	words := s.key.D.Bits()
	for i := range words {
		words[i] = 0
	}
	s.key.D.SetInt64(0)
	s.key = nil
	return nil
}
