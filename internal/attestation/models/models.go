package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// WalletAddress is a 0x-prefixed, lowercase hex chain address. The lowercase
// form is the storage and lookup key; the checksum form is for display only.
type WalletAddress string

// ParseWalletAddress normalizes a syntactically valid address.
func ParseWalletAddress(raw string) (WalletAddress, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		return "", false
	}
	if !common.IsHexAddress(raw) {
		return "", false
	}
	return WalletAddress(strings.ToLower(common.HexToAddress(raw).Hex())), true
}

func (a WalletAddress) String() string { return string(a) }

// Address returns the 20-byte form used in message hashing.
func (a WalletAddress) Address() common.Address {
	return common.HexToAddress(string(a))
}

// DocumentKind tags a fingerprint so equal values of different document
// types never collide.
type DocumentKind string

const (
	DocumentAadhaar DocumentKind = "aadhaar"
	DocumentPAN     DocumentKind = "pan"
)

// DocumentRefs holds SHA-256 fingerprints of the identity documents. Raw
// document numbers are never persisted.
type DocumentRefs struct {
	AadhaarHash string
	PANHash     string
}

// FingerprintDocuments derives the stored refs from raw inputs.
func FingerprintDocuments(aadhaar, pan string) DocumentRefs {
	return DocumentRefs{
		AadhaarHash: Fingerprint(DocumentAadhaar, aadhaar),
		PANHash:     Fingerprint(DocumentPAN, strings.ToUpper(pan)),
	}
}

// Fingerprint hashes a document value under its kind.
func Fingerprint(kind DocumentKind, value string) string {
	sum := sha256.Sum256([]byte(string(kind) + ":" + strings.TrimSpace(value)))
	return hex.EncodeToString(sum[:])
}

// All returns every fingerprint in a stable order.
func (d DocumentRefs) All() []string {
	return []string{d.AadhaarHash, d.PANHash}
}

// IdentityRecord binds a wallet address to a KYC outcome and the last
// credential issued for it.
//
// Nonce is the next value to sign. For a verified record the stored
// Signature was produced over Nonce-1.
type IdentityRecord struct {
	ID            uuid.UUID
	WalletAddress WalletAddress
	Documents     DocumentRefs
	IsVerified    bool
	Signature     string
	Nonce         uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SignedNonce returns the nonce the stored signature covers.
func (r *IdentityRecord) SignedNonce() (uint64, bool) {
	if r == nil || !r.IsVerified || r.Nonce == 0 {
		return 0, false
	}
	return r.Nonce - 1, true
}

// Issued returns a copy of r carrying a freshly issued credential for nonce.
// A nil r starts a new record.
func Issued(r *IdentityRecord, addr WalletAddress, docs DocumentRefs, signature string, nonce uint64, now time.Time) *IdentityRecord {
	next := &IdentityRecord{
		ID:            uuid.New(),
		WalletAddress: addr,
		CreatedAt:     now,
	}
	if r != nil {
		copied := *r
		next = &copied
	}
	next.Documents = docs
	next.IsVerified = true
	next.Signature = signature
	next.Nonce = nonce + 1
	next.UpdatedAt = now
	return next
}

// Revoked returns a copy of r with its credential withdrawn. The nonce is
// kept so the next issuance signs a value never used before.
func Revoked(r *IdentityRecord, now time.Time) *IdentityRecord {
	copied := *r
	copied.IsVerified = false
	copied.Signature = ""
	copied.UpdatedAt = now
	return &copied
}

// IssueResult is the outcome of an issuance request.
type IssueResult struct {
	WalletAddress   WalletAddress
	Signature       string
	Nonce           uint64
	AlreadyVerified bool
}

// Status is the public view of a record.
type Status struct {
	Found     bool
	Verified  bool
	Signature string
	Nonce     uint64
}

// VerifyResult reports an off-chain signature pre-check.
type VerifyResult struct {
	Valid     bool
	Authority string
}
