package admin

import (
	"time"

	"attestor/internal/audit"
)

// IdentityResponse is the operator view of an identity record. Document
// fingerprints are shown; raw document numbers are never stored.
type IdentityResponse struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	AadhaarHash   string    `json:"aadhaar_hash"`
	PANHash       string    `json:"pan_hash"`
	Verified      bool      `json:"verified"`
	Signature     string    `json:"signature,omitempty"`
	Nonce         uint64    `json:"nonce"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HistoryResponse lists audit events for one wallet, oldest first.
type HistoryResponse struct {
	WalletAddress string        `json:"wallet_address"`
	Events        []audit.Event `json:"events"`
}
