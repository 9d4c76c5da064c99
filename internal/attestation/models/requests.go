package models

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "attestor/pkg/domain-errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// VerifyRequest is the KYC submission. Document checks are format-only: this
// service simulates the government registry, it does not query one.
type VerifyRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required"`
	Aadhaar       string `json:"aadhaar" validate:"required"`
	PAN           string `json:"pan" validate:"required"`
}

type verifyRequestFormat struct {
	WalletAddress string `validate:"eth_addr"`
	Aadhaar       string `validate:"len=12,number"`
	PAN           string `validate:"len=10,alphanum"`
}

// Sanitize trims whitespace from all inputs.
func (r *VerifyRequest) Sanitize() {
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
	r.Aadhaar = strings.TrimSpace(r.Aadhaar)
	r.PAN = strings.ToUpper(strings.TrimSpace(r.PAN))
}

// Validate checks presence first, then shape, so the caller sees the same
// messages the original KYC endpoint returned.
func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "Missing required fields")
	}
	r.Sanitize()
	if err := validate.Struct(r); err != nil {
		return dErrors.New(dErrors.CodeValidation, "Missing required fields")
	}
	if err := validate.Struct(verifyRequestFormat{
		WalletAddress: r.WalletAddress,
		Aadhaar:       r.Aadhaar,
		PAN:           r.PAN,
	}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "WalletAddress" {
			return dErrors.New(dErrors.CodeValidation, "Invalid wallet address")
		}
		return dErrors.New(dErrors.CodeValidation, "Invalid document format")
	}
	return nil
}

// SignatureCheckRequest asks the service to pre-validate a credential the way
// the on-chain registry would.
type SignatureCheckRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required,eth_addr"`
	Nonce         string `json:"nonce" validate:"required,number"`
	Signature     string `json:"signature" validate:"required,startswith=0x"`
}

// Validate checks field presence and shape.
func (r *SignatureCheckRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "Missing required fields")
	}
	r.WalletAddress = strings.TrimSpace(r.WalletAddress)
	r.Nonce = strings.TrimSpace(r.Nonce)
	r.Signature = strings.TrimSpace(r.Signature)
	if err := validate.Struct(r); err != nil {
		return dErrors.New(dErrors.CodeValidation, "walletAddress, nonce and signature are required")
	}
	return nil
}
