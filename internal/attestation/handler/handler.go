package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"attestor/internal/attestation/models"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/httputil"
	"attestor/pkg/requestcontext"
)

const (
	messageIssued          = "Verification successful"
	messageAlreadyVerified = "User already verified"
)

// Service defines the attestation operations exposed over HTTP.
type Service interface {
	Issue(ctx context.Context, req *models.VerifyRequest) (*models.IssueResult, error)
	Status(ctx context.Context, address string) (*models.Status, error)
	VerifySignature(ctx context.Context, req *models.SignatureCheckRequest) (*models.VerifyResult, error)
	Authority() common.Address
}

// Handler serves the public KYC and attestation endpoints.
type Handler struct {
	service      Service
	logger       *slog.Logger
	issueLimiter func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithIssuanceLimiter wraps POST /api/verify, the only route that spends
// authority signatures.
func WithIssuanceLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.issueLimiter = mw
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the public routes. Cross-cutting middleware is applied by
// the caller.
func (h *Handler) Register(r chi.Router) {
	if h.issueLimiter != nil {
		r.With(h.issueLimiter).Post("/api/verify", h.handleVerify)
	} else {
		r.Post("/api/verify", h.handleVerify)
	}
	r.Get("/api/status/{address}", h.handleStatus)
	r.Post("/api/attestations/verify", h.handleCheckSignature)
	r.Get("/api/signer", h.handleSigner)
}

type issueResponse struct {
	Message       string `json:"message"`
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	Nonce         uint64 `json:"nonce"`
}

type statusResponse struct {
	Verified  bool   `json:"verified"`
	Signature string `json:"signature,omitempty"`
}

type checkResponse struct {
	Valid     bool   `json:"valid"`
	Authority string `json:"authority"`
}

type signerResponse struct {
	Address string `json:"address"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid verify request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.service.Issue(ctx, &req)
	if err != nil {
		if dErrors.IsClientError(codeOf(err)) {
			h.logger.InfoContext(ctx, "verify request rejected",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	message := messageIssued
	if res.AlreadyVerified {
		message = messageAlreadyVerified
	}
	httputil.WriteJSON(w, http.StatusOK, issueResponse{
		Message:       message,
		WalletAddress: req.WalletAddress,
		Signature:     res.Signature,
		Nonce:         res.Nonce,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Status(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !st.Found {
		httputil.WriteJSON(w, http.StatusNotFound, statusResponse{Verified: false})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{
		Verified:  st.Verified,
		Signature: st.Signature,
	})
}

func (h *Handler) handleCheckSignature(w http.ResponseWriter, r *http.Request) {
	var req models.SignatureCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	res, err := h.service.VerifySignature(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, checkResponse{Valid: res.Valid, Authority: res.Authority})
}

func (h *Handler) handleSigner(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, signerResponse{Address: h.service.Authority().Hex()})
}

func codeOf(err error) dErrors.Code {
	if de, ok := dErrors.As(err); ok {
		return de.Code
	}
	return dErrors.CodeInternal
}
