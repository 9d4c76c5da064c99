package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attestor/internal/attestation/models"
	"attestor/internal/audit"
	"attestor/internal/platform/middleware"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/httputil"
	"attestor/pkg/requestcontext"
)

// Service defines the operator actions on identity records.
type Service interface {
	Record(ctx context.Context, address string) (*models.IdentityRecord, error)
	Revoke(ctx context.Context, address string) (*models.IdentityRecord, error)
}

// Handler serves the JWT-protected operator API.
type Handler struct {
	service   Service
	validator middleware.AdminTokenValidator
	logger    *slog.Logger
	history   audit.Reader
}

type Option func(*Handler)

// WithHistory exposes a wallet's audit trail at
// GET /admin/identities/{address}/events.
func WithHistory(reader audit.Reader) Option {
	return func(h *Handler) {
		h.history = reader
	}
}

func New(service Service, validator middleware.AdminTokenValidator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, validator: validator, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts /admin routes behind RequireAdmin.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.validator, h.logger))
		r.Get("/identities/{address}", h.handleGetIdentity)
		r.Post("/identities/{address}/revoke", h.handleRevoke)
		if h.history != nil {
			r.Get("/identities/{address}/events", h.handleHistory)
		}
	})
}

func (h *Handler) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Record(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(record))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := chi.URLParam(r, "address")

	record, err := h.service.Revoke(ctx, address)
	if err != nil {
		h.logger.WarnContext(ctx, "revocation failed",
			"wallet_address", address,
			"actor", requestcontext.AdminSubject(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(record))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, ok := models.ParseWalletAddress(chi.URLParam(r, "address"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "Invalid wallet address"))
		return
	}

	events, err := h.history.ListBySubject(ctx, addr.String())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load audit history",
			"wallet_address", addr,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodePersistence, "failed to load audit history"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, &HistoryResponse{WalletAddress: addr.String(), Events: events})
}

func toResponse(r *models.IdentityRecord) *IdentityResponse {
	return &IdentityResponse{
		ID:            r.ID.String(),
		WalletAddress: r.WalletAddress.String(),
		AadhaarHash:   r.Documents.AadhaarHash,
		PANHash:       r.Documents.PANHash,
		Verified:      r.IsVerified,
		Signature:     r.Signature,
		Nonce:         r.Nonce,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
