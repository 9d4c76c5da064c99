package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks IdentityStore,Locker,AttestationSigner,AuditPublisher

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"attestor/internal/attestation/metrics"
	"attestor/internal/attestation/models"
	"attestor/internal/attestation/signer"
	"attestor/internal/attestation/verifier"
	"attestor/internal/audit"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/sentinel"
	"attestor/pkg/requestcontext"
)

type IdentityStore interface {
	FindByAddress(ctx context.Context, addr models.WalletAddress) (*models.IdentityRecord, error)
	FindByDocument(ctx context.Context, fingerprint string) (*models.IdentityRecord, error)
	CompareAndSwap(ctx context.Context, record *models.IdentityRecord, expectedNonce uint64) error
	Revoke(ctx context.Context, addr models.WalletAddress, expectedNonce uint64, at time.Time) error
}

// Locker serializes issuance per wallet address.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type AttestationSigner interface {
	Address() common.Address
	Sign(addr common.Address, nonce uint64) (signer.Signature, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service issues and inspects wallet attestations. Issuance for one address
// runs under its lock, and the store write is a compare-and-swap on the
// nonce read under that lock, so two replicas can never sign the same nonce
// into a persisted record.
type Service struct {
	store   IdentityStore
	locker  Locker
	signer  AttestationSigner
	logger  *slog.Logger
	auditor AuditPublisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	lockWait time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLockWait bounds how long Issue and Revoke wait for the per-address
// lock. Zero leaves the wait bounded only by the caller's context.
func WithLockWait(d time.Duration) Option {
	return func(s *Service) {
		s.lockWait = d
	}
}

// New constructs a Service.
func New(store IdentityStore, locker Locker, signer AttestationSigner, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locker: locker,
		signer: signer,
		logger: slog.Default(),
		tracer: otel.Tracer("attestor/attestation"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue runs KYC for req and returns a credential for the wallet. A wallet
// that is already verified gets its stored credential back and no nonce is
// consumed. A signature is only returned once the record carrying it has
// been persisted.
func (s *Service) Issue(ctx context.Context, req *models.VerifyRequest) (*models.IssueResult, error) {
	start := time.Now()
	defer s.metrics.ObserveIssuance(start)

	ctx, span := s.tracer.Start(ctx, "attestation.Issue")
	defer span.End()

	if err := req.Validate(); err != nil {
		s.metrics.IncrementIssuance(metrics.OutcomeRejected)
		return nil, err
	}
	addr, ok := models.ParseWalletAddress(req.WalletAddress)
	if !ok {
		s.metrics.IncrementIssuance(metrics.OutcomeRejected)
		return nil, dErrors.New(dErrors.CodeValidation, "Invalid wallet address")
	}
	docs := models.FingerprintDocuments(req.Aadhaar, req.PAN)
	span.SetAttributes(attribute.String("wallet_address", addr.String()))

	lockStart := time.Now()
	release, err := s.lock(ctx, addr)
	s.metrics.ObserveLockWait(time.Since(lockStart))
	if err != nil {
		return nil, s.fail(ctx, span, err, "failed to acquire issuance lock", "wallet_address", addr)
	}
	defer release()

	existing, err := s.store.FindByAddress(ctx, addr)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, s.fail(ctx, span, err, "failed to load identity", "wallet_address", addr)
	}

	if existing != nil && existing.IsVerified {
		signed, _ := existing.SignedNonce()
		s.metrics.IncrementIssuance(metrics.OutcomeReused)
		s.emit(ctx, audit.EventAttestationReused, addr, signed, "")
		return &models.IssueResult{
			WalletAddress:   addr,
			Signature:       existing.Signature,
			Nonce:           signed,
			AlreadyVerified: true,
		}, nil
	}

	if err := s.ensureDocumentsAvailable(ctx, addr, docs); err != nil {
		if dErrors.HasCode(err, dErrors.CodeDuplicateIdentity) {
			s.metrics.IncrementIssuance(metrics.OutcomeDuplicate)
			s.emit(ctx, audit.EventIdentityDuplicateRejected, addr, 0, "document bound to another wallet")
			span.SetStatus(codes.Error, "duplicate identity")
			return nil, err
		}
		return nil, s.fail(ctx, span, err, "failed to check identity documents", "wallet_address", addr)
	}

	var nonce uint64
	if existing != nil {
		nonce = existing.Nonce
	}
	span.SetAttributes(attribute.Int64("nonce", int64(nonce)))

	sig, err := s.signer.Sign(addr.Address(), nonce)
	if err != nil {
		s.metrics.IncrementIssuance(metrics.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "signing failed")
		s.logger.ErrorContext(ctx, "failed to sign attestation",
			"error", err,
			"wallet_address", addr,
			"nonce", nonce,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeSigning, "failed to sign attestation")
	}

	record := models.Issued(existing, addr, docs, sig.Hex(), nonce, s.now())
	if err := s.store.CompareAndSwap(ctx, record, nonce); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			s.metrics.IncrementIssuance(metrics.OutcomeDuplicate)
			s.emit(ctx, audit.EventIdentityDuplicateRejected, addr, nonce, "document bound to another wallet")
			return nil, duplicateIdentity()
		}
		return nil, s.fail(ctx, span, err, "failed to persist attestation", "wallet_address", addr, "nonce", nonce)
	}

	s.metrics.IncrementIssuance(metrics.OutcomeIssued)
	s.emit(ctx, audit.EventAttestationIssued, addr, nonce, "")
	s.logger.InfoContext(ctx, "attestation issued",
		"wallet_address", addr,
		"nonce", nonce,
		"request_id", requestcontext.RequestID(ctx),
	)

	return &models.IssueResult{
		WalletAddress: addr,
		Signature:     sig.Hex(),
		Nonce:         nonce,
	}, nil
}

func (s *Service) ensureDocumentsAvailable(ctx context.Context, addr models.WalletAddress, docs models.DocumentRefs) error {
	for _, fp := range docs.All() {
		owner, err := s.store.FindByDocument(ctx, fp)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if owner.WalletAddress != addr {
			return duplicateIdentity()
		}
	}
	return nil
}

func duplicateIdentity() error {
	return dErrors.New(dErrors.CodeDuplicateIdentity, "Identity documents are already linked to another wallet")
}

// Status reports whether a wallet holds a credential. Unknown or malformed
// addresses are simply not found.
func (s *Service) Status(ctx context.Context, rawAddress string) (*models.Status, error) {
	addr, ok := models.ParseWalletAddress(rawAddress)
	if !ok {
		return &models.Status{}, nil
	}
	record, err := s.store.FindByAddress(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.Status{}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to load identity")
	}
	status := &models.Status{
		Found:    true,
		Verified: record.IsVerified,
		Nonce:    record.Nonce,
	}
	if record.IsVerified {
		status.Signature = record.Signature
	}
	return status, nil
}

// Record returns the full stored record for operators.
func (s *Service) Record(ctx context.Context, rawAddress string) (*models.IdentityRecord, error) {
	addr, ok := models.ParseWalletAddress(rawAddress)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "Invalid wallet address")
	}
	record, err := s.store.FindByAddress(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to load identity")
	}
	return record, nil
}

// Revoke withdraws the credential held by a wallet. The nonce is kept, so the
// next issuance signs a value never signed before and the revoked signature
// cannot be replayed as the new one.
func (s *Service) Revoke(ctx context.Context, rawAddress string) (*models.IdentityRecord, error) {
	ctx, span := s.tracer.Start(ctx, "attestation.Revoke")
	defer span.End()

	addr, ok := models.ParseWalletAddress(rawAddress)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "Invalid wallet address")
	}

	release, err := s.lock(ctx, addr)
	if err != nil {
		return nil, s.fail(ctx, span, err, "failed to acquire issuance lock", "wallet_address", addr)
	}
	defer release()

	record, err := s.store.FindByAddress(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, s.fail(ctx, span, err, "failed to load identity", "wallet_address", addr)
	}
	if !record.IsVerified {
		return nil, dErrors.New(dErrors.CodeConflict, "identity holds no active credential")
	}

	now := s.now()
	if err := s.store.Revoke(ctx, addr, record.Nonce, now); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "identity changed concurrently")
		}
		return nil, s.fail(ctx, span, err, "failed to revoke attestation", "wallet_address", addr)
	}

	signed, _ := record.SignedNonce()
	s.metrics.IncrementRevocation()
	s.emit(ctx, audit.EventAttestationRevoked, addr, signed, "")
	s.logger.InfoContext(ctx, "attestation revoked",
		"wallet_address", addr,
		"nonce", signed,
		"actor", requestcontext.AdminSubject(ctx),
	)
	return models.Revoked(record, now), nil
}

// Authority is the address every issued credential recovers to.
func (s *Service) Authority() common.Address {
	return s.signer.Address()
}

// VerifySignature checks a credential against this service's authority with
// the same rules the on-chain registry applies.
func (s *Service) VerifySignature(ctx context.Context, req *models.SignatureCheckRequest) (*models.VerifyResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	nonce, ok := new(big.Int).SetString(req.Nonce, 10)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "nonce must be a decimal integer")
	}
	authority := s.signer.Address().Hex()
	valid := verifier.Verify(req.WalletAddress, nonce, req.Signature, authority)
	s.metrics.IncrementVerification(valid)
	s.logger.DebugContext(ctx, "signature pre-check",
		"wallet_address", req.WalletAddress,
		"nonce", req.Nonce,
		"valid", valid,
	)
	return &models.VerifyResult{Valid: valid, Authority: authority}, nil
}

// fail logs a server-side failure with full context and returns the generic
// persistence error the caller sees.
func (s *Service) fail(ctx context.Context, span trace.Span, err error, msg string, attrs ...any) error {
	s.metrics.IncrementIssuance(metrics.OutcomeFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	args := append([]any{"error", err, "request_id", requestcontext.RequestID(ctx)}, attrs...)
	s.logger.ErrorContext(ctx, msg, args...)
	return dErrors.Wrap(err, dErrors.CodePersistence, msg)
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, addr models.WalletAddress, nonce uint64, reason string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Category:  event.Category(),
		Action:    string(event),
		Subject:   addr.String(),
		Nonce:     nonce,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   requestcontext.AdminSubject(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		Client:    requestcontext.ClientAgent(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "error", err, "action", event)
	}
}

// lock acquires the address lock. Only the acquisition is bounded by
// lockWait; the critical section keeps the caller's context.
func (s *Service) lock(ctx context.Context, addr models.WalletAddress) (func(), error) {
	if s.lockWait <= 0 {
		return s.locker.Lock(ctx, addr.String())
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	return s.locker.Lock(waitCtx, addr.String())
}
