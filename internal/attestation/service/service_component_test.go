package service_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor/internal/attestation/lock"
	"attestor/internal/attestation/metrics"
	"attestor/internal/attestation/models"
	"attestor/internal/attestation/service"
	"attestor/internal/attestation/signer"
	"attestor/internal/attestation/store"
	"attestor/internal/attestation/verifier"
	"attestor/internal/audit"
	auditmemory "attestor/internal/audit/store/memory"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/requestcontext"
	bdd "attestor/pkg/testutil"
)

const (
	authorityKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	authorityAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	userAddress      = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	otherAddress     = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"

	// authority signatures over (userAddress, 0) and (userAddress, 1)
	sigNonce0 = "0xd6a30f3a34ce750413e0b999d66602fc9a2edf0158b33a1fb99d01c1e9fe31fe3d8c37c06f45f57bf1dda042410aa3a7da00c130723d257ec944361da444ccc11b"
	sigNonce1 = "0xb564785a3911c37f4343f13d4a3baa3bb67654749c138c117531748a128f9b142be7a92a610aeab09500dee3c63a532c9d41650397066c4c3b13a4a1bab2285d1b"
)

type harness struct {
	svc     *service.Service
	store   *store.InMemoryStore
	audit   *auditmemory.InMemoryStore
	metrics *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sgn, err := signer.Load(authorityKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sgn.Close() })

	h := &harness{
		store:   store.NewInMemoryStore(),
		audit:   auditmemory.NewInMemoryStore(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	h.svc = service.New(h.store, lock.NewSharded(), sgn,
		service.WithAuditPublisher(audit.NewPublisher(h.audit)),
		service.WithMetrics(h.metrics),
	)
	return h
}

func kyc(wallet string) *models.VerifyRequest {
	return &models.VerifyRequest{WalletAddress: wallet, Aadhaar: "123456789012", PAN: "abcde1234f"}
}

func TestIssuanceLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	bdd.Given(t, "a wallet that has never been verified", func(t *testing.T) {
		bdd.When(t, "KYC is submitted", func(t *testing.T) {
			res, err := h.svc.Issue(ctx, kyc(userAddress))
			require.NoError(t, err)

			bdd.Then(t, "the credential matches the registry's expected signature for nonce 0", func(t *testing.T) {
				assert.Equal(t, sigNonce0, res.Signature)
				assert.Equal(t, uint64(0), res.Nonce)
				assert.True(t, verifier.VerifyUint64(userAddress, 0, res.Signature, authorityAddress))
			})
			bdd.And(t, "the stored nonce has advanced", func(t *testing.T) {
				rec, err := h.store.FindByAddress(ctx, models.WalletAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8"))
				require.NoError(t, err)
				assert.Equal(t, uint64(1), rec.Nonce)
				assert.Equal(t, sigNonce0, rec.Signature)
			})
		})

		bdd.When(t, "KYC is submitted again", func(t *testing.T) {
			res, err := h.svc.Issue(ctx, kyc(userAddress))
			require.NoError(t, err)

			bdd.Then(t, "the stored credential is returned and no nonce is consumed", func(t *testing.T) {
				assert.True(t, res.AlreadyVerified)
				assert.Equal(t, sigNonce0, res.Signature)
				st, err := h.svc.Status(ctx, userAddress)
				require.NoError(t, err)
				assert.Equal(t, uint64(1), st.Nonce)
			})
		})

		bdd.When(t, "an operator revokes and KYC is submitted once more", func(t *testing.T) {
			_, err := h.svc.Revoke(ctx, userAddress)
			require.NoError(t, err)

			st, err := h.svc.Status(ctx, userAddress)
			require.NoError(t, err)
			assert.False(t, st.Verified)
			assert.Empty(t, st.Signature)

			res, err := h.svc.Issue(ctx, kyc(userAddress))
			require.NoError(t, err)

			bdd.Then(t, "a fresh credential is signed under the next nonce", func(t *testing.T) {
				assert.Equal(t, sigNonce1, res.Signature)
				assert.Equal(t, uint64(1), res.Nonce)
				assert.False(t, verifier.VerifyUint64(userAddress, 1, sigNonce0, authorityAddress),
					"the revoked credential cannot pass for the new nonce")
			})
		})
	})

	bdd.Given(t, "documents already bound to a wallet", func(t *testing.T) {
		_, err := h.svc.Issue(ctx, kyc(otherAddress))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateIdentity))

		st, err := h.svc.Status(ctx, otherAddress)
		require.NoError(t, err)
		assert.False(t, st.Found)
	})

	events, err := h.audit.ListRecent(ctx, 10)
	require.NoError(t, err)
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		string(audit.EventAttestationIssued),
		string(audit.EventAttestationReused),
		string(audit.EventAttestationRevoked),
		string(audit.EventAttestationIssued),
		string(audit.EventIdentityDuplicateRejected),
	}, actions)
}

func TestConcurrentIssuanceSignsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	const callers = 16

	var wg sync.WaitGroup
	results := make([]*models.IssueResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.Issue(ctx, kyc(userAddress))
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, sigNonce0, results[i].Signature)
		if !results[i].AlreadyVerified {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IssuanceTotal.WithLabelValues(metrics.OutcomeIssued)))
	assert.Equal(t, float64(callers-1), testutil.ToFloat64(h.metrics.IssuanceTotal.WithLabelValues(metrics.OutcomeReused)))
}

func TestVerifySignature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, authorityAddress, h.svc.Authority().Hex())

	res, err := h.svc.VerifySignature(ctx, &models.SignatureCheckRequest{
		WalletAddress: userAddress, Nonce: "0", Signature: sigNonce0,
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, authorityAddress, res.Authority)

	res, err = h.svc.VerifySignature(ctx, &models.SignatureCheckRequest{
		WalletAddress: userAddress, Nonce: "1", Signature: sigNonce0,
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)

	huge := new(big.Int).Lsh(big.NewInt(1), 256).String()
	res, err = h.svc.VerifySignature(ctx, &models.SignatureCheckRequest{
		WalletAddress: userAddress, Nonce: huge, Signature: sigNonce0,
	})
	require.NoError(t, err)
	assert.False(t, res.Valid, "nonces beyond uint256 never verify")

	_, err = h.svc.VerifySignature(ctx, &models.SignatureCheckRequest{WalletAddress: userAddress})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestIssueGivesUpWhenLockIsHeld(t *testing.T) {
	sgn, err := signer.Load(authorityKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sgn.Close() })

	locker := lock.NewSharded()
	svc := service.New(store.NewInMemoryStore(), locker, sgn, service.WithLockWait(20*time.Millisecond))

	addr, ok := models.ParseWalletAddress(userAddress)
	require.True(t, ok)
	release, err := locker.Lock(context.Background(), addr.String())
	require.NoError(t, err)
	defer release()

	res, err := svc.Issue(context.Background(), kyc(userAddress))
	assert.Nil(t, res)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePersistence))
}

func TestAuditEventsCarryClientMetadata(t *testing.T) {
	h := newHarness(t)
	ctx := requestcontext.WithClient(requestcontext.WithRequestID(context.Background(), "req-1"), "192.0.2.0/24", "Firefox 128.0 (Linux x86_64)")

	_, err := h.svc.Issue(ctx, kyc(userAddress))
	require.NoError(t, err)

	events, err := h.audit.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventAttestationIssued), events[0].Action)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, "192.0.2.0/24", events[0].ClientIP)
	assert.Equal(t, "Firefox 128.0 (Linux x86_64)", events[0].Client)
}
