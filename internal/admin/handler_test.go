package admin_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"attestor/internal/admin"
	"attestor/internal/attestation/lock"
	"attestor/internal/attestation/models"
	"attestor/internal/attestation/service"
	"attestor/internal/attestation/signer"
	"attestor/internal/attestation/store"
	"attestor/internal/audit"
	auditmemory "attestor/internal/audit/store/memory"
	jwttoken "attestor/internal/jwt_token"
	"attestor/pkg/testutil"
)

const (
	authorityKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	userAddress  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	sigNonce0    = "0xd6a30f3a34ce750413e0b999d66602fc9a2edf0158b33a1fb99d01c1e9fe31fe3d8c37c06f45f57bf1dda042410aa3a7da00c130723d257ec944361da444ccc11b"
	sigNonce1    = "0xb564785a3911c37f4343f13d4a3baa3bb67654749c138c117531748a128f9b142be7a92a610aeab09500dee3c63a532c9d41650397066c4c3b13a4a1bab2285d1b"
)

type AdminHandlerSuite struct {
	suite.Suite
	router  http.Handler
	svc     *service.Service
	jwt     *jwttoken.JWTService
	audit   *auditmemory.InMemoryStore
	adminBT string
}

func TestAdminHandlerSuite(t *testing.T) {
	suite.Run(t, new(AdminHandlerSuite))
}

func (s *AdminHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sgn, err := signer.Load(authorityKey)
	s.Require().NoError(err)
	s.audit = auditmemory.NewInMemoryStore()
	s.svc = service.New(store.NewInMemoryStore(), lock.NewSharded(), sgn,
		service.WithLogger(logger),
		service.WithAuditPublisher(audit.NewPublisher(s.audit)),
	)

	s.jwt = jwttoken.NewJWTService("test-signing-key", "attestor")
	token, err := s.jwt.GenerateAdminToken("ops@example.com", jwttoken.RoleAdmin, time.Hour)
	s.Require().NoError(err)
	s.adminBT = "Bearer " + token

	r := chi.NewRouter()
	admin.New(s.svc, jwttoken.NewMiddlewareAdapter(s.jwt), logger, admin.WithHistory(s.audit)).Register(r)
	s.router = r
}

func (s *AdminHandlerSuite) issue() {
	_, err := s.svc.Issue(context.Background(), &models.VerifyRequest{
		WalletAddress: userAddress, Aadhaar: "123456789012", PAN: "ABCDE1234F",
	})
	s.Require().NoError(err)
}

func (s *AdminHandlerSuite) do(method, path, auth string) *http.Request {
	req := testutil.NewRequest(s.T(), method, path)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req
}

func (s *AdminHandlerSuite) TestRequiresAdminToken() {
	s.Run("missing token", func() {
		rr := testutil.DoRequest(s.router, s.do(http.MethodGet, "/admin/identities/"+userAddress, ""))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("wrong role", func() {
		token, err := s.jwt.GenerateAdminToken("viewer@example.com", "viewer", time.Hour)
		s.Require().NoError(err)
		rr := testutil.DoRequest(s.router, s.do(http.MethodGet, "/admin/identities/"+userAddress, "Bearer "+token))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("token from another signer", func() {
		other := jwttoken.NewJWTService("other-key", "attestor")
		token, err := other.GenerateAdminToken("ops@example.com", jwttoken.RoleAdmin, time.Hour)
		s.Require().NoError(err)
		rr := testutil.DoRequest(s.router, s.do(http.MethodGet, "/admin/identities/"+userAddress, "Bearer "+token))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}

func (s *AdminHandlerSuite) TestGetIdentity() {
	rr := testutil.DoRequest(s.router, s.do(http.MethodGet, "/admin/identities/"+userAddress, s.adminBT))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	s.issue()
	rr = testutil.DoRequest(s.router, s.do(http.MethodGet, "/admin/identities/"+userAddress, s.adminBT))
	testutil.RequireStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[admin.IdentityResponse](s.T(), rr)
	s.Equal("0x70997970c51812dc3a010c7d01b50e0d17dc79c8", resp.WalletAddress)
	s.True(resp.Verified)
	s.Equal(sigNonce0, resp.Signature)
	s.Equal(uint64(1), resp.Nonce)
	s.Len(resp.AadhaarHash, 64)
	s.NotContains(rr.Body.String(), "123456789012")
}

func (s *AdminHandlerSuite) TestRevokeThenReissue() {
	s.issue()

	rr := testutil.DoRequest(s.router, s.do(http.MethodPost, "/admin/identities/"+userAddress+"/revoke", s.adminBT))
	testutil.RequireStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[admin.IdentityResponse](s.T(), rr)
	s.False(resp.Verified)
	s.Empty(resp.Signature)
	s.Equal(uint64(1), resp.Nonce)

	rr = testutil.DoRequest(s.router, s.do(http.MethodPost, "/admin/identities/"+userAddress+"/revoke", s.adminBT))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")

	res, err := s.svc.Issue(context.Background(), &models.VerifyRequest{
		WalletAddress: userAddress, Aadhaar: "123456789012", PAN: "ABCDE1234F",
	})
	require.NoError(s.T(), err)
	s.Equal(sigNonce1, res.Signature)
}

func (s *AdminHandlerSuite) TestInvalidAddress() {
	rr := testutil.DoRequest(s.router, s.do(http.MethodPost, "/admin/identities/not-an-address/revoke", s.adminBT))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *AdminHandlerSuite) TestHistory() {
	s.issue()
	rr := testutil.DoRequest(s.router, s.do(http.MethodPost, "/admin/identities/"+userAddress+"/revoke", s.adminBT))
	testutil.RequireStatus(s.T(), rr, http.StatusOK)

	rr = testutil.DoRequest(s.router, s.do(http.MethodGet, "/admin/identities/"+userAddress+"/events", s.adminBT))
	testutil.RequireStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[admin.HistoryResponse](s.T(), rr)
	s.Require().Len(resp.Events, 2)
	s.Equal(string(audit.EventAttestationIssued), resp.Events[0].Action)
	s.Empty(resp.Events[0].ActorID)
	s.Equal(string(audit.EventAttestationRevoked), resp.Events[1].Action)
	s.Equal("ops@example.com", resp.Events[1].ActorID)

	rr = testutil.DoRequest(s.router, s.do(http.MethodGet, "/admin/identities/0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC/events", s.adminBT))
	testutil.RequireStatus(s.T(), rr, http.StatusOK)
	s.JSONEq(`{"wallet_address":"0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc","events":[]}`, rr.Body.String())

	rr = testutil.DoRequest(s.router, s.do(http.MethodGet, "/admin/identities/nope/events", s.adminBT))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}
