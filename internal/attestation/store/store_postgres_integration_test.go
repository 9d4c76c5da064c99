//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestor/internal/attestation/models"
	"attestor/internal/attestation/store"
	"attestor/pkg/platform/sentinel"
	"attestor/pkg/testutil/containers"
)

const (
	walletA = models.WalletAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	walletB = models.WalletAddress("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc")
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "identities"))
}

func issued(prev *models.IdentityRecord, addr models.WalletAddress, aadhaar, pan string, nonce uint64) *models.IdentityRecord {
	// Postgres keeps microseconds
	now := time.Now().UTC().Truncate(time.Microsecond)
	return models.Issued(prev, addr, models.FingerprintDocuments(aadhaar, pan), "0xsig", nonce, now)
}

func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	s.NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	rec := issued(nil, walletA, "123456789012", "ABCDE1234F", 0)
	s.Require().NoError(s.store.CompareAndSwap(ctx, rec, 0))

	found, err := s.store.FindByAddress(ctx, walletA)
	s.Require().NoError(err)
	s.Equal(rec.ID, found.ID)
	s.Equal(rec.Documents, found.Documents)
	s.True(found.IsVerified)
	s.Equal("0xsig", found.Signature)
	s.Equal(uint64(1), found.Nonce)
	s.True(rec.CreatedAt.Equal(found.CreatedAt))

	byDoc, err := s.store.FindByDocument(ctx, rec.Documents.PANHash)
	s.Require().NoError(err)
	s.Equal(walletA, byDoc.WalletAddress)

	_, err = s.store.FindByAddress(ctx, walletB)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCompareAndSwapGuards() {
	ctx := context.Background()
	first := issued(nil, walletA, "123456789012", "ABCDE1234F", 0)
	s.Require().NoError(s.store.CompareAndSwap(ctx, first, 0))

	s.Run("stale nonce conflicts", func() {
		stale := issued(first, walletA, "123456789012", "ABCDE1234F", 0)
		s.ErrorIs(s.store.CompareAndSwap(ctx, stale, 0), sentinel.ErrConflict)
	})

	s.Run("matching nonce advances", func() {
		next := issued(first, walletA, "123456789012", "ABCDE1234F", 1)
		s.Require().NoError(s.store.CompareAndSwap(ctx, next, 1))
		found, err := s.store.FindByAddress(ctx, walletA)
		s.Require().NoError(err)
		s.Equal(uint64(2), found.Nonce)
	})

	s.Run("document owned by another wallet is a duplicate", func() {
		other := issued(nil, walletB, "999999999999", "ABCDE1234F", 0)
		s.ErrorIs(s.store.CompareAndSwap(ctx, other, 0), sentinel.ErrDuplicate)
	})
}

func (s *PostgresStoreSuite) TestConcurrentIssuanceSingleWinner() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CompareAndSwap(ctx, issued(nil, walletA, "123456789012", "ABCDE1234F", 0), 0)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestRevoke() {
	ctx := context.Background()
	s.ErrorIs(s.store.Revoke(ctx, walletA, 1, time.Now()), sentinel.ErrNotFound)

	rec := issued(nil, walletA, "123456789012", "ABCDE1234F", 0)
	s.Require().NoError(s.store.CompareAndSwap(ctx, rec, 0))

	s.ErrorIs(s.store.Revoke(ctx, walletA, 5, time.Now()), sentinel.ErrConflict)
	s.Require().NoError(s.store.Revoke(ctx, walletA, 1, time.Now()))

	found, err := s.store.FindByAddress(ctx, walletA)
	s.Require().NoError(err)
	s.False(found.IsVerified)
	s.Empty(found.Signature)
	s.Equal(uint64(1), found.Nonce)

	n, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}
