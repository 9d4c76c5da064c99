package signer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor/internal/attestation/digest"
)

// Well-known development keys (hardhat accounts #0 and #1).
const (
	authorityKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	authorityAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	userAddress      = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func TestLoad(t *testing.T) {
	t.Run("derives authority address", func(t *testing.T) {
		s, err := Load(authorityKey)
		require.NoError(t, err)
		assert.Equal(t, authorityAddress, s.Address().Hex())
	})

	t.Run("accepts key without prefix", func(t *testing.T) {
		s, err := Load(authorityKey[2:])
		require.NoError(t, err)
		assert.Equal(t, authorityAddress, s.Address().Hex())
	})

	t.Run("rejects malformed keys", func(t *testing.T) {
		for _, k := range []string{"", "0x", "0x1234", "not-hex-at-all"} {
			_, err := Load(k)
			assert.ErrorIs(t, err, ErrInvalidKey, k)
		}
	})
}

// TestSign_CrossImplementationFixture pins the exact bytes ethers'
// signMessage(getBytes(solidityPackedKeccak256(["address","uint256"], [user, 0])))
// yields for the authority key. Both sides use RFC 6979 with low-s.
func TestSign_CrossImplementationFixture(t *testing.T) {
	s, err := Load(authorityKey)
	require.NoError(t, err)

	sig, err := s.Sign(common.HexToAddress(userAddress), 0)
	require.NoError(t, err)
	assert.Equal(t,
		"0xd6a30f3a34ce750413e0b999d66602fc9a2edf0158b33a1fb99d01c1e9fe31fe3d8c37c06f45f57bf1dda042410aa3a7da00c130723d257ec944361da444ccc11b",
		sig.Hex())

	sig, err = s.Sign(common.HexToAddress(userAddress), 1)
	require.NoError(t, err)
	assert.Equal(t,
		"0xb564785a3911c37f4343f13d4a3baa3bb67654749c138c117531748a128f9b142be7a92a610aeab09500dee3c63a532c9d41650397066c4c3b13a4a1bab2285d1b",
		sig.Hex())
}

func TestSign_RecoversAuthority(t *testing.T) {
	s, err := Load(authorityKey)
	require.NoError(t, err)

	user := common.HexToAddress(userAddress)
	sig, err := s.Sign(user, 7)
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])

	raw := sig
	raw[64] -= 27
	pub, err := crypto.SigToPub(digest.PersonalHash(digest.MessageHashUint64(user, 7)).Bytes(), raw[:])
	require.NoError(t, err)
	assert.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))
}

func TestSign_Deterministic(t *testing.T) {
	s, err := Load(authorityKey)
	require.NoError(t, err)
	user := common.HexToAddress(userAddress)

	a, err := s.Sign(user, 3)
	require.NoError(t, err)
	b, err := s.Sign(user, 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestClose_FailsClosed(t *testing.T) {
	s, err := Load(authorityKey)
	require.NoError(t, err)
	key := s.key

	require.NoError(t, s.Close())
	assert.Zero(t, key.D.Sign(), "private scalar is zeroed")

	_, err = s.Sign(common.HexToAddress(userAddress), 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, authorityAddress, s.Address().Hex(), "address stays available for logs")
	assert.NoError(t, s.Close(), "close is idempotent")
}
