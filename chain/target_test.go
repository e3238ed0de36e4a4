package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestTargetV1RoundTrip(t *testing.T) {
	for _, d := range []float64{1, 2, 1000, 1 << 20} {
		target := NewTargetV1(d)
		require.InDelta(t, d, target.Difficulty(), d*0.01)
	}
}

func TestTargetV1GenesisCompatibleWithZeroHash(t *testing.T) {
	require.True(t, GenesisTargetV1.Compatible(common.Hash{}))
}

// TestTargetV1MonotoneInDifficulty checks invariant 6: if t1 is easier than
// (or equal to) t2 and t2 accepts a hash, t1 must accept it too.
func TestTargetV1MonotoneInDifficulty(t *testing.T) {
	easy := NewTargetV1(4)
	hard := NewTargetV1(4096)
	require.LessOrEqual(t, easy.Difficulty(), hard.Difficulty())

	var hash common.Hash
	hash[0] = 0x00
	hash[1] = 0x01
	if hard.Compatible(hash) {
		require.True(t, easy.Compatible(hash))
	}
}

func TestTargetV2RoundTrip(t *testing.T) {
	for _, d := range []float64{1, 2, 1000, 1 << 20} {
		target := NewTargetV2(d)
		require.InDelta(t, d, target.Difficulty(), d*0.01)
	}
}

func TestTargetV2CompatibleMonotone(t *testing.T) {
	easy := NewTargetV2(4)
	hard := NewTargetV2(4096)

	digest := HashExponentialDigest{NegExp: 3, Data: 100}
	if hard.Compatible(digest) {
		require.True(t, easy.Compatible(digest))
	}
}

func TestHashExponentialDigestLeadingZeros(t *testing.T) {
	var hash common.Hash
	hash[0] = 0x00
	hash[1] = 0x0f
	digest := HashExponentialDigestOf(hash)
	require.Equal(t, uint32(13), digest.NegExp) // 12 leading zero bits + 1
}

// TestHashExponentialDigestDistinguishesMantissa guards against the digest
// window losing alignment with Bits22()<<10: two hashes with an identical
// leading-zero count but different mantissas must produce different Data,
// and a target sitting between them must accept one and reject the other.
func TestHashExponentialDigestDistinguishesMantissa(t *testing.T) {
	var hashLow, hashHigh common.Hash
	hashLow[0] = 0xA0
	hashHigh[0] = 0xD0

	digestLow := HashExponentialDigestOf(hashLow)
	digestHigh := HashExponentialDigestOf(hashHigh)
	require.Equal(t, digestLow.NegExp, digestHigh.NegExp)
	require.NotEqual(t, digestLow.Data, digestHigh.Data)

	target := targetV2(0, 0x300000)
	require.True(t, target.Compatible(digestLow))
	require.False(t, target.Compatible(digestHigh))
}
