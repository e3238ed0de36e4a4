package mempool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestMirrorKnownAndIsKnown(t *testing.T) {
	m := New()
	id := common.HexToHash("0x01")
	require.False(t, m.IsKnown(id))

	m.Add(id)
	require.True(t, m.IsKnown(id))
	require.Contains(t, m.Known(10), id)
}

func TestMirrorSeenByPeerIsIndependent(t *testing.T) {
	m := New()
	id := common.HexToHash("0x02")

	require.False(t, m.HasSeen(1, id))
	m.MarkSeen(1, id)
	require.True(t, m.HasSeen(1, id))
	require.False(t, m.HasSeen(2, id))
}

func TestMirrorForgetPeer(t *testing.T) {
	m := New()
	id := common.HexToHash("0x03")
	m.MarkSeen(7, id)
	require.True(t, m.HasSeen(7, id))

	m.ForgetPeer(7)
	require.False(t, m.HasSeen(7, id))
}

func TestMirrorKnownRespectsLimit(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		m.Add(common.BigToHash(big.NewInt(int64(i))))
	}
	require.Len(t, m.Known(3), 3)
}
