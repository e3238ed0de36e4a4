package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Height is a 1-indexed block height; height 0 denotes "before genesis".
type Height uint32

// Descriptor is a compact fingerprint identifying a particular chain history
// at a given length: two chains sharing a descriptor at the same length are
// identical. In practice this is a recent-header hash rollup.
type Descriptor common.Hash

// Work is the cumulative proof-of-work of a chain, stored as an unsigned
// 256-bit integer so it accumulates without overflow across the chain's
// entire history.
type Work struct {
	total uint256.Int
}

// ZeroWork is the total work of the empty chain.
func ZeroWork() Work { return Work{} }

// Add returns the sum of w and the difficulty-equivalent work of a single
// block at the given target.
func (w Work) Add(target TargetV2) Work {
	var blockWork uint256.Int
	// work(target) = 2^256 / (target's acceptance probability) approximated
	// as 2^(zeros+22) / bits22, i.e. Difficulty() computed as a fixed-point
	// 256-bit integer instead of a float.
	shift := target.Zeros10() + 22
	one := uint256.NewInt(1)
	one.Lsh(one, uint(shift))
	bits := uint256.NewInt(uint64(target.Bits22()))
	blockWork.Div(one, bits)
	var sum uint256.Int
	sum.Add(&w.total, &blockWork)
	return Work{total: sum}
}

// Cmp compares two work totals: -1 if w < other, 0 if equal, 1 if w > other.
func (w Work) Cmp(other Work) int { return w.total.Cmp(&other.total) }

// Bytes32 renders the work total as big-endian bytes for wire transmission.
func (w Work) Bytes32() [32]byte { return w.total.Bytes32() }

// WorkFromBytes32 reconstructs a Work total from its wire representation.
func WorkFromBytes32(b [32]byte) Work {
	return Work{total: *uint256.NewInt(0).SetBytes(b[:])}
}

// Double returns a float64 approximation, used only for logging.
func (w Work) Double() float64 {
	f := new(uint256.Int).SetBytes(w.total.Bytes())
	return float64(f.Uint64()) // truncates for very large totals; log-only use
}

// SnapshotInfo is the loop's current best signed snapshot, reported to API
// callers deciding whether a candidate Leader message would supersede it.
type SnapshotInfo struct {
	Height    Height
	Priority  uint64
	Signature []byte
	Have      bool
}

// ForkRange is a half-open height interval [Lo, Hi) within which two chains
// have not yet been proven to agree. Probing narrows it from both ends.
type ForkRange struct {
	Lo, Hi Height
}

// Empty reports whether the range has collapsed to a single point (agreement
// proven at Lo, i.e. the fork point is exactly known).
func (r ForkRange) Empty() bool { return r.Lo+1 >= r.Hi }

// Bisect returns the midpoint height to probe next.
func (r ForkRange) Bisect() Height {
	return r.Lo + (r.Hi-r.Lo)/2
}

// NarrowLo returns the range narrowed to agree at height h (h is confirmed
// to be on both chains).
func (r ForkRange) NarrowLo(h Height) ForkRange {
	if h+1 > r.Lo+1 {
		r.Lo = h
	}
	return r
}

// NarrowHi returns the range narrowed to disagree at or after height h (h is
// confirmed to differ between the chains).
func (r ForkRange) NarrowHi(h Height) ForkRange {
	if h < r.Hi {
		r.Hi = h
	}
	return r
}
