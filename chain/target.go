// Package chain implements the coordinator's view of chain history: compact
// descriptors, fork ranges, the header chain, and the two difficulty target
// encodings used to validate declared proof-of-work.
package chain

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// TargetV1 is the legacy 4-byte difficulty target: byte 0 holds the number of
// required leading zero bits (0..224), bytes 1-3 hold a 24-bit mantissa with
// its top bit set, i.e. a value in [2^23, 2^24).
type TargetV1 struct {
	data uint32
}

const targetV1MaxZeros = 256 - 4*8

var hardestTargetV1 = TargetV1{data: (targetV1MaxZeros << 24) | 0x00FFFFFF}

// GenesisTargetV1 is the easiest TargetV1 accepted at genesis.
var GenesisTargetV1 = TargetV1{data: (16 << 24) | 0x00800000}

// EncodeRLP writes the target's raw 4-byte encoding.
func (t TargetV1) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, t.data)
}

// DecodeRLP reads the target's raw 4-byte encoding.
func (t *TargetV1) DecodeRLP(s *rlp.Stream) error {
	return s.Decode(&t.data)
}

// TargetV1FromRaw reinterprets four big-endian bytes as a TargetV1.
func TargetV1FromRaw(b [4]byte) TargetV1 {
	return TargetV1{data: binary.BigEndian.Uint32(b[:])}
}

// NewTargetV1 rounds a difficulty value to the nearest representable target,
// saturating at the hardest representable target.
func NewTargetV1(difficulty float64) TargetV1 {
	if difficulty < 1.0 {
		difficulty = 1.0
	}
	coef, exp := math.Frexp(difficulty)
	inv := 1 / coef
	if exp-1 >= 256-24 {
		return hardestTargetV1
	}
	zeros := uint32(exp - 1)
	if inv == 2.0 {
		return targetV1(zeros, 0x00FFFFFF)
	}
	digits := uint32(math.Ldexp(inv, 23))
	switch {
	case digits < 0x00800000:
		return targetV1(zeros, 0x00800000)
	case digits > 0x00FFFFFF:
		return targetV1(zeros, 0x00FFFFFF)
	default:
		return targetV1(zeros, digits)
	}
}

func targetV1(zeros, bits24 uint32) TargetV1 {
	return TargetV1{data: (zeros << 24) | (bits24 & 0x00FFFFFF)}
}

// Zeros8 returns the number of required leading zero bits.
func (t TargetV1) Zeros8() uint32 { return t.data >> 24 }

// Bits24 returns the 24-bit mantissa, always in [2^23, 2^24).
func (t TargetV1) Bits24() uint32 { return t.data & 0x00FFFFFF }

// Compatible reports whether hash satisfies this target's proof-of-work
// requirement: zeros leading zero bits followed by a mantissa comparison.
func (t TargetV1) Compatible(hash common.Hash) bool {
	zeros := t.Zeros8()
	if zeros > targetV1MaxZeros {
		return false
	}
	bits := t.Bits24()
	if bits&0x00800000 == 0 {
		return false
	}
	zerobytes := int(zeros / 8)
	shift := zeros & 0x07

	for i := 0; i < zerobytes; i++ {
		if hash[31-i] != 0 {
			return false
		}
	}

	threshold := bits << (8 - shift)
	var candBytes [4]byte
	src := hash[28-zerobytes:]
	candBytes[0] = src[3]
	candBytes[1] = src[2]
	candBytes[2] = src[1]
	candBytes[3] = src[0]
	candidate := binary.BigEndian.Uint32(candBytes[:])

	if candidate > threshold {
		return false
	}
	if candidate < threshold {
		return true
	}
	for i := 0; i < 28-zerobytes; i++ {
		if hash[i] != 0 {
			return false
		}
	}
	return true
}

// Difficulty converts the target back to a floating-point difficulty value.
func (t TargetV1) Difficulty() float64 {
	zeros := int(t.Zeros8())
	dbits := float64(t.Bits24())
	return math.Ldexp(1/dbits, zeros+24)
}

// TargetV2 is the newer 4-byte difficulty target: the top 10 bits hold the
// leading-zero count (0..3*256-1), the bottom 22 bits hold a mantissa in
// [2^21, 2^22).
type TargetV2 struct {
	data uint32
}

const targetV2MaxZeros = 3 * 256

var maxTargetV2 = TargetV2{data: ((targetV2MaxZeros - 1) << 22) | 0x003FFFFF}

// EncodeRLP writes the target's raw 4-byte encoding.
func (t TargetV2) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, t.data)
}

// DecodeRLP reads the target's raw 4-byte encoding.
func (t *TargetV2) DecodeRLP(s *rlp.Stream) error {
	return s.Decode(&t.data)
}

// TargetV2FromRaw reinterprets four big-endian bytes as a TargetV2.
func TargetV2FromRaw(b [4]byte) TargetV2 {
	return TargetV2{data: binary.BigEndian.Uint32(b[:])}
}

// NewTargetV2 rounds a difficulty value to the nearest representable target,
// saturating at the hardest representable target.
func NewTargetV2(difficulty float64) TargetV2 {
	if difficulty < 1.0 {
		difficulty = 1.0
	}
	coef, exp := math.Frexp(difficulty)
	inv := 1 / coef
	zeros := uint32(exp - 1)
	if zeros >= targetV2MaxZeros {
		return maxTargetV2
	}
	if inv == 2.0 {
		return targetV2(zeros, 0x003FFFFF)
	}
	digits := uint32(math.Ldexp(inv, 21))
	switch {
	case digits < 0x00200000:
		return targetV2(zeros, 0x00200000)
	case digits > 0x003FFFFF:
		return targetV2(zeros, 0x003FFFFF)
	default:
		return targetV2(zeros, digits)
	}
}

func targetV2(zeros, bits22 uint32) TargetV2 {
	return TargetV2{data: (zeros << 22) | (bits22 & 0x003FFFFF)}
}

// GenesisTargetV2Testnet is the easiest TargetV2 accepted on testnet genesis.
func GenesisTargetV2Testnet() TargetV2 { return targetV2(29, 0x003FFFFF) }

// InitialTargetV2 is the initial mainnet TargetV2.
func InitialTargetV2() TargetV2 { return targetV2(43, 0x003FFFFF) }

// Bits22 returns the 22-bit mantissa, always in [2^21, 2^22).
func (t TargetV2) Bits22() uint32 { return t.data & 0x003FFFFF }

// Zeros10 returns the number of required leading zero bits.
func (t TargetV2) Zeros10() uint32 { return t.data >> 22 }

// Difficulty converts the target back to a floating-point difficulty value.
func (t TargetV2) Difficulty() float64 {
	zeros := int(t.Zeros10())
	dbits := float64(t.Bits22())
	return math.Ldexp(1/dbits, zeros+22)
}

// maxRetargetFactor bounds how far a header's declared difficulty may
// diverge from its immediate predecessor's, the way a difficulty-adjustment
// rule caps the swing a single retarget step is allowed to produce. Applied
// per header rather than per fixed window since a header's target here is
// free-form rather than locked between adjustment points.
const maxRetargetFactor = 4.0

// RespectsDifficultyRule reports whether t is a legitimate successor target
// to prev: its difficulty within maxRetargetFactor of prev's in either
// direction. Guards against a peer declaring an arbitrarily easy target on
// a header to inflate its chain's self-reported total work.
func (t TargetV2) RespectsDifficultyRule(prev TargetV2) bool {
	prevDiff := prev.Difficulty()
	diff := t.Difficulty()
	return diff >= prevDiff/maxRetargetFactor && diff <= prevDiff*maxRetargetFactor
}

// HashExponentialDigest is the floating-exponent representation of a header
// hash used to compare against a TargetV2: negExp counts leading zero bits
// plus one, data holds the remaining mantissa bits.
type HashExponentialDigest struct {
	NegExp uint32
	Data   uint32
}

// HashExponentialDigestOf computes the digest of hash: the number of leading
// zero bits (plus one) and a 32-bit window starting at the leading one bit,
// so Data's own bit 31 is set the same way Bits22()<<10 always sets bit 31.
func HashExponentialDigestOf(hash common.Hash) HashExponentialDigest {
	zeros := 0
	for _, b := range hash {
		if b == 0 {
			zeros += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				break
			}
			zeros++
		}
		break
	}
	// Gather the 32 bits following the leading run of zeros.
	var window uint64
	byteIdx := zeros / 8
	bitOff := zeros % 8
	for i := 0; i < 5 && byteIdx+i < len(hash); i++ {
		window = window<<8 | uint64(hash[byteIdx+i])
	}
	shift := uint(8 - bitOff)
	data := uint32(window >> shift)
	return HashExponentialDigest{NegExp: uint32(zeros) + 1, Data: data}
}

// Compatible reports whether digest satisfies this target's requirement.
func (t TargetV2) Compatible(digest HashExponentialDigest) bool {
	zerosTarget := t.Zeros10()
	if digest.NegExp == 0 {
		return false
	}
	zerosDigest := digest.NegExp - 1
	if zerosTarget > zerosDigest {
		return false
	}
	if zerosTarget < zerosDigest {
		return true
	}
	bits32 := t.Bits22() << 10
	return digest.Data < bits32
}
