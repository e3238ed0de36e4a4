package chain

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Header is one block header as seen by the coordinator: enough to chain,
// verify proof-of-work and compute cumulative work, without any of the
// transaction/state payload the chain server owns.
type Header struct {
	PrevHash  common.Hash
	Height    Height
	Target    TargetV2
	Timestamp uint64
	Nonce     uint64
}

// Hash returns the header's fingerprint, computed over its canonical fields.
func (h Header) Hash() common.Hash {
	var buf [32 + 4 + 4 + 8 + 8]byte
	copy(buf[:32], h.PrevHash[:])
	binary.BigEndian.PutUint32(buf[32:36], uint32(h.Height))
	binary.BigEndian.PutUint32(buf[36:40], h.Target.data)
	binary.BigEndian.PutUint64(buf[40:48], h.Timestamp)
	binary.BigEndian.PutUint64(buf[48:56], h.Nonce)
	return crypto.Keccak256Hash(buf[:])
}

// Validate checks that this header legally extends prev: correct height
// sequencing, correct parent linkage, and proof-of-work satisfying its
// declared target.
func (h Header) Validate(prev Header) error {
	if h.Height != prev.Height+1 {
		return fmt.Errorf("header height %d does not follow %d", h.Height, prev.Height)
	}
	if h.PrevHash != prev.Hash() {
		return fmt.Errorf("header at height %d does not chain to its predecessor", h.Height)
	}
	if prev.Height > 0 && !h.Target.RespectsDifficultyRule(prev.Target) {
		return fmt.Errorf("header at height %d declares a target outside the allowed retarget bound", h.Height)
	}
	digest := HashExponentialDigestOf(h.Hash())
	if !h.Target.Compatible(digest) {
		return fmt.Errorf("header at height %d does not satisfy its declared target", h.Height)
	}
	return nil
}

// Batch is a contiguous run of validated headers as returned by a BatchRep.
type Batch struct {
	Start   Height // height of Headers[0]
	Headers []Header
}

// End returns the height one past the last header in the batch.
func (b Batch) End() Height { return b.Start + Height(len(b.Headers)) }

// Validate checks internal chaining of every header in the batch against the
// header immediately preceding it (prevTip, at height Start-1).
func (b Batch) Validate(prevTip Header) error {
	if len(b.Headers) == 0 {
		return fmt.Errorf("empty header batch")
	}
	prev := prevTip
	for _, h := range b.Headers {
		if err := h.Validate(prev); err != nil {
			return err
		}
		prev = h
	}
	return nil
}

// TotalWork returns the cumulative work added by this batch over base.
func (b Batch) TotalWork(base Work) Work {
	w := base
	for _, h := range b.Headers {
		w = w.Add(h.Target)
	}
	return w
}

// Headerchain is a validated, contiguous sequence of headers rooted at
// genesis (or at whatever height 1 represents locally). At most one stage
// Headerchain exists at a time; it is replaced atomically when a heavier
// candidate completes verification.
type Headerchain struct {
	headers []Header // headers[i] is at height i+1
	work    Work
}

// NewHeaderchain builds a Headerchain from a genesis-rooted, pre-validated
// header slice, computing its cumulative work.
func NewHeaderchain(headers []Header) Headerchain {
	w := ZeroWork()
	for _, h := range headers {
		w = w.Add(h.Target)
	}
	return Headerchain{headers: headers, work: w}
}

// Length returns the number of headers, i.e. the chain's tip height.
func (c Headerchain) Length() Height { return Height(len(c.headers)) }

// TotalWork returns the chain's cumulative work.
func (c Headerchain) TotalWork() Work { return c.work }

// HeaderAt returns the header at the given height (1-indexed), or false if
// out of range.
func (c Headerchain) HeaderAt(h Height) (Header, bool) {
	if h == 0 || h > c.Length() {
		return Header{}, false
	}
	return c.headers[h-1], true
}

// Tip returns the chain's highest header, or false if the chain is empty.
func (c Headerchain) Tip() (Header, bool) {
	return c.HeaderAt(c.Length())
}

// Descriptor computes a compact fingerprint of the chain at its current tip:
// the hash of the tip header, or the zero hash for an empty chain.
func (c Headerchain) Descriptor() Descriptor {
	tip, ok := c.Tip()
	if !ok {
		return Descriptor{}
	}
	return Descriptor(tip.Hash())
}

// AppendBatch validates and appends a batch that must start exactly at
// Length()+1, returning the extended chain.
func (c Headerchain) AppendBatch(b Batch) (Headerchain, error) {
	if b.Start != c.Length()+1 {
		return c, fmt.Errorf("batch starts at %d, expected %d", b.Start, c.Length()+1)
	}
	var prevTip Header
	if tip, ok := c.Tip(); ok {
		prevTip = tip
	}
	if err := b.Validate(prevTip); err != nil {
		return c, err
	}
	headers := append(append([]Header{}, c.headers...), b.Headers...)
	return NewHeaderchain(headers), nil
}

// Headers returns a copy of every header in the chain, in height order.
func (c Headerchain) Headers() []Header {
	return append([]Header{}, c.headers...)
}

// Truncate returns the chain cut back to length h (h may be 0).
func (c Headerchain) Truncate(h Height) Headerchain {
	if h >= c.Length() {
		return c
	}
	return NewHeaderchain(append([]Header{}, c.headers[:h]...))
}
