package chain

// View is our record of a peer's advertised chain: its descriptor, length
// and total work, plus two fork ranges — one tracking agreement against our
// consensus chain, one against our stage candidate — each narrowed by
// probes as they confirm agreement at successively higher heights.
type View struct {
	Descriptor      Descriptor
	Length          Height
	TotalWork       Work
	ConsensusRange  ForkRange
	StageRange      ForkRange
}

// NewView creates the initial view for a freshly INIT'd peer: fork ranges
// span the whole overlap between our chain and theirs.
func NewView(descriptor Descriptor, length Height, work Work, ourConsensusLength, ourStageLength Height) View {
	return View{
		Descriptor:     descriptor,
		Length:         length,
		TotalWork:      work,
		ConsensusRange: ForkRange{Lo: 0, Hi: minHeight(length, ourConsensusLength) + 1},
		StageRange:     ForkRange{Lo: 0, Hi: minHeight(length, ourStageLength) + 1},
	}
}

func minHeight(a, b Height) Height {
	if a < b {
		return a
	}
	return b
}

// OnConsensusAppend adjusts the view after our consensus chain extends by
// appended headers without a peer round-trip: the consensus fork range's
// upper bound tracks the new shared prefix length, capped by the peer's
// advertised length.
func (v View) OnConsensusAppend(newConsensusLength Height) View {
	hi := newConsensusLength + 1
	if hi > v.Length+1 {
		hi = v.Length + 1
	}
	if hi > v.ConsensusRange.Hi {
		v.ConsensusRange.Hi = hi
	}
	return v
}

// OnFork resets the consensus fork range down to forkHeight: anything above
// forkHeight is no longer provably shared.
func (v View) OnFork(forkHeight Height) View {
	if v.ConsensusRange.Hi > forkHeight+1 {
		v.ConsensusRange.Hi = forkHeight + 1
	}
	if v.ConsensusRange.Lo > forkHeight {
		v.ConsensusRange.Lo = forkHeight
	}
	return v
}

// AgreesAt reports whether the consensus fork range has collapsed, i.e. the
// exact fork height with this peer is now known.
func (v View) AgreesAt() (Height, bool) {
	if v.ConsensusRange.Empty() {
		return v.ConsensusRange.Lo, true
	}
	return 0, false
}

// HasMoreWork reports whether this peer's advertised chain is strictly
// heavier than the given reference work — the gate for header downloading.
func (v View) HasMoreWork(reference Work) bool {
	return v.TotalWork.Cmp(reference) > 0
}
