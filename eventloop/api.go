package eventloop

import (
	"fmt"
	"strings"

	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/eventloop/peers"
	"github.com/olekukonko/tablewriter"
)

// apiGetPeers answers the GetPeers event with a read-only snapshot of every
// initialized peer's advertised length and total work.
func (l *Loop) apiGetPeers() []PeerInfo {
	init := l.peerSet.Initialized()
	out := make([]PeerInfo, 0, len(init))
	for _, p := range init {
		out = append(out, PeerInfo{ID: p.ID, Length: p.View.Length, Work: p.View.TotalWork})
	}
	return out
}

// apiGetSynced reports whether the loop believes it holds every header and
// body up to the heaviest chain it has ever staged.
func (l *Loop) apiGetSynced() bool { return l.synced }

// apiGetHashrate estimates network hashrate from the average block interval
// over the last n blocks of consensus, using declared-target work as the
// difficulty proxy (no wall-clock mining measurement is available here).
func (l *Loop) apiGetHashrate(n int) float64 {
	return l.windowedHashrate(l.consensus.Length()-chain.Height(n)+1, l.consensus.Length())
}

// apiGetHashrateChart answers a windowed hashrate series over [from, to],
// bucketed into window-sized spans, per the source's overloaded
// api_get_hashrate_chart.
func (l *Loop) apiGetHashrateChart(from, to chain.Height, window int) []float64 {
	if window <= 0 || to < from {
		return nil
	}
	var out []float64
	for start := from; start <= to; start += chain.Height(window) {
		end := start + chain.Height(window) - 1
		if end > to {
			end = to
		}
		out = append(out, l.windowedHashrate(start, end))
	}
	return out
}

func (l *Loop) windowedHashrate(from, to chain.Height) float64 {
	if from < 1 {
		from = 1
	}
	if to > l.consensus.Length() || to < from {
		return 0
	}
	first, ok := l.consensus.HeaderAt(from)
	if !ok {
		return 0
	}
	last, ok := l.consensus.HeaderAt(to)
	if !ok {
		return 0
	}
	span := int64(last.Timestamp) - int64(first.Timestamp)
	if span <= 0 {
		return 0
	}
	blocks := int64(to - from)
	if blocks <= 0 {
		return 0
	}
	// average work per block over the window, divided by average seconds
	// per block, approximates hashes/sec under the target's difficulty.
	var work chain.Work
	for h := from + 1; h <= to; h++ {
		hdr, ok := l.consensus.HeaderAt(h)
		if !ok {
			break
		}
		work = work.Add(hdr.Target)
	}
	return work.Double() / float64(span)
}

// apiInspect renders a human-readable dump of loop state: peers, downloader
// progress and chain length, for operator debugging.
func (l *Loop) apiInspect() string {
	var b strings.Builder
	fmt.Fprintf(&b, "consensus height=%d work=%.0f synced=%v\n", l.consensus.Length(), l.consensus.TotalWork().Double(), l.synced)
	if l.haveStage {
		fmt.Fprintf(&b, "stage height=%d bodies_delivered=%d\n", l.stage.Length(), l.blockDL.Delivered())
	}

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"id", "length", "job"})
	for _, p := range l.peerSet.All() {
		job := "idle"
		switch p.Job.Kind {
		case peers.JobAwaitingInit:
			job = "awaiting-init"
		case peers.JobProbe:
			job = fmt.Sprintf("probe(h=%d)", p.Job.Probe.Height)
		case peers.JobBatch:
			job = fmt.Sprintf("batch(start=%d,len=%d)", p.Job.Batch.Start, p.Job.Batch.Length)
		case peers.JobBlock:
			job = fmt.Sprintf("block(%d-%d)", p.Job.Block.Start, p.Job.Block.End)
		}
		table.Append([]string{fmt.Sprintf("%d", p.ID), fmt.Sprintf("%d", p.View.Length), job})
	}
	table.Render()
	return b.String()
}
