package eventloop

import "github.com/I-luk-I/Warthog/chain"

// The Sync* methods below are the loop's public read API: each posts the
// matching Get* event and blocks on its reply channel, giving callers
// outside eventloop (the API server) a synchronous call they can use from
// an HTTP handler goroutine without touching loop-private state directly.
// They return the zero value if the loop is shutting down and rejects the
// event.

func (l *Loop) SyncGetPeers() []PeerInfo {
	reply := make(chan []PeerInfo, 1)
	if !l.Defer(GetPeers{Reply: reply}) {
		return nil
	}
	return <-reply
}

func (l *Loop) SyncGetSynced() bool {
	reply := make(chan bool, 1)
	if !l.Defer(GetSynced{Reply: reply}) {
		return false
	}
	return <-reply
}

func (l *Loop) SyncGetHashrate(lastN int) float64 {
	reply := make(chan float64, 1)
	if !l.Defer(GetHashrate{LastN: lastN, Reply: reply}) {
		return 0
	}
	return <-reply
}

func (l *Loop) SyncGetHashrateChart(from, to chain.Height, window int) []float64 {
	reply := make(chan []float64, 1)
	if !l.Defer(GetHashrateChart{From: from, To: to, Window: window, Reply: reply}) {
		return nil
	}
	return <-reply
}

func (l *Loop) SyncInspect() string {
	reply := make(chan string, 1)
	if !l.Defer(Inspect{Reply: reply}) {
		return ""
	}
	return <-reply
}

func (l *Loop) SyncGetSignedSnapshot() chain.SnapshotInfo {
	reply := make(chan chain.SnapshotInfo, 1)
	if !l.Defer(GetSignedSnapshot{Reply: reply}) {
		return chain.SnapshotInfo{}
	}
	return <-reply
}
