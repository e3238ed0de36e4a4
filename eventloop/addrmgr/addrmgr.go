// Package addrmgr implements the coordinator's address book: known peer
// endpoints categorized as verified, pinned or failed-backoff, plus the
// outbound dial schedule the loop consults to decide when to open new
// connections.
package addrmgr

import (
	"net"
	"sort"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Endpoint is a dialable peer address.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

// String renders the endpoint as a dialable host:port string, also used as
// its address-book map key.
func (e Endpoint) String() string {
	return e.IP.String() + ":" + strconv.Itoa(int(e.Port))
}

func (e Endpoint) key() string { return e.String() }

// initialBackoff and maxBackoff bound the exponential backoff applied to
// repeatedly failing outbound addresses.
const (
	initialBackoff = 5 * time.Second
	maxBackoff     = 30 * time.Minute
)

type backoffEntry struct {
	failures  int
	nextTry   time.Time
}

// Book is the coordinator's address book and outbound dial schedule.
type Book struct {
	verified map[string]Endpoint
	pinned   mapset.Set[string]
	failed   map[string]*backoffEntry

	dialInterval time.Duration
	lastDialed   map[string]time.Time
}

// New creates an empty address book. dialInterval is the minimum spacing
// between two outbound dial attempts to distinct addresses, used to avoid
// bursting connections at startup.
func New(dialInterval time.Duration) *Book {
	return &Book{
		verified:     make(map[string]Endpoint),
		pinned:       mapset.NewSet[string](),
		failed:       make(map[string]*backoffEntry),
		dialInterval: dialInterval,
		lastDialed:   make(map[string]time.Time),
	}
}

// AddVerified records an address as having completed a successful
// handshake in the past, making it eligible for future outbound dials and
// for gossip via Pong.
func (b *Book) AddVerified(e Endpoint) (changed bool) {
	k := e.key()
	if _, ok := b.verified[k]; ok {
		return false
	}
	b.verified[k] = e
	delete(b.failed, k)
	return true
}

// Pin marks an address as pinned: always eligible to dial, exempt from
// failed-backoff. Returns whether the wakeup schedule may have changed.
func (b *Book) Pin(e Endpoint) (scheduleChanged bool) {
	k := e.key()
	added := b.pinned.Add(k)
	b.verified[k] = e
	return added
}

// Unpin removes the pin, leaving the address in the verified category if it
// was already there.
func (b *Book) Unpin(e Endpoint) (scheduleChanged bool) {
	k := e.key()
	wasPinned := b.pinned.Contains(k)
	b.pinned.Remove(k)
	return wasPinned
}

// IsPinned reports whether an address is pinned.
func (b *Book) IsPinned(e Endpoint) bool { return b.pinned.Contains(e.key()) }

// OnFailedOutbound records a failed dial attempt, moving the address into
// (or deepening) failed-backoff. Returns whether the wakeup schedule
// changed as a result.
func (b *Book) OnFailedOutbound(e Endpoint) (scheduleChanged bool) {
	k := e.key()
	if b.pinned.Contains(k) {
		// Pinned addresses are always retried promptly; no backoff applied.
		return false
	}
	entry, ok := b.failed[k]
	if !ok {
		entry = &backoffEntry{}
		b.failed[k] = entry
	}
	entry.failures++
	delay := initialBackoff << uint(entry.failures-1)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	entry.nextTry = time.Now().Add(delay)
	return true
}

// eligible reports whether e can be dialed right now: not in backoff, and
// past the minimum dial interval since it was last dialed.
func (b *Book) eligible(k string, now time.Time) bool {
	if entry, ok := b.failed[k]; ok && now.Before(entry.nextTry) {
		return false
	}
	if last, ok := b.lastDialed[k]; ok && now.Sub(last) < b.dialInterval {
		return false
	}
	return true
}

// NextDue returns the addresses that should be dialed now (pinned first,
// then verified, in address order for determinism), and the time at which
// the schedule should next be reconsidered.
func (b *Book) NextDue(now time.Time) ([]Endpoint, time.Time) {
	var due []Endpoint
	next := now.Add(b.dialInterval)

	keys := make([]string, 0, len(b.verified))
	for k := range b.verified {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := b.pinned.Contains(keys[i]), b.pinned.Contains(keys[j])
		if pi != pj {
			return pi
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		if !b.eligible(k, now) {
			if entry, ok := b.failed[k]; ok && entry.nextTry.Before(next) {
				next = entry.nextTry
			}
			continue
		}
		due = append(due, b.verified[k])
	}
	return due, next
}

// MarkDialed records that an address was just dialed, for dial-interval
// spacing.
func (b *Book) MarkDialed(e Endpoint, at time.Time) {
	b.lastDialed[e.key()] = at
}

// Verified returns every address in the verified category, for Pong
// sampling.
func (b *Book) Verified() []Endpoint {
	out := make([]Endpoint, 0, len(b.verified))
	for _, e := range b.verified {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}
