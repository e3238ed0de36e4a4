// Package apiserver is the thin HTTP surface in front of the event loop's
// read API: httprouter dispatches by path, rs/cors handles preflight, and
// every handler body is a one-line call into eventloop's Sync* methods.
// The REST/JSON API surface itself (request/response schemas beyond these
// five endpoints) is out of scope, matching the "REST/JSON API handler
// bodies" non-goal — this package only wires HTTP to deferEvent.
package apiserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/eventloop"
	"github.com/ethereum/go-ethereum/log"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// Loop is the slice of *eventloop.Loop this package depends on, narrowed to
// an interface so handler tests can stub it without a real loop.
type Loop interface {
	SyncGetPeers() []eventloop.PeerInfo
	SyncGetSynced() bool
	SyncGetHashrate(lastN int) float64
	SyncGetHashrateChart(from, to chain.Height, window int) []float64
	SyncInspect() string
}

// New builds the HTTP handler serving the coordinator's read API, wrapped
// in a permissive CORS policy the way cmd/geth's --http.corsdomain "*"
// default does for local tooling.
func New(l Loop) http.Handler {
	router := httprouter.New()
	router.GET("/peers", getPeers(l))
	router.GET("/synced", getSynced(l))
	router.GET("/hashrate", getHashrate(l))
	router.GET("/hashrate_chart", getHashrateChart(l))
	router.GET("/inspect", getInspect(l))

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("apiserver: failed to encode response", "err", err)
	}
}

func getPeers(l Loop) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, l.SyncGetPeers())
	}
}

func getSynced(l Loop) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, l.SyncGetSynced())
	}
}

func getHashrate(l Loop) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		n, err := strconv.Atoi(r.URL.Query().Get("n"))
		if err != nil || n <= 0 {
			n = 100
		}
		writeJSON(w, l.SyncGetHashrate(n))
	}
}

func getHashrateChart(l Loop) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		q := r.URL.Query()
		from, err1 := strconv.ParseUint(q.Get("from"), 10, 32)
		to, err2 := strconv.ParseUint(q.Get("to"), 10, 32)
		window, err3 := strconv.Atoi(q.Get("window"))
		if err1 != nil || err2 != nil || err3 != nil || window <= 0 {
			http.Error(w, "from, to and window query params are required", http.StatusBadRequest)
			return
		}
		writeJSON(w, l.SyncGetHashrateChart(chain.Height(from), chain.Height(to), window))
	}
}

func getInspect(l Loop) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(l.SyncInspect()))
	}
}
