// Command warthogd runs the peer-coordination event loop against an
// in-memory chain server, the way cmd/geth's main.go wires p2p.Server,
// eth.Ethereum and the RPC stack together — trimmed here to what this
// module actually owns. Full node bootstrapping (genesis import, real
// storage/consensus, flag/subcommand plumbing) is out of scope.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/I-luk-I/Warthog/apiserver"
	"github.com/I-luk-I/Warthog/chain"
	"github.com/I-luk-I/Warthog/chainserver"
	"github.com/I-luk-I/Warthog/config"
	"github.com/I-luk-I/Warthog/eventloop"
	"github.com/I-luk-I/Warthog/transport"
	"github.com/ethereum/go-ethereum/log"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (defaults are used if empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Crit("failed to load config", "path", *configPath, "err", err)
		}
		cfg = loaded
	}

	consensus := chain.NewHeaderchain(nil)
	server := chainserver.NewMemory(consensus)
	loop := eventloop.New(cfg, server, transport.TCPDialer{}, consensus)
	server.SetSink(loop)

	ln, err := transport.ListenTCP(cfg.ListenAddr, loop)
	if err != nil {
		log.Crit("failed to listen", "addr", cfg.ListenAddr, "err", err)
	}
	defer ln.Close()
	log.Info("listening for peers", "addr", cfg.ListenAddr)

	httpServer := &http.Server{Addr: cfg.APIAddr, Handler: apiserver.New(loop)}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api server stopped", "err", err)
		}
	}()
	log.Info("serving api", "addr", cfg.APIAddr)

	go loop.StartAsyncLoop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	loop.AsyncShutdown("received shutdown signal")
	loop.Wait()
	httpServer.Close()
}
