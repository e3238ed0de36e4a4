// Package config loads the coordinator's tunables from a TOML file, in the
// shape of cmd/geth's own config loading: a typed struct decoded with
// naoina/toml, defaults filled in before decode so a partial file is legal.
package config

import (
	"os"
	"time"

	"github.com/naoina/toml"
)

// Config holds every knob the event loop reads at startup. It is loaded
// once and treated as immutable by the loop; retuning at runtime is out of
// scope, matching the "process startup/configuration" non-goal.
type Config struct {
	MaxRequests int `toml:"max_requests"`
	BatchSize   int `toml:"batch_size"`

	PingInterval  Duration `toml:"ping_interval"`
	PongTimeout   Duration `toml:"pong_timeout"`
	ReplyTimeout  Duration `toml:"reply_timeout"`
	ThrottleGap   Duration `toml:"throttle_gap"`
	DialInterval  Duration `toml:"dial_interval"`

	MaxAddresses    int `toml:"max_addresses"`
	MaxTransactions int `toml:"max_transactions"`

	// Debug lengthens CloseNoPong's grace window, matching the source's
	// debug-mode carve-out for attaching a debugger without tripping
	// liveness timeouts.
	Debug bool `toml:"debug"`

	Seeds []string `toml:"seeds"`

	ListenAddr string `toml:"listen_addr"`
	APIAddr    string `toml:"api_addr"`
}

// Duration wraps time.Duration so naoina/toml can decode plain strings like
// "30s" via TOML's UnmarshalTOML hook, the same trick cmd/utils/flags.go
// uses for geth's own duration-typed flags.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalTOML(data []byte) error {
	s := string(data)
	s = trimQuotes(s)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Default returns the coordinator's built-in tunables, matching the
// magnitudes named throughout spec.md (2s throttle gap, etc).
func Default() Config {
	return Config{
		MaxRequests:     16,
		BatchSize:       500,
		PingInterval:    Duration{10 * time.Second},
		PongTimeout:     Duration{time.Minute},
		ReplyTimeout:    Duration{20 * time.Second},
		ThrottleGap:     Duration{2 * time.Second},
		DialInterval:    Duration{500 * time.Millisecond},
		MaxAddresses:    50,
		MaxTransactions: 200,
		ListenAddr:      ":9186",
		APIAddr:         "127.0.0.1:3000",
	}
}

// Load reads a TOML file at path, overlaying it onto Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
