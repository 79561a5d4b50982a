// Package config parses the coordinator's command-line surface and holds
// its runtime-tunable parameters, mirroring the teacher repo's utils.Config
// pattern of a single struct produced by one constructor.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Config holds every coordinator-wide tunable, both the values the CLI binds
// directly and the engine/election timing constants named in the spec.
type Config struct {
	// CLI-bound
	URL              string        `json:"url"`              // this coordinator's own base URL
	Priority         int           `json:"priority"`          // lower ranks higher
	GamemasterURLs   []string      `json:"gamemasterUrls"`    // full peer set, self included
	KeyPath          string        `json:"keyPath"`           // reserved for TLS
	CertificatePath  string        `json:"certificatePath"`   // reserved for TLS
	CAPath           string        `json:"caPath"`            // reserved for TLS
	PeerPort         int           `json:"peerPort"`          // election HTTP port, default 8002

	// Fixed ports
	UnitPort int `json:"unitPort"` // unit websocket port when active, fixed at 8001

	// Engine timing (§4.2)
	PressThreshold        time.Duration `json:"pressThreshold"`
	PreGameMultipleRotate time.Duration `json:"preGameMultipleRotate"`
	PlayingAllReleasedTTL time.Duration `json:"playingAllReleasedTtl"`
	TimeoutStopDelay      time.Duration `json:"timeoutStopDelay"`
	WaitReleaseFlashAfter time.Duration `json:"waitReleaseFlashAfter"`
	EndRoundDwell         time.Duration `json:"endRoundDwell"`
	MultiplayerPartitionDelay time.Duration `json:"multiplayerPartitionDelay"`

	// Transport/session timing
	ActuatorSafetyMargin time.Duration `json:"actuatorSafetyMargin"`
	PingInterval         time.Duration `json:"pingInterval"`
	ReadTimeout          time.Duration `json:"readTimeout"`

	// Election timing (§4.3)
	ProbeTimeout   time.Duration `json:"probeTimeout"`
	InitialRetry   time.Duration `json:"initialRetry"`
	IntentRepoll   time.Duration `json:"intentRepoll"`
	GamemasterIdle time.Duration `json:"gamemasterIdle"`
}

// Default returns a Config with every duration set to the value named in
// the specification, for every field the CLI does not control.
func Default() Config {
	return Config{
		UnitPort: 8001,
		PeerPort: 8002,

		PressThreshold:            2 * time.Second,
		PreGameMultipleRotate:     10 * time.Second,
		PlayingAllReleasedTTL:     15 * time.Second,
		TimeoutStopDelay:          4 * time.Second,
		WaitReleaseFlashAfter:     10 * time.Second,
		EndRoundDwell:             10 * time.Second,
		MultiplayerPartitionDelay: time.Second,

		ActuatorSafetyMargin: 100 * time.Millisecond,
		PingInterval:         5 * time.Second,
		ReadTimeout:          90 * time.Second,

		ProbeTimeout:   time.Second,
		InitialRetry:   5 * time.Second,
		IntentRepoll:   10 * time.Second,
		GamemasterIdle: 10 * time.Second,
	}
}

// repeatableFlag implements flag.Value to accept -g/--gamemaster-urls
// multiple times, the idiomatic stdlib way to accept a repeated flag
// (no third-party CLI library is imported anywhere in the retrieved example
// pack, so flag.Value is used directly rather than reached past).
type repeatableFlag struct {
	values *[]string
}

func (f repeatableFlag) String() string {
	if f.values == nil {
		return ""
	}
	return fmt.Sprint(*f.values)
}

func (f repeatableFlag) Set(v string) error {
	*f.values = append(*f.values, v)
	return nil
}

// ParseFlags parses the CLI surface from §6 into a Config seeded with
// Default(). It reports an error rather than calling os.Exit so callers
// (and tests) can observe argument failures.
func ParseFlags(name string, args []string) (Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.StringVar(&cfg.URL, "u", "", "this coordinator's own URL")
	fs.StringVar(&cfg.URL, "url", "", "this coordinator's own URL")
	fs.IntVar(&cfg.Priority, "p", 0, "this coordinator's priority (lower ranks higher)")
	fs.IntVar(&cfg.Priority, "priority", 0, "this coordinator's priority (lower ranks higher)")
	fs.StringVar(&cfg.KeyPath, "k", "", "TLS key path (reserved, may be ignored)")
	fs.StringVar(&cfg.KeyPath, "key", "", "TLS key path (reserved, may be ignored)")
	fs.StringVar(&cfg.CertificatePath, "r", "", "TLS certificate path (reserved, may be ignored)")
	fs.StringVar(&cfg.CertificatePath, "certificate", "", "TLS certificate path (reserved, may be ignored)")
	fs.StringVar(&cfg.CAPath, "ca", "", "TLS CA certificate path (reserved, may be ignored)")
	fs.StringVar(&cfg.CAPath, "ca-certificate", "", "TLS CA certificate path (reserved, may be ignored)")
	fs.IntVar(&cfg.PeerPort, "port", cfg.PeerPort, "peer HTTP port")
	fs.Var(repeatableFlag{values: &cfg.GamemasterURLs}, "g", "peer URL, repeatable, full set including self")
	fs.Var(repeatableFlag{values: &cfg.GamemasterURLs}, "gamemaster-urls", "peer URL, repeatable, full set including self")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	var missing []string
	if cfg.URL == "" {
		missing = append(missing, "-u/--url")
	}
	if len(cfg.GamemasterURLs) == 0 {
		missing = append(missing, "-g/--gamemaster-urls")
	}
	if cfg.KeyPath == "" {
		missing = append(missing, "-k/--key")
	}
	if cfg.CertificatePath == "" {
		missing = append(missing, "-r/--certificate")
	}
	if cfg.CAPath == "" {
		missing = append(missing, "-ca/--ca-certificate")
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("config: missing required flag(s): %v", missing)
	}

	return cfg, nil
}

// ExitOnError parses os.Args[1:] and terminates the process with a nonzero
// exit code on failure, matching §6's "nonzero on argument or bind failure".
func ExitOnError(name string) Config {
	cfg, err := ParseFlags(name, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}
