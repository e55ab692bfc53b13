// Package sidcfg is the minimal CLI configuration layer for cmd/sid,
// mirroring sid.c's getopt_long table.
package sidcfg

import (
	"flag"
	"fmt"
	"os"
)

// Config holds the daemon's command-line configuration.
type Config struct {
	Foreground bool
	Journal    bool
	Verbose    bool
	Version    bool
}

// Parse parses args (typically os.Args[1:]) into a Config.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("sid", flag.ContinueOnError)
	var cfg Config
	fs.BoolVar(&cfg.Foreground, "foreground", false, "run in the foreground instead of daemonizing")
	fs.BoolVar(&cfg.Journal, "journal", false, "log to the systemd journal instead of stderr")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "enable debug-level logging")
	fs.BoolVar(&cfg.Version, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: sid [--foreground] [--journal] [--verbose] [--version]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
