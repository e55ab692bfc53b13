package sidwrk

import "sync"

// registry lets a re-exec'd internal worker reconstruct the exact Config
// it was spawned with, by looking up a key instead of serializing the
// whole ChannelSpec slice across the exec boundary — the same principle
// as database/sql's driver registry: every process running this binary
// has the identical static registration already compiled in, so only the
// lookup key needs to cross process boundaries (via an environment
// variable, see buildInternalCmd in control.go).
var (
	registryMu sync.Mutex
	registry   = map[string]Config{}
)

// Register associates name with cfg so a re-exec'd worker process can
// recover it. Call from an init function or package-level var in the
// binary that will also run as the worker (the whole point of the
// self-re-exec model is that it's the *same* binary).
func Register(name string, cfg Config) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = cfg
}

// lookup retrieves a previously Register'd Config by name.
func lookup(name string) (Config, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	cfg, ok := registry[name]
	return cfg, ok
}
