package sigil

import "sync"

// Process-wide defaults. A run snapshots these once at format time, so a
// concurrent SetDefaultAdapter cannot change an in-flight run's behavior
// between retries.
var (
	settingsMu        sync.RWMutex
	defaultAdapter    Adapter = DefaultAdapter{}
	defaultMaxRetries         = 2
)

// SetDefaultAdapter replaces the process-wide adapter used when a run does
// not override it. Passing nil restores the built-in DefaultAdapter.
func SetDefaultAdapter(a Adapter) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if a == nil {
		a = DefaultAdapter{}
	}
	defaultAdapter = a
}

// SetDefaultMaxRetries replaces the process-wide retry bound for typed
// signatures. The bound counts retries: 0 means a single attempt. Negative
// values are clamped to 0.
func SetDefaultMaxRetries(n int) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if n < 0 {
		n = 0
	}
	defaultMaxRetries = n
}

// snapshotSettings reads the process defaults once, under the read lock.
func snapshotSettings() (Adapter, int) {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return defaultAdapter, defaultMaxRetries
}
