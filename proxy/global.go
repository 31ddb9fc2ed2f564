package proxy

import "sync"

var (
	mu      sync.Mutex
	current Proxy
)

// SetDefault installs the process-wide Proxy instance. Called once at
// startup after the upstream node set has been resolved.
func SetDefault(p Proxy) {
	mu.Lock()
	defer mu.Unlock()

	current = p
}

// GetProxy returns the process-wide Proxy instance.
func GetProxy() Proxy {
	mu.Lock()
	defer mu.Unlock()

	return current
}
