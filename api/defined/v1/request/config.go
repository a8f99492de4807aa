package request

import "sync"

// RequestConfig carries the pipeline-wide defaults consulted when a new
// builder is created. The values are captured once per builder; changing
// the defaults later does not affect builders that already exist.
type RequestConfig struct {
	ProgressiveRenderingEnabled bool
}

var (
	mu            sync.Mutex
	defaultConfig RequestConfig
)

// SetDefaultRequestConfig replaces the pipeline-wide request defaults.
func SetDefaultRequestConfig(cfg RequestConfig) {
	mu.Lock()
	defer mu.Unlock()

	defaultConfig = cfg
}

// DefaultRequestConfig returns the current pipeline-wide request defaults.
func DefaultRequestConfig() RequestConfig {
	mu.Lock()
	defer mu.Unlock()

	return defaultConfig
}
