// Package memo defines the interface for short-lived lookup result caching.
package memo

// Option applies a configuration option to the LRU memo.
type Option func(*lruMemo)

// WithMaxSize sets the maximum number of cached results. Zero or negative
// leaves the memo unbounded.
func WithMaxSize(size int) Option {
	return func(m *lruMemo) {
		m.maxSize = size
	}
}
