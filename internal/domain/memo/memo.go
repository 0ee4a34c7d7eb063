// Package memo defines the interface for short-lived lookup result caching.
//
// The host front-end tends to re-request the same handful of events while a
// chart is open, so the engine keeps a small LRU of recent results keyed by
// canonical event id. The cache is only valid for one generation of the
// on-disk sources; the engine clears it whenever the log/index signature
// changes.
package memo

import (
	"container/list"
	"context"
	"sync"

	"github.com/macrolens/evhist/internal/domain/model"
	"github.com/macrolens/evhist/pkg/metrics"
)

// Memo caches lookup results by canonical event id.
type Memo interface {
	// Get returns the cached result for an event id, marking it most
	// recently used.
	Get(ctx context.Context, eventID string) (model.Result, bool)

	// Put stores a result, evicting the least recently used entry when the
	// cache is full.
	Put(ctx context.Context, eventID string, r model.Result)

	// Invalidate drops every entry. Called when the on-disk sources change.
	Invalidate(ctx context.Context)

	// Len returns the current number of cached results.
	Len() int
}

// Default memo configuration constants.
const defaultMaxSize = 60

type entry struct {
	eventID string
	result  model.Result
}

// lruMemo implements Memo with a map plus recency list.
type lruMemo struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front = most recently used
}

// NewLRU creates a new in-memory memo with configuration options.
func NewLRU(opts ...Option) Memo {
	m := &lruMemo{
		maxSize: defaultMaxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *lruMemo) Get(ctx context.Context, eventID string) (model.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[eventID]
	if !ok {
		metrics.RecordMemoMiss()
		return model.Result{}, false
	}
	m.order.MoveToFront(el)
	metrics.RecordMemoHit()
	return el.Value.(*entry).result, true
}

func (m *lruMemo) Put(ctx context.Context, eventID string, r model.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[eventID]; ok {
		el.Value.(*entry).result = r
		m.order.MoveToFront(el)
		return
	}
	for m.maxSize > 0 && m.order.Len() >= m.maxSize {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(*entry).eventID)
		metrics.RecordMemoEviction()
	}
	m.items[eventID] = m.order.PushFront(&entry{eventID: eventID, result: r})
	metrics.UpdateMemoSize(m.order.Len())
}

func (m *lruMemo) Invalidate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.order.Init()
	metrics.UpdateMemoSize(0)
}

func (m *lruMemo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
