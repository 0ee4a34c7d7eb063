// Package service provides the core lookup engine that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/macrolens/evhist/internal/adapters/calendar"
	refreshqueue "github.com/macrolens/evhist/internal/adapters/mq/queue"
	workerpool "github.com/macrolens/evhist/internal/adapters/mq/worker"
	"github.com/macrolens/evhist/internal/adapters/repository"
	"github.com/macrolens/evhist/internal/domain/keycodec"
	"github.com/macrolens/evhist/internal/domain/memo"
	"github.com/macrolens/evhist/internal/domain/model"
	"github.com/macrolens/evhist/internal/domain/points"
	"github.com/macrolens/evhist/pkg/logger"
	"github.com/macrolens/evhist/pkg/metrics"
)

// notFoundMessage is returned on a full miss. A miss is a valid answer,
// never an error.
const notFoundMessage = "No history points found for this event in the log or calendar window."

// Default service configuration constants.
const (
	defaultMemoSize        = 60
	defaultQueueSize       = 64
	defaultWorkerCount     = 1
	defaultRefreshInterval = 5 * time.Minute
)

// Service implements the lookup engine over the history log, the offset
// index and the calendar fallback.
type Service struct {
	mu sync.RWMutex

	// Core components
	store        repository.Store
	source       calendar.Source
	results      memo.Memo
	refreshQueue refreshqueue.Queue
	pool         *workerpool.Pool

	// Configuration
	logPath         string
	indexPath       string
	calendarDir     string
	memoSize        int
	queueSize       int
	workerCount     int
	refreshInterval time.Duration

	// Index state. snap is the current generation; sourceSig fingerprints
	// the on-disk files it was derived from. rebuildMu serializes rebuilds
	// so concurrent misses do not race full log scans.
	snap      *repository.Snapshot
	sourceSig string
	rebuildMu sync.Mutex

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		memoSize:        defaultMemoSize,
		queueSize:       defaultQueueSize,
		workerCount:     defaultWorkerCount,
		refreshInterval: defaultRefreshInterval,
		stopCh:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("engine")
	}

	s.logger.Info(ctx, "starting history lookup engine...")

	if s.store == nil {
		s.store = repository.NewFileStore(s.logPath, s.indexPath)
	}
	if s.source == nil {
		s.source = calendar.NewFileSource(s.calendarDir)
	}
	s.results = memo.NewLRU(memo.WithMaxSize(s.memoSize))
	s.refreshQueue = refreshqueue.NewInMemoryQueue(
		refreshqueue.WithCapacity(s.queueSize),
	)

	s.pool = workerpool.NewPool(s.workerCount, s.refreshQueue, s)
	s.pool.Start(ctx)

	if s.refreshInterval > 0 {
		go s.runTicker(ctx)
	}

	s.started = true
	s.logger.Info(ctx, "history lookup engine started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("memoSize", s.memoSize),
		logger.String("logPath", s.logPath),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping history lookup engine...")

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	if s.pool != nil {
		_ = s.pool.Shutdown(context.Background())
	}

	s.started = false
	s.logger.Info(context.Background(), "history lookup engine stopped")
}

// runTicker enqueues periodic source checks until the service stops.
func (s *Service) runTicker(ctx context.Context) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.refreshQueue.Enqueue(ctx, refreshqueue.RefreshJob{
				Reason:      "ticker",
				RequestedAt: time.Now(),
			})
		}
	}
}

// Lookup resolves the history series for a currency and raw event name.
//
// Resolution order: memo, offset index (raw, lowercase, then normalized
// key), one self-healing rebuild, and finally the calendar window. A full
// miss yields ok=false with a message, not an error.
func (s *Service) Lookup(ctx context.Context, currency, eventName string) (model.Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecordLookupLatency(float64(time.Since(start).Milliseconds()))
	}()

	currency = strings.TrimSpace(currency)
	eventName = strings.TrimSpace(eventName)
	if currency == "" || eventName == "" {
		return model.Result{}, ErrBlankQuery
	}

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return model.Result{}, ErrNotStarted
	}

	s.checkSignature(ctx)

	id, identity := keycodec.BuildEventID(currency, eventName)
	candidates := keycodec.Variants(id)
	idCurrency := strings.SplitN(id, "::", 2)[0]

	// The memo short-circuits before any index work, so a hit on a cold
	// process skips the load/rebuild cost entirely.
	if r, ok := s.results.Get(ctx, id); ok {
		metrics.RecordLookup("memo")
		return r, nil
	}

	rebuilt, err := s.ensureIndex(ctx)
	if err != nil {
		return model.Result{}, err
	}

	result, found := s.tryIndex(ctx, id, identity, idCurrency, candidates)
	if !found && !rebuilt {
		// Self-heal once: the index may predate the current log.
		if err := s.rebuildAndPersist(ctx); err != nil {
			s.logger.Warn(ctx, "self-heal rebuild failed", logger.Error(err))
		} else {
			result, found = s.tryIndex(ctx, id, identity, idCurrency, candidates)
		}
	}

	if found {
		metrics.RecordLookup("index")
		s.results.Put(ctx, id, result)
		return result, nil
	}

	if r, ok := s.tryCalendar(ctx, id, identity, idCurrency, currency, eventName); ok {
		metrics.RecordLookup("fallback")
		s.results.Put(ctx, id, r)
		return r, nil
	}

	metrics.RecordLookup("miss")
	miss := model.Result{
		EventID:   id,
		Metric:    identity.Metric,
		Frequency: identity.Frequency,
		Period:    identity.Period,
		Currency:  idCurrency,
		Points:    []model.HistoryPoint{},
		Message:   notFoundMessage,
	}
	s.results.Put(ctx, id, miss)
	return miss, nil
}

// tryIndex probes the offset index with each candidate key in order and
// reads the record behind the first hit. A stale offset counts as a miss.
func (s *Service) tryIndex(ctx context.Context, id string, identity keycodec.Identity, idCurrency string, candidates []string) (model.Result, bool) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap == nil {
		return model.Result{}, false
	}

	for _, c := range candidates {
		offset, ok := snap.Lookup[c]
		if !ok {
			continue
		}

		rec, err := s.store.ReadRecordAt(ctx, offset, candidates)
		if err != nil {
			if !errors.Is(err, repository.ErrNoRecord) {
				s.logger.Warn(ctx, "record read failed",
					logger.String("key", c), logger.Error(err))
			}
			return model.Result{}, false
		}

		pts := points.DecodeAll(rec.Points)
		if len(pts) == 0 {
			// A verified record with no decodable points is a miss, never
			// an empty series disguised as success.
			s.logger.Warn(ctx, "record has no valid points",
				logger.String("key", c))
			return model.Result{}, false
		}
		points.Sort(pts)
		points.FillPrevious(pts)

		return model.Result{
			OK:        true,
			EventID:   id,
			Metric:    identity.Metric,
			Frequency: identity.Frequency,
			Period:    identity.Period,
			Currency:  idCurrency,
			Points:    pts,
			Cached:    true,
		}, true
	}
	return model.Result{}, false
}

// tryCalendar scans the calendar window for rows whose event name matches
// exactly (after trimming) and whose currency matches case-insensitively.
func (s *Service) tryCalendar(ctx context.Context, id string, identity keycodec.Identity, idCurrency, currency, eventName string) (model.Result, bool) {
	events, err := s.source.All(ctx)
	if err != nil {
		s.logger.Warn(ctx, "calendar scan failed", logger.Error(err))
		return model.Result{}, false
	}

	var pts []model.HistoryPoint
	for _, ev := range events {
		if ev.Event != eventName || !strings.EqualFold(ev.Currency, currency) {
			continue
		}
		pts = append(pts, model.HistoryPoint{
			Date:     ev.UTC.Format("2006-01-02"),
			Time:     ev.TimeLabel,
			Actual:   ev.Actual,
			Forecast: ev.Forecast,
			Previous: ev.Previous,
		})
	}
	if len(pts) == 0 {
		return model.Result{}, false
	}

	points.Sort(pts)
	points.FillPrevious(pts)

	return model.Result{
		OK:        true,
		EventID:   id,
		Metric:    identity.Metric,
		Frequency: identity.Frequency,
		Period:    identity.Period,
		Currency:  idCurrency,
		Points:    pts,
		Cached:    false,
	}, true
}

// checkSignature clears the memo and drops the in-memory index when the
// on-disk sources changed since the last lookup.
func (s *Service) checkSignature(ctx context.Context) {
	sig := repository.SourceSignature(s.logPath, s.indexPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sourceSig == "" {
		s.sourceSig = sig
		return
	}
	if sig != s.sourceSig {
		s.logger.Info(ctx, "source files changed, invalidating caches")
		s.results.Invalidate(ctx)
		s.snap = nil
		s.sourceSig = sig
	}
}

// ensureIndex makes sure an index generation is in memory, loading the
// persisted file first and rebuilding from the log when that fails.
// It reports whether a rebuild ran, so Lookup can honor its one-rebuild
// budget.
func (s *Service) ensureIndex(ctx context.Context) (bool, error) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap != nil {
		return false, nil
	}

	loaded, err := s.store.Load(ctx)
	if err == nil {
		s.mu.Lock()
		s.snap = loaded
		s.mu.Unlock()
		return false, nil
	}
	if !errors.Is(err, repository.ErrNoIndex) {
		return false, err
	}

	s.logger.Info(ctx, "no usable persisted index, rebuilding from log")
	if err := s.rebuildAndPersist(ctx); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No log at all: the index path is simply unavailable and the
			// lookup proceeds to the calendar fallback.
			s.logger.Warn(ctx, "history log missing, index path unavailable",
				logger.String("logPath", s.logPath))
			return true, nil
		}
		return true, err
	}
	return true, nil
}

// rebuildAndPersist derives a fresh index from the log, persists it
// best-effort, and installs it as the current generation. Rebuilds are
// serialized; a second caller reuses the winner's snapshot.
func (s *Service) rebuildAndPersist(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	snap, err := s.store.Rebuild(ctx)
	if err != nil {
		return err
	}

	if err := s.store.Persist(ctx, snap); err != nil {
		// Persisting is an optimization; the in-memory index is authoritative.
		metrics.RecordIndexPersistError()
		s.logger.Warn(ctx, "index persist failed", logger.Error(err))
	}

	// Persisting changed the index file, so refresh the signature before
	// installing the new generation.
	sig := repository.SourceSignature(s.logPath, s.indexPath)

	s.mu.Lock()
	s.snap = snap
	s.sourceSig = sig
	s.mu.Unlock()

	s.results.Invalidate(ctx)
	return nil
}

// Refresh implements worker.Refresher: re-check the sources and rebuild
// when they changed or when forced.
func (s *Service) Refresh(ctx context.Context, forced bool) (bool, error) {
	sig := repository.SourceSignature(s.logPath, s.indexPath)

	s.mu.RLock()
	unchanged := s.snap != nil && sig == s.sourceSig
	s.mu.RUnlock()

	if unchanged && !forced {
		return false, nil
	}

	if err := s.rebuildAndPersist(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RequestReindex enqueues a forced refresh. Returns false when the queue
// is saturated; callers surface that as backpressure.
func (s *Service) RequestReindex(ctx context.Context) bool {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return false
	}

	return s.refreshQueue.Enqueue(ctx, refreshqueue.RefreshJob{
		Reason:      "admin",
		Forced:      true,
		RequestedAt: time.Now(),
	})
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"memoSize":    s.memoSize,
		"logPath":     s.logPath,
		"indexPath":   s.indexPath,
	}

	if s.started {
		stats["memoEntries"] = s.results.Len()
		stats["refreshQueueLength"] = s.refreshQueue.Len(ctx)
		if s.snap != nil {
			stats["indexEntries"] = len(s.snap.Lookup)
			stats["indexedEvents"] = len(s.snap.Raw)
		}
	}

	return stats
}
