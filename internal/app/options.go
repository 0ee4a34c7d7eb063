package service

import (
	"time"

	"github.com/macrolens/evhist/internal/adapters/calendar"
	"github.com/macrolens/evhist/internal/adapters/repository"
	"github.com/macrolens/evhist/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogPath sets the NDJSON history log location.
func WithLogPath(path string) Option {
	return func(s *Service) {
		s.logPath = path
	}
}

// WithIndexPath sets the persisted offset index location.
func WithIndexPath(path string) Option {
	return func(s *Service) {
		s.indexPath = path
	}
}

// WithCalendarDir sets the calendar export directory.
func WithCalendarDir(dir string) Option {
	return func(s *Service) {
		s.calendarDir = dir
	}
}

// WithMemoSize sets the maximum size of the result memo.
func WithMemoSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.memoSize = size
		}
	}
}

// WithQueueSize sets the maximum size of the refresh queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithRefreshInterval sets the periodic source check cadence.
// Zero or negative disables the ticker.
func WithRefreshInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.refreshInterval = interval
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore overrides the history store, used by tests.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithCalendarSource overrides the fallback calendar source, used by tests.
func WithCalendarSource(src calendar.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}
