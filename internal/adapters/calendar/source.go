// Package calendar reads the mirrored economic-calendar exports used as the
// lookup fallback when an event has no history in the log.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/macrolens/evhist/internal/domain/model"
	"github.com/macrolens/evhist/pkg/logger"
)

// Calendar file layout constants.
const (
	dateLayout   = "2006-01-02"
	timeLayout   = "15:04"
	allDayLabel  = "All Day"
	fileTemplate = "%d_calendar.json"
)

// row mirrors one object of a <year>_calendar.json array.
type row struct {
	Date       string `json:"Date"`
	Time       string `json:"Time"`
	Event      string `json:"Event"`
	Currency   string `json:"Cur."`
	Importance string `json:"Imp."`
	Actual     string `json:"Actual"`
	Forecast   string `json:"Forecast"`
	Previous   string `json:"Previous"`
}

// Source yields calendar events for the fallback ladder.
type Source interface {
	// All returns the loaded window of calendar events sorted by instant.
	All(ctx context.Context) ([]model.CalendarEvent, error)
}

// FileSource implements Source over year-numbered export directories.
//
// The window follows the original mirror layout: the current and next
// year's directories when present, otherwise the latest year available.
type FileSource struct {
	root string
	log  logger.Logger
	now  func() time.Time
}

// NewFileSource creates a calendar source rooted at dir.
func NewFileSource(root string, opts ...SourceOption) *FileSource {
	s := &FileSource{
		root: root,
		log:  logger.Named("calendar"),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SourceOption applies a configuration option to the FileSource.
type SourceOption func(*FileSource)

// WithSourceLogger sets the source's logger.
func WithSourceLogger(log logger.Logger) SourceOption {
	return func(s *FileSource) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSourceNow overrides the clock used for year-window selection.
func WithSourceNow(now func() time.Time) SourceOption {
	return func(s *FileSource) {
		if now != nil {
			s.now = now
		}
	}
}

// All loads and parses the selected year files. A missing root or a broken
// file never fails the whole scan; bad rows are dropped silently the way
// the original mirror tolerates partial exports.
func (s *FileSource) All(ctx context.Context) ([]model.CalendarEvent, error) {
	years, err := s.selectYears()
	if err != nil || len(years) == 0 {
		return nil, err
	}
	return s.load(ctx, years), nil
}

// AllYears loads every mirrored year directory regardless of the lookup
// window. The offline history builder uses this to cover the full archive.
func (s *FileSource) AllYears(ctx context.Context) ([]model.CalendarEvent, error) {
	years, err := s.listYears()
	if err != nil || len(years) == 0 {
		return nil, err
	}
	return s.load(ctx, years), nil
}

func (s *FileSource) load(ctx context.Context, years []int) []model.CalendarEvent {
	var events []model.CalendarEvent
	for _, year := range years {
		rows, err := s.readYear(year)
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable calendar file",
				logger.Int("year", year), logger.Error(err))
			continue
		}
		for _, r := range rows {
			if ev, ok := parseRow(r); ok {
				events = append(events, ev)
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].UTC.Before(events[j].UTC)
	})
	return events
}

// listYears returns every year-numbered directory under the root, sorted.
func (s *FileSource) listYears() ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read calendar root: %w", err)
	}

	var years []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if y, err := strconv.Atoi(e.Name()); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// selectYears picks the year directories to load: current and next year
// when mirrored, otherwise the latest one present.
func (s *FileSource) selectYears() ([]int, error) {
	years, err := s.listYears()
	if err != nil || len(years) == 0 {
		return nil, err
	}

	current := s.now().Year()
	var selected []int
	for _, y := range years {
		if y == current || y == current+1 {
			selected = append(selected, y)
		}
	}
	if len(selected) == 0 {
		selected = []int{years[len(years)-1]}
	}
	return selected, nil
}

// readYear loads one year directory, falling back to the first JSON file
// when the conventional name is absent.
func (s *FileSource) readYear(year int) ([]row, error) {
	dir := filepath.Join(s.root, strconv.Itoa(year))
	path := filepath.Join(dir, fmt.Sprintf(fileTemplate, year))

	if _, err := os.Stat(path); err != nil {
		matches, globErr := filepath.Glob(filepath.Join(dir, "*.json"))
		if globErr != nil || len(matches) == 0 {
			return nil, fmt.Errorf("no calendar file for %d", year)
		}
		path = matches[0]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// parseRow converts a raw export row into a CalendarEvent. Rows without a
// date or event name, or with an unparseable date, are dropped.
func parseRow(r row) (model.CalendarEvent, bool) {
	dateRaw := strings.TrimSpace(r.Date)
	eventRaw := strings.TrimSpace(r.Event)
	if dateRaw == "" || eventRaw == "" {
		return model.CalendarEvent{}, false
	}

	day, err := time.Parse(dateLayout, dateRaw)
	if err != nil {
		return model.CalendarEvent{}, false
	}

	timeRaw := strings.TrimSpace(r.Time)
	label := timeRaw
	if label == "" {
		label = allDayLabel
	}

	instant := day
	if strings.Contains(timeRaw, ":") {
		if t, err := time.Parse(timeLayout, timeRaw); err == nil {
			instant = day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
		}
	}

	return model.CalendarEvent{
		UTC:        instant,
		TimeLabel:  label,
		Event:      eventRaw,
		Currency:   strings.ToUpper(strings.TrimSpace(r.Currency)),
		Importance: strings.TrimSpace(r.Importance),
		Actual:     strings.TrimSpace(r.Actual),
		Forecast:   strings.TrimSpace(r.Forecast),
		Previous:   strings.TrimSpace(r.Previous),
	}, true
}
