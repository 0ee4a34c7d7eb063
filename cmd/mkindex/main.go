// Command mkindex rebuilds the event-history NDJSON log and its byte-offset
// index from the mirrored calendar archive. It is the only writer of the
// log; the lookup service treats both files as read-only inputs.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/macrolens/evhist/internal/adapters/calendar"
	"github.com/macrolens/evhist/internal/adapters/repository"
	"github.com/macrolens/evhist/internal/domain/keycodec"
	"github.com/macrolens/evhist/internal/domain/model"
	"github.com/macrolens/evhist/internal/domain/points"
	"github.com/macrolens/evhist/pkg/logger"
)

// Default locations, matching the service's derived paths.
const (
	defaultCalendarDir = "data/Economic_Calendar"
	defaultLogPath     = "data/event_history_index/event_history_by_event.ndjson"
	indexSuffix        = ".index.json"
)

func main() {
	calendarDir := flag.String("calendar", defaultCalendarDir, "calendar archive root (year-numbered directories)")
	logPath := flag.String("log", defaultLogPath, "output NDJSON history log")
	indexPath := flag.String("index", "", "output offset index (defaults to <log>"+indexSuffix+")")
	flag.Parse()

	if *indexPath == "" {
		*indexPath = *logPath + indexSuffix
	}

	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()
	if err := run(ctx, *calendarDir, *logPath, *indexPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, calendarDir, logPath, indexPath string) error {
	src := calendar.NewFileSource(calendarDir)
	events, err := src.AllYears(ctx)
	if err != nil {
		return fmt.Errorf("read calendar archive: %w", err)
	}
	if len(events) == 0 {
		return fmt.Errorf("no calendar rows found under %s", calendarDir)
	}

	grouped := groupByEvent(events)
	for _, pts := range grouped {
		points.Sort(pts)
		points.FillPrevious(pts)
		applyRevisions(pts)
	}

	raw, pointCount, err := writeLog(logPath, grouped)
	if err != nil {
		return err
	}

	store := repository.NewFileStore(logPath, indexPath)
	if err := store.Persist(ctx, &repository.Snapshot{Raw: raw}); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	fmt.Printf("wrote %d events (%d points) to %s\n", len(grouped), pointCount, logPath)
	fmt.Printf("wrote %d index entries to %s\n", len(raw), indexPath)
	return nil
}

// groupByEvent buckets calendar rows under their canonical event id. The
// raw actual/previous values are preserved alongside the effective ones so
// later passes can fill and revise without losing what was published.
func groupByEvent(events []model.CalendarEvent) map[string][]model.HistoryPoint {
	grouped := make(map[string][]model.HistoryPoint)
	for _, ev := range events {
		id, identity := keycodec.BuildEventID(ev.Currency, ev.Event)
		grouped[id] = append(grouped[id], model.HistoryPoint{
			Date:        ev.UTC.Format("2006-01-02"),
			Time:        ev.TimeLabel,
			Actual:      ev.Actual,
			ActualRaw:   ev.Actual,
			Forecast:    ev.Forecast,
			Previous:    ev.Previous,
			PreviousRaw: ev.Previous,
			Period:      normalizePeriod(identity.Period),
		})
	}
	return grouped
}

// normalizePeriod lowercases a period token and strips the dot from
// abbreviations like "Sept.".
func normalizePeriod(period string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(period), ".", ""))
}

// applyRevisions detects revised actuals by comparing each release's raw
// actual against the previous value published by the next release that has
// an actual. On a mismatch the older point's effective actual becomes the
// revised value and the newer point records where its previous came from.
func applyRevisions(pts []model.HistoryPoint) {
	for i := range pts {
		if points.IsMissing(pts[i].ActualRaw) {
			continue
		}
		next := -1
		for j := i + 1; j < len(pts); j++ {
			if !points.IsMissing(pts[j].ActualRaw) {
				next = j
				break
			}
		}
		if next < 0 {
			continue
		}
		candidate := pts[next].Previous
		if points.IsMissing(candidate) || valuesMatch(pts[i].ActualRaw, candidate) {
			continue
		}
		pts[i].Actual = candidate
		pts[next].PreviousRevisedFrom = pts[i].ActualRaw
	}
}

// writeLog streams one NDJSON record per event id, in sorted id order, and
// returns every record's starting byte offset.
func writeLog(logPath string, grouped map[string][]model.HistoryPoint) (map[string]int64, int, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, 0, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(logPath)
	if err != nil {
		return nil, 0, fmt.Errorf("create log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := bufio.NewWriter(f)
	raw := make(map[string]int64, len(ids))
	var offset int64
	pointCount := 0
	for _, id := range ids {
		pts := grouped[id]
		rows := make([][]string, 0, len(pts))
		for _, p := range pts {
			rows = append(rows, points.Encode(p))
		}
		line, err := json.Marshal(model.LogRecord{EventID: id, Points: rows})
		if err != nil {
			return nil, 0, fmt.Errorf("encode record %s: %w", id, err)
		}
		raw[id] = offset
		n, err := w.Write(append(line, '\n'))
		if err != nil {
			return nil, 0, fmt.Errorf("write log: %w", err)
		}
		offset += int64(n)
		pointCount += len(pts)
	}
	if err := w.Flush(); err != nil {
		return nil, 0, fmt.Errorf("flush log: %w", err)
	}
	return raw, pointCount, nil
}

// numberPattern accepts the first numeric token of a value, tolerating
// revision markers and magnitude suffixes like "1.2B".
var numberPattern = regexp.MustCompile(`[+-]?\d+(?:\.\d+)?[kmb]?`)

// parseNumeric extracts a comparable number from a published value.
func parseNumeric(value string) (float64, bool) {
	text := strings.ToLower(strings.TrimSpace(value))
	text = strings.NewReplacer(",", "", "%", "", " ", "").Replace(text)
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	multiplier := 1.0
	switch match[len(match)-1] {
	case 'k':
		multiplier = 1e3
		match = match[:len(match)-1]
	case 'm':
		multiplier = 1e6
		match = match[:len(match)-1]
	case 'b':
		multiplier = 1e9
		match = match[:len(match)-1]
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return n * multiplier, true
}

// valuesMatch compares two published values numerically when both parse,
// otherwise textually. Two missing values match.
func valuesMatch(left, right string) bool {
	leftMissing, rightMissing := points.IsMissing(left), points.IsMissing(right)
	if leftMissing || rightMissing {
		return leftMissing && rightMissing
	}
	ln, lok := parseNumeric(left)
	rn, rok := parseNumeric(right)
	if lok && rok {
		return math.Abs(ln-rn) <= 1e-9
	}
	return strings.TrimSpace(left) == strings.TrimSpace(right)
}
