// Package model contains domain models passed between layers.
package model

import "time"

// IndexVersion is the on-disk schema version of the offset index file.
// Readers reject nothing by version today, but writers always stamp it so
// future layout changes can be detected.
const IndexVersion = 3

// GeneratedAtLayout is the timestamp layout used in the index file's
// generated_at field. The host application compares index freshness by
// parsing exactly this form, so it must not change.
const GeneratedAtLayout = "02-01-2006 15:04"

// HistoryPoint is one structured data point of an event's history.
// Optional fields are absent (empty and omitted from JSON) rather than
// present-but-empty, so consumers can tell "no value recorded" apart from
// a recorded empty string.
type HistoryPoint struct {
	Date                string `json:"date"`
	Time                string `json:"time"`
	Actual              string `json:"actual"`
	ActualRaw           string `json:"actualRaw,omitempty"`
	Forecast            string `json:"forecast"`
	Previous            string `json:"previous"`
	PreviousRaw         string `json:"previousRaw,omitempty"`
	PreviousRevisedFrom string `json:"previousRevisedFrom,omitempty"`
	Period              string `json:"period,omitempty"`
}

// LogRecord is one line of the NDJSON history log: a canonical event id and
// its points as compact fixed-order tuple rows (see the points package for
// the row layout).
type LogRecord struct {
	EventID string     `json:"eventId"`
	Points  [][]string `json:"points"`
}

// IndexFile is the persisted byte-offset index derived from the log.
// Index maps every event-id variant to the byte offset of the start of the
// record's line in the log file.
type IndexFile struct {
	GeneratedAt string           `json:"generated_at"`
	Version     int              `json:"version"`
	Index       map[string]int64 `json:"index"`
}

// CalendarEvent is one row of the raw calendar source, used only by the
// fallback scan when the log/index path cannot satisfy a lookup.
type CalendarEvent struct {
	UTC        time.Time // event instant (midnight for all-day rows)
	TimeLabel  string    // display label, "All Day" when the row has no time
	Event      string    // free-text event name as published upstream
	Currency   string    // uppercased currency code
	Importance string
	Actual     string
	Forecast   string
	Previous   string
}

// Result is the answer to one history lookup. OK is false only for the
// not-found case; all other failure modes are recovered internally.
// Cached reports whether the index path satisfied the lookup (true) or the
// calendar fallback did (false).
type Result struct {
	OK        bool           `json:"ok"`
	EventID   string         `json:"eventId"`
	Metric    string         `json:"metric"`
	Frequency string         `json:"frequency"`
	Period    string         `json:"period"`
	Currency  string         `json:"cur"`
	Points    []HistoryPoint `json:"points"`
	Cached    bool           `json:"cached"`
	Message   string         `json:"message,omitempty"`
}
