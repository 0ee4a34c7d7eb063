// Package points converts the log's compact tuple rows into structured
// history points and back.
//
// A row is a fixed-order array of strings rather than an object to keep the
// log small. The full layout is
//
//	[date, time, actual, forecast, previous, actualRaw, previousRaw,
//	 previousRevisedFrom?, period]
//
// where previousRevisedFrom is only written when non-empty. Different log
// generations appended different trailing fields, so the last one or two
// elements are decoded from the end of the row, never by fixed position.
package points

import (
	"sort"
	"strings"
	"time"

	"github.com/macrolens/evhist/internal/domain/model"
	"github.com/macrolens/evhist/pkg/metrics"
)

// Row lengths the decoder distinguishes.
const (
	minRowLen       = 5 // date, time, actual, forecast, previous
	rawFieldsRowLen = 7 // adds actualRaw, previousRaw
	periodRowLen    = 8 // adds trailing period
	revisedRowLen   = 9 // adds previousRevisedFrom before the period
)

const (
	timeLayout     = "15:04"
	dateLayout     = "2006-01-02"
	minutesPerHour = 60
)

// missingTokens are upstream stand-ins for "no value".
var missingTokens = map[string]struct{}{
	"": {}, "-": {}, "--": {}, "—": {}, "tba": {}, "n/a": {}, "na": {}, "null": {},
}

// IsMissing reports whether a field value is blank or an upstream
// placeholder for a missing value.
func IsMissing(value string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// clean trims a raw field; a whitespace-only value decodes as absent.
func clean(s string) string {
	return strings.TrimSpace(s)
}

// Decode converts one tuple row into a history point. Rows shorter than the
// minimum length are discarded (ok false). Rows longer than any known
// generation still decode under the longest known layout, but are counted
// so data producers can be flagged rather than silently guessed at.
func Decode(row []string) (model.HistoryPoint, bool) {
	if len(row) < minRowLen {
		return model.HistoryPoint{}, false
	}
	p := model.HistoryPoint{
		Date:     clean(row[0]),
		Time:     clean(row[1]),
		Actual:   clean(row[2]),
		Forecast: clean(row[3]),
		Previous: clean(row[4]),
	}
	if len(row) >= rawFieldsRowLen {
		p.ActualRaw = clean(row[5])
		p.PreviousRaw = clean(row[6])
	}
	switch {
	case len(row) >= revisedRowLen:
		p.PreviousRevisedFrom = clean(row[len(row)-2])
		p.Period = clean(row[len(row)-1])
	case len(row) == periodRowLen:
		p.Period = clean(row[len(row)-1])
	}
	if len(row) > revisedRowLen {
		metrics.RecordOversizePointRow()
	}
	return p, true
}

// DecodeAll decodes every valid row of a record, dropping the rest.
func DecodeAll(rows [][]string) []model.HistoryPoint {
	out := make([]model.HistoryPoint, 0, len(rows))
	for _, row := range rows {
		if p, ok := Decode(row); ok {
			out = append(out, p)
		}
	}
	return out
}

// Encode renders a point as a tuple row in the producer layout: 8 elements,
// or 9 when a revised-from value is present (inserted before the trailing
// period so the period stays last).
func Encode(p model.HistoryPoint) []string {
	row := []string{p.Date, p.Time, p.Actual, p.Forecast, p.Previous, p.ActualRaw, p.PreviousRaw}
	if p.PreviousRevisedFrom != "" {
		row = append(row, p.PreviousRevisedFrom)
	}
	return append(row, p.Period)
}

// sortKey orders points chronologically: parseable dates first in date
// order, then by minute of day. Unparseable dates sort to the front, which
// matches how the host application has always displayed them.
func sortKey(p model.HistoryPoint) (int64, int) {
	var day int64
	if t, err := time.Parse(dateLayout, p.Date); err == nil {
		day = t.Unix()
	}
	minute := 0
	if t, err := time.Parse(timeLayout, p.Time); err == nil {
		minute = t.Hour()*minutesPerHour + t.Minute()
	}
	return day, minute
}

// Sort orders points chronologically in place. The sort is stable so ties
// keep their log order.
func Sort(pts []model.HistoryPoint) {
	sort.SliceStable(pts, func(i, j int) bool {
		di, mi := sortKey(pts[i])
		dj, mj := sortKey(pts[j])
		if di != dj {
			return di < dj
		}
		return mi < mj
	})
}

// FillPrevious replaces a missing previous value with the most recent
// non-missing actual of an earlier point. Works on a chronologically
// sorted slice; raw fields are left untouched.
func FillPrevious(pts []model.HistoryPoint) {
	lastActual := ""
	for i := range pts {
		if IsMissing(pts[i].Previous) && lastActual != "" {
			pts[i].Previous = lastActual
		}
		if !IsMissing(pts[i].Actual) {
			lastActual = pts[i].Actual
		}
	}
}
