// Package keycodec derives canonical event identifiers and their normalized
// key variants from the loosely-specified names published upstream.
//
// A canonical id is "CUR::metric::frequency". Every id has three variants
// (raw, lowercased, fully normalized) and a correctly built index maps all
// three to the same byte offset, which is what lets lookups tolerate the
// naming drift between log generations.
package keycodec

import (
	"regexp"
	"strings"
)

// SentinelCurrency replaces blank or placeholder currency values.
const SentinelCurrency = "NA"

// NoFrequency is the frequency tag for metrics without a comparison cadence.
const NoFrequency = "none"

// frequencyTags maps every accepted spelling to its canonical tag. Lookup
// order matters: the first tag whose spelling appears in the raw name wins.
var frequencyTags = []struct {
	needle string
	tag    string
}{
	{"y/y", "y/y"},
	{"yoy", "y/y"},
	{"m/m", "m/m"},
	{"mom", "m/m"},
	{"q/q", "q/q"},
	{"qoq", "q/q"},
	{"w/w", "w/w"},
	{"wow", "w/w"},
}

// monthTokens accepts 3-letter and full month names, with the French and
// English spellings the upstream feed has been observed to use folded in.
var monthTokens = map[string]struct{}{
	"jan": {}, "january": {}, "janvier": {},
	"feb": {}, "february": {}, "fevrier": {}, "février": {},
	"mar": {}, "march": {}, "mars": {},
	"apr": {}, "april": {}, "avril": {},
	"may": {}, "mai": {},
	"jun": {}, "june": {}, "juin": {},
	"jul": {}, "july": {}, "juillet": {},
	"aug": {}, "august": {}, "aout": {}, "août": {},
	"sep": {}, "sept": {}, "september": {}, "septembre": {},
	"oct": {}, "october": {}, "octobre": {},
	"nov": {}, "november": {}, "novembre": {},
	"dec": {}, "december": {}, "decembre": {}, "décembre": {},
}

var (
	quarterHalfRE   = regexp.MustCompile(`^(?:q[1-4]|h[1-2])$`)
	trailingParenRE = regexp.MustCompile(`\(([^()]*)\)\s*$`)
	metricKeepRE    = regexp.MustCompile(`[^a-z0-9%]+`)
)

// placeholderCurrencies are upstream stand-ins for "no currency".
var placeholderCurrencies = map[string]struct{}{
	"": {}, "-": {}, "--": {}, "—": {},
}

// Identity is the decomposition of a raw event name.
type Identity struct {
	Metric    string
	Frequency string
	Period    string
}

// detectFrequency finds a comparison-cadence marker anywhere in the raw
// name. Plain substring search: upstream puts the marker in parentheses, at
// the end, or mid-name depending on the source generation.
func detectFrequency(rawName string) string {
	lowered := strings.ToLower(rawName)
	for _, ft := range frequencyTags {
		if strings.Contains(lowered, ft.needle) {
			return ft.tag
		}
	}
	return NoFrequency
}

// isPeriodToken reports whether a lowercased, dot-stripped token names a
// reporting period (month alias or Qn/Hn).
func isPeriodToken(token string) bool {
	if token == "" {
		return false
	}
	if _, ok := monthTokens[token]; ok {
		return true
	}
	return quarterHalfRE.MatchString(token)
}

// isFrequencyToken reports whether a lowercased, dot-and-space-stripped
// token is a frequency marker on its own.
func isFrequencyToken(token string) bool {
	for _, ft := range frequencyTags {
		if token == ft.needle {
			return true
		}
	}
	return false
}

// ParseIdentity splits a raw event name into metric, frequency tag, and
// period token. Trailing parenthesized groups are stripped while they hold
// a period or frequency qualifier; the period group nearest the original
// end of the name is the one reported.
func ParseIdentity(rawName string) Identity {
	base := strings.TrimSpace(rawName)
	period := ""

	for base != "" {
		loc := trailingParenRE.FindStringSubmatchIndex(base)
		if loc == nil {
			break
		}
		group := strings.TrimSpace(base[loc[2]:loc[3]])
		dotless := strings.ReplaceAll(strings.ToLower(group), ".", "")
		spaceless := strings.ReplaceAll(dotless, " ", "")
		if isPeriodToken(dotless) {
			if period == "" {
				period = group
			}
		} else if !isFrequencyToken(spaceless) {
			break
		}
		// Frequency groups are stripped from the metric too; the tag itself
		// is recovered by detectFrequency over the full raw name.
		base = strings.TrimRight(base[:loc[0]], " \t")
	}

	metric := strings.Join(strings.Fields(base), " ")
	if metric == "" {
		metric = strings.TrimSpace(rawName)
	}
	return Identity{
		Metric:    metric,
		Frequency: detectFrequency(rawName),
		Period:    period,
	}
}

// BuildEventID derives the canonical id for a (currency, event name) pair.
// The same pair always yields the same id.
func BuildEventID(currency, rawName string) (string, Identity) {
	identity := ParseIdentity(rawName)
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := placeholderCurrencies[cur]; ok {
		cur = SentinelCurrency
	}
	// The metric must not smuggle a segment separator into the id.
	metric := strings.ReplaceAll(identity.Metric, "::", " ")
	return cur + "::" + metric + "::" + identity.Frequency, identity
}

// normalizeMetric lowercases and folds every run of characters outside
// [a-z0-9%] into a single space. The slash folds too: older log
// generations wrote "cpi m m" where newer producers write "CPI m/m", and
// both have to land on the same normalized key.
func normalizeMetric(metric string) string {
	lowered := strings.ToLower(metric)
	spaced := metricKeepRE.ReplaceAllString(lowered, " ")
	return strings.Join(strings.Fields(spaced), " ")
}

// Normalize produces the fully normalized variant of a canonical id.
// Normalization is idempotent. Ids that do not have exactly three segments
// degrade to a flat lowercase of the whole string.
func Normalize(id string) string {
	parts := strings.Split(id, "::")
	if len(parts) != 3 {
		return strings.ToLower(id)
	}
	return strings.ToLower(parts[0]) + "::" + normalizeMetric(parts[1]) + "::" + strings.ToLower(parts[2])
}

// Variants returns the candidate key set for an id in the fixed probe
// order: raw, lowercased, normalized. Duplicates are dropped so callers
// never probe the same key twice.
func Variants(id string) []string {
	out := make([]string, 0, 3)
	for _, v := range []string{id, strings.ToLower(id), Normalize(id)} {
		seen := false
		for _, prev := range out {
			if prev == v {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, v)
		}
	}
	return out
}
