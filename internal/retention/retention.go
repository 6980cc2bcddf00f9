// Package retention decides which stored postings survive a cleanup run.
package retention

import (
	"strings"
	"time"
)

// Window is the age below which a posting is always kept.
const Window = 30 * 24 * time.Hour

// Outcome is the verdict for a single posting.
type Outcome string

const (
	PreserveFresh Outcome = "preserve-fresh"
	PreserveOpen  Outcome = "preserve-open"
	DeleteStale   Outcome = "delete-stale"
)

// Preserved reports whether the outcome keeps the posting.
func (o Outcome) Preserved() bool {
	return o != DeleteStale
}

var dateLayouts = []string{"2006-01-02", "2006.01.02", "20060102"}

// ParseDate parses YYYY-MM-DD, YYYY.MM.DD or YYYYMMDD. A trailing time
// part separated by a space or "T" is ignored. The result is midnight UTC.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, " T"); i > 0 {
		raw = raw[:i]
	}
	raw = strings.TrimSuffix(raw, ".")
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Day truncates t to its calendar date in t's location, returned as midnight UTC
// so it compares directly with ParseDate results.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// KST is the wall clock "today" is measured on. Korea has no daylight saving.
var KST = time.FixedZone("KST", 9*60*60)

// Today returns the KST calendar date of now.
func Today(now time.Time) time.Time {
	return Day(now.In(KST))
}

// Policy evaluates postings against a window. The zero value uses Window.
type Policy struct {
	Window time.Duration
}

func (p Policy) window() time.Duration {
	if p.Window <= 0 {
		return Window
	}
	return p.Window
}

// Evaluate uses the default 30-day window.
func Evaluate(today time.Time, registeredOn, expiresOn string) Outcome {
	return Policy{}.Evaluate(today, registeredOn, expiresOn)
}

// Evaluate returns the verdict for a posting as of today. A registration date
// that cannot be parsed always preserves the posting.
func (p Policy) Evaluate(today time.Time, registeredOn, expiresOn string) Outcome {
	today = Day(today)

	reg, ok := ParseDate(registeredOn)
	if !ok {
		return PreserveFresh
	}
	if today.Sub(reg) < p.window() {
		return PreserveFresh
	}

	exp, ok := ParseDate(expiresOn)
	if ok && !exp.Before(today) {
		return PreserveOpen
	}
	return DeleteStale
}
