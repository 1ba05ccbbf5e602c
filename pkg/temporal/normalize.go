// Package temporal coerces generated timestamps into the form the warehouse accepts:
// UTC, microsecond resolution, and causally ordered across related entities.
package temporal

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/TFMV/rawlayer/pkg/draw"
)

// Resolution is the finest precision the external store supports.
const Resolution = time.Microsecond

// Zone is the time zone every timestamp column is qualified with.
const Zone = "UTC"

// Type is the Arrow type of every timestamp column.
var Type = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: Zone}

// DefaultAnchor is the instant generation windows end at when none is configured.
var DefaultAnchor = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// Normalize converts t to UTC and truncates it to microseconds.
// Sub-microsecond information is discarded, never rounded up.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Resolution)
}

// NormalizeIn interprets the wall clock of naive in loc before normalizing it.
func NormalizeIn(naive time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	wall := time.Date(naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(), loc)
	return Normalize(wall)
}

// IsNormalized reports whether t is already in UTC at microsecond resolution.
func IsNormalized(t time.Time) bool {
	return t.Location() == time.UTC && t.Nanosecond()%int(Resolution) == 0
}

// After builds a dependent timestamp as base plus a non-negative offset.
// Negative offsets are clamped to zero, so After(base, d) is never before Normalize(base).
func After(base time.Time, offset time.Duration) time.Time {
	if offset < 0 {
		offset = 0
	}
	return Normalize(Normalize(base).Add(offset))
}

// Window draws a timestamp uniformly in [anchor-span, anchor).
func Window(src *draw.Source, anchor time.Time, span time.Duration) time.Time {
	return Normalize(anchor.Add(-span).Add(src.Duration(span)))
}

// Micros returns t as microseconds since the Unix epoch.
func Micros(t time.Time) arrow.Timestamp {
	return arrow.Timestamp(t.UnixMicro())
}

// FromMicros converts an Arrow microsecond timestamp back to UTC time.
func FromMicros(ts arrow.Timestamp) time.Time {
	return time.UnixMicro(int64(ts)).UTC()
}
