package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/ohlcv-service/internal/apperror"
)

const (
	extendedLayout = "2006-01-02T15:04:05"
	zonedLayout    = "2006-01-02T15:04:05Z07:00"
	legacyLayout   = "20060102-1504"

	// StorageLayout is the ClickHouse DateTime wire format
	StorageLayout = "2006-01-02 15:04:05"
)

var (
	extendedPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d{1,6})?(Z|[+-]\d{2}:\d{2})?$`)
	legacyPattern   = regexp.MustCompile(`^\d{8}-\d{4}$`)
)

// ExpectedTimeFormats lists the accepted time formats for error messages
var ExpectedTimeFormats = []string{
	"2025-07-01T00:00:00Z (ISO 8601, also with .ffffff and +HH:MM offsets)",
	"20250701-0000 (legacy YYYYMMDD-HHmm, deprecated)",
}

// ParsedTime is a parsed request time. Zoned is false when the input carried
// no timezone marker; such values keep their wall clock in a UTC location.
type ParsedTime struct {
	Time  time.Time
	Zoned bool
}

// UTC returns the instant normalized for storage queries
func (p ParsedTime) UTC() time.Time {
	return p.Time.UTC()
}

// String renders the value in the extended format
func (p ParsedTime) String() string {
	if p.Zoned {
		return p.Time.Format(time.RFC3339Nano)
	}
	return p.Time.Format("2006-01-02T15:04:05.999999")
}

// ParseTime parses an extended (ISO 8601) or legacy (YYYYMMDD-HHmm) time string
func ParseTime(s string) (ParsedTime, error) {
	switch {
	case extendedPattern.MatchString(s):
		if strings.HasSuffix(s, "Z") || hasOffset(s) {
			if !validOffset(s) {
				return ParsedTime{}, invalidTime(s, nil)
			}
			t, err := time.Parse(zonedLayout, s)
			if err != nil {
				return ParsedTime{}, invalidTime(s, err)
			}
			return ParsedTime{Time: t, Zoned: true}, nil
		}
		// time.Parse accepts a fractional second after the seconds field
		t, err := time.Parse(extendedLayout, s)
		if err != nil {
			return ParsedTime{}, invalidTime(s, err)
		}
		return ParsedTime{Time: t}, nil

	case legacyPattern.MatchString(s):
		t, err := time.Parse(legacyLayout, s)
		if err != nil {
			return ParsedTime{}, invalidTime(s, err)
		}
		return ParsedTime{Time: t}, nil

	default:
		return ParsedTime{}, invalidTime(s, nil)
	}
}

// IsValidTime reports whether s parses under either grammar
func IsValidTime(s string) bool {
	_, err := ParseTime(s)
	return err == nil
}

// hasOffset reports whether an extended-format string ends in a +HH:MM/-HH:MM offset.
// The date part contributes two dashes, so the offset is the only sign after the 'T'.
func hasOffset(s string) bool {
	i := strings.IndexByte(s, 'T')
	if i < 0 {
		return false
	}
	return strings.ContainsAny(s[i:], "+-")
}

// validOffset rejects +HH:MM offsets with hours above 23 or minutes above 59,
// which time.Parse would otherwise accept.
func validOffset(s string) bool {
	if !hasOffset(s) {
		return true
	}
	off := s[len(s)-5:]
	hours, err := strconv.Atoi(off[:2])
	if err != nil {
		return false
	}
	minutes, err := strconv.Atoi(off[3:])
	if err != nil {
		return false
	}
	return hours < 24 && minutes < 60
}

func invalidTime(s string, cause error) error {
	return apperror.NewInvalidTimeFormat(s, ExpectedTimeFormats, cause)
}

// FormatForStorage renders t as YYYY-MM-DD HH:MM:SS, converting zoned values to UTC
func FormatForStorage(p ParsedTime) string {
	if p.Zoned {
		return p.Time.UTC().Format(StorageLayout)
	}
	return p.Time.Format(StorageLayout)
}

// CompareTimes orders two parsed times. Values are compared as UTC instants when
// both carry a zone and by wall clock otherwise.
func CompareTimes(a, b ParsedTime) int {
	var at, bt time.Time
	if a.Zoned && b.Zoned {
		at, bt = a.Time.UTC(), b.Time.UTC()
	} else {
		at, bt = wallClock(a.Time), wallClock(b.Time)
	}
	return at.Compare(bt)
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ValidateTimeRange fails when end is present and not strictly after start.
// Request validation uses CompareTimes directly and accepts equal times.
func ValidateTimeRange(start ParsedTime, end *ParsedTime) error {
	if end == nil {
		return nil
	}
	if CompareTimes(*end, start) <= 0 {
		return fmt.Errorf("end time (%s) must be after start time (%s)", end, start)
	}
	return nil
}
