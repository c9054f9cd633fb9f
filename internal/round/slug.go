package round

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultCadence is the length of a round when the slug does not say otherwise.
const DefaultCadence = 15 * time.Minute

// ErrNoTimestamp means a slug has no trailing unix start time and cannot be rolled.
var ErrNoTimestamp = errors.New("slug has no numeric timestamp suffix")

var cadencePattern = regexp.MustCompile(`-(15m|1h|4h)-(\d{10})$`)

var cadences = map[string]time.Duration{
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
}

// SlugFromURL extracts a market slug from a market page URL. A bare slug is returned as-is.
func SlugFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

// Cadence returns the round length encoded in the slug, defaulting to 15 minutes.
func Cadence(slug string) time.Duration {
	if m := cadencePattern.FindStringSubmatch(slug); m != nil {
		return cadences[m[1]]
	}
	return DefaultCadence
}

// CandleInterval maps a cadence to a kline interval string.
func CandleInterval(cadence time.Duration) string {
	switch cadence {
	case time.Hour:
		return "1h"
	case 4 * time.Hour:
		return "4h"
	}
	return "15m"
}

// Timestamp returns the unix start time suffix of a windowed slug.
func Timestamp(slug string) (int64, error) {
	i := strings.LastIndex(slug, "-")
	if i < 0 || i == len(slug)-1 {
		return 0, fmt.Errorf("%q: %w", slug, ErrNoTimestamp)
	}
	ts, err := strconv.ParseInt(slug[i+1:], 10, 64)
	if err != nil || ts <= 0 {
		return 0, fmt.Errorf("%q: %w", slug, ErrNoTimestamp)
	}
	return ts, nil
}

// NextSlug derives the following round's slug. When the process has fallen more than
// two cadences behind, it jumps to the window containing now instead of stepping once.
func NextSlug(slug string, now time.Time) (string, error) {
	ts, err := Timestamp(slug)
	if err != nil {
		return "", err
	}
	step := int64(Cadence(slug) / time.Second)
	stem := slug[:strings.LastIndex(slug, "-")]

	next := ts + step
	if nowUnix := now.Unix(); nowUnix-ts > 2*step {
		next = (nowUnix / step) * step
	}
	return fmt.Sprintf("%s-%d", stem, next), nil
}
