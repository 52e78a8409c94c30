package openadr

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders d in the RFC 5545 duration grammar used by xcal:duration.
// A zero duration is written as PT0S: a bare "P" is not a valid duration.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteByte('P')

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if d == 0 {
		return b.String()
	}

	b.WriteByte('T')
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute

	if hours > 0 {
		fmt.Fprintf(&b, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	if d > 0 {
		if d%time.Second == 0 {
			fmt.Fprintf(&b, "%dS", d/time.Second)
		} else {
			b.WriteString(strconv.FormatFloat(d.Seconds(), 'f', -1, 64))
			b.WriteByte('S')
		}
	}
	return b.String()
}

var durationPattern = regexp.MustCompile(`^([+-])?P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDuration parses an RFC 5545 duration such as "PT1M", "P1DT2H" or "-PT15M".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	m := durationPattern.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") || strings.HasSuffix(s, "P") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var d time.Duration
	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+2] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+2], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if n > int64(math.MaxInt64-d)/int64(unit) {
			return 0, fmt.Errorf("duration %q out of range", s)
		}
		d += time.Duration(n) * unit
	}
	if m[6] != "" {
		secs, err := strconv.ParseFloat(m[6], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		ns := secs * float64(time.Second)
		if ns >= float64(math.MaxInt64-d) {
			return 0, fmt.Errorf("duration %q out of range", s)
		}
		d += time.Duration(ns)
	}

	if m[1] == "-" {
		d = -d
	}
	return d, nil
}
