package aegis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration components are normalized on fixed lengths: a year is 365 days
// and a month is 30 days. Lifespans configured here bound token windows,
// they are not calendar arithmetic.
const (
	day   = 24 * time.Hour
	month = 30 * day
	year  = 365 * day
)

var durationPattern = regexp.MustCompile(
	`^((?P<years>\d+)y[a-z]*)?` +
		`((?P<months>\d+)mo[a-z]*)?` +
		`((?P<days>\d+)d[a-z]*)?` +
		`((?P<hours>\d+)h[a-z]*)?` +
		`((?P<minutes>\d+)m[a-z]*)?` +
		`((?P<seconds>\d+)s[a-z]*)?$`,
)

// ParseDurationString parses a human readable lifespan such as "1 Hour",
// "7 days, 45 minutes" or "1y11d20m" into a time.Duration. Whitespace and
// commas are ignored and matching is case insensitive. The unit prefixes are
// y, mo, d, h, m and s; any trailing letters after a prefix are accepted so
// that "minutes" and "min" both parse.
//
// An ErrConfiguration is returned when the text cannot be parsed or contains
// no recognizable component.
func ParseDurationString(text string) (time.Duration, error) {
	cleaned := strings.ToLower(text)
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	match := durationPattern.FindStringSubmatch(cleaned)
	if match == nil {
		return 0, fmt.Errorf("%w: couldn't parse duration %q", ErrConfiguration, text)
	}

	units := map[string]time.Duration{
		"years":   year,
		"months":  month,
		"days":    day,
		"hours":   time.Hour,
		"minutes": time.Minute,
		"seconds": time.Second,
	}

	var total time.Duration
	var matched bool
	for i, name := range durationPattern.SubexpNames() {
		if name == "" || match[i] == "" {
			continue
		}
		value, err := strconv.ParseInt(match[i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: couldn't parse duration %q", ErrConfiguration, text)
		}
		total += time.Duration(value) * units[name]
		matched = true
	}
	if !matched {
		return 0, fmt.Errorf("%w: couldn't parse duration %q", ErrConfiguration, text)
	}
	return total, nil
}
