// Package duration parses and formats the human-friendly duration strings
// used for session parameters like time_limit and check_interval: "10h",
// "30min", "45sek", and combined forms like "2h 15min 30sek".
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports a malformed or out-of-range duration string.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid duration %q: %s", e.Input, e.Reason)
}

var componentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-zA-Z]+)`)

// unitSeconds maps every accepted unit spelling (case-insensitive) to its
// length in seconds, including the Polish spellings ("sek", "godzina",
// "dzien", "tydzien") alongside the English ones.
var unitSeconds = map[string]int64{
	"s": 1, "sec": 1, "sek": 1, "second": 1, "seconds": 1,
	"m": 60, "min": 60, "minute": 60, "minutes": 60,
	"h": 3600, "hour": 3600, "hours": 3600, "godzina": 3600, "godzin": 3600, "godziny": 3600,
	"d": 86400, "day": 86400, "days": 86400, "dzien": 86400, "dni": 86400,
	"w": 604800, "week": 604800, "weeks": 604800, "tydzien": 604800, "tygodnie": 604800,
}

// Parse converts a duration string such as "2h 15min 30sek" into a positive
// number of whole seconds. Zero, negative, and unparseable inputs are errors.
func Parse(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, &ParseError{Input: raw, Reason: "empty"}
	}

	matches := componentPattern.FindAllStringSubmatch(trimmed, -1)
	if len(matches) == 0 {
		return 0, &ParseError{Input: raw, Reason: "no recognizable components"}
	}

	var consumed int
	var totalSeconds float64
	for _, m := range matches {
		consumed += len(m[0])
		qty, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, &ParseError{Input: raw, Reason: "bad quantity " + m[1]}
		}
		unit := strings.ToLower(m[2])
		secondsPerUnit, ok := unitSeconds[unit]
		if !ok {
			return 0, &ParseError{Input: raw, Reason: "unknown unit " + m[2]}
		}
		totalSeconds += qty * float64(secondsPerUnit)
	}

	// Reject strings with stray non-whitespace, non-component characters
	// ("10hfoo") by requiring the matched components to cover all non-space
	// runes of the input.
	if nonSpaceLen(trimmed) != consumed {
		return 0, &ParseError{Input: raw, Reason: "unrecognized trailing characters"}
	}

	seconds := int64(totalSeconds)
	if seconds <= 0 {
		return 0, &ParseError{Input: raw, Reason: "must be positive"}
	}
	return seconds, nil
}

func nonSpaceLen(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\t' {
			n++
		}
	}
	return n
}

// Validate parses raw and additionally checks the result falls within
// [minSeconds, maxSeconds].
func Validate(raw string, minSeconds, maxSeconds int64) (int64, error) {
	seconds, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	if seconds < minSeconds || seconds > maxSeconds {
		return 0, &ParseError{Input: raw, Reason: fmt.Sprintf("out of range [%d, %d]", minSeconds, maxSeconds)}
	}
	return seconds, nil
}

// Format renders a number of seconds as "{w}w {d}d {h}h {m}m {s}s",
// omitting zero-valued leading components, the shape the trade-register
// JSON export uses for human-readable durations. Zero renders as "0s".
func Format(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}

	weeks := seconds / 604800
	seconds %= 604800
	days := seconds / 86400
	seconds %= 86400
	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60

	var parts []string
	if weeks > 0 {
		parts = append(parts, fmt.Sprintf("%dw", weeks))
	}
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}
