package gcode

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var errDuration = errors.New("not a duration")

// maxDurationSeconds bounds estimates to what fits an int32 (about 68 years).
const maxDurationSeconds = math.MaxInt32

// parseDuration reads the estimate formats slicers write into comments and
// returns whole seconds. Accepted: "4980", "4980.5", "1:23:00",
// "1d 2h 3m 4s" and the same without spaces.
func parseDuration(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errDuration
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		return roundSeconds(f)
	}
	if strings.Contains(s, ":") {
		return parseClock(s)
	}

	total := 0.0
	num := ""
	seen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= '0' && r <= '9' || r == '.':
			num += string(r)
		case r == ' ':
			continue
		case r == 'd' || r == 'h' || r == 'm' || r == 's':
			if num == "" {
				return 0, errDuration
			}
			f, err := parseNumber(num)
			if err != nil {
				return 0, errDuration
			}
			total += f * unitSeconds(r)
			num = ""
			seen = true
		default:
			return 0, errDuration
		}
	}
	if !seen || num != "" {
		return 0, errDuration
	}
	return roundSeconds(total)
}

// roundSeconds rejects negative, non-finite and out of range values.
func roundSeconds(f float64) (int, error) {
	if math.IsNaN(f) || f < 0 || f+0.5 > maxDurationSeconds {
		return 0, errDuration
	}
	return int(f + 0.5), nil
}

func unitSeconds(r rune) float64 {
	switch r {
	case 'd':
		return 86400
	case 'h':
		return 3600
	case 'm':
		return 60
	default:
		return 1
	}
}

func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, errDuration
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > maxDurationSeconds {
			return 0, errDuration
		}
		total = total*60 + n
		if total > maxDurationSeconds {
			return 0, errDuration
		}
	}
	return total, nil
}
