package prescription

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// maxDurationDays bounds parsed durations to keep date arithmetic in range.
const maxDurationDays = 3650000

var (
	durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(days?|weeks?|months?)\b`)
	leadingInteger  = regexp.MustCompile(`^\s*(\d+)`)
)

// ParseDurationDays reads "10 days", "2 weeks" or "1 month" style text. A bare leading
// integer counts as days. Months are 30 days.
func ParseDurationDays(text string) (int, bool) {
	if m := durationPattern.FindStringSubmatch(text); m != nil {
		n, ok := parseCount(m[1])
		if !ok {
			return 0, false
		}
		switch unit := strings.ToLower(m[2]); {
		case strings.HasPrefix(unit, "week"):
			return capDays(n * 7), true
		case strings.HasPrefix(unit, "month"):
			return capDays(n * 30), true
		default:
			return n, true
		}
	}

	if m := leadingInteger.FindStringSubmatch(text); m != nil {
		return parseCount(m[1])
	}
	return 0, false
}

// parseCount reads a run of digits, saturating at maxDurationDays.
func parseCount(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return maxDurationDays, true
		}
		return 0, false
	}
	return capDays(n), true
}

func capDays(n int) int {
	if n > maxDurationDays {
		return maxDurationDays
	}
	return n
}

// EffectiveValidUntil prefers the stored ValidUntil, then the first medication's duration
// counted from IssueDate. The second result is false when neither is available.
func EffectiveValidUntil(p *model.Prescription) (time.Time, bool) {
	if p.ValidUntil != nil {
		return *p.ValidUntil, true
	}
	if len(p.Medications) == 0 {
		return time.Time{}, false
	}
	days, ok := ParseDurationDays(p.Medications[0].Duration)
	if !ok {
		return time.Time{}, false
	}
	return p.IssueDate.AddDate(0, 0, days), true
}

// IsExpired reports whether an active prescription's validity ended at or before now.
func IsExpired(p *model.Prescription, now time.Time) bool {
	if p.Status != model.PrescriptionStatusActive {
		return false
	}
	until, ok := EffectiveValidUntil(p)
	return ok && !until.After(now)
}
