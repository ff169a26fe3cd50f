package alerts

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wofare/edgarwatch/internal/models"
)

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// quietWindowExit reports whether now falls inside the rule's quiet window
// and, if so, the next window exit in the rule's timezone. Windows may wrap
// midnight (e.g. 22:00-07:00). Malformed quiet hours never suppress alerts.
func quietWindowExit(now time.Time, qh *models.QuietHours) (bool, time.Time) {
	if qh == nil || !qh.Enabled {
		return false, time.Time{}
	}

	loc, err := time.LoadLocation(qh.Timezone)
	if err != nil {
		return false, time.Time{}
	}

	start, err := parseClock(qh.Start)
	if err != nil {
		return false, time.Time{}
	}
	end, err := parseClock(qh.End)
	if err != nil {
		return false, time.Time{}
	}
	if start == end {
		return false, time.Time{}
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	inside := false
	if start < end {
		inside = minute >= start && minute < end
	} else {
		// Window wraps midnight.
		inside = minute >= start || minute < end
	}
	if !inside {
		return false, time.Time{}
	}

	exit := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)
	if !exit.After(local) {
		exit = exit.AddDate(0, 0, 1)
	}
	return true, exit
}

// coalesceBucket returns the frequency bucket label for a time, or "" for
// IMMEDIATE delivery. Alerts in the same (user, method, type) bucket merge.
func coalesceBucket(frequency string, t time.Time) string {
	switch frequency {
	case models.FrequencyHourly:
		return t.Format("2006-01-02T15")
	case models.FrequencyDaily:
		return t.Format("2006-01-02")
	case models.FrequencyWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	default:
		return ""
	}
}
