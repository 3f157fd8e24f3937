package service

import "time"

const (
	warningLeadMin = 23 * time.Hour
	warningLeadMax = 25 * time.Hour
)

// CancellationWindow returns the UTC range [start, end) of class start
// times that are due for the low-participant check: from one day plus
// buffer ahead of now up to reach past the end of tomorrow's civil date
// in loc. With reach at least buffer the window is never empty.
func CancellationWindow(now time.Time, loc *time.Location, buffer, reach time.Duration) (time.Time, time.Time) {
	local := now.In(loc)
	start := local.AddDate(0, 0, 1).Add(buffer)
	y, m, d := local.AddDate(0, 0, 2).Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, loc).Add(reach)
	return start.UTC(), end.UTC()
}

// WarningWindow returns [now+23h, now+25h) in UTC.
func WarningWindow(now time.Time) (time.Time, time.Time) {
	return now.Add(warningLeadMin).UTC(), now.Add(warningLeadMax).UTC()
}
