package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type triggerKind int

const (
	kindInterval triggerKind = iota + 1
	kindDaily
)

// Trigger is either a fixed period or a list of daily HH:mm instants in a
// location. The zero value is invalid.
type Trigger struct {
	kind  triggerKind
	every time.Duration
	loc   *time.Location
	times []string
}

// Interval fires once when the job starts and then every d.
func Interval(d time.Duration) Trigger {
	return Trigger{kind: kindInterval, every: d}
}

// DailyAt fires at each HH:mm in loc, every day.
func DailyAt(loc *time.Location, times ...string) Trigger {
	return Trigger{kind: kindDaily, loc: loc, times: times}
}

func (t Trigger) Validate() error {
	switch t.kind {
	case kindInterval:
		if t.every < time.Second {
			return fmt.Errorf("interval must be at least 1s, got %s", t.every)
		}
		return nil
	case kindDaily:
		if t.loc == nil {
			return errors.New("daily trigger requires a location")
		}
		if len(t.times) == 0 {
			return errors.New("daily trigger requires at least one time")
		}
		for _, hhmm := range t.times {
			if _, err := parseTimeOfDay(hhmm); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.New("trigger is not configured")
	}
}

func (t Trigger) String() string {
	switch t.kind {
	case kindInterval:
		return "every " + t.every.String()
	case kindDaily:
		return fmt.Sprintf("daily at %s (%s)", strings.Join(t.times, ","), t.loc)
	default:
		return "invalid"
	}
}

func (t Trigger) firesImmediately() bool {
	return t.kind == kindInterval
}

func (t Trigger) schedules() ([]cron.Schedule, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.kind == kindInterval {
		return []cron.Schedule{cron.Every(t.every)}, nil
	}

	seen := make(map[dailySchedule]bool, len(t.times))
	var out []cron.Schedule
	for _, hhmm := range t.times {
		tod, _ := parseTimeOfDay(hhmm)
		s := dailySchedule{hour: tod.hour, minute: tod.minute, loc: t.loc}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

type timeOfDay struct {
	hour, minute int
}

func parseTimeOfDay(hhmm string) (timeOfDay, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil || len(hhmm) != 5 {
		return timeOfDay{}, fmt.Errorf("invalid time of day %q, expected HH:mm", hhmm)
	}
	return timeOfDay{hour: parsed.Hour(), minute: parsed.Minute()}, nil
}

// dailySchedule is a cron.Schedule firing at hour:minute in loc. On a day
// where that wall time does not exist, time.Date normalizes it forward.
type dailySchedule struct {
	hour, minute int
	loc          *time.Location
}

func (s dailySchedule) Next(t time.Time) time.Time {
	local := t.In(s.loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}
