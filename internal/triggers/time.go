package triggers

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/automata-dev/automata/pkg/schema"
)

// timeTolerance is the window around a target instant within which a
// specific, recurring or relative time trigger still matches. Evaluation is
// polled, not event-driven, so exact-instant matching would never fire.
const timeTolerance = time.Minute

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

func (e *Evaluator) evaluateTime(t *schema.TimeTrigger, snap *Snapshot) (bool, error) {
	now := snap.Now
	switch t.Kind {
	case schema.TimeSpecific:
		return matchesClock(t.At, now)

	case schema.TimeRange:
		return withinRange(t.Start, t.End, now)

	case schema.TimeRecurring:
		if !dayGateOpen(t, now) {
			return false, nil
		}
		if t.Cron != "" {
			return matchesCron(t.Cron, now)
		}
		return matchesClock(t.At, now)

	case schema.TimeRelative:
		ref, ok := snap.References[t.Reference]
		if !ok {
			return false, nil
		}
		target := ref.Add(time.Duration(t.OffsetMinutes) * time.Minute)
		return withinTolerance(target, now), nil

	default:
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown time trigger kind %q", t.Kind)
	}
}

// matchesClock reports whether now falls within the tolerance window around
// the "HH:MM" clock time on now's own day, in now's location.
func matchesClock(at string, now time.Time) (bool, error) {
	hour, minute, err := parseClock(at)
	if err != nil {
		return false, err
	}
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	return withinTolerance(target, now), nil
}

func withinTolerance(target, now time.Time) bool {
	d := now.Sub(target)
	if d < 0 {
		d = -d
	}
	return d <= timeTolerance
}

// withinRange checks minutes-since-midnight containment. A range whose end
// precedes its start wraps across midnight (22:00-06:00 means late night).
func withinRange(start, end string, now time.Time) (bool, error) {
	sh, sm, err := parseClock(start)
	if err != nil {
		return false, err
	}
	eh, em, err := parseClock(end)
	if err != nil {
		return false, err
	}
	startMin := sh*60 + sm
	endMin := eh*60 + em
	nowMin := now.Hour()*60 + now.Minute()

	if startMin <= endMin {
		return nowMin >= startMin && nowMin <= endMin, nil
	}
	return nowMin >= startMin || nowMin <= endMin, nil
}

// dayGateOpen applies the recurring trigger's day-of-week/day-of-month
// gates. Empty gates pass.
func dayGateOpen(t *schema.TimeTrigger, now time.Time) bool {
	if len(t.Days) > 0 {
		open := false
		for _, name := range t.Days {
			key := strings.ToLower(strings.TrimSpace(name))
			if len(key) > 3 {
				key = key[:3]
			}
			if wd, ok := weekdayNames[key]; ok && wd == now.Weekday() {
				open = true
				break
			}
		}
		if !open {
			return false
		}
	}
	if len(t.DaysOfMonth) > 0 {
		open := false
		for _, d := range t.DaysOfMonth {
			if d == now.Day() {
				open = true
				break
			}
		}
		if !open {
			return false
		}
	}
	return true
}

// matchesCron reports whether the schedule has a firing instant within the
// tolerance window ending at now.
func matchesCron(expr string, now time.Time) (bool, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid cron expression %q", expr).WithCause(err)
	}
	next := sched.Next(now.Add(-timeTolerance))
	return !next.After(now), nil
}

func parseClock(s string) (hour, minute int, err error) {
	t, perr := time.Parse("15:04", strings.TrimSpace(s))
	if perr != nil {
		return 0, 0, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid clock time %q, want HH:MM", s).WithCause(perr)
	}
	return t.Hour(), t.Minute(), nil
}
