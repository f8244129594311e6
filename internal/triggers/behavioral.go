package triggers

import (
	"context"
	"time"

	"github.com/automata-dev/automata/pkg/schema"
)

func (e *Evaluator) evaluateBehavioral(ctx context.Context, t *schema.BehavioralTrigger, snap *Snapshot, userID string) (bool, error) {
	if e.history == nil {
		return false, schema.NewError(schema.ErrCodeValidation, "no history store configured")
	}

	switch t.Kind {
	case schema.BehaviorFrequency:
		since := snap.Now.Add(-time.Duration(t.WindowMinutes) * time.Minute)
		events, err := e.recentEvents(ctx, userID, since)
		if err != nil {
			return false, err
		}
		count := 0
		for _, ev := range events {
			if ev.Type == t.EventType {
				count++
			}
		}
		return count >= t.Threshold && t.Threshold > 0, nil

	case schema.BehaviorSequence:
		if len(t.Sequence) == 0 {
			return false, nil
		}
		since := snap.Now.Add(-time.Duration(t.WindowMinutes) * time.Minute)
		events, err := e.recentEvents(ctx, userID, since)
		if err != nil {
			return false, err
		}
		if t.Contiguous {
			return containsContiguous(events, t.Sequence), nil
		}
		return containsSubsequence(events, t.Sequence), nil

	case schema.BehaviorUsagePattern:
		lookback := t.LookbackDays
		if lookback <= 0 {
			lookback = 7
		}
		since := snap.Now.AddDate(0, 0, -lookback)
		events, err := e.recentEvents(ctx, userID, since)
		if err != nil {
			return false, err
		}
		count := 0
		for _, ev := range events {
			if ev.Type == t.EventType && ev.Timestamp.In(snap.Now.Location()).Hour() == t.HourOfDay {
				count++
			}
		}
		return count >= t.MinOccurrences && t.MinOccurrences > 0, nil

	default:
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown behavioral trigger kind %q", t.Kind)
	}
}

func (e *Evaluator) recentEvents(ctx context.Context, userID string, since time.Time) ([]schema.ActivityEvent, error) {
	events, err := e.history.GetRecentEvents(ctx, userID, since)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "reading activity history").WithCause(err)
	}
	return events, nil
}

// containsContiguous scans a time-ordered event list for an adjacent run of
// the wanted event types.
func containsContiguous(events []schema.ActivityEvent, want []string) bool {
	if len(want) == 0 || len(events) < len(want) {
		return false
	}
	for start := 0; start+len(want) <= len(events); start++ {
		match := true
		for j, typ := range want {
			if events[start+j].Type != typ {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// containsSubsequence checks for an ordered, not necessarily adjacent,
// occurrence of the wanted event types.
func containsSubsequence(events []schema.ActivityEvent, want []string) bool {
	if len(want) == 0 {
		return false
	}
	next := 0
	for _, ev := range events {
		if ev.Type == want[next] {
			next++
			if next == len(want) {
				return true
			}
		}
	}
	return false
}
