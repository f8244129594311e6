package triggers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automata-dev/automata/pkg/schema"
)

func timeSpec(t *schema.TimeTrigger) *schema.TriggerSpec {
	return &schema.TriggerSpec{Category: schema.TriggerTime, Time: t}
}

func at(hour, minute, second int) time.Time {
	return time.Date(2026, 8, 28, hour, minute, second, 0, time.UTC) // a Friday
}

func TestTimeTrigger_SpecificToleranceWindow(t *testing.T) {
	e := NewEvaluator(nil, nil, nil, nil)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"exactly on time", at(9, 0, 0), true},
		{"thirty seconds past", at(9, 0, 30), true},
		{"sixty seconds past", at(9, 1, 0), true},
		{"a minute before", at(8, 59, 0), true},
		{"two minutes past", at(9, 2, 0), false},
		{"hours away", at(15, 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fired, err := e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{Kind: schema.TimeSpecific, At: "09:00"}),
				&Snapshot{Now: tt.now}, "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, fired)
		})
	}
}

func TestTimeTrigger_RangeWrapsOvernight(t *testing.T) {
	e := NewEvaluator(nil, nil, nil, nil)

	tests := []struct {
		name  string
		start string
		end   string
		now   time.Time
		want  bool
	}{
		{"inside plain range", "09:00", "17:00", at(12, 0, 0), true},
		{"outside plain range", "09:00", "17:00", at(18, 0, 0), false},
		{"range boundaries inclusive", "09:00", "17:00", at(17, 0, 0), true},
		{"overnight late evening", "22:00", "06:00", at(23, 30, 0), true},
		{"overnight early morning", "22:00", "06:00", at(2, 0, 0), true},
		{"overnight daytime excluded", "22:00", "06:00", at(12, 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fired, err := e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{Kind: schema.TimeRange, Start: tt.start, End: tt.end}),
				&Snapshot{Now: tt.now}, "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, fired)
		})
	}
}

func TestTimeTrigger_RecurringDayGates(t *testing.T) {
	e := NewEvaluator(nil, nil, nil, nil)
	friday := at(9, 0, 0)

	fired, err := e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{
		Kind: schema.TimeRecurring, At: "09:00", Days: []string{"fri"},
	}), &Snapshot{Now: friday}, "u1")
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{
		Kind: schema.TimeRecurring, At: "09:00", Days: []string{"mon", "tue"},
	}), &Snapshot{Now: friday}, "u1")
	require.NoError(t, err)
	assert.False(t, fired, "wrong weekday must gate the match off")

	fired, err = e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{
		Kind: schema.TimeRecurring, At: "09:00", DaysOfMonth: []int{28},
	}), &Snapshot{Now: friday}, "u1")
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{
		Kind: schema.TimeRecurring, At: "09:00", DaysOfMonth: []int{1, 15},
	}), &Snapshot{Now: friday}, "u1")
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestTimeTrigger_RecurringCron(t *testing.T) {
	e := NewEvaluator(nil, nil, nil, nil)

	// Every day at 09:00.
	fired, err := e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{
		Kind: schema.TimeRecurring, Cron: "0 9 * * *",
	}), &Snapshot{Now: at(9, 0, 30)}, "u1")
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{
		Kind: schema.TimeRecurring, Cron: "0 9 * * *",
	}), &Snapshot{Now: at(9, 5, 0)}, "u1")
	require.NoError(t, err)
	assert.False(t, fired)

	_, err = e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{
		Kind: schema.TimeRecurring, Cron: "not a cron",
	}), &Snapshot{Now: at(9, 0, 0)}, "u1")
	require.Error(t, err)
}

func TestTimeTrigger_RelativeOffset(t *testing.T) {
	e := NewEvaluator(nil, nil, nil, nil)
	eventStart := at(10, 0, 0)

	snap := &Snapshot{
		Now:        at(9, 45, 20),
		References: map[string]time.Time{"next_meeting": eventStart},
	}
	fired, err := e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{
		Kind: schema.TimeRelative, Reference: "next_meeting", OffsetMinutes: -15,
	}), snap, "u1")
	require.NoError(t, err)
	assert.True(t, fired, "15 minutes before the event, within tolerance")

	snap.Now = at(9, 30, 0)
	fired, err = e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{
		Kind: schema.TimeRelative, Reference: "next_meeting", OffsetMinutes: -15,
	}), snap, "u1")
	require.NoError(t, err)
	assert.False(t, fired)

	// Unknown reference never fires.
	fired, err = e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{
		Kind: schema.TimeRelative, Reference: "missing", OffsetMinutes: 0,
	}), snap, "u1")
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestTimeTrigger_InvalidClockAndKind(t *testing.T) {
	e := NewEvaluator(nil, nil, nil, nil)

	_, err := e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{Kind: schema.TimeSpecific, At: "25:99"}),
		&Snapshot{Now: at(9, 0, 0)}, "u1")
	require.Error(t, err)

	_, err = e.Evaluate(t.Context(), timeSpec(&schema.TimeTrigger{Kind: "sometimes"}),
		&Snapshot{Now: at(9, 0, 0)}, "u1")
	require.Error(t, err)
}
