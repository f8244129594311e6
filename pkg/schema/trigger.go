package schema

import "time"

// TriggerCategory groups trigger kinds by the context they inspect.
type TriggerCategory string

const (
	TriggerTime       TriggerCategory = "time"
	TriggerLocation   TriggerCategory = "location"
	TriggerDevice     TriggerCategory = "device"
	TriggerBehavioral TriggerCategory = "behavioral"
)

// TriggerSpec is a tagged-union trigger definition. Exactly one payload field
// matching Category is populated.
type TriggerSpec struct {
	Category   TriggerCategory    `json:"category"`
	Time       *TimeTrigger       `json:"time,omitempty"`
	Location   *LocationTrigger   `json:"location,omitempty"`
	Device     *DeviceTrigger     `json:"device,omitempty"`
	Behavioral *BehavioralTrigger `json:"behavioral,omitempty"`
}

// TimeTrigger kinds.
const (
	TimeSpecific  = "specific"
	TimeRange     = "range"
	TimeRecurring = "recurring"
	TimeRelative  = "relative"
)

// TimeTrigger matches clock time. Specific/recurring/relative matches use a
// one-minute tolerance window; ranges wrap across midnight.
type TimeTrigger struct {
	Kind string `json:"kind"`

	// specific / recurring ("HH:MM", owner-local time)
	At string `json:"at,omitempty"`

	// range
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	// recurring gates: day-of-week names (mon..sun) and/or days of month.
	// Cron, when set, replaces the At/Days gate with a cron schedule.
	Days        []string `json:"days,omitempty"`
	DaysOfMonth []int    `json:"days_of_month,omitempty"`
	Cron        string   `json:"cron,omitempty"`

	// relative: offset from a named reference instant in the snapshot
	// (e.g. a calendar event start).
	Reference     string `json:"reference,omitempty"`
	OffsetMinutes int    `json:"offset_minutes,omitempty"`
}

// LocationTrigger kinds.
const (
	LocationEnter = "enter"
	LocationExit  = "exit"
	LocationNear  = "near"
)

// LocationTrigger matches proximity to a named place. Enter/exit detect the
// transition edge via a persisted presence flag; near is stateless.
type LocationTrigger struct {
	Kind    string  `json:"kind"`
	Place   string  `json:"place"`
	RadiusM float64 `json:"radius_m,omitempty"`
}

// DeviceTrigger kinds.
const (
	DeviceType     = "type"
	DevicePlatform = "platform"
	DeviceNetwork  = "network"
	DeviceBattery  = "battery"
)

// DeviceTrigger matches the current device-state snapshot.
type DeviceTrigger struct {
	Kind         string   `json:"kind"`
	DeviceType   string   `json:"device_type,omitempty"`
	Platform     string   `json:"platform,omitempty"`
	Network      string   `json:"network,omitempty"` // wifi | cellular | offline
	BatteryBelow *float64 `json:"battery_below,omitempty"`
	Charging     *bool    `json:"charging,omitempty"`
}

// BehavioralTrigger kinds.
const (
	BehaviorUsagePattern = "usage_pattern"
	BehaviorFrequency    = "frequency"
	BehaviorSequence     = "sequence"
)

// BehavioralTrigger matches the user's recent activity history.
type BehavioralTrigger struct {
	Kind string `json:"kind"`

	// frequency: >= Threshold events of EventType within WindowMinutes.
	EventType     string `json:"event_type,omitempty"`
	Threshold     int    `json:"threshold,omitempty"`
	WindowMinutes int    `json:"window_minutes,omitempty"`

	// sequence: the event-type sequence to detect within WindowMinutes.
	// Contiguous requires adjacency; otherwise an ordered subsequence matches.
	Sequence   []string `json:"sequence,omitempty"`
	Contiguous bool     `json:"contiguous,omitempty"`

	// usage_pattern: EventType seen >= MinOccurrences times during HourOfDay
	// over the last LookbackDays.
	HourOfDay      int `json:"hour_of_day,omitempty"`
	MinOccurrences int `json:"min_occurrences,omitempty"`
	LookbackDays   int `json:"lookback_days,omitempty"`
}

// ActivityEvent is one entry in the per-user activity history.
type ActivityEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
