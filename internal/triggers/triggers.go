package triggers

import (
	"context"
	"log/slog"
	"time"

	"github.com/automata-dev/automata/internal/connectors"
	"github.com/automata-dev/automata/pkg/schema"
)

// Snapshot is the context a trigger is evaluated against: the current
// instant, the latest device and location state, and named reference
// instants (e.g. the next calendar event start) for relative time triggers.
type Snapshot struct {
	Now        time.Time
	Location   *LocationState
	Device     *DeviceState
	References map[string]time.Time
}

// LocationState is the latest position fix.
type LocationState struct {
	Lat       float64
	Lon       float64
	AccuracyM float64
}

// DeviceState is the latest device snapshot.
type DeviceState struct {
	Type         string
	Platform     string
	Network      string
	BatteryLevel float64 // 0..100
	Charging     bool
}

// FlagStore persists small per-user booleans, used for geofence edge
// detection. Implementations must provide read-your-writes consistency per
// (userID, key).
type FlagStore interface {
	GetFlag(ctx context.Context, userID, key string) (bool, error)
	SetFlag(ctx context.Context, userID, key string, value bool, ttl time.Duration) error
}

// HistoryStore reads the per-user activity history, time-ordered ascending.
type HistoryStore interface {
	GetRecentEvents(ctx context.Context, userID string, since time.Time) ([]schema.ActivityEvent, error)
}

// Evaluator answers whether a trigger condition currently holds. It owns no
// loop; a scheduler or event bus calls it once per candidate trigger per
// context change.
type Evaluator struct {
	locations connectors.LocationLookup
	flags     FlagStore
	history   HistoryStore
	logger    *slog.Logger
}

// NewEvaluator wires an evaluator. Collaborators may be nil when the
// corresponding trigger categories are never used; evaluating such a
// trigger then returns an error instead of a silent false.
func NewEvaluator(locations connectors.LocationLookup, flags FlagStore, history HistoryStore, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		locations: locations,
		flags:     flags,
		history:   history,
		logger:    logger,
	}
}

// Evaluate dispatches on the trigger category.
func (e *Evaluator) Evaluate(ctx context.Context, spec *schema.TriggerSpec, snap *Snapshot, userID string) (bool, error) {
	if spec == nil || snap == nil {
		return false, schema.NewError(schema.ErrCodeValidation, "trigger and snapshot are required")
	}
	switch spec.Category {
	case schema.TriggerTime:
		if spec.Time == nil {
			return false, schema.NewError(schema.ErrCodeValidation, "time trigger without payload")
		}
		return e.evaluateTime(spec.Time, snap)
	case schema.TriggerLocation:
		if spec.Location == nil {
			return false, schema.NewError(schema.ErrCodeValidation, "location trigger without payload")
		}
		return e.evaluateLocation(ctx, spec.Location, snap, userID)
	case schema.TriggerDevice:
		if spec.Device == nil {
			return false, schema.NewError(schema.ErrCodeValidation, "device trigger without payload")
		}
		return e.evaluateDevice(spec.Device, snap)
	case schema.TriggerBehavioral:
		if spec.Behavioral == nil {
			return false, schema.NewError(schema.ErrCodeValidation, "behavioral trigger without payload")
		}
		return e.evaluateBehavioral(ctx, spec.Behavioral, snap, userID)
	default:
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown trigger category %q", string(spec.Category))
	}
}
