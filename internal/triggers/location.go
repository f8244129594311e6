package triggers

import (
	"context"
	"math"
	"time"

	"github.com/automata-dev/automata/pkg/schema"
)

const (
	earthRadiusM = 6371000.0

	// defaultRadiusM applies when a location trigger omits radius_m.
	defaultRadiusM = 100.0

	// geofenceMarginM compensates for fix jitter on top of the reported
	// accuracy so a user idling on the boundary does not flap.
	geofenceMarginM = 100.0

	// presenceFlagTTL bounds how long a stale presence flag survives
	// without fresh fixes.
	presenceFlagTTL = 7 * 24 * time.Hour
)

func (e *Evaluator) evaluateLocation(ctx context.Context, t *schema.LocationTrigger, snap *Snapshot, userID string) (bool, error) {
	if e.locations == nil {
		return false, schema.NewError(schema.ErrCodeValidation, "no location lookup configured")
	}
	if snap.Location == nil {
		return false, nil
	}

	coords, err := e.locations.ResolveCoordinates(ctx, t.Place, userID)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeConnector,
			"resolving place %q", t.Place).WithCause(err)
	}
	if coords == nil {
		e.logger.DebugContext(ctx, "unknown place", "place", t.Place)
		return false, nil
	}

	radius := t.RadiusM
	if radius <= 0 {
		radius = defaultRadiusM
	}
	distance := haversineM(snap.Location.Lat, snap.Location.Lon, coords.Lat, coords.Lon)
	inside := distance <= radius+snap.Location.AccuracyM+geofenceMarginM

	switch t.Kind {
	case schema.LocationNear:
		return inside, nil

	case schema.LocationEnter, schema.LocationExit:
		if e.flags == nil {
			return false, schema.NewError(schema.ErrCodeValidation, "no flag store configured")
		}
		key := "geo:" + t.Place
		was, err := e.flags.GetFlag(ctx, userID, key)
		if err != nil {
			return false, schema.NewError(schema.ErrCodeStore, "reading presence flag").WithCause(err)
		}
		if err := e.flags.SetFlag(ctx, userID, key, inside, presenceFlagTTL); err != nil {
			return false, schema.NewError(schema.ErrCodeStore, "writing presence flag").WithCause(err)
		}
		// Only the transition edge fires, never steady-state containment.
		if t.Kind == schema.LocationEnter {
			return !was && inside, nil
		}
		return was && !inside, nil

	default:
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown location trigger kind %q", t.Kind)
	}
}

// haversineM returns the great-circle distance in meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lon2 - lon1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
