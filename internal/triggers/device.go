package triggers

import (
	"strings"

	"github.com/automata-dev/automata/pkg/schema"
)

func (e *Evaluator) evaluateDevice(t *schema.DeviceTrigger, snap *Snapshot) (bool, error) {
	if snap.Device == nil {
		return false, nil
	}
	dev := snap.Device

	switch t.Kind {
	case schema.DeviceType:
		return strings.EqualFold(dev.Type, t.DeviceType), nil

	case schema.DevicePlatform:
		return strings.EqualFold(dev.Platform, t.Platform), nil

	case schema.DeviceNetwork:
		return strings.EqualFold(dev.Network, t.Network), nil

	case schema.DeviceBattery:
		if t.BatteryBelow != nil && dev.BatteryLevel >= *t.BatteryBelow {
			return false, nil
		}
		if t.Charging != nil && dev.Charging != *t.Charging {
			return false, nil
		}
		// At least one criterion must be present, otherwise the trigger
		// would fire on every snapshot.
		if t.BatteryBelow == nil && t.Charging == nil {
			return false, schema.NewError(schema.ErrCodeValidation,
				"battery trigger needs battery_below or charging")
		}
		return true, nil

	default:
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown device trigger kind %q", t.Kind)
	}
}
