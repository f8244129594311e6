package triggers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automata-dev/automata/pkg/schema"
)

func deviceSpec(d *schema.DeviceTrigger) *schema.TriggerSpec {
	return &schema.TriggerSpec{Category: schema.TriggerDevice, Device: d}
}

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

func TestDeviceTrigger_Matching(t *testing.T) {
	snap := &Snapshot{
		Now: time.Now(),
		Device: &DeviceState{
			Type:         "phone",
			Platform:     "iOS",
			Network:      "wifi",
			BatteryLevel: 18,
			Charging:     false,
		},
	}
	e := NewEvaluator(nil, nil, nil, nil)

	tests := []struct {
		name    string
		trigger *schema.DeviceTrigger
		want    bool
	}{
		{"type matches case-insensitively", &schema.DeviceTrigger{Kind: schema.DeviceType, DeviceType: "Phone"}, true},
		{"type mismatch", &schema.DeviceTrigger{Kind: schema.DeviceType, DeviceType: "tablet"}, false},
		{"platform matches", &schema.DeviceTrigger{Kind: schema.DevicePlatform, Platform: "ios"}, true},
		{"platform mismatch", &schema.DeviceTrigger{Kind: schema.DevicePlatform, Platform: "android"}, false},
		{"network matches", &schema.DeviceTrigger{Kind: schema.DeviceNetwork, Network: "WIFI"}, true},
		{"network mismatch", &schema.DeviceTrigger{Kind: schema.DeviceNetwork, Network: "cellular"}, false},
		{"battery below threshold", &schema.DeviceTrigger{Kind: schema.DeviceBattery, BatteryBelow: floatPtr(20)}, true},
		{"battery at threshold does not fire", &schema.DeviceTrigger{Kind: schema.DeviceBattery, BatteryBelow: floatPtr(18)}, false},
		{"charging mismatch", &schema.DeviceTrigger{Kind: schema.DeviceBattery, Charging: boolPtr(true)}, false},
		{"not charging matches", &schema.DeviceTrigger{Kind: schema.DeviceBattery, Charging: boolPtr(false)}, true},
		{"both criteria must hold", &schema.DeviceTrigger{Kind: schema.DeviceBattery, BatteryBelow: floatPtr(20), Charging: boolPtr(true)}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fired, err := e.Evaluate(context.Background(), deviceSpec(tc.trigger), snap, "u1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, fired)
		})
	}
}

func TestDeviceTrigger_NoSnapshotNeverFires(t *testing.T) {
	e := NewEvaluator(nil, nil, nil, nil)

	fired, err := e.Evaluate(context.Background(), deviceSpec(&schema.DeviceTrigger{
		Kind: schema.DeviceType, DeviceType: "phone",
	}), &Snapshot{Now: time.Now()}, "u1")
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestDeviceTrigger_EmptyBatteryCriteria(t *testing.T) {
	e := NewEvaluator(nil, nil, nil, nil)
	snap := &Snapshot{Now: time.Now(), Device: &DeviceState{Type: "phone"}}

	_, err := e.Evaluate(context.Background(), deviceSpec(&schema.DeviceTrigger{
		Kind: schema.DeviceBattery,
	}), snap, "u1")
	require.Error(t, err)

	var engineErr *schema.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, schema.ErrCodeValidation, engineErr.Code)
}
