package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coldwatch/coldwatch/internal/facility"
)

// fakeStore returns canned data and records whether it was called, so
// tests can assert that invalid calls never reach the store.
type fakeStore struct {
	called   bool
	series   *facility.ReadingSeries
	doors    []facility.DoorEvent
	presence []facility.PresenceEvent
	baseline *facility.Baseline
	err      error
}

func (f *fakeStore) Readings(ctx context.Context, sensorID string, start, end time.Time, interval facility.Interval) (*facility.ReadingSeries, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	if f.series == nil {
		return &facility.ReadingSeries{SensorID: sensorID, Interval: interval}, nil
	}
	return f.series, nil
}

func (f *fakeStore) DoorEvents(ctx context.Context, filter facility.EventFilter) ([]facility.DoorEvent, error) {
	f.called = true
	return f.doors, f.err
}

func (f *fakeStore) PresenceEvents(ctx context.Context, filter facility.EventFilter) ([]facility.PresenceEvent, error) {
	f.called = true
	return f.presence, f.err
}

func (f *fakeStore) Baseline(ctx context.Context, sensorID string, hours int) (*facility.Baseline, error) {
	f.called = true
	return f.baseline, f.err
}

func (f *fakeStore) LatestTimestamp(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func TestRegistrySchemas(t *testing.T) {
	r := NewRegistry(&fakeStore{}, nil)
	schemas := r.Schemas()
	if len(schemas) != 4 {
		t.Fatalf("got %d schemas, want 4", len(schemas))
	}
	want := []string{"query_sensor_data", "get_door_events", "get_thermal_presence", "get_baselines"}
	for i, name := range want {
		if schemas[i].Name != name {
			t.Errorf("schema[%d] = %s, want %s", i, schemas[i].Name, name)
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(&fakeStore{}, nil)
	_, err := r.Execute(context.Background(), "launch_missiles", nil)
	var unavailable *ErrToolUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want ErrToolUnavailable", err)
	}
}

func TestExecuteValidationRejectsBeforeRunning(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing required", "query_sensor_data", map[string]any{"sensor_id": "cold-a-temp"}},
		{"unknown parameter", "get_baselines", map[string]any{"sensor_id": "cold-a-temp", "bogus": 1}},
		{"wrong type", "get_thermal_presence", map[string]any{"start": "2026-03-01", "end": "2026-03-02", "min_duration": "sixty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			r := NewRegistry(store, nil)

			_, err := r.Execute(context.Background(), tt.tool, tt.args)
			var invalid *ErrInvalidArguments
			if !errors.As(err, &invalid) {
				t.Fatalf("err = %v, want ErrInvalidArguments", err)
			}
			if store.called {
				t.Error("store was queried despite invalid arguments")
			}
		})
	}
}

func TestExecuteWrapsStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("disk on fire")}
	r := NewRegistry(store, nil)

	_, err := r.Execute(context.Background(), "get_door_events", map[string]any{
		"start": "2026-03-01T00:00:00",
		"end":   "2026-03-02T00:00:00",
	})
	var failed *ErrExecutionFailed
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want ErrExecutionFailed", err)
	}
	if failed.ToolName != "get_door_events" {
		t.Errorf("tool name = %s", failed.ToolName)
	}
}

func TestQuerySensorDataRequiresTarget(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store, nil)

	result, err := r.Execute(context.Background(), "query_sensor_data", map[string]any{
		"start": "2026-03-01T00:00:00",
		"end":   "2026-03-02T00:00:00",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Summary, "sensor_id or zone_id") {
		t.Errorf("summary = %q", result.Summary)
	}
	if store.called {
		t.Error("store queried without a target")
	}
}

func TestQuerySensorDataAggregation(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store, nil)

	base := map[string]any{
		"sensor_id": "cold-a-temp",
		"start":     "2026-03-01T00:00:00Z",
		"end":       "2026-03-02T00:00:00Z",
	}

	// Synonyms parse to the same interval the schema documents.
	for _, agg := range []string{"1h", "hourly"} {
		args := map[string]any{"aggregation": agg}
		for k, v := range base {
			args[k] = v
		}
		if _, err := r.Execute(context.Background(), "query_sensor_data", args); err != nil {
			t.Fatalf("Execute(aggregation=%s): %v", agg, err)
		}
	}
	if !store.called {
		t.Fatal("store never queried")
	}

	// Garbage is reported to the model, not silently treated as raw.
	store = &fakeStore{}
	r = NewRegistry(store, nil)
	args := map[string]any{"aggregation": "fortnightly"}
	for k, v := range base {
		args[k] = v
	}
	result, err := r.Execute(context.Background(), "query_sensor_data", args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Summary, "raw, 1h, 1d") {
		t.Errorf("summary = %q, want interval guidance", result.Summary)
	}
	if store.called {
		t.Error("store queried despite a bad aggregation")
	}
}

func TestQueryZoneNamesZone(t *testing.T) {
	store := &fakeStore{series: &facility.ReadingSeries{
		Type: facility.SensorEnvironmental,
		Readings: []facility.Reading{
			{Timestamp: time.Now(), Value: 3.1},
		},
	}}
	r := NewRegistry(store, nil)

	result, err := r.Execute(context.Background(), "query_sensor_data", map[string]any{
		"zone_id": "zone-2",
		"start":   "2026-03-01T00:00:00Z",
		"end":     "2026-03-02T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Summary, "Cold Room A (zone-2)") {
		t.Errorf("summary = %q, want the zone's display name", result.Summary)
	}
}

func TestQuerySensorDataSummary(t *testing.T) {
	store := &fakeStore{series: &facility.ReadingSeries{
		SensorID: "cold-a-temp",
		Type:     facility.SensorEnvironmental,
		Readings: []facility.Reading{
			{Timestamp: time.Now(), Value: 2.8},
			{Timestamp: time.Now(), Value: 3.6},
		},
	}}
	r := NewRegistry(store, nil)

	result, err := r.Execute(context.Background(), "query_sensor_data", map[string]any{
		"sensor_id": "cold-a-temp",
		"start":     "2026-03-01T00:00:00Z",
		"end":       "2026-03-02T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Summary, "2 readings") || !strings.Contains(result.Summary, "2.8°C to 3.6°C") {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestGetThermalPresenceSafetySummary(t *testing.T) {
	ended := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{presence: []facility.PresenceEvent{
		{SensorID: "cold-b-motion", ZoneID: "zone-3", Duration: 900, EndedAt: &ended, SafetyConcern: true},
		{SensorID: "loading-motion", ZoneID: "zone-1", Duration: 120, EndedAt: &ended},
	}}
	r := NewRegistry(store, nil)

	result, err := r.Execute(context.Background(), "get_thermal_presence", map[string]any{
		"start": "2026-03-01",
		"end":   "2026-03-02",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Summary, "2 presence events") {
		t.Errorf("summary = %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "1 safety concern") {
		t.Errorf("summary missing safety concern: %q", result.Summary)
	}
}

func TestGetThermalPresenceMinDuration(t *testing.T) {
	store := &fakeStore{presence: []facility.PresenceEvent{
		{SensorID: "cold-b-motion", Duration: 900},
		{SensorID: "cold-b-motion", Duration: 120},
	}}
	r := NewRegistry(store, nil)

	result, err := r.Execute(context.Background(), "get_thermal_presence", map[string]any{
		"start":        "2026-03-01",
		"end":          "2026-03-02",
		"min_duration": float64(600),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	events, ok := result.Data.([]facility.PresenceEvent)
	if !ok {
		t.Fatalf("data type = %T", result.Data)
	}
	if len(events) != 1 || events[0].Duration != 900 {
		t.Errorf("filtered events = %+v", events)
	}
}

func TestGetDoorEventsLongest(t *testing.T) {
	store := &fakeStore{doors: []facility.DoorEvent{
		{SensorID: "loading-door", Duration: 300},
		{SensorID: "loading-door", Duration: 5400},
	}}
	r := NewRegistry(store, nil)

	result, err := r.Execute(context.Background(), "get_door_events", map[string]any{
		"start": "2026-03-01",
		"end":   "2026-03-02",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Summary, "Longest open: 1 hour 30 min") {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestGetBaselinesMissingSensor(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store, nil)

	result, err := r.Execute(context.Background(), "get_baselines", map[string]any{
		"sensor_id": "cold-a-temp",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Summary, "No baseline data") {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestFriendlyName(t *testing.T) {
	r := NewRegistry(&fakeStore{}, nil)
	if got := r.FriendlyName("query_sensor_data"); got != "Querying sensor readings" {
		t.Errorf("FriendlyName = %q", got)
	}
	if got := r.FriendlyName("mystery"); got != "Using mystery" {
		t.Errorf("fallback FriendlyName = %q", got)
	}
}

func TestParseDatetime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2026-01-29T00:00:00", time.Date(2026, 1, 29, 0, 0, 0, 0, time.UTC), true},
		{"2026-01-29T10:30:00Z", time.Date(2026, 1, 29, 10, 30, 0, 0, time.UTC), true},
		{"2026-01-29", time.Date(2026, 1, 29, 0, 0, 0, 0, time.UTC), true},
		{"next tuesday", time.Time{}, false},
	}

	for _, tt := range tests {
		got, err := parseDatetime(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("parseDatetime(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && !got.Equal(tt.want) {
			t.Errorf("parseDatetime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
