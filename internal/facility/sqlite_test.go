package facility

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustInsert(t *testing.T, s *SQLiteStore, sensorID string, ts time.Time, value float64, humidity *float64) {
	t.Helper()
	if err := s.InsertReading(context.Background(), sensorID, ts, value, humidity); err != nil {
		t.Fatalf("InsertReading(%s, %v): %v", sensorID, ts, err)
	}
}

func TestReadingsRaw(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	h := 82.0
	mustInsert(t, store, "cold-a-temp", base, 3.1, &h)
	mustInsert(t, store, "cold-a-temp", base.Add(15*time.Minute), 3.4, nil)
	mustInsert(t, store, "loading-temp", base, 18.0, nil) // other sensor, excluded

	series, err := store.Readings(context.Background(), "cold-a-temp", base, base.Add(time.Hour), IntervalRaw)
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	if series.Type != SensorEnvironmental || series.Unit != "°C" {
		t.Errorf("series metadata = %s/%s, want environmental/°C", series.Type, series.Unit)
	}
	if len(series.Readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(series.Readings))
	}
	if series.Readings[0].Value != 3.1 {
		t.Errorf("first value = %v, want 3.1", series.Readings[0].Value)
	}
	if series.Readings[0].Humidity == nil || *series.Readings[0].Humidity != 82.0 {
		t.Errorf("first humidity = %v, want 82.0", series.Readings[0].Humidity)
	}
	if !series.Readings[0].Timestamp.Before(series.Readings[1].Timestamp) {
		t.Error("readings not ordered by timestamp")
	}
}

func TestReadingsUnknownSensor(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Readings(context.Background(), "nonexistent", time.Now().Add(-time.Hour), time.Now(), IntervalRaw)
	if !errors.Is(err, ErrUnknownSensor) {
		t.Errorf("err = %v, want ErrUnknownSensor", err)
	}
}

func TestReadingsHourlyAggregation(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Two readings in the 10:00 bucket, one in the 11:00 bucket.
	mustInsert(t, store, "dry-temp", base, 16.0, nil)
	mustInsert(t, store, "dry-temp", base.Add(30*time.Minute), 18.0, nil)
	mustInsert(t, store, "dry-temp", base.Add(time.Hour), 20.0, nil)

	series, err := store.Readings(context.Background(), "dry-temp", base, base.Add(2*time.Hour), IntervalHourly)
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	if len(series.Readings) != 2 {
		t.Fatalf("got %d buckets, want 2", len(series.Readings))
	}
	if series.Readings[0].Value != 17.0 {
		t.Errorf("first bucket avg = %v, want 17.0", series.Readings[0].Value)
	}
	if got := series.Readings[0].Timestamp; got != base {
		t.Errorf("first bucket timestamp = %v, want %v", got, base)
	}
}

func TestReadingsDailyEventCount(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Boolean sensors aggregate as counts, not averages.
	mustInsert(t, store, "loading-door", base.Add(9*time.Hour), 1, nil)
	mustInsert(t, store, "loading-door", base.Add(10*time.Hour), 0, nil)
	mustInsert(t, store, "loading-door", base.Add(14*time.Hour), 1, nil)

	series, err := store.Readings(context.Background(), "loading-door", base, base.Add(24*time.Hour), IntervalDaily)
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	if len(series.Readings) != 1 {
		t.Fatalf("got %d buckets, want 1", len(series.Readings))
	}
	if series.Readings[0].Value != 2 {
		t.Errorf("daily count = %v, want 2", series.Readings[0].Value)
	}
}

func TestDoorEvents(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	step := 15 * time.Minute

	// closed, open, open, closed → one completed 30-minute episode,
	// then open again at the end → one unterminated episode.
	states := []float64{0, 1, 1, 0, 0, 1}
	for i, v := range states {
		mustInsert(t, store, "cold-b-door", base.Add(time.Duration(i)*step), v, nil)
	}

	windowEnd := base.Add(6 * step)
	events, err := store.DoorEvents(context.Background(), EventFilter{Start: base, End: windowEnd, SensorID: "cold-b-door"})
	if err != nil {
		t.Fatalf("DoorEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	first := events[0]
	if first.OpenedAt != base.Add(step) {
		t.Errorf("opened at %v, want %v", first.OpenedAt, base.Add(step))
	}
	if first.ClosedAt == nil || *first.ClosedAt != base.Add(3*step) {
		t.Errorf("closed at %v, want %v", first.ClosedAt, base.Add(3*step))
	}
	if first.Duration != 30*60 {
		t.Errorf("duration = %d, want 1800", first.Duration)
	}

	second := events[1]
	if second.ClosedAt != nil {
		t.Errorf("second event should still be open, got closed at %v", second.ClosedAt)
	}
	if second.Duration != int(windowEnd.Sub(base.Add(5*step)).Seconds()) {
		t.Errorf("open event duration = %d", second.Duration)
	}
}

func TestDoorEventsZoneFilter(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mustInsert(t, store, "cold-b-door", base, 0, nil)
	mustInsert(t, store, "cold-b-door", base.Add(15*time.Minute), 1, nil)
	mustInsert(t, store, "cold-b-door", base.Add(30*time.Minute), 0, nil)
	mustInsert(t, store, "loading-door", base, 0, nil)
	mustInsert(t, store, "loading-door", base.Add(15*time.Minute), 1, nil)
	mustInsert(t, store, "loading-door", base.Add(30*time.Minute), 0, nil)

	events, err := store.DoorEvents(context.Background(), EventFilter{Start: base, End: base.Add(time.Hour), ZoneID: "zone-3"})
	if err != nil {
		t.Fatalf("DoorEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].SensorID != "cold-b-door" {
		t.Errorf("sensor = %s, want cold-b-door", events[0].SensorID)
	}
}

func TestPresenceEventsSafetyConcern(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	step := 15 * time.Minute

	// 30 minutes of continuous motion in the freezer.
	motions := []float64{0, 1, 1, 0}
	for i, v := range motions {
		mustInsert(t, store, "cold-b-motion", base.Add(time.Duration(i)*step), v, nil)
	}
	// Motion elsewhere that clears on the next reading.
	mustInsert(t, store, "loading-motion", base, 0, nil)
	mustInsert(t, store, "loading-motion", base.Add(step), 1, nil)
	mustInsert(t, store, "loading-motion", base.Add(2*step), 0, nil)

	events, err := store.PresenceEvents(context.Background(), EventFilter{Start: base, End: base.Add(time.Hour)})
	if err != nil {
		t.Fatalf("PresenceEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	byID := map[string]PresenceEvent{}
	for _, e := range events {
		byID[e.SensorID] = e
	}

	freezer := byID["cold-b-motion"]
	if freezer.Duration != 30*60 {
		t.Errorf("freezer duration = %d, want 1800", freezer.Duration)
	}
	if !freezer.SafetyConcern {
		t.Error("30-minute presence should be flagged as a safety concern")
	}
	if freezer.ZoneID != "zone-3" {
		t.Errorf("zone = %s, want zone-3", freezer.ZoneID)
	}

	loading := byID["loading-motion"]
	if loading.Duration != 15*60 {
		t.Errorf("loading duration = %d, want 900", loading.Duration)
	}
	if !loading.SafetyConcern {
		// 900s exceeds the 600s threshold too.
		t.Error("15-minute presence should be flagged")
	}
}

func TestPresenceEventsBelowThreshold(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	// 5-minute window stays under the 600-second threshold.
	mustInsert(t, store, "cold-a-motion", base, 0, nil)
	mustInsert(t, store, "cold-a-motion", base.Add(5*time.Minute), 1, nil)
	mustInsert(t, store, "cold-a-motion", base.Add(10*time.Minute), 0, nil)

	events, err := store.PresenceEvents(context.Background(), EventFilter{Start: base, End: base.Add(time.Hour), SensorID: "cold-a-motion"})
	if err != nil {
		t.Fatalf("PresenceEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].SafetyConcern {
		t.Error("5-minute presence should not be flagged")
	}
}

func TestBaseline(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	values := []float64{2.0, 3.0, 4.0}
	for i, v := range values {
		mustInsert(t, store, "cold-a-temp", base.Add(time.Duration(i)*time.Hour), v, nil)
	}

	b, err := store.Baseline(context.Background(), "cold-a-temp", 24)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if b == nil {
		t.Fatal("Baseline returned nil")
	}
	if b.Mean != 3.0 || b.Min != 2.0 || b.Max != 4.0 {
		t.Errorf("mean/min/max = %v/%v/%v, want 3/2/4", b.Mean, b.Min, b.Max)
	}
	wantStdDev := math.Sqrt(2.0 / 3.0)
	if math.Abs(b.StdDev-round2(wantStdDev)) > 0.001 {
		t.Errorf("std dev = %v, want %v", b.StdDev, round2(wantStdDev))
	}
	if b.SampleCount != 3 {
		t.Errorf("sample count = %d, want 3", b.SampleCount)
	}
	if b.Unit != "°C" {
		t.Errorf("unit = %s, want °C", b.Unit)
	}
}

func TestBaselineBooleanSensorNil(t *testing.T) {
	store := newTestStore(t)
	mustInsert(t, store, "cold-b-door", time.Now().UTC(), 1, nil)

	b, err := store.Baseline(context.Background(), "cold-b-door", 24)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if b != nil {
		t.Errorf("door baseline = %+v, want nil", b)
	}
}

func TestBaselineAnchoredToData(t *testing.T) {
	store := newTestStore(t)
	// Readings from a week ago; a wall-clock-anchored window would miss them.
	old := time.Now().UTC().Add(-7 * 24 * time.Hour)
	mustInsert(t, store, "dry-temp", old, 17.0, nil)
	mustInsert(t, store, "dry-temp", old.Add(time.Hour), 19.0, nil)

	b, err := store.Baseline(context.Background(), "dry-temp", 24)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if b == nil {
		t.Fatal("Baseline returned nil for week-old data")
	}
	if b.SampleCount != 2 {
		t.Errorf("sample count = %d, want 2", b.SampleCount)
	}
}

func TestLatestTimestamp(t *testing.T) {
	store := newTestStore(t)

	ts, err := store.LatestTimestamp(context.Background())
	if err != nil {
		t.Fatalf("LatestTimestamp: %v", err)
	}
	if !ts.IsZero() {
		t.Errorf("empty store timestamp = %v, want zero", ts)
	}

	newest := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mustInsert(t, store, "dry-temp", newest.Add(-time.Hour), 17.0, nil)
	mustInsert(t, store, "dry-temp", newest, 18.0, nil)

	ts, err = store.LatestTimestamp(context.Background())
	if err != nil {
		t.Fatalf("LatestTimestamp: %v", err)
	}
	if !ts.Equal(newest) {
		t.Errorf("latest = %v, want %v", ts, newest)
	}
}

func TestSeed(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	total, err := Seed(context.Background(), store, now)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// 11 sensors * (48h at 15-min cadence + 1 inclusive endpoint).
	want := len(Sensors) * (seedHours*4 + 1)
	if total != want {
		t.Errorf("seeded %d readings, want %d", total, want)
	}

	// The baked-in incident leaves Cold Room B warmer than its band.
	series, err := store.Readings(context.Background(), "cold-b-temp", now.Add(-time.Hour), now, IntervalRaw)
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	if len(series.Readings) == 0 {
		t.Fatal("no Cold Room B readings after seed")
	}
	last := series.Readings[len(series.Readings)-1]
	if last.Value < -16.0 {
		t.Errorf("incident drift missing: final cold-b-temp = %v, want above -16", last.Value)
	}
}
