package facility

import (
	"context"
	"errors"
	"time"
)

// SafetyConcernThreshold is how long someone can be continuously present
// in a cold zone before the presence window is flagged.
const SafetyConcernThreshold = 600 * time.Second

// Interval selects how readings are bucketed.
type Interval string

const (
	IntervalRaw    Interval = "raw"
	IntervalHourly Interval = "1h"
	IntervalDaily  Interval = "1d"
)

// ParseInterval validates an interval string, defaulting to raw.
// Accepts "hourly"/"daily" as synonyms since models write both forms.
func ParseInterval(s string) (Interval, error) {
	switch s {
	case "", string(IntervalRaw):
		return IntervalRaw, nil
	case string(IntervalHourly), "hourly":
		return IntervalHourly, nil
	case string(IntervalDaily), "daily":
		return IntervalDaily, nil
	}
	return "", errors.New("interval must be one of raw, 1h, 1d")
}

// ErrUnknownSensor is returned for sensor IDs not in the registry.
var ErrUnknownSensor = errors.New("unknown sensor")

// Reading is one point in a sensor's history. For aggregated intervals
// Value is the bucket average (numeric sensors) or event count (boolean
// sensors). Humidity is set only for environmental sensors at raw
// granularity.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Humidity  *float64  `json:"humidity,omitempty"`
}

// ReadingSeries is the result of a readings query.
type ReadingSeries struct {
	SensorID string     `json:"sensor_id"`
	Type     SensorType `json:"sensor_type"`
	Unit     string     `json:"unit"`
	Interval Interval   `json:"interval"`
	Readings []Reading  `json:"readings"`
}

// DoorEvent is a derived open/close episode. ClosedAt is nil when the
// door was still open at the end of the queried window.
type DoorEvent struct {
	SensorID string     `json:"sensor_id"`
	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
	Duration int        `json:"duration_seconds"`
}

// PresenceEvent is a derived window of continuous motion. EndedAt is nil
// when motion was still active at the end of the queried window.
type PresenceEvent struct {
	SensorID      string     `json:"sensor_id"`
	ZoneID        string     `json:"zone_id"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Duration      int        `json:"duration_seconds"`
	SafetyConcern bool       `json:"is_safety_concern"`
}

// Baseline holds summary statistics for a numeric sensor over a period.
type Baseline struct {
	SensorID    string  `json:"sensor_id"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Unit        string  `json:"unit"`
	SampleCount int     `json:"sample_count"`
	PeriodHours int     `json:"period_hours"`
}

// EventFilter narrows door/presence queries. SensorID takes precedence
// over ZoneID when both are set.
type EventFilter struct {
	Start    time.Time
	End      time.Time
	SensorID string
	ZoneID   string
}

// Store is the read side of the facility's sensor history.
type Store interface {
	// Readings fetches a sensor's history in [start, end], bucketed per
	// interval. Returns ErrUnknownSensor for unregistered sensor IDs.
	Readings(ctx context.Context, sensorID string, start, end time.Time, interval Interval) (*ReadingSeries, error)

	// DoorEvents derives open/close episodes from raw door state.
	DoorEvents(ctx context.Context, f EventFilter) ([]DoorEvent, error)

	// PresenceEvents derives continuous-motion windows, flagging those
	// that exceed SafetyConcernThreshold.
	PresenceEvents(ctx context.Context, f EventFilter) ([]PresenceEvent, error)

	// Baseline computes mean/std-dev/min/max over the trailing period.
	// Returns nil for boolean sensors and for empty periods.
	Baseline(ctx context.Context, sensorID string, hours int) (*Baseline, error)

	// LatestTimestamp reports the newest reading timestamp across all
	// sensors, used to anchor relative time windows to the data rather
	// than the wall clock.
	LatestTimestamp(ctx context.Context) (time.Time, error)
}

// Writer is the ingest side, used by the MQTT subscriber and the seeder.
type Writer interface {
	InsertReading(ctx context.Context, sensorID string, ts time.Time, value float64, humidity *float64) error
}
