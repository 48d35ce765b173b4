package facility

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed reading store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the readings database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// _time_format=sqlite stores time.Time values in a format SQLite's
	// date functions (strftime) can parse; the driver default is not.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// DB exposes the underlying handle for components that share the file,
// such as the session archive.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	-- Raw readings for all sensor types. Boolean sensors (door, motion)
	-- store 0/1 in value; humidity is set only for environmental sensors.
	CREATE TABLE IF NOT EXISTS readings (
		sensor_id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		value REAL NOT NULL,
		humidity REAL,
		PRIMARY KEY (sensor_id, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertReading records one reading, replacing any prior value at the
// same instant (MQTT redeliveries).
func (s *SQLiteStore) InsertReading(ctx context.Context, sensorID string, ts time.Time, value float64, humidity *float64) error {
	if _, ok := SensorByID(sensorID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSensor, sensorID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO readings (sensor_id, timestamp, value, humidity) VALUES (?, ?, ?, ?)`,
		sensorID, ts.UTC(), value, humidity)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// Readings fetches a sensor's history with optional time bucketing.
func (s *SQLiteStore) Readings(ctx context.Context, sensorID string, start, end time.Time, interval Interval) (*ReadingSeries, error) {
	sensor, ok := SensorByID(sensorID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSensor, sensorID)
	}

	series := &ReadingSeries{
		SensorID: sensorID,
		Type:     sensor.Type,
		Unit:     sensor.Type.Unit(),
		Interval: interval,
	}

	var err error
	switch interval {
	case IntervalHourly:
		series.Readings, err = s.aggregated(ctx, sensor, start, end, "%Y-%m-%d %H:00:00", "2006-01-02 15:04:05")
	case IntervalDaily:
		series.Readings, err = s.aggregated(ctx, sensor, start, end, "%Y-%m-%d", "2006-01-02")
	default:
		series.Readings, err = s.raw(ctx, sensor, start, end)
	}
	if err != nil {
		return nil, err
	}
	return series, nil
}

func (s *SQLiteStore) raw(ctx context.Context, sensor Sensor, start, end time.Time) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, value, humidity FROM readings
		 WHERE sensor_id = ? AND timestamp >= ? AND timestamp <= ?
		 ORDER BY timestamp`,
		sensor.ID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		var humidity sql.NullFloat64
		if err := rows.Scan(&r.Timestamp, &r.Value, &humidity); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		// Readings are stored in UTC; the driver may scan them back in a
		// zero-offset local zone, so normalize to keep the UTC location.
		r.Timestamp = r.Timestamp.UTC()
		if humidity.Valid && sensor.Type == SensorEnvironmental {
			h := humidity.Float64
			r.Humidity = &h
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// aggregated buckets readings by strftime format. Numeric sensors get
// bucket averages; boolean sensors get event counts, matching what the
// charts expect.
func (s *SQLiteStore) aggregated(ctx context.Context, sensor Sensor, start, end time.Time, bucketFmt, parseLayout string) ([]Reading, error) {
	agg := "AVG(value)"
	if !sensor.Type.Numeric() {
		agg = "SUM(CAST(value AS INTEGER))"
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT strftime('%s', timestamp) AS bucket, %s FROM readings
		 WHERE sensor_id = ? AND timestamp >= ? AND timestamp <= ?
		 GROUP BY bucket ORDER BY bucket`, bucketFmt, agg),
		sensor.ID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query aggregated readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var bucket string
		var value sql.NullFloat64
		if err := rows.Scan(&bucket, &value); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		if !value.Valid {
			continue
		}
		ts, err := time.ParseInLocation(parseLayout, bucket, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse bucket %q: %w", bucket, err)
		}
		out = append(out, Reading{Timestamp: ts, Value: round2(value.Float64)})
	}
	return out, rows.Err()
}

// DoorEvents derives open/close episodes from state transitions: an
// episode starts where value goes 0→1 and ends where it goes 1→0. An
// episode still open at the window end has a nil ClosedAt.
func (s *SQLiteStore) DoorEvents(ctx context.Context, f EventFilter) ([]DoorEvent, error) {
	rows, err := s.queryBooleanReadings(ctx, SensorDoor, f)
	if err != nil {
		return nil, err
	}

	var events []DoorEvent
	forEachEpisode(rows, f.End, func(sensorID string, start time.Time, end *time.Time, duration int) {
		events = append(events, DoorEvent{
			SensorID: sensorID,
			OpenedAt: start,
			ClosedAt: end,
			Duration: duration,
		})
	})
	return events, nil
}

// PresenceEvents derives continuous-motion windows from motion readings,
// flagging any window that meets SafetyConcernThreshold.
func (s *SQLiteStore) PresenceEvents(ctx context.Context, f EventFilter) ([]PresenceEvent, error) {
	rows, err := s.queryBooleanReadings(ctx, SensorMotion, f)
	if err != nil {
		return nil, err
	}

	var events []PresenceEvent
	forEachEpisode(rows, f.End, func(sensorID string, start time.Time, end *time.Time, duration int) {
		sensor, _ := SensorByID(sensorID)
		events = append(events, PresenceEvent{
			SensorID:      sensorID,
			ZoneID:        sensor.Zone,
			StartedAt:     start,
			EndedAt:       end,
			Duration:      duration,
			SafetyConcern: time.Duration(duration)*time.Second >= SafetyConcernThreshold,
		})
	})
	return events, nil
}

type booleanReading struct {
	sensorID string
	ts       time.Time
	active   bool
}

func (s *SQLiteStore) queryBooleanReadings(ctx context.Context, typ SensorType, f EventFilter) ([]booleanReading, error) {
	ids := s.sensorIDsFor(typ, f)
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT sensor_id, timestamp, value FROM readings
	          WHERE timestamp >= ? AND timestamp <= ? AND sensor_id IN (`
	args := []any{f.Start.UTC(), f.End.UTC()}
	for i, id := range ids {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, id)
	}
	query += `) ORDER BY sensor_id, timestamp`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s readings: %w", typ, err)
	}
	defer rows.Close()

	var out []booleanReading
	for rows.Next() {
		var r booleanReading
		var value float64
		if err := rows.Scan(&r.sensorID, &r.ts, &value); err != nil {
			return nil, fmt.Errorf("scan %s reading: %w", typ, err)
		}
		// See raw(): normalize scanned timestamps back to UTC.
		r.ts = r.ts.UTC()
		r.active = value != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) sensorIDsFor(typ SensorType, f EventFilter) []string {
	if f.SensorID != "" {
		if sensor, ok := SensorByID(f.SensorID); ok && sensor.Type == typ {
			return []string{f.SensorID}
		}
		return nil
	}
	var ids []string
	for _, sensor := range Sensors {
		if sensor.Type != typ {
			continue
		}
		if f.ZoneID != "" && sensor.Zone != f.ZoneID {
			continue
		}
		ids = append(ids, sensor.ID)
	}
	return ids
}

// forEachEpisode walks readings ordered by (sensor, timestamp) and emits
// one episode per continuous active run. Runs still active at windowEnd
// are emitted with a nil end.
func forEachEpisode(rows []booleanReading, windowEnd time.Time, emit func(sensorID string, start time.Time, end *time.Time, duration int)) {
	var (
		currentSensor string
		episodeStart  *time.Time
		prevActive    *bool
	)

	flush := func() {
		if episodeStart != nil && currentSensor != "" {
			emit(currentSensor, *episodeStart, nil, int(windowEnd.Sub(*episodeStart).Seconds()))
		}
		episodeStart = nil
		prevActive = nil
	}

	for _, r := range rows {
		if r.sensorID != currentSensor {
			flush()
			currentSensor = r.sensorID
		}

		switch {
		case prevActive == nil:
			// First reading for this sensor: an active value opens a run.
			if r.active {
				ts := r.ts
				episodeStart = &ts
			}
		case !*prevActive && r.active:
			ts := r.ts
			episodeStart = &ts
		case *prevActive && !r.active && episodeStart != nil:
			ts := r.ts
			emit(currentSensor, *episodeStart, &ts, int(ts.Sub(*episodeStart).Seconds()))
			episodeStart = nil
		}

		active := r.active
		prevActive = &active
	}
	flush()
}

// Baseline computes summary statistics over the trailing period, anchored
// to the newest reading so seeded datasets stay queryable. SQLite has no
// built-in stdev, so variance is computed as avg((value-mean)^2).
func (s *SQLiteStore) Baseline(ctx context.Context, sensorID string, hours int) (*Baseline, error) {
	sensor, ok := SensorByID(sensorID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSensor, sensorID)
	}
	if !sensor.Type.Numeric() || hours <= 0 {
		return nil, nil
	}

	end, err := s.LatestTimestamp(ctx)
	if err != nil {
		return nil, err
	}
	if end.IsZero() {
		return nil, nil
	}
	start := end.Add(-time.Duration(hours) * time.Hour)

	var (
		count            int
		mean, minV, maxV sql.NullFloat64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(value), MIN(value), MAX(value) FROM readings
		 WHERE sensor_id = ? AND timestamp >= ? AND timestamp <= ?`,
		sensorID, start, end).Scan(&count, &mean, &minV, &maxV)
	if err != nil {
		return nil, fmt.Errorf("query baseline: %w", err)
	}
	if count == 0 || !mean.Valid {
		return nil, nil
	}

	var variance sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT AVG((value - ?) * (value - ?)) FROM readings
		 WHERE sensor_id = ? AND timestamp >= ? AND timestamp <= ?`,
		mean.Float64, mean.Float64, sensorID, start, end).Scan(&variance)
	if err != nil {
		return nil, fmt.Errorf("query variance: %w", err)
	}
	stdDev := 0.0
	if variance.Valid && variance.Float64 > 0 {
		stdDev = math.Sqrt(variance.Float64)
	}

	return &Baseline{
		SensorID:    sensorID,
		Mean:        round2(mean.Float64),
		StdDev:      round2(stdDev),
		Min:         round2(minV.Float64),
		Max:         round2(maxV.Float64),
		Unit:        sensor.Type.Unit(),
		SampleCount: count,
		PeriodHours: hours,
	}, nil
}

// LatestTimestamp reports the newest reading across all sensors.
// Returns the zero time when the store is empty.
func (s *SQLiteStore) LatestTimestamp(ctx context.Context) (time.Time, error) {
	// Selecting the column directly (rather than MAX(timestamp)) keeps the
	// TIMESTAMP declared type, which the driver needs to yield a time.Time.
	var ts time.Time
	err := s.db.QueryRowContext(ctx, `SELECT timestamp FROM readings ORDER BY timestamp DESC LIMIT 1`).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query latest timestamp: %w", err)
	}
	return ts.UTC(), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
