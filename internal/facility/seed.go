package facility

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const (
	seedHours    = 48
	seedInterval = 15 * time.Minute

	// Deterministic datasets make demo questions repeatable.
	seedRandomSeed = 42
)

type environmentalBaseline struct {
	temp     float64
	humidity float64
}

var seedTempBaselines = map[string]environmentalBaseline{
	"loading-temp": {temp: 18.0, humidity: 45.0},
	"cold-a-temp":  {temp: 3.0, humidity: 82.0},
	"cold-b-temp":  {temp: -17.0, humidity: 68.0},
	"dry-temp":     {temp: 17.8, humidity: 38.0},
}

var seedCO2Baselines = map[string]float64{
	"loading-aq": 420.0,
	"dry-aq":     380.0,
}

// Seed populates the store with 48 hours of synthetic readings at
// 15-minute intervals, ending at now. The dataset bakes in a Cold
// Room B incident: the freezer drifts from -17°C toward -14°C over
// the final six hours. Returns the number of readings written.
func Seed(ctx context.Context, w Writer, now time.Time) (int, error) {
	rng := rand.New(rand.NewSource(seedRandomSeed))
	end := now.Truncate(time.Minute)
	start := end.Add(-seedHours * time.Hour)

	total := 0
	for _, sensor := range Sensors {
		var (
			n   int
			err error
		)
		switch sensor.Type {
		case SensorEnvironmental:
			n, err = seedEnvironmental(ctx, w, rng, sensor.ID, start, end)
		case SensorAirQuality:
			n, err = seedAirQuality(ctx, w, rng, sensor.ID, start, end)
		case SensorDoor:
			n, err = seedDoor(ctx, w, rng, sensor.ID, start, end)
		case SensorMotion:
			n, err = seedMotion(ctx, w, rng, sensor.ID, start, end)
		}
		if err != nil {
			return total, fmt.Errorf("seed %s: %w", sensor.ID, err)
		}
		total += n
	}
	return total, nil
}

func seedEnvironmental(ctx context.Context, w Writer, rng *rand.Rand, sensorID string, start, end time.Time) (int, error) {
	base := seedTempBaselines[sensorID]
	incidentStart := end.Add(-6 * time.Hour)
	isColdB := sensorID == "cold-b-temp"

	n := 0
	for ts := start; !ts.After(end); ts = ts.Add(seedInterval) {
		var temp float64
		if isColdB && !ts.Before(incidentStart) {
			// Drift roughly 0.47°C per hour, capped at +2.8.
			hoursIn := ts.Sub(incidentStart).Hours()
			drift := min(2.8, hoursIn*0.47)
			temp = base.temp + drift + uniform(rng, -0.2, 0.2)
		} else {
			temp = base.temp + uniform(rng, -0.3, 0.3)
		}
		humidity := round1(base.humidity + uniform(rng, -2, 2))
		if err := w.InsertReading(ctx, sensorID, ts, round1(temp), &humidity); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func seedAirQuality(ctx context.Context, w Writer, rng *rand.Rand, sensorID string, start, end time.Time) (int, error) {
	base := seedCO2Baselines[sensorID]
	n := 0
	for ts := start; !ts.After(end); ts = ts.Add(seedInterval) {
		co2 := float64(int(base + uniform(rng, -30, 30)))
		if err := w.InsertReading(ctx, sensorID, ts, co2, nil); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func seedDoor(ctx context.Context, w Writer, rng *rand.Rand, sensorID string, start, end time.Time) (int, error) {
	isOpen := false
	n := 0
	for ts := start; !ts.After(end); ts = ts.Add(seedInterval) {
		hour := ts.Hour()
		if hour >= 6 && hour <= 18 {
			if rng.Float64() < 0.05 {
				isOpen = !isOpen
			}
		} else if isOpen && rng.Float64() < 0.3 {
			// Doors mostly get closed at night.
			isOpen = false
		}
		if err := w.InsertReading(ctx, sensorID, ts, boolValue(isOpen), nil); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func seedMotion(ctx context.Context, w Writer, rng *rand.Rand, sensorID string, start, end time.Time) (int, error) {
	n := 0
	for ts := start; !ts.After(end); ts = ts.Add(seedInterval) {
		hour := ts.Hour()
		chance := 0.02
		if hour >= 6 && hour <= 18 {
			chance = 0.15
		}
		motion := rng.Float64() < chance
		if err := w.InsertReading(ctx, sensorID, ts, boolValue(motion), nil); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round1(v float64) float64 {
	if v < 0 {
		return float64(int(v*10-0.5)) / 10
	}
	return float64(int(v*10+0.5)) / 10
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
