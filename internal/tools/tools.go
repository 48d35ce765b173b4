// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coldwatch/coldwatch/internal/facility"
	"github.com/coldwatch/coldwatch/internal/llm"
)

// Tool represents a callable tool.
type Tool struct {
	Name         string         `json:"name"`
	FriendlyName string         `json:"friendly_name"`
	Description  string         `json:"description"`
	Parameters   map[string]any `json:"parameters"`
	Handler      func(ctx context.Context, args map[string]any) (*Result, error) `json:"-"`
}

// Result is the standard shape every tool returns: the raw data for the
// model to reason over plus a one-line summary.
type Result struct {
	Data    any    `json:"data"`
	Summary string `json:"summary"`
}

// JSON renders the result for use as a tool message.
func (r *Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"data":[],"summary":%q}`, r.Summary)
	}
	return string(b)
}

// Registry holds available tools.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	store  facility.Store
	logger *slog.Logger
}

// NewRegistry creates a tool registry over the facility store.
func NewRegistry(store facility.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:  make(map[string]*Tool),
		store:  store,
		logger: logger,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name:         "query_sensor_data",
		FriendlyName: "Querying sensor readings",
		Description: "Query historical sensor readings for a specific sensor or zone. " +
			"Use this to get temperature, humidity, air quality, door, or motion readings over a time period. " +
			"Returns timestamped data points.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sensor_id": map[string]any{
					"type":        "string",
					"description": "Specific sensor ID to query (e.g., 'cold-a-temp')",
				},
				"zone_id": map[string]any{
					"type":        "string",
					"description": "Zone ID to query all sensors in (e.g., 'zone-3' for Cold Room B)",
				},
				"sensor_type": map[string]any{
					"type":        "string",
					"description": "Filter by sensor type: 'environmental', 'air_quality', 'door', 'motion'",
				},
				"start": map[string]any{
					"type":        "string",
					"description": "Start time in ISO format (e.g., '2026-01-29T00:00:00')",
				},
				"end": map[string]any{
					"type":        "string",
					"description": "End time in ISO format (e.g., '2026-01-29T23:59:59')",
				},
				"aggregation": map[string]any{
					"type":        "string",
					"description": "Aggregation interval: 'raw' (native resolution), '1h' (hourly), '1d' (daily)",
				},
			},
			"required": []string{"start", "end"},
		},
		Handler: r.handleQuerySensorData,
	})

	r.Register(&Tool{
		Name:         "get_door_events",
		FriendlyName: "Checking door activity",
		Description: "Get door open/close events with durations. " +
			"Use this to see when doors were opened, how long they stayed open, " +
			"and identify patterns in door activity.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sensor_id": map[string]any{
					"type":        "string",
					"description": "Specific door sensor ID to query",
				},
				"zone_id": map[string]any{
					"type":        "string",
					"description": "Zone ID to get door events for",
				},
				"start": map[string]any{
					"type":        "string",
					"description": "Start time in ISO format",
				},
				"end": map[string]any{
					"type":        "string",
					"description": "End time in ISO format",
				},
			},
			"required": []string{"start", "end"},
		},
		Handler: r.handleGetDoorEvents,
	})

	r.Register(&Tool{
		Name:         "get_thermal_presence",
		FriendlyName: "Checking motion sensors",
		Description: "Get motion sensor events showing when motion was detected. " +
			"Use this for any motion sensor query (loading-motion, cold-a-motion, cold-b-motion). " +
			"Returns periods of detected motion. Events over 10 minutes in cold zones " +
			"are flagged as safety concerns for worker monitoring.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sensor_id": map[string]any{
					"type":        "string",
					"description": "Specific motion sensor ID to query",
				},
				"zone_id": map[string]any{
					"type":        "string",
					"description": "Zone ID to get presence events for",
				},
				"start": map[string]any{
					"type":        "string",
					"description": "Start time in ISO format",
				},
				"end": map[string]any{
					"type":        "string",
					"description": "End time in ISO format",
				},
				"min_duration": map[string]any{
					"type":        "integer",
					"description": "Minimum duration in seconds to include (0 = all events)",
				},
			},
			"required": []string{"start", "end"},
		},
		Handler: r.handleGetThermalPresence,
	})

	r.Register(&Tool{
		Name:         "get_baselines",
		FriendlyName: "Loading baseline data",
		Description: "Get baseline statistics for a sensor to understand normal operating patterns. " +
			"Returns mean, standard deviation, min, and max values computed from " +
			"historical readings. Useful for detecting anomalies.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sensor_id": map[string]any{
					"type":        "string",
					"description": "Sensor ID to get baseline statistics for",
				},
				"hours": map[string]any{
					"type":        "integer",
					"description": "Number of hours to compute baseline from (default 24)",
				},
			},
			"required": []string{"sensor_id"},
		},
		Handler: r.handleGetBaselines,
	})
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// FriendlyName returns the display label for a tool.
func (r *Registry) FriendlyName(name string) string {
	if t := r.tools[name]; t != nil && t.FriendlyName != "" {
		return t.FriendlyName
	}
	return "Using " + name
}

// Schemas returns tool definitions in the shape the completion clients
// expect, in registration order.
func (r *Registry) Schemas() []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, llm.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}

// Execute validates and runs a tool call. Argument validation failures
// return ErrInvalidArguments without running the handler; handler
// failures are wrapped as ErrExecutionFailed.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool := r.tools[name]
	if tool == nil {
		return nil, &ErrToolUnavailable{ToolName: name}
	}

	if err := validateArgs(tool, args); err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := tool.Handler(ctx, args)
	if err != nil {
		return nil, &ErrExecutionFailed{ToolName: name, Err: err}
	}

	r.logger.Debug("tool executed",
		"tool", name,
		"duration_ms", time.Since(started).Milliseconds())
	return result, nil
}

// --- Handlers ---

func (r *Registry) handleQuerySensorData(ctx context.Context, args map[string]any) (*Result, error) {
	sensorID := stringArg(args, "sensor_id")
	zoneID := stringArg(args, "zone_id")
	if sensorID == "" && zoneID == "" {
		return &Result{Data: []any{}, Summary: "Error: Please specify either sensor_id or zone_id to query."}, nil
	}

	start, end, err := parseWindow(args)
	if err != nil {
		return &Result{Data: []any{}, Summary: fmt.Sprintf("Error parsing dates: %v", err)}, nil
	}

	interval, err := facility.ParseInterval(stringArg(args, "aggregation"))
	if err != nil {
		return &Result{Data: []any{}, Summary: fmt.Sprintf("Error: %v.", err)}, nil
	}

	if sensorID != "" {
		return r.querySingleSensor(ctx, sensorID, start, end, interval)
	}
	return r.queryZone(ctx, zoneID, facility.SensorType(stringArg(args, "sensor_type")), start, end, interval)
}

func (r *Registry) querySingleSensor(ctx context.Context, sensorID string, start, end time.Time, interval facility.Interval) (*Result, error) {
	series, err := r.store.Readings(ctx, sensorID, start, end, interval)
	if err != nil {
		if _, ok := facility.SensorByID(sensorID); !ok {
			return &Result{Data: []any{}, Summary: fmt.Sprintf("No sensor found with ID %s.", sensorID)}, nil
		}
		return nil, err
	}
	if len(series.Readings) == 0 {
		return &Result{
			Data:    []any{},
			Summary: fmt.Sprintf("No readings found for sensor %s in the specified time range.", sensorID),
		}, nil
	}

	minV, maxV := series.Readings[0].Value, series.Readings[0].Value
	for _, p := range series.Readings[1:] {
		if p.Value < minV {
			minV = p.Value
		}
		if p.Value > maxV {
			maxV = p.Value
		}
	}

	unit := valueUnit(series.Type)
	return &Result{
		Data: series.Readings,
		Summary: fmt.Sprintf("Found %d readings for sensor %s. Value range: %v%s to %v%s.",
			len(series.Readings), sensorID, minV, unit, maxV, unit),
	}, nil
}

type zoneReading struct {
	SensorID   string `json:"sensor_id"`
	SensorName string `json:"sensor_name"`
	facility.Reading
}

func (r *Registry) queryZone(ctx context.Context, zoneID string, typ facility.SensorType, start, end time.Time, interval facility.Interval) (*Result, error) {
	zoneLabel := zoneID
	if zone, ok := facility.ZoneByID(zoneID); ok {
		zoneLabel = fmt.Sprintf("%s (%s)", zone.Name, zone.ID)
	}

	sensors := facility.SensorsInZone(zoneID, typ)
	if len(sensors) == 0 {
		summary := fmt.Sprintf("No sensors found in zone %s", zoneLabel)
		if typ != "" {
			summary += fmt.Sprintf(" with type '%s'", typ)
		}
		return &Result{Data: []any{}, Summary: summary + "."}, nil
	}

	var all []zoneReading
	var perSensor []string
	for _, sensor := range sensors {
		series, err := r.store.Readings(ctx, sensor.ID, start, end, interval)
		if err != nil {
			return nil, err
		}
		if len(series.Readings) == 0 {
			continue
		}
		minV, maxV := series.Readings[0].Value, series.Readings[0].Value
		for _, p := range series.Readings {
			all = append(all, zoneReading{SensorID: sensor.ID, SensorName: sensor.Name, Reading: p})
			if p.Value < minV {
				minV = p.Value
			}
			if p.Value > maxV {
				maxV = p.Value
			}
		}
		unit := valueUnit(series.Type)
		perSensor = append(perSensor, fmt.Sprintf("%s: %v%s to %v%s", sensor.Name, minV, unit, maxV, unit))
	}

	if len(all) == 0 {
		return &Result{
			Data:    []any{},
			Summary: fmt.Sprintf("No readings found for sensors in zone %s in the specified time range.", zoneLabel),
		}, nil
	}

	summary := fmt.Sprintf("Found %d readings from %d sensors in zone %s. %s",
		len(all), len(perSensor), zoneLabel, strings.Join(perSensor, " | "))
	return &Result{Data: all, Summary: summary}, nil
}

func (r *Registry) handleGetDoorEvents(ctx context.Context, args map[string]any) (*Result, error) {
	start, end, err := parseWindow(args)
	if err != nil {
		return &Result{Data: []any{}, Summary: fmt.Sprintf("Error parsing dates: %v", err)}, nil
	}

	events, err := r.store.DoorEvents(ctx, facility.EventFilter{
		Start:    start,
		End:      end,
		SensorID: stringArg(args, "sensor_id"),
		ZoneID:   stringArg(args, "zone_id"),
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return &Result{Data: []any{}, Summary: "No door events found in the specified time range."}, nil
	}

	longest := events[0]
	for _, e := range events[1:] {
		if e.Duration > longest.Duration {
			longest = e
		}
	}

	return &Result{
		Data: events,
		Summary: fmt.Sprintf("%d door event%s found. Longest open: %s.",
			len(events), plural(len(events)), formatDuration(longest.Duration)),
	}, nil
}

func (r *Registry) handleGetThermalPresence(ctx context.Context, args map[string]any) (*Result, error) {
	start, end, err := parseWindow(args)
	if err != nil {
		return &Result{Data: []any{}, Summary: fmt.Sprintf("Error parsing dates: %v", err)}, nil
	}

	events, err := r.store.PresenceEvents(ctx, facility.EventFilter{
		Start:    start,
		End:      end,
		SensorID: stringArg(args, "sensor_id"),
		ZoneID:   stringArg(args, "zone_id"),
	})
	if err != nil {
		return nil, err
	}

	if minDuration := intArg(args, "min_duration", 0); minDuration > 0 {
		filtered := events[:0]
		for _, e := range events {
			if e.Duration >= minDuration {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	if len(events) == 0 {
		return &Result{Data: []any{}, Summary: "No presence events found in the specified time range."}, nil
	}

	concerns := 0
	for _, e := range events {
		if e.SafetyConcern {
			concerns++
		}
	}

	summary := fmt.Sprintf("%d presence event%s found.", len(events), plural(len(events)))
	if concerns > 0 {
		word := "concerns"
		if concerns == 1 {
			word = "concern"
		}
		summary += fmt.Sprintf(" %d safety %s (>10 min in cold zone).", concerns, word)
	}
	return &Result{Data: events, Summary: summary}, nil
}

func (r *Registry) handleGetBaselines(ctx context.Context, args map[string]any) (*Result, error) {
	sensorID := stringArg(args, "sensor_id")
	if sensorID == "" {
		return &Result{Data: map[string]any{}, Summary: "Error: sensor_id is required."}, nil
	}

	baseline, err := r.store.Baseline(ctx, sensorID, intArg(args, "hours", 24))
	if err != nil {
		if _, ok := facility.SensorByID(sensorID); !ok {
			return &Result{
				Data:    map[string]any{},
				Summary: fmt.Sprintf("No baseline data found for sensor %s. The sensor may not exist or have no recent readings.", sensorID),
			}, nil
		}
		return nil, err
	}
	if baseline == nil {
		return &Result{
			Data:    map[string]any{},
			Summary: fmt.Sprintf("No baseline data found for sensor %s. The sensor may not exist or have no recent readings.", sensorID),
		}, nil
	}

	return &Result{
		Data: baseline,
		Summary: fmt.Sprintf("Baseline for %s over %dh: mean %v%s, std dev %v, range %v to %v%s (%d samples).",
			sensorID, baseline.PeriodHours, baseline.Mean, baseline.Unit, baseline.StdDev,
			baseline.Min, baseline.Max, baseline.Unit, baseline.SampleCount),
	}, nil
}

// --- Helpers ---

func parseWindow(args map[string]any) (time.Time, time.Time, error) {
	start, err := parseDatetime(stringArg(args, "start"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDatetime(stringArg(args, "end"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// parseDatetime accepts the ISO variants models actually produce.
func parseDatetime(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse datetime: %s", s)
}

func valueUnit(t facility.SensorType) string {
	switch t {
	case facility.SensorEnvironmental:
		return "°C"
	case facility.SensorAirQuality:
		return "ppm"
	default:
		return ""
	}
}

func formatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		minutes := seconds / 60
		return fmt.Sprintf("%d minute%s", minutes, plural(minutes))
	default:
		hours := seconds / 3600
		minutes := (seconds % 3600) / 60
		if minutes > 0 {
			return fmt.Sprintf("%d hour%s %d min", hours, plural(hours), minutes)
		}
		return fmt.Sprintf("%d hour%s", hours, plural(hours))
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
