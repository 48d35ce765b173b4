package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coldwatch/coldwatch/internal/facility"
	"github.com/coldwatch/coldwatch/internal/llm"
	"github.com/coldwatch/coldwatch/internal/prompts"
	"github.com/coldwatch/coldwatch/internal/session"
)

// sampleDataLimit bounds how much gathered data is shown to the
// code-synthesis call.
const sampleDataLimit = 2000

// runGenerate executes the visualization node in two stages: a
// tool-constrained gathering loop that assembles a data mapping, then
// a single code-synthesis call whose output is validated before it
// overwrites the session's spec slot. On any failure the prior spec is
// left untouched and an error event precedes done.
func (a *Agent) runGenerate(ctx context.Context, em *emitter, sess *session.Session, requestID string, idea session.Idea) bool {
	if idea.Title == "" && idea.ID != "" {
		if cached, ok := sess.IdeaByID(idea.ID); ok {
			idea = cached
		}
	}
	if idea.Title == "" {
		em.Error("No visualization idea selected")
		return false
	}

	vizType, _ := idea.Spec["type"].(string)
	if vizType == "" {
		vizType = "zone-health"
	}

	// Stage 1: gather data with the reasoning loop. Tool turns are not
	// recorded on the session; this stage's trace is internal.
	em.Progress("gathering", "Gathering facility data...")

	now := a.now(ctx)
	messages := []llm.Message{
		{Role: "system", Content: prompts.DataGathering(now)},
		{Role: "user", Content: prompts.GatheringObjective(idea.Title, idea.Description, idea.Spec)},
	}
	res, err := a.react(ctx, em, reactParams{
		requestID: requestID,
		model:     a.vizModel,
		messages:  messages,
	})
	if err != nil {
		a.logger.Error("data gathering failed", "request_id", requestID, "error", err)
		em.Error("I couldn't gather the data for this visualization. Please try again.")
		return false
	}

	gathered, schema := assembleData(res.Payloads)
	if gathered == nil {
		// The loop ended without usable tool output; fetch directly.
		a.logger.Info("gathering loop returned no data, using direct fetch", "request_id", requestID, "viz_type", vizType)
		gathered, schema, err = a.fetchDirect(ctx, vizType, idea.Spec, now)
		if err != nil {
			a.logger.Error("direct data fetch failed", "request_id", requestID, "error", err)
			em.Error("I couldn't gather the data for this visualization. Please try again.")
			return false
		}
	} else {
		em.Progress("gathering", gatheredSummary(gathered))
	}

	// Stage 2: synthesize rendering code and validate it against the
	// declared primitives.
	em.Progress("generating", "Generating visualization...")

	code, err := a.generateCode(ctx, requestID, vizType, idea, gathered, schema)
	if err != nil {
		a.logger.Error("code synthesis failed", "request_id", requestID, "error", err)
		em.Error("Code generation failed. Please try again.")
		return false
	}
	if err := validateCode(code); err != nil {
		a.logger.Warn("generated code rejected", "request_id", requestID, "error", err)
		em.Error(fmt.Sprintf("Generated visualization code failed validation: %v", err))
		return false
	}

	spec := &session.VisualizationSpec{
		Type:   vizType,
		Title:  idea.Title,
		Data:   gathered,
		Code:   code,
		IdeaID: idea.ID,
	}
	sess.SetSpec(spec)

	em.Progress("complete", "Visualization ready")
	em.Visualization(spec)
	return true
}

func (a *Agent) generateCode(ctx context.Context, requestID, vizType string, idea session.Idea, gathered map[string]any, schema string) (string, error) {
	sample, err := json.MarshalIndent(gathered, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal gathered data: %w", err)
	}
	if len(sample) > sampleDataLimit {
		sample = sample[:sampleDataLimit]
	}

	prompt := prompts.Codegen(vizType, idea.Title, idea.Description, strings.TrimSpace(schema), string(sample))
	resp, err := a.chatOnce(ctx, requestID, 0, a.codegenModel, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return "", err
	}
	return stripFences(resp.Message.Content), nil
}

// assembleData merges the gathering stage's tool payloads into one
// mapping keyed by semantic name, plus a schema description for the
// code-synthesis prompt. Returns nil when nothing usable was gathered.
func assembleData(payloads []toolPayload) (map[string]any, string) {
	var (
		readings  []any
		doors     []any
		presence  []any
		baselines = map[string]any{}
	)

	for _, p := range payloads {
		data := roundTrip(p.Result.Data)
		switch p.Name {
		case "query_sensor_data":
			if list, ok := data.([]any); ok {
				readings = append(readings, list...)
			}
		case "get_door_events":
			if list, ok := data.([]any); ok {
				doors = append(doors, list...)
			}
		case "get_thermal_presence":
			if list, ok := data.([]any); ok {
				presence = append(presence, list...)
			}
		case "get_baselines":
			if m, ok := data.(map[string]any); ok {
				if id, ok := m["sensor_id"].(string); ok && id != "" {
					baselines[id] = m
				}
			}
		}
	}

	if len(readings) == 0 && len(doors) == 0 && len(presence) == 0 && len(baselines) == 0 {
		return nil, ""
	}

	gathered := map[string]any{}
	var schemaParts []string
	if len(readings) > 0 {
		gathered["readings"] = readings
		schemaParts = append(schemaParts, "data.readings: Array of sensor readings with {timestamp, value, humidity, sensor_id?, sensor_name?}")
	}
	if len(doors) > 0 {
		gathered["door_events"] = doors
		schemaParts = append(schemaParts, "data.door_events: Array of door events with {sensor_id, opened_at, closed_at, duration_seconds}")
	}
	if len(presence) > 0 {
		gathered["presence_events"] = presence
		schemaParts = append(schemaParts, "data.presence_events: Array of presence events with {sensor_id, zone_id, started_at, ended_at, duration_seconds, is_safety_concern}")
	}
	if len(baselines) > 0 {
		gathered["baselines"] = baselines
		schemaParts = append(schemaParts, "data.baselines: Object keyed by sensor_id, values have {sensor_id, mean, std_dev, min, max, unit}")
	}
	return gathered, strings.Join(schemaParts, "\n")
}

// roundTrip normalizes typed tool data into plain JSON values.
func roundTrip(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func gatheredSummary(gathered map[string]any) string {
	var parts []string
	if list, ok := gathered["readings"].([]any); ok && len(list) > 0 {
		parts = append(parts, fmt.Sprintf("%d readings", len(list)))
	}
	if list, ok := gathered["door_events"].([]any); ok && len(list) > 0 {
		parts = append(parts, fmt.Sprintf("%d door events", len(list)))
	}
	if list, ok := gathered["presence_events"].([]any); ok && len(list) > 0 {
		parts = append(parts, fmt.Sprintf("%d presence events", len(list)))
	}
	if len(parts) == 0 {
		return "Data collected"
	}
	return "Collected " + strings.Join(parts, ", ")
}

// fetchDirect queries the store without the model, shaping data per
// visualization type. The gathering loop normally supersedes this; it
// remains the deterministic path when the loop yields nothing.
func (a *Agent) fetchDirect(ctx context.Context, vizType string, spec map[string]any, now time.Time) (map[string]any, string, error) {
	hours := parseTimeRange(spec)

	switch vizType {
	case "timeline", "trend":
		sensorID, _ := spec["sensor"].(string)
		if sensorID == "" {
			sensorID = "cold-a-temp"
		}
		series, err := a.facility.Readings(ctx, sensorID, now.Add(-time.Duration(hours)*time.Hour), now, facility.IntervalRaw)
		if err != nil {
			return nil, "", err
		}
		data := map[string]any{"series": roundTrip(series.Readings), "sensor": sensorID}
		schema := "data.series: Array of time-series data points with {timestamp, value}\ndata.sensor: string (sensor ID)"
		return data, schema, nil

	default:
		zones, err := a.zoneHealth(ctx, now)
		if err != nil {
			return nil, "", err
		}
		data := map[string]any{"zones": zones}
		schema := "data.zones: Array of zone objects with {id, name, currentTemp, targetMin, targetMax, status}"
		return data, schema, nil
	}
}

// zoneHealth builds the current-temperature-vs-target summary for all
// zones from their environmental sensors.
func (a *Agent) zoneHealth(ctx context.Context, now time.Time) ([]map[string]any, error) {
	var out []map[string]any
	for _, zone := range facility.Zones {
		sensors := facility.SensorsInZone(zone.ID, facility.SensorEnvironmental)
		if len(sensors) == 0 {
			continue
		}
		series, err := a.facility.Readings(ctx, sensors[0].ID, now.Add(-2*time.Hour), now, facility.IntervalRaw)
		if err != nil {
			return nil, err
		}
		if len(series.Readings) == 0 {
			continue
		}
		current := series.Readings[len(series.Readings)-1].Value

		status := "normal"
		if current < zone.MinTemp {
			status = "cold"
		} else if current > zone.MaxTemp {
			status = "warm"
		}

		out = append(out, map[string]any{
			"id":          zone.ID,
			"name":        zone.Name,
			"currentTemp": current,
			"targetMin":   zone.MinTemp,
			"targetMax":   zone.MaxTemp,
			"status":      status,
		})
	}
	return out, nil
}

func parseTimeRange(spec map[string]any) int {
	tr, _ := spec["timeRange"].(string)
	switch tr {
	case "1h":
		return 1
	case "6h":
		return 6
	case "48h":
		return 48
	case "7d":
		return 7 * 24
	default:
		return 24
	}
}
