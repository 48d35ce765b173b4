// Package facility models the monitored cold-storage facility: its zones,
// sensors, and the historical reading store the agent tools query.
package facility

import (
	"fmt"
	"strings"
)

// SensorType identifies what a sensor measures.
type SensorType string

const (
	SensorEnvironmental SensorType = "environmental"
	SensorAirQuality    SensorType = "air_quality"
	SensorDoor          SensorType = "door"
	SensorMotion        SensorType = "motion"
)

// Numeric reports whether readings of this type support numeric
// aggregation (averages, baselines). Door and motion sensors are
// boolean state streams and do not.
func (t SensorType) Numeric() bool {
	return t == SensorEnvironmental || t == SensorAirQuality
}

// Unit returns the display unit for the sensor type's primary value.
func (t SensorType) Unit() string {
	switch t {
	case SensorEnvironmental:
		return "°C"
	case SensorAirQuality:
		return "ppm"
	default:
		return "events"
	}
}

// Sensor describes a single device installed in a zone.
type Sensor struct {
	ID   string
	Zone string
	Type SensorType
	Name string
}

// Zone is a physical area of the facility with a target temperature band.
type Zone struct {
	ID          string
	Name        string
	Description string
	MinTemp     float64
	MaxTemp     float64
}

// Zones lists the facility's zones in display order.
var Zones = []Zone{
	{ID: "zone-1", Name: "Loading Bay", Description: "Ambient storage", MinTemp: 15, MaxTemp: 25},
	{ID: "zone-2", Name: "Cold Room A", Description: "Fresh storage", MinTemp: 2, MaxTemp: 4},
	{ID: "zone-3", Name: "Cold Room B", Description: "Freezer", MinTemp: -20, MaxTemp: -16},
	{ID: "zone-4", Name: "Dry Storage", Description: "Ambient storage", MinTemp: 15, MaxTemp: 20},
}

// Sensors lists every installed sensor.
var Sensors = []Sensor{
	{ID: "loading-temp", Zone: "zone-1", Type: SensorEnvironmental, Name: "Loading Bay Temperature"},
	{ID: "loading-door", Zone: "zone-1", Type: SensorDoor, Name: "Loading Bay Door"},
	{ID: "loading-aq", Zone: "zone-1", Type: SensorAirQuality, Name: "Loading Bay Air Quality"},
	{ID: "loading-motion", Zone: "zone-1", Type: SensorMotion, Name: "Loading Bay Motion"},
	{ID: "cold-a-temp", Zone: "zone-2", Type: SensorEnvironmental, Name: "Cold Room A Temperature"},
	{ID: "cold-a-motion", Zone: "zone-2", Type: SensorMotion, Name: "Cold Room A Motion"},
	{ID: "cold-b-temp", Zone: "zone-3", Type: SensorEnvironmental, Name: "Cold Room B Temperature"},
	{ID: "cold-b-door", Zone: "zone-3", Type: SensorDoor, Name: "Cold Room B Door"},
	{ID: "cold-b-motion", Zone: "zone-3", Type: SensorMotion, Name: "Cold Room B Motion"},
	{ID: "dry-temp", Zone: "zone-4", Type: SensorEnvironmental, Name: "Dry Storage Temperature"},
	{ID: "dry-aq", Zone: "zone-4", Type: SensorAirQuality, Name: "Dry Storage Air Quality"},
}

// SensorByID looks up a sensor by its identifier.
func SensorByID(id string) (Sensor, bool) {
	for _, s := range Sensors {
		if s.ID == id {
			return s, true
		}
	}
	return Sensor{}, false
}

// ZoneByID looks up a zone by its identifier.
func ZoneByID(id string) (Zone, bool) {
	for _, z := range Zones {
		if z.ID == id {
			return z, true
		}
	}
	return Zone{}, false
}

// SensorsInZone returns the sensors installed in a zone, optionally
// filtered by type (empty type matches all).
func SensorsInZone(zoneID string, typ SensorType) []Sensor {
	var out []Sensor
	for _, s := range Sensors {
		if s.Zone != zoneID {
			continue
		}
		if typ != "" && s.Type != typ {
			continue
		}
		out = append(out, s)
	}
	return out
}

// DescribeLayout renders the facility layout as markdown, one block per
// zone. It grounds the agent's system prompt in the zone registry so
// the prompt and the tools always describe the same facility.
func DescribeLayout() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d zones, %d sensors:\n", len(Zones), len(Sensors))
	for _, z := range Zones {
		fmt.Fprintf(&b, "\n**%s (%s)** - %s (%.0f to %.0f°C target)\n- ",
			z.Name, z.ID, z.Description, z.MinTemp, z.MaxTemp)
		var parts []string
		for _, s := range SensorsInZone(z.ID, "") {
			parts = append(parts, fmt.Sprintf("%s sensor (%s)", strings.ReplaceAll(string(s.Type), "_", " "), s.ID))
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}
	return b.String()
}
