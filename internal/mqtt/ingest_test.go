package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/coldwatch/coldwatch/internal/config"
	"github.com/coldwatch/coldwatch/internal/events"
)

type recordedReading struct {
	sensorID string
	ts       time.Time
	value    float64
	humidity *float64
}

type fakeWriter struct {
	readings []recordedReading
	err      error
}

func (f *fakeWriter) InsertReading(ctx context.Context, sensorID string, ts time.Time, value float64, humidity *float64) error {
	if f.err != nil {
		return f.err
	}
	f.readings = append(f.readings, recordedReading{sensorID, ts, value, humidity})
	return nil
}

func newTestIngest(w *fakeWriter, bus *events.Bus) *Ingest {
	return New(config.MQTTConfig{TopicPrefix: "facility"}, w, bus, nil)
}

func TestSensorFromTopic(t *testing.T) {
	in := newTestIngest(&fakeWriter{}, nil)

	tests := []struct {
		name    string
		topic   string
		want    string
		wantErr bool
	}{
		{"valid sensor", "facility/cold-a-temp/reading", "cold-a-temp", false},
		{"valid door sensor", "facility/loading-door/reading", "loading-door", false},
		{"unknown sensor", "facility/mystery-sensor/reading", "", true},
		{"wrong prefix", "other/cold-a-temp/reading", "", true},
		{"wrong suffix", "facility/cold-a-temp/status", "", true},
		{"missing sensor segment", "facility//reading", "", true},
		{"extra segments", "facility/zone-2/cold-a-temp/reading", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.sensorFromTopic(tt.topic)
			if tt.wantErr {
				if err == nil {
					t.Errorf("sensorFromTopic(%q) = %q, want error", tt.topic, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("sensorFromTopic(%q): %v", tt.topic, err)
			}
			if got != tt.want {
				t.Errorf("sensorFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

func TestHandleMessageStoresReading(t *testing.T) {
	writer := &fakeWriter{}
	bus := events.New()
	sub := bus.Subscribe(4)
	defer bus.Unsubscribe(sub)

	in := newTestIngest(writer, bus)
	in.handleMessage(context.Background(),
		"facility/cold-b-temp/reading",
		[]byte(`{"value":-17.4,"timestamp":"2026-03-01T08:15:00Z"}`))

	if len(writer.readings) != 1 {
		t.Fatalf("stored %d readings, want 1", len(writer.readings))
	}
	r := writer.readings[0]
	if r.sensorID != "cold-b-temp" || r.value != -17.4 {
		t.Errorf("reading = %+v", r)
	}
	want := time.Date(2026, 3, 1, 8, 15, 0, 0, time.UTC)
	if !r.ts.Equal(want) {
		t.Errorf("timestamp = %v, want %v", r.ts, want)
	}

	select {
	case ev := <-sub:
		if ev.Kind != events.KindReadingStored || ev.Data["sensor_id"] != "cold-b-temp" {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("no reading_stored event published")
	}
}

func TestHandleMessageHumidity(t *testing.T) {
	writer := &fakeWriter{}
	in := newTestIngest(writer, nil)

	in.handleMessage(context.Background(),
		"facility/loading-temp/reading",
		[]byte(`{"value":18.2,"humidity":47.5}`))

	if len(writer.readings) != 1 {
		t.Fatalf("stored %d readings, want 1", len(writer.readings))
	}
	r := writer.readings[0]
	if r.humidity == nil || *r.humidity != 47.5 {
		t.Errorf("humidity = %v", r.humidity)
	}
	// No timestamp in the payload: arrival time is used.
	if time.Since(r.ts) > time.Minute {
		t.Errorf("arrival timestamp not applied: %v", r.ts)
	}
}

func TestHandleMessageRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"broken json", "facility/cold-a-temp/reading", `{"value":`},
		{"unknown sensor", "facility/ghost/reading", `{"value":1}`},
		{"bad timestamp", "facility/cold-a-temp/reading", `{"value":1,"timestamp":"yesterday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &fakeWriter{}
			bus := events.New()
			sub := bus.Subscribe(4)
			defer bus.Unsubscribe(sub)

			in := newTestIngest(writer, bus)
			in.handleMessage(context.Background(), tt.topic, []byte(tt.payload))

			if len(writer.readings) != 0 {
				t.Errorf("malformed message stored %d readings", len(writer.readings))
			}
			select {
			case ev := <-sub:
				if ev.Kind != events.KindIngestError {
					t.Errorf("event kind = %s, want ingest_error", ev.Kind)
				}
			default:
				t.Error("no ingest_error event published")
			}
		})
	}
}
