// Package mqtt ingests live sensor readings from an MQTT broker.
// Sensors publish JSON payloads to <prefix>/<sensor_id>/reading; each
// valid payload becomes a row in the readings store, so live data
// flows into the same queries the seeded history uses.
//
// The subscriber uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it re-subscribes to the reading topic filter.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/coldwatch/coldwatch/internal/config"
	"github.com/coldwatch/coldwatch/internal/events"
	"github.com/coldwatch/coldwatch/internal/facility"
)

// readingPayload is the wire format sensors publish.
type readingPayload struct {
	Value     float64  `json:"value"`
	Humidity  *float64 `json:"humidity,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"` // RFC3339; broker arrival time when absent
}

// Ingest subscribes to sensor reading topics and writes them to the
// facility store.
type Ingest struct {
	cfg    config.MQTTConfig
	writer facility.Writer
	bus    *events.Bus
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates an Ingest but does not connect. Call [Ingest.Start] to
// begin the connection and subscription.
func New(cfg config.MQTTConfig, writer facility.Writer, bus *events.Bus, logger *slog.Logger) *Ingest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingest{
		cfg:    cfg,
		writer: writer,
		bus:    bus,
		logger: logger,
	}
}

// topicFilter is the subscription pattern covering every sensor.
func (in *Ingest) topicFilter() string {
	return in.cfg.TopicPrefix + "/+/reading"
}

// Start connects to the MQTT broker, subscribes to the reading filter,
// and blocks until ctx is cancelled.
func (in *Ingest) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(in.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	filter := in.topicFilter()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: in.cfg.Username,
		ConnectPassword: []byte(in.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			in.logger.Info("mqtt connected to broker", "broker", in.cfg.Broker)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: filter, QoS: 1},
				},
			}); err != nil {
				in.logger.Warn("mqtt subscribe failed", "filter", filter, "error", err)
				return
			}
			in.logger.Info("mqtt subscribed", "filter", filter)
		},
		OnConnectError: func(err error) {
			in.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "coldwatch-ingest",
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					in.handleMessage(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	in.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// Log but don't fail — autopaho keeps retrying in the background.
		in.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Stop gracefully disconnects from the broker.
func (in *Ingest) Stop(ctx context.Context) error {
	if in.cm == nil {
		return nil
	}
	return in.cm.Disconnect(ctx)
}

// handleMessage parses one inbound reading and stores it. Malformed
// topics and payloads are logged and published to the bus; they never
// interrupt the subscription.
func (in *Ingest) handleMessage(ctx context.Context, topic string, payload []byte) {
	sensorID, err := in.sensorFromTopic(topic)
	if err != nil {
		in.ingestError(topic, err)
		return
	}

	var p readingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		in.ingestError(topic, fmt.Errorf("decode payload: %w", err))
		return
	}

	ts := time.Now().UTC()
	if p.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			in.ingestError(topic, fmt.Errorf("parse timestamp %q: %w", p.Timestamp, err))
			return
		}
		ts = parsed.UTC()
	}

	if err := in.writer.InsertReading(ctx, sensorID, ts, p.Value, p.Humidity); err != nil {
		in.ingestError(topic, fmt.Errorf("store reading: %w", err))
		return
	}

	in.logger.Debug("reading ingested", "sensor_id", sensorID, "value", p.Value)
	in.bus.Publish(events.Event{
		Source: events.SourceIngest,
		Kind:   events.KindReadingStored,
		Data:   map[string]any{"sensor_id": sensorID, "value": p.Value},
	})
}

// sensorFromTopic extracts and validates the sensor ID from a reading
// topic of the form <prefix>/<sensor_id>/reading.
func (in *Ingest) sensorFromTopic(topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, in.cfg.TopicPrefix+"/")
	if !ok {
		return "", fmt.Errorf("topic outside prefix %q", in.cfg.TopicPrefix)
	}
	sensorID, ok := strings.CutSuffix(rest, "/reading")
	if !ok || sensorID == "" || strings.Contains(sensorID, "/") {
		return "", fmt.Errorf("malformed reading topic %q", topic)
	}
	if _, ok := facility.SensorByID(sensorID); !ok {
		return "", fmt.Errorf("unknown sensor %q", sensorID)
	}
	return sensorID, nil
}

func (in *Ingest) ingestError(topic string, err error) {
	in.logger.Warn("mqtt reading rejected", "topic", topic, "error", err)
	in.bus.Publish(events.Event{
		Source: events.SourceIngest,
		Kind:   events.KindIngestError,
		Data:   map[string]any{"topic": topic, "error": err.Error()},
	})
}
