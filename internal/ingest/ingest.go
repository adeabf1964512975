package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/andreas-portfolio/water-quality-api/internal/metrics"
	"github.com/andreas-portfolio/water-quality-api/internal/store"
)

// Metric families the pipeline subscribes to, one wildcard filter each.
var Metrics = []string{"temperature", "ph", "turbidity"}

var errUnknownMetric = errors.New("unknown metric")

type Ingestor struct {
	Repo *store.Repo
	// Timeout bounds the persistence round-trip of a single message.
	Timeout time.Duration
}

// MQTTMessage is the slice of the paho message surface the pipeline needs.
type MQTTMessage interface {
	Topic() string
	Payload() []byte
}

type readingPayload struct {
	SensorID  uint       `json:"sensor_id"`
	Value     *float64   `json:"value"`
	Unit      string     `json:"unit"`
	Timestamp *time.Time `json:"timestamp"`
}

func TopicFilters() []string {
	filters := make([]string, 0, len(Metrics))
	for _, m := range Metrics {
		filters = append(filters, "sensors/+/"+m)
	}
	return filters
}

// ParseTopic splits sensors/<id>/<metric> and returns the path sensor id
// and metric name. The payload's sensor_id stays authoritative for the
// write; the topic id only feeds logging.
func ParseTopic(topic string) (sensorID string, metric string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "sensors" {
		return "", "", fmt.Errorf("unexpected topic shape %q", topic)
	}
	for _, m := range Metrics {
		if parts[2] == m {
			return parts[1], parts[2], nil
		}
	}
	return "", "", errUnknownMetric
}

// HandleMessage processes one broker message to completion. Every failure
// path logs and returns; nothing here may take the subscriber down.
func (i *Ingestor) HandleMessage(ctx context.Context, msg MQTTMessage, receivedAt time.Time) {
	topic := msg.Topic()

	if _, _, err := ParseTopic(topic); err != nil {
		slog.Warn("ingest topic parse failed", "topic", topic, "error", err)
		metrics.IngestDropped.WithLabelValues("topic").Inc()
		return
	}

	var p readingPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		slog.Warn("ingest invalid payload", "topic", topic, "payload", string(msg.Payload()), "error", err)
		metrics.IngestDropped.WithLabelValues("decode").Inc()
		return
	}
	if p.SensorID == 0 || p.Value == nil {
		slog.Warn("ingest incomplete payload", "topic", topic, "payload", string(msg.Payload()))
		metrics.IngestDropped.WithLabelValues("decode").Inc()
		return
	}

	ts := receivedAt.UTC()
	if p.Timestamp != nil {
		ts = p.Timestamp.UTC()
	}
	reading := &store.Reading{
		SensorID:  p.SensorID,
		Timestamp: ts,
		Value:     *p.Value,
		Unit:      p.Unit,
	}

	timeout := i.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := i.Repo.CreateReading(writeCtx, reading); err != nil {
		if errors.Is(err, store.ErrSensorNotFound) {
			slog.Warn("ingest reading for unknown sensor", "topic", topic, "sensor_id", p.SensorID)
			metrics.IngestDropped.WithLabelValues("unknown_sensor").Inc()
			return
		}
		slog.Error("ingest db insert failed", "topic", topic, "sensor_id", p.SensorID, "error", err)
		metrics.IngestDropped.WithLabelValues("db").Inc()
		return
	}

	metrics.ReadingsIngested.Inc()
	slog.Debug("reading stored", "topic", topic, "sensor_id", p.SensorID, "value", *p.Value)
}
