package observation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

const (
	kindEvent  = "event"
	kindMetric = "metric"
)

// RedisSource is a Source backed by two Redis ZSETs per instance, one for
// events and one for metrics, each member scored by its timestamp in unix ms.
type RedisSource struct {
	rdb          *redis.Client
	instanceName string
}

// NewRedisSource creates a source over an existing connection.
func NewRedisSource(rdb *redis.Client, instanceName string) (*RedisSource, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	return &RedisSource{rdb: rdb, instanceName: instanceName}, nil
}

// Add validates and writes observations in one pipeline.
func (s *RedisSource) Add(ctx context.Context, events []Event, metrics []Metric) error {
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return fmt.Errorf("invalid event at index %d: %w", i, err)
		}
	}
	for i := range metrics {
		if err := metrics[i].Validate(); err != nil {
			return fmt.Errorf("invalid metric at index %d: %w", i, err)
		}
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range events {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event %s: %w", e.ID, err)
			}
			pipe.ZAdd(ctx, s.key(kindEvent), redis.Z{Score: blackboard.IndexScore(e.Timestamp), Member: data})
		}
		for _, m := range metrics {
			data, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("failed to marshal metric %s: %w", m.ID, err)
			}
			pipe.ZAdd(ctx, s.key(kindMetric), redis.Z{Score: blackboard.IndexScore(m.Timestamp), Member: data})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write observations: %w", err)
	}
	return nil
}

// GetWindow implements Source. Members that fail to decode are logged and skipped.
func (s *RedisSource) GetWindow(ctx context.Context, start, end time.Time) (*Window, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("window end %s is before start %s", end, start)
	}
	rng := &redis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixMilli(), 10),
		Max: "(" + strconv.FormatInt(end.UnixMilli(), 10),
	}

	rawEvents, err := s.rdb.ZRangeByScore(ctx, s.key(kindEvent), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	rawMetrics, err := s.rdb.ZRangeByScore(ctx, s.key(kindMetric), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	events := make([]Event, 0, len(rawEvents))
	for _, raw := range rawEvents {
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			log.Printf("[Observation] Skipping malformed event: %v", err)
			continue
		}
		events = append(events, e)
	}
	metrics := make([]Metric, 0, len(rawMetrics))
	for _, raw := range rawMetrics {
		var m Metric
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			log.Printf("[Observation] Skipping malformed metric: %v", err)
			continue
		}
		metrics = append(metrics, m)
	}

	return NewWindow(start, end, events, metrics), nil
}

// Trim removes observations older than before. Returns how many were removed.
func (s *RedisSource) Trim(ctx context.Context, before time.Time) (int64, error) {
	upper := "(" + strconv.FormatInt(before.UnixMilli(), 10)

	var removed int64
	for _, kind := range []string{kindEvent, kindMetric} {
		n, err := s.rdb.ZRemRangeByScore(ctx, s.key(kind), "-inf", upper).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to trim %s observations: %w", kind, err)
		}
		removed += n
	}
	return removed, nil
}

func (s *RedisSource) key(kind string) string {
	return blackboard.ObservationKey(s.instanceName, kind)
}
