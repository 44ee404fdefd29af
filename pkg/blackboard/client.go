package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// persistTimeout bounds a single Persist hand-off.
const persistTimeout = 5 * time.Second

// Client provides instance-scoped Redis operations for completed cycles.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb             *redis.Client
	instanceName    string
	historySize     int
	riskHistorySize int
}

// NewClient creates a new blackboard client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: engine instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:             redis.NewClient(redisOpts),
		instanceName:    instanceName,
		historySize:     DefaultHistorySize,
		riskHistorySize: DefaultHistorySize,
	}, nil
}

// SetHistorySize changes how many completed cycles are retained in Redis.
func (c *Client) SetHistorySize(n int) {
	if n > 0 {
		c.historySize = n
	}
}

// SetRiskHistorySize changes how many risk snapshots are retained in Redis.
func (c *Client) SetRiskHistorySize(n int) {
	if n > 0 {
		c.riskHistorySize = n
	}
}

// InstanceName returns the namespace this client writes under.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// RedisClient exposes the underlying connection for components that share it.
func (c *Client) RedisClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Persist implements PersistenceSink. Failures are logged and dropped.
func (c *Client) Persist(ctx context.Context, snapshot *CycleSnapshot) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := c.SaveCycle(ctx, snapshot); err != nil {
		log.Printf("[Blackboard] Failed to persist cycle %s: %v", snapshot.Cycle.ID, err)
	}
}

// SaveCycle writes a completed cycle, indexes it, trims the cycle history,
// appends its risk snapshot to the separately bounded risk history and
// publishes a summary on the cycle events channel.
func (c *Client) SaveCycle(ctx context.Context, s *CycleSnapshot) error {
	if s.Cycle.Status != CycleStatusComplete || s.Cycle.CompletedAt == nil {
		return fmt.Errorf("cycle %s is not complete", s.Cycle.ID)
	}

	hash, err := CycleSnapshotToHash(s)
	if err != nil {
		return fmt.Errorf("failed to serialize cycle: %w", err)
	}

	indexKey := CycleIndexKey(c.instanceName)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, CycleKey(c.instanceName, s.Cycle.ID), hash)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: IndexScore(*s.Cycle.CompletedAt), Member: s.Cycle.ID})
		if s.Risk != nil {
			riskJSON, err := json.Marshal(s.Risk)
			if err != nil {
				return fmt.Errorf("failed to marshal risk snapshot: %w", err)
			}
			pipe.RPush(ctx, RiskHistoryKey(c.instanceName), riskJSON)
			pipe.LTrim(ctx, RiskHistoryKey(c.instanceName), int64(-c.riskHistorySize), -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write cycle to Redis: %w", err)
	}

	if err := c.evictOldCycles(ctx); err != nil {
		return err
	}

	summaryJSON, err := json.Marshal(s.Summary())
	if err != nil {
		return fmt.Errorf("failed to marshal cycle summary: %w", err)
	}
	if err := c.rdb.Publish(ctx, CycleEventsChannel(c.instanceName), summaryJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish cycle event: %w", err)
	}

	return nil
}

// evictOldCycles removes the oldest indexed cycles beyond the history size.
func (c *Client) evictOldCycles(ctx context.Context) error {
	indexKey := CycleIndexKey(c.instanceName)

	count, err := c.rdb.ZCard(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to count cycle index: %w", err)
	}
	excess := count - int64(c.historySize)
	if excess <= 0 {
		return nil
	}

	evicted, err := c.rdb.ZRange(ctx, indexKey, 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("failed to read evicted cycles: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range evicted {
			pipe.Del(ctx, CycleKey(c.instanceName, id))
		}
		pipe.ZRemRangeByRank(ctx, indexKey, 0, excess-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to evict old cycles: %w", err)
	}
	return nil
}

// GetCycle retrieves a persisted cycle by id.
// Returns (nil, redis.Nil) if the cycle doesn't exist. Use IsNotFound() to check.
func (c *Client) GetCycle(ctx context.Context, cycleID string) (*CycleSnapshot, error) {
	hashData, err := c.rdb.HGetAll(ctx, CycleKey(c.instanceName, cycleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cycle from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	snap, err := HashToCycleSnapshot(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize cycle: %w", err)
	}
	return snap, nil
}

// ListCycles returns persisted cycles completed within [since, until], oldest
// first. A zero bound means unbounded on that side.
func (c *Client) ListCycles(ctx context.Context, since, until time.Time) ([]*CycleSnapshot, error) {
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !since.IsZero() {
		rng.Min = fmt.Sprintf("%d", since.UnixMilli())
	}
	if !until.IsZero() {
		rng.Max = fmt.Sprintf("%d", until.UnixMilli())
	}

	ids, err := c.rdb.ZRangeByScore(ctx, CycleIndexKey(c.instanceName), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cycle index: %w", err)
	}

	cycles := make([]*CycleSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := c.GetCycle(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		cycles = append(cycles, snap)
	}
	return cycles, nil
}

// LatestCycle returns the most recently completed persisted cycle.
// Returns (nil, redis.Nil) when nothing has been persisted.
func (c *Client) LatestCycle(ctx context.Context) (*CycleSnapshot, error) {
	ids, err := c.rdb.ZRevRange(ctx, CycleIndexKey(c.instanceName), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cycle index: %w", err)
	}
	if len(ids) == 0 {
		return nil, redis.Nil
	}
	return c.GetCycle(ctx, ids[0])
}

// MatchCycleIDs returns the ids in the completed-cycle index that start with
// prefix, newest first. It walks the index with ZSCAN, so evicted cycles
// never match even if their hash is still being removed.
func (c *Client) MatchCycleIDs(ctx context.Context, prefix string) ([]string, error) {
	type match struct {
		id    string
		score float64
	}

	iter := c.rdb.ZScan(ctx, CycleIndexKey(c.instanceName), 0, prefix+"*", 0).Iterator()
	var matches []match
	for iter.Next(ctx) {
		id := iter.Val()
		if !iter.Next(ctx) {
			break
		}
		score, err := strconv.ParseFloat(iter.Val(), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid index score for cycle %s: %w", id, err)
		}
		matches = append(matches, match{id: id, score: score})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cycle index: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].id < matches[j].id
	})
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	return ids, nil
}

// CycleIDAt returns the id of the cycle completed n cycles before the latest
// (n = 0 is the latest). Returns redis.Nil when fewer cycles are retained.
func (c *Client) CycleIDAt(ctx context.Context, n int) (string, error) {
	ids, err := c.rdb.ZRevRange(ctx, CycleIndexKey(c.instanceName), int64(n), int64(n)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read cycle index: %w", err)
	}
	if len(ids) == 0 {
		return "", redis.Nil
	}
	return ids[0], nil
}

// RiskHistory returns up to limit of the newest risk snapshots, oldest first.
// limit <= 0 returns everything retained.
func (c *Client) RiskHistory(ctx context.Context, limit int) ([]*RiskSnapshot, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := c.rdb.LRange(ctx, RiskHistoryKey(c.instanceName), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read risk history: %w", err)
	}

	history := make([]*RiskSnapshot, 0, len(raw))
	for _, item := range raw {
		var snap RiskSnapshot
		if err := json.Unmarshal([]byte(item), &snap); err != nil {
			log.Printf("[Blackboard] Skipping malformed risk snapshot: %v", err)
			continue
		}
		history = append(history, &snap)
	}
	return history, nil
}

// CycleSubscription represents an active Pub/Sub subscription to completed
// cycle events. Caller must call Close() when done to clean up resources.
type CycleSubscription struct {
	events <-chan *CycleSummary
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of completed cycle summaries.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *CycleSubscription) Events() <-chan *CycleSummary {
	return s.events
}

// Errors returns the channel of subscription errors.
// Malformed messages are reported here and skipped.
func (s *CycleSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *CycleSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeCycleEvents subscribes to completed cycle events for this instance.
// Events are delivered on a buffered channel (size 10); Redis Pub/Sub is
// at-most-once, so slow subscribers may miss events.
func (c *Client) SubscribeCycleEvents(ctx context.Context) (*CycleSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, CycleEventsChannel(c.instanceName))

	// Wait for the subscription to be confirmed so no event published after
	// this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to cycle events: %w", err)
	}

	eventsChan := make(chan *CycleSummary, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var summary CycleSummary
				if err := json.Unmarshal([]byte(msg.Payload), &summary); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal cycle event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &summary:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &CycleSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil)
// or the store's ErrCycleNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil) || errors.Is(err, ErrCycleNotFound)
}
