package blackboard

import "time"

// Cycle index utilities
//
// Completed cycles are indexed in a Redis ZSET where:
// - Key: cognicore:{instance_name}:cycles
// - Members: cycle ids
// - Score: completion time in unix milliseconds
//
// This gives time-range listing with ZRANGEBYSCORE and FIFO eviction with
// ZREMRANGEBYRANK.

// IndexScore converts a completion time to a ZSET score.
func IndexScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// TimeFromScore converts a ZSET score back to a UTC time.
func TimeFromScore(score float64) time.Time {
	return time.UnixMilli(int64(score)).UTC()
}
