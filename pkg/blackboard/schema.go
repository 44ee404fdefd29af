package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so
// several engines can share one Redis server.
//
// Key pattern: cognicore:{instance_name}:{entity}[:{id}]
// Channel pattern: cognicore:{instance_name}:{event_type}_events

// CycleKey returns the Redis key for a completed cycle hash.
// Pattern: cognicore:{instance_name}:cycle:{cycle_id}
func CycleKey(instanceName, cycleID string) string {
	return CycleKeyPrefix(instanceName) + cycleID
}

// CycleKeyPrefix returns the prefix shared by every cycle hash of an instance.
func CycleKeyPrefix(instanceName string) string {
	return fmt.Sprintf("cognicore:%s:cycle:", instanceName)
}

// CycleIndexKey returns the Redis key for the completed-cycle index ZSET.
// Members are cycle ids scored by completion time in unix milliseconds.
// Pattern: cognicore:{instance_name}:cycles
func CycleIndexKey(instanceName string) string {
	return fmt.Sprintf("cognicore:%s:cycles", instanceName)
}

// RiskHistoryKey returns the Redis key for the capped risk snapshot list.
// Pattern: cognicore:{instance_name}:risk_history
func RiskHistoryKey(instanceName string) string {
	return fmt.Sprintf("cognicore:%s:risk_history", instanceName)
}

// ObservationKey returns the Redis key for an observation ZSET of the given
// kind ("event" or "metric"), scored by observation time in unix milliseconds.
// Pattern: cognicore:{instance_name}:observations:{kind}
func ObservationKey(instanceName, kind string) string {
	return fmt.Sprintf("cognicore:%s:observations:%s", instanceName, kind)
}

// CycleEventsChannel returns the Pub/Sub channel on which completed cycle
// summaries are published.
// Pattern: cognicore:{instance_name}:cycle_events
func CycleEventsChannel(instanceName string) string {
	return fmt.Sprintf("cognicore:%s:cycle_events", instanceName)
}
