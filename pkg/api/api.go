// Package api contains the shared JSON shapes published on the event stream.
// This package is shared between the simulator daemon and the fleetctl CLI.
package api

import "time"

// TankerEvent is the wire form of one transition/update notification, one
// message per processed tanker per tick.
type TankerEvent struct {
	TankerID       string    `json:"tanker_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      *string   `json:"new_status"` // null for telemetry-only updates
	Timestamp      time.Time `json:"timestamp"`
}

// EventTopic returns the MQTT topic a tanker's events are published on.
func EventTopic(tankerID string) string {
	return "fleet/tankers/" + tankerID + "/events"
}

// EventTopicWildcard subscribes to every tanker's event stream.
const EventTopicWildcard = "fleet/tankers/+/events"
