package model

import "time"

// EventType identifies a measurement-report trigger condition.
type EventType string

const (
	// EventA3 fires when a neighbor becomes offset-better than serving.
	EventA3 EventType = "A3"
	// EventA4 fires when a neighbor rises above an absolute threshold.
	EventA4 EventType = "A4"
	// EventA5 fires when serving degrades below Threshold1 while a
	// neighbor exceeds Threshold2.
	EventA5 EventType = "A5"
	// EventD2 is the distance analogue of A5 over ground distances.
	EventD2 EventType = "D2"
)

// AllEventTypes lists the supported event types in severity order.
var AllEventTypes = []EventType{EventA3, EventA4, EventA5, EventD2}

// GoverningQuantity returns the measured quantity the event's conditions
// compare against.
func (e EventType) GoverningQuantity() Quantity {
	if e == EventD2 {
		return QuantityGroundDistance
	}
	return QuantityRSRP
}

// Severity ranks event types for tie-breaking. Higher is more urgent; A5 and
// D2 rank equally because both indicate the serving link is failing.
func (e EventType) Severity() int {
	switch e {
	case EventA5, EventD2:
		return 3
	case EventA4:
		return 2
	case EventA3:
		return 1
	default:
		return 0
	}
}

// Valid reports whether e is one of the supported event types.
func (e EventType) Valid() bool {
	switch e {
	case EventA3, EventA4, EventA5, EventD2:
		return true
	}
	return false
}

// EventDirection distinguishes condition onset from condition release.
type EventDirection string

const (
	DirectionEntering EventDirection = "entering"
	DirectionLeaving  EventDirection = "leaving"
)

// EventRecord is emitted by the event detector on a state transition:
// entering when a tuple moves armed to triggered, leaving when it moves
// triggered back to idle. The governing values and thresholds that satisfied
// the condition are captured for audit.
type EventRecord struct {
	ID            string         `json:"ID"`
	EventType     EventType      `json:"EventType"`
	Direction     EventDirection `json:"Direction"`
	Constellation string         `json:"Constellation"`
	ServingID     string         `json:"ServingID"`
	NeighborID    string         `json:"NeighborID"`

	// Timestamp is the sample time of the transition; ArmedAt is when the
	// condition was first observed in the persistence window that led here.
	Timestamp time.Time `json:"Timestamp"`
	ArmedAt   time.Time `json:"ArmedAt"`

	ServingValue  float64 `json:"ServingValue"`
	NeighborValue float64 `json:"NeighborValue"`

	Threshold1 float64 `json:"Threshold1"`
	Threshold2 float64 `json:"Threshold2"`
	Hysteresis float64 `json:"Hysteresis"`
}
