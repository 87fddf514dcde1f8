package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RobotEventType names a change to a robot.
type RobotEventType string

const (
	RobotCreated RobotEventType = "created"
	RobotUpdated RobotEventType = "updated"
	RobotDeleted RobotEventType = "deleted"
)

// RobotEvent is published after a confirmed change to a robot.
type RobotEvent struct {
	Event     RobotEventType `json:"event"`
	RobotID   int64          `json:"robot_id"`
	Version   int            `json:"version,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewRobotEvent stamps an event with the current time.
func NewRobotEvent(event RobotEventType, robotID int64, version int) RobotEvent {
	return RobotEvent{
		Event:     event,
		RobotID:   robotID,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to its wire form.
func (e RobotEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ParseRobotEvent decodes an event received from the broker.
func ParseRobotEvent(payload []byte) (RobotEvent, error) {
	var e RobotEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return RobotEvent{}, fmt.Errorf("failed to parse robot event: %w", err)
	}
	if e.RobotID <= 0 || e.Event == "" {
		return RobotEvent{}, fmt.Errorf("robot event is missing robot_id or event")
	}
	return e, nil
}
