package core

import "time"

// Soldier is a tracked unit. Position is nil until the first telemetry
// message for the id arrives. Soldiers are never removed within a session;
// eliminated units stay on the map with the alert color.
type Soldier struct {
	ID        string    `json:"soldier_id"`
	Team      Team      `json:"team"`
	CallSign  string    `json:"call_sign"`
	Position  *Position `json:"position,omitempty"`
	Heading   float64   `json:"heading"`
	Hit       bool      `json:"hit_status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SoldierUpdate is one decoded telemetry message as sent by the exercise
// backend. GPS and IMU are pointers so a missing block is distinguishable
// from a zero value.
type SoldierUpdate struct {
	ID        string    `json:"soldier_id"`
	Team      Team      `json:"team"`
	CallSign  string    `json:"call_sign"`
	GPS       *GPS      `json:"gps"`
	IMU       *IMU      `json:"imu"`
	Hit       bool      `json:"hit_status"`
	Timestamp time.Time `json:"timestamp"`
}

// GPS is the position block of a telemetry message.
type GPS struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// IMU is the orientation block of a telemetry message.
type IMU struct {
	Yaw float64 `json:"yaw"`
}

// Valid reports whether the update can be applied: it needs an id and a
// numeric position. Invalid updates are skipped individually, never fatal.
func (u SoldierUpdate) Valid() bool {
	return u.ID != "" && u.GPS != nil && u.GPS.Latitude != nil && u.GPS.Longitude != nil
}
