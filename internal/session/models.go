package session

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&SoldierHistory{},
	&KillFeedHistory{},
	&StatsHistory{},
}

// Session is one recorded exercise run.
type Session struct {
	gorm.Model
	Name      string     `json:"name" gorm:"size:255"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt"`
}

// SoldierHistory is one recorded telemetry update, stored raw so replay
// can re-derive state with whatever rules are current.
type SoldierHistory struct {
	gorm.Model
	SessionID uint           `json:"sessionId" gorm:"index:idx_soldierhistory_session_id"`
	SoldierID string         `json:"soldierId" gorm:"size:127"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   datatypes.JSON `json:"payload"`
}

// KillFeedHistory is one recorded kill event.
type KillFeedHistory struct {
	gorm.Model
	SessionID uint           `json:"sessionId" gorm:"index:idx_killfeedhistory_session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   datatypes.JSON `json:"payload"`
}

// StatsHistory is one recorded per-team counter update.
type StatsHistory struct {
	gorm.Model
	SessionID uint           `json:"sessionId" gorm:"index:idx_statshistory_session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   datatypes.JSON `json:"payload"`
}
