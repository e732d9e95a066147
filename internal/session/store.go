// Package session records live exercise streams into the database and
// loads them back as replay histories. Events are stored as raw JSON
// payloads keyed by session and timestamp, so replay derivation always
// runs the current accumulation rules over the original data.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tacmap/pkg/core"
)

// Store persists sessions and their event streams.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewStore(db *gorm.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

// Begin creates a new session row.
func (s *Store) Begin(name string, startedAt time.Time) (*Session, error) {
	sess := &Session{Name: name, StartedAt: startedAt}
	if err := s.db.Create(sess).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.log.Info().Uint("sessionID", sess.ID).Str("name", name).Msg("Session started")
	return sess, nil
}

// End stamps the session's end time.
func (s *Store) End(sessionID uint, endedAt time.Time) error {
	err := s.db.Model(&Session{}).Where("id = ?", sessionID).
		Update("ended_at", endedAt).Error
	if err != nil {
		return fmt.Errorf("failed to end session %d: %w", sessionID, err)
	}
	return nil
}

// Sessions lists all recorded sessions, newest first.
func (s *Store) Sessions() ([]Session, error) {
	var out []Session
	if err := s.db.Order("started_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return out, nil
}

// SaveSoldierBatch writes one drained batch of telemetry rows.
func (s *Store) SaveSoldierBatch(rows []SoldierHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.Create(&rows).Error
}

// SaveKillBatch writes one drained batch of kill rows.
func (s *Store) SaveKillBatch(rows []KillFeedHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.Create(&rows).Error
}

// SaveStatsBatch writes one drained batch of stats rows.
func (s *Store) SaveStatsBatch(rows []StatsHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.Create(&rows).Error
}

// LoadHistory reassembles a session's full event streams for replay.
// Rows with payloads that no longer unmarshal are skipped and logged,
// never fatal: one bad row must not lose the session.
func (s *Store) LoadHistory(sessionID uint) (core.History, error) {
	var h core.History

	var exists int64
	if err := s.db.Model(&Session{}).Where("id = ?", sessionID).Count(&exists).Error; err != nil {
		return h, fmt.Errorf("failed to look up session %d: %w", sessionID, err)
	}
	if exists == 0 {
		return h, fmt.Errorf("session %d not found", sessionID)
	}

	var soldiers []SoldierHistory
	if err := s.db.Where("session_id = ?", sessionID).Order("timestamp ASC").Find(&soldiers).Error; err != nil {
		return h, fmt.Errorf("failed to load soldier history: %w", err)
	}
	for _, row := range soldiers {
		var u core.SoldierUpdate
		if err := json.Unmarshal(row.Payload, &u); err != nil {
			s.log.Warn().Err(err).Uint("rowID", row.ID).Msg("Skipping unreadable soldier row")
			continue
		}
		u.Timestamp = row.Timestamp
		h.Soldiers = append(h.Soldiers, u)
	}

	var kills []KillFeedHistory
	if err := s.db.Where("session_id = ?", sessionID).Order("timestamp ASC").Find(&kills).Error; err != nil {
		return h, fmt.Errorf("failed to load kill history: %w", err)
	}
	for _, row := range kills {
		var k core.KillEvent
		if err := json.Unmarshal(row.Payload, &k); err != nil {
			s.log.Warn().Err(err).Uint("rowID", row.ID).Msg("Skipping unreadable kill row")
			continue
		}
		k.Timestamp = row.Timestamp
		h.Kills = append(h.Kills, k)
	}

	var stats []StatsHistory
	if err := s.db.Where("session_id = ?", sessionID).Order("timestamp ASC").Find(&stats).Error; err != nil {
		return h, fmt.Errorf("failed to load stats history: %w", err)
	}
	for _, row := range stats {
		var e core.StatsEvent
		if err := json.Unmarshal(row.Payload, &e); err != nil {
			s.log.Warn().Err(err).Uint("rowID", row.ID).Msg("Skipping unreadable stats row")
			continue
		}
		e.Timestamp = row.Timestamp
		h.Stats = append(h.Stats, e)
	}

	return h, nil
}
