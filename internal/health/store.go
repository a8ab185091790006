// Package health persists vitals measurements (blood pressure, glucose,
// SpO2, temperature, weight) attached to reminder targets.
package health

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "carelink/internal/errors"
	"gorm.io/gorm"
)

// BindingResolver resolves a member alias to the bound user's id, so a
// member's view can include measurements the bound user recorded themselves.
type BindingResolver interface {
	ResolveBinding(inviterID, relationType string) (string, error)
}

// Store handles health log persistence.
type Store struct {
	db       *gorm.DB
	bindings BindingResolver
}

// NewStore creates a new health store.
func NewStore(db *gorm.DB, bindings BindingResolver) (*Store, error) {
	if err := db.AutoMigrate(&Log{}); err != nil {
		return nil, fmt.Errorf("failed to migrate health schema: %w", err)
	}
	return &Store{db: db, bindings: bindings}, nil
}

func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "hlog_" + hex.EncodeToString(bytes)
}

// AddLog stores one measurement. At least one vital must be present.
func (s *Store) AddLog(log *Log) error {
	if !log.HasVitals() {
		return apperrors.ErrNoVitals
	}
	if log.ID == "" {
		log.ID = generateID()
	}
	if log.RecordedAt.IsZero() {
		log.RecordedAt = time.Now()
	}
	if err := s.db.Create(log).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "create health log")
	}
	return nil
}

// Logs returns every measurement the recorder created, newest first.
func (s *Store) Logs(recorderID string) ([]Log, error) {
	var logs []Log
	err := s.db.Where("recorder_id = ?", recorderID).
		Order("recorded_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "list health logs")
	}
	return logs, nil
}

// LogsForMember returns measurements for one target: those the recorder
// created for the member, plus, when the member mirrors a binding, the bound
// user's self-recorded measurements.
func (s *Store) LogsForMember(recorderID, targetName string) ([]Log, error) {
	boundID := ""
	if s.bindings != nil {
		id, err := s.bindings.ResolveBinding(recorderID, targetName)
		if err != nil {
			return nil, err
		}
		boundID = id
	}

	query := s.db.Where("recorder_id = ? AND target_name = ?", recorderID, targetName)
	if boundID != "" {
		query = s.db.Where(
			"(recorder_id = ? AND target_name = ?) OR (recorder_id = ? AND target_name = ?)",
			recorderID, targetName, boundID, "self",
		)
	}

	var logs []Log
	if err := query.Order("recorded_at DESC").Find(&logs).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "list member health logs")
	}
	return logs, nil
}

// DeleteLog removes one measurement after verifying ownership. Cross-owner
// attempts report false without leaking existence.
func (s *Store) DeleteLog(recorderID, logID string) (bool, error) {
	res := s.db.Where("id = ? AND recorder_id = ?", logID, recorderID).Delete(&Log{})
	if res.Error != nil {
		return false, apperrors.Wrap(res.Error, apperrors.ErrStoreUnavailable.Code, "delete health log")
	}
	return res.RowsAffected > 0, nil
}
