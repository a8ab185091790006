// Package reminder owns medication reminder records and the background
// scheduler that delivers them.
package reminder

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "carelink/internal/errors"
	"gorm.io/gorm"
)

// Store handles reminder persistence.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new reminder store.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Reminder{}); err != nil {
		return nil, fmt.Errorf("failed to migrate reminder schema: %w", err)
	}
	return &Store{db: db}, nil
}

func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "rem_" + hex.EncodeToString(bytes)
}

func slotPointers(slots []string) [NumSlots]*string {
	var out [NumSlots]*string
	for i := 0; i < NumSlots && i < len(slots); i++ {
		if slots[i] != "" {
			v := slots[i]
			out[i] = &v
		}
	}
	return out
}

// Upsert creates or updates a reminder keyed by its
// (owner, member, drug) identity. When a row with that identity exists its
// mutable fields are replaced and the existing id is returned.
func (s *Store) Upsert(ownerID, memberName, drugName string, fields Fields) (string, error) {
	slots := slotPointers(fields.TimeSlots)

	var existing Reminder
	err := s.db.Where("owner_id = ? AND member_name = ? AND drug_name = ?", ownerID, memberName, drugName).
		First(&existing).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return "", apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "load reminder")
	}

	if err == nil {
		updates := map[string]interface{}{
			"dose_quantity": fields.DoseQuantity,
			"frequency":     fields.Frequency,
			"notes":         fields.Notes,
			"time_slot_1":   slots[0],
			"time_slot_2":   slots[1],
			"time_slot_3":   slots[2],
			"time_slot_4":   slots[3],
			"time_slot_5":   slots[4],
			"updated_at":    time.Now(),
		}
		if err := s.db.Model(&Reminder{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "update reminder")
		}
		return existing.ID, nil
	}

	rec := Reminder{
		ID:           generateID(),
		OwnerID:      ownerID,
		MemberName:   memberName,
		DrugName:     drugName,
		DoseQuantity: fields.DoseQuantity,
		Frequency:    fields.Frequency,
		Notes:        fields.Notes,
		TimeSlot1:    slots[0],
		TimeSlot2:    slots[1],
		TimeSlot3:    slots[2],
		TimeSlot4:    slots[3],
		TimeSlot5:    slots[4],
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "create reminder")
	}
	return rec.ID, nil
}

// UpsertBatch applies Upsert to each entry, e.g. all drugs recognized from
// one prescription. Entries are independent: one failure does not roll back
// the others.
func (s *Store) UpsertBatch(ownerID, memberName string, entries map[string]Fields) (int, error) {
	var saved int
	var firstErr error
	for drug, fields := range entries {
		if _, err := s.Upsert(ownerID, memberName, drug, fields); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		saved++
	}
	return saved, firstErr
}

// List returns the reminders for one (owner, member) pair in creation order.
func (s *Store) List(ownerID, memberName string) ([]Reminder, error) {
	var out []Reminder
	err := s.db.Where("owner_id = ? AND member_name = ?", ownerID, memberName).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "list reminders")
	}
	return out, nil
}

// Get returns the reminder only if it belongs to the owner; cross-owner ids
// report not-found.
func (s *Store) Get(ownerID, reminderID string) (*Reminder, error) {
	var rec Reminder
	err := s.db.First(&rec, "id = ?", reminderID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "load reminder")
	}
	if rec.OwnerID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return &rec, nil
}

// Delete removes one reminder after verifying ownership. A cross-owner
// attempt returns false without an error, indistinguishable from a missing
// id.
func (s *Store) Delete(ownerID, reminderID string) (bool, error) {
	res := s.db.Where("id = ? AND owner_id = ?", reminderID, ownerID).Delete(&Reminder{})
	if res.Error != nil {
		return false, apperrors.Wrap(res.Error, apperrors.ErrStoreUnavailable.Code, "delete reminder")
	}
	return res.RowsAffected > 0, nil
}

// Clear removes every reminder for one (owner, member) pair.
func (s *Store) Clear(ownerID, memberName string) (int64, error) {
	res := s.db.Where("owner_id = ? AND member_name = ?", ownerID, memberName).Delete(&Reminder{})
	if res.Error != nil {
		return 0, apperrors.Wrap(res.Error, apperrors.ErrStoreUnavailable.Code, "clear reminders")
	}
	return res.RowsAffected, nil
}

// DueAt selects the reminders whose slots match the given wall-clock minute
// ("HH:MM"), resolving each target member to its bound recipient when the
// member mirrors a family binding. Seconds in stored slots are ignored.
func (s *Store) DueAt(hhmm string) ([]Due, error) {
	var rows []Due
	err := s.db.Raw(`
		SELECT r.*, COALESCE(b.bound_user_id, '') AS bound_recipient_id
		FROM reminders r
		LEFT JOIN bindings b
			ON b.inviter_id = r.owner_id AND b.relation_type = r.member_name
		WHERE ? IN (
			substr(r.time_slot_1, 1, 5),
			substr(r.time_slot_2, 1, 5),
			substr(r.time_slot_3, 1, 5),
			substr(r.time_slot_4, 1, 5),
			substr(r.time_slot_5, 1, 5)
		)`, hhmm).Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "scan due reminders")
	}
	return rows, nil
}
