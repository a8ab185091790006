package reminder

import "time"

// NumSlots is the number of independently configurable daily trigger times
// per reminder.
const NumSlots = 5

// Reminder is a scheduled medication reminder. Its identity is the
// (OwnerID, MemberName, DrugName) tuple: re-creating a reminder for the same
// drug and target updates the existing row instead of duplicating it.
type Reminder struct {
	ID         string `json:"id" gorm:"primaryKey"`
	OwnerID    string `json:"owner_id" gorm:"index;uniqueIndex:idx_reminder_identity,priority:1"`
	MemberName string `json:"member_name" gorm:"uniqueIndex:idx_reminder_identity,priority:2"`
	DrugName   string `json:"drug_name" gorm:"uniqueIndex:idx_reminder_identity,priority:3"`

	DoseQuantity string `json:"dose_quantity"`
	Frequency    string `json:"frequency"`
	Notes        string `json:"notes"`

	// Time slots hold "HH:MM:SS" wall-clock times in the scheduler's
	// timezone. Each is independently nullable; a reminder with no slots is
	// valid but never fires.
	TimeSlot1 *string `json:"time_slot_1" gorm:"column:time_slot_1"`
	TimeSlot2 *string `json:"time_slot_2" gorm:"column:time_slot_2"`
	TimeSlot3 *string `json:"time_slot_3" gorm:"column:time_slot_3"`
	TimeSlot4 *string `json:"time_slot_4" gorm:"column:time_slot_4"`
	TimeSlot5 *string `json:"time_slot_5" gorm:"column:time_slot_5"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Slots returns the configured time slots in order, skipping empty ones.
func (r *Reminder) Slots() []string {
	var out []string
	for _, s := range []*string{r.TimeSlot1, r.TimeSlot2, r.TimeSlot3, r.TimeSlot4, r.TimeSlot5} {
		if s != nil && *s != "" {
			out = append(out, *s)
		}
	}
	return out
}

// Fields carries the mutable portion of a reminder for upserts.
type Fields struct {
	DoseQuantity string
	Frequency    string
	Notes        string
	TimeSlots    []string // up to NumSlots "HH:MM:SS" values
}

// Due is a reminder selected by the scheduler together with its resolved
// delivery recipient, when the target member is a bound family alias.
type Due struct {
	Reminder `gorm:"embedded"`
	// BoundRecipientID is the bound user's platform id, or "" when the
	// reminder targets an unbound local profile.
	BoundRecipientID string `gorm:"column:bound_recipient_id"`
}
