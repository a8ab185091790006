package profile

import "time"

// SelfMemberName is the well-known member every user gets on first contact.
// It cannot be deleted and its reminders are only cleared with explicit
// confirmation upstream.
const SelfMemberName = "self"

// User is a platform account. Created on first contact, never hard-deleted.
type User struct {
	ID          string `json:"id" gorm:"primaryKey"`
	DisplayName string `json:"display_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is a reminder target owned by a single user. Names are unique
// within the owner's member set.
type Member struct {
	ID      string `json:"id" gorm:"primaryKey"`
	OwnerID string `json:"owner_id" gorm:"index;uniqueIndex:idx_owner_member,priority:1"`
	Name    string `json:"name" gorm:"uniqueIndex:idx_owner_member,priority:2"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Binding links an inviter to a bound user under an alias. The alias
// (RelationType) doubles as a Member name on the inviter's side and the two
// are kept in sync.
type Binding struct {
	ID           string `json:"id" gorm:"primaryKey"`
	InviterID    string `json:"inviter_id" gorm:"index;uniqueIndex:idx_binding_pair,priority:1"`
	BoundUserID  string `json:"bound_user_id" gorm:"index;uniqueIndex:idx_binding_pair,priority:2"`
	BoundName    string `json:"bound_name"`
	RelationType string `json:"relation_type"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
