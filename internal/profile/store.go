// Package profile owns users, reminder targets (members), and the family
// binding graph between platform accounts.
package profile

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "carelink/internal/errors"
	"gorm.io/gorm"
)

// Store handles profile and binding persistence.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new profile store.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&User{}, &Member{}, &Binding{}); err != nil {
		return nil, fmt.Errorf("failed to migrate profile schemas: %w", err)
	}
	return &Store{db: db}, nil
}

func generateID(prefix string) string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return prefix + "_" + hex.EncodeToString(bytes)
}

// CreateOrGetUser returns the user with the given platform id, creating it
// (together with its "self" member) on first contact.
func (s *Store) CreateOrGetUser(id, displayName string) (*User, error) {
	var user User
	err := s.db.First(&user, "id = ?", id).Error
	if err == nil {
		return &user, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "load user")
	}

	user = User{ID: id, DisplayName: displayName}
	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		self := Member{ID: generateID("mem"), OwnerID: id, Name: SelfMemberName}
		return tx.Create(&self).Error
	})
	if txErr != nil {
		return nil, apperrors.Wrap(txErr, apperrors.ErrStoreUnavailable.Code, "create user")
	}
	return &user, nil
}

// AddMember creates a named reminder target for the owner.
func (s *Store) AddMember(ownerID, name string) (*Member, error) {
	var count int64
	if err := s.db.Model(&Member{}).Where("owner_id = ? AND name = ?", ownerID, name).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "check member name")
	}
	if count > 0 {
		return nil, apperrors.ErrDuplicateName
	}

	member := Member{ID: generateID("mem"), OwnerID: ownerID, Name: name}
	if err := s.db.Create(&member).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "create member")
	}
	return &member, nil
}

// Members lists the owner's reminder targets in creation order.
func (s *Store) Members(ownerID string) ([]Member, error) {
	var members []Member
	err := s.db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&members).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "list members")
	}
	return members, nil
}

// MemberByID returns the member only if it belongs to the owner. Cross-owner
// lookups report not-found, never a permission hint.
func (s *Store) MemberByID(ownerID, memberID string) (*Member, error) {
	var member Member
	err := s.db.First(&member, "id = ?", memberID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "load member")
	}
	if member.OwnerID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return &member, nil
}

// MemberByName returns the owner's member with the given name, or nil.
func (s *Store) MemberByName(ownerID, name string) (*Member, error) {
	var member Member
	err := s.db.Where("owner_id = ? AND name = ?", ownerID, name).First(&member).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "load member")
	}
	return &member, nil
}

// SelfMember returns the owner's "self" member.
func (s *Store) SelfMember(ownerID string) (*Member, error) {
	member, err := s.MemberByName(ownerID, SelfMemberName)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperrors.ErrNotFound
	}
	return member, nil
}

// DeletableMembers lists members the owner may remove: everything except
// "self" and aliases that mirror an active binding.
func (s *Store) DeletableMembers(ownerID string) ([]Member, error) {
	var members []Member
	err := s.db.
		Joins("LEFT JOIN bindings ON bindings.inviter_id = members.owner_id AND bindings.relation_type = members.name").
		Where("members.owner_id = ? AND members.name != ? AND bindings.id IS NULL", ownerID, SelfMemberName).
		Find(&members).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "list deletable members")
	}
	return members, nil
}

// RenameMember renames a member and every dependent row that carries the
// member name as a label (reminders, health logs, binding aliases) in one
// transaction. Returns the number of member rows renamed.
func (s *Store) RenameMember(ownerID, oldName, newName string) (int64, error) {
	if oldName == newName {
		return 0, nil
	}

	var collisions int64
	if err := s.db.Model(&Member{}).Where("owner_id = ? AND name = ?", ownerID, newName).Count(&collisions).Error; err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "check rename collision")
	}
	if collisions > 0 {
		return 0, apperrors.ErrDuplicateName
	}

	var renamed int64
	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Member{}).
			Where("owner_id = ? AND name = ?", ownerID, oldName).
			Updates(map[string]interface{}{"name": newName, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		renamed = res.RowsAffected

		// Dependent tables reference the member by denormalized name, so the
		// cascade is a plain ordered update with integrity intact throughout.
		if err := tx.Table("reminders").
			Where("owner_id = ? AND member_name = ?", ownerID, oldName).
			Update("member_name", newName).Error; err != nil {
			return err
		}
		if err := tx.Table("health_logs").
			Where("recorder_id = ? AND target_name = ?", ownerID, oldName).
			Update("target_name", newName).Error; err != nil {
			return err
		}
		return tx.Model(&Binding{}).
			Where("inviter_id = ? AND relation_type = ?", ownerID, oldName).
			Update("relation_type", newName).Error
	})
	if txErr != nil {
		if apperrors.IsAppError(txErr) {
			return 0, txErr
		}
		return 0, apperrors.Wrap(txErr, apperrors.ErrStoreUnavailable.Code, "rename member")
	}
	return renamed, nil
}

// DeleteMember removes a member and all of its reminders. The "self" member
// is protected and cross-owner ids report false without leaking existence.
func (s *Store) DeleteMember(ownerID, memberID string) (bool, error) {
	member, err := s.MemberByID(ownerID, memberID)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrNotFound.Code {
			return false, nil
		}
		return false, err
	}
	if member.Name == SelfMemberName {
		return false, apperrors.ErrSelfMember
	}

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM reminders WHERE owner_id = ? AND member_name = ?", ownerID, member.Name).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM health_logs WHERE recorder_id = ? AND target_name = ?", ownerID, member.Name).Error; err != nil {
			return err
		}
		return tx.Delete(&Member{}, "id = ?", member.ID).Error
	})
	if txErr != nil {
		return false, apperrors.Wrap(txErr, apperrors.ErrStoreUnavailable.Code, "delete member")
	}
	return true, nil
}

// Bind creates a binding from inviter to boundUser under the relationType
// alias and mirrors the alias into the inviter's member list. A binding in
// either direction blocks a second one.
func (s *Store) Bind(inviterID, boundUserID, boundName, relationType string) error {
	if inviterID == boundUserID {
		return apperrors.New(apperrors.ErrAlreadyBound.Code, "cannot bind an account to itself")
	}

	existing, err := s.BindingBetween(inviterID, boundUserID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.New(apperrors.ErrAlreadyBound.Code,
			fmt.Sprintf("binding already exists as %q (invited by %s)", existing.RelationType, existing.InviterID))
	}

	member, err := s.MemberByName(inviterID, relationType)
	if err != nil {
		return err
	}
	if member != nil {
		return apperrors.ErrDuplicateName
	}

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		binding := Binding{
			ID:           generateID("bnd"),
			InviterID:    inviterID,
			BoundUserID:  boundUserID,
			BoundName:    boundName,
			RelationType: relationType,
		}
		if err := tx.Create(&binding).Error; err != nil {
			return err
		}
		alias := Member{ID: generateID("mem"), OwnerID: inviterID, Name: relationType}
		return tx.Create(&alias).Error
	})
	if txErr != nil {
		return apperrors.Wrap(txErr, apperrors.ErrStoreUnavailable.Code, "create binding")
	}
	return nil
}

// BindingBetween returns the binding connecting the two users in either
// direction, or nil.
func (s *Store) BindingBetween(userA, userB string) (*Binding, error) {
	var binding Binding
	err := s.db.Where(
		"(inviter_id = ? AND bound_user_id = ?) OR (inviter_id = ? AND bound_user_id = ?)",
		userA, userB, userB, userA,
	).First(&binding).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "load binding")
	}
	return &binding, nil
}

// ResolveBinding returns the bound user's id for the inviter's alias, or ""
// when the alias is not a binding.
func (s *Store) ResolveBinding(inviterID, relationType string) (string, error) {
	var binding Binding
	err := s.db.Where("inviter_id = ? AND relation_type = ?", inviterID, relationType).First(&binding).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "resolve binding")
	}
	return binding.BoundUserID, nil
}

// Bindings lists the bindings the user created.
func (s *Store) Bindings(inviterID string) ([]Binding, error) {
	var bindings []Binding
	err := s.db.Where("inviter_id = ?", inviterID).Order("created_at ASC").Find(&bindings).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "list bindings")
	}
	return bindings, nil
}

// Unbind removes the binding and the records created under the relation's
// alias (member row, reminders, health logs). Returns the number of reminders
// removed; the caller is responsible for warning about the data loss
// beforehand.
func (s *Store) Unbind(inviterID, boundUserID string) (int64, error) {
	var binding Binding
	err := s.db.Where("inviter_id = ? AND bound_user_id = ?", inviterID, boundUserID).First(&binding).Error
	if err == gorm.ErrRecordNotFound {
		return 0, apperrors.ErrNotFound
	}
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "load binding")
	}

	var removed int64
	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Exec("DELETE FROM reminders WHERE owner_id = ? AND member_name = ?", inviterID, binding.RelationType)
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		if err := tx.Exec("DELETE FROM health_logs WHERE recorder_id = ? AND target_name = ?", inviterID, binding.RelationType).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ? AND name = ?", inviterID, binding.RelationType).
			Delete(&Member{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Binding{}, "id = ?", binding.ID).Error
	})
	if txErr != nil {
		return 0, apperrors.Wrap(txErr, apperrors.ErrStoreUnavailable.Code, "delete binding")
	}
	return removed, nil
}
