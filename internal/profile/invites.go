package profile

import (
	"crypto/rand"
	"fmt"
	"time"

	apperrors "carelink/internal/errors"
	"github.com/dgraph-io/badger/v4"
)

// InviteTTL is how long a generated binding code stays redeemable.
const InviteTTL = 10 * time.Minute

// codeAlphabet avoids visually ambiguous characters.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// InviteStore hands out short one-time codes that let another account bind
// to the inviter.
type InviteStore struct {
	db *badger.DB
}

// NewInviteStore creates an invite code store.
func NewInviteStore(db *badger.DB) *InviteStore {
	return &InviteStore{db: db}
}

func inviteKey(code string) []byte {
	return []byte("bindcode:" + code)
}

// Create issues a fresh code for the inviter.
func (s *InviteStore) Create(inviterID string) (string, error) {
	bytes := make([]byte, 6)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}
	code := make([]byte, 6)
	for i, b := range bytes {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(inviteKey(string(code)), []byte(inviterID)).WithTTL(InviteTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "store invite code")
	}
	return string(code), nil
}

// Redeem consumes the code and returns the inviter it belongs to. Codes are
// one-time: a second redemption reports not-found.
func (s *InviteStore) Redeem(code string) (string, error) {
	var inviterID string
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(inviteKey(code))
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error {
			inviterID = string(v)
			return nil
		}); err != nil {
			return err
		}
		return txn.Delete(inviteKey(code))
	})
	if err == badger.ErrKeyNotFound {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, "redeem invite code")
	}
	return inviterID, nil
}
