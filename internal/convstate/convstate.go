// Package convstate keeps per-user conversation state: which multi-step flow
// the user is in and any draft data the flow has accumulated. One state per
// user; storing a new one replaces the old, so flows can never overlap.
package convstate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultTTL bounds short linear flows. A user who walks away mid-flow gets a
// clean slate rather than a stale question.
const DefaultTTL = 5 * time.Minute

// hygieneTTL is the badger entry TTL. It is deliberately much longer than the
// advisory ExpiresAt so draft flows (no advisory expiry) survive, while
// abandoned keys still get collected eventually.
const hygieneTTL = 24 * time.Hour

// State is the single tagged conversation state. Flow names the step the
// user is in; Arg carries a small inline argument (a member id, an invite
// code); Payload carries larger drafts as JSON. ExpiresAt zero means the
// state does not expire on its own.
type State struct {
	Flow      string          `json:"flow"`
	Arg       string          `json:"arg,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
}

// Token renders the state in the wire form "flow" or "flow:arg".
func (s *State) Token() string {
	if s.Arg == "" {
		return s.Flow
	}
	return s.Flow + ":" + s.Arg
}

// Parse splits a wire token at the first colon into flow and arg.
func Parse(token string) (flow, arg string) {
	flow, arg, _ = strings.Cut(token, ":")
	return flow, arg
}

// Store persists conversation state in badger, one key per user.
type Store struct {
	db *badger.DB
}

// NewStore creates a new conversation state store.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func key(userID string) []byte {
	return []byte("convstate:" + userID)
}

// Set replaces the user's state. A zero ExpiresAt with an empty Payload gets
// the default advisory TTL; draft payloads keep whatever the caller set.
func (s *Store) Set(userID string, state *State) error {
	if state.ExpiresAt.IsZero() && len(state.Payload) == 0 {
		state.ExpiresAt = time.Now().Add(DefaultTTL)
	}
	value, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation state: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key(userID), value).WithTTL(hygieneTTL)
		return txn.SetEntry(e)
	})
}

// SetFlow stores a simple flow step with an optional inline argument.
func (s *Store) SetFlow(userID, flow, arg string) error {
	return s.Set(userID, &State{Flow: flow, Arg: arg})
}

// SetDraft stores a flow step together with a JSON draft payload.
func (s *Store) SetDraft(userID, flow string, draft interface{}) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	return s.Set(userID, &State{Flow: flow, Payload: payload})
}

// Get returns the user's current state, or nil when there is none. Expiry is
// advisory: an entry past its ExpiresAt reads as no state and is cleared.
func (s *Store) Get(userID string) (*State, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(userID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = append([]byte{}, v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(value, &state); err != nil {
		// Unreadable state is treated as absent; the user just re-enters
		// the flow.
		_ = s.Clear(userID)
		return nil, nil
	}
	if !state.ExpiresAt.IsZero() && time.Now().After(state.ExpiresAt) {
		_ = s.Clear(userID)
		return nil, nil
	}
	return &state, nil
}

// Clear removes the user's state. Clearing an absent state is a no-op.
func (s *Store) Clear(userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(userID))
	})
}

// Draft decodes the state's payload into out.
func (s *State) Draft(out interface{}) error {
	if len(s.Payload) == 0 {
		return fmt.Errorf("conversation state %q carries no draft", s.Flow)
	}
	return json.Unmarshal(s.Payload, out)
}
