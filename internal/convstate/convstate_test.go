package convstate

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestSetGetClear(t *testing.T) {
	store := openTestStore(t)

	state, err := store.Get("user_a")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, store.SetFlow("user_a", "awaiting_new_member_name", ""))

	state, err = store.Get("user_a")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "awaiting_new_member_name", state.Flow)
	assert.False(t, state.ExpiresAt.IsZero())

	require.NoError(t, store.Clear("user_a"))
	state, err = store.Get("user_a")
	require.NoError(t, err)
	assert.Nil(t, state)

	// Clearing twice is fine.
	require.NoError(t, store.Clear("user_a"))
}

func TestSetReplacesPreviousState(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SetFlow("user_a", "awaiting_new_member_name", ""))
	require.NoError(t, store.SetFlow("user_a", "rename_member_profile", "mem_1"))

	state, err := store.Get("user_a")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "rename_member_profile", state.Flow)
	assert.Equal(t, "mem_1", state.Arg)
}

func TestAdvisoryExpiry(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set("user_a", &State{
		Flow:      "awaiting_new_member_name",
		ExpiresAt: time.Now().Add(-time.Second),
	}))

	state, err := store.Get("user_a")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestDraftRoundTrip(t *testing.T) {
	store := openTestStore(t)

	type draft struct {
		Drugs  []string `json:"drugs"`
		Clinic string   `json:"clinic"`
	}
	require.NoError(t, store.SetDraft("user_a", "prescription_draft", draft{
		Drugs:  []string{"Aspirin", "Lisinopril"},
		Clinic: "City Clinic",
	}))

	state, err := store.Get("user_a")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "prescription_draft", state.Flow)
	// Drafts carry no advisory expiry.
	assert.True(t, state.ExpiresAt.IsZero())

	var got draft
	require.NoError(t, state.Draft(&got))
	assert.Equal(t, "City Clinic", got.Clinic)
	assert.Len(t, got.Drugs, 2)
}

func TestTokenParseRoundTrip(t *testing.T) {
	state := &State{Flow: "rename_member_profile", Arg: "mem_1"}
	assert.Equal(t, "rename_member_profile:mem_1", state.Token())

	flow, arg := Parse("rename_member_profile:mem_1")
	assert.Equal(t, "rename_member_profile", flow)
	assert.Equal(t, "mem_1", arg)

	flow, arg = Parse("awaiting_new_member_name")
	assert.Equal(t, "awaiting_new_member_name", flow)
	assert.Empty(t, arg)

	// Only the first colon splits; args may themselves carry colons.
	flow, arg = Parse("bind_code:ab:cd")
	assert.Equal(t, "bind_code", flow)
	assert.Equal(t, "ab:cd", arg)
}
