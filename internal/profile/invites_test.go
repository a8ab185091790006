package profile

import (
	stderrors "errors"
	"testing"

	apperrors "carelink/internal/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBadger(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInviteCodeRoundTrip(t *testing.T) {
	invites := NewInviteStore(openTestBadger(t))

	code, err := invites.Create("user_a")
	require.NoError(t, err)
	assert.Len(t, code, 6)

	inviterID, err := invites.Redeem(code)
	require.NoError(t, err)
	assert.Equal(t, "user_a", inviterID)

	// One-time: a second redemption fails.
	_, err = invites.Redeem(code)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrNotFound))
}

func TestRedeemUnknownCode(t *testing.T) {
	invites := NewInviteStore(openTestBadger(t))

	_, err := invites.Redeem("NOPE42")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrNotFound))
}
