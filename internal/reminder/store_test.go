package reminder

import (
	"database/sql"
	"testing"

	"carelink/internal/profile"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{})
	require.NoError(t, err)
	// The due-set query joins the bindings table.
	_, err = profile.NewStore(db)
	require.NoError(t, err)
	return db
}

func slot(s string) []string { return []string{s} }

func TestUpsertByIdentity(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	id1, err := store.Upsert("user_a", "self", "Aspirin", Fields{
		DoseQuantity: "1 tablet",
		TimeSlots:    slot("08:00:00"),
	})
	require.NoError(t, err)

	id2, err := store.Upsert("user_a", "self", "Aspirin", Fields{
		DoseQuantity: "2 tablets",
		TimeSlots:    slot("21:30:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	list, err := store.List("user_a", "self")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2 tablets", list[0].DoseQuantity)
	require.NotNil(t, list[0].TimeSlot1)
	assert.Equal(t, "21:30:00", *list[0].TimeSlot1)
	assert.Nil(t, list[0].TimeSlot2)
}

func TestUpsertDistinctDrugsCreateRows(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	_, err = store.Upsert("user_a", "self", "Aspirin", Fields{})
	require.NoError(t, err)
	_, err = store.Upsert("user_a", "self", "Lisinopril", Fields{})
	require.NoError(t, err)
	_, err = store.Upsert("user_a", "Mom", "Aspirin", Fields{})
	require.NoError(t, err)

	list, err := store.List("user_a", "self")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDeleteVerifiesOwnership(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	id, err := store.Upsert("user_a", "self", "Aspirin", Fields{})
	require.NoError(t, err)

	// Another user deleting must fail silently, indistinguishable from a
	// missing id.
	ok, err := store.Delete("user_b", id)
	require.NoError(t, err)
	assert.False(t, ok)

	list, _ := store.List("user_a", "self")
	assert.Len(t, list, 1)

	ok, err = store.Delete("user_a", id)
	require.NoError(t, err)
	assert.True(t, ok)

	list, _ = store.List("user_a", "self")
	assert.Empty(t, list)
}

func TestGetCrossOwnerReportsNotFound(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	id, err := store.Upsert("user_a", "self", "Aspirin", Fields{})
	require.NoError(t, err)

	_, err = store.Get("user_b", id)
	assert.Error(t, err)

	rec, err := store.Get("user_a", id)
	require.NoError(t, err)
	assert.Equal(t, "Aspirin", rec.DrugName)
}

func TestClear(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	_, err = store.Upsert("user_a", "Mom", "Aspirin", Fields{})
	require.NoError(t, err)
	_, err = store.Upsert("user_a", "Mom", "Lisinopril", Fields{})
	require.NoError(t, err)
	_, err = store.Upsert("user_a", "self", "Aspirin", Fields{})
	require.NoError(t, err)

	n, err := store.Clear("user_a", "Mom")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, _ := store.List("user_a", "self")
	assert.Len(t, list, 1)
}

func TestDueAtMinuteGranularity(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	_, err = store.Upsert("user_a", "self", "Aspirin", Fields{TimeSlots: slot("08:00:00")})
	require.NoError(t, err)

	due, err := store.DueAt("08:00")
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "Aspirin", due[0].DrugName)
	assert.Empty(t, due[0].BoundRecipientID)

	for _, miss := range []string{"07:59", "08:01"} {
		due, err = store.DueAt(miss)
		require.NoError(t, err)
		assert.Empty(t, due, "should not match at %s", miss)
	}
}

func TestDueAtSecondsIgnored(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	_, err = store.Upsert("user_a", "self", "Aspirin", Fields{TimeSlots: slot("08:00:30")})
	require.NoError(t, err)

	due, err := store.DueAt("08:00")
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestDueAtMatchesAnySlot(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	_, err = store.Upsert("user_a", "self", "Aspirin", Fields{
		TimeSlots: []string{"08:00:00", "12:00:00", "20:00:00"},
	})
	require.NoError(t, err)

	for _, hhmm := range []string{"08:00", "12:00", "20:00"} {
		due, err := store.DueAt(hhmm)
		require.NoError(t, err)
		assert.Len(t, due, 1, "expected a match at %s", hhmm)
	}
}

func TestUntimedReminderNeverDue(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewStore(db)
	require.NoError(t, err)

	_, err = store.Upsert("user_a", "self", "Vitamin D", Fields{Frequency: "as needed"})
	require.NoError(t, err)

	list, err := store.List("user_a", "self")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Slots())

	due, err := store.DueAt("08:00")
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDueAtResolvesBinding(t *testing.T) {
	db := setupTestDB(t)
	profiles, err := profile.NewStore(db)
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)

	_, err = profiles.CreateOrGetUser("user_a", "A")
	require.NoError(t, err)
	require.NoError(t, profiles.Bind("user_a", "user_b", "B", "Mom"))

	_, err = store.Upsert("user_a", "Mom", "Lisinopril", Fields{TimeSlots: slot("20:00:00")})
	require.NoError(t, err)

	due, err := store.DueAt("20:00")
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "user_b", due[0].BoundRecipientID)
}

func TestUpsertBatch(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	saved, err := store.UpsertBatch("user_a", "self", map[string]Fields{
		"Aspirin":    {TimeSlots: slot("08:00:00")},
		"Lisinopril": {TimeSlots: slot("20:00:00")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	list, _ := store.List("user_a", "self")
	assert.Len(t, list, 2)
}
