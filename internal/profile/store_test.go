package profile

import (
	"database/sql"
	stderrors "errors"
	"testing"

	apperrors "carelink/internal/errors"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTest(t *testing.T) (*Store, *gorm.DB) {
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{})
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	return store, db
}

// migrateDependents creates the tables the rename/delete cascades touch.
func migrateDependents(t *testing.T, db *gorm.DB) {
	require.NoError(t, db.Exec(`CREATE TABLE reminders (
		id TEXT PRIMARY KEY, owner_id TEXT, member_name TEXT, drug_name TEXT)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE health_logs (
		id TEXT PRIMARY KEY, recorder_id TEXT, target_name TEXT)`).Error)
}

func TestCreateOrGetUserIdempotent(t *testing.T) {
	store, _ := setupTest(t)

	u1, err := store.CreateOrGetUser("user_a", "Alice")
	require.NoError(t, err)
	u2, err := store.CreateOrGetUser("user_a", "Someone Else")
	require.NoError(t, err)
	assert.Equal(t, u1.ID, u2.ID)
	assert.Equal(t, "Alice", u2.DisplayName)

	members, err := store.Members("user_a")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, SelfMemberName, members[0].Name)
}

func TestAddMemberRejectsDuplicate(t *testing.T) {
	store, _ := setupTest(t)
	_, err := store.CreateOrGetUser("user_a", "Alice")
	require.NoError(t, err)

	_, err = store.AddMember("user_a", "Mom")
	require.NoError(t, err)
	_, err = store.AddMember("user_a", "Mom")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrDuplicateName))

	// Same name under a different owner is a separate namespace.
	_, err = store.AddMember("user_b", "Mom")
	require.NoError(t, err)
}

func TestMemberByIDCrossOwnerReportsNotFound(t *testing.T) {
	store, _ := setupTest(t)

	member, err := store.AddMember("user_a", "Mom")
	require.NoError(t, err)

	_, err = store.MemberByID("user_b", member.ID)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrNotFound))

	got, err := store.MemberByID("user_a", member.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mom", got.Name)
}

func TestRenameMemberCascades(t *testing.T) {
	store, db := setupTest(t)
	migrateDependents(t, db)

	_, err := store.CreateOrGetUser("user_a", "Alice")
	require.NoError(t, err)
	_, err = store.AddMember("user_a", "Mom")
	require.NoError(t, err)

	require.NoError(t, db.Exec(
		`INSERT INTO reminders (id, owner_id, member_name, drug_name) VALUES
		 ('rem_1', 'user_a', 'Mom', 'Aspirin'),
		 ('rem_2', 'user_a', 'Mom', 'Lisinopril'),
		 ('rem_3', 'user_b', 'Mom', 'Aspirin')`).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO health_logs (id, recorder_id, target_name) VALUES
		 ('hlog_1', 'user_a', 'Mom')`).Error)

	renamed, err := store.RenameMember("user_a", "Mom", "Mother")
	require.NoError(t, err)
	assert.Equal(t, int64(1), renamed)

	var count int64
	require.NoError(t, db.Table("reminders").
		Where("owner_id = ? AND member_name = ?", "user_a", "Mother").Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// Another owner's rows keep the old label.
	require.NoError(t, db.Table("reminders").
		Where("owner_id = ? AND member_name = ?", "user_b", "Mom").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, db.Table("health_logs").
		Where("recorder_id = ? AND target_name = ?", "user_a", "Mother").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	member, err := store.MemberByName("user_a", "Mother")
	require.NoError(t, err)
	require.NotNil(t, member)
}

func TestRenameMemberCollisionAndMissing(t *testing.T) {
	store, db := setupTest(t)
	migrateDependents(t, db)

	_, err := store.AddMember("user_a", "Mom")
	require.NoError(t, err)
	_, err = store.AddMember("user_a", "Dad")
	require.NoError(t, err)

	_, err = store.RenameMember("user_a", "Mom", "Dad")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrDuplicateName))

	_, err = store.RenameMember("user_a", "Nobody", "Anybody")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrNotFound))
}

func TestRenameMemberUpdatesBindingLabel(t *testing.T) {
	store, db := setupTest(t)
	migrateDependents(t, db)

	_, err := store.CreateOrGetUser("user_a", "Alice")
	require.NoError(t, err)
	_, err = store.CreateOrGetUser("user_b", "Mom")
	require.NoError(t, err)
	require.NoError(t, store.Bind("user_a", "user_b", "Mom", "Mom"))

	_, err = store.RenameMember("user_a", "Mom", "Mother")
	require.NoError(t, err)

	boundID, err := store.ResolveBinding("user_a", "Mother")
	require.NoError(t, err)
	assert.Equal(t, "user_b", boundID)

	boundID, err = store.ResolveBinding("user_a", "Mom")
	require.NoError(t, err)
	assert.Empty(t, boundID)
}

func TestDeleteMemberProtectsSelf(t *testing.T) {
	store, db := setupTest(t)
	migrateDependents(t, db)

	_, err := store.CreateOrGetUser("user_a", "Alice")
	require.NoError(t, err)

	self, err := store.MemberByName("user_a", SelfMemberName)
	require.NoError(t, err)
	require.NotNil(t, self)

	_, err = store.DeleteMember("user_a", self.ID)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrSelfMember))
}

func TestDeleteMemberCascadesReminders(t *testing.T) {
	store, db := setupTest(t)
	migrateDependents(t, db)

	member, err := store.AddMember("user_a", "Mom")
	require.NoError(t, err)
	require.NoError(t, db.Exec(
		`INSERT INTO reminders (id, owner_id, member_name, drug_name) VALUES
		 ('rem_1', 'user_a', 'Mom', 'Aspirin')`).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO health_logs (id, recorder_id, target_name) VALUES
		 ('hlog_1', 'user_a', 'Mom'),
		 ('hlog_2', 'user_a', 'self')`).Error)

	deleted, err := store.DeleteMember("user_a", member.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	var count int64
	require.NoError(t, db.Table("reminders").
		Where("owner_id = ?", "user_a").Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// Health logs follow the member label, same as the rename cascade; other
	// members' logs stay put.
	var logs []string
	require.NoError(t, db.Table("health_logs").
		Where("recorder_id = ?", "user_a").Pluck("target_name", &logs).Error)
	assert.Equal(t, []string{"self"}, logs)

	// Cross-owner delete attempts look exactly like missing ids.
	other, err := store.AddMember("user_b", "Dad")
	require.NoError(t, err)
	deleted, err = store.DeleteMember("user_a", other.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestBindRejectsDuplicatesEitherDirection(t *testing.T) {
	store, _ := setupTest(t)

	_, err := store.CreateOrGetUser("user_a", "Alice")
	require.NoError(t, err)
	_, err = store.CreateOrGetUser("user_b", "Mom")
	require.NoError(t, err)

	require.NoError(t, store.Bind("user_a", "user_b", "Mom", "Mom"))

	err = store.Bind("user_a", "user_b", "Mom", "Mother")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrAlreadyBound))

	// The reverse direction is the same relationship.
	err = store.Bind("user_b", "user_a", "Alice", "Daughter")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrAlreadyBound))

	err = store.Bind("user_a", "user_a", "Alice", "Me")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrAlreadyBound))
}

func TestBindMirrorsAliasMember(t *testing.T) {
	store, _ := setupTest(t)

	_, err := store.CreateOrGetUser("user_a", "Alice")
	require.NoError(t, err)
	require.NoError(t, store.Bind("user_a", "user_b", "Mom", "Mom"))

	member, err := store.MemberByName("user_a", "Mom")
	require.NoError(t, err)
	require.NotNil(t, member)

	// The alias collides with existing member names.
	_, err = store.AddMember("user_a", "Mom")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrDuplicateName))

	// And an existing member name blocks using it as a relation alias.
	_, err = store.AddMember("user_a", "Dad")
	require.NoError(t, err)
	err = store.Bind("user_a", "user_c", "Dad", "Dad")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrDuplicateName))
}

func TestDeletableMembersExcludeSelfAndAliases(t *testing.T) {
	store, _ := setupTest(t)

	_, err := store.CreateOrGetUser("user_a", "Alice")
	require.NoError(t, err)
	_, err = store.AddMember("user_a", "Dad")
	require.NoError(t, err)
	require.NoError(t, store.Bind("user_a", "user_b", "Mom", "Mom"))

	deletable, err := store.DeletableMembers("user_a")
	require.NoError(t, err)
	require.Len(t, deletable, 1)
	assert.Equal(t, "Dad", deletable[0].Name)
}

func TestUnbindRemovesAliasAndReminders(t *testing.T) {
	store, db := setupTest(t)
	migrateDependents(t, db)

	_, err := store.CreateOrGetUser("user_a", "Alice")
	require.NoError(t, err)
	require.NoError(t, store.Bind("user_a", "user_b", "Mom", "Mom"))
	require.NoError(t, db.Exec(
		`INSERT INTO reminders (id, owner_id, member_name, drug_name) VALUES
		 ('rem_1', 'user_a', 'Mom', 'Aspirin'),
		 ('rem_2', 'user_a', 'Mom', 'Lisinopril')`).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO health_logs (id, recorder_id, target_name) VALUES
		 ('hlog_1', 'user_a', 'Mom')`).Error)

	removed, err := store.Unbind("user_a", "user_b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	var logCount int64
	require.NoError(t, db.Table("health_logs").
		Where("recorder_id = ? AND target_name = ?", "user_a", "Mom").Count(&logCount).Error)
	assert.Equal(t, int64(0), logCount)

	member, err := store.MemberByName("user_a", "Mom")
	require.NoError(t, err)
	assert.Nil(t, member)

	boundID, err := store.ResolveBinding("user_a", "Mom")
	require.NoError(t, err)
	assert.Empty(t, boundID)

	_, err = store.Unbind("user_a", "user_b")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrNotFound))
}

func TestListErrorsWrapStoreCode(t *testing.T) {
	store, db := setupTest(t)
	require.NoError(t, db.Exec("DROP TABLE bindings").Error)
	require.NoError(t, db.Exec("DROP TABLE members").Error)

	_, err := store.Members("user_a")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrStoreUnavailable))

	_, err = store.DeletableMembers("user_a")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrStoreUnavailable))

	_, err = store.Bindings("user_a")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrStoreUnavailable))
}
