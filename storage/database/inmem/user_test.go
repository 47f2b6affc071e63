package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

func Test_userRepository_CheckUsernameUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(Open())

	usr := testutil.CreateUser(t, repo, "Hero", "hero", "hero@test.cd", "school1", "", nil, true)

	tests := []struct {
		name     string
		username string
		email    string
		excluded []user.User
		wantErr  error
	}{
		{name: "free username and email", username: "newbie", email: "newbie@test.cd"},
		{name: "username taken", username: "hero", email: "newbie@test.cd", wantErr: user.ErrUsernameExists},
		{name: "email taken", username: "newbie", email: "hero@test.cd", wantErr: user.ErrEmailExists},
		{name: "own row excluded", username: "hero", email: "hero@test.cd", excluded: []user.User{usr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.CheckUsernameUniqueness(ctx, tt.username, tt.email, tt.excluded...)
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func Test_userRepository_getters(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(Open())

	usr := testutil.CreateUser(t, repo, "Hero", "hero", "hero@test.cd", "school1", "", nil, true)

	got, err := repo.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, usr.Username, got.Username)

	_, err = repo.GetUserByID(ctx, "nope")
	assert.Equal(t, user.ErrNotFound, err)

	got, err = repo.GetUserByUsername(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	got, err = repo.GetUserByEmail(ctx, "hero@test.cd")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	for _, lookup := range []string{"hero", "hero@test.cd"} {
		got, err = repo.GetUserByUsernameOrEmail(ctx, lookup)
		require.NoError(t, err)
		assert.Equal(t, usr.ID, got.ID)
	}

	_, err = repo.GetUserByUsernameOrEmail(ctx, "")
	assert.Equal(t, user.ErrNotFound, err)
}

func Test_userRepository_FilterUsers(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(Open())

	now := time.Now().UTC()
	hero := testutil.CreateUser(t, repo, "Hero", "hero", "hero@test.cd", "school1", "", []string{user.RoleStudent}, true, now.Add(-time.Hour))
	teacher := testutil.CreateUser(t, repo, "Teacher", "teacher", "teacher@test.cd", "school1", "", []string{user.RoleTeacher}, true, now)
	ndog := testutil.CreateUser(t, repo, "N Dog", "ndog", "ndog@test.cd", "school2", "", []string{user.RoleStudent}, false, now.Add(time.Hour))

	bPtr := func(b bool) *bool { return &b }
	ids := func(users []user.User) []string {
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter user.QueryFilter
		want   []string
	}{
		{name: "no filter", filter: user.QueryFilter{}, want: []string{hero.ID, teacher.ID, ndog.ID}},
		{name: "search on name", filter: user.QueryFilter{Search: "her"}, want: []string{hero.ID, teacher.ID}},
		{name: "search is case-insensitive", filter: user.QueryFilter{Search: "N DOG"}, want: []string{ndog.ID}},
		{name: "role prefix", filter: user.QueryFilter{Roles: []string{user.RoleStudent}}, want: []string{hero.ID, ndog.ID}},
		{name: "school", filter: user.QueryFilter{SchoolID: "school2"}, want: []string{ndog.ID}},
		{name: "is_active", filter: user.QueryFilter{IsActive: bPtr(false)}, want: []string{ndog.ID}},
		{name: "created range", filter: user.QueryFilter{CreatedFrom: now.Add(-time.Minute), CreatedTo: now.Add(time.Minute)}, want: []string{teacher.ID}},
		{name: "combo", filter: user.QueryFilter{Search: "o", Roles: []string{user.RoleStudent}, IsActive: bPtr(true)}, want: []string{hero.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := repo.FilterUsers(ctx, tt.filter, nil)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(users))
		})
	}

	t.Run("ordering", func(t *testing.T) {
		users, err := repo.FilterUsers(ctx, user.QueryFilter{}, []core.DBOrdering{{Field: "created_at", Ascending: false}})
		require.NoError(t, err)
		assert.Equal(t, []string{ndog.ID, teacher.ID, hero.ID}, ids(users))

		users, err = repo.FilterUsers(ctx, user.QueryFilter{}, []core.DBOrdering{{Field: "name", Ascending: true}})
		require.NoError(t, err)
		assert.Equal(t, []string{hero.ID, ndog.ID, teacher.ID}, ids(users))
	})
}

func Test_userRepository_UpdateUser(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(Open())

	usr := testutil.CreateUser(t, repo, "Hero", "hero", "hero@test.cd", "school1", "lol", []string{user.RoleStudent}, true)

	// partial update leaves unset fields alone
	updated, err := repo.UpdateUser(ctx, user.User{ID: usr.ID, Name: "Super Hero"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Super Hero", updated.Name)
	assert.Equal(t, "hero", updated.Username)
	assert.Equal(t, usr.PasswordHash, updated.PasswordHash)

	inactive := false
	updated, err = repo.UpdateUser(ctx, user.User{ID: usr.ID}, &inactive)
	require.NoError(t, err)
	require.NotNil(t, updated.IsActive)
	assert.False(t, *updated.IsActive)

	_, err = repo.UpdateUser(ctx, user.User{ID: "nope"}, nil)
	assert.Equal(t, user.ErrNotFound, err)
}
