package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mnemosyne-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPosts_MissThenFreshHit(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.seedPost("p1", "u1", epoch)

	res := svc.FetchPosts(context.Background(), false)
	require.NoError(t, res.Err)
	assert.True(t, res.Found)
	assert.False(t, res.Stale)
	assert.Equal(t, []string{"p1"}, ids(res.Value))

	res = svc.FetchPosts(context.Background(), false)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, repo.Calls("ListPosts"), "fresh hit must not touch the store")
}

func TestFetchPosts_StaleServesCachedAndRefreshesOnce(t *testing.T) {
	svc, repo, clock := newTestService(t)
	repo.seedPost("p1", "u1", epoch)

	svc.FetchPosts(context.Background(), false)
	repo.seedPost("p2", "u1", epoch.Add(time.Minute))
	clock.Advance(31 * time.Second)

	res := svc.FetchPosts(context.Background(), false)
	require.NoError(t, res.Err)
	assert.True(t, res.Stale)
	assert.True(t, res.Revalidating)
	assert.Equal(t, []string{"p1"}, ids(res.Value), "stale value is returned immediately")

	svc.WaitIdle()
	assert.Equal(t, 2, repo.Calls("ListPosts"))

	res = svc.FetchPosts(context.Background(), false)
	assert.False(t, res.Stale)
	assert.Equal(t, []string{"p2", "p1"}, ids(res.Value))
	assert.Equal(t, 2, repo.Calls("ListPosts"))
}

func TestFetchPosts_ConcurrentStaleReadsShareOneRefresh(t *testing.T) {
	svc, repo, clock := newTestService(t)
	repo.seedPost("p1", "u1", epoch)
	svc.FetchPosts(context.Background(), false)
	clock.Advance(31 * time.Second)

	release := make(chan struct{})
	repo.listPostsHook = func(ctx context.Context) ([]model.Post, error) {
		<-release
		return repo.sorted(func(model.Post) bool { return true }), nil
	}

	for i := 0; i < 5; i++ {
		res := svc.FetchPosts(context.Background(), false)
		require.True(t, res.Revalidating)
	}
	// Let the goroutines reach singleflight before releasing the read.
	time.Sleep(20 * time.Millisecond)
	close(release)
	svc.WaitIdle()

	assert.Equal(t, 2, repo.Calls("ListPosts"))
}

func TestFetchPosts_ExpiredGoesRemote(t *testing.T) {
	svc, repo, clock := newTestService(t)
	repo.seedPost("p1", "u1", epoch)
	svc.FetchPosts(context.Background(), false)

	clock.Advance(5*time.Minute + time.Second)

	res := svc.FetchPosts(context.Background(), false)
	require.NoError(t, res.Err)
	assert.False(t, res.Stale)
	assert.False(t, res.Revalidating)
	assert.Equal(t, 2, repo.Calls("ListPosts"))
}

func TestFetchPosts_RemoteFailure(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.seedPost("p1", "u1", epoch)
	svc.FetchPosts(context.Background(), false)

	boom := errors.New("connection refused")
	repo.listPostsHook = func(context.Context) ([]model.Post, error) { return nil, boom }

	res := svc.FetchPosts(context.Background(), true)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, boom)
	var rerr *RemoteError
	require.ErrorAs(t, res.Err, &rerr)
	assert.Equal(t, "failed to load posts, please try again", rerr.Error())
	assert.True(t, res.Found, "previous value is still shown")
	assert.True(t, res.Stale)
	assert.Equal(t, []string{"p1"}, ids(res.Value))

	svc.ClearAll()
	res = svc.FetchPosts(context.Background(), false)
	assert.Error(t, res.Err)
	assert.False(t, res.Found)
	assert.Empty(t, res.Value)
}

func TestFetchProfile_OwnerMissCreatesDefaultOnce(t *testing.T) {
	svc, repo, _ := newTestService(t)

	res := svc.FetchProfile(as("u1"), "u1", false)
	require.NoError(t, res.Err)
	assert.Equal(t, "u1", res.Value.ID)
	assert.Equal(t, "u1@example.com", res.Value.Email)
	assert.Equal(t, 1, repo.Calls("InsertProfile"))

	res = svc.FetchProfile(as("u1"), "u1", true)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, repo.Calls("InsertProfile"))
}

func TestFetchProfile_NonOwnerMissIsNotFound(t *testing.T) {
	svc, repo, _ := newTestService(t)

	res := svc.FetchProfile(as("u2"), "u1", false)
	assert.ErrorIs(t, res.Err, ErrNotFound)
	assert.False(t, res.Found)
	assert.Equal(t, 0, repo.Calls("InsertProfile"))

	res = svc.FetchProfile(context.Background(), "u1", false)
	assert.ErrorIs(t, res.Err, ErrNotFound)
}

func TestUpdatePostCache_ReplacesAndPrepends(t *testing.T) {
	svc, _, _ := newTestService(t)

	svc.allPosts.Set("", []model.Post{{ID: "1", UserID: "u1"}, {ID: "2", UserID: "u2"}})
	svc.userPosts.Set("u1", []model.Post{{ID: "1", UserID: "u1"}})

	svc.UpdatePostCache(model.Post{ID: "1", UserID: "u1", Content: "x"})

	all, ok := svc.allPosts.Get("")
	require.True(t, ok)
	require.Len(t, all, 2)
	assert.Equal(t, "x", all[0].Content)
	assert.Equal(t, "2", all[1].ID)

	mine, ok := svc.userPosts.Get("u1")
	require.True(t, ok)
	require.Len(t, mine, 1)
	assert.Equal(t, "x", mine[0].Content)

	svc.UpdatePostCache(model.Post{ID: "3", UserID: "u1"})
	all, _ = svc.allPosts.Get("")
	mine, _ = svc.userPosts.Get("u1")
	assert.Equal(t, []string{"3", "1", "2"}, ids(all))
	assert.Equal(t, []string{"3", "1"}, ids(mine))
}

func TestUpdatePostCache_LeavesUncachedListsAlone(t *testing.T) {
	svc, _, _ := newTestService(t)

	svc.UpdatePostCache(model.Post{ID: "1", UserID: "u1"})

	assert.False(t, svc.allPosts.Has(""))
	assert.False(t, svc.userPosts.Has("u1"))
}

func TestRemovePostFromCache(t *testing.T) {
	svc, _, _ := newTestService(t)

	svc.allPosts.Set("", []model.Post{{ID: "1", UserID: "u1"}, {ID: "2", UserID: "u2"}, {ID: "3", UserID: "u1"}})
	svc.userPosts.Set("u1", []model.Post{{ID: "1", UserID: "u1"}, {ID: "3", UserID: "u1"}})
	svc.userPosts.Set("u2", []model.Post{{ID: "2", UserID: "u2"}})

	svc.RemovePostFromCache("1")

	all, _ := svc.allPosts.Get("")
	u1, _ := svc.userPosts.Get("u1")
	u2, _ := svc.userPosts.Get("u2")
	assert.Equal(t, []string{"2", "3"}, ids(all))
	assert.Equal(t, []string{"3"}, ids(u1))
	assert.Equal(t, []string{"2"}, ids(u2))
}

func TestUpdateProfileCache_PatchesAuthors(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.allPosts.Set("", []model.Post{{ID: "1", UserID: "u1"}, {ID: "2", UserID: "u2"}})
	svc.userPosts.Set("u1", []model.Post{{ID: "1", UserID: "u1"}})

	svc.UpdateProfileCache(model.Profile{ID: "u1", Name: "Ada"})

	all, _ := svc.allPosts.Get("")
	require.NotNil(t, all[0].Author)
	assert.Equal(t, "Ada", all[0].Author.Name)
	assert.Nil(t, all[1].Author)

	mine, _ := svc.userPosts.Get("u1")
	assert.Equal(t, "Ada", mine[0].Author.Name)

	p, ok := svc.profiles.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "Ada", p.Name)
}

func TestForgetUserAndClearAll(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.profiles.Set("u1", model.Profile{ID: "u1"})
	svc.userPosts.Set("u1", nil)
	svc.profiles.Set("u2", model.Profile{ID: "u2"})
	svc.allPosts.Set("", nil)

	svc.ForgetUser("u1")
	assert.False(t, svc.profiles.Has("u1"))
	assert.False(t, svc.userPosts.Has("u1"))
	assert.True(t, svc.profiles.Has("u2"))

	svc.ClearAll()
	assert.Equal(t, 0, svc.CacheStats().Entries)
}

func TestDashboard_FetchesBoth(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.seedPost("p1", "u1", epoch)
	repo.seedPost("p2", "u2", epoch)

	d, err := svc.Dashboard(as("u1"))
	require.NoError(t, err)
	require.NoError(t, d.Profile.Err)
	require.NoError(t, d.Posts.Err)
	assert.Equal(t, "u1", d.Profile.Value.ID)
	assert.Equal(t, []string{"p1"}, ids(d.Posts.Value))

	_, err = svc.Dashboard(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDeletePost_InFlightRefreshDoesNotBringItBack(t *testing.T) {
	svc, repo, clock := newTestService(t)
	repo.seedPost("p1", "u1", epoch)
	repo.seedPost("p2", "u1", epoch.Add(time.Minute))
	svc.FetchPosts(context.Background(), false)
	clock.Advance(31 * time.Second)

	snapshot := repo.sorted(func(model.Post) bool { return true })
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	repo.listPostsHook = func(context.Context) ([]model.Post, error) {
		once.Do(func() { close(started) })
		<-release
		return snapshot, nil
	}

	res := svc.FetchPosts(context.Background(), false)
	require.True(t, res.Revalidating)
	<-started

	require.NoError(t, svc.DeletePost(as("u1"), "p2"))
	assert.Equal(t, []string{"p1"}, ids(svc.FetchPosts(context.Background(), false).Value))

	close(release)
	svc.WaitIdle()

	res = svc.FetchPosts(context.Background(), false)
	require.NoError(t, res.Err)
	assert.False(t, res.Stale)
	assert.Equal(t, []string{"p1"}, ids(res.Value))
}

func TestUpdateProfile_InFlightRefreshDoesNotOverwrite(t *testing.T) {
	svc, repo, clock := newTestService(t)
	repo.profiles["u1"] = model.Profile{ID: "u1", Name: "Old"}
	svc.FetchProfile(as("u1"), "u1", false)
	clock.Advance(31 * time.Second)

	old := model.Profile{ID: "u1", Name: "Old"}
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	repo.getProfileHook = func(_ context.Context, userID string) (*model.Profile, error) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(started)
			<-release
			return &old, nil
		}
		repo.mu.Lock()
		defer repo.mu.Unlock()
		p := repo.profiles[userID]
		return &p, nil
	}

	res := svc.FetchProfile(as("u1"), "u1", false)
	require.True(t, res.Revalidating)
	<-started

	_, err := svc.UpdateProfile(as("u1"), model.ProfileUpdate{Name: "New"})
	require.NoError(t, err)

	close(release)
	svc.WaitIdle()

	res = svc.FetchProfile(as("u1"), "u1", false)
	require.NoError(t, res.Err)
	assert.Equal(t, "New", res.Value.Name)
}

func TestFetchPosts_ForcedReadAfterEditIsCached(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.seedPost("p1", "u1", epoch)
	svc.RemovePostFromCache("p0")

	res := svc.FetchPosts(context.Background(), true)
	require.NoError(t, res.Err)
	assert.True(t, svc.allPosts.Has(""), "a read that starts after an edit is kept")
}
