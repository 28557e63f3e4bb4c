package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"mnemosyne-api/internal/cache"
	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/repository"
	"mnemosyne-api/internal/session"
)

// fakeRepo is an in-memory Repository. Hooks replace individual methods
// when a test needs a failure or a delay.
type fakeRepo struct {
	mu       sync.Mutex
	profiles map[string]model.Profile
	posts    map[string]model.Post
	likes    map[[2]string]bool
	accounts map[string]model.Account
	calls    map[string]int

	listPostsHook  func(ctx context.Context) ([]model.Post, error)
	getProfileHook func(ctx context.Context, userID string) (*model.Profile, error)
	deletePostHook func(ctx context.Context, id, userID string) error
	getPostHook    func(ctx context.Context, id string) (*model.Post, error)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		profiles: make(map[string]model.Profile),
		posts:    make(map[string]model.Post),
		likes:    make(map[[2]string]bool),
		accounts: make(map[string]model.Account),
		calls:    make(map[string]int),
	}
}

func (f *fakeRepo) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeRepo) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRepo) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	f.count("GetProfile")
	if f.getProfileHook != nil {
		return f.getProfileHook(ctx, userID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakeRepo) InsertProfile(_ context.Context, p *model.Profile) error {
	f.count("InsertProfile")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[p.ID]; ok {
		return repository.ErrConflict
	}
	f.profiles[p.ID] = *p
	return nil
}

func (f *fakeRepo) UpsertProfile(_ context.Context, p *model.Profile) error {
	f.count("UpsertProfile")
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.profiles[p.ID]
	next := *p
	if ok {
		next.AvatarURL = existing.AvatarURL
	}
	f.profiles[p.ID] = next
	return nil
}

func (f *fakeRepo) SetAvatarURL(_ context.Context, userID, url string) error {
	f.count("SetAvatarURL")
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return repository.ErrNotFound
	}
	p.AvatarURL = url
	f.profiles[userID] = p
	return nil
}

// decorate must be called with mu held.
func (f *fakeRepo) decorate(p model.Post) model.Post {
	n := 0
	for k := range f.likes {
		if k[1] == p.ID {
			n++
		}
	}
	p.LikeCount = n
	if prof, ok := f.profiles[p.UserID]; ok {
		p.Author = prof.Author()
	}
	return p
}

func (f *fakeRepo) sorted(filter func(model.Post) bool) []model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Post, 0)
	for _, p := range f.posts {
		if filter(p) {
			out = append(out, f.decorate(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeRepo) ListPosts(ctx context.Context) ([]model.Post, error) {
	f.count("ListPosts")
	if f.listPostsHook != nil {
		return f.listPostsHook(ctx)
	}
	return f.sorted(func(model.Post) bool { return true }), nil
}

func (f *fakeRepo) ListPostsByUser(_ context.Context, userID string) ([]model.Post, error) {
	f.count("ListPostsByUser")
	return f.sorted(func(p model.Post) bool { return p.UserID == userID }), nil
}

func (f *fakeRepo) GetPost(ctx context.Context, id string) (*model.Post, error) {
	f.count("GetPost")
	if f.getPostHook != nil {
		return f.getPostHook(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p = f.decorate(p)
	return &p, nil
}

func (f *fakeRepo) InsertPost(_ context.Context, p *model.Post) error {
	f.count("InsertPost")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[p.ID] = *p
	return nil
}

func (f *fakeRepo) DeletePost(ctx context.Context, id, userID string) error {
	f.count("DeletePost")
	if f.deletePostHook != nil {
		return f.deletePostHook(ctx, id, userID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok || p.UserID != userID {
		return repository.ErrNotFound
	}
	delete(f.posts, id)
	for k := range f.likes {
		if k[1] == id {
			delete(f.likes, k)
		}
	}
	return nil
}

func (f *fakeRepo) AddLike(_ context.Context, like *model.Like) error {
	f.count("AddLike")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[like.PostID]; !ok {
		return repository.ErrNotFound
	}
	f.likes[[2]string{like.UserID, like.PostID}] = true
	return nil
}

func (f *fakeRepo) RemoveLike(_ context.Context, userID, postID string) error {
	f.count("RemoveLike")
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.likes, [2]string{userID, postID})
	return nil
}

func (f *fakeRepo) CreateAccount(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[a.Email]; ok {
		return repository.ErrConflict
	}
	f.accounts[a.Email] = *a
	return nil
}

func (f *fakeRepo) GetAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (f *fakeRepo) seedPost(id, userID string, createdAt time.Time) model.Post {
	p := model.Post{ID: id, UserID: userID, Heading: "h" + id, Content: "c" + id, Mode: model.ModeOnline, CreatedAt: createdAt}
	f.mu.Lock()
	f.posts[id] = p
	f.mu.Unlock()
	return p
}

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*DataService, *fakeRepo, *cache.ManualClock) {
	t.Helper()
	clock := cache.NewManualClock(epoch)
	repo := newFakeRepo()
	svc := NewDataService(DataConfig{
		Repo:  repo,
		Cache: cache.NewStore(cache.WithClock(clock)),
		Clock: clock,
	})
	t.Cleanup(svc.WaitIdle)
	return svc, repo, clock
}

func as(userID string) context.Context {
	return session.WithIdentity(context.Background(), model.Identity{UserID: userID, Email: userID + "@example.com"}, "token")
}

func ids(posts []model.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
