package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"mnemosyne-api/internal/cache"
	"mnemosyne-api/internal/metrics"
	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/repository"
	"mnemosyne-api/internal/session"
	"mnemosyne-api/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache key prefixes. The feed lives under the bare "all_posts" key.
const (
	ProfilePrefix   = "profile_"
	AllPostsKey     = "all_posts"
	UserPostsPrefix = "user_posts_"
)

// postsGen is the generation key shared by every cached post list. A post
// edit can touch the feed and any author's list, cached or not.
const postsGen = "posts"

// DefaultRevalidateTimeout bounds a background refresh.
const DefaultRevalidateTimeout = 15 * time.Second

// Repository is the part of the backing store the data service reads and writes.
type Repository interface {
	repository.ProfileRepository
	repository.PostRepository
}

// Result is what a read hands back: the value to show, whether it is past
// its freshness window, whether a refresh is running in the background,
// and a user-visible error if the latest remote read failed.
type Result[T any] struct {
	Value        T
	Found        bool
	Stale        bool
	Revalidating bool
	Err          error
}

// DataConfig wires a DataService.
type DataConfig struct {
	Repo              Repository
	Cache             *cache.Store
	Objects           storage.ObjectStore
	Metrics           *metrics.Registry
	Logger            *zap.SugaredLogger
	Clock             cache.Clock
	RevalidateTimeout time.Duration
}

// DataService sits between handlers and the backing store. Reads go
// through the cache with stale-while-revalidate; writes update every
// affected cache key explicitly.
type DataService struct {
	repo    Repository
	cache   *cache.Store
	objects storage.ObjectStore
	metrics *metrics.Registry
	log     *zap.SugaredLogger
	clock   cache.Clock

	profiles  cache.Namespace[model.Profile]
	allPosts  cache.Namespace[[]model.Post]
	userPosts cache.Namespace[[]model.Post]

	// listMu serializes cache edits and guards gens.
	listMu sync.Mutex
	// gens counts edits per generation key. A remote read is only cached
	// when no edit touched its key while the read was in flight.
	gens map[string]uint64

	refreshes         singleflight.Group
	inflight          sync.WaitGroup
	revalidateTimeout time.Duration
}

// NewDataService creates a data service. Repo and Cache are required.
func NewDataService(cfg DataConfig) *DataService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = cache.SystemClock{}
	}
	if cfg.RevalidateTimeout <= 0 {
		cfg.RevalidateTimeout = DefaultRevalidateTimeout
	}

	return &DataService{
		repo:              cfg.Repo,
		cache:             cfg.Cache,
		objects:           cfg.Objects,
		metrics:           cfg.Metrics,
		log:               cfg.Logger.Named("data"),
		clock:             cfg.Clock,
		profiles:          cache.NewNamespace[model.Profile](cfg.Cache, ProfilePrefix),
		allPosts:          cache.NewNamespace[[]model.Post](cfg.Cache, AllPostsKey),
		userPosts:         cache.NewNamespace[[]model.Post](cfg.Cache, UserPostsPrefix),
		gens:              make(map[string]uint64),
		revalidateTimeout: cfg.RevalidateTimeout,
	}
}

// resource describes one cacheable read.
type resource[T any] struct {
	name string
	ns   cache.Namespace[T]
	id   string
	gen  string
	load func(ctx context.Context) (T, error)
}

func (s *DataService) generation(key string) uint64 {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	return s.gens[key]
}

// bump marks keys as edited. Callers hold listMu.
func (s *DataService) bump(keys ...string) {
	for _, k := range keys {
		s.gens[k]++
	}
}

// settle caches a remote read taken at generation gen. It reports false
// when an edit landed in the meantime and the read was dropped.
func settle[T any](s *DataService, r resource[T], gen uint64, value T) bool {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	if s.gens[r.gen] != gen {
		return false
	}
	r.ns.Set(r.id, value)
	return true
}

func fetch[T any](ctx context.Context, s *DataService, r resource[T], force bool) Result[T] {
	var (
		previous T
		havePrev bool
	)

	if force {
		previous, havePrev = r.ns.Get(r.id)
	} else {
		value, found, stale := r.ns.GetStaleWhileRevalidate(r.id)
		if found && !stale {
			return Result[T]{Value: value, Found: true}
		}
		if found {
			revalidate(ctx, s, r)
			return Result[T]{Value: value, Found: true, Stale: true, Revalidating: true}
		}
	}

	gen := s.generation(r.gen)
	value, err := r.load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.ns.Invalidate(r.id)
			return Result[T]{Err: ErrNotFound}
		}

		s.log.Warnw("remote read failed", "resource", r.name, "id", r.id, "error", err)
		s.countRemoteError("load_" + r.name)
		rerr := remote("load "+humanName(r.name), err)
		if havePrev {
			return Result[T]{Value: previous, Found: true, Stale: true, Err: rerr}
		}
		return Result[T]{Err: rerr}
	}

	if !settle(s, r, gen, value) {
		s.log.Debugw("dropped superseded read", "resource", r.name, "id", r.id)
	}
	return Result[T]{Value: value, Found: true}
}

// revalidate refreshes r in the background. Concurrent refreshes of the
// same key share one remote read. The refresh outlives the request.
func revalidate[T any](ctx context.Context, s *DataService, r resource[T]) {
	key := r.ns.Key(r.id)
	bg := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		landed, err, shared := s.refreshes.Do(key, func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(bg, s.revalidateTimeout)
			defer cancel()

			gen := s.generation(r.gen)
			value, err := r.load(ctx)
			if err != nil {
				return false, err
			}
			return settle(s, r, gen, value), nil
		})

		outcome := "ok"
		switch {
		case err == nil && !landed.(bool):
			outcome = "superseded"
		case errors.Is(err, ErrNotFound):
			r.ns.Invalidate(r.id)
			outcome = "gone"
		case err != nil:
			outcome = "error"
			s.log.Warnw("background refresh failed", "key", key, "error", err)
		}
		if shared {
			outcome = "shared"
		}
		if s.metrics != nil {
			s.metrics.RevalidationsTotal.WithLabelValues(r.name, outcome).Inc()
		}
	}()
}

// WaitIdle blocks until every background refresh has finished.
func (s *DataService) WaitIdle() {
	s.inflight.Wait()
}

func (s *DataService) countRemoteError(op string) {
	if s.metrics != nil {
		s.metrics.RemoteErrorsTotal.WithLabelValues(op).Inc()
	}
}

func (s *DataService) now() time.Time {
	return s.clock.Now().UTC()
}

func humanName(resource string) string {
	switch resource {
	case "all_posts":
		return "posts"
	case "user_posts":
		return "user posts"
	default:
		return resource
	}
}

// FetchProfile reads a user's profile. When the profile does not exist yet
// and the caller is its owner, an empty one is created; anyone else gets
// ErrNotFound.
func (s *DataService) FetchProfile(ctx context.Context, userID string, force bool) Result[model.Profile] {
	return fetch(ctx, s, resource[model.Profile]{
		name: "profile",
		ns:   s.profiles,
		id:   userID,
		gen:  s.profiles.Key(userID),
		load: func(ctx context.Context) (model.Profile, error) {
			return s.loadProfile(ctx, userID)
		},
	}, force)
}

func (s *DataService) loadProfile(ctx context.Context, userID string) (model.Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err == nil {
		return *p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.Profile{}, err
	}

	viewer, ok := session.IdentityFromContext(ctx)
	if !ok || viewer.UserID != userID {
		return model.Profile{}, ErrNotFound
	}

	def := model.DefaultProfile(userID, viewer.Email)
	def.UpdatedAt = s.now()
	if err := s.repo.InsertProfile(ctx, &def); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Lost a race with another first access.
			p, err := s.repo.GetProfile(ctx, userID)
			if err != nil {
				return model.Profile{}, err
			}
			return *p, nil
		}
		return model.Profile{}, err
	}

	s.log.Infow("created default profile", "user_id", userID)
	return def, nil
}

// FetchPosts reads the whole feed, newest first.
func (s *DataService) FetchPosts(ctx context.Context, force bool) Result[[]model.Post] {
	return fetch(ctx, s, resource[[]model.Post]{
		name: "all_posts",
		ns:   s.allPosts,
		id:   "",
		gen:  postsGen,
		load: s.repo.ListPosts,
	}, force)
}

// FetchUserPosts reads one author's posts, newest first.
func (s *DataService) FetchUserPosts(ctx context.Context, userID string, force bool) Result[[]model.Post] {
	return fetch(ctx, s, resource[[]model.Post]{
		name: "user_posts",
		ns:   s.userPosts,
		id:   userID,
		gen:  postsGen,
		load: func(ctx context.Context) ([]model.Post, error) {
			return s.repo.ListPostsByUser(ctx, userID)
		},
	}, force)
}

// upsertPost replaces the post with the same id in place or prepends it.
// The input slice is never modified.
func upsertPost(list []model.Post, post model.Post) []model.Post {
	out := make([]model.Post, 0, len(list)+1)
	replaced := false
	for _, p := range list {
		if p.ID == post.ID {
			out = append(out, post)
			replaced = true
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		out = append([]model.Post{post}, out...)
	}
	return out
}

func removePost(list []model.Post, id string) ([]model.Post, bool) {
	out := make([]model.Post, 0, len(list))
	for _, p := range list {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out, len(out) != len(list)
}

// UpdatePostCache writes post into the feed and its author's list,
// replacing an existing entry by id or prepending a new one. Lists that
// are not cached are left alone.
func (s *DataService) UpdatePostCache(post model.Post) {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	s.bump(postsGen)

	if list, ok := s.allPosts.Get(""); ok {
		s.allPosts.Set("", upsertPost(list, post))
	}
	if list, ok := s.userPosts.Get(post.UserID); ok {
		s.userPosts.Set(post.UserID, upsertPost(list, post))
	}
}

// RemovePostFromCache drops the post with id from every cached list.
func (s *DataService) RemovePostFromCache(id string) {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	s.bump(postsGen)

	if list, ok := s.allPosts.Get(""); ok {
		if out, changed := removePost(list, id); changed {
			s.allPosts.Set("", out)
		}
	}
	for _, userID := range s.userPosts.IDs() {
		list, ok := s.userPosts.Get(userID)
		if !ok {
			continue
		}
		if out, changed := removePost(list, id); changed {
			s.userPosts.Set(userID, out)
		}
	}
}

// UpdateProfileCache overwrites the cached profile and the author summary
// on that user's posts in every cached list.
func (s *DataService) UpdateProfileCache(profile model.Profile) {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	s.bump(s.profiles.Key(profile.ID), postsGen)

	s.profiles.Set(profile.ID, profile)

	patch := func(list []model.Post) ([]model.Post, bool) {
		changed := false
		out := make([]model.Post, len(list))
		for i, p := range list {
			if p.UserID == profile.ID {
				p.Author = profile.Author()
				changed = true
			}
			out[i] = p
		}
		return out, changed
	}

	if list, ok := s.allPosts.Get(""); ok {
		if out, changed := patch(list); changed {
			s.allPosts.Set("", out)
		}
	}
	if list, ok := s.userPosts.Get(profile.ID); ok {
		if out, changed := patch(list); changed {
			s.userPosts.Set(profile.ID, out)
		}
	}
}

// ForgetUser drops the cache keys that belong to one user.
func (s *DataService) ForgetUser(userID string) {
	s.profiles.Invalidate(userID)
	s.userPosts.Invalidate(userID)
}

// ClearAll drops every cached entry.
func (s *DataService) ClearAll() {
	s.cache.Clear()
	s.log.Infow("cache cleared")
}

// CacheStats reports what the cache currently holds.
func (s *DataService) CacheStats() cache.Stats {
	stats := s.cache.Stats()
	if s.metrics != nil {
		s.metrics.CacheEntries.Set(float64(stats.Entries))
	}
	return stats
}

// Ping checks the backing store.
func (s *DataService) Ping(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := s.repo.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
