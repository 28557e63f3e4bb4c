package service

import (
	"context"
	"errors"
	"unicode/utf8"

	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/session"
	"mnemosyne-api/pkg/uid"
)

const (
	maxHeadingLength = 200
	maxContentLength = 20000
)

func currentUser(ctx context.Context) (model.Identity, error) {
	id, ok := session.IdentityFromContext(ctx)
	if !ok || id.UserID == "" {
		return model.Identity{}, ErrUnauthenticated
	}
	return id, nil
}

func validateDraft(d model.PostDraft) error {
	switch {
	case d.Heading == "":
		return invalid("heading", "is required")
	case utf8.RuneCountInString(d.Heading) > maxHeadingLength:
		return invalid("heading", "must be at most %d characters", maxHeadingLength)
	case d.Content == "":
		return invalid("content", "is required")
	case utf8.RuneCountInString(d.Content) > maxContentLength:
		return invalid("content", "must be at most %d characters", maxContentLength)
	case d.Mode != model.ModeOnline && d.Mode != model.ModeOffline:
		return invalid("mode", "must be %q or %q", model.ModeOnline, model.ModeOffline)
	}
	return nil
}

// CreatePost publishes a post by the caller and adds it to cached lists.
func (s *DataService) CreatePost(ctx context.Context, draft model.PostDraft) (model.Post, error) {
	author, err := currentUser(ctx)
	if err != nil {
		return model.Post{}, err
	}

	draft = draft.Normalize()
	if err := validateDraft(draft); err != nil {
		return model.Post{}, err
	}

	post := model.Post{
		ID:        uid.New(),
		UserID:    author.UserID,
		Heading:   draft.Heading,
		Content:   draft.Content,
		Position:  draft.Position,
		Mode:      draft.Mode,
		Selected:  draft.Selected,
		CreatedAt: s.now(),
	}

	if err := s.repo.InsertPost(ctx, &post); err != nil {
		s.log.Errorw("failed to create post", "user_id", author.UserID, "error", err)
		s.countRemoteError("insert_post")
		return model.Post{}, remote("publish your post", err)
	}

	// Read back for the author summary; the insert already succeeded so a
	// failed read only costs the summary.
	if stored, err := s.repo.GetPost(ctx, post.ID); err == nil {
		post = *stored
	} else if cached, ok := s.profiles.Get(author.UserID); ok {
		post.Author = cached.Author()
	}

	s.UpdatePostCache(post)
	s.log.Infow("post created", "post_id", post.ID, "user_id", author.UserID)
	return post, nil
}

// GetPost reads one post from the backing store.
func (s *DataService) GetPost(ctx context.Context, id string) (model.Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warnw("failed to get post", "post_id", id, "error", err)
			s.countRemoteError("get_post")
		}
		return model.Post{}, remote("load the post", err)
	}
	return *post, nil
}

// DeletePost removes the caller's post in two phases: the post is dropped
// from cached lists first, then deleted remotely and read back. When the
// remote delete fails or the post is still readable, the lists are
// re-fetched so the optimistic edit does not outlive the truth.
func (s *DataService) DeletePost(ctx context.Context, id string) error {
	caller, err := currentUser(ctx)
	if err != nil {
		return err
	}

	existing, err := s.repo.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.RemovePostFromCache(id)
			return ErrNotFound
		}
		s.countRemoteError("get_post")
		return remote("delete the post", err)
	}
	if existing.UserID != caller.UserID {
		return ErrForbidden
	}

	s.RemovePostFromCache(id)

	if err := s.repo.DeletePost(ctx, id, caller.UserID); err != nil {
		s.log.Errorw("failed to delete post", "post_id", id, "error", err)
		s.countRemoteError("delete_post")
		s.resync(ctx, existing.UserID)
		return remote("delete the post", err)
	}

	_, err = s.repo.GetPost(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		// A list read between the first removal and the delete may have
		// put the post back.
		s.RemovePostFromCache(id)
		s.log.Infow("post deleted", "post_id", id, "user_id", caller.UserID)
		return nil
	case err == nil:
		s.log.Errorw("post still readable after delete", "post_id", id)
		s.resync(ctx, existing.UserID)
		return ErrDeleteNotApplied
	default:
		s.log.Warnw("could not verify delete", "post_id", id, "error", err)
		s.resync(ctx, existing.UserID)
		return nil
	}
}

// resync re-reads the feed and the author's list. A list that cannot be
// re-read is dropped so the next read goes to the backing store.
func (s *DataService) resync(ctx context.Context, authorID string) {
	if res := s.FetchPosts(ctx, true); res.Err != nil {
		s.allPosts.Invalidate("")
	}
	if res := s.FetchUserPosts(ctx, authorID, true); res.Err != nil {
		s.userPosts.Invalidate(authorID)
	}
}

// LikePost records the caller's like and refreshes the post's like count
// in cached lists.
func (s *DataService) LikePost(ctx context.Context, id string) (model.Post, error) {
	return s.toggleLike(ctx, id, true)
}

// UnlikePost removes the caller's like.
func (s *DataService) UnlikePost(ctx context.Context, id string) (model.Post, error) {
	return s.toggleLike(ctx, id, false)
}

func (s *DataService) toggleLike(ctx context.Context, id string, like bool) (model.Post, error) {
	caller, err := currentUser(ctx)
	if err != nil {
		return model.Post{}, err
	}

	op := "like_post"
	if like {
		err = s.repo.AddLike(ctx, &model.Like{UserID: caller.UserID, PostID: id, CreatedAt: s.now()})
	} else {
		op = "unlike_post"
		err = s.repo.RemoveLike(ctx, caller.UserID, id)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.RemovePostFromCache(id)
			return model.Post{}, ErrNotFound
		}
		s.countRemoteError(op)
		return model.Post{}, remote("update the like", err)
	}

	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.RemovePostFromCache(id)
			return model.Post{}, ErrNotFound
		}
		s.countRemoteError("get_post")
		return model.Post{}, remote("load the post", err)
	}

	s.UpdatePostCache(*post)
	return *post, nil
}
