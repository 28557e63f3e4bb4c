package repository

import (
	"context"
	"errors"

	"mnemosyne-api/internal/model"
)

// Sentinel errors shared by every backend.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a uniqueness constraint was violated.
	ErrConflict = errors.New("record already exists")
)

// ProfileRepository defines profile data access methods.
type ProfileRepository interface {
	// GetProfile returns ErrNotFound if the user has no profile yet.
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)

	// InsertProfile creates a profile. Returns ErrConflict if one exists.
	InsertProfile(ctx context.Context, profile *model.Profile) error

	// UpsertProfile creates or replaces the editable fields of a profile.
	UpsertProfile(ctx context.Context, profile *model.Profile) error

	// SetAvatarURL updates only the avatar reference.
	SetAvatarURL(ctx context.Context, userID, url string) error
}

// PostRepository defines post and like data access methods.
type PostRepository interface {
	// ListPosts returns every post newest first with author summaries.
	ListPosts(ctx context.Context) ([]model.Post, error)

	// ListPostsByUser returns a user's posts newest first.
	ListPostsByUser(ctx context.Context, userID string) ([]model.Post, error)

	// GetPost returns ErrNotFound if the post does not exist.
	GetPost(ctx context.Context, id string) (*model.Post, error)

	// InsertPost stores a new post.
	InsertPost(ctx context.Context, post *model.Post) error

	// DeletePost removes the post owned by userID together with its likes.
	// Returns ErrNotFound if no such post belongs to userID.
	DeletePost(ctx context.Context, id, userID string) error

	// AddLike records a like. Liking twice is not an error.
	AddLike(ctx context.Context, like *model.Like) error

	// RemoveLike deletes a like. Removing a missing like is not an error.
	RemoveLike(ctx context.Context, userID, postID string) error
}

// AccountRepository defines credential data access methods.
type AccountRepository interface {
	// CreateAccount returns ErrConflict if the email is taken.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccountByEmail returns ErrNotFound for unknown emails.
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
}

// Store bundles every repository a backend provides.
type Store interface {
	ProfileRepository
	PostRepository
	AccountRepository

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Stats returns backend statistics for the admin endpoint.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}
