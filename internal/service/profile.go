package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/repository"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// MaxAvatarSize is the largest accepted avatar upload.
const MaxAvatarSize = 2 << 20

const (
	maxNameLength  = 100
	maxAboutLength = 2000
)

var avatarExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

func validateProfileUpdate(u model.ProfileUpdate) error {
	if utf8.RuneCountInString(u.Name) > maxNameLength {
		return invalid("name", "must be at most %d characters", maxNameLength)
	}
	if utf8.RuneCountInString(u.About) > maxAboutLength {
		return invalid("about", "must be at most %d characters", maxAboutLength)
	}
	if u.LinkedIn != "" {
		parsed, err := url.Parse(u.LinkedIn)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return invalid("linkedin", "must be an http(s) URL")
		}
	}
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return invalid("email", "is not a valid address")
		}
	}
	return nil
}

// profileForWrite returns the caller's stored profile or a fresh default.
func (s *DataService) profileForWrite(ctx context.Context, caller model.Identity) (model.Profile, bool, error) {
	p, err := s.repo.GetProfile(ctx, caller.UserID)
	if err == nil {
		return *p, true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return model.DefaultProfile(caller.UserID, caller.Email), false, nil
	}
	return model.Profile{}, false, err
}

// UpdateProfile saves the caller's editable profile fields.
func (s *DataService) UpdateProfile(ctx context.Context, changes model.ProfileUpdate) (model.Profile, error) {
	caller, err := currentUser(ctx)
	if err != nil {
		return model.Profile{}, err
	}

	changes.Name = strings.TrimSpace(changes.Name)
	changes.About = strings.TrimSpace(changes.About)
	changes.LinkedIn = strings.TrimSpace(changes.LinkedIn)
	changes.Email = strings.TrimSpace(changes.Email)
	if err := validateProfileUpdate(changes); err != nil {
		return model.Profile{}, err
	}

	profile, _, err := s.profileForWrite(ctx, caller)
	if err != nil {
		s.countRemoteError("get_profile")
		return model.Profile{}, remote("save your profile", err)
	}

	profile.Name = changes.Name
	profile.About = changes.About
	profile.LinkedIn = changes.LinkedIn
	if changes.Email != "" {
		profile.Email = changes.Email
	}
	profile.UpdatedAt = s.now()

	if err := s.repo.UpsertProfile(ctx, &profile); err != nil {
		s.log.Errorw("failed to update profile", "user_id", caller.UserID, "error", err)
		s.countRemoteError("upsert_profile")
		return model.Profile{}, remote("save your profile", err)
	}

	s.UpdateProfileCache(profile)
	return profile, nil
}

// UploadAvatar stores an image as the caller's avatar and points the
// profile at it. The object key is stable per user so a new upload
// replaces the old one.
func (s *DataService) UploadAvatar(ctx context.Context, filename, contentType string, body []byte) (model.Profile, error) {
	caller, err := currentUser(ctx)
	if err != nil {
		return model.Profile{}, err
	}
	if s.objects == nil {
		return model.Profile{}, errors.New("avatar storage is not configured")
	}

	if len(body) == 0 {
		return model.Profile{}, invalid("avatar", "file is empty")
	}
	if len(body) > MaxAvatarSize {
		return model.Profile{}, invalid("avatar", "file is %s, the limit is %s",
			humanize.IBytes(uint64(len(body))), humanize.IBytes(MaxAvatarSize))
	}

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(body)
	}
	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if !strings.HasPrefix(contentType, "image/") {
		return model.Profile{}, invalid("avatar", "must be an image")
	}

	ext, ok := avatarExtensions[contentType]
	if !ok {
		ext = strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	}
	if ext == "" {
		ext = "img"
	}

	key := fmt.Sprintf("%s/avatar.%s", caller.UserID, ext)
	if err := s.objects.Put(ctx, key, contentType, body); err != nil {
		s.log.Errorw("failed to store avatar", "user_id", caller.UserID, "error", err)
		s.countRemoteError("put_avatar")
		return model.Profile{}, remote("upload your avatar", err)
	}
	avatarURL := fmt.Sprintf("%s?v=%d", s.objects.PublicURL(key), s.now().Unix())

	profile, exists, err := s.profileForWrite(ctx, caller)
	if err != nil {
		s.countRemoteError("get_profile")
		return model.Profile{}, remote("update your avatar", err)
	}
	if !exists {
		profile.UpdatedAt = s.now()
		if err := s.repo.InsertProfile(ctx, &profile); err != nil && !errors.Is(err, repository.ErrConflict) {
			s.countRemoteError("insert_profile")
			return model.Profile{}, remote("update your avatar", err)
		}
	}

	if err := s.repo.SetAvatarURL(ctx, caller.UserID, avatarURL); err != nil {
		s.countRemoteError("set_avatar")
		return model.Profile{}, remote("update your avatar", err)
	}

	profile.AvatarURL = avatarURL
	profile.UpdatedAt = s.now()
	s.UpdateProfileCache(profile)

	s.log.Infow("avatar updated", "user_id", caller.UserID, "bytes", len(body), "content_type", contentType)
	return profile, nil
}

// Dashboard is the signed-in user's own page.
type Dashboard struct {
	Profile Result[model.Profile]
	Posts   Result[[]model.Post]
}

// Dashboard loads the caller's profile and posts concurrently.
func (s *DataService) Dashboard(ctx context.Context) (Dashboard, error) {
	caller, err := currentUser(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Profile = s.FetchProfile(gctx, caller.UserID, false)
		return nil
	})
	g.Go(func() error {
		d.Posts = s.FetchUserPosts(gctx, caller.UserID, false)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
