package model

import (
	"strings"
	"time"
)

// Interview modes accepted on a post.
const (
	ModeOnline  = "online"
	ModeOffline = "offline"
)

// Post is an interview experience shared by its author.
type Post struct {
	ID        string    `json:"id" db:"id" bson:"_id"`
	UserID    string    `json:"user_id" db:"user_id" bson:"user_id"`
	Heading   string    `json:"heading" db:"heading" bson:"heading"`
	Content   string    `json:"content" db:"content" bson:"content"`
	Position  string    `json:"position" db:"position" bson:"position"`
	Mode      string    `json:"mode" db:"mode" bson:"mode"`
	Selected  bool      `json:"selected" db:"selected" bson:"selected"`
	LikeCount int       `json:"like_count" db:"like_count" bson:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at" bson:"created_at"`

	// Author is filled on feed reads only.
	Author *Author `json:"author,omitempty" db:"-" bson:"-"`
}

// Author is the profile summary joined onto feed posts.
type Author struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	About     string `json:"about"`
	LinkedIn  string `json:"linkedin"`
}

// PostDraft is the author-supplied part of a new post.
type PostDraft struct {
	Heading  string `json:"heading"`
	Content  string `json:"content"`
	Position string `json:"position"`
	Mode     string `json:"mode"`
	Selected bool   `json:"selected"`
}

// Normalize trims whitespace and defaults the mode to online.
func (d PostDraft) Normalize() PostDraft {
	d.Heading = strings.TrimSpace(d.Heading)
	d.Content = strings.TrimSpace(d.Content)
	d.Position = strings.TrimSpace(d.Position)
	d.Mode = strings.ToLower(strings.TrimSpace(d.Mode))
	if d.Mode == "" {
		d.Mode = ModeOnline
	}
	return d
}

// Like records that a user liked a post.
type Like struct {
	UserID    string    `json:"user_id" db:"user_id" bson:"user_id"`
	PostID    string    `json:"post_id" db:"post_id" bson:"post_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at" bson:"created_at"`
}
