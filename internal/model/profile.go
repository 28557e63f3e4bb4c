package model

import "time"

// Profile is the public face of a user. One per account, owned by it.
type Profile struct {
	ID        string    `json:"id" db:"id" bson:"_id"`
	Email     string    `json:"email,omitempty" db:"email" bson:"email"`
	Name      string    `json:"name" db:"name" bson:"name"`
	About     string    `json:"about" db:"about" bson:"about"`
	LinkedIn  string    `json:"linkedin" db:"linkedin" bson:"linkedin"`
	AvatarURL string    `json:"avatar_url" db:"avatar_url" bson:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// DefaultProfile is the empty record created the first time an owner
// reads their own profile.
func DefaultProfile(userID, email string) Profile {
	return Profile{
		ID:        userID,
		Email:     email,
		UpdatedAt: time.Now().UTC(),
	}
}

// Public returns the profile as other users see it.
func (p Profile) Public() Profile {
	p.Email = ""
	return p
}

// Author returns the summary embedded in posts.
func (p Profile) Author() *Author {
	return &Author{
		ID:        p.ID,
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
		About:     p.About,
		LinkedIn:  p.LinkedIn,
	}
}

// ProfileUpdate holds the user-editable profile fields.
type ProfileUpdate struct {
	Name     string `json:"name"`
	About    string `json:"about"`
	LinkedIn string `json:"linkedin"`
	Email    string `json:"email"`
}
