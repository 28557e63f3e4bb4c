package model

import "time"

// Account holds login credentials.
type Account struct {
	ID           string    `json:"id" db:"id" bson:"_id"`
	Email        string    `json:"email" db:"email" bson:"email"`
	PasswordHash string    `json:"-" db:"password_hash" bson:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at" bson:"created_at"`
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Session is what a successful login or signup hands back.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}
