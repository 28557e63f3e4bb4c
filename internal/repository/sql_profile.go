package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mnemosyne-api/internal/model"
)

const profileColumns = `id, email, name, about, linkedin, avatar_url, updated_at`

// GetProfile retrieves a profile by user ID.
func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	err := s.db.GetContext(ctx, &p, s.q(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// InsertProfile creates a new profile row.
func (s *SQLStore) InsertProfile(ctx context.Context, p *model.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.Email, p.Name, p.About, p.LinkedIn, p.AvatarURL, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// UpsertProfile inserts or overwrites the editable fields. An existing
// avatar is left alone; use SetAvatarURL for that.
func (s *SQLStore) UpsertProfile(ctx context.Context, p *model.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	query := `INSERT INTO profiles (` + profileColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)` +
		s.upsertClause("id", "email", "name", "about", "linkedin", "updated_at")

	if _, err := s.db.ExecContext(ctx, s.q(query),
		p.ID, p.Email, p.Name, p.About, p.LinkedIn, p.AvatarURL, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// SetAvatarURL updates the avatar reference of an existing profile.
func (s *SQLStore) SetAvatarURL(ctx context.Context, userID, url string) error {
	result, err := s.db.ExecContext(ctx,
		s.q(`UPDATE profiles SET avatar_url = ?, updated_at = ? WHERE id = ?`),
		url, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set avatar: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
