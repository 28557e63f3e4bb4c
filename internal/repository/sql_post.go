package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mnemosyne-api/internal/model"
)

// postRow is a post joined with its author's profile and like count.
type postRow struct {
	model.Post
	AuthorID        sql.NullString `db:"author_id"`
	AuthorName      sql.NullString `db:"author_name"`
	AuthorAvatarURL sql.NullString `db:"author_avatar_url"`
	AuthorAbout     sql.NullString `db:"author_about"`
	AuthorLinkedIn  sql.NullString `db:"author_linkedin"`
}

func (r postRow) toPost() model.Post {
	p := r.Post
	if r.AuthorID.Valid {
		p.Author = &model.Author{
			ID:        r.AuthorID.String,
			Name:      r.AuthorName.String,
			AvatarURL: r.AuthorAvatarURL.String,
			About:     r.AuthorAbout.String,
			LinkedIn:  r.AuthorLinkedIn.String,
		}
	}
	return p
}

const postSelect = `
	SELECT p.id, p.user_id, p.heading, p.content, p.position, p.mode, p.selected, p.created_at,
		(SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id) AS like_count,
		pr.id AS author_id, pr.name AS author_name, pr.avatar_url AS author_avatar_url,
		pr.about AS author_about, pr.linkedin AS author_linkedin
	FROM posts p
	LEFT JOIN profiles pr ON pr.id = p.user_id`

func (s *SQLStore) selectPosts(ctx context.Context, query string, args ...interface{}) ([]model.Post, error) {
	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, err
	}

	posts := make([]model.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.toPost())
	}
	return posts, nil
}

// ListPosts returns the whole feed, newest first.
func (s *SQLStore) ListPosts(ctx context.Context) ([]model.Post, error) {
	posts, err := s.selectPosts(ctx, postSelect+` ORDER BY p.created_at DESC, p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

// ListPostsByUser returns the posts written by one user, newest first.
func (s *SQLStore) ListPostsByUser(ctx context.Context, userID string) ([]model.Post, error) {
	posts, err := s.selectPosts(ctx, postSelect+` WHERE p.user_id = ? ORDER BY p.created_at DESC, p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user posts: %w", err)
	}
	return posts, nil
}

// GetPost retrieves a single post by ID.
func (s *SQLStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	posts, err := s.selectPosts(ctx, postSelect+` WHERE p.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	if len(posts) == 0 {
		return nil, ErrNotFound
	}
	return &posts[0], nil
}

// InsertPost creates a new post row.
func (s *SQLStore) InsertPost(ctx context.Context, p *model.Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO posts (id, user_id, heading, content, position, mode, selected, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.UserID, p.Heading, p.Content, p.Position, p.Mode, p.Selected, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// DeletePost removes a post and its likes in one transaction.
func (s *SQLStore) DeletePost(ctx context.Context, id, userID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, s.q(`DELETE FROM posts WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM likes WHERE post_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete likes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddLike records a like on an existing post.
func (s *SQLStore) AddLike(ctx context.Context, like *model.Like) error {
	var exists int
	if err := s.db.GetContext(ctx, &exists, s.q(`SELECT COUNT(*) FROM posts WHERE id = ?`), like.PostID); err != nil {
		return fmt.Errorf("failed to check post: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO likes (user_id, post_id, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id, post_id) DO NOTHING`
	if s.dialect == DialectMySQL {
		query = `INSERT IGNORE INTO likes (user_id, post_id, created_at) VALUES (?, ?, ?)`
	}

	if _, err := s.db.ExecContext(ctx, s.q(query), like.UserID, like.PostID, like.CreatedAt); err != nil {
		return fmt.Errorf("failed to add like: %w", err)
	}
	return nil
}

// RemoveLike deletes a like if present.
func (s *SQLStore) RemoveLike(ctx context.Context, userID, postID string) error {
	if _, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM likes WHERE user_id = ? AND post_id = ?`), userID, postID,
	); err != nil {
		return fmt.Errorf("failed to remove like: %w", err)
	}
	return nil
}
