package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mnemosyne-api/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore implements Store using MongoDB.
type MongoStore struct {
	client   *mongo.Client
	db       *mongo.Database
	accounts *mongo.Collection
	profiles *mongo.Collection
	posts    *mongo.Collection
	likes    *mongo.Collection
	log      *zap.SugaredLogger
}

// NewMongoStore connects to MongoDB and ensures indexes.
func NewMongoStore(uri, database string, log *zap.SugaredLogger) (*MongoStore, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("mongo_store")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		db:       db,
		accounts: db.Collection("accounts"),
		profiles: db.Collection("profiles"),
		posts:    db.Collection("posts"),
		likes:    db.Collection("likes"),
		log:      log,
	}

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.accounts: {{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
		s.posts: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		s.likes: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "post_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "post_id", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			log.Warnw("failed to create indexes", "collection", coll.Name(), "error", err)
		}
	}

	log.Infow("connected", "database", database)
	return s, nil
}

// GetProfile retrieves a profile by user ID.
func (s *MongoStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	err := s.profiles.FindOne(ctx, bson.M{"_id": userID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// InsertProfile creates a new profile document.
func (s *MongoStore) InsertProfile(ctx context.Context, p *model.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	if _, err := s.profiles.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// UpsertProfile inserts or overwrites the editable fields.
func (s *MongoStore) UpsertProfile(ctx context.Context, p *model.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	update := bson.M{
		"$set": bson.M{
			"email":      p.Email,
			"name":       p.Name,
			"about":      p.About,
			"linkedin":   p.LinkedIn,
			"updated_at": p.UpdatedAt,
		},
		"$setOnInsert": bson.M{"avatar_url": p.AvatarURL},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.profiles.UpdateOne(ctx, bson.M{"_id": p.ID}, update, opts); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// SetAvatarURL updates the avatar reference of an existing profile.
func (s *MongoStore) SetAvatarURL(ctx context.Context, userID, url string) error {
	result, err := s.profiles.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"avatar_url": url, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to set avatar: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) findPosts(ctx context.Context, filter bson.M) ([]model.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	posts := make([]model.Post, 0)
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return posts, nil
	}

	if err := s.decorate(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// decorate joins author profiles and like counts onto posts.
func (s *MongoStore) decorate(ctx context.Context, posts []model.Post) error {
	postIDs := make([]string, len(posts))
	userIDs := make([]string, 0, len(posts))
	seen := make(map[string]bool)
	for i, p := range posts {
		postIDs[i] = p.ID
		if !seen[p.UserID] {
			seen[p.UserID] = true
			userIDs = append(userIDs, p.UserID)
		}
	}

	cursor, err := s.profiles.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return fmt.Errorf("failed to load authors: %w", err)
	}
	var profiles []model.Profile
	if err := cursor.All(ctx, &profiles); err != nil {
		return fmt.Errorf("failed to decode authors: %w", err)
	}
	authors := make(map[string]*model.Author, len(profiles))
	for _, p := range profiles {
		authors[p.ID] = p.Author()
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"post_id": bson.M{"$in": postIDs}}}},
		{{Key: "$group", Value: bson.M{"_id": "$post_id", "count": bson.M{"$sum": 1}}}},
	}
	agg, err := s.likes.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("failed to count likes: %w", err)
	}
	var counts []struct {
		PostID string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := agg.All(ctx, &counts); err != nil {
		return fmt.Errorf("failed to decode like counts: %w", err)
	}
	likeCounts := make(map[string]int, len(counts))
	for _, c := range counts {
		likeCounts[c.PostID] = c.Count
	}

	for i := range posts {
		posts[i].Author = authors[posts[i].UserID]
		posts[i].LikeCount = likeCounts[posts[i].ID]
	}
	return nil
}

// ListPosts returns the whole feed, newest first.
func (s *MongoStore) ListPosts(ctx context.Context) ([]model.Post, error) {
	posts, err := s.findPosts(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

// ListPostsByUser returns the posts written by one user, newest first.
func (s *MongoStore) ListPostsByUser(ctx context.Context, userID string) ([]model.Post, error) {
	posts, err := s.findPosts(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list user posts: %w", err)
	}
	return posts, nil
}

// GetPost retrieves a single post by ID.
func (s *MongoStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	posts, err := s.findPosts(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	if len(posts) == 0 {
		return nil, ErrNotFound
	}
	return &posts[0], nil
}

// InsertPost creates a new post document.
func (s *MongoStore) InsertPost(ctx context.Context, p *model.Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if _, err := s.posts.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// DeletePost removes a post owned by userID and then its likes.
// Standalone servers have no transactions, so a crash between the two
// deletes leaves orphaned likes that no read path returns.
func (s *MongoStore) DeletePost(ctx context.Context, id, userID string) error {
	result, err := s.posts.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}

	if _, err := s.likes.DeleteMany(ctx, bson.M{"post_id": id}); err != nil {
		return fmt.Errorf("failed to delete likes: %w", err)
	}
	return nil
}

// AddLike records a like on an existing post.
func (s *MongoStore) AddLike(ctx context.Context, like *model.Like) error {
	n, err := s.posts.CountDocuments(ctx, bson.M{"_id": like.PostID})
	if err != nil {
		return fmt.Errorf("failed to check post: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now().UTC()
	}

	filter := bson.M{"user_id": like.UserID, "post_id": like.PostID}
	update := bson.M{"$setOnInsert": bson.M{"created_at": like.CreatedAt}}
	if _, err := s.likes.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to add like: %w", err)
	}
	return nil
}

// RemoveLike deletes a like if present.
func (s *MongoStore) RemoveLike(ctx context.Context, userID, postID string) error {
	if _, err := s.likes.DeleteOne(ctx, bson.M{"user_id": userID, "post_id": postID}); err != nil {
		return fmt.Errorf("failed to remove like: %w", err)
	}
	return nil
}

// CreateAccount stores new credentials.
func (s *MongoStore) CreateAccount(ctx context.Context, a *model.Account) error {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, err := s.accounts.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccountByEmail looks an account up by its login email.
func (s *MongoStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	var a model.Account
	err := s.accounts.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// Ping checks the MongoDB connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Stats returns document counts per collection.
func (s *MongoStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"dialect": "mongodb", "database": s.db.Name()}
	for _, coll := range []*mongo.Collection{s.accounts, s.profiles, s.posts, s.likes} {
		count, err := coll.EstimatedDocumentCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", coll.Name(), err)
		}
		stats["total_"+coll.Name()] = count
	}
	return stats, nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ensure MongoStore implements Store
var _ Store = (*MongoStore)(nil)
