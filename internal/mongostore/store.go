// Package mongostore keeps users and reminders in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"remindr/internal/models"
	"remindr/shared/reminders"
)

const (
	usersCollection     = "users"
	remindersCollection = "reminders"
)

// Store is a MongoDB-backed user and reminder store.
type Store struct {
	client    *mongo.Client
	users     *mongo.Collection
	reminders *mongo.Collection
	logger    *zerolog.Logger
}

// Connect opens a client for uri, verifies it with a ping and ensures indexes.
func Connect(ctx context.Context, uri, database string, logger *zerolog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		users:     db.Collection(usersCollection),
		reminders: db.Collection(remindersCollection),
		logger:    logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	if logger != nil {
		logger.Info().Str("database", database).Msg("mongo store initialized")
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	_, err = s.reminders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextOccurrence", Value: 1}}},
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create reminders indexes: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CreateUser inserts a new user. A duplicate email returns models.ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	doc := *u
	doc.Email = strings.ToLower(doc.Email)
	doc.CreatedAt = normalize(doc.CreatedAt)
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// CreateReminder inserts a new reminder.
func (s *Store) CreateReminder(ctx context.Context, r *models.Reminder) error {
	if _, err := s.reminders.InsertOne(ctx, normalizeReminder(*r)); err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

// GetReminder returns the reminder with id owned by ownerID.
func (s *Store) GetReminder(ctx context.Context, ownerID, id string) (*models.Reminder, error) {
	var r models.Reminder
	if err := s.reminders.FindOne(ctx, ownedFilter(ownerID, id)).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("find reminder: %w", err)
	}
	return &r, nil
}

// ListReminders returns all reminders of ownerID, newest first.
func (s *Store) ListReminders(ctx context.Context, ownerID string) ([]models.Reminder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	return s.find(ctx, bson.M{"ownerId": ownerID}, opts)
}

// UpdateReminder stores the owner-editable fields of r.
func (s *Store) UpdateReminder(ctx context.Context, r *models.Reminder) error {
	res, err := s.reminders.UpdateOne(ctx, ownedFilter(r.OwnerID, r.ID), editUpdate(r))
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteReminder removes the reminder with id owned by ownerID.
func (s *Store) DeleteReminder(ctx context.Context, ownerID, id string) error {
	res, err := s.reminders.DeleteOne(ctx, ownedFilter(ownerID, id))
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// FindReminders returns reminders matching the filter, in creation order.
func (s *Store) FindReminders(ctx context.Context, filter reminders.ReminderFilter) ([]models.Reminder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, reminderFilter(filter), opts)
}

// UpdateOccurrence applies a post-send update to a single document.
func (s *Store) UpdateOccurrence(ctx context.Context, id string, upd reminders.OccurrenceUpdate) error {
	res, err := s.reminders.UpdateOne(ctx, occurrenceFilter(id, upd.Expect), occurrenceUpdate(upd))
	if err != nil {
		return fmt.Errorf("update occurrence: %w", err)
	}
	if res.MatchedCount == 0 {
		if upd.Expect != nil {
			return reminders.ErrStale
		}
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Reminder, error) {
	cur, err := s.reminders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find reminders: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.Reminder
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode reminders: %w", err)
	}
	return out, nil
}
