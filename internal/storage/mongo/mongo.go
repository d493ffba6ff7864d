// Package mongo provides a MongoDB-backed implementation of the storage.Store interface.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Ensure MongoStore implements storage.Store
var _ storage.Store = (*MongoStore)(nil)

const (
	usersCollection  = "users"
	groupsCollection = "groups"
)

// MongoStore implements storage.Store on two collections: users, and groups
// holding one document per group with members and expenses embedded.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	groups *mongo.Collection
}

// New connects to uri, selects the database and ensures the indexes exist.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client: client,
		users:  db.Collection(usersCollection),
		groups: db.Collection(groupsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users email index: %w", err)
	}
	_, err = s.groups.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "members.user_id", Value: 1}}},
		{Keys: bson.D{{Key: "expenses.id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create groups indexes: %w", err)
	}
	return nil
}

// Ping checks the server is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateUser inserts a new user document.
func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.Contacts == nil {
		user.Contacts = []string{}
	}
	_, err := s.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

// GetUserByEmail retrieves a user by email address.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	user := &models.User{}
	err := s.users.FindOne(ctx, filter).Decode(user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Contacts == nil {
		user.Contacts = []string{}
	}
	return user, nil
}

// GetUsersByIDs retrieves multiple users keyed by ID.
func (s *MongoStore) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User)
	if len(ids) == 0 {
		return users, nil
	}
	list, err := s.findUsers(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, u := range list {
		users[u.ID] = u
	}
	return users, nil
}

// ListUsers returns every user ordered by name.
func (s *MongoStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.findUsers(ctx, bson.M{})
}

func (s *MongoStore) findUsers(ctx context.Context, filter any) ([]*models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "email", Value: 1}})
	cur, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	users := []*models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// UpdateUser overwrites the mutable profile fields of a user.
func (s *MongoStore) UpdateUser(ctx context.Context, user *models.User) (bool, error) {
	user.UpdatedAt = time.Now().Unix()
	res, err := s.users.UpdateByID(ctx, user.ID, bson.M{"$set": bson.M{
		"email":         user.Email,
		"name":          user.Name,
		"password_hash": user.PasswordHash,
		"fcm_token":     user.PushToken,
		"updated_at":    user.UpdatedAt,
	}})
	if mongo.IsDuplicateKeyError(err) {
		return false, storage.ErrDuplicateEmail
	}
	if err != nil {
		return false, fmt.Errorf("failed to update user: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// DeleteUser removes a user document.
func (s *MongoStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// AddContact adds contactID with $addToSet, so repeated calls are no-ops.
func (s *MongoStore) AddContact(ctx context.Context, userID, contactID string) (bool, error) {
	res, err := s.users.UpdateByID(ctx, userID, bson.M{"$addToSet": bson.M{"contacts": contactID}})
	if err != nil {
		return false, fmt.Errorf("failed to add contact: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// RemoveContact pulls contactID from the user's contact set.
func (s *MongoStore) RemoveContact(ctx context.Context, userID, contactID string) (bool, error) {
	res, err := s.users.UpdateByID(ctx, userID, bson.M{"$pull": bson.M{"contacts": contactID}})
	if err != nil {
		return false, fmt.Errorf("failed to remove contact: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// ListContacts resolves the user's contact set.
func (s *MongoStore) ListContacts(ctx context.Context, userID string) ([]*models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil || user == nil {
		return []*models.User{}, err
	}
	if len(user.Contacts) == 0 {
		return []*models.User{}, nil
	}
	return s.findUsers(ctx, bson.M{"_id": bson.M{"$in": user.Contacts}})
}

// CreateGroup inserts a new group document at version 1.
func (s *MongoStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if group.CreatedAt == 0 {
		group.CreatedAt = now
	}
	group.UpdatedAt = now
	group.Version = 1

	if _, err := s.groups.InsertOne(ctx, group); err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group document by ID.
func (s *MongoStore) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	return s.findGroup(ctx, bson.M{"_id": id})
}

// ListGroupsForUser returns the groups whose member list names userID.
func (s *MongoStore) ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.groups.Find(ctx, bson.M{"members.user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	groups := []*models.Group{}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode groups: %w", err)
	}
	return groups, nil
}

// SaveGroup replaces the document only if its version still matches.
func (s *MongoStore) SaveGroup(ctx context.Context, group *models.Group) error {
	expected := group.Version
	group.Version = expected + 1
	group.UpdatedAt = time.Now().Unix()

	res, err := s.groups.ReplaceOne(ctx, bson.M{"_id": group.ID, "version": expected}, group)
	if err != nil {
		group.Version = expected
		return fmt.Errorf("failed to update group: %w", err)
	}
	if res.MatchedCount == 0 {
		group.Version = expected
		return storage.ErrVersionConflict
	}
	return nil
}

// DeleteGroup removes a group document.
func (s *MongoStore) DeleteGroup(ctx context.Context, id string) (bool, error) {
	res, err := s.groups.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete group: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// FindGroupByExpense returns the group embedding the expense.
func (s *MongoStore) FindGroupByExpense(ctx context.Context, expenseID string) (*models.Group, error) {
	return s.findGroup(ctx, bson.M{"expenses.id": expenseID})
}

func (s *MongoStore) findGroup(ctx context.Context, filter bson.M) (*models.Group, error) {
	group := &models.Group{}
	err := s.groups.FindOne(ctx, filter).Decode(group)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}
