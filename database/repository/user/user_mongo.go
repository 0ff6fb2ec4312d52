package userRepo

import (
	"context"
	"fmt"
	"time"

	"campushub/config"
	"campushub/database"
	"campushub/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUserRepo implements UserRepository using MongoDB.
type MongoUserRepo struct {
	coll       *mongo.Collection
	enrollColl *mongo.Collection
}

// NewMongoUserRepo creates a new instance of UserRepository using MongoDB.
func NewMongoUserRepo() UserRepository {
	db := database.MongoClient.Database(config.AppConfig.DatabaseName)
	repo := &MongoUserRepo{
		coll:       db.Collection("users"),
		enrollColl: db.Collection("enrollments"),
	}

	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

// newContext creates a context with the given timeout.
func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// ensureIndexes creates indexes for fields frequently used in queries.
func (r *MongoUserRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "institutionId", Value: 1}, {Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "branchId", Value: 1}, {Key: "active", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	enrollIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "courseId", Value: 1}, {Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	}
	if _, err := r.enrollColl.Indexes().CreateMany(ctx, enrollIndexes); err != nil {
		return fmt.Errorf("failed to create enrollment indexes: %w", err)
	}
	return nil
}

// GetByID retrieves a user by its unique ID.
func (r *MongoUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to fetch user with id %s: %w", id, err)
	}
	return &user, nil
}

// GetByIDs retrieves the users for the given IDs; missing IDs are skipped.
func (r *MongoUserRepo) GetByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.coll.Find(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// activeIDs runs a filter against the users collection projecting only ids.
func (r *MongoUserRepo) activeIDs(ctx context.Context, filter bson.M) ([]string, error) {
	filter["active"] = true
	opts := options.Find().SetProjection(bson.M{"id": 1})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

func (r *MongoUserRepo) ActiveUserIDs(ctx context.Context) ([]string, error) {
	return r.activeIDs(ctx, bson.M{})
}

func (r *MongoUserRepo) ActiveUserIDsByRole(ctx context.Context, role models.Role) ([]string, error) {
	return r.activeIDs(ctx, bson.M{"role": role})
}

func (r *MongoUserRepo) ActiveUserIDsByInstitution(ctx context.Context, institutionID string) ([]string, error) {
	return r.activeIDs(ctx, bson.M{"institutionId": institutionID})
}

func (r *MongoUserRepo) ActiveUserIDsByBranch(ctx context.Context, branchID string) ([]string, error) {
	return r.activeIDs(ctx, bson.M{"branchId": branchID})
}

// ActiveUserIDsByCourse resolves course membership through active
// enrollments, then drops users that were deactivated since enrolling.
func (r *MongoUserRepo) ActiveUserIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	cur, err := r.enrollColl.Find(ctx,
		bson.M{"courseId": courseID, "active": true},
		options.Find().SetProjection(bson.M{"userId": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments for course %s: %w", courseID, err)
	}
	defer cur.Close(ctx)

	var enrolled []string
	for cur.Next(ctx) {
		var doc struct {
			UserID string `bson:"userId"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode enrollment: %w", err)
		}
		enrolled = append(enrolled, doc.UserID)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(enrolled) == 0 {
		return nil, nil
	}
	return r.activeIDs(ctx, bson.M{"id": bson.M{"$in": enrolled}})
}
