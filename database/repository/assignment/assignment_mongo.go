package assignmentRepo

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

// AssignmentRepository is the read surface the reminder sweep needs.
type AssignmentRepository interface {
	// DueBetween returns assignments whose due date falls inside (from, to].
	DueBetween(ctx context.Context, from, to time.Time) ([]models.Assignment, error)
}

// MongoAssignmentRepo implements AssignmentRepository using MongoDB.
type MongoAssignmentRepo struct {
	coll *mongo.Collection
}

// NewMongoAssignmentRepo creates a new AssignmentRepository backed by MongoDB.
func NewMongoAssignmentRepo() AssignmentRepository {
	coll := database.MongoClient.Database(config.AppConfig.DatabaseName).Collection("assignments")
	repo := &MongoAssignmentRepo{coll: coll}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "dueDate", Value: 1}},
	})
	if err != nil {
		fmt.Printf("failed to create assignment indexes: %v\n", err)
	}
	return repo
}

func (r *MongoAssignmentRepo) DueBetween(ctx context.Context, from, to time.Time) ([]models.Assignment, error) {
	filter := bson.M{"dueDate": bson.M{"$gt": from, "$lte": to}}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "dueDate", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments due between %s and %s: %w", from, to, err)
	}
	defer cur.Close(ctx)

	var assignments []models.Assignment
	if err := cur.All(ctx, &assignments); err != nil {
		return nil, fmt.Errorf("failed to decode assignments: %w", err)
	}
	return assignments, nil
}
