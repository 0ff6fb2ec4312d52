package notificationRepo

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

// MongoNotificationRepo implements NotificationRepository using MongoDB.
type MongoNotificationRepo struct {
	coll          *mongo.Collection
	recipientColl *mongo.Collection
}

// NewMongoNotificationRepo creates a new NotificationRepository backed by MongoDB.
func NewMongoNotificationRepo() NotificationRepository {
	db := database.MongoClient.Database(config.AppConfig.DatabaseName)
	repo := &MongoNotificationRepo{
		coll:          db.Collection("notifications"),
		recipientColl: db.Collection("notification_recipients"),
	}

	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func (r *MongoNotificationRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	notifIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		// Due-scan query: pending schedules ordered by fire time.
		{Keys: bson.D{{Key: "scheduledFor", Value: 1}, {Key: "sentAt", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, notifIndexes); err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}

	recipientIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "notificationId", Value: 1}, {Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := r.recipientColl.Indexes().CreateMany(ctx, recipientIndexes); err != nil {
		return fmt.Errorf("failed to create recipient indexes: %w", err)
	}
	return nil
}

func (r *MongoNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to insert notification %s: %w", n.ID, err)
	}
	return nil
}

func (r *MongoNotificationRepo) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&n); err != nil {
		return nil, fmt.Errorf("failed to fetch notification %s: %w", id, err)
	}
	return &n, nil
}

func (r *MongoNotificationRepo) DueForDispatch(ctx context.Context, now time.Time, limit int64) ([]models.Notification, error) {
	filter := bson.M{
		"scheduledFor": bson.M{"$ne": nil, "$lte": now},
		"sentAt":       nil,
		"canceled":     false,
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduledFor", Value: 1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query due notifications: %w", err)
	}
	defer cur.Close(ctx)

	var due []models.Notification
	if err := cur.All(ctx, &due); err != nil {
		return nil, fmt.Errorf("failed to decode due notifications: %w", err)
	}
	return due, nil
}

func (r *MongoNotificationRepo) UpcomingWithin(ctx context.Context, now time.Time, horizon time.Duration) ([]models.Notification, error) {
	filter := bson.M{
		"scheduledFor": bson.M{"$gt": now, "$lte": now.Add(horizon)},
		"sentAt":       nil,
		"canceled":     false,
	}
	cur, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming notifications: %w", err)
	}
	defer cur.Close(ctx)

	var upcoming []models.Notification
	if err := cur.All(ctx, &upcoming); err != nil {
		return nil, fmt.Errorf("failed to decode upcoming notifications: %w", err)
	}
	return upcoming, nil
}

// ClaimForDispatch is the idempotence point for scheduled delivery: the
// sentAt write only happens where sentAt is still null, so overlapping scan
// passes and armed one-shot timers cannot both dispatch the same
// notification.
func (r *MongoNotificationRepo) ClaimForDispatch(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "sentAt": nil, "canceled": false},
		bson.M{"$set": bson.M{"sentAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification %s: %w", id, err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoNotificationRepo) Cancel(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "sentAt": nil},
		bson.M{"$set": bson.M{"canceled": true}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel notification %s: %w", id, err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoNotificationRepo) MarkDelivered(ctx context.Context, notificationID string, userIDs []string, at time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(userIDs))
	for _, uid := range userIDs {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"notificationId": notificationID, "userId": uid}).
			SetUpdate(bson.M{
				"$set":         bson.M{"isDelivered": true, "deliveredAt": at},
				"$setOnInsert": bson.M{"isRead": false, "createdAt": at},
			}).
			SetUpsert(true))
	}
	if _, err := r.recipientColl.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to mark recipients delivered for %s: %w", notificationID, err)
	}
	return nil
}

func (r *MongoNotificationRepo) MarkRead(ctx context.Context, notificationID, userID string, at time.Time) error {
	_, err := r.recipientColl.UpdateOne(ctx,
		bson.M{"notificationId": notificationID, "userId": userID},
		bson.M{
			"$set":         bson.M{"isRead": true, "readAt": at},
			"$setOnInsert": bson.M{"isDelivered": false, "createdAt": at},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read for %s: %w", notificationID, userID, err)
	}
	return nil
}

func (r *MongoNotificationRepo) ListForUser(ctx context.Context, userID string, limit int64) ([]UserNotification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	cur, err := r.recipientColl.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipient records for %s: %w", userID, err)
	}
	defer cur.Close(ctx)

	var records []models.RecipientRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode recipient records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.NotificationID)
	}
	ncur, err := r.coll.Find(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	defer ncur.Close(ctx)

	byID := make(map[string]models.Notification, len(ids))
	var notifs []models.Notification
	if err := ncur.All(ctx, &notifs); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	for _, n := range notifs {
		byID[n.ID] = n
	}

	out := make([]UserNotification, 0, len(records))
	for _, rec := range records {
		n, ok := byID[rec.NotificationID]
		if !ok {
			continue // cleaned up since the record was written
		}
		out = append(out, UserNotification{
			Notification: n,
			IsDelivered:  rec.IsDelivered,
			IsRead:       rec.IsRead,
		})
	}
	return out, nil
}

func (r *MongoNotificationRepo) DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	cutoff := now.Add(-retention)
	filter := bson.M{"$or": []bson.M{
		{"expiresAt": bson.M{"$ne": nil, "$lt": now}},
		{"createdAt": bson.M{"$lt": cutoff}},
	}}

	opts := options.Find().SetProjection(bson.M{"id": 1})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to query expired notifications: %w", err)
	}
	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"id"`
		}
		if err := cur.Decode(&doc); err != nil {
			cur.Close(ctx)
			return 0, fmt.Errorf("failed to decode expired notification: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	cur.Close(ctx)
	if err := cur.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := r.recipientColl.DeleteMany(ctx, bson.M{"notificationId": bson.M{"$in": ids}}); err != nil {
		return 0, fmt.Errorf("failed to delete expired recipient records: %w", err)
	}
	res, err := r.coll.DeleteMany(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	return res.DeletedCount, nil
}
