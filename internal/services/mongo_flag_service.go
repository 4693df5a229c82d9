package services

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trovia/backend/internal/models"
)

type MongoFlagService struct {
	client *mongo.Client
	db     *mongo.Database
	col    *mongo.Collection
}

type mongoFlagDoc struct {
	ID              string    `bson:"_id"`
	FlaggedUserID   string    `bson:"flagged_user_id"`
	CreatedByUserID string    `bson:"created_by_user_id,omitempty"`
	FlaggedUserRole string    `bson:"flagged_user_role"`
	OrderID         string    `bson:"order_id,omitempty"`
	ItemID          string    `bson:"item_id,omitempty"`
	Reason          string    `bson:"reason"`
	Status          string    `bson:"status"`
	AdminNotes      string    `bson:"admin_notes,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func NewMongoFlagService(ctx context.Context, mongoURI, dbName string) (*MongoFlagService, error) {
	// Atlas occasionally fails TLS negotiation in some environments unless we force TLS 1.2.
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS12,
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI).SetTLSConfig(tlsCfg))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	col := db.Collection("flags")

	// Best-effort indexes. The partial unique index backs the
	// one-flag-per-(order,item,accuser) invariant at the storage layer; the
	// service still checks explicitly so callers get a clean conflict error.
	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "flagged_user_id", Value: 1}, {Key: "flagged_user_role", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "item_id", Value: 1}, {Key: "created_by_user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"order_id":           bson.M{"$exists": true},
				"item_id":            bson.M{"$exists": true},
				"created_by_user_id": bson.M{"$exists": true},
			}),
		},
	})

	log.Printf("MongoDB connected: db=%s collection=flags", dbName)
	return &MongoFlagService{client: client, db: db, col: col}, nil
}

func (s *MongoFlagService) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func flagDocToModel(d mongoFlagDoc) *models.Flag {
	return &models.Flag{
		ID:              d.ID,
		FlaggedUserID:   d.FlaggedUserID,
		CreatedByUserID: d.CreatedByUserID,
		FlaggedUserRole: d.FlaggedUserRole,
		OrderID:         d.OrderID,
		ItemID:          d.ItemID,
		Reason:          d.Reason,
		Status:          d.Status,
		AdminNotes:      d.AdminNotes,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func flagModelToDoc(f *models.Flag) mongoFlagDoc {
	return mongoFlagDoc{
		ID:              f.ID,
		FlaggedUserID:   f.FlaggedUserID,
		CreatedByUserID: f.CreatedByUserID,
		FlaggedUserRole: f.FlaggedUserRole,
		OrderID:         f.OrderID,
		ItemID:          f.ItemID,
		Reason:          f.Reason,
		Status:          f.Status,
		AdminNotes:      f.AdminNotes,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

func (s *MongoFlagService) Insert(ctx context.Context, flag *models.Flag) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.col.InsertOne(ctx, flagModelToDoc(flag)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateFlag
		}
		return err
	}
	return nil
}

func (s *MongoFlagService) GetByID(ctx context.Context, id string) (*models.Flag, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var d mongoFlagDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrFlagNotFound
		}
		return nil, err
	}
	return flagDocToModel(d), nil
}

func (s *MongoFlagService) Update(ctx context.Context, flag *models.Flag) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"status":      flag.Status,
			"admin_notes": flag.AdminNotes,
			"updated_at":  flag.UpdatedAt,
		},
	}

	res, err := s.col.UpdateOne(ctx, bson.M{"_id": flag.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrFlagNotFound
	}
	return nil
}

func (s *MongoFlagService) List(ctx context.Context, filter models.FlagFilter) ([]*models.Flag, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{}
	if filter.FlaggedUserID != "" {
		query["flagged_user_id"] = filter.FlaggedUserID
	}
	if filter.CreatedByUserID != "" {
		query["created_by_user_id"] = filter.CreatedByUserID
	}
	if filter.FlaggedUserRole != "" {
		query["flagged_user_role"] = filter.FlaggedUserRole
	}
	if filter.OrderID != "" {
		query["order_id"] = filter.OrderID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.StoreID != "" {
		query["$or"] = []bson.M{
			{"flagged_user_id": filter.StoreID},
			{"created_by_user_id": filter.StoreID},
		}
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxFlagList {
		limit = maxFlagList
	}

	cur, err := s.col.Find(
		ctx,
		query,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	flags := make([]*models.Flag, 0)
	for cur.Next(ctx) {
		var d mongoFlagDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		flags = append(flags, flagDocToModel(d))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return flags, nil
}

func (s *MongoFlagService) HasFlagForTuple(ctx context.Context, orderID, itemID, createdByID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	n, err := s.col.CountDocuments(ctx, bson.M{
		"order_id":           orderID,
		"item_id":            itemID,
		"created_by_user_id": createdByID,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MongoFlagService) CountQualifying(ctx context.Context, userID, role string, since time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.col.CountDocuments(ctx, bson.M{
		"flagged_user_id":   userID,
		"flagged_user_role": role,
		"status":            bson.M{"$ne": models.FlagStatusDismissed},
		"created_at":        bson.M{"$gte": since},
	})
}
