package services

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/trovia/backend/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already registered")
	ErrInvalidPassword = errors.New("invalid password")
)

// UserService is the account surface: registration/login for the auth
// handlers plus the lock-state accessor the policy evaluator writes through.
type UserService interface {
	UserStore
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.User, error)
	// ListLocked returns users whose flag lock is currently set. Used by the
	// locksweep job to re-evaluate dormant accounts.
	ListLocked(ctx context.Context) ([]*models.User, error)
}

type MongoUserService struct {
	client *mongo.Client
	db     *mongo.Database
	col    *mongo.Collection
}

type mongoFlagLockDoc struct {
	Locked         bool       `bson:"locked"`
	Reason         string     `bson:"reason,omitempty"`
	Since          *time.Time `bson:"since,omitempty"`
	Until          *time.Time `bson:"until,omitempty"`
	Strikes        int        `bson:"strikes"`
	LastReviewedAt *time.Time `bson:"last_reviewed_at,omitempty"`
}

type mongoUserDoc struct {
	ID           string           `bson:"_id"`
	Email        string           `bson:"email"`
	PasswordHash string           `bson:"password_hash"`
	Name         string           `bson:"name"`
	IsActive     bool             `bson:"is_active"`
	FlagLock     mongoFlagLockDoc `bson:"flag_lock"`
	CreatedAt    time.Time        `bson:"created_at"`
}

func NewMongoUserService(ctx context.Context, mongoURI, dbName string) (*MongoUserService, error) {
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
	col := db.Collection("users")

	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "flag_lock.locked", Value: 1}}},
	})

	log.Printf("MongoDB connected: db=%s collection=users", dbName)
	return &MongoUserService{client: client, db: db, col: col}, nil
}

func (s *MongoUserService) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func userDocToModel(d mongoUserDoc) *models.User {
	return &models.User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Name:         d.Name,
		IsActive:     d.IsActive,
		FlagLock: models.FlagLock{
			Locked:         d.FlagLock.Locked,
			Reason:         d.FlagLock.Reason,
			Since:          d.FlagLock.Since,
			Until:          d.FlagLock.Until,
			Strikes:        d.FlagLock.Strikes,
			LastReviewedAt: d.FlagLock.LastReviewedAt,
		},
		CreatedAt: d.CreatedAt,
	}
}

func flagLockToDoc(l models.FlagLock) mongoFlagLockDoc {
	return mongoFlagLockDoc{
		Locked:         l.Locked,
		Reason:         l.Reason,
		Since:          l.Since,
		Until:          l.Until,
		Strikes:        l.Strikes,
		LastReviewedAt: l.LastReviewedAt,
	}
}

func (s *MongoUserService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	doc := mongoUserDoc{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		Name:         req.Name,
		IsActive:     true,
		FlagLock:     mongoFlagLockDoc{},
		CreatedAt:    time.Now().UTC(),
	}

	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	return userDocToModel(doc), nil
}

func (s *MongoUserService) Login(ctx context.Context, req *models.LoginRequest) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var d mongoUserDoc
	if err := s.col.FindOne(ctx, bson.M{"email": req.Email}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(d.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidPassword
	}
	return userDocToModel(d), nil
}

func (s *MongoUserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var d mongoUserDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return userDocToModel(d), nil
}

// SaveLockState writes is_active and flag_lock as one update so readers
// never observe a locked account that is still active.
func (s *MongoUserService) SaveLockState(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"is_active": user.IsActive,
			"flag_lock": flagLockToDoc(user.FlagLock),
		},
	}

	res, err := s.col.UpdateOne(ctx, bson.M{"_id": user.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoUserService) ListLocked(ctx context.Context) ([]*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cur, err := s.col.Find(ctx, bson.M{"flag_lock.locked": true})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	users := make([]*models.User, 0)
	for cur.Next(ctx) {
		var d mongoUserDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		users = append(users, userDocToModel(d))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
