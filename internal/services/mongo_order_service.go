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

	"github.com/trovia/backend/internal/models"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrNotParticipant    = errors.New("not a participant of this order")
)

// OrderService is the order surface consumed by handlers and, through
// OrderGetter, by flag identity derivation.
type OrderService interface {
	OrderGetter
	Create(ctx context.Context, buyerID string, req *models.CreateOrderRequest) (*models.Order, error)
	UpdateStatus(ctx context.Context, userID, orderID, status string) (*models.Order, error)
}

type MongoOrderService struct {
	client *mongo.Client
	db     *mongo.Database
	col    *mongo.Collection
}

type mongoOrderItemDoc struct {
	ID       string  `bson:"id"`
	Name     string  `bson:"name"`
	Price    float64 `bson:"price"`
	Quantity int     `bson:"quantity"`
}

type mongoOrderDoc struct {
	ID        string              `bson:"_id"`
	BuyerID   string              `bson:"buyer_id"`
	SellerID  string              `bson:"seller_id"`
	Items     []mongoOrderItemDoc `bson:"items"`
	Total     float64             `bson:"total"`
	Status    string              `bson:"status"`
	CreatedAt time.Time           `bson:"created_at"`
	UpdatedAt time.Time           `bson:"updated_at"`
}

func NewMongoOrderService(ctx context.Context, mongoURI, dbName string) (*MongoOrderService, error) {
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
	col := db.Collection("orders")

	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})

	log.Printf("MongoDB connected: db=%s collection=orders", dbName)
	return &MongoOrderService{client: client, db: db, col: col}, nil
}

func (s *MongoOrderService) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func orderDocToModel(d mongoOrderDoc) *models.Order {
	items := make([]models.OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, models.OrderItem{
			ID:       it.ID,
			Name:     it.Name,
			Price:    it.Price,
			Quantity: it.Quantity,
		})
	}
	return &models.Order{
		ID:        d.ID,
		BuyerID:   d.BuyerID,
		SellerID:  d.SellerID,
		Items:     items,
		Total:     d.Total,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (s *MongoOrderService) Create(ctx context.Context, buyerID string, req *models.CreateOrderRequest) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	order := &models.Order{
		ID:       uuid.New().String(),
		BuyerID:  buyerID,
		SellerID: req.SellerID,
		Status:   models.OrderStatusPending,
	}
	for _, it := range req.Items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:       uuid.New().String(),
			Name:     it.Name,
			Price:    it.Price,
			Quantity: qty,
		})
	}
	order.Total = order.ComputeTotal()
	order.CreatedAt = now
	order.UpdatedAt = now

	items := make([]mongoOrderItemDoc, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, mongoOrderItemDoc{
			ID:       it.ID,
			Name:     it.Name,
			Price:    it.Price,
			Quantity: it.Quantity,
		})
	}
	doc := mongoOrderDoc{
		ID:        order.ID,
		BuyerID:   order.BuyerID,
		SellerID:  order.SellerID,
		Items:     items,
		Total:     order.Total,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}

	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *MongoOrderService) GetByID(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var d mongoOrderDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return orderDocToModel(d), nil
}

// UpdateStatus advances the order through its lifecycle. Only the buyer or
// seller on the order may move it.
func (s *MongoOrderService) UpdateStatus(ctx context.Context, userID, orderID, status string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var d mongoOrderDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": orderID}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if d.BuyerID != userID && d.SellerID != userID {
		return nil, ErrNotParticipant
	}
	if !models.CanTransitionOrder(d.Status, status) {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	res := s.col.FindOneAndUpdate(
		ctx,
		bson.M{"_id": orderID, "status": d.Status},
		bson.M{"$set": bson.M{"status": status, "updated_at": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var updated mongoOrderDoc
	if err := res.Decode(&updated); err != nil {
		if err == mongo.ErrNoDocuments {
			// Raced with another transition; the precondition no longer holds.
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return orderDocToModel(updated), nil
}
