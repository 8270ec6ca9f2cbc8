package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/storefront/internal/domain"
)

// abandoned carts are dropped by a TTL index after this long
const cartRetention = 30 * 24 * time.Hour

type cartDocument struct {
	OwnerID   string         `bson:"owner_id"`
	Lines     []lineDocument `bson:"lines"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type lineDocument struct {
	ProductID      int64                `bson:"product_id"`
	Name           string               `bson:"name"`
	UnitPrice      primitive.Decimal128 `bson:"unit_price"`
	Quantity       int                  `bson:"quantity"`
	AvailableStock int                  `bson:"available_stock"`
	ImageRef       string               `bson:"image_ref,omitempty"`
}

type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoCartRepository) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return doc.toDomain()
}

func (m *MongoCartRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	doc, err := fromDomain(cart)
	if err != nil {
		return err
	}

	filter := bson.M{"owner_id": cart.OwnerID}
	update := bson.M{"$set": doc}
	if _, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoCartRepository) DeleteCart(ctx context.Context, ownerID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartRetention.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func fromDomain(c *domain.Cart) (cartDocument, error) {
	doc := cartDocument{
		OwnerID:   c.OwnerID,
		Lines:     make([]lineDocument, 0, len(c.Lines)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, l := range c.Lines {
		price, err := primitive.ParseDecimal128(l.UnitPrice.String())
		if err != nil {
			return cartDocument{}, fmt.Errorf("encode price of product %d: %w", l.ProductID, err)
		}
		doc.Lines = append(doc.Lines, lineDocument{
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPrice:      price,
			Quantity:       l.Quantity,
			AvailableStock: l.AvailableStock,
			ImageRef:       l.ImageRef,
		})
	}
	return doc, nil
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		OwnerID:   d.OwnerID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, l := range d.Lines {
		price, err := decimal.NewFromString(l.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("decode price of product %d: %w", l.ProductID, err)
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPrice:      price,
			Quantity:       l.Quantity,
			AvailableStock: l.AvailableStock,
			ImageRef:       l.ImageRef,
		})
	}
	return cart, nil
}
