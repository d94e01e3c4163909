package cart

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoMaxAttempts = 32

var errCartContention = errors.New("cart changed concurrently, retries exhausted")

type cartDoc struct {
	UserID    string    `bson:"_id"`
	Items     []Line    `bson:"items"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per user and applies every change as a
// compare-and-set on the document version, retrying on conflict.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("carts")}
}

// EnsureIndexes expires carts nobody touched for 90 days.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
	})
	return storage.Wrap("create cart indexes", err)
}

func (s *MongoStore) load(ctx context.Context, userID string) (cartDoc, bool, error) {
	var doc cartDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return cartDoc{UserID: userID}, false, nil
	}
	if err != nil {
		return cartDoc{}, false, storage.Wrap("get cart", err)
	}
	return doc, true, nil
}

func (s *MongoStore) mutate(ctx context.Context, userID string, fn func([]Line) ([]Line, error)) (Cart, error) {
	for attempt := 0; attempt < mongoMaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Millisecond)
		}
		doc, found, err := s.load(ctx, userID)
		if err != nil {
			return Cart{}, err
		}
		next, err := fn(cloneLines(doc.Items))
		if err != nil {
			return Cart{}, err
		}
		if next == nil {
			next = []Line{}
		}
		now := time.Now().UTC()

		if !found {
			_, err := s.coll.InsertOne(ctx, cartDoc{UserID: userID, Items: next, Version: 1, UpdatedAt: now})
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return Cart{}, storage.Wrap("create cart", err)
			}
			return Cart{UserID: userID, Lines: next, UpdatedAt: now}, nil
		}

		res, err := s.coll.UpdateOne(ctx,
			bson.M{"_id": userID, "version": doc.Version},
			bson.M{
				"$set": bson.M{"items": next, "updated_at": now},
				"$inc": bson.M{"version": 1},
			})
		if err != nil {
			return Cart{}, storage.Wrap("update cart", err)
		}
		if res.MatchedCount == 1 {
			return Cart{UserID: userID, Lines: next, UpdatedAt: now}, nil
		}
	}
	return Cart{}, storage.Wrap("update cart", errCartContention)
}

func (s *MongoStore) Get(ctx context.Context, userID string) (Cart, error) {
	doc, _, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	lines := doc.Items
	if lines == nil {
		lines = []Line{}
	}
	return Cart{UserID: userID, Lines: lines, UpdatedAt: doc.UpdatedAt}, nil
}

func (s *MongoStore) AddLine(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	return s.mutate(ctx, userID, func(l []Line) ([]Line, error) { return addLine(l, productID, qty) })
}

func (s *MongoStore) SetLineQuantity(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	return s.mutate(ctx, userID, infallible(func(l []Line) []Line { return setLine(l, productID, qty) }))
}

func (s *MongoStore) RemoveLine(ctx context.Context, userID, productID string) (Cart, error) {
	return s.mutate(ctx, userID, infallible(func(l []Line) []Line { return removeLine(l, productID) }))
}

// ReadAndClear swaps the item array for an empty one in a single
// findOneAndUpdate and returns the array it replaced.
func (s *MongoStore) ReadAndClear(ctx context.Context, userID string) ([]Line, error) {
	var before cartDoc
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": userID, "items.0": bson.M{"$exists": true}},
		bson.M{
			"$set": bson.M{"items": []Line{}, "updated_at": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, storage.Wrap("clear cart", err)
	}
	return before.Items, nil
}

func (s *MongoStore) Restore(ctx context.Context, userID string, lines []Line) error {
	_, err := s.mutate(ctx, userID, infallible(func(l []Line) []Line { return mergeLines(l, lines) }))
	return err
}
