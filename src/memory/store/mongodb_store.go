package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/devsynth-io/crossmem/src/memory/model"
)

// MongoStore is a document adapter. It has no native transaction or
// snapshot capability; the sync manager covers it with the generic
// full-copy fallback.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

const mongoCloseTimeout = 5 * time.Second

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (ms *MongoStore) Store(ctx context.Context, item model.MemoryItem) (string, error) {
	if ms == nil || ms.collection == nil {
		return "", errors.New("mongo store is not configured")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	doc := bson.M{
		"_id":         item.ID,
		"content":     item.Content,
		"memory_type": string(item.MemoryType),
		"metadata":    item.Metadata,
		"created_at":  item.CreatedAt,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := ms.collection.ReplaceOne(ctx, bson.M{"_id": item.ID}, doc, opts); err != nil {
		return "", err
	}
	return item.ID, nil
}

func (ms *MongoStore) Retrieve(ctx context.Context, id string) (*model.MemoryItem, error) {
	if ms == nil || ms.collection == nil {
		return nil, nil
	}
	var doc mongoItemDocument
	err := ms.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	item := doc.toItem()
	return &item, nil
}

func (ms *MongoStore) Search(ctx context.Context, q Query) ([]model.MemoryItem, error) {
	if ms == nil || ms.collection == nil {
		return nil, nil
	}
	filter := bson.M{}
	if q.Text != "" {
		filter["content"] = bson.M{"$regex": q.Text}
	}
	for k, v := range q.Filter {
		filter["metadata."+k] = v
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if q.Limit > 0 {
		opts = opts.SetLimit(int64(q.Limit))
	}
	cursor, err := ms.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []model.MemoryItem
	for cursor.Next(ctx) {
		var doc mongoItemDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		items = append(items, doc.toItem())
	}
	return items, cursor.Err()
}

func (ms *MongoStore) Delete(ctx context.Context, id string) (bool, error) {
	if ms == nil || ms.collection == nil {
		return false, nil
	}
	res, err := ms.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// Close releases the underlying MongoDB client.
func (ms *MongoStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

type mongoItemDocument struct {
	ID         string         `bson:"_id"`
	Content    string         `bson:"content"`
	MemoryType string         `bson:"memory_type"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	CreatedAt  time.Time      `bson:"created_at"`
}

func (doc mongoItemDocument) toItem() model.MemoryItem {
	return model.MemoryItem{
		ID:         doc.ID,
		Content:    doc.Content,
		MemoryType: model.MemoryType(doc.MemoryType),
		Metadata:   doc.Metadata,
		CreatedAt:  doc.CreatedAt,
	}
}
