package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cebartling/orderflow/internal/cdc"
)

const collectionName = "materialized_documents"

// DocumentRepository implements cdc.DocumentStore over MongoDB.
type DocumentRepository struct {
	conn *Connection
}

// NewDocumentRepository builds a DocumentRepository bound to conn.
func NewDocumentRepository(conn *Connection) *DocumentRepository {
	return &DocumentRepository{conn: conn}
}

func (r *DocumentRepository) collection() *mongo.Collection {
	return r.conn.DB().Collection(collectionName)
}

// Find returns the document for aggregateID, or (nil, nil) if absent.
func (r *DocumentRepository) Find(ctx context.Context, aggregateID string) (*cdc.Document, error) {
	var doc cdc.Document

	err := r.collection().FindOne(ctx, bson.M{"_id": aggregateID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// Upsert fully replaces the document keyed by doc.ID (spec.md §4.1 step 6:
// "a document that fully replaces the prior one (no field-level
// merging)").
func (r *DocumentRepository) Upsert(ctx context.Context, doc *cdc.Document) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection().ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)

	return err
}

// Delete removes the document keyed by aggregateID; deleting an absent
// document is a no-op (spec.md §4.1 step 6).
func (r *DocumentRepository) Delete(ctx context.Context, aggregateID string) error {
	_, err := r.collection().DeleteOne(ctx, bson.M{"_id": aggregateID})

	return err
}
