package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/pkg/apperr"
)

// =============================================================================
// MongoDB Mail Cache Adapter
// =============================================================================
//
// The cached mail documents are the base state pending modifiers fold over.
// Optimistic writes land here first; sync pulls replace them with the server
// copy once the queue drains.

const (
	collectionEmails = "emails"
	collectionDrafts = "drafts"
)

// EmailCacheAdapter implements out.EmailRepository on MongoDB.
type EmailCacheAdapter struct {
	collection *mongo.Collection
}

var _ out.EmailRepository = (*EmailCacheAdapter)(nil)

// NewEmailCacheAdapter creates the adapter over the given database.
func NewEmailCacheAdapter(db *mongo.Database) *EmailCacheAdapter {
	return &EmailCacheAdapter{collection: db.Collection(collectionEmails)}
}

// EnsureIndexes creates the indexes the cache queries rely on.
func (a *EmailCacheAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "updated_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "folder", Value: 1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (a *EmailCacheAdapter) Get(ctx context.Context, id string) (*domain.EmailDocument, error) {
	var doc domain.EmailDocument
	err := a.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("email")
		}
		return nil, apperr.DatabaseError("get email", err)
	}
	return &doc, nil
}

func (a *EmailCacheAdapter) Upsert(ctx context.Context, email *domain.EmailDocument) error {
	email.UpdatedAt = time.Now().UTC()

	opts := options.Replace().SetUpsert(true)
	_, err := a.collection.ReplaceOne(ctx, bson.M{"_id": email.ID}, email, opts)
	if err != nil {
		return apperr.DatabaseError("upsert email", err)
	}
	return nil
}

func (a *EmailCacheAdapter) Delete(ctx context.Context, id string) error {
	_, err := a.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.DatabaseError("delete email", err)
	}
	return nil
}

func (a *EmailCacheAdapter) ListByAccount(ctx context.Context, accountID string) ([]*domain.EmailDocument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := a.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, apperr.DatabaseError("list emails", err)
	}
	defer cursor.Close(ctx)

	var emails []*domain.EmailDocument
	if err := cursor.All(ctx, &emails); err != nil {
		return nil, apperr.DatabaseError("decode emails", err)
	}
	return emails, nil
}

// =============================================================================
// Draft cache
// =============================================================================

// DraftCacheAdapter implements out.DraftRepository on MongoDB.
type DraftCacheAdapter struct {
	collection *mongo.Collection
}

var _ out.DraftRepository = (*DraftCacheAdapter)(nil)

// NewDraftCacheAdapter creates the adapter over the given database.
func NewDraftCacheAdapter(db *mongo.Database) *DraftCacheAdapter {
	return &DraftCacheAdapter{collection: db.Collection(collectionDrafts)}
}

// EnsureIndexes creates the indexes the cache queries rely on.
func (a *DraftCacheAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (a *DraftCacheAdapter) Get(ctx context.Context, id string) (*domain.DraftDocument, error) {
	var doc domain.DraftDocument
	err := a.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("draft")
		}
		return nil, apperr.DatabaseError("get draft", err)
	}
	return &doc, nil
}

func (a *DraftCacheAdapter) Upsert(ctx context.Context, draft *domain.DraftDocument) error {
	draft.UpdatedAt = time.Now().UTC()

	opts := options.Replace().SetUpsert(true)
	_, err := a.collection.ReplaceOne(ctx, bson.M{"_id": draft.ID}, draft, opts)
	if err != nil {
		return apperr.DatabaseError("upsert draft", err)
	}
	return nil
}

func (a *DraftCacheAdapter) Delete(ctx context.Context, id string) error {
	_, err := a.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.DatabaseError("delete draft", err)
	}
	return nil
}

func (a *DraftCacheAdapter) ListByAccount(ctx context.Context, accountID string) ([]*domain.DraftDocument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := a.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, apperr.DatabaseError("list drafts", err)
	}
	defer cursor.Close(ctx)

	var drafts []*domain.DraftDocument
	if err := cursor.All(ctx, &drafts); err != nil {
		return nil, apperr.DatabaseError("decode drafts", err)
	}
	return drafts, nil
}
