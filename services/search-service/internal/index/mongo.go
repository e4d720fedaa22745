// Package index is the MongoDB-backed search projection of posts.
package index

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/baechuer/content-platform/internal/domain"
)

const CollectionName = "posts"

// TombstoneTTL is how long a removed post keeps its tombstone. It only has to
// outlive the retry window of a post.created for the same id.
const TombstoneTTL = 7 * 24 * time.Hour

// live matches documents that are not tombstones.
var live = bson.M{"$ne": true}

type PostIndex struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewPostIndex(coll *mongo.Collection) *PostIndex {
	return &PostIndex{coll: coll, now: time.Now}
}

// EnsureIndexes creates the index used to order results and the TTL index
// that expires tombstones.
func (x *PostIndex) EnsureIndexes(ctx context.Context) error {
	_, err := x.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{
			Keys:    bson.D{{Key: "deletedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(TombstoneTTL / time.Second)),
		},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Upsert writes the document keyed by post id. Applying the same post twice
// leaves one document. A removed post is never brought back: the tombstone
// fails the filter, the upsert collides with its _id, and Upsert reports
// false without an error.
func (x *PostIndex) Upsert(ctx context.Context, doc domain.SearchDocument) (bool, error) {
	doc.IndexedAt = x.now().UTC()
	_, err := x.coll.UpdateOne(ctx,
		bson.M{"_id": doc.PostID, "deleted": live},
		bson.M{"$set": bson.M{
			"userId":    doc.UserID,
			"content":   doc.Content,
			"createdAt": doc.CreatedAt,
			"indexedAt": doc.IndexedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upsert %s: %w", doc.PostID, err)
	}
	return true, nil
}

// Remove replaces the document with a tombstone and reports whether a live
// document existed. Removing an unknown or already removed post still leaves
// a tombstone, so a create that arrives later is ignored.
func (x *PostIndex) Remove(ctx context.Context, postID string) (bool, error) {
	res, err := x.coll.UpdateOne(ctx,
		bson.M{"_id": postID, "deleted": live},
		bson.M{
			"$set":   bson.M{"deleted": true, "deletedAt": x.now().UTC()},
			"$unset": bson.M{"userId": "", "content": "", "createdAt": "", "indexedAt": ""},
		},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", postID, err)
	}
	return res.MatchedCount > 0, nil
}

// Search returns up to limit posts whose content contains query,
// case-insensitively, newest first.
func (x *PostIndex) Search(ctx context.Context, query string, limit int) ([]domain.SearchDocument, error) {
	filter := bson.M{
		"content": bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"},
		"deleted": live,
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := x.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer cursor.Close(ctx)

	docs := make([]domain.SearchDocument, 0, limit)
	for cursor.Next(ctx) {
		var d domain.SearchDocument
		if err := cursor.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, d)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return docs, nil
}
