package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/hotboard/internal/types"
)

// MongoStore keeps posts in a MongoDB collection. Transactions need a
// replica set or sharded cluster.
type MongoStore struct {
	client   *mongo.Client
	posts    *mongo.Collection
	counters *mongo.Collection
	logger   *slog.Logger
	now      func() time.Time
}

// NewMongoStore connects and ensures the unique url index exists.
func NewMongoStore(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &types.StorageError{Backend: DriverMongo, Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: DriverMongo, Op: "ping", Err: err}
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		posts:    db.Collection(collection),
		counters: db.Collection("counters"),
		logger:   logger.With("component", "mongo_store"),
		now:      func() time.Time { return time.Now().UTC() },
	}

	_, err = s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "crawled_at", Value: -1}}},
		{Keys: bson.D{{Key: "site", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: DriverMongo, Op: "create indexes", Err: err}
	}

	return s, nil
}

func (s *MongoStore) Name() string { return DriverMongo }

// UpsertMany applies all candidates in one multi-document transaction.
// MongoDB has no savepoints, so only candidates failing validation are
// skipped; a write error aborts the whole batch.
func (s *MongoStore) UpsertMany(ctx context.Context, cands []types.ScoredCandidate) (UpsertResult, error) {
	if len(cands) == 0 {
		return UpsertResult{}, nil
	}

	session, err := s.client.StartSession()
	if err != nil {
		return UpsertResult{}, &types.StorageError{Backend: DriverMongo, Op: "start session", Err: err}
	}
	defer session.EndSession(ctx)

	now := s.now()
	var res UpsertResult

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		// The callback may be retried on transient errors.
		res = UpsertResult{}
		for _, c := range cands {
			if err := c.Validate(); err != nil {
				s.logger.Warn("skipping invalid candidate", "url", c.URL, "error", err)
				res.Skipped++
				continue
			}
			inserted, err := s.upsertOne(sc, c, now)
			if err != nil {
				return nil, fmt.Errorf("upsert %s: %w", c.URL, err)
			}
			if inserted {
				res.New++
			} else {
				res.Updated++
			}
		}
		return nil, nil
	})
	if err != nil {
		return UpsertResult{}, &types.StorageError{Backend: DriverMongo, Op: "transaction", Err: err}
	}

	s.logger.Debug("upsert complete", "new", res.New, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}

func (s *MongoStore) upsertOne(ctx mongo.SessionContext, c types.ScoredCandidate, now time.Time) (bool, error) {
	upd, err := s.posts.UpdateOne(ctx,
		bson.M{"url": c.URL},
		bson.M{"$set": bson.M{
			"views":      c.Views,
			"likes":      c.Likes,
			"comments":   c.Comments,
			"crawled_at": now,
		}},
	)
	if err != nil {
		return false, err
	}
	if upd.MatchedCount > 0 {
		return false, nil
	}

	id, err := s.nextID(ctx)
	if err != nil {
		return false, err
	}
	p := newPost(c, now)
	p.ID = id
	if _, err := s.posts.InsertOne(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

// nextID allocates a surrogate id from the counters collection.
func (s *MongoStore) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": s.posts.Name()},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return counter.Seq, nil
}

// ListPosts returns posts ordered by crawl time, newest first.
func (s *MongoStore) ListPosts(ctx context.Context, q Query) ([]types.Post, error) {
	filter := bson.M{}
	if q.Site != "" {
		filter["site"] = q.Site
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "crawled_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(q.limit()))

	cur, err := s.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, &types.StorageError{Backend: DriverMongo, Op: "list", Err: err}
	}
	var posts []types.Post
	if err := cur.All(ctx, &posts); err != nil {
		return nil, &types.StorageError{Backend: DriverMongo, Op: "list", Err: err}
	}
	return posts, nil
}

// Stats counts posts in total, per site and per category.
func (s *MongoStore) Stats(ctx context.Context) (Stats, error) {
	total, err := s.posts.CountDocuments(ctx, bson.M{})
	if err != nil {
		return Stats{}, &types.StorageError{Backend: DriverMongo, Op: "stats", Err: err}
	}
	st := Stats{Total: int(total)}
	if st.BySite, err = s.groupCount(ctx, "site"); err != nil {
		return Stats{}, err
	}
	if st.ByCategory, err = s.groupCount(ctx, "category"); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *MongoStore) groupCount(ctx context.Context, field string) (map[string]int, error) {
	cur, err := s.posts.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, &types.StorageError{Backend: DriverMongo, Op: "stats", Err: err}
	}
	var rows []struct {
		Key string `bson:"_id"`
		N   int    `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, &types.StorageError{Backend: DriverMongo, Op: "stats", Err: err}
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Key] = r.N
	}
	return out, nil
}

func (s *MongoStore) Close() error {
	s.logger.Info("mongo store closing")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return err
	}
	return nil
}
