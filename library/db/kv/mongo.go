package kv

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Laisky/telefiles/library/log"
)

const mongoConnectTimeout = 30 * time.Second

// MongoDialInfo defines the MongoDB connection information.
type MongoDialInfo struct {
	Addr,
	DBName,
	User,
	Pwd,
	Collection string
}

// mongoDoc is the stored document shape: one document per key.
type mongoDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore is a Store backed by a single mongo collection.
type MongoStore struct {
	cli *mongoLib.Client
	col *mongoLib.Collection
}

// NewMongoStore connects to mongo and returns a Store over one collection.
func NewMongoStore(ctx context.Context, dialInfo MongoDialInfo) (*MongoStore, error) {
	log.Logger.Info("try to connect to mongodb",
		zap.String("addr", dialInfo.Addr),
		zap.String("db", dialInfo.DBName))

	opts := options.Client().
		SetHosts([]string{dialInfo.Addr}).
		SetConnectTimeout(mongoConnectTimeout).
		SetServerSelectionTimeout(mongoConnectTimeout).
		SetRetryReads(true).
		SetRetryWrites(true)
	if dialInfo.User != "" {
		opts = opts.SetAuth(options.Credential{
			Username:   dialInfo.User,
			Password:   dialInfo.Pwd,
			AuthSource: dialInfo.DBName,
		})
	}

	dialCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	cli, err := mongoLib.Connect(dialCtx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect db")
	}
	if err := cli.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping db")
	}

	col := cli.Database(dialInfo.DBName).Collection(dialInfo.Collection)
	return &MongoStore{cli: cli, col: col}, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return errors.Wrap(s.cli.Disconnect(ctx), "disconnect db")
}

func (s *MongoStore) Get(ctx context.Context, key string, value any) (bool, error) {
	doc := new(mongoDoc)
	err := s.col.FindOne(ctx, bson.M{"_id": key}).Decode(doc)
	if err != nil {
		if errors.Is(err, mongoLib.ErrNoDocuments) {
			return false, nil
		}

		return false, errors.Wrapf(err, "find %q", key)
	}

	if err := json.Unmarshal([]byte(doc.Value), value); err != nil {
		return false, errors.Wrapf(err, "unmarshal value at %q", key)
	}

	return true, nil
}

func (s *MongoStore) Put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshal value for %q", key)
	}

	_, err = s.col.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{
			"value":      string(raw),
			"updated_at": time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert %q", key)
	}

	return nil
}

func (s *MongoStore) Delete(ctx context.Context, key string) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return errors.Wrapf(err, "delete %q", key)
	}

	return nil
}

func (s *MongoStore) ListKeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{"_id": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(prefix)}}
	cur, err := s.col.Find(ctx, filter,
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, errors.Wrapf(err, "find keys by prefix %q", prefix)
	}
	defer cur.Close(ctx) //nolint:errcheck

	var keys []string
	for cur.Next(ctx) {
		doc := new(mongoDoc)
		if err := cur.Decode(doc); err != nil {
			return nil, errors.Wrap(err, "decode key doc")
		}

		keys = append(keys, doc.Key)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate keys")
	}

	return keys, nil
}
