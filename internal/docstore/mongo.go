package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Mongo keeps documents in one collection with the path as _id. It needs a
// replica set because every attempt runs inside a multi-document transaction.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoDoc struct {
	ID     string `bson:"_id"`
	Parent string `bson:"parent"`
	Data   bson.M `bson:"data"`
}

func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	store := &Mongo{client: client, coll: client.Database(database).Collection("documents")}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	log.Info("connected to mongodb", "database", database)
	return store, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "parent", Value: 1}},
		Options: options.Index().SetName("documents_parent"),
	})
	if err != nil {
		return fmt.Errorf("create documents index: %w", err)
	}
	return nil
}

func (m *Mongo) Attempt(ctx context.Context, fn TxFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, fn(txCtx, &mongoTx{coll: m.coll})
	})
	return classifyMongoError(err)
}

func (m *Mongo) Get(ctx context.Context, path string) (Snapshot, error) {
	return getMongo(ctx, m.coll, path)
}

func (m *Mongo) DeleteTree(ctx context.Context, root string) error {
	filter := bson.M{"$or": bson.A{
		bson.M{"_id": root},
		bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(root+"/")}},
	}}
	if _, err := m.coll.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("delete tree %s: %w", root, err)
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}

func getMongo(ctx context.Context, coll *mongo.Collection, path string) (Snapshot, error) {
	var doc mongoDoc
	err := coll.FindOne(ctx, bson.M{"_id": path}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Snapshot{Path: path}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}
	return Snapshot{Path: path, Exists: true, Data: Data(doc.Data)}, nil
}

type mongoTx struct {
	coll  *mongo.Collection
	wrote bool
}

func (t *mongoTx) Get(ctx context.Context, path string) (Snapshot, error) {
	if t.wrote {
		return Snapshot{}, ErrReadAfterWrite
	}
	return getMongo(ctx, t.coll, path)
}

func (t *mongoTx) Create(ctx context.Context, path string, data Data) error {
	t.wrote = true
	_, err := t.coll.InsertOne(ctx, mongoDoc{ID: path, Parent: Parent(path), Data: bson.M(data)})
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}

func (t *mongoTx) Set(ctx context.Context, path string, data Data) error {
	t.wrote = true
	_, err := t.coll.ReplaceOne(ctx, bson.M{"_id": path},
		mongoDoc{ID: path, Parent: Parent(path), Data: bson.M(data)},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (t *mongoTx) Update(ctx context.Context, path string, data Data) error {
	t.wrote = true
	fields := bson.M{}
	for k, v := range data {
		fields["data."+k] = v
	}
	res, err := t.coll.UpdateOne(ctx, bson.M{"_id": path}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *mongoTx) Delete(ctx context.Context, path string) error {
	t.wrote = true
	if _, err := t.coll.DeleteOne(ctx, bson.M{"_id": path}); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func classifyMongoError(err error) error {
	if err == nil {
		return nil
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
