// internal/store/mongodb.go
package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/valpere/AdScrapexter/internal/errors"
)

// MongoStore keeps one document per data row: {row_index, cells: [...]}
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	width      int
}

type mongoRow struct {
	RowIndex int      `bson:"row_index"`
	Cells    []string `bson:"cells"`
}

// OpenMongoStore connects and pings the server
func OpenMongoStore(ctx context.Context, uri, database, collection string, width int) (*MongoStore, error) {
	if uri == "" {
		return nil, apperrors.New(apperrors.KindConfig, "mongodb uri is required")
	}
	if database == "" {
		database = "adscrapexter"
	}
	if collection == "" {
		collection = "worklist"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "connect mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperrors.Wrap(apperrors.KindStore, err, "ping mongodb")
	}

	s := NewMongoStore(client.Database(database).Collection(collection), width)
	s.client = client
	return s, nil
}

// NewMongoStore wraps an existing collection; Close leaves its client connected
func NewMongoStore(coll *mongo.Collection, width int) *MongoStore {
	return &MongoStore{collection: coll, width: width}
}

// Read loads every document sorted by row_index
func (s *MongoStore) Read(ctx context.Context) (*Snapshot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "row_index", Value: 1}})
	cur, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "find worklist")
	}
	var docs []mongoRow
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStore, err, "decode worklist")
	}

	snap := &Snapshot{Rows: make([]Row, 0, len(docs))}
	for _, d := range docs {
		cells := d.Cells
		if len(cells) > s.width {
			cells = cells[:s.width]
		}
		snap.Rows = append(snap.Rows, Row{Index: d.RowIndex, Cells: trimCells(cells)})
	}
	return snap, nil
}

// ReadColumn projects a fresh read onto one column
func (s *MongoStore) ReadColumn(ctx context.Context, column int) ([]Cell, error) {
	snap, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return columnOf(snap, column), nil
}

// BatchWrite sets cells by array position in one unordered bulk write
func (s *MongoStore) BatchWrite(ctx context.Context, writes []CellWrite) error {
	if len(writes) == 0 {
		return nil
	}
	if err := checkWrites(writes, s.width); err != nil {
		return err
	}
	models := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "row_index", Value: w.Row}}).
			SetUpdate(bson.D{{Key: "$set", Value: bson.D{{Key: fmt.Sprintf("cells.%d", w.Column), Value: w.Value}}}}))
	}
	if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return apperrors.Wrap(apperrors.KindStore, err, "bulk write worklist")
	}
	return nil
}

// Close disconnects a client opened by OpenMongoStore
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(context.Background()); err != nil && !apperrors.Is(err, mongo.ErrClientDisconnected) {
		return apperrors.Wrap(apperrors.KindStore, err, "disconnect mongodb")
	}
	return nil
}
