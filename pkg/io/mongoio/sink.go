// Package mongoio writes batches into a MongoDB collection.
package mongoio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type WriterOptions struct {
	// Database defaults to the path of the connection URI.
	Database   string
	Collection string
	// Client replaces connecting to the location URI. The caller keeps ownership.
	Client *mongo.Client
}

// Sink inserts each batch with one InsertMany call. Documents keep the
// schema's field order and carry explicit nulls.
type Sink struct {
	Options WriterOptions
}

func (Sink) Name() string { return "mongo" }

// databaseFromURI returns the database named in the URI path, if any.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

func (s Sink) Create(ctx context.Context, location string, schema etl.Schema) (etl.Writer, error) {
	wrap := func(err error) error { return &etl.DestinationWriteError{Location: location, Err: err} }
	if s.Options.Collection == "" {
		return nil, wrap(errors.New("mongo sink needs a collection"))
	}
	dbName := s.Options.Database
	if dbName == "" {
		dbName = databaseFromURI(location)
	}
	if dbName == "" {
		return nil, wrap(errors.New("mongo sink needs a database"))
	}
	client, owned := s.Options.Client, false
	if client == nil {
		c, err := mongo.Connect(ctx, options.Client().ApplyURI(location))
		if err != nil {
			return nil, wrap(fmt.Errorf("connect mongo: %w", err))
		}
		if err := c.Ping(ctx, nil); err != nil {
			_ = c.Disconnect(ctx)
			return nil, wrap(fmt.Errorf("ping mongo: %w", err))
		}
		client, owned = c, true
	}
	return &Writer{
		location: location,
		client:   client,
		owned:    owned,
		coll:     client.Database(dbName).Collection(s.Options.Collection),
		schema:   schema,
	}, nil
}

type Writer struct {
	location string
	client   *mongo.Client
	owned    bool
	coll     *mongo.Collection
	schema   etl.Schema
}

// Documents converts a batch into ordered BSON documents.
func Documents(b *etl.Batch) []interface{} {
	docs := make([]interface{}, b.Rows())
	for r := 0; r < b.Rows(); r++ {
		d := make(bson.D, b.Cols())
		for c := 0; c < b.Cols(); c++ {
			d[c] = bson.E{Key: b.ColumnAt(c).Name(), Value: b.ColumnAt(c).Value(r)}
		}
		docs[r] = d
	}
	return docs
}

func (w *Writer) Write(ctx context.Context, b *etl.Batch) error {
	if b.Rows() == 0 {
		return nil
	}
	if !b.Schema().Equal(w.schema) {
		return &etl.DestinationWriteError{Location: w.location, Err: &etl.SchemaInconsistencyError{
			Batch: -1, Row: -1, Reason: "batch schema differs from destination schema",
		}}
	}
	if _, err := w.coll.InsertMany(ctx, Documents(b)); err != nil {
		return &etl.DestinationWriteError{Location: w.location, Err: err}
	}
	return nil
}

func (w *Writer) Close() error {
	if !w.owned {
		return nil
	}
	if err := w.client.Disconnect(context.Background()); err != nil {
		return &etl.DestinationWriteError{Location: w.location, Err: err}
	}
	return nil
}
