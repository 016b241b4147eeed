package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCatalog stores catalog entries in three collections of one database:
// datasets, partitions and watermarks.
type MongoCatalog struct {
	Client   *mongo.Client
	database string

	datasets   *mongo.Collection
	partitions *mongo.Collection
	watermarks *mongo.Collection
}

func NewMongoCatalog(client *mongo.Client, database string) *MongoCatalog {
	db := client.Database(database)
	return &MongoCatalog{
		Client:     client,
		database:   database,
		datasets:   db.Collection("datasets"),
		partitions: db.Collection("partitions"),
		watermarks: db.Collection("watermarks"),
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (c *MongoCatalog) EnsureDataset(ctx context.Context, ds Dataset) (Dataset, error) {
	ds.Database = c.database

	var existing Dataset
	err := c.datasets.FindOne(ctx, bson.M{"_id": ds.Name}).Decode(&existing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		ds.Version = 0
		ds.UpdatedAt = time.Now().UTC()
		if _, err := c.datasets.InsertOne(ctx, ds); err != nil {
			return Dataset{}, unavailable("register dataset "+ds.Name, err)
		}
		return ds, nil
	}
	if err != nil {
		return Dataset{}, unavailable("find dataset "+ds.Name, err)
	}

	if err := checkCompatible(existing, ds); err != nil {
		return Dataset{}, err
	}
	update := bson.M{"$set": bson.M{
		"location": ds.Location,
		"format":   ds.Format,
		"schema":   ds.Schema,
	}}
	if _, err := c.datasets.UpdateOne(ctx, bson.M{"_id": ds.Name}, update); err != nil {
		return Dataset{}, unavailable("update dataset "+ds.Name, err)
	}
	existing.Location = ds.Location
	existing.Format = ds.Format
	existing.Schema = ds.Schema
	return existing, nil
}

func (c *MongoCatalog) CommitPublish(ctx context.Context, name string, commit Commit) (Dataset, error) {
	var current Dataset
	err := c.datasets.FindOne(ctx, bson.M{"_id": name}).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Dataset{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Dataset{}, unavailable("find dataset "+name, err)
	}

	var writes []mongo.WriteModel
	for _, p := range commit.Partitions {
		filter := bson.M{"_id": name + "/" + p.Path}
		update := bson.M{"$set": bson.M{
			"dataset":    name,
			"path":       p.Path,
			"values":     p.Values,
			"location":   p.Location,
			"updated_at": time.Now().UTC(),
		}}
		model := mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true)
		writes = append(writes, model)
	}
	if len(writes) > 0 {
		if _, err := c.partitions.BulkWrite(ctx, writes); err != nil {
			return Dataset{}, unavailable("register partitions of "+name, err)
		}
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	inc := bson.M{"version": int64(1)}
	if current.Layout == LayoutFlat {
		set["row_count"] = commit.Rows
	} else {
		inc["row_count"] = commit.Rows
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated Dataset
	err = c.datasets.FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$set": set, "$inc": inc}, opts).Decode(&updated)
	if err != nil {
		return Dataset{}, unavailable("commit dataset "+name, err)
	}
	return updated, nil
}

func (c *MongoCatalog) Dataset(ctx context.Context, name string) (Dataset, error) {
	var ds Dataset
	err := c.datasets.FindOne(ctx, bson.M{"_id": name}).Decode(&ds)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Dataset{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Dataset{}, unavailable("find dataset "+name, err)
	}
	return ds, nil
}

func (c *MongoCatalog) Datasets(ctx context.Context) ([]Dataset, error) {
	cursor, err := c.datasets.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, unavailable("list datasets", err)
	}
	defer cursor.Close(ctx)

	var out []Dataset
	if err := cursor.All(ctx, &out); err != nil {
		return nil, unavailable("decode datasets", err)
	}
	return out, nil
}

func (c *MongoCatalog) Partitions(ctx context.Context, name string) ([]Partition, error) {
	if _, err := c.Dataset(ctx, name); err != nil {
		return nil, err
	}
	cursor, err := c.partitions.Find(ctx, bson.M{"dataset": name}, options.Find().SetSort(bson.M{"path": 1}))
	if err != nil {
		return nil, unavailable("list partitions of "+name, err)
	}
	defer cursor.Close(ctx)

	var out []Partition
	if err := cursor.All(ctx, &out); err != nil {
		return nil, unavailable("decode partitions of "+name, err)
	}
	return out, nil
}

type watermarkDoc struct {
	Name      string    `bson:"_id"`
	Watermark time.Time `bson:"watermark"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (c *MongoCatalog) Watermark(ctx context.Context, name string) (time.Time, bool, error) {
	var doc watermarkDoc
	err := c.watermarks.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, unavailable("read watermark of "+name, err)
	}
	return doc.Watermark.UTC(), true, nil
}

func (c *MongoCatalog) SetWatermark(ctx context.Context, name string, t time.Time) error {
	update := bson.M{"$set": bson.M{"watermark": t.UTC(), "updated_at": time.Now().UTC()}}
	_, err := c.watermarks.UpdateOne(ctx, bson.M{"_id": name}, update, options.Update().SetUpsert(true))
	if err != nil {
		return unavailable("write watermark of "+name, err)
	}
	return nil
}

func (c *MongoCatalog) Close(ctx context.Context) error {
	return c.Client.Disconnect(ctx)
}
