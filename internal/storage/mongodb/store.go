// Package mongodb implements storage.EmissionStore using MongoDB
package mongodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
)

// Store implements storage.EmissionStore using MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	gridfs *gridfs.Bucket

	records *mongo.Collection
	now     func() time.Time
}

// Config holds MongoDB connection settings
type Config struct {
	URI            string
	Database       string
	GridFSBucket   string
	ChunkSizeBytes int32
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	// nfeProc artifacts live in GridFS
	bucketName := cfg.GridFSBucket
	if bucketName == "" {
		bucketName = "nfeproc"
	}
	chunkSize := cfg.ChunkSizeBytes
	if chunkSize == 0 {
		chunkSize = 261120 // 255KB
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().
		SetName(bucketName).
		SetChunkSizeBytes(chunkSize))
	if err != nil {
		return nil, fmt.Errorf("creating GridFS bucket: %w", err)
	}

	s := &Store{
		client:  client,
		db:      db,
		gridfs:  bucket,
		records: db.Collection("emission_records"),
		now:     time.Now,
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "access_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
		{Keys: bson.D{{Key: "receipt", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("creating emission record indexes: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Drop removes the database; used by tests
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func recordFilter(companyID, accessKey string) bson.M {
	return bson.M{"company_id": companyID, "access_key": accessKey}
}

func (s *Store) Create(ctx context.Context, rec *storage.EmissionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	// $push needs arrays, not nulls
	if rec.Transitions == nil {
		rec.Transitions = []storage.Transition{}
	}
	if rec.Snapshots == nil {
		rec.Snapshots = []storage.Snapshot{}
	}

	_, err := s.records.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s/%s", storage.ErrDuplicate, rec.CompanyID, rec.AccessKey)
	}
	return err
}

func (s *Store) Get(ctx context.Context, companyID, accessKey string) (*storage.EmissionRecord, error) {
	var rec storage.EmissionRecord
	err := s.records.FindOne(ctx, recordFilter(companyID, accessKey)).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Transition sets the scalar fields and pushes the history entries in one
// update, so concurrent transitions never drop each other's entries
func (s *Store) Transition(ctx context.Context, companyID, accessKey string, change storage.Change) (*storage.EmissionRecord, error) {
	current, err := s.Get(ctx, companyID, accessKey)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, companyID, accessKey)
	}

	// Apply on a scratch copy to compute the new field values
	next := current.Clone()
	next.Apply(&change, s.now())

	set := bson.M{
		"status":     next.Status,
		"updated_at": next.UpdatedAt,
		"attempts":   next.Attempts,
	}
	if change.Transition.StatusCode != "" {
		set["status_code"] = next.StatusCode
		set["reason"] = next.Reason
	}
	for field, value := range map[string]string{
		"batch_id":        change.BatchID,
		"receipt":         change.Receipt,
		"protocol":        change.Protocol,
		"cancel_protocol": change.CancelProtocol,
		"last_error":      change.LastError,
	} {
		if value != "" {
			set[field] = value
		}
	}
	if len(change.SignedXML) > 0 {
		set["signed_xml"] = change.SignedXML
	}
	if next.AuthorizedAt != nil && current.AuthorizedAt == nil {
		set["authorized_at"] = *next.AuthorizedAt
	}

	push := bson.M{"transitions": change.Transition}
	if len(change.Snapshots) > 0 {
		push["snapshots"] = bson.M{"$each": change.Snapshots}
	}

	var updated storage.EmissionRecord
	err = s.records.FindOneAndUpdate(ctx,
		recordFilter(companyID, accessKey),
		bson.M{"$set": set, "$push": push},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, companyID, accessKey)
	}
	if err != nil {
		return nil, fmt.Errorf("updating emission record: %w", err)
	}
	return &updated, nil
}

func (s *Store) ListPending(ctx context.Context, statuses []storage.Status, updatedBefore time.Time, limit int) ([]*storage.EmissionRecord, error) {
	query := bson.M{
		"status":     bson.M{"$in": statuses},
		"updated_at": bson.M{"$lt": updatedBefore},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetProjection(bson.M{"snapshots": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.records.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*storage.EmissionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func artifactName(companyID, accessKey string) string {
	return fmt.Sprintf("%s/%s-procNFe.xml", companyID, accessKey)
}

// StoreArtifact uploads a new GridFS revision of the nfeProc document
func (s *Store) StoreArtifact(ctx context.Context, companyID, accessKey string, data []byte) error {
	n, err := s.records.CountDocuments(ctx, recordFilter(companyID, accessKey))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", storage.ErrNotFound, companyID, accessKey)
	}

	uploadOpts := options.GridFSUpload().SetMetadata(bson.M{
		"company_id":   companyID,
		"access_key":   accessKey,
		"content_type": "application/xml",
	})
	_, err = s.gridfs.UploadFromStream(artifactName(companyID, accessKey), bytes.NewReader(data), uploadOpts)
	if err != nil {
		return fmt.Errorf("uploading artifact: %w", err)
	}
	return nil
}

// GetArtifact returns the latest revision of the nfeProc document
func (s *Store) GetArtifact(ctx context.Context, companyID, accessKey string) ([]byte, error) {
	stream, err := s.gridfs.OpenDownloadStreamByName(artifactName(companyID, accessKey))
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, storage.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening download stream: %w", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return data, nil
}
