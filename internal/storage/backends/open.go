// Package backends opens the emission store selected by configuration
package backends

import (
	"context"
	"fmt"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/config"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage/memory"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage/mongodb"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage/postgres"
)

// Open connects to the configured backend
func Open(ctx context.Context, cfg *config.StorageConfig) (storage.EmissionStore, error) {
	switch cfg.Backend {
	case "mongodb":
		return mongodb.NewStore(ctx, &mongodb.Config{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			GridFSBucket:   cfg.MongoDB.GridFS.BucketName,
			ChunkSizeBytes: cfg.MongoDB.GridFS.ChunkSizeBytes,
		})
	case "postgres":
		return postgres.NewStore(&postgres.Config{DSN: cfg.Postgres.DSN})
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
