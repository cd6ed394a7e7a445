package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage/storagetest"
)

// Set NFE_TEST_MONGODB_URI (for example mongodb://localhost:27017) to run
// these tests against a live server
func newTestStore(t *testing.T) storage.EmissionStore {
	uri := os.Getenv("NFE_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("NFE_TEST_MONGODB_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewStore(ctx, &Config{URI: uri, Database: "nfe_test_" + uuid.NewString()[:8]})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, newTestStore)
}
