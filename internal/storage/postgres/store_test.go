package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage/storagetest"
)

// Set NFE_TEST_POSTGRES_DSN to run these tests against a live database
func newTestStore(t *testing.T) storage.EmissionStore {
	dsn := os.Getenv("NFE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NFE_TEST_POSTGRES_DSN not set")
	}
	s, err := NewStore(&Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, newTestStore)
}
