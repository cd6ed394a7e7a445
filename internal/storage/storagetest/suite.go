// Package storagetest holds the behaviour every storage.EmissionStore must
// satisfy. Backend packages run it against their own store.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
)

// Factory returns a ready store for one subtest
type Factory func(t *testing.T) storage.EmissionStore

const accessKey = "35231012345678000195550010000000011123456786"

// NewRecord returns a signed record for a fresh company id
func NewRecord() *storage.EmissionRecord {
	return &storage.EmissionRecord{
		CompanyID:   "company-" + uuid.NewString()[:8],
		AccessKey:   accessKey,
		Series:      1,
		Number:      1,
		State:       "SP",
		Environment: "homologation",
		Status:      storage.StatusSigned,
	}
}

// Run executes the conformance suite
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("Duplicate", func(t *testing.T) { testDuplicate(t, newStore(t)) })
	t.Run("TransitionsAppend", func(t *testing.T) { testTransitions(t, newStore(t)) })
	t.Run("TransitionMissing", func(t *testing.T) { testTransitionMissing(t, newStore(t)) })
	t.Run("ConcurrentTransitions", func(t *testing.T) { testConcurrent(t, newStore(t)) })
	t.Run("ListPending", func(t *testing.T) { testListPending(t, newStore(t)) })
	t.Run("Artifacts", func(t *testing.T) { testArtifacts(t, newStore(t)) })
}

func testCreateAndGet(t *testing.T, s storage.EmissionStore) {
	ctx := context.Background()
	rec := NewRecord()
	require.NoError(t, s.Create(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := s.Get(ctx, rec.CompanyID, rec.AccessKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, storage.StatusSigned, got.Status)
	assert.Equal(t, "SP", got.State)

	missing, err := s.Get(ctx, rec.CompanyID, "35231012345678000195550010000000021123456780")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testDuplicate(t *testing.T, s storage.EmissionStore) {
	ctx := context.Background()
	rec := NewRecord()
	require.NoError(t, s.Create(ctx, rec))

	dup := NewRecord()
	dup.CompanyID = rec.CompanyID
	err := s.Create(ctx, dup)
	assert.True(t, errors.Is(err, storage.ErrDuplicate), "got %v", err)

	other := NewRecord()
	assert.NoError(t, s.Create(ctx, other), "same key for another company is allowed")
}

func testTransitions(t *testing.T, s storage.EmissionStore) {
	ctx := context.Background()
	rec := NewRecord()
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Transition(ctx, rec.CompanyID, rec.AccessKey, storage.Change{
		Transition: storage.Transition{To: storage.StatusSent, StatusCode: "103", Reason: "Lote recebido com sucesso"},
		Receipt:    "351000000000001",
		BatchID:    "1",
		SignedXML:  []byte("<NFe/>"),
		Snapshots:  []storage.Snapshot{{Service: "NFeAutorizacao4", Request: "<req/>", Response: "<resp/>", HTTPStatus: 200}},
	})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSent, got.Status)
	assert.Equal(t, "351000000000001", got.Receipt)

	_, err = s.Transition(ctx, rec.CompanyID, rec.AccessKey, storage.Change{
		Transition: storage.Transition{To: storage.StatusProcessing, StatusCode: "105", Reason: "Lote em processamento", Attempt: 1},
		Attempts:   1,
	})
	require.NoError(t, err)

	got, err = s.Transition(ctx, rec.CompanyID, rec.AccessKey, storage.Change{
		Transition: storage.Transition{To: storage.StatusAuthorized, StatusCode: "100", Reason: "Autorizado o uso da NF-e"},
		Protocol:   "135230000000001",
		Attempts:   2,
	})
	require.NoError(t, err)

	got, err = s.Get(ctx, rec.CompanyID, rec.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusAuthorized, got.Status)
	assert.Equal(t, "100", got.StatusCode)
	assert.Equal(t, "135230000000001", got.Protocol)
	assert.Equal(t, "351000000000001", got.Receipt, "receipt survives later transitions")
	assert.Equal(t, "1", got.BatchID)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "<NFe/>", string(got.SignedXML))
	require.NotNil(t, got.AuthorizedAt)

	require.Len(t, got.Transitions, 3)
	assert.Equal(t, storage.StatusSigned, got.Transitions[0].From)
	assert.Equal(t, storage.StatusSent, got.Transitions[0].To)
	assert.Equal(t, storage.StatusSent, got.Transitions[1].From)
	assert.Equal(t, storage.StatusProcessing, got.Transitions[2].From)
	assert.Equal(t, storage.StatusAuthorized, got.Transitions[2].To)

	require.Len(t, got.Snapshots, 1)
	assert.Equal(t, "<resp/>", got.Snapshots[0].Response)
	assert.Equal(t, 200, got.Snapshots[0].HTTPStatus)
}

func testTransitionMissing(t *testing.T, s storage.EmissionStore) {
	_, err := s.Transition(context.Background(), "nobody", accessKey, storage.Change{
		Transition: storage.Transition{To: storage.StatusSent},
	})
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
}

func testConcurrent(t *testing.T, s storage.EmissionStore) {
	ctx := context.Background()
	rec := NewRecord()
	require.NoError(t, s.Create(ctx, rec))

	const n = 10
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Transition(ctx, rec.CompanyID, rec.AccessKey, storage.Change{
				Transition: storage.Transition{To: storage.StatusProcessing, StatusCode: "105", Attempt: i},
				Snapshots:  []storage.Snapshot{{Service: "NFeRetAutorizacao4", Request: "<req/>"}},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, rec.CompanyID, rec.AccessKey)
	require.NoError(t, err)
	assert.Len(t, got.Transitions, n, "no transition may be lost")
	assert.Len(t, got.Snapshots, n)
}

func testListPending(t *testing.T, s storage.EmissionStore) {
	ctx := context.Background()
	var ids []string
	for _, st := range []storage.Status{storage.StatusSent, storage.StatusProcessing, storage.StatusAuthorized} {
		rec := NewRecord()
		require.NoError(t, s.Create(ctx, rec))
		_, err := s.Transition(ctx, rec.CompanyID, rec.AccessKey, storage.Change{
			Transition: storage.Transition{To: st},
			Receipt:    "351000000000001",
		})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
		time.Sleep(5 * time.Millisecond)
	}

	pending, err := s.ListPending(ctx, []storage.Status{storage.StatusSent, storage.StatusProcessing}, time.Now().Add(time.Second), 0)
	require.NoError(t, err)
	found := map[string]int{}
	for i, r := range pending {
		found[r.ID] = i + 1
	}
	assert.NotZero(t, found[ids[0]])
	assert.NotZero(t, found[ids[1]])
	assert.Zero(t, found[ids[2]], "authorized records are not pending")
	assert.Less(t, found[ids[0]], found[ids[1]], "oldest first")

	none, err := s.ListPending(ctx, []storage.Status{storage.StatusSent}, time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	for _, r := range none {
		assert.NotEqual(t, ids[0], r.ID)
	}

	limited, err := s.ListPending(ctx, []storage.Status{storage.StatusSent, storage.StatusProcessing}, time.Now().Add(time.Second), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testArtifacts(t *testing.T, s storage.EmissionStore) {
	ctx := context.Background()
	rec := NewRecord()
	require.NoError(t, s.Create(ctx, rec))

	_, err := s.GetArtifact(ctx, rec.CompanyID, rec.AccessKey)
	assert.True(t, errors.Is(err, storage.ErrArtifactNotFound), "got %v", err)

	proc := []byte(`<nfeProc versao="4.00"><NFe/><protNFe/></nfeProc>`)
	require.NoError(t, s.StoreArtifact(ctx, rec.CompanyID, rec.AccessKey, proc))

	got, err := s.GetArtifact(ctx, rec.CompanyID, rec.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, proc, got)
}
