package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage/memory"
)

type fakeResumer struct {
	mu      sync.Mutex
	calls   []string
	results map[string]*emission.Result
	errs    map[string]error
}

func (f *fakeResumer) Resume(_ context.Context, companyID, accessKey string) (*emission.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, companyID+"/"+accessKey)
	if err := f.errs[accessKey]; err != nil {
		return nil, err
	}
	if res, ok := f.results[accessKey]; ok {
		return res, nil
	}
	return &emission.Result{Status: storage.StatusProcessing}, nil
}

func seed(t *testing.T, store storage.EmissionStore, key, receipt string, status storage.Status, at time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &storage.EmissionRecord{
		CompanyID: "desdobra",
		AccessKey: key,
		Status:    storage.StatusDraft,
		CreatedAt: at,
	}))
	_, err := store.Transition(ctx, "desdobra", key, storage.Change{
		Transition: storage.Transition{To: status, At: at},
		Receipt:    receipt,
	})
	require.NoError(t, err)
}

func TestRunOnce(t *testing.T) {
	store := memory.NewStore()
	old := time.Now().Add(-10 * time.Minute)
	seed(t, store, "k-authorized", "r1", storage.StatusSent, old)
	seed(t, store, "k-still", "r2", storage.StatusProcessing, old)
	seed(t, store, "k-broken", "r3", storage.StatusProcessing, old)
	seed(t, store, "k-noreceipt", "", storage.StatusSent, old)
	seed(t, store, "k-fresh", "r4", storage.StatusSent, time.Now())
	seed(t, store, "k-done", "r5", storage.StatusRejected, old)

	resumer := &fakeResumer{
		results: map[string]*emission.Result{"k-authorized": {Success: true, Status: storage.StatusAuthorized, StatusCode: "100"}},
		errs:    map[string]error{"k-broken": errors.New("sefaz TRANSPORT error")},
	}
	r, err := New(store, resumer, &Config{Schedule: "@every 1m", BatchSize: 10, MinAge: 2 * time.Minute}, nil)
	require.NoError(t, err)

	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 3, Resolved: 1, Pending: 1, Failed: 1}, sum)
	assert.ElementsMatch(t, []string{"desdobra/k-authorized", "desdobra/k-still", "desdobra/k-broken"}, resumer.calls)
}

func TestRunOnceHonoursBatchSize(t *testing.T) {
	store := memory.NewStore()
	old := time.Now().Add(-time.Hour)
	for i, key := range []string{"a", "b", "c"} {
		seed(t, store, key, "r", storage.StatusSent, old.Add(time.Duration(i)*time.Second))
	}
	resumer := &fakeResumer{}
	r, err := New(store, resumer, &Config{Schedule: "@every 1m", BatchSize: 2}, nil)
	require.NoError(t, err)

	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Checked)
	assert.Equal(t, []string{"desdobra/a", "desdobra/b"}, resumer.calls, "oldest first")
}

func TestRunOnceStopsOnCancellation(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "a", "r", storage.StatusSent, time.Now().Add(-time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := New(store, &fakeResumer{}, nil, nil)
	require.NoError(t, err)
	_, err = r.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(memory.NewStore(), &fakeResumer{}, &Config{Schedule: "every minute"}, nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	r, err := New(memory.NewStore(), &fakeResumer{}, DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}
