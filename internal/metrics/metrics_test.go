package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/keystore"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz"
)

var (
	_ sefaz.Observer         = (*Collector)(nil)
	_ keystore.CacheObserver = (*Collector)(nil)
	_ emission.StatusSink    = (*Collector)(nil)
)

func TestObserveRequest(t *testing.T) {
	c := NewCollector()
	c.ObserveRequest(sefaz.ServiceAuthorization, "http_200", 300*time.Millisecond)
	c.ObserveRequest(sefaz.ServiceAuthorization, "http_200", time.Second)
	c.ObserveRequest(sefaz.ServiceAuthorization, "TRANSPORT", 5*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues(string(sefaz.ServiceAuthorization), "http_200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues(string(sefaz.ServiceAuthorization), "TRANSPORT")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.requestDuration))
}

func TestCertificateCache(t *testing.T) {
	c := NewCollector()
	c.CertificateCache(false)
	c.CertificateCache(true)
	c.CertificateCache(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")))
}

func TestNotifyCountsTransitionsAndOutcomes(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()
	require.NoError(t, c.Notify(ctx, emission.Event{To: storage.StatusSigned}))
	require.NoError(t, c.Notify(ctx, emission.Event{To: storage.StatusProcessing, Attempt: 1}))
	require.NoError(t, c.Notify(ctx, emission.Event{To: storage.StatusAuthorized, StatusCode: "100", Attempt: 2}))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("processing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("authorized", "100")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.outcomes))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.CertificateCache(true)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `nfe_certificates_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
