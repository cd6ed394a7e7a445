package keystore

import (
	"context"
	"crypto/x509"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security/securitytest"
)

type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
	calls int32
	delay time.Duration
}

func (m *memBlobs) Fetch(_ context.Context, name string) ([]byte, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[name]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return b, nil
}

type memSecrets map[string]string

func (m memSecrets) Secret(_ context.Context, ref string) (string, error) {
	v, ok := m[ref]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

type countingObserver struct {
	hits, misses int32
}

func (o *countingObserver) CertificateCache(hit bool) {
	if hit {
		atomic.AddInt32(&o.hits, 1)
	} else {
		atomic.AddInt32(&o.misses, 1)
	}
}

func newTestLoader(t *testing.T, cert *securitytest.Certificate, mod func(*LoaderConfig)) (*Loader, *memBlobs, *countingObserver) {
	t.Helper()
	blobs := &memBlobs{blobs: map[string][]byte{"acme.pfx": cert.PFX}}
	obs := &countingObserver{}
	cfg := LoaderConfig{
		References: NewStaticReferences(map[string]Reference{
			"acme": {Bundle: "acme.pfx", PasswordRef: "acme"},
		}),
		Blobs:    blobs,
		Secrets:  memSecrets{"acme": securitytest.Password},
		TTL:      time.Hour,
		Observer: obs,
	}
	if mod != nil {
		mod(&cfg)
	}
	l, err := NewLoader(cfg)
	require.NoError(t, err)
	return l, blobs, obs
}

func TestLoadCachesCredentials(t *testing.T) {
	cert := securitytest.Generate(t)
	l, blobs, obs := newTestLoader(t, cert, nil)

	first, err := l.Load(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", first.CompanyID)
	assert.Equal(t, cert.Cert.SerialNumber, first.Certificate().SerialNumber)

	second, err := l.Load(context.Background(), "acme")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&blobs.calls))
	assert.Equal(t, int32(1), obs.hits)
	assert.Equal(t, int32(1), obs.misses)
	assert.Equal(t, 1, l.Cached())

	l.Invalidate("acme")
	_, err = l.Load(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&blobs.calls))
}

func TestLoadCollapsesConcurrentMisses(t *testing.T) {
	cert := securitytest.Generate(t)
	l, blobs, _ := newTestLoader(t, cert, nil)
	blobs.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	results := make([]*Credentials, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := l.Load(context.Background(), "acme")
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&blobs.calls))
	for _, c := range results[1:] {
		assert.Same(t, results[0], c)
	}
}

type gatedBlobs struct {
	pfx     []byte
	once    sync.Once
	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	ctxErr error
}

func (g *gatedBlobs) Fetch(ctx context.Context, _ string) ([]byte, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	g.mu.Lock()
	g.ctxErr = ctx.Err()
	g.mu.Unlock()
	return g.pfx, nil
}

func TestLoadSurvivesCancelledLeader(t *testing.T) {
	cert := securitytest.Generate(t)
	gated := &gatedBlobs{pfx: cert.PFX, started: make(chan struct{}), release: make(chan struct{})}
	l, _, _ := newTestLoader(t, cert, func(cfg *LoaderConfig) { cfg.Blobs = gated })

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := l.Load(leaderCtx, "acme")
		leaderErr <- err
	}()
	<-gated.started

	type result struct {
		creds *Credentials
		err   error
	}
	follower := make(chan result, 1)
	go func() {
		c, err := l.Load(context.Background(), "acme")
		follower <- result{c, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared load")
	}

	close(gated.release)
	select {
	case res := <-follower:
		require.NoError(t, res.err)
		assert.Equal(t, "acme", res.creds.CompanyID)
	case <-time.After(time.Second):
		t.Fatal("follower never received credentials")
	}

	gated.mu.Lock()
	defer gated.mu.Unlock()
	assert.NoError(t, gated.ctxErr)
	assert.Equal(t, 1, l.Cached())
}

func TestLoadSigningCredentialsRoundTrip(t *testing.T) {
	cert := securitytest.Generate(t)
	l, _, _ := newTestLoader(t, cert, nil)

	creds, err := l.Load(context.Background(), "acme")
	require.NoError(t, err)
	assert.NotContains(t, string(creds.sealedPassword), securitytest.Password)

	signing, err := creds.Signing()
	require.NoError(t, err)
	assert.Equal(t, securitytest.Password, signing.Password)
	assert.Equal(t, cert.PFX, signing.Bundle)

	tlsCert := creds.TLSCertificate()
	require.NotEmpty(t, tlsCert.Certificate)
	assert.Equal(t, cert.Cert.Raw, tlsCert.Certificate[0])
}

func TestLoadErrors(t *testing.T) {
	cert := securitytest.Generate(t)

	t.Run("unknown company", func(t *testing.T) {
		l, _, _ := newTestLoader(t, cert, nil)
		_, err := l.Load(context.Background(), "other")
		assert.True(t, IsNotConfigured(err), "got %v", err)

		_, err = l.Load(context.Background(), "")
		assert.True(t, IsNotConfigured(err))
	})

	t.Run("empty bundle", func(t *testing.T) {
		l, blobs, _ := newTestLoader(t, cert, nil)
		blobs.blobs["acme.pfx"] = nil
		_, err := l.Load(context.Background(), "acme")
		assert.ErrorIs(t, err, ErrEmptyBundle)
	})

	t.Run("missing password", func(t *testing.T) {
		l, _, _ := newTestLoader(t, cert, func(c *LoaderConfig) { c.Secrets = memSecrets{} })
		_, err := l.Load(context.Background(), "acme")
		assert.ErrorIs(t, err, ErrSecretNotFound)
	})

	t.Run("wrong password", func(t *testing.T) {
		l, _, _ := newTestLoader(t, cert, func(c *LoaderConfig) { c.Secrets = memSecrets{"acme": "nope"} })
		_, err := l.Load(context.Background(), "acme")
		assert.ErrorIs(t, err, security.ErrWrongPassword)
		assert.Equal(t, 0, l.Cached())
	})

	t.Run("expired", func(t *testing.T) {
		expired := securitytest.GenerateWith(t, securitytest.Options{
			NotBefore: time.Now().Add(-48 * time.Hour),
			NotAfter:  time.Now().Add(-time.Hour),
		})
		l, _, _ := newTestLoader(t, expired, nil)
		_, err := l.Load(context.Background(), "acme")
		assert.ErrorIs(t, err, ErrCertificateExpired)
	})
}

func TestLoadDropsCachedCertificateAfterExpiry(t *testing.T) {
	cert := securitytest.GenerateWith(t, securitytest.Options{NotAfter: time.Now().Add(2 * time.Hour)})
	now := time.Now()
	l, blobs, _ := newTestLoader(t, cert, func(c *LoaderConfig) {
		c.Now = func() time.Time { return now }
	})

	_, err := l.Load(context.Background(), "acme")
	require.NoError(t, err)

	now = now.Add(3 * time.Hour)
	_, err = l.Load(context.Background(), "acme")
	assert.ErrorIs(t, err, ErrCertificateExpired)
	assert.Equal(t, int32(2), atomic.LoadInt32(&blobs.calls))
}

type rejectAll struct{}

func (rejectAll) ValidateCertificate(*x509.Certificate, []*x509.Certificate, time.Time) error {
	return errors.New("untrusted")
}

func TestLoadRunsValidator(t *testing.T) {
	cert := securitytest.Generate(t)
	l, _, _ := newTestLoader(t, cert, func(c *LoaderConfig) { c.Validator = rejectAll{} })
	_, err := l.Load(context.Background(), "acme")
	assert.EqualError(t, err, "untrusted")
}

func TestNewLoaderRequiresSources(t *testing.T) {
	_, err := NewLoader(LoaderConfig{})
	assert.Error(t, err)
}

func TestSealer(t *testing.T) {
	s, err := NewSealer([]byte("0123456789abcdef0123"))
	require.NoError(t, err)

	a, err := s.Seal([]byte("secret"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("secret"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonces must differ")

	plain, err := s.Open(a)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plain))

	a[len(a)-1] ^= 0xff
	_, err = s.Open(a)
	assert.Error(t, err)
	_, err = s.Open([]byte{1, 2})
	assert.Error(t, err)

	_, err = NewSealer([]byte("short"))
	assert.Error(t, err)

	other, err := NewSealer(nil)
	require.NoError(t, err)
	_, err = other.Open(b)
	assert.Error(t, err)
}
