package keystore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// StaticReferences is a ReferenceSource backed by a fixed map, usually the
// certificates.companies section of the configuration
type StaticReferences struct {
	mu   sync.RWMutex
	refs map[string]Reference
}

// NewStaticReferences creates a source from company id to reference
func NewStaticReferences(refs map[string]Reference) *StaticReferences {
	m := make(map[string]Reference, len(refs))
	for id, r := range refs {
		r.CompanyID = id
		m[id] = r
	}
	return &StaticReferences{refs: m}
}

// Reference implements ReferenceSource
func (s *StaticReferences) Reference(_ context.Context, companyID string) (Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.refs[companyID]
	if !ok {
		return Reference{}, fmt.Errorf("%w: %s", ErrNotConfigured, companyID)
	}
	return r, nil
}

// Set adds or replaces a company reference
func (s *StaticReferences) Set(r Reference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[r.CompanyID] = r
}

// FileBlobStore reads PKCS#12 files below a directory
type FileBlobStore struct {
	dir string
}

// NewFileBlobStore creates a store rooted at dir
func NewFileBlobStore(dir string) *FileBlobStore {
	return &FileBlobStore{dir: dir}
}

// Fetch implements BlobStore
func (s *FileBlobStore) Fetch(_ context.Context, name string) ([]byte, error) {
	clean := filepath.Clean("/" + name)
	path := filepath.Join(s.dir, clean)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, name)
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// EnvSecretStore reads passwords from environment variables. A reference is
// upper-cased, every character outside [A-Z0-9] becomes '_' and the prefix is
// prepended: "nfe/acme#password" with prefix "NFE_CERT_PASSWORD_" reads
// NFE_CERT_PASSWORD_NFE_ACME_PASSWORD.
type EnvSecretStore struct {
	prefix string
}

// NewEnvSecretStore creates an environment backed secret store
func NewEnvSecretStore(prefix string) *EnvSecretStore {
	return &EnvSecretStore{prefix: prefix}
}

// VariableName returns the environment variable read for ref
func (s *EnvSecretStore) VariableName(ref string) string {
	return s.prefix + strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		}
		return '_'
	}, ref)
}

// Secret implements SecretStore
func (s *EnvSecretStore) Secret(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(s.VariableName(ref))
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
	}
	return v, nil
}
