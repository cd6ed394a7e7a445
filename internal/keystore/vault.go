package keystore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// VaultConfig holds the KV v2 endpoint settings
type VaultConfig struct {
	Address string
	Token   string
	Mount   string
	Timeout time.Duration
}

// VaultSecretStore reads passwords from a KV v2 secrets engine. A reference
// has the form "path#field"; the field defaults to "password".
type VaultSecretStore struct {
	client *resty.Client
	mount  string
}

type kvResponse struct {
	Data struct {
		Data map[string]interface{} `json:"data"`
	} `json:"data"`
}

// NewVaultSecretStore creates a vault backed secret store
func NewVaultSecretStore(cfg VaultConfig) *VaultSecretStore {
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Address, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("X-Vault-Token", cfg.Token).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &VaultSecretStore{client: client, mount: strings.Trim(cfg.Mount, "/")}
}

// Secret implements SecretStore
func (s *VaultSecretStore) Secret(ctx context.Context, ref string) (string, error) {
	path, field, found := strings.Cut(ref, "#")
	if !found || field == "" {
		field = "password"
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return "", fmt.Errorf("%w: empty reference", ErrSecretNotFound)
	}

	var out kvResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/" + s.mount + "/data/" + path)
	if err != nil {
		return "", fmt.Errorf("querying vault: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	case resp.IsError():
		return "", fmt.Errorf("vault returned HTTP %d for %s", resp.StatusCode(), path)
	}

	v, ok := out.Data.Data[field].(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q of %s", ErrSecretNotFound, field, path)
	}
	return v, nil
}
