package kv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CloudflareConfig carries the credentials for a Workers KV namespace
// (distilled spec §6: "credentials for KV (account id, api token,
// namespace id)").
type CloudflareConfig struct {
	AccountID   string
	APIToken    string
	NamespaceID string
}

// CloudflareStore is the production KV store, wrapping the Workers KV REST
// API (grounded on the teacher's RSClient: a plain *http.Client with
// pooled connections and context-scoped timeouts).
type CloudflareStore struct {
	httpClient *http.Client
	cfg        CloudflareConfig
	logger     *zap.Logger
}

// NewCloudflareStore builds a client bound to one account/namespace.
func NewCloudflareStore(cfg CloudflareConfig, logger *zap.Logger) *CloudflareStore {
	return &CloudflareStore{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:    cfg,
		logger: logger,
	}
}

func (c *CloudflareStore) baseURL(key string) string {
	return fmt.Sprintf(
		"https://api.cloudflare.com/client/v4/accounts/%s/storage/kv/namespaces/%s/values/%s",
		c.cfg.AccountID, c.cfg.NamespaceID, url.PathEscape(key),
	)
}

// Get implements the KV provider contract: "get(namespaceId, key,
// {accountId}) → {status, body}; a 404-typed exception indicates absence".
func (c *CloudflareStore) Get(ctx context.Context, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(key), nil)
	if err != nil {
		return "", fmt.Errorf("kv get %s: failed to build request: %w", key, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("kv get %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("kv get %s: unexpected status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("kv get %s: failed to read body: %w", key, err)
	}
	return string(body), nil
}

// Put implements "update(namespaceId, key, {accountId, value, expiration_ttl})".
func (c *CloudflareStore) Put(ctx context.Context, key, value string, ttlSeconds int) error {
	form := url.Values{}
	form.Set("value", value)
	if ttlSeconds > 0 {
		form.Set("expiration_ttl", strconv.Itoa(ttlSeconds))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL(key), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("kv put %s: failed to build request: %w", key, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("kv put %s: unexpected status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
