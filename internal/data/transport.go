package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ShipRelay/internal/conf"
	"ShipRelay/internal/model"
	"ShipRelay/pkg/crypto"
	"ShipRelay/pkg/httpclient"

	"github.com/go-kratos/kratos/v2/log"
)

// maxResponseBody caps how much of an integration response is read into
// memory (4 MiB).
const maxResponseBody = 4 << 20

// credentialSet is the decrypted credential document stored per integration.
type credentialSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
}

// HTTPTransport implements biz.Transport: it resolves the integration's base
// URL and credentials, applies authentication, and performs the HTTP
// exchange. Per-call timeouts arrive through the context; the underlying
// client carries no timeout of its own.
type HTTPTransport struct {
	repo   *IntegrationRepo
	crypto *crypto.AESCrypto
	client *http.Client
	logger *log.Helper
}

// NewHTTPTransport creates the outbound transport, routed through the
// configured proxy when one is set.
func NewHTTPTransport(repo *IntegrationRepo, auth *conf.Auth, c *conf.Client, logger log.Logger) (*HTTPTransport, error) {
	aes, err := crypto.NewAESCrypto([]byte(auth.Encryption.Key))
	if err != nil {
		return nil, fmt.Errorf("invalid credential encryption key: %w", err)
	}

	// Timeout zero: the resilient client bounds each attempt via context.
	client, err := httpclient.New(c.ProxyURL, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}

	return &HTTPTransport{
		repo:   repo,
		crypto: aes,
		client: client,
		logger: log.NewHelper(logger),
	}, nil
}

// Do performs one HTTP exchange against the integration. Non-2xx statuses
// are returned as responses with a nil error; only transport-level failures
// produce an error.
func (t *HTTPTransport) Do(ctx context.Context, integrationID int64, req *model.Request) (*model.Response, error) {
	integration, err := t.repo.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, integration.BaseURL+req.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if err := t.authorize(httpReq, integration); err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", integration.Name, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", integration.Name, err)
	}

	t.logger.Debugw("integration exchange",
		"integration_id", integrationID,
		"method", req.Method,
		"endpoint", req.Endpoint,
		"status", httpResp.StatusCode,
		"latency", time.Since(start))

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	return &model.Response{
		StatusCode: httpResp.StatusCode,
		Headers:    headers,
		Body:       respBody,
	}, nil
}

// authorize attaches the integration's decrypted credentials: bearer token
// when present, X-Api-Key otherwise.
func (t *HTTPTransport) authorize(req *http.Request, integration *Integration) error {
	if integration.CredentialsEncrypted == "" {
		return nil
	}

	plain, err := t.crypto.Decrypt(integration.CredentialsEncrypted)
	if err != nil {
		return fmt.Errorf("failed to decrypt credentials for %s: %w", integration.Name, err)
	}

	var creds credentialSet
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return fmt.Errorf("malformed credentials for %s: %w", integration.Name, err)
	}

	switch {
	case creds.AccessToken != "":
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	case creds.APIKey != "":
		req.Header.Set("X-Api-Key", creds.APIKey)
	}
	return nil
}
