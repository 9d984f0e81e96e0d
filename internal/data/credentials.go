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
	"ShipRelay/pkg/crypto"

	"github.com/go-kratos/kratos/v2/log"
)

// refreshTimeout bounds one token refresh exchange.
const refreshTimeout = 30 * time.Second

// CredentialRefresher implements biz.CredentialRefresher: it exchanges the
// integration's refresh token at its token URL and stores the re-encrypted
// result. Token acquisition flows (initial OAuth dances) are external.
type CredentialRefresher struct {
	repo   *IntegrationRepo
	crypto *crypto.AESCrypto
	client *http.Client
	logger *log.Helper
}

// NewCredentialRefresher creates the refresher.
func NewCredentialRefresher(repo *IntegrationRepo, auth *conf.Auth, logger log.Logger) (*CredentialRefresher, error) {
	aes, err := crypto.NewAESCrypto([]byte(auth.Encryption.Key))
	if err != nil {
		return nil, fmt.Errorf("invalid credential encryption key: %w", err)
	}
	return &CredentialRefresher{
		repo:   repo,
		crypto: aes,
		client: &http.Client{Timeout: refreshTimeout},
		logger: log.NewHelper(logger),
	}, nil
}

// tokenResponse is the token endpoint's reply.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// Refresh exchanges the refresh token and persists the new credential blob.
func (r *CredentialRefresher) Refresh(ctx context.Context, integration *Integration) error {
	if integration.TokenURL == "" {
		return fmt.Errorf("integration %d has no token URL", integration.ID)
	}

	plain, err := r.crypto.Decrypt(integration.CredentialsEncrypted)
	if err != nil {
		return fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds credentialSet
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return fmt.Errorf("malformed stored credentials: %w", err)
	}
	if creds.RefreshToken == "" {
		return fmt.Errorf("integration %d has no refresh token", integration.ID)
	}

	token, err := r.exchange(ctx, integration.TokenURL, creds.RefreshToken)
	if err != nil {
		return err
	}

	creds.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		creds.RefreshToken = token.RefreshToken
	}

	updated, err := json.Marshal(&creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	encrypted, err := r.crypto.Encrypt(string(updated))
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	var expiresAt *time.Time
	if token.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	if err := r.repo.UpdateCredentials(ctx, integration.ID, encrypted, expiresAt); err != nil {
		return err
	}

	r.logger.Infow("credentials refreshed",
		"integration_id", integration.ID,
		"integration", integration.Name,
		"expires_at", expiresAt)
	return nil
}

// exchange performs the refresh_token grant against the token endpoint.
func (r *CredentialRefresher) exchange(ctx context.Context, tokenURL, refreshToken string) (*tokenResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &token, nil
}
