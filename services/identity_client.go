// services/identity_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"player-identity-system/utils"
)

// Identity is the authoritative answer from the external identity service.
// Whatever a client claims about itself, these values win.
type Identity struct {
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	AuthMethod    string `json:"auth_method,omitempty"`
}

// IdentityResolver validates an opaque bearer credential. (nil, nil) means
// the authority rejected the credential; a non-nil error means the
// authority could not be reached within the retry budget. Both fail closed.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

type IdentityClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	Retries        int
	AttemptTimeout time.Duration

	cache *utils.TTLCache[*Identity]
}

func NewIdentityClient(cache *utils.TTLCache[*Identity]) *IdentityClient {
	baseURL := os.Getenv("IDENTITY_API_URL")
	if baseURL == "" {
		log.Fatal("IDENTITY_API_URL environment variable not set")
	}
	apiKey := os.Getenv("IDENTITY_API_KEY")
	if apiKey == "" {
		log.Fatal("IDENTITY_API_KEY environment variable not set")
	}

	retries := 2
	if v := os.Getenv("IDENTITY_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			retries = n
		}
	}

	return &IdentityClient{
		BaseURL:        baseURL,
		APIKey:         apiKey,
		Retries:        retries,
		AttemptTimeout: 3 * time.Second,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: cache,
	}
}

// Resolve validates the credential with bounded retries. Only transport
// errors and 5xx responses are retried — a rejection is authoritative and
// returned immediately.
func (c *IdentityClient) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, nil
	}
	cacheKey := utils.HashToken(token)
	if c.cache != nil {
		if identity, ok := c.cache.Get(cacheKey); ok {
			return identity, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.AttemptTimeout)
		identity, retryable, err := c.validateOnce(attemptCtx, token)
		cancel()

		if err == nil {
			if identity == nil {
				return nil, nil
			}
			if c.cache != nil {
				c.cache.Set(cacheKey, identity, time.Minute)
			}
			return identity, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	log.Printf("❌ [IDENTITY] credential validation exhausted retries: %v", lastErr)
	return nil, lastErr
}

func (c *IdentityClient) validateOnce(ctx context.Context, token string) (*Identity, bool, error) {
	url := fmt.Sprintf("%s/v1/identity/validate", c.BaseURL)

	jsonData, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode == http.StatusOK:
		var out Identity
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, false, err
		}
		if out.UserID == "" {
			return nil, false, fmt.Errorf("identity service returned no user id")
		}
		return &out, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("identity service returned %d: %s", resp.StatusCode, string(body))
	default:
		// 4xx: credential rejected, no point retrying.
		log.Printf("🚫 [IDENTITY] credential rejected (%d)", resp.StatusCode)
		return nil, false, nil
	}
}
