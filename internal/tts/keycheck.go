package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// KeyChecker verifies an API key against the voice listing endpoint, the
// cheapest authenticated call the service offers.
type KeyChecker struct {
	baseURL string
	client  *http.Client
}

// NewKeyChecker returns a KeyChecker against the production API.
func NewKeyChecker() *KeyChecker {
	return &KeyChecker{
		baseURL: "https://api.elevenlabs.io",
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL points the checker at a different API host. Used in tests.
func (k *KeyChecker) WithBaseURL(url string) *KeyChecker {
	k.baseURL = url
	return k
}

// Check reports nil when the key authenticates successfully.
func (k *KeyChecker) Check(ctx context.Context, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+"/v1/voices", nil)
	if err != nil {
		return fmt.Errorf("building key check request: %w", err)
	}
	req.Header.Set("xi-api-key", apiKey)

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("reaching speech service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &SynthesisError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
