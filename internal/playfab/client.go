// Package playfab is a minimal PlayFab Client API binding for the
// per-player user-data record that holds the playtime ledger.
package playfab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goodtune/playgate/internal/storage"
)

// DefaultTimeout bounds a single Client API call
const DefaultTimeout = 10 * time.Second

// Config holds PlayFab client configuration
type Config struct {
	// BaseURL overrides https://{titleId}.playfabapi.com
	BaseURL string
	Timeout time.Duration
}

// Client talks to the PlayFab Client API using a player's session ticket
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is the error envelope returned by PlayFab
type APIError struct {
	HTTPCode     int    `json:"code"`
	Status       string `json:"status"`
	Name         string `json:"error"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	msg := e.ErrorMessage
	if msg == "" {
		msg = e.Status
	}
	if e.Name != "" {
		return fmt.Sprintf("playfab: %s (%d): %s", e.Name, e.HTTPCode, msg)
	}
	return fmt.Sprintf("playfab: HTTP %d: %s", e.HTTPCode, msg)
}

type envelope struct {
	APIError
	Data json.RawMessage `json:"data"`
}

type userDataValue struct {
	Value       string `json:"Value"`
	LastUpdated string `json:"LastUpdated,omitempty"`
	Permission  string `json:"Permission,omitempty"`
}

type getUserDataResult struct {
	Data map[string]userDataValue `json:"Data"`
}

// NewClient creates a new PlayFab client
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// GetRecord reads the playtime fields of the player's user data.
// A player with neither field set yields storage.ErrNotFound.
func (c *Client) GetRecord(ctx context.Context, key storage.LedgerKey) (*storage.PlaytimeRecord, error) {
	body := map[string]interface{}{
		"Keys": []string{storage.FieldPlaytimeSeconds, storage.FieldPlaytimeDate},
	}

	var result getUserDataResult
	if err := c.call(ctx, key, "/Client/GetUserData", body, &result); err != nil {
		return nil, err
	}

	fields := make(map[string]string, 2)
	for _, name := range []string{storage.FieldPlaytimeSeconds, storage.FieldPlaytimeDate} {
		if v, ok := result.Data[name]; ok {
			fields[name] = v.Value
		}
	}

	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}

	return storage.ParseRecord(fields)
}

// PutRecord writes both playtime fields in a single UpdateUserData call
func (c *Client) PutRecord(ctx context.Context, key storage.LedgerKey, record storage.PlaytimeRecord) error {
	body := map[string]interface{}{
		"Data": record.Fields(),
	}

	return c.call(ctx, key, "/Client/UpdateUserData", body, nil)
}

func (c *Client) endpoint(applicationID, path string) string {
	if c.baseURL != "" {
		return c.baseURL + path
	}
	return fmt.Sprintf("https://%s.playfabapi.com%s", applicationID, path)
}

// call POSTs a JSON body and decodes the data member of the response envelope into out
func (c *Client) call(ctx context.Context, key storage.LedgerKey, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(key.ApplicationID, path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Authorization", key.Credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("playfab request %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read playfab response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{HTTPCode: resp.StatusCode, Status: resp.Status}
		}
		return fmt.Errorf("failed to decode playfab response: %w", err)
	}

	if resp.StatusCode >= 300 || env.Name != "" {
		apiErr := env.APIError
		if apiErr.HTTPCode == 0 {
			apiErr.HTTPCode = resp.StatusCode
		}
		return &apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode playfab data: %w", err)
	}

	return nil
}
