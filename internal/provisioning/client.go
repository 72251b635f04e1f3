// Package provisioning is the HTTP client for the external VPN account
// manager. Every call retries transient failures with bounded
// exponential backoff; authentication and validation errors fail
// immediately.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

const (
	requestTimeout = 15 * time.Second

	retryAttempts     = 4
	retryInitialDelay = 300 * time.Millisecond
	retryMaxDelay     = 5 * time.Second
)

type Client struct {
	logger *logger.Logger

	baseURL string
	token   string

	http *http.Client
}

func New(baseURL, token string, logger *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		logger:  logger,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Username derives the remote account name from the Telegram id. The
// derivation is fixed so a re-derivation always finds the same account.
func Username(tgID int64) string {
	return fmt.Sprintf("spn_%d", tgID)
}

type accountResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expires_at"`
}

// GetOrCreateAccount creates the account for the user or returns the
// existing one. Idempotent on the derived username: a conflict on create
// falls back to a lookup and reports Created=false so the caller can
// extend instead.
func (c *Client) GetOrCreateAccount(ctx context.Context, tgID int64, initialDays int64) (*models.VpnAccount, error) {
	username := Username(tgID)

	body := map[string]interface{}{"username": username, "days": initialDays}
	var created accountResponse
	status, err := c.do(ctx, http.MethodPost, "/api/v1/accounts", body, &created)
	if err == nil {
		return &models.VpnAccount{ID: created.ID, Username: created.Username, ExpiresAt: created.ExpiresAt, Created: true}, nil
	}
	if status != http.StatusConflict {
		return nil, fmt.Errorf("failed to create account: %s", err)
	}
	// Account already exists; not an error, the caller extends instead.

	var existing accountResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/accounts/by-username/"+username, nil, &existing); err != nil {
		return nil, fmt.Errorf("failed to look up existing account: %s", err)
	}
	return &models.VpnAccount{ID: existing.ID, Username: existing.Username, ExpiresAt: existing.ExpiresAt}, nil
}

// Extend adds days to the remote expiry. The remote side reads, adds and
// writes back without atomicity; callers serialize via the user lock.
func (c *Client) Extend(ctx context.Context, accountID int64, days int64) error {
	path := fmt.Sprintf("/api/v1/accounts/%d/extend", accountID)
	if _, err := c.do(ctx, http.MethodPost, path, map[string]interface{}{"days": days}, nil); err != nil {
		return fmt.Errorf("failed to extend account: %s", err)
	}
	return nil
}

// SetExpiry overwrites the remote expiry. Revoke paths use it to keep
// the remote side in step with the local ledger.
func (c *Client) SetExpiry(ctx context.Context, accountID int64, until int64) error {
	path := fmt.Sprintf("/api/v1/accounts/%d/expiry", accountID)
	if _, err := c.do(ctx, http.MethodPut, path, map[string]interface{}{"expires_at": until}, nil); err != nil {
		return fmt.Errorf("failed to set account expiry: %s", err)
	}
	return nil
}

// AddToGroup puts the account into an access group. Callers treat a
// failure as non-fatal since the policy may already include the user.
func (c *Client) AddToGroup(ctx context.Context, accountID int64, groupID int64) error {
	path := fmt.Sprintf("/api/v1/accounts/%d/groups", accountID)
	if _, err := c.do(ctx, http.MethodPost, path, map[string]interface{}{"group_id": groupID}, nil); err != nil {
		return fmt.Errorf("failed to add account to group: %s", err)
	}
	return nil
}

func (c *Client) ShareLink(ctx context.Context, accountID int64) (string, error) {
	path := fmt.Sprintf("/api/v1/accounts/%d/share-link", accountID)
	var out struct {
		URL string `json:"url"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", fmt.Errorf("failed to get share link: %s", err)
	}
	return out.URL, nil
}

// do runs one request with bounded exponential backoff. Network errors,
// timeouts and 5xx responses are retried; 4xx responses are permanent
// except 409, which is reported to the caller with the status code.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	backoff := retry.WithMaxRetries(retryAttempts,
		retry.WithCappedDuration(retryMaxDelay, retry.NewExponential(retryInitialDelay)))

	var status int
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to marshal request body: %s", err)
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to build request: %s", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn("Provisioning request failed, will retry ", "path ", path, " error ", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		if resp.StatusCode >= http.StatusInternalServerError {
			data, _ := io.ReadAll(resp.Body)
			c.logger.Warn("Provisioning server error, will retry ", "path ", path, " status ", resp.StatusCode)
			return retry.RetryableError(fmt.Errorf("server error %d: %s", resp.StatusCode, string(data)))
		}
		if resp.StatusCode == http.StatusConflict {
			return fmt.Errorf("conflict")
		}
		if resp.StatusCode >= http.StatusBadRequest {
			data, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("request rejected %d: %s", resp.StatusCode, string(data))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode response: %s", err)
			}
		}
		return nil
	})
	return status, err
}
