package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/podlog/podlog/internal/match"
)

// HTTPClient implements Client against the podlog backend's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewHTTPClient creates a client for the backend at baseURL.
// Token is sent as a bearer credential on every request; pass an empty
// string for unauthenticated deployments.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateMatch implements Client.CreateMatch.
func (c *HTTPClient) CreateMatch(ctx context.Context, payload *match.Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal match payload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/matches/", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", c.responseError(resp)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode created match: %w", err)
	}
	if created.ID == "" {
		return "", &RemoteError{
			Category: CategoryServerError,
			Status:   resp.StatusCode,
			Message:  "server returned no match id",
		}
	}

	return created.ID, nil
}

// PlayerExists implements Client.PlayerExists.
func (c *HTTPClient) PlayerExists(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, "/api/players/"+id)
}

// DeckExists implements Client.DeckExists.
func (c *HTTPClient) DeckExists(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, "/api/decks/"+id)
}

func (c *HTTPClient) exists(ctx context.Context, path string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, c.responseError(resp)
	}
}

// do issues one request. Failures with no response surface as
// *TransportError so the classifier can tell them apart from server errors.
func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

// responseError converts a non-success response into a *RemoteError.
// The body is drained so the connection can be reused.
func (c *HTTPClient) responseError(resp *http.Response) error {
	var detail struct {
		Detail string `json:"detail"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &detail)

	message := detail.Detail
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &RemoteError{
		Category: statusCategory(resp.StatusCode),
		Status:   resp.StatusCode,
		Message:  message,
	}
}

// statusCategory maps HTTP status codes to outcome categories.
func statusCategory(status int) Category {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return CategoryMalformed
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryUnauthenticated
	case status == http.StatusNotFound || status == http.StatusGone:
		return CategoryEntityMissing
	case status == http.StatusConflict:
		return CategoryConflict
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status == http.StatusServiceUnavailable:
		return CategoryUnavailable
	default:
		return CategoryServerError
	}
}
