package shopping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shopping-planner/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	apiPrefix   = "/api/v1/shopping"
	tokenTTL    = 5 * time.Minute
	maxErrorLen = 1 << 12
)

// Service is the remote shopping backend as seen by the session.
type Service interface {
	Preview(ctx context.Context, start, end Date) (*Preview, error)
	Generate(ctx context.Context, req GenerateRequest) (*ShoppingList, error)
	ExportText(ctx context.Context, req GenerateRequest) (string, error)
}

// Client talks to the shopping endpoints of the meal planning backend.
type Client struct {
	baseURL    string
	secret     []byte
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new shopping API client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	var secret []byte
	if cfg.APISecret != "" {
		secret = []byte(cfg.APISecret)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		secret:  secret,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		logger: logger.Named("shopping"),
	}
}

// Preview fetches the meal assignments a list for [start, end] would cover.
func (c *Client) Preview(ctx context.Context, start, end Date) (*Preview, error) {
	q := url.Values{}
	q.Set("start_date", start.String())
	q.Set("end_date", end.String())

	var preview Preview
	if err := c.doJSON(ctx, "preview", http.MethodGet, "/preview?"+q.Encode(), nil, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// Generate asks the backend to compute the shopping list for req.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*ShoppingList, error) {
	var list ShoppingList
	if err := c.doJSON(ctx, "generate", http.MethodPost, "/generate", req, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ExportText returns the backend's plain text rendition of the list for req.
func (c *Client) ExportText(ctx context.Context, req GenerateRequest) (string, error) {
	resp, err := c.do(ctx, "export", http.MethodPost, "/export/text", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("export: failed to read response: %w", err)
	}
	return string(body), nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	resp, err := c.do(ctx, op, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// do sends the request and returns the response only for 2xx statuses.
func (c *Client) do(ctx context.Context, op, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request body: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != nil {
		token, err := c.createToken()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to create api token: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("op", op), zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("%s: failed to execute request: %w", op, err)
	}
	c.logger.Debug("request done",
		zap.String("op", op),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	return resp, nil
}

// readDetail extracts FastAPI's {"detail": ...} message, falling back to the
// raw body.
func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorLen))
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	return strings.TrimSpace(string(raw))
}

// createToken signs a short-lived HS256 token for the backend.
func (c *Client) createToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "shopping-planner",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	})
	return token.SignedString(c.secret)
}
