// Package dashboard provides a client for the dashboard statement API.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zwinlu/tidb-dashboard/pkg/config"
	"github.com/zwinlu/tidb-dashboard/pkg/logging"
	"github.com/zwinlu/tidb-dashboard/pkg/models"
)

// DefaultTimeout is the maximum time to wait for dashboard API responses
// when the configuration does not override it.
const DefaultTimeout = 30 * time.Second

// StatementConfig is the server-side feature configuration for statement
// statistics.
type StatementConfig struct {
	Enable bool `json:"enable"`
}

// StatementsRequest carries the filter parameters for a statement list
// or download-token call.
type StatementsRequest struct {
	BeginTime int64    `json:"begin_time"`
	EndTime   int64    `json:"end_time"`
	Fields    string   `json:"fields"`
	Schemas   []string `json:"schemas"`
	StmtTypes []string `json:"stmt_types"`
	Text      string   `json:"text"`
}

// Client is the dashboard API surface consumed by the statement view.
// All calls are read-only except DownloadToken, which mints a one-use
// credential for the CSV download redirect.
type Client interface {
	// Config fetches whether statement statistics are enabled.
	Config(ctx context.Context) (StatementConfig, error)
	// Schemas fetches the list of schema names known to the server.
	Schemas(ctx context.Context) ([]string, error)
	// TimeRanges fetches the concrete statistics windows the server can
	// answer queries for.
	TimeRanges(ctx context.Context) ([]models.StatementTimeRange, error)
	// StmtTypes fetches the statement kinds present in the statistics.
	StmtTypes(ctx context.Context) ([]string, error)
	// Overviews fetches the statement rows matching the request.
	Overviews(ctx context.Context, req StatementsRequest) ([]models.StatementModel, error)
	// DownloadToken exchanges the request for a one-use download token.
	DownloadToken(ctx context.Context, req StatementsRequest) (string, error)
	// DownloadURL builds the browser-facing download URL for a token.
	DownloadURL(token string) string
}

type client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	logger     *zap.Logger
}

var _ Client = (*client)(nil)

// NewClient creates a new dashboard API client.
func NewClient(cfg config.DashboardConfig, logger *zap.Logger) Client {
	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:   cfg.Endpoint,
		authToken: cfg.AuthToken,
		logger:    logger.Named("dashboard"),
	}
}

func (c *client) Config(ctx context.Context) (StatementConfig, error) {
	var out StatementConfig
	if err := c.getJSON(ctx, nil, &out, "statements", "config"); err != nil {
		return StatementConfig{}, err
	}
	return out, nil
}

func (c *client) Schemas(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, nil, &out, "info", "databases"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) TimeRanges(ctx context.Context) ([]models.StatementTimeRange, error) {
	var out []models.StatementTimeRange
	if err := c.getJSON(ctx, nil, &out, "statements", "time_ranges"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) StmtTypes(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, nil, &out, "statements", "stmt_types"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) Overviews(ctx context.Context, req StatementsRequest) ([]models.StatementModel, error) {
	query := url.Values{}
	query.Set("begin_time", fmt.Sprintf("%d", req.BeginTime))
	query.Set("end_time", fmt.Sprintf("%d", req.EndTime))
	query.Set("fields", req.Fields)
	query.Set("schemas", strings.Join(req.Schemas, ","))
	query.Set("stmt_types", strings.Join(req.StmtTypes, ","))
	query.Set("text", req.Text)

	c.logger.Debug("Fetching statement overviews",
		zap.Int64("begin_time", req.BeginTime),
		zap.Int64("end_time", req.EndTime),
		zap.String("fields", req.Fields),
		zap.Strings("schemas", req.Schemas),
		zap.Strings("stmt_types", req.StmtTypes),
		zap.String("text", logging.TruncateText(req.Text)))

	var out []models.StatementModel
	if err := c.getJSON(ctx, query, &out, "statements", "overviews"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) DownloadToken(ctx context.Context, req StatementsRequest) (string, error) {
	endpoint, err := buildURL(c.baseURL, "statements", "download", "token")
	if err != nil {
		return "", fmt.Errorf("failed to build URL: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call dashboard API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Dashboard API returned error",
			zap.String("path", "statements/download/token"),
			zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("dashboard API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var response struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return response.Token, nil
}

// DownloadURL builds {basePath}/statements/download?token={token}. The
// browser is navigated to this URL; the client never reads the response
// body itself.
func (c *client) DownloadURL(token string) string {
	endpoint, err := buildURL(c.baseURL, "statements", "download")
	if err != nil {
		// baseURL was validated at config load; keep the raw fallback.
		endpoint = strings.TrimRight(c.baseURL, "/") + "/statements/download"
	}
	return endpoint + "?token=" + url.QueryEscape(token)
}

// getJSON executes a GET against the given path segments and decodes the
// JSON response into out.
func (c *client) getJSON(ctx context.Context, query url.Values, out interface{}, pathSegments ...string) error {
	endpoint, err := buildURL(c.baseURL, pathSegments...)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call dashboard API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Dashboard API returned error",
			zap.String("path", path.Join(pathSegments...)),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("dashboard API returned status %d: %s", resp.StatusCode, string(body))
	}

	if len(body) == 0 {
		// Absent payload: leave out at its zero value, callers default
		// to empty collections.
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *client) setAuth(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
