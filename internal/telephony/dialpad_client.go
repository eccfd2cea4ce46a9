package telephony

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

	"github.com/wolfman30/moving-call-relay/internal/observability/metrics"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

const (
	defaultDialpadBaseURL = "https://dialpad.com/api/v2"
	dialpadCallTimeout    = 15 * time.Second

	// Calls whose ID starts with this prefix are synthetic and never reach the API.
	TestCallPrefix = "test-"
)

// DialpadClientConfig configures DialpadClient.
type DialpadClientConfig struct {
	// APIToken is the Dialpad API key (Bearer token).
	APIToken string
	// BaseURL overrides the Dialpad API base URL (for testing).
	BaseURL    string
	HTTPClient *http.Client
	Metrics    *metrics.RelayMetrics
	Logger     *logging.Logger
}

// DialpadClient calls the Dialpad call control REST endpoints.
type DialpadClient struct {
	token      string
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.RelayMetrics
	logger     *logging.Logger
}

// NewDialpadClient creates a Dialpad REST client. An API token is required.
func NewDialpadClient(cfg DialpadClientConfig) (*DialpadClient, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, fmt.Errorf("dialpad client: API token required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultDialpadBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: dialpadCallTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &DialpadClient{
		token:      cfg.APIToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		logger:     logger,
	}, nil
}

func (c *DialpadClient) Answer(ctx context.Context, callID string) Result {
	return c.do(ctx, "answer", callID, "application/json", []byte("{}"))
}

func (c *DialpadClient) PlayAudio(ctx context.Context, callID string, audio []byte) Result {
	if len(audio) == 0 {
		return c.record("play", callID, failed(fmt.Errorf("dialpad: audio required")))
	}
	return c.do(ctx, "play", callID, "audio/mp3", audio)
}

func (c *DialpadClient) Transfer(ctx context.Context, callID, target string) Result {
	if strings.TrimSpace(target) == "" {
		return c.record("transfer", callID, failed(fmt.Errorf("dialpad: transfer target required")))
	}
	body, err := json.Marshal(map[string]string{"target": target})
	if err != nil {
		return c.record("transfer", callID, failed(err))
	}
	return c.do(ctx, "transfer", callID, "application/json", body)
}

func (c *DialpadClient) do(ctx context.Context, action, callID, contentType string, body []byte) Result {
	if strings.TrimSpace(callID) == "" {
		return c.record(action, callID, failed(fmt.Errorf("dialpad: call id required")))
	}
	if strings.HasPrefix(callID, TestCallPrefix) {
		c.logger.Info("dialpad: test call, simulating success", "call_id", callID, "action", action)
		return c.record(action, callID, ok())
	}

	endpoint := fmt.Sprintf("%s/calls/%s/%s", c.baseURL, url.PathEscape(callID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return c.record(action, callID, failed(fmt.Errorf("dialpad: create request: %w", err)))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.record(action, callID, failed(fmt.Errorf("dialpad: http request: %w", err)))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return c.record(action, callID, failed(fmt.Errorf("dialpad: read response: %w", err)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("dialpad: API error",
			"call_id", callID,
			"action", action,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return c.record(action, callID, failed(fmt.Errorf("dialpad: API returned %d", resp.StatusCode)))
	}

	var result Result
	if len(bytes.TrimSpace(respBody)) == 0 || json.Unmarshal(respBody, &result) != nil || (!result.Success && result.Error == "") {
		result = ok()
	}
	return c.record(action, callID, result)
}

func (c *DialpadClient) record(action, callID string, result Result) Result {
	c.metrics.ObserveTelephony("dialpad", action, result.Success)
	if !result.Success {
		c.logger.Warn("dialpad: action failed", "call_id", callID, "action", action, "error", result.Error)
	}
	return result
}
