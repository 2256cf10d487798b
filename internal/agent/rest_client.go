package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dietnavigator/nutrition-chat/internal/event"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2/google"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	maxEventLineSize   = 8 << 20
)

var errRuntimeStatus = errors.New("agent runtime returned error status")

// RESTConfig configures the hosted Agent Engine client.
type RESTConfig struct {
	// Location is the region of the reasoning engine, e.g. us-central1.
	Location string
	// EngineName is the full resource name
	// projects/{p}/locations/{l}/reasoningEngines/{id}.
	EngineName string
	// BaseURL overrides the regional endpoint.
	BaseURL string
	// HTTPClient overrides the default-credentials client.
	HTTPClient *http.Client
}

// RESTClient calls a hosted Agent Engine over its REST query endpoints.
type RESTClient struct {
	httpClient *http.Client
	baseURL    string
	engine     string
	logger     *slog.Logger
}

// NewRESTClient builds a client. Without cfg.HTTPClient it authenticates with
// application default credentials.
func NewRESTClient(ctx context.Context, cfg RESTConfig, logger *slog.Logger) (*RESTClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EngineName == "" {
		return nil, fmt.Errorf("agent engine name is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		c, err := google.DefaultClient(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("load default credentials: %w", err)
		}
		httpClient = c
	}

	base := cfg.BaseURL
	if base == "" {
		if cfg.Location == "" {
			return nil, fmt.Errorf("agent engine location is required")
		}
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", cfg.Location)
	}

	logger.Info("Agent Engine client ready", "engine", cfg.EngineName)

	return &RESTClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(base, "/"),
		engine:     strings.Trim(cfg.EngineName, "/"),
		logger:     logger,
	}, nil
}

type queryRequest struct {
	ClassMethod string         `json:"class_method"`
	Input       map[string]any `json:"input"`
}

// CreateSession opens a managed session for userID.
func (c *RESTClient) CreateSession(ctx context.Context, userID string) (string, error) {
	resp, err := c.post(ctx, c.engine+":query", queryRequest{
		ClassMethod: "async_create_session",
		Input:       map[string]any{"user_id": userID},
	})
	if err != nil {
		return "", fmt.Errorf("create session failed: %w", err)
	}
	defer closeBody(resp.Body, c.logger)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read create session response: %w", err)
	}
	return gjson.GetBytes(body, "output.id").String(), nil
}

// StreamQuery posts the message and yields events from the newline-delimited
// JSON response body.
func (c *RESTClient) StreamQuery(ctx context.Context, q Query) iter.Seq2[event.Event, error] {
	return func(yield func(event.Event, error) bool) {
		resp, err := c.post(ctx, c.engine+":streamQuery?alt=sse", queryRequest{
			ClassMethod: "async_stream_query",
			Input: map[string]any{
				"user_id":    q.UserID,
				"session_id": q.SessionID,
				"message":    q.Message.Payload(),
			},
		})
		if err != nil {
			yield(event.Event{}, fmt.Errorf("stream query request failed: %w", err))
			return
		}
		defer closeBody(resp.Body, c.logger)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), maxEventLineSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			line = bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
			if len(line) == 0 {
				continue
			}
			if !yield(event.Decode(line), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(event.Event{}, fmt.Errorf("stream query error: %w", err))
		}
	}
}

// Close is a no-op; the HTTP client owns no long-lived resources.
func (c *RESTClient) Close() {}

func (c *RESTClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer closeBody(resp.Body, c.logger)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := gjson.GetBytes(snippet, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(snippet))
		}
		return nil, fmt.Errorf("%w: %d %s", errRuntimeStatus, resp.StatusCode, msg)
	}
	return resp, nil
}

func closeBody(body io.Closer, logger *slog.Logger) {
	if err := body.Close(); err != nil {
		logger.Debug("failed to close response body", "error", err)
	}
}
