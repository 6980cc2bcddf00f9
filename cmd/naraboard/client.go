package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kalambet/naraboard/internal/api"
	"github.com/kalambet/naraboard/internal/config"
)

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return clientFor(cfg), nil
}

func clientFor(cfg config.Config) *apiClient {
	return &apiClient{
		baseURL:    serverURL(cfg),
		token:      cfg.Server.AdminToken,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func serverURL(cfg config.Config) string {
	host := cfg.Server.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

func (c *apiClient) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is naraboard serve running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path)
}

func (c *apiClient) post(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path)
}

// decodeEnvelope reads a /jobs envelope into data. An unsuccessful envelope
// becomes an error carrying the server's message.
func decodeEnvelope(resp *http.Response, data any) (api.Envelope, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.Envelope{}, fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
	}

	var env api.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return api.Envelope{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	if !env.Success {
		return env, fmt.Errorf("server returned %d: %s", resp.StatusCode, env.Message)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return env, fmt.Errorf("decoding response data: %w", err)
		}
	}
	return env, nil
}

func jobsPath(search string, page, limit int) string {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("limit", fmt.Sprint(limit))
	if search != "" {
		q.Set("search", search)
	}
	return "/jobs?" + q.Encode()
}
