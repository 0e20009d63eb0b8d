package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-bookfetch/internal/models"

	log "github.com/sirupsen/logrus"
)

// Client talks to the shelf server's REST API.
type Client struct {
	BaseURL    string
	ApiKey     string
	HttpClient *http.Client

	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a new API client. A nil httpClient gets a default with a
// 30s timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client, cfg models.Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := time.Duration(cfg.InitialRetryDelayMs) * time.Millisecond
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ApiKey:     apiKey,
		HttpClient: httpClient,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

func (c *Client) endpoint(path string) string {
	return c.BaseURL + "/api/v1" + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body for %s: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.ApiKey)
	}
	return req, nil
}

// getJSON performs a GET with transient-error retries and decodes the
// response into out.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}

		resp, err := c.HttpClient.Do(req)
		if err != nil {
			lastErr = &TransientError{Message: "http request failed", Cause: err}
		} else if resp.StatusCode == http.StatusOK {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return &FatalError{Message: fmt.Sprintf("decoding response from %s", path), Cause: err}
			}
			return nil
		} else {
			lastErr = classifyResponse(resp)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if !IsTransient(lastErr) {
				return lastErr
			}
		}

		if attempt < c.maxRetries-1 {
			sleep := time.Duration(attempt+1) * c.retryDelay
			log.WithError(lastErr).Warnf("GET %s failed, retrying (%d/%d) after %s...", path, attempt+1, c.maxRetries, sleep)
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	log.WithError(lastErr).Errorf("GET %s failed after %d attempts", path, c.maxRetries)
	return lastErr
}

// do performs a mutating call with no automatic retries. Transient failures
// surface to the caller; retry stays a user decision.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return &TransientError{Message: fmt.Sprintf("%s %s failed", method, path), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyResponse(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &FatalError{Message: fmt.Sprintf("decoding response from %s", path), Cause: err}
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}

// GetAppConfig fetches the server-declared client configuration.
func (c *Client) GetAppConfig(ctx context.Context) (models.AppConfig, error) {
	var cfg models.AppConfig
	err := c.getJSON(ctx, "/config", &cfg)
	return cfg, err
}

// GetRequestPolicy fetches the current access policy snapshot.
func (c *Client) GetRequestPolicy(ctx context.Context) (models.RequestPolicy, error) {
	var policy models.RequestPolicy
	err := c.getJSON(ctx, "/policy", &policy)
	return policy, err
}

// GetStatus fetches a full background-task status snapshot.
func (c *Client) GetStatus(ctx context.Context) (models.StatusData, error) {
	var status models.StatusData
	err := c.getJSON(ctx, "/status", &status)
	return status, err
}

// ListRequests fetches the caller's visible request records. Malformed
// records are dropped rather than failing the whole listing.
func (c *Client) ListRequests(ctx context.Context) ([]models.RequestRecord, error) {
	var records []models.RequestRecord
	if err := c.getJSON(ctx, "/requests", &records); err != nil {
		return nil, err
	}
	valid := records[:0]
	for i := range records {
		if err := records[i].Validate(); err != nil {
			log.WithError(err).Warnf("Dropping malformed request record %s from listing", records[i].ID)
			continue
		}
		valid = append(valid, records[i])
	}
	return valid, nil
}

// ListUsers fetches the delegate candidates. Admin only; non-admins get a
// classified auth failure.
func (c *Client) ListUsers(ctx context.Context) ([]models.ActingAsUser, error) {
	var users []models.ActingAsUser
	err := c.getJSON(ctx, "/users", &users)
	return users, err
}

// onBehalfQuery appends the delegated-user identifier when present.
func onBehalfQuery(path, onBehalfOf string) string {
	if onBehalfOf == "" {
		return path
	}
	return path + "?on_behalf_of=" + url.QueryEscape(onBehalfOf)
}

// DownloadBook asks the server to queue a direct book download. A 403 guard
// response comes back as a *GuardError.
func (c *Client) DownloadBook(ctx context.Context, bookID, onBehalfOf string) error {
	path := onBehalfQuery("/downloads/book/"+url.PathEscape(bookID), onBehalfOf)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// DownloadRelease asks the server to queue a release download.
func (c *Client) DownloadRelease(ctx context.Context, payload models.ReleaseDownloadPayload, onBehalfOf string) error {
	return c.do(ctx, http.MethodPost, onBehalfQuery("/downloads/release", onBehalfOf), payload, nil)
}

// CancelDownload is a server-directed action on an existing task; there is
// no mid-flight cancellation of the HTTP call itself.
func (c *Client) CancelDownload(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/downloads/"+url.PathEscape(taskID)+"/cancel", nil, nil)
}

// RetryDownload re-queues a failed task.
func (c *Client) RetryDownload(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/downloads/"+url.PathEscape(taskID)+"/retry", nil, nil)
}

// CreateRequest files a book- or release-level request.
func (c *Client) CreateRequest(ctx context.Context, payload models.RequestPayload) (models.RequestRecord, error) {
	var record models.RequestRecord
	err := c.do(ctx, http.MethodPost, "/requests", payload, &record)
	return record, err
}

// FetchFile streams a completed task's file. The caller owns the response
// body.
func (c *Client) FetchFile(ctx context.Context, taskID string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/downloads/"+url.PathEscape(taskID)+"/file", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Message: "file fetch failed", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, classifyResponse(resp)
	}
	return resp, nil
}

// OpenStatusStream opens the server's push channel. Each event carries a
// full StatusData snapshot on the returned channel; the channel closes when
// the stream ends (read error or context cancellation). The returned error
// only covers establishing the stream.
func (c *Client) OpenStatusStream(ctx context.Context) (<-chan models.StatusData, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/status/stream", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Message: "opening status stream", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, classifyResponse(resp)
	}

	events := make(chan models.StatusData)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			var snapshot models.StatusData
			if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
				log.WithError(err).Warn("Skipping unparseable status stream event")
				continue
			}
			select {
			case events <- snapshot:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("Status stream closed with error")
		}
	}()
	return events, nil
}
