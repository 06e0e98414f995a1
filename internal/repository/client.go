// Package repository talks to the markd HTTP API on behalf of one client
// session: create, delete and list bookmarks for the current owner.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/version"
)

const (
	bookmarksPath = "/api/bookmarks"

	// maxBody bounds how much of a response is read.
	maxBody = 4 << 20
)

// Config holds what a Client needs to reach the server.
type Config struct {
	BaseURL    string        // ex: http://localhost:8080
	Token      string        // bearer JWT
	Timeout    time.Duration // per request, 0 = none
	HTTPClient *http.Client  // nil = a new client with Timeout
}

// Client implements the bookmark repository over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logger.Logger
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server answered %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server answered %d: %s", e.StatusCode, e.Message)
}

// New validates cfg and returns a Client.
func New(cfg Config, log logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("repository: BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("repository: invalid BaseURL %q", cfg.BaseURL)
	}
	if cfg.Token == "" {
		return nil, errors.New("repository: Token is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     log,
	}, nil
}

type createRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Owner string `json:"user_id"`
}

// Create stores a new row and returns it as the server assigned it.
func (c *Client) Create(ctx context.Context, rawURL, title, owner string) (domain.Bookmark, error) {
	body, err := c.do(ctx, http.MethodPost, bookmarksPath, nil, createRequest{
		URL:   rawURL,
		Title: title,
		Owner: owner,
	})
	if err != nil {
		return domain.Bookmark{}, domain.NewRepositoryError("create", err)
	}

	var b domain.Bookmark
	if err := json.Unmarshal(body, &b); err != nil {
		return domain.Bookmark{}, domain.NewRepositoryError("create", fmt.Errorf("decode row: %w", err))
	}
	if b.ID == "" {
		return domain.Bookmark{}, domain.NewRepositoryError("create", errors.New("server returned a row without id"))
	}

	c.logger.Debug("bookmark created",
		logger.String("id", b.ID),
		logger.Owner(owner))
	return b, nil
}

// Delete removes the row matching both id and owner. A row that does not
// exist is not an error.
func (c *Client) Delete(ctx context.Context, id, owner string) error {
	q := url.Values{"owner": {owner}}
	if _, err := c.do(ctx, http.MethodDelete, bookmarksPath+"/"+url.PathEscape(id), q, nil); err != nil {
		return domain.NewRepositoryError("delete", err)
	}
	return nil
}

// ListByOwner returns every row of owner, newest first.
func (c *Client) ListByOwner(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	q := url.Values{"owner": {owner}}
	body, err := c.do(ctx, http.MethodGet, bookmarksPath, q, nil)
	if err != nil {
		return nil, domain.NewRepositoryError("list", err)
	}

	var rows []domain.Bookmark
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, domain.NewRepositoryError("list", fmt.Errorf("decode rows: %w", err))
	}
	return rows, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	statusErr := &StatusError{}
	if jsonErr := json.Unmarshal(body, statusErr); jsonErr != nil {
		statusErr.Message = strings.TrimSpace(string(body))
	}
	statusErr.StatusCode = resp.StatusCode
	return nil, statusErr
}
