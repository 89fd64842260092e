// Package client talks to a smartbookmark server: the JSON API for the store
// and session, and the websocket change feed.
package client

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

	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/core/view"
	"github.com/seckatie/smartbookmark/internal/logger"
)

// ErrUnauthorized is returned when the server rejects the session token.
var ErrUnauthorized = errors.New("client: session rejected")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client is a view.Store, view.Feed and view.Sessions backed by a server.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   logger.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}
	c := &Client{
		base:  u,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListByOwner returns the session owner's bookmarks. The server scopes the
// list by session, so ownerID is only checked against it.
func (c *Client) ListByOwner(ctx context.Context, ownerID string) ([]db.Bookmark, error) {
	var list []db.Bookmark
	if err := c.do(ctx, http.MethodGet, "/api/bookmarks", nil, &list); err != nil {
		return nil, err
	}
	for _, b := range list {
		if ownerID != "" && b.OwnerID != ownerID {
			return nil, fmt.Errorf("server returned bookmark %s of another owner", b.ID)
		}
	}
	if list == nil {
		list = []db.Bookmark{}
	}
	return list, nil
}

type bookmarkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (c *Client) Create(ctx context.Context, nb db.NewBookmark) (db.Bookmark, error) {
	var b db.Bookmark
	err := c.do(ctx, http.MethodPost, "/api/bookmarks", bookmarkRequest{Title: nb.Title, URL: nb.URL}, &b)
	return b, err
}

func (c *Client) Update(ctx context.Context, id string, patch db.BookmarkPatch) error {
	return c.do(ctx, http.MethodPatch, "/api/bookmarks/"+url.PathEscape(id), bookmarkRequest{Title: patch.Title, URL: patch.URL}, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/bookmarks/"+url.PathEscape(id), nil, nil)
}

// CurrentSession asks the server who the token belongs to. Any failure is
// reported as no session.
func (c *Client) CurrentSession(ctx context.Context) (view.Session, bool) {
	if c.token == "" {
		return view.Session{}, false
	}
	var s struct {
		OwnerID string `json:"owner_id"`
		Email   string `json:"email"`
		Token   string `json:"token"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &s); err != nil {
		c.log.Debug("session lookup failed", logger.Error(err))
		return view.Session{}, false
	}
	return view.Session{OwnerID: s.OwnerID, Email: s.Email, Token: s.Token}, s.OwnerID != ""
}

// SuggestTitle asks the server for the title of the page at rawURL.
func (c *Client) SuggestTitle(ctx context.Context, rawURL string) (string, error) {
	var resp struct {
		Title string `json:"title"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/title?url="+url.QueryEscape(rawURL), nil, &resp); err != nil {
		return "", err
	}
	return resp.Title, nil
}
