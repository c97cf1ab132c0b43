// SPDX-FileCopyrightText: Copyright 2026 Cowork Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cowork is a thin client for the Cowork conversation API.
//
// The client does pass-through calls with a service credential and reshapes
// the upstream JSON into a stable result format. It does not retry: the MCP
// layer surfaces upstream failures directly and the calling agent decides
// whether to try again.
package cowork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the production conversation API.
	DefaultBaseURL = "https://api.cowork.dev"

	// maxResponseSize caps how much of an upstream body we will read.
	maxResponseSize = 10 << 20

	defaultTimeout = 30 * time.Second
)

// ErrNotFound indicates the requested conversation does not exist or the
// service credential cannot see it.
var ErrNotFound = errors.New("conversation not found")

// UpstreamError reports a non-2xx answer from the conversation API.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("conversation API returned status %d", e.StatusCode)
}

// Summary is one conversation in a listing.
type Summary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	MessageCount int64  `json:"messageCount"`
}

// Message is one message inside a conversation.
type Message struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	SentAt string `json:"sentAt"`
	Text   string `json:"text"`
}

// Conversation is a full conversation with its messages.
type Conversation struct {
	Summary
	Messages []Message `json:"messages"`
}

// Page is one page of a conversation listing.
type Page struct {
	Conversations []Summary `json:"conversations"`
	NextCursor    string    `json:"nextCursor,omitempty"`
}

// ListOptions control pagination of List and Search.
type ListOptions struct {
	// Cursor is the opaque cursor from a previous page, empty for the first.
	Cursor string

	// Limit caps the page size. Zero lets the API pick.
	Limit int
}

// Client calls the conversation API with a fixed service credential.
type Client struct {
	baseURL  string
	apiToken string
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the API at baseURL, authenticating every call
// with apiToken.
func New(baseURL, apiToken string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns a page of conversations, newest first.
func (c *Client) List(ctx context.Context, opts ListOptions) (*Page, error) {
	q := url.Values{}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	body, err := c.get(ctx, "/v1/conversations", q)
	if err != nil {
		return nil, err
	}
	return parsePage(body), nil
}

// Search returns conversations matching query, paginated like List.
func (c *Client) Search(ctx context.Context, query string, opts ListOptions) (*Page, error) {
	q := url.Values{"q": {query}}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	body, err := c.get(ctx, "/v1/conversations/search", q)
	if err != nil {
		return nil, err
	}
	return parsePage(body), nil
}

// Get returns one conversation with its full message history.
func (c *Client) Get(ctx context.Context, id string) (*Conversation, error) {
	if id == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	body, err := c.get(ctx, "/v1/conversations/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	conv := &Conversation{
		Summary:  parseSummary(root.Get("conversation")),
		Messages: []Message{},
	}
	root.Get("conversation.messages").ForEach(func(_, m gjson.Result) bool {
		conv.Messages = append(conv.Messages, Message{
			ID:     m.Get("id").String(),
			Author: m.Get("author.name").String(),
			SentAt: m.Get("sentAt").String(),
			Text:   m.Get("text").String(),
		})
		return true
	})
	return conv, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("conversation API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("conversation API error", "path", path, "status", resp.StatusCode)
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func parsePage(body []byte) *Page {
	root := gjson.ParseBytes(body)
	page := &Page{
		Conversations: []Summary{},
		NextCursor:    root.Get("nextCursor").String(),
	}
	root.Get("conversations").ForEach(func(_, item gjson.Result) bool {
		page.Conversations = append(page.Conversations, parseSummary(item))
		return true
	})
	return page
}

func parseSummary(item gjson.Result) Summary {
	return Summary{
		ID:           item.Get("id").String(),
		Title:        item.Get("title").String(),
		CreatedAt:    item.Get("createdAt").String(),
		UpdatedAt:    item.Get("updatedAt").String(),
		MessageCount: item.Get("messageCount").Int(),
	}
}
