package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

// HTTPStatusError is returned when the server rejects a request before streaming.
type HTTPStatusError struct {
	Code    int
	Message string
}

func (e *HTTPStatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

// Client talks to the authoring endpoints and feeds a Session.
type Client struct {
	baseURL    string
	token      string
	tenantID   string
	tenantSlug string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sets the bearer credential.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithTenant scopes requests to a tenant.
func WithTenant(id, slug string) ClientOption {
	return func(c *Client) {
		c.tenantID = id
		c.tenantSlug = slug
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient returns a Client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send submits content on sess and consumes the streamed reply. Errors that
// happen after the turn started are also recorded on the session.
func (c *Client) Send(ctx context.Context, sess *Session, content string, attachments ...protocol.Attachment) error {
	return c.send(ctx, sess, content, attachments, false)
}

// SendConfirmed submits content together with the structured confirmation of
// the latest course preview.
func (c *Client) SendConfirmed(ctx context.Context, sess *Session, content string) error {
	return c.send(ctx, sess, content, nil, true)
}

func (c *Client) send(ctx context.Context, sess *Session, content string, attachments []protocol.Attachment, confirm bool) error {
	if err := sess.Begin(content, attachments); err != nil {
		return err
	}

	payload := protocol.TurnRequest{
		ConversationID: sess.ConversationID(),
		Messages:       sess.Snapshot().History(),
		Attachments:    attachments,
		TenantID:       c.tenantID,
		TenantSlug:     c.tenantSlug,
		ConfirmPreview: confirm,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		sess.Fail(err)
		return fmt.Errorf("marshal turn request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/authoring/chat", body)
	if err != nil {
		sess.Fail(err)
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		sess.Fail(err)
		return fmt.Errorf("send turn: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := readStatusError(resp)
		sess.Fail(statusErr)
		return statusErr
	}

	if id := resp.Header.Get(protocol.HeaderConversationID); id != "" {
		sess.SetConversationID(id)
	}

	return sess.Consume(ctx, resp.Body)
}

// Confirm records the structured confirmation of the latest preview for the
// session's conversation.
func (c *Client) Confirm(ctx context.Context, sess *Session) error {
	id := sess.ConversationID()
	if id == "" {
		return fmt.Errorf("session has no conversation id")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/authoring/conversations/"+url.PathEscape(id)+"/confirm", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("confirm preview: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readStatusError(resp)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.tenantID != "" {
		req.Header.Set(protocol.HeaderTenantID, c.tenantID)
	}
	return req, nil
}

func readStatusError(resp *http.Response) *HTTPStatusError {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
	}
	return &HTTPStatusError{Code: resp.StatusCode, Message: payload.Error}
}
