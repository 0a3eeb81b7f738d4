// Package promptbridge is a small Go client for the PromptBridge relay. It
// works against both the HTTP daemon and the API Gateway deployment; in the
// latter case set a bearer token obtained from the identity provider.
package promptbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Inference calls can take a while, so it is longer than a typical API call.
const DefaultHTTPTimeout = 90 * time.Second

// DefaultPromptPath is the route served by the HTTP daemon.
const DefaultPromptPath = "/api/v1/prompt"

// Client wraps the HTTP interactions with the relay.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	promptPath string

	mu          sync.RWMutex
	accessToken string
}

// APIError is returned for 4xx and 5xx responses.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("promptbridge api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the relay. When httpClient is nil, a
// default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient, promptPath: DefaultPromptPath}
}

// SetPromptPath overrides the route, e.g. the API Gateway stage resource.
func (c *Client) SetPromptPath(p string) {
	c.promptPath = p
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken stores the bearer token sent with every request. An empty
// token disables the Authorization header.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// PromptRaw sends a prompt and returns the raw "response" value, which is
// JSON null when the relay could not resolve the assistant content.
func (c *Client) PromptRaw(ctx context.Context, prompt string) (json.RawMessage, error) {
	var out struct {
		Response json.RawMessage `json:"response"`
	}
	if err := c.post(ctx, c.promptPath, map[string]string{"prompt": prompt}, &out); err != nil {
		return nil, err
	}
	if len(out.Response) == 0 || bytes.Equal(out.Response, []byte("null")) {
		return nil, nil
	}
	return out.Response, nil
}

// Prompt sends a prompt and returns the assistant text. A nil result means the
// relay answered {"response": null}. Non-string content is returned as its
// JSON text.
func (c *Client) Prompt(ctx context.Context, prompt string) (*string, error) {
	raw, err := c.PromptRaw(ctx, prompt)
	if err != nil || raw == nil {
		return nil, err
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}
	return &text, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
