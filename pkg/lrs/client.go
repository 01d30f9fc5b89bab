package lrs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/openlearn/xapi-agent/pkg/common/config"
)

const xapiVersion = "1.0.3"

// TransportError wraps a failure to reach the LRS at all: DNS, refused
// connection, timeout. The statements may or may not have been stored.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("lrs transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError wraps an LRS response with status 400 or above. The LRS was
// reached and rejected the request.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("lrs remote: status %d: %s", e.Status, e.Body)
}

// Response captures a successful statements POST, including the stored
// statement ids and the diagnostics headers some LRS implementations set.
type Response struct {
	Status            int
	StatementIDs      []string
	ContentType       string
	ContentLength     int64
	Version           string
	ConsistentThrough string
}

// Client posts statements to one LRS target over the xAPI statements
// resource. Auth is HTTP Basic, or OAuth2 client credentials when the
// target carries a token URL.
type Client struct {
	endpoint string
	username string
	password string
	http     *http.Client
}

func NewClient(cfg config.LRSConfig, timeout time.Duration) *Client {
	c := &Client{
		endpoint: cfg.Endpoint,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
	}
	if cfg.TokenURL != "" {
		oauth := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		c.http = oauth.Client(context.Background())
		c.http.Timeout = timeout
		c.username = ""
		c.password = ""
	}
	return c
}

// PostStatements delivers a batch of statements. Any status below 400
// counts as accepted; everything else comes back as a RemoteError, and
// failures before a status line as a TransportError.
func (c *Client) PostStatements(ctx context.Context, statements []json.RawMessage) (*Response, error) {
	payload, err := json.Marshal(statements)
	if err != nil {
		return nil, fmt.Errorf("marshal statements: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/statements", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build statements request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Experience-API-Version", xapiVersion)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(body)}
	}

	out := &Response{
		Status:            resp.StatusCode,
		ContentType:       resp.Header.Get("Content-Type"),
		ContentLength:     resp.ContentLength,
		Version:           resp.Header.Get("X-Experience-API-Version"),
		ConsistentThrough: resp.Header.Get("X-Experience-API-Consistent-Through"),
	}
	// Statement id echo is optional; a 204 has no body.
	if len(body) > 0 {
		var ids []string
		if err := json.Unmarshal(body, &ids); err == nil {
			out.StatementIDs = ids
		}
	}
	return out, nil
}
