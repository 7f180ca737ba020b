// Package discover enumerates Chrome targets over the debugging HTTP
// endpoint ("http://host:port/json") and maintains the per-tab alias file
// collaborators use to refer to tabs by a short name instead of a raw
// target id.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHost and DefaultPort match Chrome's default remote-debugging
// listener.
const (
	DefaultHost = "localhost"
	DefaultPort = 9222
)

// TargetInfo describes one entry returned by the /json endpoint.
type TargetInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Client enumerates and opens targets on one Chrome debugging endpoint.
type Client struct {
	Host string
	Port int

	HTTPClient *http.Client
}

// New builds a Client, defaulting host/port and an http.Client with a
// sane timeout.
func New(host string, port int) *Client {
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	return &Client{
		Host:       host,
		Port:       port,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// List returns every target currently known to Chrome.
func (c *Client) List(ctx context.Context) ([]TargetInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/json", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var targets []TargetInfo
	if err := json.Unmarshal(body, &targets); err != nil {
		return nil, fmt.Errorf("discover: decode /json: %w", err)
	}
	return targets, nil
}

// Page returns the first "page" type target, Chrome's usual meaning of the
// default tab, or an error if none is attached yet.
func (c *Client) Page(ctx context.Context) (*TargetInfo, error) {
	targets, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		if targets[i].Type == "page" {
			return &targets[i], nil
		}
	}
	return nil, fmt.Errorf("discover: no page target found at %s", c.baseURL())
}

// ByID returns the target with the given target id.
func (c *Client) ByID(ctx context.Context, id string) (*TargetInfo, error) {
	targets, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		if targets[i].ID == id {
			return &targets[i], nil
		}
	}
	return nil, fmt.Errorf("discover: target %q not found", id)
}

// New opens a new tab via the /json/new endpoint and returns it.
func (c *Client) New(ctx context.Context, url string) (*TargetInfo, error) {
	endpoint := c.baseURL() + "/json/new"
	if url != "" {
		endpoint += "?" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	var info TargetInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("discover: decode /json/new: %w", err)
	}
	return &info, nil
}

// Close closes the given target via the /json/close endpoint.
func (c *Client) Close(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/json/close/"+id, nil)
	if err != nil {
		return err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("discover: close %s: status %s", id, res.Status)
	}
	return nil
}
