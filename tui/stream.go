// ABOUTME: HTTP client for a huddled server: snapshot fetches and the live SSE board stream.
// ABOUTME: Run keeps the stream open across drops, pushing parsed frames into the Bubble Tea loop.
package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/huddle/core"
)

// defaultRetryDelay is how long Run waits before redialing a dropped stream.
const defaultRetryDelay = 2 * time.Second

// Client talks to a huddled server. Token is optional and sent as a bearer
// credential when set. User names this client on open servers and doubles as
// the display identity.
type Client struct {
	BaseURL    string
	User       string
	Token      string
	HTTP       *http.Client
	RetryDelay time.Duration
}

// NewClient creates a Client for the given server base URL. The underlying
// HTTP client carries no timeout; the stream request lives for the whole
// session and snapshot fetches are bounded by their context.
func NewClient(baseURL, user, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		User:       user,
		Token:      token,
		HTTP:       &http.Client{},
		RetryDelay: defaultRetryDelay,
	}
}

// newRequest builds a GET request with identity headers attached.
func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.User != "" {
		req.Header.Set("X-Huddle-User", c.User)
	}
	return req, nil
}

// Snapshot fetches the current board snapshot, the bootstrap and resync
// source for the replica.
func (c *Client) Snapshot(ctx context.Context, boardID ulid.ULID) (core.Snapshot, error) {
	req, err := c.newRequest(ctx, "/api/boards/"+boardID.String())
	if err != nil {
		return core.Snapshot{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return core.Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Snapshot{}, fmt.Errorf("snapshot fetch: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Snapshot{}, err
	}
	var snap core.Snapshot
	if err := sonic.ConfigStd.Unmarshal(body, &snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Run opens the board stream and keeps it open, redialing after drops until
// ctx ends. Parsed frames are handed to send, which is typically a
// tea.Program's Send method.
func (c *Client) Run(ctx context.Context, boardID ulid.ULID, send func(tea.Msg)) {
	for {
		err := c.stream(ctx, boardID, send)
		if ctx.Err() != nil {
			return
		}
		send(StreamDownMsg{Err: err})

		select {
		case <-time.After(c.retryDelay()):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) retryDelay() time.Duration {
	if c.RetryDelay > 0 {
		return c.RetryDelay
	}
	return defaultRetryDelay
}

// stream dials the SSE endpoint and pumps frames until the connection drops
// or ctx ends.
func (c *Client) stream(ctx context.Context, boardID ulid.ULID, send func(tea.Msg)) error {
	req, err := c.newRequest(ctx, "/api/boards/"+boardID.String()+"/stream")
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream open: %s", resp.Status)
	}

	rd := bufio.NewReader(resp.Body)
	var name string
	var data []byte
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			// Blank line ends a frame.
			if name != "" && len(data) > 0 {
				c.dispatch(name, data, send)
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment.
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, strings.TrimPrefix(line, "data: ")...)
		}
	}
}

// dispatch decodes one frame and sends the matching message. A frame that
// fails to decode is dropped; the stream itself stays up.
func (c *Client) dispatch(name string, data []byte, send func(tea.Msg)) {
	switch name {
	case "hello":
		var hello struct {
			ConnID string `json:"conn_id"`
		}
		if err := sonic.ConfigStd.Unmarshal(data, &hello); err != nil {
			return
		}
		send(HelloMsg{ConnID: hello.ConnID})
	case "snapshot":
		var snap core.Snapshot
		if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
			return
		}
		send(SnapshotMsg{Snapshot: snap})
	default:
		var ev core.Event
		if err := sonic.ConfigStd.Unmarshal(data, &ev); err != nil {
			return
		}
		send(EventMsg{Event: ev})
	}
}
