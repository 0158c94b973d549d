// Package agentclient provides the HTTP client for the chat backend with SSE streaming.
package agentclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/procurechat/pochat/domain"
)

// defaultEventKind is the SSE kind assumed when a record has no event line.
const defaultEventKind = "message"

// Event represents a parsed SSE event.
type Event struct {
	Event string
	Data  string
}

// EventHandler is called for each SSE event from the backend. Returning an
// error aborts the stream.
type EventHandler func(event Event) error

// TransportError reports a non-success HTTP status when opening a stream.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chat request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client is an HTTP client for the chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new chat backend client. The timeout bounds the whole
// request including the streamed response body.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// StreamChat posts one chat request and streams SSE events to the handler
// until the backend closes the stream. The returned error is nil on a clean
// close; a handler error aborts the stream and is returned as-is.
func (c *Client) StreamChat(ctx context.Context, req *domain.ChatRequest, handler EventHandler) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &TransportError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	return parseSSE(ctx, resp.Body, handler)
}

// parseSSE decodes the event-stream framing: records are separated by blank
// lines, "event: " sets the kind (defaulting to "message"), "data: " sets the
// payload with the last line winning. A record is emitted only when its
// payload is non-empty. Data is kept verbatim after the prefix since token
// payloads carry significant leading whitespace.
func parseSSE(ctx context.Context, r io.Reader, handler EventHandler) error {
	reader := bufio.NewReader(r)
	event := defaultEventKind
	data := ""

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// A record never followed by its blank separator is dropped.
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if data != "" {
				if err := handler(Event{Event: event, Data: data}); err != nil {
					return err
				}
			}
			event = defaultEventKind
			data = ""
		}
		// Comments (lines starting with :) and other fields are ignored.
	}
}
