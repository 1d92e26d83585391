// Package stream implements the push-side transport: a long-lived
// text/event-stream subscription scoped to one simulation id.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/calebhart/simdash/internal/api"
)

// Subscriber opens push channels against the engine's stream endpoint.
type Subscriber struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewSubscriber creates a stream subscriber. The HTTP client must not carry a
// request timeout (the stream is long-lived); a nil client gets a suitable
// default.
func NewSubscriber(baseURL string, httpClient *http.Client, logger *slog.Logger) *Subscriber {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Subscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// Conn is one open push channel. Events() closes when the channel dies;
// Err() then reports why, or nil after a local Close.
type Conn struct {
	events chan api.StreamEvent
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Events returns the envelope channel. It is closed when the connection ends.
func (c *Conn) Events() <-chan api.StreamEvent {
	return c.events
}

// Err reports the terminal error once Events is closed.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() {
	c.cancel()
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Open establishes a push subscription for one simulation. The returned Conn
// delivers every envelope the engine emits, heartbeats included; consumers own
// reconnection.
func (s *Subscriber) Open(ctx context.Context, simulationID string) (*Conn, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	endpoint := s.baseURL + "/streams/simulations/" + url.PathEscape(simulationID)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.http.Do(req)
	if err != nil {
		cancel()
		return nil, &api.TransportError{Op: "open stream " + simulationID, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer cancel()
		serverErr := &api.ServerError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if jsonErr := json.Unmarshal(data, serverErr); jsonErr != nil || serverErr.Detail == "" {
			serverErr.Detail = strings.TrimSpace(string(data))
			if serverErr.Detail == "" {
				serverErr.Detail = http.StatusText(resp.StatusCode)
			}
		}
		return nil, serverErr
	}

	conn := &Conn{
		events: make(chan api.StreamEvent),
		cancel: cancel,
	}
	go s.read(streamCtx, simulationID, resp.Body, conn)

	s.logger.Debug("stream opened", "simulation_id", simulationID)
	return conn, nil
}

// read parses SSE frames off the wire and feeds envelopes to the Conn until
// the body errors or the context is cancelled.
func (s *Subscriber) read(ctx context.Context, simulationID string, body io.ReadCloser, conn *Conn) {
	defer body.Close()
	defer close(conn.events)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var data strings.Builder

	dispatch := func() bool {
		defer func() {
			eventName = ""
			data.Reset()
		}()
		if data.Len() == 0 {
			return true
		}

		var event api.StreamEvent
		if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
			s.logger.Warn("dropping malformed stream payload",
				"simulation_id", simulationID, "error", err)
			return true
		}
		if event.Event == "" {
			event.Event = eventName
		}

		select {
		case conn.events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if !dispatch() {
				return
			}
		case strings.HasPrefix(line, ":"):
			// comment frame, keep-alive only
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if ctx.Err() != nil {
		return
	}

	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	conn.setErr(err)
	s.logger.Debug("stream ended", "simulation_id", simulationID, "error", err)
}
