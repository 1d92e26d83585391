package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// Client is the pull-side transport against the simulation engine's REST API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates an engine API client. A nil httpClient gets a default
// with a bounded request timeout; a nil logger discards.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// BaseURL returns the engine base URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListSimulations fetches summaries for every known simulation.
func (c *Client) ListSimulations(ctx context.Context) ([]SimulationSummary, error) {
	var out []SimulationSummary
	if err := c.do(ctx, http.MethodGet, "/simulations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSimulation fetches the full detail for one simulation.
func (c *Client) GetSimulation(ctx context.Context, id string) (*SimulationDetail, error) {
	var out SimulationDetail
	if err := c.do(ctx, http.MethodGet, "/simulations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSimulation creates a new simulation from a named scenario.
func (c *Client) CreateSimulation(ctx context.Context, req CreateSimulationRequest) (*SimulationDetail, error) {
	var out SimulationDetail
	if err := c.do(ctx, http.MethodPost, "/simulations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSimulation transitions a created simulation to running.
func (c *Client) StartSimulation(ctx context.Context, id string) (*SimulationDetail, error) {
	var out SimulationDetail
	if err := c.do(ctx, http.MethodPost, "/simulations/"+url.PathEscape(id)+"/start", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdvanceSimulation steps the simulation one phase forward.
func (c *Client) AdvanceSimulation(ctx context.Context, id string) (*PhaseAdvanceResult, error) {
	var out PhaseAdvanceResult
	if err := c.do(ctx, http.MethodPost, "/simulations/"+url.PathEscape(id)+"/advance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InjectAction submits a new pending action and returns the updated detail.
func (c *Client) InjectAction(ctx context.Context, id string, req InjectActionRequest) (*SimulationDetail, error) {
	var out SimulationDetail
	if err := c.do(ctx, http.MethodPost, "/simulations/"+url.PathEscape(id)+"/actions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddActor attaches an existing actor to the simulation and returns the
// updated detail.
func (c *Client) AddActor(ctx context.Context, id string, req AddActorRequest) (*SimulationDetail, error) {
	var out SimulationDetail
	if err := c.do(ctx, http.MethodPost, "/simulations/"+url.PathEscape(id)+"/actors", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSimulation removes a simulation from the engine. A nil return is the
// deletion acknowledgment local state may act on.
func (c *Client) DeleteSimulation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/simulations/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(op, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// decodeError maps an error response to the client taxonomy. Well-formed
// bodies keep their error_type; anything else degrades to the status text.
func (c *Client) decodeError(op string, resp *http.Response) error {
	serverErr := &ServerError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("reading error body: %w", err)}
	}
	if jsonErr := json.Unmarshal(data, serverErr); jsonErr != nil || serverErr.Detail == "" {
		serverErr.Detail = strings.TrimSpace(string(data))
		if serverErr.Detail == "" {
			serverErr.Detail = http.StatusText(resp.StatusCode)
		}
	}

	c.logger.Debug("engine request failed",
		"op", op,
		"status", resp.StatusCode,
		"error_type", serverErr.ErrorType,
	)
	return serverErr
}
