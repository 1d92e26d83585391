// Package sync keeps a local, observable copy of remote simulation state
// consistent across two transports: a per-simulation push stream and a
// pull-polling fallback. All state lives behind a single run loop; transports
// and callers feed it discrete messages, so merge order never needs locks and
// correctness rests on the merge engine's idempotence.
package sync

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/calebhart/simdash/internal/api"
	"github.com/google/uuid"
)

// DefaultPollInterval is the reference cadence of the pull refresh loop.
const DefaultPollInterval = 4 * time.Second

// Options configures a Client.
type Options struct {
	PollInterval time.Duration
	Backoff      Backoff
	Logger       *slog.Logger
}

// Client is the synchronization facade. Consumers read snapshots and issue
// commands; the client owns every collection and mutates them only on its run
// loop.
type Client struct {
	engine  EngineAPI
	streams StreamOpener
	opts    Options
	logger  *slog.Logger

	commands chan func()
	done     chan struct{}

	// Owned by the run loop. Nothing below is touched from other goroutines.
	st            clientState
	desiredID     string
	streamID      string
	streamGen     int
	streamCancel  context.CancelFunc
	refreshWanted bool
	refreshTicker *time.Ticker
	refreshStop   chan struct{}
	refreshBusy   bool
	closed        bool
	subscribers   map[string]chan Snapshot
}

// NewClient creates and starts a synchronization client.
func NewClient(engine EngineAPI, streams StreamOpener, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{
		engine:      engine,
		streams:     streams,
		opts:        opts,
		logger:      logger,
		commands:    make(chan func(), 64),
		done:        make(chan struct{}),
		subscribers: make(map[string]chan Snapshot),
	}
	go c.run()
	return c
}

func (c *Client) run() {
	for {
		select {
		case fn := <-c.commands:
			fn()
		case <-c.done:
			return
		}
	}
}

// post hands a closure to the run loop. Returns false once the client is
// closed; callers treat that as a discard.
func (c *Client) post(fn func()) bool {
	select {
	case c.commands <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) closedErr() error {
	select {
	case <-c.done:
		return ErrClosed
	default:
		return nil
	}
}

// Close shuts the client down: the stream, the refresh loop, and every
// subscriber channel.
func (c *Client) Close() {
	c.post(func() {
		if c.closed {
			return
		}
		c.closed = true
		c.teardownStream()
		c.stopRefreshLocked()
		for id, ch := range c.subscribers {
			close(ch)
			delete(c.subscribers, id)
		}
		close(c.done)
	})
}

// Snapshot returns a detached copy of the current state.
func (c *Client) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !c.post(func() { reply <- c.snapshotLocked() }) {
		return Snapshot{}
	}
	return <-reply
}

// Subscribe registers an observer. The channel is buffered with the latest
// snapshot semantics: a slow consumer only ever misses intermediate states,
// never the newest one. The returned token unsubscribes.
func (c *Client) Subscribe() (string, <-chan Snapshot) {
	token := uuid.NewString()
	ch := make(chan Snapshot, 1)
	if !c.post(func() {
		c.subscribers[token] = ch
		ch <- c.snapshotLocked()
	}) {
		close(ch)
	}
	return token, ch
}

// Unsubscribe removes an observer and closes its channel.
func (c *Client) Unsubscribe(token string) {
	c.post(func() {
		if ch, ok := c.subscribers[token]; ok {
			close(ch)
			delete(c.subscribers, token)
		}
	})
}

// ListAll pull-fetches every summary and upserts them. A failed fetch leaves
// the existing collection untouched.
func (c *Client) ListAll(ctx context.Context) ([]api.SimulationSummary, error) {
	if err := c.closedErr(); err != nil {
		return nil, err
	}
	c.post(func() {
		c.st.fetchPending = true
		c.notify()
	})
	summaries, err := c.engine.ListSimulations(ctx)
	if err != nil {
		c.post(func() {
			c.st.fetchPending = false
			c.st.lastErr = err
			c.notify()
		})
		return nil, err
	}
	c.post(func() {
		for _, s := range summaries {
			c.st.summaries = UpsertSummary(c.st.summaries, s)
		}
		c.st.fetchPending = false
		c.st.lastErr = nil
		c.notify()
	})
	return summaries, nil
}

// Select fetches the full detail for id, marks it active, and opens a push
// subscription for it. The most recent Select wins: a superseded in-flight
// fetch is discarded at apply time.
func (c *Client) Select(ctx context.Context, id string) (*api.SimulationDetail, error) {
	if err := c.closedErr(); err != nil {
		return nil, err
	}
	c.post(func() {
		if c.desiredID != id {
			c.teardownStream()
			c.desiredID = id
			c.st.active = nil
			c.st.connState = StatePolling
			c.st.lastHeartbeat = time.Time{}
		}
		c.st.fetchPending = true
		c.notify()
	})

	detail, err := c.engine.GetSimulation(ctx, id)
	if err != nil {
		c.post(func() {
			if c.desiredID != id {
				return
			}
			c.st.fetchPending = false
			c.st.lastErr = err
			c.notify()
		})
		return nil, err
	}

	c.post(func() {
		if c.desiredID != id {
			return
		}
		c.st.applyDetail(detail)
		c.st.fetchPending = false
		c.st.lastErr = nil
		c.openStreamLocked(id)
		c.notify()
	})
	return cloneDetail(detail), nil
}

// Deselect drops the active simulation, tears the stream down, and returns
// the machine to polling.
func (c *Client) Deselect() {
	c.post(func() {
		c.teardownStream()
		c.desiredID = ""
		c.st.active = nil
		c.st.connState = StatePolling
		c.st.lastHeartbeat = time.Time{}
		c.notify()
	})
}

// Create creates a simulation from a named scenario. The response detail goes
// through the same merge path as a stream envelope, so the writer observes
// its own write.
func (c *Client) Create(ctx context.Context, name, scenario string) (*api.SimulationDetail, error) {
	return c.mutateDetail(api.EventCreated, func() (*api.SimulationDetail, error) {
		return c.engine.CreateSimulation(ctx, api.CreateSimulationRequest{Name: name, Scenario: scenario})
	})
}

// Start transitions a created simulation to running.
func (c *Client) Start(ctx context.Context, id string) (*api.SimulationDetail, error) {
	return c.mutateDetail(api.EventStarted, func() (*api.SimulationDetail, error) {
		return c.engine.StartSimulation(ctx, id)
	})
}

// SubmitAction injects a pending action. On failure the error is both
// recorded in shared state and returned, so form-level callers can keep
// their input uncommitted.
func (c *Client) SubmitAction(ctx context.Context, id string, req api.InjectActionRequest) (*api.SimulationDetail, error) {
	return c.mutateDetail(api.EventActionAdded, func() (*api.SimulationDetail, error) {
		return c.engine.InjectAction(ctx, id, req)
	})
}

// AddActor attaches an actor to a simulation.
func (c *Client) AddActor(ctx context.Context, id, actorID string) (*api.SimulationDetail, error) {
	return c.mutateDetail(api.EventActorAdded, func() (*api.SimulationDetail, error) {
		return c.engine.AddActor(ctx, id, api.AddActorRequest{ActorID: actorID})
	})
}

func (c *Client) mutateDetail(event string, call func() (*api.SimulationDetail, error)) (*api.SimulationDetail, error) {
	if err := c.closedErr(); err != nil {
		return nil, err
	}
	c.post(func() {
		c.st.submitPending = true
		c.notify()
	})
	detail, err := call()
	if err != nil {
		c.post(func() {
			c.st.submitPending = false
			c.st.lastErr = err
			c.notify()
		})
		return nil, err
	}
	c.post(func() {
		c.st.applyEnvelope(api.StreamEvent{
			Event:        event,
			SimulationID: detail.ID,
			TS:           time.Now(),
			Detail:       detail,
		})
		c.notify()
	})
	return cloneDetail(detail), nil
}

// Advance steps the simulation one phase. The endpoint returns a phase
// result rather than a detail; when streaming, the refreshed detail arrives
// by push, otherwise it is re-fetched so polling-mode consumers still read
// their write.
func (c *Client) Advance(ctx context.Context, id string) (*api.PhaseAdvanceResult, error) {
	if err := c.closedErr(); err != nil {
		return nil, err
	}
	c.post(func() {
		c.st.submitPending = true
		c.notify()
	})
	result, err := c.engine.AdvanceSimulation(ctx, id)
	if err != nil {
		c.post(func() {
			c.st.submitPending = false
			c.st.lastErr = err
			c.notify()
		})
		return nil, err
	}
	c.post(func() {
		c.st.applyEnvelope(api.StreamEvent{
			Event:        api.EventPhaseAdvanced,
			SimulationID: id,
			TS:           time.Now(),
			PhaseResult:  result,
		})
		if c.st.connState != StateStreaming && c.desiredID == id {
			go c.fetchDetail(id)
		}
		c.notify()
	})
	return clonePhaseResult(result), nil
}

// Delete removes a simulation. The local entry goes away only on the
// server's acknowledgment; the selection is dropped if it pointed there.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.closedErr(); err != nil {
		return err
	}
	c.post(func() {
		c.st.submitPending = true
		c.notify()
	})
	if err := c.engine.DeleteSimulation(ctx, id); err != nil {
		c.post(func() {
			c.st.submitPending = false
			c.st.lastErr = err
			c.notify()
		})
		return err
	}
	c.post(func() {
		if c.desiredID == id {
			c.teardownStream()
			c.desiredID = ""
			c.st.connState = StatePolling
			c.st.lastHeartbeat = time.Time{}
		}
		c.st.applyEnvelope(api.StreamEvent{
			Event:        api.EventDeleted,
			SimulationID: id,
			TS:           time.Now(),
		})
		c.notify()
	})
	return nil
}

// StartRefreshLoop begins the fixed-interval pull refresh. Starting twice is
// a no-op while one loop is running.
func (c *Client) StartRefreshLoop() {
	c.post(func() {
		c.refreshWanted = true
		c.ensureRefreshLocked()
	})
}

// StopRefreshLoop cancels the refresh timer and releases it.
func (c *Client) StopRefreshLoop() {
	c.post(func() {
		c.refreshWanted = false
		c.stopRefreshLocked()
	})
}

// DisconnectStream tears down the push subscription and any scheduled
// reconnect, returns the machine to polling, and resumes the refresh loop if
// it was suspended.
func (c *Client) DisconnectStream() {
	c.post(func() {
		c.teardownStream()
		c.st.connState = StatePolling
		c.st.lastHeartbeat = time.Time{}
		c.ensureRefreshLocked()
		c.notify()
	})
}

func (c *Client) ensureRefreshLocked() {
	if !c.refreshWanted || c.refreshTicker != nil || c.closed {
		return
	}
	ticker := time.NewTicker(c.opts.PollInterval)
	stop := make(chan struct{})
	c.refreshTicker = ticker
	c.refreshStop = stop
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-c.done:
				return
			case <-ticker.C:
				c.post(c.onRefreshTick)
			}
		}
	}()
}

func (c *Client) stopRefreshLocked() {
	if c.refreshTicker == nil {
		return
	}
	c.refreshTicker.Stop()
	close(c.refreshStop)
	c.refreshTicker = nil
	c.refreshStop = nil
}

// onRefreshTick runs on the loop. The list fetch always happens; the detail
// re-fetch is skipped while the push channel is authoritative for the
// selected simulation.
func (c *Client) onRefreshTick() {
	if c.refreshBusy || c.closed {
		return
	}
	c.refreshBusy = true
	id := c.desiredID
	wantDetail := id != "" && c.st.connState != StateStreaming

	go func() {
		summaries, err := c.engine.ListSimulations(context.Background())
		c.post(func() {
			if err != nil {
				c.st.lastErr = err
			} else {
				for _, s := range summaries {
					c.st.summaries = UpsertSummary(c.st.summaries, s)
				}
			}
			c.notify()
		})
		if err == nil && wantDetail {
			c.fetchDetail(id)
		}
		c.post(func() { c.refreshBusy = false })
	}()
}

// fetchDetail pulls one detail and routes it through the envelope path.
// Results for a simulation that is no longer selected are discarded.
func (c *Client) fetchDetail(id string) {
	detail, err := c.engine.GetSimulation(context.Background(), id)
	if err != nil {
		c.post(func() {
			if c.desiredID != id {
				return
			}
			c.st.lastErr = err
			c.notify()
		})
		return
	}
	c.post(func() {
		if c.desiredID != id {
			return
		}
		c.st.applyEnvelope(api.StreamEvent{
			Event:        api.EventSnapshot,
			SimulationID: id,
			TS:           time.Now(),
			Detail:       detail,
		})
		c.notify()
	})
}

func (c *Client) openStreamLocked(id string) {
	if c.streamCancel != nil && c.streamID == id {
		return
	}
	c.teardownStream()
	c.streamGen++
	gen := c.streamGen
	ctx, cancel := context.WithCancel(context.Background())
	c.streamCancel = cancel
	c.streamID = id
	go c.streamWorker(ctx, gen, id)
}

func (c *Client) teardownStream() {
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
		c.streamID = ""
		// invalidate the generation now: the cancelled worker may still be
		// draining envelopes that must no longer be applied
		c.streamGen++
	}
}

// streamWorker owns one subscription lifetime: connect, drain, back off,
// repeat until its context is cancelled. Posts carry a generation number so
// messages from a torn-down worker are discarded.
func (c *Client) streamWorker(ctx context.Context, gen int, id string) {
	attempt := 0
	for {
		conn, err := c.streams.Open(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := c.opts.Backoff.NextDelay(attempt)
			attempt++
			c.logger.Debug("stream connect failed",
				"simulation_id", id, "attempt", attempt, "retry_in", delay, "error", err)
			c.post(func() {
				if gen != c.streamGen {
					return
				}
				c.st.connState = StateOffline
				c.st.lastHeartbeat = time.Time{}
				c.ensureRefreshLocked()
				c.notify()
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		c.post(func() {
			if gen != c.streamGen {
				return
			}
			c.st.connState = StateStreaming
			c.st.lastHeartbeat = time.Now()
			c.notify()
		})

		for event := range conn.Events() {
			e := event
			c.post(func() {
				if gen != c.streamGen {
					return
				}
				c.st.lastHeartbeat = time.Now()
				c.st.applyEnvelope(e)
				c.notify()
			})
		}

		if ctx.Err() != nil {
			return
		}
		c.logger.Debug("stream lost", "simulation_id", id, "error", conn.Err())

		delay := c.opts.Backoff.NextDelay(attempt)
		attempt++
		c.post(func() {
			if gen != c.streamGen {
				return
			}
			c.st.connState = StateOffline
			c.st.lastHeartbeat = time.Time{}
			c.ensureRefreshLocked()
			c.notify()
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) snapshotLocked() Snapshot {
	return Snapshot{
		Simulations:     cloneSummaries(c.st.summaries),
		Active:          cloneDetail(c.st.active),
		SelectedID:      c.desiredID,
		Connection:      c.st.connState,
		LastHeartbeat:   c.st.lastHeartbeat,
		LastPhaseResult: clonePhaseResult(c.st.lastPhaseResult),
		FetchPending:    c.st.fetchPending,
		SubmitPending:   c.st.submitPending,
		Err:             c.st.lastErr,
	}
}

// notify pushes the latest snapshot to every observer, replacing an unread
// older one rather than blocking.
func (c *Client) notify() {
	if len(c.subscribers) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
