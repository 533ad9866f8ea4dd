package minidsp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// defaultPollInterval is the fallback refresh cadence when the level
// stream is disabled or unavailable.
const defaultPollInterval = 1 * time.Second

// Listener receives state snapshots after each change notification.
// Each listener gets its own deep copy.
type Listener func(State)

// CoordinatorOptions holds settings for creating a Coordinator.
type CoordinatorOptions struct {
	// Name identifies the device in logs. Default "MiniDSP".
	Name string

	// Client performs HTTP requests against the device. Required.
	Client *Client

	// Stream is the WebSocket level stream. Optional; when nil or
	// StreamEnabled is false the coordinator polls instead.
	Stream *Stream

	// StreamEnabled selects push updates over polling.
	StreamEnabled bool

	// PollInterval is the polling cadence. Default 1 second.
	PollInterval time.Duration

	// Logger for coordinator operations (optional).
	Logger Logger
}

// Coordinator owns the authoritative device state and distributes
// change notifications.
//
// State flows in from two sources: full refreshes over HTTP (which
// replace the state and always notify) and stream events (which merge
// into the state and notify only when something changed). Commands go
// out over HTTP and trigger a confirming refresh.
//
// Thread Safety: all methods are safe for concurrent use. Listeners
// must not call Stop or the unsubscribe function from inside their own
// callback.
type Coordinator struct {
	name          string
	client        *Client
	stream        *Stream
	streamEnabled bool
	pollInterval  time.Duration

	store *Store

	// Listener registry
	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int

	// Lifecycle. startMu serialises Start and Stop.
	startMu    sync.Mutex
	sub        *Subscription
	poll       *closeOnce
	pollCancel context.CancelFunc
	wg         sync.WaitGroup

	ready atomic.Bool

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	refreshes     atomic.Uint64
	merges        atomic.Uint64
	notifications atomic.Uint64
	commands      atomic.Uint64
	errorsTotal   atomic.Uint64
}

// NewCoordinator creates a coordinator with the given options.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if opts.Name == "" {
		opts.Name = "MiniDSP"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	return &Coordinator{
		name:          opts.Name,
		client:        opts.Client,
		stream:        opts.Stream,
		streamEnabled: opts.StreamEnabled && opts.Stream != nil,
		pollInterval:  opts.PollInterval,
		store:         NewStore(),
		listeners:     make(map[int]Listener),
		logger:        opts.Logger,
	}, nil
}

// Name returns the configured device name.
func (c *Coordinator) Name() string {
	return c.name
}

// Ready reports whether the first refresh has completed.
func (c *Coordinator) Ready() bool {
	return c.ready.Load()
}

// FirstRefresh performs the initial full state fetch. Failure here means
// the device is unreachable or speaking an unexpected dialect, and the
// caller should treat it as fatal.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		return err
	}
	c.ready.Store(true)
	return nil
}

// RequestRefresh performs a full state fetch on demand. The new state
// replaces the old one and all listeners are notified, whether or not
// anything changed.
func (c *Coordinator) RequestRefresh(ctx context.Context) error {
	return c.refresh(ctx)
}

func (c *Coordinator) refresh(ctx context.Context) error {
	status, err := c.client.GetStatus(ctx)
	if err != nil {
		c.errorsTotal.Add(1)
		return err
	}

	c.store.Replace(status)
	c.refreshes.Add(1)
	c.notifyListeners()
	return nil
}

// Snapshot returns a deep copy of the current state, or nil before the
// first refresh.
func (c *Coordinator) Snapshot() State {
	return c.store.Snapshot()
}

// Subscribe registers a listener for state change notifications. The
// returned function removes the listener; it is safe to call more than
// once.
func (c *Coordinator) Subscribe(l Listener) (func(), error) {
	if l == nil {
		return nil, ErrNilHandler
	}

	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			delete(c.listeners, id)
			c.listenersMu.Unlock()
		})
	}, nil
}

// Start begins continuous updates: a stream subscription when the level
// stream is enabled, a polling loop otherwise. Start is idempotent.
func (c *Coordinator) Start() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.sub != nil || c.poll != nil {
		return nil
	}

	if c.streamEnabled {
		sub, err := c.stream.Subscribe(c.handleEvent)
		if err != nil {
			return fmt.Errorf("subscribing to stream: %w", err)
		}
		c.sub = sub
		c.logInfo("updates started", "mode", "stream")
		return nil
	}

	stop := newCloseOnce()
	ctx, cancel := context.WithCancel(context.Background())
	c.poll = stop
	c.pollCancel = cancel
	c.wg.Add(1)
	go c.pollLoop(ctx, stop)
	c.logInfo("updates started", "mode", "poll", "interval", c.pollInterval.String())
	return nil
}

// Stop halts continuous updates and blocks until the update goroutines
// have exited. Stop is idempotent; Start may be called again afterwards.
func (c *Coordinator) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.sub == nil && c.poll == nil {
		return
	}

	if c.sub != nil {
		c.sub.Cancel()
		c.sub = nil
	}

	if c.poll != nil {
		c.poll.Close()
		c.pollCancel()
		c.poll = nil
		c.pollCancel = nil
	}

	c.wg.Wait()
	c.logInfo("updates stopped")
}

// pollLoop fetches the full state at the configured interval until stop
// fires.
func (c *Coordinator) pollLoop(ctx context.Context, stop *closeOnce) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop.Done():
			return
		case <-ticker.C:
			if err := c.refresh(ctx); err != nil && ctx.Err() == nil {
				c.logError("poll refresh failed", err)
			}
		}
	}
}

// handleEvent merges one stream event into the state, notifying
// listeners only when the merge changed something.
func (c *Coordinator) handleEvent(evt Event) {
	update := NormalizeEvent(evt)
	if update.IsZero() {
		return
	}

	if c.store.ApplyUpdate(update) {
		c.merges.Add(1)
		c.notifyListeners()
	}
}

// notifyListeners delivers a fresh snapshot to every listener. Each
// listener gets its own copy; a panicking listener is logged and
// skipped without affecting the others.
func (c *Coordinator) notifyListeners() {
	c.notifications.Add(1)

	c.listenersMu.RLock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		c.deliverSnapshot(l)
	}
}

// deliverSnapshot invokes one listener with panic recovery.
func (c *Coordinator) deliverSnapshot(l Listener) {
	defer func() {
		if r := recover(); r != nil {
			c.errorsTotal.Add(1)
			c.logError("listener panic", fmt.Errorf("%v", r))
		}
	}()
	l(c.store.Snapshot())
}

// IssueCommand sends a partial configuration to the device, then
// refreshes to confirm the applied values. A refresh failure after a
// successful command is logged but not returned, since the command did
// reach the device.
func (c *Coordinator) IssueCommand(ctx context.Context, cmd Command) error {
	if cmd.IsZero() {
		return fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}

	if err := c.client.PostConfig(ctx, cmd); err != nil {
		c.errorsTotal.Add(1)
		return err
	}
	c.commands.Add(1)

	if err := c.refresh(ctx); err != nil {
		c.logError("post-command refresh failed", err)
	}
	return nil
}

// StreamStats returns the stream client's statistics, or a placeholder
// when no stream is configured.
func (c *Coordinator) StreamStats() StreamStats {
	if c.stream == nil {
		return StreamStats{State: "disabled"}
	}
	return c.stream.Stats()
}

// GetMetrics returns operational metrics for health reporting.
func (c *Coordinator) GetMetrics() map[string]any {
	c.listenersMu.RLock()
	listeners := len(c.listeners)
	c.listenersMu.RUnlock()

	m := map[string]any{
		"name":          c.name,
		"ready":         c.ready.Load(),
		"refreshes":     c.refreshes.Load(),
		"merges":        c.merges.Load(),
		"notifications": c.notifications.Load(),
		"commands":      c.commands.Load(),
		"errors":        c.errorsTotal.Load(),
		"listeners":     listeners,
	}
	if c.stream != nil {
		stats := c.stream.Stats()
		m["stream_state"] = stats.State
		m["stream_frames_rx"] = stats.FramesRx
		m["stream_frames_dropped"] = stats.FramesDropped
		m["stream_connects"] = stats.ConnectsTotal
	}
	return m
}

// SetLogger sets the logger for this coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// logInfo logs an info message if logger is set.
func (c *Coordinator) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Coordinator) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
