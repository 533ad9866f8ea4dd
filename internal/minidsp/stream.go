package minidsp

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Stream timing defaults.
const (
	// defaultHandshakeTimeout bounds the WebSocket dial.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultHeartbeatInterval is the ping cadence on an open connection.
	defaultHeartbeatInterval = 30 * time.Second

	// controlWriteTimeout bounds ping and close control frames.
	controlWriteTimeout = 5 * time.Second
)

// ConnState describes the transport client's lifecycle state.
type ConnState uint8

const (
	// StateDisconnected indicates no active connection and no loop.
	StateDisconnected ConnState = iota

	// StateConnecting indicates the first connection attempt of a loop.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates the loop is between attempts.
	StateReconnecting

	// StateStopped indicates the loop has exited after teardown.
	StateStopped
)

// String returns a human-readable state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// EventHandler receives decoded stream frames. Each subscriber gets its
// own copy of every frame, delivered in arrival order.
type EventHandler func(Event)

// StreamConfig holds settings for the level stream client.
type StreamConfig struct {
	// URL is the derived WebSocket URL (see Client.StreamURL).
	URL string

	// HandshakeTimeout bounds the dial. Default 10 seconds.
	HandshakeTimeout time.Duration

	// HeartbeatInterval is the ping cadence. Default 30 seconds.
	HeartbeatInterval time.Duration

	// InitialBackoff and MaxBackoff bound the reconnect delay.
	// Defaults 1s and 60s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// StreamStats holds operational statistics.
type StreamStats struct {
	FramesRx      uint64
	FramesDropped uint64 // malformed frames skipped
	ConnectsTotal uint64 // successful connections
	ErrorsTotal   uint64
	LastActivity  time.Time
	State         string
	Subscribers   int
}

// Stream maintains the device's WebSocket level stream.
//
// One Stream runs at most one connection loop. The loop starts when the
// first subscriber arrives and stops when the last one cancels; Cancel
// on the last subscription blocks until the loop goroutine has exited,
// so no dispatch happens after it returns. A later Subscribe starts a
// fresh loop: the stop signal belongs to the loop instance, not the
// Stream.
//
// Connection failures are retried indefinitely with exponential backoff
// (1s doubling to a 60s cap, reset on success). Malformed frames are
// dropped without affecting the connection.
//
// Thread Safety: all methods are safe for concurrent use.
// Subscription.Cancel must not be called from inside an EventHandler.
type Stream struct {
	cfg    StreamConfig
	dialer *websocket.Dialer

	// Subscriber registry
	subsMu sync.RWMutex
	subs   map[int]EventHandler
	nextID int

	// Loop lifecycle. lifeMu serialises start/stop transitions so at
	// most one connection loop exists at a time.
	lifeMu sync.Mutex
	loop   *loopHandle

	// Connection state
	stateMu sync.RWMutex
	state   ConnState

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	framesRx      atomic.Uint64
	framesDropped atomic.Uint64
	connectsTotal atomic.Uint64
	errorsTotal   atomic.Uint64
	lastActivity  atomic.Int64 // Unix timestamp
}

// loopHandle carries the per-instance stop signal for one connection loop.
type loopHandle struct {
	stop *closeOnce
	wg   sync.WaitGroup
}

func (l *loopHandle) stopped() bool {
	select {
	case <-l.stop.Done():
		return true
	default:
		return false
	}
}

// NewStream creates a stream client for the given WebSocket URL.
// No connection is made until the first Subscribe.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: empty stream URL", ErrInvalidEndpoint)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = initialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = maxBackoff
	}

	return &Stream{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		subs:   make(map[int]EventHandler),
		state:  StateDisconnected,
	}, nil
}

// Subscription is the handle for one subscriber. Cancel removes the
// subscriber; cancelling the last one stops the connection loop and
// blocks until it has fully exited. Cancel is idempotent.
type Subscription struct {
	stream *Stream
	id     int
	once   sync.Once
}

// Cancel removes the subscription from the stream.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.stream.unsubscribe(s.id) })
}

// Subscribe registers a handler and starts the connection loop if it is
// not already running.
func (s *Stream) Subscribe(handler EventHandler) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = handler
	count := len(s.subs)
	s.subsMu.Unlock()

	if count == 1 {
		l := &loopHandle{stop: newCloseOnce()}
		l.wg.Add(1)
		s.loop = l
		go s.run(l)
		s.logInfo("stream loop started", "url", s.cfg.URL)
	}

	return &Subscription{stream: s, id: id}, nil
}

// unsubscribe removes a handler; removing the last one tears the loop
// down and waits for it to exit.
func (s *Stream) unsubscribe(id int) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.subsMu.Lock()
	delete(s.subs, id)
	empty := len(s.subs) == 0
	s.subsMu.Unlock()

	if !empty || s.loop == nil {
		return
	}

	l := s.loop
	s.loop = nil
	l.stop.Close()
	l.wg.Wait()
	s.logInfo("stream loop stopped")
}

// Active reports whether at least one subscription is live.
func (s *Stream) Active() bool {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs) > 0
}

// State returns the current lifecycle state.
func (s *Stream) State() ConnState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Stats returns current operational statistics.
func (s *Stream) Stats() StreamStats {
	s.subsMu.RLock()
	subscribers := len(s.subs)
	s.subsMu.RUnlock()

	return StreamStats{
		FramesRx:      s.framesRx.Load(),
		FramesDropped: s.framesDropped.Load(),
		ConnectsTotal: s.connectsTotal.Load(),
		ErrorsTotal:   s.errorsTotal.Load(),
		LastActivity:  time.Unix(s.lastActivity.Load(), 0),
		State:         s.State().String(),
		Subscribers:   subscribers,
	}
}

// SetLogger sets the logger for this stream.
func (s *Stream) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// run is the persistent connection loop. It exits only when the loop's
// stop signal fires.
func (s *Stream) run(l *loopHandle) {
	defer l.wg.Done()
	defer s.setState(StateStopped)

	bo := newBackoff(s.cfg.InitialBackoff, s.cfg.MaxBackoff)
	connectedOnce := false

	for {
		if l.stopped() {
			return
		}

		if connectedOnce || bo.Attempts() > 0 {
			s.setState(StateReconnecting)
		} else {
			s.setState(StateConnecting)
		}

		conn, resp, err := s.dialer.Dial(s.cfg.URL, nil)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			s.errorsTotal.Add(1)
			delay := bo.Next()
			s.logError("stream connect failed", err)
			s.logDebug("retrying stream connect", "backoff", delay.String(), "attempt", bo.Attempts())
			if !s.sleepBackoff(l, delay) {
				return
			}
			continue
		}

		bo.Reset()
		connectedOnce = true
		s.connectsTotal.Add(1)
		s.lastActivity.Store(time.Now().Unix())
		s.setState(StateConnected)
		s.logInfo("stream connected", "url", s.cfg.URL)

		s.readLoop(l, conn)
		conn.Close()

		if l.stopped() {
			return
		}

		s.setState(StateDisconnected)
		delay := bo.Next()
		s.logInfo("stream disconnected, will reconnect", "backoff", delay.String())
		if !s.sleepBackoff(l, delay) {
			return
		}
	}
}

// sleepBackoff waits out the delay, returning false if stop fired first.
func (s *Stream) sleepBackoff(l *loopHandle, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-l.stop.Done():
		return false
	case <-timer.C:
		return true
	}
}

// readLoop consumes frames until the connection drops or stop fires.
// Read errors are an expected, recoverable condition; the caller decides
// whether to reconnect.
func (s *Stream) readLoop(l *loopHandle, conn *websocket.Conn) {
	readWait := s.cfg.HeartbeatInterval * 2

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	// Heartbeat pings keep an idle connection alive. Closing the conn on
	// stop unblocks the pending read.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(controlWriteTimeout))
				conn.Close()
				return
			case <-readDone:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !l.stopped() {
				s.logDebug("stream read ended", "error", err.Error())
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		s.framesRx.Add(1)
		s.lastActivity.Store(time.Now().Unix())

		evt, err := ParseEvent(data)
		if err != nil {
			s.framesDropped.Add(1)
			s.errorsTotal.Add(1)
			s.logError("dropping malformed frame", err)
			continue
		}

		s.dispatch(evt)
	}
}

// dispatch delivers one event to a stable snapshot of the current
// subscribers. A panicking handler is logged and skipped; the remaining
// handlers still receive the event, and the next dispatch is unaffected.
func (s *Stream) dispatch(evt Event) {
	s.subsMu.RLock()
	handlers := make([]EventHandler, 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.subsMu.RUnlock()

	for _, handler := range handlers {
		s.deliver(handler, evt.DeepCopy())
	}
}

// deliver invokes one handler with panic recovery.
func (s *Stream) deliver(handler EventHandler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			s.errorsTotal.Add(1)
			s.logError("event handler panic", fmt.Errorf("%v", r))
		}
	}()
	handler(evt)
}

func (s *Stream) setState(state ConnState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// logInfo logs an info message if logger is set.
func (s *Stream) logInfo(msg string, keysAndValues ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if logger is set.
func (s *Stream) logDebug(msg string, keysAndValues ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (s *Stream) logError(msg string, err error) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
