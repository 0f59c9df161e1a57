// Package session owns the live channel connection: its lifecycle states,
// the reconnect policy and the ordered delivery of channel events.
//
// A Session is not safe for concurrent use. Every method, including Handle,
// must be called from the single goroutine that consumes Events. Background
// goroutines (dialing, reading, reconnect timers) only post events.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/toy-chat-client/internal/chat"
	"github.com/omochice/toy-chat-client/internal/metrics"
	"go.uber.org/zap"
)

// DefaultReconnectDelay is the fixed delay between a close and the next attempt.
const DefaultReconnectDelay = 5 * time.Second

const (
	defaultWriteTimeout = 10 * time.Second
	eventBuffer         = 64
)

var (
	// ErrNotConnected is returned by Send when the session is not open.
	ErrNotConnected = errors.New("not connected")
	// ErrNoIdentity is returned by Connect when no credentials are available.
	ErrNoIdentity = errors.New("no session identity")
)

// State is the lifecycle state of the live channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Credentials reports the bearer token and username of the current identity.
// ok is false when nobody is logged in.
type Credentials func() (token, username string, ok bool)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config holds the session settings.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL            string
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
}

// Option customises a Session.
type Option func(*Session)

// WithScheduler replaces the timer implementation used for reconnects.
func WithScheduler(s Scheduler) Option {
	return func(sess *Session) { sess.sched = s }
}

// WithMetrics sets the counters updated by the session.
func WithMetrics(m *metrics.Metrics) Option {
	return func(sess *Session) { sess.metrics = m }
}

type eventKind int

const (
	eventDialed eventKind = iota
	eventDialFailed
	eventFrame
	eventReadFailed
	eventReconnect
)

// Event is an occurrence posted by a background goroutine. It must be passed
// back to Handle by the consuming goroutine.
type Event struct {
	kind eventKind
	gen  uint64
	conn chat.Conn
	data []byte
	err  error
}

// Session manages a single live channel connection.
type Session struct {
	cfg     Config
	dialer  chat.Dialer
	creds   Credentials
	hub     *chat.Hub
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	sched   Scheduler

	events  chan Event
	stopped chan struct{}

	state      State
	conn       chat.Conn
	connID     string
	gen        uint64
	cancelDial context.CancelFunc
	cancelRead context.CancelFunc
	timer      Timer
	timerGen   uint64
}

// New creates a Session in the Disconnected state.
func New(cfg Config, dialer chat.Dialer, creds Credentials, hub *chat.Hub, logger *zap.SugaredLogger, opts ...Option) *Session {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	s := &Session{
		cfg:     cfg,
		dialer:  dialer,
		creds:   creds,
		hub:     hub,
		logger:  logger,
		sched:   realScheduler{},
		events:  make(chan Event, eventBuffer),
		stopped: make(chan struct{}),
		state:   Disconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

// Events returns the channel the owning goroutine must drain into Handle.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// ReconnectPending reports whether a reconnect attempt is scheduled.
func (s *Session) ReconnectPending() bool {
	return s.timer != nil
}

// Connect starts a connection attempt. It is a no-op while the session is
// open or already connecting, and fails with ErrNoIdentity when there are no
// credentials.
func (s *Session) Connect() error {
	if s.state == Open || s.state == Connecting {
		return nil
	}
	token, username, ok := s.creds()
	if !ok {
		return ErrNoIdentity
	}
	target, err := s.dialURL(username)
	if err != nil {
		return err
	}

	s.stopTimer()
	s.gen++
	gen := s.gen
	s.state = Connecting
	s.connID = uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	s.logger.Debugw("Dialing live channel", "url", target, "conn_id", s.connID)
	go func() {
		conn, err := s.dialer.Dial(ctx, target, header)
		if err != nil {
			s.post(Event{kind: eventDialFailed, gen: gen, err: err})
			return
		}
		s.post(Event{kind: eventDialed, gen: gen, conn: conn})
	}()
	return nil
}

// Send writes payload to the live channel. Undelivered payloads are not queued.
func (s *Session) Send(payload []byte) error {
	if s.state != Open || s.conn == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.conn.Write(ctx, payload); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return nil
}

// Shutdown cancels any pending reconnect, aborts an in-flight dial and closes
// the live connection. Events from the torn down connection are ignored.
func (s *Session) Shutdown() {
	s.stopTimer()
	s.gen++
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	s.dropConn()
	if s.state != Disconnected {
		s.logger.Infow("Live channel shut down", "conn_id", s.connID)
	}
	s.state = Disconnected
}

// Close shuts the session down for good and releases blocked background goroutines.
func (s *Session) Close() {
	s.Shutdown()
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
}

// Handle applies an event taken from Events and notifies subscribers.
func (s *Session) Handle(ev Event) {
	if ev.kind == eventReconnect {
		s.handleReconnect(ev)
		return
	}
	if ev.gen != s.gen {
		if ev.conn != nil {
			ev.conn.Close()
		}
		return
	}

	switch ev.kind {
	case eventDialed:
		s.cancelDial = nil
		s.metrics.Dials.WithLabelValues("ok").Inc()
		s.conn = ev.conn
		s.state = Open
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelRead = cancel
		go s.readLoop(ctx, ev.conn, ev.gen)
		s.logger.Infow("Live channel open", "conn_id", s.connID, "remote", ev.conn.RemoteAddr())
		s.hub.Open()

	case eventDialFailed:
		s.cancelDial = nil
		s.metrics.Dials.WithLabelValues("failed").Inc()
		s.logger.Warnw("Live channel dial failed", "conn_id", s.connID, "error", ev.err)
		s.hub.Error(ev.err)
		s.closed(chat.CloseAbnormal, ev.err.Error())

	case eventFrame:
		s.metrics.FramesReceived.Inc()
		s.hub.Message(ev.data)

	case eventReadFailed:
		code, reason := chat.CloseAbnormal, ev.err.Error()
		var ce *chat.CloseError
		if errors.As(ev.err, &ce) {
			code, reason = ce.Code, ce.Reason
		} else {
			s.logger.Warnw("Live channel read failed", "conn_id", s.connID, "error", ev.err)
			s.hub.Error(ev.err)
		}
		s.dropConn()
		s.closed(code, reason)
	}
}

func (s *Session) handleReconnect(ev Event) {
	if s.timer == nil || ev.gen != s.timerGen {
		return
	}
	s.timer = nil
	if s.state != Closed {
		return
	}
	if err := s.Connect(); err != nil {
		s.logger.Infow("Reconnect skipped", "error", err)
		s.state = Disconnected
	}
}

// closed moves the session to Closed, tells subscribers and schedules exactly
// one reconnect when an identity is still present afterwards.
func (s *Session) closed(code int, reason string) {
	s.state = Closed
	s.logger.Infow("Live channel closed", "conn_id", s.connID, "code", code, "reason", reason)
	s.hub.Close(code, reason)

	// A subscriber may have logged out while handling the close.
	if s.state != Closed {
		return
	}
	if _, _, ok := s.creds(); !ok {
		s.state = Disconnected
		return
	}
	s.timerGen++
	gen := s.timerGen
	s.timer = s.sched.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.post(Event{kind: eventReconnect, gen: gen})
	})
	s.metrics.ReconnectsScheduled.Inc()
	s.logger.Infow("Reconnect scheduled", "delay", s.cfg.ReconnectDelay)
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) dropConn() {
	if s.cancelRead != nil {
		s.cancelRead()
		s.cancelRead = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debugw("Error closing live channel", "error", err)
		}
		s.conn = nil
	}
}

func (s *Session) readLoop(ctx context.Context, conn chat.Conn, gen uint64) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			s.post(Event{kind: eventReadFailed, gen: gen, err: err})
			return
		}
		s.post(Event{kind: eventFrame, gen: gen, data: data})
	}
}

func (s *Session) post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.stopped:
		if ev.conn != nil {
			ev.conn.Close()
		}
	}
}

func (s *Session) dialURL(username string) (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid live channel url: %w", err)
	}
	q := u.Query()
	q.Set("username", username)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
