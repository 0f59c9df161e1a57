package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/omochice/toy-chat-client/internal/api"
	"github.com/omochice/toy-chat-client/internal/auth"
	"github.com/omochice/toy-chat-client/internal/cache"
	"github.com/omochice/toy-chat-client/internal/chat"
	"github.com/omochice/toy-chat-client/internal/credstore"
	"github.com/omochice/toy-chat-client/internal/metrics"
	"github.com/omochice/toy-chat-client/internal/session"
	"github.com/omochice/toy-chat-client/pkg/protocol"
	"go.uber.org/zap"
)

const noChatTitle = "Select a chat"

// Option customises an Engine.
type Option func(*options)

type options struct {
	scheduler session.Scheduler
	metrics   *metrics.Metrics
	now       func() time.Time
}

// WithScheduler sets the timer implementation used for reconnects.
func WithScheduler(s session.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithMetrics sets the counters updated by the engine and its session.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the time source used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Snapshot is a copy of the engine state.
type Snapshot struct {
	Username      string
	Selected      string
	State         session.State
	Reconnecting  bool
	Conversations []cache.Conversation
}

// Engine wires the session, the cache and the presenter together.
type Engine struct {
	api       API
	store     credstore.Store
	presenter Presenter
	logger    *zap.SugaredLogger
	metrics   *metrics.Metrics
	now       func() time.Time

	hub  *chat.Hub
	sess *session.Session

	cmds     chan func()
	stopped  chan struct{}
	stopOnce sync.Once

	// Loop state.
	identity auth.Identity
	cache    *cache.Cache
	selected string
	epoch    uint64
}

// New creates an Engine. Run must be started before any other method is used.
func New(cfg session.Config, client API, store credstore.Store, dialer chat.Dialer, presenter Presenter, logger *zap.SugaredLogger, opts ...Option) *Engine {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(nil)
	}

	e := &Engine{
		api:       client,
		store:     store,
		presenter: presenter,
		logger:    logger,
		metrics:   o.metrics,
		now:       o.now,
		hub:       chat.NewHub(),
		cmds:      make(chan func()),
		stopped:   make(chan struct{}),
		cache:     cache.New(""),
	}

	sessOpts := []session.Option{session.WithMetrics(o.metrics)}
	if o.scheduler != nil {
		sessOpts = append(sessOpts, session.WithScheduler(o.scheduler))
	}
	e.sess = session.New(cfg, dialer, e.credentials, e.hub, logger, sessOpts...)
	e.hub.Register(e)
	return e
}

// Run processes session events and posted operations until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	defer e.stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.sess.Events():
			e.sess.Handle(ev)
		case f := <-e.cmds:
			f()
		}
	}
}

func (e *Engine) stop() {
	e.stopOnce.Do(func() {
		close(e.stopped)
		e.sess.Close()
	})
}

// do runs f on the loop and waits for it to finish.
func (e *Engine) do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	select {
	case e.cmds <- func() { defer close(done); f() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	<-done
	return nil
}

// call runs f on the loop and returns its error.
func (e *Engine) call(ctx context.Context, f func() error) error {
	var err error
	if lerr := e.do(ctx, func() { err = f() }); lerr != nil {
		return lerr
	}
	return err
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.do(ctx, func() {
		s = Snapshot{
			Username:      e.identity.Username,
			Selected:      e.selected,
			State:         e.sess.State(),
			Reconnecting:  e.sess.ReconnectPending(),
			Conversations: e.cache.Conversations(),
		}
	})
	return s, err
}

// Messages returns the cached messages of a conversation.
func (e *Engine) Messages(ctx context.Context, id string) ([]protocol.Message, error) {
	var msgs []protocol.Message
	err := e.do(ctx, func() { msgs = e.cache.Messages(id) })
	return msgs, err
}

func (e *Engine) credentials() (string, string, bool) {
	return e.identity.Token, e.identity.Username, e.identity.Valid()
}

// guard captures the identity and epoch of the caller's request.
type guard struct {
	identity auth.Identity
	epoch    uint64
}

func (e *Engine) guard() guard {
	return guard{identity: e.identity, epoch: e.epoch}
}

// current reports whether no login or logout happened since g was taken.
func (e *Engine) current(g guard) bool {
	return g.epoch == e.epoch && e.identity.Valid()
}

func (e *Engine) renderList() {
	e.presenter.RenderConversations(e.cache.Conversations(), e.selected)
}

// beginSession installs id and resets the per-login state. Loop only.
func (e *Engine) beginSession(id auth.Identity) {
	e.sess.Shutdown()
	e.identity = id
	e.epoch++
	e.cache = cache.New(id.Username)
	e.selected = ""
	e.presenter.RenderHeader(noChatTitle)
	e.presenter.ShowInfo(AreaChats, "Logged in as "+id.Username)
	e.connect()
}

func (e *Engine) connect() {
	if err := e.sess.Connect(); err != nil {
		if errors.Is(err, session.ErrNoIdentity) {
			e.forceLogout("missing token")
			return
		}
		e.logger.Errorw("Failed to start live channel", "error", err)
		e.presenter.ShowError(AreaMessages, "WebSocket connection error. Real-time updates may fail.")
	}
}

// logout tears the session down in a fixed order: cancel the reconnect and
// close the channel, clear credentials, reset the cache, prompt for login.
func (e *Engine) logout() {
	e.sess.Shutdown()
	if err := auth.Clear(e.store); err != nil {
		e.logger.Errorw("Failed to clear credentials", "error", err)
	}
	e.identity = auth.Identity{}
	e.epoch++
	e.cache = cache.New("")
	e.selected = ""
	e.presenter.RenderConversations(nil, "")
	e.presenter.RenderHeader(noChatTitle)
	e.presenter.PromptLogin()
}

func (e *Engine) forceLogout(reason string) {
	e.metrics.ForcedLogouts.Inc()
	e.logger.Warnw("Forcing logout", "reason", reason, "username", e.identity.Username)
	e.logout()
}

// failRequest reports a failed request in area and forces a logout when the
// server rejected the token. It returns err, wrapped when it was an auth failure.
func (e *Engine) failRequest(area Area, prefix string, err error) error {
	e.presenter.ShowError(area, prefix+errorText(err))
	if api.IsUnauthorized(err) {
		e.forceLogout("request unauthorized")
		return fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}
	return err
}

func errorText(err error) string {
	var se *api.StatusError
	if errors.As(err, &se) {
		return se.Message()
	}
	return err.Error()
}
