package client_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/omochice/toy-chat-client/internal/cache"
	"github.com/omochice/toy-chat-client/internal/chat"
	"github.com/omochice/toy-chat-client/internal/client"
	"github.com/omochice/toy-chat-client/internal/credstore"
	"github.com/omochice/toy-chat-client/internal/metrics"
	"github.com/omochice/toy-chat-client/internal/session"
	"github.com/omochice/toy-chat-client/pkg/protocol"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeAPI answers REST calls from canned responses and counts them.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	loginToken string
	loginErr   error
	registerFn func(username, password string) error
	users      map[string]bool
	userErr    error
	chats      []protocol.Chat
	chatsErr   error
	newChatID  string
	newChatErr error
	messagesFn func(ctx context.Context, chatID string) ([]protocol.Message, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:      make(map[string]int),
		loginToken: "token-alice",
		users:      map[string]bool{"alice": true, "bob": true, "carol": true},
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (string, error) {
	f.record("login")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginToken, f.loginErr
}

func (f *fakeAPI) Register(ctx context.Context, username, password string) error {
	f.record("register")
	if f.registerFn != nil {
		return f.registerFn(username, password)
	}
	return nil
}

func (f *fakeAPI) GetUser(ctx context.Context, username string) (protocol.User, error) {
	f.record("user")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return protocol.User{}, f.userErr
	}
	if !f.users[username] {
		return protocol.User{}, errors.New("unexpected lookup")
	}
	return protocol.User{Username: username}, nil
}

func (f *fakeAPI) GetChats(ctx context.Context, username string) ([]protocol.Chat, error) {
	f.record("chats")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Chat(nil), f.chats...), f.chatsErr
}

func (f *fakeAPI) NewChat(ctx context.Context, req protocol.NewChatRequest) (string, error) {
	f.record("newChat")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newChatID, f.newChatErr
}

func (f *fakeAPI) GetMessages(ctx context.Context, chatID string) ([]protocol.Message, error) {
	f.record("messages")
	if f.messagesFn != nil {
		return f.messagesFn(ctx, chatID)
	}
	return nil, nil
}

// fakeConn is a live channel connection driven by the test.
type fakeConn struct {
	inbound   chan []byte
	closeErr  chan error
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		closeErr: make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, errors.New("use of closed connection")
	case err := <-c.closeErr:
		return nil, err
	case data := <-c.inbound:
		return data, nil
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "fake:0" }

func (c *fakeConn) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.written))
	for _, w := range c.written {
		out = append(out, string(w))
	}
	return out
}

// fakeDialer hands out a fresh fakeConn per dial unless failing.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  error
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (chat.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

// fakeScheduler records reconnect timers so tests decide when they fire.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) session.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

// recordingPresenter records every presenter call.
type recordingPresenter struct {
	mu       sync.Mutex
	calls    int
	convs    [][]cache.Conversation
	headers  []string
	rendered [][]protocol.Message
	appended []appendCall
	errs     map[client.Area][]string
	infos    map[client.Area][]string
	prompts  int
}

type appendCall struct {
	msg protocol.Message
	own bool
}

func newRecordingPresenter() *recordingPresenter {
	return &recordingPresenter{
		errs:  make(map[client.Area][]string),
		infos: make(map[client.Area][]string),
	}
}

func (p *recordingPresenter) RenderConversations(convs []cache.Conversation, selected string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.convs = append(p.convs, convs)
}

func (p *recordingPresenter) RenderHeader(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.headers = append(p.headers, title)
}

func (p *recordingPresenter) RenderMessages(msgs []protocol.Message, viewer string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.rendered = append(p.rendered, msgs)
}

func (p *recordingPresenter) AppendMessage(msg protocol.Message, own bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.appended = append(p.appended, appendCall{msg: msg, own: own})
}

func (p *recordingPresenter) ShowError(area client.Area, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.errs[area] = append(p.errs[area], text)
}

func (p *recordingPresenter) ShowInfo(area client.Area, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.infos[area] = append(p.infos[area], text)
}

func (p *recordingPresenter) PromptLogin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.prompts++
}

func (p *recordingPresenter) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *recordingPresenter) errors(area client.Area) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.errs[area]...)
}

func (p *recordingPresenter) appends() []appendCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]appendCall(nil), p.appended...)
}

func (p *recordingPresenter) lastConversations() []cache.Conversation {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.convs) == 0 {
		return nil
	}
	return p.convs[len(p.convs)-1]
}

func (p *recordingPresenter) lastRendered() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rendered) == 0 {
		return nil
	}
	return p.rendered[len(p.rendered)-1]
}

func (p *recordingPresenter) promptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts
}

type harness struct {
	eng     *client.Engine
	api     *fakeAPI
	dialer  *fakeDialer
	sched   *fakeScheduler
	pres    *recordingPresenter
	store   *credstore.Memory
	metrics *metrics.Metrics
	ctx     context.Context
}

func newHarness(t *testing.T, opts ...client.Option) *harness {
	t.Helper()
	h := &harness{
		api:     newFakeAPI(),
		dialer:  &fakeDialer{},
		sched:   &fakeScheduler{},
		pres:    newRecordingPresenter(),
		store:   credstore.NewMemory(),
		metrics: metrics.New(nil),
	}
	opts = append([]client.Option{
		client.WithScheduler(h.sched),
		client.WithMetrics(h.metrics),
	}, opts...)
	h.eng = client.New(
		session.Config{URL: "ws://chat.test/ws"},
		h.api,
		h.store,
		h.dialer,
		h.pres,
		zap.NewNop().Sugar(),
		opts...,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	h.ctx = context.Background()
	return h
}

func (h *harness) snapshot(t *testing.T) client.Snapshot {
	t.Helper()
	s, err := h.eng.Snapshot(h.ctx)
	require.NoError(t, err)
	return s
}

func (h *harness) waitState(t *testing.T, want session.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := h.eng.Snapshot(h.ctx)
		return err == nil && s.State == want
	}, waitFor, tick, "session never reached %v", want)
}

func (h *harness) messages(t *testing.T, id string) []protocol.Message {
	t.Helper()
	msgs, err := h.eng.Messages(h.ctx, id)
	require.NoError(t, err)
	return msgs
}

// loginOpen logs alice in with chats and waits for the live channel.
func (h *harness) loginOpen(t *testing.T, chats ...protocol.Chat) *fakeConn {
	t.Helper()
	h.api.chats = chats
	require.NoError(t, h.eng.Login(h.ctx, "alice", "password1"))
	h.waitState(t, session.Open)
	return h.dialer.last()
}

func texts(msgs []protocol.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func directChat(id string, members ...string) protocol.Chat {
	return protocol.Chat{ID: id, Owner: members[0], Members: members}
}
