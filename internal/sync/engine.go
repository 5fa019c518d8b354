// Package sync keeps one session document in step with the remote store.
//
// An Engine holds the local working copy of a session. Remote snapshots
// replace it, local mutations edit it, and a debounced save writes it back
// with a merge. A single goroutine owns all engine state; every input
// (snapshot, mutation, timer, save result, close) is a message to it.
//
// Remote updates re-arm the debounce timer the same way local edits do, so
// an echo flag marks the state as already persisted: a timer that fires
// while the flag is set is skipped instead of writing the remote state back.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/schema"
)

var (
	// ErrNotReady is returned for mutations before the first snapshot or
	// after a terminal state.
	ErrNotReady = errors.New("session not ready")

	// ErrClosed is returned once the engine has been closed.
	ErrClosed = errors.New("sync engine closed")

	// ErrStarted is returned by a second call to Start.
	ErrStarted = errors.New("sync engine already started")
)

// maxUnechoed bounds how many saved documents are remembered while waiting
// for their echo.
const maxUnechoed = 8

// Config holds engine configuration.
type Config struct {
	// Debounce is the quiet period after the last change before saving.
	Debounce time.Duration

	// NoticeDuration is how long the "update received" notice shows.
	NoticeDuration time.Duration

	// EventBuffer sizes the Events channel. Events are dropped when full.
	EventBuffer int

	// Logger for engine activity
	Logger *log.Logger

	// Now stamps completed tasks.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce:       time.Second,
		NoticeDuration: 3 * time.Second,
		EventBuffer:    64,
		Logger:         log.New(os.Stderr, "[sync] ", log.LstdFlags),
		Now:            time.Now,
	}
}

// command is a mutation or flush request handled by the loop.
type command struct {
	apply func(*schema.Session) error // nil for flush
	reply chan error
}

// view is the part of the state readable from other goroutines.
type view struct {
	state   State
	kind    gateway.Kind
	saving  bool
	notice  bool
	session *schema.Session
}

// Engine synchronizes one session. Create with New, then call Start.
type Engine struct {
	gw     gateway.Gateway
	id     string
	config *Config

	cmds     chan command
	saveDone chan error
	events   chan Event
	loaded   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	startOnce gosync.Once
	closeOnce gosync.Once
	sub       gateway.Subscription

	mu   gosync.RWMutex
	view view

	// Owned by the loop goroutine.
	session     *schema.Session
	state       State
	kind        gateway.Kind
	echo        bool
	sent        []*schema.Session // saved documents whose echo has not arrived, oldest first
	inflight    *schema.Session
	saving      bool
	queued      bool
	notice      bool
	debounce    *time.Timer
	noticeTimer *time.Timer
	waiters     []chan error
	loadedOnce  bool
}

// New returns an engine for session id. A nil config uses DefaultConfig.
func New(gw gateway.Gateway, id string, config *Config) *Engine {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.Debounce <= 0 {
		config.Debounce = def.Debounce
	}
	if config.NoticeDuration <= 0 {
		config.NoticeDuration = def.NoticeDuration
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = def.EventBuffer
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	return &Engine{
		gw:       gw,
		id:       id,
		config:   config,
		cmds:     make(chan command),
		saveDone: make(chan error, 1),
		events:   make(chan Event, config.EventBuffer),
		loaded:   make(chan struct{}),
	}
}

// ID returns the session id.
func (e *Engine) ID() string {
	return e.id
}

// Start subscribes to the session and starts the loop. A subscribe
// failure moves the engine to its terminal state and is returned.
func (e *Engine) Start(ctx context.Context) error {
	err := ErrStarted
	e.startOnce.Do(func() {
		err = e.start(ctx)
	})
	return err
}

func (e *Engine) start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	sub, err := e.gw.Subscribe(e.ctx, e.id)
	if err != nil {
		e.fail(gateway.AsError(gateway.OpSubscribe, e.id, err))
		e.cancel()
		close(e.events)
		return fmt.Errorf("failed to subscribe to %s: %w", e.id, err)
	}
	e.sub = sub
	e.publish()

	e.wg.Add(1)
	go e.loop()
	return nil
}

// Close tears the engine down exactly once: the subscription is closed,
// pending timers are stopped and the loop exits. A save already in flight
// completes in the background and its result is discarded.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.cancel == nil {
			// Never started.
			e.startOnce.Do(func() { close(e.events) })
			return
		}
		e.cancel()
		e.wg.Wait()
		if e.sub != nil {
			err = e.sub.Close()
		}
	})
	return err
}

// WaitLoaded blocks until the first snapshot or a terminal state.
func (e *Engine) WaitLoaded(ctx context.Context) error {
	select {
	case <-e.loaded:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.mu.RLock()
	v := e.view
	e.mu.RUnlock()
	switch v.state {
	case StateNotFound:
		return gateway.Errorf(gateway.KindNotFound, gateway.OpSubscribe, e.id, "session not found")
	case StateErrored:
		return gateway.Errorf(v.kind, gateway.OpSubscribe, e.id, "subscription failed")
	}
	return nil
}

// ===== Accessors =====

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.state
}

// Kind returns the error kind of the Errored state.
func (e *Engine) Kind() gateway.Kind {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.kind
}

// Snapshot returns a deep copy of the working session, or nil before load.
func (e *Engine) Snapshot() *schema.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.session.Clone()
}

// Saving reports whether a save is in flight.
func (e *Engine) Saving() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.saving
}

// Notice reports whether the "update received" notice is showing.
func (e *Engine) Notice() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.notice
}

// Events returns the notification channel. It is closed when the engine
// stops.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// ===== Requests =====

// Mutate applies fn to the working session inside the loop and schedules
// a save. fn sees a private copy; if it returns an error nothing changes.
// Mutate blocks until fn has run.
func (e *Engine) Mutate(ctx context.Context, fn func(*schema.Session) error) error {
	return e.request(ctx, command{apply: fn, reply: make(chan error, 1)})
}

// Flush saves any pending change immediately and waits for the write.
func (e *Engine) Flush(ctx context.Context) error {
	return e.request(ctx, command{reply: make(chan error, 1)})
}

func (e *Engine) request(ctx context.Context, cmd command) error {
	if e.ctx == nil {
		return ErrNotReady
	}
	select {
	case e.cmds <- cmd:
	case <-e.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ===== Loop =====

func (e *Engine) loop() {
	defer e.wg.Done()
	defer close(e.events)
	defer e.shutdown()

	events := e.sub.Events()
	for {
		var debounceC, noticeC <-chan time.Time
		if e.debounce != nil {
			debounceC = e.debounce.C
		}
		if e.noticeTimer != nil {
			noticeC = e.noticeTimer.C
		}

		select {
		case <-e.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				if !e.state.Terminal() {
					e.fail(gateway.Errorf(gateway.KindUnknown, gateway.OpSubscribe, e.id, "subscription ended"))
				}
				break
			}
			if ev.Err != nil {
				e.fail(ev.Err)
			} else if ev.Session != nil {
				e.onSnapshot(ev.Session)
			}

		case cmd := <-e.cmds:
			if cmd.apply == nil {
				e.onFlush(cmd.reply)
			} else {
				cmd.reply <- e.onMutate(cmd.apply)
			}

		case <-debounceC:
			e.debounce = nil
			e.fire()

		case err := <-e.saveDone:
			e.onSaved(err)

		case <-noticeC:
			e.noticeTimer = nil
			e.notice = false
			e.emit(Event{Type: EventNoticeCleared})
		}
		e.publish()
	}
}

func (e *Engine) shutdown() {
	e.stopDebounce()
	if e.noticeTimer != nil {
		e.noticeTimer.Stop()
		e.noticeTimer = nil
	}
	e.resolve(ErrClosed)
}

func (e *Engine) onSnapshot(s *schema.Session) {
	if e.state.Terminal() {
		return
	}
	if !e.loadedOnce {
		e.session = s
		e.state = StateSynced
		e.markLoaded()
		e.config.Logger.Printf("Loaded session %s", e.id)
		e.emit(Event{Type: EventLoaded, Session: s.Clone()})
		return
	}
	// Our own write coming back. Store order means earlier sends were
	// delivered or coalesced into this one.
	if i := e.sentIndex(s); i >= 0 {
		e.sent = e.sent[i+1:]
		return
	}
	if equal(s, e.session) {
		return
	}

	// A foreign write. Any of our later echoes now reflect the store.
	e.sent = nil
	e.session = s
	e.echo = true
	e.queued = false
	e.restartDebounce()

	e.notice = true
	if e.noticeTimer != nil {
		e.noticeTimer.Stop()
	}
	e.noticeTimer = time.NewTimer(e.config.NoticeDuration)
	e.emit(Event{Type: EventRemoteUpdate, Session: s.Clone()})
}

func (e *Engine) onMutate(fn func(*schema.Session) error) error {
	if !e.state.Ready() {
		return ErrNotReady
	}
	next := e.session.Clone()
	if err := fn(next); err != nil {
		return err
	}
	e.session = next
	e.echo = false
	e.restartDebounce()
	e.emit(Event{Type: EventLocalChange, Session: next.Clone()})
	return nil
}

func (e *Engine) onFlush(reply chan error) {
	if e.debounce != nil {
		e.stopDebounce()
		e.fire()
	}
	if e.saving {
		e.waiters = append(e.waiters, reply)
		return
	}
	reply <- nil
}

// fire handles the end of the debounce period.
func (e *Engine) fire() {
	if e.state.Terminal() {
		return
	}
	if e.echo {
		e.echo = false
		return
	}
	if e.saving {
		e.queued = true
		return
	}
	e.startSave()
}

func (e *Engine) startSave() {
	doc, err := gateway.EncodeSession(e.session)
	if err != nil {
		e.config.Logger.Printf("Failed to encode session %s: %v", e.id, err)
		e.emit(Event{Type: EventSaved, Kind: gateway.KindUnknown, Err: err})
		return
	}
	e.saving = true
	e.inflight = e.session
	e.sent = append(e.sent, e.session)
	if len(e.sent) > maxUnechoed {
		e.sent = e.sent[len(e.sent)-maxUnechoed:]
	}
	e.state = StateSaving
	e.emit(Event{Type: EventSaving})

	// Saves are not cancelled by Close; the result is dropped if the loop
	// has already exited.
	ctx := context.WithoutCancel(e.ctx)
	go func() {
		e.saveDone <- e.gw.SetMerged(ctx, e.id, doc)
	}()
}

func (e *Engine) onSaved(err error) {
	e.saving = false
	if err != nil {
		e.forgetSent(e.inflight)
	}
	e.inflight = nil
	if e.state == StateSaving {
		e.state = StateSynced
	}
	ev := Event{Type: EventSaved, Err: err}
	if err != nil {
		ev.Kind = gateway.Classify(err)
		e.config.Logger.Printf("Failed to save session %s: %v", e.id, err)
	}
	e.emit(ev)

	if e.queued && !e.state.Terminal() {
		e.queued = false
		e.startSave()
		return
	}
	e.queued = false
	e.resolve(err)
}

// sentIndex returns the position of the oldest unechoed send equal to s,
// or -1.
func (e *Engine) sentIndex(s *schema.Session) int {
	for i := range e.sent {
		if equal(s, e.sent[i]) {
			return i
		}
	}
	return -1
}

// forgetSent drops a send that never reached the store.
func (e *Engine) forgetSent(s *schema.Session) {
	for i, v := range e.sent {
		if v == s {
			e.sent = append(e.sent[:i:i], e.sent[i+1:]...)
			return
		}
	}
}

// fail moves to a terminal state.
func (e *Engine) fail(ge *gateway.Error) {
	if e.state.Terminal() {
		return
	}
	e.stopDebounce()
	e.queued = false
	if ge.Kind == gateway.KindNotFound {
		e.state = StateNotFound
		e.config.Logger.Printf("Session %s not found", e.id)
		e.emit(Event{Type: EventNotFound, Kind: ge.Kind, Err: ge})
	} else {
		e.state = StateErrored
		e.kind = ge.Kind
		e.config.Logger.Printf("Subscription to %s failed: %v", e.id, ge)
		e.emit(Event{Type: EventErrored, Kind: ge.Kind, Err: ge})
	}
	e.markLoaded()
	if !e.saving {
		e.resolve(ge)
	}
}

// ===== Helpers =====

func (e *Engine) restartDebounce() {
	e.stopDebounce()
	e.debounce = time.NewTimer(e.config.Debounce)
}

func (e *Engine) stopDebounce() {
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
}

func (e *Engine) markLoaded() {
	if !e.loadedOnce {
		e.loadedOnce = true
		e.publish()
		close(e.loaded)
	}
}

// resolve answers every waiting Flush.
func (e *Engine) resolve(err error) {
	for _, w := range e.waiters {
		w <- err
	}
	e.waiters = nil
}

// emit publishes the view first so accessors agree with the event.
func (e *Engine) emit(ev Event) {
	e.publish()
	ev.State = e.state
	ev.Notice = e.notice
	select {
	case e.events <- ev:
	default:
		e.config.Logger.Printf("Dropping %s event for %s: buffer full", ev.Type, e.id)
	}
}

// publish copies loop state into the view read by accessors.
func (e *Engine) publish() {
	e.mu.Lock()
	e.view = view{
		state:   e.state,
		kind:    e.kind,
		saving:  e.saving,
		notice:  e.notice,
		session: e.session,
	}
	e.mu.Unlock()
}

// equal compares sessions by value, treating nil and empty collections as
// the same.
func equal(a, b *schema.Session) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}
