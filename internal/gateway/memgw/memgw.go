// Package memgw is an in-memory gateway.Gateway.
//
// It backs `--store memory` and is the fake used by the sync, lobby and
// server tests: it counts writes, injects failures per operation and can
// simulate another client writing a document.
package memgw

import (
	"context"
	"fmt"
	"sync"

	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/schema"
)

// Gateway stores documents in a map.
type Gateway struct {
	mu   sync.Mutex
	docs map[string]gateway.Document
	hub  *gateway.Hub

	calls    map[string]int
	failNext map[string]gateway.Kind
	lastSet  map[string]gateway.Document
}

var _ gateway.Gateway = (*Gateway)(nil)

// New returns an empty gateway.
func New() *Gateway {
	return &Gateway{
		docs:     make(map[string]gateway.Document),
		hub:      gateway.NewHub(),
		calls:    make(map[string]int),
		failNext: make(map[string]gateway.Kind),
		lastSet:  make(map[string]gateway.Document),
	}
}

// begin records a call to op and returns the injected failure, if any.
// Caller must hold g.mu.
func (g *Gateway) begin(op, id string) error {
	g.calls[op]++
	if kind, ok := g.failNext[op]; ok {
		delete(g.failNext, op)
		return gateway.Errorf(kind, op, id, "injected failure")
	}
	return nil
}

// Get implements gateway.Gateway.
func (g *Gateway) Get(ctx context.Context, id string) (*schema.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(gateway.OpGet, id); err != nil {
		return nil, err
	}
	doc, ok := g.docs[id]
	if !ok {
		return nil, &gateway.Error{Kind: gateway.KindNotFound, Op: gateway.OpGet, SessionID: id}
	}
	s, err := gateway.DecodeSession(doc)
	if err != nil {
		return nil, gateway.Wrap(gateway.OpGet, id, err)
	}
	return s, nil
}

// Subscribe implements gateway.Gateway. The current document (or NotFound)
// is queued before Subscribe returns.
func (g *Gateway) Subscribe(ctx context.Context, id string) (gateway.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(gateway.OpSubscribe, id); err != nil {
		return nil, err
	}
	feed := g.hub.Subscribe(ctx, id)
	feed.Publish(g.eventLocked(id))
	return feed, nil
}

// SetMerged implements gateway.Gateway.
func (g *Gateway) SetMerged(ctx context.Context, id string, partial gateway.Document) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(gateway.OpSet, id); err != nil {
		return err
	}
	doc, ok := g.docs[id]
	if !ok {
		return &gateway.Error{Kind: gateway.KindNotFound, Op: gateway.OpSet, SessionID: id}
	}
	clean, err := gateway.Sanitize(partial)
	if err != nil {
		return gateway.Wrap(gateway.OpSet, id, err)
	}
	g.lastSet[id] = gateway.Clone(clean)
	g.docs[id] = gateway.Merge(doc, clean)
	g.publishLocked(id)
	return nil
}

// Create implements gateway.Gateway.
func (g *Gateway) Create(ctx context.Context, s *schema.Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(gateway.OpCreate, s.ID); err != nil {
		return err
	}
	if _, ok := g.docs[s.ID]; ok {
		return gateway.Wrap(gateway.OpCreate, s.ID, gateway.ErrAlreadyExists)
	}
	doc, err := gateway.EncodeSession(s)
	if err != nil {
		return gateway.Wrap(gateway.OpCreate, s.ID, err)
	}
	g.docs[s.ID] = doc
	g.publishLocked(s.ID)
	return nil
}

// Exists implements gateway.Gateway.
func (g *Gateway) Exists(ctx context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(gateway.OpExists, id); err != nil {
		return false, err
	}
	_, ok := g.docs[id]
	return ok, nil
}

// Delete implements gateway.Gateway.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(gateway.OpDelete, id); err != nil {
		return err
	}
	if _, ok := g.docs[id]; !ok {
		return nil
	}
	delete(g.docs, id)
	g.publishLocked(id)
	return nil
}

// List implements gateway.Gateway.
func (g *Gateway) List(ctx context.Context) ([]schema.Meta, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(gateway.OpList, ""); err != nil {
		return nil, err
	}
	out := make([]schema.Meta, 0, len(g.docs))
	for id, doc := range g.docs {
		s, err := gateway.DecodeSession(doc)
		if err != nil {
			return nil, gateway.Wrap(gateway.OpList, id, err)
		}
		out = append(out, s.Meta())
	}
	return out, nil
}

// ===== Test helpers =====

// SetCalls returns the number of SetMerged calls, failed ones included.
func (g *Gateway) SetCalls() int {
	return g.Calls(gateway.OpSet)
}

// Calls returns the number of calls made to op.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// FailNext makes the next call to op fail with kind.
func (g *Gateway) FailNext(op string, kind gateway.Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext[op] = kind
}

// LastSet returns a copy of the sanitized partial last passed to SetMerged
// for id, or nil.
func (g *Gateway) LastSet(id string) gateway.Document {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gateway.Clone(g.lastSet[id])
}

// Document returns a copy of the stored document for id, or nil.
func (g *Gateway) Document(id string) gateway.Document {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gateway.Clone(g.docs[id])
}

// Deliver simulates another client merging doc into the stored session.
// Unlike SetMerged it is not counted and never fails.
func (g *Gateway) Deliver(id string, doc gateway.Document) error {
	clean, err := gateway.Sanitize(doc)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.docs[id]; !ok {
		return fmt.Errorf("deliver %s: %w", id, gateway.ErrNotFound)
	}
	g.docs[id] = gateway.Merge(g.docs[id], clean)
	g.publishLocked(id)
	return nil
}

// Resend pushes the current snapshot to subscribers again without changing
// it, the way a store may redeliver an unchanged document.
func (g *Gateway) Resend(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.publishLocked(id)
}

// Fail delivers a classified error to every subscriber of id.
func (g *Gateway) Fail(id string, kind gateway.Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hub.Publish(id, func() gateway.Event {
		return gateway.Event{Err: &gateway.Error{Kind: kind, Op: gateway.OpSubscribe, SessionID: id}}
	})
}

// Subscribers returns the number of live subscriptions for id.
func (g *Gateway) Subscribers(id string) int {
	return g.hub.Count(id)
}

func (g *Gateway) publishLocked(id string) {
	g.hub.Publish(id, func() gateway.Event { return g.eventLocked(id) })
}

// eventLocked builds the event describing the current state of id.
func (g *Gateway) eventLocked(id string) gateway.Event {
	doc, ok := g.docs[id]
	if !ok {
		return gateway.Event{Err: &gateway.Error{Kind: gateway.KindNotFound, Op: gateway.OpSubscribe, SessionID: id}}
	}
	s, err := gateway.DecodeSession(doc)
	if err != nil {
		return gateway.Event{Err: gateway.AsError(gateway.OpSubscribe, id, err)}
	}
	return gateway.Event{Session: s}
}
