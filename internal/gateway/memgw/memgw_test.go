package memgw

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/schema"
)

func testSession(id string) *schema.Session {
	return &schema.Session{
		ID:         id,
		SitterName: "Sarah",
		StartDate:  "2024-03-01",
		TotalDays:  3,
		Dogs:       []schema.Dog{{Name: "Rex", Color: schema.ColorBlue}},
		CreatedAt:  1700000000000,
		Logs:       map[string]*schema.DayLog{},
	}
}

func next(t *testing.T, sub gateway.Subscription) gateway.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return gateway.Event{}
}

func TestGateway_CreateGetExists(t *testing.T) {
	ctx := context.Background()
	g := New()

	if ok, _ := g.Exists(ctx, "SARAH-42"); ok {
		t.Fatal("Exists() = true before create")
	}
	if err := g.Create(ctx, testSession("SARAH-42")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := g.Create(ctx, testSession("SARAH-42")); !errors.Is(err, gateway.ErrAlreadyExists) {
		t.Errorf("second Create() error = %v, want ErrAlreadyExists", err)
	}
	s, err := g.Get(ctx, "SARAH-42")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if s.SitterName != "Sarah" || len(s.Dogs) != 1 {
		t.Errorf("Get() = %+v", s)
	}
	if _, err := g.Get(ctx, "NOPE-10"); !gateway.IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want not found", err)
	}
}

func TestGateway_SubscribeSequence(t *testing.T) {
	ctx := context.Background()
	g := New()
	if err := g.Create(ctx, testSession("A-10")); err != nil {
		t.Fatal(err)
	}

	sub, err := g.Subscribe(ctx, "A-10")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer sub.Close()

	if ev := next(t, sub); ev.Session == nil || ev.Session.ID != "A-10" {
		t.Fatalf("first event = %+v, want snapshot", ev)
	}

	if err := g.SetMerged(ctx, "A-10", gateway.Document{"totalDays": 5}); err != nil {
		t.Fatalf("SetMerged() failed: %v", err)
	}
	if ev := next(t, sub); ev.Session == nil || ev.Session.TotalDays != 5 {
		t.Fatalf("second event = %+v, want totalDays 5", ev)
	}

	if err := g.Delete(ctx, "A-10"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	ev := next(t, sub)
	if ev.Err == nil || ev.Err.Kind != gateway.KindNotFound {
		t.Fatalf("third event = %+v, want not found", ev)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("events channel still open after terminal error")
	}
}

func TestGateway_SubscribeMissing(t *testing.T) {
	g := New()
	sub, err := g.Subscribe(context.Background(), "GONE-11")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	if ev := next(t, sub); ev.Err == nil || !gateway.IsNotFound(ev.Err) {
		t.Fatalf("event = %+v, want not found", ev)
	}
}

func TestGateway_CloseUnregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := New()
	g.Create(ctx, testSession("A-10"))

	sub, _ := g.Subscribe(ctx, "A-10")
	next(t, sub)
	if n := g.Subscribers("A-10"); n != 1 {
		t.Fatalf("Subscribers() = %d, want 1", n)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for g.Subscribers("A-10") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not removed after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := sub.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestGateway_FailNext(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.Create(ctx, testSession("A-10"))

	g.FailNext(gateway.OpSet, gateway.KindPermissionDenied)
	err := g.SetMerged(ctx, "A-10", gateway.Document{"totalDays": 2})
	if !gateway.IsPermissionDenied(err) {
		t.Fatalf("SetMerged() error = %v, want permission denied", err)
	}
	if err := g.SetMerged(ctx, "A-10", gateway.Document{"totalDays": 2}); err != nil {
		t.Fatalf("second SetMerged() failed: %v", err)
	}
	if got := g.SetCalls(); got != 2 {
		t.Errorf("SetCalls() = %d, want 2", got)
	}
}

func TestGateway_DeliverMerges(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.Create(ctx, testSession("A-10"))

	err := g.Deliver("A-10", gateway.Document{"logs": map[string]any{
		"2024-03-01": map[string]any{"aiSummary": "All good"},
	}})
	if err != nil {
		t.Fatalf("Deliver() failed: %v", err)
	}
	s, _ := g.Get(ctx, "A-10")
	if s.SitterName != "Sarah" {
		t.Error("Deliver dropped sibling fields")
	}
	if s.Logs["2024-03-01"] == nil || s.Logs["2024-03-01"].AISummary != "All good" {
		t.Errorf("logs = %+v", s.Logs)
	}
	if g.SetCalls() != 0 {
		t.Error("Deliver counted as SetMerged")
	}
}

func TestGateway_List(t *testing.T) {
	ctx := context.Background()
	g := New()
	g.Create(ctx, testSession("A-10"))
	g.Create(ctx, testSession("B-11"))

	metas, err := g.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(metas) != 2 {
		t.Errorf("List() returned %d sessions, want 2", len(metas))
	}
}
