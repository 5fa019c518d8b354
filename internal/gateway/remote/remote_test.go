package remote

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/gateway/memgw"
	"github.com/pawsitive/pawsync/internal/schema"
	"github.com/pawsitive/pawsync/internal/server"
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

func setup(t *testing.T, serverToken, clientToken string) (*Client, *memgw.Gateway) {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	gw := memgw.New()
	srv := server.NewServer(gw, &server.Config{Token: serverToken, Logger: quiet})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := DefaultConfig()
	cfg.Token = clientToken
	cfg.Logger = quiet
	c, err := New(ts.URL, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return c, gw
}

func nextEvent(t *testing.T, sub gateway.Subscription) gateway.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return gateway.Event{}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", nil); !errors.Is(err, gateway.ErrConfigurationMissing) {
		t.Errorf("New(\"\") error = %v, want ErrConfigurationMissing", err)
	}
	if _, err := New("ftp://example.com", nil); err == nil {
		t.Error("New() accepted ftp scheme")
	}
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, gw := setup(t, "", "")

	want := testSession("SARAH-42")
	if err := c.Create(ctx, want); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := c.Create(ctx, want); !errors.Is(err, gateway.ErrAlreadyExists) {
		t.Errorf("duplicate Create() error = %v, want ErrAlreadyExists", err)
	}

	ok, err := c.Exists(ctx, "SARAH-42")
	if err != nil || !ok {
		t.Errorf("Exists() = %v, %v; want true", ok, err)
	}
	ok, err = c.Exists(ctx, "NOPE-10")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v; want false", ok, err)
	}

	got, err := c.Get(ctx, "SARAH-42")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	if err := c.SetMerged(ctx, "SARAH-42", gateway.Document{"totalDays": 5}); err != nil {
		t.Fatalf("SetMerged() failed: %v", err)
	}
	if gw.SetCalls() != 1 {
		t.Errorf("server SetCalls() = %d, want 1", gw.SetCalls())
	}

	metas, err := c.List(ctx)
	if err != nil || len(metas) != 1 || metas[0].TotalDays != 5 {
		t.Errorf("List() = %+v, %v", metas, err)
	}

	if err := c.Delete(ctx, "SARAH-42"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := c.Get(ctx, "SARAH-42"); !gateway.IsNotFound(err) {
		t.Errorf("Get(deleted) error = %v, want not found", err)
	}
}

func TestClient_PermissionDenied(t *testing.T) {
	c, _ := setup(t, "s3cret", "wrong")
	_, err := c.List(context.Background())
	if !gateway.IsPermissionDenied(err) {
		t.Fatalf("List() error = %v, want permission denied", err)
	}
	if _, err := c.Subscribe(context.Background(), "SARAH-42"); !gateway.IsPermissionDenied(err) {
		t.Errorf("Subscribe() error = %v, want permission denied", err)
	}
}

func TestClient_Subscribe(t *testing.T) {
	ctx := context.Background()
	c, gw := setup(t, "tok", "tok")
	gw.Create(ctx, testSession("SARAH-42"))

	sub, err := c.Subscribe(ctx, "SARAH-42")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer sub.Close()

	if ev := nextEvent(t, sub); ev.Session == nil || ev.Session.ID != "SARAH-42" {
		t.Fatalf("first event = %+v, want snapshot", ev)
	}

	gw.Deliver("SARAH-42", gateway.Document{"sitterName": "Sam"})
	if ev := nextEvent(t, sub); ev.Session == nil || ev.Session.SitterName != "Sam" {
		t.Fatalf("second event = %+v, want sitter Sam", ev)
	}

	gw.Delete(ctx, "SARAH-42")
	ev := nextEvent(t, sub)
	if ev.Err == nil || ev.Err.Kind != gateway.KindNotFound {
		t.Fatalf("third event = %+v, want not found", ev)
	}
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("event after terminal error")
		}
	case <-time.After(2 * time.Second):
		t.Error("events channel not closed after terminal error")
	}
}

func TestClient_SubscribeMissing(t *testing.T) {
	c, _ := setup(t, "", "")
	sub, err := c.Subscribe(context.Background(), "GONE-10")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer sub.Close()
	if ev := nextEvent(t, sub); !gateway.IsNotFound(ev.Err) {
		t.Fatalf("event = %+v, want not found", ev)
	}
}
