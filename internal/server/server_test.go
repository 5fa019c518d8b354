package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/gateway/memgw"
	"github.com/pawsitive/pawsync/internal/schema"
)

const sessionJSON = `{
	"id": "SARAH-42",
	"sitterName": "Sarah",
	"startDate": "2024-03-01",
	"totalDays": 3,
	"dogs": [{"name": "Rex", "color": "blue"}],
	"emergencyContacts": {"owner": {"name": "Ann", "phone": "5551234567"}},
	"createdAt": 1700000000000,
	"logs": {}
}`

func newTestServer(t *testing.T, token string) (*Server, *memgw.Gateway) {
	t.Helper()
	gw := memgw.New()
	srv := NewServer(gw, &Config{
		Addr:   "127.0.0.1:0",
		Token:  token,
		Logger: log.New(io.Discard, "", 0),
	})
	return srv, gw
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServerStartStop(t *testing.T) {
	srv, _ := newTestServer(t, "")
	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := srv.GetAddr(); addr == "" || strings.HasSuffix(addr, ":0") {
		t.Errorf("GetAddr() = %q, want bound address", addr)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestREST_Flow(t *testing.T) {
	srv, gw := newTestServer(t, "")
	h := srv.Handler()

	if rec := do(t, h, http.MethodPost, "/v1/sessions", sessionJSON); rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodPost, "/v1/sessions", sessionJSON); rec.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", rec.Code)
	}
	if rec := do(t, h, http.MethodHead, "/v1/sessions/SARAH-42", ""); rec.Code != http.StatusOK {
		t.Errorf("head status = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodHead, "/v1/sessions/NOPE-10", ""); rec.Code != http.StatusNotFound {
		t.Errorf("head missing status = %d, want 404", rec.Code)
	}

	patch := `{"logs": {"2024-03-01": {"date": "2024-03-01", "tasks": {}, "taskTimestamps": {}, "comments": {"Rex": "Good boy"}, "photos": []}}}`
	if rec := do(t, h, http.MethodPatch, "/v1/sessions/SARAH-42", patch); rec.Code != http.StatusNoContent {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body)
	}
	if gw.SetCalls() != 1 {
		t.Errorf("SetCalls() = %d, want 1", gw.SetCalls())
	}

	rec := do(t, h, http.MethodGet, "/v1/sessions/SARAH-42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got schema.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if got.Logs["2024-03-01"].Comments["Rex"] != "Good boy" {
		t.Errorf("comment not stored: %+v", got.Logs)
	}

	rec = do(t, h, http.MethodGet, "/v1/sessions", "")
	var metas []schema.Meta
	json.Unmarshal(rec.Body.Bytes(), &metas)
	if len(metas) != 1 || metas[0].ID != "SARAH-42" {
		t.Errorf("list = %+v", metas)
	}

	if rec := do(t, h, http.MethodDelete, "/v1/sessions/SARAH-42", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/v1/sessions/SARAH-42", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", rec.Code)
	}
	var ed ErrorData
	json.Unmarshal(rec.Body.Bytes(), &ed)
	if ed.Kind != gateway.KindNotFound {
		t.Errorf("error kind = %q, want not_found", ed.Kind)
	}
}

func TestREST_BadRequests(t *testing.T) {
	srv, gw := newTestServer(t, "")
	h := srv.Handler()
	do(t, h, http.MethodPost, "/v1/sessions", sessionJSON)

	tests := []struct {
		name, method, path, body string
	}{
		{"invalid json", http.MethodPost, "/v1/sessions", `{`},
		{"invalid session", http.MethodPost, "/v1/sessions", `{"id": "X-10"}`},
		{"patch not object", http.MethodPatch, "/v1/sessions/SARAH-42", `[1]`},
		{"patch id mismatch", http.MethodPatch, "/v1/sessions/SARAH-42", `{"id": "OTHER-11"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, tt.method, tt.path, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
	if gw.SetCalls() != 0 {
		t.Errorf("rejected patches reached the gateway")
	}
}

func TestREST_PermissionDeniedMapsTo403(t *testing.T) {
	srv, gw := newTestServer(t, "")
	h := srv.Handler()
	do(t, h, http.MethodPost, "/v1/sessions", sessionJSON)

	gw.FailNext(gateway.OpSet, gateway.KindPermissionDenied)
	if rec := do(t, h, http.MethodPatch, "/v1/sessions/SARAH-42", `{"totalDays": 4}`); rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")
	h := srv.Handler()

	tests := []struct {
		name   string
		path   string
		header []string
		want   int
	}{
		{"health is public", "/health", nil, http.StatusOK},
		{"missing token", "/v1/sessions", nil, http.StatusUnauthorized},
		{"wrong token", "/v1/sessions", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"bearer token", "/v1/sessions", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
		{"query token", "/v1/sessions?token=s3cret", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodGet, tt.path, "", tt.header...); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodOptions, "/v1/sessions/SARAH-42", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Errorf("missing Access-Control-Allow-Origin, headers %v", rec.Header())
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestWebSocketSubscription(t *testing.T) {
	srv, gw := newTestServer(t, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var s schema.Session
	json.Unmarshal([]byte(sessionJSON), &s)
	if err := gw.Create(ctx, &s); err != nil {
		t.Fatal(err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/SARAH-42/subscribe"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSnapshot {
		t.Fatalf("first message type = %s, want snapshot", msg.Type)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", srv.ClientCount())
	}

	gw.Deliver("SARAH-42", gateway.Document{"totalDays": 4})
	msg = readMessage(t, ctx, conn)
	var snap schema.Session
	json.Unmarshal(msg.Data, &snap)
	if msg.Type != MessageTypeSnapshot || snap.TotalDays != 4 {
		t.Fatalf("second message = %s %+v, want snapshot with totalDays 4", msg.Type, snap)
	}

	gw.Delete(ctx, "SARAH-42")
	msg = readMessage(t, ctx, conn)
	var ed ErrorData
	json.Unmarshal(msg.Data, &ed)
	if msg.Type != MessageTypeError || ed.Kind != gateway.KindNotFound {
		t.Fatalf("third message = %s %+v, want not_found error", msg.Type, ed)
	}
}
