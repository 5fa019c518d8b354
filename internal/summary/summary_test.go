package summary

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pawsitive/pawsync/internal/schema"
)

const date = "2024-03-01"

func testSession() *schema.Session {
	log := schema.NewDayLog(date)
	log.Tasks[schema.TaskID(date, "morning", "Rex", schema.ActivityFeeding)] = true
	log.Comments["Rex"] = "Ate everything"
	return &schema.Session{
		ID:         "SARAH-42",
		SitterName: "Sarah",
		StartDate:  date,
		TotalDays:  2,
		Dogs:       []schema.Dog{{Name: "Rex"}, {Name: "Bella"}},
		Logs:       map[string]*schema.DayLog{date: log},
	}
}

func TestBuildDigest(t *testing.T) {
	d := BuildDigest(testSession(), date)

	if d.Date != date || d.Sitter != "Sarah" || len(d.Dogs) != 2 {
		t.Fatalf("digest = %+v", d)
	}
	rex := d.Dogs[0]
	if rex.Comment != "Ate everything" {
		t.Errorf("Rex comment = %q", rex.Comment)
	}
	want := SlotStatus{Time: "Morning Routine", Status: "Bathroom: Pending, Feeding: Done"}
	if diff := cmp.Diff(want, rex.Activities[0]); diff != "" {
		t.Errorf("morning mismatch (-want +got):\n%s", diff)
	}
	if len(rex.Activities) != len(schema.TimeSlots) {
		t.Errorf("got %d slots, want %d", len(rex.Activities), len(schema.TimeSlots))
	}
	if d.Dogs[1].Comment != NoComment {
		t.Errorf("Bella comment = %q, want placeholder", d.Dogs[1].Comment)
	}
}

func TestBuildDigest_NoLog(t *testing.T) {
	d := BuildDigest(testSession(), "2024-03-02")
	for _, slot := range d.Dogs[0].Activities {
		if strings.Contains(slot.Status, "Done") {
			t.Errorf("slot %s done on an empty day", slot.Time)
		}
	}
}

func TestPrompt(t *testing.T) {
	p, err := Prompt(BuildDigest(testSession(), date))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"(2024-03-01)", "sitter, Sarah", `"Ate everything"`, "report card"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestNewClaude_NoKey(t *testing.T) {
	if _, err := NewClaude(ClaudeConfig{APIKey: "  "}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("NewClaude() error = %v, want ErrNoAPIKey", err)
	}
}

// fakeMessages serves the Messages API with a fixed reply.
func fakeMessages(t *testing.T, text string, gotPrompt *string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`)
			return
		}
		var req struct {
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 && len(req.Messages[0].Content) > 0 {
			*gotPrompt = req.Messages[0].Content[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         DefaultModel,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": text}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 20},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestClaude_Summarize(t *testing.T) {
	var prompt string
	ts := fakeMessages(t, "  Rex had a great day!  ", &prompt)

	c, err := NewClaude(ClaudeConfig{APIKey: "test-key", BaseURL: ts.URL})
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Summarize(context.Background(), BuildDigest(testSession(), date))
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}
	if got != "Rex had a great day!" {
		t.Errorf("Summarize() = %q", got)
	}
	if !strings.Contains(prompt, "Ate everything") {
		t.Errorf("prompt not sent, got %q", prompt)
	}
}

func TestClaude_EmptyAndFailedResponses(t *testing.T) {
	var prompt string
	ts := fakeMessages(t, "", &prompt)

	c, _ := NewClaude(ClaudeConfig{APIKey: "test-key", BaseURL: ts.URL})
	if _, err := c.Summarize(context.Background(), BuildDigest(testSession(), date)); !errors.Is(err, ErrEmptySummary) {
		t.Errorf("Summarize() error = %v, want ErrEmptySummary", err)
	}

	bad, _ := NewClaude(ClaudeConfig{APIKey: "wrong", BaseURL: ts.URL})
	if _, err := bad.Summarize(context.Background(), BuildDigest(testSession(), date)); err == nil {
		t.Error("Summarize() with a rejected key succeeded")
	}
}
