package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestFormatPhone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"55", "55"},
		{"5551", "(555) 1"},
		{"555123", "(555) 123"},
		{"5551234", "(555) 123-4"},
		{"555-123-4567", "(555) 123-4567"},
		{"(555) 123-45678", "(555) 123-4567"},
	}
	for _, tt := range tests {
		if got := FormatPhone(tt.in); got != tt.want {
			t.Errorf("FormatPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSMSLink(t *testing.T) {
	got := SMSLink("(555) 123-4567", "Done & dusted!")
	want := "sms:5551234567?&body=Done%20%26%20dusted%21"
	if got != want {
		t.Errorf("SMSLink() = %q, want %q", got, want)
	}

	body := strings.TrimPrefix(got, "sms:5551234567?&body=")
	if dec, _ := url.QueryUnescape(body); dec != "Done & dusted!" {
		t.Errorf("body does not round-trip: %q", dec)
	}
}

func TestMessages(t *testing.T) {
	if got, want := SlotMessage("Morning Routine", []string{"Rex", "Bella"}),
		"Pawsitive Update: The Morning Routine is complete for Rex, Bella! 🐾"; got != want {
		t.Errorf("SlotMessage() = %q, want %q", got, want)
	}
	if got, want := ActivityMessage("Feeding", "Rex"),
		`Pawsitive update: "Feeding" has been completed for Rex.`; got != want {
		t.Errorf("ActivityMessage() = %q, want %q", got, want)
	}
	if got, want := ActivityMessage("Feeding", ""),
		`Pawsitive update: "Feeding" has been completed.`; got != want {
		t.Errorf("ActivityMessage() = %q, want %q", got, want)
	}
}

func TestLoadTwilioConfig(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550001111")

	cfg, err := LoadTwilioConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Configured() || cfg.BaseURL != "https://api.twilio.com" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestNewTwilio_NotConfigured(t *testing.T) {
	if _, err := NewTwilio(TwilioConfig{AccountSID: "AC123"}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewTwilio() error = %v, want ErrNotConfigured", err)
	}
}

func TestTwilio_Send(t *testing.T) {
	var gotPath, gotTo, gotBody, gotUser string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		r.ParseForm()
		gotTo, gotBody = r.PostForm.Get("To"), r.PostForm.Get("Body")
		if gotTo == "+10000000000" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code": 21211, "message": "Invalid 'To' Phone Number"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid": "SM1"}`))
	}))
	defer ts.Close()

	tw, err := NewTwilio(TwilioConfig{
		AccountSID: "AC123", AuthToken: "secret", FromNumber: "+15550001111", BaseURL: ts.URL,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := tw.Send(ctx, "+15551234567", ActivityMessage("Feeding", "Rex")); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" || gotUser != "AC123" {
		t.Errorf("path %q user %q", gotPath, gotUser)
	}
	if gotTo != "+15551234567" || !strings.Contains(gotBody, "Rex") {
		t.Errorf("to %q body %q", gotTo, gotBody)
	}

	err = tw.Send(ctx, "+10000000000", "hi")
	if err == nil || !strings.Contains(err.Error(), "21211") {
		t.Errorf("Send() error = %v, want twilio 21211", err)
	}
	if err := tw.Send(ctx, "", "hi"); err == nil {
		t.Error("Send() accepted an empty recipient")
	}
}
