package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pawsitive/pawsync/internal/schema"
)

func TestSanitize_NilsBecomeNull(t *testing.T) {
	type inner struct {
		Ptr   *string           `json:"ptr"`
		Map   map[string]string `json:"map"`
		Slice []string          `json:"slice"`
		Iface any               `json:"iface"`
	}
	doc, err := Sanitize(struct {
		Inner inner  `json:"inner"`
		Name  string `json:"name"`
	}{Name: "Rex"})
	if err != nil {
		t.Fatalf("Sanitize() failed: %v", err)
	}

	want := Document{
		"name": "Rex",
		"inner": map[string]any{
			"ptr":   nil,
			"map":   nil,
			"slice": nil,
			"iface": nil,
		},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("Sanitize() mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitize_TypedNilInDocument(t *testing.T) {
	var nilMap map[string]int
	var nilSlice []int
	doc, err := Sanitize(Document{"a": nilMap, "b": nilSlice, "c": 1})
	if err != nil {
		t.Fatalf("Sanitize() failed: %v", err)
	}
	if doc["a"] != nil || doc["b"] != nil {
		t.Errorf("typed nils survived: %#v", doc)
	}
	if doc["c"] != json.Number("1") {
		t.Errorf("c = %#v, want json.Number(1)", doc["c"])
	}
}

func TestSanitize_RejectsNonObject(t *testing.T) {
	if _, err := Sanitize([]int{1, 2}); err == nil {
		t.Fatal("expected error for non-object document")
	}
}

func TestSanitize_KeepsTimestampsExact(t *testing.T) {
	log := schema.NewDayLog("2024-03-01")
	log.TaskTimestamps["k"] = 1709280000123
	s := &schema.Session{ID: "A-10", Logs: map[string]*schema.DayLog{"2024-03-01": log}}

	doc, err := EncodeSession(s)
	if err != nil {
		t.Fatalf("EncodeSession() failed: %v", err)
	}
	back, err := DecodeSession(doc)
	if err != nil {
		t.Fatalf("DecodeSession() failed: %v", err)
	}
	if got := back.Logs["2024-03-01"].TaskTimestamps["k"]; got != 1709280000123 {
		t.Errorf("timestamp = %d, want 1709280000123", got)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		dst, src Document
		want     Document
	}{
		{
			name: "absent fields kept",
			dst:  Document{"sitterName": "Sarah", "totalDays": 3},
			src:  Document{"totalDays": 4},
			want: Document{"sitterName": "Sarah", "totalDays": 4},
		},
		{
			name: "sibling day logs kept",
			dst: Document{"logs": map[string]any{
				"2024-03-01": map[string]any{"aiSummary": "old"},
				"2024-03-02": map[string]any{"aiSummary": "keep"},
			}},
			src: Document{"logs": map[string]any{
				"2024-03-01": map[string]any{"aiSummary": "new"},
			}},
			want: Document{"logs": map[string]any{
				"2024-03-01": map[string]any{"aiSummary": "new"},
				"2024-03-02": map[string]any{"aiSummary": "keep"},
			}},
		},
		{
			name: "day log replaced as a unit",
			dst: Document{"logs": map[string]any{
				"2024-03-01": map[string]any{
					"taskTimestamps": map[string]any{"t1": 1, "t2": 2},
				},
			}},
			src: Document{"logs": map[string]any{
				"2024-03-01": map[string]any{
					"taskTimestamps": map[string]any{"t2": 2},
				},
			}},
			want: Document{"logs": map[string]any{
				"2024-03-01": map[string]any{
					"taskTimestamps": map[string]any{"t2": 2},
				},
			}},
		},
		{
			name: "nil dst",
			dst:  nil,
			src:  Document{"id": "X-10"},
			want: Document{"id": "X-10"},
		},
		{
			name: "explicit null overwrites",
			dst:  Document{"emergencyContacts": map[string]any{"vet": "x"}},
			src:  Document{"emergencyContacts": nil},
			want: Document{"emergencyContacts": nil},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.dst, tt.src)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClone_Independent(t *testing.T) {
	orig := Document{"logs": map[string]any{"d": []any{"a"}}}
	c := Clone(orig)
	c["logs"].(map[string]any)["d"].([]any)[0] = "b"
	if orig["logs"].(map[string]any)["d"].([]any)[0] != "a" {
		t.Error("Clone shares nested storage")
	}
}

func TestDecodeSession_LegacyContacts(t *testing.T) {
	s, err := DecodeSessionJSON([]byte(`{
		"id": "SARAH-42",
		"sitterName": "Sarah",
		"emergencyContacts": {"primary": {"name": "Ann", "phone": "555"}},
		"logs": {"2024-03-01": null}
	}`))
	if err != nil {
		t.Fatalf("DecodeSessionJSON() failed: %v", err)
	}
	if s.EmergencyContacts.Owner.Name != "Ann" {
		t.Errorf("owner = %+v, want legacy primary", s.EmergencyContacts.Owner)
	}
	if s.Logs == nil || len(s.Logs) != 0 {
		t.Errorf("logs = %#v, want empty non-nil map", s.Logs)
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("socket closed")
	tests := []struct {
		name  string
		err   error
		kind  Kind
		fatal bool
	}{
		{"nil", nil, "", false},
		{"plain", cause, KindUnknown, false},
		{"sentinel", fmt.Errorf("get: %w", ErrNotFound), KindNotFound, true},
		{"wrapped", Wrap("set", "A-10", ErrPermissionDenied), KindPermissionDenied, true},
		{"typed", &Error{Kind: KindNotFound, Op: "get"}, KindNotFound, true},
		{"config", ErrConfigurationMissing, KindConfigurationMissing, true},
		{"wrapped unknown", Wrap("list", "", cause), KindUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.kind {
				t.Errorf("Classify() = %q, want %q", got, tt.kind)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestError_UnwrapsBoth(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := Wrap("set", "A-10", cause)
	if !errors.Is(err, ErrUnknown) {
		t.Error("errors.Is(err, ErrUnknown) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if got, want := err.Error(), "set A-10: unknown store error: disk I/O error"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"not_found":         KindNotFound,
		"permission_denied": KindPermissionDenied,
		"bogus":             KindUnknown,
		"":                  KindUnknown,
	} {
		if got := ParseKind(in); got != want {
			t.Errorf("ParseKind(%q) = %q, want %q", in, got, want)
		}
	}
}
