// Package gateway defines the contract between the sync engine and the
// remote document store that holds one document per session.
//
// Implementations live in memgw (in memory), store (sqlite) and remote
// (HTTP and WebSocket client for internal/server). All of them report
// failures as *Error values classified into the Kind taxonomy, so callers
// never see raw driver or transport errors.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pawsitive/pawsync/internal/schema"
)

// Operation names used in Error.Op.
const (
	OpGet       = "get"
	OpSubscribe = "subscribe"
	OpSet       = "set"
	OpCreate    = "create"
	OpExists    = "exists"
	OpDelete    = "delete"
	OpList      = "list"
)

// Document is a session document in generic form, as written to the store.
type Document = map[string]any

// Event is one delivery on a subscription: either a full snapshot of the
// session or a classified error. Exactly one field is set.
type Event struct {
	Session *schema.Session
	Err     *Error
}

// Subscription is a live feed of one session document.
type Subscription interface {
	// Events delivers the current document first, then every change in the
	// order the store applied them. Deletion is delivered as a NotFound
	// error event. The channel is closed after Close or a terminal error.
	Events() <-chan Event

	// Close stops delivery. It is safe to call more than once.
	Close() error
}

// Gateway is the remote document store, keyed by session id.
type Gateway interface {
	// Get returns the session, or an error of KindNotFound.
	//
	// Example:
	//   s, err := gw.Get(ctx, "SARAH-42")
	//   if gateway.IsNotFound(err) { ... }
	Get(ctx context.Context, id string) (*schema.Session, error)

	// Subscribe opens a feed of changes to the session document.
	//
	// A missing session is reported on the feed as a NotFound event rather
	// than as an error from Subscribe, so the caller handles it in one place.
	Subscribe(ctx context.Context, id string) (Subscription, error)

	// SetMerged merges partial into the stored document. Fields absent from
	// partial are kept; see Merge for the exact rules. The document must
	// exist.
	SetMerged(ctx context.Context, id string, partial Document) error

	// Create stores a new session. It fails with ErrAlreadyExists if the id
	// is taken.
	Create(ctx context.Context, s *schema.Session) error

	// Exists reports whether a document is stored under id.
	Exists(ctx context.Context, id string) (bool, error)

	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the metadata of every stored session in no particular
	// order.
	List(ctx context.Context) ([]schema.Meta, error)
}

// EncodeSession converts s to its sanitized generic document.
func EncodeSession(s *schema.Session) (Document, error) {
	return Sanitize(s)
}

// DecodeSession converts a stored document back into a session, applying
// the read-path normalizers of package schema.
func DecodeSession(doc Document) (*schema.Session, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return DecodeSessionJSON(data)
}

// DecodeSessionJSON parses a JSON session document.
func DecodeSessionJSON(data []byte) (*schema.Session, error) {
	var s schema.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session document: %w", err)
	}
	s.SetDefaults()
	return &s, nil
}
