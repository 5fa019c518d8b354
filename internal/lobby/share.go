package lobby

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pawsitive/pawsync/internal/schema"
)

// SessionParam is the query parameter that carries a session code.
const SessionParam = "session"

// ShareURL returns base with the session parameter set to id.
//
// Example:
//
//	ShareURL("https://sit.example.com", "SARAH-42")
//	// https://sit.example.com?session=SARAH-42
func ShareURL(base, id string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	q := u.Query()
	q.Set(SessionParam, id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SessionFromURL returns the normalized session code in raw, or "" when
// there is none.
func SessionFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return NormalizeCode(u.Query().Get(SessionParam))
}

// WithoutSession returns raw with the session parameter removed.
func WithoutSession(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	q := u.Query()
	q.Del(SessionParam)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ShareText is the invitation sent alongside a join link.
func ShareText(s *schema.Session) string {
	return fmt.Sprintf("Join my Pawsitive Petsitting session for %s. Code: %s",
		strings.Join(s.DogNames(), ", "), s.ID)
}
