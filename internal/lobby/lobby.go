// Package lobby lists, creates and deletes sessions, and builds the join
// links that carry a session code.
package lobby

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/pawsitive/pawsync/internal/daylog"
	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/ident"
	"github.com/pawsitive/pawsync/internal/schema"
)

// Draft is what a sitter fills in to create a session. Blank dog and
// contact names are replaced with defaults.
type Draft struct {
	SitterName string
	StartDate  string
	TotalDays  int
	Dogs       []schema.Dog
	Contacts   schema.Contacts
}

// Config holds lobby configuration.
type Config struct {
	Logger *log.Logger
	Now    func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[lobby] ", log.LstdFlags),
		Now:    time.Now,
	}
}

// Lobby manages the set of sessions in a gateway.
type Lobby struct {
	gw     gateway.Gateway
	gen    *ident.Generator
	config *Config
}

// New returns a lobby over gw. A nil gen uses a randomly seeded generator.
func New(gw gateway.Gateway, gen *ident.Generator, config *Config) *Lobby {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	if gen == nil {
		gen = ident.New(nil, config.Logger)
	}
	return &Lobby{gw: gw, gen: gen, config: config}
}

// List returns every session, newest first.
func (l *Lobby) List(ctx context.Context) ([]schema.Meta, error) {
	metas, err := l.gw.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	slices.SortStableFunc(metas, func(a, b schema.Meta) int {
		switch {
		case a.CreatedAt > b.CreatedAt:
			return -1
		case a.CreatedAt < b.CreatedAt:
			return 1
		}
		return 0
	})
	return metas, nil
}

// Active keeps the sessions that have not ended by now's calendar date.
// A session stays active through the day after its last day.
func Active(metas []schema.Meta, now time.Time) []schema.Meta {
	today := daylog.Today(now)
	var out []schema.Meta
	for _, m := range metas {
		end, err := daylog.ResolveDate(m.StartDate, m.TotalDays)
		if err != nil {
			continue
		}
		// YYYY-MM-DD compares in calendar order.
		if today <= end {
			out = append(out, m)
		}
	}
	return out
}

// Create builds a session from d, mints a unique code and stores it.
func (l *Lobby) Create(ctx context.Context, d Draft) (*schema.Session, error) {
	s := &schema.Session{
		SitterName:        strings.TrimSpace(d.SitterName),
		StartDate:         d.StartDate,
		TotalDays:         d.TotalDays,
		Dogs:              make([]schema.Dog, len(d.Dogs)),
		EmergencyContacts: d.Contacts,
		CreatedAt:         l.config.Now().UnixMilli(),
		Logs:              map[string]*schema.DayLog{},
	}
	for i, dog := range d.Dogs {
		dog.Name = strings.TrimSpace(dog.Name)
		if dog.Name == "" {
			dog.Name = fmt.Sprintf("Dog %d", i+1)
		}
		if dog.Color == "" {
			dog.Color = schema.Colors[i%len(schema.Colors)]
		}
		s.Dogs[i] = dog
	}
	defaultName(&s.EmergencyContacts.Owner, "Owner")
	defaultName(&s.EmergencyContacts.Secondary, "Secondary")
	defaultName(&s.EmergencyContacts.Vet, "Vet")

	// Validate with a placeholder id; the real one is minted below.
	probe := *s
	probe.ID = ident.Placeholder
	if err := probe.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	id, err := l.gen.CreateUnique(ctx, l.gw, s.SitterName, s)
	if err != nil {
		return nil, err
	}
	l.config.Logger.Printf("Created session %s for %s (%d days)", id, s.SitterName, s.TotalDays)
	return s, nil
}

func defaultName(c *schema.Contact, name string) {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = name
	}
}

// Delete removes a session. Deleting a missing session is not an error.
func (l *Lobby) Delete(ctx context.Context, id string) error {
	if err := l.gw.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	l.config.Logger.Printf("Deleted session %s", id)
	return nil
}

// Exists reports whether a session code is in use.
func (l *Lobby) Exists(ctx context.Context, code string) (bool, error) {
	return l.gw.Exists(ctx, NormalizeCode(code))
}

// NormalizeCode trims and uppercases a typed session code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
