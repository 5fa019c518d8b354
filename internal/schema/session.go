// Package schema provides the data structures stored in a session document.
package schema

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for start dates and log keys.
const DateLayout = "2006-01-02"

const (
	// MaxPhotos is the number of photos a single day log can hold.
	MaxPhotos = 6

	// MaxDogs is the number of dogs a session can track.
	MaxDogs = 6

	// MaxDays bounds the length of a sitting.
	MaxDays = 60
)

// DogColor is the accent color a dog is rendered with.
type DogColor string

const (
	ColorBlue   DogColor = "blue"
	ColorPink   DogColor = "pink"
	ColorPurple DogColor = "purple"
	ColorOrange DogColor = "orange"
	ColorTeal   DogColor = "teal"
	ColorIndigo DogColor = "indigo"
)

// Colors lists the palette in wizard order.
var Colors = []DogColor{ColorBlue, ColorPink, ColorPurple, ColorOrange, ColorTeal, ColorIndigo}

// Dog is one animal in a sitting. Names and colors are fixed once the
// session is created.
type Dog struct {
	Name  string   `json:"name"`
	Color DogColor `json:"color"`
}

// Meta is the listing record for a session: everything except the logs.
type Meta struct {
	ID                string   `json:"id"`
	SitterName        string   `json:"sitterName"`
	StartDate         string   `json:"startDate"`
	TotalDays         int      `json:"totalDays"`
	Dogs              []Dog    `json:"dogs"`
	EmergencyContacts Contacts `json:"emergencyContacts"`
	CreatedAt         int64    `json:"createdAt"` // unix milliseconds
}

// Session is one sitting engagement and the single document synced for it.
type Session struct {
	// ===== Identification (immutable) =====
	ID string `json:"id"`

	// ===== Schedule =====
	SitterName string `json:"sitterName"`
	StartDate  string `json:"startDate"` // YYYY-MM-DD, local calendar day
	TotalDays  int    `json:"totalDays"`

	// ===== Animals & contacts =====
	Dogs              []Dog    `json:"dogs"`
	EmergencyContacts Contacts `json:"emergencyContacts"`

	// CreatedAt only orders listings.
	CreatedAt int64 `json:"createdAt"`

	// ===== Per-day activity =====
	Logs map[string]*DayLog `json:"logs"`
}

// Meta returns the listing record for the session.
func (s *Session) Meta() Meta {
	return Meta{
		ID:                s.ID,
		SitterName:        s.SitterName,
		StartDate:         s.StartDate,
		TotalDays:         s.TotalDays,
		Dogs:              append([]Dog(nil), s.Dogs...),
		EmergencyContacts: s.EmergencyContacts,
		CreatedAt:         s.CreatedAt,
	}
}

// Validate checks the fields fixed at creation time.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.SitterName == "" {
		return fmt.Errorf("sitterName is required")
	}
	if _, err := time.Parse(DateLayout, s.StartDate); err != nil {
		return fmt.Errorf("startDate must be YYYY-MM-DD (got %q)", s.StartDate)
	}
	if s.TotalDays < 1 || s.TotalDays > MaxDays {
		return fmt.Errorf("totalDays must be between 1 and %d (got %d)", MaxDays, s.TotalDays)
	}
	if len(s.Dogs) == 0 {
		return fmt.Errorf("at least one dog is required")
	}
	if len(s.Dogs) > MaxDogs {
		return fmt.Errorf("at most %d dogs are supported (got %d)", MaxDogs, len(s.Dogs))
	}
	seen := make(map[string]bool, len(s.Dogs))
	for i, d := range s.Dogs {
		if d.Name == "" {
			return fmt.Errorf("dog %d has no name", i+1)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate dog name %q", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// SetDefaults fills optional fields so downstream code never sees nil maps.
func (s *Session) SetDefaults() {
	if s.Logs == nil {
		s.Logs = make(map[string]*DayLog)
	}
	for date, log := range s.Logs {
		if log == nil {
			delete(s.Logs, date)
			continue
		}
		if log.Date == "" {
			log.Date = date
		}
	}
}

// DogNames returns the dog names in session order.
func (s *Session) DogNames() []string {
	names := make([]string, len(s.Dogs))
	for i, d := range s.Dogs {
		names[i] = d.Name
	}
	return names
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Dogs = append([]Dog(nil), s.Dogs...)
	if s.Logs != nil {
		c.Logs = make(map[string]*DayLog, len(s.Logs))
		for k, v := range s.Logs {
			c.Logs[k] = v.Clone()
		}
	}
	return &c
}
