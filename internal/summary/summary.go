// Package summary turns a day log into a short owner-facing report.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pawsitive/pawsync/internal/daylog"
	"github.com/pawsitive/pawsync/internal/schema"
)

// NoComment stands in for a dog with no note.
const NoComment = "No specific comments."

// SlotStatus is the state of one time slot for one dog.
type SlotStatus struct {
	Time   string `json:"time"`
	Status string `json:"status"` // e.g. "Bathroom: Done, Feeding: Pending"
}

// DogDigest is the day of one dog.
type DogDigest struct {
	Name       string       `json:"name"`
	Comment    string       `json:"comment"`
	Activities []SlotStatus `json:"activities"`
}

// Digest is the structured day handed to a Generator.
type Digest struct {
	Date   string      `json:"date"`
	Sitter string      `json:"sitter"`
	Dogs   []DogDigest `json:"dogs"`
}

// BuildDigest summarizes the log for date in s.
func BuildDigest(s *schema.Session, date string) Digest {
	log := daylog.LogFor(s, date)
	d := Digest{Date: date, Sitter: s.SitterName}
	for _, dog := range s.DogNames() {
		dd := DogDigest{Name: dog, Comment: log.Comments[dog]}
		if dd.Comment == "" {
			dd.Comment = NoComment
		}
		for _, slot := range schema.TimeSlots {
			parts := make([]string, len(slot.Activities))
			for i, act := range slot.Activities {
				state := "Pending"
				if log.Tasks[schema.TaskID(date, slot.ID, dog, act)] {
					state = "Done"
				}
				parts[i] = fmt.Sprintf("%s: %s", act, state)
			}
			dd.Activities = append(dd.Activities, SlotStatus{Time: slot.Label, Status: strings.Join(parts, ", ")})
		}
		d.Dogs = append(d.Dogs, dd)
	}
	return d
}

// Prompt renders the instruction sent to a text model.
func Prompt(d Digest) (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal digest: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here is the data for today (%s) logged by the sitter, %s.\n\n", d.Date, d.Sitter)
	fmt.Fprintf(&b, "Data: %s\n\n", data)
	b.WriteString("Please write a warm, cheerful, and concise daily summary for the owner (approx 100 words). ")
	b.WriteString("Highlight if the dogs ate well and went to the bathroom regularly. ")
	b.WriteString("Incorporate the specific comments provided by the sitter naturally into the narrative. ")
	b.WriteString("Make it sound like a fun report card.")
	return b.String(), nil
}

// Generator writes prose for a digest.
type Generator interface {
	Summarize(ctx context.Context, d Digest) (string, error)
}
