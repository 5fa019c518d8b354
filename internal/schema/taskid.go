package schema

import (
	"fmt"
	"strings"
)

// TaskKey is the structured form of a task identifier. It is never stored;
// documents only carry the string produced by ID.
type TaskKey struct {
	Date     string
	SlotID   string
	Dog      string
	Activity Activity
}

// ID returns the task identifier for the key.
func (k TaskKey) ID() string {
	return TaskID(k.Date, k.SlotID, k.Dog, k.Activity)
}

var (
	componentEscaper   = strings.NewReplacer("%", "%25", "-", "%2D")
	componentUnescaper = strings.NewReplacer("%2D", "-", "%2d", "-", "%25", "%")
)

// TaskID builds the identifier {date}-{slot}-{dog}-{activity}.
//
// Slot, dog and activity components have '%' and '-' percent-escaped so a
// user-entered name cannot shift the delimiters; ordinary names produce the
// same string as the unescaped format. The date is written verbatim and is
// always ten characters.
func TaskID(date, slotID, dog string, activity Activity) string {
	var b strings.Builder
	b.Grow(len(date) + len(slotID) + len(dog) + len(activity) + 3)
	b.WriteString(date)
	b.WriteByte('-')
	b.WriteString(componentEscaper.Replace(slotID))
	b.WriteByte('-')
	b.WriteString(componentEscaper.Replace(dog))
	b.WriteByte('-')
	b.WriteString(componentEscaper.Replace(string(activity)))
	return b.String()
}

// ParseTaskID reverses TaskID.
func ParseTaskID(id string) (TaskKey, error) {
	if len(id) < len(DateLayout)+1 || id[len(DateLayout)] != '-' {
		return TaskKey{}, fmt.Errorf("invalid task id %q: missing date prefix", id)
	}
	date := id[:len(DateLayout)]
	parts := strings.Split(id[len(DateLayout)+1:], "-")
	if len(parts) != 3 {
		return TaskKey{}, fmt.Errorf("invalid task id %q: want 4 components, got %d", id, len(parts)+1)
	}
	return TaskKey{
		Date:     date,
		SlotID:   componentUnescaper.Replace(parts[0]),
		Dog:      componentUnescaper.Replace(parts[1]),
		Activity: Activity(componentUnescaper.Replace(parts[2])),
	}, nil
}

// SlotTaskIDs returns the identifiers of every (dog, activity) pair in slot.
func SlotTaskIDs(date string, slot TimeSlot, dogs []string) []string {
	ids := make([]string, 0, len(dogs)*len(slot.Activities))
	for _, dog := range dogs {
		for _, act := range slot.Activities {
			ids = append(ids, TaskID(date, slot.ID, dog, act))
		}
	}
	return ids
}
