package schema

import "strings"

// Activity is something done for a dog during a time slot.
type Activity string

const (
	ActivityBathroom Activity = "Bathroom"
	ActivityFeeding  Activity = "Feeding"
)

// TimeSlot is a fixed part of the day with its expected activities.
type TimeSlot struct {
	ID         string
	Label      string
	TimeRange  string
	Activities []Activity
}

// TimeSlots is the daily routine, in order.
var TimeSlots = []TimeSlot{
	{
		ID:         "morning",
		Label:      "Morning Routine",
		TimeRange:  "7:00 AM - 8:30 AM",
		Activities: []Activity{ActivityBathroom, ActivityFeeding},
	},
	{
		ID:         "late_morning",
		Label:      "Late Morning Break",
		TimeRange:  "11:00 AM - 12:30 PM",
		Activities: []Activity{ActivityBathroom},
	},
	{
		ID:         "dinner",
		Label:      "Dinner Time",
		TimeRange:  "5:00 PM - 6:00 PM",
		Activities: []Activity{ActivityBathroom, ActivityFeeding},
	},
	{
		ID:         "bedtime",
		Label:      "Bedtime Routine",
		TimeRange:  "Evening",
		Activities: []Activity{ActivityBathroom},
	},
}

// SlotByID looks up a time slot.
func SlotByID(id string) (TimeSlot, bool) {
	for _, s := range TimeSlots {
		if s.ID == id {
			return s, true
		}
	}
	return TimeSlot{}, false
}

// ParseActivity matches an activity name case-insensitively.
func ParseActivity(s string) (Activity, bool) {
	for _, a := range []Activity{ActivityBathroom, ActivityFeeding} {
		if strings.EqualFold(string(a), s) {
			return a, true
		}
	}
	return "", false
}
