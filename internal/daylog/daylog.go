// Package daylog derives and updates the per-day activity log of a session.
//
// Logs are created lazily: reading a date with no entry yields an empty log
// that is only written back into the session by Put, after the first
// mutation. Every mutating function takes the log it changes and keeps the
// invariants of schema.DayLog: a task has a timestamp exactly when it is
// complete, and a log never holds more than schema.MaxPhotos photos.
package daylog

import (
	"fmt"
	"time"

	"github.com/pawsitive/pawsync/internal/schema"
)

// ResolveDate returns startDate advanced by dayIndex calendar days.
//
// The arithmetic is done on the civil date alone (year, month, day). The
// UTC location is only a neutral calendar here; the host's offset never
// enters the computation, so there is no off-by-one shift around midnight.
func ResolveDate(startDate string, dayIndex int) (string, error) {
	start, err := time.Parse(schema.DateLayout, startDate)
	if err != nil {
		return "", fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	y, m, d := start.Date()
	return time.Date(y, m, d+dayIndex, 0, 0, 0, 0, time.UTC).Format(schema.DateLayout), nil
}

// CurrentDate resolves the date shown for dayIndex in s.
func CurrentDate(s *schema.Session, dayIndex int) (string, error) {
	return ResolveDate(s.StartDate, dayIndex)
}

// DayIndex is the inverse of ResolveDate.
func DayIndex(startDate, date string) (int, error) {
	start, err := time.Parse(schema.DateLayout, startDate)
	if err != nil {
		return 0, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	day, err := time.Parse(schema.DateLayout, date)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return int(day.Sub(start).Hours() / 24), nil
}

// Today returns the local calendar date of now.
func Today(now time.Time) string {
	return now.Format(schema.DateLayout)
}

// ClampDay keeps dayIndex within the session window.
func ClampDay(s *schema.Session, dayIndex int) int {
	if dayIndex < 0 {
		return 0
	}
	if dayIndex > s.TotalDays-1 {
		return s.TotalDays - 1
	}
	return dayIndex
}

// LogFor returns a copy of the log stored for date, or a new empty log.
// The session is not modified.
func LogFor(s *schema.Session, date string) *schema.DayLog {
	stored, ok := s.Logs[date]
	if !ok || stored == nil {
		return schema.NewDayLog(date)
	}
	log := stored.Clone()
	if log.Date == "" {
		log.Date = date
	}
	ensureMaps(log)
	log.Photos = MigratePhotos(log)
	return log
}

// ensureMaps allocates the maps a stored log may carry as null.
func ensureMaps(log *schema.DayLog) {
	if log.Tasks == nil {
		log.Tasks = make(map[string]bool)
	}
	if log.TaskTimestamps == nil {
		log.TaskTimestamps = make(map[string]int64)
	}
	if log.Comments == nil {
		log.Comments = make(map[string]string)
	}
}

// Put stores log in s under its date.
func Put(s *schema.Session, log *schema.DayLog) {
	if s.Logs == nil {
		s.Logs = make(map[string]*schema.DayLog)
	}
	s.Logs[log.Date] = log
}

// MigratePhotos returns the photo list of log, wrapping the legacy
// single-photo fields when the list is absent. It does not modify log.
func MigratePhotos(log *schema.DayLog) []string {
	if log.Photos != nil {
		return log.Photos
	}
	var photos []string
	for _, legacy := range []*string{log.MorningPhoto, log.EveningPhoto} {
		if legacy != nil && *legacy != "" {
			photos = append(photos, *legacy)
		}
	}
	if photos == nil {
		return []string{}
	}
	if len(photos) > schema.MaxPhotos {
		photos = photos[:schema.MaxPhotos]
	}
	return photos
}

// ToggleTask flips completion of taskID and returns the new state.
// Completing stamps now; clearing removes both the task and its timestamp
// entry, so toggling twice restores the original log.
func ToggleTask(log *schema.DayLog, taskID string, now time.Time) bool {
	ensureMaps(log)
	if log.Tasks[taskID] {
		delete(log.Tasks, taskID)
		delete(log.TaskTimestamps, taskID)
		return false
	}
	log.Tasks[taskID] = true
	log.TaskTimestamps[taskID] = now.UnixMilli()
	return true
}

// CompleteAllInSlot marks every (dog, activity) task of slot complete.
// Tasks already complete keep their original timestamp. It returns the
// number of tasks that changed.
func CompleteAllInSlot(log *schema.DayLog, slot schema.TimeSlot, dogs []string, now time.Time) int {
	ensureMaps(log)
	changed := 0
	for _, id := range schema.SlotTaskIDs(log.Date, slot, dogs) {
		if log.Tasks[id] {
			continue
		}
		log.Tasks[id] = true
		log.TaskTimestamps[id] = now.UnixMilli()
		changed++
	}
	return changed
}

// SlotComplete reports whether every task in slot is done.
func SlotComplete(log *schema.DayLog, slot schema.TimeSlot, dogs []string) bool {
	for _, id := range schema.SlotTaskIDs(log.Date, slot, dogs) {
		if !log.Tasks[id] {
			return false
		}
	}
	return true
}

// Progress counts completed tasks across all slots.
func Progress(log *schema.DayLog, dogs []string) (done, total int) {
	for _, slot := range schema.TimeSlots {
		for _, id := range schema.SlotTaskIDs(log.Date, slot, dogs) {
			total++
			if log.Tasks[id] {
				done++
			}
		}
	}
	return done, total
}

// SetComment sets the note for dog. An empty text removes it.
func SetComment(log *schema.DayLog, dog, text string) {
	ensureMaps(log)
	if text == "" {
		delete(log.Comments, dog)
		return
	}
	log.Comments[dog] = text
}

// AddPhotos appends photos up to the cap and returns how many were kept.
func AddPhotos(log *schema.DayLog, photos ...string) int {
	room := schema.MaxPhotos - len(log.Photos)
	if room <= 0 {
		return 0
	}
	if len(photos) > room {
		photos = photos[:room]
	}
	log.Photos = append(log.Photos, photos...)
	return len(photos)
}

// RemovePhoto deletes the photo at index.
func RemovePhoto(log *schema.DayLog, index int) error {
	if index < 0 || index >= len(log.Photos) {
		return fmt.Errorf("photo index %d out of range (have %d)", index, len(log.Photos))
	}
	log.Photos = append(log.Photos[:index:index], log.Photos[index+1:]...)
	return nil
}

// SetSummary replaces the generated summary.
func SetSummary(log *schema.DayLog, summary string) {
	log.AISummary = summary
}
