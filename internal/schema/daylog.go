package schema

import "maps"

// DayLog is the record of tasks, comments, photos and summary for one
// calendar date within a session.
type DayLog struct {
	Date string `json:"date"`

	// Tasks maps task identifiers to completion.
	Tasks map[string]bool `json:"tasks"`

	// TaskTimestamps holds unix milliseconds for completed tasks only.
	TaskTimestamps map[string]int64 `json:"taskTimestamps"`

	// Comments maps dog name to a free-text note.
	Comments map[string]string `json:"comments"`

	// Photos are encoded image payloads, at most MaxPhotos.
	Photos []string `json:"photos"`

	AISummary string `json:"aiSummary,omitempty"`

	// Legacy single-photo fields. Read only; see daylog.MigratePhotos.
	MorningPhoto *string `json:"morningPhoto,omitempty"`
	EveningPhoto *string `json:"eveningPhoto,omitempty"`
}

// NewDayLog returns an empty log for date.
func NewDayLog(date string) *DayLog {
	return &DayLog{
		Date:           date,
		Tasks:          make(map[string]bool),
		TaskTimestamps: make(map[string]int64),
		Comments:       make(map[string]string),
		Photos:         []string{},
	}
}

// Clone returns a deep copy of the log.
func (l *DayLog) Clone() *DayLog {
	if l == nil {
		return nil
	}
	c := *l
	c.Tasks = maps.Clone(l.Tasks)
	c.TaskTimestamps = maps.Clone(l.TaskTimestamps)
	c.Comments = maps.Clone(l.Comments)
	if l.Photos != nil {
		c.Photos = append([]string{}, l.Photos...)
	}
	if l.MorningPhoto != nil {
		p := *l.MorningPhoto
		c.MorningPhoto = &p
	}
	if l.EveningPhoto != nil {
		p := *l.EveningPhoto
		c.EveningPhoto = &p
	}
	return &c
}
