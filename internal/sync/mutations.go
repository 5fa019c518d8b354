package sync

import (
	"context"
	"fmt"
	"slices"

	"github.com/pawsitive/pawsync/internal/daylog"
	"github.com/pawsitive/pawsync/internal/schema"
)

// editLog applies fn to the day log for date and writes it back.
func (e *Engine) editLog(ctx context.Context, date string, fn func(s *schema.Session, log *schema.DayLog) error) error {
	return e.Mutate(ctx, func(s *schema.Session) error {
		log := daylog.LogFor(s, date)
		if err := fn(s, log); err != nil {
			return err
		}
		daylog.Put(s, log)
		return nil
	})
}

// ToggleTask flips one task on date and returns its new completion.
func (e *Engine) ToggleTask(ctx context.Context, date, taskID string) (bool, error) {
	var done bool
	err := e.editLog(ctx, date, func(_ *schema.Session, log *schema.DayLog) error {
		done = daylog.ToggleTask(log, taskID, e.config.Now())
		return nil
	})
	return done, err
}

// CompleteAllInSlot marks every task of a slot complete for all dogs and
// returns how many tasks changed.
func (e *Engine) CompleteAllInSlot(ctx context.Context, date, slotID string) (int, error) {
	slot, ok := schema.SlotByID(slotID)
	if !ok {
		return 0, fmt.Errorf("unknown time slot %q", slotID)
	}
	var n int
	err := e.editLog(ctx, date, func(s *schema.Session, log *schema.DayLog) error {
		n = daylog.CompleteAllInSlot(log, slot, s.DogNames(), e.config.Now())
		return nil
	})
	return n, err
}

// SetComment sets the note for one dog on date.
func (e *Engine) SetComment(ctx context.Context, date, dog, text string) error {
	return e.editLog(ctx, date, func(s *schema.Session, log *schema.DayLog) error {
		if !slices.Contains(s.DogNames(), dog) {
			return fmt.Errorf("no dog named %q in session", dog)
		}
		daylog.SetComment(log, dog, text)
		return nil
	})
}

// AddPhotos appends photos to date up to the per-day cap and returns how
// many were accepted.
func (e *Engine) AddPhotos(ctx context.Context, date string, photos ...string) (int, error) {
	var n int
	err := e.editLog(ctx, date, func(_ *schema.Session, log *schema.DayLog) error {
		n = daylog.AddPhotos(log, photos...)
		return nil
	})
	return n, err
}

// RemovePhoto removes the photo at index on date.
func (e *Engine) RemovePhoto(ctx context.Context, date string, index int) error {
	return e.editLog(ctx, date, func(_ *schema.Session, log *schema.DayLog) error {
		return daylog.RemovePhoto(log, index)
	})
}

// SetSummary stores the generated summary for date.
func (e *Engine) SetSummary(ctx context.Context, date, summary string) error {
	return e.editLog(ctx, date, func(_ *schema.Session, log *schema.DayLog) error {
		daylog.SetSummary(log, summary)
		return nil
	})
}
