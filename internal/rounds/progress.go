package rounds

import (
	"context"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/docstore"
	"rememberme/api/internal/validate"
	"rememberme/api/internal/writebuf"
)

// SetProgress checks or unchecks one time of day of a today-task.
func (s *Service) SetProgress(ctx context.Context, c Caller, req validate.SetProgress) (Result, error) {
	err := s.run(ctx, "set_progress", func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error {
		if _, err := readUser(ctx, tx, c.UID); err != nil {
			return err
		}
		if _, _, err := readRound(ctx, tx, c, req.RoundID); err != nil {
			return err
		}
		snap, err := tx.Get(ctx, docstore.TodayTaskPath(c.UID, req.RoundID, req.Day, req.TaskID))
		if err != nil {
			return err
		}
		if !snap.Exists {
			return apperr.NotFound("Task is not planned for this day")
		}
		var todayTask TodayTask
		if err := open(snap, c.Key, &todayTask); err != nil {
			return err
		}
		checked, ok := todayTask.TimesOfDay[req.TimeOfDay]
		if !ok {
			return apperr.NotFound("Time of day not found")
		}
		if checked == req.Checked {
			return nil
		}
		todayTask.TimesOfDay[req.TimeOfDay] = req.Checked
		buf.Set(snap.Path, sealed(c.Key, todayTask))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Details: "Your progress has been updated"}, nil
}

// ResetToday unchecks every time of day of every task planned for a day.
func (s *Service) ResetToday(ctx context.Context, c Caller, req validate.ResetToday) (Result, error) {
	err := s.run(ctx, "reset_today", func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error {
		if _, err := readUser(ctx, tx, c.UID); err != nil {
			return err
		}
		if _, _, err := readRound(ctx, tx, c, req.RoundID); err != nil {
			return err
		}
		todaySnap, err := tx.Get(ctx, docstore.TodayPath(c.UID, req.RoundID, req.Day))
		if err != nil {
			return err
		}
		if !todaySnap.Exists {
			return apperr.NotFound("Nothing is planned for this day")
		}
		var today Today
		if err := open(todaySnap, c.Key, &today); err != nil {
			return err
		}

		snaps := make([]docstore.Snapshot, 0, len(today.TasksIDs))
		for _, taskID := range today.TasksIDs {
			snap, err := tx.Get(ctx, docstore.TodayTaskPath(c.UID, req.RoundID, req.Day, taskID))
			if err != nil {
				return err
			}
			if snap.Exists {
				snaps = append(snaps, snap)
			}
		}
		for _, snap := range snaps {
			var todayTask TodayTask
			if err := open(snap, c.Key, &todayTask); err != nil {
				return err
			}
			todayTask.TimesOfDay = resetChecklist(todayTask.TimesOfDay)
			buf.Set(snap.Path, sealed(c.Key, todayTask))
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Details: "Your day has been reset"}, nil
}
