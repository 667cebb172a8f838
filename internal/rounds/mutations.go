package rounds

import (
	"context"
	"slices"

	"github.com/charmbracelet/log"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/docstore"
	"rememberme/api/internal/envelope"
	"rememberme/api/internal/validate"
	"rememberme/api/internal/writebuf"
)

// SaveRound creates a round when req.RoundID does not name an existing one,
// otherwise renames it.
func (s *Service) SaveRound(ctx context.Context, c Caller, req validate.SaveRound) (Result, error) {
	var res Result
	err := s.run(ctx, "save_round", func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error {
		user, err := readUser(ctx, tx, c.UID)
		if err != nil {
			return err
		}
		ids, err := openRoundsList(user, c.Key)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ctx, docstore.RoundPath(c.UID, req.RoundID))
		if err != nil {
			return err
		}

		if !snap.Exists {
			if len(ids) >= validate.MaxRounds {
				return apperr.Quota("You can own 5 rounds")
			}
			roundID := s.newID()
			ids = append(ids, roundID)
			buf.Create(docstore.RoundPath(c.UID, roundID), sealed(c.Key, Round{}.clone().withName(req.Name)))
			buf.Update(docstore.UserPath(c.UID), sealedField(c.Key, "rounds", ids))
			res = Result{Created: created(true), RoundID: roundID, Details: "Your round has been created"}
			return nil
		}

		var round Round
		if err := open(snap, c.Key, &round); err != nil {
			return err
		}
		if round.Name == req.Name {
			return apperr.NoChange("Round name is unchanged")
		}
		round = round.clone().withName(req.Name)
		buf.Set(snap.Path, sealed(c.Key, round))
		res = Result{Created: created(false), RoundID: req.RoundID, Details: "Your round has been updated"}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// SaveTask creates or edits a task and keeps the round's times of day and
// the today projections in step with it.
func (s *Service) SaveTask(ctx context.Context, c Caller, req validate.SaveTask) (Result, error) {
	next := taskFrom(req.Task)
	var res Result
	err := s.run(ctx, "save_task", func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error {
		if _, err := readUser(ctx, tx, c.UID); err != nil {
			return err
		}
		roundSnap, round, err := readRound(ctx, tx, c, req.RoundID)
		if err != nil {
			return err
		}

		taskID := req.TaskID
		var previous Task
		exists := false
		if taskID != validate.NewID {
			snap, err := tx.Get(ctx, docstore.TaskPath(c.UID, req.RoundID, taskID))
			if err != nil {
				return err
			}
			if snap.Exists {
				if err := open(snap, c.Key, &previous); err != nil {
					return err
				}
				exists = true
			}
		}
		if !exists {
			if round.TaskSize+1 > validate.MaxTasks {
				return apperr.Quota("You can own up to 25 tasks")
			}
			taskID = s.newID()
		}

		proj, err := readProjection(ctx, tx, c.UID, req.RoundID, taskID)
		if err != nil {
			return err
		}
		taskPath := docstore.TaskPath(c.UID, req.RoundID, taskID)
		res = Result{Created: created(!exists), TaskID: taskID, Details: "Your task has been updated"}
		if !exists {
			res.Details = "Your task has been created"
		}

		if exists {
			descriptionChanged := previous.Description != next.Description
			daysChanged := previous.DaysOfTheWeek != next.DaysOfTheWeek
			timesChanged := !sameSet(previous.TimesOfDay, next.TimesOfDay)

			switch {
			case !descriptionChanged && !daysChanged && !timesChanged:
				return apperr.NoChange("Task is unchanged")
			case descriptionChanged && !daysChanged && !timesChanged:
				buf.Set(taskPath, sealed(c.Key, next))
				return renameToday(c.Key, buf, c.UID, req.RoundID, taskID, next.Description, proj)
			case daysChanged && !descriptionChanged && !timesChanged:
				roundChanged, err := reconcileToday(c.Key, buf, c.UID, req.RoundID, taskID, next, proj, &round)
				if err != nil {
					return err
				}
				buf.Set(taskPath, sealed(c.Key, next))
				if roundChanged {
					buf.Set(roundSnap.Path, sealed(c.Key, round))
				}
				return nil
			}
		}

		if err := applyTimesOfDay(&round, previous.TimesOfDay, next.TimesOfDay); err != nil {
			return err
		}
		if _, err := reconcileToday(c.Key, buf, c.UID, req.RoundID, taskID, next, proj, &round); err != nil {
			return err
		}
		if exists {
			buf.Set(taskPath, sealed(c.Key, next))
		} else {
			buf.Create(taskPath, sealed(c.Key, next))
			round.TasksIDs = append(round.TasksIDs, taskID)
			round.TaskSize++
		}
		buf.Set(roundSnap.Path, sealed(c.Key, round))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// DeleteTask removes a task, its today-task docs and its contribution to the
// round's times of day.
func (s *Service) DeleteTask(ctx context.Context, c Caller, req validate.DeleteTask) (Result, error) {
	err := s.run(ctx, "delete_task", func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error {
		if _, err := readUser(ctx, tx, c.UID); err != nil {
			return err
		}
		roundSnap, round, err := readRound(ctx, tx, c, req.RoundID)
		if err != nil {
			return err
		}
		taskSnap, err := tx.Get(ctx, docstore.TaskPath(c.UID, req.RoundID, req.TaskID))
		if err != nil {
			return err
		}
		if !taskSnap.Exists {
			return apperr.NotFound("Task not found")
		}
		var task Task
		if err := open(taskSnap, c.Key, &task); err != nil {
			return err
		}
		proj, err := readProjection(ctx, tx, c.UID, req.RoundID, req.TaskID)
		if err != nil {
			return err
		}

		if err := applyTimesOfDay(&round, task.TimesOfDay, nil); err != nil {
			return err
		}
		gone := task
		gone.DaysOfTheWeek = 0
		if _, err := reconcileToday(c.Key, buf, c.UID, req.RoundID, req.TaskID, gone, proj, &round); err != nil {
			return err
		}
		buf.Delete(taskSnap.Path)
		round.TasksIDs = removeID(round.TasksIDs, req.TaskID)
		round.TaskSize = max(round.TaskSize-1, 0)
		buf.Set(roundSnap.Path, sealed(c.Key, round))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Details: "Your task has been deleted"}, nil
}

// DeleteRound removes a round with all of its tasks and today projections,
// and drops it from the user's round list.
func (s *Service) DeleteRound(ctx context.Context, c Caller, req validate.DeleteRound) (Result, error) {
	roundPath := docstore.RoundPath(c.UID, req.RoundID)
	err := s.run(ctx, "delete_round", func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error {
		user, err := readUser(ctx, tx, c.UID)
		if err != nil {
			return err
		}
		ids, err := openRoundsList(user, c.Key)
		if err != nil {
			return err
		}
		_, round, err := readRound(ctx, tx, c, req.RoundID)
		if err != nil {
			return err
		}

		var doomed []string
		for _, taskID := range round.TasksIDs {
			snap, err := tx.Get(ctx, docstore.TaskPath(c.UID, req.RoundID, taskID))
			if err != nil {
				return err
			}
			if snap.Exists {
				doomed = append(doomed, snap.Path)
			}
		}
		for _, day := range round.TodaysIDs {
			if !validate.IsDay(day) {
				continue
			}
			todaySnap, err := tx.Get(ctx, docstore.TodayPath(c.UID, req.RoundID, day))
			if err != nil {
				return err
			}
			taskIDs := slices.Clone(round.TasksIDs)
			if todaySnap.Exists {
				doomed = append(doomed, todaySnap.Path)
				var today Today
				if err := envelope.DecryptInto(todaySnap.String(valueField), c.Key, &today); err == nil {
					for _, id := range today.TasksIDs {
						if !slices.Contains(taskIDs, id) {
							taskIDs = append(taskIDs, id)
						}
					}
				}
			}
			for _, taskID := range taskIDs {
				snap, err := tx.Get(ctx, docstore.TodayTaskPath(c.UID, req.RoundID, day, taskID))
				if err != nil {
					return err
				}
				if snap.Exists {
					doomed = append(doomed, snap.Path)
				}
			}
		}

		i := slices.Index(ids, req.RoundID)
		if i < 0 {
			return apperr.NotFound("Round is not listed")
		}
		ids = slices.Delete(ids, i, i+1)

		for _, path := range doomed {
			buf.Delete(path)
		}
		buf.Delete(roundPath)
		buf.Update(docstore.UserPath(c.UID), sealedField(c.Key, "rounds", ids))
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	// Sweep documents the round no longer references.
	if err := s.store.DeleteTree(ctx, roundPath); err != nil {
		log.Warn("round subtree sweep failed", "path", roundPath, "err", err)
	}
	return Result{Details: "Your round has been deleted"}, nil
}
