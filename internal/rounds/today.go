package rounds

import (
	"context"
	"slices"

	"rememberme/api/internal/docstore"
	"rememberme/api/internal/envelope"
	"rememberme/api/internal/validate"
	"rememberme/api/internal/writebuf"
)

type dayState struct {
	today     docstore.Snapshot
	todayTask docstore.Snapshot
}

// projection holds, per weekday, the today doc and the task's today-task doc.
type projection [len(validate.Days)]dayState

func readProjection(ctx context.Context, tx docstore.Tx, uid, roundID, taskID string) (projection, error) {
	var p projection
	for i, day := range validate.Days {
		today, err := tx.Get(ctx, docstore.TodayPath(uid, roundID, day))
		if err != nil {
			return p, err
		}
		todayTask, err := tx.Get(ctx, docstore.TodayTaskPath(uid, roundID, day, taskID))
		if err != nil {
			return p, err
		}
		p[i] = dayState{today: today, todayTask: todayTask}
	}
	return p, nil
}

// reconcileToday makes the task's today-task docs match its days and times
// of day. Progress on times of day that survive the edit is kept. It updates
// each affected today doc and round.TodaysIDs, and reports whether the round
// changed.
func reconcileToday(key *envelope.Key, buf *writebuf.Buffer, uid, roundID, taskID string, task Task, p projection, round *Round) (bool, error) {
	roundChanged := false
	for i, day := range validate.Days {
		state := p[i]
		active := task.ActiveOn(i)
		todayTaskPath := docstore.TodayTaskPath(uid, roundID, day, taskID)
		todayPath := docstore.TodayPath(uid, roundID, day)

		switch {
		case active && !state.todayTask.Exists:
			buf.Create(todayTaskPath, sealed(key, TodayTask{
				Description: task.Description,
				TimesOfDay:  freshChecklist(task.TimesOfDay, nil),
			}))
			if state.today.Exists {
				var today Today
				if err := open(state.today, key, &today); err != nil {
					return false, err
				}
				if !slices.Contains(today.TasksIDs, taskID) {
					today.TasksIDs = append(nonNil(today.TasksIDs), taskID)
					buf.Set(todayPath, sealed(key, today))
				}
			} else {
				buf.Create(todayPath, sealed(key, Today{Name: day, TasksIDs: []string{taskID}}))
			}
			if !slices.Contains(round.TodaysIDs, day) {
				round.TodaysIDs = addDay(round.TodaysIDs, day)
				roundChanged = true
			}

		case !active && state.todayTask.Exists:
			buf.Delete(todayTaskPath)
			if !state.today.Exists {
				continue
			}
			var today Today
			if err := open(state.today, key, &today); err != nil {
				return false, err
			}
			today.TasksIDs = removeID(today.TasksIDs, taskID)
			if len(today.TasksIDs) == 0 {
				buf.Delete(todayPath)
				if slices.Contains(round.TodaysIDs, day) {
					round.TodaysIDs = removeID(round.TodaysIDs, day)
					roundChanged = true
				}
			} else {
				buf.Set(todayPath, sealed(key, today))
			}

		case active && state.todayTask.Exists:
			var previous TodayTask
			if err := open(state.todayTask, key, &previous); err != nil {
				return false, err
			}
			buf.Set(todayTaskPath, sealed(key, TodayTask{
				Description: task.Description,
				TimesOfDay:  freshChecklist(task.TimesOfDay, previous.TimesOfDay),
			}))
		}
	}
	return roundChanged, nil
}

// renameToday rewrites the description of every existing today-task doc.
func renameToday(key *envelope.Key, buf *writebuf.Buffer, uid, roundID, taskID, description string, p projection) error {
	for i, day := range validate.Days {
		if !p[i].todayTask.Exists {
			continue
		}
		var todayTask TodayTask
		if err := open(p[i].todayTask, key, &todayTask); err != nil {
			return err
		}
		todayTask.Description = description
		buf.Set(docstore.TodayTaskPath(uid, roundID, day, taskID), sealed(key, todayTask))
	}
	return nil
}

func dayIndex(day string) int {
	return slices.Index(validate.Days[:], day)
}

// addDay inserts day keeping weekday order.
func addDay(days []string, day string) []string {
	out := append(slices.Clone(days), day)
	slices.SortStableFunc(out, func(a, b string) int { return dayIndex(a) - dayIndex(b) })
	return out
}

func removeID(ids []string, id string) []string {
	return nonNil(slices.DeleteFunc(slices.Clone(ids), func(v string) bool { return v == id }))
}
