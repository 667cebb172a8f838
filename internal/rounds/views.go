package rounds

import (
	"context"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/docstore"
)

type RoundView struct {
	ID string `json:"id"`
	Round
}

type TaskView struct {
	ID string `json:"id"`
	Task
}

type RoundDetail struct {
	RoundView
	Tasks []TaskView `json:"tasks"`
}

type TodayTaskView struct {
	ID string `json:"id"`
	TodayTask
}

type TodayView struct {
	Day   string          `json:"day"`
	Tasks []TodayTaskView `json:"tasks"`
}

// ListRounds returns the caller's rounds in user order. Rounds listed on the
// user doc that no longer exist are skipped.
func (s *Service) ListRounds(ctx context.Context, c Caller) ([]RoundView, error) {
	user, err := s.get(ctx, docstore.UserPath(c.UID))
	if err != nil {
		return nil, err
	}
	if !user.Exists {
		return nil, apperr.NotFound("User not found")
	}
	ids, err := openRoundsList(user, c.Key)
	if err != nil {
		return nil, err
	}
	out := make([]RoundView, 0, len(ids))
	for _, id := range ids {
		snap, err := s.get(ctx, docstore.RoundPath(c.UID, id))
		if err != nil {
			return nil, err
		}
		if !snap.Exists {
			continue
		}
		var round Round
		if err := open(snap, c.Key, &round); err != nil {
			return nil, err
		}
		out = append(out, RoundView{ID: id, Round: round.clone()})
	}
	return out, nil
}

// GetRound returns a round with its tasks in round order.
func (s *Service) GetRound(ctx context.Context, c Caller, roundID string) (RoundDetail, error) {
	snap, err := s.get(ctx, docstore.RoundPath(c.UID, roundID))
	if err != nil {
		return RoundDetail{}, err
	}
	if !snap.Exists {
		return RoundDetail{}, apperr.NotFound("Round not found")
	}
	var round Round
	if err := open(snap, c.Key, &round); err != nil {
		return RoundDetail{}, err
	}
	round = round.clone()

	tasks := make([]TaskView, 0, len(round.TasksIDs))
	for _, taskID := range round.TasksIDs {
		taskSnap, err := s.get(ctx, docstore.TaskPath(c.UID, roundID, taskID))
		if err != nil {
			return RoundDetail{}, err
		}
		if !taskSnap.Exists {
			continue
		}
		var task Task
		if err := open(taskSnap, c.Key, &task); err != nil {
			return RoundDetail{}, err
		}
		task.TimesOfDay = nonNil(task.TimesOfDay)
		tasks = append(tasks, TaskView{ID: taskID, Task: task})
	}
	return RoundDetail{RoundView: RoundView{ID: roundID, Round: round}, Tasks: tasks}, nil
}

// GetToday returns the checklists planned for one day of a round. A day
// with nothing planned is empty, not missing.
func (s *Service) GetToday(ctx context.Context, c Caller, roundID, day string) (TodayView, error) {
	roundSnap, err := s.get(ctx, docstore.RoundPath(c.UID, roundID))
	if err != nil {
		return TodayView{}, err
	}
	if !roundSnap.Exists {
		return TodayView{}, apperr.NotFound("Round not found")
	}
	view := TodayView{Day: day, Tasks: []TodayTaskView{}}
	todaySnap, err := s.get(ctx, docstore.TodayPath(c.UID, roundID, day))
	if err != nil {
		return TodayView{}, err
	}
	if !todaySnap.Exists {
		return view, nil
	}
	var today Today
	if err := open(todaySnap, c.Key, &today); err != nil {
		return TodayView{}, err
	}
	for _, taskID := range today.TasksIDs {
		snap, err := s.get(ctx, docstore.TodayTaskPath(c.UID, roundID, day, taskID))
		if err != nil {
			return TodayView{}, err
		}
		if !snap.Exists {
			continue
		}
		var todayTask TodayTask
		if err := open(snap, c.Key, &todayTask); err != nil {
			return TodayView{}, err
		}
		if todayTask.TimesOfDay == nil {
			todayTask.TimesOfDay = map[string]bool{}
		}
		view.Tasks = append(view.Tasks, TodayTaskView{ID: taskID, TodayTask: todayTask})
	}
	return view, nil
}

func (s *Service) get(ctx context.Context, path string) (docstore.Snapshot, error) {
	snap, err := s.store.Get(ctx, path)
	if err != nil {
		return docstore.Snapshot{}, apperr.Unavailable(err)
	}
	return snap, nil
}
