package rounds

import (
	"maps"
	"slices"

	"rememberme/api/internal/validate"
)

// Round is the decrypted body of users/{uid}/rounds/{roundId}.
// TimesOfDay and TimesOfDayCardinality always have the same length and no
// cardinality is ever zero.
type Round struct {
	Name                  string   `json:"name"`
	TimesOfDay            []string `json:"timesOfDay"`
	TimesOfDayCardinality []int    `json:"timesOfDayCardinality"`
	TodaysIDs             []string `json:"todaysIds"`
	TasksIDs              []string `json:"tasksIds"`
	TaskSize              int      `json:"taskSize"`
}

func (r Round) clone() Round {
	return Round{
		Name:                  r.Name,
		TimesOfDay:            nonNil(slices.Clone(r.TimesOfDay)),
		TimesOfDayCardinality: nonNilInts(slices.Clone(r.TimesOfDayCardinality)),
		TodaysIDs:             nonNil(slices.Clone(r.TodaysIDs)),
		TasksIDs:              nonNil(slices.Clone(r.TasksIDs)),
		TaskSize:              r.TaskSize,
	}
}

// Task is the decrypted body of .../rounds/{roundId}/task/{taskId}.
type Task struct {
	Description   string   `json:"description"`
	TimesOfDay    []string `json:"timesOfDay"`
	DaysOfTheWeek int      `json:"daysOfTheWeek"`
}

func taskFrom(t validate.Task) Task {
	return Task{
		Description:   t.Description,
		TimesOfDay:    nonNil(slices.Clone(t.TimesOfDay)),
		DaysOfTheWeek: t.DaysOfTheWeek,
	}
}

// ActiveOn reports whether the task is planned for the weekday at index i of
// validate.Days.
func (t Task) ActiveOn(i int) bool {
	return t.DaysOfTheWeek&(1<<i) != 0
}

// Today is the decrypted body of .../rounds/{roundId}/today/{day}.
type Today struct {
	Name     string   `json:"name"`
	TasksIDs []string `json:"tasksIds"`
}

// TodayTask is the per day checklist of one task.
type TodayTask struct {
	Description string          `json:"description"`
	TimesOfDay  map[string]bool `json:"timesOfDay"`
}

// freshChecklist returns a checklist for timesOfDay keeping any true value
// found in previous. Keys missing from timesOfDay are dropped.
func freshChecklist(timesOfDay []string, previous map[string]bool) map[string]bool {
	out := make(map[string]bool, len(timesOfDay))
	for _, tod := range timesOfDay {
		out[tod] = previous[tod]
	}
	return out
}

func resetChecklist(checklist map[string]bool) map[string]bool {
	out := maps.Clone(checklist)
	for k := range out {
		out[k] = false
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

func (r Round) withName(name string) Round {
	r.Name = name
	return r
}
