// Package validate turns raw request payloads into typed requests. Every
// payload must have exactly the expected keys with the expected JSON types.
// All failures are apperr invalid-argument errors with the same client
// details; the failing rule is only kept for server logs.
package validate

import (
	"slices"

	"rememberme/api/internal/apperr"
)

const (
	MaxRounds        = 5
	MaxTasks         = 25
	MaxTimesOfDay    = 10
	MaxRoundName     = 256
	MaxDescription   = 100
	MaxTimeOfDayName = 100
	AllDays          = 1<<len(Days) - 1
)

// NewID is the id clients send to ask for a new entity.
const NewID = "null"

// Days are the weekday names in bitmask order: bit 0 is mon, bit 6 is sun.
var Days = [...]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// IsDay reports whether day is a weekday name.
func IsDay(day string) bool {
	return slices.Contains(Days[:], day)
}

type Task struct {
	Description   string
	TimesOfDay    []string
	DaysOfTheWeek int
}

type SaveRound struct {
	RoundID string
	Name    string
}

type DeleteRound struct {
	RoundID string
}

type SaveTask struct {
	RoundID string
	TaskID  string
	Task    Task
}

type DeleteTask struct {
	RoundID string
	TaskID  string
}

type SetRoundsOrder struct {
	RoundID string
	MoveBy  int
}

type SetTimesOfDayOrder struct {
	RoundID   string
	TimeOfDay string
	MoveBy    int
}

type SetProgress struct {
	RoundID   string
	Day       string
	TaskID    string
	TimeOfDay string
	Checked   bool
}

type ResetToday struct {
	RoundID string
	Day     string
}

func DecodeSaveRound(raw []byte) (SaveRound, error) {
	obj, err := decodeObject(raw, "roundId", "name")
	if err != nil {
		return SaveRound{}, err
	}
	var req SaveRound
	if req.RoundID, err = obj.id("roundId"); err != nil {
		return SaveRound{}, err
	}
	if req.Name, err = obj.text("name", 1, MaxRoundName); err != nil {
		return SaveRound{}, err
	}
	return req, nil
}

func DecodeDeleteRound(raw []byte) (DeleteRound, error) {
	obj, err := decodeObject(raw, "roundId")
	if err != nil {
		return DeleteRound{}, err
	}
	roundID, err := obj.id("roundId")
	if err != nil {
		return DeleteRound{}, err
	}
	return DeleteRound{RoundID: roundID}, nil
}

func DecodeSaveTask(raw []byte) (SaveTask, error) {
	obj, err := decodeObject(raw, "roundId", "taskId", "task")
	if err != nil {
		return SaveTask{}, err
	}
	var req SaveTask
	if req.RoundID, err = obj.id("roundId"); err != nil {
		return SaveTask{}, err
	}
	if req.TaskID, err = obj.id("taskId"); err != nil {
		return SaveTask{}, err
	}
	task, err := obj.object("task", "description", "timesOfDay", "daysOfTheWeek")
	if err != nil {
		return SaveTask{}, err
	}
	if req.Task.Description, err = task.text("description", 1, MaxDescription); err != nil {
		return SaveTask{}, err
	}
	if req.Task.DaysOfTheWeek, err = task.integer("daysOfTheWeek"); err != nil {
		return SaveTask{}, err
	}
	// 128 would set no weekday bit, so AllDays is the upper bound.
	if req.Task.DaysOfTheWeek < 0 || req.Task.DaysOfTheWeek > AllDays {
		return SaveTask{}, apperr.Invalid("daysOfTheWeek %d out of range", req.Task.DaysOfTheWeek)
	}
	if req.Task.TimesOfDay, err = task.textSet("timesOfDay", 1, MaxTimesOfDay, 1, MaxTimeOfDayName); err != nil {
		return SaveTask{}, err
	}
	return req, nil
}

func DecodeDeleteTask(raw []byte) (DeleteTask, error) {
	obj, err := decodeObject(raw, "roundId", "taskId")
	if err != nil {
		return DeleteTask{}, err
	}
	var req DeleteTask
	if req.RoundID, err = obj.id("roundId"); err != nil {
		return DeleteTask{}, err
	}
	if req.TaskID, err = obj.id("taskId"); err != nil {
		return DeleteTask{}, err
	}
	return req, nil
}

func DecodeSetRoundsOrder(raw []byte) (SetRoundsOrder, error) {
	obj, err := decodeObject(raw, "roundId", "moveBy")
	if err != nil {
		return SetRoundsOrder{}, err
	}
	var req SetRoundsOrder
	if req.RoundID, err = obj.id("roundId"); err != nil {
		return SetRoundsOrder{}, err
	}
	if req.MoveBy, err = moveBy(obj); err != nil {
		return SetRoundsOrder{}, err
	}
	return req, nil
}

func DecodeSetTimesOfDayOrder(raw []byte) (SetTimesOfDayOrder, error) {
	obj, err := decodeObject(raw, "roundId", "timeOfDay", "moveBy")
	if err != nil {
		return SetTimesOfDayOrder{}, err
	}
	var req SetTimesOfDayOrder
	if req.RoundID, err = obj.id("roundId"); err != nil {
		return SetTimesOfDayOrder{}, err
	}
	if req.TimeOfDay, err = obj.text("timeOfDay", 1, MaxTimeOfDayName); err != nil {
		return SetTimesOfDayOrder{}, err
	}
	if req.MoveBy, err = moveBy(obj); err != nil {
		return SetTimesOfDayOrder{}, err
	}
	return req, nil
}

func DecodeSetProgress(raw []byte) (SetProgress, error) {
	obj, err := decodeObject(raw, "roundId", "day", "taskId", "timeOfDay", "checked")
	if err != nil {
		return SetProgress{}, err
	}
	var req SetProgress
	if req.RoundID, err = obj.id("roundId"); err != nil {
		return SetProgress{}, err
	}
	if req.Day, err = day(obj); err != nil {
		return SetProgress{}, err
	}
	if req.TaskID, err = obj.id("taskId"); err != nil {
		return SetProgress{}, err
	}
	if req.TimeOfDay, err = obj.text("timeOfDay", 1, MaxTimeOfDayName); err != nil {
		return SetProgress{}, err
	}
	if req.Checked, err = obj.boolean("checked"); err != nil {
		return SetProgress{}, err
	}
	return req, nil
}

func DecodeResetToday(raw []byte) (ResetToday, error) {
	obj, err := decodeObject(raw, "roundId", "day")
	if err != nil {
		return ResetToday{}, err
	}
	var req ResetToday
	if req.RoundID, err = obj.id("roundId"); err != nil {
		return ResetToday{}, err
	}
	if req.Day, err = day(obj); err != nil {
		return ResetToday{}, err
	}
	return req, nil
}

// RoundID checks an id taken from a URL path.
func RoundID(id string) error {
	if !idPattern.MatchString(id) {
		return apperr.Invalid("round id %q is not valid", id)
	}
	return nil
}

// Day checks a weekday name taken from a URL path.
func Day(name string) error {
	if !IsDay(name) {
		return apperr.Invalid("day %q is not a weekday", name)
	}
	return nil
}

func moveBy(obj object) (int, error) {
	n, err := obj.integer("moveBy")
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, apperr.Invalid("moveBy must not be zero")
	}
	return n, nil
}

func day(obj object) (string, error) {
	name, err := obj.str("day")
	if err != nil {
		return "", err
	}
	if err := Day(name); err != nil {
		return "", err
	}
	return name, nil
}
