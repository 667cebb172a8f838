package rounds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/docstore"
	"rememberme/api/internal/envelope"
	"rememberme/api/internal/validate"
)

type fixture struct {
	t   *testing.T
	ctx context.Context
	mem *docstore.Memory
	svc *Service
	c   Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := docstore.NewMemory()
	f := &fixture{
		t:   t,
		ctx: context.Background(),
		mem: mem,
		svc: NewService(docstore.NewRetrying(mem, docstore.RetryOptions{BaseDelay: time.Millisecond})),
		c:   Caller{UID: "user-1", Key: newKey(t)},
	}
	f.putUser(docstore.Data{"hasEncryptedSecretKey": true})
	return f
}

func newKey(t *testing.T) *envelope.Key {
	t.Helper()
	hexKey, err := envelope.GenerateKey()
	require.NoError(t, err)
	key, err := envelope.ImportKey(hexKey)
	require.NoError(t, err)
	return key
}

func (f *fixture) putUser(data docstore.Data) {
	f.t.Helper()
	err := f.mem.Attempt(f.ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(ctx, docstore.UserPath(f.c.UID), data)
	})
	require.NoError(f.t, err)
}

func (f *fixture) newRound(name string) string {
	f.t.Helper()
	res, err := f.svc.SaveRound(f.ctx, f.c, validate.SaveRound{RoundID: validate.NewID, Name: name})
	require.NoError(f.t, err)
	require.NotNil(f.t, res.Created)
	require.True(f.t, *res.Created)
	return res.RoundID
}

func (f *fixture) saveTask(roundID, taskID, description string, days int, times ...string) (Result, error) {
	return f.svc.SaveTask(f.ctx, f.c, validate.SaveTask{
		RoundID: roundID,
		TaskID:  taskID,
		Task:    validate.Task{Description: description, TimesOfDay: times, DaysOfTheWeek: days},
	})
}

func (f *fixture) newTask(roundID, description string, days int, times ...string) string {
	f.t.Helper()
	res, err := f.saveTask(roundID, validate.NewID, description, days, times...)
	require.NoError(f.t, err)
	require.True(f.t, *res.Created)
	return res.TaskID
}

func (f *fixture) decode(path string, out any) bool {
	f.t.Helper()
	snap, err := f.mem.Get(f.ctx, path)
	require.NoError(f.t, err)
	if !snap.Exists {
		return false
	}
	require.NoError(f.t, envelope.DecryptInto(snap.String(valueField), f.c.Key, out))
	return true
}

func (f *fixture) round(roundID string) Round {
	f.t.Helper()
	var round Round
	require.True(f.t, f.decode(docstore.RoundPath(f.c.UID, roundID), &round), "round %s missing", roundID)
	return round
}

func (f *fixture) todayTask(roundID, day, taskID string) (TodayTask, bool) {
	f.t.Helper()
	var tt TodayTask
	ok := f.decode(docstore.TodayTaskPath(f.c.UID, roundID, day, taskID), &tt)
	return tt, ok
}

func (f *fixture) today(roundID, day string) (Today, bool) {
	f.t.Helper()
	var today Today
	ok := f.decode(docstore.TodayPath(f.c.UID, roundID, day), &today)
	return today, ok
}

func (f *fixture) userRounds() []string {
	f.t.Helper()
	snap, err := f.mem.Get(f.ctx, docstore.UserPath(f.c.UID))
	require.NoError(f.t, err)
	ids, err := openRoundsList(snap, f.c.Key)
	require.NoError(f.t, err)
	return ids
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestDailyRoundEndToEnd(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	taskID := f.newTask(roundID, "Drink coffee", validate.AllDays, "morning")

	round := f.round(roundID)
	assert.Equal(t, []string{"morning"}, round.TimesOfDay)
	assert.Equal(t, []int{1}, round.TimesOfDayCardinality)
	assert.Equal(t, validate.Days[:], round.TodaysIDs)
	assert.Equal(t, []string{taskID}, round.TasksIDs)
	assert.Equal(t, 1, round.TaskSize)

	for _, day := range validate.Days {
		tt, ok := f.todayTask(roundID, day, taskID)
		require.True(t, ok, day)
		assert.Equal(t, "Drink coffee", tt.Description)
		assert.Equal(t, map[string]bool{"morning": false}, tt.TimesOfDay)

		today, ok := f.today(roundID, day)
		require.True(t, ok, day)
		assert.Equal(t, day, today.Name)
		assert.Equal(t, []string{taskID}, today.TasksIDs)
	}

	res, err := f.svc.DeleteTask(f.ctx, f.c, validate.DeleteTask{RoundID: roundID, TaskID: taskID})
	require.NoError(t, err)
	assert.Equal(t, "Your task has been deleted", res.Details)

	round = f.round(roundID)
	assert.Empty(t, round.TimesOfDay)
	assert.Empty(t, round.TimesOfDayCardinality)
	assert.Empty(t, round.TodaysIDs)
	assert.Empty(t, round.TasksIDs)
	assert.Equal(t, 0, round.TaskSize)
	assert.Equal(t, []string{docstore.RoundPath(f.c.UID, roundID)}, f.mem.Paths(docstore.RoundPath(f.c.UID, roundID)))
}

func TestSaveRoundRenameAndNoChange(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")

	res, err := f.svc.SaveRound(f.ctx, f.c, validate.SaveRound{RoundID: roundID, Name: "Weekly"})
	require.NoError(t, err)
	assert.False(t, *res.Created)
	assert.Equal(t, "Weekly", f.round(roundID).Name)

	_, err = f.svc.SaveRound(f.ctx, f.c, validate.SaveRound{RoundID: roundID, Name: "Weekly"})
	requireKind(t, err, apperr.KindFailedPrecondition)
	assert.Equal(t, []string{roundID}, f.userRounds())
}

func TestRoundQuota(t *testing.T) {
	f := newFixture(t)
	for range validate.MaxRounds {
		f.newRound("r")
	}
	_, err := f.svc.SaveRound(f.ctx, f.c, validate.SaveRound{RoundID: validate.NewID, Name: "one more"})
	requireKind(t, err, apperr.KindResourceExhausted)
	assert.Equal(t, "You can own 5 rounds", apperr.As(err).Details)
	assert.Len(t, f.userRounds(), validate.MaxRounds)
}

func TestTaskQuota(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	for range validate.MaxTasks {
		f.newTask(roundID, "t", 1, "a")
	}
	_, err := f.saveTask(roundID, validate.NewID, "t", 1, "a")
	requireKind(t, err, apperr.KindResourceExhausted)

	round := f.round(roundID)
	assert.Equal(t, validate.MaxTasks, round.TaskSize)
	assert.Equal(t, []int{validate.MaxTasks}, round.TimesOfDayCardinality)
}

func TestTimesOfDayQuota(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	f.newTask(roundID, "ten", 1, "t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9")
	before := f.round(roundID)

	_, err := f.saveTask(roundID, validate.NewID, "eleventh", 1, "t10")
	requireKind(t, err, apperr.KindResourceExhausted)
	assert.Equal(t, before, f.round(roundID))

	// Reusing an existing time of day is fine.
	f.newTask(roundID, "reuse", 1, "t3")
	round := f.round(roundID)
	assert.Len(t, round.TimesOfDay, validate.MaxTimesOfDay)
}

func TestTimesOfDayCardinality(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	a := f.newTask(roundID, "A", 1, "a", "b")
	f.newTask(roundID, "B", 1, "b", "c")

	round := f.round(roundID)
	assert.Equal(t, []string{"c", "b", "a"}, round.TimesOfDay)
	assert.Equal(t, []int{1, 2, 1}, round.TimesOfDayCardinality)

	_, err := f.saveTask(roundID, a, "A", 1, "c")
	require.NoError(t, err)
	round = f.round(roundID)
	assert.Equal(t, []string{"c", "b"}, round.TimesOfDay)
	assert.Equal(t, []int{2, 1}, round.TimesOfDayCardinality)
}

func TestSaveTaskNoChange(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	taskID := f.newTask(roundID, "A", 3, "a", "b")

	_, err := f.saveTask(roundID, taskID, "A", 3, "b", "a")
	requireKind(t, err, apperr.KindFailedPrecondition)
}

func TestSaveTaskUnknownRound(t *testing.T) {
	f := newFixture(t)
	_, err := f.saveTask("missing", validate.NewID, "A", 1, "a")
	requireKind(t, err, apperr.KindNotFound)
}

func TestProgressSurvivesTimesOfDayEdit(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	taskID := f.newTask(roundID, "A", 1, "a", "b")

	_, err := f.svc.SetProgress(f.ctx, f.c, validate.SetProgress{
		RoundID: roundID, Day: "mon", TaskID: taskID, TimeOfDay: "a", Checked: true,
	})
	require.NoError(t, err)

	_, err = f.saveTask(roundID, taskID, "A", 1, "a", "c")
	require.NoError(t, err)

	tt, ok := f.todayTask(roundID, "mon", taskID)
	require.True(t, ok)
	assert.Equal(t, map[string]bool{"a": true, "c": false}, tt.TimesOfDay)
}

func TestDaysEditReconcilesToday(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	t1 := f.newTask(roundID, "one", 1|2, "x")
	t2 := f.newTask(roundID, "two", 1, "x")

	_, err := f.saveTask(roundID, t1, "one", 2|4, "x")
	require.NoError(t, err)

	_, ok := f.todayTask(roundID, "mon", t1)
	assert.False(t, ok)
	mon, ok := f.today(roundID, "mon")
	require.True(t, ok)
	assert.Equal(t, []string{t2}, mon.TasksIDs)
	_, ok = f.todayTask(roundID, "wed", t1)
	assert.True(t, ok)
	wed, ok := f.today(roundID, "wed")
	require.True(t, ok)
	assert.Equal(t, []string{t1}, wed.TasksIDs)

	round := f.round(roundID)
	assert.Equal(t, []string{"mon", "tue", "wed"}, round.TodaysIDs)
	assert.Equal(t, []int{2}, round.TimesOfDayCardinality)

	_, err = f.svc.DeleteTask(f.ctx, f.c, validate.DeleteTask{RoundID: roundID, TaskID: t2})
	require.NoError(t, err)
	_, ok = f.today(roundID, "mon")
	assert.False(t, ok)

	round = f.round(roundID)
	assert.Equal(t, []string{"tue", "wed"}, round.TodaysIDs)
	assert.Equal(t, []string{t1}, round.TasksIDs)
	assert.Equal(t, 1, round.TaskSize)
	assert.Equal(t, []int{1}, round.TimesOfDayCardinality)
}

func TestDescriptionEditKeepsProgress(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	taskID := f.newTask(roundID, "old", 1|2, "a")
	_, err := f.svc.SetProgress(f.ctx, f.c, validate.SetProgress{
		RoundID: roundID, Day: "mon", TaskID: taskID, TimeOfDay: "a", Checked: true,
	})
	require.NoError(t, err)

	_, err = f.saveTask(roundID, taskID, "new", 1|2, "a")
	require.NoError(t, err)

	mon, _ := f.todayTask(roundID, "mon", taskID)
	assert.Equal(t, TodayTask{Description: "new", TimesOfDay: map[string]bool{"a": true}}, mon)
	tue, _ := f.todayTask(roundID, "tue", taskID)
	assert.Equal(t, TodayTask{Description: "new", TimesOfDay: map[string]bool{"a": false}}, tue)
}

func TestDeleteTaskUnknown(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	_, err := f.svc.DeleteTask(f.ctx, f.c, validate.DeleteTask{RoundID: roundID, TaskID: "nope"})
	requireKind(t, err, apperr.KindNotFound)
}

func TestDeleteRoundRemovesSubtree(t *testing.T) {
	f := newFixture(t)
	keep := f.newRound("Keep")
	f.newTask(keep, "stay", 1, "a")
	doomed := f.newRound("Doomed")
	f.newTask(doomed, "one", validate.AllDays, "a", "b")
	f.newTask(doomed, "two", 1|64, "c")

	res, err := f.svc.DeleteRound(f.ctx, f.c, validate.DeleteRound{RoundID: doomed})
	require.NoError(t, err)
	assert.Equal(t, "Your round has been deleted", res.Details)

	assert.Empty(t, f.mem.Paths(docstore.RoundPath(f.c.UID, doomed)))
	assert.Equal(t, []string{keep}, f.userRounds())
	assert.Len(t, f.mem.Paths(docstore.RoundPath(f.c.UID, keep)), 4)

	_, err = f.svc.DeleteRound(f.ctx, f.c, validate.DeleteRound{RoundID: doomed})
	requireKind(t, err, apperr.KindNotFound)
}

func TestSetRoundsOrder(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := f.newRound("A"), f.newRound("B"), f.newRound("C"), f.newRound("D")

	res, err := f.svc.SetRoundsOrder(f.ctx, f.c, validate.SetRoundsOrder{RoundID: b, MoveBy: 2})
	require.NoError(t, err)
	assert.Equal(t, "Order has been updated", res.Details)
	assert.Equal(t, []string{a, c, d, b}, f.userRounds())

	_, err = f.svc.SetRoundsOrder(f.ctx, f.c, validate.SetRoundsOrder{RoundID: a, MoveBy: 4})
	requireKind(t, err, apperr.KindOutOfRange)
	_, err = f.svc.SetRoundsOrder(f.ctx, f.c, validate.SetRoundsOrder{RoundID: a, MoveBy: -1})
	requireKind(t, err, apperr.KindOutOfRange)
	_, err = f.svc.SetRoundsOrder(f.ctx, f.c, validate.SetRoundsOrder{RoundID: "nope", MoveBy: 1})
	requireKind(t, err, apperr.KindNotFound)
	assert.Equal(t, []string{a, c, d, b}, f.userRounds())
}

func TestSetTimesOfDayOrderMovesCardinality(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	f.newTask(roundID, "one", 1, "a", "b", "c")
	f.newTask(roundID, "two", 1, "a")

	round := f.round(roundID)
	require.Equal(t, []string{"c", "b", "a"}, round.TimesOfDay)
	require.Equal(t, []int{1, 1, 2}, round.TimesOfDayCardinality)

	_, err := f.svc.SetTimesOfDayOrder(f.ctx, f.c, validate.SetTimesOfDayOrder{RoundID: roundID, TimeOfDay: "a", MoveBy: -2})
	require.NoError(t, err)
	round = f.round(roundID)
	assert.Equal(t, []string{"a", "c", "b"}, round.TimesOfDay)
	assert.Equal(t, []int{2, 1, 1}, round.TimesOfDayCardinality)

	_, err = f.svc.SetTimesOfDayOrder(f.ctx, f.c, validate.SetTimesOfDayOrder{RoundID: roundID, TimeOfDay: "zzz", MoveBy: 1})
	requireKind(t, err, apperr.KindNotFound)
}

func TestSetProgressAndResetToday(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	one := f.newTask(roundID, "one", 1, "a", "b")
	two := f.newTask(roundID, "two", 1, "a")

	for _, p := range []validate.SetProgress{
		{RoundID: roundID, Day: "mon", TaskID: one, TimeOfDay: "a", Checked: true},
		{RoundID: roundID, Day: "mon", TaskID: one, TimeOfDay: "b", Checked: true},
		{RoundID: roundID, Day: "mon", TaskID: two, TimeOfDay: "a", Checked: true},
	} {
		_, err := f.svc.SetProgress(f.ctx, f.c, p)
		require.NoError(t, err)
	}
	tt, _ := f.todayTask(roundID, "mon", one)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, tt.TimesOfDay)

	_, err := f.svc.SetProgress(f.ctx, f.c, validate.SetProgress{RoundID: roundID, Day: "mon", TaskID: one, TimeOfDay: "zzz", Checked: true})
	requireKind(t, err, apperr.KindNotFound)
	_, err = f.svc.SetProgress(f.ctx, f.c, validate.SetProgress{RoundID: roundID, Day: "tue", TaskID: one, TimeOfDay: "a", Checked: true})
	requireKind(t, err, apperr.KindNotFound)

	_, err = f.svc.ResetToday(f.ctx, f.c, validate.ResetToday{RoundID: roundID, Day: "mon"})
	require.NoError(t, err)
	tt, _ = f.todayTask(roundID, "mon", one)
	assert.Equal(t, map[string]bool{"a": false, "b": false}, tt.TimesOfDay)
	tt, _ = f.todayTask(roundID, "mon", two)
	assert.Equal(t, map[string]bool{"a": false}, tt.TimesOfDay)

	_, err = f.svc.ResetToday(f.ctx, f.c, validate.ResetToday{RoundID: roundID, Day: "tue"})
	requireKind(t, err, apperr.KindNotFound)
}

func TestDisabledUserIsDenied(t *testing.T) {
	f := newFixture(t)
	roundID := f.newRound("Daily")
	f.putUser(docstore.Data{"hasEncryptedSecretKey": true, "disabled": true})

	_, err := f.svc.SaveRound(f.ctx, f.c, validate.SaveRound{RoundID: validate.NewID, Name: "Other"})
	requireKind(t, err, apperr.KindPermissionDenied)
	_, err = f.saveTask(roundID, validate.NewID, "A", 1, "a")
	requireKind(t, err, apperr.KindPermissionDenied)
}

func TestMissingUser(t *testing.T) {
	f := newFixture(t)
	f.c.UID = "ghost"
	_, err := f.svc.SaveRound(f.ctx, f.c, validate.SaveRound{RoundID: validate.NewID, Name: "Daily"})
	requireKind(t, err, apperr.KindNotFound)
}
