package rounds

import (
	"slices"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/validate"
)

// applyTimesOfDay moves a task's contribution to the round's times of day
// from previous to next. Removed entries are decremented and dropped at zero;
// added entries are incremented, or prepended with a cardinality of one.
func applyTimesOfDay(round *Round, previous, next []string) error {
	for _, tod := range previous {
		if slices.Contains(next, tod) {
			continue
		}
		i := slices.Index(round.TimesOfDay, tod)
		if i < 0 {
			continue
		}
		if round.TimesOfDayCardinality[i] <= 1 {
			round.TimesOfDay = slices.Delete(round.TimesOfDay, i, i+1)
			round.TimesOfDayCardinality = slices.Delete(round.TimesOfDayCardinality, i, i+1)
			continue
		}
		round.TimesOfDayCardinality[i]--
	}

	for _, tod := range next {
		if slices.Contains(previous, tod) {
			continue
		}
		if i := slices.Index(round.TimesOfDay, tod); i >= 0 {
			round.TimesOfDayCardinality[i]++
			continue
		}
		round.TimesOfDay = slices.Insert(round.TimesOfDay, 0, tod)
		round.TimesOfDayCardinality = slices.Insert(round.TimesOfDayCardinality, 0, 1)
	}

	if len(round.TimesOfDay) > validate.MaxTimesOfDay {
		return apperr.Quota("You can own 10 times of day")
	}
	return nil
}

// sameSet compares two string lists ignoring order.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !slices.Contains(b, v) {
			return false
		}
	}
	return true
}
