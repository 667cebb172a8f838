package rounds

import (
	"context"
	"slices"

	"rememberme/api/internal/docstore"
	"rememberme/api/internal/validate"
	"rememberme/api/internal/writebuf"
)

// SetRoundsOrder moves a round within the user's round list.
func (s *Service) SetRoundsOrder(ctx context.Context, c Caller, req validate.SetRoundsOrder) (Result, error) {
	err := s.run(ctx, "set_rounds_order", func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error {
		user, err := readUser(ctx, tx, c.UID)
		if err != nil {
			return err
		}
		ids, err := openRoundsList(user, c.Key)
		if err != nil {
			return err
		}
		from := slices.Index(ids, req.RoundID)
		to, err := moveTarget(from, req.MoveBy, len(ids), "Round")
		if err != nil {
			return err
		}
		buf.Update(user.Path, sealedField(c.Key, "rounds", move(ids, from, to)))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Details: "Order has been updated"}, nil
}

// SetTimesOfDayOrder moves a time of day together with its cardinality.
func (s *Service) SetTimesOfDayOrder(ctx context.Context, c Caller, req validate.SetTimesOfDayOrder) (Result, error) {
	err := s.run(ctx, "set_times_of_day_order", func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error {
		if _, err := readUser(ctx, tx, c.UID); err != nil {
			return err
		}
		snap, round, err := readRound(ctx, tx, c, req.RoundID)
		if err != nil {
			return err
		}
		from := slices.Index(round.TimesOfDay, req.TimeOfDay)
		to, err := moveTarget(from, req.MoveBy, len(round.TimesOfDay), "Time of day")
		if err != nil {
			return err
		}
		round.TimesOfDay = move(round.TimesOfDay, from, to)
		round.TimesOfDayCardinality = move(round.TimesOfDayCardinality, from, to)
		buf.Set(snap.Path, sealed(c.Key, round))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Details: "Order has been updated"}, nil
}
