package rounds

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/docstore"
	"rememberme/api/internal/envelope"
	"rememberme/api/internal/validate"
	"rememberme/api/internal/writebuf"
)

// Seed content of a newly provisioned user.
const (
	SeedRoundName       = "Daily"
	SeedTaskDescription = "Drink coffee"
	SeedTimeOfDay       = "Before start"
)

// Profile is the unencrypted view of a user doc.
type Profile struct {
	Rounds   int    `json:"rounds"`
	PhotoURL string `json:"photoURL"`
	Disabled bool   `json:"disabled"`
}

// CreateUser provisions uid with one round holding one task planned for
// every day. A user that already has a key is left alone.
func (s *Service) CreateUser(ctx context.Context, uid string, key *envelope.Key) (Result, error) {
	var res Result
	err := s.run(ctx, "create_user", func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error {
		snap, err := tx.Get(ctx, docstore.UserPath(uid))
		if err != nil {
			return err
		}
		if snap.Bool("hasEncryptedSecretKey") {
			return apperr.NoChange("User is already provisioned")
		}
		disabled := snap.Bool("disabled")

		roundID, taskID := s.newID(), s.newID()
		task := Task{
			Description:   SeedTaskDescription,
			TimesOfDay:    []string{SeedTimeOfDay},
			DaysOfTheWeek: validate.AllDays,
		}
		round := Round{}.clone().withName(SeedRoundName)
		if err := applyTimesOfDay(&round, nil, task.TimesOfDay); err != nil {
			return err
		}
		if _, err := reconcileToday(key, buf, uid, roundID, taskID, task, projection{}, &round); err != nil {
			return err
		}
		round.TasksIDs = []string{taskID}
		round.TaskSize = 1

		buf.Create(docstore.RoundPath(uid, roundID), sealed(key, round))
		buf.Create(docstore.TaskPath(uid, roundID, taskID), sealed(key, task))
		ids := []string{roundID}
		buf.Set(docstore.UserPath(uid), func(ctx context.Context) (docstore.Data, error) {
			ct, err := sealedField(key, "rounds", ids)(ctx)
			if err != nil {
				return nil, err
			}
			ct["hasEncryptedSecretKey"] = true
			ct["disabled"] = disabled
			return ct, nil
		})
		res = Result{Created: created(true), RoundID: roundID, TaskID: taskID, Details: "Your account is ready"}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	log.Info("user provisioned", "uid", uid)
	return res, nil
}

// DeleteUser removes the user doc and everything below it.
func (s *Service) DeleteUser(ctx context.Context, uid string) error {
	if err := s.store.DeleteTree(ctx, docstore.UserPath(uid)); err != nil {
		return apperr.Unavailable(fmt.Errorf("delete user %s: %w", uid, err))
	}
	log.Info("user deleted", "uid", uid)
	return nil
}

// SetPhotoURL stores the encrypted profile image url. An empty url clears it.
func (s *Service) SetPhotoURL(ctx context.Context, c Caller, url string) (Result, error) {
	err := s.run(ctx, "set_photo_url", func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error {
		user, err := readUser(ctx, tx, c.UID)
		if err != nil {
			return err
		}
		if url == "" {
			buf.Update(user.Path, writebuf.Value(docstore.Data{"photoURL": ""}))
			return nil
		}
		buf.Update(user.Path, sealedField(c.Key, "photoURL", url))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if url == "" {
		return Result{Details: "Your profile image has been removed"}, nil
	}
	return Result{Details: "Your profile image has been updated"}, nil
}

// Profile reads the caller's user doc outside of a transaction.
func (s *Service) Profile(ctx context.Context, c Caller) (Profile, error) {
	snap, err := s.get(ctx, docstore.UserPath(c.UID))
	if err != nil {
		return Profile{}, err
	}
	if !snap.Exists {
		return Profile{}, apperr.NotFound("User not found")
	}
	ids, err := openRoundsList(snap, c.Key)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Rounds:   len(ids),
		PhotoURL: openOptional(snap, "photoURL", c.Key),
		Disabled: snap.Bool("disabled"),
	}, nil
}
