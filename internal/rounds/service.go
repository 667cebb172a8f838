// Package rounds implements the transactional mutations over a user's
// encrypted round tree:
//
//	users/{uid}
//	users/{uid}/rounds/{roundId}
//	users/{uid}/rounds/{roundId}/task/{taskId}
//	users/{uid}/rounds/{roundId}/today/{day}
//	users/{uid}/rounds/{roundId}/today/{day}/task/{taskId}
//
// Every operation runs in one store transaction. A transaction body reads
// everything it needs, computes the new state, stages the writes in a
// writebuf.Buffer and only then applies them, so a body is safe to re-run.
package rounds

import (
	"context"
	"time"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/docstore"
	"rememberme/api/internal/envelope"
	"rememberme/api/internal/metrics"
	"rememberme/api/internal/util"
	"rememberme/api/internal/writebuf"
)

// Caller is an authenticated user together with their recovered key.
type Caller struct {
	UID string
	Key *envelope.Key
}

// Result is returned by every mutation.
type Result struct {
	Created *bool  `json:"created,omitempty"`
	Details string `json:"details"`
	RoundID string `json:"roundId,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
}

type Service struct {
	store docstore.Store
	newID func() string
}

func NewService(store docstore.Store) *Service {
	return &Service{
		store: store,
		newID: func() string { return util.NewID("") },
	}
}

type txBody func(ctx context.Context, tx docstore.Tx, buf *writebuf.Buffer) error

// run executes body in a transaction with a fresh buffer per attempt.
func (s *Service) run(ctx context.Context, op string, body txBody) error {
	started := time.Now()
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		buf := writebuf.New()
		if err := body(ctx, tx, buf); err != nil {
			return err
		}
		return buf.Execute(ctx, tx)
	})
	code := "ok"
	if err != nil {
		code = string(apperr.KindOf(err))
	}
	metrics.OperationDuration.WithLabelValues(op, code).Observe(time.Since(started).Seconds())
	return err
}

// readUser loads the caller's user doc. Missing users are not found and
// disabled users are denied.
func readUser(ctx context.Context, tx docstore.Tx, uid string) (docstore.Snapshot, error) {
	snap, err := tx.Get(ctx, docstore.UserPath(uid))
	if err != nil {
		return docstore.Snapshot{}, err
	}
	if !snap.Exists {
		return docstore.Snapshot{}, apperr.NotFound("User not found")
	}
	if snap.Bool("disabled") {
		return docstore.Snapshot{}, apperr.PermissionDenied("User is disabled")
	}
	return snap, nil
}

func readRound(ctx context.Context, tx docstore.Tx, c Caller, roundID string) (docstore.Snapshot, Round, error) {
	snap, err := tx.Get(ctx, docstore.RoundPath(c.UID, roundID))
	if err != nil {
		return docstore.Snapshot{}, Round{}, err
	}
	if !snap.Exists {
		return snap, Round{}, apperr.NotFound("Round not found")
	}
	var round Round
	if err := open(snap, c.Key, &round); err != nil {
		return snap, Round{}, err
	}
	return snap, round.clone(), nil
}

func created(v bool) *bool { return &v }
