package rounds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/docstore"
	"rememberme/api/internal/envelope"
	"rememberme/api/internal/writebuf"
)

const valueField = "value"

// sealed snapshots v now and encrypts it when the buffer resolves payloads.
// The document body is {"value": ciphertext}.
func sealed(key *envelope.Key, v any) writebuf.Payload {
	return sealedField(key, valueField, v)
}

func sealedField(key *envelope.Key, field string, v any) writebuf.Payload {
	var (
		plaintext []byte
		err       error
	)
	if s, ok := v.(string); ok {
		plaintext = []byte(s)
	} else {
		plaintext, err = json.Marshal(v)
	}
	return func(ctx context.Context) (docstore.Data, error) {
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", field, err)
		}
		ct, err := envelope.Encrypt(plaintext, key)
		if err != nil {
			return nil, err
		}
		return docstore.Data{field: ct}, nil
	}
}

// open decrypts the value field of a required document into out.
func open(snap docstore.Snapshot, key *envelope.Key, out any) error {
	return openField(snap, valueField, key, out)
}

func openField(snap docstore.Snapshot, field string, key *envelope.Key, out any) error {
	if err := envelope.DecryptInto(snap.String(field), key, out); err != nil {
		return apperr.Internal(fmt.Errorf("decrypt %s.%s: %w", snap.Path, field, err))
	}
	return nil
}

// openOptional decrypts an optional string field. Absent or undecryptable
// values read as "".
func openOptional(snap docstore.Snapshot, field string, key *envelope.Key) string {
	value, err := envelope.DecryptString(snap.String(field), key)
	if err != nil {
		return ""
	}
	return value
}

// openRoundsList decrypts the user's ordered round ids. A user without the
// field owns no rounds.
func openRoundsList(snap docstore.Snapshot, key *envelope.Key) ([]string, error) {
	ct := snap.String("rounds")
	if ct == "" {
		return []string{}, nil
	}
	var ids []string
	if err := envelope.DecryptInto(ct, key, &ids); err != nil {
		if errors.Is(err, envelope.ErrAbsent) {
			return []string{}, nil
		}
		return nil, apperr.Internal(fmt.Errorf("decrypt %s.rounds: %w", snap.Path, err))
	}
	return nonNil(ids), nil
}
