package keys

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/envelope"
	"rememberme/api/internal/kms"
)

var (
	localOnce sync.Once
	localPEM  []byte
)

func localKey(t *testing.T) []byte {
	t.Helper()
	localOnce.Do(func() {
		raw, err := kms.GenerateLocalKey(2048)
		if err != nil {
			panic(err)
		}
		localPEM = raw
	})
	return localPEM
}

type countingOracle struct {
	*kms.LocalOracle
	publicCalls   atomic.Int32
	decryptCalls  atomic.Int32
	corruptPEM    atomic.Int32
	corruptResult bool
	down          bool
	// gate, when set, holds PublicKey until closed
	gate chan struct{}
}

func (o *countingOracle) PublicKey(ctx context.Context) (kms.PublicKey, error) {
	o.publicCalls.Add(1)
	if o.gate != nil {
		<-o.gate
	}
	if o.down {
		return kms.PublicKey{}, kms.ErrUnavailable
	}
	pub, err := o.LocalOracle.PublicKey(ctx)
	if o.corruptPEM.Load() > 0 {
		o.corruptPEM.Add(-1)
		pub.CRC32C++
	}
	return pub, err
}

func (o *countingOracle) AsymmetricDecrypt(ctx context.Context, ct []byte, sum int64) (kms.DecryptResult, error) {
	o.decryptCalls.Add(1)
	if o.down {
		return kms.DecryptResult{}, kms.ErrUnavailable
	}
	res, err := o.LocalOracle.AsymmetricDecrypt(ctx, ct, sum)
	if o.corruptResult {
		res.PlaintextCRC32C++
	}
	return res, err
}

func newOracle(t *testing.T) *countingOracle {
	t.Helper()
	local, err := kms.NewLocalOracle("projects/p/locations/l/keyRings/r/cryptoKeys/k/cryptoKeyVersions/1", localKey(t))
	require.NoError(t, err)
	return &countingOracle{LocalOracle: local}
}

func TestIssueThenResolve(t *testing.T) {
	oracle := newOracle(t)
	p := NewProvisioner(oracle)
	ctx := context.Background()

	issued, err := p.Issue(ctx)
	require.NoError(t, err)
	assert.Len(t, issued.Secret, envelope.KeySize*2)

	session, err := p.Resolve(ctx, "", issued.Wrapped)
	require.NoError(t, err)
	assert.True(t, session.Fresh)
	assert.Equal(t, issued.Secret, session.Secret)

	ct, err := envelope.Encrypt("hello", issued.Key)
	require.NoError(t, err)
	plain, err := envelope.DecryptString(ct, session.Key)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)

	direct, err := p.Resolve(ctx, issued.Secret, "")
	require.NoError(t, err)
	assert.False(t, direct.Fresh)
}

func TestPublicKeyFetchedOnce(t *testing.T) {
	oracle := newOracle(t)
	p := NewProvisioner(oracle)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Issue(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, oracle.publicCalls.Load(), int32(16))
	before := oracle.publicCalls.Load()

	_, err := p.Issue(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, oracle.publicCalls.Load())
}

func TestSharedPublicKeyFetchOutlivesCancelledCaller(t *testing.T) {
	oracle := newOracle(t)
	oracle.gate = make(chan struct{})
	p := NewProvisioner(oracle)

	first, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Wrap(first, "secret")
		done <- err
	}()
	require.Eventually(t, func() bool { return oracle.publicCalls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	close(oracle.gate)

	require.NoError(t, <-done)
	_, err := p.Wrap(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, int32(1), oracle.publicCalls.Load())
}

func TestUnwrapCachedAcrossCalls(t *testing.T) {
	oracle := newOracle(t)
	p := NewProvisioner(oracle)
	ctx := context.Background()

	issued, err := p.Issue(ctx)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := p.Unwrap(ctx, issued.Wrapped)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), oracle.decryptCalls.Load())
}

func TestCorruptedPublicKeyRetriedOnce(t *testing.T) {
	oracle := newOracle(t)
	oracle.corruptPEM.Store(1)
	p := NewProvisioner(oracle)

	_, err := p.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), oracle.publicCalls.Load())
}

func TestCorruptedPublicKeyTwiceIsIntegrityError(t *testing.T) {
	oracle := newOracle(t)
	oracle.corruptPEM.Store(2)
	p := NewProvisioner(oracle)

	_, err := p.Issue(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindDataLoss, apperr.KindOf(err))
}

func TestCorruptedDecryptIsIntegrityError(t *testing.T) {
	oracle := newOracle(t)
	p := NewProvisioner(oracle)
	ctx := context.Background()
	issued, err := p.Issue(ctx)
	require.NoError(t, err)

	oracle.corruptResult = true
	_, err = p.Resolve(ctx, "", issued.Wrapped)
	require.Error(t, err)
	assert.Equal(t, apperr.KindDataLoss, apperr.KindOf(err))

	// A failed unwrap must not be cached.
	oracle.corruptResult = false
	_, err = p.Resolve(ctx, "", issued.Wrapped)
	require.NoError(t, err)
}

func TestUnavailableOracle(t *testing.T) {
	oracle := newOracle(t)
	oracle.down = true
	p := NewProvisioner(oracle)

	_, err := p.Issue(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.True(t, errors.Is(err, kms.ErrUnavailable))
}

func TestResolveWithoutKeyMaterial(t *testing.T) {
	p := NewProvisioner(newOracle(t))
	_, err := p.Resolve(context.Background(), "", "")
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = p.Resolve(context.Background(), "", "not-hex")
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}
