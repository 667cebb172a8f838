package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rememberme/api/internal/auth"
	"rememberme/api/internal/docstore"
	"rememberme/api/internal/keys"
	"rememberme/api/internal/kms"
	"rememberme/api/internal/session"
)

var (
	oracleOnce sync.Once
	oraclePEM  []byte
	oracleErr  error
)

func testOracle(t *testing.T) *kms.LocalOracle {
	t.Helper()
	oracleOnce.Do(func() {
		oraclePEM, oracleErr = kms.GenerateLocalKey(2048)
	})
	if oracleErr != nil {
		t.Fatalf("GenerateLocalKey() error = %v", oracleErr)
	}
	oracle, err := kms.NewLocalOracle("test/key/1", oraclePEM)
	if err != nil {
		t.Fatalf("NewLocalOracle() error = %v", err)
	}
	return oracle
}

// switchOracle counts decrypt calls and can be taken down mid-test.
type switchOracle struct {
	*kms.LocalOracle
	decrypts atomic.Int32
	down     atomic.Bool
}

func (o *switchOracle) AsymmetricDecrypt(ctx context.Context, ct []byte, sum int64) (kms.DecryptResult, error) {
	o.decrypts.Add(1)
	if o.down.Load() {
		return kms.DecryptResult{}, kms.ErrUnavailable
	}
	return o.LocalOracle.AsymmetricDecrypt(ctx, ct, sum)
}

// pingStore overrides Ping of a real store.
type pingStore struct {
	docstore.Store
	pingFn func(context.Context) error
}

func (p *pingStore) Ping(ctx context.Context) error {
	if p.pingFn != nil {
		return p.pingFn(ctx)
	}
	return p.Store.Ping(ctx)
}

type fakeImages struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeImages) Put(_ context.Context, uid string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[uid] = data
	return "https://images.test/users/" + uid + "/profile.jpg", nil
}

func (f *fakeImages) Remove(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, uid)
	return nil
}

type testEnv struct {
	t       *testing.T
	mem     *docstore.Memory
	store   *pingStore
	images  *fakeImages
	oracle  *switchOracle
	service *Service
	handler http.Handler
}

func newTestEnv(t *testing.T, withImages bool) *testEnv {
	t.Helper()
	mem := docstore.NewMemory()
	store := &pingStore{Store: docstore.NewRetrying(mem, docstore.RetryOptions{BaseDelay: time.Millisecond})}
	identity := auth.NewLocalProvider([]byte("test-secret"), session.NewMemoryStore(), time.Hour, time.Hour)

	env := &testEnv{t: t, mem: mem, store: store, oracle: &switchOracle{LocalOracle: testOracle(t)}}
	var images ImageStore
	if withImages {
		env.images = &fakeImages{objects: map[string][]byte{}}
		images = env.images
	}
	env.service = New(store, keys.NewProvisioner(env.oracle), identity, images)
	env.handler = NewHTTPServer(env.service, "*").Handler()
	return env
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return out
}

type signedIn struct {
	UID          string
	Token        string
	SessionToken string
	RoundID      string
	TaskID       string
}

func (e *testEnv) signIn() signedIn {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/auth/anonymous", "", "")
	if rr.Code != http.StatusOK {
		e.t.Fatalf("anonymous sign-in status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var out signedIn
	if err := json.Unmarshal(rr.Body.Bytes(), &struct {
		UID          *string `json:"uid"`
		Token        *string `json:"token"`
		SessionToken *string `json:"sessionToken"`
		RoundID      *string `json:"roundId"`
		TaskID       *string `json:"taskId"`
	}{&out.UID, &out.Token, &out.SessionToken, &out.RoundID, &out.TaskID}); err != nil {
		e.t.Fatalf("decode sign-in: %v", err)
	}
	return out
}
