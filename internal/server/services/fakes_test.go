package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/dbx"
	"github.com/dmitrijs2005/magiclink/internal/server/auth"
	"github.com/dmitrijs2005/magiclink/internal/server/config"
	"github.com/dmitrijs2005/magiclink/internal/server/models"
	"github.com/dmitrijs2005/magiclink/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/magiclink/internal/server/repositories/users"
	"github.com/dmitrijs2005/magiclink/internal/server/secret"
	"github.com/stretchr/testify/require"
)

// --- clock ---

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- user directory ---

type fakeUsers struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	findErr error
}

func newFakeUsers(list ...*models.User) *fakeUsers {
	f := &fakeUsers{byID: map[string]*models.User{}}
	for _, u := range list {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.byID {
		if u.Email == models.NormalizeEmail(email) {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsers) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

// --- refresh token store ---

type fakeRefreshRepo struct {
	mu         sync.Mutex
	byHash     map[string]*models.RefreshToken
	createErr  error
	deleteErr  error
	consumeErr error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{byHash: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(ctx context.Context, t *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *t
	f.byHash[t.TokenHash] = &cp
	return nil
}

func (f *fakeRefreshRepo) lookup(ctx context.Context, hash string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (f *fakeRefreshRepo) Consume(ctx context.Context, hash string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	t, ok := f.byHash[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(f.byHash, hash)
	return t, nil
}

func (f *fakeRefreshRepo) Delete(ctx context.Context, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	_, ok := f.byHash[hash]
	delete(f.byHash, hash)
	return ok, nil
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for h, t := range f.byHash {
		if t.Expired(now) {
			delete(f.byHash, h)
			n++
		}
	}
	return n, nil
}

func (f *fakeRefreshRepo) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byHash)
}

// --- repository manager ---

type fakeRepoManager struct {
	u *fakeUsers
	r *fakeRefreshRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error        { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository { return m.r }

// --- recorder ---

type countingRecorder struct {
	mu        sync.Mutex
	issued    map[string]int
	validated map[string]int
	rotated   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{issued: map[string]int{}, validated: map[string]int{}, rotated: map[string]int{}}
}

func (r *countingRecorder) MagicLinkIssued(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued[p]++
}

func (r *countingRecorder) SessionValidated(res string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validated[res]++
}

func (r *countingRecorder) RefreshRotated(res string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rotated[res]++
}

// --- wiring ---

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	return cfg
}

func newTestCodec(t *testing.T, clock *testClock) *auth.Codec {
	t.Helper()
	keys, err := secret.New("test-secret")
	require.NoError(t, err)
	return auth.NewCodec(keys, auth.WithClock(clock.Now))
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
