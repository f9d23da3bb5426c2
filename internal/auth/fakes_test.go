package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/telconova/authgate/internal/model"
)

const testSecret = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

var errStorageDown = errors.New("connection refused")

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fakeClock はテスト用の操作可能な時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

// fakeAccountRepo はメモリ上のAccountRepository。
// 取得時にコピーを返し、Saveされた状態だけが次回の取得に反映される。
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	saves    int
	findErr  error
	saveErr  error
}

func newFakeAccountRepo(accounts ...model.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: make(map[string]model.Account)}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, a := range r.accounts {
		if a.Email == email {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *fakeAccountRepo) Save(_ context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.accounts[account.ID] = *account
	return nil
}

func (r *fakeAccountRepo) Create(_ context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.ID] = *account
	return nil
}

func (r *fakeAccountRepo) get(id string) model.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id]
}

func (r *fakeAccountRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// fakeAttemptStore はメモリ上の監査ログ。AttemptWriterとFailureCounterを兼ねる。
type fakeAttemptStore struct {
	mu        sync.Mutex
	records   []model.AttemptRecord
	insertErr error
	countErr  error
	panicOn   bool
}

func (s *fakeAttemptStore) Insert(_ context.Context, record *model.AttemptRecord) error {
	if s.panicOn {
		panic("audit backend exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.records = append(s.records, *record)
	return nil
}

func (s *fakeAttemptStore) CountFailuresSince(_ context.Context, email string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, r := range s.records {
		if r.Email == email && !r.Success && !r.OccurredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeAttemptStore) all() []model.AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AttemptRecord, len(s.records))
	copy(out, s.records)
	return out
}

// recordingMetrics は呼び出しを記録するMetricsCollector。
type recordingMetrics struct {
	mu            sync.Mutex
	outcomes      []string
	lockouts      int
	recoveries    int
	auditFailures int
	auditDropped  int
}

func (m *recordingMetrics) RecordAttempt(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordLockout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockouts++
}

func (m *recordingMetrics) RecordRecovery() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveries++
}

func (m *recordingMetrics) RecordAuditFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditFailures++
}

func (m *recordingMetrics) RecordAuditDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditDropped++
}

func (m *recordingMetrics) RecordAuthLatency(time.Duration) {}
func (m *recordingMetrics) RecordHTTPStatus(int) {}

func (m *recordingMetrics) dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auditDropped
}

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func activeAccount(t *testing.T, id, email, password string) model.Account {
	t.Helper()
	created := t0.Add(-24 * time.Hour)
	return model.Account{
		ID:           id,
		Name:         "Ana Pérez",
		Email:        email,
		PasswordHash: mustHash(t, password),
		Role:         "tecnico",
		Status:       model.AccountStatusActive,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func lockedAccount(t *testing.T, id, email, password string, lockedAt time.Time) model.Account {
	t.Helper()
	a := activeAccount(t, id, email, password)
	a.Lock(lockedAt)
	return a
}
