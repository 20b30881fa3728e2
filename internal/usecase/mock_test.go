//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"frame-worker/internal/domain"
	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"
	"frame-worker/internal/domain/ports/repository"
)

// =============================
// Repositories
// =============================

// ---- In-memory JobRepository ----

type MockJobRepo struct {
	mu     sync.Mutex
	jobs   map[string]*model.Job
	events []*model.JobEvent

	FindByIDFunc    func(ctx context.Context, tx repository.Tx, id string) (*model.Job, error)
	UpdateFunc      func(ctx context.Context, tx repository.Tx, job *model.Job) error
	AppendEventFunc func(ctx context.Context, tx repository.Tx, ev *model.JobEvent) error
}

var _ repository.JobRepository = (*MockJobRepo)(nil)

func NewMockJobRepo() *MockJobRepo {
	return &MockJobRepo{jobs: map[string]*model.Job{}}
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	return &cp
}

// seed stores a job in the given status, bypassing the transition table.
func (m *MockJobRepo) seed(id, owner string, status model.JobStatus) *model.Job {
	j, _ := model.NewJob(id, owner, "uploads/"+owner+"/"+id+".mp4")
	j.Status = status
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = cloneJob(j)
	return j
}

func (m *MockJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MockJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *MockJobRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *MockJobRepo) Update(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MockJobRepo) AppendEvent(ctx context.Context, tx repository.Tx, ev *model.JobEvent) error {
	if m.AppendEventFunc != nil {
		return m.AppendEventFunc(ctx, tx, ev)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MockJobRepo) ListEvents(ctx context.Context, tx repository.Tx, jobID string) ([]*model.JobEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.JobEvent
	for _, ev := range m.events {
		if ev.JobID == jobID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MockJobRepo) ListExpirable(ctx context.Context, tx repository.Tx, completedBefore time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, j := range m.jobs {
		if len(ids) == limit {
			break
		}
		if j.Status == model.JobStatusDone && j.CompletedAt != nil && j.CompletedAt.Before(completedBefore) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MockJobRepo) get(id string) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneJob(m.jobs[id])
}

func (m *MockJobRepo) eventTypes(jobID string) []string {
	evs, _ := m.ListEvents(context.Background(), repository.NoTX, jobID)
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.EventType)
	}
	return out
}

// ---- Transaction manager ----

type MockTxManager struct {
	// mu stands in for the row lock taken by SELECT ... FOR UPDATE.
	mu         sync.Mutex
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn serially with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- Storage ----

type MockStorage struct {
	mu      sync.Mutex
	Fetches []string
	Stores  []string
	Removed []string

	RemoveErr error

	FetchFunc func(ctx context.Context, ref, dir string) (string, error)
	StoreFunc func(ctx context.Context, localPath, key string) (string, error)
}

var _ adapter.Storage = (*MockStorage)(nil)

func (s *MockStorage) Fetch(ctx context.Context, ref, dir string) (string, error) {
	s.mu.Lock()
	s.Fetches = append(s.Fetches, ref)
	s.mu.Unlock()
	if s.FetchFunc != nil {
		return s.FetchFunc(ctx, ref, dir)
	}
	p := filepath.Join(dir, "input"+filepath.Ext(ref))
	if err := os.WriteFile(p, []byte("video"), 0o600); err != nil {
		return "", err
	}
	return p, nil
}

func (s *MockStorage) Store(ctx context.Context, localPath, key string) (string, error) {
	s.mu.Lock()
	s.Stores = append(s.Stores, key)
	s.mu.Unlock()
	if s.StoreFunc != nil {
		return s.StoreFunc(ctx, localPath, key)
	}
	return key, nil
}

func (s *MockStorage) Remove(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Removed = append(s.Removed, ref)
	return s.RemoveErr
}

func (s *MockStorage) calls() (fetches, stores int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Fetches), len(s.Stores)
}

// ---- Codec / packager ----

type MockCodec struct {
	mu    sync.Mutex
	Calls int

	ExtractFunc func(ctx context.Context, input, outDir string) ([]string, error)
}

var _ adapter.Codec = (*MockCodec)(nil)

func (c *MockCodec) Extract(ctx context.Context, input, outDir string) ([]string, error) {
	c.mu.Lock()
	c.Calls++
	c.mu.Unlock()
	if c.ExtractFunc != nil {
		return c.ExtractFunc(ctx, input, outDir)
	}
	names := []string{"frame_0001.png", "frame_0002.png", "frame_0003.png"}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(outDir, n), []byte(n), 0o600); err != nil {
			return nil, err
		}
	}
	return names, nil
}

type MockPackager struct {
	PackageFunc func(ctx context.Context, dir string, names []string, archivePath string) (int64, int, error)
}

var _ adapter.Packager = (*MockPackager)(nil)

func (p *MockPackager) Package(ctx context.Context, dir string, names []string, archivePath string) (int64, int, error) {
	if p.PackageFunc != nil {
		return p.PackageFunc(ctx, dir, names, archivePath)
	}
	return 2048, len(names), nil
}

// ---- Coordination ----

type MockDedupGate struct {
	mu        sync.Mutex
	seen      map[string]bool
	Forgotten []string

	MarkErr error
}

var _ adapter.DedupGate = (*MockDedupGate)(nil)

func NewMockDedupGate() *MockDedupGate {
	return &MockDedupGate{seen: map[string]bool{}}
}

func dedupKey(jobID string, attempt int) string { return fmt.Sprintf("%s:%d", jobID, attempt) }

func (d *MockDedupGate) MarkIfFirst(ctx context.Context, jobID string, attempt int) (bool, error) {
	if d.MarkErr != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrCoordinationUnavailable, d.MarkErr)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	k := dedupKey(jobID, attempt)
	if d.seen[k] {
		return false, nil
	}
	d.seen[k] = true
	return true, nil
}

func (d *MockDedupGate) Forget(ctx context.Context, jobID string, attempt int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := dedupKey(jobID, attempt)
	delete(d.seen, k)
	d.Forgotten = append(d.Forgotten, k)
	return nil
}

type MockLocker struct {
	mu       sync.Mutex
	held     map[string]string
	Released int

	AcquireErr error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}}
}

func (l *MockLocker) TryAcquire(ctx context.Context, jobID string, ttl time.Duration) (*adapter.Lock, error) {
	if l.AcquireErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCoordinationUnavailable, l.AcquireErr)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := "lock:job:" + jobID
	if _, ok := l.held[key]; ok {
		return nil, nil
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return &adapter.Lock{Key: key, Token: tok}, nil
}

func (l *MockLocker) Release(ctx context.Context, lock *adapter.Lock) {
	if lock == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[lock.Key] == lock.Token {
		delete(l.held, lock.Key)
		l.Released++
	}
}

// hold simulates another worker owning the job lock.
func (l *MockLocker) hold(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held["lock:job:"+jobID] = "someone-else"
}

// ---- Messaging ----

type scheduledRetry struct {
	Delivery model.Delivery
	DueAt    time.Time
}

type MockRetryScheduler struct {
	mu        sync.Mutex
	Scheduled []scheduledRetry

	ScheduleErr error
}

var _ adapter.RetryScheduler = (*MockRetryScheduler)(nil)

func (s *MockRetryScheduler) Schedule(ctx context.Context, d model.Delivery, dueAt time.Time) error {
	if s.ScheduleErr != nil {
		return s.ScheduleErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Scheduled = append(s.Scheduled, scheduledRetry{Delivery: d, DueAt: dueAt})
	return nil
}

// pop removes the oldest scheduled retry, if any.
func (s *MockRetryScheduler) pop() (model.Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Scheduled) == 0 {
		return model.Delivery{}, false
	}
	d := s.Scheduled[0].Delivery
	s.Scheduled = s.Scheduled[1:]
	return d, true
}

type MockNotificationPublisher struct {
	mu        sync.Mutex
	Published []model.NotificationMessage

	PublishErr error
}

var _ adapter.NotificationPublisher = (*MockNotificationPublisher)(nil)

func (p *MockNotificationPublisher) PublishNotification(ctx context.Context, msg model.NotificationMessage) error {
	if p.PublishErr != nil {
		return p.PublishErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published = append(p.Published, msg)
	return nil
}

func (p *MockNotificationPublisher) sent() []model.NotificationMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.NotificationMessage(nil), p.Published...)
}

type publishedJob struct {
	Message model.JobMessage
	Attempt int
}

type MockJobPublisher struct {
	mu        sync.Mutex
	Published []publishedJob

	PublishErr error
}

var _ adapter.JobPublisher = (*MockJobPublisher)(nil)

func (p *MockJobPublisher) PublishJob(ctx context.Context, msg model.JobMessage, attempt int) error {
	if p.PublishErr != nil {
		return p.PublishErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published = append(p.Published, publishedJob{Message: msg, Attempt: attempt})
	return nil
}

// =============================
// Helpers
// =============================

var errBoom = errors.New("boom")

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func jobBody(jobID, ownerID string) []byte {
	return []byte(fmt.Sprintf(`{"job_id":%q,"owner_id":%q,"input_ref":"uploads/%s/%s.mp4"}`, jobID, ownerID, ownerID, jobID))
}
