package syncworker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/internal/testdb"
	"github.com/angelmondragon/learnbill-backend/pkg/config"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox/registry"
)

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) { return r.id, r.err }

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []*gcppubsub.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) PublishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	if p.err != nil {
		return fakeResult{err: p.err}
	}
	return fakeResult{id: "msg-" + msg.Attributes["sync_job_id"]}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fixture struct {
	svc    *Service
	pub    *fakePublisher
	repo   *outbox.Repository
	outbox *outbox.Service
	db     *gorm.DB
	now    time.Time
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	conn := testdb.New(t)
	logg := logger.New(logger.Options{ServiceName: "syncworker-test", Output: io.Discard})
	repo := outbox.NewRepository(conn)
	f := &fixture{
		pub:    &fakePublisher{},
		repo:   repo,
		outbox: outbox.NewService(repo, logg),
		db:     conn,
		now:    time.Now().UTC(),
	}
	svc, err := NewService(ServiceParams{
		Config:    config.SyncConfig{BatchSize: 10, MaxAttempts: maxAttempts, BaseBackoff: time.Minute},
		Logger:    logg,
		DB:        fakePinger{},
		PubSub:    fakePinger{},
		Jobs:      repo,
		Attempts:  f.outbox,
		Registry:  registry.NewEventRegistry(),
		Publisher: f.pub,
		Clock:     func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) enqueueCharge(t *testing.T) uuid.UUID {
	t.Helper()
	chargeID := uuid.New()
	var id uuid.UUID
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = f.outbox.Enqueue(context.Background(), tx, outbox.JobRequest{
			AgencyID:   uuid.New(),
			EntityType: enums.SyncEntityCharge,
			EntityID:   chargeID,
			Operation:  enums.SyncOperationCreateInvoice,
			Event:      enums.SyncEventChargeCreated,
			RunAfter:   f.now,
			Data: payloads.ChargeCreatedEvent{
				ChargeID:     chargeID,
				ChargeStatus: enums.ChargeStatusPending,
				CoverageMode: enums.PaymentModePayPerEvent,
				AmountCents:  4500,
				TotalCents:   4500,
				Currency:     "usd",
			},
		})
		return err
	}))
	return id
}

func (f *fixture) job(t *testing.T, id uuid.UUID) *models.SyncJob {
	t.Helper()
	job, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestProcessBatchPublishesAndRecordsAttempt(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	id := f.enqueueCharge(t)

	n, err := f.svc.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, f.pub.sent, 1)
	msg := f.pub.sent[0]
	assert.Equal(t, id.String(), msg.Attributes["sync_job_id"])
	assert.Equal(t, "CHARGE_CREATED", msg.Attributes["event"])
	assert.Equal(t, "CREATE_INVOICE", msg.Attributes["operation"])
	assert.Equal(t, "1", msg.Attributes["attempt"])

	job := f.job(t, id)
	assert.Equal(t, enums.SyncJobSucceeded, job.Status)
	assert.Equal(t, 1, job.AttemptCount)
	assert.JSONEq(t, string(job.Payload), string(msg.Data))

	events, err := f.repo.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.SyncJobSucceeded, events[0].Status)
	assert.JSONEq(t, `{"message_id":"msg-`+id.String()+`"}`, string(events[0].Response))

	n, err = f.svc.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessBatchRetriesThenDeadLetters(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.pub.err = errors.New("connector unavailable")
	id := f.enqueueCharge(t)

	_, err := f.svc.ProcessBatch(ctx)
	require.NoError(t, err)
	job := f.job(t, id)
	assert.Equal(t, enums.SyncJobFailed, job.Status)
	assert.Equal(t, 1, job.AttemptCount)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "connector unavailable", *job.LastError)
	assert.True(t, job.RunAfter.After(f.now.Add(59*time.Second)), "retry waits at least the base backoff")

	n, err := f.svc.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "job is not due before run_after")

	f.now = f.now.Add(2 * time.Minute)
	_, err = f.svc.ProcessBatch(ctx)
	require.NoError(t, err)
	job = f.job(t, id)
	assert.Equal(t, enums.SyncJobDead, job.Status)
	assert.Equal(t, 2, job.AttemptCount)

	events, err := f.repo.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, enums.SyncJobFailed, events[0].Status)
	assert.Equal(t, enums.SyncJobDead, events[1].Status)

	dead, err := f.repo.ListDead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, id, dead[0].ID)
}

func TestUnresolvableJobIsDeadImmediately(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	id := f.enqueueCharge(t)
	require.NoError(t, f.db.Model(&models.SyncJob{}).Where("id = ?", id).
		Update("operation", enums.SyncOperationCreatePayment).Error)

	_, err := f.svc.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.pub.sent)
	assert.Equal(t, enums.SyncJobDead, f.job(t, id).Status)
}

func TestRunFailsWhenDependencyIsDown(t *testing.T) {
	f := newFixture(t, 3)
	f.svc.pubsub = fakePinger{err: errors.New("no route")}
	err := f.svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubsub ping failed")
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	f.enqueueCharge(t)
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := f.svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.pub.sent, 1)
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryDelay(30*time.Second, 1))
	assert.Equal(t, 60*time.Second, retryDelay(30*time.Second, 2))
	assert.Equal(t, 4*time.Minute, retryDelay(30*time.Second, 4))
	assert.Equal(t, maxRetryDelay, retryDelay(30*time.Second, 20))
}
