package engine_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/stockflow/pkg/audit"
	"github.com/dukex/stockflow/pkg/engine"
	"github.com/dukex/stockflow/pkg/log"
	"github.com/dukex/stockflow/pkg/mocks"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/notification"
	"github.com/dukex/stockflow/pkg/persistence"
	"github.com/dukex/stockflow/pkg/persistence/memory"
	"github.com/dukex/stockflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDeliveryFailuresDoNotChangeState(t *testing.T) {
	gateway := &mocks.MockGateway{}
	gateway.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	sink := &mocks.MockAuditSink{}
	sink.On("Log", mock.Anything, mock.Anything).Return(errors.New("audit store down"))

	h := newHarness(t, engine.WithGateway(gateway), engine.WithAudit(sink))
	chain := h.create(t, testutil.LinearChain(1))

	instance := h.start(t, chain.ID, nil)
	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)

	gateway.AssertCalled(t, "Send", mock.Anything, mock.MatchedBy(func(n notification.Notification) bool {
		return n.Type == notification.TypeApprovalRequest
	}))
	sink.AssertCalled(t, "Log", mock.Anything, mock.MatchedBy(func(entry audit.Entry) bool {
		return entry.Action == audit.ActionEntityCreate && entry.EntityID == instance.ID
	}))

	instance, err := h.engine.ApproveStep(context.Background(), instance.ID, "step-1", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, instance.Status)
}

func TestPersistenceFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("health check", func(t *testing.T) {
		store := mocks.NewMockPersistence()
		store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

		h := newHarness(t, engine.WithPersistence(store))

		require.EqualError(t, h.engine.HealthCheck(ctx), "connection refused")
	})

	t.Run("chain save", func(t *testing.T) {
		store := mocks.NewMockPersistence()
		store.Chains.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		h := newHarness(t, engine.WithPersistence(store))

		_, err := h.engine.CreateChain(ctx, engine.CreateChainRequest{
			Name:  "Replenishment",
			Steps: testutil.LinearChain(1).Steps,
		})
		require.ErrorContains(t, err, "disk full")
		assert.Empty(t, h.audit.Entries())
	})

	t.Run("instance save", func(t *testing.T) {
		chain := testutil.LinearChain(1)

		store := mocks.NewMockPersistence()
		store.Chains.On("GetByID", mock.Anything, chain.ID).Return(chain, nil)
		store.Instances.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		h := newHarness(t, engine.WithPersistence(store))

		_, err := h.engine.StartWorkflow(ctx, chain.ID, "po-1", "purchase_order", "initiator", nil)
		require.ErrorContains(t, err, "disk full")
		assert.Empty(t, h.sent.SentTo("u1"))
		assert.Empty(t, h.scheduler.Active())
		store.Instances.AssertExpectations(t)
	})
}

type taskRecorder struct {
	mu    sync.Mutex
	tasks []engine.Task
}

func (r *taskRecorder) CreateTask(_ context.Context, task engine.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = append(r.tasks, task)

	return nil
}

func TestManualTaskStep_CustomTaskCreator(t *testing.T) {
	tasks := &taskRecorder{}
	h := newHarness(t, engine.WithTaskCreator(tasks))
	h.directory.SetRole("counter", "c1")

	step := &models.WorkflowStep{
		ID:        "count",
		Name:      "Count shelf A",
		Type:      models.StepTypeManualTask,
		Approvers: []models.Approver{{Type: models.ApproverTypeRole, Value: "counter"}},
	}
	chain := h.create(t, testutil.NewChain(step))

	instance := h.start(t, chain.ID, nil)

	require.Len(t, tasks.tasks, 1)
	assert.Equal(t, engine.Task{
		InstanceID: instance.ID,
		StepID:     "count",
		StepName:   "Count shelf A",
		Assignee:   "c1",
		EntityID:   "po-1",
		EntityType: "purchase_order",
	}, tasks.tasks[0])
	assert.Empty(t, h.sent.SentTo("c1"))
}

// flakyStore wraps the memory store and fails the next n instance saves.
type flakyStore struct {
	persistence.Persistence

	instances *flakyInstances
}

type flakyInstances struct {
	persistence.InstanceRepository

	failures atomic.Int32
}

func newFlakyStore() *flakyStore {
	store := memory.NewPersistence()

	return &flakyStore{
		Persistence: store,
		instances:   &flakyInstances{InstanceRepository: store.InstanceRepository()},
	}
}

func (s *flakyStore) InstanceRepository() persistence.InstanceRepository {
	return s.instances
}

func (r *flakyInstances) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	if r.failures.Load() > 0 {
		r.failures.Add(-1)

		return errors.New("disk full")
	}

	return r.InstanceRepository.Save(ctx, instance)
}

func TestFailedSaveKeepsStepTimer(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	h := newHarness(t, engine.WithPersistence(store))
	chain := h.create(t, testutil.NewChain(escalatingStep(nil)))
	instance := h.start(t, chain.ID, nil)

	require.Len(t, h.scheduler.Active(), 1)

	store.instances.failures.Store(1)

	_, err := h.engine.ApproveStep(ctx, instance.ID, "review", "u1", "")
	require.ErrorContains(t, err, "disk full")

	stored, err := h.engine.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, stored.Status)

	timers := h.scheduler.Active()
	require.Len(t, timers, 1, "the step timer survives the failed approval")

	h.scheduler.Fire(timers[0])

	stored, err = h.engine.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusTimeout, stored.Status)
}

func TestFailedTimeoutSaveIsRetried(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	h := newHarness(t, engine.WithPersistence(store))
	chain := h.create(t, testutil.NewChain(escalatingStep(nil)))
	instance := h.start(t, chain.ID, nil)

	store.instances.failures.Store(1)
	h.scheduler.Fire(h.scheduler.Tasks()[0])

	stored, err := h.engine.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, stored.Status)

	tasks := h.scheduler.Tasks()
	require.Len(t, tasks, 2)
	retry := tasks[1]
	assert.Equal(t, time.Minute, retry.Delay)
	assert.False(t, retry.Cancelled())

	h.scheduler.Fire(retry)

	stored, err = h.engine.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusTimeout, stored.Status)
	assert.Equal(t, models.HistoryActionTimeout, lastEntry(stored).Action)
}

func TestWorkflowStartedLogAttributes(t *testing.T) {
	var buf bytes.Buffer

	logger, err := log.New(&buf, "info", "json")
	require.NoError(t, err)

	h := newHarness(t, engine.WithLogger(logger))
	chain := h.create(t, testutil.LinearChain(1))
	instance := h.start(t, chain.ID, nil)

	var started string

	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, `"msg":"workflow started"`) {
			started = line
		}
	}

	require.NotEmpty(t, started)
	assert.Equal(t, 1, strings.Count(started, `"chain_id":`))
	assert.Contains(t, started, `"instance_id":"`+instance.ID+`"`)
	assert.Contains(t, started, `"entity_id":`)
}
