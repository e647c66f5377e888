package queue

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/stockflow/pkg/engine"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/testutil"
	"github.com/jonboulle/clockwork"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)

func newTestTrigger(t *testing.T) (*Trigger, *engine.Engine, string) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(now)
	e := engine.New(engine.WithClock(clock), engine.WithScheduler(testutil.NewManualScheduler()))
	t.Cleanup(e.Stop)

	chain, err := e.CreateChain(context.Background(), engine.CreateChainRequest{
		Name:  "Stock Adjustment Review",
		Steps: []*models.WorkflowStep{testutil.ApprovalStep("review", "maria")},
		Triggers: []*models.WorkflowTrigger{{
			Type:       models.TriggerTypeEntityCreate,
			EntityType: "stock_adjustment",
			Conditions: map[string]any{"warehouse": "north"},
		}},
	})
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = client.Close() })

	trigger, err := NewTrigger(client, "stockflow:events", e, clock, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	require.NoError(t, err)

	return trigger, e, chain.ID
}

func TestNewTrigger_RequiresQueue(t *testing.T) {
	_, err := NewTrigger(nil, "", nil, clockwork.NewFakeClock(), slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue trigger queue name is required")
}

func TestTrigger_HandleStartsMatchingChain(t *testing.T) {
	trigger, _, chainID := newTestTrigger(t)

	instances, err := trigger.Handle(context.Background(), []byte(`{
		"type": "entity_create",
		"entity_id": "adj-42",
		"entity_type": "stock_adjustment",
		"actor_id": "joao",
		"data": {"warehouse": "north", "quantity": 120}
	}`))
	require.NoError(t, err)
	require.Len(t, instances, 1)

	assert.Equal(t, chainID, instances[0].ChainID)
	assert.Equal(t, "adj-42", instances[0].EntityID)
	assert.Equal(t, "joao", instances[0].Initiator())
	assert.Equal(t, "review", instances[0].CurrentStep)
}

func TestTrigger_HandleNoMatch(t *testing.T) {
	trigger, _, _ := newTestTrigger(t)

	instances, err := trigger.Handle(context.Background(), []byte(`{
		"type": "entity_create",
		"entity_id": "adj-43",
		"entity_type": "stock_adjustment",
		"data": {"warehouse": "south"}
	}`))
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestTrigger_HandleInvalid(t *testing.T) {
	trigger, _, _ := newTestTrigger(t)

	tests := []struct {
		name    string
		message string
		errMsg  string
	}{
		{name: "not json", message: "stock changed", errMsg: "invalid entity event"},
		{name: "missing type", message: `{"entity_id": "a", "entity_type": "b"}`, errMsg: "type is required"},
		{name: "missing entity id", message: `{"type": "entity_update", "entity_type": "b"}`, errMsg: "entity_id is required"},
		{name: "missing entity type", message: `{"type": "entity_update", "entity_id": "a"}`, errMsg: "entity_type is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trigger.Handle(context.Background(), []byte(tt.message))
			require.ErrorIs(t, err, ErrInvalidEvent)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDecode_KeepsOccurredAt(t *testing.T) {
	event, err := decode([]byte(`{"type": "entity_delete", "entity_id": "a", "entity_type": "b", "occurred_at": "2026-02-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), event.OccurredAt)
	assert.Equal(t, models.TriggerTypeEntityDelete, event.Type)
}
