// Package schedule starts workflows from the cron triggers of active chains.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

const EntityType = "schedule"

// Starter is the part of the engine the scheduler drives.
type Starter interface {
	ScheduleTriggers(ctx context.Context) (map[string][]*models.WorkflowTrigger, error)
	StartWorkflow(
		ctx context.Context,
		chainID, entityID, entityType, initiator string,
		metadata map[string]any,
	) (*models.WorkflowInstance, error)
}

type Trigger struct {
	starter Starter
	clock   clockwork.Clock
	logger  *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries []cron.EntryID
}

func NewTrigger(starter Starter, clock clockwork.Clock, logger *slog.Logger) *Trigger {
	return &Trigger{
		starter: starter,
		clock:   clock,
		logger:  logger.With("module", "schedule_trigger"),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
	}
}

// Start registers a job per schedule trigger and starts the cron runner.
// Triggers with an invalid expression are skipped and reported in the error.
func (t *Trigger) Start(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Starting ScheduleTrigger")

	err := t.Reload(ctx)

	t.cron.Start()

	return err
}

// Reload replaces the registered jobs with the current schedule triggers.
func (t *Trigger) Reload(ctx context.Context) error {
	triggers, err := t.starter.ScheduleTriggers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedule triggers: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range t.entries {
		t.cron.Remove(id)
	}

	t.entries = t.entries[:0]

	var errs []error

	for chainID, list := range triggers {
		for _, trigger := range list {
			id, err := t.cron.AddFunc(trigger.Schedule, t.job(chainID, trigger.Schedule))
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to add cron job for chain %s: %w", chainID, err))

				continue
			}

			t.logger.InfoContext(ctx, "Adding cron job for trigger", "chain_id", chainID, "cron", trigger.Schedule, "entry_id", id)
			t.entries = append(t.entries, id)
		}
	}

	return errors.Join(errs...)
}

// Entries returns the number of registered jobs.
func (t *Trigger) Entries() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

func (t *Trigger) job(chainID, expression string) func() {
	return func() {
		if _, err := t.fire(context.Background(), chainID, expression); err != nil {
			t.logger.Error("Error executing workflow for trigger", "chain_id", chainID, "error", err)
		}
	}
}

// fire starts one instance of the chain. The firing time identifies the
// scheduled entity.
func (t *Trigger) fire(ctx context.Context, chainID, expression string) (*models.WorkflowInstance, error) {
	firedAt := t.clock.Now().UTC()

	t.logger.InfoContext(ctx, "Cron job triggered", "chain_id", chainID, "cron", expression)

	return t.starter.StartWorkflow(ctx, chainID, firedAt.Format(time.RFC3339), EntityType, models.SystemActor, map[string]any{
		"schedule": expression,
		"firedAt":  firedAt.Format(time.RFC3339),
	})
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping ScheduleTrigger")

	<-t.cron.Stop().Done()

	return nil
}
