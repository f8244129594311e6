package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/automata-dev/automata/internal/store"
	"github.com/automata-dev/automata/internal/triggers"
	"github.com/automata-dev/automata/pkg/schema"
)

// WorkflowRunner runs one workflow. Satisfied by the engine (avoids import
// cycle).
type WorkflowRunner interface {
	Run(ctx context.Context, wf *schema.WorkflowDefinition, triggerData map[string]any, userID string) *schema.ExecutionOutcome
}

// SnapshotProvider supplies the current trigger-evaluation snapshot for a
// user: latest position fix, device state and reference instants.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, userID string) (*triggers.Snapshot, error)
}

// Scheduler polls enabled workflows, evaluates their triggers against fresh
// context snapshots and runs the ones that fire. External event buses can
// call EvaluateNow directly instead of waiting for a tick.
type Scheduler struct {
	store     store.Store
	evaluator *triggers.Evaluator
	runner    WorkflowRunner
	snapshots SnapshotProvider
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	runs   sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]struct{} // workflow IDs currently executing (dedup)
}

// New creates a scheduler. interval defaults to 60s when zero.
func New(s store.Store, evaluator *triggers.Evaluator, runner WorkflowRunner, snapshots SnapshotProvider, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     s,
		evaluator: evaluator,
		runner:    runner,
		snapshots: snapshots,
		interval:  interval,
		logger:    logger,
		inflight:  make(map[string]struct{}),
	}
}

// Start launches the background polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates every enabled workflow's trigger once.
func (s *Scheduler) tick(ctx context.Context) {
	workflows, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{EnabledOnly: true})
	if err != nil {
		s.logger.Error("failed to list workflows", slog.String("error", err.Error()))
		return
	}

	for _, wf := range workflows {
		if wf.Trigger == nil {
			continue
		}
		if err := s.EvaluateNow(ctx, wf); err != nil {
			s.logger.Error("trigger evaluation failed",
				slog.String("workflow_id", wf.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// EvaluateNow evaluates one workflow's trigger against a fresh snapshot and,
// if it fires, launches the run in the background. Concurrent calls for the
// same workflow deduplicate; only one execution runs at a time per workflow.
func (s *Scheduler) EvaluateNow(ctx context.Context, wf *schema.WorkflowDefinition) error {
	snap, err := s.snapshots.Snapshot(ctx, wf.OwnerID)
	if err != nil {
		return fmt.Errorf("snapshot for user %q: %w", wf.OwnerID, err)
	}

	fired, err := s.evaluator.Evaluate(ctx, wf.Trigger, snap, wf.OwnerID)
	if err != nil {
		return fmt.Errorf("evaluate trigger: %w", err)
	}
	if !fired {
		return nil
	}

	if !s.tryAcquire(wf.ID) {
		s.logger.Debug("workflow already running, skipping", "workflow_id", wf.ID)
		return nil
	}

	s.logger.Info("trigger fired",
		slog.String("workflow_id", wf.ID),
		slog.String("category", string(wf.Trigger.Category)),
	)

	// The run detaches from the poll loop so a slow workflow cannot stall
	// trigger evaluation for the others. The inflight slot is held until the
	// run and its history write finish; Stop waits for both.
	data := triggerData(wf.Trigger, snap)
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.release(wf.ID)

		outcome := s.runner.Run(ctx, wf, data, wf.OwnerID)
		rec := &store.ExecutionRecord{
			ExecutionID: outcome.ExecutionID,
			WorkflowID:  wf.ID,
			OwnerID:     wf.OwnerID,
			Outcome:     *outcome,
		}
		// Outcomes are recorded even when shutdown cancels the run itself.
		if err := s.store.RecordExecution(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Error("failed to record execution",
				slog.String("workflow_id", wf.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// triggerData builds the trigger snapshot handed to the execution context,
// addressable from workflows via trigger.* references.
func triggerData(spec *schema.TriggerSpec, snap *triggers.Snapshot) map[string]any {
	data := map[string]any{
		"category":  string(spec.Category),
		"fired_at":  snap.Now.Format(time.RFC3339),
		"timestamp": snap.Now.Unix(),
	}
	if snap.Location != nil {
		data["location"] = map[string]any{
			"lat":        snap.Location.Lat,
			"lon":        snap.Location.Lon,
			"accuracy_m": snap.Location.AccuracyM,
		}
	}
	if snap.Device != nil {
		data["device"] = map[string]any{
			"type":          snap.Device.Type,
			"platform":      snap.Device.Platform,
			"network":       snap.Device.Network,
			"battery_level": snap.Device.BatteryLevel,
			"charging":      snap.Device.Charging,
		}
	}
	return data
}

func (s *Scheduler) tryAcquire(workflowID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[workflowID]; ok {
		return false
	}
	s.inflight[workflowID] = struct{}{}
	return true
}

func (s *Scheduler) release(workflowID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, workflowID)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.runs.Wait()
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
