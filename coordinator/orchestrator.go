package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/glaciation-heu/sap-uc3/metrics"
)

// Config contains execution worker settings.
type Config struct {
	// Workers is the number of goroutines evaluating quorum and executing programs.
	Workers int `yaml:"workers"`

	// QueueSize is the capacity of the evaluation queue.
	QueueSize int `yaml:"queue_size"`

	// ExecutionTimeout bounds a single engine invocation. An execution that
	// exceeds it finishes as failed.
	ExecutionTimeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the worker settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		QueueSize:        256,
		ExecutionTimeout: 10 * time.Minute,
	}
}

// Orchestrator drives the collaboration lifecycle: party registration,
// upload confirmation, quorum detection, execution and notification.
//
// Confirming an upload only enqueues a quorum evaluation; the outcome of the
// execution is observable through ResultIDs. Exactly-once execution relies on
// Store.CreateResult being a unique insert, so several orchestrators may
// share one database.
type Orchestrator struct {
	store    Store
	engine   ComputationEngine
	notifier OutputNotifier
	log      *slog.Logger
	cfg      Config

	queue chan int64
	wg    sync.WaitGroup

	// mu orders wg.Add in enqueue against wg.Wait in Stop.
	mu      sync.Mutex
	stopped bool

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewOrchestrator creates an orchestrator. Workers do not run until Start.
func NewOrchestrator(store Store, engine ComputationEngine, notifier OutputNotifier, log *slog.Logger, cfg Config) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = defaults.ExecutionTimeout
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:    store,
		engine:   engine,
		notifier: notifier,
		log:      log.With("component", "orchestrator"),
		cfg:      cfg,
		queue:    make(chan int64, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the execution workers and re-evaluates collaborations that
// have no result yet, which picks up quorums reached before a restart.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		go func() {
			select {
			case <-ctx.Done():
				o.Stop()
			case <-o.ctx.Done():
			}
		}()

		for i := 0; i < o.cfg.Workers; i++ {
			o.wg.Add(1)
			go o.worker()
		}

		o.recoverPending()
	})
}

// Stop stops scheduling new evaluations and waits for running executions
// to finish. A started execution is not interrupted; it is bounded by
// ExecutionTimeout only. Queued evaluations are dropped and picked up again
// by the next Start.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		o.stopped = true
		o.cancel()
		o.mu.Unlock()
		o.wg.Wait()
	})
}

// Ready reports an error once the orchestrator is stopped or its store is
// unreachable. It backs the coordinator's /readyz endpoint.
func (o *Orchestrator) Ready(ctx context.Context) error {
	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()
	if stopped {
		return errors.New("orchestrator stopped")
	}
	if err := o.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case collabID := <-o.queue:
			o.evaluateQuorum(o.ctx, collabID)
		}
	}
}

// enqueue schedules a quorum evaluation without blocking the caller.
func (o *Orchestrator) enqueue(collabID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		o.log.Warn("Orchestrator stopped, quorum evaluation skipped", "collaboration", collabID)
		return
	}
	select {
	case o.queue <- collabID:
	default:
		o.log.Warn("Execution queue full, evaluating quorum in a detached goroutine", "collaboration", collabID)
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.evaluateQuorum(o.ctx, collabID)
		}()
	}
}

func (o *Orchestrator) recoverPending() {
	ctx, cancel := context.WithTimeout(o.ctx, 30*time.Second)
	defer cancel()

	collabs, err := o.store.ListCollaborations(ctx)
	if err != nil {
		o.log.Error("Could not list collaborations for recovery", "err", err)
		return
	}
	for _, c := range collabs {
		_, err := o.store.GetResult(ctx, c.ID)
		if errors.Is(err, ErrRecordNotFound) {
			o.enqueue(c.ID)
		}
	}
}

// CreateCollaboration stores the provider configuration and the collaboration.
func (o *Orchestrator) CreateCollaboration(ctx context.Context, n *NewCollaboration) (*Collaboration, error) {
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCollaboration, err)
	}

	cfg, err := o.store.CreateProviderConfig(ctx, n.Config)
	if err != nil {
		return nil, fmt.Errorf("storing provider config: %w", err)
	}

	collab, err := o.store.CreateCollaboration(ctx, &Collaboration{
		Name:             n.Name,
		Program:          n.Program,
		InputSchema:      n.InputSchema,
		ParticipantCount: n.ParticipantCount,
		ConfigID:         cfg.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("storing collaboration: %w", err)
	}

	o.log.Info("Collaboration created", "collaboration", collab.ID, "name", collab.Name, "parties", collab.ParticipantCount)
	return collab, nil
}

// GetCollaboration returns one collaboration.
func (o *Orchestrator) GetCollaboration(ctx context.Context, collabID int64) (*Collaboration, error) {
	c, err := o.store.GetCollaboration(ctx, collabID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrCollaborationNotFound, collabID)
	}
	return c, err
}

// ListCollaborations returns all collaborations.
func (o *Orchestrator) ListCollaborations(ctx context.Context) ([]*Collaboration, error) {
	return o.store.ListCollaborations(ctx)
}

// DeleteCollaboration removes a collaboration together with its participations and result.
func (o *Orchestrator) DeleteCollaboration(ctx context.Context, collabID int64) error {
	err := o.store.DeleteCollaboration(ctx, collabID)
	if errors.Is(err, ErrRecordNotFound) {
		return fmt.Errorf("%w: %d", ErrCollaborationNotFound, collabID)
	}
	if err != nil {
		return err
	}
	o.log.Info("Collaboration deleted", "collaboration", collabID)
	return nil
}

// ComputeConfig returns the provider configuration of a collaboration.
func (o *Orchestrator) ComputeConfig(ctx context.Context, collabID int64) (*ProviderConfig, error) {
	c, err := o.GetCollaboration(ctx, collabID)
	if err != nil {
		return nil, err
	}
	return o.store.GetProviderConfig(ctx, c.ConfigID)
}

// RegisterInputParty adds a party as input provider. A second registration
// returns the existing participation together with ErrDuplicateParticipant.
func (o *Orchestrator) RegisterInputParty(ctx context.Context, collabID, partyID int64) (*Participation, error) {
	if _, err := o.GetCollaboration(ctx, collabID); err != nil {
		return nil, err
	}

	p, err := o.store.CreateParticipation(ctx, collabID, partyID)
	switch {
	case errors.Is(err, ErrRecordExists):
		existing, getErr := o.store.GetParticipation(ctx, collabID, partyID)
		if getErr != nil {
			return nil, getErr
		}
		return existing, ErrDuplicateParticipant
	case errors.Is(err, ErrRecordNotFound):
		// Deleted between the lookup and the insert.
		return nil, fmt.Errorf("%w: %d", ErrCollaborationNotFound, collabID)
	case err != nil:
		return nil, err
	}

	o.log.Info("Input party registered", "collaboration", collabID, "party", partyID)
	return p, nil
}

// UnregisterInputParty withdraws a party that has not uploaded yet.
func (o *Orchestrator) UnregisterInputParty(ctx context.Context, collabID, partyID int64) error {
	err := o.store.DeleteParticipation(ctx, collabID, partyID)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return fmt.Errorf("%w: party %d in collaboration %d", ErrParticipantNotRegistered, partyID, collabID)
	case errors.Is(err, ErrRecordConflict):
		return fmt.Errorf("%w: party %d in collaboration %d", ErrAlreadyUploaded, partyID, collabID)
	case err != nil:
		return err
	}

	o.log.Info("Input party unregistered", "collaboration", collabID, "party", partyID)
	return nil
}

// ListInputParties returns the participations of a collaboration.
func (o *Orchestrator) ListInputParties(ctx context.Context, collabID int64) ([]*Participation, error) {
	if _, err := o.GetCollaboration(ctx, collabID); err != nil {
		return nil, err
	}
	return o.store.ListParticipations(ctx, collabID)
}

// RegisterOutputParty appends endpoint to the notification list. Duplicates are kept.
func (o *Orchestrator) RegisterOutputParty(ctx context.Context, collabID, partyID int64, endpoint string) error {
	err := o.store.AppendOutputParty(ctx, collabID, endpoint)
	if errors.Is(err, ErrRecordNotFound) {
		return fmt.Errorf("%w: %d", ErrCollaborationNotFound, collabID)
	}
	if err != nil {
		return err
	}

	o.log.Info("Output party registered", "collaboration", collabID, "party", partyID, "endpoint", endpoint)
	return nil
}

// ConfirmUpload records the share ids of a party and schedules a quorum
// evaluation. The result never reflects the state of the execution.
func (o *Orchestrator) ConfirmUpload(ctx context.Context, collabID, partyID int64, shareIDs []string) (*Participation, error) {
	if len(shareIDs) == 0 {
		return nil, ErrInvalidUpload
	}

	p, err := o.store.ConfirmUpload(ctx, collabID, partyID, shareIDs)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return nil, fmt.Errorf("%w: party %d in collaboration %d", ErrParticipantNotRegistered, partyID, collabID)
	case errors.Is(err, ErrRecordConflict):
		return nil, fmt.Errorf("%w: party %d in collaboration %d", ErrAlreadyUploaded, partyID, collabID)
	case err != nil:
		return nil, err
	}

	o.log.Info("Upload confirmed", "collaboration", collabID, "party", partyID, "secrets", len(shareIDs))
	o.enqueue(collabID)
	return p, nil
}

// ResultIDs returns the result secret ids of a finished collaboration.
func (o *Orchestrator) ResultIDs(ctx context.Context, collabID int64) ([]string, error) {
	if _, err := o.GetCollaboration(ctx, collabID); err != nil {
		return nil, err
	}

	r, err := o.store.GetResult(ctx, collabID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrProcessingNotFinished
	}
	if err != nil {
		return nil, err
	}

	switch {
	case !r.Finished:
		return nil, ErrProcessingNotFinished
	case r.Error != nil:
		return nil, &ExecutionFailedError{Message: *r.Error}
	default:
		return r.ResultIDs, nil
	}
}

func (o *Orchestrator) evaluateQuorum(ctx context.Context, collabID int64) {
	log := o.log.With("collaboration", collabID)
	log.Debug("Checking if collaboration is ready for execution")

	collab, err := o.store.GetCollaboration(ctx, collabID)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			log.Error("Could not load collaboration", "err", err)
		}
		return
	}

	participations, err := o.store.ListParticipations(ctx, collabID)
	if err != nil {
		log.Error("Could not list participations", "err", err)
		return
	}

	var shareIDs []string
	uploaded := 0
	for _, p := range participations {
		if p.Uploaded() {
			uploaded++
			shareIDs = append(shareIDs, p.ShareIDs...)
		}
	}
	if uploaded < collab.ParticipantCount {
		log.Info("Not enough uploads to start the computation", "uploaded", uploaded, "required", collab.ParticipantCount)
		return
	}

	err = o.store.CreateResult(ctx, collabID)
	if errors.Is(err, ErrRecordExists) {
		log.Debug("Execution already started")
		return
	}
	if err != nil {
		log.Error("Could not mark execution as started", "err", err)
		return
	}

	// Once marked as started the execution runs to completion, shutdown included.
	o.execute(context.WithoutCancel(ctx), log, collab, shareIDs)
}

func (o *Orchestrator) execute(ctx context.Context, log *slog.Logger, collab *Collaboration, shareIDs []string) {
	log.Info("Starting MPC execution", "name", collab.Name, "secrets", len(shareIDs))

	var (
		resultID string
		execErr  error
	)
	cfg, err := o.store.GetProviderConfig(ctx, collab.ConfigID)
	if err != nil {
		execErr = fmt.Errorf("loading provider config: %w", err)
	} else {
		start := time.Now()
		resultID, execErr = o.runEngine(ctx, collab.Program, cfg, shareIDs)
		metrics.ExecutionDuration.Observe(time.Since(start).Seconds())
	}

	finishCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result := ExecutionResult{CollaborationID: collab.ID}
	if execErr != nil {
		msg := execErr.Error()
		log.Warn("MPC execution failed", "err", msg)
		metrics.Executions.WithLabelValues(metrics.OutcomeFailure).Inc()

		err = o.store.FinishResult(finishCtx, collab.ID, nil, &msg)
		result.Message = msg
		result.Code = http.StatusInternalServerError
	} else {
		log.Info("MPC execution finished", "result", resultID)
		metrics.Executions.WithLabelValues(metrics.OutcomeSuccess).Inc()

		err = o.store.FinishResult(finishCtx, collab.ID, []string{resultID}, nil)
		result.Message = "Success"
		result.Code = http.StatusOK
		result.SecretID = &resultID
	}
	if err != nil {
		log.Error("Could not store execution result", "err", err)
		return
	}

	if len(collab.OutputParties) > 0 {
		o.notifier.Notify(ctx, collab.OutputParties, result)
	}
}

// runEngine calls the engine under the execution deadline. Engines that do
// not honour the context are abandoned when the deadline passes.
func (o *Orchestrator) runEngine(ctx context.Context, program []byte, cfg *ProviderConfig, shareIDs []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ExecutionTimeout)
	defer cancel()

	type outcome struct {
		id  string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		id, err := o.engine.Execute(ctx, program, cfg, shareIDs)
		done <- outcome{id, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return "", o.contextFailure(ctx)
		}
		return res.id, res.err
	case <-ctx.Done():
		return "", o.contextFailure(ctx)
	}
}

func (o *Orchestrator) contextFailure(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("execution timed out after %s", o.cfg.ExecutionTimeout)
	}
	return fmt.Errorf("execution interrupted: %w", ctx.Err())
}
