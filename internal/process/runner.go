// Package process runs import processes to completion. Every state change of
// a process is stored as a numbered step, so a process can be continued after
// the user has answered its questions or after a restart.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// MaxRuns limits the number of immediate actions one Run call follows.
const MaxRuns = 100

var (
	// ErrBusy is returned when another call is already working on the process.
	ErrBusy = errors.New("process is busy")
	// ErrNotRunnable is returned for input to a process that has finished.
	ErrNotRunnable = errors.New("process cannot be continued")
)

// ProgressFunc is called after every stored step.
type ProgressFunc func(p *model.Process, directions importer.Directions)

// CheckpointFunc is called before operations that change the books.
type CheckpointFunc func(ctx context.Context, operation string) error

// Option configures a Runner.
type Option func(*Runner)

// WithProgress sets a callback for progress reporting.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithCheckpoint sets a callback run before execution and rollback.
func WithCheckpoint(fn CheckpointFunc) Option {
	return func(r *Runner) { r.checkpoint = fn }
}

// WithClock replaces the time source used for step timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner moves processes through the import pipeline.
type Runner struct {
	store      service.ProcessStore
	pipeline   *importer.Pipeline
	locker     *Locker
	logger     *slog.Logger
	progress   ProgressFunc
	checkpoint CheckpointFunc
	now        func() time.Time
}

// New creates a runner storing processes in store.
func New(store service.ProcessStore, pipeline *importer.Pipeline, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		store:    store,
		pipeline: pipeline,
		locker:   NewLocker(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new process for files together with its initial step.
func (r *Runner) Create(ctx context.Context, name string, files []model.ImportFile, config model.ImportConfig) (*model.Process, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files to import", common.ErrInvalidFile)
	}
	if name == "" {
		name = files[0].Name
	}
	if config == nil {
		config = model.ImportConfig{}
	}

	state := importer.NewState(files...)
	directions, err := r.pipeline.GetDirections(ctx, state, config)
	if err != nil {
		return nil, err
	}

	p := &model.Process{
		Name:   name,
		Config: config,
		Files:  files,
		Status: model.StatusIncomplete,
	}
	if err := r.store.CreateProcess(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create process: %w", err)
	}
	step, err := r.newStep(p.ID, 0, state, directions)
	if err != nil {
		return nil, err
	}
	if err := r.store.AddStep(ctx, step); err != nil {
		return nil, fmt.Errorf("failed to store initial step: %w", err)
	}

	r.logger.Info("Created import process", "process", p.ID, "name", p.Name, "files", len(files))
	return p, nil
}

// Run follows immediate directions until the process needs input, finishes
// or crashes. Failures of the import itself are recorded in the process and
// do not return an error.
func (r *Runner) Run(ctx context.Context, id int64) (*model.Process, error) {
	if !r.locker.TryLock(id) {
		return nil, fmt.Errorf("%w: %d", ErrBusy, id)
	}
	defer r.locker.Unlock(id)

	p, err := r.store.GetProcess(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRun(p) {
		return p, fmt.Errorf("%w: process %d is %s", ErrNotRunnable, id, p.Status)
	}
	return p, r.run(ctx, p)
}

// Input applies an action given by the user and then continues running.
// A retry is also accepted for a crashed process.
func (r *Runner) Input(ctx context.Context, id int64, action importer.Action) (*model.Process, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	if action.Rollback {
		return r.Rollback(ctx, id)
	}
	if !r.locker.TryLock(id) {
		return nil, fmt.Errorf("%w: %d", ErrBusy, id)
	}
	defer r.locker.Unlock(id)

	p, err := r.store.GetProcess(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case canRun(p):
	case p.Status == model.StatusCrashed && action.Retry:
		p.Error = ""
	default:
		return p, fmt.Errorf("%w: process %d is %s", ErrNotRunnable, id, p.Status)
	}

	r.logger.Info("Handling input", "process", id, "action", action.String())
	step, state, _, err := r.current(ctx, p)
	if err != nil {
		return p, err
	}
	if err := r.apply(ctx, p, step, state, action); err != nil {
		return p, err
	}
	if p.Status == model.StatusCrashed {
		return p, nil
	}
	return p, r.run(ctx, p)
}

// Rollback reverts everything an executed process has stored.
func (r *Runner) Rollback(ctx context.Context, id int64) (*model.Process, error) {
	if !r.locker.TryLock(id) {
		return nil, fmt.Errorf("%w: %d", ErrBusy, id)
	}
	defer r.locker.Unlock(id)

	p, err := r.store.GetProcess(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.CurrentStep < 1 {
		return p, fmt.Errorf("%w: process %d has only its initial step", common.ErrBadState, id)
	}
	step, state, _, err := r.current(ctx, p)
	if err != nil {
		return p, err
	}

	r.logger.Info("Rolling back process", "process", id, "step", step.Number)
	if r.checkpoint != nil {
		if err := r.checkpoint(ctx, "rollback"); err != nil {
			return p, fmt.Errorf("failed to create checkpoint: %w", err)
		}
	}
	action := importer.RollbackAction()
	next, config, directions, err := r.pipeline.Dispatch(ctx, p.ID, state, p.Config, action)
	if err != nil {
		return p, err
	}
	if err := r.proceed(ctx, p, step, action, next, config, directions); err != nil {
		return p, err
	}
	r.logger.Info("Process rolled back", "process", id)
	return p, nil
}

// State returns the current state of a process and its directions.
func (r *Runner) State(ctx context.Context, id int64) (importer.State, importer.Directions, error) {
	p, err := r.store.GetProcess(ctx, id)
	if err != nil {
		return nil, importer.Directions{}, err
	}
	_, state, directions, err := r.current(ctx, p)
	return state, directions, err
}

// Steps returns the stored history of a process.
func (r *Runner) Steps(ctx context.Context, id int64) ([]model.ProcessStep, error) {
	return r.store.GetSteps(ctx, id)
}

func (r *Runner) run(ctx context.Context, p *model.Process) error {
	for runs := 0; ; runs++ {
		if runs >= MaxRuns {
			r.logger.Error("Maximum number of runs reached", "process", p.ID, "runs", MaxRuns)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		step, state, directions, err := r.current(ctx, p)
		if err != nil {
			return err
		}
		if !directions.IsImmediate() {
			r.logger.Info("Process stopped", "process", p.ID, "directions", directions.String())
			return r.updateStatus(ctx, p, state, directions)
		}
		if err := r.apply(ctx, p, step, state, *directions.Action); err != nil {
			return err
		}
		if p.Status == model.StatusCrashed {
			return nil
		}
	}
}

// apply dispatches one action. A stage failure crashes the process, input
// the pipeline asks for is stored as new directions on the current step.
func (r *Runner) apply(ctx context.Context, p *model.Process, step *model.ProcessStep, state importer.State, action importer.Action) error {
	if r.checkpoint != nil && state.Stage() == importer.StageAnalyzed && action.Configure == nil && action.Answer == nil {
		if err := r.checkpoint(ctx, "execution"); err != nil {
			return fmt.Errorf("failed to create checkpoint: %w", err)
		}
	}

	next, config, directions, err := r.pipeline.Dispatch(ctx, p.ID, state, p.Config, action)
	switch {
	case errors.Is(err, importer.ErrInvalidAction),
		errors.Is(err, importer.ErrInvalidStageTransition),
		errors.Is(err, importer.ErrProcessFinished):
		return err
	case err != nil:
		return r.crashed(ctx, p, step, err)
	}

	if next.Stage() == state.Stage() && action.Configure == nil && action.Answer == nil {
		// The operation needs input before it can proceed.
		step.Directions, err = json.Marshal(directions)
		if err != nil {
			return fmt.Errorf("failed to encode directions: %w", err)
		}
		if err := r.store.UpdateStep(ctx, step); err != nil {
			return fmt.Errorf("failed to store directions: %w", err)
		}
		r.report(p, directions)
		return r.updateStatus(ctx, p, next, directions)
	}
	return r.proceed(ctx, p, step, action, next, config, directions)
}

// proceed finishes the current step with action and stores the next one.
func (r *Runner) proceed(ctx context.Context, p *model.Process, current *model.ProcessStep, action importer.Action, next importer.State, config model.ImportConfig, directions importer.Directions) error {
	var err error
	finished := r.now()
	current.Finished = &finished
	if current.Action, err = json.Marshal(action); err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}
	if err := r.store.UpdateStep(ctx, current); err != nil {
		return fmt.Errorf("failed to finish step %d: %w", current.Number, err)
	}

	step, err := r.newStep(p.ID, current.Number+1, next, directions)
	if err != nil {
		return err
	}
	if err := r.store.AddStep(ctx, step); err != nil {
		return fmt.Errorf("failed to store step %d: %w", step.Number, err)
	}
	p.CurrentStep = step.Number
	p.Config = config
	r.logger.Info("Proceeded to new step", "process", p.ID, "step", step.Number, "stage", next.Stage())
	r.report(p, directions)
	return r.updateStatus(ctx, p, next, directions)
}

// crashed records err as the reason the process stopped.
func (r *Runner) crashed(ctx context.Context, p *model.Process, step *model.ProcessStep, cause error) error {
	r.logger.Error("Process crashed", "process", p.ID, "step", step.Number, "error", cause)
	finished := r.now()
	step.Finished = &finished
	if err := r.store.UpdateStep(ctx, step); err != nil {
		return fmt.Errorf("failed to finish step %d: %w", step.Number, err)
	}
	p.Error = cause.Error()
	p.Status = model.StatusCrashed
	if err := r.store.UpdateProcess(ctx, p); err != nil {
		return fmt.Errorf("failed to store crash of process %d: %w", p.ID, err)
	}
	return nil
}

func (r *Runner) updateStatus(ctx context.Context, p *model.Process, state importer.State, directions importer.Directions) error {
	status := resolveStatus(p, state, directions)
	if status != p.Status {
		r.logger.Info("Process status changed", "process", p.ID, "from", p.Status, "to", status)
	}
	p.Status = status
	if err := r.store.UpdateProcess(ctx, p); err != nil {
		return fmt.Errorf("failed to update process %d: %w", p.ID, err)
	}
	return nil
}

func (r *Runner) report(p *model.Process, directions importer.Directions) {
	if r.progress != nil {
		r.progress(p, directions)
	}
}

// current loads the current step with its decoded state and directions.
// Steps stored without directions get them from the pipeline.
func (r *Runner) current(ctx context.Context, p *model.Process) (*model.ProcessStep, importer.State, importer.Directions, error) {
	step, err := r.store.GetStep(ctx, p.ID, p.CurrentStep)
	if err != nil {
		return nil, nil, importer.Directions{}, fmt.Errorf("failed to load step %d of process %d: %w", p.CurrentStep, p.ID, err)
	}
	state, err := importer.DecodeState(step.State)
	if err != nil {
		return nil, nil, importer.Directions{}, err
	}

	var directions importer.Directions
	if len(step.Directions) > 0 {
		if err := json.Unmarshal(step.Directions, &directions); err != nil {
			return nil, nil, importer.Directions{}, fmt.Errorf("failed to decode directions: %w", err)
		}
		return step, state, directions, nil
	}
	directions, err = r.pipeline.GetDirections(ctx, state, p.Config)
	return step, state, directions, err
}

func (r *Runner) newStep(processID int64, number int, state importer.State, directions importer.Directions) (*model.ProcessStep, error) {
	stateJSON, err := importer.EncodeState(state)
	if err != nil {
		return nil, err
	}
	directionsJSON, err := json.Marshal(directions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode directions: %w", err)
	}
	return &model.ProcessStep{
		ProcessID:  processID,
		Number:     number,
		Started:    r.now(),
		State:      stateJSON,
		Directions: directionsJSON,
	}, nil
}

func canRun(p *model.Process) bool {
	return p.Status == model.StatusIncomplete || p.Status == model.StatusWaiting
}

func resolveStatus(p *model.Process, state importer.State, directions importer.Directions) model.ProcessStatus {
	if p.Error != "" {
		return model.StatusCrashed
	}
	switch s := state.(type) {
	case *importer.RolledBackState:
		return model.StatusRolledBack
	case *importer.ExecutedState:
		if s.Summary()[model.ResultNotDone] > 0 {
			return model.StatusFailed
		}
		return model.StatusSucceeded
	}
	if directions.IsImmediate() {
		return model.StatusIncomplete
	}
	return model.StatusWaiting
}
