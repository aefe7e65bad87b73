package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reelsight/internal/events"
	"reelsight/internal/job"
	"reelsight/internal/logging"
	"reelsight/internal/progress"
	"reelsight/internal/services"
	"reelsight/internal/stage"
	"reelsight/internal/storage"
)

// Handler is the contract every stage implements.
type Handler = stage.Handler

var (
	// ErrNoStages is returned by NewMachine without handlers.
	ErrNoStages = errors.New("pipeline: no stages configured")
	// ErrUnknownStage is returned when a resume point names no stage.
	ErrUnknownStage = errors.New("pipeline: unknown stage")
	// ErrNotResumable is returned when the artifact a stage needs is missing.
	ErrNotResumable = errors.New("pipeline: stage cannot be resumed")
)

// Publisher receives job events.
type Publisher interface {
	Publish(jobID string, typ events.Type, snapshot job.Snapshot, detail *events.Detail) events.Event
}

// Options tune a Machine.
type Options struct {
	Weights map[string]int
	// StageTimeout bounds each handler call. Zero disables the deadline.
	StageTimeout time.Duration
	Now          func() time.Time
}

// Machine runs a fixed, ordered list of handlers.
type Machine struct {
	handlers     []Handler
	index        map[string]int
	weights      map[string]int
	stageTimeout time.Duration
	store        storage.Store
	publisher    Publisher
	logger       *slog.Logger
	now          func() time.Time
}

// NewMachine validates the handler list and returns a machine.
func NewMachine(handlers []Handler, store storage.Store, publisher Publisher, opts Options, logger *slog.Logger) (*Machine, error) {
	if len(handlers) == 0 {
		return nil, ErrNoStages
	}
	if store == nil {
		return nil, errors.New("pipeline: store required")
	}
	index := make(map[string]int, len(handlers))
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("pipeline: stage %d has no handler", i)
		}
		name := strings.TrimSpace(h.Name())
		if name == "" {
			return nil, fmt.Errorf("pipeline: stage %d has no name", i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate stage %q", name)
		}
		index[name] = i
	}
	weights := make(map[string]int, len(opts.Weights))
	for k, v := range opts.Weights {
		weights[k] = v
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Machine{
		handlers:     append([]Handler(nil), handlers...),
		index:        index,
		weights:      weights,
		stageTimeout: opts.StageTimeout,
		store:        store,
		publisher:    publisher,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		now:          now,
	}, nil
}

// StageNames returns the pipeline order.
func (m *Machine) StageNames() []string {
	names := make([]string, len(m.handlers))
	for i, h := range m.handlers {
		names[i] = h.Name()
	}
	return names
}

// Handlers returns the configured handlers in order.
func (m *Machine) Handlers() []Handler {
	return append([]Handler(nil), m.handlers...)
}

// CheckResumable verifies that a job sharing workspace can start at from.
func (m *Machine) CheckResumable(ctx context.Context, workspace, from string) error {
	idx, ok := m.index[from]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStage, from)
	}
	if idx == 0 {
		return nil
	}
	if _, ok := m.handlers[idx].(stage.InputDecoder); !ok {
		return fmt.Errorf("%w: %s cannot rebuild its input", ErrNotResumable, from)
	}
	prev := m.handlers[idx-1].Name()
	exists, err := m.store.Exists(ctx, storage.StageKey(workspace, prev))
	if err != nil {
		return fmt.Errorf("check %s artifact: %w", prev, err)
	}
	if !exists {
		return fmt.Errorf("%w: no stored output for %s", ErrNotResumable, prev)
	}
	return nil
}

// Run executes the pipeline for j starting at from (empty means the first
// stage). It returns the error that ended the run, or nil on completion.
// Terminal job state and events are handled here; callers only inspect the
// job afterwards.
func (m *Machine) Run(ctx context.Context, j *job.Job, from string) error {
	ctx = services.WithJobID(ctx, j.ID())
	logger := logging.WithContext(ctx, m.logger)

	start := 0
	if strings.TrimSpace(from) != "" {
		idx, ok := m.index[from]
		if !ok {
			err := fmt.Errorf("%w: %q", ErrUnknownStage, from)
			m.fail(ctx, j, "", err)
			return err
		}
		start = idx
	}

	outputs := make([]StageOutput, len(m.handlers))
	live := make([]any, len(m.handlers))
	if start > 0 {
		seed := j.ProgressStages()
		for i := 0; i < start; i++ {
			seed[i].Percent = 100
		}
		j.SkipCompleted(m.handlers[start].Name(), progress.Aggregate(seed, m.weights, progress.Stage{}))
		for i := 0; i < start; i++ {
			name := m.handlers[i].Name()
			raw, err := m.store.Read(ctx, storage.StageKey(j.Workspace(), name))
			if err != nil {
				err = services.Wrap(services.ErrValidation, m.handlers[start].Name(), "load artifact",
					fmt.Sprintf("Stored output of %s is unavailable", name), err)
				m.fail(ctx, j, m.handlers[start].Name(), err)
				return err
			}
			outputs[i] = StageOutput{Name: name, Output: raw}
		}
	}

	input, err := m.initialInput(ctx, j, start, outputs)
	if err != nil {
		m.fail(ctx, j, m.handlers[start].Name(), err)
		return err
	}

	tracker := progress.NewTracker(j.Progress())
	sampler := logging.NewProgressSampler(25)
	last := len(m.handlers) - 1

	for i := start; i <= last; i++ {
		h := m.handlers[i]
		name := h.Name()
		if err := ctx.Err(); err != nil {
			m.cancelled(j)
			logger.Debug("pipeline stopped between stages", logging.String(logging.FieldStage, name))
			return cancelledError(name, err)
		}

		if !j.StartStage(name, m.now()) {
			return cancelledError(name, context.Canceled)
		}
		j.UpdateStage(name, 0, Label(name)+" started", tracker.Observe(m.aggregate(j, progress.Stage{Name: name})))
		m.publish(j, events.TypeSnapshot, nil)

		stageCtx := services.WithStage(ctx, name)
		stageLogger := logging.WithContext(stageCtx, m.logger)
		stageStart := time.Now()
		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.Int("stage_index", i),
		)

		output, execErr := m.execute(stageCtx, h, input, func(pct float64, msg string) {
			pct = progress.Clamp(pct)
			agg := tracker.Observe(m.aggregate(j, progress.Stage{Name: name, Percent: pct}))
			if !j.UpdateStage(name, pct, msg, agg) {
				return
			}
			m.publish(j, events.TypeSnapshot, nil)
			if sampler.ShouldLog(name, pct) {
				stageLogger.Debug("stage progress",
					logging.Float64(logging.FieldProgressPercent, pct),
					logging.String(logging.FieldProgressMessage, msg),
					logging.Int("job_progress", agg),
				)
			}
		})

		if execErr != nil {
			if ctx.Err() != nil {
				m.cancelled(j)
				stageLogger.Debug("stage interrupted by cancellation", logging.Error(execErr))
				return cancelledError(name, ctx.Err())
			}
			m.fail(stageCtx, j, name, execErr)
			return execErr
		}

		// Cancellation that lands while the final stage is running does not
		// discard its output; earlier stages stop here.
		persistCtx := ctx
		if ctx.Err() != nil {
			if i != last {
				m.cancelled(j)
				return cancelledError(name, ctx.Err())
			}
			persistCtx = context.WithoutCancel(ctx)
		}

		raw, err := json.Marshal(output)
		if err != nil {
			err = services.Wrap(services.ErrDefect, name, "encode output", "Stage output is not serializable", err)
			m.fail(stageCtx, j, name, err)
			return err
		}
		if err := m.store.Write(persistCtx, storage.StageKey(j.Workspace(), name), raw); err != nil {
			err = services.Wrap(services.ErrTransient, name, "persist output", "Failed to store stage output", err)
			m.fail(stageCtx, j, name, err)
			return err
		}
		outputs[i] = StageOutput{Name: name, Output: raw}
		live[i] = output

		if j.CompleteStage(name, tracker.Observe(m.aggregate(j, progress.Stage{Name: name, Percent: 100})), m.now()) {
			m.publish(j, events.TypeSnapshot, nil)
		}
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", time.Since(stageStart)),
		)
		input = output
	}

	return m.complete(context.WithoutCancel(ctx), j, outputs, live)
}

func (m *Machine) initialInput(ctx context.Context, j *job.Job, start int, outputs []StageOutput) (any, error) {
	if start == 0 {
		in := j.Input()
		return stage.Source{
			JobID:       j.ID(),
			Workspace:   j.Workspace(),
			Key:         in.Key,
			Filename:    in.Filename,
			ContentType: in.ContentType,
			SizeBytes:   in.SizeBytes,
		}, nil
	}
	h := m.handlers[start]
	decoder, ok := h.(stage.InputDecoder)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, h.Name(), "resume", "Stage cannot rebuild its input", ErrNotResumable)
	}
	return decoder.DecodeInput(outputs[start-1].Output)
}

func (m *Machine) execute(ctx context.Context, h Handler, input any, report stage.ReportFunc) (output any, err error) {
	if m.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.stageTimeout)
		defer cancel()
	}
	output, err = h.Execute(ctx, input, report)
	if err == nil && ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// A handler that ignores its deadline still fails the stage.
		err = services.Wrap(services.ErrTimeout, h.Name(), "execute", "Stage exceeded its deadline", ctx.Err())
	}
	return output, err
}

func (m *Machine) complete(ctx context.Context, j *job.Job, outputs []StageOutput, live []any) error {
	logger := logging.WithContext(ctx, m.logger)
	lastName := m.handlers[len(m.handlers)-1].Name()
	completedAt := m.now().UTC()
	snap := j.Snapshot()

	result := Result{
		JobID:       j.ID(),
		Owner:       j.Owner(),
		ResumedFrom: snap.ResumedFrom,
		Input:       j.Input(),
		Report:      outputs[len(outputs)-1].Output,
		Stages:      outputs,
		Stats: Stats{
			ElapsedMs:   completedAt.Sub(snap.StartedAt).Milliseconds(),
			StartedAt:   snap.StartedAt,
			CompletedAt: completedAt,
		},
	}
	for i := range outputs {
		if units, ok := unitStatsFrom(live[i], outputs[i].Output); ok {
			result.Stats.Units = units
			break
		}
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err == nil {
		key := storage.ResultKey(j.ID())
		if err = m.store.Write(ctx, key, data); err == nil {
			if j.Complete(key, completedAt) {
				m.publish(j, events.TypeCompleted, &events.Detail{ResultKey: key})
			}
			logger.Info("job completed",
				logging.String(logging.FieldEventType, "job_complete"),
				logging.String("result_key", key),
				logging.Int64("elapsed_ms", result.Stats.ElapsedMs),
				logging.Int("units_failed", result.Stats.Units.Failed),
			)
			return nil
		}
	}
	err = services.Wrap(services.ErrTransient, lastName, "write result", "Failed to store result document", err)
	m.fail(services.WithStage(ctx, lastName), j, lastName, err)
	return err
}

func (m *Machine) fail(ctx context.Context, j *job.Job, stageName string, err error) {
	details := services.Details(err)
	if !j.Fail(stageName, details.Code, details.Message, m.now()) {
		return
	}
	m.publish(j, events.TypeFailed, &events.Detail{Stage: stageName, ErrorCode: details.Code, Error: details.Message})
	logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "stage failed", "stage_failure",
		logging.String(logging.FieldErrorCode, details.Code),
		logging.String(logging.FieldErrorHint, failureHint(details.Code)),
		logging.Alert("stage_failure"),
		logging.Error(err),
	)
}

// cancelled covers cancellation that did not come through the supervisor,
// such as a parent context ending.
func (m *Machine) cancelled(j *job.Job) {
	if j.Cancel(m.now()) {
		m.publish(j, events.TypeCancelled, nil)
	}
}

// cancelledError keeps both services.ErrCancelled and the context cause
// visible to errors.Is.
func cancelledError(stageName string, cause error) error {
	return services.Wrap(services.ErrCancelled, stageName, "run", "Job cancelled", cause)
}

func (m *Machine) publish(j *job.Job, typ events.Type, detail *events.Detail) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(j.ID(), typ, j.Snapshot(), detail)
}

func (m *Machine) aggregate(j *job.Job, active progress.Stage) int {
	return progress.Aggregate(j.ProgressStages(), m.weights, active)
}

func failureHint(code string) string {
	switch code {
	case "external_tool":
		return "check ffmpeg and the inference provider"
	case "timeout":
		return "raise pipeline.stage_timeout_seconds or check provider latency"
	case "validation":
		return "resume from an earlier stage or resubmit the media"
	default:
		return "resume the job from the failed stage"
	}
}
