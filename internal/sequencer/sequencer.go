// Package sequencer runs a session's steps in order, one at a time, driven
// by a host's per-tick callback and its mode-change notifications.
//
// A Sequencer is not safe for concurrent use. Every method, including the
// hooks it calls, runs on the host's goroutine.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/kartlab/kartbench/internal/config"
	"github.com/kartlab/kartbench/internal/demo"
	"github.com/kartlab/kartbench/internal/evaluator"
	"github.com/kartlab/kartbench/internal/result"
	"github.com/kartlab/kartbench/internal/session"
	"github.com/kartlab/kartbench/internal/trainer"
)

type State int

const (
	Stopped State = iota
	Started
	Waiting
	Training
	Evaluating
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Started:
		return "started"
	case Waiting:
		return "waiting"
	case Training:
		return "training"
	case Evaluating:
		return "evaluating"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrRunning is returned by Start while a session is in progress.
var ErrRunning = errors.New("session already running")

// Host is the runtime that owns the simulation and its elevated mode.
// EnterMode and ExitMode request a transition; the host reports the
// transition later through NotifyModeEntered and NotifyModeExited.
type Host interface {
	EnterMode() error
	ExitMode() error
	InMode() bool
}

// Workspace sets up the simulation for a step.
type Workspace interface {
	PrepareTraining(index int, step *session.TrainingStep) error
	AttachTrainer(p trainer.Process)
	// PrepareEvaluation hands over an evaluator that the host starts and
	// ticks once the elevated mode is entered.
	PrepareEvaluation(index int, step *session.EvaluationStep, modelPath string, ev *evaluator.Evaluator) error
}

// Sink receives one record per finished evaluator run.
type Sink interface {
	Append(rec result.EvaluationRecord) error
}

type Options struct {
	Config    *config.Config
	Host      Host
	Workspace Workspace
	Launcher  trainer.Launcher
	Sink      Sink
	// Context bounds launched trainers. Defaults to context.Background.
	Context context.Context
	Now     func() time.Time
	Logger  *log.Logger
}

// Status is a snapshot for progress display.
type Status struct {
	State     State
	Cursor    int
	Steps     int
	EvalIndex int
	EvalCount int
	Err       error
}

type Sequencer struct {
	OnStepDispatched func(index int, step session.Step)
	OnTick           func()
	OnComplete       func()
	// OnEvaluated runs after each demo file of an evaluation step is scored
	// and recorded.
	OnEvaluated func(index int, file string, ev *evaluator.Evaluator)

	cfg       *config.Config
	host      Host
	workspace Workspace
	launcher  trainer.Launcher
	sink      Sink
	ctx       context.Context
	now       func() time.Time
	logger    *log.Logger

	state     State
	sess      *session.Session
	cursor    int
	evalIndex int
	evalFiles []string
	modelPath string
	current   *evaluator.Evaluator
	lastErr   error

	tasks       []*task
	tasksCtx    context.Context
	cancelTasks context.CancelFunc
	cancelEnter context.CancelFunc
}

func New(opts Options) *Sequencer {
	s := &Sequencer{
		cfg:       opts.Config,
		host:      opts.Host,
		workspace: opts.Workspace,
		launcher:  opts.Launcher,
		sink:      opts.Sink,
		ctx:       opts.Context,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s
}

func (s *Sequencer) State() State { return s.state }

func (s *Sequencer) Status() Status {
	st := Status{State: s.state, Cursor: s.cursor, EvalIndex: s.evalIndex, EvalCount: len(s.evalFiles), Err: s.lastErr}
	if s.sess != nil {
		st.Steps = len(s.sess.Steps)
	}
	return st
}

// Current is the evaluator of the evaluation in progress, if any.
func (s *Sequencer) Current() *evaluator.Evaluator { return s.current }

// Start validates sess and, on success, queues its first step for the next Tick.
func (s *Sequencer) Start(sess *session.Session) error {
	if s.state != Stopped {
		return ErrRunning
	}
	if err := sess.Check(s.cfg); err != nil {
		s.lastErr = err
		return err
	}
	s.sess = sess
	s.cursor = 0
	s.evalIndex = 0
	s.evalFiles = nil
	s.lastErr = nil
	s.resetTasks()
	s.state = Started
	return nil
}

// Stop abandons the session. A running trainer is left alone.
func (s *Sequencer) Stop() {
	inMode := s.host.InMode()
	s.state = Stopped
	s.cursor = 0
	s.evalIndex = 0
	s.evalFiles = nil
	if s.cancelTasks != nil {
		s.cancelTasks()
	}
	s.tasks = nil
	s.cancelEnter = nil
	if s.current != nil {
		s.current.Stop()
		s.current = nil
	}
	if inMode {
		if err := s.host.ExitMode(); err != nil {
			s.logger.Printf("warning: leaving mode on stop: %v", err)
		}
	}
}

// Tick runs due deferred tasks and dispatches the next step when idle.
func (s *Sequencer) Tick() {
	s.runDue()
	if s.state == Started {
		s.advance()
	}
	if s.OnTick != nil {
		s.OnTick()
	}
}

// NotifyModeEntered is called by the host once its elevated mode is running.
func (s *Sequencer) NotifyModeEntered() {
	if s.state != Waiting {
		return
	}
	s.dropEnter()
	switch s.sess.Steps[s.cursor].Type {
	case session.StepTraining:
		s.state = Training
	case session.StepEvaluation:
		s.state = Evaluating
	}
}

// NotifyModeExited is called by the host once its elevated mode has ended.
func (s *Sequencer) NotifyModeExited() {
	switch s.state {
	case Training:
		s.finishTraining()
	case Evaluating:
		if s.current != nil && s.current.State() != evaluator.Done {
			s.logger.Printf("warning: evaluation %d of %d for step %d left before finishing",
				s.evalIndex+1, len(s.evalFiles), s.cursor)
		}
		s.nextEvaluation()
	}
}

func (s *Sequencer) advance() {
	if s.cursor >= len(s.sess.Steps) {
		s.state = Stopped
		s.cursor = 0
		s.logger.Printf("session %s complete", s.sessionName())
		if s.OnComplete != nil {
			s.OnComplete()
		}
		return
	}
	step := s.sess.Steps[s.cursor]
	switch step.Type {
	case session.StepTraining:
		s.dispatchTraining(step)
	case session.StepEvaluation:
		s.dispatchEvaluation(step)
	}
}

func (s *Sequencer) dispatchTraining(step session.Step) {
	index := s.cursor
	t := step.Training
	s.state = Waiting
	if s.OnStepDispatched != nil {
		s.OnStepDispatched(index, step)
	}
	if err := s.workspace.PrepareTraining(index, t); err != nil {
		s.skipStep(fmt.Errorf("step %d: preparing training: %w", index, err))
		return
	}
	inv, err := trainer.BuildInvocation(s.cfg, s.sess.ActivationScript, t)
	if err != nil {
		s.skipStep(fmt.Errorf("step %d: %w", index, err))
		return
	}
	proc, err := s.launcher.Launch(s.ctx, inv)
	if err != nil {
		s.skipStep(fmt.Errorf("step %d: launching trainer: %w", index, err))
		return
	}
	s.logger.Printf("step %d: launched trainer %s", index, inv)
	s.workspace.AttachTrainer(proc)

	s.cancelEnter = s.schedule(s.cfg.Training.SettleDelay, func() {
		s.dropEnter()
		if s.state != Waiting || s.cursor != index {
			return
		}
		if err := s.host.EnterMode(); err != nil {
			s.skipStep(fmt.Errorf("step %d: entering mode: %w", index, err))
		}
	})
}

func (s *Sequencer) finishTraining() {
	t := s.sess.Steps[s.cursor].Training
	dst, err := trainer.CollectModel(s.cfg.TrainerResultsDir(), s.cfg.Paths.ModelsDir, t.RunID, s.cfg.Training.BehaviorName)
	if err != nil {
		s.lastErr = fmt.Errorf("step %d: collecting model: %w", s.cursor, err)
		s.logger.Printf("warning: %v", s.lastErr)
	} else {
		s.logger.Printf("step %d: model saved to %s", s.cursor, dst)
	}
	s.cursor++
	s.state = Started
}

func (s *Sequencer) dispatchEvaluation(step session.Step) {
	index := s.cursor
	e := step.Evaluation

	if s.evalIndex == 0 {
		modelPath, err := trainer.CheckModel(s.cfg.Paths.ModelsDir, e.ModelRunID)
		if err != nil {
			s.skipStep(fmt.Errorf("step %d: %w", index, err))
			return
		}
		files, err := demo.List(e.DemoFolder)
		if err != nil {
			s.skipStep(fmt.Errorf("step %d: %w", index, err))
			return
		}
		s.modelPath = modelPath
		s.evalFiles = files
	}

	file := s.evalFiles[s.evalIndex]
	ev := evaluator.New(evaluator.Options{
		DemoFile:    file,
		Evaluations: e.Evaluations,
		SplitAmount: e.SplitAmount,
		SplitLength: e.SplitLength,
		Logger:      s.logger,
	})
	s.state = Waiting
	if s.OnStepDispatched != nil {
		s.OnStepDispatched(index, step)
	}
	if ev.Disabled() {
		s.lastErr = fmt.Errorf("step %d: %s: %w", index, filepath.Base(file), ev.Err())
		s.nextEvaluation()
		return
	}
	evalIndex := s.evalIndex
	ev.OnComplete = func(sum evaluator.Summary) {
		s.record(index, e, file, ev, sum)
		if s.OnEvaluated != nil {
			s.OnEvaluated(index, file, ev)
		}
		if s.state == Evaluating && s.cursor == index && s.evalIndex == evalIndex {
			if err := s.host.ExitMode(); err != nil {
				s.logger.Printf("warning: leaving mode after evaluation: %v", err)
			}
		}
	}
	if err := s.workspace.PrepareEvaluation(index, e, s.modelPath, ev); err != nil {
		s.lastErr = fmt.Errorf("step %d: preparing evaluation: %w", index, err)
		s.logger.Printf("warning: %v", s.lastErr)
		s.nextEvaluation()
		return
	}
	s.current = ev
	s.logger.Printf("step %d: evaluation %d of %d on %s", index, s.evalIndex+1, len(s.evalFiles), filepath.Base(file))
	if err := s.host.EnterMode(); err != nil {
		s.lastErr = fmt.Errorf("step %d: entering mode: %w", index, err)
		s.logger.Printf("warning: %v", s.lastErr)
		s.current = nil
		s.nextEvaluation()
	}
}

// nextEvaluation moves to the next demo file, or past the step once every
// file has been visited.
func (s *Sequencer) nextEvaluation() {
	s.current = nil
	s.evalIndex++
	if s.evalIndex >= len(s.evalFiles) {
		s.evalIndex = 0
		s.evalFiles = nil
		s.cursor++
	}
	s.state = Started
}

func (s *Sequencer) record(index int, e *session.EvaluationStep, file string, ev *evaluator.Evaluator, sum evaluator.Summary) {
	if s.sink == nil {
		return
	}
	split := ev.Split()
	rec := result.EvaluationRecord{
		Session:     s.sessionName(),
		Step:        index,
		DemoFile:    filepath.Base(file),
		ModelRunID:  e.ModelRunID,
		Repeats:     e.Evaluations,
		SplitAmount: split.Amount,
		SplitLength: split.Length,
		MeanScore:   sum.Mean,
		MinScore:    sum.Min,
		MaxScore:    sum.Max,
		StdDev:      sum.StdDev,
		Scores:      sum.Scores,
	}
	if err := s.sink.Append(rec); err != nil {
		s.lastErr = fmt.Errorf("step %d: recording result: %w", index, err)
		s.logger.Printf("warning: %v", s.lastErr)
	}
}

// skipStep logs err and moves past the current step without entering the mode.
func (s *Sequencer) skipStep(err error) {
	s.lastErr = err
	s.logger.Printf("warning: %v; skipping step", err)
	s.dropEnter()
	s.evalIndex = 0
	s.evalFiles = nil
	s.current = nil
	s.cursor++
	s.state = Started
}

// dropEnter cancels the pending mode entry of a training step, if any.
func (s *Sequencer) dropEnter() {
	if s.cancelEnter != nil {
		s.cancelEnter()
		s.cancelEnter = nil
	}
}

func (s *Sequencer) sessionName() string {
	if s.sess == nil || s.sess.Name == "" {
		return "unnamed"
	}
	return s.sess.Name
}
