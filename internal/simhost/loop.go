// Package simhost is a headless host: it pumps sequencer ticks on a
// simulated clock, stands in for the engine's elevated mode and drives
// candidate agents through evaluations.
package simhost

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kartlab/kartbench/internal/evaluator"
	"github.com/kartlab/kartbench/internal/sequencer"
	"github.com/kartlab/kartbench/internal/session"
	"github.com/kartlab/kartbench/internal/trainer"
	"github.com/kartlab/kartbench/internal/trajectory"
)

var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

type modeEvent int

const (
	entered modeEvent = iota
	exited
)

// follower is an agent that needs the reference of each evaluation.
type follower interface {
	Follow(ref trajectory.Trajectory)
}

// Loop implements sequencer.Host and sequencer.Workspace.
type Loop struct {
	// MaxTicks bounds a run; zero means no bound.
	MaxTicks int

	seq    *sequencer.Sequencer
	agent  *placement
	dt     time.Duration
	logger *log.Logger

	ticks   int
	inMode  bool
	events  []modeEvent
	trainer trainer.Process
	ev      *evaluator.Evaluator
}

func New(agent Agent, dt time.Duration, logger *log.Logger) *Loop {
	if logger == nil {
		logger = log.Default()
	}
	return &Loop{agent: &placement{Agent: agent}, dt: dt, logger: logger}
}

// Attach wires the sequencer this loop drives.
func (l *Loop) Attach(seq *sequencer.Sequencer) { l.seq = seq }

// Now is the simulated clock: one fixed timestep per tick.
func (l *Loop) Now() time.Time { return epoch.Add(time.Duration(l.ticks) * l.dt) }

func (l *Loop) Ticks() int { return l.ticks }

func (l *Loop) EnterMode() error {
	if l.inMode {
		return fmt.Errorf("already in elevated mode")
	}
	l.inMode = true
	l.events = append(l.events, entered)
	return nil
}

func (l *Loop) ExitMode() error {
	if !l.inMode {
		return nil
	}
	l.inMode = false
	l.ev = nil
	l.trainer = nil
	l.events = append(l.events, exited)
	return nil
}

func (l *Loop) InMode() bool { return l.inMode }

func (l *Loop) PrepareTraining(index int, step *session.TrainingStep) error {
	l.logger.Printf("step %d: %d x %s with %d x %s", index, step.TrackInstances, step.Track, step.AgentInstances, step.Agent)
	return nil
}

func (l *Loop) AttachTrainer(p trainer.Process) { l.trainer = p }

func (l *Loop) PrepareEvaluation(index int, step *session.EvaluationStep, modelPath string, ev *evaluator.Evaluator) error {
	l.logger.Printf("step %d: evaluating %s", index, modelPath)
	if f, ok := l.agent.Agent.(follower); ok {
		f.Follow(ev.Reference())
	}
	l.ev = ev
	return nil
}

// Run starts sess and pumps ticks until the session ends or ctx is done.
// A cancelled run stops the sequencer.
func (l *Loop) Run(ctx context.Context, sess *session.Session) error {
	if l.seq == nil {
		return errors.New("no sequencer attached")
	}
	if err := l.seq.Start(sess); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			l.seq.Stop()
			return err
		}
		if l.seq.State() == sequencer.Training {
			if err := l.awaitTrainer(ctx); err != nil {
				l.seq.Stop()
				return err
			}
		}
		l.Step()
		if l.seq.State() == sequencer.Stopped && len(l.events) == 0 {
			return nil
		}
		if l.MaxTicks > 0 && l.ticks >= l.MaxTicks {
			l.seq.Stop()
			return fmt.Errorf("session did not finish within %d ticks", l.MaxTicks)
		}
	}
}

// awaitTrainer blocks until the attached trainer exits, then leaves the mode.
func (l *Loop) awaitTrainer(ctx context.Context) error {
	if l.trainer != nil {
		select {
		case <-l.trainer.Done():
			if err := l.trainer.Err(); err != nil {
				l.logger.Printf("warning: trainer exited: %v", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return l.ExitMode()
}

// Step delivers pending mode events, ticks the sequencer and advances the
// evaluation in progress by one fixed timestep.
func (l *Loop) Step() {
	events := l.events
	l.events = nil
	for _, e := range events {
		switch e {
		case entered:
			l.seq.NotifyModeEntered()
			l.startEvaluation()
		case exited:
			l.seq.NotifyModeExited()
		}
	}

	l.seq.Tick()
	if l.inMode && l.ev != nil && l.seq.State() == sequencer.Evaluating {
		l.tickEvaluation()
	}
	l.ticks++
}

func (l *Loop) startEvaluation() {
	if l.ev == nil || l.seq.State() != sequencer.Evaluating {
		return
	}
	if err := l.ev.Start(l.agent); err != nil {
		l.logger.Printf("warning: starting evaluation: %v", err)
		l.ExitMode()
		return
	}
	l.agent.placed = false
}

func (l *Loop) tickEvaluation() {
	ev := l.ev
	switch ev.State() {
	case evaluator.Idle, evaluator.Done:
		return
	}
	if err := ev.Tick(l.agent.State()); err != nil {
		l.logger.Printf("warning: evaluation aborted: %v", err)
		l.ExitMode()
		return
	}
	if l.agent.placed {
		l.agent.placed = false
		return
	}
	l.agent.Step(l.dt)
}

// RunEvaluation drives agent through ev outside any session and returns
// its summary.
func RunEvaluation(ctx context.Context, ev *evaluator.Evaluator, agent Agent, dt time.Duration) (evaluator.Summary, error) {
	p := &placement{Agent: agent}
	if err := ev.Start(p); err != nil {
		return evaluator.Summary{}, err
	}
	p.placed = false
	for i := 0; ev.State() != evaluator.Done; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				ev.Stop()
				return evaluator.Summary{}, err
			}
		}
		if err := ev.Tick(p.State()); err != nil {
			return evaluator.Summary{}, err
		}
		if ev.State() == evaluator.Idle {
			return evaluator.Summary{}, fmt.Errorf("evaluation stopped: %w", ev.Err())
		}
		if p.placed {
			p.placed = false
			continue
		}
		p.Step(dt)
	}
	return ev.Summary(), nil
}
