// Package hostlink bridges a running game engine to the sequencer over a
// websocket. The engine connects, says hello, then streams mode changes and
// ticks; the link answers each message with the commands it produced.
package hostlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"nhooyr.io/websocket"

	"github.com/kartlab/kartbench/internal/demo"
	"github.com/kartlab/kartbench/internal/evaluator"
	"github.com/kartlab/kartbench/internal/sequencer"
	"github.com/kartlab/kartbench/internal/session"
	"github.com/kartlab/kartbench/internal/trainer"
	"github.com/kartlab/kartbench/internal/trajectory"
)

type Options struct {
	// IdleTimeout is how long the engine may stay silent. Defaults to 30s.
	IdleTimeout time.Duration
	// Timescale and FixedDelta are the engine's simulation speed-up and
	// physics step during evaluations.
	Timescale  float64
	FixedDelta time.Duration
	Logger     *log.Logger
	Debug      bool
}

// Link implements sequencer.Host, sequencer.Workspace and evaluator.Agent
// for one engine connection. Every callback runs on the goroutine reading
// the connection.
type Link struct {
	seq         *sequencer.Sequencer
	sess        *session.Session
	idleTimeout time.Duration
	timescale   float64
	fixedDelta  time.Duration
	logger      *log.Logger
	debug       bool

	state   State
	engine  string
	inMode  bool
	outbox  []Envelope
	trainer trainer.Process
	ev      *evaluator.Evaluator
	sample  trajectory.StateSample
	err     error
}

func New(sess *session.Session, opts Options) *Link {
	l := &Link{
		sess:        sess,
		idleTimeout: opts.IdleTimeout,
		timescale:   opts.Timescale,
		fixedDelta:  opts.FixedDelta,
		logger:      opts.Logger,
		debug:       opts.Debug,
		state:       StateWaiting,
	}
	if l.idleTimeout <= 0 {
		l.idleTimeout = 30 * time.Second
	}
	if l.logger == nil {
		l.logger = log.Default()
	}
	return l
}

// Attach wires the sequencer this link drives.
func (l *Link) Attach(seq *sequencer.Sequencer) { l.seq = seq }

func (l *Link) State() State { return l.state }

// Engine is the name the engine gave in its hello.
func (l *Link) Engine() string { return l.engine }

func (l *Link) logf(format string, args ...any) {
	if l.debug {
		l.logger.Printf(format, args...)
	}
}

// Serve runs the session over conn until it completes, the engine goes
// quiet for longer than the idle timeout, or ctx is done. An interrupted
// session is stopped.
func (l *Link) Serve(ctx context.Context, conn *websocket.Conn) error {
	if l.seq == nil {
		return errors.New("no sequencer attached")
	}
	l.state = StateInit
	l.logf("[STATE] -> %s", l.state)

	for l.state != StateDone {
		readCtx, cancel := context.WithTimeout(ctx, l.idleTimeout)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			l.abort()
			return fmt.Errorf("read in state %s: %w", l.state, err)
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			l.logf("[RECV] malformed JSON: %s", string(data))
			continue
		}
		l.logf("[RECV] type=%s state=%s", env.Type, l.state)

		if err := l.handle(&env); err != nil {
			l.abort()
			return fmt.Errorf("handle message in state %s: %w", l.state, err)
		}
		if err := l.flush(ctx, conn); err != nil {
			l.abort()
			return err
		}
	}
	return l.err
}

func (l *Link) abort() {
	if l.seq.State() != sequencer.Stopped {
		l.seq.Stop()
	}
	l.outbox = nil
}

func (l *Link) flush(ctx context.Context, conn *websocket.Conn) error {
	out := append(l.outbox, Envelope{Type: TypeSync})
	l.outbox = nil
	for _, env := range out {
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", env.Type, err)
		}
		l.logf("[SEND] %s", string(data))
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("write %s: %w", env.Type, err)
		}
	}
	return nil
}

func (l *Link) send(env Envelope) { l.outbox = append(l.outbox, env) }

func (l *Link) handle(env *Envelope) error {
	switch l.state {
	case StateInit:
		return l.handleHello(env)
	case StateRunning:
		l.handleRunning(env)
		if l.seq.State() == sequencer.Stopped {
			l.finish()
		}
		return nil
	default:
		return fmt.Errorf("unexpected message in state %s", l.state)
	}
}

func (l *Link) handleHello(env *Envelope) error {
	if env.Type != TypeHello {
		return fmt.Errorf("expected hello, got %s", env.Type)
	}
	l.engine = env.Engine
	l.logger.Printf("engine %q connected", env.Engine)
	if err := l.seq.Start(l.sess); err != nil {
		l.err = err
		l.send(Envelope{Type: TypeSessionDone, Session: l.sess.Name, Error: err.Error()})
		l.state = StateDone
		return nil
	}
	l.state = StateRunning
	l.logf("[STATE] -> %s", l.state)
	return nil
}

func (l *Link) handleRunning(env *Envelope) {
	switch env.Type {
	case TypeMode:
		switch env.Mode {
		case ModeEntered:
			l.inMode = true
			l.seq.NotifyModeEntered()
			l.startEvaluation()
		case ModeExited:
			l.inMode = false
			l.ev = nil
			l.trainer = nil
			l.seq.NotifyModeExited()
		default:
			l.logf("[WARN] unknown mode: %s", env.Mode)
		}
	case TypeTick:
		if env.Sample != nil {
			l.sample = demo.FromWire(*env.Sample)
		}
		l.checkTrainer()
		l.seq.Tick()
		l.tickEvaluation()
	case TypeKeepAlive, TypeHello:
	default:
		l.logf("[WARN] unknown message type: %s", env.Type)
	}
}

func (l *Link) finish() {
	st := l.seq.Status()
	done := Envelope{Type: TypeSessionDone, Session: l.sess.Name}
	if st.Err != nil {
		done.Error = st.Err.Error()
	}
	l.send(done)
	l.state = StateDone
	l.logf("[STATE] -> %s", l.state)
}

// checkTrainer leaves the mode once the trainer of the current step exits.
func (l *Link) checkTrainer() {
	if l.trainer == nil || l.seq.State() != sequencer.Training {
		return
	}
	select {
	case <-l.trainer.Done():
		if err := l.trainer.Err(); err != nil {
			l.logger.Printf("warning: trainer exited: %v", err)
		}
		l.ExitMode()
	default:
	}
}

func (l *Link) startEvaluation() {
	if l.ev == nil || l.seq.State() != sequencer.Evaluating {
		return
	}
	if err := l.ev.Start(l); err != nil {
		l.logger.Printf("warning: starting evaluation: %v", err)
		l.ExitMode()
	}
}

func (l *Link) tickEvaluation() {
	ev := l.ev
	if ev == nil || !l.inMode || l.seq.State() != sequencer.Evaluating {
		return
	}
	switch ev.State() {
	case evaluator.Idle, evaluator.Done:
		return
	}
	if err := ev.Tick(l.sample); err != nil {
		l.logger.Printf("warning: evaluation aborted: %v", err)
		l.ExitMode()
	}
}

func (l *Link) EnterMode() error {
	if l.inMode {
		return errors.New("already in elevated mode")
	}
	l.inMode = true
	l.send(Envelope{Type: TypeEnterMode})
	return nil
}

func (l *Link) ExitMode() error {
	if !l.inMode {
		return nil
	}
	l.inMode = false
	l.send(Envelope{Type: TypeExitMode})
	return nil
}

func (l *Link) InMode() bool { return l.inMode }

func (l *Link) PrepareTraining(index int, step *session.TrainingStep) error {
	l.send(Envelope{
		Type:           TypeSetupTraining,
		Step:           &index,
		Track:          step.Track,
		Agent:          step.Agent,
		TrackInstances: step.TrackInstances,
		AgentInstances: step.AgentInstances,
	})
	return nil
}

func (l *Link) AttachTrainer(p trainer.Process) { l.trainer = p }

func (l *Link) PrepareEvaluation(index int, step *session.EvaluationStep, modelPath string, ev *evaluator.Evaluator) error {
	l.ev = ev
	l.send(Envelope{
		Type:           TypeSetupEvaluation,
		Step:           &index,
		Model:          modelPath,
		Demo:           filepath.Base(ev.Options().DemoFile),
		Timescale:      l.timescale,
		FixedDeltaTime: l.fixedDelta.Seconds(),
	})
	return nil
}

// Place asks the engine to teleport the candidate agent for the window the
// evaluator is about to run.
func (l *Link) Place(initial trajectory.StateSample) error {
	w := demo.ToWire(initial)
	env := Envelope{Type: TypePlaceAgent, Sample: &w}
	if l.ev != nil {
		p := l.ev.Progress()
		env.Progress = &Progress{Pass: p.Pass, Passes: p.Passes, Window: p.Window, Windows: p.Windows}
	}
	l.send(env)
	return nil
}

func (l *Link) EndEpisode() { l.send(Envelope{Type: TypeEndEpisode}) }
