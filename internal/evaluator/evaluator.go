// Package evaluator drives a candidate policy through windows of a reference
// recording and scores how closely it follows each one.
//
// An Evaluator is a cooperative state machine: the host calls Tick once per
// simulation step from a single goroutine and the evaluator advances exactly
// one step per call.
package evaluator

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/kartlab/kartbench/internal/demo"
	"github.com/kartlab/kartbench/internal/trajectory"
)

type State int

const (
	Idle State = iota
	Initializing
	Running
	Scoring
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Scoring:
		return "scoring"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrDisabled is returned by Start when construction failed.
var ErrDisabled = errors.New("evaluator disabled")

// Agent is the candidate policy being evaluated.
type Agent interface {
	// Place teleports the agent to the initial state of a window.
	Place(initial trajectory.StateSample) error
	// EndEpisode tells the agent the current window is over.
	EndEpisode()
}

type Options struct {
	DemoFile    string
	Evaluations int
	SplitAmount int
	SplitLength int
	Logger      *log.Logger
}

// Summary aggregates every window score of a finished evaluation.
type Summary struct {
	Mean      float64
	Min       float64
	Max       float64
	StdDev    float64
	PassMeans []float64
	Scores    []float64
}

// Progress locates the evaluator inside its schedule.
type Progress struct {
	Pass    int
	Passes  int
	Window  int
	Windows int
	Tick    int
}

type Evaluator struct {
	// OnComplete runs once, after the score of the last window of the last pass.
	OnComplete func(Summary)

	opts      Options
	logger    *log.Logger
	err       error
	reference trajectory.Trajectory
	split     trajectory.Split

	state      State
	agent      Agent
	pass       int
	window     int
	ticks      int
	buffer     demo.Recorder[trajectory.StateSample]
	scores     []float64
	candidates []trajectory.Trajectory
	summary    Summary
}

// New loads and segments opts.DemoFile. Any failure disables the evaluator;
// check Disabled or Err before starting it.
func New(opts Options) *Evaluator {
	ref, err := demo.ReadTrajectory(opts.DemoFile)
	if err != nil {
		e := &Evaluator{opts: opts, logger: loggerOf(opts)}
		e.disable(err)
		return e
	}
	return NewFromTrajectory(ref, opts)
}

// NewFromTrajectory builds an evaluator over an in-memory reference.
func NewFromTrajectory(ref trajectory.Trajectory, opts Options) *Evaluator {
	e := &Evaluator{opts: opts, logger: loggerOf(opts), reference: ref}
	if opts.Evaluations < 1 {
		e.disable(fmt.Errorf("%w: evaluations %d", trajectory.ErrInvalidSplit, opts.Evaluations))
		return e
	}
	split, err := trajectory.Segment(ref, opts.SplitAmount, opts.SplitLength)
	if err != nil {
		e.disable(err)
		return e
	}
	if split.Amount < opts.SplitAmount {
		e.logger.Printf("warning: %s: only %d of %d windows fit", e.name(), split.Amount, opts.SplitAmount)
	}
	e.split = split
	e.scores = make([]float64, opts.Evaluations*split.Amount)
	e.candidates = make([]trajectory.Trajectory, split.Amount)
	e.buffer.Limit = opts.SplitLength
	return e
}

func loggerOf(opts Options) *log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return log.Default()
}

func (e *Evaluator) disable(err error) {
	e.err = err
	e.logger.Printf("warning: evaluator for %s disabled: %v", e.name(), err)
}

func (e *Evaluator) name() string {
	if e.opts.DemoFile == "" {
		return "in-memory reference"
	}
	return e.opts.DemoFile
}

func (e *Evaluator) Disabled() bool { return e.split.Amount == 0 }

// Err returns the construction error, or the placement error that aborted a run.
func (e *Evaluator) Err() error { return e.err }

func (e *Evaluator) State() State { return e.state }

func (e *Evaluator) Options() Options { return e.opts }

func (e *Evaluator) Reference() trajectory.Trajectory { return e.reference }

func (e *Evaluator) Split() trajectory.Split { return e.split }

// Scores returns window scores indexed pass*Amount + window.
func (e *Evaluator) Scores() []float64 {
	out := make([]float64, len(e.scores))
	copy(out, e.scores)
	return out
}

// Candidates returns the candidate trajectories of the latest pass.
func (e *Evaluator) Candidates() []trajectory.Trajectory {
	out := make([]trajectory.Trajectory, len(e.candidates))
	copy(out, e.candidates)
	return out
}

// Summary is valid once State is Done.
func (e *Evaluator) Summary() Summary { return e.summary }

func (e *Evaluator) Progress() Progress {
	return Progress{
		Pass:    e.pass,
		Passes:  e.opts.Evaluations,
		Window:  e.window,
		Windows: e.split.Amount,
		Tick:    e.ticks,
	}
}

// Start places agent at the first window of the first pass.
func (e *Evaluator) Start(agent Agent) error {
	if e.Disabled() {
		return fmt.Errorf("%w: %v", ErrDisabled, e.err)
	}
	e.agent = agent
	e.pass, e.window = 0, 0
	e.state = Initializing
	return e.initialize()
}

// Stop abandons a run in progress.
func (e *Evaluator) Stop() {
	if e.state == Running && e.agent != nil {
		e.agent.EndEpisode()
	}
	e.state = Idle
	e.buffer.Reset()
}

// Tick advances one step. observed is the candidate's state this step and is
// only consumed while Running.
func (e *Evaluator) Tick(observed trajectory.StateSample) error {
	switch e.state {
	case Initializing:
		return e.initialize()
	case Running:
		e.ticks++
		// The sample taken on the tick right after placement still reflects
		// the previous episode; the window's own first point stands in for it.
		if e.ticks > 1 {
			e.buffer.Record(observed)
		}
		if e.ticks >= e.split.Length {
			e.state = Scoring
		}
	case Scoring:
		return e.score()
	}
	return nil
}

func (e *Evaluator) initialize() error {
	window := e.split.Windows[e.window]
	e.buffer.Reset()
	e.ticks = 0
	if err := e.agent.Place(window.First()); err != nil {
		e.err = fmt.Errorf("placing agent for window %d: %w", e.window, err)
		e.state = Idle
		return e.err
	}
	e.state = Running
	return nil
}

func (e *Evaluator) score() error {
	e.agent.EndEpisode()
	window := e.split.Windows[e.window]
	candidate := candidateFor(window, &e.buffer)
	e.candidates[e.window] = candidate

	s, err := trajectory.Evaluate(window, candidate)
	if err != nil {
		e.err = fmt.Errorf("scoring window %d: %w", e.window, err)
		e.state = Idle
		return e.err
	}
	e.scores[e.pass*e.split.Amount+e.window] = s

	e.window++
	if e.window == e.split.Amount {
		e.window = 0
		e.pass++
	}
	if e.pass == e.opts.Evaluations {
		e.finish()
		return nil
	}
	e.state = Initializing
	return nil
}

// candidateFor is the window's first point followed by everything recorded.
func candidateFor(window trajectory.Trajectory, buf trajectory.Buffer) trajectory.Trajectory {
	return trajectory.FromBuffer(buf).Prepend(window.First())
}

func (e *Evaluator) finish() {
	e.state = Done
	e.summary = summarize(e.scores, e.split.Amount)
	e.logger.Printf("evaluation of %s: mean %.4f min %.4f max %.4f over %d windows",
		e.name(), e.summary.Mean, e.summary.Min, e.summary.Max, len(e.scores))
	if e.OnComplete != nil {
		e.OnComplete(e.summary)
	}
}

func summarize(scores []float64, perPass int) Summary {
	s := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	s.Scores = make([]float64, len(scores))
	copy(s.Scores, scores)
	if len(scores) == 0 {
		return Summary{}
	}
	var sum float64
	for _, v := range scores {
		sum += v
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	s.Mean = sum / float64(len(scores))
	var sq float64
	for _, v := range scores {
		sq += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDev = math.Sqrt(sq / float64(len(scores)))
	for start := 0; start+perPass <= len(scores); start += perPass {
		var passSum float64
		for _, v := range scores[start : start+perPass] {
			passSum += v
		}
		s.PassMeans = append(s.PassMeans, passSum/float64(perPass))
	}
	return s
}
