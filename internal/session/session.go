// Package session describes training sessions: an ordered list of training
// and evaluation steps, how they are stored, validated and templated.
package session

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is the session file schema version written by Save.
const Version = 1

type StepType string

const (
	StepTraining   StepType = "training"
	StepEvaluation StepType = "evaluation"
)

type Session struct {
	Version int    `yaml:"version"`
	Name    string `yaml:"name,omitempty"`
	Steps   []Step `yaml:"steps"`

	// ActivationScript is resolved from the config at validation time and
	// never stored with the session.
	ActivationScript string `yaml:"-"`
}

// Step is one unit of work. Exactly one of Training or Evaluation is set,
// matching Type.
type Step struct {
	Type       StepType        `yaml:"type"`
	Training   *TrainingStep   `yaml:"training,omitempty"`
	Evaluation *EvaluationStep `yaml:"evaluation,omitempty"`
}

type TrainingStep struct {
	Track          string `yaml:"track,omitempty"`
	TrackInstances int    `yaml:"track_instances,omitempty"`
	Agent          string `yaml:"agent,omitempty"`
	AgentInstances int    `yaml:"agent_instances,omitempty"`
	Trainer        string `yaml:"trainer,omitempty"`
	RunID          string `yaml:"run_id,omitempty"`
	InitializeFrom string `yaml:"initialize_from,omitempty"`
}

type EvaluationStep struct {
	DemoFolder  string `yaml:"demo_folder,omitempty"`
	ModelRunID  string `yaml:"model_run_id,omitempty"`
	Evaluations int    `yaml:"evaluations,omitempty"`
	SplitAmount int    `yaml:"split_amount,omitempty"`
	SplitLength int    `yaml:"split_length,omitempty"`
}

// Training returns a step wrapping t.
func Training(t TrainingStep) Step { return Step{Type: StepTraining, Training: &t} }

// Evaluation returns a step wrapping e.
func Evaluation(e EvaluationStep) Step { return Step{Type: StepEvaluation, Evaluation: &e} }

func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", path, err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", path, err)
	}
	return s, nil
}

func (s *Session) Save(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing session %s: %w", path, err)
	}
	return nil
}

func Unmarshal(data []byte) (*Session, error) {
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Version == 0 {
		s.Version = Version
	}
	if s.Version > Version {
		return nil, fmt.Errorf("unsupported session version %d", s.Version)
	}
	for i := range s.Steps {
		if err := s.Steps[i].normalize(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return &s, nil
}

func (s *Session) Marshal() ([]byte, error) {
	out := *s
	out.Version = Version
	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	return data, nil
}

// normalize infers a missing type tag from the payload and rejects
// mismatched or double payloads.
func (st *Step) normalize() error {
	if st.Training != nil && st.Evaluation != nil {
		return fmt.Errorf("both training and evaluation set")
	}
	if st.Type == "" {
		switch {
		case st.Training != nil:
			st.Type = StepTraining
		case st.Evaluation != nil:
			st.Type = StepEvaluation
		}
	}
	switch st.Type {
	case StepTraining:
		if st.Training == nil {
			st.Training = &TrainingStep{}
		}
	case StepEvaluation:
		if st.Evaluation == nil {
			st.Evaluation = &EvaluationStep{}
		}
	case "":
	default:
		return fmt.Errorf("unknown step type %q", st.Type)
	}
	if st.Type == StepTraining && st.Evaluation != nil || st.Type == StepEvaluation && st.Training != nil {
		return fmt.Errorf("step type %q does not match its payload", st.Type)
	}
	return nil
}

// Describe is a one-line summary of a step.
func Describe(st Step) string {
	switch st.Type {
	case StepTraining:
		t := st.Training
		var b strings.Builder
		fmt.Fprintf(&b, "train %s on %s x%d with %s x%d, trainer %s",
			t.RunID, orUnset(t.Track), t.TrackInstances, orUnset(t.Agent), t.AgentInstances, orUnset(t.Trainer))
		if t.InitializeFrom != "" {
			fmt.Fprintf(&b, ", resume from %s", t.InitializeFrom)
		}
		return b.String()
	case StepEvaluation:
		e := st.Evaluation
		return fmt.Sprintf("evaluate %s on %s, %d x %d samples, %d passes",
			orUnset(e.ModelRunID), orUnset(e.DemoFolder), e.SplitAmount, e.SplitLength, e.Evaluations)
	}
	return "untyped step"
}

func orUnset(s string) string {
	if s == "" {
		return "<unset>"
	}
	return s
}
