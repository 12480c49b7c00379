package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kartlab/kartbench/internal/config"
	"github.com/kartlab/kartbench/internal/demo"
)

var (
	ErrMissingField = errors.New("required field is missing")
	ErrNotFound     = errors.New("referenced path does not exist")
	ErrInvalidValue = errors.New("value out of range")
)

// FieldError names the step and field that failed validation. Step is -1
// for session-level fields.
type FieldError struct {
	Step  int
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("session: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("step %d: %s: %v", e.Step, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(step int, field string, err error) error {
	return &FieldError{Step: step, Field: field, Err: err}
}

// Check fills blank step fields from the defaults in cfg, then fails on the
// first field that is still missing or points at nothing.
func (s *Session) Check(cfg *config.Config) error {
	if s.ActivationScript == "" {
		s.ActivationScript = cfg.Training.ActivationScript
	}
	if s.ActivationScript == "" {
		return fieldErr(-1, "activation_script", ErrMissingField)
	}
	if _, err := os.Stat(s.ActivationScript); err != nil {
		return fieldErr(-1, "activation_script", fmt.Errorf("%w: %s", ErrNotFound, s.ActivationScript))
	}
	if len(s.Steps) == 0 {
		return fieldErr(-1, "steps", ErrMissingField)
	}
	for i := range s.Steps {
		st := &s.Steps[i]
		if err := st.normalize(); err != nil {
			return fieldErr(i, "type", fmt.Errorf("%w: %v", ErrInvalidValue, err))
		}
		var err error
		switch st.Type {
		case StepTraining:
			err = checkTraining(i, st.Training, cfg)
		case StepEvaluation:
			err = checkEvaluation(i, st.Evaluation, cfg)
		default:
			err = fieldErr(i, "type", ErrMissingField)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func checkTraining(i int, t *TrainingStep, cfg *config.Config) error {
	d := cfg.Training
	if t.Track == "" {
		t.Track = d.DefaultTrack
	}
	if t.Agent == "" {
		t.Agent = d.DefaultAgent
	}
	if t.TrackInstances == 0 {
		t.TrackInstances = d.DefaultTrackInstances
	}
	if t.AgentInstances == 0 {
		t.AgentInstances = d.DefaultAgentInstances
	}
	if t.Trainer == "" {
		t.Trainer = d.DefaultTrainer
	}

	switch {
	case t.Track == "":
		return fieldErr(i, "track", ErrMissingField)
	case t.Agent == "":
		return fieldErr(i, "agent", ErrMissingField)
	case t.TrackInstances == 0:
		return fieldErr(i, "track_instances", ErrMissingField)
	case t.TrackInstances < 0:
		return fieldErr(i, "track_instances", fmt.Errorf("%w: %d", ErrInvalidValue, t.TrackInstances))
	case t.AgentInstances == 0:
		return fieldErr(i, "agent_instances", ErrMissingField)
	case t.AgentInstances < 0:
		return fieldErr(i, "agent_instances", fmt.Errorf("%w: %d", ErrInvalidValue, t.AgentInstances))
	case t.Trainer == "":
		return fieldErr(i, "trainer", ErrMissingField)
	case t.RunID == "":
		return fieldErr(i, "run_id", ErrMissingField)
	}

	trainerPath := filepath.Join(cfg.TrainersDir(), t.Trainer)
	if info, err := os.Stat(trainerPath); err != nil || info.IsDir() {
		return fieldErr(i, "trainer", fmt.Errorf("%w: %s", ErrNotFound, trainerPath))
	}
	return nil
}

func checkEvaluation(i int, e *EvaluationStep, cfg *config.Config) error {
	d := cfg.Evaluation
	if e.DemoFolder == "" {
		e.DemoFolder = cfg.Paths.DemosDir
	}
	if e.Evaluations == 0 {
		e.Evaluations = d.DefaultEvaluations
	}
	if e.SplitAmount == 0 {
		e.SplitAmount = d.DefaultSplitAmount
	}
	if e.SplitLength == 0 {
		e.SplitLength = d.DefaultSplitLength
	}

	if e.DemoFolder == "" {
		return fieldErr(i, "demo_folder", ErrMissingField)
	}
	if _, err := demo.List(e.DemoFolder); err != nil {
		return fieldErr(i, "demo_folder", fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	switch {
	case e.ModelRunID == "":
		return fieldErr(i, "model_run_id", ErrMissingField)
	case e.SplitAmount == 0:
		return fieldErr(i, "split_amount", ErrMissingField)
	case e.SplitAmount < 0:
		return fieldErr(i, "split_amount", fmt.Errorf("%w: %d", ErrInvalidValue, e.SplitAmount))
	case e.SplitLength == 0:
		return fieldErr(i, "split_length", ErrMissingField)
	case e.SplitLength < 0:
		return fieldErr(i, "split_length", fmt.Errorf("%w: %d", ErrInvalidValue, e.SplitLength))
	case e.Evaluations < 1:
		return fieldErr(i, "evaluations", fmt.Errorf("%w: %d", ErrInvalidValue, e.Evaluations))
	}
	return nil
}
