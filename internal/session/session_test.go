package session_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kartlab/kartbench/internal/config"
	"github.com/kartlab/kartbench/internal/session"
)

// workspace lays out an activation script, trainer configs and one demo.
func workspace(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(config.EnvActivationScript, "")
	t.Setenv(config.EnvUsername, "")
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.TrainingDir = filepath.Join(root, "training")
	cfg.Paths.DemosDir = filepath.Join(root, "demos")
	cfg.Training.ActivationScript = filepath.Join(root, "activate")
	cfg.Training.DefaultTrack = "Oval"
	cfg.Training.DefaultAgent = "KartAgent"

	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(os.WriteFile(cfg.Training.ActivationScript, []byte("#!/bin/sh\n"), 0o755))
	must(os.MkdirAll(cfg.TrainersDir(), 0o755))
	for _, name := range []string{"trainer.yaml", "ppo.yaml", "ppo_2.yaml"} {
		must(os.WriteFile(filepath.Join(cfg.TrainersDir(), name), []byte("behaviors: {}\n"), 0o644))
	}
	must(os.MkdirAll(cfg.Paths.DemosDir, 0o755))
	data, err := os.ReadFile("../../testdata/demos/oval.state")
	must(err)
	must(os.WriteFile(filepath.Join(cfg.Paths.DemosDir, "oval.state"), data, 0o644))
	return cfg
}

func TestLoadCurriculum(t *testing.T) {
	s, err := session.Load("../../testdata/sessions/curriculum.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "oval-curriculum" || s.Version != 1 {
		t.Errorf("header: got name %q version %d", s.Name, s.Version)
	}
	if len(s.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(s.Steps))
	}
	wantTypes := []session.StepType{session.StepTraining, session.StepTraining, session.StepEvaluation}
	for i, st := range s.Steps {
		if st.Type != wantTypes[i] {
			t.Errorf("step %d: got type %q, want %q", i, st.Type, wantTypes[i])
		}
	}
	if s.Steps[1].Training.InitializeFrom != "oval_a" {
		t.Errorf("initialize_from: got %q", s.Steps[1].Training.InitializeFrom)
	}
	if s.Steps[2].Evaluation.SplitLength != 10 {
		t.Errorf("split_length: got %d", s.Steps[2].Evaluation.SplitLength)
	}
}

func TestInferStepType(t *testing.T) {
	s, err := session.Load("../../testdata/sessions/untyped.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Steps[0].Type != session.StepTraining || s.Steps[1].Type != session.StepEvaluation {
		t.Errorf("types: got %q, %q", s.Steps[0].Type, s.Steps[1].Type)
	}
}

func TestUnmarshalRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown type", "steps:\n  - type: racing\n"},
		{"both payloads", "steps:\n  - training: {run_id: a}\n    evaluation: {model_run_id: a}\n"},
		{"mismatched payload", "steps:\n  - type: training\n    evaluation: {model_run_id: a}\n"},
		{"future version", "version: 7\nsteps: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := session.Unmarshal([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	orig, err := session.Load("../../testdata/sessions/curriculum.yaml")
	if err != nil {
		t.Fatal(err)
	}
	orig.ActivationScript = "/not/persisted"
	path := filepath.Join(t.TempDir(), "copy.yaml")
	if err := orig.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "/not/persisted") {
		t.Error("activation script was serialized")
	}
	got, err := session.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got.Steps, orig.Steps) {
		t.Errorf("steps differ after round trip:\ngot  %+v\nwant %+v", got.Steps, orig.Steps)
	}

	again, err := got.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Errorf("second save differs:\n%s\n---\n%s", again, data)
	}
}

func TestCheckResolvesDefaults(t *testing.T) {
	cfg := workspace(t)
	s := &session.Session{Steps: []session.Step{
		session.Training(session.TrainingStep{RunID: "oval_a"}),
		session.Evaluation(session.EvaluationStep{ModelRunID: "oval_a"}),
	}}
	if err := s.Check(cfg); err != nil {
		t.Fatalf("Check: %v", err)
	}
	tr := s.Steps[0].Training
	if tr.Track != "Oval" || tr.Agent != "KartAgent" || tr.Trainer != "trainer.yaml" {
		t.Errorf("training defaults not applied: %+v", tr)
	}
	if tr.TrackInstances != 1 || tr.AgentInstances != 1 {
		t.Errorf("instance defaults not applied: %+v", tr)
	}
	ev := s.Steps[1].Evaluation
	if ev.DemoFolder != cfg.Paths.DemosDir || ev.Evaluations != 10 || ev.SplitAmount != 20 || ev.SplitLength != 20 {
		t.Errorf("evaluation defaults not applied: %+v", ev)
	}
	if s.ActivationScript != cfg.Training.ActivationScript {
		t.Errorf("activation script: got %q", s.ActivationScript)
	}
}

func TestCheckFailsOnFirstMissingField(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(cfg *config.Config, s *session.Session)
		step  int
		field string
		want  error
	}{
		{
			name:  "no activation script",
			mod:   func(cfg *config.Config, s *session.Session) { cfg.Training.ActivationScript = "" },
			step:  -1,
			field: "activation_script",
			want:  session.ErrMissingField,
		},
		{
			name:  "activation script missing on disk",
			mod:   func(cfg *config.Config, s *session.Session) { cfg.Training.ActivationScript = "/nope/activate" },
			step:  -1,
			field: "activation_script",
			want:  session.ErrNotFound,
		},
		{
			name:  "no track anywhere",
			mod:   func(cfg *config.Config, s *session.Session) { cfg.Training.DefaultTrack = "" },
			step:  0,
			field: "track",
			want:  session.ErrMissingField,
		},
		{
			name: "no agent and no run id reports agent first",
			mod: func(cfg *config.Config, s *session.Session) {
				cfg.Training.DefaultAgent = ""
				s.Steps[0].Training.RunID = ""
			},
			step:  0,
			field: "agent",
			want:  session.ErrMissingField,
		},
		{
			name:  "no run id",
			mod:   func(cfg *config.Config, s *session.Session) { s.Steps[1].Training.RunID = "" },
			step:  1,
			field: "run_id",
			want:  session.ErrMissingField,
		},
		{
			name:  "trainer file missing",
			mod:   func(cfg *config.Config, s *session.Session) { s.Steps[1].Training.Trainer = "sac.yaml" },
			step:  1,
			field: "trainer",
			want:  session.ErrNotFound,
		},
		{
			name:  "demo folder missing",
			mod:   func(cfg *config.Config, s *session.Session) { s.Steps[2].Evaluation.DemoFolder = "/nope/demos" },
			step:  2,
			field: "demo_folder",
			want:  session.ErrNotFound,
		},
		{
			name:  "no model run id",
			mod:   func(cfg *config.Config, s *session.Session) { s.Steps[2].Evaluation.ModelRunID = "" },
			step:  2,
			field: "model_run_id",
			want:  session.ErrMissingField,
		},
		{
			name:  "negative split length",
			mod:   func(cfg *config.Config, s *session.Session) { s.Steps[2].Evaluation.SplitLength = -3 },
			step:  2,
			field: "split_length",
			want:  session.ErrInvalidValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := workspace(t)
			s := &session.Session{Steps: []session.Step{
				session.Training(session.TrainingStep{RunID: "oval_a"}),
				session.Training(session.TrainingStep{RunID: "fig8_a", Trainer: "ppo.yaml"}),
				session.Evaluation(session.EvaluationStep{ModelRunID: "fig8_a"}),
			}}
			tt.mod(cfg, s)
			err := s.Check(cfg)
			var fe *session.FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %v", err)
			}
			if fe.Step != tt.step || fe.Field != tt.field {
				t.Errorf("got step %d field %q, want step %d field %q", fe.Step, fe.Field, tt.step, tt.field)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckEmptyDemoFolder(t *testing.T) {
	cfg := workspace(t)
	empty := t.TempDir()
	s := &session.Session{Steps: []session.Step{
		session.Evaluation(session.EvaluationStep{ModelRunID: "m", DemoFolder: empty}),
	}}
	if err := s.Check(cfg); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestCheckNoSteps(t *testing.T) {
	cfg := workspace(t)
	err := (&session.Session{}).Check(cfg)
	if !errors.Is(err, session.ErrMissingField) {
		t.Errorf("got %v, want ErrMissingField", err)
	}
	if !strings.Contains(err.Error(), "steps") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestInjectData(t *testing.T) {
	s, err := session.Load("../../testdata/sessions/curriculum.yaml")
	if err != nil {
		t.Fatal(err)
	}
	opts := session.InjectOptions{Username: "alice", TrackSuffix: "2"}
	s.InjectData(opts)

	if got := s.Steps[0].Training.RunID; got != "alice_oval_a" {
		t.Errorf("run id: got %q", got)
	}
	if got := s.Steps[1].Training.InitializeFrom; got != "alice_oval_a" {
		t.Errorf("initialize_from: got %q", got)
	}
	if got := s.Steps[0].Training.Trainer; got != "ppo_2.yaml" {
		t.Errorf("trainer: got %q", got)
	}
	if got := s.Steps[2].Evaluation.ModelRunID; got != "alice_fig8_a" {
		t.Errorf("model run id: got %q", got)
	}

	before, _ := s.Marshal()
	s.InjectData(opts)
	after, _ := s.Marshal()
	if string(before) != string(after) {
		t.Errorf("InjectData is not idempotent:\n%s\n---\n%s", before, after)
	}
}

func TestInjectTrainerOverride(t *testing.T) {
	s := &session.Session{Steps: []session.Step{
		session.Training(session.TrainingStep{RunID: "a", Trainer: "ppo.yaml"}),
		session.Training(session.TrainingStep{RunID: "b"}),
	}}
	s.InjectData(session.InjectOptions{Trainer: "sac.yaml", TrackSuffix: "hills"})
	for i, st := range s.Steps {
		if st.Training.Trainer != "sac_hills.yaml" {
			t.Errorf("step %d trainer: got %q", i, st.Training.Trainer)
		}
		if !strings.HasPrefix(st.Training.RunID, string(rune('a'+i))) {
			t.Errorf("step %d run id changed without username: %q", i, st.Training.RunID)
		}
	}
}

func TestDescribe(t *testing.T) {
	tr := session.Describe(session.Training(session.TrainingStep{Track: "Oval", TrackInstances: 4, Agent: "Kart", AgentInstances: 1, Trainer: "ppo.yaml", RunID: "r1", InitializeFrom: "r0"}))
	for _, want := range []string{"r1", "Oval x4", "ppo.yaml", "resume from r0"} {
		if !strings.Contains(tr, want) {
			t.Errorf("training description %q missing %q", tr, want)
		}
	}
	ev := session.Describe(session.Evaluation(session.EvaluationStep{ModelRunID: "r1"}))
	if !strings.Contains(ev, "r1") || !strings.Contains(ev, "<unset>") {
		t.Errorf("evaluation description: %q", ev)
	}
}
