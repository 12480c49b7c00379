// Package trainer launches the external RL trainer, collects the model it
// produces and runs TensorBoard next to it.
package trainer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/kartlab/kartbench/internal/config"
	"github.com/kartlab/kartbench/internal/session"
)

// TrainersSubdir prefixes trainer config names on the launcher command line.
const TrainersSubdir = "trainers"

// Invocation is one launch of the trainer launcher script.
type Invocation struct {
	Script         string
	Activation     string
	Trainer        string
	RunID          string
	InitializeFrom string
	WorkDir        string
	LogDir         string
	Env            map[string]string
}

// BuildInvocation resolves the launcher for a validated training step.
// Resumed runs use the resume launcher script.
func BuildInvocation(cfg *config.Config, activation string, step *session.TrainingStep) (*Invocation, error) {
	script := cfg.Training.LauncherScript
	if step.InitializeFrom != "" {
		script = cfg.Training.ResumeLauncherScript
	}
	env, err := ReadEnvFile(cfg.Training.EnvFile)
	if err != nil {
		return nil, err
	}
	return &Invocation{
		Script:         script,
		Activation:     activation,
		Trainer:        step.Trainer,
		RunID:          step.RunID,
		InitializeFrom: step.InitializeFrom,
		WorkDir:        cfg.Paths.TrainingDir,
		LogDir:         filepath.Join(cfg.Paths.ResultsDir, "logs"),
		Env:            env,
	}, nil
}

// Args are the launcher script arguments: activation script, trainer config,
// run id and, for resumed runs, the run to initialize from.
func (inv *Invocation) Args() []string {
	args := []string{inv.Activation, TrainersSubdir + "/" + inv.Trainer, inv.RunID}
	if inv.InitializeFrom != "" {
		args = append(args, inv.InitializeFrom)
	}
	return args
}

func (inv *Invocation) String() string {
	return fmt.Sprintf("%s %v", inv.Script, inv.Args())
}

// ReadEnvFile parses a dotenv file. An empty path yields no variables.
func ReadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading trainer env file: %w", err)
	}
	return env, nil
}

// Launcher starts the trainer for an invocation.
type Launcher interface {
	Launch(ctx context.Context, inv *Invocation) (Process, error)
}

// Process is a running trainer. The sequencer never waits on it; Done lets
// an automation layer notice the trainer finished.
type Process interface {
	Done() <-chan struct{}
	// Err is valid after Done is closed.
	Err() error
	Stop() error
}

// NewLauncher picks the launcher named in cfg.
func NewLauncher(cfg *config.Config) (Launcher, error) {
	switch cfg.Training.Launcher {
	case config.LauncherDocker:
		return NewDockerLauncher(cfg.Training.Docker)
	default:
		return &LocalLauncher{}, nil
	}
}
