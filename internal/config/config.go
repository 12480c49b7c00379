package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvActivationScript = "KARTBENCH_ACTIVATION_SCRIPT"
	EnvUsername         = "KARTBENCH_USERNAME"
)

type Config struct {
	Paths       Paths       `yaml:"paths"`
	Training    Training    `yaml:"training"`
	Evaluation  Evaluation  `yaml:"evaluation"`
	Tensorboard Tensorboard `yaml:"tensorboard"`
	Host        Host        `yaml:"host"`
}

type Paths struct {
	// TrainingDir holds the trainer configs under trainers/, the trainer's
	// results/ output and the launcher scripts.
	TrainingDir string `yaml:"training_dir"`
	ModelsDir   string `yaml:"models_dir"`
	DemosDir    string `yaml:"demos_dir"`
	ResultsDir  string `yaml:"results_dir"`
}

// Training is the defaults store for training steps and the trainer launch setup.
type Training struct {
	ActivationScript      string        `yaml:"activation_script"`
	Username              string        `yaml:"username"`
	DefaultTrainer        string        `yaml:"default_trainer"`
	DefaultAgent          string        `yaml:"default_agent"`
	DefaultTrack          string        `yaml:"default_track"`
	DefaultTrackInstances int           `yaml:"default_track_instances"`
	DefaultAgentInstances int           `yaml:"default_agent_instances"`
	SettleDelay           time.Duration `yaml:"settle_delay"`
	BehaviorName          string        `yaml:"behavior_name"`
	Launcher              string        `yaml:"launcher"`
	LauncherScript        string        `yaml:"launcher_script"`
	ResumeLauncherScript  string        `yaml:"resume_launcher_script"`
	EnvFile               string        `yaml:"env_file"`
	Docker                Docker        `yaml:"docker"`
}

type Docker struct {
	Image       string  `yaml:"image"`
	CPULimit    float64 `yaml:"cpu_limit"`
	MemoryLimit string  `yaml:"memory_limit"`
}

// Evaluation is the defaults store for evaluation steps.
type Evaluation struct {
	DefaultEvaluations int           `yaml:"default_evaluations"`
	DefaultSplitAmount int           `yaml:"default_split_amount"`
	DefaultSplitLength int           `yaml:"default_split_length"`
	Timescale          float64       `yaml:"timescale"`
	FixedDeltaTime     time.Duration `yaml:"fixed_delta_time"`
}

type Tensorboard struct {
	Script string `yaml:"script"`
	Port   int    `yaml:"port"`
}

type Host struct {
	Listen      string        `yaml:"listen"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

const (
	LauncherLocal  = "local"
	LauncherDocker = "docker"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	var cfg Config
	applyEnv(&cfg)
	// Defaults alone always validate.
	_ = validate(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvActivationScript); v != "" {
		cfg.Training.ActivationScript = v
	}
	if v := os.Getenv(EnvUsername); v != "" {
		cfg.Training.Username = v
	}
}

// TrainersDir is where trainer config files are looked up.
func (c *Config) TrainersDir() string {
	return filepath.Join(c.Paths.TrainingDir, "trainers")
}

// TrainerResultsDir is where the trainer writes its per-run output.
func (c *Config) TrainerResultsDir() string {
	return filepath.Join(c.Paths.TrainingDir, "results")
}

func validate(cfg *Config) error {
	p := &cfg.Paths
	if p.TrainingDir == "" {
		p.TrainingDir = "training"
	}
	if p.ModelsDir == "" {
		p.ModelsDir = "models"
	}
	if p.DemosDir == "" {
		p.DemosDir = "demos"
	}
	if p.ResultsDir == "" {
		p.ResultsDir = "results"
	}

	t := &cfg.Training
	if t.DefaultTrainer == "" {
		t.DefaultTrainer = "trainer.yaml"
	}
	if t.DefaultTrackInstances == 0 {
		t.DefaultTrackInstances = 1
	}
	if t.DefaultAgentInstances == 0 {
		t.DefaultAgentInstances = 1
	}
	if t.DefaultTrackInstances < 0 {
		return fmt.Errorf("training: default_track_instances must be positive")
	}
	if t.DefaultAgentInstances < 0 {
		return fmt.Errorf("training: default_agent_instances must be positive")
	}
	if t.SettleDelay == 0 {
		t.SettleDelay = 10 * time.Second
	}
	if t.SettleDelay < 0 {
		return fmt.Errorf("training: settle_delay must not be negative")
	}
	if t.BehaviorName == "" {
		t.BehaviorName = "Kart"
	}
	if t.Launcher == "" {
		t.Launcher = LauncherLocal
	}
	if t.Launcher != LauncherLocal && t.Launcher != LauncherDocker {
		return fmt.Errorf("training: launcher must be %q or %q, got %q", LauncherLocal, LauncherDocker, t.Launcher)
	}
	if t.LauncherScript == "" {
		t.LauncherScript = "start_training.sh"
	}
	if t.ResumeLauncherScript == "" {
		t.ResumeLauncherScript = "start_training_initialized.sh"
	}
	if t.Launcher == LauncherDocker && t.Docker.Image == "" {
		return fmt.Errorf("training: docker.image is required for the docker launcher")
	}
	if t.Docker.CPULimit < 0 {
		return fmt.Errorf("training: docker.cpu_limit must not be negative")
	}
	if t.Docker.MemoryLimit != "" {
		if _, err := units.RAMInBytes(t.Docker.MemoryLimit); err != nil {
			return fmt.Errorf("training: docker.memory_limit: %w", err)
		}
	}

	e := &cfg.Evaluation
	if e.DefaultEvaluations == 0 {
		e.DefaultEvaluations = 10
	}
	if e.DefaultSplitAmount == 0 {
		e.DefaultSplitAmount = 20
	}
	if e.DefaultSplitLength == 0 {
		e.DefaultSplitLength = 20
	}
	if e.DefaultEvaluations < 0 {
		return fmt.Errorf("evaluation: default_evaluations must be positive")
	}
	if e.DefaultSplitAmount < 0 {
		return fmt.Errorf("evaluation: default_split_amount must be positive")
	}
	if e.DefaultSplitLength < 0 {
		return fmt.Errorf("evaluation: default_split_length must be positive")
	}
	if e.Timescale == 0 {
		e.Timescale = 10
	}
	if e.Timescale < 0 {
		return fmt.Errorf("evaluation: timescale must be positive")
	}
	if e.FixedDeltaTime == 0 {
		e.FixedDeltaTime = 20 * time.Millisecond
	}
	if e.FixedDeltaTime < 0 {
		return fmt.Errorf("evaluation: fixed_delta_time must be positive")
	}

	if cfg.Tensorboard.Script == "" {
		cfg.Tensorboard.Script = "start_tensorboard.sh"
	}
	if cfg.Tensorboard.Port < 0 || cfg.Tensorboard.Port > 65535 {
		return fmt.Errorf("tensorboard: port %d out of range", cfg.Tensorboard.Port)
	}

	if cfg.Host.Listen == "" {
		cfg.Host.Listen = "localhost:9876"
	}
	if cfg.Host.IdleTimeout == 0 {
		cfg.Host.IdleTimeout = 10 * time.Minute
	}
	return nil
}
