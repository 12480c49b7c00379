package result

import (
	"time"

	"github.com/google/uuid"
)

// EvaluationRecord is one line of the results log: the aggregate of one
// evaluator run over one demo file.
type EvaluationRecord struct {
	ID          uuid.UUID `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Session     string    `json:"session,omitempty"`
	Step        int       `json:"step"`
	DemoFile    string    `json:"demo_file"`
	ModelRunID  string    `json:"model_run_id"`
	Repeats     int       `json:"repeats"`
	SplitAmount int       `json:"split_amount"`
	SplitLength int       `json:"split_length"`
	MeanScore   float64   `json:"mean_score"`
	MinScore    float64   `json:"min_score"`
	MaxScore    float64   `json:"max_score"`
	StdDev      float64   `json:"std_dev"`
	Scores      []float64 `json:"scores,omitempty"`
}

// RunMeta describes one session run and is written to the run directory.
type RunMeta struct {
	ID          uuid.UUID `json:"id"`
	Session     string    `json:"session"`
	SessionFile string    `json:"session_file,omitempty"`
	// TrainingRevision is the commit of the training dir, when it is a git repo.
	TrainingRevision string    `json:"training_revision,omitempty"`
	Host             string    `json:"host"`
	Started          time.Time `json:"started"`
	Finished         time.Time `json:"finished,omitzero"`
	Steps            int       `json:"steps"`
	StepsCompleted   int       `json:"steps_completed"`
	Status           string    `json:"status"`
	Error            string    `json:"error,omitempty"`
}

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)
