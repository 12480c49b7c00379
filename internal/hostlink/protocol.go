package hostlink

import (
	"fmt"

	"github.com/kartlab/kartbench/internal/demo"
)

// State is the link's protocol state.
type State int

const (
	StateWaiting State = iota // Listening, no engine yet
	StateInit                 // Connected, awaiting hello
	StateRunning              // Session in progress
	StateDone                 // Session over, ready to close
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Message types, engine to kartbench.
const (
	TypeHello     = "hello"
	TypeMode      = "mode"
	TypeTick      = "tick"
	TypeKeepAlive = "keep_alive"
)

// Message types, kartbench to engine.
const (
	TypeEnterMode       = "enter_mode"
	TypeExitMode        = "exit_mode"
	TypeSetupTraining   = "setup_training"
	TypeSetupEvaluation = "setup_evaluation"
	TypePlaceAgent      = "place_agent"
	TypeEndEpisode      = "end_episode"
	TypeSessionDone     = "session_done"
	// TypeSync closes the reply to every engine message. The engine reads up
	// to it before running its next physics step.
	TypeSync = "sync"
)

const (
	ModeEntered = "entered"
	ModeExited  = "exited"
)

// Progress locates a placement inside the evaluation schedule, zero-based.
type Progress struct {
	Pass    int `json:"pass"`
	Passes  int `json:"passes"`
	Window  int `json:"window"`
	Windows int `json:"windows"`
}

// Envelope is one NDJSON message in either direction. Each type uses a
// subset of the fields.
type Envelope struct {
	Type string `json:"type"`

	// hello
	Engine  string `json:"engine,omitempty"`
	Version int    `json:"version,omitempty"`

	// mode
	Mode string `json:"mode,omitempty"`

	// tick, place_agent
	Sample   *demo.WireSample `json:"sample,omitempty"`
	Progress *Progress        `json:"progress,omitempty"`

	// setup_training, setup_evaluation
	Step           *int    `json:"step,omitempty"`
	Track          string  `json:"track,omitempty"`
	Agent          string  `json:"agent,omitempty"`
	TrackInstances int     `json:"track_instances,omitempty"`
	AgentInstances int     `json:"agent_instances,omitempty"`
	Model          string  `json:"model,omitempty"`
	Demo           string  `json:"demo,omitempty"`
	Timescale      float64 `json:"timescale,omitempty"`
	FixedDeltaTime float64 `json:"fixed_delta_time,omitempty"`

	// session_done
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`
}
