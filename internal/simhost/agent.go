package simhost

import (
	"math"
	"time"

	"github.com/kartlab/kartbench/internal/demo"
	"github.com/kartlab/kartbench/internal/trajectory"
)

// Agent is a candidate policy the loop can advance and observe.
type Agent interface {
	Place(initial trajectory.StateSample) error
	EndEpisode()
	// Step advances the agent by one fixed timestep.
	Step(dt time.Duration)
	State() trajectory.StateSample
}

// Kinematic dead-reckons from the velocity it was placed with.
type Kinematic struct {
	state trajectory.StateSample
}

func (k *Kinematic) Place(initial trajectory.StateSample) error {
	k.state = initial
	return nil
}

func (k *Kinematic) EndEpisode() {}

func (k *Kinematic) Step(dt time.Duration) {
	k.state.Position = k.state.Position.Add(k.state.Velocity.Scale(dt.Seconds()))
}

func (k *Kinematic) State() trajectory.StateSample { return k.state }

// Ghost replays the reference recording from the placement point. It scores
// a perfect match and serves as a calibration oracle.
type Ghost struct {
	ref     trajectory.Trajectory
	player  *demo.Player[trajectory.StateSample]
	current trajectory.StateSample
}

func NewGhost(ref trajectory.Trajectory) *Ghost {
	g := &Ghost{}
	g.Follow(ref)
	return g
}

// Follow swaps the recording replayed from the next placement on.
func (g *Ghost) Follow(ref trajectory.Trajectory) {
	g.ref = ref
	g.player = demo.NewPlayer(ref.Samples(), func(s trajectory.StateSample) { g.current = s })
	// Past the last sample the ghost comes to rest where the recording ended.
	g.player.OnDone = func() {
		g.current.Velocity = trajectory.Vec3{}
		g.current.AngularVelocity = trajectory.Vec3{}
	}
	g.player.Seek(ref.Len())
}

func (g *Ghost) Place(initial trajectory.StateSample) error {
	g.current = initial
	g.player.Seek(nearest(g.ref, initial) + 1)
	return nil
}

func (g *Ghost) EndEpisode() {}

func (g *Ghost) Step(time.Duration) { g.player.Step() }

func (g *Ghost) State() trajectory.StateSample { return g.current }

// nearest is the index of s in ref, or of the closest sample by position.
func nearest(ref trajectory.Trajectory, s trajectory.StateSample) int {
	best, bestDist := 0, math.Inf(1)
	for i := 0; i < ref.Len(); i++ {
		if ref.At(i) == s {
			return i
		}
		if d := ref.At(i).Position.Sub(s.Position).SqrMagnitude(); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// placement remembers whether the agent was teleported during the current
// tick, so the loop does not also advance it.
type placement struct {
	Agent
	placed bool
}

func (p *placement) Place(initial trajectory.StateSample) error {
	p.placed = true
	return p.Agent.Place(initial)
}
