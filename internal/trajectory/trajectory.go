// Package trajectory holds recorded kart state sequences and the metric used
// to compare a candidate run against a reference run.
package trajectory

import (
	"errors"
	"math"
)

var (
	// ErrInvariant marks logic/data mismatches, as opposed to missing user input.
	ErrInvariant = errors.New("trajectory invariant violated")
	// ErrEmptyTrajectory is returned when an empty trajectory reaches the metric.
	ErrEmptyTrajectory = invariantError("empty trajectory")
)

type invariantError string

func (e invariantError) Error() string        { return string(e) }
func (e invariantError) Is(target error) bool { return target == ErrInvariant }

// Trajectory is an immutable, chronologically ordered sequence of samples.
// It owns its samples; nothing handed in or out aliases them.
type Trajectory struct {
	points []StateSample
}

// New copies samples into a new Trajectory.
func New(samples []StateSample) Trajectory {
	points := make([]StateSample, len(samples))
	copy(points, samples)
	return Trajectory{points: points}
}

// Buffer is anything that can hand out a copy of its queued samples in FIFO order.
type Buffer interface {
	Snapshot() []StateSample
}

// FromBuffer builds a Trajectory from a recording buffer.
func FromBuffer(buf Buffer) Trajectory {
	return New(buf.Snapshot())
}

func (t Trajectory) Len() int { return len(t.points) }

func (t Trajectory) Empty() bool { return len(t.points) == 0 }

func (t Trajectory) At(i int) StateSample { return t.points[i] }

// First returns the first sample. It panics on an empty trajectory.
func (t Trajectory) First() StateSample { return t.points[0] }

// Samples returns a copy of the samples.
func (t Trajectory) Samples() []StateSample {
	out := make([]StateSample, len(t.points))
	copy(out, t.points)
	return out
}

// Slice returns a new trajectory with n samples starting at from. The bool is
// false when the window does not fit inside t.
func (t Trajectory) Slice(from, n int) (Trajectory, bool) {
	if from < 0 || n < 0 || from+n > len(t.points) {
		return Trajectory{}, false
	}
	return New(t.points[from : from+n]), true
}

// Prepend returns a new trajectory with s in front of t.
func (t Trajectory) Prepend(s StateSample) Trajectory {
	points := make([]StateSample, 0, len(t.points)+1)
	points = append(points, s)
	points = append(points, t.points...)
	return Trajectory{points: points}
}

// Equal reports whether both trajectories hold the same samples.
func (t Trajectory) Equal(o Trajectory) bool {
	if len(t.points) != len(o.points) {
		return false
	}
	for i := range t.points {
		if t.points[i] != o.points[i] {
			return false
		}
	}
	return true
}

// Evaluate scores how closely candidate tracks reference. The result is in
// [0, 1]; 1 means the positions match at every compared timestep.
//
// Positional error is summed over the common prefix of both trajectories and
// normalized by the reference's own path measure: the sum of squared distances
// between consecutive reference points, over the whole reference.
func Evaluate(reference, candidate Trajectory) (float64, error) {
	total, arc, err := distances(reference, candidate)
	if err != nil {
		return 0, err
	}
	if arc == 0 {
		// Stationary reference: only an exact match counts.
		if total == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - clamp01(math.Sqrt(total)/arc), nil
}

// Dissimilarity is the older, unclamped form of the metric:
// sqrt(total)/sqrt(arc). Zero means a perfect match and larger is worse.
func Dissimilarity(reference, candidate Trajectory) (float64, error) {
	total, arc, err := distances(reference, candidate)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	if arc == 0 {
		return math.Inf(1), nil
	}
	return math.Sqrt(total) / math.Sqrt(arc), nil
}

// Evaluate compares candidate against t used as the reference.
func (t Trajectory) Evaluate(candidate Trajectory) (float64, error) {
	return Evaluate(t, candidate)
}

func distances(reference, candidate Trajectory) (total, arc float64, err error) {
	if reference.Empty() || candidate.Empty() {
		return 0, 0, ErrEmptyTrajectory
	}
	n := min(reference.Len(), candidate.Len())
	for i := 0; i < n; i++ {
		total += reference.points[i].Position.Sub(candidate.points[i].Position).SqrMagnitude()
	}
	for i := 1; i < reference.Len(); i++ {
		arc += reference.points[i].Position.Sub(reference.points[i-1].Position).SqrMagnitude()
	}
	return total, arc, nil
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 1
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
