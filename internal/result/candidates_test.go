package result_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kartlab/kartbench/internal/demo"
	"github.com/kartlab/kartbench/internal/result"
	"github.com/kartlab/kartbench/internal/trajectory"
)

func TestSaveCandidates(t *testing.T) {
	runDir := t.TempDir()
	var candidates []trajectory.Trajectory
	for w := range 3 {
		samples := make([]trajectory.StateSample, 4)
		for i := range samples {
			samples[i] = trajectory.StateSample{Position: trajectory.Vec3{X: float64(i), Z: float64(w)}, Rotation: trajectory.Identity}
		}
		candidates = append(candidates, trajectory.New(samples))
	}

	paths, err := result.SaveCandidates(runDir, 2, "/demos/oval.state", candidates, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("SaveCandidates: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("got %d paths, want 3", len(paths))
	}
	dir := result.StepDir(runDir, 2, "evaluation")
	for i, want := range []string{"oval-w00.state", "oval-w01.state", "oval-w02.state"} {
		if paths[i] != filepath.Join(dir, want) {
			t.Errorf("path %d: got %s, want %s", i, paths[i], want)
		}
		got, err := demo.ReadTrajectory(paths[i])
		if err != nil {
			t.Fatalf("reading %s: %v", want, err)
		}
		if got.Len() != 4 || got.At(3) != candidates[i].At(3) {
			t.Errorf("%s: got %d samples ending %v", want, got.Len(), got.At(got.Len()-1))
		}
	}

	again, err := result.SaveCandidates(runDir, 2, "oval.state", candidates[:1], 20*time.Millisecond)
	if err != nil {
		t.Fatalf("second SaveCandidates: %v", err)
	}
	if filepath.Base(again[0]) != "oval-w00_.state" {
		t.Errorf("second save wrote %s, want oval-w00_.state", filepath.Base(again[0]))
	}
}
