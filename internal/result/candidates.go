package result

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kartlab/kartbench/internal/demo"
	"github.com/kartlab/kartbench/internal/trajectory"
)

// SaveCandidates writes the trajectories an agent drove during one
// evaluation into the step's directory, one recording per window, named
// after the demo file. It returns the paths written so far.
func SaveCandidates(runDir string, step int, demoFile string, candidates []trajectory.Trajectory, timestep time.Duration) ([]string, error) {
	dir := StepDir(runDir, step, "evaluation")
	base := strings.TrimSuffix(filepath.Base(demoFile), demo.Ext)
	codec := demo.StateCodec{Timestep: timestep.Seconds()}
	started := time.Now()

	var rec demo.Recorder[trajectory.StateSample]
	paths := make([]string, 0, len(candidates))
	for i, c := range candidates {
		for _, s := range c.Samples() {
			rec.Record(s)
		}
		path, err := demo.Save(&rec, dir, fmt.Sprintf("%s-w%02d", base, i), codec, started)
		if err != nil {
			return paths, fmt.Errorf("saving candidate %d of %s: %w", i, base, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
