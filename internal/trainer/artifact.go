package trainer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ModelExt is the extension of exported policy models.
const ModelExt = ".onnx"

// ErrModelMissing is returned when a run produced no model artifact.
var ErrModelMissing = errors.New("trained model not found")

// ModelPath is where the model of runID lives once collected.
func ModelPath(modelsDir, runID string) string {
	return filepath.Join(modelsDir, runID+ModelExt)
}

// TrainerOutputPath is where the trainer writes the model of runID.
func TrainerOutputPath(resultsDir, runID, behavior string) string {
	return filepath.Join(resultsDir, runID, behavior+ModelExt)
}

// CollectModel copies the trainer's model for runID into modelsDir and
// returns the destination path.
func CollectModel(resultsDir, modelsDir, runID, behavior string) (string, error) {
	src := TrainerOutputPath(resultsDir, runID, behavior)
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrModelMissing, src)
		}
		return "", fmt.Errorf("opening model %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating models dir: %w", err)
	}
	dst := ModelPath(modelsDir, runID)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copying model to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", dst, err)
	}
	return dst, nil
}

// CheckModel verifies the collected model of runID exists.
func CheckModel(modelsDir, runID string) (string, error) {
	path := ModelPath(modelsDir, runID)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrModelMissing, path)
	}
	return path, nil
}
