// Package demo reads and writes state recordings and provides the generic
// recorder and player used to capture and replay them.
package demo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kartlab/kartbench/internal/trajectory"
)

// Ext is the file extension of state recordings.
const Ext = ".state"

// ErrNoDemo is returned when a recording file or folder is missing or empty.
var ErrNoDemo = errors.New("no demonstration data")

// FormatError reports a recording that exists but cannot be decoded.
type FormatError struct {
	File string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("reading demo %s: %v", e.File, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ReadFile loads every sample of a recording into memory.
func ReadFile(path string) ([]trajectory.StateSample, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoDemo, path)
		}
		return nil, fmt.Errorf("opening demo %s: %w", path, err)
	}
	defer f.Close()
	samples, err := StateCodec{}.Decode(f)
	if err != nil {
		return nil, &FormatError{File: path, Err: err}
	}
	return samples, nil
}

// ReadTrajectory loads a recording as a Trajectory.
func ReadTrajectory(path string) (trajectory.Trajectory, error) {
	samples, err := ReadFile(path)
	if err != nil {
		return trajectory.Trajectory{}, err
	}
	return trajectory.New(samples), nil
}

// WriteFile writes samples in the current on-disk format.
func WriteFile(path string, samples []trajectory.StateSample, timestep float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating demo dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating demo %s: %w", path, err)
	}
	if err := (StateCodec{Timestep: timestep}).Encode(f, samples); err != nil {
		f.Close()
		return fmt.Errorf("writing demo %s: %w", path, err)
	}
	return f.Close()
}

// CheckFile verifies path exists and, when ext is set, carries that extension.
func CheckFile(path, ext string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: file %q does not exist", ErrNoDemo, path)
	}
	if ext != "" && !strings.HasSuffix(path, ext) {
		return fmt.Errorf("%w: file %q is not a %s recording", ErrNoDemo, path, ext)
	}
	return nil
}

// CheckDir verifies dir exists and is not empty.
func CheckDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: directory %s does not exist", ErrNoDemo, dir)
	}
	for _, e := range entries {
		if !e.IsDir() {
			return nil
		}
	}
	return fmt.Errorf("%w: directory %s is empty", ErrNoDemo, dir)
}

// List returns the recordings in dir sorted by file name.
func List(dir string) ([]string, error) {
	if err := CheckDir(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no %s files in %s", ErrNoDemo, Ext, dir)
	}
	sort.Strings(files)
	return files, nil
}

// Latest returns the most recently modified recording in dir.
func Latest(dir string) (string, error) {
	files, err := List(dir)
	if err != nil {
		return "", err
	}
	latest := ""
	var latestMod int64
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest, latestMod = f, mod
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w: no readable recordings in %s", ErrNoDemo, dir)
	}
	return latest, nil
}
