package demo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kartlab/kartbench/internal/trajectory"
)

const (
	// Format tags state recordings on disk.
	Format = "kart-state"
	// Version is the newest schema version this package reads and the one it writes.
	Version = 1
	// DefaultTimestep is the fixed physics step recordings are taken at, in seconds.
	DefaultTimestep = 0.02
)

// ErrEmptyRecording is returned for a well-formed file with no samples.
var ErrEmptyRecording = errors.New("recording has no samples")

// Codec encodes and decodes a stream of recorded items.
type Codec[T any] interface {
	Encode(w io.Writer, items []T) error
	Decode(r io.Reader) ([]T, error)
}

// StateCodec is the on-disk codec for state recordings.
//
// Version 1 layout:
//
//	{"format": "kart-state", "version": 1, "timestep": 0.02,
//	 "samples": [{"position": [x, y, z], "rotation": [x, y, z, w],
//	              "velocity": [x, y, z], "angular_velocity": [x, y, z]}]}
//
// Decode also accepts the legacy layout written by the in-engine recorder:
// a bare array of {"position": {"x", "y", "z"}, "rotation": {...},
// "velocity": {...}, "angularVelocity": {...}} objects.
type StateCodec struct {
	Timestep float64
}

type stateFile struct {
	Format   string       `json:"format"`
	Version  int          `json:"version"`
	Timestep float64      `json:"timestep,omitempty"`
	Samples  []WireSample `json:"samples"`
}

// WireSample is the JSON form of one sample, shared by recordings and the
// engine bridge.
type WireSample struct {
	Position        [3]float64 `json:"position"`
	Rotation        [4]float64 `json:"rotation"`
	Velocity        [3]float64 `json:"velocity"`
	AngularVelocity [3]float64 `json:"angular_velocity"`
}

type legacyVec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type legacySample struct {
	Position        legacyVec `json:"position"`
	Rotation        legacyVec `json:"rotation"`
	Velocity        legacyVec `json:"velocity"`
	AngularVelocity legacyVec `json:"angularVelocity"`
}

func (c StateCodec) Encode(w io.Writer, items []trajectory.StateSample) error {
	timestep := c.Timestep
	if timestep == 0 {
		timestep = DefaultTimestep
	}
	f := stateFile{
		Format:   Format,
		Version:  Version,
		Timestep: timestep,
		Samples:  make([]WireSample, len(items)),
	}
	for i, s := range items {
		f.Samples[i] = ToWire(s)
	}
	enc := json.NewEncoder(w)
	return enc.Encode(f)
}

func (c StateCodec) Decode(r io.Reader) ([]trajectory.StateSample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading recording: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyRecording
	}

	var samples []trajectory.StateSample
	if trimmed[0] == '[' {
		var legacy []legacySample
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("parsing legacy recording: %w", err)
		}
		samples = make([]trajectory.StateSample, len(legacy))
		for i, l := range legacy {
			samples[i] = fromLegacy(l)
		}
	} else {
		var f stateFile
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, fmt.Errorf("parsing recording: %w", err)
		}
		if f.Format != Format {
			return nil, fmt.Errorf("unexpected format %q", f.Format)
		}
		if f.Version < 1 || f.Version > Version {
			return nil, fmt.Errorf("unsupported version %d", f.Version)
		}
		samples = make([]trajectory.StateSample, len(f.Samples))
		for i, w := range f.Samples {
			samples[i] = FromWire(w)
		}
	}
	if len(samples) == 0 {
		return nil, ErrEmptyRecording
	}
	return samples, nil
}

func ToWire(s trajectory.StateSample) WireSample {
	return WireSample{
		Position:        [3]float64{s.Position.X, s.Position.Y, s.Position.Z},
		Rotation:        [4]float64{s.Rotation.X, s.Rotation.Y, s.Rotation.Z, s.Rotation.W},
		Velocity:        [3]float64{s.Velocity.X, s.Velocity.Y, s.Velocity.Z},
		AngularVelocity: [3]float64{s.AngularVelocity.X, s.AngularVelocity.Y, s.AngularVelocity.Z},
	}
}

func FromWire(w WireSample) trajectory.StateSample {
	return trajectory.StateSample{
		Position:        trajectory.Vec3{X: w.Position[0], Y: w.Position[1], Z: w.Position[2]},
		Rotation:        trajectory.Quat{X: w.Rotation[0], Y: w.Rotation[1], Z: w.Rotation[2], W: w.Rotation[3]},
		Velocity:        trajectory.Vec3{X: w.Velocity[0], Y: w.Velocity[1], Z: w.Velocity[2]},
		AngularVelocity: trajectory.Vec3{X: w.AngularVelocity[0], Y: w.AngularVelocity[1], Z: w.AngularVelocity[2]},
	}
}

func fromLegacy(l legacySample) trajectory.StateSample {
	vec := func(v legacyVec) trajectory.Vec3 { return trajectory.Vec3{X: v.X, Y: v.Y, Z: v.Z} }
	return trajectory.StateSample{
		Position:        vec(l.Position),
		Rotation:        trajectory.Quat{X: l.Rotation.X, Y: l.Rotation.Y, Z: l.Rotation.Z, W: l.Rotation.W},
		Velocity:        vec(l.Velocity),
		AngularVelocity: vec(l.AngularVelocity),
	}
}
