package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kartlab/kartbench/internal/demo"
	"github.com/kartlab/kartbench/internal/simhost"
	"github.com/kartlab/kartbench/internal/trajectory"
)

func TestNewAgent(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"kinematic", false},
		{"ghost", false},
		{"neural", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newAgent(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("newAgent(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestAgentFactory(t *testing.T) {
	ref := trajectory.New([]trajectory.StateSample{{}, {Position: trajectory.Vec3{X: 1}}})

	ghost, err := agentFactory("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ghost(ref).(*simhost.Ghost); !ok {
		t.Error("ghost factory did not build a Ghost")
	}
	kin, err := agentFactory("kinematic")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := kin(ref).(*simhost.Kinematic); !ok {
		t.Error("kinematic factory did not build a Kinematic")
	}
	if _, err := agentFactory("neural"); err == nil {
		t.Error("expected an error for an unknown agent")
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Paths.DemosDir != "demos" {
		t.Errorf("demos dir = %q, want the default", cfg.Paths.DemosDir)
	}
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("training:\n  launcher: kubernetes\n"), 0o644)
	if _, err := loadConfig(path); err == nil {
		t.Error("expected an error for an invalid config")
	}
}

func TestDemoFiles(t *testing.T) {
	dir := t.TempDir()
	samples := []trajectory.StateSample{{}, {Position: trajectory.Vec3{X: 1}}}
	for _, name := range []string{"b.state", "a.state"} {
		if err := demo.WriteFile(filepath.Join(dir, name), samples, 0); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Hour)
	os.Chtimes(filepath.Join(dir, "b.state"), past, past)
	empty := t.TempDir()

	tests := []struct {
		name     string
		file     string
		folder   string
		fallback string
		latest   bool
		want     []string
		wantErr  error
	}{
		{"single file", filepath.Join(dir, "b.state"), "", empty, false, []string{"b.state"}, nil},
		{"folder sorted", "", dir, empty, false, []string{"a.state", "b.state"}, nil},
		{"fallback folder", "", "", dir, false, []string{"a.state", "b.state"}, nil},
		{"latest of folder", "", dir, empty, true, []string{"a.state"}, nil},
		{"latest of empty folder", "", empty, dir, true, nil, demo.ErrNoDemo},
		{"missing file", filepath.Join(dir, "c.state"), "", dir, false, nil, demo.ErrNoDemo},
		{"empty folder", "", empty, dir, false, nil, demo.ErrNoDemo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := demoFiles(tt.file, tt.folder, tt.fallback, tt.latest)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var names []string
			for _, f := range got {
				names = append(names, filepath.Base(f))
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", names, tt.want)
			}
		})
	}
}

func TestCompareCommand(t *testing.T) {
	dir := t.TempDir()
	samples := []trajectory.StateSample{{}, {Position: trajectory.Vec3{X: 1}}, {Position: trajectory.Vec3{X: 2}}}
	ref := filepath.Join(dir, "ref.state")
	if err := demo.WriteFile(ref, samples, 0); err != nil {
		t.Fatal(err)
	}

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", filepath.Join(dir, "none.yaml"), "compare", ref, ref})
	if err := root.Execute(); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !strings.Contains(out.String(), "score:         1.0000") {
		t.Errorf("output missing a perfect score:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "dissimilarity: 0.0000") {
		t.Errorf("output missing zero dissimilarity:\n%s", out.String())
	}
}

func TestOrDefault(t *testing.T) {
	if got := orDefault(0, 20); got != 20 {
		t.Errorf("orDefault(0, 20) = %d", got)
	}
	if got := orDefault(5, 20); got != 5 {
		t.Errorf("orDefault(5, 20) = %d", got)
	}
}
