package result_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kartlab/kartbench/internal/result"
)

func TestWriteAndReadRunMeta(t *testing.T) {
	dir := t.TempDir()
	meta := &result.RunMeta{
		ID:             uuid.New(),
		Session:        "oval-curriculum",
		Host:           "sim",
		Started:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Steps:          3,
		StepsCompleted: 2,
		Status:         result.StatusStopped,
	}
	if err := result.WriteRunMeta(dir, meta); err != nil {
		t.Fatalf("WriteRunMeta: %v", err)
	}
	got, err := result.ReadRunMeta(filepath.Join(dir, "meta.json"))
	if err != nil {
		t.Fatalf("ReadRunMeta: %v", err)
	}
	if got.ID != meta.ID {
		t.Errorf("id: got %s, want %s", got.ID, meta.ID)
	}
	if got.Session != meta.Session {
		t.Errorf("session: got %q, want %q", got.Session, meta.Session)
	}
	if got.StepsCompleted != 2 || got.Status != result.StatusStopped {
		t.Errorf("progress: got %d %q", got.StepsCompleted, got.Status)
	}
	if !got.Started.Equal(meta.Started) {
		t.Errorf("started: got %v, want %v", got.Started, meta.Started)
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestStepDir(t *testing.T) {
	base := t.TempDir()
	dir := result.StepDir(base, 3, "training")
	expected := filepath.Join(base, "steps", "03-training")
	if dir != expected {
		t.Errorf("got %q, want %q", dir, expected)
	}
}

func TestLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", result.LogName)
	l, err := result.OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	recs := []result.EvaluationRecord{
		{DemoFile: "oval.state", ModelRunID: "alice_oval", Repeats: 10, SplitAmount: 20, SplitLength: 20, MeanScore: 0.91},
		{DemoFile: "fig8.state", ModelRunID: "alice_oval", Repeats: 10, SplitAmount: 20, SplitLength: 20, MeanScore: 0.72, Scores: []float64{0.7, 0.74}},
	}
	for _, r := range recs {
		if err := l.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := result.ReadRecords(path)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].DemoFile != "oval.state" || got[1].MeanScore != 0.72 {
		t.Errorf("records out of order or altered: %+v", got)
	}
	if got[0].ID == uuid.Nil || got[0].ID == got[1].ID {
		t.Errorf("expected distinct generated ids, got %s and %s", got[0].ID, got[1].ID)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected generated timestamp")
	}
	if len(got[1].Scores) != 2 {
		t.Errorf("scores: got %v", got[1].Scores)
	}
}

func TestReadRecordsSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), result.LogName)
	content := `{"demo_file":"a.state","model_run_id":"m","mean_score":0.5}
not json at all
{"demo_file":"b.state","model_run_id":"m","mean_score":0.7}

{"demo_file":
`
	os.WriteFile(path, []byte(content), 0o644)
	got, err := result.ReadRecords(path)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[1].DemoFile != "b.state" {
		t.Errorf("got %q, want b.state", got[1].DemoFile)
	}
}

func TestReadRecordsMissing(t *testing.T) {
	if _, err := result.ReadRecords(filepath.Join(t.TempDir(), "none.jsonl")); err == nil {
		t.Error("expected error for missing log")
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), result.LogName)
	l, _ := result.OpenLog(path)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Append(result.EvaluationRecord{Step: i, ModelRunID: "m"})
		}(i)
	}
	wg.Wait()
	got, err := result.ReadRecords(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 records, got %d", len(got))
	}
}
