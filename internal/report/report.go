package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kartlab/kartbench/internal/result"
)

type ModelSummary struct {
	Model       string    `json:"model"`
	Evaluations int       `json:"evaluations"`
	Demos       int       `json:"demos"`
	MeanScore   float64   `json:"mean_score"`
	MinScore    float64   `json:"min_score"`
	MaxScore    float64   `json:"max_score"`
	LastDemo    string    `json:"last_demo"`
	LastRun     time.Time `json:"last_run"`
}

// Generate reads the results log at logPath and writes one summary line per
// evaluated model.
func Generate(logPath, format string, w io.Writer) error {
	records, err := result.ReadRecords(logPath)
	if err != nil {
		return err
	}
	summaries := Aggregate(records)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

// Aggregate groups records by model run id, sorted by model.
func Aggregate(records []result.EvaluationRecord) []ModelSummary {
	type accum struct {
		count    int
		score    float64
		min, max float64
		demos    map[string]bool
		lastDemo string
		lastRun  time.Time
	}
	byModel := map[string]*accum{}

	for _, r := range records {
		a, ok := byModel[r.ModelRunID]
		if !ok {
			a = &accum{min: math.Inf(1), max: math.Inf(-1), demos: map[string]bool{}}
			byModel[r.ModelRunID] = a
		}
		a.count++
		a.score += r.MeanScore
		a.min = math.Min(a.min, lowOf(r))
		a.max = math.Max(a.max, highOf(r))
		a.demos[r.DemoFile] = true
		if !r.Timestamp.Before(a.lastRun) {
			a.lastRun = r.Timestamp
			a.lastDemo = r.DemoFile
		}
	}

	var summaries []ModelSummary
	for name, a := range byModel {
		summaries = append(summaries, ModelSummary{
			Model:       name,
			Evaluations: a.count,
			Demos:       len(a.demos),
			MeanScore:   a.score / float64(a.count),
			MinScore:    a.min,
			MaxScore:    a.max,
			LastDemo:    a.lastDemo,
			LastRun:     a.lastRun,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Model < summaries[j].Model
	})
	return summaries
}

// Older records carry only the mean.
func lowOf(r result.EvaluationRecord) float64 {
	if r.MinScore == 0 && r.MaxScore == 0 {
		return r.MeanScore
	}
	return r.MinScore
}

func highOf(r result.EvaluationRecord) float64 {
	if r.MinScore == 0 && r.MaxScore == 0 {
		return r.MeanScore
	}
	return r.MaxScore
}

func writeTable(summaries []ModelSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tEVALUATIONS\tDEMOS\tMEAN SCORE\tMIN\tMAX\tLAST DEMO")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f\t%.3f\t%.3f\t%s\n",
			s.Model, s.Evaluations, s.Demos, s.MeanScore, s.MinScore, s.MaxScore, s.LastDemo)
	}
	return tw.Flush()
}

func writeMarkdown(summaries []ModelSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Model | Evaluations | Demos | Mean Score | Min | Max | Last Demo |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %d | %.3f | %.3f | %.3f | %s |\n",
			s.Model, s.Evaluations, s.Demos, s.MeanScore, s.MinScore, s.MaxScore, s.LastDemo)
	}
	return nil
}

func writeJSON(summaries []ModelSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
