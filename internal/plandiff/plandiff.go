// Package plandiff compares two persisted Plans and renders a human-
// readable diff, useful for reviewing how a re-run of the planner would
// change a previously saved plan before executing it.
package plandiff

import (
	"encoding/json"
	"fmt"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/samestrin/diskbalancer/internal/planner"
)

// Result is the outcome of comparing two plans.
type Result struct {
	Changed bool
	Report  string
}

// Compare diffs oldPlan against newPlan by round-tripping both through
// their JSON wire representation and delegating to gojsondiff, which
// understands structural (not just line-based) JSON differences.
func Compare(oldPlan, newPlan planner.Plan) (Result, error) {
	oldJSON, err := json.Marshal(oldPlan)
	if err != nil {
		return Result{}, fmt.Errorf("plandiff: marshalling old plan: %w", err)
	}
	newJSON, err := json.Marshal(newPlan)
	if err != nil {
		return Result{}, fmt.Errorf("plandiff: marshalling new plan: %w", err)
	}

	differ := gojsondiff.New()
	diff, err := differ.Compare(oldJSON, newJSON)
	if err != nil {
		return Result{}, fmt.Errorf("plandiff: comparing plans: %w", err)
	}

	if !diff.Modified() {
		return Result{Changed: false}, nil
	}

	var oldObj map[string]any
	if err := json.Unmarshal(oldJSON, &oldObj); err != nil {
		return Result{}, fmt.Errorf("plandiff: unmarshalling old plan: %w", err)
	}

	fmtConfig := formatter.AsciiFormatterConfig{ShowArrayIndex: true}
	asciiFmt := formatter.NewAsciiFormatter(oldObj, fmtConfig)
	report, err := asciiFmt.Format(diff)
	if err != nil {
		return Result{}, fmt.Errorf("plandiff: formatting diff: %w", err)
	}

	return Result{Changed: true, Report: report}, nil
}
