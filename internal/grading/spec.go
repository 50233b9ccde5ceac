// Package grading implements the vulnerability patch grading system.
//
// A grade is a weighted combination of sub-grades, each produced by a
// grader. Graders decide one aspect of a patch attempt: whether the hidden
// security tests pass, or whether a required marker edit is present. Weights
// across all sub-grades must sum to one and every sub-score lies in [0, 1].
package grading

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/stuxbench/stux/internal/api"
)

// SubGrade is one weighted component of a vulnerability assessment.
type SubGrade struct {
	// Name identifies the grader that produced this component.
	Name string

	// Score is the grader's verdict in [0, 1].
	Score float64

	// Weight is this component's share of the overall grade.
	Weight float64

	// Metadata carries grader-specific details (test output, errors).
	Metadata map[string]interface{}
}

// Grade is the overall verdict for a vulnerability patching attempt.
type Grade struct {
	subGrades []SubGrade
}

// FromSubGrades combines sub-grades into a grade, validating the invariants
// of the scoring model: at least one component, weights summing to one
// (within 0.001), every score within [0, 1].
func FromSubGrades(subGrades []SubGrade) (*Grade, error) {
	if len(subGrades) == 0 {
		return nil, fmt.Errorf("at least one sub-grade is required")
	}

	var weightSum float64
	for _, sg := range subGrades {
		if sg.Score < 0 || sg.Score > 1 {
			return nil, fmt.Errorf("sub-grade %s has score %.3f outside [0, 1]", sg.Name, sg.Score)
		}
		weightSum += sg.Weight
	}
	if math.Abs(weightSum-1.0) >= 0.001 {
		return nil, fmt.Errorf("sub-grade weights sum to %.3f, expected 1.0", weightSum)
	}

	sorted := make([]SubGrade, len(subGrades))
	copy(sorted, subGrades)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	return &Grade{subGrades: sorted}, nil
}

// Score returns the weighted overall score, clamped to [0, 1].
func (g *Grade) Score() float64 {
	var score float64
	for _, sg := range g.subGrades {
		score += sg.Score * sg.Weight
	}
	return math.Max(0.0, math.Min(1.0, score))
}

// SubGrades returns the grade components sorted by name.
func (g *Grade) SubGrades() []SubGrade {
	return g.subGrades
}

// ToAPI converts the grade to its API representation.
func (g *Grade) ToAPI(taskID string) api.GradeResponse {
	resp := api.GradeResponse{
		TaskID: taskID,
		Score:  g.Score(),
	}
	for _, sg := range g.subGrades {
		resp.SubGrades = append(resp.SubGrades, api.SubGradeResult{
			Name:     sg.Name,
			Score:    sg.Score,
			Weight:   sg.Weight,
			Metadata: sg.Metadata,
		})
	}
	return resp
}

// Grader decides one aspect of a patch attempt.
//
// Compute returns the score and explanatory metadata. Failures to even run
// the check (missing files, broken git state) are reported as a zero score
// with an "error" metadata entry rather than an error return, matching the
// behavior of the evaluation pipeline: a patch that cannot be verified
// earns nothing.
type Grader interface {
	Name() string
	Compute(ctx context.Context) (float64, map[string]interface{})
}

// RunGrader executes a grader and wraps its verdict in a SubGrade with the
// given weight.
func RunGrader(ctx context.Context, g Grader, weight float64) SubGrade {
	score, metadata := g.Compute(ctx)
	return SubGrade{
		Name:     g.Name(),
		Score:    score,
		Weight:   weight,
		Metadata: metadata,
	}
}
