package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSubGradesWeightedScore(t *testing.T) {
	grade, err := FromSubGrades([]SubGrade{
		{Name: "a", Score: 1.0, Weight: 0.7},
		{Name: "b", Score: 0.5, Weight: 0.3},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.85, grade.Score(), 0.0001)
}

func TestFromSubGradesRejectsEmpty(t *testing.T) {
	_, err := FromSubGrades(nil)
	assert.Error(t, err)
}

func TestFromSubGradesRejectsBadWeights(t *testing.T) {
	_, err := FromSubGrades([]SubGrade{
		{Name: "a", Score: 1.0, Weight: 0.5},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")
}

func TestFromSubGradesRejectsOutOfRangeScore(t *testing.T) {
	_, err := FromSubGrades([]SubGrade{
		{Name: "a", Score: 1.5, Weight: 1.0},
	})
	assert.Error(t, err)
}

func TestGradeSubGradesSortedByName(t *testing.T) {
	grade, err := FromSubGrades([]SubGrade{
		{Name: "z", Score: 1.0, Weight: 0.5},
		{Name: "a", Score: 0.0, Weight: 0.5},
	})
	require.NoError(t, err)

	subs := grade.SubGrades()
	assert.Equal(t, "a", subs[0].Name)
	assert.Equal(t, "z", subs[1].Name)
}

func TestGradeToAPI(t *testing.T) {
	grade, err := FromSubGrades([]SubGrade{
		{Name: "only", Score: 1.0, Weight: 1.0, Metadata: map[string]interface{}{"k": "v"}},
	})
	require.NoError(t, err)

	resp := grade.ToAPI("cve-x")
	assert.Equal(t, "cve-x", resp.TaskID)
	assert.Equal(t, 1.0, resp.Score)
	require.Len(t, resp.SubGrades, 1)
	assert.Equal(t, "only", resp.SubGrades[0].Name)
}

type fixedGrader struct {
	name  string
	score float64
}

func (f *fixedGrader) Name() string { return f.name }
func (f *fixedGrader) Compute(context.Context) (float64, map[string]interface{}) {
	return f.score, map[string]interface{}{"fixed": true}
}

func TestRunGrader(t *testing.T) {
	sub := RunGrader(context.Background(), &fixedGrader{name: "g", score: 0.5}, 1.0)
	assert.Equal(t, "g", sub.Name)
	assert.Equal(t, 0.5, sub.Score)
	assert.Equal(t, 1.0, sub.Weight)
	assert.Equal(t, true, sub.Metadata["fixed"])
}
