package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fentz26/taskboard/internal/models"
)

func TestHistoryPath(t *testing.T) {
	assert.Equal(t, "/history/job-A/42", HistoryPath(jobA))
	assert.Equal(t, "/history/a%2Fb/x%20y", HistoryPath(models.TaskID{Name: "a/b", Instance: "x y"}))
}

func TestParseHistoryPath(t *testing.T) {
	tests := []struct {
		path string
		want models.TaskID
		ok   bool
	}{
		{"/history/job-A/42", jobA, true},
		{"/history/a%2Fb/x%20y", models.TaskID{Name: "a/b", Instance: "x y"}, true},
		{"/history", models.TaskID{}, false},
		{"/history/job-A", models.TaskID{}, false},
		{"/history/job-A/42/extra", models.TaskID{}, false},
		{"/history//42", models.TaskID{}, false},
		{"/tasks/job-A/42", models.TaskID{}, false},
		{"/history/%zz/42", models.TaskID{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := ParseHistoryPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	v, ok := resolve("/")
	assert.True(t, ok)
	assert.False(t, v.history)

	v, ok = resolve("/history")
	assert.True(t, ok)
	assert.True(t, v.history)
	assert.Nil(t, v.task)

	v, ok = resolve(HistoryPath(jobA))
	assert.True(t, ok)
	assert.True(t, v.history)
	assert.Equal(t, &jobA, v.task)

	_, ok = resolve("/nowhere")
	assert.False(t, ok)
}
