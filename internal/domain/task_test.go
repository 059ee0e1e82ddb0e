package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytgrab/internal/domain"
)

func TestTerminal(t *testing.T) {
	assert.True(t, domain.TaskStatusCompleted.Terminal())
	assert.True(t, domain.TaskStatusError.Terminal())
	assert.True(t, domain.TaskStatusCanceled.Terminal())
	assert.False(t, domain.TaskStatusPending.Terminal())
	assert.False(t, domain.TaskStatusDownloading.Terminal())
	assert.False(t, domain.TaskStatusPaused.Terminal())
}

func TestFormatValid(t *testing.T) {
	assert.True(t, domain.FormatVideo.Valid())
	assert.True(t, domain.FormatAudio.Valid())
	assert.False(t, domain.TaskFormat("flac").Valid())
	assert.False(t, domain.TaskFormat("").Valid())
}

func TestUpdateApplyMergesOnlySetFields(t *testing.T) {
	created := time.Now().Add(-time.Minute)
	task := domain.Task{
		ID:        "a",
		URL:       "https://example.com/v/a",
		Status:    domain.TaskStatusDownloading,
		Progress:  10,
		Speed:     "1.00 KB/s",
		CreatedAt: created,
		UpdatedAt: created,
	}

	domain.TaskUpdate{
		Progress: domain.Float64Ptr(55),
		ETA:      domain.StringPtr("30s"),
	}.Apply(&task)

	assert.Equal(t, 55.0, task.Progress)
	assert.Equal(t, "30s", task.ETA)
	// unset fields are untouched
	assert.Equal(t, domain.TaskStatusDownloading, task.Status)
	assert.Equal(t, "1.00 KB/s", task.Speed)
	assert.Equal(t, created, task.CreatedAt)
	assert.True(t, task.UpdatedAt.After(created))
}

func TestUpdateMarshalsOnlySetFields(t *testing.T) {
	data, err := json.Marshal(domain.TaskUpdate{
		Status:   domain.StatusPtr(domain.TaskStatusDownloading),
		Progress: domain.Float64Ptr(25),
	})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Len(t, fields, 2)
	assert.Equal(t, "downloading", fields["status"])
	assert.Equal(t, 25.0, fields["progress"])
}
