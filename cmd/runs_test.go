package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	origin := model.NewOrigin(time.Date(2016, 11, 13, 11, 2, 56, 0, time.UTC), -42.69, 173.02, 15, 7.8)
	runs := []model.Run{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Agency:     "geonet",
			Origin:     origin,
			Status:     model.RunStatusComplete,
			Event:      &model.CandidateEvent{ID: "2016p858000"},
			TraceCount: 42,
			CreatedAt:  now,
			UpdatedAt:  now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Agency:    "geonet",
			Origin:    origin,
			Status:    model.RunStatusFailed,
			Error:     "event folder not found",
			CreatedAt: now.Add(-time.Hour),
			UpdatedAt: now.Add(-59 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "AGENCY")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "2016p858000")
	assert.Contains(t, output, "2016-11-13 11:02:56")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "42")
	assert.Contains(t, output, "2m0s")
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.Snapshot{Total: 5, Queued: 1, Complete: 3, Failed: 1, FailRate: 0.25})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "5")
	assert.Contains(t, output, "25.0%")
}

func TestFormatRunStats_NoFinishedRuns(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.Snapshot{Total: 1, Queued: 1})
	assert.NotContains(t, buf.String(), "Fail rate")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}
