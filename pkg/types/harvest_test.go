// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusDownloaded, StatusManualRequired, StatusNotFound, StatusError} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("").Valid())
	assert.False(t, Status("skipped").Valid())
}

func TestNewHarvestResult(t *testing.T) {
	r := NewHarvestResult(HarvestTask{Institution: "Acme", StartURL: "https://acme.example/outlook"})

	assert.Equal(t, "Acme", r.Institution)
	assert.Equal(t, "https://acme.example/outlook", r.StartURL)
	assert.Equal(t, StatusError, r.Status)
	assert.NotNil(t, r.Actions)
	assert.Empty(t, r.Actions)
	assert.Empty(t, r.FilePath)
}

func TestActions(t *testing.T) {
	r := NewHarvestResult(HarvestTask{})
	r.AddAction("accepted_cookies")
	r.AddAction("closed_modal")
	r.AddAction("accepted_cookies")

	assert.Equal(t, []string{"accepted_cookies", "closed_modal", "accepted_cookies"}, r.Actions)
	assert.True(t, r.HasAction("closed_modal"))
	assert.False(t, r.HasAction("gate_detected"))
}

func TestFinalize(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		status    Status
		filePath  string
		notes     string
		wantState Status
		wantPath  string
		wantNotes string
	}{
		{
			name:      "downloaded with file",
			status:    StatusDownloaded,
			filePath:  "downloads/acme.pdf",
			notes:     "Successfully downloaded PDF.",
			wantState: StatusDownloaded,
			wantPath:  "downloads/acme.pdf",
			wantNotes: "Successfully downloaded PDF.",
		},
		{
			name:      "downloaded without file is demoted",
			status:    StatusDownloaded,
			wantState: StatusError,
			wantNotes: "download reported without a file path",
		},
		{
			name:      "demotion keeps existing notes",
			status:    StatusDownloaded,
			notes:     "something else",
			wantState: StatusError,
			wantNotes: "something else",
		},
		{
			name:      "stray file path is cleared",
			status:    StatusNotFound,
			filePath:  "downloads/partial.pdf",
			notes:     "nothing",
			wantState: StatusNotFound,
			wantNotes: "nothing",
		},
		{
			name:      "manual required untouched",
			status:    StatusManualRequired,
			notes:     "Gate detected; profile=unknown => manual required.",
			wantState: StatusManualRequired,
			wantNotes: "Gate detected; profile=unknown => manual required.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &HarvestResult{Status: tt.status, FilePath: tt.filePath, Notes: tt.notes}
			r.Finalize(now)

			assert.Equal(t, tt.wantState, r.Status)
			assert.Equal(t, tt.wantPath, r.FilePath)
			assert.Equal(t, tt.wantNotes, r.Notes)
			assert.Equal(t, now, r.FinishedAt)
			assert.Equal(t, r.Status == StatusDownloaded, r.FilePath != "")
		})
	}
}
