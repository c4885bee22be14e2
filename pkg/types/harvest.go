// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the pdf-harvester pipeline:
// harvest tasks and results, candidate links, and run configuration.
package types

import "time"

// Status is the terminal outcome of a harvest task.
type Status string

const (
	StatusDownloaded     Status = "downloaded"
	StatusManualRequired Status = "manual_required"
	StatusNotFound       Status = "not_found"
	StatusError          Status = "error"
)

// Valid reports whether s is one of the four known outcomes.
func (s Status) Valid() bool {
	switch s {
	case StatusDownloaded, StatusManualRequired, StatusNotFound, StatusError:
		return true
	}
	return false
}

// HarvestTask is one institution/URL pair to crawl.
type HarvestTask struct {
	// Institution identifies the publishing institution. Not guaranteed unique.
	Institution string `json:"institution" yaml:"institution"`

	// StartURL is the page the crawl begins on.
	StartURL string `json:"start_url" yaml:"start_url"`
}

// HarvestResult records the outcome of a single HarvestTask.
// It starts with StatusError and is mutated by the orchestrator until
// Finalize is called; after that it must not change.
type HarvestResult struct {
	Institution string `json:"institution" yaml:"institution"`
	StartURL    string `json:"start_url" yaml:"start_url"`

	// FinalURL is the last navigated URL. Empty on early failure.
	FinalURL string `json:"final_url" yaml:"final_url"`

	Status Status `json:"status" yaml:"status"`

	// FilePath is set only when Status is StatusDownloaded.
	FilePath string `json:"file_path" yaml:"file_path"`

	// Notes is free-text diagnostic output.
	Notes string `json:"notes" yaml:"notes"`

	// Actions lists the heuristic handlers that fired, in order.
	Actions []string `json:"actions" yaml:"actions"`

	// Screenshot is the diagnostic screenshot path, if one was captured.
	Screenshot string `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// NewHarvestResult returns a result for task in its initial error state.
func NewHarvestResult(task HarvestTask) *HarvestResult {
	return &HarvestResult{
		Institution: task.Institution,
		StartURL:    task.StartURL,
		Status:      StatusError,
		Actions:     []string{},
	}
}

// AddAction appends a handler tag.
func (r *HarvestResult) AddAction(tag string) {
	r.Actions = append(r.Actions, tag)
}

// HasAction reports whether tag was recorded.
func (r *HarvestResult) HasAction(tag string) bool {
	for _, a := range r.Actions {
		if a == tag {
			return true
		}
	}
	return false
}

// Finalize enforces the file path invariant: FilePath is non-empty if and
// only if Status is StatusDownloaded. A downloaded result without a file is
// demoted to StatusError.
func (r *HarvestResult) Finalize(now time.Time) {
	if r.Status == StatusDownloaded && r.FilePath == "" {
		r.Status = StatusError
		if r.Notes == "" {
			r.Notes = "download reported without a file path"
		}
	}
	if r.Status != StatusDownloaded {
		r.FilePath = ""
	}
	r.FinishedAt = now
}

// CandidateLink is an anchor judged likely to lead to a PDF.
type CandidateLink struct {
	// Href is the absolute URL of the anchor.
	Href string `json:"href" yaml:"href"`

	// Text is the anchor's visible text.
	Text string `json:"text" yaml:"text"`

	// Score is the additive heuristic score.
	Score int `json:"score" yaml:"score"`

	// Position is the anchor's index in document order.
	Position int `json:"position" yaml:"position"`
}
