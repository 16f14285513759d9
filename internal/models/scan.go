package models

import "time"

// ScannedItem is a unit identifier waiting in the operator's pending queue.
type ScannedItem struct {
	ID         string    `json:"id"`
	RawValue   string    `json:"raw_value"`
	CapturedAt time.Time `json:"captured_at"`
	Failed     bool      `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

type DispatchBatch struct {
	UnitIDs      []string
	TargetStatus Status
	Metadata     map[string]string
}

// UnitResult is the per-unit outcome of a bulk transition.
type UnitResult struct {
	PassportID string
	Success    bool
	Error      string
}

type BulkResult struct {
	SuccessCount int
	FailedCount  int
	// Results == nil означает, что сервер не прислал поэлементный список.
	Results []UnitResult
}
