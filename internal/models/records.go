package models

import "time"

// FailureRecord is a per-unit failure reported back to the uploader
type FailureRecord struct {
	Unit     UploadUnit `json:"unit"`
	Reason   string     `json:"reason"`
	Solution string     `json:"solution"`
	// Matched is set when the unit's portal profile was found before it failed
	Matched bool `json:"matched,omitempty"`
}

// Category returns the notification group this failure belongs to. An update whose
// profile was found and then failed is a student failure, not a verification miss.
func (f FailureRecord) Category() FailureCategory {
	category := f.Unit.UploadInfo.UploadType.Category()
	if category == CategoryUnverified && f.Matched {
		return CategoryStudent
	}
	return category
}

// SystemErrorRecord is an internal fault reported to engineering, never to the uploader
type SystemErrorRecord struct {
	Reason     string    `json:"reason"`
	Stack      string    `json:"stack,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BatchReport is the persisted audit trail of one processed batch
type BatchReport struct {
	ID                string              `json:"id" badgerhold:"key"`
	Uploader          string              `json:"uploader"`
	FileName          string              `json:"file_name,omitempty"`
	Units             int                 `json:"units"`
	Succeeded         int                 `json:"succeeded"`
	Failures          []FailureRecord     `json:"failures,omitempty"`
	SystemErrors      []SystemErrorRecord `json:"system_errors,omitempty"`
	NotificationsSent int                 `json:"notifications_sent"`
	Abandoned         bool                `json:"abandoned"`
	StartedAt         time.Time           `json:"started_at"`
	FinishedAt        time.Time           `json:"finished_at"`
}
