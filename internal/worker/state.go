package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/metrics"
	"github.com/ternarybob/tcsync/internal/models"
)

// State accumulates the outcome of one batch. It is created when a batch is
// popped and discarded after reconciliation; nothing carries over between batches.
type State struct {
	id        string
	uploader  string
	fileName  string
	units     int
	succeeded int
	matched   bool
	abandoned bool
	startedAt time.Time

	failures     []models.FailureRecord
	systemErrors []models.SystemErrorRecord
	images       []models.CertificateImage

	local  interfaces.LocalStore
	logger arbor.ILogger
}

// NewState starts an empty batch state
func NewState(local interfaces.LocalStore, logger arbor.ILogger) *State {
	return &State{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		local:     local,
		logger:    logger,
	}
}

// observe records batch bookkeeping carried by every unit
func (s *State) observe(unit *models.UploadUnit) {
	s.units++
	if unit.UploadInfo.Uploader != "" {
		s.uploader = unit.UploadInfo.Uploader
	}
	if unit.UploadInfo.FileName != "" {
		s.fileName = unit.UploadInfo.FileName
	}
}

// Succeeded counts a unit that completed without a failure
func (s *State) Succeeded(unit *models.UploadUnit) {
	s.succeeded++
	metrics.UnitsProcessed.WithLabelValues(string(unit.UploadInfo.UploadType), "succeeded").Inc()
}

// Matched notes that a portal lookup in this batch found its profile
func (s *State) Matched() {
	s.matched = true
}

// AddFailed compensates the local write the unit made and records the failure.
// Certificate units lose their certificate row and student units their user row;
// deleting a row that is already gone is a no-op, so repeated calls are safe.
func (s *State) AddFailed(ctx context.Context, unit *models.UploadUnit, reason, solution string) {
	switch unit.UploadInfo.UploadType {
	case models.UploadCertificate:
		if number := unit.CertificateID.String(); number != "" {
			if err := s.local.DeleteCertificates(ctx, []string{number}); err != nil {
				s.SystemError(fmt.Sprintf("Unable to delete certificate %s after failure", number), err, common.Stack())
			}
		}
	case models.UploadStudent:
		if id := unit.UserID.String(); id != "" {
			if err := s.local.DeleteUsers(ctx, []string{id}); err != nil {
				s.SystemError(fmt.Sprintf("Unable to delete user %s after failure", id), err, common.Stack())
			}
		}
	}

	s.failures = append(s.failures, models.FailureRecord{
		Unit:     *unit,
		Reason:   reason,
		Solution: solution,
	})
	metrics.UnitsProcessed.WithLabelValues(string(unit.UploadInfo.UploadType), "failed").Inc()

	s.logger.Info().
		Str("batch", s.id).
		Str("name", unit.FullName()).
		Str("upload_type", string(unit.UploadInfo.UploadType)).
		Str("reason", reason).
		Msg("Unit added to failed")
}

// Fail records a classified error against the unit. System faults are also
// reported to engineering with their stack.
func (s *State) Fail(ctx context.Context, unit *models.UploadUnit, werr *models.WorkerError) {
	if werr.Kind == models.KindSystem {
		s.SystemError(werr.Error(), nil, werr.Stack)
	}
	reason, solution := werr.FailureText()
	s.AddFailed(ctx, unit, reason, solution)
}

// FailMatched records a failure for a unit whose portal profile had been found
func (s *State) FailMatched(ctx context.Context, unit *models.UploadUnit, werr *models.WorkerError) {
	s.Fail(ctx, unit, werr)
	s.failures[len(s.failures)-1].Matched = true
}

// SystemError records an internal fault for the end-of-batch alert
func (s *State) SystemError(reason string, cause error, stack string) {
	if cause != nil {
		reason = reason + ": " + cause.Error()
	}
	s.systemErrors = append(s.systemErrors, models.SystemErrorRecord{
		Reason:     reason,
		Stack:      stack,
		OccurredAt: time.Now(),
	})
	metrics.SystemErrors.Inc()
	s.logger.Error().Str("batch", s.id).Str("reason", reason).Msg("System error recorded")
}

// KeepImage holds a rendered certificate for the failure email
func (s *State) KeepImage(unit *models.UploadUnit, image []byte) {
	if len(image) == 0 {
		return
	}
	s.images = append(s.images, models.CertificateImage{Unit: *unit, PNG: image})
}

// Failures returns the failures recorded so far
func (s *State) Failures() []models.FailureRecord {
	return s.failures
}

// SystemErrors returns the system errors recorded so far
func (s *State) SystemErrors() []models.SystemErrorRecord {
	return s.systemErrors
}

// Report snapshots the state for the audit trail
func (s *State) Report(notificationsSent int) *models.BatchReport {
	return &models.BatchReport{
		ID:                s.id,
		Uploader:          s.uploader,
		FileName:          s.fileName,
		Units:             s.units,
		Succeeded:         s.succeeded,
		Failures:          s.failures,
		SystemErrors:      s.systemErrors,
		NotificationsSent: notificationsSent,
		Abandoned:         s.abandoned,
		StartedAt:         s.startedAt,
		FinishedAt:        time.Now(),
	}
}
