package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/metrics"
	"github.com/ternarybob/tcsync/internal/models"
	"github.com/ternarybob/tcsync/internal/services/actions"
)

const (
	ReasonUnknownUploadType   = "The upload type of this record is not supported."
	SolutionUnknownUploadType = "Please upload the record again from the student or certificate upload page."

	ReasonSessionUnavailable   = "We were unable to connect to Training Connect while processing this record."
	SolutionSessionUnavailable = "Please upload this record again later."

	reconcileTimeout = 2 * time.Minute
)

// Sessions is the portal session lifecycle the processor drives
type Sessions interface {
	EnsureSession(ctx context.Context) (interfaces.RemotePortal, error)
	Teardown()
}

// Processor runs one batch unit by unit and reconciles it
type Processor struct {
	executor    *actions.Executor
	sessions    Sessions
	notifier    interfaces.Notifier
	reports     interfaces.ReportStorage
	local       interfaces.LocalStore
	maxAttempts int
	logger      arbor.ILogger
}

// NewProcessor creates a batch processor
func NewProcessor(
	executor *actions.Executor,
	sessions Sessions,
	notifier interfaces.Notifier,
	reports interfaces.ReportStorage,
	local interfaces.LocalStore,
	config *common.QueueConfig,
	logger arbor.ILogger,
) *Processor {
	maxAttempts := config.UnitMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	return &Processor{
		executor:    executor,
		sessions:    sessions,
		notifier:    notifier,
		reports:     reports,
		local:       local,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// ProcessBatch processes every unit of payload in order. Reconciliation runs when the
// unit with position == max finishes; units left over after that, or a batch that never
// reaches its final position, are reconciled when the payload is exhausted.
func (p *Processor) ProcessBatch(ctx context.Context, payload string) []*models.BatchReport {
	start := time.Now()
	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()
	defer p.sessions.Teardown()

	units, err := models.DecodeBatch(payload)
	if err != nil {
		state := NewState(p.local, p.logger)
		state.SystemError(fmt.Sprintf("Unable to decode queued batch (%d bytes)", len(payload)), err, "")
		return []*models.BatchReport{p.reconcile(ctx, state)}
	}

	p.logger.Info().Int("units", len(units)).Msg("Processing batch")

	var reports []*models.BatchReport
	state := NewState(p.local, p.logger)
	for i := range units {
		unit := &units[i]
		state.observe(unit)

		if err := p.runUnit(ctx, state, unit); err != nil {
			state.abandoned = true
			p.logger.Warn().
				Err(err).
				Int("position", unit.UploadInfo.Position).
				Int("remaining", len(units)-i-1).
				Msg("Batch abandoned")
			break
		}

		if unit.IsLast() {
			reports = append(reports, p.reconcile(ctx, state))
			state = NewState(p.local, p.logger)
		}
	}

	if state.units > 0 {
		if !state.abandoned {
			p.logger.Warn().Int("units", state.units).Msg("Batch ended without reaching its final position")
		}
		reports = append(reports, p.reconcile(ctx, state))
	}
	return reports
}

// runUnit processes one unit, turning a panic into a System failure of that unit
func (p *Processor) runUnit(ctx context.Context, state *State, unit *models.UploadUnit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Int("position", unit.UploadInfo.Position).
				Msg("Recovered from panic while processing unit")
			p.sessions.Teardown()
			state.Fail(ctx, unit, models.System(fmt.Sprintf("Unexpected panic while processing unit: %v", r), nil))
			err = nil
		}
	}()
	return p.processUnit(ctx, state, unit)
}

// processUnit runs one unit. A non-nil return means the batch cannot continue.
func (p *Processor) processUnit(ctx context.Context, state *State, unit *models.UploadUnit) error {
	task, err := models.NewTask(unit)
	if err != nil {
		state.AddFailed(ctx, unit, ReasonUnknownUploadType, SolutionUnknownUploadType)
		return nil
	}

	job, err := p.executor.Prepare(ctx, task)
	if job != nil {
		for _, incident := range job.Incidents {
			state.SystemError(incident.Error(), nil, incident.Stack)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		state.Fail(ctx, job.Unit, models.AsWorkerError(err))
		return nil
	}
	if !job.Remote {
		state.Succeeded(job.Unit)
		return nil
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		remote, err := p.sessions.EnsureSession(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			state.Fail(ctx, job.Unit, models.System("Portal login failed", err).
				WithNotice(ReasonSessionUnavailable, SolutionSessionUnavailable))
			return err
		}

		err = p.executor.RunRemote(ctx, remote, job)
		if job.Matched {
			state.Matched()
		}
		if err == nil {
			state.Succeeded(job.Unit)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		werr := models.AsWorkerError(err)
		if werr.Kind != models.KindIntegration {
			p.failRemote(ctx, state, job, werr)
			return nil
		}

		// The page is in an unknown state; start the next attempt from a fresh login.
		p.sessions.Teardown()
		if attempt < p.maxAttempts {
			metrics.UnitRetries.Inc()
			p.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_attempts", p.maxAttempts).
				Str("name", job.Unit.FullName()).
				Msg("Portal step failed, retrying unit")
			continue
		}
		p.failRemote(ctx, state, job, werr)
	}
	return nil
}

func (p *Processor) failRemote(ctx context.Context, state *State, job *actions.Job, werr *models.WorkerError) {
	if job.Unit.UploadInfo.UploadType == models.UploadCertificate {
		state.KeepImage(job.Unit, job.Image)
	}
	if job.Matched {
		state.FailMatched(ctx, job.Unit, werr)
		return
	}
	state.Fail(ctx, job.Unit, werr)
}

// reconcile sends the batch's notifications, flushes its system errors and stores the report
func (p *Processor) reconcile(ctx context.Context, state *State) *models.BatchReport {
	if ctx.Err() != nil {
		// Shutdown mid-batch still tells the uploader what happened so far.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
		defer cancel()
	}

	var certificates, students, unverified []models.FailureRecord
	for _, f := range state.Failures() {
		switch f.Category() {
		case models.CategoryCertificate:
			certificates = append(certificates, f)
		case models.CategoryUnverified:
			unverified = append(unverified, f)
		default:
			students = append(students, f)
		}
	}

	sent := 0
	notify := func(kind string, send func() error) {
		if err := send(); err != nil {
			state.SystemError(fmt.Sprintf("An error occurred while sending the %s notification", kind), err, "")
			return
		}
		sent++
	}

	hasUploaderMail := len(certificates) > 0 || len(students) > 0 || (len(unverified) > 0 && !state.matched)
	if hasUploaderMail && state.uploader == "" {
		state.SystemError("Batch has failures but no uploader to notify", nil, "")
	} else {
		if len(certificates) > 0 {
			notify("certificate", func() error {
				return p.notifier.CertificateFailures(ctx, state.uploader, state.fileName, certificates, state.images)
			})
		}
		if len(students) > 0 {
			notify("student", func() error {
				return p.notifier.StudentFailures(ctx, state.uploader, state.fileName, students)
			})
		}
		if len(unverified) > 0 && !state.matched {
			notify("verification", func() error {
				return p.notifier.Unverified(ctx, state.uploader, unverified)
			})
		}
	}

	if errs := state.SystemErrors(); len(errs) > 0 {
		if err := p.notifier.SystemAlert(ctx, errs); err != nil {
			p.logger.Error().Err(err).Int("system_errors", len(errs)).Msg("Failed to send system alert")
		}
	}

	report := state.Report(sent)
	if err := p.reports.SaveReport(ctx, report); err != nil {
		p.logger.Error().Err(err).Str("batch", report.ID).Msg("Failed to save batch report")
	}

	outcome := "completed"
	if report.Abandoned {
		outcome = "abandoned"
	} else if report.Units == 0 {
		outcome = "malformed"
	}
	metrics.BatchesProcessed.WithLabelValues(outcome).Inc()

	p.logger.Info().
		Str("batch", report.ID).
		Str("uploader", report.Uploader).
		Int("units", report.Units).
		Int("succeeded", report.Succeeded).
		Int("failed", len(report.Failures)).
		Int("system_errors", len(report.SystemErrors)).
		Int("notifications", sent).
		Bool("abandoned", report.Abandoned).
		Msg("Batch reconciled")
	return report
}
