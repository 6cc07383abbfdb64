package actions

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
	"github.com/ternarybob/tcsync/internal/services/matching"
)

// Job is a unit that passed its local phase and may still need the portal
type Job struct {
	Task models.Task
	// Unit is the normalized copy of the task's unit; compensation uses it.
	Unit *models.UploadUnit
	// Remote is false when the local phase already completed the unit.
	Remote bool
	// Matched records whether the portal lookup found the unit's profile.
	Matched bool
	// Submitted is set once a portal form submit has been attempted. A later attempt
	// cannot tell whether that submit landed.
	Submitted bool
	// Image holds the last certificate image rendered for the unit.
	Image []byte
	// Incidents are system faults that did not fail the unit.
	Incidents []*models.WorkerError

	student     models.StudentForm
	certificate *certificatePayload
}

// Executor performs the local and remote phases of each task type
type Executor struct {
	locator  *matching.Locator
	local    interfaces.LocalStore
	photos   interfaces.PhotoStore
	renderer interfaces.CertificateRenderer
	queue    interfaces.QueueStore
	config   *common.Config
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewExecutor wires the collaborators the task executors share
func NewExecutor(
	locator *matching.Locator,
	local interfaces.LocalStore,
	photos interfaces.PhotoStore,
	renderer interfaces.CertificateRenderer,
	queue interfaces.QueueStore,
	config *common.Config,
	logger arbor.ILogger,
) *Executor {
	return &Executor{
		locator:  locator,
		local:    local,
		photos:   photos,
		renderer: renderer,
		queue:    queue,
		config:   config,
		validate: newValidator(),
		logger:   logger,
	}
}

// Prepare runs everything that does not need the portal. Validation and local
// writes happen here so a remote retry never repeats them.
func (e *Executor) Prepare(ctx context.Context, task models.Task) (*Job, error) {
	unit := *task.Source()
	job := &Job{Task: task, Unit: &unit}

	if unit.FirstName == "" {
		return job, models.DataQuality(ReasonMissingFirstName, SolutionMissingFirstName)
	}
	if unit.LastName == "" {
		return job, models.DataQuality(ReasonMissingLastName, SolutionMissingLastName)
	}

	switch task.(type) {
	case models.CreateStudent, models.UpdateAndUploadUser:
		return job, e.prepareStudent(job)
	case models.AttachCertificate:
		return job, e.prepareCertificate(ctx, job)
	case models.UpdateFromRemote:
		if unit.UserID == "" {
			return job, models.DataQuality(ReasonMissingUserID, SolutionMissingUserID)
		}
		job.Remote = true
		return job, nil
	default:
		return job, models.System("unsupported task", fmt.Errorf("%T", task))
	}
}

// RunRemote performs the portal phase of a prepared job. Integration errors
// leave the page in an unknown state; the caller decides whether to retry.
func (e *Executor) RunRemote(ctx context.Context, portal interfaces.RemotePortal, job *Job) error {
	switch job.Task.(type) {
	case models.CreateStudent, models.UpdateAndUploadUser:
		return e.createStudent(ctx, portal, job)
	case models.AttachCertificate:
		return e.attachCertificate(ctx, portal, job)
	case models.UpdateFromRemote:
		return e.updateFromRemote(ctx, portal, job)
	default:
		return models.System("unsupported task", fmt.Errorf("%T", job.Task))
	}
}

// profileFor returns the scraped profile of a lookup, opening it when the match was direct
func profileFor(ctx context.Context, portal interfaces.RemotePortal, result *matching.LookupResult) (*models.ProfileFields, error) {
	if result.Profile != nil {
		return result.Profile, nil
	}
	if err := portal.OpenProfile(ctx, result.ProfileURL); err != nil {
		return nil, models.Integration(fmt.Errorf("open profile: %w", err))
	}
	profile, err := portal.ExtractProfileFields(ctx)
	if err != nil {
		return nil, models.Integration(fmt.Errorf("read profile: %w", err))
	}
	return profile, nil
}

// notFound turns a lookup miss into the failure shown to the uploader
func notFound(result *matching.LookupResult) *models.WorkerError {
	if result.Candidates > 0 {
		return models.DataQuality(ReasonFieldsMismatch, SolutionFieldsMismatch)
	}
	return models.DataQuality(ReasonNotFound, SolutionNotFound)
}
