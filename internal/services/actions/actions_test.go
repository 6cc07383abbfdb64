package actions

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/fakes"
	"github.com/ternarybob/tcsync/internal/models"
	"github.com/ternarybob/tcsync/internal/services/matching"
	"github.com/ternarybob/tcsync/internal/services/portal"
)

type harness struct {
	executor *Executor
	portal   *fakes.Portal
	local    *fakes.LocalStore
	photos   *fakes.PhotoStore
	renderer *fakes.Renderer
	queue    *fakes.Queue
	config   *common.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Storage.Files.Temp = t.TempDir()
	config.Storage.Files.DefaultHeadShot = ""
	config.Company.Email = "ops@example.com"

	logger := arbor.NewLogger()
	h := &harness{
		portal:   fakes.NewPortal(),
		local:    fakes.NewLocalStore(),
		photos:   &fakes.PhotoStore{Dir: t.TempDir()},
		renderer: &fakes.Renderer{},
		queue:    &fakes.Queue{},
		config:   config,
	}
	h.executor = NewExecutor(matching.NewLocator(&config.Matching, logger), h.local, h.photos, h.renderer, h.queue, config, logger)
	return h
}

func studentUnit() *models.UploadUnit {
	return &models.UploadUnit{
		UserID:      "u-1",
		FirstName:   "Jane",
		LastName:    "Doe",
		PhoneNumber: "5551234567",
		Email:       "jane@example.com",
		DOB:         "1990-04-01 00:00:00",
		HouseNumber: "123",
		StreetName:  "Main St",
		City:        "Springfield",
		State:       "NY",
		Zipcode:     "10001",
		Height:      "70",
		EyeColor:    "Brown",
		Gender:      "Female",
		UploadInfo:  models.UploadInfo{Uploader: "op@example.com", UploadType: models.UploadStudent, Position: 1, Max: 1},
	}
}

func certificateUnit() *models.UploadUnit {
	return &models.UploadUnit{
		FirstName:     " Jane ",
		LastName:      "Doe",
		PhoneNumber:   "(555) 123-4567",
		Email:         "jane@example.com",
		CourseName:    "Scaffold &amp; Rigging",
		Instructor:    "Sam Trainer",
		IssueDate:     "2024-01-31 00:00:00",
		ExpiryDate:    "2028-01-31",
		CertificateID: "77 81",
		UploadInfo:    models.UploadInfo{Uploader: "op@example.com", UploadType: models.UploadCertificate, Position: 1, Max: 1},
	}
}

func TestParseAddress(t *testing.T) {
	address, ok := ParseAddress("123 Main St, Springfield NY 10001")
	require.True(t, ok)
	assert.Equal(t, Address{Street: "123 Main St", City: "Springfield", State: "NY", Zipcode: "10001"}, address)

	address, ok = ParseAddress("9 W 57th St, Apt 4, New York ny 10019-1234")
	require.True(t, ok)
	assert.Equal(t, "9 W 57th St, Apt 4", address.Street)
	assert.Equal(t, "New York", address.City)
	assert.Equal(t, "NY", address.State)
	assert.Equal(t, "10019-1234", address.Zipcode)

	_, ok = ParseAddress("no address on file")
	assert.False(t, ok)
}

func TestHeight(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{`5' 10"`, 70},
		{`6'0"`, 72},
		{"70", 70},
		{`5'11`, 71},
	}
	for _, tt := range tests {
		got, err := ParseHeightInches(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseHeightInches("tall")
	assert.Error(t, err)
	assert.Equal(t, `5' 10"`, FormatHeight(70))
}

func TestPrepareStudentMissingFieldNeverTouchesPortal(t *testing.T) {
	h := newHarness(t)
	unit := studentUnit()
	unit.EyeColor = ""

	job, err := h.executor.Prepare(context.Background(), models.CreateStudent{Unit: unit})

	require.Error(t, err)
	werr := models.AsWorkerError(err)
	assert.Equal(t, models.KindDataQuality, werr.Kind)
	assert.Equal(t, `It appears we are missing the "eye color".`, werr.Reason)
	assert.False(t, job.Remote)
	assert.Zero(t, h.portal.CallCount())
}

func TestPrepareStudentReportsFirstMissingField(t *testing.T) {
	h := newHarness(t)
	unit := studentUnit()
	unit.PhoneNumber = ""
	unit.Zipcode = ""

	_, err := h.executor.Prepare(context.Background(), models.CreateStudent{Unit: unit})
	require.Error(t, err)
	assert.Equal(t, `It appears we are missing the "phone number".`, models.AsWorkerError(err).Reason)
}

func TestPrepareStudentBadBirthDate(t *testing.T) {
	h := newHarness(t)
	unit := studentUnit()
	unit.DOB = "April first"

	_, err := h.executor.Prepare(context.Background(), models.CreateStudent{Unit: unit})
	require.Error(t, err)
	assert.Equal(t, ReasonBirthDate, models.AsWorkerError(err).Reason)
}

func TestCreateStudentWhenNoMatch(t *testing.T) {
	h := newHarness(t)

	job, err := h.executor.Prepare(context.Background(), models.CreateStudent{Unit: studentUnit()})
	require.NoError(t, err)
	require.True(t, job.Remote)

	require.NoError(t, h.executor.RunRemote(context.Background(), h.portal, job))

	require.Len(t, h.portal.Created, 1)
	form := h.portal.Created[0]
	assert.Equal(t, "1990-04-01", form.DateOfBirth)
	assert.Equal(t, `5' 10"`, form.Height)
	assert.Empty(t, form.PhotoPath)
	assert.False(t, job.Matched)
}

func TestCreateStudentAlreadyExists(t *testing.T) {
	h := newHarness(t)
	h.portal.AddResult(models.SearchName, "Jane Doe", &models.ProfileFields{URL: "https://portal/p/1", Phone: "555-123-4567", Email: "jane@example.com"})

	job, err := h.executor.Prepare(context.Background(), models.UpdateAndUploadUser{Unit: studentUnit()})
	require.NoError(t, err)

	err = h.executor.RunRemote(context.Background(), h.portal, job)
	require.Error(t, err)
	assert.Equal(t, ReasonAlreadyExists, models.AsWorkerError(err).Reason)
	assert.True(t, job.Matched)
	assert.Empty(t, h.portal.Created)
}

func TestCreateStudentPortalValidationErrors(t *testing.T) {
	h := newHarness(t)
	h.portal.CreateMessages = []string{"Phone is invalid", "Zip Code is invalid"}

	job, err := h.executor.Prepare(context.Background(), models.CreateStudent{Unit: studentUnit()})
	require.NoError(t, err)

	err = h.executor.RunRemote(context.Background(), h.portal, job)
	require.Error(t, err)
	werr := models.AsWorkerError(err)
	assert.Equal(t, models.KindDataQuality, werr.Kind)
	assert.Contains(t, werr.Reason, "[Phone is invalid, Zip Code is invalid]")
}

func TestCreateStudentUnknownState(t *testing.T) {
	h := newHarness(t)
	h.portal.CreateErr = portal.ErrStateNotRecognized

	job, err := h.executor.Prepare(context.Background(), models.CreateStudent{Unit: studentUnit()})
	require.NoError(t, err)

	err = h.executor.RunRemote(context.Background(), h.portal, job)
	assert.Equal(t, `It appears there was an issue with the "state" provided.`, models.AsWorkerError(err).Reason)

	h.portal.CreateErr = &portal.OptionError{Field: "EyeColor", Value: "Violet"}
	err = h.executor.RunRemote(context.Background(), h.portal, job)
	assert.Equal(t, `It appears there was an issue with the "eye color" provided.`, models.AsWorkerError(err).Reason)
}

func TestCertificateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.UploadUnit)
		reason string
	}{
		{"missing instructor", func(u *models.UploadUnit) { u.Instructor = "" }, "User is missing instructor"},
		{"bad issue date", func(u *models.UploadUnit) { u.IssueDate = "01/31/2024" }, "Invalid issue date"},
		{"bad expiry date", func(u *models.UploadUnit) { u.ExpiryDate = "soon" }, "Invalid expiry date"},
		{"bad email", func(u *models.UploadUnit) { u.Email = "jane@" }, "Invalid email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			unit := certificateUnit()
			tt.mutate(unit)

			_, err := h.executor.Prepare(context.Background(), models.AttachCertificate{Unit: unit})
			require.Error(t, err)
			assert.Equal(t, tt.reason, models.AsWorkerError(err).Reason)
			assert.Empty(t, h.local.Saved)
		})
	}
}

func TestPrepareCertificateSavesNormalizedRecord(t *testing.T) {
	h := newHarness(t)

	job, err := h.executor.Prepare(context.Background(), models.AttachCertificate{Unit: certificateUnit()})
	require.NoError(t, err)
	assert.True(t, job.Remote)

	require.Len(t, h.local.Saved, 1)
	saved := h.local.Saved[0]
	assert.Equal(t, "7781", saved.CertificateNumber)
	assert.Equal(t, "Scaffold  Rigging", saved.CourseName)
	assert.Equal(t, "5551234567", saved.PhoneNumber)
	assert.Equal(t, "Jane", saved.FirstName)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), saved.IssueDate)
	assert.Equal(t, models.Text("7781"), job.Unit.CertificateID)
}

func TestPrepareCertificateConflict(t *testing.T) {
	h := newHarness(t)
	h.local.SaveErr = &models.ConflictError{Detail: "duplicate certificate number"}

	_, err := h.executor.Prepare(context.Background(), models.AttachCertificate{Unit: certificateUnit()})
	require.Error(t, err)

	werr := models.AsWorkerError(err)
	assert.Equal(t, models.KindDataQuality, werr.Kind)
	assert.Equal(t, "Unable to save the certificate due to [duplicate certificate number].", werr.Reason)
	assert.Equal(t, SolutionSaveFailed, werr.Solution)
	assert.Zero(t, h.portal.CallCount())
}

func TestPrepareCertificateOnlyLMS(t *testing.T) {
	h := newHarness(t)
	unit := certificateUnit()
	unit.UploadInfo.OnlyLMS = true

	job, err := h.executor.Prepare(context.Background(), models.AttachCertificate{Unit: unit})
	require.NoError(t, err)
	assert.False(t, job.Remote)
	assert.Len(t, h.local.Saved, 1)
}

func TestPrepareCertificateQueuesNewUser(t *testing.T) {
	h := newHarness(t)
	h.local.SaveCreates = true

	_, err := h.executor.Prepare(context.Background(), models.AttachCertificate{Unit: certificateUnit()})
	require.NoError(t, err)

	require.Len(t, h.queue.Items, 1)
	units, err := models.DecodeBatch(h.queue.Items[0])
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, models.UploadUpdateUser, units[0].UploadInfo.UploadType)
	assert.Equal(t, "ops@example.com", units[0].UploadInfo.Uploader)
	assert.True(t, units[0].IsLast())

	h.config.Features.TrainingConnectEnabled = false
	_, err = h.executor.Prepare(context.Background(), models.AttachCertificate{Unit: certificateUnit()})
	require.NoError(t, err)
	assert.Len(t, h.queue.Items, 1)
}

func TestAttachCertificate(t *testing.T) {
	h := newHarness(t)
	h.portal.AddResult(models.SearchName, "Jane Doe", &models.ProfileFields{
		URL:              "https://portal/p/1",
		Email:            "jane@example.com",
		AddToProviderURL: "https://portal/add/1",
	})

	job, err := h.executor.Prepare(context.Background(), models.AttachCertificate{Unit: certificateUnit()})
	require.NoError(t, err)
	require.NoError(t, h.executor.RunRemote(context.Background(), h.portal, job))

	assert.True(t, job.Matched)
	assert.NotEmpty(t, job.Image)
	assert.Equal(t, []string{"https://portal/add/1"}, h.portal.AddedToProvider)

	require.Len(t, h.portal.Certificates, 1)
	form := h.portal.Certificates[0]
	assert.Equal(t, "7781", form.CertificateNumber)
	assert.Equal(t, "2024-01-31", form.IssueDate)
	assert.Equal(t, "Sam Trainer", form.TrainerName)

	_, statErr := os.Stat(form.ImagePath)
	assert.True(t, os.IsNotExist(statErr), "temporary certificate image should be removed")
}

func TestAttachCertificateMisses(t *testing.T) {
	h := newHarness(t)

	job, err := h.executor.Prepare(context.Background(), models.AttachCertificate{Unit: certificateUnit()})
	require.NoError(t, err)

	err = h.executor.RunRemote(context.Background(), h.portal, job)
	assert.Equal(t, ReasonNotFound, models.AsWorkerError(err).Reason)

	for _, url := range []string{"https://portal/p/1", "https://portal/p/2"} {
		h.portal.AddResult(models.SearchName, "Jane Doe", &models.ProfileFields{URL: url, Email: "jane@example.com"})
	}
	err = h.executor.RunRemote(context.Background(), h.portal, job)
	assert.Equal(t, ReasonFieldsMismatch, models.AsWorkerError(err).Reason)
	assert.Empty(t, h.portal.Certificates)
}

func TestAttachCertificateUnknownCourse(t *testing.T) {
	h := newHarness(t)
	h.portal.AddResult(models.SearchName, "Jane Doe", &models.ProfileFields{URL: "https://portal/p/1", Email: "jane@example.com"})
	h.portal.CertificateErr = portal.ErrCourseNotFound

	job, err := h.executor.Prepare(context.Background(), models.AttachCertificate{Unit: certificateUnit()})
	require.NoError(t, err)

	err = h.executor.RunRemote(context.Background(), h.portal, job)
	assert.Equal(t, ReasonCourseNotFound, models.AsWorkerError(err).Reason)
	assert.NotEmpty(t, job.Image)
}

func TestUpdateFromRemote(t *testing.T) {
	h := newHarness(t)
	h.portal.AddResult(models.SearchName, "Jane Doe", &models.ProfileFields{
		URL:       "https://portal/p/1",
		PhotoURL:  "https://portal/photos/1.jpg",
		PhotoID:   "P-100",
		EyeColor:  "Brown",
		Height:    `5' 10"`,
		Gender:    "Female",
		Phone:     "5551234567",
		Email:     "jane@example.com",
		BirthDate: "04/01/1990",
		Address:   "123 Main St, Springfield NY 10001",
	})

	unit := studentUnit()
	unit.UploadInfo.UploadType = models.UploadUpdateUser

	job, err := h.executor.Prepare(context.Background(), models.UpdateFromRemote{Unit: unit})
	require.NoError(t, err)
	require.NoError(t, h.executor.RunRemote(context.Background(), h.portal, job))

	update := h.local.Updates["u-1"]
	require.NotNil(t, update)
	assert.Equal(t, 70, update.Height)
	assert.Equal(t, "123 Main St", update.Address)
	assert.Equal(t, "Springfield", update.City)
	assert.Equal(t, "NY", update.State)
	assert.Equal(t, "10001", update.Zipcode)
	assert.Equal(t, "photo-1.jpeg", update.HeadShot)
	require.NotNil(t, update.DateOfBirth)
	assert.Equal(t, "1990-04-01", update.DateOfBirth.Format("2006-01-02"))
}

func TestUpdateFromRemoteDatabaseFailure(t *testing.T) {
	h := newHarness(t)
	h.portal.AddResult(models.SearchName, "Jane Doe", &models.ProfileFields{URL: "https://portal/p/1", Email: "jane@example.com"})
	h.local.UpdateErr = assert.AnError

	unit := studentUnit()
	unit.UploadInfo.UploadType = models.UploadUpdateUser

	job, err := h.executor.Prepare(context.Background(), models.UpdateFromRemote{Unit: unit})
	require.NoError(t, err)

	err = h.executor.RunRemote(context.Background(), h.portal, job)
	require.Error(t, err)
	werr := models.AsWorkerError(err)
	assert.Equal(t, models.KindSystem, werr.Kind)

	reason, solution := werr.FailureText()
	assert.Equal(t, ReasonUpdateFailed, reason)
	assert.Equal(t, SolutionUpdateFailed, solution)
}
