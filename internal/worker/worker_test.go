package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/fakes"
	"github.com/ternarybob/tcsync/internal/models"
	"github.com/ternarybob/tcsync/internal/services/actions"
	"github.com/ternarybob/tcsync/internal/services/matching"
	"github.com/ternarybob/tcsync/internal/services/notify"
	"github.com/ternarybob/tcsync/internal/services/session"
	badgerstore "github.com/ternarybob/tcsync/internal/storage/badger"
)

const (
	uploader = "uploader@acme.test"
	engineer = "eng@acme.test"
)

type harness struct {
	processor *Processor
	runner    *Runner
	portal    *fakes.Portal
	launcher  *fakes.Launcher
	local     *fakes.LocalStore
	renderer  *fakes.Renderer
	mailer    *fakes.Mailer
	queue     *fakes.Queue
	reports   *badgerstore.ReportStorage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := arbor.NewLogger()

	config := common.NewDefaultConfig()
	config.Session.Backoff = "1ms"
	config.Storage.Files.Temp = t.TempDir()
	config.Storage.Files.DefaultHeadShot = ""
	config.Company.Name = "Acme Safety"
	config.Company.Email = "ops@acme.test"
	config.Alerts.Recipients = []string{engineer}

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		portal:   fakes.NewPortal(),
		local:    fakes.NewLocalStore(),
		renderer: &fakes.Renderer{},
		mailer:   &fakes.Mailer{},
		queue:    &fakes.Queue{},
		reports:  badgerstore.NewReportStorage(db, logger),
	}
	h.launcher = &fakes.Launcher{Portal: h.portal}

	executor := actions.NewExecutor(
		matching.NewLocator(&config.Matching, logger),
		h.local,
		&fakes.PhotoStore{Dir: t.TempDir()},
		h.renderer,
		h.queue,
		config,
		logger,
	)
	sessions := session.NewManager(h.launcher, &config.Session, logger)
	notifier := notify.NewService(h.mailer, fakes.PDF{}, config.Company, config.Alerts, logger)

	h.processor = NewProcessor(executor, sessions, notifier, h.reports, h.local, &config.Queue, logger)
	h.runner = NewRunner(h.queue, h.processor, &config.Queue, logger)
	return h
}

func student(id, first, last string, position, max int) models.UploadUnit {
	return models.UploadUnit{
		UserID:      models.Text(id),
		FirstName:   first,
		LastName:    last,
		PhoneNumber: "5551234567",
		Email:       "student@acme.test",
		DOB:         "1990-04-01",
		HouseNumber: "123",
		StreetName:  "Main St",
		City:        "Springfield",
		State:       "NY",
		Zipcode:     "10001",
		Height:      "70",
		EyeColor:    "Brown",
		Gender:      "Female",
		UploadInfo: models.UploadInfo{
			Uploader:   uploader,
			UploadType: models.UploadStudent,
			Position:   position,
			Max:        max,
			FileName:   "roster.csv",
		},
	}
}

func certificate(first, last, number string, position, max int) models.UploadUnit {
	return models.UploadUnit{
		FirstName:     first,
		LastName:      last,
		PhoneNumber:   "5559876543",
		Email:         "cert@acme.test",
		CourseName:    "Scaffold Rigging",
		Instructor:    "Sam Trainer",
		IssueDate:     "2024-01-31",
		ExpiryDate:    "2028-01-31",
		CertificateID: models.Text(number),
		UploadInfo: models.UploadInfo{
			Uploader:   uploader,
			UploadType: models.UploadCertificate,
			Position:   position,
			Max:        max,
			FileName:   "certificates.csv",
		},
	}
}

func encode(t *testing.T, units ...models.UploadUnit) string {
	t.Helper()
	payload, err := models.EncodeBatch(units)
	require.NoError(t, err)
	return payload
}

func TestProcessBatch_StudentThenDuplicateCertificate(t *testing.T) {
	h := newHarness(t)
	h.local.SaveErr = &models.ConflictError{Detail: "duplicate certificate number"}

	reports := h.processor.ProcessBatch(context.Background(), encode(t,
		student("u-1", "Sam", "Student", 1, 2),
		certificate("Cara", "Cert", "7781", 2, 2),
	))

	// The student had no remote match and was created.
	require.Len(t, h.portal.Created, 1)
	assert.Equal(t, "Sam", h.portal.Created[0].FirstName)
	assert.Empty(t, h.local.DeletedUsers)

	// The certificate failed locally and its row was compensated.
	assert.Equal(t, []string{"7781"}, h.local.DeletedCertificates)
	assert.Empty(t, h.portal.Certificates)

	// Exactly one uploader email, no alert.
	require.Len(t, h.mailer.Sent, 1)
	email := h.mailer.Sent[0]
	assert.Equal(t, []string{uploader}, email.To)
	assert.Contains(t, email.HTMLBody, "duplicate certificate number")
	assert.Contains(t, email.HTMLBody, "Cara Cert")
	assert.NotContains(t, email.HTMLBody, "Sam Student")
	assert.Empty(t, h.mailer.SentTo(engineer))

	require.Len(t, reports, 1)
	report := reports[0]
	assert.Equal(t, 2, report.Units)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Reason, "duplicate certificate number")
	assert.Empty(t, report.SystemErrors)
	assert.Equal(t, 1, report.NotificationsSent)
	assert.False(t, report.Abandoned)

	stored, err := h.reports.GetReport(context.Background(), report.ID)
	require.NoError(t, err)
	assert.Equal(t, "certificates.csv", stored.FileName)
}

func TestProcessBatch_NoEmailBeforeLastPosition(t *testing.T) {
	h := newHarness(t)
	h.portal.CreateMessages = []string{"The Email field is not a valid e-mail address."}

	reports := h.processor.ProcessBatch(context.Background(), encode(t,
		student("u-1", "Sam", "Student", 1, 2),
		student("u-2", "Ana", "Student", 2, 2),
	))

	require.Len(t, reports, 1)
	assert.Len(t, reports[0].Failures, 2)
	assert.Equal(t, []string{"u-1", "u-2"}, h.local.DeletedUsers)

	// Both failures land in a single student email.
	require.Len(t, h.mailer.Sent, 1)
	assert.Contains(t, h.mailer.Sent[0].HTMLBody, "not a valid e-mail address")
}

func TestAddFailed_CertificateIdempotent(t *testing.T) {
	local := fakes.NewLocalStore()
	ctx := context.Background()
	_, err := local.SaveCertificate(ctx, &models.CertificateRecord{CertificateNumber: "7781"})
	require.NoError(t, err)

	state := NewState(local, arbor.NewLogger())
	unit := certificate("Cara", "Cert", "7781", 1, 1)

	for i := 0; i < 3; i++ {
		state.AddFailed(ctx, &unit, "reason", "solution")
		assert.Empty(t, local.Saved)
	}

	assert.Equal(t, []string{"7781", "7781", "7781"}, local.DeletedCertificates)
	assert.Len(t, state.Failures(), 3)
	assert.Empty(t, state.SystemErrors())
}

func TestAddFailed_Compensation(t *testing.T) {
	local := fakes.NewLocalStore()
	ctx := context.Background()
	state := NewState(local, arbor.NewLogger())

	s := student("u-1", "Sam", "Student", 1, 2)
	state.AddFailed(ctx, &s, "reason", "solution")

	uploaded := student("u-2", "Ana", "Student", 2, 2)
	uploaded.UploadInfo.UploadType = models.UploadUser
	state.AddFailed(ctx, &uploaded, "reason", "solution")

	assert.Equal(t, []string{"u-1"}, local.DeletedUsers)
	assert.Empty(t, local.DeletedCertificates)

	local.DeleteErr = errors.New("connection refused")
	state.AddFailed(ctx, &s, "reason", "solution")
	require.Len(t, state.SystemErrors(), 1)
	assert.Contains(t, state.SystemErrors()[0].Reason, "connection refused")
	assert.Len(t, state.Failures(), 3)
}

func TestProcessBatch_SessionExhaustionAbandonsBatch(t *testing.T) {
	h := newHarness(t)
	h.portal.LoginFailures = 100

	reports := h.processor.ProcessBatch(context.Background(), encode(t,
		student("u-1", "Sam", "Student", 1, 3),
		student("u-2", "Ana", "Student", 2, 3),
		student("u-3", "Lee", "Student", 3, 3),
	))

	assert.Equal(t, 5, h.launcher.Launches)
	assert.Equal(t, 5, h.portal.Logins)
	assert.Empty(t, h.portal.Created)

	// Only the unit in flight is failed; the rest are dropped, not re-queued.
	assert.Equal(t, []string{"u-1"}, h.local.DeletedUsers)
	assert.Empty(t, h.queue.Items)

	require.Len(t, reports, 1)
	report := reports[0]
	assert.True(t, report.Abandoned)
	assert.Equal(t, 1, report.Units)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, ReasonSessionUnavailable, report.Failures[0].Reason)
	require.NotEmpty(t, report.SystemErrors)
	assert.Contains(t, report.SystemErrors[0].Reason, "portal session could not be established")

	assert.Len(t, h.mailer.SentTo(uploader), 1)
	assert.Len(t, h.mailer.SentTo(engineer), 1)
}

func TestProcessBatch_IntegrationRetriesThenFails(t *testing.T) {
	h := newHarness(t)
	h.portal.SearchErr = errors.New("net::ERR_CONNECTION_RESET")

	reports := h.processor.ProcessBatch(context.Background(), encode(t,
		student("u-1", "Sam", "Student", 1, 1),
	))

	// A fresh session for each of the five attempts.
	assert.Equal(t, 5, h.launcher.Launches)
	assert.Equal(t, 5, h.portal.Closed)

	require.Len(t, reports, 1)
	require.Len(t, reports[0].Failures, 1)
	assert.Equal(t, models.ReasonRetriesExhausted, reports[0].Failures[0].Reason)
	assert.Empty(t, reports[0].SystemErrors)
	assert.Equal(t, []string{"u-1"}, h.local.DeletedUsers)
}

func TestProcessBatch_LostCreateConfirmationIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.portal.CreateErr = errors.New("timeout waiting for navigation")
	h.portal.SubmitLands = true

	reports := h.processor.ProcessBatch(context.Background(), encode(t,
		student("u-1", "Sam", "Student", 1, 1),
	))

	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Succeeded)
	assert.Empty(t, reports[0].Failures)
	assert.Len(t, h.portal.Created, 1)
	assert.Equal(t, 2, h.launcher.Launches)
	assert.Empty(t, h.local.DeletedUsers)
	assert.Empty(t, h.mailer.Sent)
}

func TestProcessBatch_CertificateNeverSubmittedTwice(t *testing.T) {
	h := newHarness(t)
	h.portal.AddResult(models.SearchCardID, "SST-1", &models.ProfileFields{URL: "https://portal.test/students/1"})
	h.portal.CertificateErr = errors.New("timeout waiting for success message")
	h.portal.SubmitLands = true

	unit := certificate("Cara", "Cert", "7781", 1, 1)
	unit.CardID = "SST-1"
	reports := h.processor.ProcessBatch(context.Background(), encode(t, unit))

	require.Len(t, reports, 1)
	require.Len(t, reports[0].Failures, 1)
	assert.Equal(t, actions.ReasonCertificateUnconfirmed, reports[0].Failures[0].Reason)
	assert.Len(t, h.portal.Certificates, 1)

	submits := 0
	for _, call := range h.portal.Calls {
		if call == "certificate" {
			submits++
		}
	}
	assert.Equal(t, 1, submits)
	assert.Len(t, h.mailer.SentTo(uploader), 1)
}

func TestProcessBatch_CertificateImageZippedOnRemoteFailure(t *testing.T) {
	h := newHarness(t)
	h.portal.AddResult(models.SearchCardID, "SST-1", &models.ProfileFields{URL: "https://portal.test/students/1"})
	h.portal.CertificateErr = errors.New("timeout waiting for success message")

	unit := certificate("Cara", "Cert", "7781", 1, 1)
	unit.CardID = "SST-1"
	h.processor.ProcessBatch(context.Background(), encode(t, unit))

	require.Len(t, h.mailer.SentTo(uploader), 1)
	email := h.mailer.SentTo(uploader)[0]
	var names []string
	for _, att := range email.Attachments {
		names = append(names, att.Filename)
	}
	assert.Contains(t, names, "certificates.zip")
	assert.Equal(t, []string{"7781"}, h.local.DeletedCertificates)
}

func TestProcessBatch_UnverifiedNoticeOnlyWithoutMatches(t *testing.T) {
	update := func(id string, position, max int) models.UploadUnit {
		u := student(id, "Pat", "Update", position, max)
		u.UploadInfo.UploadType = models.UploadUpdateUser
		u.CardID = models.Text("SST-" + id)
		return u
	}

	t.Run("nothing matched", func(t *testing.T) {
		h := newHarness(t)
		h.processor.ProcessBatch(context.Background(), encode(t, update("u-1", 1, 2), update("u-2", 2, 2)))

		require.Len(t, h.mailer.Sent, 1)
		assert.Contains(t, h.mailer.Sent[0].Subject, "could not be verified")
		assert.Empty(t, h.local.DeletedUsers)
	})

	t.Run("one matched", func(t *testing.T) {
		h := newHarness(t)
		h.portal.AddResult(models.SearchCardID, "SST-u-1", &models.ProfileFields{
			URL:   "https://portal.test/students/1",
			Email: "pat@acme.test",
		})
		reports := h.processor.ProcessBatch(context.Background(), encode(t, update("u-1", 1, 2), update("u-2", 2, 2)))

		require.Len(t, reports, 1)
		assert.Equal(t, 1, reports[0].Succeeded)
		assert.Len(t, reports[0].Failures, 1)
		assert.Empty(t, h.mailer.Sent)
		assert.Contains(t, h.local.Updates, "u-1")
	})
}

func TestProcessBatch_MatchedUpdateFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.portal.AddResult(models.SearchCardID, "SST-u-1", &models.ProfileFields{
		URL:   "https://portal.test/students/1",
		Email: "pat@acme.test",
	})
	h.local.UpdateErr = errors.New("connection reset by peer")

	unit := student("u-1", "Pat", "Update", 1, 1)
	unit.UploadInfo.UploadType = models.UploadUpdateUser
	unit.CardID = "SST-u-1"
	reports := h.processor.ProcessBatch(context.Background(), encode(t, unit))

	require.Len(t, reports, 1)
	require.Len(t, reports[0].Failures, 1)
	assert.Equal(t, actions.ReasonUpdateFailed, reports[0].Failures[0].Reason)
	assert.True(t, reports[0].Failures[0].Matched)

	sent := h.mailer.SentTo(uploader)
	require.Len(t, sent, 1)
	assert.NotContains(t, sent[0].Subject, "could not be verified")
	assert.Len(t, h.mailer.SentTo(engineer), 1)
}

func TestProcessBatch_PanickingUnitFailsOnlyThatUnit(t *testing.T) {
	h := newHarness(t)
	h.portal.AddResult(models.SearchCardID, "SST-1", &models.ProfileFields{URL: "https://portal.test/students/1"})
	h.renderer.Panic = "index out of range [3] with length 3"

	cert := certificate("Cara", "Cert", "7781", 1, 2)
	cert.CardID = "SST-1"
	reports := h.processor.ProcessBatch(context.Background(), encode(t,
		cert,
		student("u-2", "Sam", "Student", 2, 2),
	))

	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Succeeded)
	require.Len(t, reports[0].Failures, 1)
	assert.Equal(t, "7781", reports[0].Failures[0].Unit.CertificateID.String())
	require.NotEmpty(t, reports[0].SystemErrors)
	assert.Contains(t, reports[0].SystemErrors[0].Reason, "index out of range")
	assert.Len(t, h.portal.Created, 1)
	assert.Len(t, h.mailer.SentTo(engineer), 1)
}

func TestProcessBatch_Malformed(t *testing.T) {
	h := newHarness(t)

	reports := h.processor.ProcessBatch(context.Background(), `{"not": "an array"}`)

	require.Len(t, reports, 1)
	assert.Equal(t, 0, reports[0].Units)
	require.Len(t, reports[0].SystemErrors, 1)
	assert.Empty(t, h.mailer.SentTo(uploader))
	assert.Len(t, h.mailer.SentTo(engineer), 1)
	assert.Equal(t, 0, h.launcher.Launches)
}

func TestProcessBatch_MissingFinalPositionStillReconciles(t *testing.T) {
	h := newHarness(t)
	s := student("u-1", "", "Student", 1, 3)

	reports := h.processor.ProcessBatch(context.Background(), encode(t, s))

	require.Len(t, reports, 1)
	require.Len(t, reports[0].Failures, 1)
	assert.Equal(t, actions.ReasonMissingFirstName, reports[0].Failures[0].Reason)
	assert.Len(t, h.mailer.SentTo(uploader), 1)
	assert.Equal(t, 0, h.portal.CallCount())
}

func TestProcessBatch_UnknownUploadType(t *testing.T) {
	h := newHarness(t)
	s := student("u-1", "Sam", "Student", 1, 1)
	s.UploadInfo.UploadType = "instructor"

	reports := h.processor.ProcessBatch(context.Background(), encode(t, s))

	require.Len(t, reports, 1)
	require.Len(t, reports[0].Failures, 1)
	assert.Equal(t, ReasonUnknownUploadType, reports[0].Failures[0].Reason)
	assert.Empty(t, h.local.DeletedUsers)
}

func TestRunnerPoll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.False(t, h.runner.Poll(ctx))

	_, err := h.queue.Push(ctx, encode(t, student("u-1", "Sam", "Student", 1, 1)))
	require.NoError(t, err)

	assert.True(t, h.runner.Poll(ctx))
	assert.False(t, h.runner.Running())
	assert.Len(t, h.portal.Created, 1)

	reports, err := h.reports.ListReports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestRunnerPoll_SurvivesPanickingBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// The failure mail panics during reconciliation, outside any unit.
	h.mailer.Panic = "cw index out of range"
	_, err := h.queue.Push(ctx, encode(t, student("u-1", "", "Student", 1, 1)))
	require.NoError(t, err)

	assert.NotPanics(t, func() { h.runner.Poll(ctx) })
	assert.False(t, h.runner.Running())

	h.mailer.Panic = ""
	_, err = h.queue.Push(ctx, encode(t, student("u-2", "Sam", "Student", 1, 1)))
	require.NoError(t, err)

	assert.True(t, h.runner.Poll(ctx))
	assert.Len(t, h.portal.Created, 1)
}
