package actions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
	"github.com/ternarybob/tcsync/internal/services/portal"
)

func (e *Executor) prepareCertificate(ctx context.Context, job *Job) error {
	payload, werr := e.normalizeCertificate(job.Unit)
	if werr != nil {
		return werr
	}
	job.certificate = payload

	// Compensation and the certificate image use the cleaned values.
	job.Unit.FirstName = payload.FirstName
	job.Unit.LastName = payload.LastName
	job.Unit.CourseName = payload.CourseName
	job.Unit.Instructor = payload.Instructor
	job.Unit.IssueDate = payload.IssueDate
	job.Unit.ExpiryDate = payload.ExpiryDate
	job.Unit.CertificateID = models.Text(payload.CertificateID)
	job.Unit.PhoneNumber = models.Text(payload.PhoneNumber)
	job.Unit.Email = payload.Email

	issued, _ := time.Parse("2006-01-02", payload.IssueDate)
	expires, _ := time.Parse("2006-01-02", payload.ExpiryDate)

	result, err := e.local.SaveCertificate(ctx, &models.CertificateRecord{
		CertificateNumber: payload.CertificateID,
		CourseName:        payload.CourseName,
		Instructor:        payload.Instructor,
		IssueDate:         issued,
		ExpiryDate:        expires,
		FirstName:         payload.FirstName,
		LastName:          payload.LastName,
		Email:             payload.Email,
		PhoneNumber:       payload.PhoneNumber,
		UploadedBy:        job.Unit.UploadInfo.Uploader,
	})
	if err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			return saveFailed(conflict.Detail)
		}
		return models.System("Failed to save certificate", err)
	}

	e.logger.Info().
		Str("certificate", payload.CertificateID).
		Str("user_id", result.User.ID).
		Bool("user_created", result.UserCreated).
		Msg("Certificate saved locally")

	if result.UserCreated && e.config.Features.TrainingConnectEnabled {
		if err := e.enqueueNewUser(ctx, &result.User); err != nil {
			job.Incidents = append(job.Incidents, models.System("Failed to queue portal lookup for new certificate holder", err))
		}
	}

	job.Remote = !job.Unit.UploadInfo.OnlyLMS
	return nil
}

// enqueueNewUser asks the worker to fill a freshly created local user from the portal
func (e *Executor) enqueueNewUser(ctx context.Context, user *models.LocalUser) error {
	payload, err := models.EncodeBatch([]models.UploadUnit{{
		UserID:      models.Text(user.ID),
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		PhoneNumber: models.Text(user.PhoneNumber),
		Email:       user.Email,
		UploadInfo: models.UploadInfo{
			Uploader:   e.config.Company.Email,
			UploadType: models.UploadUpdateUser,
			Position:   1,
			Max:        1,
		},
	}})
	if err != nil {
		return err
	}
	if _, err := e.queue.Push(ctx, payload); err != nil {
		return fmt.Errorf("push update_user batch: %w", err)
	}
	e.logger.Debug().Str("user_id", user.ID).Msg("Queued portal lookup for new certificate holder")
	return nil
}

func (e *Executor) attachCertificate(ctx context.Context, remote interfaces.RemotePortal, job *Job) error {
	// The portal shows no certificate list to check, so a lost submit is never repeated.
	if job.Submitted {
		return models.DataQuality(ReasonCertificateUnconfirmed, SolutionCertificateUnconfirmed)
	}

	result, err := e.locator.Locate(ctx, remote, job.Unit)
	if err != nil {
		return err
	}
	if !result.Matched {
		return notFound(result)
	}
	job.Matched = true

	profile, err := profileFor(ctx, remote, result)
	if err != nil {
		return err
	}
	if profile.AddToProviderURL != "" {
		if err := remote.AddToCourseProvider(ctx, profile.AddToProviderURL); err != nil {
			return models.Integration(fmt.Errorf("add to course provider: %w", err))
		}
	}

	image, err := e.renderer.Render(ctx, job.Unit)
	if err != nil {
		return models.System("Failed to generate certificate", err)
	}
	job.Image = image

	imagePath, err := e.writeTempImage(job.certificate.CertificateID, image)
	if err != nil {
		return models.System("Failed to write certificate image", err)
	}
	if !job.Unit.UploadInfo.Save {
		defer os.Remove(imagePath)
	}

	job.Submitted = true
	err = remote.FillCertificateForm(ctx, result.ProfileURL, models.CertificateForm{
		CourseName:        job.certificate.CourseName,
		CertificateNumber: job.certificate.CertificateID,
		IssueDate:         job.certificate.IssueDate,
		ExpirationDate:    job.certificate.ExpiryDate,
		TrainerName:       job.certificate.Instructor,
		ImagePath:         imagePath,
	})
	switch {
	case errors.Is(err, portal.ErrCourseNotFound):
		return models.DataQuality(ReasonCourseNotFound, SolutionCourseNotFound)
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return models.Integration(fmt.Errorf("attach certificate: %w", err))
	}

	e.logger.Info().
		Str("certificate", job.certificate.CertificateID).
		Str("course", job.certificate.CourseName).
		Msg("Certificate attached in portal")
	return nil
}

func (e *Executor) writeTempImage(certificateID string, image []byte) (string, error) {
	dir := e.config.Storage.Files.Temp
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.png", filepath.Base(certificateID), uuid.NewString()[:8]))
	if err := os.WriteFile(path, image, 0644); err != nil {
		return "", err
	}
	return path, nil
}
