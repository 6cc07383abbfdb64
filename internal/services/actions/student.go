package actions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
	"github.com/ternarybob/tcsync/internal/services/portal"
)

var optionLabels = map[string]string{
	"Height":   "height",
	"Gender":   "gender",
	"EyeColor": "eye color",
}

func (e *Executor) prepareStudent(job *Job) error {
	unit := job.Unit

	if werr := e.checkStudent(unit); werr != nil {
		return werr
	}

	dob, err := models.ParseBirthDate(unit.BirthDate())
	if err != nil {
		return models.DataQuality(ReasonBirthDate, SolutionBirthDate)
	}

	height := unit.Height.String()
	if inches, err := ParseHeightInches(height); err == nil {
		height = FormatHeight(inches)
	}

	job.student = models.StudentForm{
		FirstName:   strings.TrimSpace(unit.FirstName),
		MiddleName:  strings.TrimSpace(unit.MiddleName),
		LastName:    strings.TrimSpace(unit.LastName),
		Suffix:      strings.TrimSpace(unit.Suffix),
		DateOfBirth: dob.Format("2006-01-02"),
		PhotoPath:   e.headShotPath(unit.HeadShot),
		HouseNumber: unit.HouseNumber.String(),
		StreetName:  strings.TrimSpace(unit.StreetName),
		City:        strings.TrimSpace(unit.City),
		State:       strings.TrimSpace(unit.State),
		Zipcode:     unit.Zipcode.String(),
		Email:       strings.TrimSpace(unit.Email),
		Phone:       unit.PhoneNumber.String(),
		Height:      height,
		Gender:      strings.TrimSpace(unit.Gender),
		EyeColor:    strings.TrimSpace(unit.EyeColor),
	}
	job.Remote = true
	return nil
}

// headShotPath resolves the unit's head shot, falling back to the default image
func (e *Executor) headShotPath(name string) string {
	if strings.TrimSpace(name) == "" {
		name = e.config.Storage.Files.DefaultHeadShot
	}
	if name == "" {
		return ""
	}
	path := e.photos.Path(name)
	if _, err := os.Stat(path); err != nil {
		e.logger.Warn().Str("head_shot", name).Msg("Head shot file not found, creating profile without photo")
		return ""
	}
	return path
}

func (e *Executor) createStudent(ctx context.Context, remote interfaces.RemotePortal, job *Job) error {
	result, err := e.locator.Locate(ctx, remote, job.Unit)
	if err != nil {
		return err
	}
	if result.Matched {
		job.Matched = true
		if job.Submitted {
			// The earlier attempt's submit went through before its confirmation was lost.
			e.logger.Info().
				Str("name", job.Unit.FullName()).
				Str("profile", result.ProfileURL).
				Msg("Student found after unconfirmed submit")
			return nil
		}
		return models.DataQuality(ReasonAlreadyExists, SolutionAlreadyExists)
	}

	job.Submitted = true
	messages, err := remote.FillCreateForm(ctx, job.student)
	if err != nil {
		var optionErr *portal.OptionError
		switch {
		case errors.Is(err, portal.ErrStateNotRecognized):
			return invalidChoice("state")
		case errors.As(err, &optionErr):
			label := optionLabels[optionErr.Field]
			if label == "" {
				label = strings.ToLower(optionErr.Field)
			}
			return invalidChoice(label)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return models.Integration(fmt.Errorf("create student: %w", err))
		}
	}
	if len(messages) > 0 {
		return platformErrors(messages)
	}

	e.logger.Info().
		Str("name", job.Unit.FullName()).
		Str("upload_type", string(job.Unit.UploadInfo.UploadType)).
		Msg("Student created in portal")
	return nil
}
