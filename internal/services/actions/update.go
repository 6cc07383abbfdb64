package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
)

func (e *Executor) updateFromRemote(ctx context.Context, remote interfaces.RemotePortal, job *Job) error {
	result, err := e.locator.Locate(ctx, remote, job.Unit)
	if err != nil {
		return err
	}
	if !result.Matched {
		return models.DataQuality(ReasonNotFound, SolutionNotFound)
	}
	job.Matched = true

	profile, err := profileFor(ctx, remote, result)
	if err != nil {
		return err
	}

	update := e.localUpdate(profile)

	if profile.PhotoURL != "" {
		name, err := e.photos.Download(ctx, profile.PhotoURL)
		if err != nil {
			return updateFailed(fmt.Errorf("download head shot: %w", err))
		}
		update.HeadShot = name
	}

	if err := e.local.UpdateUser(ctx, job.Unit.UserID.String(), update); err != nil {
		return updateFailed(err)
	}

	e.logger.Info().
		Str("user_id", job.Unit.UserID.String()).
		Str("profile", result.ProfileURL).
		Msg("Local user updated from portal")
	return nil
}

// localUpdate converts scraped profile values into the local user's columns
func (e *Executor) localUpdate(profile *models.ProfileFields) *models.LocalUserUpdate {
	update := &models.LocalUserUpdate{
		PhotoID:     strings.TrimSpace(profile.PhotoID),
		EyeColor:    strings.TrimSpace(profile.EyeColor),
		Gender:      strings.TrimSpace(profile.Gender),
		PhoneNumber: strings.TrimSpace(profile.Phone),
		Email:       strings.TrimSpace(profile.Email),
		Address:     strings.TrimSpace(profile.Address),
	}

	if profile.Height != "" {
		if inches, err := ParseHeightInches(profile.Height); err == nil {
			update.Height = inches
		} else {
			e.logger.Debug().Str("height", profile.Height).Msg("Failed to convert height")
		}
	}

	if profile.BirthDate != "" {
		if dob, err := parsePortalDate(profile.BirthDate); err == nil {
			update.DateOfBirth = &dob
		} else {
			e.logger.Debug().Str("dob", profile.BirthDate).Msg("Failed to convert birth date")
		}
	}

	if address, ok := ParseAddress(profile.Address); ok {
		update.Address = address.Street
		update.City = address.City
		update.State = address.State
		update.Zipcode = address.Zipcode
	}

	return update
}

func updateFailed(cause error) *models.WorkerError {
	return models.System("An error occurred while running database update", cause).
		WithNotice(ReasonUpdateFailed, SolutionUpdateFailed)
}
